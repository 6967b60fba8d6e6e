package prescription

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/barangaycare/pharmacy/internal/domain/appointment"
	"github.com/barangaycare/pharmacy/internal/platform/auth"
)

func newAuthedContext(e *echo.Echo, req *http.Request, rec *httptest.ResponseRecorder, userID string, roles ...string) echo.Context {
	ctx := context.WithValue(req.Context(), auth.UserIDKey, userID)
	ctx = context.WithValue(ctx, auth.UserRolesKey, roles)
	return e.NewContext(req.WithContext(ctx), rec)
}

func TestHandler_Issue(t *testing.T) {
	svc, _, appts, catalog := newTestService()
	h := NewHandler(svc)
	e := echo.New()

	apptID := appts.add("patient-1", appointment.StatusCompleted)
	medID := catalog.add("Paracetamol")

	body := fmt.Sprintf(`{
		"patient_id": "patient-1",
		"appointment_id": %q,
		"items": [{"medicine_id": %q, "quantity": 10}]
	}`, apptID, medID)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/prescriptions", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := newAuthedContext(e, req, rec, "doctor-1", auth.RoleAdmin)

	if err := h.Issue(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var p Prescription
	json.Unmarshal(rec.Body.Bytes(), &p)
	if p.Status != StatusActive {
		t.Errorf("expected active, got %s", p.Status)
	}
	if p.PrescriberID != "doctor-1" {
		t.Errorf("expected prescriber from auth context, got %s", p.PrescriberID)
	}
}

func TestHandler_Issue_InvalidAppointmentID(t *testing.T) {
	svc, _, _, _ := newTestService()
	h := NewHandler(svc)
	e := echo.New()

	body := `{"patient_id": "patient-1", "appointment_id": "nope", "items": []}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/prescriptions", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := newAuthedContext(e, req, rec, "doctor-1", auth.RoleAdmin)

	if err := h.Issue(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestHandler_Get_PatientScoping(t *testing.T) {
	svc, repo, _, _ := newTestService()
	h := NewHandler(svc)
	e := echo.New()

	p := &Prescription{
		ID:        uuid.New(),
		PatientID: "patient-1",
		Status:    StatusActive,
		IssuedAt:  time.Now(),
		ExpiresAt: time.Now().AddDate(0, 0, 30),
	}
	repo.seed(p)

	// Another patient cannot see it.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := newAuthedContext(e, req, rec, "patient-2", auth.RolePatient)
	c.SetParamNames("id")
	c.SetParamValues(p.ID.String())

	if err := h.Get(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for foreign prescription, got %d", rec.Code)
	}

	// The owner can.
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	rec = httptest.NewRecorder()
	c = newAuthedContext(e, req, rec, "patient-1", auth.RolePatient)
	c.SetParamNames("id")
	c.SetParamValues(p.ID.String())

	if err := h.Get(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 for owner, got %d", rec.Code)
	}
}

func TestHandler_GetByAppointment(t *testing.T) {
	svc, repo, _, _ := newTestService()
	h := NewHandler(svc)
	e := echo.New()

	apptID := uuid.New()
	p := &Prescription{
		ID: uuid.New(), PatientID: "patient-1", AppointmentID: apptID,
		Status: StatusActive, IssuedAt: time.Now(), ExpiresAt: time.Now().AddDate(0, 0, 30),
	}
	repo.seed(p)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := newAuthedContext(e, req, rec, "patient-1", auth.RolePatient)
	c.SetParamNames("appointmentId")
	c.SetParamValues(apptID.String())

	if err := h.GetByAppointment(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var out Prescription
	json.Unmarshal(rec.Body.Bytes(), &out)
	if out.ID != p.ID {
		t.Errorf("expected prescription %s, got %s", p.ID, out.ID)
	}

	// Another patient gets a 404, same as Get.
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	rec = httptest.NewRecorder()
	c = newAuthedContext(e, req, rec, "patient-2", auth.RolePatient)
	c.SetParamNames("appointmentId")
	c.SetParamValues(apptID.String())

	if err := h.GetByAppointment(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for foreign prescription, got %d", rec.Code)
	}
}

func TestHandler_List_PatientSeesOwnOnly(t *testing.T) {
	svc, repo, _, _ := newTestService()
	h := NewHandler(svc)
	e := echo.New()

	repo.seed(&Prescription{
		ID: uuid.New(), PatientID: "patient-1", Status: StatusActive,
		IssuedAt: time.Now(), ExpiresAt: time.Now().AddDate(0, 0, 30),
	})
	repo.seed(&Prescription{
		ID: uuid.New(), PatientID: "patient-2", Status: StatusActive,
		IssuedAt: time.Now(), ExpiresAt: time.Now().AddDate(0, 0, 30),
	})

	req := httptest.NewRequest(http.MethodGet, "/?patient_id=patient-2", nil)
	rec := httptest.NewRecorder()
	c := newAuthedContext(e, req, rec, "patient-1", auth.RolePatient)

	if err := h.List(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var resp struct {
		Total int `json:"total"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Total != 1 {
		t.Errorf("patient_id filter must not override patient scoping, got total %d", resp.Total)
	}
}

func TestHandler_Cancel(t *testing.T) {
	svc, repo, _, _ := newTestService()
	h := NewHandler(svc)
	e := echo.New()

	p := &Prescription{
		ID: uuid.New(), PatientID: "patient-1", Status: StatusActive,
		IssuedAt: time.Now(), ExpiresAt: time.Now().AddDate(0, 0, 30),
	}
	repo.seed(p)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"reason": "entered in error"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := newAuthedContext(e, req, rec, "admin-1", auth.RoleAdmin)
	c.SetParamNames("id")
	c.SetParamValues(p.ID.String())

	if err := h.Cancel(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var out Prescription
	json.Unmarshal(rec.Body.Bytes(), &out)
	if out.Status != StatusCancelled {
		t.Errorf("expected cancelled, got %s", out.Status)
	}
	if out.StatusReason == nil || *out.StatusReason != "entered in error" {
		t.Errorf("expected cancellation reason in response, got %v", out.StatusReason)
	}
}

func TestHandler_Cancel_MissingReason(t *testing.T) {
	svc, repo, _, _ := newTestService()
	h := NewHandler(svc)
	e := echo.New()

	p := &Prescription{
		ID: uuid.New(), PatientID: "patient-1", Status: StatusActive,
		IssuedAt: time.Now(), ExpiresAt: time.Now().AddDate(0, 0, 30),
	}
	repo.seed(p)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := newAuthedContext(e, req, rec, "admin-1", auth.RoleAdmin)
	c.SetParamNames("id")
	c.SetParamValues(p.ID.String())

	if err := h.Cancel(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}
