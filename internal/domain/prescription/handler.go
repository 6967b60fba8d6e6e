package prescription

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/barangaycare/pharmacy/internal/domain/errs"
	"github.com/barangaycare/pharmacy/internal/platform/auth"
	"github.com/barangaycare/pharmacy/pkg/pagination"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts prescription routes. Issuance and terminal
// transitions are admin operations; patients read their own prescriptions.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/prescriptions", h.List)
	api.GET("/prescriptions/appointment/:appointmentId", h.GetByAppointment)
	api.GET("/prescriptions/:id", h.Get)

	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.POST("/prescriptions", h.Issue)
	admin.POST("/prescriptions/:id/mark-used", h.MarkUsed)
	admin.POST("/prescriptions/:id/cancel", h.Cancel)
}

type itemRequest struct {
	MedicineID   string  `json:"medicine_id"`
	Quantity     int     `json:"quantity"`
	Dosage       *string `json:"dosage"`
	Instructions *string `json:"instructions"`
}

type issueRequest struct {
	PatientID     string        `json:"patient_id"`
	AppointmentID string        `json:"appointment_id"`
	Diagnosis     *string       `json:"diagnosis"`
	Notes         *string       `json:"notes"`
	ValidDays     int           `json:"valid_days"`
	Items         []itemRequest `json:"items"`
}

func (h *Handler) Issue(c echo.Context) error {
	var req issueRequest
	if err := c.Bind(&req); err != nil {
		return respondError(c, errs.New(errs.InvalidInput, "invalid request body"))
	}

	appointmentID, err := uuid.Parse(req.AppointmentID)
	if err != nil {
		return respondError(c, errs.New(errs.InvalidInput, "invalid appointment id"))
	}

	items := make([]ItemInput, 0, len(req.Items))
	for _, it := range req.Items {
		medicineID, err := uuid.Parse(it.MedicineID)
		if err != nil {
			return respondError(c, errs.New(errs.InvalidInput, "invalid medicine id"))
		}
		items = append(items, ItemInput{
			MedicineID:   medicineID,
			Quantity:     it.Quantity,
			Dosage:       it.Dosage,
			Instructions: it.Instructions,
		})
	}

	ctx := c.Request().Context()
	p, err := h.service.Issue(ctx, IssueInput{
		PatientID:     req.PatientID,
		AppointmentID: appointmentID,
		PrescriberID:  auth.UserIDFromContext(ctx),
		Diagnosis:     req.Diagnosis,
		Notes:         req.Notes,
		ValidDays:     req.ValidDays,
		Items:         items,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return respondError(c, errs.New(errs.InvalidInput, "invalid prescription id"))
	}

	ctx := c.Request().Context()
	p, err := h.service.Get(ctx, id)
	if err != nil {
		return respondError(c, err)
	}
	// Patients only see their own prescriptions.
	if !auth.IsAdmin(ctx) && p.PatientID != auth.UserIDFromContext(ctx) {
		return respondError(c, errs.New(errs.NotFound, "prescription not found"))
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) GetByAppointment(c echo.Context) error {
	appointmentID, err := uuid.Parse(c.Param("appointmentId"))
	if err != nil {
		return respondError(c, errs.New(errs.InvalidInput, "invalid appointment id"))
	}

	ctx := c.Request().Context()
	p, err := h.service.GetByAppointment(ctx, appointmentID)
	if err != nil {
		return respondError(c, err)
	}
	if !auth.IsAdmin(ctx) && p.PatientID != auth.UserIDFromContext(ctx) {
		return respondError(c, errs.New(errs.NotFound, "prescription not found"))
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()

	patientID := auth.UserIDFromContext(ctx)
	if auth.IsAdmin(ctx) {
		if qp := c.QueryParam("patient_id"); qp != "" {
			patientID = qp
		}
	}

	p := pagination.FromContext(c)
	prescriptions, total, err := h.service.ListByPatient(ctx, patientID, c.QueryParam("status"), p.Limit, p.Offset)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(prescriptions, total, p.Limit, p.Offset))
}

func (h *Handler) MarkUsed(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return respondError(c, errs.New(errs.InvalidInput, "invalid prescription id"))
	}

	ctx := c.Request().Context()
	p, err := h.service.MarkUsed(ctx, id, auth.UserIDFromContext(ctx))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) Cancel(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return respondError(c, errs.New(errs.InvalidInput, "invalid prescription id"))
	}

	var req cancelRequest
	if err := c.Bind(&req); err != nil {
		return respondError(c, errs.New(errs.InvalidInput, "invalid request body"))
	}

	ctx := c.Request().Context()
	p, err := h.service.Cancel(ctx, id, req.Reason, auth.UserIDFromContext(ctx))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

func respondError(c echo.Context, err error) error {
	var de *errs.Error
	if errors.As(err, &de) {
		return c.JSON(errs.HTTPStatus(de), map[string]any{"error": de})
	}
	return c.JSON(http.StatusInternalServerError, map[string]any{
		"error": map[string]string{"message": "internal error"},
	})
}
