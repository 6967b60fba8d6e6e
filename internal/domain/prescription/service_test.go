package prescription

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/barangaycare/pharmacy/internal/domain/appointment"
	"github.com/barangaycare/pharmacy/internal/domain/errs"
	"github.com/barangaycare/pharmacy/internal/domain/inventory"
)

// -- Mock Repositories --

type mockRepo struct {
	mu            sync.Mutex
	prescriptions map[uuid.UUID]*Prescription
}

func newMockRepo() *mockRepo {
	return &mockRepo{prescriptions: make(map[uuid.UUID]*Prescription)}
}

func (m *mockRepo) Create(_ context.Context, p *Prescription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.CreatedAt = time.Now()
	p.UpdatedAt = time.Now()
	for _, item := range p.Items {
		if item.ID == uuid.Nil {
			item.ID = uuid.New()
		}
		item.PrescriptionID = p.ID
	}
	cp := *p
	m.prescriptions[p.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Prescription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.prescriptions[id]
	if !ok {
		return nil, errs.New(errs.NotFound, "prescription not found")
	}
	cp := *p
	return &cp, nil
}

func (m *mockRepo) GetByAppointment(_ context.Context, appointmentID uuid.UUID) (*Prescription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.prescriptions {
		if p.AppointmentID == appointmentID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, errs.New(errs.NotFound, "prescription not found")
}

func (m *mockRepo) ListByPatient(_ context.Context, patientID string, status string, limit, offset int) ([]*Prescription, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*Prescription
	for _, p := range m.prescriptions {
		if p.PatientID != patientID {
			continue
		}
		if status != "" && p.Status != status {
			continue
		}
		cp := *p
		result = append(result, &cp)
	}
	return result, len(result), nil
}

func (m *mockRepo) TransitionStatus(_ context.Context, id uuid.UUID, from, to string, statusReason *string, usedAt *time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.prescriptions[id]
	if !ok || p.Status != from {
		return false, nil
	}
	p.Status = to
	if statusReason != nil {
		p.StatusReason = statusReason
	}
	if usedAt != nil {
		p.UsedAt = usedAt
	}
	return true, nil
}

// seed inserts a prescription directly, bypassing issuance validation.
func (m *mockRepo) seed(p *Prescription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	m.prescriptions[p.ID] = p
}

type mockAppointments struct {
	appts map[uuid.UUID]*appointment.Appointment
}

func newMockAppointments() *mockAppointments {
	return &mockAppointments{appts: make(map[uuid.UUID]*appointment.Appointment)}
}

func (m *mockAppointments) GetByID(_ context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	a, ok := m.appts[id]
	if !ok {
		return nil, errs.New(errs.NotFound, "appointment not found")
	}
	return a, nil
}

func (m *mockAppointments) add(patientID, status string) uuid.UUID {
	id := uuid.New()
	m.appts[id] = &appointment.Appointment{ID: id, PatientID: patientID, Status: status}
	return id
}

type mockCatalog struct {
	meds map[uuid.UUID]*inventory.Medicine
}

func newMockCatalog() *mockCatalog {
	return &mockCatalog{meds: make(map[uuid.UUID]*inventory.Medicine)}
}

func (m *mockCatalog) GetMedicine(_ context.Context, id uuid.UUID) (*inventory.Medicine, error) {
	med, ok := m.meds[id]
	if !ok {
		return nil, errs.New(errs.NotFound, "medicine not found")
	}
	return med, nil
}

func (m *mockCatalog) add(name string) uuid.UUID {
	id := uuid.New()
	m.meds[id] = &inventory.Medicine{ID: id, Name: name, StockQty: 100}
	return id
}

// passRunner runs the function directly and counts invocations; the mock
// repository is atomic on its own.
type passRunner struct {
	mu    sync.Mutex
	calls int
}

func (r *passRunner) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	return fn(ctx)
}

func newTestService() (*Service, *mockRepo, *mockAppointments, *mockCatalog) {
	repo := newMockRepo()
	appts := newMockAppointments()
	catalog := newMockCatalog()
	svc := NewService(repo, appts, catalog, &passRunner{}, zerolog.Nop())
	return svc, repo, appts, catalog
}

// -- Tests --

func TestIssue(t *testing.T) {
	svc, _, appts, catalog := newTestService()
	apptID := appts.add("patient-1", appointment.StatusCompleted)
	medID := catalog.add("Paracetamol")

	p, err := svc.Issue(context.Background(), IssueInput{
		PatientID:     "patient-1",
		AppointmentID: apptID,
		PrescriberID:  "doctor-1",
		Items:         []ItemInput{{MedicineID: medID, Quantity: 10}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Status != StatusActive {
		t.Errorf("expected active, got %s", p.Status)
	}

	wantExpiry := p.IssuedAt.AddDate(0, 0, DefaultValidDays)
	if !p.ExpiresAt.Equal(wantExpiry) {
		t.Errorf("expected default expiry %v, got %v", wantExpiry, p.ExpiresAt)
	}
	if len(p.Items) != 1 || p.Items[0].Quantity != 10 {
		t.Errorf("unexpected items: %+v", p.Items)
	}
	if p.ValidDays != DefaultValidDays {
		t.Errorf("expected valid days %d, got %d", DefaultValidDays, p.ValidDays)
	}
}

func TestIssue_HeaderAndItemsShareTransaction(t *testing.T) {
	repo := newMockRepo()
	appts := newMockAppointments()
	catalog := newMockCatalog()
	runner := &passRunner{}
	svc := NewService(repo, appts, catalog, runner, zerolog.Nop())

	apptID := appts.add("patient-1", appointment.StatusCompleted)
	med1 := catalog.add("Paracetamol")
	med2 := catalog.add("Amoxicillin")

	_, err := svc.Issue(context.Background(), IssueInput{
		PatientID:     "patient-1",
		AppointmentID: apptID,
		Items: []ItemInput{
			{MedicineID: med1, Quantity: 10},
			{MedicineID: med2, Quantity: 5},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if runner.calls != 1 {
		t.Errorf("expected the prescription and its items to be written in one transaction, got %d", runner.calls)
	}
}

func TestIssue_AppointmentNotCompleted(t *testing.T) {
	svc, _, appts, catalog := newTestService()
	apptID := appts.add("patient-1", appointment.StatusScheduled)
	medID := catalog.add("Paracetamol")

	_, err := svc.Issue(context.Background(), IssueInput{
		PatientID:     "patient-1",
		AppointmentID: apptID,
		Items:         []ItemInput{{MedicineID: medID, Quantity: 10}},
	})
	if !errs.Is(err, errs.InvalidInput) {
		t.Errorf("expected invalid input, got %v", err)
	}
}

func TestIssue_AppointmentWrongPatient(t *testing.T) {
	svc, _, appts, catalog := newTestService()
	apptID := appts.add("patient-2", appointment.StatusCompleted)
	medID := catalog.add("Paracetamol")

	_, err := svc.Issue(context.Background(), IssueInput{
		PatientID:     "patient-1",
		AppointmentID: apptID,
		Items:         []ItemInput{{MedicineID: medID, Quantity: 10}},
	})
	if !errs.Is(err, errs.InvalidInput) {
		t.Errorf("expected invalid input, got %v", err)
	}
}

func TestIssue_DuplicateAppointment(t *testing.T) {
	svc, _, appts, catalog := newTestService()
	apptID := appts.add("patient-1", appointment.StatusCompleted)
	medID := catalog.add("Paracetamol")

	in := IssueInput{
		PatientID:     "patient-1",
		AppointmentID: apptID,
		Items:         []ItemInput{{MedicineID: medID, Quantity: 10}},
	}
	if _, err := svc.Issue(context.Background(), in); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := svc.Issue(context.Background(), in)
	if !errs.Is(err, errs.InvalidStateTransition) {
		t.Errorf("expected invalid state transition, got %v", err)
	}
}

func TestIssue_UnknownMedicine(t *testing.T) {
	svc, _, appts, _ := newTestService()
	apptID := appts.add("patient-1", appointment.StatusCompleted)

	_, err := svc.Issue(context.Background(), IssueInput{
		PatientID:     "patient-1",
		AppointmentID: apptID,
		Items:         []ItemInput{{MedicineID: uuid.New(), Quantity: 10}},
	})
	if !errs.Is(err, errs.NotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestIssue_NonPositiveQuantity(t *testing.T) {
	svc, _, appts, catalog := newTestService()
	apptID := appts.add("patient-1", appointment.StatusCompleted)
	medID := catalog.add("Paracetamol")

	_, err := svc.Issue(context.Background(), IssueInput{
		PatientID:     "patient-1",
		AppointmentID: apptID,
		Items:         []ItemInput{{MedicineID: medID, Quantity: 0}},
	})
	if !errs.Is(err, errs.InvalidInput) {
		t.Errorf("expected invalid input, got %v", err)
	}
}

func TestIssue_NoItems(t *testing.T) {
	svc, _, appts, _ := newTestService()
	apptID := appts.add("patient-1", appointment.StatusCompleted)

	_, err := svc.Issue(context.Background(), IssueInput{
		PatientID:     "patient-1",
		AppointmentID: apptID,
	})
	if !errs.Is(err, errs.InvalidInput) {
		t.Errorf("expected invalid input, got %v", err)
	}
}

func seedExpired(repo *mockRepo, patientID string) *Prescription {
	p := &Prescription{
		ID:        uuid.New(),
		PatientID: patientID,
		Status:    StatusActive,
		IssuedAt:  time.Now().AddDate(0, 0, -40),
		ExpiresAt: time.Now().AddDate(0, 0, -10),
	}
	repo.seed(p)
	return p
}

func TestCheckAndExpire(t *testing.T) {
	svc, repo, _, _ := newTestService()
	p := seedExpired(repo, "patient-1")

	updated, err := svc.CheckAndExpire(context.Background(), p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Status != StatusExpired {
		t.Errorf("expected expired, got %s", updated.Status)
	}

	// Second pass is a no-op.
	again, err := svc.CheckAndExpire(context.Background(), updated)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again.Status != StatusExpired {
		t.Errorf("expected expired to stick, got %s", again.Status)
	}
}

func TestCheckAndExpire_ActiveWithinWindow(t *testing.T) {
	svc, repo, _, _ := newTestService()
	p := &Prescription{
		ID:        uuid.New(),
		PatientID: "patient-1",
		Status:    StatusActive,
		IssuedAt:  time.Now(),
		ExpiresAt: time.Now().AddDate(0, 0, 30),
	}
	repo.seed(p)

	updated, err := svc.CheckAndExpire(context.Background(), p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Status != StatusActive {
		t.Errorf("expected active, got %s", updated.Status)
	}
}

func TestGet_ExpiresOnRead(t *testing.T) {
	svc, repo, _, _ := newTestService()
	p := seedExpired(repo, "patient-1")

	fetched, err := svc.Get(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fetched.Status != StatusExpired {
		t.Errorf("expected expired on read, got %s", fetched.Status)
	}

	stored, _ := repo.GetByID(context.Background(), p.ID)
	if stored.Status != StatusExpired {
		t.Errorf("expected expiry to be persisted, got %s", stored.Status)
	}
}

func TestMarkUsed(t *testing.T) {
	svc, repo, _, _ := newTestService()
	p := &Prescription{
		ID:        uuid.New(),
		PatientID: "patient-1",
		Status:    StatusActive,
		IssuedAt:  time.Now(),
		ExpiresAt: time.Now().AddDate(0, 0, 30),
	}
	repo.seed(p)

	used, err := svc.MarkUsed(context.Background(), p.ID, "admin-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if used.Status != StatusUsed {
		t.Errorf("expected used, got %s", used.Status)
	}
	if used.UsedAt == nil {
		t.Error("expected used_at to be set")
	}
}

func TestMarkUsed_ExpiredPrescription(t *testing.T) {
	svc, repo, _, _ := newTestService()
	p := seedExpired(repo, "patient-1")

	_, err := svc.MarkUsed(context.Background(), p.ID, "admin-1")
	if !errs.Is(err, errs.InvalidStateTransition) {
		t.Errorf("expected invalid state transition, got %v", err)
	}
}

func TestCancel_TerminalNeverReverts(t *testing.T) {
	svc, repo, _, _ := newTestService()
	p := &Prescription{
		ID:        uuid.New(),
		PatientID: "patient-1",
		Status:    StatusActive,
		IssuedAt:  time.Now(),
		ExpiresAt: time.Now().AddDate(0, 0, 30),
	}
	repo.seed(p)

	if _, err := svc.Cancel(context.Background(), p.ID, "entered in error", "admin-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := svc.Cancel(context.Background(), p.ID, "second attempt", "admin-1")
	if !errs.Is(err, errs.InvalidStateTransition) {
		t.Errorf("expected invalid state transition, got %v", err)
	}
	_, err = svc.MarkUsed(context.Background(), p.ID, "admin-1")
	if !errs.Is(err, errs.InvalidStateTransition) {
		t.Errorf("expected invalid state transition, got %v", err)
	}
}

func TestCancel_RecordsReason(t *testing.T) {
	svc, repo, _, _ := newTestService()
	p := &Prescription{
		ID:        uuid.New(),
		PatientID: "patient-1",
		Status:    StatusActive,
		IssuedAt:  time.Now(),
		ExpiresAt: time.Now().AddDate(0, 0, 30),
	}
	repo.seed(p)

	cancelled, err := svc.Cancel(context.Background(), p.ID, "entered in error", "admin-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cancelled.StatusReason == nil || *cancelled.StatusReason != "entered in error" {
		t.Errorf("expected cancellation reason to be returned, got %v", cancelled.StatusReason)
	}

	stored, _ := repo.GetByID(context.Background(), p.ID)
	if stored.StatusReason == nil || *stored.StatusReason != "entered in error" {
		t.Errorf("expected cancellation reason to be persisted, got %v", stored.StatusReason)
	}
}

func TestCancel_RequiresReason(t *testing.T) {
	svc, repo, _, _ := newTestService()
	p := &Prescription{
		ID:        uuid.New(),
		PatientID: "patient-1",
		Status:    StatusActive,
		IssuedAt:  time.Now(),
		ExpiresAt: time.Now().AddDate(0, 0, 30),
	}
	repo.seed(p)

	_, err := svc.Cancel(context.Background(), p.ID, "   ", "admin-1")
	if !errs.Is(err, errs.InvalidInput) {
		t.Errorf("expected invalid input, got %v", err)
	}

	stored, _ := repo.GetByID(context.Background(), p.ID)
	if stored.Status != StatusActive {
		t.Errorf("expected prescription to stay active, got %s", stored.Status)
	}
}

func TestListByPatient_ExpiresOnRead(t *testing.T) {
	svc, repo, _, _ := newTestService()
	seedExpired(repo, "patient-1")

	list, total, err := svc.ListByPatient(context.Background(), "patient-1", "", 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 || len(list) != 1 {
		t.Fatalf("expected 1 prescription, got %d", len(list))
	}
	if list[0].Status != StatusExpired {
		t.Errorf("expected expired, got %s", list[0].Status)
	}
}
