package request

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

// RegisterRoutes mounts the workflow routes. Patients submit and read their
// own requests; decisions are admin-only.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/requests", h.Submit)
	api.GET("/requests", h.List)
	api.GET("/requests/:id", h.Get)

	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.POST("/requests/:id/approve", h.Approve)
	admin.POST("/requests/:id/reject", h.Reject)
}

type submitRequest struct {
	MedicineID     string  `json:"medicine_id"`
	Quantity       int     `json:"quantity"`
	PrescriptionID *string `json:"prescription_id"`
}

func (h *Handler) Submit(c echo.Context) error {
	var req submitRequest
	if err := c.Bind(&req); err != nil {
		return respondError(c, errs.New(errs.InvalidInput, "invalid request body"))
	}

	medicineID, err := uuid.Parse(req.MedicineID)
	if err != nil {
		return respondError(c, errs.New(errs.InvalidInput, "invalid medicine id"))
	}

	var prescriptionID *uuid.UUID
	if req.PrescriptionID != nil && *req.PrescriptionID != "" {
		pid, err := uuid.Parse(*req.PrescriptionID)
		if err != nil {
			return respondError(c, errs.New(errs.InvalidInput, "invalid prescription id"))
		}
		prescriptionID = &pid
	}

	ctx := c.Request().Context()
	r, err := h.service.Submit(ctx, SubmitInput{
		PatientID:      auth.UserIDFromContext(ctx),
		MedicineID:     medicineID,
		Quantity:       req.Quantity,
		PrescriptionID: prescriptionID,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, r)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return respondError(c, errs.New(errs.InvalidInput, "invalid request id"))
	}

	ctx := c.Request().Context()
	r, err := h.service.Get(ctx, id)
	if err != nil {
		return respondError(c, err)
	}
	// Patients only see their own requests.
	if !auth.IsAdmin(ctx) && r.PatientID != auth.UserIDFromContext(ctx) {
		return respondError(c, errs.New(errs.NotFound, "request not found"))
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()

	f := Filter{Status: c.QueryParam("status")}
	if auth.IsAdmin(ctx) {
		f.PatientID = c.QueryParam("patient_id")
		if mid := c.QueryParam("medicine_id"); mid != "" {
			medicineID, err := uuid.Parse(mid)
			if err != nil {
				return respondError(c, errs.New(errs.InvalidInput, "invalid medicine id"))
			}
			f.MedicineID = &medicineID
		}
	} else {
		f.PatientID = auth.UserIDFromContext(ctx)
	}

	p := pagination.FromContext(c)
	requests, total, err := h.service.List(ctx, f, p.Limit, p.Offset)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(requests, total, p.Limit, p.Offset))
}

type approveRequest struct {
	Notes *string `json:"notes"`
}

func (h *Handler) Approve(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return respondError(c, errs.New(errs.InvalidInput, "invalid request id"))
	}

	var req approveRequest
	if err := c.Bind(&req); err != nil {
		return respondError(c, errs.New(errs.InvalidInput, "invalid request body"))
	}

	ctx := c.Request().Context()
	r, err := h.service.Approve(ctx, id, auth.UserIDFromContext(ctx), req.Notes)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, r)
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) Reject(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return respondError(c, errs.New(errs.InvalidInput, "invalid request id"))
	}

	var req rejectRequest
	if err := c.Bind(&req); err != nil {
		return respondError(c, errs.New(errs.InvalidInput, "invalid request body"))
	}

	ctx := c.Request().Context()
	r, err := h.service.Reject(ctx, id, auth.UserIDFromContext(ctx), req.Reason)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, r)
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
