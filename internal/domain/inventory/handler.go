package inventory

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/barangaycare/pharmacy/internal/domain/errs"
	"github.com/barangaycare/pharmacy/internal/platform/auth"
	"github.com/barangaycare/pharmacy/pkg/pagination"
)

// Handler exposes the medicine catalog and stock operations over HTTP.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts inventory routes on the authenticated API group.
// Catalog reads are open to any authenticated user; mutations and stock
// reports are admin-only.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/medicines", h.ListMedicines)
	api.GET("/medicines/:id", h.GetMedicine)

	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.POST("/medicines", h.CreateMedicine)
	admin.PUT("/medicines/:id", h.UpdateMedicine)
	admin.POST("/medicines/:id/stock", h.AdjustStock)
	admin.GET("/medicines/low-stock", h.LowStock)
	admin.GET("/medicines/:id/stock-history", h.StockHistory)
	admin.GET("/reports/stock-reconciliation", h.Reconcile)
}

type createMedicineRequest struct {
	Name                 string  `json:"name"`
	GenericName          *string `json:"generic_name"`
	Description          *string `json:"description"`
	DosageForm           *string `json:"dosage_form"`
	Unit                 *string `json:"unit"`
	StockQty             int     `json:"stock_qty"`
	ReorderLevel         *int    `json:"reorder_level"`
	RequiresPrescription bool    `json:"requires_prescription"`
}

func (h *Handler) CreateMedicine(c echo.Context) error {
	var req createMedicineRequest
	if err := c.Bind(&req); err != nil {
		return respondError(c, errs.New(errs.InvalidInput, "invalid request body"))
	}

	ctx := c.Request().Context()
	m, err := h.service.CreateMedicine(ctx, CreateMedicineInput{
		Name:                 req.Name,
		GenericName:          req.GenericName,
		Description:          req.Description,
		DosageForm:           req.DosageForm,
		Unit:                 req.Unit,
		InitialStock:         req.StockQty,
		ReorderLevel:         req.ReorderLevel,
		RequiresPrescription: req.RequiresPrescription,
	}, auth.UserIDFromContext(ctx))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *Handler) GetMedicine(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return respondError(c, errs.New(errs.InvalidInput, "invalid medicine id"))
	}

	m, err := h.service.GetMedicine(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, m)
}

type updateMedicineRequest struct {
	Name                 *string `json:"name"`
	GenericName          *string `json:"generic_name"`
	Description          *string `json:"description"`
	DosageForm           *string `json:"dosage_form"`
	Unit                 *string `json:"unit"`
	ReorderLevel         *int    `json:"reorder_level"`
	RequiresPrescription *bool   `json:"requires_prescription"`
}

func (h *Handler) UpdateMedicine(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return respondError(c, errs.New(errs.InvalidInput, "invalid medicine id"))
	}

	var req updateMedicineRequest
	if err := c.Bind(&req); err != nil {
		return respondError(c, errs.New(errs.InvalidInput, "invalid request body"))
	}

	m, err := h.service.UpdateMedicine(c.Request().Context(), id, UpdateMedicineInput{
		Name:                 req.Name,
		GenericName:          req.GenericName,
		Description:          req.Description,
		DosageForm:           req.DosageForm,
		Unit:                 req.Unit,
		ReorderLevel:         req.ReorderLevel,
		RequiresPrescription: req.RequiresPrescription,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) ListMedicines(c echo.Context) error {
	p := pagination.FromContext(c)
	onlyInStock := c.QueryParam("in_stock") == "true"

	medicines, total, err := h.service.ListMedicines(c.Request().Context(), onlyInStock, p.Limit, p.Offset)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(medicines, total, p.Limit, p.Offset))
}

func (h *Handler) LowStock(c echo.Context) error {
	medicines, err := h.service.LowStock(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"data": medicines, "total": len(medicines)})
}

type adjustStockRequest struct {
	QuantityChange int    `json:"quantity_change"`
	ChangeType     string `json:"change_type"`
	Reason         string `json:"reason"`
}

func (h *Handler) AdjustStock(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return respondError(c, errs.New(errs.InvalidInput, "invalid medicine id"))
	}

	var req adjustStockRequest
	if err := c.Bind(&req); err != nil {
		return respondError(c, errs.New(errs.InvalidInput, "invalid request body"))
	}

	ctx := c.Request().Context()
	entry, err := h.service.AdjustStock(ctx, id, req.QuantityChange, req.ChangeType, req.Reason, auth.UserIDFromContext(ctx))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, entry)
}

func (h *Handler) StockHistory(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return respondError(c, errs.New(errs.InvalidInput, "invalid medicine id"))
	}

	p := pagination.FromContext(c)
	entries, total, err := h.service.StockHistory(c.Request().Context(), id, p.Limit, p.Offset)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(entries, total, p.Limit, p.Offset))
}

func (h *Handler) Reconcile(c echo.Context) error {
	findings, err := h.service.ReconcileAll(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"discrepancies": findings,
		"consistent":    len(findings) == 0,
	})
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
