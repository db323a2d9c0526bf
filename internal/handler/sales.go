package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"flowzen/internal/apierror"
	"flowzen/internal/dto"
	"flowzen/internal/middleware"
	"flowzen/internal/service"
)

type SalesHandler struct{ svc service.SaleService }

func NewSalesHandler(svc service.SaleService) *SalesHandler { return &SalesHandler{svc: svc} }

// Record godoc
// @Summary Records a sale against an open cash session
// @Tags sales
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body dto.RecordSaleRequest true "Sale data"
// @Success 201 {object} dto.SaleResponse
// @Failure 409 {object} apierror.APIError
// @Failure 422 {object} apierror.ValidationError
// @Router /v1/sales [post]
func (h *SalesHandler) Record(c *gin.Context) {
	var req dto.RecordSaleRequest
	if !bindAndValidate(c, &req) {
		return
	}
	claims := middleware.GetClaims(c)
	resp, err := h.svc.RecordSale(c.Request.Context(), claims.TenantUUID(), claims.OperatorUUID(), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// Refund godoc
// @Summary Refunds a sale (fully or partially) against its session
// @Tags sales
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body dto.RefundSaleRequest true "Refund data"
// @Success 201 {object} dto.SaleResponse
// @Failure 409 {object} apierror.APIError
// @Router /v1/sales/refund [post]
func (h *SalesHandler) Refund(c *gin.Context) {
	var req dto.RefundSaleRequest
	if !bindAndValidate(c, &req) {
		return
	}
	claims := middleware.GetClaims(c)
	resp, err := h.svc.Refund(c.Request.Context(), claims.TenantUUID(), claims.OperatorUUID(), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// List returns paginated sales filtered by session and status.
func (h *SalesHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	filter := dto.SaleFilter{
		SessionID: c.Query("session_id"),
		Status:    c.Query("status"),
		Page:      page,
		Limit:     limit,
	}
	claims := middleware.GetClaims(c)
	resp, err := h.svc.List(c.Request.Context(), claims.TenantUUID(), filter)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Get returns one sale with items, payments and fiscal status.
func (h *SalesHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("invalid sale id"))
		return
	}
	claims := middleware.GetClaims(c)
	resp, err := h.svc.Get(c.Request.Context(), claims.TenantUUID(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, apierror.New(err.Error()))
		return
	}
	c.JSON(http.StatusOK, resp)
}
