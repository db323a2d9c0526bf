package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"flowzen/internal/apierror"
	"flowzen/internal/service"
)

type FiscalHandler struct{ svc service.FiscalService }

func NewFiscalHandler(svc service.FiscalService) *FiscalHandler { return &FiscalHandler{svc: svc} }

// Status godoc
// @Summary Returns the fiscal submission status of a sale
// @Tags fiscal
// @Produce json
// @Security BearerAuth
// @Param sale_id path string true "Sale ID"
// @Success 200 {object} dto.FiscalStatusResponse
// @Failure 404 {object} apierror.APIError
// @Router /v1/fiscal/{sale_id} [get]
func (h *FiscalHandler) Status(c *gin.Context) {
	id, err := uuid.Parse(c.Param("sale_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("invalid sale id"))
		return
	}
	resp, err := h.svc.Status(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, apierror.New(err.Error()))
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Retry godoc
// @Summary Re-drives the fiscal submission protocol for a sale
// @Tags fiscal
// @Produce json
// @Security BearerAuth
// @Param sale_id path string true "Sale ID"
// @Success 200 {object} dto.FiscalStatusResponse
// @Failure 502 {object} apierror.APIError
// @Router /v1/fiscal/{sale_id}/retry [post]
func (h *FiscalHandler) Retry(c *gin.Context) {
	id, err := uuid.Parse(c.Param("sale_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("invalid sale id"))
		return
	}
	// Synchronous on purpose: manual retries come from an operator staring
	// at an error and wanting the gateway's verdict right now.
	resp, err := h.svc.Fiscalize(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
