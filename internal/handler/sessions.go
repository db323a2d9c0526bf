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

type SessionsHandler struct{ svc service.SessionService }

func NewSessionsHandler(svc service.SessionService) *SessionsHandler {
	return &SessionsHandler{svc: svc}
}

// Open godoc
// @Summary Opens a cash session for a facility
// @Tags sessions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body dto.OpenSessionRequest true "Opening data"
// @Success 201 {object} dto.SessionResponse
// @Failure 409 {object} apierror.APIError
// @Failure 422 {object} apierror.ValidationError
// @Router /v1/sessions/open [post]
func (h *SessionsHandler) Open(c *gin.Context) {
	var req dto.OpenSessionRequest
	if !bindAndValidate(c, &req) {
		return
	}
	claims := middleware.GetClaims(c)

	resp, err := h.svc.Open(c.Request.Context(), claims.TenantUUID(), claims.OperatorUUID(), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// Count godoc
// @Summary Non-mutating cash counting probe against the open session
// @Tags sessions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body dto.CountCashRequest true "Counted amount"
// @Success 200 {object} dto.CashCountingResult
// @Failure 409 {object} apierror.APIError
// @Router /v1/sessions/count [post]
func (h *SessionsHandler) Count(c *gin.Context) {
	var req dto.CountCashRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.CountCash(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Verify godoc
// @Summary Records a confirmed cash count in the audit trail
// @Tags sessions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body dto.VerifyCountRequest true "Confirmed amount"
// @Success 200 {object} dto.CashVerificationResult
// @Router /v1/sessions/verify [post]
func (h *SessionsHandler) Verify(c *gin.Context) {
	var req dto.VerifyCountRequest
	if !bindAndValidate(c, &req) {
		return
	}
	claims := middleware.GetClaims(c)
	resp, err := h.svc.VerifyCashCount(c.Request.Context(), claims.OperatorUUID(), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Variance godoc
// @Summary Records a disposition for a cash variance
// @Tags sessions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body dto.HandleVarianceRequest true "Disposition"
// @Success 200 {object} dto.CashVarianceResult
// @Failure 422 {object} apierror.APIError
// @Router /v1/sessions/variance [post]
func (h *SessionsHandler) Variance(c *gin.Context) {
	var req dto.HandleVarianceRequest
	if !bindAndValidate(c, &req) {
		return
	}
	claims := middleware.GetClaims(c)
	resp, err := h.svc.HandleVariance(c.Request.Context(), claims.OperatorUUID(), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Close godoc
// @Summary Closes the session, freezing expected cash and variance
// @Tags sessions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body dto.CloseSessionRequest true "Closing count"
// @Success 200 {object} dto.SessionResponse
// @Failure 409 {object} apierror.APIError
// @Router /v1/sessions/close [post]
func (h *SessionsHandler) Close(c *gin.Context) {
	var req dto.CloseSessionRequest
	if !bindAndValidate(c, &req) {
		return
	}
	claims := middleware.GetClaims(c)
	resp, err := h.svc.Close(c.Request.Context(), claims.OperatorUUID(), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Active returns the currently open session for a facility, 404 when none.
func (h *SessionsHandler) Active(c *gin.Context) {
	facilityID, err := uuid.Parse(c.Query("facility_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("invalid facility_id"))
		return
	}
	claims := middleware.GetClaims(c)
	resp, err := h.svc.Active(c.Request.Context(), claims.TenantUUID(), facilityID)
	if err != nil {
		fail(c, err)
		return
	}
	if resp == nil {
		c.JSON(http.StatusNotFound, apierror.New("no open session for this facility"))
		return
	}
	c.JSON(http.StatusOK, resp)
}

// History returns a paginated list of closed sessions for the tenant.
func (h *SessionsHandler) History(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	claims := middleware.GetClaims(c)
	resp, err := h.svc.History(c.Request.Context(), claims.TenantUUID(), page, limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Get returns one session by id.
func (h *SessionsHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("invalid session id"))
		return
	}
	claims := middleware.GetClaims(c)
	resp, err := h.svc.Report(c.Request.Context(), claims.TenantUUID(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, apierror.New(err.Error()))
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Audit returns the immutable counting/verification trail of a session.
func (h *SessionsHandler) Audit(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("invalid session id"))
		return
	}
	claims := middleware.GetClaims(c)
	entries, err := h.svc.AuditTrail(c.Request.Context(), claims.TenantUUID(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, apierror.New(err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": entries})
}
