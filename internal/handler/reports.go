package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"flowzen/internal/apierror"
	"flowzen/internal/middleware"
	"flowzen/internal/service"
)

type ReportsHandler struct{ svc service.ReconcileService }

func NewReportsHandler(svc service.ReconcileService) *ReportsHandler {
	return &ReportsHandler{svc: svc}
}

// Reconciliation godoc
// @Summary Full reconciliation report for one session
// @Tags reports
// @Produce json
// @Security BearerAuth
// @Param session_id path string true "Session ID"
// @Success 200 {object} dto.ReconciliationReport
// @Failure 404 {object} apierror.APIError
// @Router /v1/reports/reconciliation/{session_id} [get]
func (h *ReportsHandler) Reconciliation(c *gin.Context) {
	id, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("invalid session id"))
		return
	}
	claims := middleware.GetClaims(c)
	resp, err := h.svc.Reconcile(c.Request.Context(), claims.TenantUUID(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, apierror.New(err.Error()))
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Period godoc
// @Summary Aggregate reconciliation over a daily/weekly/monthly period
// @Tags reports
// @Produce json
// @Security BearerAuth
// @Param granularity query string false "daily | weekly | monthly" default(daily)
// @Param date query string false "Any date inside the period, YYYY-MM-DD (default today)"
// @Success 200 {object} dto.PeriodReport
// @Failure 400 {object} apierror.APIError
// @Router /v1/reports/period [get]
func (h *ReportsHandler) Period(c *gin.Context) {
	date := time.Now().UTC()
	if q := c.Query("date"); q != "" {
		parsed, err := time.Parse("2006-01-02", q)
		if err != nil {
			c.JSON(http.StatusBadRequest, apierror.New("invalid date, expected YYYY-MM-DD"))
			return
		}
		date = parsed
	}

	from, to, ok := periodBounds(c.DefaultQuery("granularity", "daily"), date)
	if !ok {
		c.JSON(http.StatusBadRequest, apierror.New("invalid granularity, expected daily, weekly or monthly"))
		return
	}

	claims := middleware.GetClaims(c)
	resp, err := h.svc.PeriodReport(c.Request.Context(), claims.TenantUUID(), from, to)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// periodBounds maps a granularity and any date inside the period to its
// UTC half-open interval [from, to). Weeks start on Monday.
func periodBounds(granularity string, date time.Time) (from, to time.Time, ok bool) {
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	switch granularity {
	case "daily":
		return day, day.AddDate(0, 0, 1), true
	case "weekly":
		weekday := int(day.Weekday())
		if weekday == 0 {
			weekday = 7
		}
		start := day.AddDate(0, 0, -(weekday - 1))
		return start, start.AddDate(0, 0, 7), true
	case "monthly":
		start := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, 0), true
	default:
		return time.Time{}, time.Time{}, false
	}
}
