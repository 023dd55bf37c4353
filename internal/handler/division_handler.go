package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-report-api/internal/models"
	appErrors "github.com/noah-isme/sma-report-api/pkg/errors"
	"github.com/noah-isme/sma-report-api/pkg/response"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type divisionService interface {
	Calculate(ctx context.Context, principal models.Principal, scope models.DivisionScope) (*models.DivisionResult, error)
	Statistics(ctx context.Context, principal models.Principal, scope models.DivisionScope) (*models.DivisionStatistics, error)
	ExportDivisionSheet(ctx context.Context, principal models.Principal, scope models.DivisionScope) ([]byte, string, error)
}

// DivisionHandler exposes division ranking and statistics.
type DivisionHandler struct {
	service divisionService
}

// NewDivisionHandler constructs a division handler.
func NewDivisionHandler(svc divisionService) *DivisionHandler {
	return &DivisionHandler{service: svc}
}

func bindScope(c *gin.Context) (models.DivisionScope, bool) {
	var scope models.DivisionScope
	if err := c.ShouldBindQuery(&scope); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return scope, false
	}
	return scope, true
}

// Calculate godoc
// @Summary Rank a class into divisions
// @Tags Divisions
// @Produce json
// @Param classId query string true "Class ID"
// @Param termId query string true "Term ID"
// @Param examType query string true "BOT, MID or END"
// @Param academicYearId query string true "Academic year ID"
// @Success 200 {object} response.Envelope
// @Router /divisions [get]
func (h *DivisionHandler) Calculate(c *gin.Context) {
	scope, ok := bindScope(c)
	if !ok {
		return
	}
	result, err := h.service.Calculate(c.Request.Context(), principal(c), scope)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Statistics godoc
// @Summary Division statistics for a class
// @Tags Divisions
// @Produce json
// @Param classId query string true "Class ID"
// @Param termId query string true "Term ID"
// @Param examType query string true "BOT, MID or END"
// @Param academicYearId query string true "Academic year ID"
// @Success 200 {object} response.Envelope
// @Router /divisions/statistics [get]
func (h *DivisionHandler) Statistics(c *gin.Context) {
	scope, ok := bindScope(c)
	if !ok {
		return
	}
	stats, err := h.service.Statistics(c.Request.Context(), principal(c), scope)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

// Export godoc
// @Summary Download the division sheet
// @Tags Divisions
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param classId query string true "Class ID"
// @Param termId query string true "Term ID"
// @Param examType query string true "BOT, MID or END"
// @Param academicYearId query string true "Academic year ID"
// @Success 200 {file} file
// @Router /divisions/export [get]
func (h *DivisionHandler) Export(c *gin.Context) {
	scope, ok := bindScope(c)
	if !ok {
		return
	}
	body, filename, err := h.service.ExportDivisionSheet(c.Request.Context(), principal(c), scope)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.File(c, filename, xlsxContentType, body)
}
