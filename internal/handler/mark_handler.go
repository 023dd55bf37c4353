package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-report-api/internal/models"
	"github.com/noah-isme/sma-report-api/internal/service"
	appErrors "github.com/noah-isme/sma-report-api/pkg/errors"
	"github.com/noah-isme/sma-report-api/pkg/response"
)

type markService interface {
	List(ctx context.Context, principal models.Principal, filter models.MarkFilter) ([]models.Mark, error)
	Upsert(ctx context.Context, principal models.Principal, req service.UpsertMarkRequest) (*models.Mark, error)
	BulkUpsert(ctx context.Context, principal models.Principal, req service.BulkMarksRequest) (*service.BulkMarksResult, error)
}

// MarkHandler exposes subject mark endpoints.
type MarkHandler struct {
	service markService
}

// NewMarkHandler constructs a mark handler.
func NewMarkHandler(svc markService) *MarkHandler {
	return &MarkHandler{service: svc}
}

// List godoc
// @Summary List marks
// @Tags Marks
// @Produce json
// @Param classId query string false "Class ID"
// @Param studentId query string false "Student ID"
// @Param subjectId query string false "Subject ID"
// @Param termId query string false "Term ID"
// @Param academicYearId query string false "Academic year ID"
// @Success 200 {object} response.Envelope
// @Router /marks [get]
func (h *MarkHandler) List(c *gin.Context) {
	filter := models.MarkFilter{
		ClassID:        c.Query("classId"),
		StudentID:      c.Query("studentId"),
		SubjectID:      c.Query("subjectId"),
		TermID:         c.Query("termId"),
		AcademicYearID: c.Query("academicYearId"),
	}
	marks, err := h.service.List(c.Request.Context(), principal(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, marks, nil)
}

// Upsert godoc
// @Summary Record a student's subject marks
// @Tags Marks
// @Accept json
// @Produce json
// @Param payload body service.UpsertMarkRequest true "Mark payload"
// @Success 200 {object} response.Envelope
// @Router /marks [put]
func (h *MarkHandler) Upsert(c *gin.Context) {
	var req service.UpsertMarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	mark, err := h.service.Upsert(c.Request.Context(), principal(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, mark, nil)
}

// Bulk godoc
// @Summary Record marks in bulk
// @Description mode=atomic inserts all rows or none; partialOnError upserts each row
// @Tags Marks
// @Accept json
// @Produce json
// @Param payload body service.BulkMarksRequest true "Marks"
// @Success 200 {object} response.Envelope
// @Router /marks/bulk [post]
func (h *MarkHandler) Bulk(c *gin.Context) {
	var req service.BulkMarksRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.service.BulkUpsert(c.Request.Context(), principal(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
