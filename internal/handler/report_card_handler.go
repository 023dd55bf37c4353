package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-report-api/internal/models"
	"github.com/noah-isme/sma-report-api/internal/service"
	appErrors "github.com/noah-isme/sma-report-api/pkg/errors"
	"github.com/noah-isme/sma-report-api/pkg/response"
)

type reportCardService interface {
	Upsert(ctx context.Context, principal models.Principal, req service.UpsertReportCardRequest) (*models.ReportCard, error)
	BulkUpsert(ctx context.Context, principal models.Principal, req service.BulkUpsertReportCardsRequest) (*service.BulkReportCardResult, error)
	Approve(ctx context.Context, principal models.Principal, id string, req service.ApproveReportCardRequest) (*models.ReportCard, error)
	EnableParentAccess(ctx context.Context, principal models.Principal, id string) (*models.ReportCard, error)
	ListForParent(ctx context.Context, principal models.Principal, termID, academicYearID string) ([]models.ReportCard, error)
	Get(ctx context.Context, principal models.Principal, id string) (*models.ReportCard, error)
	List(ctx context.Context, principal models.Principal, filter models.ReportCardFilter) ([]models.ReportCard, error)
	GradeDistribution(ctx context.Context, principal models.Principal, filter models.ReportCardFilter) (*models.GradeDistribution, error)
}

type reportDocumentRenderer interface {
	Render(ctx context.Context, principal models.Principal, id, format string) ([]byte, string, string, error)
}

// ReportCardHandler exposes personal-assessment report cards.
type ReportCardHandler struct {
	service   reportCardService
	documents reportDocumentRenderer
}

// NewReportCardHandler constructs a report card handler.
func NewReportCardHandler(svc reportCardService, documents reportDocumentRenderer) *ReportCardHandler {
	return &ReportCardHandler{service: svc, documents: documents}
}

// Upsert godoc
// @Summary Create or update a report card
// @Description Keyed by student, term and academic year
// @Tags ReportCards
// @Accept json
// @Produce json
// @Param payload body service.UpsertReportCardRequest true "Assessment payload"
// @Success 200 {object} response.Envelope
// @Router /report-cards [put]
func (h *ReportCardHandler) Upsert(c *gin.Context) {
	var req service.UpsertReportCardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	card, err := h.service.Upsert(c.Request.Context(), principal(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, card, nil)
}

// BulkUpsert godoc
// @Summary Upsert report cards in bulk
// @Tags ReportCards
// @Accept json
// @Produce json
// @Param payload body service.BulkUpsertReportCardsRequest true "Batch"
// @Success 200 {object} response.Envelope
// @Router /report-cards/bulk [post]
func (h *ReportCardHandler) BulkUpsert(c *gin.Context) {
	var req service.BulkUpsertReportCardsRequest
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

// Approve godoc
// @Summary Approve or unapprove a report card
// @Tags ReportCards
// @Accept json
// @Produce json
// @Param id path string true "Report card ID"
// @Param payload body service.ApproveReportCardRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Router /report-cards/{id}/approval [put]
func (h *ReportCardHandler) Approve(c *gin.Context) {
	var req service.ApproveReportCardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	card, err := h.service.Approve(c.Request.Context(), principal(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, card, nil)
}

// EnableParentAccess godoc
// @Summary Release an approved report card to the parent
// @Tags ReportCards
// @Produce json
// @Param id path string true "Report card ID"
// @Success 200 {object} response.Envelope
// @Router /report-cards/{id}/parent-access [post]
func (h *ReportCardHandler) EnableParentAccess(c *gin.Context) {
	card, err := h.service.EnableParentAccess(c.Request.Context(), principal(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, card, nil)
}

// Get godoc
// @Summary Get report card
// @Tags ReportCards
// @Produce json
// @Param id path string true "Report card ID"
// @Success 200 {object} response.Envelope
// @Router /report-cards/{id} [get]
func (h *ReportCardHandler) Get(c *gin.Context) {
	card, err := h.service.Get(c.Request.Context(), principal(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, card, nil)
}

// List godoc
// @Summary List report cards
// @Tags ReportCards
// @Produce json
// @Param classId query string false "Class ID"
// @Param studentId query string false "Student ID"
// @Param termId query string false "Term ID"
// @Param academicYearId query string false "Academic year ID"
// @Param approved query bool false "Approval state"
// @Success 200 {object} response.Envelope
// @Router /report-cards [get]
func (h *ReportCardHandler) List(c *gin.Context) {
	cards, err := h.service.List(c.Request.Context(), principal(c), reportCardFilter(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cards, nil)
}

// Distribution godoc
// @Summary Personal-assessment grade distribution
// @Tags ReportCards
// @Produce json
// @Param classId query string false "Class ID"
// @Param termId query string false "Term ID"
// @Param academicYearId query string false "Academic year ID"
// @Success 200 {object} response.Envelope
// @Router /report-cards/distribution [get]
func (h *ReportCardHandler) Distribution(c *gin.Context) {
	dist, err := h.service.GradeDistribution(c.Request.Context(), principal(c), reportCardFilter(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dist, nil)
}

// ParentList godoc
// @Summary Report cards released to the signed-in parent
// @Tags ReportCards
// @Produce json
// @Param termId query string false "Term ID"
// @Param academicYearId query string false "Academic year ID"
// @Success 200 {object} response.Envelope
// @Router /parent/report-cards [get]
func (h *ReportCardHandler) ParentList(c *gin.Context) {
	cards, err := h.service.ListForParent(c.Request.Context(), principal(c), c.Query("termId"), c.Query("academicYearId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cards, nil)
}

// Document godoc
// @Summary Download a report card document
// @Tags ReportCards
// @Produce application/pdf
// @Produce text/csv
// @Param id path string true "Report card ID"
// @Param format query string false "pdf (default) or csv"
// @Success 200 {file} file
// @Router /report-cards/{id}/document [get]
func (h *ReportCardHandler) Document(c *gin.Context) {
	body, filename, contentType, err := h.documents.Render(c.Request.Context(), principal(c), c.Param("id"), c.DefaultQuery("format", "pdf"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.File(c, filename, contentType, body)
}

func reportCardFilter(c *gin.Context) models.ReportCardFilter {
	filter := models.ReportCardFilter{
		ClassID:        c.Query("classId"),
		StudentID:      c.Query("studentId"),
		TermID:         c.Query("termId"),
		AcademicYearID: c.Query("academicYearId"),
	}
	if raw := c.Query("approved"); raw != "" {
		if approved, err := strconv.ParseBool(raw); err == nil {
			filter.Approved = &approved
		}
	}
	return filter
}
