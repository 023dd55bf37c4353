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

type gradingService interface {
	ListThresholds(ctx context.Context, principal models.Principal) ([]models.GradingThreshold, error)
	ReplaceThresholds(ctx context.Context, principal models.Principal, req service.ReplaceThresholdsRequest) ([]models.GradingThreshold, error)
}

// GradingHandler exposes the grading threshold table.
type GradingHandler struct {
	service gradingService
}

// NewGradingHandler constructs a grading handler.
func NewGradingHandler(svc gradingService) *GradingHandler {
	return &GradingHandler{service: svc}
}

// List godoc
// @Summary List grading thresholds
// @Tags Grading
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /grading/thresholds [get]
func (h *GradingHandler) List(c *gin.Context) {
	thresholds, err := h.service.ListThresholds(c.Request.Context(), principal(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, thresholds, nil)
}

// Replace godoc
// @Summary Replace grading thresholds
// @Description Swaps the whole table; bands must not overlap
// @Tags Grading
// @Accept json
// @Produce json
// @Param payload body service.ReplaceThresholdsRequest true "Thresholds"
// @Success 200 {object} response.Envelope
// @Router /grading/thresholds [put]
func (h *GradingHandler) Replace(c *gin.Context) {
	var req service.ReplaceThresholdsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	thresholds, err := h.service.ReplaceThresholds(c.Request.Context(), principal(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, thresholds, nil)
}
