package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-report-api/internal/models"
	"github.com/noah-isme/sma-report-api/pkg/cache"
	appErrors "github.com/noah-isme/sma-report-api/pkg/errors"
)

type gradingThresholdRepo interface {
	List(ctx context.Context) ([]models.GradingThreshold, error)
	Replace(ctx context.Context, thresholds []models.GradingThreshold) error
}

// GradingTable is an immutable band table ordered by descending minimum mark.
type GradingTable struct {
	bands []models.GradingThreshold
}

// NewGradingTable copies and orders thresholds for lookup.
func NewGradingTable(thresholds []models.GradingThreshold) *GradingTable {
	bands := append([]models.GradingThreshold(nil), thresholds...)
	sort.SliceStable(bands, func(i, j int) bool { return bands[i].MinMark > bands[j].MinMark })
	return &GradingTable{bands: bands}
}

// Bands returns the ordered thresholds.
func (t *GradingTable) Bands() []models.GradingThreshold {
	if t == nil {
		return nil
	}
	return append([]models.GradingThreshold(nil), t.bands...)
}

// Lookup returns the first band whose [MinMark, MaxMark] contains m. A mark in
// no band yields a threshold whose Grade is models.GradeUngraded.
func (t *GradingTable) Lookup(m float64) (models.GradingThreshold, error) {
	if math.IsNaN(m) || math.IsInf(m, 0) {
		return models.GradingThreshold{}, appErrors.Clone(appErrors.ErrValidation, "mark must be a finite number")
	}
	if t == nil || len(t.bands) == 0 {
		return models.GradingThreshold{}, appErrors.Clone(appErrors.ErrNotConfigured, "")
	}
	for _, band := range t.bands {
		if m >= band.MinMark && m <= band.MaxMark {
			return band, nil
		}
	}
	return models.GradingThreshold{Grade: models.GradeUngraded}, nil
}

// ThresholdInput is a single band in a replace request.
type ThresholdInput struct {
	Grade   string   `json:"grade" validate:"required,max=16"`
	MinMark *float64 `json:"min_mark" validate:"required"`
	MaxMark *float64 `json:"max_mark" validate:"required"`
	Comment string   `json:"comment" validate:"max=255"`
}

// ReplaceThresholdsRequest swaps the whole grading table.
type ReplaceThresholdsRequest struct {
	Thresholds []ThresholdInput `json:"thresholds" validate:"required,min=1,dive"`
}

// ValidateThresholds rejects inverted, duplicated or overlapping bands.
func ValidateThresholds(thresholds []models.GradingThreshold) error {
	seen := make(map[string]struct{}, len(thresholds))
	for _, t := range thresholds {
		if math.IsNaN(t.MinMark) || math.IsNaN(t.MaxMark) || math.IsInf(t.MinMark, 0) || math.IsInf(t.MaxMark, 0) {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("grade %s has a non-finite bound", t.Grade))
		}
		if t.MinMark > t.MaxMark {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("grade %s has min_mark above max_mark", t.Grade))
		}
		key := strings.ToUpper(t.Grade)
		if _, ok := seen[key]; ok {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("grade %s is defined twice", t.Grade))
		}
		seen[key] = struct{}{}
	}
	ordered := NewGradingTable(thresholds).bands
	for i := 1; i < len(ordered); i++ {
		upper, lower := ordered[i-1], ordered[i]
		if lower.MaxMark >= upper.MinMark {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("grades %s and %s overlap", lower.Grade, upper.Grade))
		}
	}
	return nil
}

// GradingService owns the grading threshold table.
type GradingService struct {
	repo      gradingThresholdRepo
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewGradingService constructs a GradingService.
func NewGradingService(repo gradingThresholdRepo, cacheSvc *CacheService, validate *validator.Validate, logger *zap.Logger) *GradingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GradingService{repo: repo, cache: cacheSvc, validator: validate, logger: logger}
}

func gradingCacheKey() string {
	return cache.Key("grading", "thresholds")
}

// Table loads the current band table, from cache when available.
func (s *GradingService) Table(ctx context.Context) (*GradingTable, error) {
	var thresholds []models.GradingThreshold
	if hit, err := s.cache.Get(ctx, gradingCacheKey(), &thresholds); err == nil && hit {
		return NewGradingTable(thresholds), nil
	}
	thresholds, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grading thresholds")
	}
	if len(thresholds) > 0 {
		_ = s.cache.Set(ctx, gradingCacheKey(), thresholds, 0)
	}
	return NewGradingTable(thresholds), nil
}

// ListThresholds returns the band table ordered by descending minimum mark.
func (s *GradingService) ListThresholds(ctx context.Context, principal models.Principal) ([]models.GradingThreshold, error) {
	if err := Authorize(principal, OpGradingRead); err != nil {
		return nil, err
	}
	table, err := s.Table(ctx)
	if err != nil {
		return nil, err
	}
	return table.Bands(), nil
}

// ReplaceThresholds validates and stores a new band table.
func (s *GradingService) ReplaceThresholds(ctx context.Context, principal models.Principal, req ReplaceThresholdsRequest) ([]models.GradingThreshold, error) {
	if err := Authorize(principal, OpGradingWrite); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grading thresholds payload")
	}
	thresholds := make([]models.GradingThreshold, 0, len(req.Thresholds))
	for _, in := range req.Thresholds {
		thresholds = append(thresholds, models.GradingThreshold{
			Grade:   strings.TrimSpace(in.Grade),
			MinMark: *in.MinMark,
			MaxMark: *in.MaxMark,
			Comment: in.Comment,
		})
	}
	if err := ValidateThresholds(thresholds); err != nil {
		return nil, err
	}
	if err := s.repo.Replace(ctx, thresholds); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store grading thresholds")
	}
	_ = s.cache.Invalidate(ctx, gradingCacheKey())
	s.logger.Info("grading thresholds replaced", zap.String("by", principal.UserID), zap.Int("bands", len(thresholds)))
	return NewGradingTable(thresholds).Bands(), nil
}
