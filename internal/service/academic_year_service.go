package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-report-api/internal/models"
	"github.com/noah-isme/sma-report-api/pkg/database"
	appErrors "github.com/noah-isme/sma-report-api/pkg/errors"
)

type academicYearRepository interface {
	List(ctx context.Context) ([]models.AcademicYear, error)
	FindByID(ctx context.Context, id string) (*models.AcademicYear, error)
	FindActive(ctx context.Context) (*models.AcademicYear, error)
	Create(ctx context.Context, year *models.AcademicYear) error
	Update(ctx context.Context, year *models.AcademicYear) error
	Activate(ctx context.Context, id string) error
}

// AcademicYearRequest describes the payload for creating or editing an academic year.
type AcademicYearRequest struct {
	Year      string    `json:"year" validate:"required,max=32"`
	StartDate time.Time `json:"start_date" validate:"required"`
	EndDate   time.Time `json:"end_date" validate:"required"`
}

// AcademicYearService orchestrates academic year workflows.
type AcademicYearService struct {
	repo      academicYearRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAcademicYearService creates a new academic year service instance.
func NewAcademicYearService(repo academicYearRepository, validate *validator.Validate, logger *zap.Logger) *AcademicYearService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AcademicYearService{repo: repo, validator: validate, logger: logger}
}

// List returns all academic years.
func (s *AcademicYearService) List(ctx context.Context, principal models.Principal) ([]models.AcademicYear, error) {
	if err := Authorize(principal, OpAcademicYearRead); err != nil {
		return nil, err
	}
	years, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list academic years")
	}
	return years, nil
}

// Get returns an academic year by ID.
func (s *AcademicYearService) Get(ctx context.Context, principal models.Principal, id string) (*models.AcademicYear, error) {
	if err := Authorize(principal, OpAcademicYearRead); err != nil {
		return nil, err
	}
	return s.find(ctx, id)
}

// Active returns the active academic year or NotFound when none is active.
func (s *AcademicYearService) Active(ctx context.Context, principal models.Principal) (*models.AcademicYear, error) {
	if err := Authorize(principal, OpAcademicYearRead); err != nil {
		return nil, err
	}
	year, err := s.repo.FindActive(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no active academic year")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load active academic year")
	}
	return year, nil
}

// Create adds an inactive academic year.
func (s *AcademicYearService) Create(ctx context.Context, principal models.Principal, req AcademicYearRequest) (*models.AcademicYear, error) {
	if err := Authorize(principal, OpAcademicYearWrite); err != nil {
		return nil, err
	}
	if err := s.validate(req); err != nil {
		return nil, err
	}
	year := &models.AcademicYear{Year: req.Year, StartDate: req.StartDate, EndDate: req.EndDate}
	if err := s.repo.Create(ctx, year); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "academic year already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create academic year")
	}
	s.logger.Info("academic year created", zap.String("id", year.ID), zap.String("year", year.Year))
	return year, nil
}

// Update edits the label and dates of an academic year.
func (s *AcademicYearService) Update(ctx context.Context, principal models.Principal, id string, req AcademicYearRequest) (*models.AcademicYear, error) {
	if err := Authorize(principal, OpAcademicYearWrite); err != nil {
		return nil, err
	}
	if err := s.validate(req); err != nil {
		return nil, err
	}
	year, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	year.Year = req.Year
	year.StartDate = req.StartDate
	year.EndDate = req.EndDate
	if err := s.repo.Update(ctx, year); err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "academic year not found")
		case database.IsUniqueViolation(err):
			return nil, appErrors.Clone(appErrors.ErrConflict, "academic year already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update academic year")
	}
	return year, nil
}

// Activate makes id the only active academic year.
func (s *AcademicYearService) Activate(ctx context.Context, principal models.Principal, id string) (*models.AcademicYear, error) {
	if err := Authorize(principal, OpAcademicYearWrite); err != nil {
		return nil, err
	}
	if err := s.repo.Activate(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "academic year not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to activate academic year")
	}
	s.logger.Info("academic year activated", zap.String("id", id), zap.String("by", principal.UserID))
	return s.find(ctx, id)
}

func (s *AcademicYearService) validate(req AcademicYearRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid academic year payload")
	}
	if !req.EndDate.After(req.StartDate) {
		return appErrors.Clone(appErrors.ErrValidation, "end_date must be after start_date")
	}
	return nil
}

func (s *AcademicYearService) find(ctx context.Context, id string) (*models.AcademicYear, error) {
	year, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "academic year not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load academic year")
	}
	return year, nil
}
