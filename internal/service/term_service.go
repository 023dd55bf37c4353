package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-report-api/internal/models"
	appErrors "github.com/noah-isme/sma-report-api/pkg/errors"
)

type termRepository interface {
	List(ctx context.Context, academicYearID string) ([]models.Term, error)
	FindByID(ctx context.Context, id string) (*models.Term, error)
	Create(ctx context.Context, term *models.Term) error
}

// CreateTermRequest describes payload for creating academic terms.
type CreateTermRequest struct {
	Name           string    `json:"name" validate:"required,max=64"`
	AcademicYearID string    `json:"academic_year_id" validate:"required"`
	StartDate      time.Time `json:"start_date" validate:"required"`
	EndDate        time.Time `json:"end_date" validate:"required"`
}

// TermService orchestrates term workflows.
type TermService struct {
	repo      termRepository
	years     academicYearFinder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTermService creates a new term service instance.
func NewTermService(repo termRepository, years academicYearFinder, validate *validator.Validate, logger *zap.Logger) *TermService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TermService{repo: repo, years: years, validator: validate, logger: logger}
}

// List returns terms, optionally for one academic year.
func (s *TermService) List(ctx context.Context, principal models.Principal, academicYearID string) ([]models.Term, error) {
	if err := Authorize(principal, OpTermRead); err != nil {
		return nil, err
	}
	terms, err := s.repo.List(ctx, academicYearID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list terms")
	}
	return terms, nil
}

// Get returns a term by ID.
func (s *TermService) Get(ctx context.Context, principal models.Principal, id string) (*models.Term, error) {
	if err := Authorize(principal, OpTermRead); err != nil {
		return nil, err
	}
	term, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "term not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term")
	}
	return term, nil
}

// Create adds a term inside an existing academic year.
func (s *TermService) Create(ctx context.Context, principal models.Principal, req CreateTermRequest) (*models.Term, error) {
	if err := Authorize(principal, OpTermWrite); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid term payload")
	}
	if !req.EndDate.After(req.StartDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end_date must be after start_date")
	}
	if _, err := s.years.FindByID(ctx, req.AcademicYearID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "academic year not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load academic year")
	}
	term := &models.Term{Name: req.Name, AcademicYearID: req.AcademicYearID, StartDate: req.StartDate, EndDate: req.EndDate}
	if err := s.repo.Create(ctx, term); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create term")
	}
	s.logger.Info("term created", zap.String("id", term.ID), zap.String("academic_year_id", term.AcademicYearID))
	return term, nil
}
