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

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
	Create(ctx context.Context, student *models.Student) error
	CountExisting(ctx context.Context, ids []string) (int, error)
	AssignParent(ctx context.Context, parentID string, studentIDs []string) (int64, error)
}

// CreateStudentRequest is the payload for enrolling a student.
type CreateStudentRequest struct {
	Name           string     `json:"name" validate:"required,max=128"`
	Gender         string     `json:"gender" validate:"omitempty,oneof=MALE FEMALE"`
	DateOfBirth    *time.Time `json:"date_of_birth"`
	ClassID        string     `json:"class_id" validate:"required"`
	TermID         string     `json:"term_id" validate:"required"`
	AcademicYearID string     `json:"academic_year_id" validate:"required"`
}

// AssignParentRequest lists the complete set of children for a parent.
type AssignParentRequest struct {
	StudentIDs []string `json:"student_ids" validate:"max=100,dive,required"`
}

// StudentService manages the student roster.
type StudentService struct {
	repo      studentRepository
	users     userFinder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService constructs a StudentService.
func NewStudentService(repo studentRepository, users userFinder, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, users: users, validator: validate, logger: logger}
}

// List returns students matching the filter.
func (s *StudentService) List(ctx context.Context, principal models.Principal, filter models.StudentFilter) ([]models.Student, error) {
	if err := Authorize(principal, OpStudentRead); err != nil {
		return nil, err
	}
	students, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	return students, nil
}

// Get returns a student by ID.
func (s *StudentService) Get(ctx context.Context, principal models.Principal, id string) (*models.Student, error) {
	if err := Authorize(principal, OpStudentRead); err != nil {
		return nil, err
	}
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// Create registers a student.
func (s *StudentService) Create(ctx context.Context, principal models.Principal, req CreateStudentRequest) (*models.Student, error) {
	if err := Authorize(principal, OpStudentWrite); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	student := &models.Student{
		Name:           req.Name,
		Gender:         req.Gender,
		DateOfBirth:    req.DateOfBirth,
		ClassID:        req.ClassID,
		TermID:         req.TermID,
		AcademicYearID: req.AcademicYearID,
	}
	if err := s.repo.Create(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}
	return student, nil
}

// AssignParent makes studentIDs the exact set of children linked to parentID.
// Students previously linked to the parent but absent from the set are released.
func (s *StudentService) AssignParent(ctx context.Context, principal models.Principal, parentID string, req AssignParentRequest) ([]models.Student, error) {
	if err := Authorize(principal, OpStudentAssignParent); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid parent assignment payload")
	}
	ids := uniqueStrings(req.StudentIDs)

	parent, err := s.users.FindByID(ctx, parentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "parent not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load parent")
	}
	if parent.Role != models.RoleParent {
		return nil, appErrors.Clone(appErrors.ErrValidation, "user is not a parent")
	}

	if len(ids) > 0 {
		existing, err := s.repo.CountExisting(ctx, ids)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify students")
		}
		if existing != len(ids) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "one or more students not found")
		}
	}

	changed, err := s.repo.AssignParent(ctx, parent.ID, ids)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assign parent")
	}
	s.logger.Info("parent children assigned",
		zap.String("parent_id", parent.ID),
		zap.Int("children", len(ids)),
		zap.Int64("rows", changed),
	)

	children, err := s.repo.List(ctx, models.StudentFilter{ParentID: parent.ID})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load children")
	}
	return children, nil
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
