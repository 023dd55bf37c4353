package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-report-api/internal/models"
	"github.com/noah-isme/sma-report-api/pkg/database"
	appErrors "github.com/noah-isme/sma-report-api/pkg/errors"
)

type classRepository interface {
	List(ctx context.Context, filter models.ClassFilter) ([]models.Class, error)
	FindByID(ctx context.Context, id string) (*models.Class, error)
	Create(ctx context.Context, class *models.Class) error
	AssignClassTeacher(ctx context.Context, classID, teacherID string) error
}

type userFinder interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type subjectRepository interface {
	ListByClass(ctx context.Context, classID string) ([]models.Subject, error)
	Create(ctx context.Context, subject *models.Subject) error
}

// CreateClassRequest is the payload for creating a class.
type CreateClassRequest struct {
	Name           string `json:"name" validate:"required,max=64"`
	AcademicYearID string `json:"academic_year_id" validate:"required"`
}

// AssignClassTeacherRequest names the teacher to put in charge of a class.
type AssignClassTeacherRequest struct {
	TeacherID string `json:"teacher_id" validate:"required"`
}

// CreateSubjectRequest is the payload for adding a subject to a class.
type CreateSubjectRequest struct {
	Name     string `json:"name" validate:"required,max=128"`
	Code     string `json:"code" validate:"required,max=16"`
	Category string `json:"category" validate:"max=64"`
}

// ClassService manages classes and their subjects.
type ClassService struct {
	classes   classRepository
	subjects  subjectRepository
	years     academicYearFinder
	users     userFinder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewClassService constructs a ClassService.
func NewClassService(classes classRepository, subjects subjectRepository, years academicYearFinder, users userFinder, validate *validator.Validate, logger *zap.Logger) *ClassService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClassService{classes: classes, subjects: subjects, years: years, users: users, validator: validate, logger: logger}
}

// List returns classes matching the filter.
func (s *ClassService) List(ctx context.Context, principal models.Principal, filter models.ClassFilter) ([]models.Class, error) {
	if err := Authorize(principal, OpClassRead); err != nil {
		return nil, err
	}
	classes, err := s.classes.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list classes")
	}
	return classes, nil
}

// Create adds a class in an existing academic year.
func (s *ClassService) Create(ctx context.Context, principal models.Principal, req CreateClassRequest) (*models.Class, error) {
	if err := Authorize(principal, OpClassWrite); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}
	if _, err := s.years.FindByID(ctx, req.AcademicYearID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "academic year not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load academic year")
	}
	class := &models.Class{Name: req.Name, AcademicYearID: req.AcademicYearID}
	if err := s.classes.Create(ctx, class); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create class")
	}
	return class, nil
}

// AssignClassTeacher puts a CLASS_TEACHER in charge of a class, releasing any
// class they held before.
func (s *ClassService) AssignClassTeacher(ctx context.Context, principal models.Principal, classID string, req AssignClassTeacherRequest) (*models.Class, error) {
	if err := Authorize(principal, OpClassAssignTeacher); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class teacher payload")
	}
	if _, err := s.find(ctx, classID); err != nil {
		return nil, err
	}
	teacher, err := s.users.FindByID(ctx, req.TeacherID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	if teacher.Role != models.RoleClassTeacher {
		return nil, appErrors.Clone(appErrors.ErrValidation, "user is not a class teacher")
	}
	if err := s.classes.AssignClassTeacher(ctx, classID, teacher.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assign class teacher")
	}
	s.logger.Info("class teacher assigned", zap.String("class_id", classID), zap.String("teacher_id", teacher.ID))
	return s.find(ctx, classID)
}

// ListSubjects returns the subjects taught to a class.
func (s *ClassService) ListSubjects(ctx context.Context, principal models.Principal, classID string) ([]models.Subject, error) {
	if err := Authorize(principal, OpSubjectRead); err != nil {
		return nil, err
	}
	subjects, err := s.subjects.ListByClass(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list subjects")
	}
	return subjects, nil
}

// CreateSubject adds a subject to a class.
func (s *ClassService) CreateSubject(ctx context.Context, principal models.Principal, classID string, req CreateSubjectRequest) (*models.Subject, error) {
	if err := Authorize(principal, OpSubjectWrite); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid subject payload")
	}
	if _, err := s.find(ctx, classID); err != nil {
		return nil, err
	}
	subject := &models.Subject{Name: req.Name, Code: req.Code, ClassID: classID, Category: req.Category}
	if err := s.subjects.Create(ctx, subject); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "subject code already used in class")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create subject")
	}
	return subject, nil
}

func (s *ClassService) find(ctx context.Context, id string) (*models.Class, error) {
	class, err := s.classes.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	return class, nil
}
