package service

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"strconv"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-report-api/internal/models"
	"github.com/noah-isme/sma-report-api/pkg/database"
	appErrors "github.com/noah-isme/sma-report-api/pkg/errors"
)

type markStore interface {
	List(ctx context.Context, filter models.MarkFilter) ([]models.Mark, error)
	Upsert(ctx context.Context, mark *models.Mark) error
	BulkCreate(ctx context.Context, marks []models.Mark) error
}

type divisionInvalidator interface {
	InvalidateClass(ctx context.Context, classID, termID string)
}

// UpsertMarkRequest is a student's per-subject marks for a term.
type UpsertMarkRequest struct {
	StudentID      string   `json:"student_id" validate:"required"`
	SubjectID      string   `json:"subject_id" validate:"required"`
	TermID         string   `json:"term_id" validate:"required"`
	AcademicYearID string   `json:"academic_year_id" validate:"required"`
	Assessment1    *float64 `json:"assessment1" validate:"omitempty,gte=0"`
	Assessment2    *float64 `json:"assessment2" validate:"omitempty,gte=0"`
	Assessment3    *float64 `json:"assessment3" validate:"omitempty,gte=0"`
	BOT            *float64 `json:"bot" validate:"omitempty,gte=0"`
	EOT            *float64 `json:"eot" validate:"omitempty,gte=0"`
	Mark           *float64 `json:"mark" validate:"omitempty,gte=0"`
	Total          *float64 `json:"total" validate:"omitempty,gte=0"`
}

// BulkMarksRequest carries a batch of marks. Mode atomic inserts all rows in
// one transaction; partialOnError upserts each row independently.
type BulkMarksRequest struct {
	Mode  string              `json:"mode" validate:"omitempty,oneof=atomic partialOnError"`
	Items []UpsertMarkRequest `json:"items" validate:"required,min=1,max=1000"`
}

// BulkMarkFailure captures one failed row of a partial batch.
type BulkMarkFailure struct {
	Index     int    `json:"index"`
	StudentID string `json:"student_id"`
	SubjectID string `json:"subject_id"`
	Reason    string `json:"reason"`
}

// BulkMarksResult summarises a bulk submission.
type BulkMarksResult struct {
	Processed    int               `json:"processed"`
	SuccessCount int               `json:"success_count"`
	Failures     []BulkMarkFailure `json:"failures,omitempty"`
}

// MarkService records marks and resolves their letter grades.
type MarkService struct {
	marks     markStore
	students  studentFinder
	grading   gradingTableSource
	divisions divisionInvalidator
	validator *validator.Validate
	logger    *zap.Logger
}

// NewMarkService constructs a MarkService.
func NewMarkService(marks markStore, students studentFinder, grading gradingTableSource, divisions divisionInvalidator, validate *validator.Validate, logger *zap.Logger) *MarkService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MarkService{marks: marks, students: students, grading: grading, divisions: divisions, validator: validate, logger: logger}
}

// List returns marks for staff.
func (s *MarkService) List(ctx context.Context, principal models.Principal, filter models.MarkFilter) ([]models.Mark, error) {
	if err := Authorize(principal, OpMarkRead); err != nil {
		return nil, err
	}
	marks, err := s.marks.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list marks")
	}
	return marks, nil
}

// Upsert stores one student's marks for a subject and term.
func (s *MarkService) Upsert(ctx context.Context, principal models.Principal, req UpsertMarkRequest) (*models.Mark, error) {
	if err := Authorize(principal, OpMarkWrite); err != nil {
		return nil, err
	}
	table, err := s.grading.Table(ctx)
	if err != nil {
		return nil, err
	}
	mark, student, err := s.prepare(ctx, table, req)
	if err != nil {
		return nil, err
	}
	if err := s.marks.Upsert(ctx, mark); err != nil {
		return nil, markWriteError(err)
	}
	s.invalidate(ctx, map[classTerm]struct{}{{student.ClassID, req.TermID}: {}})
	return mark, nil
}

// BulkUpsert stores a batch of marks in the requested mode.
func (s *MarkService) BulkUpsert(ctx context.Context, principal models.Principal, req BulkMarksRequest) (*BulkMarksResult, error) {
	if err := Authorize(principal, OpMarkWrite); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk marks payload")
	}
	table, err := s.grading.Table(ctx)
	if err != nil {
		return nil, err
	}
	if req.Mode == "atomic" {
		return s.bulkCreate(ctx, table, req.Items)
	}

	result := &BulkMarksResult{}
	touched := make(map[classTerm]struct{})
	for i, item := range req.Items {
		result.Processed++
		mark, student, err := s.prepare(ctx, table, item)
		if err == nil {
			if err = s.marks.Upsert(ctx, mark); err != nil {
				err = markWriteError(err)
			}
		}
		if err != nil {
			result.Failures = append(result.Failures, BulkMarkFailure{Index: i, StudentID: item.StudentID, SubjectID: item.SubjectID, Reason: appErrors.FromError(err).Message})
			continue
		}
		result.SuccessCount++
		touched[classTerm{student.ClassID, item.TermID}] = struct{}{}
	}
	s.invalidate(ctx, touched)
	return result, nil
}

func (s *MarkService) bulkCreate(ctx context.Context, table *GradingTable, items []UpsertMarkRequest) (*BulkMarksResult, error) {
	marks := make([]models.Mark, 0, len(items))
	touched := make(map[classTerm]struct{})
	for i, item := range items {
		mark, student, err := s.prepare(ctx, table, item)
		if err != nil {
			appErr := appErrors.FromError(err)
			return nil, appErrors.Wrap(err, appErr.Code, appErr.Status, "item "+strconv.Itoa(i)+": "+appErr.Message)
		}
		marks = append(marks, *mark)
		touched[classTerm{student.ClassID, item.TermID}] = struct{}{}
	}
	if err := s.marks.BulkCreate(ctx, marks); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "mark already exists for student, subject and term")
		}
		return nil, markWriteError(err)
	}
	s.invalidate(ctx, touched)
	s.logger.Info("marks bulk created", zap.Int("count", len(marks)))
	return &BulkMarksResult{Processed: len(items), SuccessCount: len(marks)}, nil
}

func (s *MarkService) prepare(ctx context.Context, table *GradingTable, req UpsertMarkRequest) (*models.Mark, *models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid mark payload")
	}
	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	mark := &models.Mark{
		StudentID:      req.StudentID,
		SubjectID:      req.SubjectID,
		TermID:         req.TermID,
		AcademicYearID: req.AcademicYearID,
		Assessment1:    req.Assessment1,
		Assessment2:    req.Assessment2,
		Assessment3:    req.Assessment3,
		BOT:            req.BOT,
		EOT:            req.EOT,
		Mark:           req.Mark,
		Total:          req.Total,
	}
	if mark.Total == nil {
		mark.Total = sumAssessments(mark.Assessment1, mark.Assessment2, mark.Assessment3)
	}
	if score, ok := gradedScore(mark); ok {
		band, err := table.Lookup(score)
		switch {
		case err == nil:
			grade := band.Grade
			mark.Grade = &grade
		case appErrors.IsCode(err, appErrors.ErrNotConfigured.Code):
			s.logger.Warn("storing mark without grade", zap.String("student_id", req.StudentID), zap.Error(err))
		default:
			return nil, nil, err
		}
	}
	return mark, student, nil
}

func markWriteError(err error) error {
	if database.IsForeignKeyViolation(err) {
		return appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "subject, term or academic year not found")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store marks")
}

// gradedScore is the value a subject grade is derived from: mark, then total.
func gradedScore(m *models.Mark) (float64, bool) {
	if m.Mark != nil {
		return *m.Mark, true
	}
	if m.Total != nil {
		return *m.Total, true
	}
	return 0, false
}

func sumAssessments(values ...*float64) *float64 {
	var sum float64
	var found bool
	for _, v := range values {
		if v != nil {
			sum += *v
			found = true
		}
	}
	if !found {
		return nil
	}
	sum = math.Round(sum*100) / 100
	return &sum
}

type classTerm struct {
	classID string
	termID  string
}

func (s *MarkService) invalidate(ctx context.Context, touched map[classTerm]struct{}) {
	if s.divisions == nil {
		return
	}
	for ct := range touched {
		s.divisions.InvalidateClass(ctx, ct.classID, ct.termID)
	}
}
