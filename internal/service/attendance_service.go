package service

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-report-api/internal/models"
	"github.com/noah-isme/sma-report-api/pkg/database"
	appErrors "github.com/noah-isme/sma-report-api/pkg/errors"
)

const attendanceDateLayout = "2006-01-02"

type attendanceStore interface {
	List(ctx context.Context, filter models.DailyAttendanceFilter) ([]models.DailyAttendanceRecord, error)
	Upsert(ctx context.Context, record *models.DailyAttendance) error
	BulkUpsert(ctx context.Context, records []models.DailyAttendance) error
	Summary(ctx context.Context, studentID, termID string) (*models.AttendanceSummary, error)
}

// AttendanceListRequest filters daily attendance. Dates are YYYY-MM-DD.
type AttendanceListRequest struct {
	ClassID   string `form:"classId"`
	StudentID string `form:"studentId"`
	TermID    string `form:"termId"`
	Status    string `form:"status" validate:"omitempty,oneof=PRESENT ABSENT LATE EXCUSED"`
	DateFrom  string `form:"from"`
	DateTo    string `form:"to"`
}

// MarkAttendanceRequest records one student's attendance for a day.
type MarkAttendanceRequest struct {
	StudentID string  `json:"student_id" validate:"required"`
	TermID    string  `json:"term_id" validate:"required"`
	Date      string  `json:"date" validate:"required"`
	Status    string  `json:"status" validate:"required,oneof=PRESENT ABSENT LATE EXCUSED"`
	Notes     *string `json:"notes" validate:"omitempty,max=500"`
}

// BulkAttendanceItem is one student's entry in a class register.
type BulkAttendanceItem struct {
	StudentID string  `json:"student_id" validate:"required"`
	Status    string  `json:"status" validate:"required,oneof=PRESENT ABSENT LATE EXCUSED"`
	Notes     *string `json:"notes" validate:"omitempty,max=500"`
}

// BulkAttendanceRequest captures a whole register for one date and term. Mode
// atomic stores all rows or none; partialOnError stores each row on its own.
type BulkAttendanceRequest struct {
	TermID string               `json:"term_id" validate:"required"`
	Date   string               `json:"date" validate:"required"`
	Mode   string               `json:"mode" validate:"omitempty,oneof=atomic partialOnError"`
	Items  []BulkAttendanceItem `json:"items" validate:"required,min=1,max=1000,dive"`
}

// BulkAttendanceFailure captures one failed row of a partial register.
type BulkAttendanceFailure struct {
	Index     int    `json:"index"`
	StudentID string `json:"student_id"`
	Reason    string `json:"reason"`
}

// BulkAttendanceResult summarises a bulk capture.
type BulkAttendanceResult struct {
	Processed    int                     `json:"processed"`
	SuccessCount int                     `json:"success_count"`
	Failures     []BulkAttendanceFailure `json:"failures,omitempty"`
}

// AttendanceService captures and reports daily attendance.
type AttendanceService struct {
	store     attendanceStore
	students  studentFinder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAttendanceService constructs the attendance service.
func NewAttendanceService(store attendanceStore, students studentFinder, validate *validator.Validate, logger *zap.Logger) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceService{store: store, students: students, validator: validate, logger: logger}
}

// List returns attendance rows for staff.
func (s *AttendanceService) List(ctx context.Context, principal models.Principal, req AttendanceListRequest) ([]models.DailyAttendanceRecord, error) {
	if err := Authorize(principal, OpAttendanceRead); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid filter")
	}
	filter := models.DailyAttendanceFilter{ClassID: req.ClassID, StudentID: req.StudentID, TermID: req.TermID}
	if req.Status != "" {
		status := models.AttendanceStatus(req.Status)
		filter.Status = &status
	}
	var err error
	if filter.DateFrom, err = optionalDate(req.DateFrom, "from"); err != nil {
		return nil, err
	}
	if filter.DateTo, err = optionalDate(req.DateTo, "to"); err != nil {
		return nil, err
	}
	if filter.DateFrom != nil && filter.DateTo != nil && filter.DateTo.Before(*filter.DateFrom) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "to must not be before from")
	}
	rows, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance")
	}
	return rows, nil
}

// Mark stores one student's attendance, replacing any earlier entry for the
// same date and term.
func (s *AttendanceService) Mark(ctx context.Context, principal models.Principal, req MarkAttendanceRequest) (*models.DailyAttendance, error) {
	if err := Authorize(principal, OpAttendanceWrite); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}
	date, err := parseAttendanceDate(req.Date)
	if err != nil {
		return nil, err
	}
	if err := s.ensureStudent(ctx, req.StudentID); err != nil {
		return nil, err
	}
	record := &models.DailyAttendance{
		StudentID: req.StudentID,
		TermID:    req.TermID,
		Date:      date,
		Status:    models.AttendanceStatus(req.Status),
		Notes:     trimNotes(req.Notes),
	}
	if err := s.store.Upsert(ctx, record); err != nil {
		return nil, attendanceWriteError(err)
	}
	return record, nil
}

// BulkMark captures a register for one date and term.
func (s *AttendanceService) BulkMark(ctx context.Context, principal models.Principal, req BulkAttendanceRequest) (*BulkAttendanceResult, error) {
	if err := Authorize(principal, OpAttendanceWrite); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}
	date, err := parseAttendanceDate(req.Date)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(req.Items))
	records := make([]models.DailyAttendance, len(req.Items))
	for i, item := range req.Items {
		if _, dup := seen[item.StudentID]; dup {
			return nil, appErrors.Clone(appErrors.ErrConflict, "student "+item.StudentID+" appears more than once")
		}
		seen[item.StudentID] = struct{}{}
		records[i] = models.DailyAttendance{
			StudentID: item.StudentID,
			TermID:    req.TermID,
			Date:      date,
			Status:    models.AttendanceStatus(item.Status),
			Notes:     trimNotes(item.Notes),
		}
	}

	if req.Mode == "atomic" {
		for i := range records {
			if err := s.ensureStudent(ctx, records[i].StudentID); err != nil {
				appErr := appErrors.FromError(err)
				return nil, appErrors.Wrap(err, appErr.Code, appErr.Status, "item "+strconv.Itoa(i)+": "+appErr.Message)
			}
		}
		if err := s.store.BulkUpsert(ctx, records); err != nil {
			return nil, attendanceWriteError(err)
		}
		s.logger.Info("attendance register stored", zap.String("term_id", req.TermID), zap.Time("date", date), zap.Int("count", len(records)))
		return &BulkAttendanceResult{Processed: len(records), SuccessCount: len(records)}, nil
	}

	result := &BulkAttendanceResult{}
	for i := range records {
		result.Processed++
		err := s.ensureStudent(ctx, records[i].StudentID)
		if err == nil {
			if err = s.store.Upsert(ctx, &records[i]); err != nil {
				err = attendanceWriteError(err)
			}
		}
		if err != nil {
			result.Failures = append(result.Failures, BulkAttendanceFailure{Index: i, StudentID: records[i].StudentID, Reason: appErrors.FromError(err).Message})
			continue
		}
		result.SuccessCount++
	}
	if len(result.Failures) > 0 {
		s.logger.Warn("attendance register partially stored", zap.String("term_id", req.TermID), zap.Int("failures", len(result.Failures)))
	}
	return result, nil
}

// Summary counts a student's attendance per status for a term.
func (s *AttendanceService) Summary(ctx context.Context, principal models.Principal, studentID, termID string) (*models.AttendanceSummary, error) {
	if err := Authorize(principal, OpAttendanceRead); err != nil {
		return nil, err
	}
	if studentID == "" || termID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "studentId and termId are required")
	}
	if err := s.ensureStudent(ctx, studentID); err != nil {
		return nil, err
	}
	summary, err := s.store.Summary(ctx, studentID, termID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to summarise attendance")
	}
	return summary, nil
}

func (s *AttendanceService) ensureStudent(ctx context.Context, id string) error {
	if _, err := s.students.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return nil
}

func attendanceWriteError(err error) error {
	if database.IsForeignKeyViolation(err) {
		return appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "student or term not found")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store attendance")
}

func parseAttendanceDate(raw string) (time.Time, error) {
	date, err := time.Parse(attendanceDateLayout, raw)
	if err != nil {
		return time.Time{}, appErrors.Clone(appErrors.ErrValidation, "invalid date format, expected YYYY-MM-DD")
	}
	return date, nil
}

func optionalDate(raw, field string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	date, err := time.Parse(attendanceDateLayout, raw)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, field+" must be YYYY-MM-DD")
	}
	return &date, nil
}

func trimNotes(notes *string) *string {
	if notes == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*notes)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
