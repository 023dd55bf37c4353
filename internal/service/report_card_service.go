package service

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-report-api/internal/models"
	"github.com/noah-isme/sma-report-api/pkg/database"
	appErrors "github.com/noah-isme/sma-report-api/pkg/errors"
)

type reportCardStore interface {
	FindByID(ctx context.Context, id string) (*models.ReportCard, error)
	FindByKey(ctx context.Context, key models.ReportCardKey) (*models.ReportCard, error)
	List(ctx context.Context, filter models.ReportCardFilter) ([]models.ReportCard, error)
	Create(ctx context.Context, card *models.ReportCard) error
	UpdateAssessment(ctx context.Context, card *models.ReportCard) error
	UpdateApproval(ctx context.Context, id, comment string, approved bool, approvedAt *time.Time) error
	EnableParentAccess(ctx context.Context, id string, at time.Time) (bool, error)
}

type studentFinder interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

// UpsertReportCardRequest is a personal-assessment submission for one student and term.
type UpsertReportCardRequest struct {
	StudentID      string `json:"student_id" validate:"required"`
	TermID         string `json:"term_id" validate:"required"`
	AcademicYearID string `json:"academic_year_id" validate:"required"`
	models.PersonalAssessment
	ClassTeacherComment string `json:"class_teacher_comment" validate:"max=2000"`
}

// BulkUpsertReportCardsRequest carries an ordered batch of submissions.
type BulkUpsertReportCardsRequest struct {
	Items []UpsertReportCardRequest `json:"items" validate:"required,min=1,max=500"`
}

// BulkReportCardItemResult reports the outcome of one batch item.
type BulkReportCardItemResult struct {
	Index        int    `json:"index"`
	StudentID    string `json:"student_id"`
	Success      bool   `json:"success"`
	Created      bool   `json:"created,omitempty"`
	ReportCardID string `json:"report_card_id,omitempty"`
	Code         string `json:"code,omitempty"`
	Error        string `json:"error,omitempty"`
}

// BulkReportCardResult summarises a bulk upsert.
type BulkReportCardResult struct {
	Processed int                        `json:"processed"`
	Succeeded int                        `json:"succeeded"`
	Failed    int                        `json:"failed"`
	Results   []BulkReportCardItemResult `json:"results"`
}

// ApproveReportCardRequest is the headteacher decision on a report card.
type ApproveReportCardRequest struct {
	HeadteacherComment string     `json:"headteacher_comment" validate:"max=2000"`
	IsApproved         *bool      `json:"is_approved" validate:"required"`
	ApprovedAt         *time.Time `json:"approved_at"`
}

// ReportCardService aggregates personal-assessment report cards.
type ReportCardService struct {
	cards     reportCardStore
	students  studentFinder
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewReportCardService constructs a ReportCardService.
func NewReportCardService(cards reportCardStore, students studentFinder, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *ReportCardService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportCardService{
		cards:     cards,
		students:  students,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Upsert creates or updates the report card keyed by (student, term, academic year).
func (s *ReportCardService) Upsert(ctx context.Context, principal models.Principal, req UpsertReportCardRequest) (*models.ReportCard, error) {
	if err := Authorize(principal, OpReportCardUpsert); err != nil {
		return nil, err
	}
	card, _, err := s.upsert(ctx, principal, req)
	return card, err
}

// BulkUpsert processes every item independently; failures are reported per
// item and never abort the batch.
func (s *ReportCardService) BulkUpsert(ctx context.Context, principal models.Principal, req BulkUpsertReportCardsRequest) (*BulkReportCardResult, error) {
	if err := Authorize(principal, OpReportCardUpsert); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk report card payload")
	}

	result := &BulkReportCardResult{Results: make([]BulkReportCardItemResult, 0, len(req.Items))}
	for i, item := range req.Items {
		result.Processed++
		entry := BulkReportCardItemResult{Index: i, StudentID: item.StudentID}
		card, created, err := s.upsert(ctx, principal, item)
		if err != nil {
			appErr := appErrors.FromError(err)
			entry.Code = appErr.Code
			entry.Error = appErr.Message
			result.Failed++
		} else {
			entry.Success = true
			entry.Created = created
			entry.ReportCardID = card.ID
			result.Succeeded++
		}
		result.Results = append(result.Results, entry)
	}

	s.logger.Info("report cards bulk upserted",
		zap.String("by", principal.UserID),
		zap.Int("processed", result.Processed),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

func (s *ReportCardService) upsert(ctx context.Context, principal models.Principal, req UpsertReportCardRequest) (*models.ReportCard, bool, error) {
	if err := s.validator.Struct(req); err != nil {
		s.metrics.RecordReportCardUpsert("failed")
		return nil, false, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid report card payload")
	}
	if _, err := s.students.FindByID(ctx, req.StudentID); err != nil {
		s.metrics.RecordReportCardUpsert("failed")
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	key := models.ReportCardKey{StudentID: req.StudentID, TermID: req.TermID, AcademicYearID: req.AcademicYearID}
	existing, err := s.cards.FindByKey(ctx, key)
	switch {
	case err == nil:
		card, err := s.updateAssessment(ctx, existing, req)
		if err != nil {
			s.metrics.RecordReportCardUpsert("failed")
			return nil, false, err
		}
		s.metrics.RecordReportCardUpsert("updated")
		return card, false, nil
	case !errors.Is(err, sql.ErrNoRows):
		s.metrics.RecordReportCardUpsert("failed")
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report card")
	}

	card := &models.ReportCard{
		StudentID:           req.StudentID,
		TermID:              req.TermID,
		AcademicYearID:      req.AcademicYearID,
		PersonalAssessment:  req.PersonalAssessment,
		ClassTeacherComment: req.ClassTeacherComment,
	}
	if principal.Role == models.RoleHeadteacher {
		now := s.now()
		card.IsApproved = true
		card.ApprovedAt = &now
	}
	if err := s.cards.Create(ctx, card); err != nil {
		if database.IsForeignKeyViolation(err) {
			s.metrics.RecordReportCardUpsert("failed")
			return nil, false, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "term or academic year not found")
		}
		if !database.IsUniqueViolation(err) {
			s.metrics.RecordReportCardUpsert("failed")
			return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create report card")
		}
		// A concurrent submission created the row first.
		s.logger.Warn("report card create raced, updating instead", zap.String("student_id", req.StudentID), zap.String("term_id", req.TermID))
		existing, err := s.cards.FindByKey(ctx, key)
		if err != nil {
			s.metrics.RecordReportCardUpsert("failed")
			return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report card")
		}
		updated, err := s.updateAssessment(ctx, existing, req)
		if err != nil {
			s.metrics.RecordReportCardUpsert("failed")
			return nil, false, err
		}
		s.metrics.RecordReportCardUpsert("updated")
		return updated, false, nil
	}
	s.metrics.RecordReportCardUpsert("created")
	return card, true, nil
}

func (s *ReportCardService) updateAssessment(ctx context.Context, existing *models.ReportCard, req UpsertReportCardRequest) (*models.ReportCard, error) {
	card := *existing
	card.PersonalAssessment = req.PersonalAssessment
	card.ClassTeacherComment = req.ClassTeacherComment
	if err := s.cards.UpdateAssessment(ctx, &card); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update report card")
	}
	return &card, nil
}

// Approve records the headteacher comment and approval state.
func (s *ReportCardService) Approve(ctx context.Context, principal models.Principal, id string, req ApproveReportCardRequest) (*models.ReportCard, error) {
	if err := Authorize(principal, OpReportCardApprove); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid approval payload")
	}
	card, err := s.findCard(ctx, id)
	if err != nil {
		return nil, err
	}

	comment, _ := models.StripAccessMarkers(req.HeadteacherComment)
	approved := *req.IsApproved
	var approvedAt *time.Time
	if approved {
		at := s.now()
		if req.ApprovedAt != nil {
			at = req.ApprovedAt.UTC()
		}
		approvedAt = &at
	}
	if err := s.cards.UpdateApproval(ctx, card.ID, comment, approved, approvedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report card not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update approval")
	}
	card.HeadteacherComment = comment
	card.IsApproved = approved
	card.ApprovedAt = approvedAt
	if !approved {
		card.ParentAccessEnabledAt = nil
	}
	s.logger.Info("report card approval updated", zap.String("report_card_id", card.ID), zap.Bool("approved", approved), zap.String("by", principal.UserID))
	return card, nil
}

// EnableParentAccess opens an approved report card to the student's parent.
// Re-enabling keeps the original timestamp.
func (s *ReportCardService) EnableParentAccess(ctx context.Context, principal models.Principal, id string) (*models.ReportCard, error) {
	if err := Authorize(principal, OpReportCardParentAccess); err != nil {
		return nil, err
	}
	card, err := s.findCard(ctx, id)
	if err != nil {
		return nil, err
	}
	if !card.IsApproved {
		return nil, appErrors.Clone(appErrors.ErrNotApproved, "report card must be approved before parent access")
	}
	student, err := s.students.FindByID(ctx, card.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.ParentID == nil || *student.ParentID == "" {
		return nil, appErrors.Clone(appErrors.ErrNoParent, "")
	}
	if card.ParentAccessEnabledAt != nil {
		return card, nil
	}

	at := s.now()
	changed, err := s.cards.EnableParentAccess(ctx, card.ID, at)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enable parent access")
	}
	if !changed {
		return s.findCard(ctx, id)
	}
	card.ParentAccessEnabledAt = &at
	s.logger.Info("parent access enabled", zap.String("report_card_id", card.ID), zap.String("by", principal.UserID))
	return card, nil
}

// ListForParent returns the caller's children's report cards that are both
// approved and opened to parents.
func (s *ReportCardService) ListForParent(ctx context.Context, principal models.Principal, termID, academicYearID string) ([]models.ReportCard, error) {
	if err := Authorize(principal, OpReportCardParentRead); err != nil {
		return nil, err
	}
	approved := true
	cards, err := s.cards.List(ctx, models.ReportCardFilter{
		ParentID:       principal.UserID,
		TermID:         termID,
		AcademicYearID: academicYearID,
		Approved:       &approved,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list report cards")
	}
	visible := make([]models.ReportCard, 0, len(cards))
	for _, card := range cards {
		if !card.ParentVisible() {
			continue
		}
		card.HeadteacherComment, _ = models.StripAccessMarkers(card.HeadteacherComment)
		visible = append(visible, card)
	}
	return visible, nil
}

// Get returns a report card for staff.
func (s *ReportCardService) Get(ctx context.Context, principal models.Principal, id string) (*models.ReportCard, error) {
	if err := Authorize(principal, OpReportCardRead); err != nil {
		return nil, err
	}
	return s.findCard(ctx, id)
}

// List returns report cards matching the filter for staff.
func (s *ReportCardService) List(ctx context.Context, principal models.Principal, filter models.ReportCardFilter) ([]models.ReportCard, error) {
	if err := Authorize(principal, OpReportCardRead); err != nil {
		return nil, err
	}
	cards, err := s.cards.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list report cards")
	}
	return cards, nil
}

// GradeDistribution tallies personal-assessment grades across the cohort selected by filter.
func (s *ReportCardService) GradeDistribution(ctx context.Context, principal models.Principal, filter models.ReportCardFilter) (*models.GradeDistribution, error) {
	if err := Authorize(principal, OpReportCardDistribution); err != nil {
		return nil, err
	}
	cards, err := s.cards.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list report cards")
	}
	dist := TallyGrades(cards)
	return &dist, nil
}

// TallyGrades counts A/B/C/D across all seven personal-assessment fields of
// every card combined. Null and unrecognised values are skipped.
func TallyGrades(cards []models.ReportCard) models.GradeDistribution {
	dist := models.GradeDistribution{
		Counts:      make(map[models.PersonalGrade]int, len(models.PersonalGrades)),
		Percentages: make(map[models.PersonalGrade]float64, len(models.PersonalGrades)),
		CohortSize:  len(cards),
	}
	for _, g := range models.PersonalGrades {
		dist.Counts[g] = 0
		dist.Percentages[g] = 0
	}
	for _, card := range cards {
		for _, field := range card.PersonalAssessment.Fields() {
			if field == nil || !field.Recognised() {
				dist.Unrecorded++
				continue
			}
			dist.Counts[*field]++
			dist.Total++
		}
	}
	if dist.Total > 0 {
		for _, g := range models.PersonalGrades {
			dist.Percentages[g] = math.Round(float64(dist.Counts[g])/float64(dist.Total)*10000) / 100
		}
	}
	return dist
}

func (s *ReportCardService) findCard(ctx context.Context, id string) (*models.ReportCard, error) {
	card, err := s.cards.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report card not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report card")
	}
	return card, nil
}
