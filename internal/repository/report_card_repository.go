package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-report-api/internal/models"
)

const reportCardColumns = `rc.id, rc.student_id, rc.term_id, rc.academic_year_id, rc.discipline, rc.cleanliness, rc.class_work_presentation,
        rc.adherence_to_school, rc.co_curricular_activities, rc.consideration_to_others, rc.speaking_english,
        rc.class_teacher_comment, rc.headteacher_comment, rc.is_approved, rc.approved_at, rc.parent_access_enabled_at,
        rc.created_at, rc.updated_at`

// ReportCardRepository persists personal-assessment report cards.
type ReportCardRepository struct {
	db *sqlx.DB
}

// NewReportCardRepository constructs a report card repository.
func NewReportCardRepository(db *sqlx.DB) *ReportCardRepository {
	return &ReportCardRepository{db: db}
}

// FindByID loads a report card by identifier.
func (r *ReportCardRepository) FindByID(ctx context.Context, id string) (*models.ReportCard, error) {
	query := `SELECT ` + reportCardColumns + ` FROM report_cards rc WHERE rc.id = $1`
	var card models.ReportCard
	if err := r.db.GetContext(ctx, &card, query, id); err != nil {
		return nil, err
	}
	return &card, nil
}

// FindByKey loads the report card identified by (student, term, academic year).
func (r *ReportCardRepository) FindByKey(ctx context.Context, key models.ReportCardKey) (*models.ReportCard, error) {
	query := `SELECT ` + reportCardColumns + ` FROM report_cards rc WHERE rc.student_id = $1 AND rc.term_id = $2 AND rc.academic_year_id = $3`
	var card models.ReportCard
	if err := r.db.GetContext(ctx, &card, query, key.StudentID, key.TermID, key.AcademicYearID); err != nil {
		return nil, err
	}
	return &card, nil
}

// List returns report cards matching the filter. ClassID and ParentID scope
// through the owning student.
func (r *ReportCardRepository) List(ctx context.Context, filter models.ReportCardFilter) ([]models.ReportCard, error) {
	query := `SELECT ` + reportCardColumns + ` FROM report_cards rc JOIN students s ON s.id = rc.student_id WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.ClassID != "" {
		conditions = append(conditions, fmt.Sprintf("s.class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("rc.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.TermID != "" {
		conditions = append(conditions, fmt.Sprintf("rc.term_id = $%d", len(args)+1))
		args = append(args, filter.TermID)
	}
	if filter.AcademicYearID != "" {
		conditions = append(conditions, fmt.Sprintf("rc.academic_year_id = $%d", len(args)+1))
		args = append(args, filter.AcademicYearID)
	}
	if filter.ParentID != "" {
		conditions = append(conditions, fmt.Sprintf("s.parent_id = $%d", len(args)+1))
		args = append(args, filter.ParentID)
	}
	if filter.Approved != nil {
		conditions = append(conditions, fmt.Sprintf("rc.is_approved = $%d", len(args)+1))
		args = append(args, *filter.Approved)
	}
	if len(conditions) > 0 {
		query += " AND " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY s.name ASC, rc.student_id ASC"

	var cards []models.ReportCard
	if err := r.db.SelectContext(ctx, &cards, query, args...); err != nil {
		return nil, fmt.Errorf("list report cards: %w", err)
	}
	return cards, nil
}

// Create inserts a report card. Unique violations on the composite key are
// returned unwrapped from the driver so callers can fall back to an update.
func (r *ReportCardRepository) Create(ctx context.Context, card *models.ReportCard) error {
	if card.ID == "" {
		card.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	card.CreatedAt = now
	card.UpdatedAt = now

	const query = `INSERT INTO report_cards (id, student_id, term_id, academic_year_id, discipline, cleanliness, class_work_presentation,
        adherence_to_school, co_curricular_activities, consideration_to_others, speaking_english,
        class_teacher_comment, headteacher_comment, is_approved, approved_at, parent_access_enabled_at, created_at, updated_at)
        VALUES (:id, :student_id, :term_id, :academic_year_id, :discipline, :cleanliness, :class_work_presentation,
        :adherence_to_school, :co_curricular_activities, :consideration_to_others, :speaking_english,
        :class_teacher_comment, :headteacher_comment, :is_approved, :approved_at, :parent_access_enabled_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, card); err != nil {
		return fmt.Errorf("create report card: %w", err)
	}
	return nil
}

// UpdateAssessment rewrites the seven grades and the class teacher comment of
// the card with the given key. Approval fields are left untouched.
func (r *ReportCardRepository) UpdateAssessment(ctx context.Context, card *models.ReportCard) error {
	card.UpdatedAt = time.Now().UTC()
	const query = `UPDATE report_cards SET discipline = :discipline, cleanliness = :cleanliness, class_work_presentation = :class_work_presentation,
        adherence_to_school = :adherence_to_school, co_curricular_activities = :co_curricular_activities,
        consideration_to_others = :consideration_to_others, speaking_english = :speaking_english,
        class_teacher_comment = :class_teacher_comment, updated_at = :updated_at
        WHERE student_id = :student_id AND term_id = :term_id AND academic_year_id = :academic_year_id`
	res, err := r.db.NamedExecContext(ctx, query, card)
	if err != nil {
		return fmt.Errorf("update report card: %w", err)
	}
	return requireAffected(res)
}

// UpdateApproval stores the headteacher decision. Withdrawing approval also
// revokes parent access, which must be re-enabled after the next approval.
func (r *ReportCardRepository) UpdateApproval(ctx context.Context, id, comment string, approved bool, approvedAt *time.Time) error {
	const query = `UPDATE report_cards SET headteacher_comment = $2, is_approved = $3, approved_at = $4, updated_at = $5,
		parent_access_enabled_at = CASE WHEN $3 THEN parent_access_enabled_at ELSE NULL END
		WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, comment, approved, approvedAt, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update report card approval: %w", err)
	}
	return requireAffected(res)
}

// EnableParentAccess stamps parent_access_enabled_at unless it is already set.
// It reports whether the row changed.
func (r *ReportCardRepository) EnableParentAccess(ctx context.Context, id string, at time.Time) (bool, error) {
	const query = `UPDATE report_cards SET parent_access_enabled_at = $2, updated_at = $2 WHERE id = $1 AND parent_access_enabled_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return false, fmt.Errorf("enable parent access: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("enable parent access rows: %w", err)
	}
	return n > 0, nil
}
