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

const markColumns = `m.id, m.student_id, m.subject_id, m.term_id, m.academic_year_id, m.assessment1, m.assessment2, m.assessment3, m.bot, m.eot, m.mark, m.total, m.grade, m.created_at, m.updated_at`

// MarkRepository persists per-subject marks.
type MarkRepository struct {
	db *sqlx.DB
}

// NewMarkRepository constructs a mark repository.
func NewMarkRepository(db *sqlx.DB) *MarkRepository {
	return &MarkRepository{db: db}
}

// List returns marks matching the filter. ClassID scopes through the student's class.
func (r *MarkRepository) List(ctx context.Context, filter models.MarkFilter) ([]models.Mark, error) {
	query := `SELECT ` + markColumns + ` FROM marks m JOIN students s ON s.id = m.student_id WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.ClassID != "" {
		conditions = append(conditions, fmt.Sprintf("s.class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("m.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.SubjectID != "" {
		conditions = append(conditions, fmt.Sprintf("m.subject_id = $%d", len(args)+1))
		args = append(args, filter.SubjectID)
	}
	if filter.TermID != "" {
		conditions = append(conditions, fmt.Sprintf("m.term_id = $%d", len(args)+1))
		args = append(args, filter.TermID)
	}
	if filter.AcademicYearID != "" {
		conditions = append(conditions, fmt.Sprintf("m.academic_year_id = $%d", len(args)+1))
		args = append(args, filter.AcademicYearID)
	}
	if len(conditions) > 0 {
		query += " AND " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY m.student_id ASC, m.subject_id ASC"

	var marks []models.Mark
	if err := r.db.SelectContext(ctx, &marks, query, args...); err != nil {
		return nil, fmt.Errorf("list marks: %w", err)
	}
	return marks, nil
}

// ListSubjectMarks returns a student's marks for a term joined with subject names.
func (r *MarkRepository) ListSubjectMarks(ctx context.Context, studentID, termID, academicYearID string) ([]models.SubjectMark, error) {
	query := `SELECT ` + markColumns + `, sub.name AS subject_name, sub.code AS subject_code
        FROM marks m JOIN subjects sub ON sub.id = m.subject_id
        WHERE m.student_id = $1 AND m.term_id = $2 AND m.academic_year_id = $3
        ORDER BY sub.code ASC`
	var marks []models.SubjectMark
	if err := r.db.SelectContext(ctx, &marks, query, studentID, termID, academicYearID); err != nil {
		return nil, fmt.Errorf("list subject marks: %w", err)
	}
	return marks, nil
}

// Upsert inserts or updates the mark for (student, subject, term).
func (r *MarkRepository) Upsert(ctx context.Context, mark *models.Mark) error {
	if mark.ID == "" {
		mark.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	mark.CreatedAt = now
	mark.UpdatedAt = now

	const query = `INSERT INTO marks (id, student_id, subject_id, term_id, academic_year_id, assessment1, assessment2, assessment3, bot, eot, mark, total, grade, created_at, updated_at)
        VALUES (:id, :student_id, :subject_id, :term_id, :academic_year_id, :assessment1, :assessment2, :assessment3, :bot, :eot, :mark, :total, :grade, :created_at, :updated_at)
        ON CONFLICT (student_id, subject_id, term_id) DO UPDATE SET
            academic_year_id = EXCLUDED.academic_year_id,
            assessment1 = EXCLUDED.assessment1,
            assessment2 = EXCLUDED.assessment2,
            assessment3 = EXCLUDED.assessment3,
            bot = EXCLUDED.bot,
            eot = EXCLUDED.eot,
            mark = EXCLUDED.mark,
            total = EXCLUDED.total,
            grade = EXCLUDED.grade,
            updated_at = EXCLUDED.updated_at
        RETURNING id, created_at`
	rows, err := r.db.NamedQueryContext(ctx, query, mark)
	if err != nil {
		return fmt.Errorf("upsert mark: %w", err)
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&mark.ID, &mark.CreatedAt); err != nil {
			return fmt.Errorf("scan upserted mark: %w", err)
		}
	}
	return rows.Err()
}

// BulkCreate inserts every mark in one transaction; any failure rolls back the
// whole batch.
func (r *MarkRepository) BulkCreate(ctx context.Context, marks []models.Mark) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin bulk create marks tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	const query = `INSERT INTO marks (id, student_id, subject_id, term_id, academic_year_id, assessment1, assessment2, assessment3, bot, eot, mark, total, grade, created_at, updated_at)
        VALUES (:id, :student_id, :subject_id, :term_id, :academic_year_id, :assessment1, :assessment2, :assessment3, :bot, :eot, :mark, :total, :grade, :created_at, :updated_at)`
	for i := range marks {
		if marks[i].ID == "" {
			marks[i].ID = uuid.NewString()
		}
		marks[i].CreatedAt = now
		marks[i].UpdatedAt = now
		if _, err = tx.NamedExecContext(ctx, query, &marks[i]); err != nil {
			return fmt.Errorf("insert mark %d: %w", i, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit bulk create marks tx: %w", err)
	}
	return nil
}
