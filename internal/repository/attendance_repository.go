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

const attendanceUpsert = `INSERT INTO daily_attendance (id, student_id, term_id, date, status, notes, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (student_id, date, term_id)
DO UPDATE SET status = EXCLUDED.status, notes = EXCLUDED.notes, updated_at = EXCLUDED.updated_at
RETURNING id, created_at`

type attendanceQueryer interface {
	QueryRowxContext(ctx context.Context, query string, args ...interface{}) *sqlx.Row
}

// AttendanceRepository persists daily attendance.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// List returns attendance rows matching the filter, newest first.
func (r *AttendanceRepository) List(ctx context.Context, filter models.DailyAttendanceFilter) ([]models.DailyAttendanceRecord, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.ClassID != "" {
		where = append(where, fmt.Sprintf("s.class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.StudentID != "" {
		where = append(where, fmt.Sprintf("da.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.TermID != "" {
		where = append(where, fmt.Sprintf("da.term_id = $%d", len(args)+1))
		args = append(args, filter.TermID)
	}
	if filter.Status != nil && filter.Status.Valid() {
		where = append(where, fmt.Sprintf("da.status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.DateFrom != nil {
		where = append(where, fmt.Sprintf("da.date >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		where = append(where, fmt.Sprintf("da.date <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
	}
	query := fmt.Sprintf(`SELECT da.id, da.student_id, da.term_id, da.date, da.status, da.notes, da.created_at, da.updated_at,
        s.name AS student_name, s.class_id
        FROM daily_attendance da JOIN students s ON s.id = da.student_id
        WHERE %s
        ORDER BY da.date DESC, s.name ASC`, strings.Join(where, " AND "))

	var rows []models.DailyAttendanceRecord
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list daily attendance: %w", err)
	}
	return rows, nil
}

// Upsert inserts or replaces the row for (student, date, term).
func (r *AttendanceRepository) Upsert(ctx context.Context, record *models.DailyAttendance) error {
	if err := upsertAttendance(ctx, r.db, record, time.Now().UTC()); err != nil {
		return fmt.Errorf("upsert daily attendance: %w", err)
	}
	return nil
}

// BulkUpsert stores every record in one transaction; any failure rolls back
// the whole batch.
func (r *AttendanceRepository) BulkUpsert(ctx context.Context, records []models.DailyAttendance) (err error) {
	if len(records) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin bulk daily attendance: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	for i := range records {
		if err = upsertAttendance(ctx, tx, &records[i], now); err != nil {
			return fmt.Errorf("upsert daily attendance %d: %w", i, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit bulk daily attendance: %w", err)
	}
	return nil
}

// Summary counts a student's rows per status within a term.
func (r *AttendanceRepository) Summary(ctx context.Context, studentID, termID string) (*models.AttendanceSummary, error) {
	const query = `SELECT da.status, COUNT(*) AS cnt
FROM daily_attendance da
WHERE da.student_id = $1 AND da.term_id = $2
GROUP BY da.status`
	rows := []struct {
		Status string `db:"status"`
		Count  int    `db:"cnt"`
	}{}
	if err := r.db.SelectContext(ctx, &rows, query, studentID, termID); err != nil {
		return nil, fmt.Errorf("daily attendance summary: %w", err)
	}
	summary := &models.AttendanceSummary{StudentID: studentID, TermID: termID}
	for _, row := range rows {
		switch models.AttendanceStatus(row.Status) {
		case models.AttendanceStatusPresent:
			summary.Present += row.Count
		case models.AttendanceStatusAbsent:
			summary.Absent += row.Count
		case models.AttendanceStatusLate:
			summary.Late += row.Count
		case models.AttendanceStatusExcused:
			summary.Excused += row.Count
		}
		summary.Total += row.Count
	}
	if summary.Total > 0 {
		summary.Percent = float64(summary.Present+summary.Late) / float64(summary.Total) * 100
	}
	return summary, nil
}

func upsertAttendance(ctx context.Context, q attendanceQueryer, record *models.DailyAttendance, now time.Time) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	record.CreatedAt = now
	record.UpdatedAt = now
	return q.QueryRowxContext(ctx, attendanceUpsert,
		record.ID, record.StudentID, record.TermID, record.Date, record.Status, record.Notes, record.CreatedAt, record.UpdatedAt,
	).Scan(&record.ID, &record.CreatedAt)
}
