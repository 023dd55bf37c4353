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

const classColumns = `id, name, academic_year_id, class_teacher_id, created_at, updated_at`

// ClassRepository provides persistence for class streams.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository creates a class repository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

// List returns classes that match the filter, ordered by name.
func (r *ClassRepository) List(ctx context.Context, filter models.ClassFilter) ([]models.Class, error) {
	query := `SELECT ` + classColumns + ` FROM classes WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.AcademicYearID != "" {
		conditions = append(conditions, fmt.Sprintf("academic_year_id = $%d", len(args)+1))
		args = append(args, filter.AcademicYearID)
	}
	if filter.ClassTeacherID != "" {
		conditions = append(conditions, fmt.Sprintf("class_teacher_id = $%d", len(args)+1))
		args = append(args, filter.ClassTeacherID)
	}
	if len(conditions) > 0 {
		query += " AND " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY name ASC"

	var classes []models.Class
	if err := r.db.SelectContext(ctx, &classes, query, args...); err != nil {
		return nil, fmt.Errorf("list classes: %w", err)
	}
	return classes, nil
}

// FindByID loads a class by identifier.
func (r *ClassRepository) FindByID(ctx context.Context, id string) (*models.Class, error) {
	query := `SELECT ` + classColumns + ` FROM classes WHERE id = $1`
	var class models.Class
	if err := r.db.GetContext(ctx, &class, query, id); err != nil {
		return nil, err
	}
	return &class, nil
}

// Create inserts a class without a class teacher.
func (r *ClassRepository) Create(ctx context.Context, class *models.Class) error {
	if class.ID == "" {
		class.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	class.ClassTeacherID = nil
	class.CreatedAt = now
	class.UpdatedAt = now

	const query = `INSERT INTO classes (id, name, academic_year_id, class_teacher_id, created_at, updated_at) VALUES (:id, :name, :academic_year_id, :class_teacher_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, class); err != nil {
		return fmt.Errorf("create class: %w", err)
	}
	return nil
}

// AssignClassTeacher makes teacherID the class teacher of classID in a single
// statement, releasing any class the teacher previously held.
func (r *ClassRepository) AssignClassTeacher(ctx context.Context, classID, teacherID string) error {
	const query = `UPDATE classes
        SET class_teacher_id = CASE WHEN id = $1 THEN $2::uuid ELSE NULL END, updated_at = $3
        WHERE id = $1 OR class_teacher_id = $2::uuid`
	res, err := r.db.ExecContext(ctx, query, classID, teacherID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("assign class teacher: %w", err)
	}
	return requireAffected(res)
}
