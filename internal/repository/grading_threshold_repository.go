package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-report-api/internal/models"
)

// GradingThresholdRepository stores the grade band table.
type GradingThresholdRepository struct {
	db *sqlx.DB
}

// NewGradingThresholdRepository constructs the repository.
func NewGradingThresholdRepository(db *sqlx.DB) *GradingThresholdRepository {
	return &GradingThresholdRepository{db: db}
}

// List returns every threshold ordered by descending minimum mark.
func (r *GradingThresholdRepository) List(ctx context.Context) ([]models.GradingThreshold, error) {
	const query = `SELECT id, grade, min_mark, max_mark, comment, created_at FROM grading_thresholds ORDER BY min_mark DESC, grade ASC`
	var thresholds []models.GradingThreshold
	if err := r.db.SelectContext(ctx, &thresholds, query); err != nil {
		return nil, fmt.Errorf("list grading thresholds: %w", err)
	}
	return thresholds, nil
}

// Replace swaps the whole table atomically.
func (r *GradingThresholdRepository) Replace(ctx context.Context, thresholds []models.GradingThreshold) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace thresholds tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM grading_thresholds`); err != nil {
		return fmt.Errorf("clear grading thresholds: %w", err)
	}

	now := time.Now().UTC()
	const insert = `INSERT INTO grading_thresholds (id, grade, min_mark, max_mark, comment, created_at) VALUES ($1, $2, $3, $4, $5, $6)`
	for i := range thresholds {
		t := &thresholds[i]
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		t.CreatedAt = now
		if _, err = tx.ExecContext(ctx, insert, t.ID, t.Grade, t.MinMark, t.MaxMark, t.Comment, t.CreatedAt); err != nil {
			return fmt.Errorf("insert grading threshold %s: %w", t.Grade, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit replace thresholds tx: %w", err)
	}
	return nil
}
