package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-report-api/internal/models"
)

func TestGradingThresholdListOrdered(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewGradingThresholdRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM grading_thresholds ORDER BY min_mark DESC")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "grade", "min_mark", "max_mark", "comment", "created_at"}).
			AddRow("1", "A", "80.00", "100.00", "Excellent", now).
			AddRow("2", "B", "65.00", "79.99", "Very good", now))

	thresholds, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, thresholds, 2)
	assert.InDelta(t, 79.99, thresholds[1].MaxMark, 0.0001)
}

func TestGradingThresholdReplaceIsTransactional(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewGradingThresholdRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM grading_thresholds").WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectExec("INSERT INTO grading_thresholds").
		WithArgs(sqlmock.AnyArg(), "PASS", 50.0, 100.0, "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.Replace(context.Background(), []models.GradingThreshold{{Grade: "PASS", MinMark: 50, MaxMark: 100}})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
