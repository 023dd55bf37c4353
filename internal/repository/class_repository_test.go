package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-report-api/internal/models"
)

func academicYearFixture(label string, active bool) *models.AcademicYear {
	start := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	return &models.AcademicYear{Year: label, StartDate: start, EndDate: start.AddDate(0, 11, 0), IsActive: active}
}

func TestAssignClassTeacherSingleStatement(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewClassRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("SET class_teacher_id = CASE WHEN id = $1 THEN $2::uuid ELSE NULL END")).
		WithArgs("c2", "teacher", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, repo.AssignClassTeacher(context.Background(), "c2", "teacher"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignClassTeacherNoRows(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewClassRepository(db)

	mock.ExpectExec("UPDATE classes").WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.AssignClassTeacher(context.Background(), "missing", "teacher")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestClassRepositoryList(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewClassRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM classes WHERE 1=1 AND academic_year_id = $1 ORDER BY name ASC")).
		WithArgs("y1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "academic_year_id", "class_teacher_id", "created_at", "updated_at"}).
			AddRow("c1", "P7", "y1", "teacher", now, now))

	classes, err := repo.List(context.Background(), models.ClassFilter{AcademicYearID: "y1"})
	require.NoError(t, err)
	require.Len(t, classes, 1)
	require.NotNil(t, classes[0].ClassTeacherID)
	assert.Equal(t, "teacher", *classes[0].ClassTeacherID)
}
