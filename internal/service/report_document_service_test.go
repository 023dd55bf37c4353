package service

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-report-api/internal/models"
	appErrors "github.com/noah-isme/sma-report-api/pkg/errors"
)

type stubTermFinder struct{}

func (stubTermFinder) FindByID(ctx context.Context, id string) (*models.Term, error) {
	if id != "t1" {
		return nil, sql.ErrNoRows
	}
	return &models.Term{ID: "t1", Name: "Term 1"}, nil
}

type stubYearFinder struct{}

func (stubYearFinder) FindByID(ctx context.Context, id string) (*models.AcademicYear, error) {
	if id != "y1" {
		return nil, sql.ErrNoRows
	}
	return &models.AcademicYear{ID: "y1", Year: "2026"}, nil
}

func newDocumentFixture(card models.ReportCard) *ReportDocumentService {
	store := newMockReportCardStore()
	store.put(card)
	students := newMockStudentRepo(
		models.Student{ID: "s1", Name: "Amina Juma", ParentID: strPtr("u-parent")},
	)
	marks := &mockMarkStore{marks: []models.Mark{
		{StudentID: "s1", SubjectID: "MTH", TermID: "t1", AcademicYearID: "y1", Total: floatPtr(82), BOT: floatPtr(70)},
		{StudentID: "s1", SubjectID: "ENG", TermID: "t1", AcademicYearID: "y1", EOT: floatPtr(55)},
		{StudentID: "s1", SubjectID: "ART", TermID: "t1", AcademicYearID: "y1"},
	}}
	grading := staticGrading{table: NewGradingTable(sampleThresholds())}
	return NewReportDocumentService(store, students, marks, stubTermFinder{}, stubYearFinder{}, grading, "Mlimani High", nil)
}

func openCard() models.ReportCard {
	at := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	return models.ReportCard{
		ID: "rc-1", StudentID: "s1", TermID: "t1", AcademicYearID: "y1",
		IsApproved: true, ApprovedAt: &at, ParentAccessEnabledAt: &at,
		HeadteacherComment: "Excellent term",
	}
}

func TestReportDocumentAggregateResolvesGrades(t *testing.T) {
	svc := newDocumentFixture(openCard())

	agg, err := svc.Aggregate(context.Background(), headteacherPrincipal, "rc-1")
	require.NoError(t, err)
	require.Len(t, agg.Marks, 3)
	assert.Equal(t, "A", agg.Marks[0].ResolvedGrade)
	assert.Equal(t, "Excellent", agg.Marks[0].GradeComment)
	assert.Equal(t, "C", agg.Marks[1].ResolvedGrade)
	assert.Nil(t, agg.Marks[2].Score)
	assert.Empty(t, agg.Marks[2].ResolvedGrade)
	assert.Equal(t, "Term 1", agg.Term.Name)
	assert.Len(t, agg.GradingBands, 4)
}

func TestReportDocumentParentAccess(t *testing.T) {
	svc := newDocumentFixture(openCard())
	_, err := svc.Aggregate(context.Background(), parentPrincipal, "rc-1")
	require.NoError(t, err)

	stranger := models.Principal{UserID: "u-other", Role: models.RoleParent}
	_, err = svc.Aggregate(context.Background(), stranger, "rc-1")
	assert.True(t, appErrors.IsCode(err, appErrors.ErrNotFound.Code))

	closed := openCard()
	closed.ParentAccessEnabledAt = nil
	svc = newDocumentFixture(closed)
	_, err = svc.Aggregate(context.Background(), parentPrincipal, "rc-1")
	assert.True(t, appErrors.IsCode(err, appErrors.ErrNotFound.Code))
}

func TestReportDocumentRenderCSV(t *testing.T) {
	svc := newDocumentFixture(openCard())

	body, filename, contentType, err := svc.Render(context.Background(), adminPrincipal, "rc-1", "csv")
	require.NoError(t, err)
	assert.Equal(t, "report_card_amina_juma_t1.csv", filename)
	assert.Equal(t, "text/csv", contentType)

	reader := csv.NewReader(bytes.NewReader(body))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	require.NoError(t, err)
	assert.Contains(t, string(body), "Mlimani High Report Card")
	assert.Contains(t, string(body), "Amina Juma")
	assert.NotEmpty(t, records)
}

func TestReportDocumentRenderPDFAndUnknownFormat(t *testing.T) {
	svc := newDocumentFixture(openCard())

	body, _, contentType, err := svc.Render(context.Background(), adminPrincipal, "rc-1", "")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", contentType)
	assert.True(t, bytes.HasPrefix(body, []byte("%PDF")))

	_, _, _, err = svc.Render(context.Background(), adminPrincipal, "rc-1", "docx")
	assert.True(t, appErrors.IsCode(err, appErrors.ErrValidation.Code))
}
