package service

import (
	"context"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-report-api/internal/models"
	appErrors "github.com/noah-isme/sma-report-api/pkg/errors"
)

func newMarkFixture(grading gradingTableSource) (*MarkService, *mockMarkStore, *recordingInvalidator) {
	store := &mockMarkStore{}
	inv := &recordingInvalidator{}
	students := newMockStudentRepo(
		models.Student{ID: "s1", ClassID: "c1"},
		models.Student{ID: "s2", ClassID: "c2"},
	)
	return NewMarkService(store, students, grading, inv, nil, nil), store, inv
}

func markRequest(student string) UpsertMarkRequest {
	return UpsertMarkRequest{StudentID: student, SubjectID: "math", TermID: "t1", AcademicYearID: "y1"}
}

func TestMarkUpsertResolvesGradeAndTotal(t *testing.T) {
	svc, store, inv := newMarkFixture(staticGrading{table: NewGradingTable(sampleThresholds())})

	req := markRequest("s1")
	req.Assessment1 = floatPtr(30)
	req.Assessment2 = floatPtr(25.5)
	req.Assessment3 = floatPtr(10)
	mark, err := svc.Upsert(context.Background(), teacherPrincipal, req)
	require.NoError(t, err)

	require.NotNil(t, mark.Total)
	assert.Equal(t, 65.5, *mark.Total)
	require.NotNil(t, mark.Grade)
	assert.Equal(t, "B", *mark.Grade)
	assert.Len(t, store.upserted, 1)
	assert.Equal(t, []classTerm{{"c1", "t1"}}, inv.calls)
}

func TestMarkUpsertPrefersMarkOverTotal(t *testing.T) {
	svc, _, _ := newMarkFixture(staticGrading{table: NewGradingTable(sampleThresholds())})

	req := markRequest("s1")
	req.Mark = floatPtr(85)
	req.Total = floatPtr(50)
	mark, err := svc.Upsert(context.Background(), teacherPrincipal, req)
	require.NoError(t, err)
	assert.Equal(t, "A", *mark.Grade)
	assert.Equal(t, 50.0, *mark.Total)
}

func TestMarkUpsertWithoutThresholdsStoresUngradedMark(t *testing.T) {
	svc, store, _ := newMarkFixture(staticGrading{table: NewGradingTable(nil)})

	req := markRequest("s1")
	req.Mark = floatPtr(70)
	mark, err := svc.Upsert(context.Background(), teacherPrincipal, req)
	require.NoError(t, err)
	assert.Nil(t, mark.Grade)
	assert.Len(t, store.upserted, 1)
}

func TestMarkUpsertRejectsNegativeAndParents(t *testing.T) {
	svc, store, _ := newMarkFixture(staticGrading{table: NewGradingTable(sampleThresholds())})

	req := markRequest("s1")
	req.BOT = floatPtr(-1)
	_, err := svc.Upsert(context.Background(), teacherPrincipal, req)
	assert.True(t, appErrors.IsCode(err, appErrors.ErrValidation.Code))

	_, err = svc.Upsert(context.Background(), parentPrincipal, markRequest("s1"))
	assert.True(t, appErrors.IsCode(err, appErrors.ErrForbidden.Code))
	assert.Empty(t, store.upserted)
}

func TestMarkBulkUpsertPartial(t *testing.T) {
	svc, store, inv := newMarkFixture(staticGrading{table: NewGradingTable(sampleThresholds())})

	ok1 := markRequest("s1")
	ok1.Mark = floatPtr(90)
	ok2 := markRequest("s2")
	ok2.Mark = floatPtr(45)
	result, err := svc.BulkUpsert(context.Background(), teacherPrincipal, BulkMarksRequest{
		Mode:  "partialOnError",
		Items: []UpsertMarkRequest{ok1, markRequest("ghost"), ok2},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Processed)
	assert.Equal(t, 2, result.SuccessCount)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, 1, result.Failures[0].Index)
	assert.Len(t, store.upserted, 2)
	assert.Len(t, inv.calls, 2)
}

func TestMarkBulkAtomicConflict(t *testing.T) {
	svc, store, inv := newMarkFixture(staticGrading{table: NewGradingTable(sampleThresholds())})
	store.bulkErr = &pq.Error{Code: "23505"}

	_, err := svc.BulkUpsert(context.Background(), teacherPrincipal, BulkMarksRequest{
		Mode:  "atomic",
		Items: []UpsertMarkRequest{markRequest("s1"), markRequest("s2")},
	})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrConflict.Code))
	assert.Empty(t, inv.calls)
}

func TestMarkBulkAtomicAbortsOnInvalidItem(t *testing.T) {
	svc, store, _ := newMarkFixture(staticGrading{table: NewGradingTable(sampleThresholds())})

	_, err := svc.BulkUpsert(context.Background(), teacherPrincipal, BulkMarksRequest{
		Mode:  "atomic",
		Items: []UpsertMarkRequest{markRequest("s1"), markRequest("ghost")},
	})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrNotFound.Code))
	assert.Empty(t, store.bulk)
}

func TestMarkBulkAtomicCreatesAll(t *testing.T) {
	svc, store, _ := newMarkFixture(staticGrading{table: NewGradingTable(sampleThresholds())})

	result, err := svc.BulkUpsert(context.Background(), teacherPrincipal, BulkMarksRequest{
		Mode:  "atomic",
		Items: []UpsertMarkRequest{markRequest("s1"), markRequest("s2")},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.SuccessCount)
	assert.Len(t, store.bulk, 2)
}

func TestMarkUpsertUnknownTermIsNotFound(t *testing.T) {
	svc, store, inv := newMarkFixture(staticGrading{table: NewGradingTable(sampleThresholds())})
	store.upsertErr = &pq.Error{Code: "23503"}

	_, err := svc.Upsert(context.Background(), teacherPrincipal, markRequest("s1"))
	assert.True(t, appErrors.IsCode(err, appErrors.ErrNotFound.Code))
	assert.Empty(t, inv.calls)

	result, err := svc.BulkUpsert(context.Background(), teacherPrincipal, BulkMarksRequest{
		Mode:  "partialOnError",
		Items: []UpsertMarkRequest{markRequest("s1")},
	})
	require.NoError(t, err)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "subject, term or academic year not found", result.Failures[0].Reason)
}

func TestMarkBulkAtomicUnknownTermIsNotFound(t *testing.T) {
	svc, store, _ := newMarkFixture(staticGrading{table: NewGradingTable(sampleThresholds())})
	store.bulkErr = &pq.Error{Code: "23503"}

	_, err := svc.BulkUpsert(context.Background(), teacherPrincipal, BulkMarksRequest{
		Mode:  "atomic",
		Items: []UpsertMarkRequest{markRequest("s1")},
	})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrNotFound.Code))
}
