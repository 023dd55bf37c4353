package service

import (
	"context"
	"errors"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-report-api/internal/models"
	appErrors "github.com/noah-isme/sma-report-api/pkg/errors"
)

// mockAttendanceStore keeps one row per (student, date, term) like the table.
type mockAttendanceStore struct {
	rows       map[string]models.DailyAttendance
	lastFilter models.DailyAttendanceFilter
	bulkCalls  int
	upsertErr  map[string]error
	bulkErr    error
	summary    *models.AttendanceSummary
}

func newMockAttendanceStore() *mockAttendanceStore {
	return &mockAttendanceStore{rows: make(map[string]models.DailyAttendance), upsertErr: make(map[string]error)}
}

func attendanceKey(r models.DailyAttendance) string {
	return r.StudentID + "|" + r.Date.Format(attendanceDateLayout) + "|" + r.TermID
}

func (m *mockAttendanceStore) List(ctx context.Context, filter models.DailyAttendanceFilter) ([]models.DailyAttendanceRecord, error) {
	m.lastFilter = filter
	var out []models.DailyAttendanceRecord
	for _, r := range m.rows {
		out = append(out, models.DailyAttendanceRecord{DailyAttendance: r})
	}
	return out, nil
}

func (m *mockAttendanceStore) Upsert(ctx context.Context, record *models.DailyAttendance) error {
	if err := m.upsertErr[record.StudentID]; err != nil {
		return err
	}
	if prev, ok := m.rows[attendanceKey(*record)]; ok {
		record.ID = prev.ID
	} else if record.ID == "" {
		record.ID = "att-" + record.StudentID
	}
	m.rows[attendanceKey(*record)] = *record
	return nil
}

func (m *mockAttendanceStore) BulkUpsert(ctx context.Context, records []models.DailyAttendance) error {
	m.bulkCalls++
	if m.bulkErr != nil {
		return m.bulkErr
	}
	for i := range records {
		if err := m.Upsert(ctx, &records[i]); err != nil {
			return err
		}
	}
	return nil
}

func (m *mockAttendanceStore) Summary(ctx context.Context, studentID, termID string) (*models.AttendanceSummary, error) {
	return m.summary, nil
}

func newAttendanceFixture() (*AttendanceService, *mockAttendanceStore) {
	students := newMockStudentRepo(
		models.Student{ID: "s1", Name: "Amina", ClassID: "c1"},
		models.Student{ID: "s2", Name: "Brian", ClassID: "c1"},
	)
	store := newMockAttendanceStore()
	return NewAttendanceService(store, students, nil, nil), store
}

func TestAttendanceMarkReplacesSameDay(t *testing.T) {
	svc, store := newAttendanceFixture()
	ctx := context.Background()

	first, err := svc.Mark(ctx, teacherPrincipal, MarkAttendanceRequest{StudentID: "s1", TermID: "t1", Date: "2026-03-02", Status: "ABSENT"})
	require.NoError(t, err)
	second, err := svc.Mark(ctx, teacherPrincipal, MarkAttendanceRequest{StudentID: "s1", TermID: "t1", Date: "2026-03-02", Status: "LATE", Notes: strPtr("  bus  ")})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, store.rows, 1)
	assert.Equal(t, models.AttendanceStatusLate, second.Status)
	require.NotNil(t, second.Notes)
	assert.Equal(t, "bus", *second.Notes)
}

func TestAttendanceMarkRejectsBadInput(t *testing.T) {
	svc, _ := newAttendanceFixture()
	ctx := context.Background()

	_, err := svc.Mark(ctx, teacherPrincipal, MarkAttendanceRequest{StudentID: "s1", TermID: "t1", Date: "02/03/2026", Status: "PRESENT"})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrValidation.Code))

	_, err = svc.Mark(ctx, teacherPrincipal, MarkAttendanceRequest{StudentID: "s1", TermID: "t1", Date: "2026-03-02", Status: "SICK"})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrValidation.Code))

	_, err = svc.Mark(ctx, teacherPrincipal, MarkAttendanceRequest{StudentID: "ghost", TermID: "t1", Date: "2026-03-02", Status: "PRESENT"})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrNotFound.Code))

	_, err = svc.Mark(ctx, secretaryPrincipal, MarkAttendanceRequest{StudentID: "s1", TermID: "t1", Date: "2026-03-02", Status: "PRESENT"})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrForbidden.Code))
}

func TestAttendanceMarkUnknownTermIsNotFound(t *testing.T) {
	svc, store := newAttendanceFixture()
	store.upsertErr["s1"] = &pq.Error{Code: "23503"}

	_, err := svc.Mark(context.Background(), teacherPrincipal, MarkAttendanceRequest{StudentID: "s1", TermID: "missing", Date: "2026-03-02", Status: "PRESENT"})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrNotFound.Code))
}

func TestAttendanceBulkMarkAtomic(t *testing.T) {
	svc, store := newAttendanceFixture()
	req := BulkAttendanceRequest{TermID: "t1", Date: "2026-03-02", Mode: "atomic", Items: []BulkAttendanceItem{
		{StudentID: "s1", Status: "PRESENT"},
		{StudentID: "s2", Status: "EXCUSED"},
	}}

	result, err := svc.BulkMark(context.Background(), teacherPrincipal, req)
	require.NoError(t, err)
	assert.Equal(t, 2, result.SuccessCount)
	assert.Equal(t, 1, store.bulkCalls)
	assert.Len(t, store.rows, 2)

	req.Items = append(req.Items, BulkAttendanceItem{StudentID: "ghost", Status: "ABSENT"})
	_, err = svc.BulkMark(context.Background(), teacherPrincipal, req)
	assert.True(t, appErrors.IsCode(err, appErrors.ErrNotFound.Code))
	assert.Equal(t, 1, store.bulkCalls, "unknown student stops the register before any write")

	store.bulkErr = errors.New("connection reset")
	req.Items = req.Items[:2]
	_, err = svc.BulkMark(context.Background(), teacherPrincipal, req)
	assert.True(t, appErrors.IsCode(err, appErrors.ErrInternal.Code))
}

func TestAttendanceBulkMarkPartialCollectsFailures(t *testing.T) {
	svc, store := newAttendanceFixture()
	req := BulkAttendanceRequest{TermID: "t1", Date: "2026-03-02", Mode: "partialOnError", Items: []BulkAttendanceItem{
		{StudentID: "s1", Status: "PRESENT"},
		{StudentID: "ghost", Status: "ABSENT"},
		{StudentID: "s2", Status: "LATE"},
	}}

	result, err := svc.BulkMark(context.Background(), teacherPrincipal, req)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Processed)
	assert.Equal(t, 2, result.SuccessCount)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, 1, result.Failures[0].Index)
	assert.Equal(t, "student not found", result.Failures[0].Reason)
	assert.Len(t, store.rows, 2)
}

func TestAttendanceBulkMarkRejectsDuplicateStudent(t *testing.T) {
	svc, store := newAttendanceFixture()
	req := BulkAttendanceRequest{TermID: "t1", Date: "2026-03-02", Items: []BulkAttendanceItem{
		{StudentID: "s1", Status: "PRESENT"},
		{StudentID: "s1", Status: "ABSENT"},
	}}

	_, err := svc.BulkMark(context.Background(), teacherPrincipal, req)
	assert.True(t, appErrors.IsCode(err, appErrors.ErrConflict.Code))
	assert.Empty(t, store.rows)
}

func TestAttendanceListParsesFilter(t *testing.T) {
	svc, store := newAttendanceFixture()

	_, err := svc.List(context.Background(), secretaryPrincipal, AttendanceListRequest{ClassID: "c1", TermID: "t1", Status: "ABSENT", DateFrom: "2026-03-01", DateTo: "2026-03-31"})
	require.NoError(t, err)
	assert.Equal(t, "c1", store.lastFilter.ClassID)
	require.NotNil(t, store.lastFilter.Status)
	assert.Equal(t, models.AttendanceStatusAbsent, *store.lastFilter.Status)
	require.NotNil(t, store.lastFilter.DateTo)
	assert.Equal(t, 31, store.lastFilter.DateTo.Day())

	_, err = svc.List(context.Background(), secretaryPrincipal, AttendanceListRequest{DateFrom: "2026-03-31", DateTo: "2026-03-01"})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrValidation.Code))

	_, err = svc.List(context.Background(), parentPrincipal, AttendanceListRequest{})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrForbidden.Code))
}

func TestAttendanceSummary(t *testing.T) {
	svc, store := newAttendanceFixture()
	store.summary = &models.AttendanceSummary{StudentID: "s1", TermID: "t1", Present: 9, Absent: 1, Total: 10, Percent: 90}

	summary, err := svc.Summary(context.Background(), headteacherPrincipal, "s1", "t1")
	require.NoError(t, err)
	assert.Equal(t, 90.0, summary.Percent)

	_, err = svc.Summary(context.Background(), headteacherPrincipal, "s1", "")
	assert.True(t, appErrors.IsCode(err, appErrors.ErrValidation.Code))

	_, err = svc.Summary(context.Background(), headteacherPrincipal, "ghost", "t1")
	assert.True(t, appErrors.IsCode(err, appErrors.ErrNotFound.Code))
}
