package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-report-api/internal/models"
	appErrors "github.com/noah-isme/sma-report-api/pkg/errors"
)

type mockClassRepo struct {
	classes map[string]*models.Class
}

func (m *mockClassRepo) List(ctx context.Context, filter models.ClassFilter) ([]models.Class, error) {
	out := make([]models.Class, 0, len(m.classes))
	for _, c := range m.classes {
		out = append(out, *c)
	}
	return out, nil
}

func (m *mockClassRepo) FindByID(ctx context.Context, id string) (*models.Class, error) {
	c, ok := m.classes[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *c
	return &copied, nil
}

func (m *mockClassRepo) Create(ctx context.Context, class *models.Class) error {
	class.ID = "c-new"
	copied := *class
	m.classes[class.ID] = &copied
	return nil
}

func (m *mockClassRepo) AssignClassTeacher(ctx context.Context, classID, teacherID string) error {
	if _, ok := m.classes[classID]; !ok {
		return sql.ErrNoRows
	}
	for id, c := range m.classes {
		switch {
		case id == classID:
			t := teacherID
			c.ClassTeacherID = &t
		case c.ClassTeacherID != nil && *c.ClassTeacherID == teacherID:
			c.ClassTeacherID = nil
		}
	}
	return nil
}

type mockSubjectRepo struct {
	subjects []models.Subject
}

func (m *mockSubjectRepo) ListByClass(ctx context.Context, classID string) ([]models.Subject, error) {
	out := make([]models.Subject, 0)
	for _, s := range m.subjects {
		if s.ClassID == classID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockSubjectRepo) Create(ctx context.Context, subject *models.Subject) error {
	subject.ID = "sub-" + subject.Code
	m.subjects = append(m.subjects, *subject)
	return nil
}

func newClassFixture() (*ClassService, *mockClassRepo) {
	classes := &mockClassRepo{classes: map[string]*models.Class{
		"c1": {ID: "c1", Name: "Form 1A", AcademicYearID: "y1", ClassTeacherID: strPtr("t1")},
		"c2": {ID: "c2", Name: "Form 1B", AcademicYearID: "y1"},
	}}
	users := newMockUserRepo(
		models.User{ID: "t1", Role: models.RoleClassTeacher},
		models.User{ID: "p1", Role: models.RoleParent},
	)
	return NewClassService(classes, &mockSubjectRepo{}, stubYearFinder{}, users, nil, nil), classes
}

func TestAssignClassTeacherMovesTeacher(t *testing.T) {
	svc, classes := newClassFixture()

	class, err := svc.AssignClassTeacher(context.Background(), headteacherPrincipal, "c2", AssignClassTeacherRequest{TeacherID: "t1"})
	require.NoError(t, err)
	assert.Equal(t, "t1", *class.ClassTeacherID)
	assert.Nil(t, classes.classes["c1"].ClassTeacherID)
}

func TestAssignClassTeacherValidation(t *testing.T) {
	svc, _ := newClassFixture()
	ctx := context.Background()

	_, err := svc.AssignClassTeacher(ctx, adminPrincipal, "c2", AssignClassTeacherRequest{TeacherID: "p1"})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrValidation.Code))

	_, err = svc.AssignClassTeacher(ctx, adminPrincipal, "missing", AssignClassTeacherRequest{TeacherID: "t1"})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrNotFound.Code))

	_, err = svc.AssignClassTeacher(ctx, teacherPrincipal, "c2", AssignClassTeacherRequest{TeacherID: "t1"})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrForbidden.Code))
}

func TestClassCreateAndSubjects(t *testing.T) {
	svc, _ := newClassFixture()
	ctx := context.Background()

	_, err := svc.Create(ctx, adminPrincipal, CreateClassRequest{Name: "Form 2A", AcademicYearID: "unknown"})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrNotFound.Code))

	class, err := svc.Create(ctx, adminPrincipal, CreateClassRequest{Name: "Form 2A", AcademicYearID: "y1"})
	require.NoError(t, err)

	_, err = svc.CreateSubject(ctx, adminPrincipal, class.ID, CreateSubjectRequest{Name: "Mathematics", Code: "MTH"})
	require.NoError(t, err)
	subjects, err := svc.ListSubjects(ctx, teacherPrincipal, class.ID)
	require.NoError(t, err)
	require.Len(t, subjects, 1)
	assert.Equal(t, "MTH", subjects[0].Code)
}
