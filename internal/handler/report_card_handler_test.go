package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-report-api/internal/middleware"
	"github.com/noah-isme/sma-report-api/internal/models"
	"github.com/noah-isme/sma-report-api/internal/service"
	appErrors "github.com/noah-isme/sma-report-api/pkg/errors"
)

type reportCardServiceMock struct {
	card         *models.ReportCard
	cards        []models.ReportCard
	bulk         *service.BulkReportCardResult
	distribution *models.GradeDistribution
	err          error

	lastPrincipal models.Principal
	lastUpsert    service.UpsertReportCardRequest
	lastApprove   service.ApproveReportCardRequest
	lastFilter    models.ReportCardFilter
	lastID        string
	lastTerm      string
	lastYear      string
}

func (m *reportCardServiceMock) Upsert(ctx context.Context, p models.Principal, req service.UpsertReportCardRequest) (*models.ReportCard, error) {
	m.lastPrincipal, m.lastUpsert = p, req
	return m.card, m.err
}

func (m *reportCardServiceMock) BulkUpsert(ctx context.Context, p models.Principal, req service.BulkUpsertReportCardsRequest) (*service.BulkReportCardResult, error) {
	m.lastPrincipal = p
	return m.bulk, m.err
}

func (m *reportCardServiceMock) Approve(ctx context.Context, p models.Principal, id string, req service.ApproveReportCardRequest) (*models.ReportCard, error) {
	m.lastPrincipal, m.lastID, m.lastApprove = p, id, req
	return m.card, m.err
}

func (m *reportCardServiceMock) EnableParentAccess(ctx context.Context, p models.Principal, id string) (*models.ReportCard, error) {
	m.lastPrincipal, m.lastID = p, id
	return m.card, m.err
}

func (m *reportCardServiceMock) ListForParent(ctx context.Context, p models.Principal, termID, academicYearID string) ([]models.ReportCard, error) {
	m.lastPrincipal, m.lastTerm, m.lastYear = p, termID, academicYearID
	return m.cards, m.err
}

func (m *reportCardServiceMock) Get(ctx context.Context, p models.Principal, id string) (*models.ReportCard, error) {
	m.lastPrincipal, m.lastID = p, id
	return m.card, m.err
}

func (m *reportCardServiceMock) List(ctx context.Context, p models.Principal, filter models.ReportCardFilter) ([]models.ReportCard, error) {
	m.lastPrincipal, m.lastFilter = p, filter
	return m.cards, m.err
}

func (m *reportCardServiceMock) GradeDistribution(ctx context.Context, p models.Principal, filter models.ReportCardFilter) (*models.GradeDistribution, error) {
	m.lastPrincipal, m.lastFilter = p, filter
	return m.distribution, m.err
}

type documentRendererMock struct {
	body        []byte
	filename    string
	contentType string
	err         error
	lastFormat  string
}

func (m *documentRendererMock) Render(ctx context.Context, p models.Principal, id, format string) ([]byte, string, string, error) {
	m.lastFormat = format
	return m.body, m.filename, m.contentType, m.err
}

func newGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func withClaims(c *gin.Context, userID string, role models.UserRole) {
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: userID, Role: role})
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, out))
}

func TestReportCardHandlerUpsertPassesPrincipal(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &reportCardServiceMock{card: &models.ReportCard{ID: "rc-1", StudentID: "s-1"}}
	h := NewReportCardHandler(svc, nil)

	payload := []byte(`{"student_id":"s-1","term_id":"t-1","academic_year_id":"y-1","discipline":"A","class_teacher_comment":"steady"}`)
	c, w := newGinContext(http.MethodPut, "/report-cards", payload)
	withClaims(c, "teacher-1", models.RoleClassTeacher)

	h.Upsert(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.Principal{UserID: "teacher-1", Role: models.RoleClassTeacher}, svc.lastPrincipal)
	require.NotNil(t, svc.lastUpsert.Discipline)
	assert.Equal(t, models.PersonalGradeA, *svc.lastUpsert.Discipline)
	assert.Equal(t, "steady", svc.lastUpsert.ClassTeacherComment)

	var card models.ReportCard
	decodeData(t, w, &card)
	assert.Equal(t, "rc-1", card.ID)
}

func TestReportCardHandlerUpsertRejectsMalformedJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &reportCardServiceMock{}
	h := NewReportCardHandler(svc, nil)

	c, w := newGinContext(http.MethodPut, "/report-cards", []byte(`{"student_id":`))
	withClaims(c, "teacher-1", models.RoleClassTeacher)

	h.Upsert(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, svc.lastUpsert.StudentID)
}

func TestReportCardHandlerMapsServiceErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"not found", appErrors.Clone(appErrors.ErrNotFound, "report card not found"), http.StatusNotFound},
		{"not approved", appErrors.ErrNotApproved, appErrors.ErrNotApproved.Status},
		{"no parent", appErrors.ErrNoParent, appErrors.ErrNoParent.Status},
		{"forbidden", appErrors.ErrForbidden, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewReportCardHandler(&reportCardServiceMock{err: tc.err}, nil)
			c, w := newGinContext(http.MethodPost, "/report-cards/rc-1/parent-access", nil)
			c.Params = gin.Params{{Key: "id", Value: "rc-1"}}
			withClaims(c, "admin-1", models.RoleAdmin)

			h.EnableParentAccess(c)
			assert.Equal(t, tc.status, w.Code)
		})
	}
}

func TestReportCardHandlerApproveBindsDecision(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &reportCardServiceMock{card: &models.ReportCard{ID: "rc-1", IsApproved: true}}
	h := NewReportCardHandler(svc, nil)

	c, w := newGinContext(http.MethodPut, "/report-cards/rc-1/approval", []byte(`{"headteacher_comment":"Well done","is_approved":true}`))
	c.Params = gin.Params{{Key: "id", Value: "rc-1"}}
	withClaims(c, "head-1", models.RoleHeadteacher)

	h.Approve(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "rc-1", svc.lastID)
	require.NotNil(t, svc.lastApprove.IsApproved)
	assert.True(t, *svc.lastApprove.IsApproved)
	assert.Equal(t, "Well done", svc.lastApprove.HeadteacherComment)
}

func TestReportCardHandlerListParsesFilter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &reportCardServiceMock{cards: []models.ReportCard{{ID: "rc-1"}}}
	h := NewReportCardHandler(svc, nil)

	c, w := newGinContext(http.MethodGet, "/report-cards?classId=c-1&termId=t-1&academicYearId=y-1&approved=false", nil)
	withClaims(c, "sec-1", models.RoleSecretary)

	h.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "c-1", svc.lastFilter.ClassID)
	assert.Equal(t, "t-1", svc.lastFilter.TermID)
	assert.Equal(t, "y-1", svc.lastFilter.AcademicYearID)
	require.NotNil(t, svc.lastFilter.Approved)
	assert.False(t, *svc.lastFilter.Approved)
}

func TestReportCardHandlerParentList(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &reportCardServiceMock{cards: []models.ReportCard{{ID: "rc-9"}}}
	h := NewReportCardHandler(svc, nil)

	c, w := newGinContext(http.MethodGet, "/parent/report-cards?termId=t-2", nil)
	withClaims(c, "parent-1", models.RoleParent)

	h.ParentList(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "parent-1", svc.lastPrincipal.UserID)
	assert.Equal(t, "t-2", svc.lastTerm)
	assert.Empty(t, svc.lastYear)

	var cards []models.ReportCard
	decodeData(t, w, &cards)
	require.Len(t, cards, 1)
	assert.Equal(t, "rc-9", cards[0].ID)
}

func TestReportCardHandlerDocumentStreamsAttachment(t *testing.T) {
	gin.SetMode(gin.TestMode)
	docs := &documentRendererMock{body: []byte("a,b\n"), filename: "report_card_jane_t-1.csv", contentType: "text/csv"}
	h := NewReportCardHandler(&reportCardServiceMock{}, docs)

	c, w := newGinContext(http.MethodGet, "/report-cards/rc-1/document?format=csv", nil)
	c.Params = gin.Params{{Key: "id", Value: "rc-1"}}
	withClaims(c, "head-1", models.RoleHeadteacher)

	h.Document(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "csv", docs.lastFormat)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "report_card_jane_t-1.csv")
	assert.Equal(t, "a,b\n", w.Body.String())
}

func TestReportCardHandlerDocumentDefaultsToPDF(t *testing.T) {
	gin.SetMode(gin.TestMode)
	docs := &documentRendererMock{body: []byte("%PDF"), filename: "x.pdf", contentType: "application/pdf"}
	h := NewReportCardHandler(&reportCardServiceMock{}, docs)

	c, w := newGinContext(http.MethodGet, "/report-cards/rc-1/document", nil)
	c.Params = gin.Params{{Key: "id", Value: "rc-1"}}
	withClaims(c, "head-1", models.RoleHeadteacher)

	h.Document(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pdf", docs.lastFormat)
}
