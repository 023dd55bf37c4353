package service

import (
	"context"
	"database/sql"
	"sort"
	"strconv"
	"time"

	"github.com/lib/pq"

	"github.com/noah-isme/sma-report-api/internal/models"
)

var (
	adminPrincipal       = models.Principal{UserID: "u-admin", Role: models.RoleAdmin}
	headteacherPrincipal = models.Principal{UserID: "u-head", Role: models.RoleHeadteacher}
	teacherPrincipal     = models.Principal{UserID: "u-teacher", Role: models.RoleClassTeacher}
	secretaryPrincipal   = models.Principal{UserID: "u-sec", Role: models.RoleSecretary}
	parentPrincipal      = models.Principal{UserID: "u-parent", Role: models.RoleParent}
)

func floatPtr(v float64) *float64 { return &v }

func gradePtr(g models.PersonalGrade) *models.PersonalGrade { return &g }

func strPtr(s string) *string { return &s }

type mockStudentRepo struct {
	students    map[string]models.Student
	lastFilter  models.StudentFilter
	assignCalls int
	err         error
}

func newMockStudentRepo(students ...models.Student) *mockStudentRepo {
	m := &mockStudentRepo{students: make(map[string]models.Student)}
	for _, s := range students {
		m.students[s.ID] = s
	}
	return m
}

func (m *mockStudentRepo) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, error) {
	m.lastFilter = filter
	if m.err != nil {
		return nil, m.err
	}
	out := make([]models.Student, 0, len(m.students))
	for _, s := range m.students {
		if filter.ClassID != "" && s.ClassID != filter.ClassID {
			continue
		}
		if filter.AcademicYearID != "" && s.AcademicYearID != filter.AcademicYearID {
			continue
		}
		if filter.ParentID != "" && (s.ParentID == nil || *s.ParentID != filter.ParentID) {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockStudentRepo) FindByID(ctx context.Context, id string) (*models.Student, error) {
	if m.err != nil {
		return nil, m.err
	}
	s, ok := m.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &s, nil
}

func (m *mockStudentRepo) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = "generated"
	}
	m.students[student.ID] = *student
	return nil
}

func (m *mockStudentRepo) CountExisting(ctx context.Context, ids []string) (int, error) {
	count := 0
	for _, id := range ids {
		if _, ok := m.students[id]; ok {
			count++
		}
	}
	return count, nil
}

func (m *mockStudentRepo) AssignParent(ctx context.Context, parentID string, studentIDs []string) (int64, error) {
	m.assignCalls++
	wanted := make(map[string]bool, len(studentIDs))
	for _, id := range studentIDs {
		wanted[id] = true
	}
	var changed int64
	for id, s := range m.students {
		linked := s.ParentID != nil && *s.ParentID == parentID
		switch {
		case wanted[id]:
			p := parentID
			s.ParentID = &p
		case linked:
			s.ParentID = nil
		default:
			continue
		}
		m.students[id] = s
		changed++
	}
	return changed, nil
}

// mockReportCardStore enforces the composite key like the database does.
type mockReportCardStore struct {
	cards        map[string]*models.ReportCard
	seq          int
	creates      int
	updates      int
	approvals    int
	accessWrites int
	raceOnCreate bool
	createErr    error
	listFilter   models.ReportCardFilter
	listResult   []models.ReportCard
}

func newMockReportCardStore() *mockReportCardStore {
	return &mockReportCardStore{cards: make(map[string]*models.ReportCard)}
}

func (m *mockReportCardStore) put(card models.ReportCard) {
	c := card
	m.cards[c.ID] = &c
}

func (m *mockReportCardStore) FindByID(ctx context.Context, id string) (*models.ReportCard, error) {
	c, ok := m.cards[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *c
	return &copied, nil
}

func (m *mockReportCardStore) FindByKey(ctx context.Context, key models.ReportCardKey) (*models.ReportCard, error) {
	for _, c := range m.cards {
		if c.Key() == key {
			copied := *c
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockReportCardStore) List(ctx context.Context, filter models.ReportCardFilter) ([]models.ReportCard, error) {
	m.listFilter = filter
	if m.listResult != nil {
		return m.listResult, nil
	}
	out := make([]models.ReportCard, 0, len(m.cards))
	for _, c := range m.cards {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockReportCardStore) Create(ctx context.Context, card *models.ReportCard) error {
	if m.createErr != nil {
		return m.createErr
	}
	if m.raceOnCreate {
		m.raceOnCreate = false
		m.seq++
		winner := models.ReportCard{ID: "rc-race", StudentID: card.StudentID, TermID: card.TermID, AcademicYearID: card.AcademicYearID}
		m.put(winner)
		return &pq.Error{Code: "23505"}
	}
	if _, err := m.FindByKey(ctx, card.Key()); err == nil {
		return &pq.Error{Code: "23505"}
	}
	m.seq++
	m.creates++
	card.ID = "rc-" + strconv.Itoa(m.seq)
	m.put(*card)
	return nil
}

func (m *mockReportCardStore) UpdateAssessment(ctx context.Context, card *models.ReportCard) error {
	existing, err := m.FindByKey(ctx, card.Key())
	if err != nil {
		return err
	}
	m.updates++
	existing.PersonalAssessment = card.PersonalAssessment
	existing.ClassTeacherComment = card.ClassTeacherComment
	m.put(*existing)
	return nil
}

func (m *mockReportCardStore) UpdateApproval(ctx context.Context, id, comment string, approved bool, approvedAt *time.Time) error {
	c, ok := m.cards[id]
	if !ok {
		return sql.ErrNoRows
	}
	m.approvals++
	c.HeadteacherComment = comment
	c.IsApproved = approved
	c.ApprovedAt = approvedAt
	if !approved {
		c.ParentAccessEnabledAt = nil
	}
	return nil
}

func (m *mockReportCardStore) EnableParentAccess(ctx context.Context, id string, at time.Time) (bool, error) {
	c, ok := m.cards[id]
	if !ok {
		return false, sql.ErrNoRows
	}
	if c.ParentAccessEnabledAt != nil {
		return false, nil
	}
	m.accessWrites++
	c.ParentAccessEnabledAt = &at
	return true, nil
}

type mockMarkStore struct {
	marks      []models.Mark
	upserted   []models.Mark
	bulk       []models.Mark
	bulkErr    error
	upsertErr  error
	lastFilter models.MarkFilter
}

func (m *mockMarkStore) List(ctx context.Context, filter models.MarkFilter) ([]models.Mark, error) {
	m.lastFilter = filter
	return m.marks, nil
}

func (m *mockMarkStore) Upsert(ctx context.Context, mark *models.Mark) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	mark.ID = "mark-" + mark.StudentID + "-" + mark.SubjectID
	m.upserted = append(m.upserted, *mark)
	return nil
}

func (m *mockMarkStore) BulkCreate(ctx context.Context, marks []models.Mark) error {
	if m.bulkErr != nil {
		return m.bulkErr
	}
	m.bulk = append(m.bulk, marks...)
	return nil
}

func (m *mockMarkStore) ListSubjectMarks(ctx context.Context, studentID, termID, academicYearID string) ([]models.SubjectMark, error) {
	out := make([]models.SubjectMark, 0, len(m.marks))
	for _, mk := range m.marks {
		if mk.StudentID == studentID {
			out = append(out, models.SubjectMark{Mark: mk, SubjectName: "Subject " + mk.SubjectID, SubjectCode: mk.SubjectID})
		}
	}
	return out, nil
}

type staticGrading struct {
	table *GradingTable
	err   error
}

func (s staticGrading) Table(ctx context.Context) (*GradingTable, error) {
	return s.table, s.err
}

type recordingInvalidator struct {
	calls []classTerm
}

func (r *recordingInvalidator) InvalidateClass(ctx context.Context, classID, termID string) {
	r.calls = append(r.calls, classTerm{classID, termID})
}

type mockUserRepo struct {
	users   map[string]models.User
	created []models.User
	dupe    bool
}

func newMockUserRepo(users ...models.User) *mockUserRepo {
	m := &mockUserRepo{users: make(map[string]models.User)}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &u, nil
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			copied := u
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	out := make([]models.User, 0, len(m.users))
	for _, u := range m.users {
		if filter.Role != "" && u.Role != filter.Role {
			continue
		}
		out = append(out, u)
	}
	return out, len(out), nil
}

func (m *mockUserRepo) Create(ctx context.Context, user *models.User) error {
	if m.dupe {
		return &pq.Error{Code: "23505"}
	}
	user.ID = "user-new"
	m.created = append(m.created, *user)
	m.users[user.ID] = *user
	return nil
}

func sampleThresholds() []models.GradingThreshold {
	return []models.GradingThreshold{
		{Grade: "D", MinMark: 0, MaxMark: 39.99, Comment: "Fail"},
		{Grade: "A", MinMark: 80, MaxMark: 100, Comment: "Excellent"},
		{Grade: "C", MinMark: 40, MaxMark: 59.99, Comment: "Fair"},
		{Grade: "B", MinMark: 60, MaxMark: 79.99, Comment: "Good"},
	}
}
