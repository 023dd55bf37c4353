package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-report-api/internal/models"
	appErrors "github.com/noah-isme/sma-report-api/pkg/errors"
	"github.com/noah-isme/sma-report-api/pkg/export"
)

// Document formats.
const (
	FormatPDF = "pdf"
	FormatCSV = "csv"
)

type reportCardFinder interface {
	FindByID(ctx context.Context, id string) (*models.ReportCard, error)
}

type subjectMarkReader interface {
	ListSubjectMarks(ctx context.Context, studentID, termID, academicYearID string) ([]models.SubjectMark, error)
}

type termFinder interface {
	FindByID(ctx context.Context, id string) (*models.Term, error)
}

type academicYearFinder interface {
	FindByID(ctx context.Context, id string) (*models.AcademicYear, error)
}

type gradingTableSource interface {
	Table(ctx context.Context) (*GradingTable, error)
}

type documentRenderer interface {
	RenderDocument(doc export.Document) ([]byte, error)
}

// GradedMark is a subject mark with the grade resolved against the current table.
type GradedMark struct {
	models.SubjectMark
	Score         *float64 `json:"score,omitempty"`
	ResolvedGrade string   `json:"resolved_grade"`
	GradeComment  string   `json:"grade_comment,omitempty"`
}

// ReportCardAggregate is the complete input for a printable report card.
type ReportCardAggregate struct {
	ReportCard   models.ReportCard         `json:"report_card"`
	Student      models.Student            `json:"student"`
	Term         *models.Term              `json:"term,omitempty"`
	AcademicYear *models.AcademicYear      `json:"academic_year,omitempty"`
	Marks        []GradedMark              `json:"marks"`
	GradingBands []models.GradingThreshold `json:"grading_bands"`
}

// ReportDocumentService assembles and renders report card documents.
type ReportDocumentService struct {
	cards      reportCardFinder
	students   studentFinder
	marks      subjectMarkReader
	terms      termFinder
	years      academicYearFinder
	grading    gradingTableSource
	pdf        documentRenderer
	csv        documentRenderer
	schoolName string
	logger     *zap.Logger
}

// NewReportDocumentService constructs a ReportDocumentService.
func NewReportDocumentService(cards reportCardFinder, students studentFinder, marks subjectMarkReader, terms termFinder, years academicYearFinder, grading gradingTableSource, schoolName string, logger *zap.Logger) *ReportDocumentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportDocumentService{
		cards:      cards,
		students:   students,
		marks:      marks,
		terms:      terms,
		years:      years,
		grading:    grading,
		pdf:        export.NewPDFExporter(),
		csv:        export.NewCSVExporter(),
		schoolName: schoolName,
		logger:     logger,
	}
}

// Aggregate loads the report card with its student, marks and grading bands.
// Parents only reach cards of their own children that are open to them.
func (s *ReportDocumentService) Aggregate(ctx context.Context, principal models.Principal, id string) (*ReportCardAggregate, error) {
	if err := Authorize(principal, OpReportCardDocument); err != nil {
		return nil, err
	}
	card, err := s.cards.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report card not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report card")
	}
	student, err := s.students.FindByID(ctx, card.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if principal.Role == models.RoleParent {
		if student.ParentID == nil || *student.ParentID != principal.UserID || !card.ParentVisible() {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report card not found")
		}
	}
	card.HeadteacherComment, _ = models.StripAccessMarkers(card.HeadteacherComment)

	marks, err := s.marks.ListSubjectMarks(ctx, card.StudentID, card.TermID, card.AcademicYearID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load marks")
	}
	table, err := s.grading.Table(ctx)
	if err != nil {
		return nil, err
	}

	agg := &ReportCardAggregate{
		ReportCard:   *card,
		Student:      *student,
		Marks:        make([]GradedMark, 0, len(marks)),
		GradingBands: table.Bands(),
	}
	if term, err := s.terms.FindByID(ctx, card.TermID); err == nil {
		agg.Term = term
	} else if !errors.Is(err, sql.ErrNoRows) {
		s.logger.Warn("report document without term", zap.String("term_id", card.TermID), zap.Error(err))
	}
	if year, err := s.years.FindByID(ctx, card.AcademicYearID); err == nil {
		agg.AcademicYear = year
	} else if !errors.Is(err, sql.ErrNoRows) {
		s.logger.Warn("report document without academic year", zap.String("academic_year_id", card.AcademicYearID), zap.Error(err))
	}

	for _, m := range marks {
		graded := GradedMark{SubjectMark: m}
		if score, ok := documentScore(m.Mark); ok {
			graded.Score = &score
			band, err := table.Lookup(score)
			switch {
			case err == nil:
				graded.ResolvedGrade = band.Grade
				graded.GradeComment = band.Comment
			case appErrors.IsCode(err, appErrors.ErrNotConfigured.Code) && m.Grade != nil:
				graded.ResolvedGrade = *m.Grade
			default:
				graded.ResolvedGrade = models.GradeUngraded
			}
		} else if m.Grade != nil {
			graded.ResolvedGrade = *m.Grade
		}
		agg.Marks = append(agg.Marks, graded)
	}
	return agg, nil
}

// documentScore picks the printed score: total, then mark, then end-of-term.
func documentScore(m models.Mark) (float64, bool) {
	for _, v := range []*float64{m.Total, m.Mark, m.EOT} {
		if v != nil {
			return *v, true
		}
	}
	return 0, false
}

// Render produces the report card document in the requested format.
func (s *ReportDocumentService) Render(ctx context.Context, principal models.Principal, id, format string) ([]byte, string, string, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = FormatPDF
	}
	var renderer documentRenderer
	var contentType string
	switch format {
	case FormatPDF:
		renderer, contentType = s.pdf, "application/pdf"
	case FormatCSV:
		renderer, contentType = s.csv, "text/csv"
	default:
		return nil, "", "", appErrors.Clone(appErrors.ErrValidation, "format must be pdf or csv")
	}

	agg, err := s.Aggregate(ctx, principal, id)
	if err != nil {
		return nil, "", "", err
	}
	body, err := renderer.RenderDocument(s.buildDocument(agg))
	if err != nil {
		return nil, "", "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render report card")
	}
	filename := fmt.Sprintf("report_card_%s_%s.%s", slug(agg.Student.Name), agg.ReportCard.TermID, format)
	return body, filename, contentType, nil
}

func (s *ReportDocumentService) buildDocument(agg *ReportCardAggregate) export.Document {
	card := agg.ReportCard
	doc := export.Document{Title: "Report Card"}
	if s.schoolName != "" {
		doc.Title = s.schoolName + " Report Card"
	}
	var period []string
	if agg.Term != nil {
		period = append(period, agg.Term.Name)
	}
	if agg.AcademicYear != nil {
		period = append(period, agg.AcademicYear.Year)
	}
	doc.Subtitle = strings.Join(period, " / ")

	student := export.Section{Heading: "Student", Fields: []export.Field{
		{Label: "Name", Value: agg.Student.Name},
		{Label: "Gender", Value: agg.Student.Gender},
	}}
	if agg.Student.DateOfBirth != nil {
		student.Fields = append(student.Fields, export.Field{Label: "Date of birth", Value: agg.Student.DateOfBirth.Format("2006-01-02")})
	}

	marks := export.Dataset{Headers: []string{"Code", "Subject", "BOT", "EOT", "Score", "Grade", "Remark"}}
	for _, m := range agg.Marks {
		marks.Rows = append(marks.Rows, map[string]string{
			"Code":    m.SubjectCode,
			"Subject": m.SubjectName,
			"BOT":     formatScore(m.BOT),
			"EOT":     formatScore(m.EOT),
			"Score":   formatScore(m.Score),
			"Grade":   m.ResolvedGrade,
			"Remark":  m.GradeComment,
		})
	}

	p := card.PersonalAssessment
	personal := export.Section{Heading: "Personal Assessment", Fields: []export.Field{
		{Label: "Discipline", Value: gradeText(p.Discipline)},
		{Label: "Cleanliness", Value: gradeText(p.Cleanliness)},
		{Label: "Class work presentation", Value: gradeText(p.ClassWorkPresentation)},
		{Label: "Adherence to school", Value: gradeText(p.AdherenceToSchool)},
		{Label: "Co-curricular activities", Value: gradeText(p.CoCurricularActivities)},
		{Label: "Consideration to others", Value: gradeText(p.ConsiderationToOthers)},
		{Label: "Speaking English", Value: gradeText(p.SpeakingEnglish)},
	}}

	approval := "Pending"
	if card.IsApproved && card.ApprovedAt != nil {
		approval = "Approved " + card.ApprovedAt.Format(time.DateOnly)
	} else if card.IsApproved {
		approval = "Approved"
	}
	comments := export.Section{Heading: "Comments", Fields: []export.Field{
		{Label: "Class teacher", Value: card.ClassTeacherComment},
		{Label: "Headteacher", Value: card.HeadteacherComment},
		{Label: "Status", Value: approval},
	}}

	bands := export.Dataset{Headers: []string{"Grade", "Range", "Comment"}}
	for _, b := range agg.GradingBands {
		bands.Rows = append(bands.Rows, map[string]string{
			"Grade":   b.Grade,
			"Range":   strconv.FormatFloat(b.MinMark, 'f', -1, 64) + " - " + strconv.FormatFloat(b.MaxMark, 'f', -1, 64),
			"Comment": b.Comment,
		})
	}

	doc.Sections = []export.Section{
		student,
		{Heading: "Subjects", Table: &marks},
		personal,
		comments,
		{Heading: "Grading", Table: &bands},
	}
	return doc
}

func formatScore(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func gradeText(g *models.PersonalGrade) string {
	if g == nil {
		return "-"
	}
	return string(*g)
}

func slug(name string) string {
	fields := strings.Fields(strings.ToLower(name))
	if len(fields) == 0 {
		return "student"
	}
	return strings.Join(fields, "_")
}
