package models

import (
	"regexp"
	"strings"
	"time"
)

// PersonalGrade is a personal-assessment grade letter.
type PersonalGrade string

const (
	PersonalGradeA PersonalGrade = "A"
	PersonalGradeB PersonalGrade = "B"
	PersonalGradeC PersonalGrade = "C"
	PersonalGradeD PersonalGrade = "D"
)

// PersonalGrades lists the recognised personal-assessment grades in display order.
var PersonalGrades = []PersonalGrade{PersonalGradeA, PersonalGradeB, PersonalGradeC, PersonalGradeD}

// Recognised reports whether g is one of the personal-assessment grades.
func (g PersonalGrade) Recognised() bool {
	switch g {
	case PersonalGradeA, PersonalGradeB, PersonalGradeC, PersonalGradeD:
		return true
	}
	return false
}

// PersonalAssessment holds the seven personal-assessment grades of a report card.
type PersonalAssessment struct {
	Discipline             *PersonalGrade `db:"discipline" json:"discipline" validate:"omitempty,oneof=A B C D"`
	Cleanliness            *PersonalGrade `db:"cleanliness" json:"cleanliness" validate:"omitempty,oneof=A B C D"`
	ClassWorkPresentation  *PersonalGrade `db:"class_work_presentation" json:"class_work_presentation" validate:"omitempty,oneof=A B C D"`
	AdherenceToSchool      *PersonalGrade `db:"adherence_to_school" json:"adherence_to_school" validate:"omitempty,oneof=A B C D"`
	CoCurricularActivities *PersonalGrade `db:"co_curricular_activities" json:"co_curricular_activities" validate:"omitempty,oneof=A B C D"`
	ConsiderationToOthers  *PersonalGrade `db:"consideration_to_others" json:"consideration_to_others" validate:"omitempty,oneof=A B C D"`
	SpeakingEnglish        *PersonalGrade `db:"speaking_english" json:"speaking_english" validate:"omitempty,oneof=A B C D"`
}

// Fields returns the seven grades in a fixed order.
func (p PersonalAssessment) Fields() []*PersonalGrade {
	return []*PersonalGrade{
		p.Discipline,
		p.Cleanliness,
		p.ClassWorkPresentation,
		p.AdherenceToSchool,
		p.CoCurricularActivities,
		p.ConsiderationToOthers,
		p.SpeakingEnglish,
	}
}

// ReportCard is a per-student, per-term personal assessment with comments.
type ReportCard struct {
	ID             string `db:"id" json:"id"`
	StudentID      string `db:"student_id" json:"student_id"`
	TermID         string `db:"term_id" json:"term_id"`
	AcademicYearID string `db:"academic_year_id" json:"academic_year_id"`
	PersonalAssessment
	ClassTeacherComment   string     `db:"class_teacher_comment" json:"class_teacher_comment"`
	HeadteacherComment    string     `db:"headteacher_comment" json:"headteacher_comment"`
	IsApproved            bool       `db:"is_approved" json:"is_approved"`
	ApprovedAt            *time.Time `db:"approved_at" json:"approved_at,omitempty"`
	ParentAccessEnabledAt *time.Time `db:"parent_access_enabled_at" json:"parent_access_enabled_at,omitempty"`
	CreatedAt             time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time  `db:"updated_at" json:"updated_at"`
}

// ParentVisible reports whether a parent may read the card.
func (r *ReportCard) ParentVisible() bool {
	return r != nil && r.IsApproved && r.ParentAccessEnabledAt != nil
}

// ReportCardFilter scopes report card listings.
type ReportCardFilter struct {
	ClassID        string
	StudentID      string
	TermID         string
	AcademicYearID string
	ParentID       string
	Approved       *bool
}

// ReportCardKey is the composite identity of a report card.
type ReportCardKey struct {
	StudentID      string
	TermID         string
	AcademicYearID string
}

// Key returns the composite identity of r.
func (r *ReportCard) Key() ReportCardKey {
	return ReportCardKey{StudentID: r.StudentID, TermID: r.TermID, AcademicYearID: r.AcademicYearID}
}

// GradeDistribution tallies personal-assessment grades across a cohort.
type GradeDistribution struct {
	Counts      map[PersonalGrade]int     `json:"counts"`
	Total       int                       `json:"total"`
	CohortSize  int                       `json:"cohort_size"`
	Unrecorded  int                       `json:"unrecorded"`
	Percentages map[PersonalGrade]float64 `json:"percentages"`
}

// legacyAccessMarker matches a closed marker, or an unterminated one up to the
// next whitespace.
var legacyAccessMarker = regexp.MustCompile(`\s*\[PARENT_ACCESS_ENABLED:(?:([^\]]*)\]|(\S*))`)

// StripAccessMarkers removes every legacy parent-access marker from comment and
// returns the earliest timestamp found among them.
func StripAccessMarkers(comment string) (string, *time.Time) {
	matches := legacyAccessMarker.FindAllStringSubmatch(comment, -1)
	if len(matches) == 0 {
		return comment, nil
	}
	var earliest *time.Time
	for _, match := range matches {
		ts, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(match[1]+match[2]))
		if err != nil {
			continue
		}
		ts = ts.UTC()
		if earliest == nil || ts.Before(*earliest) {
			earliest = &ts
		}
	}
	return strings.TrimSpace(legacyAccessMarker.ReplaceAllString(comment, "")), earliest
}
