package models

import "time"

// ExamType identifies the exam sitting whose marks are aggregated.
type ExamType string

const (
	ExamTypeBOT ExamType = "BOT"
	ExamTypeMID ExamType = "MID"
	ExamTypeEND ExamType = "END"
)

// Valid reports whether e is a known exam sitting.
func (e ExamType) Valid() bool {
	switch e {
	case ExamTypeBOT, ExamTypeMID, ExamTypeEND:
		return true
	}
	return false
}

// Mark holds a student's per-subject marks for a term. Mark is the newer
// single-value field; Total is the legacy computed field. Both may be set.
type Mark struct {
	ID             string    `db:"id" json:"id"`
	StudentID      string    `db:"student_id" json:"student_id"`
	SubjectID      string    `db:"subject_id" json:"subject_id"`
	TermID         string    `db:"term_id" json:"term_id"`
	AcademicYearID string    `db:"academic_year_id" json:"academic_year_id"`
	Assessment1    *float64  `db:"assessment1" json:"assessment1,omitempty"`
	Assessment2    *float64  `db:"assessment2" json:"assessment2,omitempty"`
	Assessment3    *float64  `db:"assessment3" json:"assessment3,omitempty"`
	BOT            *float64  `db:"bot" json:"bot,omitempty"`
	EOT            *float64  `db:"eot" json:"eot,omitempty"`
	Mark           *float64  `db:"mark" json:"mark,omitempty"`
	Total          *float64  `db:"total" json:"total,omitempty"`
	Grade          *string   `db:"grade" json:"grade,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// ScoreFor returns the value aggregated for the given exam sitting: BOT reads
// bot, END reads eot and MID reads total, falling back to mark.
func (m Mark) ScoreFor(examType ExamType) (float64, bool) {
	var v *float64
	switch examType {
	case ExamTypeBOT:
		v = m.BOT
	case ExamTypeEND:
		v = m.EOT
	case ExamTypeMID:
		v = m.Total
		if v == nil {
			v = m.Mark
		}
	}
	if v == nil {
		return 0, false
	}
	return *v, true
}

// MarkFilter scopes mark queries.
type MarkFilter struct {
	ClassID        string
	StudentID      string
	SubjectID      string
	TermID         string
	AcademicYearID string
}

// SubjectMark is a mark joined with its subject for report documents.
type SubjectMark struct {
	Mark
	SubjectName string `db:"subject_name" json:"subject_name"`
	SubjectCode string `db:"subject_code" json:"subject_code"`
}
