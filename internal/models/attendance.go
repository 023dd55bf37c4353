package models

import "time"

// AttendanceStatus is a student's presence on a school day.
type AttendanceStatus string

const (
	AttendanceStatusPresent AttendanceStatus = "PRESENT"
	AttendanceStatusAbsent  AttendanceStatus = "ABSENT"
	AttendanceStatusLate    AttendanceStatus = "LATE"
	AttendanceStatusExcused AttendanceStatus = "EXCUSED"
)

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendanceStatusPresent, AttendanceStatusAbsent, AttendanceStatusLate, AttendanceStatusExcused:
		return true
	default:
		return false
	}
}

// Attended reports whether the status counts towards the attendance rate.
func (s AttendanceStatus) Attended() bool {
	return s == AttendanceStatusPresent || s == AttendanceStatusLate
}

// DailyAttendance is one student's attendance on one date, keyed by
// (student, date, term).
type DailyAttendance struct {
	ID        string           `db:"id" json:"id"`
	StudentID string           `db:"student_id" json:"student_id"`
	TermID    string           `db:"term_id" json:"term_id"`
	Date      time.Time        `db:"date" json:"date"`
	Status    AttendanceStatus `db:"status" json:"status"`
	Notes     *string          `db:"notes" json:"notes,omitempty"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt time.Time        `db:"updated_at" json:"updated_at"`
}

// DailyAttendanceRecord joins a row with the student's name and class.
type DailyAttendanceRecord struct {
	DailyAttendance
	StudentName string `db:"student_name" json:"student_name"`
	ClassID     string `db:"class_id" json:"class_id"`
}

// DailyAttendanceFilter scopes attendance queries.
type DailyAttendanceFilter struct {
	ClassID   string
	StudentID string
	TermID    string
	Status    *AttendanceStatus
	DateFrom  *time.Time
	DateTo    *time.Time
}

// AttendanceSummary counts a student's days per status within a term.
type AttendanceSummary struct {
	StudentID string  `json:"student_id"`
	TermID    string  `json:"term_id"`
	Present   int     `json:"present"`
	Absent    int     `json:"absent"`
	Late      int     `json:"late"`
	Excused   int     `json:"excused"`
	Total     int     `json:"total"`
	Percent   float64 `json:"percent"`
}
