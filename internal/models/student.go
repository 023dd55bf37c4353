package models

import "time"

// Student represents a learner registered under a class, term and academic year.
type Student struct {
	ID             string     `db:"id" json:"id"`
	Name           string     `db:"name" json:"name"`
	Gender         string     `db:"gender" json:"gender"`
	DateOfBirth    *time.Time `db:"date_of_birth" json:"date_of_birth,omitempty"`
	ClassID        string     `db:"class_id" json:"class_id"`
	TermID         string     `db:"term_id" json:"term_id"`
	AcademicYearID string     `db:"academic_year_id" json:"academic_year_id"`
	ParentID       *string    `db:"parent_id" json:"parent_id,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	ClassID        string
	TermID         string
	AcademicYearID string
	ParentID       string
}
