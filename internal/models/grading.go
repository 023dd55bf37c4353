package models

import "time"

// GradeUngraded is returned for marks that fall outside every configured band.
const GradeUngraded = "UNGRADED"

// GradingThreshold maps a [MinMark, MaxMark] range onto a letter grade.
type GradingThreshold struct {
	ID        string    `db:"id" json:"id"`
	Grade     string    `db:"grade" json:"grade"`
	MinMark   float64   `db:"min_mark" json:"min_mark"`
	MaxMark   float64   `db:"max_mark" json:"max_mark"`
	Comment   string    `db:"comment" json:"comment"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
