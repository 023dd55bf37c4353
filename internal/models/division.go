package models

// DivisionUnclassified marks an aggregate that matched no division band.
const DivisionUnclassified = 0

// DivisionScope identifies the cohort and sitting a division run covers.
type DivisionScope struct {
	ClassID        string   `json:"class_id" form:"classId" validate:"required"`
	TermID         string   `json:"term_id" form:"termId" validate:"required"`
	ExamType       ExamType `json:"exam_type" form:"examType" validate:"required,oneof=BOT MID END"`
	AcademicYearID string   `json:"academic_year_id" form:"academicYearId" validate:"required"`
}

// DivisionAssignment is one student's aggregate, rank and division tier.
type DivisionAssignment struct {
	StudentID    string  `json:"student_id"`
	Aggregate    float64 `json:"aggregate"`
	SubjectCount int     `json:"subject_count"`
	Position     int     `json:"position"`
	Division     int     `json:"division"`
}

// DivisionResult maps student IDs to their division assignment. Students with
// no marks for the sitting appear only in Excluded.
type DivisionResult struct {
	Scope       DivisionScope                 `json:"scope"`
	Aggregate   string                        `json:"aggregate"`
	Assignments map[string]DivisionAssignment `json:"assignments"`
	Ranking     []DivisionAssignment          `json:"ranking"`
	Excluded    []string                      `json:"excluded"`
}

// DivisionCount is the number of students in a given division.
type DivisionCount struct {
	Division int `json:"division"`
	Count    int `json:"count"`
}

// DivisionStatistics summarises a division run.
type DivisionStatistics struct {
	Scope           DivisionScope   `json:"scope"`
	Divisions       []DivisionCount `json:"divisions"`
	Unclassified    int             `json:"unclassified"`
	Excluded        int             `json:"excluded"`
	Ranked          int             `json:"ranked"`
	Passed          int             `json:"passed"`
	Failed          int             `json:"failed"`
	MeanAggregate   float64         `json:"mean_aggregate"`
	TopAggregate    float64         `json:"top_aggregate"`
	LowestAggregate float64         `json:"lowest_aggregate"`
}
