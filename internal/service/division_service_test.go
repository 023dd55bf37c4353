package service

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/noah-isme/sma-report-api/internal/models"
	"github.com/noah-isme/sma-report-api/pkg/config"
	appErrors "github.com/noah-isme/sma-report-api/pkg/errors"
)

var threeTierSettings = config.DivisionConfig{
	Aggregate: config.AggregateAverage,
	Bands: []config.DivisionBand{
		{Division: 1, MinScore: 80, MaxScore: 100},
		{Division: 2, MinScore: 60, MaxScore: 79.99},
		{Division: 3, MinScore: 0, MaxScore: 59.99},
	},
	PassMax: 2,
}

var midScope = models.DivisionScope{ClassID: "c1", TermID: "t1", ExamType: models.ExamTypeMID, AcademicYearID: "y1"}

func midMark(student, subject string, total float64) models.Mark {
	return models.Mark{StudentID: student, SubjectID: subject, TermID: "t1", AcademicYearID: "y1", Total: floatPtr(total)}
}

func TestComputeDivisionsAssignsTiersFromBands(t *testing.T) {
	marks := []models.Mark{midMark("s1", "math", 70), midMark("s2", "math", 85), midMark("s3", "math", 40)}
	result := ComputeDivisions(midScope, []string{"s1", "s2", "s3", "s4"}, marks, threeTierSettings)

	require.Len(t, result.Assignments, 3)
	assert.Equal(t, 2, result.Assignments["s1"].Division)
	assert.Equal(t, 1, result.Assignments["s2"].Division)
	assert.Equal(t, 3, result.Assignments["s3"].Division)

	_, present := result.Assignments["s4"]
	assert.False(t, present)
	assert.Equal(t, []string{"s4"}, result.Excluded)

	assert.Equal(t, "s2", result.Ranking[0].StudentID)
	assert.Equal(t, 1, result.Ranking[0].Position)
	assert.Equal(t, 3, result.Ranking[2].Position)
}

func TestComputeDivisionsAggregateModes(t *testing.T) {
	marks := []models.Mark{midMark("s1", "math", 80), midMark("s1", "eng", 61)}

	avg := ComputeDivisions(midScope, nil, marks, threeTierSettings)
	assert.InDelta(t, 70.5, avg.Assignments["s1"].Aggregate, 0.001)
	assert.Equal(t, 2, avg.Assignments["s1"].SubjectCount)

	sumSettings := threeTierSettings
	sumSettings.Aggregate = config.AggregateSum
	sum := ComputeDivisions(midScope, nil, marks, sumSettings)
	assert.InDelta(t, 141, sum.Assignments["s1"].Aggregate, 0.001)
	assert.Equal(t, models.DivisionUnclassified, sum.Assignments["s1"].Division)
}

func TestComputeDivisionsUsesExamField(t *testing.T) {
	marks := []models.Mark{
		{StudentID: "s1", TermID: "t1", AcademicYearID: "y1", BOT: floatPtr(90), EOT: floatPtr(30)},
		{StudentID: "s2", TermID: "t1", AcademicYearID: "y1", Mark: floatPtr(65)},
	}
	bot := ComputeDivisions(models.DivisionScope{TermID: "t1", AcademicYearID: "y1", ExamType: models.ExamTypeBOT}, []string{"s1", "s2"}, marks, threeTierSettings)
	assert.Equal(t, 1, bot.Assignments["s1"].Division)
	assert.Equal(t, []string{"s2"}, bot.Excluded)

	mid := ComputeDivisions(midScope, []string{"s1", "s2"}, marks, threeTierSettings)
	assert.Equal(t, 2, mid.Assignments["s2"].Division)
	assert.Equal(t, []string{"s1"}, mid.Excluded)
}

func TestComputeDivisionsTiesShareRank(t *testing.T) {
	marks := []models.Mark{midMark("b", "math", 75), midMark("a", "math", 75), midMark("c", "math", 50)}
	result := ComputeDivisions(midScope, nil, marks, threeTierSettings)

	require.Len(t, result.Ranking, 3)
	assert.Equal(t, "a", result.Ranking[0].StudentID)
	assert.Equal(t, 1, result.Ranking[0].Position)
	assert.Equal(t, 1, result.Ranking[1].Position)
	assert.Equal(t, 3, result.Ranking[2].Position)
}

func TestComputeDivisionsIgnoresOtherTerms(t *testing.T) {
	marks := []models.Mark{{StudentID: "s1", TermID: "t2", AcademicYearID: "y1", Total: floatPtr(90)}}
	result := ComputeDivisions(midScope, []string{"s1"}, marks, threeTierSettings)
	assert.Empty(t, result.Assignments)
	assert.Equal(t, []string{"s1"}, result.Excluded)
}

func TestSummarizeDivisionsZeroFills(t *testing.T) {
	stats := SummarizeDivisions(nil, threeTierSettings)
	require.Len(t, stats.Divisions, 3)
	for _, dc := range stats.Divisions {
		assert.Zero(t, dc.Count)
	}

	marks := []models.Mark{midMark("s1", "math", 70), midMark("s2", "math", 85), midMark("s3", "math", 40)}
	result := ComputeDivisions(midScope, []string{"s1", "s2", "s3", "s4"}, marks, threeTierSettings)
	stats = SummarizeDivisions(result, threeTierSettings)
	assert.Equal(t, []models.DivisionCount{{Division: 1, Count: 1}, {Division: 2, Count: 1}, {Division: 3, Count: 1}}, stats.Divisions)
	assert.Equal(t, 2, stats.Passed)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Excluded)
	assert.InDelta(t, 65, stats.MeanAggregate, 0.001)
	assert.Equal(t, 85.0, stats.TopAggregate)
	assert.Equal(t, 40.0, stats.LowestAggregate)
}

func TestDivisionServiceCalculate(t *testing.T) {
	marks := &mockMarkStore{marks: []models.Mark{midMark("s1", "math", 70), midMark("s2", "math", 85)}}
	students := newMockStudentRepo(
		models.Student{ID: "s1", ClassID: "c1", AcademicYearID: "y1"},
		models.Student{ID: "s2", ClassID: "c1", AcademicYearID: "y1"},
		models.Student{ID: "s3", ClassID: "c1", AcademicYearID: "y1"},
	)
	svc := NewDivisionService(marks, students, threeTierSettings, nil, nil, nil, nil, nil)

	result, err := svc.Calculate(context.Background(), teacherPrincipal, midScope)
	require.NoError(t, err)
	assert.Len(t, result.Assignments, 2)
	assert.Equal(t, []string{"s3"}, result.Excluded)
	assert.Equal(t, "c1", marks.lastFilter.ClassID)

	_, err = svc.Calculate(context.Background(), parentPrincipal, midScope)
	assert.True(t, appErrors.IsCode(err, appErrors.ErrForbidden.Code))

	bad := midScope
	bad.ExamType = "FINAL"
	_, err = svc.Calculate(context.Background(), teacherPrincipal, bad)
	assert.True(t, appErrors.IsCode(err, appErrors.ErrValidation.Code))
}

func TestDivisionServiceUnknownClassIsEmpty(t *testing.T) {
	svc := NewDivisionService(&mockMarkStore{}, newMockStudentRepo(), threeTierSettings, nil, nil, nil, nil, nil)
	stats, err := svc.Statistics(context.Background(), adminPrincipal, midScope)
	require.NoError(t, err)
	assert.Zero(t, stats.Ranked)
	assert.Len(t, stats.Divisions, 3)
}

func TestDivisionServiceExportSheet(t *testing.T) {
	marks := &mockMarkStore{marks: []models.Mark{midMark("s1", "math", 70)}}
	students := newMockStudentRepo(models.Student{ID: "s1", Name: "Amina", ClassID: "c1", AcademicYearID: "y1"})
	svc := NewDivisionService(marks, students, threeTierSettings, nil, nil, nil, nil, nil)

	body, filename, err := svc.ExportDivisionSheet(context.Background(), headteacherPrincipal, midScope)
	require.NoError(t, err)
	assert.Equal(t, "divisions_c1_t1_MID.xlsx", filename)

	book, err := excelize.OpenReader(bytes.NewReader(body))
	require.NoError(t, err)
	rows, err := book.GetRows("Divisions")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Amina", rows[1][2])
	assert.Equal(t, "2", rows[1][5])
}
