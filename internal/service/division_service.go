package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-report-api/internal/models"
	"github.com/noah-isme/sma-report-api/pkg/cache"
	"github.com/noah-isme/sma-report-api/pkg/config"
	appErrors "github.com/noah-isme/sma-report-api/pkg/errors"
	"github.com/noah-isme/sma-report-api/pkg/export"
)

type divisionMarkReader interface {
	List(ctx context.Context, filter models.MarkFilter) ([]models.Mark, error)
}

type divisionRosterReader interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, error)
}

type sheetRenderer interface {
	Render(sheets []export.Sheet) ([]byte, error)
}

// DivisionService ranks a class by aggregate marks and assigns division tiers.
type DivisionService struct {
	marks     divisionMarkReader
	students  divisionRosterReader
	settings  config.DivisionConfig
	cache     *CacheService
	metrics   *MetricsService
	xlsx      sheetRenderer
	validator *validator.Validate
	logger    *zap.Logger
}

// NewDivisionService constructs a DivisionService. Bands are sorted by division.
func NewDivisionService(marks divisionMarkReader, students divisionRosterReader, settings config.DivisionConfig, cacheSvc *CacheService, metrics *MetricsService, xlsx sheetRenderer, validate *validator.Validate, logger *zap.Logger) *DivisionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if xlsx == nil {
		xlsx = export.NewXLSXExporter()
	}
	if settings.Aggregate != config.AggregateSum {
		settings.Aggregate = config.AggregateAverage
	}
	bands := append([]config.DivisionBand(nil), settings.Bands...)
	sort.SliceStable(bands, func(i, j int) bool { return bands[i].Division < bands[j].Division })
	settings.Bands = bands
	return &DivisionService{
		marks:     marks,
		students:  students,
		settings:  settings,
		cache:     cacheSvc,
		metrics:   metrics,
		xlsx:      xlsx,
		validator: validate,
		logger:    logger,
	}
}

// Calculate returns the division mapping for the scope. It never writes.
func (s *DivisionService) Calculate(ctx context.Context, principal models.Principal, scope models.DivisionScope) (*models.DivisionResult, error) {
	if err := Authorize(principal, OpDivisionRead); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(scope); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid division scope")
	}
	return s.calculate(ctx, scope)
}

func (s *DivisionService) calculate(ctx context.Context, scope models.DivisionScope) (*models.DivisionResult, error) {
	roster, err := s.students.List(ctx, models.StudentFilter{ClassID: scope.ClassID, AcademicYearID: scope.AcademicYearID})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class roster")
	}
	start := time.Now()
	marks, err := s.marks.List(ctx, models.MarkFilter{ClassID: scope.ClassID, TermID: scope.TermID, AcademicYearID: scope.AcademicYearID})
	s.metrics.ObserveDBQuery("division_marks", time.Since(start))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load marks")
	}

	ids := make([]string, 0, len(roster))
	for _, st := range roster {
		ids = append(ids, st.ID)
	}
	result := ComputeDivisions(scope, ids, marks, s.settings)
	s.metrics.RecordDivisionCalculation(scope.ExamType)
	s.logger.Debug("division calculated",
		zap.String("class_id", scope.ClassID),
		zap.String("term_id", scope.TermID),
		zap.String("exam_type", string(scope.ExamType)),
		zap.Int("ranked", len(result.Ranking)),
		zap.Int("excluded", len(result.Excluded)),
	)
	return result, nil
}

// ComputeDivisions aggregates each student's marks for the exam sitting,
// ranks the students and maps aggregates onto division bands. Roster students
// without any mark for the sitting are listed in Excluded only.
func ComputeDivisions(scope models.DivisionScope, roster []string, marks []models.Mark, settings config.DivisionConfig) *models.DivisionResult {
	type tally struct {
		sum   float64
		count int
	}
	tallies := make(map[string]*tally)
	for _, m := range marks {
		if m.TermID != scope.TermID || m.AcademicYearID != scope.AcademicYearID {
			continue
		}
		score, ok := m.ScoreFor(scope.ExamType)
		if !ok || math.IsNaN(score) || math.IsInf(score, 0) {
			continue
		}
		t, ok := tallies[m.StudentID]
		if !ok {
			t = &tally{}
			tallies[m.StudentID] = t
		}
		t.sum += score
		t.count++
	}

	result := &models.DivisionResult{
		Scope:       scope,
		Aggregate:   settings.Aggregate,
		Assignments: make(map[string]models.DivisionAssignment, len(tallies)),
		Ranking:     make([]models.DivisionAssignment, 0, len(tallies)),
		Excluded:    []string{},
	}

	for studentID, t := range tallies {
		aggregate := t.sum
		if settings.Aggregate != config.AggregateSum {
			aggregate = t.sum / float64(t.count)
		}
		aggregate = math.Round(aggregate*100) / 100
		result.Ranking = append(result.Ranking, models.DivisionAssignment{
			StudentID:    studentID,
			Aggregate:    aggregate,
			SubjectCount: t.count,
			Division:     divisionFor(aggregate, settings.Bands),
		})
	}

	sort.Slice(result.Ranking, func(i, j int) bool {
		a, b := result.Ranking[i], result.Ranking[j]
		if a.Aggregate != b.Aggregate {
			return a.Aggregate > b.Aggregate
		}
		return a.StudentID < b.StudentID
	})
	for i := range result.Ranking {
		if i > 0 && result.Ranking[i].Aggregate == result.Ranking[i-1].Aggregate {
			result.Ranking[i].Position = result.Ranking[i-1].Position
		} else {
			result.Ranking[i].Position = i + 1
		}
		result.Assignments[result.Ranking[i].StudentID] = result.Ranking[i]
	}

	seen := make(map[string]struct{}, len(roster))
	for _, id := range roster {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if _, ranked := tallies[id]; !ranked {
			result.Excluded = append(result.Excluded, id)
		}
	}
	sort.Strings(result.Excluded)
	return result
}

func divisionFor(aggregate float64, bands []config.DivisionBand) int {
	for _, band := range bands {
		if aggregate >= band.MinScore && aggregate <= band.MaxScore {
			return band.Division
		}
	}
	return models.DivisionUnclassified
}

// Statistics summarises the division mapping for the scope.
func (s *DivisionService) Statistics(ctx context.Context, principal models.Principal, scope models.DivisionScope) (*models.DivisionStatistics, error) {
	if err := Authorize(principal, OpDivisionRead); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(scope); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid division scope")
	}

	key := divisionCacheKey(scope, s.settings.Aggregate)
	var cached models.DivisionStatistics
	if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
		return &cached, nil
	}

	result, err := s.calculate(ctx, scope)
	if err != nil {
		return nil, err
	}
	stats := SummarizeDivisions(result, s.settings)
	_ = s.cache.Set(ctx, key, stats, 0)
	return &stats, nil
}

// SummarizeDivisions counts students per configured division, zero-filling
// divisions nobody reached. An empty result yields all-zero counts.
func SummarizeDivisions(result *models.DivisionResult, settings config.DivisionConfig) models.DivisionStatistics {
	stats := models.DivisionStatistics{Divisions: []models.DivisionCount{}}
	counts := make(map[int]int)
	for _, band := range settings.Bands {
		if _, ok := counts[band.Division]; !ok {
			counts[band.Division] = 0
		}
	}
	if result == nil {
		stats.Divisions = sortedDivisionCounts(counts)
		return stats
	}
	stats.Scope = result.Scope
	stats.Excluded = len(result.Excluded)
	stats.Ranked = len(result.Ranking)

	var sum float64
	for i, a := range result.Ranking {
		sum += a.Aggregate
		if i == 0 || a.Aggregate > stats.TopAggregate {
			stats.TopAggregate = a.Aggregate
		}
		if i == 0 || a.Aggregate < stats.LowestAggregate {
			stats.LowestAggregate = a.Aggregate
		}
		if a.Division == models.DivisionUnclassified {
			stats.Unclassified++
			stats.Failed++
			continue
		}
		counts[a.Division]++
		if a.Division <= settings.PassMax {
			stats.Passed++
		} else {
			stats.Failed++
		}
	}
	if stats.Ranked > 0 {
		stats.MeanAggregate = math.Round(sum/float64(stats.Ranked)*100) / 100
	}
	stats.Divisions = sortedDivisionCounts(counts)
	return stats
}

func sortedDivisionCounts(counts map[int]int) []models.DivisionCount {
	out := make([]models.DivisionCount, 0, len(counts))
	for division, count := range counts {
		out = append(out, models.DivisionCount{Division: division, Count: count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Division < out[j].Division })
	return out
}

// InvalidateClass drops cached statistics for a class and term after mark writes.
func (s *DivisionService) InvalidateClass(ctx context.Context, classID, termID string) {
	pattern := cache.Key("division", classID, termID) + ":*"
	if err := s.cache.Invalidate(ctx, pattern); err != nil {
		s.logger.Warn("division cache invalidation failed", zap.String("class_id", classID), zap.Error(err))
	}
}

func divisionCacheKey(scope models.DivisionScope, aggregate string) string {
	return cache.Key("division", scope.ClassID, scope.TermID, scope.AcademicYearID, string(scope.ExamType), aggregate)
}

// ExportDivisionSheet renders the ranked mapping and its summary as an XLSX workbook.
func (s *DivisionService) ExportDivisionSheet(ctx context.Context, principal models.Principal, scope models.DivisionScope) ([]byte, string, error) {
	result, err := s.Calculate(ctx, principal, scope)
	if err != nil {
		return nil, "", err
	}
	names := make(map[string]string)
	if roster, err := s.students.List(ctx, models.StudentFilter{ClassID: scope.ClassID, AcademicYearID: scope.AcademicYearID}); err == nil {
		for _, st := range roster {
			names[st.ID] = st.Name
		}
	} else {
		s.logger.Warn("division export without student names", zap.Error(err))
	}

	ranking := export.Dataset{Headers: []string{"Position", "Student ID", "Student", "Aggregate", "Subjects", "Division"}}
	for _, a := range result.Ranking {
		division := strconv.Itoa(a.Division)
		if a.Division == models.DivisionUnclassified {
			division = "U"
		}
		ranking.Rows = append(ranking.Rows, map[string]string{
			"Position":   strconv.Itoa(a.Position),
			"Student ID": a.StudentID,
			"Student":    names[a.StudentID],
			"Aggregate":  strconv.FormatFloat(a.Aggregate, 'f', 2, 64),
			"Subjects":   strconv.Itoa(a.SubjectCount),
			"Division":   division,
		})
	}
	for _, id := range result.Excluded {
		ranking.Rows = append(ranking.Rows, map[string]string{"Student ID": id, "Student": names[id], "Division": "X"})
	}

	stats := SummarizeDivisions(result, s.settings)
	summary := export.Dataset{Headers: []string{"Metric", "Value"}}
	for _, dc := range stats.Divisions {
		summary.Rows = append(summary.Rows, map[string]string{"Metric": fmt.Sprintf("Division %d", dc.Division), "Value": strconv.Itoa(dc.Count)})
	}
	for _, row := range [][2]string{
		{"Unclassified", strconv.Itoa(stats.Unclassified)},
		{"Excluded", strconv.Itoa(stats.Excluded)},
		{"Passed", strconv.Itoa(stats.Passed)},
		{"Failed", strconv.Itoa(stats.Failed)},
		{"Mean aggregate", strconv.FormatFloat(stats.MeanAggregate, 'f', 2, 64)},
	} {
		summary.Rows = append(summary.Rows, map[string]string{"Metric": row[0], "Value": row[1]})
	}

	body, err := s.xlsx.Render([]export.Sheet{{Title: "Divisions", Data: ranking}, {Title: "Summary", Data: summary}})
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render division sheet")
	}
	filename := fmt.Sprintf("divisions_%s_%s_%s.xlsx", scope.ClassID, scope.TermID, scope.ExamType)
	return body, filename, nil
}
