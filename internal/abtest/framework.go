package abtest

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/blueherald/blueherald/internal/models"
)

// ErrTooManyTests is returned by CreateTest when the concurrent test
// capacity is exhausted. The caller must complete or cancel a test
// before creating another.
var ErrTooManyTests = fmt.Errorf("maximum concurrent tests reached")

const (
	defaultConfidenceLevel = 0.95
	performanceHistoryMax  = 1000

	// NoEndDate disables duration-based completion for a test.
	NoEndDate = -1
)

// PerformanceRecord is one recorded result kept in the framework's
// bounded history ring.
type PerformanceRecord struct {
	Timestamp       time.Time              `json:"timestamp"`
	TestID          string                 `json:"test_id"`
	VariantID       string                 `json:"variant_id"`
	EngagementScore float64                `json:"engagement_score"`
	Success         bool                   `json:"success"`
	Engagement      *models.EngagementData `json:"engagement_data,omitempty"`
}

// VariantAnalysis is the per-variant summary in an Analysis.
type VariantAnalysis struct {
	ID                 string   `json:"id"`
	Name               string   `json:"name"`
	Strategy           Strategy `json:"strategy"`
	Impressions        int      `json:"impressions"`
	EngagementRate     float64  `json:"engagement_rate"`
	AvgEngagementScore float64  `json:"avg_engagement_score"`
	ConversionRate     float64  `json:"conversion_rate"`
	TotalEngagements   int      `json:"total_engagements"`
}

// Winner identifies the provisional best variant of a test.
type Winner struct {
	VariantID          string   `json:"variant_id"`
	VariantName        string   `json:"variant_name"`
	Strategy           Strategy `json:"strategy"`
	AvgEngagementScore float64  `json:"avg_engagement_score"`
}

// Analysis is the full analysis record for one test.
type Analysis struct {
	TestID            string                     `json:"test_id"`
	TestName          string                     `json:"test_name"`
	Status            Status                     `json:"status"`
	SampleSize        int                        `json:"sample_size"`
	HasSufficientData bool                       `json:"has_sufficient_data"`
	Variants          map[string]VariantAnalysis `json:"variants"`
	Winner            *Winner                    `json:"winner,omitempty"`
	HasWinner         bool                       `json:"has_winner"`
	Significance      *Significance              `json:"statistical_significance,omitempty"`
}

// Recommendation is one actionable suggestion derived from analysis.
type Recommendation struct {
	Type                string `json:"type"`
	Message             string `json:"message"`
	Confidence          string `json:"confidence"`
	ExpectedImprovement string `json:"expected_improvement,omitempty"`
}

// Recommendations bundles suggestions, ranked insight strings and
// next-step guidance for one test.
type Recommendations struct {
	TestID              string           `json:"test_id"`
	Recommendations     []Recommendation `json:"recommendations"`
	NextSteps           []string         `json:"next_steps"`
	PerformanceInsights []string         `json:"performance_insights"`
}

// TestOverview is the list-view projection of a test.
type TestOverview struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Status      Status    `json:"status"`
	SampleSize  int       `json:"sample_size"`
	StartDate   time.Time `json:"start_date"`
	Variants    int       `json:"variants"`
}

// Export is the complete structured dump of one test for audit/UI
// consumption.
type Export struct {
	TestConfig struct {
		ID            string        `json:"id"`
		Name          string        `json:"name"`
		Description   string        `json:"description"`
		Status        Status        `json:"status"`
		StartDate     time.Time     `json:"start_date"`
		EndDate       *time.Time    `json:"end_date,omitempty"`
		MinSampleSize int           `json:"min_sample_size"`
		Variants      []TestVariant `json:"variants"`
	} `json:"test_config"`
	Results struct {
		SampleSize int                    `json:"sample_size"`
		Metrics    map[string]TestMetrics `json:"metrics"`
	} `json:"results"`
	Analysis        *Analysis        `json:"analysis"`
	Recommendations *Recommendations `json:"recommendations"`
}

// Framework manages the lifecycle of concurrent A/B tests. It owns
// every ABTest and its metrics exclusively and serializes access with
// an internal mutex.
type Framework struct {
	mu                 sync.Mutex
	activeTests        map[string]*ABTest
	completedTests     map[string]*ABTest
	maxConcurrentTests int
	history            []PerformanceRecord
	createdCount       int
	now                func() time.Time
}

// NewFramework creates a framework bounded to maxConcurrentTests
// simultaneously active tests.
func NewFramework(maxConcurrentTests int) *Framework {
	if maxConcurrentTests <= 0 {
		maxConcurrentTests = 5
	}
	return &Framework{
		activeTests:        make(map[string]*ABTest),
		completedTests:     make(map[string]*ABTest),
		maxConcurrentTests: maxConcurrentTests,
		now:                time.Now,
	}
}

// CreateTest registers a new active test and returns its ID.
// durationDays of NoEndDate leaves the test open-ended; zero ends it
// immediately (useful for drain-and-complete flows). Capacity and
// weight validation errors leave the framework untouched.
func (f *Framework) CreateTest(name, description string, variants []TestVariant, durationDays int, minSampleSize int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.activeTests) >= f.maxConcurrentTests {
		return "", fmt.Errorf("%w (%d)", ErrTooManyTests, f.maxConcurrentTests)
	}
	if minSampleSize <= 0 {
		minSampleSize = 100
	}

	testID := fmt.Sprintf("test_%s_%d", f.now().Format("20060102_150405"), f.createdCount)

	var endDate *time.Time
	if durationDays >= 0 {
		end := f.now().Add(time.Duration(durationDays) * 24 * time.Hour)
		endDate = &end
	}

	test, err := NewABTest(testID, name, description, variants, endDate, minSampleSize, defaultConfidenceLevel)
	if err != nil {
		return "", err
	}
	test.now = f.now

	f.activeTests[testID] = test
	f.createdCount++

	log.Info().Str("test_id", testID).Str("name", name).Int("variants", len(variants)).
		Msg("created A/B test")
	return testID, nil
}

// VariantForContent draws a variant for content generation, or nil if
// the test is unknown or inactive.
func (f *Framework) VariantForContent(testID string) *TestVariant {
	f.mu.Lock()
	defer f.mu.Unlock()

	test, ok := f.activeTests[testID]
	if !ok {
		return nil
	}
	return test.SelectVariant()
}

// RecordResult folds a post result into a variant's metrics and
// evaluates auto-completion. Unknown test or variant IDs are logged
// no-ops so a stale reference cannot crash the scheduler.
func (f *Framework) RecordResult(testID, variantID string, result models.PostResult, engagement *models.EngagementData) {
	f.mu.Lock()
	defer f.mu.Unlock()

	test, ok := f.activeTests[testID]
	if !ok {
		log.Warn().Str("test_id", testID).Msg("record result: test not found in active tests")
		return
	}
	metrics, ok := test.Metrics[variantID]
	if !ok {
		log.Warn().Str("test_id", testID).Str("variant_id", variantID).
			Msg("record result: variant not found")
		return
	}

	metrics.Update(result, engagement)

	f.history = append(f.history, PerformanceRecord{
		Timestamp:       f.now(),
		TestID:          testID,
		VariantID:       variantID,
		EngagementScore: result.Content.EngagementScore,
		Success:         result.Success,
		Engagement:      engagement,
	})
	if len(f.history) > performanceHistoryMax {
		f.history = f.history[len(f.history)-performanceHistoryMax:]
	}

	log.Debug().Str("test_id", testID).Str("variant_id", variantID).Msg("recorded A/B test result")

	f.checkCompletionLocked(testID)
}

// checkCompletionLocked applies the auto-completion rules: elapsed
// duration wins over statistical significance.
func (f *Framework) checkCompletionLocked(testID string) {
	test := f.activeTests[testID]
	if test == nil {
		return
	}

	if test.EndDate != nil && !f.now().Before(*test.EndDate) {
		f.completeLocked(testID, "Test duration completed")
		return
	}

	if test.HasSufficientData() {
		analysis := f.analyzeLocked(test)
		if analysis != nil && analysis.HasWinner &&
			analysis.Significance != nil && analysis.Significance.IsSignificant {
			f.completeLocked(testID, "Statistical significance achieved")
		}
	}
}

func (f *Framework) completeLocked(testID, reason string) {
	test, ok := f.activeTests[testID]
	if !ok {
		return
	}

	completed := f.now()
	test.Status = StatusCompleted
	test.CompletionReason = reason
	test.CompletedAt = &completed

	f.completedTests[testID] = test
	delete(f.activeTests, testID)

	log.Info().Str("test_id", testID).Str("reason", reason).Msg("completed A/B test")
}

// AnalyzeTest returns the analysis record for an active or completed
// test, or nil when the test is unknown.
func (f *Framework) AnalyzeTest(testID string) *Analysis {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.analyzeLocked(f.lookupLocked(testID))
}

func (f *Framework) lookupLocked(testID string) *ABTest {
	if test, ok := f.activeTests[testID]; ok {
		return test
	}
	return f.completedTests[testID]
}

func (f *Framework) analyzeLocked(test *ABTest) *Analysis {
	if test == nil {
		return nil
	}

	analysis := &Analysis{
		TestID:            test.ID,
		TestName:          test.Name,
		Status:            test.Status,
		SampleSize:        test.SampleSize(),
		HasSufficientData: test.HasSufficientData(),
		Variants:          make(map[string]VariantAnalysis, len(test.Variants)),
	}

	type scored struct {
		variantID string
		scores    []float64
	}

	var best *TestVariant
	bestScore := 0.0
	var variantScores []scored

	for i := range test.Variants {
		variant := &test.Variants[i]
		metrics := test.Metrics[variant.ID]

		analysis.Variants[variant.ID] = VariantAnalysis{
			ID:                 variant.ID,
			Name:               variant.Name,
			Strategy:           variant.Strategy,
			Impressions:        metrics.Impressions,
			EngagementRate:     metrics.EngagementRate,
			AvgEngagementScore: metrics.AvgEngagementScore,
			ConversionRate:     metrics.ConversionRate,
			TotalEngagements:   metrics.Engagements,
		}

		if metrics.AvgEngagementScore > bestScore {
			bestScore = metrics.AvgEngagementScore
			best = variant
		}

		if metrics.Impressions > 0 {
			// The framework keeps a running mean rather than raw
			// samples, so the significance input replays the mean
			// once per impression.
			scores := make([]float64, metrics.Impressions)
			for j := range scores {
				scores[j] = metrics.AvgEngagementScore
			}
			variantScores = append(variantScores, scored{variantID: variant.ID, scores: scores})
		}
	}

	if best != nil && len(test.Variants) >= 2 {
		analysis.Winner = &Winner{
			VariantID:          best.ID,
			VariantName:        best.Name,
			Strategy:           best.Strategy,
			AvgEngagementScore: bestScore,
		}
		analysis.HasWinner = true

		enough := len(variantScores) >= 2
		for _, vs := range variantScores {
			if len(vs.scores) < 2 {
				enough = false
			}
		}
		if enough {
			sort.SliceStable(variantScores, func(i, j int) bool {
				return mean(variantScores[i].scores) > mean(variantScores[j].scores)
			})
			sig := CalculateSignificance(variantScores[0].scores, variantScores[1].scores, test.ConfidenceLevel)
			analysis.Significance = &sig
		}
	}

	return analysis
}

// Recommendations derives textual guidance from a test's analysis, or
// nil when the test is unknown.
func (f *Framework) Recommendations(testID string) *Recommendations {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.recommendationsLocked(testID)
}

func (f *Framework) recommendationsLocked(testID string) *Recommendations {
	analysis := f.analyzeLocked(f.lookupLocked(testID))
	if analysis == nil {
		return nil
	}

	recs := &Recommendations{TestID: testID}

	if analysis.HasWinner {
		confidence := "medium"
		if analysis.Significance != nil && analysis.Significance.IsSignificant {
			confidence = "high"
		}
		recs.Recommendations = append(recs.Recommendations, Recommendation{
			Type:                "strategy_optimization",
			Message:             fmt.Sprintf("Use %s strategy as primary approach", analysis.Winner.Strategy),
			Confidence:          confidence,
			ExpectedImprovement: fmt.Sprintf("%.2f avg engagement score", analysis.Winner.AvgEngagementScore),
		})
	}

	type perf struct {
		strategy       Strategy
		engagementRate float64
		avgScore       float64
	}
	performances := make([]perf, 0, len(analysis.Variants))
	for _, v := range analysis.Variants {
		performances = append(performances, perf{
			strategy:       v.Strategy,
			engagementRate: v.EngagementRate,
			avgScore:       v.AvgEngagementScore,
		})
	}
	sort.SliceStable(performances, func(i, j int) bool {
		return performances[i].avgScore > performances[j].avgScore
	})
	for _, p := range performances {
		recs.PerformanceInsights = append(recs.PerformanceInsights,
			fmt.Sprintf("%s strategy: %.2f avg score, %.2f%% engagement rate",
				p.strategy, p.avgScore, p.engagementRate*100))
	}

	if !analysis.HasSufficientData {
		recs.NextSteps = append(recs.NextSteps,
			"Continue test to gather more data for statistical significance")
	} else if analysis.HasWinner {
		recs.NextSteps = append(recs.NextSteps,
			"Implement winning strategy in production",
			"Design follow-up tests to optimize winning strategy further")
	}

	return recs
}

// ActiveTests lists the currently active tests sorted by start date.
func (f *Framework) ActiveTests() []TestOverview {
	f.mu.Lock()
	defer f.mu.Unlock()

	overviews := make([]TestOverview, 0, len(f.activeTests))
	for _, test := range f.activeTests {
		overviews = append(overviews, TestOverview{
			ID:          test.ID,
			Name:        test.Name,
			Description: test.Description,
			Status:      test.Status,
			SampleSize:  test.SampleSize(),
			StartDate:   test.StartDate,
			Variants:    len(test.Variants),
		})
	}
	sort.Slice(overviews, func(i, j int) bool {
		if overviews[i].StartDate.Equal(overviews[j].StartDate) {
			return overviews[i].ID < overviews[j].ID
		}
		return overviews[i].StartDate.Before(overviews[j].StartDate)
	})
	return overviews
}

// ActiveCount returns the number of active tests.
func (f *Framework) ActiveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.activeTests)
}

// CompletedTest returns a completed test by ID, or nil.
func (f *Framework) CompletedTest(testID string) *ABTest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completedTests[testID]
}

// TestIDs lists every known test ID, active first.
func (f *Framework) TestIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	ids := make([]string, 0, len(f.activeTests)+len(f.completedTests))
	for id := range f.activeTests {
		ids = append(ids, id)
	}
	for id := range f.completedTests {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// History returns a copy of the bounded performance history.
func (f *Framework) History() []PerformanceRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]PerformanceRecord, len(f.history))
	copy(out, f.history)
	return out
}

// ExportTest dumps one test's config, metrics, analysis and
// recommendations, or nil when the test is unknown.
func (f *Framework) ExportTest(testID string) *Export {
	f.mu.Lock()
	defer f.mu.Unlock()

	test := f.lookupLocked(testID)
	if test == nil {
		return nil
	}

	export := &Export{}
	export.TestConfig.ID = test.ID
	export.TestConfig.Name = test.Name
	export.TestConfig.Description = test.Description
	export.TestConfig.Status = test.Status
	export.TestConfig.StartDate = test.StartDate
	export.TestConfig.EndDate = test.EndDate
	export.TestConfig.MinSampleSize = test.MinSampleSize
	export.TestConfig.Variants = append([]TestVariant(nil), test.Variants...)

	export.Results.SampleSize = test.SampleSize()
	export.Results.Metrics = make(map[string]TestMetrics, len(test.Metrics))
	for id, m := range test.Metrics {
		export.Results.Metrics[id] = *m
	}

	export.Analysis = f.analyzeLocked(test)
	export.Recommendations = f.recommendationsLocked(testID)
	return export
}

func mean(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	sum := 0.0
	for _, v := range data {
		sum += v
	}
	return sum / float64(len(data))
}
