package abtest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blueherald/blueherald/internal/models"
)

func TestCreateTestGeneratesIDs(t *testing.T) {
	fw := NewFramework(5)

	id1, err := fw.CreateTest("first", "desc", twoVariants(0.5, 0.5), NoEndDate, 100)
	require.NoError(t, err)
	id2, err := fw.CreateTest("second", "desc", twoVariants(0.5, 0.5), NoEndDate, 100)
	require.NoError(t, err)

	assert.Regexp(t, `^test_\d{8}_\d{6}_0$`, id1)
	assert.NotEqual(t, id1, id2)
	assert.Equal(t, 2, fw.ActiveCount())
}

func TestCreateTestCapacityLimit(t *testing.T) {
	fw := NewFramework(1)

	id1, err := fw.CreateTest("first", "desc", twoVariants(0.5, 0.5), NoEndDate, 100)
	require.NoError(t, err)

	_, err = fw.CreateTest("second", "desc", twoVariants(0.5, 0.5), NoEndDate, 100)
	require.ErrorIs(t, err, ErrTooManyTests)

	// The first test is untouched by the failed creation.
	assert.Equal(t, 1, fw.ActiveCount())
	require.Len(t, fw.ActiveTests(), 1)
	assert.Equal(t, id1, fw.ActiveTests()[0].ID)
}

func TestCreateTestPropagatesWeightError(t *testing.T) {
	fw := NewFramework(5)
	_, err := fw.CreateTest("bad", "desc", twoVariants(0.5, 0.4), NoEndDate, 100)
	assert.ErrorContains(t, err, "weights must sum to 1.0")
	assert.Zero(t, fw.ActiveCount())
}

func TestVariantForContent(t *testing.T) {
	fw := NewFramework(5)
	id, err := fw.CreateTest("test", "desc", twoVariants(0.5, 0.5), NoEndDate, 100)
	require.NoError(t, err)

	variant := fw.VariantForContent(id)
	require.NotNil(t, variant)
	assert.Contains(t, []string{"viral", "analytical"}, variant.ID)

	assert.Nil(t, fw.VariantForContent("missing"), "unknown test selects nothing")
}

func TestRecordResultUnknownIDsAreNoOps(t *testing.T) {
	fw := NewFramework(5)
	id, err := fw.CreateTest("test", "desc", twoVariants(0.5, 0.5), NoEndDate, 100)
	require.NoError(t, err)

	fw.RecordResult("missing", "viral", resultWithScore(0.8), nil)
	fw.RecordResult(id, "missing-variant", resultWithScore(0.8), nil)

	analysis := fw.AnalyzeTest(id)
	require.NotNil(t, analysis)
	assert.Zero(t, analysis.SampleSize)
	assert.Empty(t, fw.History())
}

func TestRecordResultUpdatesMetricsAndHistory(t *testing.T) {
	fw := NewFramework(5)
	id, err := fw.CreateTest("test", "desc", twoVariants(0.5, 0.5), NoEndDate, 100)
	require.NoError(t, err)

	fw.RecordResult(id, "viral", resultWithScore(0.8), &models.EngagementData{Likes: 2})

	analysis := fw.AnalyzeTest(id)
	require.NotNil(t, analysis)
	assert.Equal(t, 1, analysis.SampleSize)
	assert.InDelta(t, 0.8, analysis.Variants["viral"].AvgEngagementScore, 1e-9)

	history := fw.History()
	require.Len(t, history, 1)
	assert.Equal(t, id, history[0].TestID)
	assert.Equal(t, "viral", history[0].VariantID)
	assert.True(t, history[0].Success)
}

func TestAutoCompletionByDuration(t *testing.T) {
	fw := NewFramework(5)

	// Zero duration puts the end date in the past immediately.
	id, err := fw.CreateTest("expiring", "desc", twoVariants(0.5, 0.5), 0, 100)
	require.NoError(t, err)

	fw.RecordResult(id, "viral", resultWithScore(0.8), nil)

	assert.Zero(t, fw.ActiveCount())
	completed := fw.CompletedTest(id)
	require.NotNil(t, completed)
	assert.Equal(t, StatusCompleted, completed.Status)
	assert.Equal(t, "Test duration completed", completed.CompletionReason)
	require.NotNil(t, completed.CompletedAt)
}

func TestAutoCompletionBySignificance(t *testing.T) {
	fw := NewFramework(5)
	id, err := fw.CreateTest("significant", "desc", twoVariants(0.5, 0.5), NoEndDate, 4)
	require.NoError(t, err)

	fw.RecordResult(id, "viral", resultWithScore(0.9), nil)
	fw.RecordResult(id, "viral", resultWithScore(0.9), nil)
	fw.RecordResult(id, "analytical", resultWithScore(0.5), nil)
	assert.Equal(t, 1, fw.ActiveCount(), "still active below min sample size")

	fw.RecordResult(id, "analytical", resultWithScore(0.5), nil)

	completed := fw.CompletedTest(id)
	require.NotNil(t, completed)
	assert.Equal(t, "Statistical significance achieved", completed.CompletionReason)
}

func TestAnalyzeTestWinner(t *testing.T) {
	fw := NewFramework(5)
	id, err := fw.CreateTest("test", "desc", twoVariants(0.5, 0.5), NoEndDate, 100)
	require.NoError(t, err)

	fw.RecordResult(id, "viral", resultWithScore(0.9), nil)
	fw.RecordResult(id, "analytical", resultWithScore(0.5), nil)

	analysis := fw.AnalyzeTest(id)
	require.NotNil(t, analysis)
	require.True(t, analysis.HasWinner, "a provisional winner exists even without significance")
	assert.Equal(t, "viral", analysis.Winner.VariantID)
	assert.Nil(t, analysis.Significance, "one sample per variant is not enough for significance")
	assert.False(t, analysis.HasSufficientData)

	assert.Nil(t, fw.AnalyzeTest("missing"))
}

func TestRecommendations(t *testing.T) {
	fw := NewFramework(5)
	id, err := fw.CreateTest("test", "desc", twoVariants(0.5, 0.5), NoEndDate, 100)
	require.NoError(t, err)

	fw.RecordResult(id, "viral", resultWithScore(0.9), nil)
	fw.RecordResult(id, "analytical", resultWithScore(0.5), nil)

	recs := fw.Recommendations(id)
	require.NotNil(t, recs)
	require.NotEmpty(t, recs.Recommendations)
	assert.Contains(t, recs.Recommendations[0].Message, "viral_hooks strategy as primary approach")
	assert.Equal(t, "medium", recs.Recommendations[0].Confidence)
	assert.Len(t, recs.PerformanceInsights, 2)
	assert.Contains(t, recs.PerformanceInsights[0], "viral_hooks")
	assert.Contains(t, recs.NextSteps[0], "Continue test")

	assert.Nil(t, fw.Recommendations("missing"))
}

func TestExportTest(t *testing.T) {
	fw := NewFramework(5)
	id, err := fw.CreateTest("export me", "desc", twoVariants(0.5, 0.5), NoEndDate, 100)
	require.NoError(t, err)

	fw.RecordResult(id, "viral", resultWithScore(0.7), &models.EngagementData{Likes: 1, Clicks: 2})

	export := fw.ExportTest(id)
	require.NotNil(t, export)
	assert.Equal(t, id, export.TestConfig.ID)
	assert.Len(t, export.TestConfig.Variants, 2)
	assert.Equal(t, 1, export.Results.SampleSize)
	assert.Equal(t, 2, export.Results.Metrics["viral"].Clicks)
	require.NotNil(t, export.Analysis)
	require.NotNil(t, export.Recommendations)

	assert.Nil(t, fw.ExportTest("missing"))
}

func TestHistoryBounded(t *testing.T) {
	fw := NewFramework(5)
	id, err := fw.CreateTest("test", "desc", twoVariants(0.5, 0.5), NoEndDate, 1_000_000)
	require.NoError(t, err)

	for i := 0; i < performanceHistoryMax+50; i++ {
		fw.RecordResult(id, "viral", resultWithScore(0.5), nil)
	}
	assert.Len(t, fw.History(), performanceHistoryMax)
}

func TestCompletedTestStopsAcceptingTraffic(t *testing.T) {
	fw := NewFramework(5)
	id, err := fw.CreateTest("expiring", "desc", twoVariants(0.5, 0.5), 0, 100)
	require.NoError(t, err)

	fw.RecordResult(id, "viral", resultWithScore(0.8), nil)
	require.Zero(t, fw.ActiveCount())

	assert.Nil(t, fw.VariantForContent(id))

	// Recording against a completed test is a tolerated no-op.
	before := fw.CompletedTest(id).SampleSize()
	fw.RecordResult(id, "viral", resultWithScore(0.8), nil)
	assert.Equal(t, before, fw.CompletedTest(id).SampleSize())
}
