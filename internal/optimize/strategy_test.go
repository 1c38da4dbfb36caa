package optimize

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blueherald/blueherald/internal/abtest"
	"github.com/blueherald/blueherald/internal/models"
)

func resultWithText(text string) models.PostResult {
	return models.PostResult{
		Success:   true,
		PostID:    "at://did:plc:test/app.bsky.feed.post/1",
		Timestamp: time.Now(),
		Content: models.GeneratedContent{
			Text:     text,
			Hashtags: []string{"#Bitcoin", "#Crypto"},
		},
	}
}

func TestStrategyPerformanceStats(t *testing.T) {
	o := NewStrategyOptimizer()

	scores := []float64{0.4, 0.6, 0.8}
	for _, s := range scores {
		o.RecordPerformance(abtest.StrategyAnalytical, s, resultWithText("Bitcoin analysis"))
	}
	o.RecordPerformance(abtest.StrategyAnalytical, 0.2, models.PostResult{Success: false, Error: "rate limited"})

	stats := o.StrategyPerformance(abtest.StrategyAnalytical, 7)
	assert.Equal(t, 4, stats.SampleSize)
	assert.InDelta(t, 0.5, stats.AvgScore, 1e-9)
	assert.InDelta(t, 0.2, stats.MinScore, 1e-9)
	assert.InDelta(t, 0.8, stats.MaxScore, 1e-9)
	assert.InDelta(t, 0.75, stats.SuccessRate, 1e-9)
}

func TestStrategyPerformanceEmptyWindow(t *testing.T) {
	o := NewStrategyOptimizer()

	stats := o.StrategyPerformance(abtest.StrategyViralHooks, 7)
	assert.Equal(t, 0, stats.SampleSize)
	assert.Zero(t, stats.AvgScore)
	assert.Empty(t, stats.Trend)
}

func TestStrategyPerformanceWindowExcludesOld(t *testing.T) {
	o := NewStrategyOptimizer()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	o.now = func() time.Time { return base.Add(-10 * 24 * time.Hour) }
	o.RecordPerformance(abtest.StrategyViralHooks, 0.9, resultWithText("old"))

	o.now = func() time.Time { return base }
	o.RecordPerformance(abtest.StrategyViralHooks, 0.5, resultWithText("fresh"))

	stats := o.StrategyPerformance(abtest.StrategyViralHooks, 7)
	assert.Equal(t, 1, stats.SampleSize)
	assert.InDelta(t, 0.5, stats.AvgScore, 1e-9)

	wide := o.StrategyPerformance(abtest.StrategyViralHooks, 14)
	assert.Equal(t, 2, wide.SampleSize)
}

func TestCalculateTrend(t *testing.T) {
	tests := []struct {
		name   string
		scores []float64
		want   string
	}{
		{"too few samples", []float64{0.5, 0.6, 0.7}, "insufficient_data"},
		{"improving", []float64{0.4, 0.4, 0.8, 0.8}, "improving"},
		{"declining", []float64{0.8, 0.8, 0.4, 0.4}, "declining"},
		{"stable", []float64{0.6, 0.6, 0.62, 0.62}, "stable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, calculateTrend(tt.scores))
		})
	}
}

func TestHistoryBuffersBounded(t *testing.T) {
	o := NewStrategyOptimizer()

	for i := 0; i < strategyHistoryMax+25; i++ {
		o.RecordPerformance(abtest.StrategyViralHooks, 0.5, resultWithText(fmt.Sprintf("post %d", i)))
	}

	o.mu.Lock()
	n := len(o.records[abtest.StrategyViralHooks])
	o.mu.Unlock()
	assert.Equal(t, strategyHistoryMax, n)
}

func TestBestStrategyRequiresSamples(t *testing.T) {
	o := NewStrategyOptimizer()

	for i := 0; i < 12; i++ {
		o.RecordPerformance(abtest.StrategyAnalytical, 0.6, resultWithText("analytical"))
	}
	// High average but too few samples to qualify.
	for i := 0; i < 3; i++ {
		o.RecordPerformance(abtest.StrategyViralHooks, 0.95, resultWithText("viral"))
	}

	best, ok := o.BestStrategy(10)
	require.True(t, ok)
	assert.Equal(t, abtest.StrategyAnalytical, best)

	_, ok = o.BestStrategy(20)
	assert.False(t, ok)
}

func TestRecommendationsFlagOutliers(t *testing.T) {
	o := NewStrategyOptimizer()

	for i := 0; i < 6; i++ {
		o.RecordPerformance(abtest.StrategyControversial, 0.2, resultWithText("weak"))
	}
	for i := 0; i < 6; i++ {
		o.RecordPerformance(abtest.StrategyMarketFocused, 0.9, resultWithText("strong"))
	}

	recs := o.Recommendations()
	require.Len(t, recs, 2)

	byType := make(map[string]Recommendation)
	for _, r := range recs {
		byType[r.Type] = r
	}

	under := byType["underperforming_strategy"]
	assert.Equal(t, abtest.StrategyControversial, under.Strategy)
	assert.Equal(t, "high", under.Priority)

	high := byType["high_performing_strategy"]
	assert.Equal(t, abtest.StrategyMarketFocused, high.Strategy)
	assert.Equal(t, "low", high.Priority)
}

func TestRecommendationsDecliningTrend(t *testing.T) {
	o := NewStrategyOptimizer()

	scores := []float64{0.7, 0.7, 0.7, 0.55, 0.55, 0.55}
	for _, s := range scores {
		o.RecordPerformance(abtest.StrategyEducational, s, resultWithText("lesson"))
	}

	recs := o.Recommendations()
	require.Len(t, recs, 1)
	assert.Equal(t, "declining_performance", recs[0].Type)
	assert.Equal(t, "medium", recs[0].Priority)
}
