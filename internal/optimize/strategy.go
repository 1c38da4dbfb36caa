// Package optimize tracks per-strategy content performance and adapts
// strategy usage through rule-based optimization cycles and A/B tests.
package optimize

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/blueherald/blueherald/internal/abtest"
	"github.com/blueherald/blueherald/internal/models"
)

// strategyHistoryMax bounds the per-strategy performance buffers.
const strategyHistoryMax = 500

// PerformanceRecord is one observed post outcome for a strategy.
type PerformanceRecord struct {
	Timestamp       time.Time       `json:"timestamp"`
	Strategy        abtest.Strategy `json:"strategy"`
	EngagementScore float64         `json:"engagement_score"`
	Success         bool            `json:"success"`
	ContentLength   int             `json:"content_length"`
	HashtagCount    int             `json:"hashtag_count"`
}

// StrategyStats summarizes a strategy's rolling window.
type StrategyStats struct {
	Strategy    abtest.Strategy `json:"strategy"`
	SampleSize  int             `json:"sample_size"`
	AvgScore    float64         `json:"avg_score"`
	MinScore    float64         `json:"min_score"`
	MaxScore    float64         `json:"max_score"`
	SuccessRate float64         `json:"success_rate"`
	Trend       string          `json:"trend"`
}

// Recommendation is one strategy-level optimization suggestion.
type Recommendation struct {
	Type       string          `json:"type"`
	Strategy   abtest.Strategy `json:"strategy"`
	Message    string          `json:"message"`
	Suggestion string          `json:"suggestion"`
	Priority   string          `json:"priority"`
}

// StrategyOptimizer keeps bounded per-strategy performance buffers and
// derives windowed statistics from them.
type StrategyOptimizer struct {
	mu      sync.Mutex
	records map[abtest.Strategy][]PerformanceRecord
	now     func() time.Time
}

// NewStrategyOptimizer creates an empty optimizer.
func NewStrategyOptimizer() *StrategyOptimizer {
	return &StrategyOptimizer{
		records: make(map[abtest.Strategy][]PerformanceRecord),
		now:     time.Now,
	}
}

// RecordPerformance appends one outcome to the strategy's buffer,
// evicting the oldest entry past the 500-record bound.
func (o *StrategyOptimizer) RecordPerformance(strategy abtest.Strategy, score float64, result models.PostResult) {
	o.mu.Lock()
	defer o.mu.Unlock()

	record := PerformanceRecord{
		Timestamp:       o.now(),
		Strategy:        strategy,
		EngagementScore: score,
		Success:         result.Success,
		ContentLength:   len([]rune(result.Content.Text)),
		HashtagCount:    len(result.Content.Hashtags),
	}

	buf := o.records[strategy]
	if len(buf) >= strategyHistoryMax {
		buf = buf[1:]
	}
	o.records[strategy] = append(buf, record)

	log.Debug().Str("strategy", string(strategy)).Float64("score", score).
		Msg("recorded strategy performance")
}

// StrategyPerformance computes window statistics for a strategy over
// the last daysBack days.
func (o *StrategyOptimizer) StrategyPerformance(strategy abtest.Strategy, daysBack int) StrategyStats {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.performanceLocked(strategy, daysBack)
}

func (o *StrategyOptimizer) performanceLocked(strategy abtest.Strategy, daysBack int) StrategyStats {
	cutoff := o.now().Add(-time.Duration(daysBack) * 24 * time.Hour)

	var scores []float64
	successes := 0
	total := 0
	for _, record := range o.records[strategy] {
		if record.Timestamp.Before(cutoff) {
			continue
		}
		scores = append(scores, record.EngagementScore)
		total++
		if record.Success {
			successes++
		}
	}

	stats := StrategyStats{Strategy: strategy, SampleSize: len(scores)}
	if len(scores) == 0 {
		return stats
	}

	sum := 0.0
	stats.MinScore = scores[0]
	stats.MaxScore = scores[0]
	for _, s := range scores {
		sum += s
		if s < stats.MinScore {
			stats.MinScore = s
		}
		if s > stats.MaxScore {
			stats.MaxScore = s
		}
	}
	stats.AvgScore = sum / float64(len(scores))
	stats.SuccessRate = float64(successes) / float64(total)
	stats.Trend = calculateTrend(scores)
	return stats
}

// calculateTrend compares first-half vs second-half means by index
// order. Fewer than four samples cannot support a trend call.
func calculateTrend(scores []float64) string {
	if len(scores) < 4 {
		return "insufficient_data"
	}

	mid := len(scores) / 2
	firstHalf := 0.0
	for _, s := range scores[:mid] {
		firstHalf += s
	}
	firstHalf /= float64(mid)

	secondHalf := 0.0
	for _, s := range scores[mid:] {
		secondHalf += s
	}
	secondHalf /= float64(len(scores) - mid)

	diff := secondHalf - firstHalf
	switch {
	case diff > 0.05:
		return "improving"
	case diff < -0.05:
		return "declining"
	default:
		return "stable"
	}
}

// BestStrategy returns the highest-average strategy among those
// meeting the sample-size floor, or false when none qualifies.
func (o *StrategyOptimizer) BestStrategy(minSampleSize int) (abtest.Strategy, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	best := abtest.Strategy("")
	bestAvg := -1.0
	for _, strategy := range abtest.Strategies() {
		stats := o.performanceLocked(strategy, 7)
		if stats.SampleSize < minSampleSize {
			continue
		}
		if stats.AvgScore > bestAvg {
			bestAvg = stats.AvgScore
			best = strategy
		}
	}
	if best == "" {
		return "", false
	}
	return best, true
}

// Recommendations evaluates every strategy's window and flags
// under/over-performers and declining trends.
func (o *StrategyOptimizer) Recommendations() []Recommendation {
	o.mu.Lock()
	defer o.mu.Unlock()

	var recs []Recommendation
	for _, strategy := range abtest.Strategies() {
		stats := o.performanceLocked(strategy, 7)
		if stats.SampleSize < 5 {
			continue
		}

		if stats.AvgScore < 0.5 {
			priority := "medium"
			if stats.AvgScore < 0.3 {
				priority = "high"
			}
			recs = append(recs, Recommendation{
				Type:       "underperforming_strategy",
				Strategy:   strategy,
				Message:    fmt.Sprintf("%s strategy is underperforming (avg: %.2f)", strategy, stats.AvgScore),
				Suggestion: "Consider reducing usage or optimizing parameters",
				Priority:   priority,
			})
		} else if stats.AvgScore > 0.8 {
			recs = append(recs, Recommendation{
				Type:       "high_performing_strategy",
				Strategy:   strategy,
				Message:    fmt.Sprintf("%s strategy is performing well (avg: %.2f)", strategy, stats.AvgScore),
				Suggestion: "Consider increasing usage frequency",
				Priority:   "low",
			})
		}

		if stats.Trend == "declining" {
			recs = append(recs, Recommendation{
				Type:       "declining_performance",
				Strategy:   strategy,
				Message:    fmt.Sprintf("%s strategy showing declining performance", strategy),
				Suggestion: "Review and refresh strategy parameters",
				Priority:   "medium",
			})
		}
	}
	return recs
}

// History returns all retained records across strategies, newest last.
func (o *StrategyOptimizer) History() []PerformanceRecord {
	o.mu.Lock()
	defer o.mu.Unlock()

	var out []PerformanceRecord
	for _, strategy := range abtest.Strategies() {
		out = append(out, o.records[strategy]...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}
