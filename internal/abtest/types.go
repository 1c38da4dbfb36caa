// Package abtest implements weighted-variant A/B testing for content
// strategies: variant allocation, per-variant rolling metrics, naive
// significance estimation and test lifecycle management.
package abtest

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/blueherald/blueherald/internal/models"
)

// Status is the lifecycle state of an A/B test.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusPaused    Status = "paused"
	StatusCancelled Status = "cancelled"
)

// Strategy identifies a content generation approach competing in
// tests.
type Strategy string

const (
	StrategyViralHooks      Strategy = "viral_hooks"
	StrategyAnalytical      Strategy = "analytical"
	StrategyControversial   Strategy = "controversial"
	StrategyEducational     Strategy = "educational"
	StrategyMarketFocused   Strategy = "market_focused"
	StrategyCommunityDriven Strategy = "community_driven"
)

// Strategies lists every known strategy in a stable order.
func Strategies() []Strategy {
	return []Strategy{
		StrategyViralHooks,
		StrategyAnalytical,
		StrategyControversial,
		StrategyEducational,
		StrategyMarketFocused,
		StrategyCommunityDriven,
	}
}

// ParseStrategy maps a metadata string back to a Strategy, falling
// back to viral_hooks for unknown values.
func ParseStrategy(s string) Strategy {
	for _, strategy := range Strategies() {
		if string(strategy) == s {
			return strategy
		}
	}
	return StrategyViralHooks
}

// ContentType returns the editorial content type a strategy maps to.
func (s Strategy) ContentType() models.ContentType {
	switch s {
	case StrategyAnalytical, StrategyEducational:
		return models.ContentTypeAnalysis
	case StrategyControversial, StrategyCommunityDriven:
		return models.ContentTypeOpinion
	case StrategyMarketFocused:
		return models.ContentTypeMarketUpdate
	default:
		return models.ContentTypeNews
	}
}

// TestVariant is one candidate configuration competing within a test.
// Immutable once constructed.
type TestVariant struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Strategy   Strategy          `json:"strategy"`
	Parameters map[string]string `json:"parameters,omitempty"`
	Weight     float64           `json:"weight"`
}

// Validate checks the variant's construction invariants.
func (v TestVariant) Validate() error {
	if v.ID == "" {
		return fmt.Errorf("variant id cannot be empty")
	}
	if v.Weight < 0.0 || v.Weight > 1.0 {
		return fmt.Errorf("variant %s: weight %.3f must be between 0.0 and 1.0", v.ID, v.Weight)
	}
	return nil
}

// TestMetrics holds per-variant rolling counters. AvgEngagementScore
// is an incremental running mean, never recomputed from raw samples.
type TestMetrics struct {
	VariantID          string  `json:"variant_id"`
	Impressions        int     `json:"impressions"`
	Engagements        int     `json:"engagements"`
	Likes              int     `json:"likes"`
	Reposts            int     `json:"reposts"`
	Replies            int     `json:"replies"`
	Clicks             int     `json:"clicks"`
	EngagementRate     float64 `json:"engagement_rate"`
	AvgEngagementScore float64 `json:"avg_engagement_score"`
	ConversionRate     float64 `json:"conversion_rate"`
}

// Update folds one post result into the rolling counters.
func (m *TestMetrics) Update(result models.PostResult, engagement *models.EngagementData) {
	m.Impressions++

	if engagement != nil {
		m.Likes += engagement.Likes
		m.Reposts += engagement.Reposts
		m.Replies += engagement.Replies
		m.Clicks += engagement.Clicks
		m.Engagements += engagement.Likes + engagement.Reposts + engagement.Replies
	}

	if score := result.Content.EngagementScore; score > 0 {
		total := m.AvgEngagementScore * float64(m.Impressions-1)
		m.AvgEngagementScore = (total + score) / float64(m.Impressions)
	}

	if m.Impressions > 0 {
		m.EngagementRate = float64(m.Engagements) / float64(m.Impressions)
		m.ConversionRate = float64(m.Clicks) / float64(m.Impressions)
	}
}

// ABTest is one test's configuration and mutable state. The Framework
// owns all ABTest instances exclusively.
type ABTest struct {
	ID               string                  `json:"id"`
	Name             string                  `json:"name"`
	Description      string                  `json:"description"`
	Variants         []TestVariant           `json:"variants"`
	Status           Status                  `json:"status"`
	StartDate        time.Time               `json:"start_date"`
	EndDate          *time.Time              `json:"end_date,omitempty"`
	MinSampleSize    int                     `json:"min_sample_size"`
	ConfidenceLevel  float64                 `json:"confidence_level"`
	Metrics          map[string]*TestMetrics `json:"metrics"`
	CompletionReason string                  `json:"completion_reason,omitempty"`
	CompletedAt      *time.Time              `json:"completed_at,omitempty"`

	now func() time.Time
}

// NewABTest validates variants and fully populates per-variant
// metrics. Weights must sum to 1.0 within ±0.001.
func NewABTest(id, name, description string, variants []TestVariant, endDate *time.Time, minSampleSize int, confidenceLevel float64) (*ABTest, error) {
	if len(variants) == 0 {
		return nil, fmt.Errorf("test %s: at least one variant is required", id)
	}

	total := 0.0
	for _, v := range variants {
		if err := v.Validate(); err != nil {
			return nil, fmt.Errorf("test %s: %w", id, err)
		}
		total += v.Weight
	}
	if total < 0.999 || total > 1.001 {
		return nil, fmt.Errorf("test %s: variant weights must sum to 1.0, got %.4f", id, total)
	}

	metrics := make(map[string]*TestMetrics, len(variants))
	for _, v := range variants {
		metrics[v.ID] = &TestMetrics{VariantID: v.ID}
	}

	return &ABTest{
		ID:              id,
		Name:            name,
		Description:     description,
		Variants:        variants,
		Status:          StatusActive,
		StartDate:       time.Now(),
		EndDate:         endDate,
		MinSampleSize:   minSampleSize,
		ConfidenceLevel: confidenceLevel,
		Metrics:         metrics,
		now:             time.Now,
	}, nil
}

// IsActive reports whether the test accepts traffic.
func (t *ABTest) IsActive() bool {
	if t.Status != StatusActive {
		return false
	}
	return t.EndDate == nil || t.now().Before(*t.EndDate)
}

// SampleSize is the total impression count across all variants.
func (t *ABTest) SampleSize() int {
	total := 0
	for _, m := range t.Metrics {
		total += m.Impressions
	}
	return total
}

// HasSufficientData reports whether the sample-size floor is met.
func (t *ABTest) HasSufficientData() bool {
	return t.SampleSize() >= t.MinSampleSize
}

// SelectVariant draws a variant by weight, or nil when the test is
// not active. The walk falls back to the last variant to absorb float
// rounding at the top of the cumulative range.
func (t *ABTest) SelectVariant() *TestVariant {
	return t.selectVariant(rand.Float64())
}

func (t *ABTest) selectVariant(draw float64) *TestVariant {
	if !t.IsActive() {
		return nil
	}

	cumulative := 0.0
	for i := range t.Variants {
		cumulative += t.Variants[i].Weight
		if draw <= cumulative {
			return &t.Variants[i]
		}
	}
	return &t.Variants[len(t.Variants)-1]
}
