package optimize

import (
	"sort"
	"sync"
	"time"

	"github.com/blueherald/blueherald/internal/abtest"
	"github.com/blueherald/blueherald/internal/models"
)

// analyticsHistoryMax bounds the raw performance entries.
const analyticsHistoryMax = 1000

// PerformanceEntry is one posted-content outcome kept for reporting.
type PerformanceEntry struct {
	Timestamp       time.Time          `json:"timestamp"`
	Strategy        abtest.Strategy    `json:"strategy"`
	ContentType     models.ContentType `json:"content_type"`
	EngagementScore float64            `json:"engagement_score"`
	Success         bool               `json:"success"`
}

// DailySummary aggregates one calendar day of posting activity.
type DailySummary struct {
	TotalPosts           int            `json:"total_posts"`
	SuccessfulPosts      int            `json:"successful_posts"`
	AvgEngagementScore   float64        `json:"avg_engagement_score"`
	StrategyBreakdown    map[string]int `json:"strategy_breakdown"`
	ContentTypeBreakdown map[string]int `json:"content_type_breakdown"`
}

// StrategySlice is a per-strategy aggregate inside a report window.
type StrategySlice struct {
	Posts       int     `json:"posts"`
	AvgScore    float64 `json:"avg_score"`
	SuccessRate float64 `json:"success_rate"`
}

// Report is the analytics view over a trailing window.
type Report struct {
	PeriodDays      int                      `json:"period_days"`
	TotalPosts      int                      `json:"total_posts"`
	SuccessfulPosts int                      `json:"successful_posts"`
	SuccessRate     float64                  `json:"success_rate"`
	AvgEngagement   float64                  `json:"avg_engagement"`
	ByStrategy      map[string]StrategySlice `json:"by_strategy"`
	DailySummaries  map[string]*DailySummary `json:"daily_summaries"`
}

// Analytics keeps a bounded raw log of post outcomes plus per-day
// rollups with running averages.
type Analytics struct {
	mu      sync.Mutex
	entries []PerformanceEntry
	daily   map[string]*DailySummary
	now     func() time.Time
}

// NewAnalytics creates an empty analytics store.
func NewAnalytics() *Analytics {
	return &Analytics{
		daily: make(map[string]*DailySummary),
		now:   time.Now,
	}
}

// Record appends one outcome and folds it into that day's summary.
func (a *Analytics) Record(strategy abtest.Strategy, content models.GeneratedContent, result models.PostResult) {
	a.mu.Lock()
	defer a.mu.Unlock()

	entry := PerformanceEntry{
		Timestamp:       a.now(),
		Strategy:        strategy,
		ContentType:     content.ContentType,
		EngagementScore: content.EngagementScore,
		Success:         result.Success,
	}
	if len(a.entries) >= analyticsHistoryMax {
		a.entries = a.entries[1:]
	}
	a.entries = append(a.entries, entry)

	day := entry.Timestamp.Format("2006-01-02")
	summary, ok := a.daily[day]
	if !ok {
		summary = &DailySummary{
			StrategyBreakdown:    make(map[string]int),
			ContentTypeBreakdown: make(map[string]int),
		}
		a.daily[day] = summary
	}

	// Running average keeps the rollup cheap to update.
	summary.AvgEngagementScore = (summary.AvgEngagementScore*float64(summary.TotalPosts) + entry.EngagementScore) / float64(summary.TotalPosts+1)
	summary.TotalPosts++
	if entry.Success {
		summary.SuccessfulPosts++
	}
	summary.StrategyBreakdown[string(strategy)]++
	summary.ContentTypeBreakdown[string(content.ContentType)]++
}

// Generate builds the trailing-window report. Daily summaries cover
// the last daysBack calendar days that have data.
func (a *Analytics) Generate(daysBack int) Report {
	a.mu.Lock()
	defer a.mu.Unlock()

	cutoff := a.now().Add(-time.Duration(daysBack) * 24 * time.Hour)
	report := Report{
		PeriodDays:     daysBack,
		ByStrategy:     make(map[string]StrategySlice),
		DailySummaries: make(map[string]*DailySummary),
	}

	type agg struct {
		posts     int
		successes int
		scoreSum  float64
	}
	perStrategy := make(map[string]*agg)
	totalScore := 0.0

	for _, entry := range a.entries {
		if entry.Timestamp.Before(cutoff) {
			continue
		}
		report.TotalPosts++
		totalScore += entry.EngagementScore
		if entry.Success {
			report.SuccessfulPosts++
		}

		key := string(entry.Strategy)
		s, ok := perStrategy[key]
		if !ok {
			s = &agg{}
			perStrategy[key] = s
		}
		s.posts++
		s.scoreSum += entry.EngagementScore
		if entry.Success {
			s.successes++
		}
	}

	if report.TotalPosts > 0 {
		report.SuccessRate = float64(report.SuccessfulPosts) / float64(report.TotalPosts)
		report.AvgEngagement = totalScore / float64(report.TotalPosts)
	}
	for key, s := range perStrategy {
		report.ByStrategy[key] = StrategySlice{
			Posts:       s.posts,
			AvgScore:    s.scoreSum / float64(s.posts),
			SuccessRate: float64(s.successes) / float64(s.posts),
		}
	}

	days := make([]string, 0, len(a.daily))
	for day := range a.daily {
		days = append(days, day)
	}
	sort.Strings(days)
	if len(days) > daysBack {
		days = days[len(days)-daysBack:]
	}
	for _, day := range days {
		report.DailySummaries[day] = a.daily[day]
	}
	return report
}
