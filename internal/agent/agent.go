// Package agent composes the posting pipeline: news retrieval, content
// generation with A/B optimization, filtering, publishing and the
// bookkeeping around each step.
package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/blueherald/blueherald/internal/alerts"
	"github.com/blueherald/blueherald/internal/archive"
	"github.com/blueherald/blueherald/internal/filter"
	"github.com/blueherald/blueherald/internal/metrics"
	"github.com/blueherald/blueherald/internal/models"
	"github.com/blueherald/blueherald/internal/optimize"
)

// Config holds workflow-level settings.
type Config struct {
	Query              string  `yaml:"query"`
	NewsLimit          int     `yaml:"news_limit"`
	MinEngagementScore float64 `yaml:"min_engagement_score"`
	MaxHistorySize     int     `yaml:"max_history_size"`
}

// DefaultConfig returns production workflow settings.
func DefaultConfig() Config {
	return Config{
		Query:              "latest cryptocurrency news",
		NewsLimit:          10,
		MinEngagementScore: 0.7,
		MaxHistorySize:     50,
	}
}

// NewsFetcher retrieves relevance-ranked news items.
type NewsFetcher interface {
	FetchLatest(ctx context.Context, query string, limit int) ([]models.NewsItem, error)
}

// Publisher posts content and reports the outcome as a result, never
// an error.
type Publisher interface {
	Publish(ctx context.Context, content models.GeneratedContent) models.PostResult
}

// Stats summarizes workflow executions.
type Stats struct {
	TotalExecutions int                 `json:"total_executions"`
	SuccessfulPosts int                 `json:"successful_posts"`
	FailedPosts     int                 `json:"failed_posts"`
	FilteredContent int                 `json:"filtered_content"`
	SuccessRate     float64             `json:"success_rate"`
	LastExecution   *time.Time          `json:"last_execution,omitempty"`
	LastSuccess     *time.Time          `json:"last_success,omitempty"`
	HistorySize     int                 `json:"content_history_size"`
	FilterStats     filter.HistoryStats `json:"content_filter_stats"`
}

// Deps are the collaborators the agent orchestrates.
type Deps struct {
	News      NewsFetcher
	Generator optimize.Generator
	Publisher Publisher
	Optimizer *optimize.Service
	Filter    *filter.ContentFilter
	Metrics   *metrics.Registry
	Alerts    *alerts.Manager
	Archive   *archive.Archive
}

// Agent runs the retrieve -> generate -> filter -> post workflow.
type Agent struct {
	config    Config
	deps      Deps
	overrides *Overrides
	activity  *Activity

	mu              sync.Mutex
	history         []models.GeneratedContent
	postedHeadlines map[string]struct{}
	totalExecutions int
	successfulPosts int
	failedPosts     int
	filteredContent int
	lastExecution   *time.Time
	lastSuccess     *time.Time

	now func() time.Time
}

// New wires an agent from its collaborators.
func New(config Config, deps Deps) *Agent {
	if config.NewsLimit <= 0 {
		config.NewsLimit = DefaultConfig().NewsLimit
	}
	if config.MaxHistorySize <= 0 {
		config.MaxHistorySize = DefaultConfig().MaxHistorySize
	}
	return &Agent{
		config:          config,
		deps:            deps,
		overrides:       NewOverrides(),
		activity:        NewActivity(),
		postedHeadlines: make(map[string]struct{}),
		now:             time.Now,
	}
}

// Overrides exposes the manual override store.
func (a *Agent) Overrides() *Overrides { return a.overrides }

// Activity exposes the live activity feed.
func (a *Agent) Activity() *Activity { return a.activity }

// ExecuteWorkflow runs one full posting cycle. Expected non-post
// outcomes (manual skip, content filtered out) return an unsuccessful
// result with a nil error; abnormal failures return the error too.
func (a *Agent) ExecuteWorkflow(ctx context.Context) (models.PostResult, error) {
	started := a.now()
	a.mu.Lock()
	a.totalExecutions++
	execution := a.totalExecutions
	a.lastExecution = &started
	a.mu.Unlock()

	log.Info().Int("execution", execution).Str("query", a.config.Query).Msg("workflow starting")
	timer := a.deps.Metrics.StartCycleTimer()

	if skipped, _ := a.overrides.IsActive(OverrideSkipPosting); skipped {
		log.Info().Msg("workflow skipped by manual override")
		a.activity.Record("workflow_skipped", "Workflow skipped by manual override", nil)
		a.deps.Metrics.PostsRejected.WithLabelValues("manual_override").Inc()
		timer.Stop("skipped")
		return a.errorResult("workflow skipped by manual override", started), nil
	}

	news := a.retrieveNews(ctx)
	if len(news) == 0 {
		timer.Stop("error")
		err := fmt.Errorf("no usable news items for query %q", a.config.Query)
		a.recordFailure(err.Error())
		return a.errorResult(err.Error(), started), err
	}
	item := a.pickUnposted(news)

	content, err := a.deps.Optimizer.GenerateOptimizedContent(ctx, item, a.deps.Generator, a.config.MinEngagementScore)
	if err != nil {
		log.Error().Err(err).Msg("content generation failed, using fallback")
		a.deps.Alerts.Trigger("Content Generation Failed", err.Error(), alerts.SeverityHigh,
			"agent", map[string]string{"headline": item.Headline})
		a.deps.Metrics.AlertsTriggered.WithLabelValues(string(alerts.SeverityHigh)).Inc()
		content = fallbackContent(item, a.now())
	}
	a.deps.Metrics.GenerationRuns.WithLabelValues(string(content.ContentType)).Inc()
	a.deps.Metrics.EngagementScore.Observe(content.EngagementScore)

	approved, decision := a.deps.Filter.Filter(content)
	if forced, _ := a.overrides.IsActive(OverrideForceApproval); forced && !approved {
		log.Info().Msg("content approval forced by manual override")
		a.activity.Record("override_applied", "Content approval forced by manual override", nil)
		approved = true
	}
	if !approved {
		reason := "quality"
		if len(decision.Reasons) > 0 {
			reason = decision.Reasons[0]
		}
		a.mu.Lock()
		a.filteredContent++
		a.mu.Unlock()
		a.deps.Metrics.PostsRejected.WithLabelValues(reason).Inc()
		a.activity.Record("content_filtered", "Content rejected by filter",
			map[string]string{"reason": reason})
		log.Warn().Strs("reasons", decision.Reasons).
			Float64("engagement_score", content.EngagementScore).
			Msg("content filtered out")
		timer.Stop("skipped")
		return a.errorResult("content filtered out: "+reason, started), nil
	}

	a.deps.Metrics.PostsAttempted.Inc()
	result := a.deps.Publisher.Publish(ctx, content)
	if result.RetryCount > 0 {
		a.deps.Metrics.PostRetries.Add(float64(result.RetryCount))
	}

	a.finishCycle(ctx, content, result)
	if result.Success {
		timer.Stop("success")
		return result, nil
	}
	timer.Stop("error")
	return result, fmt.Errorf("publish failed: %s", result.Error)
}

// retrieveNews fetches ranked items, falling back to canned market
// items when the upstream is unavailable.
func (a *Agent) retrieveNews(ctx context.Context) []models.NewsItem {
	items, err := a.deps.News.FetchLatest(ctx, a.config.Query, a.config.NewsLimit)
	if err != nil {
		log.Warn().Err(err).Msg("news retrieval failed, using fallback items")
		a.deps.Metrics.NewsFetches.WithLabelValues("error").Inc()
		a.deps.Alerts.Trigger("News Retrieval Failed", err.Error(), alerts.SeverityHigh,
			"agent", map[string]string{"query": a.config.Query})
		a.deps.Metrics.AlertsTriggered.WithLabelValues(string(alerts.SeverityHigh)).Inc()
		return fallbackNews(a.now())
	}
	a.deps.Metrics.NewsFetches.WithLabelValues("success").Inc()
	a.deps.Metrics.NewsItemsFound.Observe(float64(len(items)))
	return items
}

// pickUnposted returns the highest-ranked item not yet posted about,
// or the first item when everything has been covered.
func (a *Agent) pickUnposted(items []models.NewsItem) models.NewsItem {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, item := range items {
		if _, seen := a.postedHeadlines[item.Headline]; !seen {
			return item
		}
	}
	return items[0]
}

func (a *Agent) finishCycle(ctx context.Context, content models.GeneratedContent, result models.PostResult) {
	if result.Success {
		a.addToHistory(content)
		a.deps.Metrics.PostsPublished.Inc()
		a.deps.Optimizer.RecordPostPerformance(result, nil)
		a.activity.Record("post_published", "Posted to Bluesky",
			map[string]string{"post_id": result.PostID, "headline": content.SourceNews.Headline})

		a.mu.Lock()
		now := a.now()
		a.successfulPosts++
		a.lastSuccess = &now
		a.mu.Unlock()

		if err := a.deps.Archive.Insert(ctx, result); err != nil {
			log.Error().Err(err).Msg("failed to archive post")
		}
		return
	}

	a.mu.Lock()
	a.failedPosts++
	a.mu.Unlock()

	a.deps.Alerts.Trigger("Bluesky Posting Failed", result.Error, alerts.SeverityHigh,
		"agent", map[string]string{"retry_count": fmt.Sprintf("%d", result.RetryCount)})
	a.deps.Metrics.AlertsTriggered.WithLabelValues(string(alerts.SeverityHigh)).Inc()
	a.activity.Record("post_failed", "Publishing failed",
		map[string]string{"error": result.Error})
}

func (a *Agent) recordFailure(message string) {
	a.mu.Lock()
	a.failedPosts++
	a.mu.Unlock()
	a.activity.Record("workflow_failed", message, nil)
}

// addToHistory retains content for duplicate prevention, bounded by
// MaxHistorySize.
func (a *Agent) addToHistory(content models.GeneratedContent) {
	a.deps.Filter.AddToHistory(content)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.history = append(a.history, content)
	a.postedHeadlines[content.SourceNews.Headline] = struct{}{}
	if len(a.history) > a.config.MaxHistorySize {
		dropped := a.history[0]
		delete(a.postedHeadlines, dropped.SourceNews.Headline)
		a.history = a.history[1:]
	}
}

// RecentContent returns up to limit history entries, newest first.
func (a *Agent) RecentContent(limit int) []models.GeneratedContent {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := len(a.history)
	if limit <= 0 || limit > n {
		limit = n
	}
	recent := make([]models.GeneratedContent, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		recent = append(recent, a.history[i])
	}
	return recent
}

// WorkflowStats reports execution counters and filter state.
func (a *Agent) WorkflowStats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()

	stats := Stats{
		TotalExecutions: a.totalExecutions,
		SuccessfulPosts: a.successfulPosts,
		FailedPosts:     a.failedPosts,
		FilteredContent: a.filteredContent,
		LastExecution:   a.lastExecution,
		LastSuccess:     a.lastSuccess,
		HistorySize:     len(a.history),
		FilterStats:     a.deps.Filter.Stats(),
	}
	if stats.TotalExecutions > 0 {
		stats.SuccessRate = float64(stats.SuccessfulPosts) / float64(stats.TotalExecutions)
	}
	return stats
}

func (a *Agent) errorResult(message string, started time.Time) models.PostResult {
	news := models.NewsItem{
		Headline:       "Error in workflow",
		Summary:        "Workflow execution failed",
		Source:         "System",
		Timestamp:      started,
		RelevanceScore: 0,
		Topics:         []string{"Error"},
	}
	return models.PostResult{
		Success:   false,
		Timestamp: a.now(),
		Content: models.GeneratedContent{
			Text:        "Workflow execution failed",
			ContentType: models.ContentTypeNews,
			SourceNews:  news,
			CreatedAt:   started,
		},
		Error: message,
	}
}

// fallbackNews provides canned items when the news API is down.
func fallbackNews(now time.Time) []models.NewsItem {
	return []models.NewsItem{
		{
			Headline:       "Cryptocurrency Market Update",
			Summary:        "Latest developments in the cryptocurrency market continue to show volatility and innovation across major digital assets.",
			Source:         "Fallback System",
			Timestamp:      now,
			RelevanceScore: 0.6,
			Topics:         []string{"Bitcoin", "Cryptocurrency", "Market"},
			RawContent:     "Cryptocurrency market analysis and updates",
		},
		{
			Headline:       "Bitcoin and Ethereum Price Analysis",
			Summary:        "Technical analysis shows continued interest in major cryptocurrencies as institutional adoption grows.",
			Source:         "Fallback System",
			Timestamp:      now,
			RelevanceScore: 0.7,
			Topics:         []string{"Bitcoin", "Ethereum", "Analysis"},
			RawContent:     "Bitcoin Ethereum price technical analysis",
		},
	}
}

// fallbackContent builds a minimal post when generation fails.
func fallbackContent(item models.NewsItem, now time.Time) models.GeneratedContent {
	headline := item.Headline
	if len([]rune(headline)) > 100 {
		headline = string([]rune(headline)[:100]) + "..."
	}
	hashtags := []string{"#crypto"}
	for _, topic := range item.Topics {
		if len(hashtags) >= 3 {
			break
		}
		tag := "#" + sanitizeTag(topic)
		if tag != "#" && tag != "#crypto" {
			hashtags = append(hashtags, tag)
		}
	}
	return models.GeneratedContent{
		Text:            fmt.Sprintf("🚀 %s What are your thoughts on this crypto development?", headline),
		Hashtags:        hashtags,
		EngagementScore: 0.6,
		ContentType:     models.ContentTypeNews,
		SourceNews:      item,
		CreatedAt:       now,
		Metadata:        map[string]string{"fallback": "true"},
	}
}

func sanitizeTag(topic string) string {
	tag := make([]rune, 0, len(topic))
	for _, r := range topic {
		if r == ' ' || r == '-' {
			continue
		}
		if r >= 'A' && r <= 'Z' {
			r += 'a' - 'A'
		}
		tag = append(tag, r)
	}
	return string(tag)
}
