// Package filter decides whether a generated post may be published.
// The pipeline runs duplicate detection over a bounded time-windowed
// history, heuristic quality scoring, moderation regexes and format
// validation, short-circuiting on the first rejection.
package filter

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/blueherald/blueherald/internal/models"
)

// Moderation patterns. Severity is high when more than two distinct
// patterns match, medium otherwise.
var inappropriatePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(scam|fraud|ponzi|rug\s*pull)\b`),
	regexp.MustCompile(`(?i)\b(pump\s*and\s*dump|market\s*manipulation)\b`),
	regexp.MustCompile(`(?i)\b(guaranteed\s*profit|risk\s*free)\b`),
	regexp.MustCompile(`(?i)\b(financial\s*advice|investment\s*advice)\b`),
	regexp.MustCompile(`(?i)\b(hate|racist|sexist|offensive)\b`),
}

// HistoryItem is one previously accepted post retained for duplicate
// detection.
type HistoryItem struct {
	Content         string    `json:"content"`
	Timestamp       time.Time `json:"timestamp"`
	ContentHash     string    `json:"content_hash"`
	EngagementScore float64   `json:"engagement_score"`
	Topics          []string  `json:"topics"`
}

// PatternMatch describes a moderation pattern that fired.
type PatternMatch struct {
	PatternIndex int      `json:"pattern_index"`
	Matches      []string `json:"matches"`
	Pattern      string   `json:"pattern"`
}

// ModerationResult is the moderation stage diagnostic.
type ModerationResult struct {
	PatternsFound []PatternMatch `json:"inappropriate_patterns_found"`
	Severity      string         `json:"severity"`
}

// Decision is the structured diagnostic record returned with every
// accept/reject decision.
type Decision struct {
	Timestamp       time.Time          `json:"timestamp"`
	ContentLength   int                `json:"content_length"`
	ChecksPerformed []string           `json:"checks_performed"`
	Scores          map[string]float64 `json:"scores"`
	Reasons         []string           `json:"reasons"`
	Moderation      *ModerationResult  `json:"moderation,omitempty"`
	FormatIssues    []string           `json:"format_issues,omitempty"`
}

// Config holds the tunable thresholds for a ContentFilter.
type Config struct {
	HistorySize        int           `yaml:"history_size"`
	DuplicateThreshold float64       `yaml:"duplicate_threshold"`
	QualityThreshold   float64       `yaml:"quality_threshold"`
	Retention          time.Duration `yaml:"retention"`
}

// DefaultConfig returns the production filter thresholds.
func DefaultConfig() Config {
	return Config{
		HistorySize:        100,
		DuplicateThreshold: 0.75,
		QualityThreshold:   0.6,
		Retention:          168 * time.Hour,
	}
}

// HistoryStats summarizes the retained history.
type HistoryStats struct {
	TotalItems          int          `json:"total_items"`
	AvgEngagementScore  float64      `json:"avg_engagement_score"`
	TopTopics           []TopicCount `json:"top_topics"`
	OldestItemAgeHours  float64      `json:"oldest_item_age_hours"`
}

// TopicCount pairs a topic with its frequency in history.
type TopicCount struct {
	Topic string `json:"topic"`
	Count int    `json:"count"`
}

// ContentFilter owns its history exclusively. It is safe for use from
// multiple goroutines.
type ContentFilter struct {
	mu     sync.Mutex
	config Config
	recent []HistoryItem
	hashes map[string]struct{}
	now    func() time.Time
}

// New creates a ContentFilter with the given thresholds.
func New(config Config) *ContentFilter {
	if config.HistorySize <= 0 {
		config.HistorySize = DefaultConfig().HistorySize
	}
	if config.Retention <= 0 {
		config.Retention = DefaultConfig().Retention
	}
	return &ContentFilter{
		config: config,
		hashes: make(map[string]struct{}),
		now:    time.Now,
	}
}

// Filter runs the full acceptance pipeline against content. It returns
// the decision and a diagnostic record; it never mutates history.
func (f *ContentFilter) Filter(content models.GeneratedContent) (bool, Decision) {
	f.mu.Lock()
	defer f.mu.Unlock()

	decision := Decision{
		Timestamp:     f.now(),
		ContentLength: len([]rune(content.Text)),
		Scores:        make(map[string]float64),
	}

	// Stale duplicates must not block legitimately repeated content.
	f.pruneLocked()

	isDuplicate, similarity := f.checkDuplicatesLocked(content.Text)
	decision.ChecksPerformed = append(decision.ChecksPerformed, "duplicate_detection")
	decision.Scores["similarity"] = similarity
	if isDuplicate {
		decision.Reasons = append(decision.Reasons,
			fmt.Sprintf("Duplicate content detected (similarity: %.2f)", similarity))
		log.Info().Float64("similarity", similarity).Msg("content rejected: duplicate")
		return false, decision
	}

	quality := QualityScore(content.Text)
	decision.ChecksPerformed = append(decision.ChecksPerformed, "quality_scoring")
	decision.Scores["quality"] = quality
	if quality < f.config.QualityThreshold {
		decision.Reasons = append(decision.Reasons,
			fmt.Sprintf("Quality score too low: %.2f < %.2f", quality, f.config.QualityThreshold))
		log.Info().Float64("quality", quality).Msg("content rejected: low quality")
		return false, decision
	}

	moderation := moderate(content.Text)
	decision.ChecksPerformed = append(decision.ChecksPerformed, "content_moderation")
	decision.Moderation = &moderation
	if len(moderation.PatternsFound) > 0 {
		decision.Reasons = append(decision.Reasons, "Content failed moderation checks")
		log.Warn().Str("severity", moderation.Severity).Msg("content rejected: moderation")
		return false, decision
	}

	issues := validateFormat(content)
	decision.ChecksPerformed = append(decision.ChecksPerformed, "format_validation")
	decision.FormatIssues = issues
	if len(issues) > 0 {
		decision.Reasons = append(decision.Reasons, issues...)
		log.Info().Strs("issues", issues).Msg("content rejected: format")
		return false, decision
	}

	decision.Reasons = append(decision.Reasons, "All quality checks passed")
	log.Info().Float64("quality", quality).Msg("content approved")
	return true, decision
}

// AddToHistory records content as published. Callers invoke this only
// after the post actually went out; approval alone does not add it.
func (f *ContentFilter) AddToHistory(content models.GeneratedContent) {
	f.mu.Lock()
	defer f.mu.Unlock()

	item := HistoryItem{
		Content:         content.Text,
		Timestamp:       f.now(),
		ContentHash:     ContentHash(content.Text),
		EngagementScore: content.EngagementScore,
		Topics:          content.SourceNews.Topics,
	}

	if len(f.recent) >= f.config.HistorySize {
		evicted := f.recent[0]
		f.recent = f.recent[1:]
		delete(f.hashes, evicted.ContentHash)
	}
	f.recent = append(f.recent, item)
	f.hashes[item.ContentHash] = struct{}{}

	log.Debug().Int("total_items", len(f.recent)).Msg("content added to history")
}

// HistorySize returns the number of retained items.
func (f *ContentFilter) HistorySize() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.recent)
}

// Stats summarizes the retained history.
func (f *ContentFilter) Stats() HistoryStats {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.recent) == 0 {
		return HistoryStats{}
	}

	var sum float64
	topicCounts := make(map[string]int)
	for _, item := range f.recent {
		sum += item.EngagementScore
		for _, topic := range item.Topics {
			topicCounts[topic]++
		}
	}

	topics := make([]TopicCount, 0, len(topicCounts))
	for topic, count := range topicCounts {
		topics = append(topics, TopicCount{Topic: topic, Count: count})
	}
	sort.Slice(topics, func(i, j int) bool {
		if topics[i].Count != topics[j].Count {
			return topics[i].Count > topics[j].Count
		}
		return topics[i].Topic < topics[j].Topic
	})
	if len(topics) > 5 {
		topics = topics[:5]
	}

	avg := sum / float64(len(f.recent))
	return HistoryStats{
		TotalItems:         len(f.recent),
		AvgEngagementScore: roundTo(avg, 2),
		TopTopics:          topics,
		OldestItemAgeHours: f.now().Sub(f.recent[0].Timestamp).Hours(),
	}
}

func (f *ContentFilter) checkDuplicatesLocked(text string) (bool, float64) {
	if len(f.recent) == 0 {
		return false, 0.0
	}

	if _, exact := f.hashes[ContentHash(text)]; exact {
		return true, 1.0
	}

	maxSimilarity := 0.0
	for _, item := range f.recent {
		combined := CombinedSimilarity(text, item.Content)
		if combined > maxSimilarity {
			maxSimilarity = combined
		}
		if combined > f.config.DuplicateThreshold {
			return true, combined
		}
	}
	return false, maxSimilarity
}

func (f *ContentFilter) pruneLocked() {
	cutoff := f.now().Add(-f.config.Retention)
	for len(f.recent) > 0 && f.recent[0].Timestamp.Before(cutoff) {
		evicted := f.recent[0]
		f.recent = f.recent[1:]
		delete(f.hashes, evicted.ContentHash)
		log.Debug().Time("timestamp", evicted.Timestamp).Msg("expired content removed from history")
	}
}

func moderate(text string) ModerationResult {
	result := ModerationResult{Severity: "none"}
	for i, pattern := range inappropriatePatterns {
		matches := pattern.FindAllString(text, -1)
		if len(matches) > 0 {
			result.PatternsFound = append(result.PatternsFound, PatternMatch{
				PatternIndex: i,
				Matches:      matches,
				Pattern:      pattern.String(),
			})
		}
	}
	if len(result.PatternsFound) > 2 {
		result.Severity = "high"
	} else if len(result.PatternsFound) > 0 {
		result.Severity = "medium"
	}
	return result
}

func validateFormat(content models.GeneratedContent) []string {
	var issues []string

	length := len([]rune(content.Text))
	if length > models.MaxPostLength {
		issues = append(issues, fmt.Sprintf("Content exceeds %d character limit: %d chars", models.MaxPostLength, length))
	}
	if trimmed := len([]rune(strings.TrimSpace(content.Text))); trimmed < 30 {
		issues = append(issues, fmt.Sprintf("Content too short: %d chars", trimmed))
	}
	if len(content.Hashtags) > 6 {
		issues = append(issues, fmt.Sprintf("Too many hashtags: %d", len(content.Hashtags)))
	}
	for _, tag := range content.Hashtags {
		if !strings.HasPrefix(tag, "#") || len(tag) < 2 {
			issues = append(issues, fmt.Sprintf("Malformed hashtag: %s", tag))
		}
	}
	if content.EngagementScore < 0.0 || content.EngagementScore > 1.0 {
		issues = append(issues, fmt.Sprintf("Invalid engagement score: %.2f", content.EngagementScore))
	}
	return issues
}

func roundTo(v float64, places int) float64 {
	shift := 1.0
	for i := 0; i < places; i++ {
		shift *= 10
	}
	if v >= 0 {
		return float64(int64(v*shift+0.5)) / shift
	}
	return float64(int64(v*shift-0.5)) / shift
}
