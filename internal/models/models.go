// Package models holds the shared data types that flow between the
// news retrieval, content generation, filtering and publishing stages.
package models

import (
	"fmt"
	"strings"
	"time"
)

// MaxPostLength is the Bluesky character limit for a single post.
const MaxPostLength = 300

// ContentType classifies the editorial angle of a generated post.
type ContentType string

const (
	ContentTypeNews         ContentType = "news"
	ContentTypeAnalysis     ContentType = "analysis"
	ContentTypeOpinion      ContentType = "opinion"
	ContentTypeMarketUpdate ContentType = "market_update"
)

// Valid reports whether ct is one of the known content types.
func (ct ContentType) Valid() bool {
	switch ct {
	case ContentTypeNews, ContentTypeAnalysis, ContentTypeOpinion, ContentTypeMarketUpdate:
		return true
	}
	return false
}

// NewsItem is a single cryptocurrency news story returned by the
// search API.
type NewsItem struct {
	Headline       string    `json:"headline" yaml:"headline"`
	Summary        string    `json:"summary" yaml:"summary"`
	Source         string    `json:"source" yaml:"source"`
	Timestamp      time.Time `json:"timestamp" yaml:"timestamp"`
	RelevanceScore float64   `json:"relevance_score" yaml:"relevance_score"`
	Topics         []string  `json:"topics" yaml:"topics"`
	URL            string    `json:"url,omitempty" yaml:"url,omitempty"`
	RawContent     string    `json:"raw_content,omitempty" yaml:"raw_content,omitempty"`
}

// Validate checks construction-time invariants.
func (n NewsItem) Validate() error {
	if n.Headline == "" {
		return fmt.Errorf("news item: headline cannot be empty")
	}
	if n.Summary == "" {
		return fmt.Errorf("news item: summary cannot be empty")
	}
	if n.Source == "" {
		return fmt.Errorf("news item: source cannot be empty")
	}
	if n.RelevanceScore < 0.0 || n.RelevanceScore > 1.0 {
		return fmt.Errorf("news item: relevance_score %.3f outside [0,1]", n.RelevanceScore)
	}
	if len(n.Topics) == 0 {
		return fmt.Errorf("news item: topics cannot be empty")
	}
	return nil
}

// GeneratedContent is a candidate post produced by the generator.
// Metadata carries generation/A-B attribution consumed downstream by
// the optimization service.
type GeneratedContent struct {
	Text            string            `json:"text"`
	Hashtags        []string          `json:"hashtags"`
	EngagementScore float64           `json:"engagement_score"`
	ContentType     ContentType       `json:"content_type"`
	SourceNews      NewsItem          `json:"source_news"`
	CreatedAt       time.Time         `json:"created_at"`
	Metadata        map[string]string `json:"metadata"`
}

// Metadata keys used to attribute content to an A/B test variant.
const (
	MetaTestID             = "ab_test_id"
	MetaTestVariantID      = "ab_test_variant_id"
	MetaTestStrategy       = "ab_test_strategy"
	MetaGenerationStrategy = "generation_strategy"
)

// Validate checks construction-time invariants.
func (g GeneratedContent) Validate() error {
	if g.Text == "" {
		return fmt.Errorf("generated content: text cannot be empty")
	}
	if len([]rune(g.Text)) > MaxPostLength {
		return fmt.Errorf("generated content: text exceeds %d character limit", MaxPostLength)
	}
	if g.EngagementScore < 0.0 || g.EngagementScore > 1.0 {
		return fmt.Errorf("generated content: engagement_score %.3f outside [0,1]", g.EngagementScore)
	}
	if !g.ContentType.Valid() {
		return fmt.Errorf("generated content: unknown content type %q", g.ContentType)
	}
	return nil
}

// CharacterCount returns the post length in characters.
func (g GeneratedContent) CharacterCount() int { return len([]rune(g.Text)) }

// FullText returns the post body as published: text followed by the
// hashtags, space separated.
func (g GeneratedContent) FullText() string {
	if len(g.Hashtags) == 0 {
		return g.Text
	}
	return g.Text + " " + strings.Join(g.Hashtags, " ")
}

// PostResult records the outcome of one publish attempt.
type PostResult struct {
	Success    bool             `json:"success"`
	PostID     string           `json:"post_id,omitempty"`
	Timestamp  time.Time        `json:"timestamp"`
	Content    GeneratedContent `json:"content"`
	Error      string           `json:"error_message,omitempty"`
	RetryCount int              `json:"retry_count"`
}

// Validate checks construction-time invariants.
func (p PostResult) Validate() error {
	if p.Success && p.PostID == "" {
		return fmt.Errorf("post result: post_id is required when success is true")
	}
	if !p.Success && p.Error == "" {
		return fmt.Errorf("post result: error_message is required when success is false")
	}
	if p.RetryCount < 0 {
		return fmt.Errorf("post result: retry_count cannot be negative")
	}
	return nil
}

// EngagementData carries observed per-post engagement counters fed
// back into A/B test metrics.
type EngagementData struct {
	Likes   int `json:"likes"`
	Reposts int `json:"reposts"`
	Replies int `json:"replies"`
	Clicks  int `json:"clicks"`
}
