package generate

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/blueherald/blueherald/internal/models"
)

// Config controls content generation.
type Config struct {
	MaxPostLength int `yaml:"max_post_length"`
	MaxHashtags   int `yaml:"max_hashtags"`
	Variations    int `yaml:"variations"`
}

// DefaultConfig returns production generation settings.
func DefaultConfig() Config {
	return Config{
		MaxPostLength: models.MaxPostLength,
		MaxHashtags:   3,
		Variations:    3,
	}
}

// Generator renders post candidates from templates. It generates
// several variations per call and keeps the highest-scoring one.
// Deterministic for a fixed rand source.
type Generator struct {
	config Config

	mu  sync.Mutex
	rng *rand.Rand
}

// NewGenerator creates a generator with its own time-seeded source.
func NewGenerator(config Config) *Generator {
	return &Generator{
		config: config,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// NewGeneratorWithSeed creates a deterministic generator for tests
// and replayable runs.
func NewGeneratorWithSeed(config Config, seed int64) *Generator {
	return &Generator{
		config: config,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Generate renders variations for the news item and returns the one
// with the highest estimated engagement.
func (g *Generator) Generate(ctx context.Context, news models.NewsItem, contentType models.ContentType, targetEngagement float64) (models.GeneratedContent, error) {
	if err := ctx.Err(); err != nil {
		return models.GeneratedContent{}, err
	}
	if err := news.Validate(); err != nil {
		return models.GeneratedContent{}, fmt.Errorf("generate: %w", err)
	}

	variations := g.config.Variations
	if variations < 1 {
		variations = 1
	}

	var best models.GeneratedContent
	for i := 0; i < variations; i++ {
		text := g.renderText(news, contentType)
		hashtags := RelevantHashtags(news.Topics, g.config.MaxHashtags)
		text, hashtags = g.fitLength(text, hashtags)
		score := EstimateEngagement(text, hashtags, news.Topics)

		candidate := models.GeneratedContent{
			Text:            text,
			Hashtags:        hashtags,
			EngagementScore: score,
			ContentType:     contentType,
			SourceNews:      news,
			CreatedAt:       time.Now(),
			Metadata: map[string]string{
				"target_engagement": fmt.Sprintf("%.2f", targetEngagement),
			},
		}
		if i == 0 || candidate.EngagementScore > best.EngagementScore {
			best = candidate
		}
	}

	if best.EngagementScore < targetEngagement {
		log.Warn().Float64("score", best.EngagementScore).
			Float64("target", targetEngagement).
			Msg("generated content below target engagement")
	}
	return best, nil
}

// renderText fills a content-type template from the news item.
func (g *Generator) renderText(news models.NewsItem, contentType models.ContentType) string {
	sentiment := analyzeSentiment(news.Headline + " " + news.Summary)
	insight := keyInsight(news.Summary)
	hook := hookFor(string(contentType), sentiment)

	headline := news.Headline
	if len(headline) > 100 {
		headline = headline[:97] + "..."
	}

	switch contentType {
	case models.ContentTypeAnalysis:
		template := g.pick(analysisTemplates)
		explanation := insight
		if len(explanation) > 80 {
			explanation = explanation[:77] + "..."
		}
		return strings.TrimSpace(fmt.Sprintf(template, hook, insight, explanation))

	case models.ContentTypeOpinion:
		template := g.pick(opinionTemplates)
		reasoning := "The market dynamics are shifting."
		return strings.TrimSpace(fmt.Sprintf(template, hook, insight, reasoning))

	case models.ContentTypeMarketUpdate:
		template := g.pick(marketTemplates)
		asset := "Crypto"
		if len(news.Topics) > 0 {
			asset = news.Topics[0]
		}
		movement := "active"
		lower := strings.ToLower(news.Summary)
		if strings.Contains(lower, "up") || strings.Contains(lower, "rise") {
			movement = "moving"
		}
		return strings.TrimSpace(fmt.Sprintf(template, hook, asset, movement, insight))

	default:
		template := g.pick(newsTemplates)
		return strings.TrimSpace(fmt.Sprintf(template, hook, headline, insight))
	}
}

func (g *Generator) pick(templates []string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return templates[g.rng.Intn(len(templates))]
}

// fitLength trims content and hashtags to the post-length budget,
// dropping hashtags before truncating text.
func (g *Generator) fitLength(text string, hashtags []string) (string, []string) {
	hashtagText := ""
	if len(hashtags) > 0 {
		hashtagText = " " + strings.Join(hashtags, " ")
	}
	if len(text)+len(hashtagText) <= g.config.MaxPostLength {
		return text, hashtags
	}

	available := g.config.MaxPostLength - len(hashtagText) - 5
	if available < 50 && len(hashtags) > 2 {
		hashtags = hashtags[:2]
		hashtagText = " " + strings.Join(hashtags, " ")
		available = g.config.MaxPostLength - len(hashtagText) - 5
	}
	if len(text) > available {
		text = smartTruncate(text, available)
	}
	return text, hashtags
}

// smartTruncate cuts at a sentence boundary when possible, then a
// word boundary, always ending with an ellipsis.
func smartTruncate(text string, maxLength int) string {
	if len(text) <= maxLength {
		return text
	}

	sentences := strings.Split(text, ". ")
	if len(sentences) > 1 {
		truncated := sentences[0]
		for _, sentence := range sentences[1:] {
			if len(truncated)+2+len(sentence) <= maxLength-3 {
				truncated += ". " + sentence
			} else {
				break
			}
		}
		if len(truncated) < maxLength-3 {
			return truncated + "..."
		}
	}

	truncated := ""
	for _, word := range strings.Fields(text) {
		next := word
		if truncated != "" {
			next = truncated + " " + word
		}
		if len(next) <= maxLength-3 {
			truncated = next
		} else {
			break
		}
	}
	return strings.TrimSpace(truncated) + "..."
}
