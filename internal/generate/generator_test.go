package generate

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blueherald/blueherald/internal/models"
)

func bullishNews() models.NewsItem {
	return models.NewsItem{
		Headline:       "Bitcoin surges past $80K as ETF inflows accelerate",
		Summary:        "Spot ETFs recorded $1.2B of inflows this week. Analysts expect the rally to continue into the quarter.",
		Source:         "CoinDesk",
		Timestamp:      time.Now(),
		RelevanceScore: 0.9,
		Topics:         []string{"Bitcoin", "Trading"},
	}
}

func seededGenerator() *Generator {
	return NewGeneratorWithSeed(DefaultConfig(), 42)
}

func TestGenerateNewsContent(t *testing.T) {
	g := seededGenerator()

	content, err := g.Generate(context.Background(), bullishNews(), models.ContentTypeNews, 0.8)
	require.NoError(t, err)

	assert.NotEmpty(t, content.Text)
	assert.Equal(t, models.ContentTypeNews, content.ContentType)
	assert.NotEmpty(t, content.Hashtags)
	assert.LessOrEqual(t, len(content.Hashtags), 3)
	assert.Greater(t, content.EngagementScore, 0.0)
	assert.Equal(t, "Bitcoin surges past $80K as ETF inflows accelerate", content.SourceNews.Headline)
}

func TestGenerateStaysWithinBudget(t *testing.T) {
	g := seededGenerator()

	long := bullishNews()
	long.Headline = strings.Repeat("Bitcoin breaks another all-time high record ", 5)
	long.Summary = strings.Repeat("The market absorbed the move without any meaningful pullback so far. ", 10)

	for _, ct := range []models.ContentType{
		models.ContentTypeNews, models.ContentTypeAnalysis,
		models.ContentTypeOpinion, models.ContentTypeMarketUpdate,
	} {
		content, err := g.Generate(context.Background(), long, ct, 0.8)
		require.NoError(t, err)

		total := len(content.Text)
		if len(content.Hashtags) > 0 {
			total += 1 + len(strings.Join(content.Hashtags, " "))
		}
		assert.LessOrEqual(t, total, models.MaxPostLength, "content type %s", ct)
	}
}

func TestGenerateDeterministicWithSeed(t *testing.T) {
	a := NewGeneratorWithSeed(DefaultConfig(), 7)
	b := NewGeneratorWithSeed(DefaultConfig(), 7)

	first, err := a.Generate(context.Background(), bullishNews(), models.ContentTypeOpinion, 0.8)
	require.NoError(t, err)
	second, err := b.Generate(context.Background(), bullishNews(), models.ContentTypeOpinion, 0.8)
	require.NoError(t, err)

	assert.Equal(t, first.Text, second.Text)
	assert.Equal(t, first.Hashtags, second.Hashtags)
}

func TestGenerateRejectsInvalidNews(t *testing.T) {
	g := seededGenerator()

	_, err := g.Generate(context.Background(), models.NewsItem{}, models.ContentTypeNews, 0.8)
	require.Error(t, err)
}

func TestGenerateHonorsContextCancel(t *testing.T) {
	g := seededGenerator()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.Generate(ctx, bullishNews(), models.ContentTypeNews, 0.8)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAnalyzeSentiment(t *testing.T) {
	assert.Equal(t, "bullish", analyzeSentiment("Bitcoin surge continues with strong gains"))
	assert.Equal(t, "bearish", analyzeSentiment("Market crash deepens as prices fall"))
	assert.Equal(t, "neutral", analyzeSentiment("Exchange announces new listing process"))
}

func TestKeyInsight(t *testing.T) {
	assert.Equal(t, "First sentence here",
		keyInsight("First sentence here. Second sentence follows."))

	long := strings.Repeat("x", 150)
	insight := keyInsight(long)
	assert.Len(t, insight, 100)
	assert.True(t, strings.HasSuffix(insight, "..."))
}

func TestExtractDataPoints(t *testing.T) {
	got := extractDataPoints("BTC gained 5.2% to $80K on volume of 12B")
	assert.Contains(t, got, "5.2%")
	assert.Contains(t, got, "$80K")

	assert.Empty(t, extractDataPoints("no figures in this text"))
}

func TestRelevantHashtags(t *testing.T) {
	tags := RelevantHashtags([]string{"Bitcoin", "Trading"}, 3)
	assert.Contains(t, tags, "#Bitcoin")
	assert.LessOrEqual(t, len(tags), 3)

	fallback := RelevantHashtags(nil, 3)
	assert.NotEmpty(t, fallback)
	assert.Contains(t, fallback, "#Crypto")
}

func TestEstimateEngagement(t *testing.T) {
	rich := "🚨 BREAKING: Bitcoin smashes through resistance in a huge move. What do you think? 🚀"
	flat := "An exchange updated its terms of service."

	richScore := EstimateEngagement(rich, []string{"#Bitcoin"}, []string{"Bitcoin"})
	flatScore := EstimateEngagement(flat, nil, nil)

	assert.Greater(t, richScore, flatScore)
	assert.GreaterOrEqual(t, richScore, 0.5)
	assert.LessOrEqual(t, richScore, 1.0)
}

func TestSmartTruncate(t *testing.T) {
	text := "First sentence is short. Second sentence is also fairly short. Third one pushes it over the limit for sure."
	truncated := smartTruncate(text, 60)
	assert.LessOrEqual(t, len(truncated), 60)
	assert.True(t, strings.HasSuffix(truncated, "..."))

	assert.Equal(t, "untouched", smartTruncate("untouched", 60))
}
