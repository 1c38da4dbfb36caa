package filter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blueherald/blueherald/internal/models"
)

func testContent(text string, hashtags []string, topics []string) models.GeneratedContent {
	return models.GeneratedContent{
		Text:            text,
		Hashtags:        hashtags,
		EngagementScore: 0.8,
		ContentType:     models.ContentTypeNews,
		SourceNews: models.NewsItem{
			Headline:       "headline",
			Summary:        "summary",
			Source:         "source",
			Timestamp:      time.Now(),
			RelevanceScore: 0.9,
			Topics:         topics,
		},
		CreatedAt: time.Now(),
	}
}

func TestFilterApprovesQualityContent(t *testing.T) {
	f := New(DefaultConfig())
	content := testContent(
		"Ethereum ecosystem development accelerates as new research shows growing adoption across DeFi markets. #Ethereum #DeFi",
		[]string{"#Ethereum", "#DeFi"},
		[]string{"Ethereum", "DeFi"},
	)

	approved, decision := f.Filter(content)
	require.True(t, approved, "reasons: %v", decision.Reasons)
	assert.Equal(t, []string{"duplicate_detection", "quality_scoring", "content_moderation", "format_validation"},
		decision.ChecksPerformed)
	assert.GreaterOrEqual(t, decision.Scores["quality"], 0.6)
	assert.Contains(t, decision.Reasons, "All quality checks passed")

	// Approval must not implicitly add to history.
	assert.Equal(t, 0, f.HistorySize())
}

func TestFilterRejectsExactDuplicate(t *testing.T) {
	f := New(DefaultConfig())
	content := testContent("Bitcoin hits $100k! #Bitcoin #Crypto",
		[]string{"#Bitcoin", "#Crypto"}, []string{"Bitcoin"})

	f.AddToHistory(content)

	approved, decision := f.Filter(content)
	assert.False(t, approved)
	assert.Equal(t, 1.0, decision.Scores["similarity"])
	assert.Contains(t, decision.Reasons[0], "Duplicate content detected")
}

func TestFilterRejectsNearDuplicate(t *testing.T) {
	f := New(DefaultConfig())
	f.AddToHistory(testContent(
		"Bitcoin shows strong bullish signals in technical analysis #Bitcoin",
		[]string{"#Bitcoin"}, []string{"Bitcoin"}))

	approved, decision := f.Filter(testContent(
		"Bitcoin displays strong bullish indicators in technical analysis #Bitcoin",
		[]string{"#Bitcoin"}, []string{"Bitcoin"}))

	assert.False(t, approved)
	assert.Greater(t, decision.Scores["similarity"], 0.75)
}

func TestFilterReportsMaxSimilarityWhenNotRejecting(t *testing.T) {
	f := New(DefaultConfig())
	f.AddToHistory(testContent(
		"Solana network throughput reaches new highs during stress testing #Solana",
		[]string{"#Solana"}, []string{"Solana"}))

	approved, decision := f.Filter(testContent(
		"Ethereum ecosystem development accelerates as new research shows growing adoption across DeFi markets. #Ethereum #DeFi",
		[]string{"#Ethereum", "#DeFi"}, []string{"Ethereum"}))

	require.True(t, approved)
	assert.Greater(t, decision.Scores["similarity"], 0.0)
	assert.LessOrEqual(t, decision.Scores["similarity"], 0.75)
}

func TestFilterRejectsLowQualitySpam(t *testing.T) {
	f := New(DefaultConfig())
	approved, decision := f.Filter(testContent(
		"MOON LAMBO!!! 🚀🚀🚀🚀🚀 #MOON #LAMBO #HODL #DIAMOND #HANDS #CRYPTO",
		[]string{"#MOON", "#LAMBO"}, []string{"Bitcoin"}))

	assert.False(t, approved)
	assert.Less(t, decision.Scores["quality"], 0.6)
	assert.Contains(t, decision.Reasons[0], "Quality score too low")
}

func TestFilterRejectsInappropriateContent(t *testing.T) {
	f := New(DefaultConfig())
	approved, decision := f.Filter(testContent(
		"This guaranteed profit opportunity in crypto analysis shows the ecosystem is a ponzi with community research data. #Crypto #Research",
		[]string{"#Crypto", "#Research"}, []string{"Crypto"}))

	assert.False(t, approved)
	require.NotNil(t, decision.Moderation)
	assert.NotEmpty(t, decision.Moderation.PatternsFound)
	assert.Contains(t, []string{"medium", "high"}, decision.Moderation.Severity)
}

func TestModerationSeverityLevels(t *testing.T) {
	two := moderate("this scam offers guaranteed profit")
	assert.Equal(t, "medium", two.Severity)

	three := moderate("this scam is a pump and dump with guaranteed profit")
	assert.Equal(t, "high", three.Severity)

	clean := moderate("solid protocol research and data")
	assert.Equal(t, "none", clean.Severity)
	assert.Empty(t, clean.PatternsFound)
}

func TestFilterRejectsBadFormat(t *testing.T) {
	f := New(DefaultConfig())

	// Quality-passing text but malformed hashtag list.
	content := testContent(
		"Ethereum ecosystem development accelerates as new research shows growing adoption across DeFi markets. #Ethereum #DeFi",
		[]string{"Ethereum", "#"},
		[]string{"Ethereum"})

	approved, decision := f.Filter(content)
	assert.False(t, approved)
	assert.Len(t, decision.FormatIssues, 2)

	badScore := testContent(
		"Ethereum ecosystem development accelerates as new research shows growing adoption across DeFi markets. #Ethereum #DeFi",
		[]string{"#Ethereum"}, []string{"Ethereum"})
	badScore.EngagementScore = 1.4
	approved, decision = f.Filter(badScore)
	assert.False(t, approved)
	assert.Contains(t, decision.FormatIssues[0], "Invalid engagement score")
}

func TestRetentionWindow(t *testing.T) {
	f := New(DefaultConfig())
	retention := f.config.Retention

	stale := "Stale analysis of Bitcoin market data shows community adoption trends from last week #Bitcoin #Crypto"

	// One item just past the retention window, one just inside it.
	f.now = func() time.Time { return time.Now().Add(-(retention + time.Hour)) }
	f.AddToHistory(testContent(stale, []string{"#Bitcoin"}, []string{"Bitcoin"}))

	f.now = func() time.Time { return time.Now().Add(-(retention - time.Hour)) }
	f.AddToHistory(testContent("Fresh post about Ethereum research developments #Ethereum",
		[]string{"#Ethereum"}, []string{"Ethereum"}))

	f.now = time.Now
	require.Equal(t, 2, f.HistorySize())

	f.Filter(testContent(
		"Ethereum ecosystem development accelerates as new research shows growing adoption across DeFi markets. #Ethereum #DeFi",
		[]string{"#Ethereum"}, []string{"Ethereum"}))

	assert.Equal(t, 1, f.HistorySize(), "only the item inside the retention window survives")

	// The stale text is postable again after its hash was purged.
	approved, _ := f.Filter(testContent(stale, []string{"#Bitcoin"}, []string{"Bitcoin"}))
	assert.True(t, approved)
}

func TestHistoryBounded(t *testing.T) {
	config := DefaultConfig()
	config.HistorySize = 3
	f := New(config)

	texts := []string{
		"First analysis of Bitcoin market data shows steady community adoption across spot markets #Bitcoin #Markets",
		"Second research note on Ethereum staking economics highlights validator technology shifts #Ethereum #Staking",
		"Third review of Solana network throughput data shows developer ecosystem growth this quarter #Solana #Data",
		"Fourth briefing on Cardano governance research covers community partnership development #Cardano #Gov",
	}
	for _, text := range texts {
		f.AddToHistory(testContent(text, []string{"#Crypto"}, []string{"Crypto"}))
	}

	assert.Equal(t, 3, f.HistorySize())

	// The evicted item's hash no longer blocks reposting.
	approved, _ := f.Filter(testContent(texts[0], []string{"#Bitcoin"}, []string{"Bitcoin"}))
	assert.True(t, approved)
}

func TestHistoryStats(t *testing.T) {
	f := New(DefaultConfig())
	assert.Equal(t, HistoryStats{}, f.Stats())

	a := testContent("First unique post about Bitcoin market structure today #Bitcoin",
		[]string{"#Bitcoin"}, []string{"Bitcoin", "Markets"})
	a.EngagementScore = 0.6
	f.AddToHistory(a)

	b := testContent("Second unique post about Ethereum staking economics today #Ethereum",
		[]string{"#Ethereum"}, []string{"Ethereum", "Markets"})
	b.EngagementScore = 0.8
	f.AddToHistory(b)

	stats := f.Stats()
	assert.Equal(t, 2, stats.TotalItems)
	assert.Equal(t, 0.7, stats.AvgEngagementScore)
	require.NotEmpty(t, stats.TopTopics)
	assert.Equal(t, "Markets", stats.TopTopics[0].Topic)
	assert.Equal(t, 2, stats.TopTopics[0].Count)
	assert.GreaterOrEqual(t, stats.OldestItemAgeHours, 0.0)
}
