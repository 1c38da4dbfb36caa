// Package generate produces short-form post candidates from news
// items using template tables, hook phrases and topic-driven hashtag
// selection.
package generate

import (
	"regexp"
	"strings"
)

// engagementHooks open posts with an attention grab. Scoring checks
// for their presence.
var engagementHooks = []string{
	"🚨 BREAKING:",
	"🔥 HOT TAKE:",
	"💡 INSIGHT:",
	"⚡ QUICK UPDATE:",
	"🎯 PREDICTION:",
	"📈 BULLISH:",
	"📉 BEARISH:",
	"🤔 THOUGHTS:",
	"💰 OPPORTUNITY:",
	"⚠️ WARNING:",
}

// templates per content type. Placeholders are filled positionally by
// the generator.
var (
	newsTemplates = []string{
		"%[1]s %[2]s - %[3]s",
		"%[1]s %[2]s. This could mean big moves ahead. 👀",
		"%[1]s %[2]s! %[3]s",
	}
	analysisTemplates = []string{
		"%[1]s %[2]s. Here's why this matters: %[3]s",
		"Everyone's talking about this, but here's what they're missing: %[2]s",
		"%[1]s %[2]s. The implications are huge.",
	}
	opinionTemplates = []string{
		"%[1]s Unpopular opinion - %[2]s. %[3]s",
		"Hot take: %[2]s. %[3]s Thoughts?",
		"%[1]s %[2]s. Change my mind.",
	}
	marketTemplates = []string{
		"%[1]s %[2]s is %[3]s! %[4]s",
		"Market update: %[2]s %[3]s. %[4]s",
		"%[1]s %[2]s %[3]s. What's your take? %[4]s",
	}
)

// hashtagSets maps topic families to candidate hashtags.
var hashtagSets = map[string][]string{
	"bitcoin":  {"#Bitcoin", "#BTC", "#DigitalGold"},
	"ethereum": {"#Ethereum", "#ETH", "#SmartContracts"},
	"defi":     {"#DeFi", "#DecentralizedFinance", "#YieldFarming"},
	"nft":      {"#NFT", "#NFTs", "#DigitalArt"},
	"trading":  {"#CryptoTrading", "#TradingView", "#TechnicalAnalysis"},
	"general":  {"#Crypto", "#Blockchain", "#Web3", "#HODL", "#ToTheMoon"},
}

// hookFor chooses the lead-in hook for a content type, falling back
// to sentiment-based hooks for news and market updates.
func hookFor(contentType, sentiment string) string {
	switch contentType {
	case "analysis":
		return "💡 INSIGHT:"
	case "opinion":
		return "🔥 HOT TAKE:"
	}
	switch sentiment {
	case "bullish":
		return "📈 BULLISH:"
	case "bearish":
		return "📉 BEARISH:"
	}
	if contentType == "news" {
		return "🚨 BREAKING:"
	}
	return "⚡ QUICK UPDATE:"
}

// RelevantHashtags picks up to max hashtags keyed off the item's
// topics, with a general fallback.
func RelevantHashtags(topics []string, max int) []string {
	var hashtags []string
	seen := make(map[string]bool)
	add := func(tags []string, n int) {
		for i, tag := range tags {
			if i >= n {
				return
			}
			if !seen[tag] {
				seen[tag] = true
				hashtags = append(hashtags, tag)
			}
		}
	}

	for _, topic := range topics {
		lower := strings.ToLower(topic)
		switch {
		case strings.Contains(lower, "bitcoin") || strings.Contains(lower, "btc"):
			add(hashtagSets["bitcoin"], 2)
		case strings.Contains(lower, "ethereum") || strings.Contains(lower, "eth"):
			add(hashtagSets["ethereum"], 2)
		case strings.Contains(lower, "defi"):
			add(hashtagSets["defi"], 2)
		case strings.Contains(lower, "nft"):
			add(hashtagSets["nft"], 2)
		case strings.Contains(lower, "trading") || strings.Contains(lower, "price") || strings.Contains(lower, "market"):
			add(hashtagSets["trading"], 2)
		default:
			add(hashtagSets["general"], 1)
		}
	}
	if len(hashtags) == 0 {
		add(hashtagSets["general"], 2)
	}
	if len(hashtags) > max {
		hashtags = hashtags[:max]
	}
	return hashtags
}

var bullishWords = []string{"surge", "rally", "bull", "up", "gain", "rise", "pump", "moon", "bullish", "positive"}
var bearishWords = []string{"crash", "dump", "bear", "down", "fall", "drop", "decline", "bearish", "negative"}

// analyzeSentiment classifies text by counting directional keywords.
func analyzeSentiment(text string) string {
	lower := strings.ToLower(text)

	bullish := 0
	for _, word := range bullishWords {
		if strings.Contains(lower, word) {
			bullish++
		}
	}
	bearish := 0
	for _, word := range bearishWords {
		if strings.Contains(lower, word) {
			bearish++
		}
	}

	switch {
	case bullish > bearish:
		return "bullish"
	case bearish > bullish:
		return "bearish"
	default:
		return "neutral"
	}
}

// keyInsight extracts the first sentence of a summary, trimmed to
// 100 characters.
func keyInsight(summary string) string {
	sentence := summary
	if idx := strings.Index(summary, ". "); idx >= 0 {
		sentence = summary[:idx]
	}
	sentence = strings.TrimSpace(sentence)
	if len(sentence) > 100 {
		return sentence[:97] + "..."
	}
	return sentence
}

var dataPointPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\d+\.?\d*%`),
	regexp.MustCompile(`\$\d+\.?\d*[KMB]?`),
	regexp.MustCompile(`\d+\.?\d*[KMB]`),
}

// extractDataPoints pulls up to three numeric figures out of text.
func extractDataPoints(text string) string {
	var points []string
	for _, pattern := range dataPointPatterns {
		points = append(points, pattern.FindAllString(text, -1)...)
	}
	if len(points) > 3 {
		points = points[:3]
	}
	return strings.Join(points, ", ")
}
