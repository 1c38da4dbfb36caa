package news

import (
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/blueherald/blueherald/internal/models"
)

// cryptoKeywords drive the keyword half of relevance scoring.
var cryptoKeywords = []string{
	"bitcoin", "btc", "ethereum", "eth", "cryptocurrency", "crypto", "blockchain",
	"defi", "nft", "altcoin", "dogecoin", "cardano", "solana", "polygon", "avalanche",
	"chainlink", "uniswap", "binance", "coinbase", "trading", "mining", "staking",
	"web3", "metaverse", "dao", "yield farming", "liquidity", "smart contract",
}

// topicMapping maps keyword hits to canonical topic labels. Order
// matters when several keywords refer to the same topic.
var topicMapping = []struct {
	keyword string
	topic   string
}{
	{"bitcoin", "Bitcoin"},
	{"btc", "Bitcoin"},
	{"ethereum", "Ethereum"},
	{"eth", "Ethereum"},
	{"defi", "DeFi"},
	{"nft", "NFTs"},
	{"dogecoin", "Dogecoin"},
	{"cardano", "Cardano"},
	{"solana", "Solana"},
	{"polygon", "Polygon"},
	{"avalanche", "Avalanche"},
	{"chainlink", "Chainlink"},
	{"uniswap", "Uniswap"},
	{"binance", "Binance"},
	{"coinbase", "Coinbase"},
	{"trading", "Trading"},
	{"mining", "Mining"},
	{"staking", "Staking"},
	{"web3", "Web3"},
	{"metaverse", "Metaverse"},
	{"dao", "DAO"},
}

// Parser turns the search API's prose answer into structured news
// items. It understands both the markdown table and the bulleted
// formats the API produces, with a whole-answer fallback.
type Parser struct {
	themes []string
	now    func() time.Time
}

// NewParser creates a parser scoring against the given content themes.
func NewParser(themes []string) *Parser {
	lowered := make([]string, len(themes))
	for i, theme := range themes {
		lowered[i] = strings.ToLower(theme)
	}
	return &Parser{themes: lowered, now: time.Now}
}

// RelevanceScore combines keyword density (up to 0.7) with theme
// matches (up to 0.3), clamped to 1.0.
func (p *Parser) RelevanceScore(text string) float64 {
	lower := strings.ToLower(text)

	keywordMatches := 0
	for _, keyword := range cryptoKeywords {
		if strings.Contains(lower, keyword) {
			keywordMatches++
		}
	}
	keywordScore := float64(keywordMatches) / 10
	if keywordScore > 0.7 {
		keywordScore = 0.7
	}

	themeMatches := 0
	for _, theme := range p.themes {
		if strings.Contains(lower, theme) {
			themeMatches++
		}
	}
	themeScore := float64(themeMatches) / 5
	if themeScore > 0.3 {
		themeScore = 0.3
	}

	score := keywordScore + themeScore
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// ExtractTopics returns the canonical topics mentioned in text, or
// a generic Cryptocurrency topic when nothing matched.
func (p *Parser) ExtractTopics(text string) []string {
	lower := strings.ToLower(text)

	var topics []string
	seen := make(map[string]bool)
	for _, entry := range topicMapping {
		if strings.Contains(lower, entry.keyword) && !seen[entry.topic] {
			topics = append(topics, entry.topic)
			seen[entry.topic] = true
		}
	}
	if len(topics) == 0 {
		topics = append(topics, "Cryptocurrency")
	}
	return topics
}

// Parse extracts news items from the answer text. Citation URLs are
// attached in order where available.
func (p *Parser) Parse(content string, citations []string) []models.NewsItem {
	var items []models.NewsItem

	if strings.Contains(content, "|") && strings.Contains(content, "Headline") {
		items = p.parseTable(content, citations)
	} else {
		items = p.parseBullets(content, citations)
	}

	// Structured parsing found nothing; keep the cycle alive with a
	// single general item built from the whole answer.
	if len(items) == 0 && strings.TrimSpace(content) != "" {
		summary := content
		if len(summary) > 500 {
			summary = summary[:500] + "..."
		}
		if item, ok := p.buildItem("Latest Cryptocurrency News Update", summary, "", citations); ok {
			items = append(items, item)
		}
	}

	log.Debug().Int("items", len(items)).Msg("parsed news answer")
	return items
}

// parseTable handles the markdown table layout: header, separator,
// then one row per story.
func (p *Parser) parseTable(content string, citations []string) []models.NewsItem {
	var rows []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && strings.Contains(line, "|") {
			rows = append(rows, line)
		}
	}
	if len(rows) < 3 {
		return nil
	}

	var items []models.NewsItem
	for _, row := range rows[2:] {
		columns := strings.Split(row, "|")
		for i := range columns {
			columns[i] = strings.TrimSpace(columns[i])
		}
		if len(columns) < 4 {
			continue
		}

		headline := strings.TrimSpace(strings.Trim(columns[1], "*"))
		summary := columns[2]
		source := columns[3]
		if item, ok := p.buildItem(headline, summary, source, citations); ok {
			items = append(items, item)
		}
	}
	return items
}

// parseBullets handles the bulleted layout where each story starts
// with a bolded Headline line followed by Summary/Source bullets.
func (p *Parser) parseBullets(content string, citations []string) []models.NewsItem {
	var items []models.NewsItem

	var headline, summary, source string
	inItem := false

	flush := func() {
		if inItem {
			if item, ok := p.buildItem(headline, summary, source, citations); ok {
				items = append(items, item)
			}
		}
		headline, summary, source = "", "", ""
		inItem = false
	}

	for _, raw := range strings.Split(content, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "---") {
			continue
		}

		switch {
		case strings.HasPrefix(line, "**") && strings.Contains(line, "Headline:"):
			flush()
			_, rest, _ := strings.Cut(line, "Headline:")
			headline = strings.TrimSpace(strings.Trim(strings.TrimSpace(rest), "*"))
			inItem = true
		case strings.HasPrefix(line, "- **Summary:**") && inItem:
			summary = strings.TrimSpace(strings.TrimPrefix(line, "- **Summary:**"))
		case strings.HasPrefix(line, "- **Brief summary:**") && inItem:
			summary = strings.TrimSpace(strings.TrimPrefix(line, "- **Brief summary:**"))
		case strings.HasPrefix(line, "- **Source Publication:**") && inItem:
			source = strings.TrimSpace(strings.TrimPrefix(line, "- **Source Publication:**"))
		case inItem && summary != "" && !strings.HasPrefix(line, "- **"):
			// Continuation of a multi-line summary.
			summary += " " + line
		}
	}
	flush()
	return items
}

func (p *Parser) buildItem(headline, summary, source string, citations []string) (models.NewsItem, bool) {
	headline = strings.TrimSpace(headline)
	summary = strings.TrimSpace(summary)
	if headline == "" || summary == "" {
		return models.NewsItem{}, false
	}
	if source == "" {
		source = "Perplexity AI"
	}

	fullText := headline + " " + summary
	item := models.NewsItem{
		Headline:       headline,
		Summary:        summary,
		Source:         source,
		Timestamp:      p.now(),
		RelevanceScore: p.RelevanceScore(fullText),
		Topics:         p.ExtractTopics(fullText),
		RawContent:     fullText,
	}
	if len(citations) > 0 {
		item.URL = citations[0]
	}
	return item, true
}
