package news

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testParser() *Parser {
	return NewParser([]string{"Bitcoin", "DeFi", "regulation"})
}

func TestRelevanceScore(t *testing.T) {
	p := testParser()

	// Two keywords (bitcoin, crypto... actually "bitcoin" and
	// "trading") plus one theme match.
	score := p.RelevanceScore("Bitcoin trading volume hits record high")
	assert.InDelta(t, 0.2+0.2, score, 1e-9)

	assert.Zero(t, p.RelevanceScore("Weather forecast for the weekend"))
}

func TestRelevanceScoreCaps(t *testing.T) {
	p := testParser()

	// Every keyword present at once: keyword half capped at 0.7,
	// theme half capped at 0.3.
	text := "bitcoin btc ethereum eth cryptocurrency crypto blockchain defi nft altcoin " +
		"dogecoin cardano solana regulation"
	score := p.RelevanceScore(text)
	assert.LessOrEqual(t, score, 1.0)
	assert.Greater(t, score, 0.7)
}

func TestExtractTopics(t *testing.T) {
	p := testParser()

	topics := p.ExtractTopics("Bitcoin and BTC dominance rises while Ethereum staking grows")
	assert.Equal(t, []string{"Bitcoin", "Ethereum", "Staking"}, topics)

	assert.Equal(t, []string{"Cryptocurrency"}, p.ExtractTopics("general market news"))
}

func TestParseTableFormat(t *testing.T) {
	p := testParser()

	content := `Here are the latest stories:

| Headline | Summary | Source | Date |
|----------|---------|--------|------|
| **Bitcoin rallies past resistance** | BTC gained 5% as spot ETF inflows accelerated. | CoinDesk | 2026-08-28 |
| Ethereum upgrade ships | The network upgrade activated without incident. | The Block | 2026-08-28 |`

	items := p.Parse(content, []string{"https://coindesk.com/btc-rally"})
	require.Len(t, items, 2)

	assert.Equal(t, "Bitcoin rallies past resistance", items[0].Headline)
	assert.Equal(t, "CoinDesk", items[0].Source)
	assert.Equal(t, "https://coindesk.com/btc-rally", items[0].URL)
	assert.Contains(t, items[0].Topics, "Bitcoin")
	assert.Greater(t, items[0].RelevanceScore, 0.0)

	assert.Equal(t, "Ethereum upgrade ships", items[1].Headline)
	assert.Equal(t, "The Block", items[1].Source)
}

func TestParseBulletFormat(t *testing.T) {
	p := testParser()

	content := `**1. Headline:** Solana outage resolved after four hours
- **Summary:** Validators restarted the network following a consensus stall.
It is the third outage this year.
- **Source Publication:** Decrypt

**2. Headline:** DeFi lending hits new high
- **Brief summary:** Total value locked crossed $120B across protocols.
- **Source Publication:** The Block`

	items := p.Parse(content, nil)
	require.Len(t, items, 2)

	assert.Equal(t, "Solana outage resolved after four hours", items[0].Headline)
	assert.Equal(t, "Decrypt", items[0].Source)
	// Multi-line summaries are joined.
	assert.Contains(t, items[0].Summary, "third outage this year")

	assert.Equal(t, "DeFi lending hits new high", items[1].Headline)
	assert.Contains(t, items[1].Topics, "DeFi")
}

func TestParseFallbackItem(t *testing.T) {
	p := testParser()

	items := p.Parse("Markets were quiet today with bitcoin trading sideways.", nil)
	require.Len(t, items, 1)
	assert.Equal(t, "Latest Cryptocurrency News Update", items[0].Headline)
	assert.Equal(t, "Perplexity AI", items[0].Source)
}

func TestParseEmptyContent(t *testing.T) {
	p := testParser()
	assert.Empty(t, p.Parse("", nil))
}

func TestParseSkipsIncompleteRows(t *testing.T) {
	p := testParser()

	content := `| Headline | Summary | Source |
|----------|---------|--------|
| Missing summary row | | CoinDesk |
| **Valid bitcoin story** | Bitcoinholders accumulate. | CoinDesk |`

	items := p.Parse(content, nil)
	require.Len(t, items, 1)
	assert.Equal(t, "Valid bitcoin story", items[0].Headline)
}
