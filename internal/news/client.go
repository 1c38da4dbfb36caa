// Package news retrieves cryptocurrency headlines through the
// Perplexity search API with caching, rate limiting and circuit
// breaking in front of it.
package news

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/blueherald/blueherald/internal/models"
)

// Config controls the news client's transport behavior.
type Config struct {
	BaseURL       string        `yaml:"base_url"`
	APIKey        string        `yaml:"api_key"`
	Model         string        `yaml:"model"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxRetries    int           `yaml:"max_retries"`
	RatePerSec    float64       `yaml:"rate_per_sec"`
	Burst         int           `yaml:"burst"`
	CacheTTL      time.Duration `yaml:"cache_ttl"`
	MinRelevance  float64       `yaml:"min_relevance"`
	ContentThemes []string      `yaml:"content_themes"`
}

// DefaultConfig returns production transport settings.
func DefaultConfig() Config {
	return Config{
		BaseURL:      "https://api.perplexity.ai",
		Model:        "sonar-pro",
		Timeout:      30 * time.Second,
		MaxRetries:   3,
		RatePerSec:   2.0,
		Burst:        5,
		CacheTTL:     5 * time.Minute,
		MinRelevance: 0.1,
		ContentThemes: []string{
			"Bitcoin", "Ethereum", "DeFi", "NFTs", "regulation", "markets",
		},
	}
}

// maxBackoff caps retry sleep regardless of attempt count.
const maxBackoff = 30 * time.Second

// searchDomains restricts results to established crypto and financial
// publications.
var searchDomains = []string{
	"coindesk.com", "cointelegraph.com", "decrypt.co",
	"theblock.co", "bloomberg.com", "reuters.com",
}

// Client fetches news with a token-bucket limiter and a circuit
// breaker wrapped around every upstream call.
type Client struct {
	config  Config
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	cache   Cache
	parser  *Parser

	backoffUnit time.Duration
}

// NewClient builds a news client. A nil cache gets an in-process one.
func NewClient(config Config, cache Cache) *Client {
	if cache == nil {
		cache = NewMemoryCache()
	}

	settings := gobreaker.Settings{
		Name:        "perplexity",
		MaxRequests: 2,
		Interval:    60 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).
				Str("from", from.String()).Str("to", to.String()).
				Msg("news circuit breaker state changed")
		},
	}

	return &Client{
		config:      config,
		http:        &http.Client{Timeout: config.Timeout},
		limiter:     rate.NewLimiter(rate.Limit(config.RatePerSec), config.Burst),
		breaker:     gobreaker.NewCircuitBreaker(settings),
		cache:       cache,
		parser:      NewParser(config.ContentThemes),
		backoffUnit: time.Second,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model              string        `json:"model"`
	Messages           []chatMessage `json:"messages"`
	MaxTokens          int           `json:"max_tokens"`
	Temperature        float64       `json:"temperature"`
	TopP               float64       `json:"top_p"`
	ReturnCitations    bool          `json:"return_citations"`
	SearchDomainFilter []string      `json:"search_domain_filter"`
	ReturnImages       bool          `json:"return_images"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Citations []string `json:"citations"`
}

// FetchLatest returns up to limit stories matching query, most
// relevant first. Results are served from cache within the TTL.
func (c *Client) FetchLatest(ctx context.Context, query string, limit int) ([]models.NewsItem, error) {
	key := fmt.Sprintf("news:%s:%d", strings.ToLower(query), limit)
	if cached, ok, err := c.cache.Get(ctx, key); err == nil && ok {
		var items []models.NewsItem
		if err := json.Unmarshal(cached, &items); err == nil {
			log.Debug().Str("query", query).Int("items", len(items)).Msg("news cache hit")
			return items, nil
		}
	}

	body, err := c.searchWithRetry(ctx, query)
	if err != nil {
		return nil, err
	}

	var payload chatResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode news response: %w", err)
	}
	if len(payload.Choices) == 0 {
		return nil, fmt.Errorf("news response contained no choices")
	}

	items := c.parser.Parse(payload.Choices[0].Message.Content, payload.Citations)

	relevant := items[:0]
	for _, item := range items {
		if item.RelevanceScore >= c.config.MinRelevance {
			relevant = append(relevant, item)
		}
	}
	sort.SliceStable(relevant, func(i, j int) bool {
		return relevant[i].RelevanceScore > relevant[j].RelevanceScore
	})
	if limit > 0 && len(relevant) > limit {
		relevant = relevant[:limit]
	}

	if encoded, err := json.Marshal(relevant); err == nil {
		if err := c.cache.Set(ctx, key, encoded, c.config.CacheTTL); err != nil {
			log.Warn().Err(err).Msg("news cache write failed")
		}
	}

	log.Info().Str("query", query).Int("items", len(relevant)).Msg("news retrieved")
	return relevant, nil
}

// searchWithRetry retries 429 and 5xx responses with exponential
// backoff capped at 30s. Other 4xx responses fail immediately.
func (c *Client) searchWithRetry(ctx context.Context, query string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt)) * c.backoffUnit
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			log.Debug().Int("attempt", attempt).Dur("backoff", backoff).Msg("retrying news search")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}

		result, err := c.breaker.Execute(func() (interface{}, error) {
			return c.doSearch(ctx, query)
		})
		if err == nil {
			return result.([]byte), nil
		}
		lastErr = err

		if !isRetryable(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("news search failed after %d retries: %w", c.config.MaxRetries, lastErr)
}

// statusError marks upstream responses for retry classification.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("news api returned status %d", e.code)
}

func isRetryable(err error) bool {
	if se, ok := err.(*statusError); ok {
		switch se.code {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	// Breaker-open and transport errors are retryable; the breaker
	// itself throttles how often we actually hit the upstream.
	return true
}

func (c *Client) doSearch(ctx context.Context, query string) ([]byte, error) {
	prompt := fmt.Sprintf(`Search for the latest cryptocurrency news about: %s

Please provide recent news articles with the following information for each:
- Headline
- Brief summary (2-3 sentences)
- Source publication
- Publication date/time
- Relevance to cryptocurrency market
- Key topics covered
- URL if available

Focus on news from the last 24-48 hours. Prioritize major crypto publications and mainstream financial news.
Return results in a structured format.`, query)

	payload := chatRequest{
		Model: c.config.Model,
		Messages: []chatMessage{
			{
				Role:    "system",
				Content: "You are a cryptocurrency news aggregator. Provide accurate, recent news with proper source attribution.",
			},
			{Role: "user", Content: prompt},
		},
		MaxTokens:          2000,
		Temperature:        0.2,
		TopP:               0.9,
		ReturnCitations:    true,
		SearchDomainFilter: searchDomains,
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode news request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.config.BaseURL+"/chat/completions", bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("build news request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("news request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, &statusError{code: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read news response: %w", err)
	}
	return body, nil
}
