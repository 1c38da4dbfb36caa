// Package publish posts content to Bluesky over the AT Protocol XRPC
// endpoints, with session reuse, retries and a circuit breaker.
package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/blueherald/blueherald/internal/models"
)

// Config holds Bluesky credentials and transport settings.
type Config struct {
	ServiceURL string        `yaml:"service_url"`
	Handle     string        `yaml:"handle"`
	Password   string        `yaml:"password"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	RatePerMin float64       `yaml:"rate_per_min"`
}

// DefaultConfig returns production posting settings.
func DefaultConfig() Config {
	return Config{
		ServiceURL: "https://bsky.social",
		Timeout:    15 * time.Second,
		MaxRetries: 2,
		RatePerMin: 10,
	}
}

// session is an authenticated AT Protocol session.
type session struct {
	DID        string `json:"did"`
	Handle     string `json:"handle"`
	AccessJWT  string `json:"accessJwt"`
	RefreshJWT string `json:"refreshJwt"`
}

// Client publishes posts to Bluesky. The session is created lazily
// and reset whenever the server rejects its token.
type Client struct {
	config  Config
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker

	mu      sync.Mutex
	session *session

	backoffUnit time.Duration
	now         func() time.Time
}

// NewClient builds a Bluesky publishing client.
func NewClient(config Config) *Client {
	settings := gobreaker.Settings{
		Name:        "bluesky",
		MaxRequests: 2,
		Interval:    60 * time.Second,
		Timeout:     45 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).
				Str("from", from.String()).Str("to", to.String()).
				Msg("publish circuit breaker state changed")
		},
	}

	return &Client{
		config:      config,
		http:        &http.Client{Timeout: config.Timeout},
		limiter:     rate.NewLimiter(rate.Limit(config.RatePerMin/60.0), 1),
		breaker:     gobreaker.NewCircuitBreaker(settings),
		backoffUnit: time.Second,
		now:         time.Now,
	}
}

// Publish posts the content and returns a PostResult either way:
// failures come back as an unsuccessful result, not an error, so the
// caller always has something to record.
func (c *Client) Publish(ctx context.Context, content models.GeneratedContent) models.PostResult {
	text := content.FullText()
	result := models.PostResult{
		Timestamp: c.now(),
		Content:   content,
	}

	if length := len([]rune(text)); length > models.MaxPostLength {
		result.Error = fmt.Sprintf("content exceeds character limit: %d/%d", length, models.MaxPostLength)
		log.Error().Int("length", length).Msg("refusing oversized post")
		return result
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * c.backoffUnit
			log.Debug().Int("attempt", attempt).Dur("backoff", backoff).Msg("retrying publish")
			select {
			case <-ctx.Done():
				result.Error = ctx.Err().Error()
				result.RetryCount = attempt
				return result
			case <-time.After(backoff):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			result.Error = fmt.Sprintf("rate limiter: %v", err)
			result.RetryCount = attempt
			return result
		}

		uri, err := c.attemptPost(ctx, text)
		if err == nil {
			result.Success = true
			result.PostID = uri
			result.RetryCount = attempt
			log.Info().Str("uri", uri).Int("retries", attempt).Msg("posted to bluesky")
			return result
		}
		lastErr = err

		if isAuthError(err) {
			c.resetSession()
		}
	}

	result.Error = fmt.Sprintf("failed to post after %d attempts: %v", c.config.MaxRetries+1, lastErr)
	result.RetryCount = c.config.MaxRetries + 1
	log.Error().Err(lastErr).Msg("publish failed")
	return result
}

func (c *Client) attemptPost(ctx context.Context, text string) (string, error) {
	uri, err := c.breaker.Execute(func() (interface{}, error) {
		sess, err := c.ensureSession(ctx)
		if err != nil {
			return nil, err
		}
		return c.createRecord(ctx, sess, text)
	})
	if err != nil {
		return "", err
	}
	return uri.(string), nil
}

func isAuthError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "auth") || strings.Contains(msg, "unauthorized") ||
		strings.Contains(msg, "expired token")
}

func (c *Client) resetSession() {
	c.mu.Lock()
	c.session = nil
	c.mu.Unlock()
}

// ensureSession returns the cached session or creates one via
// com.atproto.server.createSession.
func (c *Client) ensureSession(ctx context.Context) (*session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		return c.session, nil
	}

	payload, err := json.Marshal(map[string]string{
		"identifier": c.config.Handle,
		"password":   c.config.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("encode session request: %w", err)
	}

	body, err := c.xrpc(ctx, "com.atproto.server.createSession", payload, "")
	if err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}

	var sess session
	if err := json.Unmarshal(body, &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}

	c.session = &sess
	log.Info().Str("handle", sess.Handle).Msg("authenticated with bluesky")
	return c.session, nil
}

// createRecord publishes one app.bsky.feed.post record and returns
// its AT URI.
func (c *Client) createRecord(ctx context.Context, sess *session, text string) (string, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"repo":       sess.DID,
		"collection": "app.bsky.feed.post",
		"record": map[string]interface{}{
			"$type":     "app.bsky.feed.post",
			"text":      text,
			"createdAt": c.now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return "", fmt.Errorf("encode record: %w", err)
	}

	body, err := c.xrpc(ctx, "com.atproto.repo.createRecord", payload, sess.AccessJWT)
	if err != nil {
		return "", fmt.Errorf("failed to create post: %w", err)
	}

	var created struct {
		URI string `json:"uri"`
		CID string `json:"cid"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		return "", fmt.Errorf("decode record response: %w", err)
	}
	return created.URI, nil
}

func (c *Client) xrpc(ctx context.Context, method string, payload []byte, token string) ([]byte, error) {
	url := fmt.Sprintf("%s/xrpc/%s", c.config.ServiceURL, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", method, err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("%s: %s: %s", method, apiErr.Error, apiErr.Message)
		}
		return nil, fmt.Errorf("%s: status %d", method, resp.StatusCode)
	}
	return body, nil
}
