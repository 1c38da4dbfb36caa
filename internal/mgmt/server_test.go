package mgmt

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blueherald/blueherald/internal/agent"
	"github.com/blueherald/blueherald/internal/alerts"
	"github.com/blueherald/blueherald/internal/archive"
	"github.com/blueherald/blueherald/internal/filter"
	"github.com/blueherald/blueherald/internal/metrics"
	"github.com/blueherald/blueherald/internal/models"
	"github.com/blueherald/blueherald/internal/optimize"
	"github.com/blueherald/blueherald/internal/scheduler"
)

type stubNews struct{}

func (stubNews) FetchLatest(ctx context.Context, query string, limit int) ([]models.NewsItem, error) {
	return []models.NewsItem{{
		Headline:       "Bitcoin adoption grows",
		Summary:        "Institutional interest keeps climbing.",
		Source:         "Test Wire",
		RelevanceScore: 0.9,
		Timestamp:      time.Now(),
	}}, nil
}

type stubGenerator struct{}

func (stubGenerator) Generate(ctx context.Context, news models.NewsItem, contentType models.ContentType, targetEngagement float64) (models.GeneratedContent, error) {
	return models.GeneratedContent{
		Text:            "Market analysis shows strong development in the Bitcoin ecosystem as institutional adoption grows steadily across major exchanges.",
		Hashtags:        []string{"#Bitcoin"},
		EngagementScore: 0.8,
		ContentType:     contentType,
		SourceNews:      news,
		CreatedAt:       time.Now(),
	}, nil
}

type stubPublisher struct{}

func (stubPublisher) Publish(ctx context.Context, content models.GeneratedContent) models.PostResult {
	return models.PostResult{Success: true, PostID: "at://did:plc:test/app.bsky.feed.post/1", Content: content, Timestamp: time.Now()}
}

func newTestServer(t *testing.T) (*Server, *agent.Agent) {
	t.Helper()
	store, err := archive.Open(archive.DefaultConfig())
	require.NoError(t, err)
	registry := metrics.NewRegistry()
	alertMgr := alerts.NewManager()
	optimizer := optimize.NewService()
	optimizer.SetMetrics(registry)
	ag := agent.New(agent.DefaultConfig(), agent.Deps{
		News:      stubNews{},
		Generator: stubGenerator{},
		Publisher: stubPublisher{},
		Optimizer: optimizer,
		Filter:    filter.New(filter.DefaultConfig()),
		Metrics:   registry,
		Alerts:    alertMgr,
		Archive:   store,
	})
	sched, err := scheduler.NewScheduler(scheduler.DefaultConfig(), func(ctx context.Context) error {
		_, werr := ag.ExecuteWorkflow(ctx)
		return werr
	})
	require.NoError(t, err)
	srv := NewServer(DefaultConfig(), Deps{
		Agent:      ag,
		Optimizer:  optimizer,
		Scheduler:  sched,
		Metrics:    registry,
		Alerts:     alertMgr,
		Archive:    store,
		ConfigView: map[string]interface{}{"posting_interval_minutes": 30},
	})
	return srv, ag
}

func getJSON(t *testing.T, handler http.Handler, path string) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	var body map[string]interface{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec.Code, body
}

func postJSON(t *testing.T, handler http.Handler, path string, payload interface{}) (int, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if payload != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(payload))
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	var body map[string]interface{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec.Code, body
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	code, body := getJSON(t, srv.Handler(), "/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body["status"])
}

func TestDetailedHealthDegradedWhenSchedulerStopped(t *testing.T) {
	srv, _ := newTestServer(t)
	code, body := getJSON(t, srv.Handler(), "/health/detailed")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "degraded", body["status"])
	components := body["components"].(map[string]interface{})
	assert.Contains(t, components, "scheduler")
	assert.Contains(t, components, "archive")
}

func TestStatusEndpoint(t *testing.T) {
	srv, ag := newTestServer(t)
	_, err := ag.ExecuteWorkflow(context.Background())
	require.NoError(t, err)

	code, body := getJSON(t, srv.Handler(), "/status")
	assert.Equal(t, http.StatusOK, code)
	workflow := body["workflow"].(map[string]interface{})
	assert.Equal(t, float64(1), workflow["successful_posts"])
	counters := body["counters"].(map[string]interface{})
	assert.Equal(t, float64(1), counters["blueherald_posts_published_total"])
}

func TestActivityLimitValidation(t *testing.T) {
	srv, _ := newTestServer(t)
	code, _ := getJSON(t, srv.Handler(), "/activity?limit=0")
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = getJSON(t, srv.Handler(), "/activity?limit=101")
	assert.Equal(t, http.StatusBadRequest, code)
	code, body := getJSON(t, srv.Handler(), "/activity?limit=5")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(0), body["count"])
}

func TestActivityAfterWorkflow(t *testing.T) {
	srv, ag := newTestServer(t)
	_, err := ag.ExecuteWorkflow(context.Background())
	require.NoError(t, err)

	code, body := getJSON(t, srv.Handler(), "/activity")
	assert.Equal(t, http.StatusOK, code)
	assert.Greater(t, body["count"].(float64), float64(0))
}

func TestConfigEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	code, body := getJSON(t, srv.Handler(), "/config")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(30), body["posting_interval_minutes"])
}

func TestOverrideLifecycle(t *testing.T) {
	srv, ag := newTestServer(t)

	code, _ := postJSON(t, srv.Handler(), "/overrides", map[string]interface{}{
		"type": agent.OverrideSkipPosting, "duration_minutes": 10,
	})
	assert.Equal(t, http.StatusOK, code)

	active, _ := ag.Overrides().IsActive(agent.OverrideSkipPosting)
	assert.True(t, active)

	code, body := getJSON(t, srv.Handler(), "/overrides")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), body["count"])

	req := httptest.NewRequest(http.MethodDelete, "/overrides/"+agent.OverrideSkipPosting, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/overrides/"+agent.OverrideSkipPosting, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOverrideRejectsUnknownType(t *testing.T) {
	srv, _ := newTestServer(t)
	code, _ := postJSON(t, srv.Handler(), "/overrides", map[string]interface{}{"type": "bogus"})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestSkipNextPostControl(t *testing.T) {
	srv, ag := newTestServer(t)
	code, _ := postJSON(t, srv.Handler(), "/control/skip-next-post", nil)
	assert.Equal(t, http.StatusOK, code)

	active, value := ag.Overrides().IsActive(agent.OverrideSkipPosting)
	assert.True(t, active)
	assert.Equal(t, "true", value)
}

func TestForceApproveControl(t *testing.T) {
	srv, ag := newTestServer(t)
	code, _ := postJSON(t, srv.Handler(), "/control/force-approve-content", map[string]interface{}{"duration_minutes": 15})
	assert.Equal(t, http.StatusOK, code)

	active, _ := ag.Overrides().IsActive(agent.OverrideForceApproval)
	assert.True(t, active)
}

func TestAlertEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	alert := srv.deps.Alerts.Trigger("Test Alert", "something happened", alerts.SeverityHigh, "test", nil)
	require.NotNil(t, alert)

	code, body := getJSON(t, srv.Handler(), "/alerts")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), body["count"])

	code, _ = postJSON(t, srv.Handler(), "/alerts/"+alert.ID+"/acknowledge", nil)
	assert.Equal(t, http.StatusOK, code)

	code, _ = postJSON(t, srv.Handler(), "/alerts/"+alert.ID+"/resolve", nil)
	assert.Equal(t, http.StatusOK, code)

	code, body = getJSON(t, srv.Handler(), "/alerts")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(0), body["count"])

	code, _ = postJSON(t, srv.Handler(), "/alerts/missing/resolve", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestTestEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	testID, err := srv.deps.Optimizer.InitializeDefaultTests()
	require.NoError(t, err)

	code, body := getJSON(t, srv.Handler(), "/tests")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), body["count"])

	code, _ = getJSON(t, srv.Handler(), "/tests/"+testID+"/analysis")
	assert.Equal(t, http.StatusOK, code)

	code, _ = getJSON(t, srv.Handler(), "/tests/"+testID+"/export")
	assert.Equal(t, http.StatusOK, code)

	code, _ = getJSON(t, srv.Handler(), "/tests/missing/analysis")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestOptimizationCycleEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	code, body := postJSON(t, srv.Handler(), "/optimize/cycle", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "result")
}

func TestArchivedPostsDisabled(t *testing.T) {
	srv, _ := newTestServer(t)
	code, _ := getJSON(t, srv.Handler(), "/archive/posts")
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestNotFoundHandler(t *testing.T) {
	srv, _ := newTestServer(t)
	code, body := getJSON(t, srv.Handler(), "/nope")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Contains(t, body["error"], "not found")
}

func TestRequestIDHeader(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Len(t, rec.Header().Get("X-Request-ID"), 8)
}

func TestActivityWebsocketStreamsEvents(t *testing.T) {
	srv, ag := newTestServer(t)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	// Recorded before the client connects so the history replay
	// delivers it without racing the subscription setup.
	ag.Activity().Record("test_event", "hello from the agent", nil)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/activity"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, "test_event", event.Type)
	assert.Equal(t, "hello from the agent", event.Message)
}
