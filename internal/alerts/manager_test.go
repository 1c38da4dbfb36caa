package alerts

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager() (*Manager, *time.Time) {
	m := NewManager()
	current := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return current }
	return m, &current
}

func TestTriggerRecordsAlert(t *testing.T) {
	m, _ := newTestManager()

	alert := m.Trigger("Post failed", "publish returned an error", SeverityHigh, "publisher",
		map[string]string{"retries": "3"})

	require.NotNil(t, alert)
	assert.NotEmpty(t, alert.ID)
	assert.False(t, alert.Resolved)

	active := m.Active("")
	require.Len(t, active, 1)
	assert.Equal(t, "Post failed", active[0].Title)
}

func TestTriggerCooldown(t *testing.T) {
	m, current := newTestManager()

	require.NotNil(t, m.Trigger("Post failed", "first", SeverityHigh, "publisher", nil))
	assert.Nil(t, m.Trigger("Post failed", "too soon", SeverityHigh, "publisher", nil))

	// Different title is a different key.
	assert.NotNil(t, m.Trigger("Other failure", "allowed", SeverityHigh, "publisher", nil))

	*current = current.Add(6 * time.Minute)
	assert.NotNil(t, m.Trigger("Post failed", "after cooldown", SeverityHigh, "publisher", nil))
}

func TestTriggerHourlyLimit(t *testing.T) {
	m, current := newTestManager()

	// 12 attempts spaced 5 minutes apart all land inside one hour.
	fired := 0
	for i := 0; i < 12; i++ {
		if m.Trigger("Flapping", "again", SeverityMedium, "news", nil) != nil {
			fired++
		}
		*current = current.Add(5 * time.Minute)
	}
	assert.Equal(t, maxPerHour, fired)
}

func TestAcknowledgeAndResolve(t *testing.T) {
	m, _ := newTestManager()
	alert := m.Trigger("Post failed", "err", SeverityHigh, "publisher", nil)
	require.NotNil(t, alert)

	assert.True(t, m.Acknowledge(alert.ID))
	assert.False(t, m.Acknowledge(alert.ID), "second acknowledge is a no-op")

	assert.True(t, m.Resolve(alert.ID))
	assert.False(t, m.Resolve(alert.ID), "second resolve is a no-op")
	assert.False(t, m.Resolve("missing"))
	assert.Empty(t, m.Active(""))
}

func TestActiveFiltersBySeverity(t *testing.T) {
	m, current := newTestManager()
	m.Trigger("A", "a", SeverityLow, "x", nil)
	*current = current.Add(time.Minute)
	m.Trigger("B", "b", SeverityCritical, "y", nil)

	critical := m.Active(SeverityCritical)
	require.Len(t, critical, 1)
	assert.Equal(t, "B", critical[0].Title)

	all := m.Active("")
	require.Len(t, all, 2)
	assert.Equal(t, "B", all[0].Title, "newest first")
}

func TestCheckRulesDefaults(t *testing.T) {
	m, _ := newTestManager()

	triggered := m.CheckRules(map[string]float64{
		"error_rate":        0.25,
		"api_failures":      1,
		"execution_seconds": 100,
	})

	require.Len(t, triggered, 1)
	assert.Equal(t, "Rule triggered: high_error_rate", triggered[0].Title)
	assert.Equal(t, SeverityHigh, triggered[0].Severity)
}

func TestCheckRulesMultiple(t *testing.T) {
	m, _ := newTestManager()

	triggered := m.CheckRules(map[string]float64{
		"error_rate":        0.5,
		"api_failures":      5,
		"execution_seconds": 2000,
	})
	assert.Len(t, triggered, 3)
}

func TestAddRemoveRule(t *testing.T) {
	m, _ := newTestManager()

	m.AddRule(Rule{
		Name:        "no_posts",
		Description: "No posts published in window",
		Severity:    SeverityMedium,
		Enabled:     true,
		Condition:   func(ctx map[string]float64) bool { return ctx["posts_published"] == 0 },
	})

	triggered := m.CheckRules(map[string]float64{"posts_published": 0})
	require.Len(t, triggered, 1)
	assert.Equal(t, "Rule triggered: no_posts", triggered[0].Title)

	assert.True(t, m.RemoveRule("no_posts"))
	assert.False(t, m.RemoveRule("no_posts"))
}

func TestHistoryBounded(t *testing.T) {
	m, current := newTestManager()
	for i := 0; i < historyMax+50; i++ {
		m.Trigger(fmt.Sprintf("alert-%d", i), "m", SeverityLow, "load", nil)
		*current = current.Add(6 * time.Minute)
	}
	summary := m.Summarize(24 * 365)
	assert.Equal(t, historyMax, summary.TotalAlerts)
}

func TestSummarizeWindow(t *testing.T) {
	m, current := newTestManager()

	m.Trigger("Old", "old", SeverityLow, "x", nil)
	*current = current.Add(48 * time.Hour)
	alert := m.Trigger("New", "new", SeverityHigh, "y", nil)
	require.NotNil(t, alert)
	m.Resolve(alert.ID)

	summary := m.Summarize(24)
	assert.Equal(t, 1, summary.TotalAlerts)
	assert.Equal(t, 0, summary.ActiveAlerts)
	assert.Equal(t, 1, summary.ResolvedAlerts)
	assert.Equal(t, 1, summary.SeverityBreakdown[SeverityHigh])
	require.NotNil(t, summary.MostRecent)
	assert.Equal(t, "New", summary.MostRecent.Title)
}
