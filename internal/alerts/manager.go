// Package alerts tracks operational alerts for the posting pipeline:
// severity-tagged events with rate limiting, rule evaluation against
// runtime context, and an acknowledge/resolve lifecycle.
package alerts

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Severity classifies how urgent an alert is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// logLevel maps a severity to the zerolog level it is emitted at.
func (s Severity) logLevel() zerolog.Level {
	switch s {
	case SeverityCritical, SeverityHigh:
		return zerolog.ErrorLevel
	case SeverityMedium:
		return zerolog.WarnLevel
	default:
		return zerolog.InfoLevel
	}
}

// Alert is one recorded operational event.
type Alert struct {
	ID             string            `json:"id"`
	Title          string            `json:"title"`
	Message        string            `json:"message"`
	Severity       Severity          `json:"severity"`
	Component      string            `json:"component"`
	Timestamp      time.Time         `json:"timestamp"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	Acknowledged   bool              `json:"acknowledged"`
	AcknowledgedAt *time.Time        `json:"acknowledged_at,omitempty"`
	Resolved       bool              `json:"resolved"`
	ResolvedAt     *time.Time        `json:"resolved_at,omitempty"`
}

// Rule is a threshold condition evaluated against runtime context.
type Rule struct {
	Name        string
	Description string
	Severity    Severity
	Enabled     bool
	Condition   func(ctx map[string]float64) bool
}

// Summary aggregates recent alert activity.
type Summary struct {
	PeriodHours       int              `json:"time_period_hours"`
	TotalAlerts       int              `json:"total_alerts"`
	ActiveAlerts      int              `json:"active_alerts"`
	ResolvedAlerts    int              `json:"resolved_alerts"`
	SeverityBreakdown map[Severity]int `json:"severity_breakdown"`
	ComponentCounts   map[string]int   `json:"component_breakdown"`
	MostRecent        *Alert           `json:"most_recent_alert,omitempty"`
}

const (
	historyMax      = 1000
	cooldown        = 5 * time.Minute
	maxPerHour      = 10
	perKeyTimestamp = 100
)

// Manager stores alerts in a bounded ring and enforces per-source rate
// limits: one alert per component+title per five minutes, at most ten
// per hour.
type Manager struct {
	mu        sync.Mutex
	alerts    []*Alert
	rules     map[string]Rule
	lastFired map[string]time.Time
	fireTimes map[string][]time.Time

	now func() time.Time
}

// NewManager creates a manager preloaded with the default rules.
func NewManager() *Manager {
	m := &Manager{
		rules:     make(map[string]Rule),
		lastFired: make(map[string]time.Time),
		fireTimes: make(map[string][]time.Time),
		now:       time.Now,
	}
	for _, rule := range defaultRules() {
		m.rules[rule.Name] = rule
	}
	return m
}

func defaultRules() []Rule {
	return []Rule{
		{
			Name:        "high_error_rate",
			Description: "Error rate exceeded 10%",
			Severity:    SeverityHigh,
			Enabled:     true,
			Condition:   func(ctx map[string]float64) bool { return ctx["error_rate"] > 0.1 },
		},
		{
			Name:        "api_failure",
			Description: "Multiple API failures detected",
			Severity:    SeverityCritical,
			Enabled:     true,
			Condition:   func(ctx map[string]float64) bool { return ctx["api_failures"] > 3 },
		},
		{
			Name:        "long_execution_time",
			Description: "Execution time exceeded 20 minutes",
			Severity:    SeverityMedium,
			Enabled:     true,
			Condition:   func(ctx map[string]float64) bool { return ctx["execution_seconds"] > 1200 },
		},
	}
}

// AddRule registers or replaces a rule.
func (m *Manager) AddRule(rule Rule) {
	m.mu.Lock()
	m.rules[rule.Name] = rule
	m.mu.Unlock()
	log.Info().Str("rule", rule.Name).Msg("alert rule added")
}

// RemoveRule deletes a rule, reporting whether it existed.
func (m *Manager) RemoveRule(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rules[name]; !ok {
		return false
	}
	delete(m.rules, name)
	return true
}

// Trigger records an alert unless the component+title pair is rate
// limited, in which case it returns nil.
func (m *Manager) Trigger(title, message string, severity Severity, component string, metadata map[string]string) *Alert {
	now := m.now()
	key := component + "_" + title

	m.mu.Lock()
	if !m.allowLocked(key, now) {
		m.mu.Unlock()
		log.Warn().Str("title", title).Str("component", component).Msg("alert rate limited")
		return nil
	}

	alert := &Alert{
		ID:        uuid.NewString(),
		Title:     title,
		Message:   message,
		Severity:  severity,
		Component: component,
		Timestamp: now,
		Metadata:  metadata,
	}
	m.alerts = append(m.alerts, alert)
	if len(m.alerts) > historyMax {
		m.alerts = m.alerts[len(m.alerts)-historyMax:]
	}
	m.lastFired[key] = now
	times := append(m.fireTimes[key], now)
	if len(times) > perKeyTimestamp {
		times = times[len(times)-perKeyTimestamp:]
	}
	m.fireTimes[key] = times
	m.mu.Unlock()

	log.WithLevel(severity.logLevel()).
		Str("alert_id", alert.ID).
		Str("title", title).
		Str("component", component).
		Str("severity", string(severity)).
		Msg(message)
	return alert
}

func (m *Manager) allowLocked(key string, now time.Time) bool {
	if last, ok := m.lastFired[key]; ok && now.Sub(last) < cooldown {
		return false
	}
	hourAgo := now.Add(-time.Hour)
	recent := 0
	for _, ts := range m.fireTimes[key] {
		if !ts.Before(hourAgo) {
			recent++
		}
	}
	return recent < maxPerHour
}

// CheckRules evaluates every enabled rule against the context and
// returns the alerts that fired.
func (m *Manager) CheckRules(ctx map[string]float64) []*Alert {
	m.mu.Lock()
	rules := make([]Rule, 0, len(m.rules))
	for _, rule := range m.rules {
		if rule.Enabled {
			rules = append(rules, rule)
		}
	}
	m.mu.Unlock()

	sort.Slice(rules, func(i, j int) bool { return rules[i].Name < rules[j].Name })

	var triggered []*Alert
	for _, rule := range rules {
		if !rule.Condition(ctx) {
			continue
		}
		alert := m.Trigger("Rule triggered: "+rule.Name, rule.Description, rule.Severity, "alert_system",
			map[string]string{"rule_name": rule.Name})
		if alert != nil {
			triggered = append(triggered, alert)
		}
	}
	return triggered
}

// Acknowledge marks an alert as seen without resolving it.
func (m *Manager) Acknowledge(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, alert := range m.alerts {
		if alert.ID == id && !alert.Acknowledged {
			now := m.now()
			alert.Acknowledged = true
			alert.AcknowledgedAt = &now
			return true
		}
	}
	return false
}

// Resolve closes an alert, reporting whether it was found open.
func (m *Manager) Resolve(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, alert := range m.alerts {
		if alert.ID == id && !alert.Resolved {
			now := m.now()
			alert.Resolved = true
			alert.ResolvedAt = &now
			log.Info().Str("alert_id", id).Msg("alert resolved")
			return true
		}
	}
	return false
}

// Active returns unresolved alerts, newest first, optionally filtered
// by severity (empty matches all).
func (m *Manager) Active(severity Severity) []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()

	var active []Alert
	for _, alert := range m.alerts {
		if alert.Resolved {
			continue
		}
		if severity != "" && alert.Severity != severity {
			continue
		}
		active = append(active, *alert)
	}
	sort.Slice(active, func(i, j int) bool { return active[i].Timestamp.After(active[j].Timestamp) })
	return active
}

// Summarize aggregates alert activity over the trailing window.
func (m *Manager) Summarize(hours int) Summary {
	cutoff := m.now().Add(-time.Duration(hours) * time.Hour)

	m.mu.Lock()
	defer m.mu.Unlock()

	summary := Summary{
		PeriodHours:       hours,
		SeverityBreakdown: make(map[Severity]int),
		ComponentCounts:   make(map[string]int),
	}
	for _, alert := range m.alerts {
		if alert.Timestamp.Before(cutoff) {
			continue
		}
		summary.TotalAlerts++
		summary.SeverityBreakdown[alert.Severity]++
		summary.ComponentCounts[alert.Component]++
		if alert.Resolved {
			summary.ResolvedAlerts++
		} else {
			summary.ActiveAlerts++
		}
		copied := *alert
		summary.MostRecent = &copied
	}
	return summary
}
