package optimize

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/blueherald/blueherald/internal/abtest"
	"github.com/blueherald/blueherald/internal/metrics"
	"github.com/blueherald/blueherald/internal/models"
)

// Generator produces post content for a news item using a given
// content type, aiming for the target engagement score.
type Generator interface {
	Generate(ctx context.Context, news models.NewsItem, contentType models.ContentType, targetEngagement float64) (models.GeneratedContent, error)
}

// Status is the current optimization posture: toggle state, live
// tests and per-strategy windows.
type Status struct {
	AutoOptimizationEnabled bool                     `json:"auto_optimization_enabled"`
	ActiveABTests           int                      `json:"active_ab_tests"`
	StrategyPerformance     map[string]StrategyStats `json:"strategy_performance"`
	BestStrategy            string                   `json:"best_strategy,omitempty"`
	Recommendations         []Recommendation         `json:"recommendations"`
	LastCycle               *time.Time               `json:"last_cycle,omitempty"`
}

// FullReport combines status, analytics and active-test overviews.
type FullReport struct {
	Timestamp   time.Time             `json:"timestamp"`
	Status      Status                `json:"optimization_status"`
	Analytics   Report                `json:"analytics"`
	ActiveTests []abtest.TestOverview `json:"active_tests"`
}

// ExportData is the complete optimization state dump.
type ExportData struct {
	ExportedAt          time.Time                  `json:"exported_at"`
	ABTests             map[string]*abtest.Export  `json:"ab_tests"`
	PerformanceHistory  []abtest.PerformanceRecord `json:"performance_history"`
	StrategyPerformance map[string]StrategyStats   `json:"strategy_performance"`
}

// Service is the optimization facade: it routes content generation
// through active A/B tests, records outcomes into every collaborator
// and runs automated cycles.
type Service struct {
	framework  *abtest.Framework
	strategies *StrategyOptimizer
	automated  *AutomatedOptimizer
	analytics  *Analytics
	metrics    *metrics.Registry

	mu        sync.Mutex
	lastCycle *CycleResult
}

// NewService builds a service with a three-test framework bound.
func NewService() *Service {
	framework := abtest.NewFramework(3)
	strategies := NewStrategyOptimizer()
	return &Service{
		framework:  framework,
		strategies: strategies,
		automated:  NewAutomatedOptimizer(strategies, framework),
		analytics:  NewAnalytics(),
	}
}

// Framework exposes the A/B test framework for the management API.
func (s *Service) Framework() *abtest.Framework { return s.framework }

// Strategies exposes the strategy optimizer.
func (s *Service) Strategies() *StrategyOptimizer { return s.strategies }

// Analytics exposes the performance analytics store.
func (s *Service) Analytics() *Analytics { return s.analytics }

// SetMetrics binds Prometheus instrumentation: the active-test gauge
// reads the framework at scrape time, and completed cycles are
// counted.
func (s *Service) SetMetrics(m *metrics.Registry) {
	s.metrics = m
	m.SetActiveTestsSource(func() float64 {
		return float64(s.framework.ActiveCount())
	})
}

// SetAutoOptimization toggles automated optimization cycles.
func (s *Service) SetAutoOptimization(enabled bool) { s.automated.SetEnabled(enabled) }

// InitializeDefaultTests launches the baseline four-way strategy
// comparison test and returns its ID.
func (s *Service) InitializeDefaultTests() (string, error) {
	variants := []abtest.TestVariant{
		{
			ID:         "viral_hooks_v1",
			Name:       "Viral Hooks",
			Strategy:   abtest.StrategyViralHooks,
			Parameters: map[string]string{"hook_style": "question"},
			Weight:     0.25,
		},
		{
			ID:         "analytical_v1",
			Name:       "Analytical",
			Strategy:   abtest.StrategyAnalytical,
			Parameters: map[string]string{"depth": "medium"},
			Weight:     0.25,
		},
		{
			ID:         "controversial_v1",
			Name:       "Controversial",
			Strategy:   abtest.StrategyControversial,
			Parameters: map[string]string{"intensity": "mild"},
			Weight:     0.25,
		},
		{
			ID:         "market_focused_v1",
			Name:       "Market Focused",
			Strategy:   abtest.StrategyMarketFocused,
			Parameters: map[string]string{"data_emphasis": "price"},
			Weight:     0.25,
		},
	}

	id, err := s.framework.CreateTest(
		"Content Strategy Comparison",
		"Comparing baseline content strategies for engagement",
		variants, 7, 50,
	)
	if err != nil {
		return "", fmt.Errorf("initialize default tests: %w", err)
	}

	log.Info().Str("test_id", id).Msg("default strategy comparison test created")
	return id, nil
}

// GenerateOptimizedContent produces content through the first active
// A/B test when one exists, tagging the result so outcomes can be
// attributed back to the variant. Without an active test it falls
// back to the best-known strategy, defaulting to viral hooks.
// targetEngagement is the caller's minimum acceptable engagement
// score, handed to the generator as its aim.
func (s *Service) GenerateOptimizedContent(ctx context.Context, news models.NewsItem, gen Generator, targetEngagement float64) (models.GeneratedContent, error) {
	if targetEngagement <= 0 {
		targetEngagement = 0.7
	}
	active := s.framework.ActiveTests()
	if len(active) > 0 {
		testID := active[0].ID
		if variant := s.framework.VariantForContent(testID); variant != nil {
			content, err := gen.Generate(ctx, news, variant.Strategy.ContentType(), targetEngagement)
			if err != nil {
				return models.GeneratedContent{}, fmt.Errorf("generate variant content: %w", err)
			}
			if content.Metadata == nil {
				content.Metadata = make(map[string]string)
			}
			content.Metadata[models.MetaTestID] = testID
			content.Metadata[models.MetaTestVariantID] = variant.ID
			content.Metadata[models.MetaTestStrategy] = string(variant.Strategy)
			return content, nil
		}
	}

	strategy := abtest.StrategyViralHooks
	if best, ok := s.strategies.BestStrategy(10); ok {
		strategy = best
	}
	content, err := gen.Generate(ctx, news, strategy.ContentType(), targetEngagement)
	if err != nil {
		return models.GeneratedContent{}, fmt.Errorf("generate fallback content: %w", err)
	}
	if content.Metadata == nil {
		content.Metadata = make(map[string]string)
	}
	content.Metadata[models.MetaGenerationStrategy] = string(strategy)
	return content, nil
}

// RecordPostPerformance feeds one post outcome into the strategy
// windows, the owning A/B test (when the content is tagged) and the
// analytics store.
func (s *Service) RecordPostPerformance(result models.PostResult, engagement *models.EngagementData) {
	content := result.Content

	raw, ok := content.Metadata[models.MetaTestStrategy]
	if !ok {
		raw = content.Metadata[models.MetaGenerationStrategy]
	}
	strategy := abtest.ParseStrategy(raw)

	s.strategies.RecordPerformance(strategy, content.EngagementScore, result)

	testID := content.Metadata[models.MetaTestID]
	variantID := content.Metadata[models.MetaTestVariantID]
	if testID != "" && variantID != "" {
		s.framework.RecordResult(testID, variantID, result, engagement)
	}

	s.analytics.Record(strategy, content, result)
}

// RunOptimizationCycle runs one automated cycle and remembers it for
// status reporting.
func (s *Service) RunOptimizationCycle() (CycleResult, error) {
	result, err := s.automated.RunCycle()
	if err != nil {
		return result, err
	}
	if s.metrics != nil {
		s.metrics.OptimizationCycles.Inc()
	}

	s.mu.Lock()
	s.lastCycle = &result
	s.mu.Unlock()
	return result, nil
}

// LastCycle returns the most recent cycle result, or nil.
func (s *Service) LastCycle() *CycleResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastCycle
}

// OptimizationStatus snapshots the current optimization posture.
func (s *Service) OptimizationStatus() Status {
	status := Status{
		AutoOptimizationEnabled: s.automated.Enabled(),
		ActiveABTests:           s.framework.ActiveCount(),
		StrategyPerformance:     make(map[string]StrategyStats),
		Recommendations:         s.strategies.Recommendations(),
	}

	for _, strategy := range abtest.Strategies() {
		status.StrategyPerformance[string(strategy)] = s.strategies.StrategyPerformance(strategy, 7)
	}
	if best, ok := s.strategies.BestStrategy(10); ok {
		status.BestStrategy = string(best)
	}

	s.mu.Lock()
	if s.lastCycle != nil {
		t := s.lastCycle.Timestamp
		status.LastCycle = &t
	}
	s.mu.Unlock()
	return status
}

// PerformanceReport builds the combined weekly report.
func (s *Service) PerformanceReport() FullReport {
	return FullReport{
		Timestamp:   time.Now(),
		Status:      s.OptimizationStatus(),
		Analytics:   s.analytics.Generate(7),
		ActiveTests: s.framework.ActiveTests(),
	}
}

// ExportOptimizationData dumps every test plus the rolling windows.
func (s *Service) ExportOptimizationData() ExportData {
	data := ExportData{
		ExportedAt:          time.Now(),
		ABTests:             make(map[string]*abtest.Export),
		PerformanceHistory:  s.framework.History(),
		StrategyPerformance: make(map[string]StrategyStats),
	}

	for _, id := range s.framework.TestIDs() {
		if export := s.framework.ExportTest(id); export != nil {
			data.ABTests[id] = export
		}
	}
	for _, strategy := range abtest.Strategies() {
		data.StrategyPerformance[string(strategy)] = s.strategies.StrategyPerformance(strategy, 30)
	}
	return data
}
