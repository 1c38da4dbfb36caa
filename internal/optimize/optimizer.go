package optimize

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/blueherald/blueherald/internal/abtest"
)

// WeightAdjustment is the simulated outcome of a weight rule. Weights
// are not persisted anywhere yet, so the adjustment reports what the
// new weight would be from a neutral 0.5 baseline.
type WeightAdjustment struct {
	Strategy     abtest.Strategy `json:"strategy"`
	WeightChange float64         `json:"weight_change"`
	NewWeight    float64         `json:"new_weight"`
	Note         string          `json:"note"`
}

// TestCreated describes an A/B test launched by a cycle rule.
type TestCreated struct {
	TestID       string `json:"test_id"`
	TestName     string `json:"test_name"`
	Variants     int    `json:"variants"`
	DurationDays int    `json:"duration_days"`
}

// CycleAction is one action taken during an optimization cycle.
type CycleAction struct {
	Rule             string            `json:"rule"`
	Strategy         abtest.Strategy   `json:"strategy"`
	Action           string            `json:"action"`
	WeightAdjustment *WeightAdjustment `json:"weight_adjustment,omitempty"`
	TestCreated      *TestCreated      `json:"test_created,omitempty"`
}

// CycleResult is the outcome of one optimization cycle.
type CycleResult struct {
	Status          string           `json:"status"`
	Timestamp       time.Time        `json:"timestamp"`
	ActionsTaken    []CycleAction    `json:"actions_taken"`
	Recommendations []Recommendation `json:"recommendations"`
}

// optimizationRule pairs a trigger condition with the action to take.
type optimizationRule struct {
	name      string
	condition func(StrategyStats) bool
	action    string
}

var cycleRules = []optimizationRule{
	{
		name:      "low_performance_adjustment",
		condition: func(s StrategyStats) bool { return s.AvgScore < 0.4 && s.SampleSize >= 10 },
		action:    "reduce_weight",
	},
	{
		name:      "high_performance_boost",
		condition: func(s StrategyStats) bool { return s.AvgScore > 0.8 && s.SampleSize >= 10 },
		action:    "increase_weight",
	},
	{
		name:      "declining_trend_alert",
		condition: func(s StrategyStats) bool { return s.Trend == "declining" && s.SampleSize >= 15 },
		action:    "create_optimization_test",
	},
}

// AutomatedOptimizer runs rule-based optimization cycles against the
// strategy optimizer's windows, creating A/B tests where a rule calls
// for one.
type AutomatedOptimizer struct {
	strategies *StrategyOptimizer
	framework  *abtest.Framework
	enabled    bool
	now        func() time.Time
}

// NewAutomatedOptimizer wires the optimizer to its collaborators.
func NewAutomatedOptimizer(strategies *StrategyOptimizer, framework *abtest.Framework) *AutomatedOptimizer {
	return &AutomatedOptimizer{
		strategies: strategies,
		framework:  framework,
		enabled:    true,
		now:        time.Now,
	}
}

// SetEnabled toggles automated cycles on or off.
func (a *AutomatedOptimizer) SetEnabled(enabled bool) { a.enabled = enabled }

// Enabled reports whether automated cycles run.
func (a *AutomatedOptimizer) Enabled() bool { return a.enabled }

// RunCycle evaluates every strategy's 7-day window against the rule
// table, then runs exploration for under-tested strategies when fewer
// than two actions fired. Test-creation failures abort the cycle.
func (a *AutomatedOptimizer) RunCycle() (CycleResult, error) {
	result := CycleResult{Timestamp: a.now()}
	if !a.enabled {
		result.Status = "disabled"
		return result, nil
	}
	result.Status = "completed"

	for _, strategy := range abtest.Strategies() {
		stats := a.strategies.StrategyPerformance(strategy, 7)
		if stats.SampleSize < 5 {
			continue
		}
		for _, rule := range cycleRules {
			if !rule.condition(stats) {
				continue
			}
			action, err := a.applyRule(rule, strategy, stats)
			if err != nil {
				return result, err
			}
			result.ActionsTaken = append(result.ActionsTaken, action)
		}
	}

	if len(result.ActionsTaken) < 2 {
		explore, err := a.exploreUntested()
		if err != nil {
			return result, err
		}
		if explore != nil {
			result.ActionsTaken = append(result.ActionsTaken, *explore)
		}
	}

	result.Recommendations = a.strategies.Recommendations()
	log.Info().Int("actions", len(result.ActionsTaken)).
		Msg("optimization cycle completed")
	return result, nil
}

func (a *AutomatedOptimizer) applyRule(rule optimizationRule, strategy abtest.Strategy, stats StrategyStats) (CycleAction, error) {
	action := CycleAction{Rule: rule.name, Strategy: strategy, Action: rule.action}

	switch rule.action {
	case "reduce_weight":
		action.WeightAdjustment = adjustWeight(strategy, -0.2)
	case "increase_weight":
		action.WeightAdjustment = adjustWeight(strategy, 0.1)
	case "create_optimization_test":
		created, err := a.createOptimizationTest(strategy, 3)
		if err != nil {
			return action, err
		}
		action.TestCreated = created
	}

	log.Info().Str("rule", rule.name).Str("strategy", string(strategy)).
		Float64("avg_score", stats.AvgScore).Msg("optimization rule triggered")
	return action, nil
}

// adjustWeight simulates a weight change from a 0.5 baseline, clamped
// to [0.1, 1.0]. Persistent weight storage is a later concern.
func adjustWeight(strategy abtest.Strategy, delta float64) *WeightAdjustment {
	newWeight := 0.5 + delta
	if newWeight < 0.1 {
		newWeight = 0.1
	}
	if newWeight > 1.0 {
		newWeight = 1.0
	}
	return &WeightAdjustment{
		Strategy:     strategy,
		WeightChange: delta,
		NewWeight:    newWeight,
		Note:         "Weight adjustment simulated (not persisted)",
	}
}

// createOptimizationTest pits a strategy's current form against an
// optimized-parameter variant of itself.
func (a *AutomatedOptimizer) createOptimizationTest(strategy abtest.Strategy, durationDays int) (*TestCreated, error) {
	name := fmt.Sprintf("Optimize %s Strategy", strategy)
	variants := []abtest.TestVariant{
		{
			ID:         fmt.Sprintf("%s_current", strategy),
			Name:       fmt.Sprintf("%s (Current)", strategy),
			Strategy:   strategy,
			Parameters: map[string]string{"version": "current"},
			Weight:     0.5,
		},
		{
			ID:         fmt.Sprintf("%s_optimized", strategy),
			Name:       fmt.Sprintf("%s (Optimized)", strategy),
			Strategy:   strategy,
			Parameters: optimizedParameters(strategy),
			Weight:     0.5,
		},
	}

	description := fmt.Sprintf("Testing optimized parameters for %s strategy", strategy)
	id, err := a.framework.CreateTest(name, description, variants, durationDays, 20)
	if err != nil {
		return nil, fmt.Errorf("create optimization test: %w", err)
	}
	return &TestCreated{TestID: id, TestName: name, Variants: len(variants), DurationDays: durationDays}, nil
}

// exploreUntested launches a short two-day current-vs-optimized test
// for the first strategy with fewer than five samples over two weeks,
// if any.
func (a *AutomatedOptimizer) exploreUntested() (*CycleAction, error) {
	for _, strategy := range abtest.Strategies() {
		stats := a.strategies.StrategyPerformance(strategy, 14)
		if stats.SampleSize >= 5 {
			continue
		}

		created, err := a.createOptimizationTest(strategy, 2)
		if err != nil {
			return nil, fmt.Errorf("create exploration test: %w", err)
		}
		return &CycleAction{
			Rule:        "untested_strategy_exploration",
			Strategy:    strategy,
			Action:      "create_exploration_test",
			TestCreated: created,
		}, nil
	}
	return nil, nil
}

// optimizedParameters returns tuned generation parameters per strategy
// for optimization-test variants.
func optimizedParameters(strategy abtest.Strategy) map[string]string {
	switch strategy {
	case abtest.StrategyViralHooks:
		return map[string]string{
			"hook_intensity": "high",
			"emoji_usage":    "moderate",
			"urgency_level":  "medium",
		}
	case abtest.StrategyAnalytical:
		return map[string]string{
			"data_focus":       "high",
			"technical_depth":  "medium",
			"chart_references": "true",
		}
	case abtest.StrategyControversial:
		return map[string]string{
			"controversy_level": "medium",
			"opinion_strength":  "strong",
			"debate_invitation": "true",
		}
	case abtest.StrategyEducational:
		return map[string]string{
			"explanation_depth": "medium",
			"examples_included": "true",
			"actionable_tips":   "true",
		}
	case abtest.StrategyMarketFocused:
		return map[string]string{
			"price_emphasis":        "high",
			"trend_analysis":        "true",
			"prediction_confidence": "medium",
		}
	case abtest.StrategyCommunityDriven:
		return map[string]string{
			"question_frequency":   "high",
			"community_references": "true",
			"engagement_calls":     "strong",
		}
	default:
		return map[string]string{"version": "optimized"}
	}
}
