// Package scheduler runs the agent workflow on a fixed interval with
// a per-run execution timeout and graceful shutdown.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Config controls the execution cadence.
type Config struct {
	Interval         time.Duration `yaml:"interval"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time"`
}

// DefaultConfig returns the production cadence: a run every 30
// minutes, capped at 25 minutes wall clock.
func DefaultConfig() Config {
	return Config{
		Interval:         30 * time.Minute,
		MaxExecutionTime: 25 * time.Minute,
	}
}

// Validate checks the cadence for sanity.
func (c Config) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("scheduler: interval must be positive, got %v", c.Interval)
	}
	if c.MaxExecutionTime <= 0 {
		return fmt.Errorf("scheduler: max_execution_time must be positive, got %v", c.MaxExecutionTime)
	}
	return nil
}

// Workflow is one full agent cycle. The context carries the per-run
// deadline; implementations must honor cancellation.
type Workflow func(ctx context.Context) error

// RunResult summarizes one workflow execution.
type RunResult struct {
	Sequence int           `json:"sequence"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Success  bool          `json:"success"`
	TimedOut bool          `json:"timed_out"`
	Skipped  bool          `json:"skipped"`
	Error    string        `json:"error,omitempty"`
}

// Status is a point-in-time snapshot of the scheduler.
type Status struct {
	Running          bool          `json:"running"`
	Interval         time.Duration `json:"interval"`
	MaxExecutionTime time.Duration `json:"max_execution_time"`
	ExecutionCount   int           `json:"execution_count"`
	SuccessCount     int           `json:"success_count"`
	FailureCount     int           `json:"failure_count"`
	TimeoutCount     int           `json:"timeout_count"`
	LastRunTime      *time.Time    `json:"last_run_time,omitempty"`
	LastRunSuccess   *bool         `json:"last_run_success,omitempty"`
	NextRun          *time.Time    `json:"next_run,omitempty"`
}

// Scheduler executes a workflow on a ticker. Runs never overlap: the
// ticker loop is a single worker, and manual triggers are skipped
// while a run is in flight.
type Scheduler struct {
	config   Config
	workflow Workflow

	mu             sync.Mutex
	running        bool
	busy           bool
	executionCount int
	successCount   int
	failureCount   int
	timeoutCount   int
	lastRunTime    *time.Time
	lastRunSuccess *bool
	nextRun        *time.Time

	now func() time.Time
}

// NewScheduler wires a workflow to the configured cadence.
func NewScheduler(config Config, workflow Workflow) (*Scheduler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if workflow == nil {
		return nil, errors.New("scheduler: workflow cannot be nil")
	}
	return &Scheduler{
		config:   config,
		workflow: workflow,
		now:      time.Now,
	}, nil
}

// Start blocks and runs the workflow every interval until the context
// is cancelled. An in-flight run finishes before Start returns.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("scheduler: already running")
	}
	s.running = true
	next := s.now().Add(s.config.Interval)
	s.nextRun = &next
	s.mu.Unlock()

	log.Info().
		Dur("interval", s.config.Interval).
		Dur("max_execution_time", s.config.MaxExecutionTime).
		Msg("scheduler started")

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.running = false
			s.nextRun = nil
			s.mu.Unlock()
			log.Info().Msg("scheduler stopped")
			return nil
		case <-ticker.C:
			s.execute(ctx)
			s.mu.Lock()
			next := s.now().Add(s.config.Interval)
			s.nextRun = &next
			s.mu.Unlock()
		}
	}
}

// RunNow triggers one workflow execution immediately. If a scheduled
// run is already in flight the trigger is skipped, not queued.
func (s *Scheduler) RunNow(ctx context.Context) RunResult {
	log.Info().Msg("manual workflow run requested")
	return s.execute(ctx)
}

// Status reports current counters and timing.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Running:          s.running,
		Interval:         s.config.Interval,
		MaxExecutionTime: s.config.MaxExecutionTime,
		ExecutionCount:   s.executionCount,
		SuccessCount:     s.successCount,
		FailureCount:     s.failureCount,
		TimeoutCount:     s.timeoutCount,
		LastRunTime:      s.lastRunTime,
		LastRunSuccess:   s.lastRunSuccess,
		NextRun:          s.nextRun,
	}
}

func (s *Scheduler) execute(ctx context.Context) RunResult {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		log.Warn().Msg("previous execution still running, skipping this cycle")
		return RunResult{Skipped: true, Started: s.now()}
	}
	s.busy = true
	s.executionCount++
	sequence := s.executionCount
	started := s.now()
	s.lastRunTime = &started
	s.mu.Unlock()

	log.Info().Int("sequence", sequence).Msg("workflow execution starting")

	runCtx, cancel := context.WithTimeout(ctx, s.config.MaxExecutionTime)
	err := s.workflow(runCtx)
	cancel()

	duration := s.now().Sub(started)
	timedOut := errors.Is(err, context.DeadlineExceeded)
	success := err == nil

	s.mu.Lock()
	s.busy = false
	s.lastRunSuccess = &success
	switch {
	case success:
		s.successCount++
	case timedOut:
		s.timeoutCount++
	default:
		s.failureCount++
	}
	s.mu.Unlock()

	result := RunResult{
		Sequence: sequence,
		Started:  started,
		Duration: duration,
		Success:  success,
		TimedOut: timedOut,
	}
	if err != nil {
		result.Error = err.Error()
	}

	switch {
	case success:
		log.Info().Int("sequence", sequence).Dur("duration", duration).
			Msg("workflow execution completed")
	case timedOut:
		log.Error().Int("sequence", sequence).Dur("duration", duration).
			Msg("workflow execution timed out")
	default:
		log.Error().Int("sequence", sequence).Dur("duration", duration).
			Err(err).Msg("workflow execution failed")
	}
	return result
}
