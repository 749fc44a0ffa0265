// Package engine runs a benchmark: it builds the event loops, connection pools
// and scenario a configuration describes and drives its phases one after the
// other.
//
// Example usage:
//
//	cfg, _ := config.LoadConfig("benchmark.yaml")
//	e, _ := engine.NewEngine(cfg)
//	result, _ := e.Run(context.Background())
//	fmt.Printf("passed: %v\n", result.Passed)
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wesleyorama2/volley/internal/logging"
	"github.com/wesleyorama2/volley/internal/performance/config"
	"github.com/wesleyorama2/volley/internal/performance/connection"
	"github.com/wesleyorama2/volley/internal/performance/executor"
	"github.com/wesleyorama2/volley/internal/performance/metrics"
	"github.com/wesleyorama2/volley/internal/performance/phase"
	"github.com/wesleyorama2/volley/internal/performance/scenario"
	"github.com/wesleyorama2/volley/internal/performance/session"
)

// ErrAlreadyRunning is returned when Run is called on a running engine.
var ErrAlreadyRunning = errors.New("engine is already running")

// Engine drives a benchmark.
type Engine struct {
	config *config.BenchmarkConfig

	mu      sync.Mutex
	running bool
	current *phase.Instance

	log *zap.Logger
}

// PhaseResult contains the outcome of a single phase.
type PhaseResult struct {
	Name      string        `json:"name"`
	Kind      string        `json:"kind"`
	Users     int           `json:"users"`
	Duration  time.Duration `json:"duration"`
	Completed int64         `json:"completed"`
	Failures  int64         `json:"failures"`
	Error     string        `json:"error,omitempty"`

	// Total merges the statistics of every sequence
	Total metrics.Snapshot `json:"total"`

	// Sequences holds one snapshot per sequence, in declaration order
	Sequences []metrics.Snapshot `json:"sequences"`
}

// Result contains the complete benchmark results.
type Result struct {
	RunID     string        `json:"runId"`
	Name      string        `json:"name"`
	StartTime time.Time     `json:"startTime"`
	EndTime   time.Time     `json:"endTime"`
	Duration  time.Duration `json:"duration"`

	Phases []*PhaseResult `json:"phases"`

	// Passed is false when a session failed or the run was cancelled
	Passed bool `json:"passed"`
}

// NewEngine applies defaults to cfg, validates it and returns an engine.
func NewEngine(cfg *config.BenchmarkConfig) (*Engine, error) {
	config.ApplyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &Engine{
		config: cfg,
		log:    logging.Named("engine"),
	}, nil
}

// Config returns the configuration with defaults applied.
func (e *Engine) Config() *config.BenchmarkConfig {
	return e.config
}

// IsRunning reports whether Run is in progress.
func (e *Engine) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Stop terminates the phase in progress. Later phases do not start.
func (e *Engine) Stop() {
	e.mu.Lock()
	current := e.current
	e.running = false
	e.mu.Unlock()
	if current != nil {
		current.Terminate()
	}
}

// Run executes every phase in order and returns the results collected so far
// together with the first error. Cancelling ctx terminates the running phase.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	e.running = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.current = nil
		e.mu.Unlock()
	}()

	result := &Result{
		RunID:     uuid.NewString(),
		Name:      e.config.Name,
		StartTime: time.Now(),
	}
	log := e.log.With(zap.String("run", result.RunID))

	sc, err := scenario.Compile(&e.config.Scenario, e.config.DefaultBaseURL())
	if err != nil {
		return nil, fmt.Errorf("failed to compile scenario: %w", err)
	}

	pools, err := e.openPools()
	if err != nil {
		return nil, err
	}
	defer func() {
		for _, p := range pools {
			p.Close()
		}
	}()

	group := executor.NewGroup(e.config.Threads)
	defer group.Shutdown()

	log.Info("benchmark starting",
		zap.String("name", e.config.Name),
		zap.Int("threads", group.Len()),
		zap.Int("phases", len(e.config.Phases)))

	var runErr error
	for i := range e.config.Phases {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		if !e.IsRunning() {
			break
		}
		pr, err := e.runPhase(ctx, &e.config.Phases[i], sc, group, pools)
		result.Phases = append(result.Phases, pr)
		if err != nil {
			runErr = err
			break
		}
	}
	if runErr == nil {
		runErr = ctx.Err()
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)
	result.Passed = runErr == nil
	log.Info("benchmark finished", zap.Duration("duration", result.Duration), zap.Bool("passed", result.Passed))
	return result, runErr
}

func (e *Engine) openPools() (map[string]*connection.Pool, error) {
	pools := make(map[string]*connection.Pool, len(e.config.HTTP))
	for _, h := range e.config.HTTP {
		p, err := connection.NewPool(connection.Config{
			BaseURL:     h.BaseURL,
			Connections: h.Connections,
			Timeout:     h.Timeout.GetDuration(config.DefaultTimeout),
		})
		if err != nil {
			for _, opened := range pools {
				opened.Close()
			}
			return nil, fmt.Errorf("http %s: %w", h.BaseURL, err)
		}
		pools[h.BaseURL] = p
	}
	return pools, nil
}

func (e *Engine) runPhase(ctx context.Context, pc *config.PhaseConfig, sc *scenario.Scenario,
	group *executor.Group, pools map[string]*connection.Pool) (*PhaseResult, error) {
	p := phase.New(phase.Definition{
		Name:          pc.Name,
		Kind:          pc.Kind,
		Users:         pc.Users,
		Duration:      time.Duration(pc.Duration),
		MaxIterations: pc.MaxIterations,
		Scenario:      sc,
	})

	// one statistics array per event loop, so recording never crosses loops
	names := sc.SequenceNames()
	stats := make([][]*metrics.Statistics, group.Len())
	for i := range stats {
		stats[i] = metrics.NewArray(names)
	}

	sessions := make([]*session.Session, pc.Users)
	opts := p.SessionOptions()
	for i := range sessions {
		n := i % group.Len()
		s := session.New(sc, i, opts)
		s.Attach(group.Loop(n), pools, stats[n])
		sessions[i] = s
	}

	e.mu.Lock()
	e.current = p
	stopped := !e.running
	e.mu.Unlock()
	if stopped {
		p.Terminate()
	}

	err := p.Run(ctx, sessions)

	pr := &PhaseResult{
		Name:      pc.Name,
		Kind:      pc.Kind,
		Users:     pc.Users,
		Duration:  p.Elapsed(),
		Completed: p.Completed(),
		Failures:  p.Failures(),
		Sequences: make([]metrics.Snapshot, len(names)),
	}
	all := make([]*metrics.Statistics, 0, len(names)*len(stats))
	for seq := range names {
		perLoop := make([]*metrics.Statistics, len(stats))
		for i := range stats {
			perLoop[i] = stats[i][seq]
		}
		pr.Sequences[seq] = metrics.Merge(perLoop...)
		all = append(all, perLoop...)
	}
	pr.Total = metrics.Merge(all...)
	pr.Total.Name = pc.Name
	if err != nil {
		pr.Error = err.Error()
	}

	e.log.Info("phase finished",
		zap.String("phase", pc.Name),
		zap.Duration("duration", pr.Duration),
		zap.Int64("requests", pr.Total.Requests),
		zap.Int64("errors", pr.Total.Errors()))
	return pr, err
}
