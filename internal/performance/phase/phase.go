// Package phase drives a group of sessions through a scenario.
//
// A phase starts every session on its own executor, restarts or repeats them
// according to its kind, and terminates once every session reported back.
// Sessions report from their event loops, so all counters are atomic.
//
// Lifecycle:
//
//	RUNNING -> TERMINATING -> TERMINATED
//
// A phase moves to TERMINATING when its duration elapses, when Terminate is
// called or when a session fails. It becomes TERMINATED when the last active
// session finished or abandoned its work.
package phase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/volley/internal/logging"
	"github.com/wesleyorama2/volley/internal/performance/config"
	"github.com/wesleyorama2/volley/internal/performance/session"
)

// ErrNoSessions is returned by Run when the phase has no sessions.
var ErrNoSessions = errors.New("phase has no sessions")

// Definition describes a phase.
type Definition struct {
	Name string

	// Kind is config.KindOnce, config.KindAlways or config.KindLoop
	Kind string

	// Users is the number of sessions
	Users int

	// Duration bounds always and loop phases; zero means unbounded
	Duration time.Duration

	// MaxIterations bounds the scenario runs per session in loop phases
	MaxIterations int64

	Scenario session.Scenario
}

// Instance is a running phase.
type Instance struct {
	def Definition

	status atomic.Int32
	active atomic.Int64

	// completed counts NotifyFinished calls
	completed atomic.Int64
	failures  atomic.Int64

	sessions []*session.Session

	mu       sync.Mutex
	firstErr error
	timer    *time.Timer
	start    time.Time
	end      time.Time

	done chan struct{}
	log  *zap.Logger
}

var _ session.Phase = (*Instance)(nil)

// New creates a phase instance in RUNNING state.
func New(def Definition) *Instance {
	return &Instance{
		def:  def,
		done: make(chan struct{}),
		log:  logging.Named("phase").With(zap.String("phase", def.Name)),
	}
}

// Definition returns the phase definition.
func (p *Instance) Definition() Definition {
	return p.def
}

// Name returns the phase name.
func (p *Instance) Name() string {
	return p.def.Name
}

// Status returns the current lifecycle state.
func (p *Instance) Status() session.Status {
	return session.Status(p.status.Load())
}

// Scenario returns the scenario sessions run.
func (p *Instance) Scenario() session.Scenario {
	return p.def.Scenario
}

// SessionOptions returns the completion policy sessions of this phase need.
func (p *Instance) SessionOptions() session.Options {
	if p.def.Kind == config.KindLoop {
		return session.Options{Policy: session.RepeatUntil, Until: p.until}
	}
	return session.Options{Policy: session.NotifyAndStop}
}

func (p *Instance) until(s *session.Session) bool {
	if p.Status() != session.StatusRunning {
		return true
	}
	return p.def.MaxIterations > 0 && s.Iterations() >= p.def.MaxIterations
}

// Start launches every session on its executor. Sessions must be attached.
func (p *Instance) Start(sessions []*session.Session) error {
	if len(sessions) == 0 {
		return ErrNoSessions
	}
	p.sessions = sessions
	p.active.Store(int64(len(sessions)))

	p.mu.Lock()
	p.start = time.Now()
	if p.def.Kind != config.KindOnce && p.def.Duration > 0 {
		p.timer = time.AfterFunc(p.def.Duration, p.Terminate)
	}
	p.mu.Unlock()

	p.log.Info("phase starting", zap.String("kind", p.def.Kind), zap.Int("users", len(sessions)))
	for _, s := range sessions {
		s := s
		s.Executor().Submit(func() {
			if err := s.Start(p); err != nil {
				s.Fail(err)
			}
		})
	}
	return nil
}

// Terminate asks every session to abandon its work. It may be called from
// any goroutine and more than once.
func (p *Instance) Terminate() {
	if !p.status.CompareAndSwap(int32(session.StatusRunning), int32(session.StatusTerminating)) {
		return
	}
	p.log.Debug("phase terminating", zap.Int64("active", p.active.Load()))
	for _, s := range p.sessions {
		s.Proceed()
	}
}

// NotifyFinished is called by a session that completed all of its sequences.
func (p *Instance) NotifyFinished(s *session.Session) {
	p.completed.Add(1)
	if p.def.Kind == config.KindAlways && p.Status() == session.StatusRunning {
		if err := s.Start(p); err != nil {
			s.Fail(err)
		}
		return
	}
	p.sessionDone()
}

// NotifyTerminated is called by a session that abandoned its work.
func (p *Instance) NotifyTerminated(*session.Session) {
	p.sessionDone()
}

// Fail records a session failure and terminates the phase.
func (p *Instance) Fail(s *session.Session, err error) {
	p.failures.Add(1)
	p.log.Error("session failed", zap.Int("session", s.ID()), zap.Error(err))
	p.mu.Lock()
	if p.firstErr == nil {
		p.firstErr = fmt.Errorf("phase %s: session %d: %w", p.def.Name, s.ID(), err)
	}
	p.mu.Unlock()
	p.Terminate()
	p.sessionDone()
}

func (p *Instance) sessionDone() {
	if p.active.Add(-1) != 0 {
		return
	}
	p.status.Store(int32(session.StatusTerminated))
	p.mu.Lock()
	p.end = time.Now()
	if p.timer != nil {
		p.timer.Stop()
	}
	p.mu.Unlock()
	p.log.Info("phase terminated", zap.Int64("completed", p.completed.Load()), zap.Int64("failures", p.failures.Load()))
	close(p.done)
}

// Done is closed once the phase is TERMINATED.
func (p *Instance) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the phase terminated or ctx is done, in which case the
// phase is terminated and Wait still waits for the sessions to report.
func (p *Instance) Wait(ctx context.Context) error {
	select {
	case <-p.done:
	case <-ctx.Done():
		p.Terminate()
		<-p.done
	}
	return p.Err()
}

// Run starts the sessions and waits for the phase to terminate.
func (p *Instance) Run(ctx context.Context, sessions []*session.Session) error {
	if err := p.Start(sessions); err != nil {
		return err
	}
	return p.Wait(ctx)
}

// Err returns the first session failure.
func (p *Instance) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.firstErr
}

// Active returns the number of sessions that have not reported back.
func (p *Instance) Active() int64 {
	return p.active.Load()
}

// Completed returns how many times a session reported finishing.
func (p *Instance) Completed() int64 {
	return p.completed.Load()
}

// Failures returns the number of failed sessions.
func (p *Instance) Failures() int64 {
	return p.failures.Load()
}

// Elapsed returns the time between Start and termination, or until now.
func (p *Instance) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.start.IsZero() {
		return 0
	}
	if p.end.IsZero() {
		return time.Since(p.start)
	}
	return p.end.Sub(p.start)
}
