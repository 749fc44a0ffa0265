// Package session implements the per-user state container and cooperative scheduler.
//
// A Session is one simulated client. It owns the client's variables and
// resources, a fixed set of running sequence instances, and pools of sequence
// instances and request slots sized from the scenario. Its run loop advances
// every runnable sequence until all of them are blocked or finished, and then
// hands control back to the executor it is attached to.
//
// # Thread Safety
//
// A Session is not safe for concurrent use. Every method except Proceed must
// be called from the session's executor, which runs one task at a time.
// Asynchronous collaborators (I/O completions, timers) call Proceed, or
// Executor().Submit, to get back onto that executor.
package session

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/wesleyorama2/volley/internal/assert"
	"github.com/wesleyorama2/volley/internal/logging"
	"github.com/wesleyorama2/volley/internal/performance/connection"
	"github.com/wesleyorama2/volley/internal/performance/metrics"
	"github.com/wesleyorama2/volley/internal/performance/pool"
)

// CompletionPolicy decides what a session does after all of its sequences completed.
type CompletionPolicy int

const (
	// NotifyAndStop reports the finished run to the phase and waits to be started again.
	NotifyAndStop CompletionPolicy = iota

	// RepeatUntil resets and re-instantiates the initial sequences until the
	// Until predicate is satisfied, then reports to the phase.
	RepeatUntil
)

func (p CompletionPolicy) String() string {
	switch p {
	case NotifyAndStop:
		return "notify-and-stop"
	case RepeatUntil:
		return "repeat-until"
	default:
		return "unknown"
	}
}

// Options configures a Session.
type Options struct {
	// Policy selects the behaviour after a finished run (default: NotifyAndStop)
	Policy CompletionPolicy

	// Until is consulted by RepeatUntil after every finished run; nil never stops
	Until func(s *Session) bool

	// Logger defaults to the process logger named "session"
	Logger *zap.Logger
}

// Session is one simulated client.
type Session struct {
	id       int
	scenario Scenario

	vars      map[string]Var
	allVars   []Var
	resources map[any]any

	sequencePool *pool.Pool[*SequenceInstance]
	requestPool  *pool.Pool[*Request]

	// running is dense below lastRunning; removal swaps the last slot in
	running     []*SequenceInstance
	lastRunning int
	current     *SequenceInstance
	interrupted bool

	phase      Phase
	executor   Executor
	httpPools  map[string]*connection.Pool
	statistics []*metrics.Statistics

	policy     CompletionPolicy
	until      func(s *Session) bool
	iterations int64

	// run is the method value handed to the executor, created once
	run func()

	log   *zap.Logger
	trace bool
}

// New creates a session for scenario, declaring every variable and resource
// the scenario needs.
func New(scenario Scenario, id int, opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Named("session")
	}
	logger = logger.With(zap.Int("session", id))

	maxSequences := scenario.MaxSequences()
	s := &Session{
		id:          id,
		scenario:    scenario,
		vars:        make(map[string]Var),
		resources:   make(map[any]any),
		running:     make([]*SequenceInstance, maxSequences),
		lastRunning: -1,
		policy:      opts.Policy,
		until:       opts.Until,
		log:         logger,
		trace:       logger.Core().Enabled(zap.DebugLevel),
	}
	s.run = s.Run
	slot := 0
	s.sequencePool = pool.New(maxSequences, func() *SequenceInstance {
		instance := &SequenceInstance{slot: slot}
		slot++
		return instance
	})
	s.requestPool = pool.New(scenario.MaxRequests(), func() *Request { return newRequest(s) })

	for _, sequence := range scenario.Sequences() {
		sequence.Reserve(s)
	}
	for _, name := range scenario.ObjectVars() {
		s.Declare(name)
	}
	for _, name := range scenario.IntVars() {
		s.DeclareInt(name)
	}
	return s
}

// ID returns the session's unique identity.
func (s *Session) ID() int {
	return s.id
}

// Scenario returns the scenario the session was built for.
func (s *Session) Scenario() Scenario {
	return s.scenario
}

// Phase returns the phase the session currently belongs to, or nil.
func (s *Session) Phase() Phase {
	return s.phase
}

// Executor returns the execution context the session is attached to.
func (s *Session) Executor() Executor {
	return s.executor
}

// Logger returns the session's logger, tagged with its ID.
func (s *Session) Logger() *zap.Logger {
	return s.log
}

// HTTPPool returns the connection pool for baseURL, or nil if none is attached.
func (s *Session) HTTPPool(baseURL string) *connection.Pool {
	return s.httpPools[baseURL]
}

// Statistics returns the statistics for a sequence ID, or nil if none are attached.
func (s *Session) Statistics(sequenceID int) *metrics.Statistics {
	if sequenceID < 0 || sequenceID >= len(s.statistics) {
		return nil
	}
	return s.statistics[sequenceID]
}

// AllStatistics returns the statistics array indexed by sequence ID.
func (s *Session) AllStatistics() []*metrics.Statistics {
	return s.statistics
}

// SequencePool exposes the sequence instance pool.
func (s *Session) SequencePool() *pool.Pool[*SequenceInstance] {
	return s.sequencePool
}

// RequestPool exposes the request slot pool.
func (s *Session) RequestPool() *pool.Pool[*Request] {
	return s.requestPool
}

// Iterations returns how many times the session ran its scenario to completion.
func (s *Session) Iterations() int64 {
	return s.iterations
}

// IsActive reports whether any sequence is running.
func (s *Session) IsActive() bool {
	return s.lastRunning >= 0
}

// Attach binds the session to its executor, connection pools and statistics.
// It may only be called once.
func (s *Session) Attach(executor Executor, httpPools map[string]*connection.Pool, statistics []*metrics.Statistics) {
	assert.That(s.executor == nil, "session %d attached twice", s.id)
	s.executor = executor
	s.httpPools = httpPools
	s.statistics = statistics
}

// Start binds the session to phase, instantiates the initial sequences and
// schedules the first turn.
//
// A session may only move to another phase once its previous phase
// terminated, and only between phases running the same scenario.
func (s *Session) Start(phase Phase) error {
	if s.trace {
		s.log.Debug("starting", zap.String("phase", phase.Name()))
	}
	s.resetPhase(phase)
	if err := s.instantiateInitial(); err != nil {
		return err
	}
	s.Proceed()
	return nil
}

func (s *Session) resetPhase(phase Phase) {
	if s.phase == phase {
		return
	}
	if assert.Enabled {
		assert.That(phase.Scenario() == s.scenario, "phase %s runs a different scenario", phase.Name())
		assert.That(s.phase == nil || s.phase.Status() == StatusTerminated,
			"switching from phase %s which has not terminated", phaseName(s.phase))
	}
	s.phase = phase
}

func (s *Session) instantiateInitial() error {
	for _, sequence := range s.scenario.InitialSequences() {
		if err := sequence.Instantiate(s, 0); err != nil {
			return fmt.Errorf("instantiating %s: %w", sequence.Name(), err)
		}
	}
	return nil
}

// Proceed schedules another turn of the run loop on the session's executor.
// It is the only method that may be called from other goroutines.
func (s *Session) Proceed() {
	s.executor.Submit(s.run)
}

// Run is the scheduling entry point executed by the executor.
//
// A panic escaping a step is logged with the session identity and fails the
// session instead of unwinding into the shared executor.
func (s *Session) Run() {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("uncaught error", zap.Any("panic", r), zap.Stack("stack"))
			s.current = nil
			s.Fail(fmt.Errorf("session %d: uncaught error: %v", s.id, r))
		}
	}()
	s.RunSession()
}

// RunSession runs one scheduling turn: it advances running sequences in slot
// order until all of them are blocked or completed.
func (s *Session) RunSession() {
	if s.phase == nil || s.phase.Status() == StatusTerminated {
		if s.trace {
			s.log.Debug("run called on terminated session")
		}
		return
	}
	if s.lastRunning < 0 {
		if s.trace {
			s.log.Debug("no sequences to run, ignoring")
		}
		return
	}
	if s.trace {
		s.log.Debug("run", zap.Int("running", s.lastRunning+1))
	}

	s.interrupted = false
	lastProgressed := -1
	for s.lastRunning >= 0 {
		progressed := false
		for i := 0; i <= s.lastRunning; i++ {
			if s.phase.Status() == StatusTerminating {
				s.terminate()
				return
			} else if lastProgressed == i {
				break
			}

			instance := s.running[i]
			s.SetCurrentSequence(instance)
			ok, err := instance.Progress(s)
			s.SetCurrentSequence(nil)
			if s.interrupted {
				if err != nil {
					s.log.Debug("step failed after stopping the session", zap.Error(err))
				}
				return
			}
			if err != nil {
				s.log.Warn("step failed", zap.Stringer("sequence", instance), zap.Error(err))
				s.Fail(err)
				return
			}
			if !ok && !instance.IsCompleted() {
				continue
			}

			progressed = true
			lastProgressed = i
			if instance.IsCompleted() {
				s.sequencePool.Release(instance)
				s.removeRunning(i)
				lastProgressed = -1
				// the slot now holds the former last sequence, give it its turn
				i--
			}
		}
		if !progressed && s.lastRunning >= 0 {
			if s.trace {
				s.log.Debug("no progress, not finished", zap.String("phase", s.phase.Name()))
			}
			return
		}
	}
	s.finish()
}

func (s *Session) removeRunning(i int) {
	if i != s.lastRunning {
		s.running[i] = s.running[s.lastRunning]
	}
	s.running[s.lastRunning] = nil
	s.lastRunning--
}

func (s *Session) terminate() {
	if s.trace {
		s.log.Debug("phase is terminating", zap.String("phase", s.phase.Name()))
	}
	s.releaseRunning()
	s.cancelRequests()
	s.Reset()
	if s.trace {
		s.log.Debug("session terminated")
	}
	s.phase.NotifyTerminated(s)
}

func (s *Session) finish() {
	if s.trace {
		s.log.Debug("session finished")
	}
	if !s.requestPool.IsFull() {
		s.log.Warn("session finished with requests in flight",
			zap.Int("inFlight", s.requestPool.Cap()-s.requestPool.Available()))
		s.cancelRequests()
	}
	s.Reset()
	s.iterations++

	if s.policy == RepeatUntil && (s.until == nil || !s.until(s)) {
		if err := s.instantiateInitial(); err != nil {
			s.Fail(err)
			return
		}
		s.Proceed()
		return
	}
	s.phase.NotifyFinished(s)
}

// cancelRequests closes the connection of every in-flight request and frees
// its slot. A released slot alone would leave the response pending.
func (s *Session) cancelRequests() {
	for _, p := range s.httpPools {
		p.CancelWait(s)
	}
	if s.requestPool.IsFull() {
		return
	}
	s.requestPool.Each(func(request *Request) {
		if request.IsCompleted() {
			return
		}
		if s.trace {
			s.log.Debug("canceling request", zap.Any("connection", request.Connection()))
		}
		if conn := request.Connection(); conn != nil {
			if err := conn.Close(); err != nil {
				s.log.Debug("closing connection failed", zap.Error(err))
			}
		}
		request.Release()
	})
}

func (s *Session) releaseRunning() {
	for i := 0; i <= s.lastRunning; i++ {
		s.sequencePool.Release(s.running[i])
		s.running[i] = nil
	}
	s.lastRunning = -1
}

// CurrentSequence returns the sequence whose steps are executing, or nil
// outside of a step.
func (s *Session) CurrentSequence() *SequenceInstance {
	return s.current
}

// SetCurrentSequence marks the executing sequence. A sequence can only be set
// when none is current.
func (s *Session) SetCurrentSequence(current *SequenceInstance) {
	if s.trace {
		s.log.Debug("changing sequence", zap.Stringer("from", s.current), zap.Stringer("to", current))
	}
	assert.That(current == nil || s.current == nil, "sequence %v is already current", s.current)
	s.current = current
}

// Reset unsets every variable. All sequence instances and request slots must
// already be back in their pools.
func (s *Session) Reset() {
	assert.That(s.sequencePool.IsFull(), "session %d reset with sequences running", s.id)
	assert.That(s.requestPool.IsFull(), "session %d reset with requests in flight", s.id)
	for _, v := range s.allVars {
		v.Unset()
	}
}

// NextSequence instantiates the named sequence from its first step.
func (s *Session) NextSequence(name string) error {
	sequence, ok := s.scenario.Sequence(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSequence, name)
	}
	return sequence.Instantiate(s, 0)
}

// Stop releases every running sequence without the completion bookkeeping.
func (s *Session) Stop() {
	s.releaseRunning()
	s.interrupted = true
	if s.trace {
		s.log.Debug("stopped")
	}
}

// Fail stops the session, cancels its requests and reports err to the phase.
func (s *Session) Fail(err error) {
	s.Stop()
	s.cancelRequests()
	s.Reset()
	if s.phase == nil {
		s.log.Error("session failed outside of a phase", zap.Error(err))
		return
	}
	s.phase.Fail(s, err)
}

// AcquireSequence takes a sequence instance from the pool.
func (s *Session) AcquireSequence() (*SequenceInstance, error) {
	instance, err := s.sequencePool.Acquire()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTooManySequences, err)
	}
	return instance, nil
}

// EnableSequence schedules an acquired instance. When the scenario's bound is
// exceeded the instance goes back to the pool and ErrTooManySequences is returned.
func (s *Session) EnableSequence(instance *SequenceInstance) error {
	if s.lastRunning >= len(s.running)-1 {
		s.sequencePool.Release(instance)
		return ErrTooManySequences
	}
	s.lastRunning++
	assert.That(s.running[s.lastRunning] == nil, "running slot %d is not empty", s.lastRunning)
	s.running[s.lastRunning] = instance
	return nil
}

// AcquireRequest takes a request slot from the pool.
func (s *Session) AcquireRequest() (*Request, error) {
	request, err := s.requestPool.Acquire()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTooManyRequests, err)
	}
	return request, nil
}

func (s *Session) String() string {
	var sb strings.Builder
	sb.WriteByte('#')
	sb.WriteString(strconv.Itoa(s.id))
	sb.WriteString(" (")
	sb.WriteString(phaseName(s.phase))
	sb.WriteString(") ")
	sb.WriteString(strconv.Itoa(s.lastRunning + 1))
	sb.WriteString(" sequences:")
	for i := 0; i <= s.lastRunning; i++ {
		sb.WriteByte(' ')
		s.running[i].appendTo(&sb)
	}
	return sb.String()
}

func phaseName(p Phase) string {
	if p == nil {
		return "<none>"
	}
	return p.Name()
}
