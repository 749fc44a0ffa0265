package session_test

import (
	"sync/atomic"

	"github.com/wesleyorama2/volley/internal/performance/session"
)

// queueExecutor runs submitted tasks only when drained, on the test goroutine.
type queueExecutor struct {
	tasks []func()
}

func (e *queueExecutor) Submit(task func()) {
	e.tasks = append(e.tasks, task)
}

// Drain runs tasks, including ones submitted while draining, and returns how many ran.
func (e *queueExecutor) Drain() int {
	n := 0
	for len(e.tasks) > 0 {
		task := e.tasks[0]
		e.tasks = e.tasks[1:]
		task()
		n++
	}
	return n
}

type fakePhase struct {
	name       string
	status     atomic.Int32
	scenario   session.Scenario
	finished   int
	terminated int
	failures   []error
}

func newFakePhase(name string, scenario session.Scenario) *fakePhase {
	return &fakePhase{name: name, scenario: scenario}
}

func (p *fakePhase) Name() string                      { return p.name }
func (p *fakePhase) Status() session.Status            { return session.Status(p.status.Load()) }
func (p *fakePhase) SetStatus(st session.Status)       { p.status.Store(int32(st)) }
func (p *fakePhase) Scenario() session.Scenario        { return p.scenario }
func (p *fakePhase) NotifyFinished(*session.Session)   { p.finished++ }
func (p *fakePhase) NotifyTerminated(*session.Session) { p.terminated++ }
func (p *fakePhase) Fail(_ *session.Session, err error) {
	p.failures = append(p.failures, err)
}

type stepFunc func(s *session.Session) (bool, error)

func (f stepFunc) Invoke(s *session.Session) (bool, error) { return f(s) }

type fakeSequence struct {
	id    int
	name  string
	steps []session.Step
}

func (q *fakeSequence) ID() int      { return q.id }
func (q *fakeSequence) Name() string { return q.name }

func (q *fakeSequence) Reserve(s *session.Session) {
	for _, step := range q.steps {
		if r, ok := step.(session.Reserver); ok {
			r.Reserve(s)
		}
	}
}

func (q *fakeSequence) Instantiate(s *session.Session, index int) error {
	instance, err := s.AcquireSequence()
	if err != nil {
		return err
	}
	instance.Reset(q, q.steps, index)
	return s.EnableSequence(instance)
}

type fakeScenario struct {
	sequences    []*fakeSequence
	initial      []string
	objectVars   []string
	intVars      []string
	maxSequences int
	maxRequests  int
}

// newScenario builds a scenario whose initial sequences are all the given ones.
func newScenario(maxSequences, maxRequests int, sequences ...*fakeSequence) *fakeScenario {
	sc := &fakeScenario{maxSequences: maxSequences, maxRequests: maxRequests}
	for i, q := range sequences {
		q.id = i
		sc.sequences = append(sc.sequences, q)
		sc.initial = append(sc.initial, q.name)
	}
	return sc
}

func (sc *fakeScenario) Sequences() []session.Sequence {
	out := make([]session.Sequence, len(sc.sequences))
	for i, q := range sc.sequences {
		out[i] = q
	}
	return out
}

func (sc *fakeScenario) InitialSequences() []session.Sequence {
	var out []session.Sequence
	for _, name := range sc.initial {
		if q, ok := sc.Sequence(name); ok {
			out = append(out, q)
		}
	}
	return out
}

func (sc *fakeScenario) Sequence(name string) (session.Sequence, bool) {
	for _, q := range sc.sequences {
		if q.name == name {
			return q, true
		}
	}
	return nil, false
}

func (sc *fakeScenario) ObjectVars() []string { return sc.objectVars }
func (sc *fakeScenario) IntVars() []string    { return sc.intVars }
func (sc *fakeScenario) MaxSequences() int    { return sc.maxSequences }
func (sc *fakeScenario) MaxRequests() int     { return sc.maxRequests }

type fakeConn struct {
	closed int
}

func (c *fakeConn) Close() error {
	c.closed++
	return nil
}

// recorder collects step invocations in order.
type recorder struct {
	events []string
}

func (r *recorder) step(name string) session.Step {
	return stepFunc(func(*session.Session) (bool, error) {
		r.events = append(r.events, name)
		return true, nil
	})
}

// gate blocks until open is true.
func gate(open *bool) session.Step {
	return stepFunc(func(*session.Session) (bool, error) {
		return *open, nil
	})
}

func steps(s ...session.Step) []session.Step { return s }

// started builds, attaches and starts a session for scenario.
func started(sc *fakeScenario, opts session.Options) (*session.Session, *fakePhase, *queueExecutor, error) {
	exec := &queueExecutor{}
	phase := newFakePhase("test", sc)
	s := session.New(sc, 1, opts)
	s.Attach(exec, nil, nil)
	err := s.Start(phase)
	return s, phase, exec, err
}
