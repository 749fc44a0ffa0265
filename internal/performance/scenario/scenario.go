// Package scenario provides the compiled scenario, its sequences and the
// built-in steps sessions execute.
//
// A Scenario is immutable once built and shared by every session that runs
// it; per-session state lives in session variables declared by the steps'
// Reserve methods.
package scenario

import (
	"errors"
	"fmt"

	"github.com/wesleyorama2/volley/internal/performance/session"
)

var (
	// ErrNoConnectionPool is returned by HTTP steps when the session has no pool for the base URL.
	ErrNoConnectionPool = errors.New("no connection pool for base URL")

	// ErrInvalidScenario is returned when a scenario cannot be built.
	ErrInvalidScenario = errors.New("invalid scenario")
)

// Definition describes one sequence of a scenario.
type Definition struct {
	Name    string
	Initial bool
	Steps   []session.Step
}

// Options bounds the per-session resources of a scenario.
type Options struct {
	ObjectVars []string
	IntVars    []string

	// MaxRequests is the number of request slots per session (default: 1)
	MaxRequests int

	// MaxSequences bounds concurrently running sequences (default: number of sequences)
	MaxSequences int
}

// Scenario is a compiled, immutable scenario.
type Scenario struct {
	sequences    []session.Sequence
	initial      []session.Sequence
	byName       map[string]*Sequence
	objectVars   []string
	intVars      []string
	maxRequests  int
	maxSequences int
}

var _ session.Scenario = (*Scenario)(nil)

// New builds a scenario. Sequence IDs follow the order of defs.
func New(defs []Definition, opts Options) (*Scenario, error) {
	if len(defs) == 0 {
		return nil, fmt.Errorf("%w: no sequences", ErrInvalidScenario)
	}
	sc := &Scenario{
		byName:       make(map[string]*Sequence, len(defs)),
		objectVars:   opts.ObjectVars,
		intVars:      opts.IntVars,
		maxRequests:  opts.MaxRequests,
		maxSequences: opts.MaxSequences,
	}
	for i, def := range defs {
		if _, dup := sc.byName[def.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate sequence %s", ErrInvalidScenario, def.Name)
		}
		seq := &Sequence{id: i, name: def.Name, steps: def.Steps}
		sc.byName[def.Name] = seq
		sc.sequences = append(sc.sequences, seq)
		if def.Initial {
			sc.initial = append(sc.initial, seq)
		}
	}
	if len(sc.initial) == 0 {
		return nil, fmt.Errorf("%w: no initial sequence", ErrInvalidScenario)
	}
	if sc.maxRequests < 1 {
		sc.maxRequests = 1
	}
	if sc.maxSequences < 1 {
		sc.maxSequences = len(defs)
	}
	if sc.maxSequences < len(sc.initial) {
		return nil, fmt.Errorf("%w: %d initial sequences exceed maxSequences %d",
			ErrInvalidScenario, len(sc.initial), sc.maxSequences)
	}
	return sc, nil
}

// Sequences returns every sequence, indexed by sequence ID.
func (sc *Scenario) Sequences() []session.Sequence {
	return sc.sequences
}

// InitialSequences returns the sequences instantiated when a session starts.
func (sc *Scenario) InitialSequences() []session.Sequence {
	return sc.initial
}

// Sequence looks a sequence up by name.
func (sc *Scenario) Sequence(name string) (session.Sequence, bool) {
	seq, ok := sc.byName[name]
	if !ok {
		return nil, false
	}
	return seq, true
}

// SequenceNames returns sequence names indexed by sequence ID.
func (sc *Scenario) SequenceNames() []string {
	names := make([]string, len(sc.sequences))
	for i, seq := range sc.sequences {
		names[i] = seq.Name()
	}
	return names
}

func (sc *Scenario) ObjectVars() []string { return sc.objectVars }
func (sc *Scenario) IntVars() []string    { return sc.intVars }
func (sc *Scenario) MaxSequences() int    { return sc.maxSequences }
func (sc *Scenario) MaxRequests() int     { return sc.maxRequests }

// Sequence is an ordered list of steps.
type Sequence struct {
	id    int
	name  string
	steps []session.Step
}

var _ session.Sequence = (*Sequence)(nil)

// ID returns the sequence index within its scenario.
func (q *Sequence) ID() int {
	return q.id
}

// Name returns the sequence name.
func (q *Sequence) Name() string {
	return q.name
}

// Steps returns the steps of the sequence.
func (q *Sequence) Steps() []session.Step {
	return q.steps
}

// Reserve lets every step declare its per-session state.
func (q *Sequence) Reserve(s *session.Session) {
	for _, step := range q.steps {
		if r, ok := step.(session.Reserver); ok {
			r.Reserve(s)
		}
	}
}

// Instantiate schedules a new instance of the sequence at step index.
func (q *Sequence) Instantiate(s *session.Session, index int) error {
	instance, err := s.AcquireSequence()
	if err != nil {
		return err
	}
	instance.Reset(q, q.steps, index)
	return s.EnableSequence(instance)
}
