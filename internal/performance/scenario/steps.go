package scenario

import (
	"fmt"
	"time"

	"github.com/wesleyorama2/volley/internal/performance/session"
)

// AwaitAllResponses blocks until the session has no request in flight.
type AwaitAllResponses struct{}

func (AwaitAllResponses) Invoke(s *session.Session) (bool, error) {
	return s.RequestPool().IsFull(), nil
}

// AwaitVar blocks until a variable is set.
type AwaitVar struct {
	Var string
}

func (a AwaitVar) Invoke(s *session.Session) (bool, error) {
	return s.IsSet(a.Var), nil
}

// SetInt assigns an integer variable.
type SetInt struct {
	Var   string
	Value int
}

func (a SetInt) Reserve(s *session.Session) {
	s.DeclareInt(a.Var)
}

func (a SetInt) Invoke(s *session.Session) (bool, error) {
	return true, s.SetInt(a.Var, a.Value)
}

// AddToInt adds to an integer variable, which must be set.
type AddToInt struct {
	Var   string
	Delta int
}

func (a AddToInt) Reserve(s *session.Session) {
	s.DeclareInt(a.Var)
}

func (a AddToInt) Invoke(s *session.Session) (bool, error) {
	return true, s.AddToInt(a.Var, a.Delta)
}

// Unset clears a variable.
type Unset struct {
	Var string
}

func (a Unset) Invoke(s *session.Session) (bool, error) {
	return true, s.Unset(a.Var)
}

// NextSequence instantiates another sequence and moves on.
type NextSequence struct {
	Name string
}

func (a NextSequence) Invoke(s *session.Session) (bool, error) {
	return true, s.NextSequence(a.Name)
}

// ThinkTime pauses the sequence. Every running instance of the sequence keeps
// its own deadline, indexed by the instance's pool slot and tagged with its
// generation so that a reused slot starts a fresh pause.
type ThinkTime struct {
	key      string
	duration time.Duration
	pauses   *session.ResourceKey[[]pause]
}

type pause struct {
	deadline   time.Time
	generation uint64
}

// NewThinkTime creates a pause of d. key names the step in diagnostics.
func NewThinkTime(key string, d time.Duration) *ThinkTime {
	return &ThinkTime{key: key, duration: d, pauses: session.NewResourceKey[[]pause](key)}
}

func (t *ThinkTime) Reserve(s *session.Session) {
	session.DeclareResource(s, t.pauses, make([]pause, s.Scenario().MaxSequences()))
}

func (t *ThinkTime) Invoke(s *session.Session) (bool, error) {
	instance := s.CurrentSequence()
	if instance == nil {
		return false, fmt.Errorf("%s: no current sequence", t.key)
	}
	pauses, ok := session.GetResource(s, t.pauses)
	if !ok {
		return false, fmt.Errorf("%s: think time was not reserved", t.key)
	}
	p := &pauses[instance.Slot()]
	if p.generation != instance.Generation() || p.deadline.IsZero() {
		p.generation = instance.Generation()
		p.deadline = time.Now().Add(t.duration)
		time.AfterFunc(t.duration, s.Proceed)
		return false, nil
	}
	if time.Now().Before(p.deadline) {
		return false, nil
	}
	p.deadline = time.Time{}
	return true, nil
}
