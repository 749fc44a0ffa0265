package session

// Status is the lifecycle state of a phase, as observed by its sessions.
type Status int32

const (
	// StatusRunning means sessions keep executing their scenario.
	StatusRunning Status = iota
	// StatusTerminating means sessions must abandon their work on the next turn.
	StatusTerminating
	// StatusTerminated means every session has reported back; runs are no-ops.
	StatusTerminated
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusTerminating:
		return "terminating"
	case StatusTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Phase drives a group of sessions through a scenario.
//
// Notifications arrive from every event loop that hosts one of the phase's
// sessions, so implementations must be safe for concurrent use.
type Phase interface {
	// Name identifies the phase in logs and reports.
	Name() string

	// Status is read by the run loop on every step of a scheduling turn.
	Status() Status

	// Scenario returns the compiled scenario executed by the phase.
	Scenario() Scenario

	// NotifyFinished is called once a session completed all of its sequences.
	NotifyFinished(s *Session)

	// NotifyTerminated is called once a session abandoned its work because the
	// phase was terminating.
	NotifyTerminated(s *Session)

	// Fail reports an unrecoverable session error.
	Fail(s *Session, err error)
}

// Scenario is a compiled scenario.
type Scenario interface {
	// Sequences returns every sequence, indexed by sequence ID.
	Sequences() []Sequence

	// InitialSequences returns the sequences instantiated when a session starts.
	InitialSequences() []Sequence

	// Sequence looks a sequence up by name.
	Sequence(name string) (Sequence, bool)

	// ObjectVars returns the names of the declared object variables.
	ObjectVars() []string

	// IntVars returns the names of the declared integer variables.
	IntVars() []string

	// MaxSequences bounds the number of concurrently running sequence instances.
	MaxSequences() int

	// MaxRequests bounds the number of in-flight requests per session.
	MaxRequests() int
}

// Sequence is the definition of an ordered list of steps.
type Sequence interface {
	// ID is the sequence index within its scenario, used for statistics.
	ID() int

	// Name is unique within the scenario.
	Name() string

	// Reserve declares the per-session variables and resources the steps need.
	// It is called once when the session is constructed.
	Reserve(s *Session)

	// Instantiate acquires a sequence instance positioned at step index and
	// enables it on the session.
	Instantiate(s *Session, index int) error
}

// Step is one unit of scripted work.
//
// Invoke returns true when the step is done and the sequence may move on, or
// false when it cannot make progress yet (for example while waiting for a
// response). A false result must be followed by some later event calling
// Session.Proceed, otherwise the session stays blocked forever.
type Step interface {
	Invoke(s *Session) (bool, error)
}

// Reserver is implemented by steps that need per-session state.
type Reserver interface {
	Reserve(s *Session)
}

// Executor schedules tasks on a single execution context.
type Executor interface {
	Submit(task func())
}

// Connection is the part of a transport connection the session needs in order
// to cancel a request.
type Connection interface {
	Close() error
}
