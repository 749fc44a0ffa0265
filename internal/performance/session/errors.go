package session

import "errors"

var (
	// ErrUndeclaredVar is returned when a variable key was never declared.
	ErrUndeclaredVar = errors.New("undeclared variable")

	// ErrUnsetVar is returned when reading a declared variable that holds no value.
	ErrUnsetVar = errors.New("variable was not set yet")

	// ErrVarKind is returned when an object accessor hits an integer variable or vice versa.
	ErrVarKind = errors.New("variable has a different kind")

	// ErrTooManySequences is returned when more sequences are scheduled than the scenario allows.
	ErrTooManySequences = errors.New("maximum number of scheduled sequences exceeded")

	// ErrTooManyRequests is returned when all request slots are in flight.
	ErrTooManyRequests = errors.New("maximum number of in-flight requests exceeded")

	// ErrUnknownSequence is returned by NextSequence for a name the scenario does not define.
	ErrUnknownSequence = errors.New("unknown sequence")
)
