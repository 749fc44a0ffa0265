// Package assert provides invariant checks that are compiled out of release builds.
//
// Default builds (including `go test`) evaluate every check and panic on a
// violation. Building with `-tags release` turns Enabled into a false constant,
// so guarded call sites cost nothing on the hot path.
package assert

import "fmt"

// That panics with the formatted message when cond is false and assertions are enabled.
//
// Callers on hot paths should guard the call with `if assert.Enabled` so that the
// arguments are not evaluated in release builds.
func That(cond bool, format string, args ...any) {
	if Enabled && !cond {
		panic(fmt.Sprintf("assertion failed: "+format, args...))
	}
}
