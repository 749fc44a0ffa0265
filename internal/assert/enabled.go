//go:build !release

package assert

// Enabled reports whether invariant checks are compiled in.
const Enabled = true
