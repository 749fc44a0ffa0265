package session

import (
	"strconv"
	"strings"
)

// SequenceInstance is the runtime cursor over one instantiated sequence.
//
// Instances are pooled per session: once completed and released they must
// not be touched until acquired and Reset again.
type SequenceInstance struct {
	sequence   Sequence
	steps      []Step
	index      int
	slot       int
	generation uint64
}

// Reset positions the instance at step index of sequence and starts a new
// generation of it.
func (si *SequenceInstance) Reset(sequence Sequence, steps []Step, index int) *SequenceInstance {
	si.sequence = sequence
	si.steps = steps
	si.index = index
	si.generation++
	return si
}

// Slot returns the fixed position of the instance in its session's pool,
// in the range [0, Scenario.MaxSequences()).
func (si *SequenceInstance) Slot() int {
	return si.slot
}

// Generation changes every time the instance is Reset, so per-instance step
// state can tell a fresh run of the slot from the one that created it.
func (si *SequenceInstance) Generation() uint64 {
	return si.generation
}

// Progress invokes steps until one of them blocks or the sequence completes.
// It reports whether at least one step completed.
//
// A step that stops or fails the session has already released this instance,
// so Progress returns without touching it again.
func (si *SequenceInstance) Progress(s *Session) (bool, error) {
	progressed := false
	for si.index < len(si.steps) {
		done, err := si.steps[si.index].Invoke(s)
		if s.interrupted {
			return progressed, err
		}
		if err != nil {
			return progressed, err
		}
		if !done {
			return progressed, nil
		}
		si.index++
		progressed = true
	}
	return progressed, nil
}

// IsCompleted reports whether every step has completed.
func (si *SequenceInstance) IsCompleted() bool {
	return si.index >= len(si.steps)
}

// Sequence returns the definition this instance runs.
func (si *SequenceInstance) Sequence() Sequence {
	return si.sequence
}

// ID returns the sequence ID used to attribute statistics.
func (si *SequenceInstance) ID() int {
	if si.sequence == nil {
		return -1
	}
	return si.sequence.ID()
}

// Index returns the position of the next step to invoke.
func (si *SequenceInstance) Index() int {
	return si.index
}

func (si *SequenceInstance) String() string {
	var sb strings.Builder
	si.appendTo(&sb)
	return sb.String()
}

func (si *SequenceInstance) appendTo(sb *strings.Builder) {
	if si == nil || si.sequence == nil {
		sb.WriteString("<released>")
		return
	}
	sb.WriteString(si.sequence.Name())
	sb.WriteByte('(')
	sb.WriteString(strconv.Itoa(si.index))
	sb.WriteByte('/')
	sb.WriteString(strconv.Itoa(len(si.steps)))
	sb.WriteByte(')')
}
