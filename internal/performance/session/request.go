package session

import (
	"time"

	"github.com/wesleyorama2/volley/internal/assert"
)

// Request is a pooled slot for one in-flight request.
//
// A free slot is always completed. Start binds it to a connection and bumps
// its generation; completion callbacks carry the generation they were issued
// with, so a callback that arrives after the slot was cancelled (and maybe
// reused) is recognised as stale and dropped.
type Request struct {
	session    *Session
	conn       Connection
	sequenceID int
	start      time.Time
	completed  bool
	generation uint64
}

func newRequest(s *Session) *Request {
	return &Request{session: s, completed: true}
}

// Start binds an acquired slot to conn and returns the generation to hand to
// the completion callback. The sequence ID is captured because the issuing
// instance may complete and be reused before the response arrives.
func (r *Request) Start(conn Connection, sequenceID int, now time.Time) uint64 {
	assert.That(r.completed, "starting request that is still in flight")
	r.conn = conn
	r.sequenceID = sequenceID
	r.start = now
	r.completed = false
	r.generation++
	return r.generation
}

// IsCurrent reports whether a callback issued with generation still owns the slot.
func (r *Request) IsCurrent(generation uint64) bool {
	return !r.completed && r.generation == generation
}

// Session returns the session owning the slot.
func (r *Request) Session() *Session {
	return r.session
}

// Connection returns the connection the request was sent on.
func (r *Request) Connection() Connection {
	return r.conn
}

// SequenceID returns the ID of the sequence that issued the request.
func (r *Request) SequenceID() int {
	return r.sequenceID
}

// StartTime returns when the request was started.
func (r *Request) StartTime() time.Time {
	return r.start
}

// IsCompleted reports whether the slot carries no in-flight request.
func (r *Request) IsCompleted() bool {
	return r.completed
}

// Release marks the request completed and returns the slot to its session's pool.
func (r *Request) Release() {
	r.completed = true
	r.conn = nil
	r.session.requestPool.Release(r)
}
