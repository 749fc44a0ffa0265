package executor

import "sync/atomic"

// Group owns a fixed set of event loops and hands them out round-robin.
type Group struct {
	loops []*EventLoop
	next  atomic.Uint64
}

// NewGroup starts n loops. n below 1 is treated as 1.
func NewGroup(n int) *Group {
	if n < 1 {
		n = 1
	}
	g := &Group{loops: make([]*EventLoop, n)}
	for i := range g.loops {
		g.loops[i] = NewEventLoop(i)
	}
	return g
}

// Next returns the next loop in round-robin order.
func (g *Group) Next() *EventLoop {
	i := g.next.Add(1) - 1
	return g.loops[i%uint64(len(g.loops))]
}

// Loop returns loop i.
func (g *Group) Loop(i int) *EventLoop {
	return g.loops[i]
}

// Len returns the number of loops.
func (g *Group) Len() int {
	return len(g.loops)
}

// Shutdown drains and stops every loop.
func (g *Group) Shutdown() {
	for _, l := range g.loops {
		l.Shutdown()
	}
}
