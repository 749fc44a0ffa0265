// Package executor provides the single-goroutine execution contexts sessions run on.
//
// An EventLoop executes submitted tasks one at a time, in submission order, on
// its own goroutine. Every session is bound to exactly one loop, so session
// state is never touched concurrently. Submit never blocks: a task may
// resubmit work to its own loop.
package executor

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/wesleyorama2/volley/internal/logging"
)

// EventLoop is a single goroutine draining an unbounded FIFO task queue.
type EventLoop struct {
	id int

	mu     sync.Mutex
	cond   *sync.Cond
	tasks  []func()
	closed bool

	done chan struct{}
	log  *zap.Logger
}

// NewEventLoop creates and starts a loop.
func NewEventLoop(id int) *EventLoop {
	l := &EventLoop{
		id:   id,
		done: make(chan struct{}),
		log:  logging.Named("executor").With(zap.Int("loop", id)),
	}
	l.cond = sync.NewCond(&l.mu)
	go l.run()
	return l
}

// ID returns the loop's index within its group.
func (l *EventLoop) ID() int {
	return l.id
}

// Submit enqueues task. Tasks submitted after Shutdown are dropped.
func (l *EventLoop) Submit(task func()) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		l.log.Debug("task submitted after shutdown, dropping")
		return
	}
	l.tasks = append(l.tasks, task)
	l.mu.Unlock()
	l.cond.Signal()
}

// Pending returns the number of queued tasks.
func (l *EventLoop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.tasks)
}

// Shutdown stops accepting tasks, lets the queue drain and waits for the loop
// goroutine to exit.
func (l *EventLoop) Shutdown() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	l.cond.Broadcast()
	<-l.done
}

func (l *EventLoop) run() {
	defer close(l.done)
	var batch []func()
	for {
		l.mu.Lock()
		for len(l.tasks) == 0 && !l.closed {
			l.cond.Wait()
		}
		if len(l.tasks) == 0 {
			l.mu.Unlock()
			return
		}
		batch, l.tasks = l.tasks, batch[:0]
		l.mu.Unlock()

		for i, task := range batch {
			l.execute(task)
			batch[i] = nil
		}
	}
}

func (l *EventLoop) execute(task func()) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("task panicked", zap.String("panic", fmt.Sprint(r)), zap.Stack("stack"))
		}
	}()
	task()
}
