// Package pool provides a fixed-capacity free-list of pre-allocated instances.
//
// Pools are sized up front from a scenario's declared bounds and are never
// grown, so running out of instances is a sizing bug rather than a transient
// condition. A Pool is not safe for concurrent use; it is owned by a single
// session and only touched from that session's execution context.
package pool

import (
	"errors"

	"github.com/wesleyorama2/volley/internal/assert"
)

// ErrExhausted is returned by Acquire when every instance is in use.
var ErrExhausted = errors.New("pool exhausted")

// Pool is a fixed set of reusable instances.
type Pool[T comparable] struct {
	all      []T
	free     []T
	acquired map[T]bool
}

// New creates a pool of capacity instances built by factory.
func New[T comparable](capacity int, factory func() T) *Pool[T] {
	items := make([]T, capacity)
	for i := range items {
		items[i] = factory()
	}
	return From(items)
}

// From creates a pool over existing instances. All of them start free.
func From[T comparable](items []T) *Pool[T] {
	p := &Pool[T]{
		all:  items,
		free: make([]T, len(items)),
	}
	copy(p.free, items)
	if assert.Enabled {
		p.acquired = make(map[T]bool, len(items))
	}
	return p
}

// Acquire removes one free instance from the pool.
func (p *Pool[T]) Acquire() (T, error) {
	n := len(p.free)
	if n == 0 {
		var zero T
		return zero, ErrExhausted
	}
	item := p.free[n-1]
	var zero T
	p.free[n-1] = zero
	p.free = p.free[:n-1]
	if assert.Enabled {
		p.acquired[item] = true
	}
	return item, nil
}

// Release returns an acquired instance to the pool.
//
// Releasing an instance twice, or one that never came from this pool, is a
// programming error caught by an assertion in non-release builds.
func (p *Pool[T]) Release(item T) {
	if assert.Enabled {
		assert.That(p.acquired[item], "releasing %v which is not acquired from this pool", item)
		delete(p.acquired, item)
	}
	assert.That(len(p.free) < len(p.all), "pool overflow on release")
	p.free = append(p.free, item)
}

// IsFull reports whether every instance is currently free.
func (p *Pool[T]) IsFull() bool {
	return len(p.free) == len(p.all)
}

// Cap returns the number of instances owned by the pool.
func (p *Pool[T]) Cap() int {
	return len(p.all)
}

// Available returns the number of free instances.
func (p *Pool[T]) Available() int {
	return len(p.free)
}

// Each calls fn for every instance, free or acquired, in creation order.
func (p *Pool[T]) Each(fn func(T)) {
	for _, item := range p.all {
		fn(item)
	}
}
