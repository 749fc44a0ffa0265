package pool_test

import (
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/volley/internal/performance/pool"
)

type slot struct{ id int }

func newSlotPool(capacity int) *pool.Pool[*slot] {
	next := 0
	return pool.New(capacity, func() *slot {
		next++
		return &slot{id: next}
	})
}

func TestPool_AcquireRelease(t *testing.T) {
	p := newSlotPool(2)
	assert.True(t, p.IsFull())
	assert.Equal(t, 2, p.Cap())

	a, err := p.Acquire()
	require.NoError(t, err)
	b, err := p.Acquire()
	require.NoError(t, err)
	assert.NotSame(t, a, b)
	assert.False(t, p.IsFull())
	assert.Equal(t, 0, p.Available())

	_, err = p.Acquire()
	assert.True(t, errors.Is(err, pool.ErrExhausted))

	p.Release(a)
	p.Release(b)
	assert.True(t, p.IsFull())
}

func TestPool_DoubleReleasePanics(t *testing.T) {
	p := newSlotPool(1)
	a, err := p.Acquire()
	require.NoError(t, err)
	p.Release(a)

	assert.Panics(t, func() { p.Release(a) })
	assert.Panics(t, func() { p.Release(&slot{id: 99}) })
}

func TestPool_From(t *testing.T) {
	items := []*slot{{id: 1}, {id: 2}, {id: 3}}
	p := pool.From(items)

	seen := 0
	p.Each(func(s *slot) { seen += s.id })
	assert.Equal(t, 6, seen)
	assert.Equal(t, 3, p.Available())
}

// TestPool_ClosedSystem checks that for any interleaving of acquire/release
// operations the number of acquired instances never exceeds capacity and every
// acquired instance is distinct until released.
func TestPool_ClosedSystem(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("acquire/release is a closed system", prop.ForAll(
		func(capacity int, ops []bool) bool {
			p := newSlotPool(capacity)
			held := make([]*slot, 0, capacity)
			outstanding := make(map[*slot]bool)

			for _, acquire := range ops {
				if acquire {
					s, err := p.Acquire()
					if len(held) == capacity {
						if !errors.Is(err, pool.ErrExhausted) {
							return false
						}
						continue
					}
					if err != nil || outstanding[s] {
						return false
					}
					outstanding[s] = true
					held = append(held, s)
				} else if len(held) > 0 {
					s := held[len(held)-1]
					held = held[:len(held)-1]
					delete(outstanding, s)
					p.Release(s)
				}
				if len(held) > p.Cap() || p.Available() != capacity-len(held) {
					return false
				}
			}

			for _, s := range held {
				p.Release(s)
			}
			return p.IsFull()
		},
		gen.IntRange(1, 16),
		gen.SliceOf(gen.Bool()),
	))

	properties.TestingRun(t)
}
