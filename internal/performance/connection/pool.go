package connection

import (
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/wesleyorama2/volley/internal/logging"
)

// Config configures a pool of connections to one base URL.
type Config struct {
	// BaseURL is scheme://host[:port]; a path is ignored
	BaseURL string

	// Connections is the number of connections (default: 1)
	Connections int

	// Timeout bounds dialing and each request (default: 30s)
	Timeout time.Duration
}

// Pool is a fixed set of connections to one base URL, shared by every
// session of a run. It is safe for concurrent use.
type Pool struct {
	baseURL string
	addr    string
	isTLS   bool
	timeout time.Duration

	mu      sync.Mutex
	all     []*Connection
	free    []*Connection
	waiters []Waiter
	closed  bool

	workers *ants.Pool
	log     *zap.Logger
}

// NewPool creates a pool of cfg.Connections connections. Connections dial
// lazily on their first request.
func NewPool(cfg Config) (*Pool, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", cfg.BaseURL, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: missing host", cfg.BaseURL)
	}

	p := &Pool{
		baseURL: u.Scheme + "://" + u.Host,
		timeout: cfg.Timeout,
		log:     logging.Named("connection").With(zap.String("baseUrl", cfg.BaseURL)),
	}
	switch u.Scheme {
	case "http":
		p.addr = hostPort(u, "80")
	case "https":
		p.addr = hostPort(u, "443")
		p.isTLS = true
	default:
		return nil, fmt.Errorf("invalid base URL %q: unsupported scheme %q", cfg.BaseURL, u.Scheme)
	}
	if p.timeout <= 0 {
		p.timeout = 30 * time.Second
	}

	n := cfg.Connections
	if n < 1 {
		n = 1
	}
	// each connection has at most one request in flight, so n workers never block
	p.workers, err = ants.NewPool(n)
	if err != nil {
		return nil, fmt.Errorf("creating worker pool: %w", err)
	}

	p.all = make([]*Connection, n)
	p.free = make([]*Connection, 0, n)
	for i := range p.all {
		p.all[i] = newConnection(i, p)
		p.free = append(p.free, p.all[i])
	}
	return p, nil
}

func hostPort(u *url.URL, defaultPort string) string {
	if u.Port() != "" {
		return u.Host
	}
	return net.JoinHostPort(u.Hostname(), defaultPort)
}

// BaseURL returns the normalised scheme://host of the pool.
func (p *Pool) BaseURL() string {
	return p.baseURL
}

// Timeout returns the default request timeout.
func (p *Pool) Timeout() time.Duration {
	return p.timeout
}

// Size returns the number of connections.
func (p *Pool) Size() int {
	return len(p.all)
}

// Available returns the number of idle connections.
func (p *Pool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// Acquire takes an idle connection, or returns nil if all are busy.
func (p *Pool) Acquire() *Connection {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.acquireLocked()
}

// Waiter is woken when a connection may have become available.
type Waiter interface {
	Proceed()
}

// AcquireOrWait takes an idle connection. If all are busy it queues w, once,
// to be woken by a later Release and returns nil. A waiter that gets a
// connection leaves the queue, so releases only wake waiters still in need.
func (p *Pool) AcquireOrWait(w Waiter) *Connection {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c := p.acquireLocked(); c != nil {
		p.removeWaiterLocked(w)
		return c
	}
	if p.indexOfWaiterLocked(w) < 0 {
		p.waiters = append(p.waiters, w)
	}
	return nil
}

// CancelWait removes w from the wait queue.
func (p *Pool) CancelWait(w Waiter) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removeWaiterLocked(w)
}

func (p *Pool) indexOfWaiterLocked(w Waiter) int {
	for i, queued := range p.waiters {
		if queued == w {
			return i
		}
	}
	return -1
}

func (p *Pool) removeWaiterLocked(w Waiter) {
	i := p.indexOfWaiterLocked(w)
	if i < 0 {
		return
	}
	copy(p.waiters[i:], p.waiters[i+1:])
	p.waiters[len(p.waiters)-1] = nil
	p.waiters = p.waiters[:len(p.waiters)-1]
}

func (p *Pool) acquireLocked() *Connection {
	if p.closed || len(p.free) == 0 {
		return nil
	}
	c := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	return c
}

// Release returns c to the pool and wakes the oldest waiter.
func (p *Pool) Release(c *Connection) {
	p.mu.Lock()
	p.free = append(p.free, c)
	var next Waiter
	if len(p.waiters) > 0 {
		next = p.waiters[0]
		p.waiters[0] = nil
		p.waiters = p.waiters[1:]
	}
	p.mu.Unlock()
	if next != nil {
		next.Proceed()
	}
}

// Close closes every connection and stops the worker pool. Waiters are dropped.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.waiters = nil
	p.mu.Unlock()

	for _, c := range p.all {
		if err := c.Close(); err != nil {
			p.log.Debug("closing connection failed", zap.Int("connection", c.id), zap.Error(err))
		}
	}
	p.workers.Release()
}
