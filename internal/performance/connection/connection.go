// Package connection provides per-base-URL pools of HTTP connections.
//
// Each Connection wraps a fasthttp.HostClient limited to one socket, so a
// connection carries at most one request at a time and closing it aborts the
// request in flight. Blocking I/O runs on an ants worker pool owned by the
// Pool; completion callbacks run on a worker goroutine and must hop back to
// the owning session's executor themselves.
package connection

import (
	"errors"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// ErrPoolClosed is returned when sending through a closed pool.
var ErrPoolClosed = errors.New("connection pool is closed")

// Connection is a single HTTP connection to one host.
type Connection struct {
	id     int
	pool   *Pool
	client *fasthttp.HostClient

	mu   sync.Mutex
	conn net.Conn

	// requests counts requests sent through this connection
	requests int64
}

func newConnection(id int, p *Pool) *Connection {
	c := &Connection{id: id, pool: p}
	c.client = &fasthttp.HostClient{
		Addr:         p.addr,
		IsTLS:        p.isTLS,
		Name:         "volley",
		MaxConns:     1,
		ReadTimeout:  p.timeout,
		WriteTimeout: p.timeout,
		Dial:         c.dial,
		// a retried request would be measured as one
		MaxIdemponentCallAttempts: 1,
	}
	return c
}

func (c *Connection) dial(addr string) (net.Conn, error) {
	conn, err := fasthttp.DialTimeout(addr, c.pool.timeout)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return conn, nil
}

// ID returns the connection's index within its pool.
func (c *Connection) ID() int {
	return c.id
}

// Pool returns the pool the connection belongs to.
func (c *Connection) Pool() *Pool {
	return c.pool
}

// Requests returns the number of requests sent through the connection.
func (c *Connection) Requests() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requests
}

// Send executes req on a worker goroutine and calls done with the outcome.
// A timeout is reported as fasthttp.ErrTimeout. req and resp must stay valid
// until done is called.
func (c *Connection) Send(req *fasthttp.Request, resp *fasthttp.Response, timeout time.Duration, done func(error)) error {
	if timeout <= 0 {
		timeout = c.pool.timeout
	}
	c.mu.Lock()
	c.requests++
	c.mu.Unlock()
	err := c.pool.workers.Submit(func() {
		done(c.client.DoTimeout(req, resp, timeout))
	})
	if err != nil {
		c.pool.log.Debug("submitting request failed", zap.Int("connection", c.id), zap.Error(err))
		return ErrPoolClosed
	}
	return nil
}

// Close aborts the request in flight, if any, by closing the socket. The
// connection stays usable: the next request dials again.
func (c *Connection) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	c.client.CloseIdleConnections()
	if conn == nil {
		return nil
	}
	if c.pool.log.Core().Enabled(zap.DebugLevel) {
		c.pool.log.Debug("closing connection", zap.Int("connection", c.id), zap.String("remote", conn.RemoteAddr().String()))
	}
	if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

func (c *Connection) String() string {
	return c.pool.baseURL + "#" + strconv.Itoa(c.id)
}
