package scenario

import (
	"errors"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/wesleyorama2/volley/internal/performance/connection"
	"github.com/wesleyorama2/volley/internal/performance/metrics"
	"github.com/wesleyorama2/volley/internal/performance/session"
)

// HTTPRequest sends one request and completes as soon as it is on the wire.
// The response is handled asynchronously: statistics are recorded, values
// are extracted into session variables and the body is optionally validated.
// Use AwaitAllResponses or AwaitVar to wait for it.
type HTTPRequest struct {
	method    string
	baseURL   string
	path      *pathTemplate
	headers   map[string]string
	body      []byte
	timeout   time.Duration
	extract   []extraction
	validator *bodyValidator
}

// HTTPRequestOptions configures an HTTPRequest step.
type HTTPRequestOptions struct {
	Method  string
	BaseURL string
	Path    string
	Headers map[string]string
	Body    string

	// Timeout of zero uses the connection pool's timeout
	Timeout time.Duration

	// Extract copies values from a JSON body into object variables, in order
	Extract []Extract

	// Schema is a JSON schema document for the response body
	Schema string
}

// Extract names an object variable and the JSONPath expression filling it.
type Extract struct {
	Var  string
	JSON string
}

// NewHTTPRequest compiles an HTTP request step.
func NewHTTPRequest(opts HTTPRequestOptions) (*HTTPRequest, error) {
	h := &HTTPRequest{
		method:  opts.Method,
		baseURL: opts.BaseURL,
		path:    parsePathTemplate(opts.Path),
		headers: opts.Headers,
		timeout: opts.Timeout,
	}
	if h.method == "" {
		h.method = fasthttp.MethodGet
	}
	if opts.Body != "" {
		h.body = []byte(opts.Body)
	}
	for _, ex := range opts.Extract {
		e, err := newExtraction(ex.Var, ex.JSON)
		if err != nil {
			return nil, err
		}
		h.extract = append(h.extract, e)
	}
	if opts.Schema != "" {
		v, err := compileSchema("response.json", opts.Schema)
		if err != nil {
			return nil, err
		}
		h.validator = v
	}
	return h, nil
}

// Reserve declares the extraction targets.
func (h *HTTPRequest) Reserve(s *session.Session) {
	for _, e := range h.extract {
		s.Declare(e.variable)
	}
}

// Invoke sends the request. It blocks while no request slot or connection is
// free; a connection release or a completed response resumes the session.
func (h *HTTPRequest) Invoke(s *session.Session) (bool, error) {
	pool := s.HTTPPool(h.baseURL)
	if pool == nil {
		return false, fmt.Errorf("%w: %s", ErrNoConnectionPool, h.baseURL)
	}
	if s.RequestPool().Available() == 0 {
		return false, nil
	}
	path, err := h.path.render(s)
	if err != nil {
		return false, err
	}
	conn := pool.AcquireOrWait(s)
	if conn == nil {
		return false, nil
	}
	request, err := s.AcquireRequest()
	if err != nil {
		pool.Release(conn)
		return false, err
	}

	sequenceID := s.CurrentSequence().ID()
	now := time.Now()
	generation := request.Start(conn, sequenceID, now)
	if stats := s.Statistics(sequenceID); stats != nil {
		stats.RecordRequest(now)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	req.Header.SetMethod(h.method)
	req.SetRequestURI(pool.BaseURL() + path)
	for k, v := range h.headers {
		req.Header.Set(k, v)
	}
	if h.body != nil {
		req.SetBodyRaw(h.body)
	}

	executor := s.Executor()
	err = conn.Send(req, resp, h.timeout, func(err error) {
		executor.Submit(func() {
			h.complete(s, request, generation, conn, resp, err)
			fasthttp.ReleaseRequest(req)
			fasthttp.ReleaseResponse(resp)
		})
	})
	if err != nil {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
		request.Release()
		pool.Release(conn)
		return false, err
	}
	return true, nil
}

// complete runs on the session's executor once the exchange ended.
func (h *HTTPRequest) complete(s *session.Session, request *session.Request, generation uint64,
	conn *connection.Connection, resp *fasthttp.Response, err error) {
	conn.Pool().Release(conn)
	if !request.IsCurrent(generation) {
		// cancelled, and maybe reused, while in flight
		if s.Logger().Core().Enabled(zap.DebugLevel) {
			s.Logger().Debug("dropping response of cancelled request", zap.Stringer("connection", conn), zap.Error(err))
		}
		return
	}

	stats := s.Statistics(request.SequenceID())
	switch {
	case err == nil:
		now := time.Now()
		body := resp.Body()
		if stats != nil {
			stats.RecordResponse(resp.StatusCode(), now.Sub(request.StartTime()), int64(len(body)), now)
		}
		h.handleBody(s, stats, body)
	case errors.Is(err, fasthttp.ErrTimeout):
		if stats != nil {
			stats.RecordTimeout()
		}
		s.Logger().Debug("request timed out", zap.Stringer("connection", conn))
	default:
		if stats != nil {
			stats.RecordReset()
		}
		s.Logger().Debug("request failed", zap.Stringer("connection", conn), zap.Error(err))
	}

	request.Release()
	s.Run()
}

func (h *HTTPRequest) handleBody(s *session.Session, stats *metrics.Statistics, body []byte) {
	for _, e := range h.extract {
		v, ok := e.lookup(body)
		if !ok {
			s.Logger().Debug("extraction found nothing", zap.String("var", e.variable), zap.String("path", e.source))
			continue
		}
		if err := s.SetObject(e.variable, v); err != nil {
			s.Logger().Warn("extraction failed", zap.String("var", e.variable), zap.Error(err))
		}
	}
	if h.validator != nil {
		ok, err := h.validator.validate(body)
		if stats != nil {
			stats.RecordValidation(ok)
		}
		if !ok {
			s.Logger().Debug("response failed validation", zap.Error(err))
		}
	}
}
