package scenario

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/volley/internal/performance/connection"
	"github.com/wesleyorama2/volley/internal/performance/executor"
	"github.com/wesleyorama2/volley/internal/performance/metrics"
	"github.com/wesleyorama2/volley/internal/performance/session"
)

type harness struct {
	loop  *executor.EventLoop
	pools map[string]*connection.Pool
	stats []*metrics.Statistics
	phase *testPhase
	s     *session.Session
}

func newHarness(t *testing.T, sc *Scenario, baseURLs ...string) *harness {
	t.Helper()
	h := &harness{
		loop:  executor.NewEventLoop(0),
		pools: make(map[string]*connection.Pool),
		stats: metrics.NewArray(sc.SequenceNames()),
		phase: newTestPhase(sc),
	}
	for _, u := range baseURLs {
		p, err := connection.NewPool(connection.Config{BaseURL: u, Connections: 2, Timeout: 5 * time.Second})
		require.NoError(t, err)
		h.pools[u] = p
	}
	t.Cleanup(func() {
		h.loop.Shutdown()
		for _, p := range h.pools {
			p.Close()
		}
	})
	h.s = session.New(sc, 1, session.Options{})
	h.s.Attach(h.loop, h.pools, h.stats)
	return h
}

func (h *harness) run(t *testing.T) {
	t.Helper()
	h.loop.Submit(func() {
		if err := h.s.Start(h.phase); err != nil {
			h.phase.failed <- err
		}
	})
	select {
	case <-h.phase.finished:
	case err := <-h.phase.failed:
		t.Fatalf("session failed: %v", err)
	case <-time.After(10 * time.Second):
		t.Fatal("session did not finish")
	}
}

func TestHTTPRequest_ExtractAndValidate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/login":
			_, _ = w.Write([]byte(`{"token":"abc"}`))
		case "/items/abc":
			_, _ = w.Write([]byte(`{"id":"not-a-number"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	login, err := NewHTTPRequest(HTTPRequestOptions{
		BaseURL: srv.URL,
		Path:    "/login",
		Extract: []Extract{{Var: "token", JSON: "$.token"}},
	})
	require.NoError(t, err)
	item, err := NewHTTPRequest(HTTPRequestOptions{
		BaseURL: srv.URL,
		Path:    "/items/{{token}}",
		Schema:  `{"type":"object","properties":{"id":{"type":"integer"}}}`,
	})
	require.NoError(t, err)

	var token any
	sc, err := New([]Definition{{Name: "main", Initial: true, Steps: []session.Step{
		login,
		AwaitVar{Var: "token"},
		stepFunc(func(s *session.Session) (bool, error) {
			v, err := s.GetObject("token")
			token = v
			return true, err
		}),
		item,
		AwaitAllResponses{},
	}}}, Options{MaxRequests: 2})
	require.NoError(t, err)

	h := newHarness(t, sc, srv.URL)
	h.run(t)

	assert.Equal(t, "abc", token)
	snap := h.stats[0].Snapshot()
	assert.EqualValues(t, 2, snap.Requests)
	assert.EqualValues(t, 2, snap.Status2xx)
	assert.EqualValues(t, 1, snap.ValidationFailures)
	assert.EqualValues(t, 0, snap.Errors())
	assert.Equal(t, 2, h.pools[srv.URL].Available())
}

func TestHTTPRequest_ConnectionErrorCountsReset(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	baseURL := srv.URL
	srv.Close()

	req, err := NewHTTPRequest(HTTPRequestOptions{BaseURL: baseURL, Path: "/"})
	require.NoError(t, err)
	sc, err := New([]Definition{{Name: "main", Initial: true, Steps: []session.Step{req, AwaitAllResponses{}}}}, Options{})
	require.NoError(t, err)

	h := newHarness(t, sc, baseURL)
	h.run(t)

	snap := h.stats[0].Snapshot()
	assert.EqualValues(t, 1, snap.Requests)
	assert.EqualValues(t, 1, snap.Resets)
	assert.EqualValues(t, 0, snap.Responses)
}

func TestHTTPRequest_WaitsForConnection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(10 * time.Millisecond)
	}))
	defer srv.Close()

	steps := make([]session.Step, 0, 6)
	for i := 0; i < 5; i++ {
		req, err := NewHTTPRequest(HTTPRequestOptions{BaseURL: srv.URL, Path: "/"})
		require.NoError(t, err)
		steps = append(steps, req)
	}
	steps = append(steps, AwaitAllResponses{})
	sc, err := New([]Definition{{Name: "main", Initial: true, Steps: steps}}, Options{MaxRequests: 5})
	require.NoError(t, err)

	// two connections for five requests
	h := newHarness(t, sc, srv.URL)
	h.run(t)

	snap := h.stats[0].Snapshot()
	assert.EqualValues(t, 5, snap.Requests)
	assert.EqualValues(t, 5, snap.Status2xx)
}

func TestHTTPRequest_NoPool(t *testing.T) {
	req, err := NewHTTPRequest(HTTPRequestOptions{BaseURL: "http://nowhere", Path: "/"})
	require.NoError(t, err)
	sc, err := New([]Definition{{Name: "main", Initial: true, Steps: []session.Step{req}}}, Options{})
	require.NoError(t, err)

	h := newHarness(t, sc)
	h.loop.Submit(func() { _ = h.s.Start(h.phase) })
	select {
	case err := <-h.phase.failed:
		assert.ErrorIs(t, err, ErrNoConnectionPool)
	case <-time.After(5 * time.Second):
		t.Fatal("expected failure")
	}
}

func TestHTTPRequest_CancelledOnTermination(t *testing.T) {
	arrived := make(chan struct{}, 1)
	unblock := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		arrived <- struct{}{}
		<-unblock
	}))
	defer srv.Close()
	defer close(unblock)

	req, err := NewHTTPRequest(HTTPRequestOptions{BaseURL: srv.URL, Path: "/slow"})
	require.NoError(t, err)
	sc, err := New([]Definition{{Name: "main", Initial: true, Steps: []session.Step{req, AwaitAllResponses{}}}}, Options{})
	require.NoError(t, err)

	h := newHarness(t, sc, srv.URL)
	phase := &switchablePhase{testPhase: h.phase}
	h.loop.Submit(func() { _ = h.s.Start(phase) })
	<-arrived

	h.loop.Submit(func() {
		phase.status = session.StatusTerminating
		h.s.Proceed()
	})
	select {
	case <-h.phase.terminated:
	case <-time.After(5 * time.Second):
		t.Fatal("session did not terminate")
	}

	// the aborted exchange returns its connection without touching statistics
	require.Eventually(t, func() bool {
		var available int
		done := make(chan struct{})
		h.loop.Submit(func() {
			available = h.pools[srv.URL].Available()
			close(done)
		})
		<-done
		return available == 2
	}, 5*time.Second, 10*time.Millisecond)
	snap := h.stats[0].Snapshot()
	assert.EqualValues(t, 1, snap.Requests)
	assert.EqualValues(t, 0, snap.Resets)
}

// switchablePhase lets a test flip the status from the session's loop.
type switchablePhase struct {
	*testPhase
	status session.Status
}

func (p *switchablePhase) Status() session.Status { return p.status }
