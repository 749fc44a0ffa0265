package engine

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/volley/internal/performance/config"
)

func okServer(t *testing.T, hits *atomic.Int64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func singleRequest(baseURL string, p config.PhaseConfig) *config.BenchmarkConfig {
	return &config.BenchmarkConfig{
		Name:    "single",
		Threads: 2,
		HTTP:    []config.HTTPConfig{{BaseURL: baseURL, Connections: 4}},
		Phases:  []config.PhaseConfig{p},
		Scenario: config.ScenarioConfig{
			Sequences: []config.SequenceConfig{{
				Name: "main",
				Steps: []config.StepConfig{
					{HTTPRequest: &config.HTTPRequestConfig{Path: "/"}},
					{AwaitAllResponses: true},
				},
			}},
		},
	}
}

func runWithTimeout(t *testing.T, e *Engine) (*Result, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	result, err := e.Run(ctx)
	require.False(t, errors.Is(err, context.DeadlineExceeded), "benchmark did not finish in time")
	return result, err
}

func TestEngine_TwoServers(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/test", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer ok.Close()
	redirect := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "/elsewhere")
		w.WriteHeader(http.StatusFound)
	}))
	defer redirect.Close()

	cfg := &config.BenchmarkConfig{
		Name: "two-servers",
		HTTP: []config.HTTPConfig{{BaseURL: ok.URL}, {BaseURL: redirect.URL}},
		Phases: []config.PhaseConfig{
			{Name: "test", Kind: config.KindOnce, Users: 1},
		},
		Scenario: config.ScenarioConfig{
			Sequences: []config.SequenceConfig{{
				Name: "test",
				Steps: []config.StepConfig{
					{HTTPRequest: &config.HTTPRequestConfig{Method: "GET", Path: "/test"}},
					{HTTPRequest: &config.HTTPRequestConfig{Method: "GET", BaseURL: redirect.URL, Path: "/test"}},
					{AwaitAllResponses: true},
				},
			}},
		},
	}

	e, err := NewEngine(cfg)
	require.NoError(t, err)
	result, err := runWithTimeout(t, e)
	require.NoError(t, err)

	assert.True(t, result.Passed)
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, "two-servers", result.Name)
	require.Len(t, result.Phases, 1)

	pr := result.Phases[0]
	assert.EqualValues(t, 1, pr.Completed)
	assert.EqualValues(t, 0, pr.Failures)
	require.Len(t, pr.Sequences, 1)
	assert.Equal(t, "test", pr.Sequences[0].Name)
	assert.EqualValues(t, 2, pr.Total.Requests)
	assert.EqualValues(t, 1, pr.Total.Status2xx)
	assert.EqualValues(t, 1, pr.Total.Status3xx)
	assert.EqualValues(t, 0, pr.Total.Errors())
}

func TestEngine_LoopPhaseAcrossLoops(t *testing.T) {
	var hits atomic.Int64
	srv := okServer(t, &hits)

	e, err := NewEngine(singleRequest(srv.URL, config.PhaseConfig{
		Name: "loop", Kind: config.KindLoop, Users: 5, MaxIterations: 4,
	}))
	require.NoError(t, err)
	result, err := runWithTimeout(t, e)
	require.NoError(t, err)

	pr := result.Phases[0]
	assert.EqualValues(t, 20, hits.Load())
	assert.EqualValues(t, 20, pr.Total.Requests)
	assert.EqualValues(t, 20, pr.Total.Status2xx)
	assert.EqualValues(t, 5, pr.Completed)
	assert.EqualValues(t, 20, pr.Total.Latency.Count)
}

func TestEngine_PhasesRunInOrder(t *testing.T) {
	srv := okServer(t, nil)
	cfg := singleRequest(srv.URL, config.PhaseConfig{Name: "warmup", Users: 2})
	cfg.Phases = append(cfg.Phases, config.PhaseConfig{
		Name: "steady", Kind: config.KindAlways, Users: 2, Duration: config.Duration(100 * time.Millisecond),
	})

	e, err := NewEngine(cfg)
	require.NoError(t, err)
	result, err := runWithTimeout(t, e)
	require.NoError(t, err)

	require.Len(t, result.Phases, 2)
	assert.Equal(t, "warmup", result.Phases[0].Name)
	assert.EqualValues(t, 2, result.Phases[0].Total.Requests)
	assert.Equal(t, "steady", result.Phases[1].Name)
	assert.GreaterOrEqual(t, result.Phases[1].Duration, 100*time.Millisecond)
	assert.Greater(t, result.Phases[1].Completed, int64(2))
	assert.False(t, result.Phases[1].Total.Start.Before(result.Phases[0].Total.Start))
}

func TestEngine_ContextCancel(t *testing.T) {
	block := make(chan struct{})
	arrived := make(chan struct{}, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		arrived <- struct{}{}
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	cfg := singleRequest(srv.URL, config.PhaseConfig{Name: "stuck", Users: 2})
	cfg.Phases = append(cfg.Phases, config.PhaseConfig{Name: "never", Users: 1})
	e, err := NewEngine(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-arrived
		<-arrived
		cancel()
	}()
	result, err := e.Run(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)
	assert.False(t, result.Passed)
	require.Len(t, result.Phases, 1)
	assert.EqualValues(t, 0, result.Phases[0].Completed)
	assert.EqualValues(t, 2, result.Phases[0].Total.Requests)
}

func TestEngine_Stop(t *testing.T) {
	var hits atomic.Int64
	srv := okServer(t, &hits)
	cfg := singleRequest(srv.URL, config.PhaseConfig{
		Name: "forever", Kind: config.KindAlways, Users: 1, Duration: config.Duration(time.Hour),
	})
	e, err := NewEngine(cfg)
	require.NoError(t, err)

	done := make(chan *Result, 1)
	go func() {
		result, _ := e.Run(context.Background())
		done <- result
	}()
	require.Eventually(t, func() bool { return hits.Load() > 0 }, 5*time.Second, time.Millisecond)
	e.Stop()

	select {
	case result := <-done:
		require.NotNil(t, result)
		require.Len(t, result.Phases, 1)
		assert.Greater(t, result.Phases[0].Total.Requests, int64(0))
	case <-time.After(10 * time.Second):
		t.Fatal("engine did not stop")
	}
	assert.False(t, e.IsRunning())
}

func TestEngine_InvalidConfig(t *testing.T) {
	_, err := NewEngine(&config.BenchmarkConfig{Name: "empty"})
	require.Error(t, err)
	var verrs *config.ValidationErrors
	assert.ErrorAs(t, err, &verrs)
}

func TestEngine_AlreadyRunning(t *testing.T) {
	block := make(chan struct{})
	arrived := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		arrived <- struct{}{}
		<-block
	}))
	defer srv.Close()

	e, err := NewEngine(singleRequest(srv.URL, config.PhaseConfig{Name: "p"}))
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() {
		_, err := e.Run(context.Background())
		done <- err
	}()
	<-arrived

	_, err = e.Run(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	close(block)
	assert.NoError(t, <-done)
}
