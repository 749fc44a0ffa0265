package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/volley/internal/performance/config"
	"github.com/wesleyorama2/volley/internal/performance/session"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := root.Execute()
	return out.String(), err
}

func countingServer(t *testing.T) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"token":"abc"}`))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func benchmarkYAML(baseURL, path string) string {
	return `name: cli-test
threads: 2
http:
  - baseUrl: ` + baseURL + `
    connections: 2
phases:
  - name: warmup
    users: 2
  - name: loop
    kind: loop
    users: 2
    maxIterations: 3
scenario:
  objectVars: [token]
  sequences:
    - name: main
      steps:
        - httpRequest:
            path: ` + path + `
            extract: [{var: token, json: "$.token"}]
        - awaitAllResponses: true
`
}

func TestBuildConfigFromURL(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		kind     string
		duration string
		wantErr  bool
		wantBase string
		wantPath string
	}{
		{"path and query", "http://localhost:8080/health?x=1", config.KindOnce, "", false, "http://localhost:8080", "/health?x=1"},
		{"no path", "https://example.com", config.KindOnce, "", false, "https://example.com", "/"},
		{"duration", "http://localhost/a", config.KindAlways, "30s", false, "http://localhost", "/a"},
		{"missing scheme", "localhost/a", config.KindOnce, "", true, "", ""},
		{"bad duration", "http://localhost/a", config.KindAlways, "30x", true, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := buildConfigFromURL(tt.url, "get", tt.kind, 3, tt.duration, 0, 0)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := cfg.HTTP[0].BaseURL; got != tt.wantBase {
				t.Errorf("base URL = %q, want %q", got, tt.wantBase)
			}
			if got := cfg.Scenario.Sequences[0].Steps[0].HTTPRequest.Path; got != tt.wantPath {
				t.Errorf("path = %q, want %q", got, tt.wantPath)
			}
			if cfg.HTTP[0].Connections != 3 {
				t.Errorf("connections = %d, want one per user", cfg.HTTP[0].Connections)
			}
			config.ApplyDefaults(cfg)
			if err := cfg.Validate(); err != nil {
				t.Errorf("built config is invalid: %v", err)
			}
		})
	}
}

func TestRun_URL(t *testing.T) {
	srv, hits := countingServer(t)

	out, err := execute(t, "run", "--url", srv.URL+"/health", "--users", "3", "--no-color")
	require.NoError(t, err)
	assert.EqualValues(t, 3, hits.Load())
	assert.Contains(t, out, "Completed ✓")
	assert.Contains(t, out, "Phase main (once, 3 users")
	assert.Contains(t, out, "Requests:    3")
}

func TestRun_ConfigJSON(t *testing.T) {
	srv, hits := countingServer(t)
	path := writeConfig(t, "bench.yaml", benchmarkYAML(srv.URL, "/login"))

	out, err := execute(t, "run", "-c", path, "--json")
	require.NoError(t, err)
	assert.EqualValues(t, 8, hits.Load())

	var result struct {
		Name   string `json:"name"`
		Passed bool   `json:"passed"`
		Phases []struct {
			Name  string `json:"name"`
			Total struct {
				Requests  int64 `json:"requests"`
				Status2xx int64 `json:"status2xx"`
			} `json:"total"`
		} `json:"phases"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, "cli-test", result.Name)
	assert.True(t, result.Passed)
	require.Len(t, result.Phases, 2)
	assert.EqualValues(t, 2, result.Phases[0].Total.Requests)
	assert.EqualValues(t, 6, result.Phases[1].Total.Status2xx)
}

func TestRun_OutputFile(t *testing.T) {
	srv, _ := countingServer(t)
	target := filepath.Join(t.TempDir(), "report.txt")

	out, err := execute(t, "run", "--url", srv.URL, "-o", target)
	require.NoError(t, err)
	assert.Empty(t, out)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Completed")
	assert.NotContains(t, string(data), "\x1b[")
}

func TestRun_SessionFailure(t *testing.T) {
	srv, _ := countingServer(t)
	// token is declared but never set before it is used in the path
	path := writeConfig(t, "bench.yaml", strings.Replace(benchmarkYAML(srv.URL, "/items/{{token}}"), "  - name: loop\n    kind: loop\n    users: 2\n    maxIterations: 3\n", "", 1))

	out, err := execute(t, "run", "-c", path, "--no-color")
	require.Error(t, err)
	assert.ErrorIs(t, err, session.ErrUnsetVar)
	assert.Contains(t, out, "Failed ✗")
}

func TestRun_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no input", []string{"run"}, "either --config or --url"},
		{"both inputs", []string{"run", "-c", "x.yaml", "--url", "http://localhost"}, "mutually exclusive"},
		{"missing file", []string{"run", "-c", filepath.Join(os.TempDir(), "volley-missing.yaml")}, "failed to read config file"},
		{"invalid kind", []string{"run", "--url", "http://localhost", "--kind", "forever"}, "unknown kind"},
		{"bad log level", []string{"--log-level", "loud", "run"}, "unknown log level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRun_Interrupted(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--log-level", "error", "run", "--url", srv.URL, "--no-color"})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := root.ExecuteContext(ctx)
	require.Error(t, err)
	assert.Contains(t, out.String(), "Failed")
}

func TestValidateCmd(t *testing.T) {
	valid := writeConfig(t, "ok.yaml", benchmarkYAML("http://localhost:8080", "/login"))
	out, err := execute(t, "validate", valid, "--no-color")
	require.NoError(t, err)
	assert.Contains(t, out, "2 phases, 1 sequences")

	invalid := writeConfig(t, "bad.yaml", benchmarkYAML("ftp://localhost", "login"))
	_, err = execute(t, "validate", invalid)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scheme must be http or https")
	assert.Contains(t, err.Error(), "must start with /")

	_, err = execute(t, "validate")
	assert.Error(t, err)
}

func TestRootHelp(t *testing.T) {
	out, err := execute(t)
	require.NoError(t, err)
	assert.Contains(t, out, "run")
	assert.Contains(t, out, "validate")
}
