package cli

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wesleyorama2/volley/internal/logging"
	"github.com/wesleyorama2/volley/internal/output"
	"github.com/wesleyorama2/volley/internal/performance/config"
	"github.com/wesleyorama2/volley/internal/performance/engine"
)

// ErrBenchmarkFailed is returned when a benchmark finished but did not pass.
var ErrBenchmarkFailed = errors.New("benchmark failed")

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a benchmark",
		Long: `Run a benchmark described by a configuration file, or a single request
scenario built from flags.

Config file mode:
  volley run --config benchmark.yaml

Quick mode (one sequence, one request):
  volley run --url http://localhost:8080/health \
    --kind always --users 10 --duration 30s`,
		Args: cobra.NoArgs,
		RunE: runBenchmark,
	}

	cmd.Flags().StringP("config", "c", "", "Benchmark configuration file (YAML or JSON)")
	cmd.Flags().String("url", "", "URL to request (alternative to --config)")
	cmd.Flags().String("method", config.DefaultMethod, "HTTP method for --url")
	cmd.Flags().String("kind", config.KindOnce, "Phase kind for --url: once, always or loop")
	cmd.Flags().Int("users", 1, "Number of sessions for --url")
	cmd.Flags().String("duration", "", "Phase duration for --url (e.g. 30s, 5m)")
	cmd.Flags().Int64("iterations", 0, "Scenario runs per session for --url with --kind loop")
	cmd.Flags().Int("connections", 0, "Connections per endpoint for --url")
	cmd.Flags().Int("threads", 0, "Event loops (default: number of CPUs)")

	cmd.Flags().Bool("json", false, "Output results as JSON")
	cmd.Flags().StringP("output", "o", "", "Write results to this file instead of stdout")
	return cmd
}

func runBenchmark(cmd *cobra.Command, args []string) error {
	cfg, err := benchmarkConfig(cmd)
	if err != nil {
		return err
	}
	if threads, _ := cmd.Flags().GetInt("threads"); threads > 0 {
		cfg.Threads = threads
	}

	eng, err := engine.NewEngine(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logging.Named("cli").Info("running benchmark", zap.String("name", cfg.Name))
	result, runErr := eng.Run(ctx)
	if result == nil {
		return runErr
	}

	if err := writeResult(cmd, result); err != nil {
		return err
	}
	if runErr != nil {
		return runErr
	}
	if !result.Passed {
		return ErrBenchmarkFailed
	}
	return nil
}

func benchmarkConfig(cmd *cobra.Command) (*config.BenchmarkConfig, error) {
	configFile, _ := cmd.Flags().GetString("config")
	target, _ := cmd.Flags().GetString("url")

	switch {
	case configFile != "" && target != "":
		return nil, errors.New("--config and --url are mutually exclusive")
	case configFile != "":
		return config.LoadConfig(configFile)
	case target != "":
		method, _ := cmd.Flags().GetString("method")
		kind, _ := cmd.Flags().GetString("kind")
		users, _ := cmd.Flags().GetInt("users")
		duration, _ := cmd.Flags().GetString("duration")
		iterations, _ := cmd.Flags().GetInt64("iterations")
		connections, _ := cmd.Flags().GetInt("connections")
		return buildConfigFromURL(target, method, kind, users, duration, iterations, connections)
	default:
		return nil, errors.New("either --config or --url is required")
	}
}

// buildConfigFromURL creates a single phase benchmark that requests target.
func buildConfigFromURL(target, method, kind string, users int, duration string,
	iterations int64, connections int) (*config.BenchmarkConfig, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid URL %q: scheme and host are required", target)
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}

	var d config.Duration
	if duration != "" {
		parsed, err := config.ParseDurationString(duration)
		if err != nil {
			return nil, err
		}
		d = config.Duration(parsed)
	}

	if connections == 0 {
		connections = users
	}

	return &config.BenchmarkConfig{
		Name: fmt.Sprintf("%s %s", strings.ToUpper(method), target),
		HTTP: []config.HTTPConfig{{
			BaseURL:     u.Scheme + "://" + u.Host,
			Connections: connections,
		}},
		Phases: []config.PhaseConfig{{
			Name:          "main",
			Kind:          kind,
			Users:         users,
			Duration:      d,
			MaxIterations: iterations,
		}},
		Scenario: config.ScenarioConfig{
			Sequences: []config.SequenceConfig{{
				Name:    "request",
				Initial: true,
				Steps: []config.StepConfig{
					{HTTPRequest: &config.HTTPRequestConfig{Method: method, Path: path}},
					{AwaitAllResponses: true},
				},
			}},
		},
	}, nil
}

func writeResult(cmd *cobra.Command, result *engine.Result) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	outputPath, _ := cmd.Flags().GetString("output")
	noColor, _ := cmd.Flags().GetBool("no-color")

	var w io.Writer = cmd.OutOrStdout()
	if outputPath != "" {
		f, err := os.Create(outputPath)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
		noColor = true
	}

	if jsonOutput {
		return output.WriteJSON(w, result)
	}
	output.NewSummary(output.SummaryConfig{Writer: w, NoColor: noColor}).Print(result)
	return nil
}
