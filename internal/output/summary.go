// Package output renders benchmark results for the console or as JSON.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/wesleyorama2/volley/internal/performance/engine"
	"github.com/wesleyorama2/volley/internal/performance/metrics"
)

const ruleWidth = 56

// SummaryConfig configures a Summary.
type SummaryConfig struct {
	Writer      io.Writer
	NoColor     bool
	ForceColors bool
}

// Summary prints the final report of a benchmark.
type Summary struct {
	writer  io.Writer
	scheme  *ColorScheme
	noColor bool
}

// NewSummary creates a summary printer. Colors are used when the writer is a
// terminal that supports them, unless NoColor is set.
func NewSummary(cfg SummaryConfig) *Summary {
	if cfg.Writer == nil {
		cfg.Writer = os.Stdout
	}
	useColors := !cfg.NoColor && (cfg.ForceColors || (IsTerminal(cfg.Writer) && supportsColors()))

	scheme := NoColorScheme()
	if useColors {
		scheme = ForcedColorScheme()
	}
	return &Summary{
		writer:  cfg.Writer,
		scheme:  scheme,
		noColor: !useColors,
	}
}

// Print writes the report for result.
func (s *Summary) Print(result *engine.Result) {
	rule := strings.Repeat("━", ruleWidth)
	status := "Completed " + SuccessIcon(s.noColor)
	statusColor := s.scheme.Success
	if !result.Passed {
		status = "Failed " + ErrorIcon(s.noColor)
		statusColor = s.scheme.Error
	}

	s.writeln("")
	s.writeln(s.scheme.Rule.Sprint(rule))
	s.writeln(fmt.Sprintf("%s - %s", s.scheme.Title.Sprint(result.Name), statusColor.Sprint(status)))
	s.writeln(s.scheme.Rule.Sprint(rule))
	s.writeln(fmt.Sprintf("Run:           %s", result.RunID))
	s.writeln(fmt.Sprintf("Duration:      %s", s.scheme.Value.Sprint(formatDuration(result.Duration))))
	s.writeln("")

	for _, p := range result.Phases {
		s.printPhase(p)
	}
}

func (s *Summary) printPhase(p *engine.PhaseResult) {
	s.writeln(fmt.Sprintf("%s %s (%s, %d users, %s)",
		s.scheme.Label.Sprint("Phase"),
		s.scheme.Phase.Sprint(p.Name),
		p.Kind, p.Users, formatDuration(p.Duration)))
	if p.Error != "" {
		s.writeln(fmt.Sprintf("  %s %s", ErrorIcon(s.noColor), s.scheme.Error.Sprint(p.Error)))
	}
	s.writeln(fmt.Sprintf("  Completed:   %s", s.scheme.Value.Sprint(formatNumber(p.Completed))))
	if p.Failures > 0 {
		s.writeln(fmt.Sprintf("  Failures:    %s", s.scheme.StatusError.Sprint(formatNumber(p.Failures))))
	}
	s.printSnapshot("  ", &p.Total)

	if len(p.Sequences) > 1 {
		s.writeln(fmt.Sprintf("  %s", s.scheme.Label.Sprint("Sequences:")))
		for i := range p.Sequences {
			seq := &p.Sequences[i]
			s.writeln(fmt.Sprintf("    %-16s reqs %-8s 2xx %-8s errors %-6s p95 %s",
				seq.Name,
				formatNumber(seq.Requests),
				formatNumber(seq.Status2xx),
				formatNumber(seq.Errors()),
				formatDurationShort(seq.Latency.P95)))
		}
	}
	s.writeln("")
}

func (s *Summary) printSnapshot(indent string, snap *metrics.Snapshot) {
	s.writeln(fmt.Sprintf("%sRequests:    %s", indent, s.scheme.Value.Sprint(formatNumber(snap.Requests))))
	s.writeln(fmt.Sprintf("%sThroughput:  %s", indent, s.scheme.Value.Sprintf("%.1f/s", snap.Throughput())))

	var errRate float64
	if snap.Requests > 0 {
		errRate = float64(snap.Errors()) / float64(snap.Requests)
	}
	s.writeln(fmt.Sprintf("%sErrors:      %s (resets %d, timeouts %d)", indent,
		s.scheme.rateColor(errRate).Sprintf("%d (%.1f%%)", snap.Errors(), errRate*100),
		snap.Resets, snap.Timeouts))
	s.writeln(fmt.Sprintf("%sStatus:      2xx %s  3xx %s  4xx %s  5xx %s  other %s", indent,
		s.statusCount(snap.Status2xx, s.scheme.StatusOK),
		s.statusCount(snap.Status3xx, s.scheme.Value),
		s.statusCount(snap.Status4xx, s.scheme.StatusWarn),
		s.statusCount(snap.Status5xx, s.scheme.StatusError),
		s.statusCount(snap.StatusOther, s.scheme.StatusError)))
	if snap.ValidationFailures > 0 {
		s.writeln(fmt.Sprintf("%sInvalid:     %s", indent, s.scheme.StatusWarn.Sprint(formatNumber(snap.ValidationFailures))))
	}

	if snap.Latency.Count == 0 {
		return
	}
	s.writeln(fmt.Sprintf("%s%s", indent, s.scheme.Label.Sprint("Latency Distribution:")))
	rows := []struct {
		label string
		value time.Duration
	}{
		{"Min", snap.Latency.Min},
		{"P50", snap.Latency.P50},
		{"P90", snap.Latency.P90},
		{"P95", snap.Latency.P95},
		{"P99", snap.Latency.P99},
		{"Max", snap.Latency.Max},
	}
	for _, r := range rows {
		s.writeln(fmt.Sprintf("%s  %-10s %s", indent, r.label+":", s.scheme.Latency.Sprint(formatDurationShort(r.value))))
	}
}

func (s *Summary) statusCount(n int64, c *color.Color) string {
	if n == 0 {
		return "0"
	}
	return c.Sprint(formatNumber(n))
}

func (s *Summary) writeln(line string) {
	fmt.Fprintln(s.writer, line)
}

// WriteJSON writes result as indented JSON.
func WriteJSON(w io.Writer, result *engine.Result) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

// formatDuration formats a duration in a human-readable format.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %02ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh %02dm %02ds", h, m, s)
}

// formatDurationShort formats a latency.
func formatDurationShort(d time.Duration) string {
	switch {
	case d < time.Microsecond:
		return "0ms"
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
	return fmt.Sprintf("%.1fm", d.Minutes())
}

// formatNumber formats a number with thousands separators.
func formatNumber(n int64) string {
	if n < 0 {
		return "-" + formatNumber(-n)
	}
	str := fmt.Sprintf("%d", n)
	if len(str) <= 3 {
		return str
	}

	var result strings.Builder
	offset := len(str) % 3
	if offset > 0 {
		result.WriteString(str[:offset])
	}
	for i := offset; i < len(str); i += 3 {
		if result.Len() > 0 {
			result.WriteString(",")
		}
		result.WriteString(str[i : i+3])
	}
	return result.String()
}
