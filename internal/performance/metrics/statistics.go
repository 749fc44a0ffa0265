// Package metrics collects per-sequence request statistics using HDR histograms.
package metrics

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

const (
	// Histogram range: 1 microsecond to 1 hour, 3 significant figures
	histogramMin     = 1
	histogramMax     = 3600000000
	histogramSigFigs = 3
)

// Statistics aggregates request outcomes for one sequence.
//
// A Statistics value is normally written only from the event loop that owns
// it, but it is mutex protected so that reports can snapshot it while the
// benchmark is still running.
type Statistics struct {
	mu sync.Mutex

	name string
	hist *hdrhistogram.Histogram

	requests           int64
	responses          int64
	status2xx          int64
	status3xx          int64
	status4xx          int64
	status5xx          int64
	statusOther        int64
	resets             int64
	timeouts           int64
	validationFailures int64
	bytesReceived      int64

	start time.Time
	end   time.Time
}

// NewStatistics creates empty statistics for the named sequence.
func NewStatistics(name string) *Statistics {
	return &Statistics{
		name: name,
		hist: hdrhistogram.New(histogramMin, histogramMax, histogramSigFigs),
	}
}

// NewArray creates one Statistics per sequence name, indexed like names.
func NewArray(names []string) []*Statistics {
	stats := make([]*Statistics, len(names))
	for i, name := range names {
		stats[i] = NewStatistics(name)
	}
	return stats
}

// Name returns the sequence name these statistics belong to.
func (s *Statistics) Name() string {
	return s.name
}

// RecordRequest counts a request as sent.
func (s *Statistics) RecordRequest(now time.Time) {
	s.mu.Lock()
	s.requests++
	if s.start.IsZero() || now.Before(s.start) {
		s.start = now
	}
	s.mu.Unlock()
}

// RecordResponse records a completed response with its status and latency.
func (s *Statistics) RecordResponse(status int, latency time.Duration, bytes int64, now time.Time) {
	micros := clamp(latency.Microseconds())

	s.mu.Lock()
	defer s.mu.Unlock()

	// RecordValue only fails for out-of-range values, which clamp rules out
	_ = s.hist.RecordValue(micros)
	s.responses++
	s.bytesReceived += bytes
	switch {
	case status >= 200 && status < 300:
		s.status2xx++
	case status >= 300 && status < 400:
		s.status3xx++
	case status >= 400 && status < 500:
		s.status4xx++
	case status >= 500 && status < 600:
		s.status5xx++
	default:
		s.statusOther++
	}
	if now.After(s.end) {
		s.end = now
	}
}

// RecordReset counts a request that ended with a connection error.
func (s *Statistics) RecordReset() {
	s.mu.Lock()
	s.resets++
	s.mu.Unlock()
}

// RecordTimeout counts a request that timed out.
func (s *Statistics) RecordTimeout() {
	s.mu.Lock()
	s.timeouts++
	s.mu.Unlock()
}

// RecordValidation counts a failed response validation. Passing validations are not counted.
func (s *Statistics) RecordValidation(ok bool) {
	if ok {
		return
	}
	s.mu.Lock()
	s.validationFailures++
	s.mu.Unlock()
}

// Reset clears all recorded values.
func (s *Statistics) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.hist.Reset()
	s.requests, s.responses = 0, 0
	s.status2xx, s.status3xx, s.status4xx, s.status5xx, s.statusOther = 0, 0, 0, 0, 0
	s.resets, s.timeouts, s.validationFailures, s.bytesReceived = 0, 0, 0, 0
	s.start, s.end = time.Time{}, time.Time{}
}

// Snapshot returns a point-in-time copy of the statistics.
func (s *Statistics) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(s.hist)
}

func (s *Statistics) snapshotLocked(hist *hdrhistogram.Histogram) Snapshot {
	return Snapshot{
		Name:               s.name,
		Requests:           s.requests,
		Responses:          s.responses,
		Status2xx:          s.status2xx,
		Status3xx:          s.status3xx,
		Status4xx:          s.status4xx,
		Status5xx:          s.status5xx,
		StatusOther:        s.statusOther,
		Resets:             s.resets,
		Timeouts:           s.timeouts,
		ValidationFailures: s.validationFailures,
		BytesReceived:      s.bytesReceived,
		Latency:            latencyStats(hist),
		Start:              s.start,
		End:                s.end,
	}
}

// Merge combines statistics recorded on several event loops into one snapshot.
//
// All inputs are expected to describe the same sequence; the name of the first
// one is used.
func Merge(stats ...*Statistics) Snapshot {
	if len(stats) == 0 {
		return Snapshot{}
	}

	total := &Statistics{
		name: stats[0].name,
		hist: hdrhistogram.New(histogramMin, histogramMax, histogramSigFigs),
	}
	for _, s := range stats {
		s.mu.Lock()
		total.hist.Merge(s.hist)
		total.requests += s.requests
		total.responses += s.responses
		total.status2xx += s.status2xx
		total.status3xx += s.status3xx
		total.status4xx += s.status4xx
		total.status5xx += s.status5xx
		total.statusOther += s.statusOther
		total.resets += s.resets
		total.timeouts += s.timeouts
		total.validationFailures += s.validationFailures
		total.bytesReceived += s.bytesReceived
		if !s.start.IsZero() && (total.start.IsZero() || s.start.Before(total.start)) {
			total.start = s.start
		}
		if s.end.After(total.end) {
			total.end = s.end
		}
		s.mu.Unlock()
	}
	return total.snapshotLocked(total.hist)
}

func clamp(micros int64) int64 {
	if micros < histogramMin {
		return histogramMin
	}
	if micros > histogramMax {
		return histogramMax
	}
	return micros
}

func latencyStats(hist *hdrhistogram.Histogram) LatencyStats {
	return LatencyStats{
		Min:    time.Duration(hist.Min()) * time.Microsecond,
		Max:    time.Duration(hist.Max()) * time.Microsecond,
		Mean:   time.Duration(hist.Mean()) * time.Microsecond,
		StdDev: time.Duration(hist.StdDev()) * time.Microsecond,
		P50:    time.Duration(hist.ValueAtQuantile(50)) * time.Microsecond,
		P90:    time.Duration(hist.ValueAtQuantile(90)) * time.Microsecond,
		P95:    time.Duration(hist.ValueAtQuantile(95)) * time.Microsecond,
		P99:    time.Duration(hist.ValueAtQuantile(99)) * time.Microsecond,
		Count:  hist.TotalCount(),
	}
}
