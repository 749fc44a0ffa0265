package metrics

import "time"

// Snapshot is a point-in-time copy of one sequence's statistics.
type Snapshot struct {
	Name               string       `json:"name"`
	Requests           int64        `json:"requests"`
	Responses          int64        `json:"responses"`
	Status2xx          int64        `json:"status2xx"`
	Status3xx          int64        `json:"status3xx"`
	Status4xx          int64        `json:"status4xx"`
	Status5xx          int64        `json:"status5xx"`
	StatusOther        int64        `json:"statusOther"`
	Resets             int64        `json:"resets"`
	Timeouts           int64        `json:"timeouts"`
	ValidationFailures int64        `json:"validationFailures"`
	BytesReceived      int64        `json:"bytesReceived"`
	Latency            LatencyStats `json:"latency"`
	Start              time.Time    `json:"start"`
	End                time.Time    `json:"end"`
}

// Errors returns the number of requests that did not produce a usable response.
func (s Snapshot) Errors() int64 {
	return s.Resets + s.Timeouts
}

// Throughput returns responses per second over the recorded interval.
func (s Snapshot) Throughput() float64 {
	if s.Start.IsZero() || !s.End.After(s.Start) {
		return 0
	}
	return float64(s.Responses) / s.End.Sub(s.Start).Seconds()
}

// LatencyStats contains latency statistics.
type LatencyStats struct {
	Min    time.Duration `json:"min"`
	Max    time.Duration `json:"max"`
	Mean   time.Duration `json:"mean"`
	StdDev time.Duration `json:"stdDev"`
	P50    time.Duration `json:"p50"`
	P90    time.Duration `json:"p90"`
	P95    time.Duration `json:"p95"`
	P99    time.Duration `json:"p99"`
	Count  int64         `json:"count"`
}
