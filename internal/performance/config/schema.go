// Package config provides the benchmark configuration schema and parsing.
//
// A benchmark file declares the HTTP endpoints the run talks to, the phases
// that drive sessions and the scenario each session executes. Files may be
// written in YAML or JSON.
package config

import (
	"time"
)

// Phase kinds.
const (
	// KindOnce runs every user through the scenario exactly once.
	KindOnce = "once"

	// KindAlways restarts every user as soon as it finishes, until the duration elapses.
	KindAlways = "always"

	// KindLoop repeats the scenario inside each session until maxIterations or the duration.
	KindLoop = "loop"
)

// BenchmarkConfig is the root of a benchmark file.
type BenchmarkConfig struct {
	// Name identifies the benchmark in reports
	Name string `json:"name" yaml:"name"`

	// Threads is the number of event loops sessions are spread over
	Threads int `json:"threads,omitempty" yaml:"threads,omitempty"`

	// HTTP lists the endpoints; the first one is the default base URL
	HTTP []HTTPConfig `json:"http" yaml:"http"`

	// Phases run one after the other
	Phases []PhaseConfig `json:"phases" yaml:"phases"`

	// Scenario is executed by every session of every phase
	Scenario ScenarioConfig `json:"scenario" yaml:"scenario"`
}

// HTTPConfig configures the connection pool for one base URL.
type HTTPConfig struct {
	// BaseURL is scheme://host[:port]
	BaseURL string `json:"baseUrl" yaml:"baseUrl"`

	// Connections is the pool size shared by all sessions
	Connections int `json:"connections,omitempty" yaml:"connections,omitempty"`

	// Timeout is the default request timeout
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// PhaseConfig configures one phase.
type PhaseConfig struct {
	// Name is unique within the benchmark
	Name string `json:"name" yaml:"name"`

	// Kind is one of once, always or loop
	Kind string `json:"kind,omitempty" yaml:"kind,omitempty"`

	// Users is the number of sessions
	Users int `json:"users,omitempty" yaml:"users,omitempty"`

	// Duration bounds always and loop phases
	Duration Duration `json:"duration,omitempty" yaml:"duration,omitempty"`

	// MaxIterations bounds the scenario runs per session in loop phases
	MaxIterations int64 `json:"maxIterations,omitempty" yaml:"maxIterations,omitempty"`
}

// ScenarioConfig describes the per-session script.
type ScenarioConfig struct {
	// MaxRequests is the number of in-flight requests a session may have
	MaxRequests int `json:"maxRequests,omitempty" yaml:"maxRequests,omitempty"`

	// MaxSequences bounds concurrently running sequences; 0 derives it
	MaxSequences int `json:"maxSequences,omitempty" yaml:"maxSequences,omitempty"`

	// ObjectVars and IntVars declare session variables
	ObjectVars []string `json:"objectVars,omitempty" yaml:"objectVars,omitempty"`
	IntVars    []string `json:"intVars,omitempty" yaml:"intVars,omitempty"`

	// Sequences in declaration order; the order defines sequence IDs
	Sequences []SequenceConfig `json:"sequences" yaml:"sequences"`
}

// SequenceConfig describes one sequence.
type SequenceConfig struct {
	Name string `json:"name" yaml:"name"`

	// Initial sequences are instantiated when a session starts
	Initial bool `json:"initial,omitempty" yaml:"initial,omitempty"`

	Steps []StepConfig `json:"steps" yaml:"steps"`
}

// StepConfig holds exactly one step definition.
type StepConfig struct {
	HTTPRequest       *HTTPRequestConfig `json:"httpRequest,omitempty" yaml:"httpRequest,omitempty"`
	AwaitAllResponses bool               `json:"awaitAllResponses,omitempty" yaml:"awaitAllResponses,omitempty"`
	SetInt            *SetIntConfig      `json:"setInt,omitempty" yaml:"setInt,omitempty"`
	AddToInt          *AddToIntConfig    `json:"addToInt,omitempty" yaml:"addToInt,omitempty"`
	AwaitVar          string             `json:"awaitVar,omitempty" yaml:"awaitVar,omitempty"`
	Unset             string             `json:"unset,omitempty" yaml:"unset,omitempty"`
	ThinkTime         Duration           `json:"thinkTime,omitempty" yaml:"thinkTime,omitempty"`
	NextSequence      string             `json:"nextSequence,omitempty" yaml:"nextSequence,omitempty"`
}

// Kinds returns the names of the step kinds that are set.
func (s *StepConfig) Kinds() []string {
	var kinds []string
	if s.HTTPRequest != nil {
		kinds = append(kinds, "httpRequest")
	}
	if s.AwaitAllResponses {
		kinds = append(kinds, "awaitAllResponses")
	}
	if s.SetInt != nil {
		kinds = append(kinds, "setInt")
	}
	if s.AddToInt != nil {
		kinds = append(kinds, "addToInt")
	}
	if s.AwaitVar != "" {
		kinds = append(kinds, "awaitVar")
	}
	if s.Unset != "" {
		kinds = append(kinds, "unset")
	}
	if s.ThinkTime != 0 {
		kinds = append(kinds, "thinkTime")
	}
	if s.NextSequence != "" {
		kinds = append(kinds, "nextSequence")
	}
	return kinds
}

// HTTPRequestConfig describes an HTTP request step.
type HTTPRequestConfig struct {
	// Method defaults to GET
	Method string `json:"method,omitempty" yaml:"method,omitempty"`

	// BaseURL selects the endpoint; empty means the first http entry
	BaseURL string `json:"baseUrl,omitempty" yaml:"baseUrl,omitempty"`

	// Path may reference session variables as {{name}}
	Path string `json:"path" yaml:"path"`

	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Body    string            `json:"body,omitempty" yaml:"body,omitempty"`

	// Timeout overrides the endpoint timeout
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// Extract copies values from a JSON response body into object variables
	Extract []ExtractConfig `json:"extract,omitempty" yaml:"extract,omitempty"`

	// Schema is a JSON schema the response body is validated against
	Schema string `json:"schema,omitempty" yaml:"schema,omitempty"`
}

// ExtractConfig maps a JSONPath expression to an object variable.
type ExtractConfig struct {
	Var  string `json:"var" yaml:"var"`
	JSON string `json:"json" yaml:"json"`
}

// SetIntConfig assigns an integer variable.
type SetIntConfig struct {
	Var   string `json:"var" yaml:"var"`
	Value int    `json:"value" yaml:"value"`
}

// AddToIntConfig adds to an integer variable.
type AddToIntConfig struct {
	Var   string `json:"var" yaml:"var"`
	Delta int    `json:"delta" yaml:"delta"`
}

// Duration is a time.Duration that can be unmarshaled from JSON/YAML strings.
type Duration time.Duration

// GetDuration returns the duration or a default if empty.
func (d Duration) GetDuration(defaultValue time.Duration) time.Duration {
	if d == 0 {
		return defaultValue
	}
	return time.Duration(d)
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if s == "null" {
		s = ""
	}
	dur, err := ParseDurationString(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	dur, err := ParseDurationString(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// String returns the duration as a string.
func (d Duration) String() string {
	return time.Duration(d).String()
}
