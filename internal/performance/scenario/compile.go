package scenario

import (
	"fmt"
	"time"

	"github.com/wesleyorama2/volley/internal/performance/config"
	"github.com/wesleyorama2/volley/internal/performance/session"
)

// Compile builds a scenario from its configuration. Requests that name no
// base URL go to defaultBaseURL. The configuration should be validated first.
func Compile(cfg *config.ScenarioConfig, defaultBaseURL string) (*Scenario, error) {
	defs := make([]Definition, 0, len(cfg.Sequences))
	for _, seq := range cfg.Sequences {
		def := Definition{Name: seq.Name, Initial: seq.Initial}
		for i := range seq.Steps {
			step, err := compileStep(&seq.Steps[i], defaultBaseURL, fmt.Sprintf("%s.steps[%d]", seq.Name, i))
			if err != nil {
				return nil, fmt.Errorf("sequence %s, step %d: %w", seq.Name, i, err)
			}
			def.Steps = append(def.Steps, step)
		}
		defs = append(defs, def)
	}
	return New(defs, Options{
		ObjectVars:   cfg.ObjectVars,
		IntVars:      cfg.IntVars,
		MaxRequests:  cfg.MaxRequests,
		MaxSequences: cfg.MaxSequences,
	})
}

func compileStep(step *config.StepConfig, defaultBaseURL, key string) (session.Step, error) {
	switch {
	case step.HTTPRequest != nil:
		return compileHTTPRequest(step.HTTPRequest, defaultBaseURL)
	case step.AwaitAllResponses:
		return AwaitAllResponses{}, nil
	case step.SetInt != nil:
		return SetInt{Var: step.SetInt.Var, Value: step.SetInt.Value}, nil
	case step.AddToInt != nil:
		return AddToInt{Var: step.AddToInt.Var, Delta: step.AddToInt.Delta}, nil
	case step.AwaitVar != "":
		return AwaitVar{Var: step.AwaitVar}, nil
	case step.Unset != "":
		return Unset{Var: step.Unset}, nil
	case step.ThinkTime > 0:
		return NewThinkTime(key+".thinkTime", time.Duration(step.ThinkTime)), nil
	case step.NextSequence != "":
		return NextSequence{Name: step.NextSequence}, nil
	default:
		return nil, fmt.Errorf("%w: step has no kind", ErrInvalidScenario)
	}
}

func compileHTTPRequest(req *config.HTTPRequestConfig, defaultBaseURL string) (*HTTPRequest, error) {
	baseURL := req.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	opts := HTTPRequestOptions{
		Method:  req.Method,
		BaseURL: baseURL,
		Path:    req.Path,
		Headers: req.Headers,
		Body:    req.Body,
		Timeout: time.Duration(req.Timeout),
		Schema:  req.Schema,
	}
	for _, ex := range req.Extract {
		opts.Extract = append(opts.Extract, Extract{Var: ex.Var, JSON: ex.JSON})
	}
	return NewHTTPRequest(opts)
}
