package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors struct {
	Errors []*ValidationError
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e.Errors)))
	for i, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Add adds an error to the collection.
func (e *ValidationErrors) Add(field, message string) {
	e.Errors = append(e.Errors, &ValidationError{Field: field, Message: message})
}

// HasErrors returns true if there are any errors.
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

// TemplatePattern matches {{name}} variable references in request paths.
var TemplatePattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.-]+)\s*\}\}`)

// Validate validates the entire benchmark configuration. Defaults should be
// applied first.
//
// Returns nil if valid, or a ValidationErrors containing all validation errors.
func (c *BenchmarkConfig) Validate() error {
	errs := &ValidationErrors{}

	if c.Threads < 0 {
		errs.Add("threads", "must not be negative")
	}

	baseURLs := make(map[string]bool)
	if len(c.HTTP) == 0 {
		errs.Add("http", "at least one endpoint is required")
	}
	for i := range c.HTTP {
		prefix := fmt.Sprintf("http[%d]", i)
		validateHTTP(prefix, &c.HTTP[i], errs)
		if baseURLs[c.HTTP[i].BaseURL] {
			errs.Add(prefix+".baseUrl", fmt.Sprintf("duplicate base URL %s", c.HTTP[i].BaseURL))
		}
		baseURLs[c.HTTP[i].BaseURL] = true
	}

	if len(c.Phases) == 0 {
		errs.Add("phases", "at least one phase is required")
	}
	phaseNames := make(map[string]bool)
	for i := range c.Phases {
		prefix := fmt.Sprintf("phases[%d]", i)
		validatePhase(prefix, &c.Phases[i], errs)
		if phaseNames[c.Phases[i].Name] {
			errs.Add(prefix+".name", fmt.Sprintf("duplicate phase name %s", c.Phases[i].Name))
		}
		phaseNames[c.Phases[i].Name] = true
	}

	validateScenario(&c.Scenario, baseURLs, errs)

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func validateHTTP(prefix string, h *HTTPConfig, errs *ValidationErrors) {
	if h.BaseURL == "" {
		errs.Add(prefix+".baseUrl", "base URL is required")
	} else if u, err := url.Parse(h.BaseURL); err != nil {
		errs.Add(prefix+".baseUrl", fmt.Sprintf("invalid URL: %v", err))
	} else if u.Scheme != "http" && u.Scheme != "https" {
		errs.Add(prefix+".baseUrl", "scheme must be http or https")
	} else if u.Host == "" {
		errs.Add(prefix+".baseUrl", "host is required")
	}
	if h.Connections < 0 {
		errs.Add(prefix+".connections", "must not be negative")
	}
	if h.Timeout < 0 {
		errs.Add(prefix+".timeout", "must not be negative")
	}
}

func validatePhase(prefix string, p *PhaseConfig, errs *ValidationErrors) {
	if p.Name == "" {
		errs.Add(prefix+".name", "name is required")
	}
	if p.Users < 1 {
		errs.Add(prefix+".users", "at least one user is required")
	}
	if p.Duration < 0 {
		errs.Add(prefix+".duration", "must not be negative")
	}
	if p.MaxIterations < 0 {
		errs.Add(prefix+".maxIterations", "must not be negative")
	}

	switch p.Kind {
	case KindOnce:
	case KindAlways:
		if p.Duration == 0 {
			errs.Add(prefix+".duration", "always phases require a duration")
		}
	case KindLoop:
		if p.Duration == 0 && p.MaxIterations == 0 {
			errs.Add(prefix, "loop phases require a duration or maxIterations")
		}
	default:
		errs.Add(prefix+".kind", fmt.Sprintf("unknown kind %q (valid: once, always, loop)", p.Kind))
	}
}

func validateScenario(sc *ScenarioConfig, baseURLs map[string]bool, errs *ValidationErrors) {
	if sc.MaxRequests < 1 {
		errs.Add("scenario.maxRequests", "must be at least 1")
	}
	if sc.MaxSequences < 0 {
		errs.Add("scenario.maxSequences", "must not be negative")
	}

	objectVars := make(map[string]bool)
	intVars := make(map[string]bool)
	for _, v := range sc.ObjectVars {
		objectVars[v] = true
	}
	for _, v := range sc.IntVars {
		if objectVars[v] {
			errs.Add("scenario.intVars", fmt.Sprintf("variable %s is declared as both object and int", v))
		}
		intVars[v] = true
	}

	if len(sc.Sequences) == 0 {
		errs.Add("scenario.sequences", "at least one sequence is required")
		return
	}

	names := make(map[string]bool)
	hasInitial := false
	for _, seq := range sc.Sequences {
		if names[seq.Name] {
			errs.Add("scenario.sequences", fmt.Sprintf("duplicate sequence name %s", seq.Name))
		}
		names[seq.Name] = true
		hasInitial = hasInitial || seq.Initial
	}
	if !hasInitial {
		errs.Add("scenario.sequences", "at least one sequence must be initial")
	}

	v := &varChecker{objects: objectVars, ints: intVars, errs: errs}
	for i := range sc.Sequences {
		seq := &sc.Sequences[i]
		prefix := fmt.Sprintf("scenario.sequences[%d]", i)
		if seq.Name == "" {
			errs.Add(prefix+".name", "name is required")
		}
		for j := range seq.Steps {
			validateStep(fmt.Sprintf("%s.steps[%d]", prefix, j), &seq.Steps[j], names, baseURLs, v)
		}
	}
}

type varChecker struct {
	objects map[string]bool
	ints    map[string]bool
	errs    *ValidationErrors
}

func (v *varChecker) object(field, name string) {
	if !v.objects[name] {
		v.errs.Add(field, fmt.Sprintf("object variable %s is not declared", name))
	}
}

func (v *varChecker) int(field, name string) {
	if !v.ints[name] {
		v.errs.Add(field, fmt.Sprintf("int variable %s is not declared", name))
	}
}

func (v *varChecker) any(field, name string) {
	if !v.objects[name] && !v.ints[name] {
		v.errs.Add(field, fmt.Sprintf("variable %s is not declared", name))
	}
}

func validateStep(prefix string, step *StepConfig, sequences, baseURLs map[string]bool, v *varChecker) {
	kinds := step.Kinds()
	switch len(kinds) {
	case 0:
		v.errs.Add(prefix, "step has no kind")
		return
	case 1:
	default:
		v.errs.Add(prefix, fmt.Sprintf("step has several kinds: %s", strings.Join(kinds, ", ")))
		return
	}

	switch {
	case step.HTTPRequest != nil:
		validateHTTPRequest(prefix+".httpRequest", step.HTTPRequest, baseURLs, v)
	case step.SetInt != nil:
		v.int(prefix+".setInt.var", step.SetInt.Var)
	case step.AddToInt != nil:
		v.int(prefix+".addToInt.var", step.AddToInt.Var)
	case step.AwaitVar != "":
		v.any(prefix+".awaitVar", step.AwaitVar)
	case step.Unset != "":
		v.any(prefix+".unset", step.Unset)
	case step.ThinkTime < 0:
		v.errs.Add(prefix+".thinkTime", "must not be negative")
	case step.NextSequence != "":
		if !sequences[step.NextSequence] {
			v.errs.Add(prefix+".nextSequence", fmt.Sprintf("unknown sequence %s", step.NextSequence))
		}
	}
}

func validateHTTPRequest(prefix string, req *HTTPRequestConfig, baseURLs map[string]bool, v *varChecker) {
	if req.BaseURL != "" && !baseURLs[req.BaseURL] {
		v.errs.Add(prefix+".baseUrl", fmt.Sprintf("base URL %s is not listed under http", req.BaseURL))
	}
	if !strings.HasPrefix(req.Path, "/") {
		v.errs.Add(prefix+".path", "path must start with /")
	}
	for _, m := range TemplatePattern.FindAllStringSubmatch(req.Path, -1) {
		v.any(prefix+".path", m[1])
	}
	if req.Timeout < 0 {
		v.errs.Add(prefix+".timeout", "must not be negative")
	}
	for i, ex := range req.Extract {
		field := fmt.Sprintf("%s.extract[%d]", prefix, i)
		if ex.JSON == "" {
			v.errs.Add(field+".json", "JSONPath expression is required")
		}
		v.object(field+".var", ex.Var)
	}
}
