package scenario

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/wesleyorama2/volley/internal/performance/config"
	"github.com/wesleyorama2/volley/internal/performance/session"
)

// pathTemplate is a request path with {{var}} placeholders resolved per session.
type pathTemplate struct {
	literals []string
	vars     []string // vars[i] follows literals[i]
}

func parsePathTemplate(path string) *pathTemplate {
	t := &pathTemplate{}
	last := 0
	for _, m := range config.TemplatePattern.FindAllStringSubmatchIndex(path, -1) {
		t.literals = append(t.literals, path[last:m[0]])
		t.vars = append(t.vars, path[m[2]:m[3]])
		last = m[1]
	}
	t.literals = append(t.literals, path[last:])
	return t
}

func (t *pathTemplate) isConstant() bool {
	return len(t.vars) == 0
}

// render substitutes the session's variables, path-escaping their values.
func (t *pathTemplate) render(s *session.Session) (string, error) {
	if t.isConstant() {
		return t.literals[0], nil
	}
	var sb strings.Builder
	for i, lit := range t.literals {
		sb.WriteString(lit)
		if i == len(t.vars) {
			break
		}
		v, err := varString(s, t.vars[i])
		if err != nil {
			return "", err
		}
		sb.WriteString(url.PathEscape(v))
	}
	return sb.String(), nil
}

func varString(s *session.Session, key string) (string, error) {
	v, err := s.GetObject(key)
	if errors.Is(err, session.ErrVarKind) {
		n, err := s.GetInt(key)
		if err != nil {
			return "", err
		}
		return strconv.Itoa(n), nil
	}
	if err != nil {
		return "", err
	}
	if str, ok := v.(string); ok {
		return str, nil
	}
	return fmt.Sprint(v), nil
}
