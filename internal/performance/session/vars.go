package session

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/wesleyorama2/volley/internal/assert"
)

// Var is a declared variable slot. The only implementations are *ObjectVar and *IntVar.
type Var interface {
	// IsSet reports whether the slot currently holds a value.
	IsSet() bool

	// Unset clears the slot.
	Unset()

	isVar()
}

// ObjectVar holds an arbitrary value.
type ObjectVar struct {
	value any
	set   bool
	// keep retains value across Unset, for slots filled in place and then activated
	keep bool
}

// IsSet reports whether the slot currently holds a value.
func (v *ObjectVar) IsSet() bool { return v.set }

// Unset clears the slot and drops the held reference unless the slot is reusable.
func (v *ObjectVar) Unset() {
	v.set = false
	if !v.keep {
		v.value = nil
	}
}

func (v *ObjectVar) isVar() {}

// IntVar holds an int.
type IntVar struct {
	value int
	set   bool
}

// IsSet reports whether the slot currently holds a value.
func (v *IntVar) IsSet() bool { return v.set }

// Unset clears the slot.
func (v *IntVar) Unset() {
	v.set = false
	v.value = 0
}

func (v *IntVar) isVar() {}

// Declare creates an object variable. Declaring an existing object variable is a no-op.
func (s *Session) Declare(key string) *Session {
	s.declare(key, &ObjectVar{})
	return s
}

// DeclareReusable creates an object variable whose instance survives Unset.
//
// The instance is filled in place by the caller and marked valid with Activate;
// Unset only clears the set flag.
func (s *Session) DeclareReusable(key string, instance any) *Session {
	s.declare(key, &ObjectVar{value: instance, keep: true})
	return s
}

// DeclareInt creates an integer variable. Declaring an existing integer variable is a no-op.
func (s *Session) DeclareInt(key string) *Session {
	s.declare(key, &IntVar{})
	return s
}

func (s *Session) declare(key string, v Var) {
	if existing, ok := s.vars[key]; ok {
		if assert.Enabled {
			_, wasInt := existing.(*IntVar)
			_, isInt := v.(*IntVar)
			assert.That(wasInt == isInt, "variable %s declared as %T and %T", key, existing, v)
		}
		return
	}
	s.vars[key] = v
	s.allVars = append(s.allVars, v)
}

// GetObject returns the value of an object variable.
func (s *Session) GetObject(key string) (any, error) {
	v, err := s.objectVar(key)
	if err != nil {
		return nil, err
	}
	if !v.set {
		return nil, fmt.Errorf("%w: %s", ErrUnsetVar, key)
	}
	return v.value, nil
}

// SetObject assigns an object variable.
func (s *Session) SetObject(key string, value any) error {
	v, err := s.objectVar(key)
	if err != nil {
		return err
	}
	if s.trace {
		s.log.Debug("set", zap.String("key", key), zap.Any("value", value))
	}
	v.value = value
	v.set = true
	return nil
}

// GetInt returns the value of an integer variable.
func (s *Session) GetInt(key string) (int, error) {
	v, err := s.intVar(key)
	if err != nil {
		return 0, err
	}
	if !v.set {
		return 0, fmt.Errorf("%w: %s", ErrUnsetVar, key)
	}
	return v.value, nil
}

// SetInt assigns an integer variable.
func (s *Session) SetInt(key string, value int) error {
	v, err := s.intVar(key)
	if err != nil {
		return err
	}
	if s.trace {
		s.log.Debug("set", zap.String("key", key), zap.Int("value", value))
	}
	v.value = value
	v.set = true
	return nil
}

// AddToInt adds delta to a set integer variable.
func (s *Session) AddToInt(key string, delta int) error {
	v, err := s.intVar(key)
	if err != nil {
		return err
	}
	if !v.set {
		return fmt.Errorf("%w: %s", ErrUnsetVar, key)
	}
	v.value += delta
	if s.trace {
		s.log.Debug("set", zap.String("key", key), zap.Int("value", v.value))
	}
	return nil
}

// IsSet reports whether a variable holds a value. Undeclared keys are never set.
func (s *Session) IsSet(key string) bool {
	v, ok := s.vars[key]
	return ok && v.IsSet()
}

// Activate marks an object variable as set and returns its current value.
func (s *Session) Activate(key string) (any, error) {
	v, err := s.objectVar(key)
	if err != nil {
		return nil, err
	}
	v.set = true
	return v.value, nil
}

// Unset clears a variable.
func (s *Session) Unset(key string) error {
	v, ok := s.vars[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUndeclaredVar, key)
	}
	v.Unset()
	return nil
}

func (s *Session) objectVar(key string) (*ObjectVar, error) {
	v, ok := s.vars[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUndeclaredVar, key)
	}
	ov, ok := v.(*ObjectVar)
	if !ok {
		return nil, fmt.Errorf("%w: %s is an integer variable", ErrVarKind, key)
	}
	return ov, nil
}

func (s *Session) intVar(key string) (*IntVar, error) {
	v, ok := s.vars[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUndeclaredVar, key)
	}
	iv, ok := v.(*IntVar)
	if !ok {
		return nil, fmt.Errorf("%w: %s is an object variable", ErrVarKind, key)
	}
	return iv, nil
}
