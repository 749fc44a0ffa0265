package session

// ResourceKey identifies a per-session resource of type R. Keys compare by identity.
type ResourceKey[R any] struct {
	name string
}

// NewResourceKey creates a key. The name is only used for diagnostics.
func NewResourceKey[R any](name string) *ResourceKey[R] {
	return &ResourceKey[R]{name: name}
}

func (k *ResourceKey[R]) String() string {
	return k.name
}

// DeclareResource stores r under key, replacing any previous value.
func DeclareResource[R any](s *Session, key *ResourceKey[R], r R) {
	s.resources[key] = r
}

// GetResource returns the resource stored under key, or false if it was never declared.
func GetResource[R any](s *Session, key *ResourceKey[R]) (R, bool) {
	v, ok := s.resources[key]
	if !ok {
		var zero R
		return zero, false
	}
	r, ok := v.(R)
	return r, ok
}
