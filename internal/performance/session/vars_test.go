package session_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/wesleyorama2/volley/internal/performance/session"
)

func newVarSession(objectVars, intVars []string) *session.Session {
	sc := newScenario(1, 1, &fakeSequence{name: "main"})
	sc.objectVars = objectVars
	sc.intVars = intVars
	return session.New(sc, 7, session.Options{})
}

func TestVariableLaws(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		objKey := rapid.StringMatching(`o[a-z]{0,8}`).Draw(t, "objKey")
		intKey := rapid.StringMatching(`i[a-z]{0,8}`).Draw(t, "intKey")
		s := newVarSession([]string{objKey}, []string{intKey})

		obj := rapid.String().Draw(t, "obj")
		n := rapid.Int().Draw(t, "n")
		delta := rapid.IntRange(-1000, 1000).Draw(t, "delta")

		if s.IsSet(objKey) || s.IsSet(intKey) {
			t.Fatalf("declared vars start unset")
		}
		if _, err := s.GetObject(objKey); !assert.ErrorIs(t, err, session.ErrUnsetVar) {
			t.FailNow()
		}

		if err := s.SetObject(objKey, obj); err != nil {
			t.Fatalf("SetObject: %v", err)
		}
		got, err := s.GetObject(objKey)
		if err != nil || got != obj {
			t.Fatalf("GetObject = %v, %v, want %v", got, err, obj)
		}

		if err := s.SetInt(intKey, n); err != nil {
			t.Fatalf("SetInt: %v", err)
		}
		if err := s.AddToInt(intKey, delta); err != nil {
			t.Fatalf("AddToInt: %v", err)
		}
		if v, _ := s.GetInt(intKey); v != n+delta {
			t.Fatalf("GetInt = %d, want %d", v, n+delta)
		}

		if _, err := s.GetInt(objKey); !assert.ErrorIs(t, err, session.ErrVarKind) {
			t.FailNow()
		}
		if err := s.SetObject(intKey, obj); !assert.ErrorIs(t, err, session.ErrVarKind) {
			t.FailNow()
		}

		s.Reset()
		if s.IsSet(objKey) || s.IsSet(intKey) {
			t.Fatalf("reset must unset every var")
		}
	})
}

func TestUndeclaredVariable(t *testing.T) {
	s := newVarSession(nil, nil)

	_, err := s.GetObject("nope")
	assert.ErrorIs(t, err, session.ErrUndeclaredVar)
	assert.ErrorIs(t, s.SetInt("nope", 1), session.ErrUndeclaredVar)
	assert.ErrorIs(t, s.Unset("nope"), session.ErrUndeclaredVar)
	assert.False(t, s.IsSet("nope"))
}

func TestAddToUnsetInt(t *testing.T) {
	s := newVarSession(nil, []string{"n"})
	assert.ErrorIs(t, s.AddToInt("n", 1), session.ErrUnsetVar)
}

func TestDeclareIsIdempotent(t *testing.T) {
	s := newVarSession([]string{"a"}, []string{"n"})
	require.NoError(t, s.SetObject("a", "x"))
	s.Declare("a").DeclareInt("n")

	v, err := s.GetObject("a")
	require.NoError(t, err)
	assert.Equal(t, "x", v)
}

func TestDeclareWithDifferentKindPanics(t *testing.T) {
	s := newVarSession([]string{"a"}, nil)
	assert.Panics(t, func() { s.DeclareInt("a") })
}

func TestReusableVariable(t *testing.T) {
	buf := make([]byte, 0, 16)
	s := newVarSession(nil, nil)
	s.DeclareReusable("buf", &buf)

	assert.False(t, s.IsSet("buf"))
	v, err := s.Activate("buf")
	require.NoError(t, err)
	assert.Same(t, &buf, v)
	assert.True(t, s.IsSet("buf"))

	require.NoError(t, s.Unset("buf"))
	assert.False(t, s.IsSet("buf"))
	v, err = s.Activate("buf")
	require.NoError(t, err)
	assert.Same(t, &buf, v, "the instance survives unset")
}

func TestUnsetDropsPlainObject(t *testing.T) {
	s := newVarSession([]string{"a"}, nil)
	require.NoError(t, s.SetObject("a", "value"))
	require.NoError(t, s.Unset("a"))

	v, err := s.Activate("a")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestResources(t *testing.T) {
	type counter struct{ n int }
	key := session.NewResourceKey[*counter]("counter")
	other := session.NewResourceKey[*counter]("counter")
	s := newVarSession(nil, nil)

	_, ok := session.GetResource(s, key)
	assert.False(t, ok)

	c := &counter{n: 3}
	session.DeclareResource(s, key, c)
	got, ok := session.GetResource(s, key)
	require.True(t, ok)
	assert.Same(t, c, got)

	_, ok = session.GetResource(s, other)
	assert.False(t, ok, "keys compare by identity")
	assert.Equal(t, "counter", key.String())

	s.Reset()
	got, ok = session.GetResource(s, key)
	require.True(t, ok, "resources survive reset")
	assert.Same(t, c, got)
}
