package invoke

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistry_CreateAndLookup(t *testing.T) {
	r := NewRegistry(Config{})

	s, err := r.Create("s1", t.TempDir())
	require.NoError(t, err)
	require.Equal(t, "s1", s.Key)

	got, ok := r.Get("s1")
	require.True(t, ok)
	require.Same(t, s, got)
	require.True(t, r.Has("s1"))

	_, ok = r.Get("missing")
	require.False(t, ok)
	require.False(t, r.Has("missing"))
}

func TestRegistry_CreateDuplicateFails(t *testing.T) {
	r := NewRegistry(Config{})

	_, err := r.Create("s1", t.TempDir())
	require.NoError(t, err)

	_, err = r.Create("s1", t.TempDir())
	require.Error(t, err)
	require.Contains(t, err.Error(), "already exists")
}

func TestRegistry_Terminate(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "tool", "sleep 5\n")

	r := NewRegistry(Config{Binary: script})
	s, err := r.Create("s1", dir)
	require.NoError(t, err)

	inv, err := s.Run("hi", Timeout{})
	require.NoError(t, err)

	r.Terminate("s1")

	_, err = inv.Wait()
	kind, ok := KindOf(err)
	require.True(t, ok)
	require.Equal(t, KindUserAborted, kind)

	require.False(t, r.Has("s1"))
	require.Equal(t, 0, r.Len())

	// Unknown key is a warned no-op, not a panic.
	r.Terminate("s1")
}

func TestRegistry_AbortKeepsLane(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "tool", "sleep 5\n")

	r := NewRegistry(Config{Binary: script})
	s, err := r.Create("s1", dir)
	require.NoError(t, err)

	inv, err := s.Run("hi", Timeout{})
	require.NoError(t, err)

	r.Abort("s1")
	_, _ = inv.Wait()

	// Lane survives an abort and accepts new work.
	require.True(t, r.Has("s1"))
	inv2, err := s.Run("again", Timeout{})
	require.NoError(t, err)
	inv2.Abort()
	_, _ = inv2.Wait()

	// Abort for an unknown key logs a warning and returns.
	r.Abort("missing")
}

func TestRegistry_TerminateAll(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "tool", "sleep 5\n")

	r := NewRegistry(Config{Binary: script})

	var invs []*Invocation
	for _, key := range []string{"a", "b", "c"} {
		s, err := r.Create(key, dir)
		require.NoError(t, err)
		inv, err := s.Run("hi", Timeout{})
		require.NoError(t, err)
		invs = append(invs, inv)
	}

	r.TerminateAll()

	for _, inv := range invs {
		_, err := inv.Wait()
		kind, ok := KindOf(err)
		require.True(t, ok)
		require.Equal(t, KindUserAborted, kind)
	}
	require.Equal(t, 0, r.Len())
}
