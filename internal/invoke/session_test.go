package invoke

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSession_SingleInvocationInFlight(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "tool", "sleep 2\necho done\n")

	s := newSession("s1", dir, Config{Binary: script})

	inv, err := s.Run("first", Timeout{})
	require.NoError(t, err)
	require.True(t, s.Busy())

	// Admission denied while the first invocation is unsettled.
	_, err = s.Run("second", Timeout{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "in flight")

	inv.Abort()
	_, _ = inv.Wait()

	// The lane is free again once the invocation settles.
	inv2, err := s.Run("third", Timeout{})
	require.NoError(t, err)
	inv2.Abort()
	_, _ = inv2.Wait()
}

func TestSession_AbortIdleIsNoop(t *testing.T) {
	s := newSession("s1", t.TempDir(), Config{})
	s.Abort() // No invocation, no panic
	require.True(t, s.Alive())
}

func TestSession_Stop(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "tool", "sleep 5\necho late\n")

	s := newSession("s1", dir, Config{Binary: script})
	inv, err := s.Run("hi", Timeout{})
	require.NoError(t, err)

	s.Stop()

	_, err = inv.Wait()
	kind, ok := KindOf(err)
	require.True(t, ok)
	require.Equal(t, KindUserAborted, kind)
	require.False(t, s.Alive())

	// A stopped session refuses new work.
	_, err = s.Run("again", Timeout{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "terminated")
}

func TestSession_TimeoutPassedThrough(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "tool", "sleep 5\n")

	s := newSession("s1", dir, Config{Binary: script})
	inv, err := s.Run("hi", Timeout{Duration: 100 * time.Millisecond, Auto: true})
	require.NoError(t, err)

	_, err = inv.Wait()
	kind, ok := KindOf(err)
	require.True(t, ok)
	require.Equal(t, KindTimeout, kind)
}
