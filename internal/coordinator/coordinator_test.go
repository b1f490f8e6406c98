package coordinator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCoordinator_SingleFlight(t *testing.T) {
	c := New(10, nil, nil)

	first, err := c.CreateRequest("", "s1", "prompt a", "sel a", "")
	require.NoError(t, err)
	second, err := c.CreateRequest("", "s1", "prompt b", "sel b", "")
	require.NoError(t, err)

	active := c.NextRequest()
	require.NotNil(t, active)
	require.Equal(t, first.ID, active.ID)
	require.Equal(t, StatusProcessing, active.Status)

	// Admission denied while a request is processing.
	require.Nil(t, c.NextRequest())
	require.Equal(t, 1, c.Pending())

	require.NoError(t, c.Complete("done"))

	next := c.NextRequest()
	require.NotNil(t, next)
	require.Equal(t, second.ID, next.ID)
}

func TestCoordinator_FIFOOrder(t *testing.T) {
	var finished []string
	c := New(10, nil, func(req Request) {
		finished = append(finished, req.ID)
	})

	var ids []string
	for _, p := range []string{"a", "b", "c"} {
		req, err := c.CreateRequest("", "s1", p, "", "")
		require.NoError(t, err)
		ids = append(ids, req.ID)
	}

	for range ids {
		req := c.NextRequest()
		require.NotNil(t, req)
		require.NoError(t, c.Complete("ok"))
	}

	require.Equal(t, ids, finished, "requests settle in enqueue order")
}

func TestCoordinator_TerminalTransitions(t *testing.T) {
	tests := []struct {
		name   string
		finish func(c *Coordinator) error
		status Status
		result string
		hasErr bool
	}{
		{
			name:   "complete",
			finish: func(c *Coordinator) error { return c.Complete("answer") },
			status: StatusCompleted,
			result: "answer",
		},
		{
			name:   "fail",
			finish: func(c *Coordinator) error { return c.Fail(errors.New("boom")) },
			status: StatusFailed,
			hasErr: true,
		},
		{
			name:   "orphan keeps payload",
			finish: func(c *Coordinator) error { return c.Orphan("answer", nil) },
			status: StatusOrphaned,
			result: "answer",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got *Request
			c := New(10, nil, func(req Request) { got = &req })

			_, err := c.CreateRequest("", "s1", "p", "", "")
			require.NoError(t, err)
			require.NotNil(t, c.NextRequest())

			require.NoError(t, tt.finish(c))

			require.NotNil(t, got, "completion callback must fire")
			require.Equal(t, tt.status, got.Status)
			require.True(t, got.Status.Terminal())
			require.Equal(t, tt.result, got.Result)
			require.Equal(t, tt.hasErr, got.Err != nil)

			// The active slot is free again.
			_, ok := c.Active()
			require.False(t, ok)
		})
	}
}

func TestCoordinator_FinishWithoutActive(t *testing.T) {
	c := New(10, nil, nil)

	require.ErrorIs(t, c.Complete("x"), ErrNoActive)
	require.ErrorIs(t, c.Fail(errors.New("x")), ErrNoActive)
	require.ErrorIs(t, c.Orphan("x", nil), ErrNoActive)
}

func TestCoordinator_CancelPending(t *testing.T) {
	c := New(10, nil, nil)

	first, err := c.CreateRequest("", "s1", "a", "", "")
	require.NoError(t, err)
	second, err := c.CreateRequest("", "s1", "b", "", "")
	require.NoError(t, err)

	require.NotNil(t, c.NextRequest())

	// Active requests cannot be cancelled through the queue.
	require.False(t, c.CancelPending(first.ID))

	// Queued requests can.
	require.True(t, c.CancelPending(second.ID))
	require.False(t, c.CancelPending(second.ID), "already removed")
	require.False(t, c.CancelPending("unknown"))
	require.Equal(t, 0, c.Pending())
}

func TestCoordinator_QueueFull(t *testing.T) {
	c := New(1, nil, nil)

	_, err := c.CreateRequest("", "s1", "a", "", "")
	require.NoError(t, err)

	_, err = c.CreateRequest("", "s1", "b", "", "")
	require.ErrorIs(t, err, ErrQueueFull)
}

func TestCoordinator_CallbackRunsOutsideLock(t *testing.T) {
	// A callback that immediately dequeues the next request must not
	// deadlock: this is exactly how the dispatcher drains the queue.
	c := New(10, nil, nil)
	var drained []string
	c.SetFinishedFunc(func(req Request) {
		if next := c.NextRequest(); next != nil {
			drained = append(drained, next.ID)
		}
	})

	_, err := c.CreateRequest("", "s1", "a", "", "")
	require.NoError(t, err)
	second, err := c.CreateRequest("", "s1", "b", "", "")
	require.NoError(t, err)

	require.NotNil(t, c.NextRequest())
	require.NoError(t, c.Complete("ok"))

	require.Equal(t, []string{second.ID}, drained)
}

func TestCoordinator_CreateRequestWithCallerID(t *testing.T) {
	c := New(10, nil, nil)

	req, err := c.CreateRequest("my-id", "s1", "p", "", "")
	require.NoError(t, err)
	require.Equal(t, "my-id", req.ID)

	// An empty id draws a fresh UUID.
	generated, err := c.CreateRequest("", "s1", "p", "", "")
	require.NoError(t, err)
	require.NotEmpty(t, generated.ID)
	require.NotEqual(t, "my-id", generated.ID)
}

func TestCoordinator_DrainPending(t *testing.T) {
	c := New(10, nil, nil)

	active, err := c.CreateRequest("", "s1", "a", "", "")
	require.NoError(t, err)
	var queued []string
	for _, p := range []string{"b", "c"} {
		req, err := c.CreateRequest("", "s1", p, "", "")
		require.NoError(t, err)
		queued = append(queued, req.ID)
	}
	require.NotNil(t, c.NextRequest())

	drained := c.DrainPending()
	require.Len(t, drained, 2)
	require.Equal(t, queued[0], drained[0].ID, "drain preserves queue order")
	require.Equal(t, queued[1], drained[1].ID)
	require.Equal(t, 0, c.Pending())

	// The active request is untouched by a drain.
	inFlight, ok := c.Active()
	require.True(t, ok)
	require.Equal(t, active.ID, inFlight.ID)

	require.Empty(t, c.DrainPending())
}

func TestCoordinator_SnapshotIsolation(t *testing.T) {
	c := New(10, nil, nil)

	req, err := c.CreateRequest("", "s1", "p", "sel", "notes.md")
	require.NoError(t, err)
	require.Equal(t, StatusPending, req.Status)
	require.NotEmpty(t, req.ID)
	require.False(t, req.CreatedAt.IsZero())

	active := c.NextRequest()
	require.NotNil(t, active)

	// Mutating the returned snapshot must not affect coordinator state.
	active.Status = StatusCompleted
	inFlight, ok := c.Active()
	require.True(t, ok)
	require.Equal(t, StatusProcessing, inFlight.Status)
}
