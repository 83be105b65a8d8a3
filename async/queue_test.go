package async

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/jobd/errors"
)

// ============================================================================
// Pizzeria Test Universe
// ============================================================================
//
// Characters:
//   - Luigi: Takes orders at the counter (Submit), never waits for the oven
//   - The Oven: Bakes each order (Executor); slow, sometimes burns things
//   - Nonna: Watches the ticket rail (Status, Result, List)
//   - The Busboy: Clears old tickets off the rail (retention)
//
// Theme: an order is baked exactly once, a customer who repeats an order gets
// the same ticket, and a pizza the customer walked away from is never served.
// ============================================================================

// fakeClock is a manually advanced time source
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: epoch}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func sequentialIDs(prefix string) func() string {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("%s-%d", prefix, n.Add(1))
	}
}

// ovenExecutor blocks each bake until release is closed (or the queue shuts down)
type ovenExecutor struct {
	started chan string
	release chan struct{}
	calls   atomic.Int32
	result  json.RawMessage
	err     error
}

func newOven() *ovenExecutor {
	return &ovenExecutor{
		started: make(chan string, 64),
		release: make(chan struct{}),
		result:  json.RawMessage(`{"pizza":"margherita"}`),
	}
}

func (o *ovenExecutor) Execute(ctx context.Context, task string, payload json.RawMessage) (json.RawMessage, error) {
	o.calls.Add(1)
	o.started <- task
	select {
	case <-o.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return o.result, o.err
}

func (o *ovenExecutor) waitStarted(t *testing.T) {
	t.Helper()
	select {
	case <-o.started:
	case <-time.After(2 * time.Second):
		t.Fatal("oven never started baking")
	}
}

func instantExecutor(result string) Executor {
	return ExecutorFunc(func(ctx context.Context, task string, payload json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(result), nil
	})
}

func newTestQueue(t *testing.T, exec Executor, cfg Config, clock *fakeClock) *Queue {
	t.Helper()
	q := NewQueue(exec, cfg, WithClock(clock.Now), WithIDGenerator(sequentialIDs("order")))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_ = q.Close(ctx)
	})
	return q
}

func submit(t *testing.T, q *Queue, key string) Receipt {
	t.Helper()
	receipt, err := q.Submit(context.Background(), SubmitRequest{
		Task:           "bake",
		Payload:        json.RawMessage(`{"size":"large"}`),
		IdempotencyKey: key,
	})
	require.NoError(t, err)
	return receipt
}

func waitForStatus(t *testing.T, q *Queue, id string, want JobStatus) JobView {
	t.Helper()
	var view JobView
	require.Eventually(t, func() bool {
		v, err := q.Status(id)
		if err != nil {
			return false
		}
		view = v
		return v.Status == want
	}, 2*time.Second, 2*time.Millisecond, "job %s never reached %s", id, want)
	return view
}

func requireCode(t *testing.T, err error, code ErrorCode) *Error {
	t.Helper()
	require.Error(t, err)
	e, ok := AsError(err)
	require.True(t, ok, "expected *async.Error, got %T: %v", err, err)
	assert.Equal(t, code, e.Code)
	return e
}

func TestLuigiTakesOrderAndOvenBakes(t *testing.T) {
	t.Log("🍕 Luigi writes a ticket and slides it to the oven")

	clock := newFakeClock()
	oven := newOven()
	q := newTestQueue(t, oven, DefaultConfig(), clock)

	receipt := submit(t, q, "")
	assert.Equal(t, JobStatusPending, receipt.Status)
	assert.Equal(t, epoch, receipt.AcceptedAt)
	assert.False(t, receipt.Replayed)

	_, err := q.Result(receipt.JobID)
	e := requireCode(t, err, ErrorCodeJobNotCompleted)
	assert.Equal(t, "job not completed", e.Message)
	assert.True(t, errors.IsConflict(err))
	t.Log("   Nonna: 'not ready yet!'")

	oven.waitStarted(t)
	view, err := q.Status(receipt.JobID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusRunning, view.Status)
	assert.NotNil(t, view.StartedAt)
	assert.Nil(t, view.FinishedAt)

	close(oven.release)
	view = waitForStatus(t, q, receipt.JobID, JobStatusDone)
	assert.NotNil(t, view.FinishedAt)
	assert.Empty(t, view.Error)

	first, err := q.Result(receipt.JobID)
	require.NoError(t, err)
	second, err := q.Result(receipt.JobID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"pizza":"margherita"}`, string(first))
	assert.Equal(t, first, second, "result must be stable across calls")
	t.Log("✓ pizza served, and the same pizza every time Nonna checks")
}

func TestRepeatCustomerGetsSameTicket(t *testing.T) {
	clock := newFakeClock()
	oven := newOven()
	q := newTestQueue(t, oven, DefaultConfig(), clock)

	first := submit(t, q, "k1")
	clock.Advance(3 * time.Second)
	second := submit(t, q, "k1")

	assert.Equal(t, first.JobID, second.JobID)
	assert.Equal(t, first.AcceptedAt, second.AcceptedAt, "replay returns the original acceptance time")
	assert.True(t, second.Replayed)

	oven.waitStarted(t)
	close(oven.release)
	waitForStatus(t, q, first.JobID, JobStatusDone)

	third := submit(t, q, "k1")
	assert.Equal(t, first.JobID, third.JobID)
	assert.Equal(t, JobStatusDone, third.Status, "replay reports the current status")

	require.NoError(t, q.Close(context.Background()))
	assert.Equal(t, int32(1), oven.calls.Load(), "oven bakes a repeated order once")
	t.Log("✓ one ticket, one pizza")
}

func TestConcurrentRepeatOrdersShareOneTicket(t *testing.T) {
	clock := newFakeClock()
	oven := newOven()
	close(oven.release)
	q := newTestQueue(t, oven, DefaultConfig(), clock)

	var wg sync.WaitGroup
	ids := make([]string, 32)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := q.Submit(context.Background(), SubmitRequest{Task: "bake", IdempotencyKey: "rush"})
			if err == nil {
				ids[i] = r.JobID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	require.NoError(t, q.Close(context.Background()))
	assert.Equal(t, int32(1), oven.calls.Load())
}

func TestIdempotencyKeyReusableAfterEviction(t *testing.T) {
	clock := newFakeClock()
	q := newTestQueue(t, instantExecutor(`1`), DefaultConfig(), clock)

	first := submit(t, q, "k1")
	waitForStatus(t, q, first.JobID, JobStatusDone)

	clock.Advance(DefaultTTL + time.Second)
	second := submit(t, q, "k1")

	assert.NotEqual(t, first.JobID, second.JobID)
	assert.False(t, second.Replayed)
}

func TestCustomerWalksAway(t *testing.T) {
	t.Run("canceling a pending order", func(t *testing.T) {
		clock := newFakeClock()
		oven := newOven()
		q := newTestQueue(t, oven, Config{MaxConcurrent: 1}, clock)

		blocker := submit(t, q, "")
		oven.waitStarted(t)
		waiting := submit(t, q, "")

		view, err := q.Cancel(waiting.JobID)
		require.NoError(t, err)
		assert.Equal(t, JobStatusCanceled, view.Status)
		assert.Equal(t, MessageCanceled, view.Error)
		assert.Nil(t, view.StartedAt)
		assert.NotNil(t, view.FinishedAt)

		close(oven.release)
		require.NoError(t, q.Close(context.Background()))

		assert.Equal(t, int32(1), oven.calls.Load(), "canceled order never reaches the oven")
		done, err := q.Status(blocker.JobID)
		require.NoError(t, err)
		assert.Equal(t, JobStatusDone, done.Status)
	})

	t.Run("canceling an order already in the oven", func(t *testing.T) {
		t.Log("🚪 the customer leaves while the pizza bakes")
		clock := newFakeClock()
		oven := newOven()
		q := newTestQueue(t, oven, DefaultConfig(), clock)

		receipt := submit(t, q, "")
		oven.waitStarted(t)

		view, err := q.Cancel(receipt.JobID)
		require.NoError(t, err)
		assert.Equal(t, JobStatusCanceled, view.Status)
		finishedAt := *view.FinishedAt

		clock.Advance(time.Second)
		again, err := q.Cancel(receipt.JobID)
		require.NoError(t, err, "canceling twice is not an error")
		assert.Equal(t, finishedAt, *again.FinishedAt)

		close(oven.release)
		require.NoError(t, q.Close(context.Background()))

		final, err := q.Status(receipt.JobID)
		require.NoError(t, err)
		assert.Equal(t, JobStatusCanceled, final.Status, "cancellation wins over a late result")

		_, err = q.Result(receipt.JobID)
		e := requireCode(t, err, ErrorCodeJobCanceled)
		assert.Equal(t, MessageCanceled, e.Message)
		t.Log("✓ the pizza came out, nobody served it")
	})

	t.Run("canceling an unknown order", func(t *testing.T) {
		q := newTestQueue(t, instantExecutor(`1`), DefaultConfig(), newFakeClock())
		_, err := q.Cancel("order-404")
		requireCode(t, err, ErrorCodeJobNotFound)
		assert.True(t, errors.IsNotFound(err))
	})
}

func TestCancelCompletedOrdersConflicts(t *testing.T) {
	burnt := errors.New("burnt crust")
	cases := []struct {
		name   string
		exec   func(clock *fakeClock) Executor
		status JobStatus
	}{
		{
			name:   "done",
			exec:   func(*fakeClock) Executor { return instantExecutor(`1`) },
			status: JobStatusDone,
		},
		{
			name: "failed",
			exec: func(*fakeClock) Executor {
				return ExecutorFunc(func(context.Context, string, json.RawMessage) (json.RawMessage, error) {
					return nil, burnt
				})
			},
			status: JobStatusFailed,
		},
		{
			name: "timeout",
			exec: func(clock *fakeClock) Executor {
				return ExecutorFunc(func(context.Context, string, json.RawMessage) (json.RawMessage, error) {
					clock.Advance(DefaultRunTimeout + time.Second)
					return json.RawMessage(`1`), nil
				})
			},
			status: JobStatusTimeout,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clock := newFakeClock()
			q := newTestQueue(t, tc.exec(clock), Config{RunTimeout: DefaultRunTimeout}, clock)

			receipt := submit(t, q, "")
			waitForStatus(t, q, receipt.JobID, tc.status)

			_, err := q.Cancel(receipt.JobID)
			e := requireCode(t, err, ErrorCodeJobNotCancelable)
			assert.Equal(t, "job already completed", e.Message)
			assert.True(t, errors.IsConflict(err))

			view, err := q.Status(receipt.JobID)
			require.NoError(t, err)
			assert.Equal(t, tc.status, view.Status, "terminal status is absorbing")
		})
	}
}

func TestSlowOvenTimesOut(t *testing.T) {
	t.Run("slow success is discarded", func(t *testing.T) {
		t.Log("⏲ the oven takes nine seconds on an eight second budget")
		clock := newFakeClock()
		exec := ExecutorFunc(func(context.Context, string, json.RawMessage) (json.RawMessage, error) {
			clock.Advance(9 * time.Second)
			return json.RawMessage(`{"pizza":"perfect"}`), nil
		})
		q := newTestQueue(t, exec, DefaultConfig(), clock)

		receipt := submit(t, q, "")
		view := waitForStatus(t, q, receipt.JobID, JobStatusTimeout)
		assert.Equal(t, MessageTimeout, view.Error)

		_, err := q.Result(receipt.JobID)
		e := requireCode(t, err, ErrorCodeJobTimeout)
		assert.Equal(t, MessageTimeout, e.Message)
	})

	t.Run("slow failure is still a timeout", func(t *testing.T) {
		clock := newFakeClock()
		exec := ExecutorFunc(func(context.Context, string, json.RawMessage) (json.RawMessage, error) {
			clock.Advance(9 * time.Second)
			return nil, errors.New("burnt")
		})
		q := newTestQueue(t, exec, DefaultConfig(), clock)

		receipt := submit(t, q, "")
		waitForStatus(t, q, receipt.JobID, JobStatusTimeout)
	})

	t.Run("exactly on budget is fine", func(t *testing.T) {
		clock := newFakeClock()
		exec := ExecutorFunc(func(context.Context, string, json.RawMessage) (json.RawMessage, error) {
			clock.Advance(DefaultRunTimeout)
			return json.RawMessage(`1`), nil
		})
		q := newTestQueue(t, exec, DefaultConfig(), clock)

		receipt := submit(t, q, "")
		waitForStatus(t, q, receipt.JobID, JobStatusDone)
	})
}

func TestBurntPizzaIsRecordedAsFailed(t *testing.T) {
	clock := newFakeClock()
	exec := ExecutorFunc(func(context.Context, string, json.RawMessage) (json.RawMessage, error) {
		return nil, errors.New("burnt crust")
	})
	q := newTestQueue(t, exec, DefaultConfig(), clock)

	receipt := submit(t, q, "")
	view := waitForStatus(t, q, receipt.JobID, JobStatusFailed)
	assert.Equal(t, "burnt crust", view.Error)

	_, err := q.Result(receipt.JobID)
	e := requireCode(t, err, ErrorCodeJobFailed)
	assert.Equal(t, "burnt crust", e.Message)
}

func TestOvenFireIsContained(t *testing.T) {
	t.Log("🔥 the oven catches fire mid-bake")
	clock := newFakeClock()
	exec := ExecutorFunc(func(context.Context, string, json.RawMessage) (json.RawMessage, error) {
		panic("boom")
	})
	q := newTestQueue(t, exec, DefaultConfig(), clock)

	receipt := submit(t, q, "")
	view := waitForStatus(t, q, receipt.JobID, JobStatusFailed)
	assert.Equal(t, "panic: boom", view.Error)
	t.Log("✓ the ticket says failed, not stuck in the oven forever")
}

func TestBusboyClearsOldTickets(t *testing.T) {
	t.Run("terminal tickets expire after the TTL", func(t *testing.T) {
		clock := newFakeClock()
		q := newTestQueue(t, instantExecutor(`1`), DefaultConfig(), clock)

		receipt := submit(t, q, "")
		waitForStatus(t, q, receipt.JobID, JobStatusDone)

		clock.Advance(DefaultTTL)
		_, err := q.Status(receipt.JobID)
		require.NoError(t, err, "exactly at the TTL the ticket stays")

		clock.Advance(time.Second)
		_, err = q.Status(receipt.JobID)
		requireCode(t, err, ErrorCodeJobNotFound)

		page, err := q.List(ListOptions{Limit: 10})
		require.NoError(t, err)
		assert.Empty(t, page.Items)
	})

	t.Run("overflow evicts the oldest ticket even while baking", func(t *testing.T) {
		clock := newFakeClock()
		oven := newOven()
		q := newTestQueue(t, oven, Config{MaxItems: 2}, clock)

		oldest := submit(t, q, "first")
		oven.waitStarted(t)
		clock.Advance(time.Second)
		middle := submit(t, q, "")
		clock.Advance(time.Second)
		newest := submit(t, q, "")

		_, err := q.Status(oldest.JobID)
		requireCode(t, err, ErrorCodeJobNotFound)
		_, err = q.Status(middle.JobID)
		assert.NoError(t, err)
		_, err = q.Status(newest.JobID)
		assert.NoError(t, err)

		health := q.Health()
		assert.Equal(t, 2, health.JobsInMemory)
		assert.Equal(t, 0, health.IdempotencyKeys, "evicted key leaves the index")

		close(oven.release)
		require.NoError(t, q.Close(context.Background()))
		_, err = q.Status(oldest.JobID)
		requireCode(t, err, ErrorCodeJobNotFound)
		t.Log("⚠ the evicted order finished baking but was never written back")
	})

	t.Run("tightened policy applies on the next access", func(t *testing.T) {
		clock := newFakeClock()
		q := newTestQueue(t, instantExecutor(`1`), DefaultConfig(), clock)

		for i := 0; i < 4; i++ {
			r := submit(t, q, "")
			waitForStatus(t, q, r.JobID, JobStatusDone)
			clock.Advance(time.Second)
		}

		q.SetPolicy(RetentionPolicy{TTL: DefaultTTL, MaxItems: 1}, DefaultRunTimeout)
		health := q.Health()
		assert.Equal(t, 1, health.JobsInMemory)
		assert.Equal(t, 1, health.MaxItems)
	})
}

func TestNonnaReadsTheRail(t *testing.T) {
	clock := newFakeClock()
	q := newTestQueue(t, instantExecutor(`1`), DefaultConfig(), clock)

	var all []string
	for i := 0; i < 5; i++ {
		r := submit(t, q, "")
		waitForStatus(t, q, r.JobID, JobStatusDone)
		all = append([]string{r.JobID}, all...)
		clock.Advance(time.Second)
	}

	t.Run("limit one pages through everything newest first", func(t *testing.T) {
		var seen []string
		cursor := ""
		for pages := 0; pages < 10; pages++ {
			page, err := q.List(ListOptions{Limit: 1, Cursor: cursor})
			require.NoError(t, err)
			require.Len(t, page.Items, 1)
			seen = append(seen, page.Items[0].ID)
			if page.NextCursor == "" {
				break
			}
			cursor = page.NextCursor
		}
		assert.Equal(t, all, seen)
	})

	t.Run("page larger than the rail has no cursor", func(t *testing.T) {
		page, err := q.List(ListOptions{Limit: 100})
		require.NoError(t, err)
		assert.Len(t, page.Items, 5)
		assert.Empty(t, page.NextCursor)
	})

	t.Run("cursor past the end yields an empty page", func(t *testing.T) {
		page, err := q.List(ListOptions{Limit: 10, Cursor: "50"})
		require.NoError(t, err)
		assert.Empty(t, page.Items)
		assert.NotNil(t, page.Items)
		assert.Empty(t, page.NextCursor)
	})

	t.Run("status filter", func(t *testing.T) {
		_, err := q.Cancel(all[0])
		requireCode(t, err, ErrorCodeJobNotCancelable)

		page, err := q.List(ListOptions{Limit: 10, Status: "done"})
		require.NoError(t, err)
		assert.Len(t, page.Items, 5)

		page, err = q.List(ListOptions{Limit: 10, Status: "running"})
		require.NoError(t, err)
		assert.Empty(t, page.Items)
	})

	t.Run("invalid options", func(t *testing.T) {
		cases := []struct {
			opts ListOptions
			code ErrorCode
		}{
			{ListOptions{Limit: 0}, ErrorCodeInvalidPagination},
			{ListOptions{Limit: 101}, ErrorCodeInvalidPagination},
			{ListOptions{Limit: 10, Cursor: "not-a-number"}, ErrorCodeInvalidCursor},
			{ListOptions{Limit: 10, Cursor: "-1"}, ErrorCodeInvalidCursor},
			{ListOptions{Limit: 10, Status: "TimedOut"}, ErrorCodeInvalidStatus},
		}
		for _, tc := range cases {
			_, err := q.List(tc.opts)
			requireCode(t, err, tc.code)
			assert.True(t, errors.IsInvalidRequest(err))
		}
	})
}

func TestListOrdersEqualTimestampsByArrival(t *testing.T) {
	clock := newFakeClock()
	oven := newOven()
	q := newTestQueue(t, oven, DefaultConfig(), clock)

	a := submit(t, q, "")
	b := submit(t, q, "")
	c := submit(t, q, "")

	page, err := q.List(ListOptions{Limit: 10})
	require.NoError(t, err)
	require.Len(t, page.Items, 3)
	assert.Equal(t, []string{c.JobID, b.JobID, a.JobID},
		[]string{page.Items[0].ID, page.Items[1].ID, page.Items[2].ID})
}

func TestLuigiRejectsUnknownDishes(t *testing.T) {
	registry := NewHandlerRegistry()
	registry.Register(&phoneBookTestHandler{name: "bake"})
	q := newTestQueue(t, NewRegistryExecutor(registry), DefaultConfig(), newFakeClock())

	_, err := q.Submit(context.Background(), SubmitRequest{Task: "sushi"})
	requireCode(t, err, ErrorCodeUnsupportedTask)

	_, err = q.Submit(context.Background(), SubmitRequest{Task: ""})
	requireCode(t, err, ErrorCodeUnsupportedTask)

	assert.Equal(t, 0, q.Health().JobsInMemory)
}

func TestClosingTime(t *testing.T) {
	clock := newFakeClock()
	oven := newOven()
	q := NewQueue(oven, DefaultConfig(), WithClock(clock.Now))

	receipt := submit(t, q, "late-order")
	oven.waitStarted(t)

	closed := make(chan error, 1)
	go func() { closed <- q.Close(context.Background()) }()

	require.Eventually(t, func() bool {
		_, err := q.Submit(context.Background(), SubmitRequest{Task: "bake"})
		return errors.IsUnavailable(err)
	}, time.Second, 2*time.Millisecond)

	replay := submit(t, q, "late-order")
	assert.Equal(t, receipt.JobID, replay.JobID, "replays still answer after closing")

	close(oven.release)
	require.NoError(t, <-closed)
	view, err := q.Status(receipt.JobID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusDone, view.Status, "in-flight bake finishes before closing")
	assert.NoError(t, q.Close(context.Background()), "second close is a no-op")
}

func TestClosingTimeDeadline(t *testing.T) {
	clock := newFakeClock()
	oven := newOven()
	q := NewQueue(oven, Config{MaxConcurrent: 1}, WithClock(clock.Now))

	running := submit(t, q, "")
	oven.waitStarted(t)
	waiting := submit(t, q, "")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := q.Close(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	waitForStatus(t, q, running.JobID, JobStatusFailed)
	view := waitForStatus(t, q, waiting.JobID, JobStatusCanceled)
	assert.Equal(t, MessageShutdown, view.Error)
}

func TestSubscribersSeeEveryTransition(t *testing.T) {
	clock := newFakeClock()
	oven := newOven()
	close(oven.release)
	q := newTestQueue(t, oven, DefaultConfig(), clock)

	updates := q.Subscribe()
	receipt := submit(t, q, "")

	var statuses []JobStatus
	timeout := time.After(2 * time.Second)
	for len(statuses) < 3 {
		select {
		case v := <-updates:
			assert.Equal(t, receipt.JobID, v.ID)
			statuses = append(statuses, v.Status)
		case <-timeout:
			t.Fatalf("only saw %v", statuses)
		}
	}
	assert.Equal(t, []JobStatus{JobStatusPending, JobStatusRunning, JobStatusDone}, statuses)

	q.Unsubscribe(updates)
	_, open := <-updates
	assert.False(t, open)
}

func TestHealthReportsPolicy(t *testing.T) {
	clock := newFakeClock()
	oven := newOven()
	q := newTestQueue(t, oven, DefaultConfig(), clock)

	submit(t, q, "a")
	submit(t, q, "b")
	submit(t, q, "")

	health := q.Health()
	assert.Equal(t, 3, health.JobsInMemory)
	assert.Equal(t, 2, health.IdempotencyKeys)
	assert.Equal(t, DefaultTTL, health.TTL)
	assert.Equal(t, DefaultMaxItems, health.MaxItems)
	assert.Equal(t, DefaultRunTimeout, health.RunTimeout)
}

func TestLuigiRejectsIncompleteOrders(t *testing.T) {
	registry := NewHandlerRegistry()
	registry.Register(&pickyHandler{phoneBookTestHandler{name: "bake"}})
	q := newTestQueue(t, NewRegistryExecutor(registry), DefaultConfig(), newFakeClock())

	_, err := q.Submit(context.Background(), SubmitRequest{Task: "bake", Payload: json.RawMessage(`{}`)})
	e := requireCode(t, err, ErrorCodeValidation)
	assert.Equal(t, "topping is required", e.Message)
	assert.True(t, errors.IsInvalidRequest(err))

	receipt, err := q.Submit(context.Background(), SubmitRequest{Task: "bake", Payload: json.RawMessage(`{"topping":"basil"}`)})
	require.NoError(t, err)
	waitForStatus(t, q, receipt.JobID, JobStatusDone)
}
