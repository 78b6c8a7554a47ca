package sync

import (
	"context"
	"testing"
	"time"

	"github.com/scryforge/hub/internal/model"
	"github.com/scryforge/hub/internal/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider is a minimal provider.Provider whose Sync behavior is
// controlled by the test: it blocks on a channel, optionally fails, and
// counts how many times it was invoked.
type fakeProvider struct {
	id string

	mu        chan struct{} // closed to let Sync return
	calls     chan struct{} // one send per Sync call
	err       error
	rateLimit int
}

func newFakeProvider(id string) *fakeProvider {
	return &fakeProvider{id: id, mu: make(chan struct{}), calls: make(chan struct{}, 64)}
}

func (p *fakeProvider) ID() string   { return p.id }
func (p *fakeProvider) Name() string { return p.id }
func (p *fakeProvider) HealthCheck(context.Context) (model.ProviderHealth, error) {
	return model.ProviderHealth{IsHealthy: true}, nil
}
func (p *fakeProvider) Capabilities() provider.Capabilities { return provider.Capabilities{} }
func (p *fakeProvider) AvailableActions(context.Context, model.Item) ([]provider.Action, error) {
	return nil, nil
}
func (p *fakeProvider) ExecuteAction(context.Context, model.Item, provider.Action) (provider.ActionResult, error) {
	return provider.ActionResult{}, nil
}

func (p *fakeProvider) Sync(ctx context.Context) (model.SyncResult, error) {
	p.calls <- struct{}{}
	select {
	case <-p.mu:
	case <-ctx.Done():
		return model.SyncResult{}, ctx.Err()
	}
	if p.rateLimit > 0 {
		return model.SyncResult{}, provider.RateLimited(p.rateLimit)
	}
	if p.err != nil {
		return model.SyncResult{}, p.err
	}
	return model.SyncResult{Success: true, ItemsAdded: 1}, nil
}

// release unblocks every Sync call currently waiting (and any future
// ones, since closing a channel is permanent).
func (p *fakeProvider) release() { close(p.mu) }

type fakeRegistry struct {
	providers map[string]provider.Provider
}

func (r *fakeRegistry) Get(id string) (provider.Provider, bool) {
	p, ok := r.providers[id]
	return p, ok
}
func (r *fakeRegistry) IDs() []string {
	out := make([]string, 0, len(r.providers))
	for id := range r.providers {
		out = append(out, id)
	}
	return out
}

type fakeStore struct {
	mu    chan struct{}
	calls int
}

func (s *fakeStore) UpsertStreams(context.Context, []model.Stream) error { return nil }
func (s *fakeStore) UpsertItems(context.Context, []model.Item) error     { return nil }
func (s *fakeStore) SetSyncState(context.Context, model.ProviderSyncState) error {
	s.calls++
	return nil
}

func TestSchedulerTriggerRunsImmediately(t *testing.T) {
	p := newFakeProvider("feed-a")
	p.release()
	reg := &fakeRegistry{providers: map[string]provider.Provider{"feed-a": p}}
	st := &fakeStore{}

	s := New(reg, st, 10*time.Millisecond, 4)
	s.Register("feed-a", true, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop()

	require.NoError(t, s.Trigger("feed-a"))

	require.Eventually(t, func() bool {
		status := s.Status()
		state, ok := status["feed-a"]
		return ok && state.LastSuccess.Valid
	}, time.Second, 5*time.Millisecond)
}

func TestSchedulerTriggerUnknownProvider(t *testing.T) {
	s := New(&fakeRegistry{providers: map[string]provider.Provider{}}, &fakeStore{}, time.Second, 1)
	assert.Error(t, s.Trigger("ghost"))
}

func TestSchedulerTriggerCoalescesWhileSyncing(t *testing.T) {
	p := newFakeProvider("feed-a")
	reg := &fakeRegistry{providers: map[string]provider.Provider{"feed-a": p}}
	s := New(reg, &fakeStore{}, 5*time.Millisecond, 4)
	s.Register("feed-a", true, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer func() {
		p.release()
		s.Stop()
	}()

	require.NoError(t, s.Trigger("feed-a"))
	require.Eventually(t, func() bool { return len(p.calls) >= 1 }, time.Second, 5*time.Millisecond)

	// A second trigger while the first sync is still in flight must
	// coalesce silently rather than queue a second concurrent call.
	require.NoError(t, s.Trigger("feed-a"))
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, len(p.calls))
}

func TestSchedulerBackoffDoublesOnFailure(t *testing.T) {
	p := newFakeProvider("feed-a")
	p.err = provider.Network("boom")
	p.release()
	reg := &fakeRegistry{providers: map[string]provider.Provider{"feed-a": p}}
	s := New(reg, &fakeStore{}, time.Hour, 4)
	s.Register("feed-a", true, time.Minute)

	s.runSync(context.Background(), "feed-a")

	s.mu.Lock()
	st := s.states["feed-a"]
	factor1 := st.backoffFactor
	s.mu.Unlock()
	assert.Equal(t, 2, factor1)

	s.runSync(context.Background(), "feed-a")
	s.mu.Lock()
	factor2 := st.backoffFactor
	consecutive := st.consecutiveFail
	s.mu.Unlock()
	assert.Equal(t, 4, factor2)
	assert.Equal(t, 2, consecutive)
}

func TestSchedulerBackoffResetsOnSuccess(t *testing.T) {
	p := newFakeProvider("feed-a")
	p.err = provider.Network("boom")
	p.release()
	reg := &fakeRegistry{providers: map[string]provider.Provider{"feed-a": p}}
	s := New(reg, &fakeStore{}, time.Hour, 4)
	s.Register("feed-a", true, time.Minute)

	s.runSync(context.Background(), "feed-a")
	s.mu.Lock()
	assert.Equal(t, 2, s.states["feed-a"].backoffFactor)
	s.mu.Unlock()

	p.err = nil
	s.runSync(context.Background(), "feed-a")
	s.mu.Lock()
	st := s.states["feed-a"]
	assert.Equal(t, 1, st.backoffFactor)
	assert.Equal(t, 0, st.consecutiveFail)
	assert.True(t, st.healthy)
	s.mu.Unlock()
}

func TestSchedulerRateLimitedHonorsRetryAfter(t *testing.T) {
	p := newFakeProvider("feed-a")
	p.rateLimit = 37
	p.release()
	reg := &fakeRegistry{providers: map[string]provider.Provider{"feed-a": p}}
	s := New(reg, &fakeStore{}, time.Hour, 4)
	s.Register("feed-a", true, time.Minute)

	before := time.Now()
	s.runSync(context.Background(), "feed-a")

	s.mu.Lock()
	next := s.states["feed-a"].nextSync
	s.mu.Unlock()

	assert.WithinDuration(t, before.Add(37*time.Second), next, 2*time.Second)
}

func TestSchedulerUnhealthyAfterConsecutiveFailures(t *testing.T) {
	p := newFakeProvider("feed-a")
	p.err = provider.Network("boom")
	p.release()
	reg := &fakeRegistry{providers: map[string]provider.Provider{"feed-a": p}}
	s := New(reg, &fakeStore{}, time.Hour, 4)
	s.Register("feed-a", true, time.Minute)

	for i := 0; i < maxConsecutiveFailures; i++ {
		s.runSync(context.Background(), "feed-a")
	}

	status := s.Status()
	assert.False(t, status["feed-a"].Healthy)
	assert.Equal(t, maxConsecutiveFailures, status["feed-a"].ConsecutiveFail)
}

func TestSchedulerQuiesceWaitsForInFlightSync(t *testing.T) {
	p := newFakeProvider("feed-a")
	reg := &fakeRegistry{providers: map[string]provider.Provider{"feed-a": p}}
	s := New(reg, &fakeStore{}, 5*time.Millisecond, 4)
	s.Register("feed-a", true, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop()

	require.NoError(t, s.Trigger("feed-a"))
	require.Eventually(t, func() bool { return len(p.calls) >= 1 }, time.Second, 5*time.Millisecond)

	quiesced := make(chan error, 1)
	go func() { quiesced <- s.Quiesce(context.Background(), "feed-a") }()

	select {
	case <-quiesced:
		t.Fatal("Quiesce returned before the in-flight sync finished")
	case <-time.After(30 * time.Millisecond):
	}

	p.release()
	select {
	case err := <-quiesced:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Quiesce never returned after sync finished")
	}
}

func TestSchedulerQuiesceUnknownProviderIsNoop(t *testing.T) {
	s := New(&fakeRegistry{providers: map[string]provider.Provider{}}, &fakeStore{}, time.Second, 1)
	assert.NoError(t, s.Quiesce(context.Background(), "ghost"))
}

func TestSchedulerQuiesceRespectsContextCancellation(t *testing.T) {
	p := newFakeProvider("feed-a")
	reg := &fakeRegistry{providers: map[string]provider.Provider{"feed-a": p}}
	s := New(reg, &fakeStore{}, 5*time.Millisecond, 4)
	s.Register("feed-a", true, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer func() {
		p.release()
		s.Stop()
	}()

	require.NoError(t, s.Trigger("feed-a"))
	require.Eventually(t, func() bool { return len(p.calls) >= 1 }, time.Second, 5*time.Millisecond)

	quiesceCtx, quiesceCancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer quiesceCancel()
	err := s.Quiesce(quiesceCtx, "feed-a")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSchedulerInFlightCeiling(t *testing.T) {
	a := newFakeProvider("a")
	b := newFakeProvider("b")
	reg := &fakeRegistry{providers: map[string]provider.Provider{"a": a, "b": b}}
	s := New(reg, &fakeStore{}, 5*time.Millisecond, 1) // ceiling of 1
	s.Register("a", true, time.Hour)
	s.Register("b", true, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer func() {
		a.release()
		b.release()
		s.Stop()
	}()

	require.NoError(t, s.Trigger("a"))
	require.NoError(t, s.Trigger("b"))

	require.Eventually(t, func() bool { return len(a.calls)+len(b.calls) >= 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	// With the ceiling at 1, whichever provider grabbed the slot blocks
	// the other from starting.
	assert.Equal(t, 1, len(a.calls)+len(b.calls))
}
