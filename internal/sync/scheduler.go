// Package sync drives provider synchronization: one background goroutine
// ticking per-provider cadences, single-flight per provider, a global
// in-flight ceiling, manual-trigger coalescing, and rate-limit
// pass-through.
package sync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/scryforge/hub/internal/model"
	"github.com/scryforge/hub/internal/provider"
	"github.com/worldline-go/types"
)

// maxBackoffFactor caps exponential backoff at 8x the configured
// interval. The factor doubles per failure and resets on success.
const maxBackoffFactor = 8

// maxConsecutiveFailures is the failure count at which a provider flips to
// Unhealthy in sync status without being evicted from the registry.
const maxConsecutiveFailures = 5

// Registry is the subset of internal/registry.Registry the scheduler
// needs: provider lookup only, never mutation. The scheduler holds a
// read-only handle to the registry; the registry never references the
// scheduler directly.
type Registry interface {
	Get(id string) (provider.Provider, bool)
	IDs() []string
}

// Store is the subset of internal/store.Store the scheduler writes to
// after each sync cycle.
type Store interface {
	UpsertStreams(ctx context.Context, streams []model.Stream) error
	UpsertItems(ctx context.Context, items []model.Item) error
	SetSyncState(ctx context.Context, state model.ProviderSyncState) error
}

// providerState is the scheduler's private per-provider record. External
// observers only ever see a copy via Status()/snapshot, never this struct
// itself.
type providerState struct {
	enabled  bool
	interval time.Duration

	isSyncing bool
	triggered bool // manual trigger pending for the next tick

	lastSync    time.Time
	hasLastSync bool
	lastSuccess time.Time
	hasSuccess  bool
	lastError   string

	backoffFactor   int
	consecutiveFail int
	healthy         bool
	itemsSynced     int64
	nextSync        time.Time

	cond *sync.Cond // signaled when isSyncing flips to false, for Quiesce
}

// Scheduler owns one ticker-driven goroutine and the per-provider state
// map described above.
type Scheduler struct {
	mu     sync.Mutex
	states map[string]*providerState

	registry Registry
	store    Store

	tickInterval time.Duration
	maxInFlight  int
	inFlightSem  chan struct{}

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Scheduler. tickInterval governs how often the
// scheduler wheel wakes up to evaluate candidates (independent of any
// individual provider's own sync interval); maxInFlight bounds total
// concurrent syncs across every provider.
func New(reg Registry, st Store, tickInterval time.Duration, maxInFlight int) *Scheduler {
	if tickInterval <= 0 {
		tickInterval = time.Second
	}
	if maxInFlight <= 0 {
		maxInFlight = 1
	}
	return &Scheduler{
		states:       make(map[string]*providerState),
		registry:     reg,
		store:        st,
		tickInterval: tickInterval,
		maxInFlight:  maxInFlight,
		inFlightSem:  make(chan struct{}, maxInFlight),
	}
}

// Register adds (or resets) a provider's scheduling state. Safe to call
// before or after Start.
func (s *Scheduler) Register(providerID string, enabled bool, interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[providerID]
	if !ok {
		st = &providerState{cond: sync.NewCond(&s.mu)}
		s.states[providerID] = st
	}
	st.enabled = enabled
	st.interval = interval
	st.backoffFactor = 1
	st.healthy = true
	if enabled {
		st.nextSync = time.Now().Add(interval)
	}
}

// Start launches the ticker goroutine. Idempotent: a second Start call
// while already running is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(runCtx)
}

// Stop cancels the context shared by the ticker goroutine and every
// in-flight provider sync, then waits for all of them to return. Callers
// that want in-flight syncs to finish uncancelled first use Quiesce
// per-provider, as internal/hub does with a grace-timeout context.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		s.wg.Wait()
	}
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick selects providers that are enabled, not already syncing, and due
// (past their next-sync time), then dispatches a sync goroutine for each;
// a manual trigger short-circuits the interval check.
func (s *Scheduler) tick(ctx context.Context) {
	now := time.Now()

	var candidates []string
	s.mu.Lock()
	for id, st := range s.states {
		if !st.enabled || st.isSyncing {
			continue
		}
		if st.triggered || now.After(st.nextSync) || now.Equal(st.nextSync) {
			candidates = append(candidates, id)
		}
	}
	s.mu.Unlock()

	for _, id := range candidates {
		select {
		case s.inFlightSem <- struct{}{}:
		default:
			// Global ceiling reached; this candidate is deferred to the
			// next tick.
			continue
		}

		s.mu.Lock()
		st, ok := s.states[id]
		if !ok || st.isSyncing {
			s.mu.Unlock()
			<-s.inFlightSem
			continue
		}
		st.isSyncing = true
		st.triggered = false
		s.mu.Unlock()

		s.wg.Add(1)
		go func(id string) {
			defer s.wg.Done()
			defer func() { <-s.inFlightSem }()
			s.runSync(ctx, id)
		}(id)
	}
}

// runSync invokes provider.Sync, merges the result into the store, and
// updates the per-provider state with backoff/rate-limit handling. It
// never holds s.mu across the provider call or the store transactions;
// every suspension point here runs outside the lock.
func (s *Scheduler) runSync(ctx context.Context, id string) {
	p, ok := s.registry.Get(id)
	if !ok {
		s.finishSync(id, model.SyncResult{}, fmt.Errorf("sync: provider %q no longer registered", id))
		return
	}

	result, err := p.Sync(ctx)

	if err == nil && len(result.Streams) > 0 {
		if uerr := s.store.UpsertStreams(ctx, result.Streams); uerr != nil {
			err = fmt.Errorf("sync: upsert streams for %q: %w", id, uerr)
		}
	}
	if err == nil && len(result.Items) > 0 {
		if uerr := s.store.UpsertItems(ctx, result.Items); uerr != nil {
			err = fmt.Errorf("sync: upsert items for %q: %w", id, uerr)
		}
	}

	s.finishSync(id, result, err)
}

func (s *Scheduler) finishSync(id string, result model.SyncResult, err error) {
	s.mu.Lock()
	st, ok := s.states[id]
	if !ok {
		s.mu.Unlock()
		return
	}

	now := time.Now()
	st.lastSync = now
	st.hasLastSync = true
	st.itemsSynced += int64(result.ItemsAdded + result.ItemsUpdated)

	var rateLimited *provider.Error
	if perr, ok := asProviderError(err); ok && perr.Kind == provider.ErrKindRateLimited {
		rateLimited = perr
	}

	switch {
	case err != nil:
		st.lastError = err.Error()
		st.consecutiveFail++
		st.healthy = st.consecutiveFail < maxConsecutiveFailures
		if rateLimited != nil {
			st.nextSync = now.Add(time.Duration(rateLimited.RetryAfter) * time.Second)
		} else {
			if st.backoffFactor < maxBackoffFactor {
				st.backoffFactor *= 2
				if st.backoffFactor > maxBackoffFactor {
					st.backoffFactor = maxBackoffFactor
				}
			}
			st.nextSync = now.Add(st.interval * time.Duration(st.backoffFactor))
		}
	default:
		st.lastSuccess = now
		st.hasSuccess = true
		st.lastError = ""
		st.consecutiveFail = 0
		st.healthy = true
		st.backoffFactor = 1
		st.nextSync = now.Add(st.interval)
	}

	st.isSyncing = false
	st.cond.Broadcast()
	snapshot := snapshotLocked(id, st)
	s.mu.Unlock()

	if err != nil {
		slog.Warn("provider sync failed", "provider", id, "error", err)
	} else {
		slog.Info("provider sync completed", "provider", id, "items_added", result.ItemsAdded, "items_updated", result.ItemsUpdated)
	}

	if serr := s.store.SetSyncState(context.Background(), snapshot); serr != nil {
		slog.Warn("persist sync state failed", "provider", id, "error", serr)
	}
}

func asProviderError(err error) (*provider.Error, bool) {
	perr, ok := err.(*provider.Error)
	return perr, ok
}

// Trigger schedules providerID for the next tick. If a sync is already
// in flight for it, the trigger coalesces silently: no error, no extra
// cycle.
func (s *Scheduler) Trigger(providerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[providerID]
	if !ok {
		return fmt.Errorf("sync: unknown provider %q", providerID)
	}
	if st.isSyncing {
		return nil // coalesced
	}
	st.triggered = true
	return nil
}

// Status returns a snapshot of every tracked provider's sync state at
// the instant it is sampled. Each entry is consistent with itself, not
// necessarily with its neighbors.
func (s *Scheduler) Status() map[string]model.ProviderSyncState {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]model.ProviderSyncState, len(s.states))
	for id, st := range s.states {
		out[id] = snapshotLocked(id, st)
	}
	return out
}

// snapshotLocked must be called with s.mu held.
func snapshotLocked(id string, st *providerState) model.ProviderSyncState {
	snap := model.ProviderSyncState{
		ProviderID:      id,
		IsSyncing:       st.isSyncing,
		LastError:       st.lastError,
		ItemsSynced:     st.itemsSynced,
		ConsecutiveFail: st.consecutiveFail,
		Healthy:         st.healthy,
	}
	if st.hasLastSync {
		snap.LastSync = types.NewNull(types.NewTime(st.lastSync))
	}
	if st.hasSuccess {
		snap.LastSuccess = types.NewNull(types.NewTime(st.lastSuccess))
	}
	if !st.isSyncing && st.enabled {
		snap.NextSync = types.NewNull(types.NewTime(st.nextSync))
	}
	return snap
}

// Quiesce blocks until providerID has no sync in flight, or ctx is done.
// Implements internal/registry.Quiescer so register-replace and remove
// drain in-flight syncs before mutating the registry.
func (s *Scheduler) Quiesce(ctx context.Context, providerID string) error {
	s.mu.Lock()
	st, ok := s.states[providerID]
	if !ok {
		s.mu.Unlock()
		return nil
	}

	abandoned := false // guarded by s.mu
	done := make(chan struct{})
	go func() {
		s.mu.Lock()
		for st.isSyncing && !abandoned {
			st.cond.Wait()
		}
		s.mu.Unlock()
		close(done)
	}()
	s.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		// Wake the waiter so it doesn't block forever on cond.Wait once
		// Quiesce itself has given up.
		s.mu.Lock()
		abandoned = true
		st.cond.Broadcast()
		s.mu.Unlock()
		return ctx.Err()
	}
}
