// Package poller drives sync rounds on an interval for long-running processes.
//
// A round runs at start and then every interval, offset by a random jitter so that
// several mirrors of the same space do not hit the upstream API in lockstep. A failed
// round is logged and recorded in the sync status; the next attempt is the next tick.
package poller

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	mirrorsync "github.com/stacklok/content-mirror/internal/sync"
	"github.com/stacklok/content-mirror/internal/sync/state"
)

// jitterFraction is the maximum offset applied to the interval, as a fraction of it
const jitterFraction = 10

//go:generate mockgen -destination=mocks/mock_syncer.go -package=mocks -source=poller.go Syncer

// Syncer runs one sync round
type Syncer interface {
	Sync(ctx context.Context) (*mirrorsync.Result, error)
}

// Poller runs sync rounds periodically
type Poller struct {
	syncer     Syncer
	interval   time.Duration
	stateStore state.Store

	mu         sync.Mutex
	cancelFunc context.CancelFunc
	done       chan struct{}
}

// Option configures a Poller
type Option func(*Poller)

// WithStateStore records the phase and outcome of every round
func WithStateStore(s state.Store) Option {
	return func(p *Poller) {
		p.stateStore = s
	}
}

// New creates a poller running a round every interval
func New(syncer Syncer, interval time.Duration, opts ...Option) *Poller {
	p := &Poller{
		syncer:   syncer,
		interval: interval,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// nextInterval returns the interval with a random offset of up to ±10%
func (p *Poller) nextInterval() time.Duration {
	jitter := p.interval / jitterFraction
	if jitter <= 0 {
		return p.interval
	}
	//nolint:gosec // G404: Non-cryptographic randomness is sufficient for polling jitter
	offset := time.Duration(rand.Int64N(int64(2*jitter))) - jitter
	return p.interval + offset
}

// Start runs the first round immediately and then one per interval.
// It blocks until ctx is cancelled or Stop is called.
func (p *Poller) Start(ctx context.Context) error {
	if p.interval <= 0 {
		return fmt.Errorf("sync interval must be positive, got %s", p.interval)
	}

	pollCtx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	if p.cancelFunc != nil {
		p.mu.Unlock()
		cancel()
		return fmt.Errorf("poller already started")
	}
	p.cancelFunc = cancel
	p.mu.Unlock()

	defer func() {
		cancel()
		close(p.done)
		slog.Info("Sync poller shutting down")
	}()

	interval := p.nextInterval()
	slog.Info("Starting sync poller", "base_interval", p.interval, "actual_interval", interval)

	p.runRound(pollCtx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.runRound(pollCtx)
			ticker.Reset(p.nextInterval())
		case <-pollCtx.Done():
			return nil
		}
	}
}

// Stop cancels the loop and waits for the round in progress to finish.
// Calling Stop before Start is a no-op.
func (p *Poller) Stop() error {
	p.mu.Lock()
	cancel := p.cancelFunc
	p.mu.Unlock()

	if cancel == nil {
		return nil
	}
	slog.Info("Stopping sync poller")
	cancel()
	<-p.done
	return nil
}

func (p *Poller) runRound(ctx context.Context) {
	p.updateStatus(ctx, func(s *state.Status) {
		now := time.Now()
		s.Phase = state.PhaseSyncing
		s.Message = "Sync in progress"
		s.LastAttempt = &now
		s.AttemptCount++
	})

	result, err := p.syncer.Sync(ctx)
	if err != nil {
		// the coordinator already logged the failure
		p.updateStatus(ctx, func(s *state.Status) {
			s.Phase = state.PhaseFailed
			s.Message = err.Error()
		})
		return
	}

	p.updateStatus(ctx, func(s *state.Status) {
		now := time.Now()
		s.Phase = state.PhaseComplete
		s.AttemptCount = 0
		s.LastSyncTime = &now
		s.Message = "Sync completed successfully"
		if result.NoOp {
			s.Message = "No changes since last sync"
		}
	})
}

func (p *Poller) updateStatus(ctx context.Context, mutate func(*state.Status)) {
	if p.stateStore == nil {
		return
	}
	// a stopped poller still records how its last round ended
	_, err := p.stateStore.UpdateAtomically(context.WithoutCancel(ctx), func(s *state.Status) bool {
		mutate(s)
		return true
	})
	if err != nil {
		slog.Error("Error updating sync status", "error", err)
	}
}
