package quota

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/reelrank/reelrank/internal/clock"
	"github.com/reelrank/reelrank/internal/metrics"
)

// Tracker applies Policy to a Store. Every read-modify-write for a key runs
// under that key's lock; different keys never contend. Store failures are
// logged and the tracker fails open, the same way a missing record would.
type Tracker struct {
	store  Store
	policy Policy
	clock  clock.Clock
	locks  *keyLocks
}

func NewTracker(store Store, policy Policy, clk clock.Clock) *Tracker {
	return &Tracker{
		store:  store,
		policy: policy,
		clock:  clk,
		locks:  newKeyLocks(),
	}
}

func (t *Tracker) Policy() Policy {
	return t.policy
}

// Acquire locks key and resolves its current entry, starting a new cycle
// when the stored one is absent or over. The caller must Release the lease.
func (t *Tracker) Acquire(ctx context.Context, key string) (*Lease, error) {
	unlock, err := t.locks.lock(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("waiting for quota lock: %w", err)
	}
	entry, persist := t.resolve(ctx, key)
	return &Lease{
		tracker: t,
		key:     key,
		entry:   entry,
		persist: persist,
		unlock:  unlock,
	}, nil
}

// resolve reports persist=false when the stored state could not be read;
// such a lease serves a fresh cycle but never writes it back, so a single
// failed read cannot wipe the real record.
func (t *Tracker) resolve(ctx context.Context, key string) (Entry, bool) {
	now := t.clock.Now()

	stored, err := t.store.Get(ctx, key)
	if err != nil {
		metrics.QuotaStoreErrorsTotal.WithLabelValues("get").Inc()
		slog.Warn("quota: store read failed, serving fresh cycle without persisting", "error", err)
		return t.policy.Fresh(now), false
	}
	if stored != nil && !t.policy.Expired(stored.Record, now) {
		return *stored, true
	}

	fresh := t.policy.Fresh(now)
	t.put(ctx, key, fresh)
	return fresh, true
}

func (t *Tracker) put(ctx context.Context, key string, e Entry) {
	if err := t.store.Put(ctx, key, e); err != nil {
		metrics.QuotaStoreErrorsTotal.WithLabelValues("put").Inc()
		slog.Warn("quota: store write failed", "error", err)
	}
}

// Usage returns the key's snapshot without consuming anything.
func (t *Tracker) Usage(ctx context.Context, key string) (Usage, error) {
	lease, err := t.Acquire(ctx, key)
	if err != nil {
		return Usage{}, err
	}
	defer lease.Release()
	return lease.Usage(), nil
}

// GrantBonus applies the once-per-cycle email bonus to key.
func (t *Tracker) GrantBonus(ctx context.Context, key string) (Usage, error) {
	lease, err := t.Acquire(ctx, key)
	if err != nil {
		return Usage{}, err
	}
	defer lease.Release()
	return lease.GrantBonus(ctx)
}

// Lease is exclusive access to one key's entry.
type Lease struct {
	tracker *Tracker
	key     string
	entry   Entry
	persist bool
	unlock  func()
}

func (l *Lease) Entry() Entry {
	return l.entry
}

func (l *Lease) Usage() Usage {
	return l.tracker.policy.Usage(l.entry)
}

// Allowed reports whether another generation may run in this cycle.
func (l *Lease) Allowed() bool {
	return l.tracker.policy.Authorize(l.entry.Record)
}

// Consume records one successful generation and persists it. The returned
// snapshot's Remaining is zero when this call used the last generation.
func (l *Lease) Consume(ctx context.Context) Usage {
	l.entry.Record = l.tracker.policy.Consume(l.entry.Record)
	l.save(ctx)
	return l.Usage()
}

// GrantBonus returns ErrBonusAlreadyClaimed, leaving state untouched, when
// the bonus was already granted in this cycle.
func (l *Lease) GrantBonus(ctx context.Context) (Usage, error) {
	rec, bonus, err := l.tracker.policy.GrantBonus(l.entry.Record, l.entry.Bonus)
	if err != nil {
		return l.Usage(), err
	}
	l.entry = Entry{Record: rec, Bonus: bonus}
	l.save(ctx)
	return l.Usage(), nil
}

func (l *Lease) save(ctx context.Context) {
	if l.persist {
		l.tracker.put(ctx, l.key, l.entry)
	}
}

func (l *Lease) Release() {
	l.unlock()
}
