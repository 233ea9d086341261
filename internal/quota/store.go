package quota

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/reelrank/reelrank/internal/clock"
	"github.com/reelrank/reelrank/internal/kv"
)

// Store persists quota entries per client key. Get returns nil, nil for a
// key that was never initialized or whose stored state is unreadable.
type Store interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Put(ctx context.Context, key string, e Entry) error
	Delete(ctx context.Context, key string) error
}

// MemoryStore is a process-wide table with no eviction. Restarting the
// process, or running more than one, resets or fragments every client's
// quota.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (s *MemoryStore) Put(_ context.Context, key string, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = e
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// Keys configures the slot names a KVStore writes under.
type Keys struct {
	Usage string
	Bonus string
}

type usageBlob struct {
	Count     int   `json:"count"`
	LastReset int64 `json:"lastReset"`
}

type bonusBlob struct {
	GrantedInCycle *int64 `json:"grantedInCycleTimestamp"`
}

// KVStore keeps the usage and bonus slots as two JSON blobs on a kv.Store,
// timestamps in Unix milliseconds. Blobs expire one cycle after they start.
type KVStore struct {
	kv     kv.Store
	keys   Keys
	policy Policy
	clock  clock.Clock
}

func NewKVStore(store kv.Store, keys Keys, policy Policy, clk clock.Clock) *KVStore {
	return &KVStore{kv: store, keys: keys, policy: policy, clock: clk}
}

func (s *KVStore) usageKey(key string) string { return s.keys.Usage + ":" + key }
func (s *KVStore) bonusKey(key string) string { return s.keys.Bonus + ":" + key }

func (s *KVStore) Get(ctx context.Context, key string) (*Entry, error) {
	raw, err := s.kv.Get(ctx, s.usageKey(key))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading usage slot: %w", err)
	}

	var usage usageBlob
	if err := json.Unmarshal(raw, &usage); err != nil || usage.LastReset <= 0 {
		slog.Warn("quota: discarding unreadable usage slot", "key", s.usageKey(key))
		_ = s.Delete(ctx, key)
		return nil, nil
	}

	e := Entry{
		Record: Record{
			Remaining:  usage.Count,
			CycleStart: time.UnixMilli(usage.LastReset).UTC(),
		},
	}
	raw, err = s.kv.Get(ctx, s.bonusKey(key))
	switch {
	case errors.Is(err, kv.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("reading bonus slot: %w", err)
	default:
		var bonus bonusBlob
		if err := json.Unmarshal(raw, &bonus); err != nil {
			slog.Warn("quota: ignoring unreadable bonus slot", "key", s.bonusKey(key))
		} else if bonus.GrantedInCycle != nil {
			granted := time.UnixMilli(*bonus.GrantedInCycle).UTC()
			e.Bonus.GrantedCycleStart = &granted
		}
	}

	if !s.policy.valid(e) {
		slog.Warn("quota: discarding out-of-range usage slot", "key", s.usageKey(key), "count", usage.Count)
		_ = s.Delete(ctx, key)
		return nil, nil
	}

	return &e, nil
}

func (s *KVStore) Put(ctx context.Context, key string, e Entry) error {
	ttl := s.policy.ResetAt(e.Record).Sub(s.clock.Now())
	if ttl < time.Second {
		ttl = time.Second
	}

	usage, err := json.Marshal(usageBlob{
		Count:     e.Record.Remaining,
		LastReset: e.Record.CycleStart.UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("marshaling usage slot: %w", err)
	}

	var bonus bonusBlob
	if e.Bonus.GrantedCycleStart != nil {
		ms := e.Bonus.GrantedCycleStart.UnixMilli()
		bonus.GrantedInCycle = &ms
	}
	bonusRaw, err := json.Marshal(bonus)
	if err != nil {
		return fmt.Errorf("marshaling bonus slot: %w", err)
	}

	if err := s.kv.Set(ctx, s.bonusKey(key), bonusRaw, ttl); err != nil {
		return err
	}
	return s.kv.Set(ctx, s.usageKey(key), usage, ttl)
}

func (s *KVStore) Delete(ctx context.Context, key string) error {
	if err := s.kv.Delete(ctx, s.usageKey(key)); err != nil {
		return err
	}
	return s.kv.Delete(ctx, s.bonusKey(key))
}
