package referral

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/reelrank/reelrank/internal/clock"
	"github.com/reelrank/reelrank/internal/kv"
	"github.com/reelrank/reelrank/internal/metrics"
)

const maxCodeLen = 128

var ErrOriginNotAllowed = errors.New("message origin not allowed")

// Keys names the durable record slot and the one-shot scratch slot.
type Keys struct {
	Record  string
	Scratch string
}

type Config struct {
	Keys           Keys
	TTL            time.Duration
	AllowedOrigins []string
}

// Tracker picks the active referral code per client. A URL code always
// wins and overwrites; a relayed message code is promoted only when no
// stored record is active; otherwise the stored record stands until it
// expires.
type Tracker struct {
	kv      kv.Store
	cfg     Config
	clock   clock.Clock
	origins map[string]struct{}
}

func NewTracker(store kv.Store, cfg Config, clk clock.Clock) *Tracker {
	origins := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		if o = normalizeOrigin(o); o != "" {
			origins[o] = struct{}{}
		}
	}
	return &Tracker{kv: store, cfg: cfg, clock: clk, origins: origins}
}

func (t *Tracker) recordKey(key string) string  { return t.cfg.Keys.Record + ":" + key }
func (t *Tracker) scratchKey(key string) string { return t.cfg.Keys.Scratch + ":" + key }

// Resolve runs on page load with the URL's referral parameter, which may
// be empty.
func (t *Tracker) Resolve(ctx context.Context, key, urlCode string) (Resolution, error) {
	now := t.clock.Now()

	if code := cleanCode(urlCode); code != "" {
		if err := t.write(ctx, key, code, now); err != nil {
			return Resolution{}, err
		}
		metrics.ReferralsAppliedTotal.WithLabelValues(string(SourceURL)).Inc()
		return Resolution{Code: code, Source: SourceURL, NewlyApplied: true}, nil
	}

	stored, err := t.active(ctx, key, now)
	if err != nil {
		return Resolution{}, err
	}
	if stored != "" {
		return Resolution{Code: stored, Source: SourceStored}, nil
	}

	raw, err := t.kv.Get(ctx, t.scratchKey(key))
	if errors.Is(err, kv.ErrNotFound) {
		return Resolution{}, nil
	}
	if err != nil {
		return Resolution{}, fmt.Errorf("reading referral scratch slot: %w", err)
	}

	code := cleanCode(string(raw))
	if code == "" {
		_ = t.kv.Delete(ctx, t.scratchKey(key))
		return Resolution{}, nil
	}
	if err := t.write(ctx, key, code, now); err != nil {
		return Resolution{}, err
	}
	if err := t.kv.Delete(ctx, t.scratchKey(key)); err != nil {
		slog.Warn("referral: clearing scratch slot", "error", err)
	}
	metrics.ReferralsAppliedTotal.WithLabelValues(string(SourceMessage)).Inc()
	return Resolution{Code: code, Source: SourceMessage, NewlyApplied: true}, nil
}

// Current returns the stored code if it is still active, purging it
// otherwise. It never promotes the scratch slot.
func (t *Tracker) Current(ctx context.Context, key string) (string, error) {
	return t.active(ctx, key, t.clock.Now())
}

// Deliver stores a relayed code in the scratch slot for the next Resolve.
// origin is the sender as reported by the browser.
func (t *Tracker) Deliver(ctx context.Context, key, origin string, msg Message) error {
	if _, ok := t.origins[normalizeOrigin(origin)]; !ok {
		metrics.ReferralMessagesRejectedTotal.Inc()
		slog.Warn("referral: blocked message from unexpected origin", "origin", origin)
		return ErrOriginNotAllowed
	}
	code := cleanCode(msg.Code)
	if code == "" {
		return nil
	}
	if err := t.kv.Set(ctx, t.scratchKey(key), []byte(code), 0); err != nil {
		return fmt.Errorf("writing referral scratch slot: %w", err)
	}
	return nil
}

func (t *Tracker) active(ctx context.Context, key string, now time.Time) (string, error) {
	raw, err := t.kv.Get(ctx, t.recordKey(key))
	if errors.Is(err, kv.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading referral record: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil || cleanCode(rec.Code) == "" {
		slog.Warn("referral: removing unreadable record", "key", t.recordKey(key))
		return "", t.purge(ctx, key)
	}
	if !rec.Active(now) {
		return "", t.purge(ctx, key)
	}
	return rec.Code, nil
}

func (t *Tracker) purge(ctx context.Context, key string) error {
	if err := t.kv.Delete(ctx, t.recordKey(key)); err != nil {
		return fmt.Errorf("removing referral record: %w", err)
	}
	return nil
}

func (t *Tracker) write(ctx context.Context, key, code string, now time.Time) error {
	data, err := json.Marshal(Record{Code: code, ExpiresAt: now.Add(t.cfg.TTL)})
	if err != nil {
		return fmt.Errorf("marshaling referral record: %w", err)
	}
	if err := t.kv.Set(ctx, t.recordKey(key), data, t.cfg.TTL); err != nil {
		return fmt.Errorf("writing referral record: %w", err)
	}
	return nil
}

func cleanCode(code string) string {
	code = strings.TrimSpace(code)
	if len(code) > maxCodeLen {
		return ""
	}
	return code
}

func normalizeOrigin(origin string) string {
	return strings.ToLower(strings.TrimRight(strings.TrimSpace(origin), "/"))
}
