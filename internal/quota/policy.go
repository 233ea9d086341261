package quota

import (
	"errors"
	"time"
)

var (
	ErrQuotaExceeded       = errors.New("daily generation limit reached")
	ErrBonusAlreadyClaimed = errors.New("bonus already claimed for this cycle")
)

// Policy holds the numeric quota rules. Its methods are pure: they never
// touch a store or read the clock. An Unlimited policy authorizes every
// generation and never spends the allowance.
type Policy struct {
	BaseMax     int
	BonusAmount int
	Cycle       time.Duration
	Unlimited   bool
}

func DefaultPolicy() Policy {
	return Policy{
		BaseMax:     5,
		BonusAmount: 5,
		Cycle:       24 * time.Hour,
	}
}

// Cap is the most generations a key can hold in one cycle.
func (p Policy) Cap() int {
	return p.BaseMax + p.BonusAmount
}

// Fresh returns a newly initialized entry whose cycle starts at now,
// truncated to the millisecond resolution stores persist.
func (p Policy) Fresh(now time.Time) Entry {
	return Entry{
		Record: Record{Remaining: p.BaseMax, CycleStart: now.Truncate(time.Millisecond)},
	}
}

func (p Policy) ResetAt(rec Record) time.Time {
	return rec.CycleStart.Add(p.Cycle)
}

// Expired reports whether rec's cycle is over at now.
func (p Policy) Expired(rec Record, now time.Time) bool {
	return !now.Before(p.ResetAt(rec))
}

// BonusGranted reports whether bonus was granted in rec's cycle.
func (p Policy) BonusGranted(rec Record, bonus BonusGrant) bool {
	return bonus.GrantedCycleStart != nil && bonus.GrantedCycleStart.Equal(rec.CycleStart)
}

func (p Policy) CurrentMax(rec Record, bonus BonusGrant) int {
	if p.BonusGranted(rec, bonus) {
		return p.Cap()
	}
	return p.BaseMax
}

func (p Policy) Authorize(rec Record) bool {
	return p.Unlimited || rec.Remaining > 0
}

// Consume spends one generation, flooring at zero.
func (p Policy) Consume(rec Record) Record {
	if p.Unlimited {
		return rec
	}
	rec.Remaining = max(0, rec.Remaining-1)
	return rec
}

// GrantBonus tops rec up once per cycle.
func (p Policy) GrantBonus(rec Record, bonus BonusGrant) (Record, BonusGrant, error) {
	if p.BonusGranted(rec, bonus) {
		return rec, bonus, ErrBonusAlreadyClaimed
	}
	rec.Remaining = min(rec.Remaining+p.BonusAmount, p.Cap())
	start := rec.CycleStart
	return rec, BonusGrant{GrantedCycleStart: &start}, nil
}

func (p Policy) Usage(e Entry) Usage {
	return Usage{
		Remaining:    e.Record.Remaining,
		Max:          p.CurrentMax(e.Record, e.Bonus),
		ResetAt:      p.ResetAt(e.Record),
		BonusClaimed: p.BonusGranted(e.Record, e.Bonus),
		Unlimited:    p.Unlimited,
	}
}

// valid rejects persisted entries that break the record invariants. A
// count above the base allowance is only legal once the bonus is granted.
func (p Policy) valid(e Entry) bool {
	return !e.Record.CycleStart.IsZero() &&
		e.Record.Remaining >= 0 &&
		e.Record.Remaining <= p.CurrentMax(e.Record, e.Bonus)
}
