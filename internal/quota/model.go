package quota

import "time"

// Record is the generation allowance for one client key within a cycle.
type Record struct {
	Remaining  int       `json:"remaining"`
	CycleStart time.Time `json:"cycle_start"`
}

// BonusGrant remembers the cycle in which the email bonus was last granted.
// A nil GrantedCycleStart means no bonus in any retained cycle.
type BonusGrant struct {
	GrantedCycleStart *time.Time `json:"granted_cycle_start"`
}

// Entry is everything persisted for a key.
type Entry struct {
	Record Record
	Bonus  BonusGrant
}

// Usage is the client-facing quota snapshot.
type Usage struct {
	Remaining    int       `json:"remaining"`
	Max          int       `json:"max"`
	ResetAt      time.Time `json:"resetAt"`
	BonusClaimed bool      `json:"bonusClaimed"`
	Unlimited    bool      `json:"unlimited,omitempty"`
}
