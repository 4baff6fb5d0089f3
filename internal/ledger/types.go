// Package ledger applies settlement requests to wallets with exactly-once
// semantics. The engine owns all wallet mutation; storage is behind the
// Store interface so the same engine runs against SQLite or in memory.
package ledger

import "time"

// Direction of a settlement, derived from the sign of the amount.
type Direction string

const (
	DirectionEarn  Direction = "earn"
	DirectionSpend Direction = "spend"
)

// EventMeta carries the interaction context used for routing.
type EventMeta struct {
	HostOrgID   string `json:"host_org_id,omitempty"`
	Volunteer   bool   `json:"volunteer,omitempty"`
	RewardID    string `json:"reward_id,omitempty"`
	RewardTitle string `json:"reward_title,omitempty"`
}

// Request asks the engine to settle one physical interaction. The
// interaction id is the caller-supplied idempotency key; callers must retry
// a failed settle with the SAME interaction id.
type Request struct {
	UserID        string    `json:"user_id"`
	InteractionID string    `json:"interaction_id"`
	Amount        int64     `json:"amount"` // positive = earn, negative = spend
	Meta          EventMeta `json:"meta"`
}

// Result reports one applied or replayed settlement. A replay returns the
// original result bit for bit.
type Result struct {
	RecordID       string    `json:"record_id"`
	Direction      Direction `json:"direction"`
	Destination    string    `json:"destination"`
	Amount         int64     `json:"amount"`
	NewBalance     int64     `json:"new_balance"`     // destination pool after the mutation
	UniversalDrawn int64     `json:"universal_drawn"` // spend overflow covered by the universal pool
}

// Wallet holds one user's point balances, keyed by organization id or the
// universal sentinel. Mutated only by Engine.Settle; created lazily on the
// first earn and never deleted. Pools at zero are removed from the map.
type Wallet struct {
	UserID      string           `json:"user_id"`
	Balances    map[string]int64 `json:"balances"`
	TotalEarned int64            `json:"total_earned"`
	TotalSpent  int64            `json:"total_spent"`
}

// NewWallet returns an empty wallet for userID.
func NewWallet(userID string) Wallet {
	return Wallet{UserID: userID, Balances: make(map[string]int64)}
}

// Balance returns one pool's balance; a pool the user never used reads 0.
func (w Wallet) Balance(accountKey string) int64 {
	return w.Balances[accountKey]
}

// Clone returns a wallet that shares no state with the original.
func (w Wallet) Clone() Wallet {
	balances := make(map[string]int64, len(w.Balances))
	for key, balance := range w.Balances {
		balances[key] = balance
	}
	return Wallet{
		UserID:      w.UserID,
		Balances:    balances,
		TotalEarned: w.TotalEarned,
		TotalSpent:  w.TotalSpent,
	}
}

// Record is one append-only audit row, created exactly once per accepted
// settlement and immutable thereafter. (UserID, InteractionID, Direction)
// is unique: this is the idempotency guard. The record stores enough to
// reconstruct the original Result on replay.
type Record struct {
	RecordID       string    `json:"record_id"`
	UserID         string    `json:"user_id"`
	InteractionID  string    `json:"interaction_id"`
	Direction      Direction `json:"direction"`
	Amount         int64     `json:"amount"`
	Destination    string    `json:"destination"`
	UniversalDrawn int64     `json:"universal_drawn"`
	BalanceAfter   int64     `json:"balance_after"`
	CreatedAt      time.Time `json:"created_at"`
}

// Totals are ledger-wide aggregates derived from the audit log, never kept
// as separately mutated counters.
type Totals struct {
	PointsDistributed int64 `json:"points_distributed"`
	PointsSpent       int64 `json:"points_spent"`
}
