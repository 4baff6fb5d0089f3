package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrNoOpRequest rejects a zero-amount settlement before any lookup.
	ErrNoOpRequest = errors.New("ledger: zero amount settlement")
	// ErrInvalidEvent reports event metadata that fails routing
	// preconditions.
	ErrInvalidEvent = errors.New("ledger: invalid event metadata")
	// ErrUserNotFound reports a settlement or query against an unknown
	// user. Wallets are created lazily on first earn, so this fires for
	// spends and reads only.
	ErrUserNotFound = errors.New("ledger: user not found")
	// ErrInsufficientBalance matches any rejected spend; the concrete
	// error is an *InsufficientBalanceError carrying the shortfall.
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")
	// ErrStorageConflict reports a transient storage failure. Callers
	// retry with the same interaction id; idempotency makes that safe.
	ErrStorageConflict = errors.New("ledger: storage conflict")

	// ErrWalletNotFound is returned by stores for a user with no wallet.
	ErrWalletNotFound = errors.New("ledger: wallet not found")
	// ErrRecordNotFound is returned by stores for a missing audit record.
	ErrRecordNotFound = errors.New("ledger: audit record not found")
	// ErrDuplicateRecord is returned by stores when a commit collides with
	// an existing idempotency key.
	ErrDuplicateRecord = errors.New("ledger: duplicate audit record")
)

// InsufficientBalanceError reports a spend that exceeds the applicable
// pools. Nothing is mutated; the caller surfaces the exact shortfall.
type InsufficientBalanceError struct {
	Requested int64
	Available int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("ledger: insufficient balance: requested %d, available %d (short %d)",
		e.Requested, e.Available, e.Shortfall())
}

// Shortfall is the exact number of points missing.
func (e *InsufficientBalanceError) Shortfall() int64 {
	return e.Requested - e.Available
}

// Is lets errors.Is(err, ErrInsufficientBalance) match.
func (e *InsufficientBalanceError) Is(target error) bool {
	return target == ErrInsufficientBalance
}
