package ledger

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/orbtap/orb-gateway/internal/routing"
)

// Engine turns settlement requests into exactly one balance mutation each.
// Requests for the same user serialize on a per-user lock so two racing
// retries cannot both pass the idempotency check; the store's unique index
// backs that up, and a lost commit race is resolved by returning the
// winner's result.
type Engine struct {
	store Store
	clock func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source used for record timestamps.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// NewEngine creates an engine over the given store.
func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		store: store,
		clock: time.Now,
		locks: make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) userLock(userID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()

	lock, ok := e.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[userID] = lock
	}
	return lock
}

// Settle applies one settlement request. Calling it again with the same
// user, interaction and direction returns the original result without
// re-applying. InsufficientBalance and NoOpRequest are final; a
// StorageConflict is retryable with the same interaction id.
func (e *Engine) Settle(req Request) (Result, error) {
	if req.Amount == 0 {
		return Result{}, fmt.Errorf("%w: interaction %q", ErrNoOpRequest, req.InteractionID)
	}
	direction := DirectionEarn
	if req.Amount < 0 {
		direction = DirectionSpend
	}

	lock := e.userLock(req.UserID)
	lock.Lock()
	defer lock.Unlock()

	// Safe retry: an existing record means this interaction already
	// settled. Return the original result unchanged.
	if rec, err := e.store.FindRecord(req.UserID, req.InteractionID, direction); err == nil {
		return resultFromRecord(rec), nil
	} else if !errors.Is(err, ErrRecordNotFound) {
		return Result{}, fmt.Errorf("%w: idempotency lookup: %v", ErrStorageConflict, err)
	}

	preferred, err := e.store.PreferredOrg(req.UserID)
	if err != nil {
		return Result{}, fmt.Errorf("%w: preference lookup: %v", ErrStorageConflict, err)
	}
	destination, err := routing.Route(req.Meta.HostOrgID, req.Meta.Volunteer, preferred)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}

	wallet, err := e.store.Wallet(req.UserID)
	if errors.Is(err, ErrWalletNotFound) {
		if direction == DirectionSpend {
			return Result{}, fmt.Errorf("%w: %q has no wallet to spend from", ErrUserNotFound, req.UserID)
		}
		wallet = NewWallet(req.UserID)
	} else if err != nil {
		return Result{}, fmt.Errorf("%w: wallet lookup: %v", ErrStorageConflict, err)
	}

	var universalDrawn int64
	switch direction {
	case DirectionEarn:
		wallet.Balances[destination] += req.Amount
		wallet.TotalEarned += req.Amount
	case DirectionSpend:
		universalDrawn, err = applySpend(&wallet, destination, -req.Amount)
		if err != nil {
			return Result{}, err
		}
	}
	pruneZeroBalances(&wallet)

	rec := Record{
		RecordID:       uuid.New().String(),
		UserID:         req.UserID,
		InteractionID:  req.InteractionID,
		Direction:      direction,
		Amount:         req.Amount,
		Destination:    destination,
		UniversalDrawn: universalDrawn,
		BalanceAfter:   wallet.Balance(destination),
		CreatedAt:      e.clock().UTC(),
	}

	if err := e.store.Commit(wallet, rec); err != nil {
		if errors.Is(err, ErrDuplicateRecord) {
			// Lost a commit race with a concurrent retry; the winner's
			// record is the authoritative result.
			winner, findErr := e.store.FindRecord(req.UserID, req.InteractionID, direction)
			if findErr != nil {
				return Result{}, fmt.Errorf("%w: duplicate resolution: %v", ErrStorageConflict, findErr)
			}
			return resultFromRecord(winner), nil
		}
		return Result{}, err
	}

	return resultFromRecord(rec), nil
}

// applySpend draws the destination pool first and covers any remainder from
// the universal pool. The wallet is mutated only when the pools cover the
// full amount; amount is positive here.
func applySpend(w *Wallet, destination string, amount int64) (int64, error) {
	locked := w.Balances[destination]
	available := locked
	if destination != routing.Universal {
		available += w.Balances[routing.Universal]
	}
	if available < amount {
		return 0, &InsufficientBalanceError{Requested: amount, Available: available}
	}

	fromLocked := locked
	if fromLocked > amount {
		fromLocked = amount
	}
	fromUniversal := amount - fromLocked

	w.Balances[destination] = locked - fromLocked
	if fromUniversal > 0 {
		w.Balances[routing.Universal] -= fromUniversal
	}
	w.TotalSpent += amount
	return fromUniversal, nil
}

// pruneZeroBalances removes pools left at zero rather than storing explicit
// zero entries.
func pruneZeroBalances(w *Wallet) {
	for key, balance := range w.Balances {
		if balance == 0 {
			delete(w.Balances, key)
		}
	}
}

func resultFromRecord(rec Record) Result {
	return Result{
		RecordID:       rec.RecordID,
		Direction:      rec.Direction,
		Destination:    rec.Destination,
		Amount:         rec.Amount,
		NewBalance:     rec.BalanceAfter,
		UniversalDrawn: rec.UniversalDrawn,
	}
}

// Wallet returns a snapshot of the user's wallet.
func (e *Engine) Wallet(userID string) (Wallet, error) {
	w, err := e.store.Wallet(userID)
	if errors.Is(err, ErrWalletNotFound) {
		return Wallet{}, fmt.Errorf("%w: %q", ErrUserNotFound, userID)
	}
	if err != nil {
		return Wallet{}, fmt.Errorf("%w: wallet lookup: %v", ErrStorageConflict, err)
	}
	return w, nil
}

// Balance returns one pool's balance for a known user; a pool the user
// never used reads 0.
func (e *Engine) Balance(userID, accountKey string) (int64, error) {
	w, err := e.Wallet(userID)
	if err != nil {
		return 0, err
	}
	return w.Balance(accountKey), nil
}

// AlreadySettled reports whether any direction of the interaction has
// settled. Read-only pre-check for UIs; Settle's own check stays
// authoritative.
func (e *Engine) AlreadySettled(userID, interactionID string) (bool, error) {
	settled, err := e.store.HasInteraction(userID, interactionID)
	if err != nil {
		return false, fmt.Errorf("%w: eligibility lookup: %v", ErrStorageConflict, err)
	}
	return settled, nil
}

// History returns the user's audit records, newest first.
func (e *Engine) History(userID string, limit int) ([]Record, error) {
	records, err := e.store.Records(userID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: history lookup: %v", ErrStorageConflict, err)
	}
	return records, nil
}

// Totals returns ledger-wide aggregates derived from the audit log.
func (e *Engine) Totals() (Totals, error) {
	totals, err := e.store.Totals()
	if err != nil {
		return Totals{}, fmt.Errorf("%w: totals lookup: %v", ErrStorageConflict, err)
	}
	return totals, nil
}

// PreferredOrg returns the user's stored routing preference.
func (e *Engine) PreferredOrg(userID string) (string, error) {
	org, err := e.store.PreferredOrg(userID)
	if err != nil {
		return "", fmt.Errorf("%w: preference lookup: %v", ErrStorageConflict, err)
	}
	return org, nil
}

// SetPreferredOrg stores the user's routing preference; empty clears it.
func (e *Engine) SetPreferredOrg(userID, org string) error {
	if err := e.store.SetPreferredOrg(userID, org); err != nil {
		return fmt.Errorf("%w: store preference: %v", ErrStorageConflict, err)
	}
	return nil
}
