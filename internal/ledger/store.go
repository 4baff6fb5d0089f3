package ledger

// Store persists wallets, audit records and routing preferences. Commit is
// the only entry point that mutates settlement state: the wallet upsert and
// the record append succeed together or not at all.
//
// Stores return snapshot copies; callers never share mutable state with the
// store.
type Store interface {
	// Wallet returns the user's wallet. ErrWalletNotFound when the user
	// has never earned.
	Wallet(userID string) (Wallet, error)

	// FindRecord returns the audit record for the idempotency key
	// (userID, interactionID, direction). ErrRecordNotFound when absent.
	FindRecord(userID, interactionID string, direction Direction) (Record, error)

	// HasInteraction reports whether any direction of the interaction has
	// already settled for the user.
	HasInteraction(userID, interactionID string) (bool, error)

	// Commit atomically upserts the wallet and appends the record.
	// ErrDuplicateRecord when the idempotency key already exists,
	// ErrStorageConflict on transient failure.
	Commit(w Wallet, rec Record) error

	// Records returns the user's audit records, newest first. limit <= 0
	// means no bound.
	Records(userID string, limit int) ([]Record, error)

	// PreferredOrg returns the user's routing preference, "" when unset.
	PreferredOrg(userID string) (string, error)

	// SetPreferredOrg stores the preference; an empty org clears it.
	SetPreferredOrg(userID, org string) error

	// Totals aggregates the audit log.
	Totals() (Totals, error)

	Close() error
}
