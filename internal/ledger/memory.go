package ledger

import "sync"

// MemoryStore is an in-process Store used in tests and when the daemon runs
// without a database path. Same semantics as the SQLite store, nothing
// survives a restart.
type MemoryStore struct {
	mu      sync.RWMutex
	wallets map[string]Wallet
	records []Record
	index   map[string]int // idempotency key -> offset into records
	prefs   map[string]string
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		wallets: make(map[string]Wallet),
		index:   make(map[string]int),
		prefs:   make(map[string]string),
	}
}

func recordKey(userID, interactionID string, direction Direction) string {
	// \x00 cannot appear in ids coming off the wire, so the compound key
	// cannot collide across fields.
	return userID + "\x00" + interactionID + "\x00" + string(direction)
}

func (s *MemoryStore) Wallet(userID string) (Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.wallets[userID]
	if !ok {
		return Wallet{}, ErrWalletNotFound
	}
	return w.Clone(), nil
}

func (s *MemoryStore) FindRecord(userID, interactionID string, direction Direction) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	offset, ok := s.index[recordKey(userID, interactionID, direction)]
	if !ok {
		return Record{}, ErrRecordNotFound
	}
	return s.records[offset], nil
}

func (s *MemoryStore) HasInteraction(userID, interactionID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.index[recordKey(userID, interactionID, DirectionEarn)]; ok {
		return true, nil
	}
	if _, ok := s.index[recordKey(userID, interactionID, DirectionSpend)]; ok {
		return true, nil
	}
	return false, nil
}

func (s *MemoryStore) Commit(w Wallet, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := recordKey(rec.UserID, rec.InteractionID, rec.Direction)
	if _, ok := s.index[key]; ok {
		return ErrDuplicateRecord
	}

	s.wallets[w.UserID] = w.Clone()
	s.index[key] = len(s.records)
	s.records = append(s.records, rec)
	return nil
}

func (s *MemoryStore) Records(userID string, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Record
	for i := len(s.records) - 1; i >= 0; i-- {
		if s.records[i].UserID != userID {
			continue
		}
		out = append(out, s.records[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) PreferredOrg(userID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prefs[userID], nil
}

func (s *MemoryStore) SetPreferredOrg(userID, org string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if org == "" {
		delete(s.prefs, userID)
		return nil
	}
	s.prefs[userID] = org
	return nil
}

func (s *MemoryStore) Totals() (Totals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var t Totals
	for _, rec := range s.records {
		switch rec.Direction {
		case DirectionEarn:
			t.PointsDistributed += rec.Amount
		case DirectionSpend:
			t.PointsSpent += -rec.Amount
		}
	}
	return t, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
