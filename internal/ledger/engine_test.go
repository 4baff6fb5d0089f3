package ledger

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/orbtap/orb-gateway/internal/routing"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func stepClock(start time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	current := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := current
		current = current.Add(step)
		return t
	}
}

func newTestEngine(t *testing.T) (*Engine, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	clock := stepClock(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC), time.Second)
	return NewEngine(store, WithClock(clock)), store
}

func earnRequest(userID, interactionID string, amount int64, hostOrg string) Request {
	return Request{
		UserID:        userID,
		InteractionID: interactionID,
		Amount:        amount,
		Meta:          EventMeta{HostOrgID: hostOrg},
	}
}

func TestSettleEarnCreatesWallet(t *testing.T) {
	e, _ := newTestEngine(t)

	res, err := e.Settle(earnRequest("u1", "evt_42", 50, "cafe1"))
	if err != nil {
		t.Fatalf("Settle failed: %v", err)
	}

	if res.Direction != DirectionEarn {
		t.Errorf("expected direction earn, got %s", res.Direction)
	}
	if res.Destination != "cafe1" {
		t.Errorf("expected destination cafe1, got %s", res.Destination)
	}
	if res.NewBalance != 50 {
		t.Errorf("expected new balance 50, got %d", res.NewBalance)
	}
	if res.UniversalDrawn != 0 {
		t.Errorf("expected no universal draw on earn, got %d", res.UniversalDrawn)
	}
	if res.RecordID == "" {
		t.Error("expected a record id")
	}

	w, err := e.Wallet("u1")
	if err != nil {
		t.Fatalf("Wallet failed: %v", err)
	}
	if w.Balances["cafe1"] != 50 {
		t.Errorf("expected balances[cafe1]=50, got %d", w.Balances["cafe1"])
	}
	if w.TotalEarned != 50 {
		t.Errorf("expected total earned 50, got %d", w.TotalEarned)
	}
	if w.TotalSpent != 0 {
		t.Errorf("expected total spent 0, got %d", w.TotalSpent)
	}

	records, err := e.History("u1", 0)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 audit record, got %d", len(records))
	}
	if records[0].Direction != DirectionEarn || records[0].Destination != "cafe1" {
		t.Errorf("unexpected record: %+v", records[0])
	}
}

func TestSettleReplayReturnsOriginalResult(t *testing.T) {
	e, _ := newTestEngine(t)
	req := earnRequest("u1", "evt_42", 50, "cafe1")

	first, err := e.Settle(req)
	if err != nil {
		t.Fatalf("first Settle failed: %v", err)
	}
	second, err := e.Settle(req)
	if err != nil {
		t.Fatalf("replayed Settle failed: %v", err)
	}

	if first != second {
		t.Errorf("replay result differs: first %+v, second %+v", first, second)
	}

	w, _ := e.Wallet("u1")
	if w.Balances["cafe1"] != 50 {
		t.Errorf("replay mutated balance: expected 50, got %d", w.Balances["cafe1"])
	}
	records, _ := e.History("u1", 0)
	if len(records) != 1 {
		t.Errorf("replay appended a record: expected 1, got %d", len(records))
	}
}

func TestSettleZeroAmountRejected(t *testing.T) {
	e, _ := newTestEngine(t)

	_, err := e.Settle(earnRequest("u1", "evt_0", 0, "cafe1"))
	if err == nil {
		t.Fatal("expected error for zero amount")
	}
	if !errors.Is(err, ErrNoOpRequest) {
		t.Errorf("expected ErrNoOpRequest, got %v", err)
	}

	// Rejected before any lookup, so no wallet appears
	if _, err := e.Wallet("u1"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("expected no wallet after rejected no-op, got %v", err)
	}
}

func TestSettleSpendWithoutWallet(t *testing.T) {
	e, _ := newTestEngine(t)

	_, err := e.Settle(earnRequest("ghost", "evt_1", -10, "cafe1"))
	if err == nil {
		t.Fatal("expected error for spend without wallet")
	}
	if !errors.Is(err, ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}

func TestSettleInsufficientBalanceShortfall(t *testing.T) {
	e, _ := newTestEngine(t)

	// u2 holds 30 locked to cafe1 and nothing universal
	if _, err := e.Settle(earnRequest("u2", "seed_1", 30, "cafe1")); err != nil {
		t.Fatalf("seed earn failed: %v", err)
	}

	_, err := e.Settle(earnRequest("u2", "spend_1", -50, "cafe1"))
	if err == nil {
		t.Fatal("expected insufficient balance error")
	}
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("expected ErrInsufficientBalance, got %v", err)
	}

	var insufficient *InsufficientBalanceError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected *InsufficientBalanceError, got %T", err)
	}
	if insufficient.Requested != 50 {
		t.Errorf("expected requested 50, got %d", insufficient.Requested)
	}
	if insufficient.Available != 30 {
		t.Errorf("expected available 30, got %d", insufficient.Available)
	}
	if insufficient.Shortfall() != 20 {
		t.Errorf("expected shortfall 20, got %d", insufficient.Shortfall())
	}

	// No mutation of any kind
	w, _ := e.Wallet("u2")
	if w.Balances["cafe1"] != 30 {
		t.Errorf("rejected spend mutated balance: expected 30, got %d", w.Balances["cafe1"])
	}
	if w.TotalSpent != 0 {
		t.Errorf("rejected spend updated total spent: got %d", w.TotalSpent)
	}
	records, _ := e.History("u2", 0)
	if len(records) != 1 {
		t.Errorf("rejected spend appended a record: expected 1, got %d", len(records))
	}
}

func TestSettleSpendSplitsAcrossPools(t *testing.T) {
	e, _ := newTestEngine(t)

	if _, err := e.Settle(earnRequest("u3", "seed_locked", 30, "cafe1")); err != nil {
		t.Fatalf("seed locked earn failed: %v", err)
	}
	// Volunteer earn with no host or preference lands in the universal pool
	if _, err := e.Settle(Request{UserID: "u3", InteractionID: "seed_universal", Amount: 40,
		Meta: EventMeta{Volunteer: true}}); err != nil {
		t.Fatalf("seed universal earn failed: %v", err)
	}

	res, err := e.Settle(earnRequest("u3", "spend_1", -50, "cafe1"))
	if err != nil {
		t.Fatalf("split spend failed: %v", err)
	}
	if res.Destination != "cafe1" {
		t.Errorf("expected destination cafe1, got %s", res.Destination)
	}
	if res.UniversalDrawn != 20 {
		t.Errorf("expected universal drawn 20, got %d", res.UniversalDrawn)
	}
	if res.NewBalance != 0 {
		t.Errorf("expected destination pool drained to 0, got %d", res.NewBalance)
	}

	w, _ := e.Wallet("u3")
	if _, ok := w.Balances["cafe1"]; ok {
		t.Error("expected drained cafe1 pool removed from balances")
	}
	if w.Balances[routing.Universal] != 20 {
		t.Errorf("expected universal balance 20, got %d", w.Balances[routing.Universal])
	}
	if w.TotalSpent != 50 {
		t.Errorf("expected total spent 50, got %d", w.TotalSpent)
	}

	rec, err := e.store.FindRecord("u3", "spend_1", DirectionSpend)
	if err != nil {
		t.Fatalf("FindRecord failed: %v", err)
	}
	if rec.UniversalDrawn != 20 {
		t.Errorf("expected split recorded in audit row, got %d", rec.UniversalDrawn)
	}
}

func TestSettleSpendFromUniversalPool(t *testing.T) {
	e, _ := newTestEngine(t)

	if _, err := e.Settle(Request{UserID: "u4", InteractionID: "seed", Amount: 100,
		Meta: EventMeta{Volunteer: true}}); err != nil {
		t.Fatalf("seed earn failed: %v", err)
	}

	res, err := e.Settle(Request{UserID: "u4", InteractionID: "spend", Amount: -60,
		Meta: EventMeta{Volunteer: true}})
	if err != nil {
		t.Fatalf("universal spend failed: %v", err)
	}
	if res.Destination != routing.Universal {
		t.Errorf("expected destination universal, got %s", res.Destination)
	}
	// The universal pool IS the destination, so nothing counts as overflow
	if res.UniversalDrawn != 0 {
		t.Errorf("expected universal drawn 0, got %d", res.UniversalDrawn)
	}
	if res.NewBalance != 40 {
		t.Errorf("expected balance 40, got %d", res.NewBalance)
	}
}

func TestRoutingLockBeatsPreference(t *testing.T) {
	e, _ := newTestEngine(t)

	if err := e.SetPreferredOrg("u5", "biz_B"); err != nil {
		t.Fatalf("SetPreferredOrg failed: %v", err)
	}

	res, err := e.Settle(earnRequest("u5", "evt_1", 25, "biz_A"))
	if err != nil {
		t.Fatalf("Settle failed: %v", err)
	}
	if res.Destination != "biz_A" {
		t.Errorf("business points must lock to biz_A, routed to %s", res.Destination)
	}

	w, _ := e.Wallet("u5")
	if w.Balances["biz_A"] != 25 {
		t.Errorf("expected balances[biz_A]=25, got %d", w.Balances["biz_A"])
	}
	if _, ok := w.Balances["biz_B"]; ok {
		t.Error("expected nothing routed to the preferred org")
	}
	if _, ok := w.Balances[routing.Universal]; ok {
		t.Error("expected nothing routed to the universal pool")
	}
}

func TestVolunteerRoutingFollowsPreference(t *testing.T) {
	e, _ := newTestEngine(t)

	if err := e.SetPreferredOrg("u6", "biz_B"); err != nil {
		t.Fatalf("SetPreferredOrg failed: %v", err)
	}

	res, err := e.Settle(Request{UserID: "u6", InteractionID: "evt_1", Amount: 10,
		Meta: EventMeta{HostOrgID: "biz_A", Volunteer: true}})
	if err != nil {
		t.Fatalf("Settle failed: %v", err)
	}
	if res.Destination != "biz_B" {
		t.Errorf("expected volunteer points routed to preference biz_B, got %s", res.Destination)
	}
}

func TestSettleInvalidEvent(t *testing.T) {
	e, _ := newTestEngine(t)

	_, err := e.Settle(Request{UserID: "u7", InteractionID: "evt_1", Amount: 10})
	if err == nil {
		t.Fatal("expected error for business event without host organization")
	}
	if !errors.Is(err, ErrInvalidEvent) {
		t.Errorf("expected ErrInvalidEvent, got %v", err)
	}

	if _, err := e.Wallet("u7"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("expected no wallet after rejected event, got %v", err)
	}
}

func TestSettleDirectionsAreDistinctKeys(t *testing.T) {
	e, _ := newTestEngine(t)

	if _, err := e.Settle(earnRequest("u8", "tap_1", 50, "cafe1")); err != nil {
		t.Fatalf("earn failed: %v", err)
	}
	// Same interaction id, opposite direction: a separate settlement
	if _, err := e.Settle(earnRequest("u8", "tap_1", -20, "cafe1")); err != nil {
		t.Fatalf("spend with same interaction id failed: %v", err)
	}

	w, _ := e.Wallet("u8")
	if w.Balances["cafe1"] != 30 {
		t.Errorf("expected balance 30, got %d", w.Balances["cafe1"])
	}
	records, _ := e.History("u8", 0)
	if len(records) != 2 {
		t.Errorf("expected 2 records, got %d", len(records))
	}
}

func TestConcurrentSettleSameRequest(t *testing.T) {
	e, _ := newTestEngine(t)
	req := earnRequest("u9", "race_1", 50, "cafe1")

	const callers = 10
	results := make([]Result, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = e.Settle(req)
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d failed: %v", i, errs[i])
		}
		if results[i] != results[0] {
			t.Errorf("caller %d got a different result: %+v vs %+v", i, results[i], results[0])
		}
	}

	w, _ := e.Wallet("u9")
	if w.Balances["cafe1"] != 50 {
		t.Errorf("expected exactly one mutation, balance is %d", w.Balances["cafe1"])
	}
	records, _ := e.History("u9", 0)
	if len(records) != 1 {
		t.Errorf("expected exactly one audit record, got %d", len(records))
	}
}

func TestConcurrentSettleDifferentUsers(t *testing.T) {
	e, _ := newTestEngine(t)

	const users = 8
	var wg sync.WaitGroup
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			userID := "user_" + string(rune('a'+i))
			if _, err := e.Settle(earnRequest(userID, "evt_1", int64(10*(i+1)), "cafe1")); err != nil {
				t.Errorf("settle for %s failed: %v", userID, err)
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < users; i++ {
		userID := "user_" + string(rune('a'+i))
		balance, err := e.Balance(userID, "cafe1")
		if err != nil {
			t.Errorf("Balance for %s failed: %v", userID, err)
			continue
		}
		if balance != int64(10*(i+1)) {
			t.Errorf("%s: expected balance %d, got %d", userID, 10*(i+1), balance)
		}
	}
}

func TestNonNegativityUnderSequence(t *testing.T) {
	e, _ := newTestEngine(t)

	steps := []struct {
		interaction string
		amount      int64
	}{
		{"s1", 40},
		{"s2", -30},
		{"s3", -30}, // rejected, only 10 left
		{"s4", 20},
		{"s5", -30},
		{"s6", -1}, // rejected, empty
	}

	for _, step := range steps {
		e.Settle(earnRequest("u10", step.interaction, step.amount, "cafe1"))

		w, err := e.Wallet("u10")
		if err != nil {
			t.Fatalf("%s: Wallet failed: %v", step.interaction, err)
		}
		for key, balance := range w.Balances {
			if balance < 0 {
				t.Errorf("%s: negative balance %d in pool %s", step.interaction, balance, key)
			}
		}
	}

	balance, _ := e.Balance("u10", "cafe1")
	if balance != 0 {
		t.Errorf("expected final balance 0, got %d", balance)
	}
}

func TestAlreadySettled(t *testing.T) {
	e, _ := newTestEngine(t)

	settled, err := e.AlreadySettled("u11", "evt_1")
	if err != nil {
		t.Fatalf("AlreadySettled failed: %v", err)
	}
	if settled {
		t.Error("expected not settled before any settle call")
	}

	if _, err := e.Settle(earnRequest("u11", "evt_1", 10, "cafe1")); err != nil {
		t.Fatalf("Settle failed: %v", err)
	}

	settled, err = e.AlreadySettled("u11", "evt_1")
	if err != nil {
		t.Fatalf("AlreadySettled failed: %v", err)
	}
	if !settled {
		t.Error("expected settled after settle call")
	}
}

func TestBalanceQueries(t *testing.T) {
	e, _ := newTestEngine(t)

	if _, err := e.Balance("nobody", "cafe1"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound for unknown user, got %v", err)
	}

	if _, err := e.Settle(earnRequest("u12", "evt_1", 10, "cafe1")); err != nil {
		t.Fatalf("Settle failed: %v", err)
	}

	balance, err := e.Balance("u12", "other_org")
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	if balance != 0 {
		t.Errorf("expected unused pool to read 0, got %d", balance)
	}
}

func TestHistoryNewestFirst(t *testing.T) {
	e, _ := newTestEngine(t)

	for i, interaction := range []string{"evt_1", "evt_2", "evt_3"} {
		if _, err := e.Settle(earnRequest("u13", interaction, int64(10*(i+1)), "cafe1")); err != nil {
			t.Fatalf("Settle %s failed: %v", interaction, err)
		}
	}

	records, err := e.History("u13", 0)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	if records[0].InteractionID != "evt_3" || records[2].InteractionID != "evt_1" {
		t.Errorf("expected newest first, got %s..%s", records[0].InteractionID, records[2].InteractionID)
	}

	limited, err := e.History("u13", 2)
	if err != nil {
		t.Fatalf("History with limit failed: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("expected 2 records with limit, got %d", len(limited))
	}
}

func TestTotalsDerivedFromAudit(t *testing.T) {
	e, _ := newTestEngine(t)

	e.Settle(earnRequest("u14", "e1", 50, "cafe1"))
	e.Settle(earnRequest("u14", "e2", 30, "cafe1"))
	e.Settle(earnRequest("u14", "s1", -20, "cafe1"))
	// A replay must not move the totals
	e.Settle(earnRequest("u14", "e1", 50, "cafe1"))

	totals, err := e.Totals()
	if err != nil {
		t.Fatalf("Totals failed: %v", err)
	}
	if totals.PointsDistributed != 80 {
		t.Errorf("expected 80 distributed, got %d", totals.PointsDistributed)
	}
	if totals.PointsSpent != 20 {
		t.Errorf("expected 20 spent, got %d", totals.PointsSpent)
	}
}

func TestWalletSnapshotIsolated(t *testing.T) {
	e, _ := newTestEngine(t)

	if _, err := e.Settle(earnRequest("u15", "evt_1", 10, "cafe1")); err != nil {
		t.Fatalf("Settle failed: %v", err)
	}

	w, _ := e.Wallet("u15")
	w.Balances["cafe1"] = 999999

	fresh, _ := e.Wallet("u15")
	if fresh.Balances["cafe1"] != 10 {
		t.Errorf("snapshot mutation leaked into the store: got %d", fresh.Balances["cafe1"])
	}
}

// racingStore makes the idempotency pre-check miss once so Settle runs into
// the store's unique index, the way a second process would.
type racingStore struct {
	*MemoryStore
	misses int
}

func (s *racingStore) FindRecord(userID, interactionID string, direction Direction) (Record, error) {
	if s.misses > 0 {
		s.misses--
		return Record{}, ErrRecordNotFound
	}
	return s.MemoryStore.FindRecord(userID, interactionID, direction)
}

func TestDuplicateCommitResolvedToWinner(t *testing.T) {
	store := &racingStore{MemoryStore: NewMemoryStore()}
	clock := fixedClock(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	e := NewEngine(store, WithClock(clock))
	req := earnRequest("u16", "race_1", 50, "cafe1")

	first, err := e.Settle(req)
	if err != nil {
		t.Fatalf("first Settle failed: %v", err)
	}

	// Pre-check misses, commit hits the unique index, engine resolves to
	// the winning record.
	store.misses = 1
	second, err := e.Settle(req)
	if err != nil {
		t.Fatalf("racing Settle failed: %v", err)
	}
	if first != second {
		t.Errorf("expected winner's result, got %+v vs %+v", second, first)
	}

	w, _ := e.Wallet("u16")
	if w.Balances["cafe1"] != 50 {
		t.Errorf("expected single mutation, balance is %d", w.Balances["cafe1"])
	}
}

func TestPreferredOrgRoundTrip(t *testing.T) {
	e, _ := newTestEngine(t)

	org, err := e.PreferredOrg("u17")
	if err != nil {
		t.Fatalf("PreferredOrg failed: %v", err)
	}
	if org != "" {
		t.Errorf("expected empty preference, got %q", org)
	}

	if err := e.SetPreferredOrg("u17", "biz_B"); err != nil {
		t.Fatalf("SetPreferredOrg failed: %v", err)
	}
	org, _ = e.PreferredOrg("u17")
	if org != "biz_B" {
		t.Errorf("expected biz_B, got %q", org)
	}

	if err := e.SetPreferredOrg("u17", ""); err != nil {
		t.Fatalf("clearing preference failed: %v", err)
	}
	org, _ = e.PreferredOrg("u17")
	if org != "" {
		t.Errorf("expected cleared preference, got %q", org)
	}
}
