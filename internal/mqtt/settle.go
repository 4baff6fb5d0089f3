package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/orbtap/orb-gateway/internal/ledger"
)

// SettleRequest is the wire form of a ledger settlement request. The
// interaction id doubles as idempotency key and correlates the result
// published back on TopicSettleResults.
type SettleRequest struct {
	UserID        string `json:"user_id"`
	InteractionID string `json:"interaction_id"`
	Amount        int64  `json:"amount"`
	HostOrgID     string `json:"host_org_id,omitempty"`
	Volunteer     bool   `json:"volunteer,omitempty"`
	RewardID      string `json:"reward_id,omitempty"`
	RewardTitle   string `json:"reward_title,omitempty"`
}

// LedgerRequest converts the wire request into the engine's request type.
func (r SettleRequest) LedgerRequest() ledger.Request {
	return ledger.Request{
		UserID:        r.UserID,
		InteractionID: r.InteractionID,
		Amount:        r.Amount,
		Meta: ledger.EventMeta{
			HostOrgID:   r.HostOrgID,
			Volunteer:   r.Volunteer,
			RewardID:    r.RewardID,
			RewardTitle: r.RewardTitle,
		},
	}
}

// ParseSettleRequest decodes a settle request payload. Requests missing a
// user or interaction id are rejected before they reach the engine.
func ParseSettleRequest(payload []byte) (SettleRequest, error) {
	var req SettleRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return SettleRequest{}, fmt.Errorf("decode settle request: %w", err)
	}
	if req.UserID == "" {
		return SettleRequest{}, fmt.Errorf("settle request missing user_id")
	}
	if req.InteractionID == "" {
		return SettleRequest{}, fmt.Errorf("settle request missing interaction_id")
	}
	return req, nil
}

// SettleResult couples a settle request with its outcome for publishing.
// Exactly one of Result and Err is set.
type SettleResult struct {
	Timestamp time.Time
	Request   SettleRequest
	Result    *ledger.Result
	Err       error
}

// SettleResultPayload represents the MQTT message payload for settlement
// outcomes.
type SettleResultPayload struct {
	Settle SettleResultInner `json:"settle"`
}

// SettleResultInner contains the settlement outcome details.
type SettleResultInner struct {
	Timestamp     string              `json:"timestamp"`
	UserID        string              `json:"user_id"`
	InteractionID string              `json:"interaction_id"`
	Status        string              `json:"status"` // "OK" or "REJECTED"
	Result        *SettleResultDetail `json:"result,omitempty"`
	Failure       *SettleFailure      `json:"failure,omitempty"`
}

// SettleResultDetail reports a successful settlement.
type SettleResultDetail struct {
	RecordID       string `json:"record_id"`
	Direction      string `json:"direction"`
	Destination    string `json:"destination"`
	Amount         int64  `json:"amount"`
	NewBalance     int64  `json:"new_balance"`
	UniversalDrawn int64  `json:"universal_drawn"`
}

// SettleFailure reports a rejected settlement. Requested, Available and
// Shortfall are present only for insufficient balance rejections.
type SettleFailure struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Requested int64  `json:"requested,omitempty"`
	Available int64  `json:"available,omitempty"`
	Shortfall int64  `json:"shortfall,omitempty"`
}

// FormatSettleResultPayload creates the JSON payload for a settlement
// outcome.
func FormatSettleResultPayload(result SettleResult) ([]byte, error) {
	inner := SettleResultInner{
		Timestamp:     result.Timestamp.UTC().Format(time.RFC3339),
		UserID:        result.Request.UserID,
		InteractionID: result.Request.InteractionID,
	}

	if result.Err != nil {
		inner.Status = "REJECTED"
		inner.Failure = settleFailure(result.Err)
	} else if result.Result != nil {
		inner.Status = "OK"
		inner.Result = &SettleResultDetail{
			RecordID:       result.Result.RecordID,
			Direction:      string(result.Result.Direction),
			Destination:    result.Result.Destination,
			Amount:         result.Result.Amount,
			NewBalance:     result.Result.NewBalance,
			UniversalDrawn: result.Result.UniversalDrawn,
		}
	} else {
		return nil, fmt.Errorf("settle result carries neither result nor error")
	}

	return json.Marshal(SettleResultPayload{Settle: inner})
}

func settleFailure(err error) *SettleFailure {
	failure := &SettleFailure{
		Code:    failureCode(err),
		Message: err.Error(),
	}

	var insufficient *ledger.InsufficientBalanceError
	if errors.As(err, &insufficient) {
		failure.Requested = insufficient.Requested
		failure.Available = insufficient.Available
		failure.Shortfall = insufficient.Shortfall()
	}
	return failure
}

func failureCode(err error) string {
	switch {
	case errors.Is(err, ledger.ErrNoOpRequest):
		return "NO_OP"
	case errors.Is(err, ledger.ErrInvalidEvent):
		return "INVALID_EVENT"
	case errors.Is(err, ledger.ErrUserNotFound):
		return "USER_NOT_FOUND"
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return "INSUFFICIENT_BALANCE"
	case errors.Is(err, ledger.ErrStorageConflict):
		return "STORAGE_CONFLICT"
	default:
		return "INTERNAL"
	}
}
