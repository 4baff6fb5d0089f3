package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/orbtap/orb-gateway/internal/ledger"
)

// settleRequest is the HTTP wire form of a settlement. It matches the shape
// accepted on the MQTT settle topic so callers can switch transports without
// reshaping payloads.
type settleRequest struct {
	UserID        string `json:"user_id"`
	InteractionID string `json:"interaction_id"`
	Amount        int64  `json:"amount"`
	HostOrgID     string `json:"host_org_id,omitempty"`
	Volunteer     bool   `json:"volunteer,omitempty"`
	RewardID      string `json:"reward_id,omitempty"`
	RewardTitle   string `json:"reward_title,omitempty"`
}

func (r settleRequest) ledgerRequest() ledger.Request {
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

type balanceJSON struct {
	UserID  string `json:"user_id"`
	Account string `json:"account"`
	Balance int64  `json:"balance"`
}

type eligibilityJSON struct {
	UserID        string `json:"user_id"`
	InteractionID string `json:"interaction_id"`
	Settled       bool   `json:"settled"`
}

type historyJSON struct {
	UserID  string          `json:"user_id"`
	Records []ledger.Record `json:"records"`
}

type preferenceRequest struct {
	PreferredOrg string `json:"preferred_org"`
}

// ErrorJSON is the error envelope returned by all API endpoints.
type ErrorJSON struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody describes a rejected request. Requested, Available and Shortfall
// are present only for insufficient balance rejections.
type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Requested int64  `json:"requested,omitempty"`
	Available int64  `json:"available,omitempty"`
	Shortfall int64  `json:"shortfall,omitempty"`
}

func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, ErrorJSON{Error: ErrorBody{
		Code:    "BAD_REQUEST",
		Message: message,
	}})
}

// writeLedgerError maps engine errors onto HTTP statuses. Storage conflicts
// are the only retryable outcome and carry a Retry-After hint.
func writeLedgerError(w http.ResponseWriter, err error) {
	statusCode := http.StatusInternalServerError
	switch {
	case errors.Is(err, ledger.ErrNoOpRequest), errors.Is(err, ledger.ErrInvalidEvent):
		statusCode = http.StatusBadRequest
	case errors.Is(err, ledger.ErrUserNotFound):
		statusCode = http.StatusNotFound
	case errors.Is(err, ledger.ErrInsufficientBalance):
		statusCode = http.StatusConflict
	case errors.Is(err, ledger.ErrStorageConflict):
		statusCode = http.StatusServiceUnavailable
	}

	body := ErrorJSON{Error: ErrorBody{
		Code:    ledgerErrorCode(err),
		Message: err.Error(),
	}}

	var insufficient *ledger.InsufficientBalanceError
	if errors.As(err, &insufficient) {
		body.Error.Requested = insufficient.Requested
		body.Error.Available = insufficient.Available
		body.Error.Shortfall = insufficient.Shortfall()
	}

	if statusCode == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, statusCode, body)
}

func ledgerErrorCode(err error) string {
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
