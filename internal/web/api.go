package web

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/orbtap/orb-gateway/internal/ledger"
	"github.com/orbtap/orb-gateway/internal/routing"
)

func (s *Server) handleSettle(w http.ResponseWriter, r *http.Request) {
	var req settleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid settle request body")
		return
	}
	if req.UserID == "" {
		writeBadRequest(w, "settle request missing user_id")
		return
	}
	if req.InteractionID == "" {
		writeBadRequest(w, "settle request missing interaction_id")
		return
	}

	result, err := s.engine.Settle(req.ledgerRequest())
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleWallet(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]

	wallet, err := s.engine.Wallet(userID)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wallet)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]
	account := r.URL.Query().Get("account")
	if account == "" {
		account = routing.Universal
	}

	balance, err := s.engine.Balance(userID, account)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceJSON{
		UserID:  userID,
		Account: account,
		Balance: balance,
	})
}

func (s *Server) handleEligibility(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID := vars["userID"]
	interactionID := vars["interactionID"]

	settled, err := s.engine.AlreadySettled(userID, interactionID)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, eligibilityJSON{
		UserID:        userID,
		InteractionID: interactionID,
		Settled:       settled,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeBadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	records, err := s.engine.History(userID, limit)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	if records == nil {
		records = []ledger.Record{}
	}
	writeJSON(w, http.StatusOK, historyJSON{UserID: userID, Records: records})
}

func (s *Server) handlePreference(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]

	var req preferenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid preference body")
		return
	}

	if err := s.engine.SetPreferredOrg(userID, req.PreferredOrg); err != nil {
		writeLedgerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTotals(w http.ResponseWriter, r *http.Request) {
	totals, err := s.engine.Totals()
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, totals)
}
