package rpc

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"potchain/core"
	"potchain/core/types"
	"potchain/native/pot"
	"potchain/storage/eventlog"
)

type eraResponse struct {
	core.EraStatus
	LastElected []types.AccountID `json:"lastElected"`
}

type eraIndexResponse struct {
	Era          uint32            `json:"era"`
	StartSession *uint32           `json:"startSession,omitempty"`
	Pot          []types.AccountID `json:"pot"`
}

type paramsResponse struct {
	TotalValidators     uint32           `json:"totalValidators"`
	SeedTrustValidators uint32           `json:"seedTrustValidators"`
	PotValidators       uint32           `json:"potValidators"`
	MinVoteThreshold    types.VoteWeight `json:"minVoteThreshold"`
	MaxVoteNum          uint32           `json:"maxVoteNum"`
}

type ledgerResponse struct {
	Capacity uint32      `json:"capacity"`
	Count    int         `json:"count"`
	Entries  []pot.Entry `json:"entries"`
}

type resolveResponse struct {
	Token types.SystemTokenID `json:"token"`
}

type balanceResponse struct {
	Account types.AccountID      `json:"account"`
	Token   *types.SystemTokenID `json:"token,omitempty"`
	Balance uint64               `json:"balance"`
}

func (s *Server) handleEra(w http.ResponseWriter, r *http.Request) {
	last, err := s.backend.LastElected()
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if last == nil {
		last = []types.AccountID{}
	}
	writeJSON(w, http.StatusOK, eraResponse{EraStatus: s.backend.EraStatus(), LastElected: last})
}

func (s *Server) handleEraByIndex(w http.ResponseWriter, r *http.Request) {
	index, err := parseUint32(chi.URLParam(r, "era"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	start, started, err := s.backend.EraStartSession(index)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	validators, recorded, err := s.backend.PotValidators(index)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if !started && !recorded {
		writeError(w, http.StatusNotFound, badRequest("era %d not found", index))
		return
	}
	resp := eraIndexResponse{Era: index, Pot: validators}
	if started {
		resp.StartSession = &start
	}
	if resp.Pot == nil {
		resp.Pot = []types.AccountID{}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleEraPot(w http.ResponseWriter, r *http.Request) {
	index, err := parseUint32(chi.URLParam(r, "era"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	validators, ok, err := s.backend.PotValidators(index)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, badRequest("no election recorded for era %d", index))
		return
	}
	if validators == nil {
		validators = []types.AccountID{}
	}
	writeJSON(w, http.StatusOK, validators)
}

func (s *Server) handleParams(w http.ResponseWriter, r *http.Request) {
	params := s.backend.ElectionParams()
	writeJSON(w, http.StatusOK, paramsResponse{
		TotalValidators:     params.TotalValidators,
		SeedTrustValidators: params.SeedTrustValidators,
		PotValidators:       params.PotSlots(),
		MinVoteThreshold:    params.MinVoteThreshold,
		MaxVoteNum:          s.backend.LedgerCapacity(),
	})
}

func (s *Server) handleSeedTrust(w http.ResponseWriter, r *http.Request) {
	pool := s.backend.SeedTrustPool()
	if pool == nil {
		pool = []types.AccountID{}
	}
	writeJSON(w, http.StatusOK, pool)
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	entries := s.backend.LedgerEntries()
	count := len(entries)
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, badRequest("invalid limit %q", raw))
			return
		}
		if limit < len(entries) {
			entries = entries[:limit]
		}
	}
	if entries == nil {
		entries = []pot.Entry{}
	}
	writeJSON(w, http.StatusOK, ledgerResponse{Capacity: s.backend.LedgerCapacity(), Count: count, Entries: entries})
}

func (s *Server) handleTokens(w http.ResponseWriter, r *http.Request) {
	tokens, err := s.backend.SystemTokens()
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, tokens)
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	para, err := parseUint32(query.Get("para"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	asset, err := parseUint32(query.Get("asset"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	token, ok, err := s.backend.ResolveLocalAsset(para, asset)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, badRequest("no system token linked to %d:%d", para, asset))
		return
	}
	writeJSON(w, http.StatusOK, resolveResponse{Token: token})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	account, err := types.ParseAccountID(chi.URLParam(r, "account"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var token *types.SystemTokenID
	if raw := strings.TrimSpace(r.URL.Query().Get("token")); raw != "" {
		parsed, err := types.ParseSystemTokenID(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		token = &parsed
	}
	balance, err := s.backend.Balance(account, token)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{Account: account, Token: token, Balance: balance})
}

func (s *Server) handleRecentEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeError(w, http.StatusServiceUnavailable, badRequest("event stream not configured"))
		return
	}
	recent := s.events.Recent()
	if recent == nil {
		recent = []types.Event{}
	}
	writeJSON(w, http.StatusOK, recent)
}

func (s *Server) handleEventHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, badRequest("event index not configured"))
		return
	}
	query := r.URL.Query()
	filter := eventlog.Filter{Type: strings.TrimSpace(query.Get("type"))}
	if raw := strings.TrimSpace(query.Get("after")); raw != "" {
		after, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, badRequest("invalid cursor %q", raw))
			return
		}
		filter.AfterID = after
	}
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, badRequest("invalid limit %q", raw))
			return
		}
		filter.Limit = limit
	}
	entries, err := s.history.Query(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func parseUint32(raw string) (uint32, error) {
	value, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 32)
	if err != nil {
		return 0, badRequest("invalid number %q", raw)
	}
	return uint32(value), nil
}
