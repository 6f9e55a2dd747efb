package rpc

import (
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"potchain/core/era"
	"potchain/core/types"
	"potchain/native/fees"
	"potchain/native/systoken"
	"potchain/observability/metrics"
)

type registerTokenRequest struct {
	ID       types.SystemTokenID `json:"id"`
	Links    []types.LocalLink   `json:"links"`
	Rate     uint64              `json:"rate"`
	Metadata systoken.Metadata   `json:"metadata"`
}

type tokenRequest struct {
	ID types.SystemTokenID `json:"id"`
}

type tokenRateRequest struct {
	ID   types.SystemTokenID `json:"id"`
	Rate uint64              `json:"rate"`
}

type countRequest struct {
	Count uint32 `json:"count"`
}

type accountRequest struct {
	Account types.AccountID `json:"account"`
}

type thresholdRequest struct {
	Threshold types.VoteWeight `json:"threshold"`
}

type forcingRequest struct {
	Mode era.Forcing `json:"mode"`
}

type creditRequest struct {
	Account types.AccountID      `json:"account"`
	Token   *types.SystemTokenID `json:"token,omitempty"`
	Amount  uint64               `json:"amount"`
}

// dispatchRequest runs the pre- and post-dispatch fee hooks for one call.
// It lets operators and integration tests drive fee payments without an
// external dispatcher.
type dispatchRequest struct {
	Payer        types.AccountID      `json:"payer"`
	Call         fees.CallCommitment  `json:"call"`
	Candidate    *types.AccountID     `json:"candidate,omitempty"`
	Token        *types.SystemTokenID `json:"token,omitempty"`
	Tip          uint64               `json:"tip"`
	EstimatedFee uint64               `json:"estimatedFee"`
	// ActualFee is the post-dispatch fee. Nil settles at the withdrawn fee.
	ActualFee *uint64 `json:"actualFee,omitempty"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

func (s *Server) admin(w http.ResponseWriter, r *http.Request, op string, body interface{}, apply func() error) {
	s.adminResult(w, r, op, body, func() (interface{}, error) {
		if err := apply(); err != nil {
			return nil, err
		}
		return okResponse{OK: true}, nil
	})
}

// adminResult decodes body, runs apply inside a span and writes its result.
func (s *Server) adminResult(w http.ResponseWriter, r *http.Request, op string, body interface{}, apply func() (interface{}, error)) {
	ctx, span := s.tracer.Start(r.Context(), "admin."+op, trace.WithAttributes(attribute.String("admin.op", op)))
	defer span.End()
	if subject := subjectFrom(ctx); subject != "" {
		span.SetAttributes(attribute.String("admin.subject", subject))
	}

	if err := decodeBody(r, body); err != nil {
		span.SetStatus(codes.Error, "invalid body")
		metrics.RPC().ObserveAdmin(ctx, op, "invalid")
		writeError(w, http.StatusBadRequest, err)
		return
	}
	result, err := apply()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.RPC().ObserveAdmin(ctx, op, "rejected")
		s.logger.Warn("admin operation failed", "op", op, "error", err)
		writeError(w, statusFor(err), err)
		return
	}
	span.SetStatus(codes.Ok, "applied")
	metrics.RPC().ObserveAdmin(ctx, op, "applied")
	s.logger.Info("admin operation applied", "op", op, "subject", subjectFrom(ctx))
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleRegisterToken(w http.ResponseWriter, r *http.Request) {
	var req registerTokenRequest
	s.admin(w, r, "register_system_token", &req, func() error {
		return s.backend.RegisterSystemToken(req.ID, req.Links, req.Rate, req.Metadata)
	})
}

func (s *Server) handleRemoveToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	s.admin(w, r, "remove_system_token", &req, func() error {
		return s.backend.RemoveSystemToken(req.ID)
	})
}

func (s *Server) handleSetTokenRate(w http.ResponseWriter, r *http.Request) {
	var req tokenRateRequest
	s.admin(w, r, "set_system_token_rate", &req, func() error {
		return s.backend.SetSystemTokenRate(req.ID, req.Rate)
	})
}

func (s *Server) handleSetSeedTrustCount(w http.ResponseWriter, r *http.Request) {
	var req countRequest
	s.admin(w, r, "set_seed_trust_count", &req, func() error {
		return s.backend.SetSeedTrustCount(req.Count)
	})
}

func (s *Server) handleSetTotalValidators(w http.ResponseWriter, r *http.Request) {
	var req countRequest
	s.admin(w, r, "set_total_validators", &req, func() error {
		return s.backend.SetTotalValidators(req.Count)
	})
}

func (s *Server) handleAddSeedTrust(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	s.admin(w, r, "add_seed_trust_validator", &req, func() error {
		if req.Account.IsZero() {
			return badRequest("account must not be the zero account")
		}
		return s.backend.AddSeedTrustValidator(req.Account)
	})
}

func (s *Server) handleSetMinVoteThreshold(w http.ResponseWriter, r *http.Request) {
	var req thresholdRequest
	s.admin(w, r, "set_min_vote_threshold", &req, func() error {
		return s.backend.SetMinVoteThreshold(req.Threshold)
	})
}

func (s *Server) handleSetForcing(w http.ResponseWriter, r *http.Request) {
	var req forcingRequest
	s.admin(w, r, "set_forcing_mode", &req, func() error {
		return s.backend.SetForcingMode(req.Mode)
	})
}

func (s *Server) handleCredit(w http.ResponseWriter, r *http.Request) {
	var req creditRequest
	s.admin(w, r, "credit_balance", &req, func() error {
		return s.backend.CreditBalance(req.Account, req.Token, req.Amount)
	})
}

func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	var req dispatchRequest
	s.adminResult(w, r, "fee_dispatch", &req, func() (interface{}, error) {
		ticket, err := s.backend.PreDispatch(fees.BeginRequest{
			Payer:        req.Payer,
			Call:         req.Call,
			Candidate:    req.Candidate,
			Token:        req.Token,
			Tip:          req.Tip,
			EstimatedFee: req.EstimatedFee,
		})
		if err != nil {
			return nil, err
		}
		actual := ticket.Fee
		if req.ActualFee != nil {
			actual = *req.ActualFee
		}
		receipt, err := s.backend.PostDispatch(ticket, actual)
		if err != nil {
			s.logger.Error("fee settlement failed", "ticket", ticket.ID, "error", err)
			if refund, cancelErr := s.backend.CancelDispatch(ticket); cancelErr != nil {
				s.logger.Error("fee cancellation failed", "ticket", ticket.ID, "error", cancelErr)
			} else {
				s.logger.Info("fee refunded after failed settlement", "ticket", ticket.ID, "refund", refund)
			}
			return nil, err
		}
		return receipt, nil
	})
}
