package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"potchain/core/era"
	"potchain/native/fees"
	"potchain/native/pot"
	"potchain/native/systoken"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorBody{Error: err.Error()})
}

// statusFor maps runtime errors onto HTTP status codes. Anything not
// recognised as a caller error is reported as a server failure.
func statusFor(err error) int {
	switch {
	case errors.Is(err, systoken.ErrNotRegistered), errors.Is(err, era.ErrNotStarted):
		return http.StatusNotFound
	case errors.Is(err, systoken.ErrAlreadyRegistered), errors.Is(err, pot.ErrDuplicateSeedTrust),
		errors.Is(err, fees.ErrTicketConsumed):
		return http.StatusConflict
	case errors.Is(err, fees.ErrPaymentFailure), errors.Is(err, fees.ErrInsufficientBalance):
		return http.StatusPaymentRequired
	case errors.Is(err, systoken.ErrCapacityExceeded), errors.Is(err, systoken.ErrInvalidRate), errors.Is(err, systoken.ErrInvalidMetadata),
		errors.Is(err, pot.ErrSeedTrustExceedsTotal), errors.Is(err, fees.ErrInvalidFeeAsset),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

func decodeBody(r *http.Request, out interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return badRequest("decode body: %v", err)
	}
	return nil
}
