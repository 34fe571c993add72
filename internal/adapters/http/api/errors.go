package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	service "github.com/okian/credence/internal/app"
	"github.com/okian/credence/internal/domain/errkind"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest = errors.New("bad request")
	ErrServe      = errors.New("http serve failed")
)

func badRequest(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrBadRequest, err)
}

// statusFor maps an error kind onto the response status and error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, service.ErrIneligible):
		return http.StatusForbidden, "ineligible"
	case errors.Is(err, service.ErrLedgerFailed):
		return http.StatusUnprocessableEntity, "ledger_failed"
	case errors.Is(err, service.ErrChainDisabled):
		return http.StatusServiceUnavailable, "chain_disabled"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	}
	switch errkind.KindOf(err) {
	case errkind.ErrValidation:
		return http.StatusBadRequest, errkind.Name(err)
	case errkind.ErrNotFound:
		return http.StatusNotFound, errkind.Name(err)
	case errkind.ErrDuplicateSource:
		return http.StatusConflict, errkind.Name(err)
	case errkind.ErrTransient:
		return http.StatusServiceUnavailable, errkind.Name(err)
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
