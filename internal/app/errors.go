package service

import (
	"errors"
	"fmt"

	"github.com/okian/credence/internal/domain/errkind"
)

// Sentinel errors returned by the service. Kinds follow errkind so the HTTP
// layer can map them without knowing each one.
var (
	// ErrLedgerPending is returned together with a stored endorsement whose
	// delta did not reach the ledger. The record carries the warning and the
	// update is retried in the background.
	ErrLedgerPending = errors.New("endorsement stored, reputation update pending")

	// ErrLedgerFailed is returned together with a stored endorsement whose
	// delta was refused for good. The record is marked failed and not retried.
	ErrLedgerFailed = errors.New("endorsement stored, reputation update failed")

	// ErrChainDisabled is returned by chain reads when no chain client is configured.
	ErrChainDisabled = errors.New("chain integration disabled")

	ErrInactiveUser   = fmt.Errorf("user is deactivated: %w", errkind.ErrValidation)
	ErrIneligible     = fmt.Errorf("reputation below job minimum: %w", errkind.ErrValidation)
	ErrSelfEndorse    = fmt.Errorf("users cannot endorse their own badges: %w", errkind.ErrValidation)
	ErrNotJobParty    = fmt.Errorf("user is not a party to the job: %w", errkind.ErrValidation)
	ErrSourceInFlight = fmt.Errorf("source is already being applied: %w", errkind.ErrDuplicateSource)
)
