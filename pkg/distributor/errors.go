package distributor

import "errors"

// Every failure kind the engine can produce is a distinct sentinel so
// callers branch with errors.Is rather than matching message strings.
var (
	// Input validation
	ErrInvalidCommitment   = errors.New("distributor: commitment root must be non-zero")
	ErrInvalidAmount       = errors.New("distributor: amount must be positive")
	ErrInvalidAsset        = errors.New("distributor: invalid asset")
	ErrInvalidTimeWindow   = errors.New("distributor: invalid claim window")
	ErrUnknownDistribution = errors.New("distributor: unknown distribution")
	ErrArityMismatch       = errors.New("distributor: batch arguments must have equal length")

	// Authorization
	ErrUnauthorized = errors.New("distributor: caller is not the admin")

	// Business rules
	ErrInsufficientCustody   = errors.New("distributor: custodied balance below total allocation")
	ErrTooManyClaims         = errors.New("distributor: too much already claimed to update")
	ErrNothingToRecover      = errors.New("distributor: nothing to recover")
	ErrDistributionRecovered = errors.New("distributor: distribution has been recovered")
	ErrWindowNotEnded        = errors.New("distributor: claim window has not ended")
	ErrDistributionPaused    = errors.New("distributor: distribution is paused")
	ErrNotStarted            = errors.New("distributor: claim window has not started")
	ErrEnded                 = errors.New("distributor: claim window has ended")
	ErrAlreadyClaimed        = errors.New("distributor: already claimed")
	ErrInvalidProof          = errors.New("distributor: invalid membership proof")
	ErrSupplyExceeded        = errors.New("distributor: claim would exceed committed supply")

	// External dependency failures
	ErrTransferFailed = errors.New("distributor: asset transfer failed")

	// Construction
	ErrNilStore     = errors.New("distributor: store must not be nil")
	ErrNilCustodian = errors.New("distributor: custodian must not be nil")
)
