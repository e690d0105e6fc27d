package service

import (
	"fmt"
	"strings"

	dErrors "keystone/pkg/domain-errors"

	"keystone/internal/policy"
)

// Named failure kinds for the elevation lifecycle. Callers branch on these
// with errors.Is; the HTTP layer maps their codes onto statuses. None of
// them is ever auto-retried here; adjusting parameters, prompting step-up,
// or escalating an approver is the caller's decision.
var (
	// ErrMFARequired means the request needs step-up verification before it
	// can proceed; retry through RequestElevationWithMFA.
	ErrMFARequired = dErrors.New(dErrors.CodeUnauthorized, "step-up verification required")

	// ErrMFAFailed means a submitted step-up token was rejected.
	ErrMFAFailed = dErrors.New(dErrors.CodeUnauthorized, "step-up verification failed")

	// ErrMFANotConfigured means step-up is mandatory but the requester has no
	// enrolled factor.
	ErrMFANotConfigured = dErrors.New(dErrors.CodeForbidden, "step-up not configured for requester")

	// ErrDurationExceeded means the requested duration is above the
	// applicable cap.
	ErrDurationExceeded = dErrors.New(dErrors.CodeForbidden, "requested duration exceeds allowed maximum")

	// ErrForbiddenScope means a requested scope can never be granted.
	ErrForbiddenScope = dErrors.New(dErrors.CodeForbidden, "requested scope is forbidden")

	// ErrTokenNotFound means no record exists for the presented token.
	ErrTokenNotFound = dErrors.New(dErrors.CodeNotFound, "elevation token not found")

	// ErrTenantNotAuthorized means the caller's tenant does not match the
	// record's tenant.
	ErrTenantNotAuthorized = dErrors.New(dErrors.CodeForbidden, "tenant not authorized for elevation")

	// ErrMarketNotAuthorized means the caller's market does not match the
	// record's market and the record's market is not universal.
	ErrMarketNotAuthorized = dErrors.New(dErrors.CodeForbidden, "market not authorized for elevation")

	// ErrTokenRevoked means the presented token's record was revoked.
	ErrTokenRevoked = dErrors.New(dErrors.CodeForbidden, "elevation has been revoked")

	// ErrTokenExpired means the presented token's window has closed.
	ErrTokenExpired = dErrors.New(dErrors.CodeForbidden, "elevation has expired")

	// ErrAlreadyRevoked means a revocation targeted a record that is already
	// revoked; the original revocation metadata is unchanged.
	ErrAlreadyRevoked = dErrors.New(dErrors.CodeConflict, "elevation already revoked")

	// ErrElevationNotFound means no record exists for the given elevation ID.
	ErrElevationNotFound = dErrors.New(dErrors.CodeNotFound, "elevation not found")

	// ErrRevocationNotAuthorized means the actor may not revoke this record.
	ErrRevocationNotAuthorized = dErrors.New(dErrors.CodeForbidden, "actor not authorized to revoke elevation")
)

// PolicyDeniedError carries the evaluator's denial reasons for one
// checkpoint.
type PolicyDeniedError struct {
	Checkpoint policy.Checkpoint
	Reasons    []string
}

func (e *PolicyDeniedError) Error() string {
	if len(e.Reasons) == 0 {
		return fmt.Sprintf("policy denied at %s checkpoint", e.Checkpoint)
	}
	return fmt.Sprintf("policy denied at %s checkpoint: %s", e.Checkpoint, strings.Join(e.Reasons, "; "))
}
