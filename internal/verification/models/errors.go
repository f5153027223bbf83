package models

import (
	dErrors "anagolay/pkg/domain-errors"
)

// Errors returned by the verification extrinsics. Each aborts the call with no
// state change.
var (
	ErrVerificationAlreadyIssued = dErrors.New(dErrors.CodeConflict,
		"verification already issued for this holder and context")
	ErrCannotReserveRegistrationFee = dErrors.New(dErrors.CodeInsufficientFunds,
		"cannot reserve registration fee")
	ErrNoMatchingVerificationStrategy = dErrors.New(dErrors.CodeBadRequest,
		"no verification strategy supports this context and action")
	ErrMaxVerificationRequestsPerContextLimitReached = dErrors.New(dErrors.CodeLimitExceeded,
		"max verification requests per context reached")
	ErrNoSuchVerificationRequest = dErrors.New(dErrors.CodeNotFound,
		"no such verification request")
	ErrInvalidVerificationStatus = dErrors.New(dErrors.CodeInvalidState,
		"invalid verification status")
	ErrVerificationKeyGeneration = dErrors.New(dErrors.CodeInternal,
		"verification key generation failed")
	ErrVerificationInvalidation = dErrors.New(dErrors.CodeInternal,
		"verification invalidation failed")
	ErrStaleVerificationStatus = dErrors.New(dErrors.CodeConflict,
		"verification status does not match the current request")
	ErrInvalidWorkerSignature = dErrors.New(dErrors.CodeForbidden,
		"invalid worker signature")
)
