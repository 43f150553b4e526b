package errors

import "errors"

var (
	ErrValidation               = errors.New("invalid escrow request")
	ErrInvalidToken             = errors.New("escrow token not recognized")
	ErrSessionNotFound          = errors.New("escrow session not found")
	ErrSavedLineupNotFound      = errors.New("saved lineup not found")
	ErrUnauthorized             = errors.New("requester may not act on this session")
	ErrAlreadySubmitted         = errors.New("a lineup was already submitted for this session")
	ErrAlreadyCancelled         = errors.New("escrow session is already cancelled")
	ErrExpired                  = errors.New("escrow session has expired")
	ErrIdempotencyKeyConflict   = errors.New("idempotency key reused with different request")
	ErrNotificationFailure      = errors.New("notification dispatch failed")
	ErrRepositoryInvariantBroke = errors.New("repository invariant violated")
)
