package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("invalid input")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrAlreadyRefunded   = errors.New("already refunded")
	ErrArtifactClaimed   = errors.New("artifact claimed by another run")
	ErrProviderFailure   = errors.New("provider failure")
	ErrPollTimeout       = errors.New("poll timed out")
	ErrNoSource          = errors.New("no source reference")
)
