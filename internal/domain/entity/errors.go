package entity

import "errors"

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrListingDeleted      = errors.New("listing is deleted")
	ErrListingExpired      = errors.New("listing is expired")
	ErrListingArchived     = errors.New("listing is archived")
	ErrDuplicateEffect     = errors.New("duplicate creative effect in batch")
	ErrForbidden           = errors.New("user not authorized to perform this action")
)
