package domain

import "errors"

var (
	ErrSerializationFailure = errors.New("serialization failure")
	ErrWalletNotFound       = errors.New("wallet not found")
	ErrReservationNotFound  = errors.New("reservation not found")
	ErrInvalidInput         = errors.New("invalid input")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrDuplicateReservation = errors.New("active reservation already exists")
	ErrConflict             = errors.New("conflict")
	ErrStoreUnavailable     = errors.New("store unavailable")
)
