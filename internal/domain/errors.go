package domain

import "errors"

var (
	ErrBillNotFound      = errors.New("bill not found")
	ErrTenantNotFound    = errors.New("tenant not found")
	ErrBillImmutable     = errors.New("bill is paid or cancelled and cannot be changed")
	ErrInvalidAdjustment = errors.New("invalid penalty adjustment")
	ErrVersionConflict   = errors.New("bill was modified concurrently")
	ErrSweepInProgress   = errors.New("another penalty sweep is already running")
)
