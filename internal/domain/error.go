package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrOperationFailed    = errors.New("operation failed")
	ErrInvalidExecContext = errors.New("invalid execution context")
	ErrReadDatabaseRow    = errors.New("failed to read database row")

	// Webhook / reconciliation errors
	ErrSignatureInvalid         = errors.New("webhook signature invalid")
	ErrMalformedPayload         = errors.New("malformed webhook payload")
	ErrPaymentNotFound          = errors.New("payment record not found")
	ErrRefundNotFound           = errors.New("refund record not found")
	ErrInvalidStateTransition   = errors.New("invalid payment state transition")
	ErrDownstreamNotify         = errors.New("downstream notification failed")
	ErrCaptureMissing           = errors.New("payment has no capture id")
	ErrUnsupportedPaymentMethod = errors.New("unsupported payment method")

	// Rentals
	ErrRentalNotFound        = errors.New("rental not found")
	ErrRentalAlreadyReturned = errors.New("rental already returned")
)
