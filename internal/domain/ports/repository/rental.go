package repository

import (
	"context"

	"cycle-rental-payments/internal/domain/model"
)

type RentalRepository interface {
	FindByID(ctx context.Context, tx Tx, id string) (*model.Rental, error)
	// SaveReturn writes the settlement fields of a returned rental.
	SaveReturn(ctx context.Context, tx Tx, r *model.Rental) error
	UpdatePaymentStatus(ctx context.Context, tx Tx, id string, status model.RentalPaymentStatus) error
}
