package adapter

import (
	"context"

	"cycle-rental-payments/internal/domain/model"
)

// ServiceNotifier pushes payment outcomes to the services that own the business objects.
type ServiceNotifier interface {
	NotifySubscription(ctx context.Context, update SubscriptionUpdate, authContext string) error
	NotifyRental(ctx context.Context, update RentalUpdate, authContext string) error
}

type SubscriptionUpdate struct {
	UserID string `json:"userId"`
	Status string `json:"status"`
}

type RentalUpdate struct {
	UserID   string       `json:"userId"`
	Status   string       `json:"status"`
	RentalID string       `json:"rentalId"`
	Type     string       `json:"type"`
	IsRefund bool         `json:"isRefund,omitempty"`
	Amount   *model.Money `json:"amount,omitempty"`
}

// DamageInspector is the black-box classifier behind the AI service.
// true means the cycle came back undamaged.
type DamageInspector interface {
	Inspect(ctx context.Context, cycleID string) (undamaged bool, err error)
}

// OperatorAlerter reaches a human when automation gave up.
type OperatorAlerter interface {
	Alert(ctx context.Context, text string) error
}

// Locker serializes work on one key across processes.
type Locker interface {
	TryLock(ctx context.Context, key string) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}
