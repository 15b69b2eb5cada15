package telegram

import (
	"context"

	"github.com/rs/zerolog"

	"cycle-rental-payments/internal/domain/ports/adapter"
)

var _ adapter.OperatorAlerter = (*NoopAlerter)(nil)

// NoopAlerter logs alerts instead of sending them. Used when no chat is configured.
type NoopAlerter struct {
	log *zerolog.Logger
}

func NewNoopAlerter(logger *zerolog.Logger) *NoopAlerter {
	return &NoopAlerter{log: logger}
}

func (n *NoopAlerter) Alert(_ context.Context, text string) error {
	n.log.Warn().Str("alert", text).Msg("operator alert")
	return nil
}
