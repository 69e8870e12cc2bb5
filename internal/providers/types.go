package providers

import (
	"context"

	"github.com/gustavo/advisor-cli/internal/model"
)

// Quote is a spot price with its 24h percentage change.
type Quote struct {
	Price     float64
	Change24h float64
}

type PriceProvider interface {
	Quote(ctx context.Context, symbol string) (Quote, error)
	History(ctx context.Context, symbol string, days int) (model.PriceHistory, error)
}

type SentimentProvider interface {
	Analyze(ctx context.Context, symbol string, price, change24h float64) (string, error)
}
