package gateway

import (
	"context"

	"github.com/zono819/signal-trader/internal/domain/entity"
)

// MarketDataGateway defines the market snapshot source
type MarketDataGateway interface {
	// Latest returns the most recent priced, feature-enriched observation
	Latest(ctx context.Context, symbol string) (*entity.Observation, error)
}
