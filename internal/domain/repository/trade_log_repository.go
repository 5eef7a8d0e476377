package repository

import (
	"context"
	"time"

	"github.com/zono819/signal-trader/internal/domain/entity"
)

// TradeLogRepository defines the append-only audit log
type TradeLogRepository interface {
	// Append writes one record; existing records are never rewritten
	Append(ctx context.Context, entry entity.TradeLogEntry) error

	// ReadDay returns all records of the calendar day containing day
	ReadDay(ctx context.Context, day time.Time) ([]entity.TradeLogEntry, error)
}
