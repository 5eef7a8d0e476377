package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zono819/signal-trader/internal/domain/entity"
)

// ErrCorruptSnapshot marks a snapshot that exists but cannot be trusted.
// Callers quarantine it and start from an empty ledger.
var ErrCorruptSnapshot = errors.New("corrupt position snapshot")

// Snapshot is the durable form of the loop state
type Snapshot struct {
	Ledger      entity.Ledger
	RealizedPnL decimal.Decimal
	SavedAt     time.Time
}

// SnapshotRepository defines ledger persistence
type SnapshotRepository interface {
	// Load returns the last saved snapshot. A missing snapshot is not an
	// error and yields an empty ledger.
	Load(ctx context.Context) (Snapshot, error)

	// Save atomically replaces the snapshot. An empty ledger removes it.
	Save(ctx context.Context, snap Snapshot) error

	// Quarantine moves an unreadable snapshot aside so the next save starts clean
	Quarantine(ctx context.Context) (string, error)
}
