package repository

import (
	"context"

	"github.com/velomarket/listing-engine/internal/domain/entity"
)

// BalanceRepository stores per-user two-pool balances. GetByUserID returns
// ErrNotFound for users without a balance document; callers fall back to a
// zero-value ledger.
type BalanceRepository interface {
	GetByUserID(ctx context.Context, userID string) (*entity.Balance, error)
	Save(ctx context.Context, balance *entity.Balance) error
}
