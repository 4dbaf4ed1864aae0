package repository

import "context"

// UnusedViewsRepository keeps the per-owner count of purchased views that
// were not delivered before a listing expired. Missing entries read as zero.
type UnusedViewsRepository interface {
	Get(ctx context.Context, ownerID string) (int64, error)
	Add(ctx context.Context, ownerID string, views int64) error
	Reset(ctx context.Context, ownerID string) error
}
