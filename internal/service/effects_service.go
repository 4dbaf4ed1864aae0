package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/velomarket/listing-engine/internal/domain/entity"
	"github.com/velomarket/listing-engine/internal/platform/lock"
	"github.com/velomarket/listing-engine/internal/platform/logger"
	"github.com/velomarket/listing-engine/internal/platform/metrics"
	"github.com/velomarket/listing-engine/internal/repository"
)

const (
	maxEffectsPerBatch    = 10
	maxEffectPrice        = 100.0
	maxEffectDurationDays = 365
	maxEffectBatchCost    = 1000.0
)

type EffectOrder struct {
	ID           string
	Price        float64
	DurationDays int
}

type ApplyEffectsCommand struct {
	ListingID string
	UserID    string
	Effects   []EffectOrder
}

// EffectsService sells batches of timed visual effects. A batch replaces
// whatever effects were active before; the engine does not merge.
type EffectsService interface {
	ApplyEffects(ctx context.Context, cmd ApplyEffectsCommand) (*entity.Listing, error)
}

type effectsService struct {
	listingRepo  repository.ListingRepository
	ledger       LedgerService
	listingLocks *lock.KeyedMutex
	log          logger.Logger
	metrics      *metrics.Manager
}

func NewEffectsService(
	listingRepo repository.ListingRepository,
	ledger LedgerService,
	listingLocks *lock.KeyedMutex,
	log logger.Logger,
	m *metrics.Manager,
) EffectsService {
	return &effectsService{
		listingRepo:  listingRepo,
		ledger:       ledger,
		listingLocks: listingLocks,
		log:          log,
		metrics:      m,
	}
}

func (s *effectsService) validate(cmd ApplyEffectsCommand) (decimal.Decimal, error) {
	if cmd.ListingID == "" || cmd.UserID == "" {
		return decimal.Decimal{}, fmt.Errorf("%w: listing id and user id are required", entity.ErrInvalidInput)
	}
	if len(cmd.Effects) == 0 {
		return decimal.Decimal{}, fmt.Errorf("%w: effect batch cannot be empty", entity.ErrInvalidInput)
	}
	if len(cmd.Effects) > maxEffectsPerBatch {
		return decimal.Decimal{}, fmt.Errorf("%w: at most %d effects per batch", entity.ErrInvalidInput, maxEffectsPerBatch)
	}

	total := decimal.Zero
	seen := make(map[string]struct{}, len(cmd.Effects))
	for _, e := range cmd.Effects {
		if e.ID == "" {
			return decimal.Decimal{}, fmt.Errorf("%w: effect id cannot be empty", entity.ErrInvalidInput)
		}
		if _, dup := seen[e.ID]; dup {
			return decimal.Decimal{}, fmt.Errorf("effect %q listed twice: %w", e.ID, entity.ErrDuplicateEffect)
		}
		seen[e.ID] = struct{}{}

		price, err := toAmount(e.Price)
		if err != nil {
			return decimal.Decimal{}, err
		}
		if !price.IsPositive() || e.Price > maxEffectPrice {
			return decimal.Decimal{}, fmt.Errorf("%w: effect %q price must be in (0, %.0f]", entity.ErrInvalidAmount, e.ID, maxEffectPrice)
		}
		if e.DurationDays <= 0 || e.DurationDays > maxEffectDurationDays {
			return decimal.Decimal{}, fmt.Errorf("%w: effect %q duration must be between 1 and %d days", entity.ErrInvalidInput, e.ID, maxEffectDurationDays)
		}
		total = total.Add(price)
	}

	if total.GreaterThan(decimal.NewFromFloat(maxEffectBatchCost)) {
		return decimal.Decimal{}, fmt.Errorf("%w: batch total %s exceeds cap %.0f", entity.ErrInvalidAmount, total, maxEffectBatchCost)
	}
	return total, nil
}

func (s *effectsService) ApplyEffects(ctx context.Context, cmd ApplyEffectsCommand) (*entity.Listing, error) {
	total, err := s.validate(cmd)
	if err != nil {
		return nil, err
	}

	unlock := s.listingLocks.Lock(cmd.ListingID)
	defer unlock()

	listing, err := s.listingRepo.GetByID(ctx, cmd.ListingID)
	if err != nil {
		return nil, fmt.Errorf("could not load listing %s: %w", cmd.ListingID, err)
	}

	now := time.Now().UTC()
	if listing.IsDeleted() {
		return nil, fmt.Errorf("cannot apply effects to listing %s: %w", cmd.ListingID, entity.ErrListingDeleted)
	}
	if listing.IsArchived {
		return nil, fmt.Errorf("cannot apply effects to listing %s: %w", cmd.ListingID, entity.ErrListingArchived)
	}
	if listing.IsExpired(now) {
		return nil, fmt.Errorf("cannot apply effects to listing %s: %w", cmd.ListingID, entity.ErrListingExpired)
	}
	if listing.OwnerID != cmd.UserID {
		return nil, fmt.Errorf("user %s does not own listing %s: %w", cmd.UserID, cmd.ListingID, entity.ErrForbidden)
	}

	breakdown, err := s.ledger.Charge(ctx, cmd.UserID, total)
	if err != nil {
		return nil, fmt.Errorf("could not charge effect batch cost: %w", err)
	}

	effects := make([]entity.CreativeEffect, 0, len(cmd.Effects))
	for _, e := range cmd.Effects {
		endDate := now.Add(time.Duration(e.DurationDays) * 24 * time.Hour)
		if listing.ExpiresAt.After(endDate) {
			endDate = listing.ExpiresAt
		}
		effects = append(effects, entity.CreativeEffect{
			ID:           e.ID,
			Price:        e.Price,
			DurationDays: e.DurationDays,
			EndDate:      endDate,
			IsActive:     true,
		})
	}

	listing.ReplaceEffects(effects)
	if err := s.listingRepo.Update(ctx, listing); err != nil {
		if refundErr := s.ledger.Refund(ctx, cmd.UserID, breakdown); refundErr != nil {
			s.log.Errorf("Refund of %s for user %s failed after effects rollback, manual reconciliation needed: %v",
				breakdown.Total(), cmd.UserID, refundErr)
		}
		if s.metrics != nil {
			s.metrics.RollbacksTotal.WithLabelValues("apply_effects").Inc()
		}
		return nil, fmt.Errorf("could not save listing %s after applying effects: %w", listing.ID, err)
	}

	if s.metrics != nil {
		s.metrics.EffectsAppliedTotal.Inc()
	}

	s.log.Infof("Applied %d creative effects to listing %s, total cost %s", len(effects), listing.ID, total)
	return listing, nil
}
