package service

import (
	"context"
	"fmt"
	"time"

	natsadapter "github.com/velomarket/listing-engine/internal/adapter/nats"
	"github.com/velomarket/listing-engine/internal/domain/entity"
	"github.com/velomarket/listing-engine/internal/notifier"
	"github.com/velomarket/listing-engine/internal/platform/lock"
	"github.com/velomarket/listing-engine/internal/platform/logger"
	"github.com/velomarket/listing-engine/internal/platform/metrics"
	"github.com/velomarket/listing-engine/internal/repository"
)

const (
	maxPromotionDurationDays = 365
	maxPromotionCost         = 1000.0

	natsSubjectListingPromoted = "listing.promoted"
)

type PromoteCommand struct {
	ListingID    string
	UserID       string
	AdType       entity.AdType
	DurationDays int
	Cost         float64
}

type PromotionService interface {
	Promote(ctx context.Context, cmd PromoteCommand) (*entity.Listing, error)
}

type promotionService struct {
	listingRepo  repository.ListingRepository
	ledger       LedgerService
	listingLocks *lock.KeyedMutex
	msgPublisher natsadapter.MessagePublisher
	notify       notifier.Notifier
	log          logger.Logger
	metrics      *metrics.Manager
}

func NewPromotionService(
	listingRepo repository.ListingRepository,
	ledger LedgerService,
	listingLocks *lock.KeyedMutex,
	msgPublisher natsadapter.MessagePublisher,
	notify notifier.Notifier,
	log logger.Logger,
	m *metrics.Manager,
) PromotionService {
	return &promotionService{
		listingRepo:  listingRepo,
		ledger:       ledger,
		listingLocks: listingLocks,
		msgPublisher: msgPublisher,
		notify:       notify,
		log:          log,
		metrics:      m,
	}
}

func (s *promotionService) validate(cmd PromoteCommand) error {
	if cmd.ListingID == "" || cmd.UserID == "" {
		return fmt.Errorf("%w: listing id and user id are required", entity.ErrInvalidInput)
	}
	if !cmd.AdType.IsPaid() {
		return fmt.Errorf("%w: %q is not a purchasable ad type", entity.ErrInvalidInput, cmd.AdType)
	}
	if cmd.DurationDays <= 0 || cmd.DurationDays > maxPromotionDurationDays {
		return fmt.Errorf("%w: duration must be between 1 and %d days", entity.ErrInvalidInput, maxPromotionDurationDays)
	}
	cost, err := toAmount(cmd.Cost)
	if err != nil {
		return err
	}
	if !cost.IsPositive() || cmd.Cost > maxPromotionCost {
		return fmt.Errorf("%w: cost must be in (0, %.0f]", entity.ErrInvalidAmount, maxPromotionCost)
	}
	return nil
}

// Promote charges the owner's ledger and applies the paid ad type. The
// debit and the listing write are not one transaction: if the write fails
// after a successful charge, the exact pool split is credited back before
// the error is returned, so callers only ever see fully-applied or
// fully-rolled-back.
func (s *promotionService) Promote(ctx context.Context, cmd PromoteCommand) (*entity.Listing, error) {
	if err := s.validate(cmd); err != nil {
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
		return nil, fmt.Errorf("cannot promote listing %s: %w", cmd.ListingID, entity.ErrListingDeleted)
	}
	if listing.IsArchived {
		return nil, fmt.Errorf("cannot promote listing %s: %w", cmd.ListingID, entity.ErrListingArchived)
	}
	if listing.IsExpired(now) {
		return nil, fmt.Errorf("cannot promote listing %s: %w", cmd.ListingID, entity.ErrListingExpired)
	}
	if listing.OwnerID != cmd.UserID {
		return nil, fmt.Errorf("user %s does not own listing %s: %w", cmd.UserID, cmd.ListingID, entity.ErrForbidden)
	}

	// Re-promoting before the current window ends is a renewal, not an
	// error; it overwrites the window.
	if listing.HasActivePromotion(now) {
		s.log.Warnf("Listing %s already has an active %s promotion until %s; overwriting with %s",
			listing.ID, listing.AdType, listing.PromotionEndDate, cmd.AdType)
	}

	cost, err := toAmount(cmd.Cost)
	if err != nil {
		return nil, err
	}

	breakdown, err := s.ledger.Charge(ctx, cmd.UserID, cost)
	if err != nil {
		return nil, fmt.Errorf("could not charge promotion cost: %w", err)
	}

	if err := s.applyAndSave(ctx, listing, cmd, now); err != nil {
		if refundErr := s.ledger.Refund(ctx, cmd.UserID, breakdown); refundErr != nil {
			s.log.Errorf("Refund of %s for user %s failed after promotion rollback, manual reconciliation needed: %v",
				breakdown.Total(), cmd.UserID, refundErr)
		}
		if s.metrics != nil {
			s.metrics.RollbacksTotal.WithLabelValues("promote").Inc()
		}
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.PromotionsTotal.WithLabelValues(string(cmd.AdType)).Inc()
	}

	if err := s.msgPublisher.Publish(ctx, natsSubjectListingPromoted, listing); err != nil {
		s.log.Warnf("Failed to publish %s event for listing %s: %v", natsSubjectListingPromoted, listing.ID, err)
	}

	s.notify.Notify(ctx, notifier.Notification{
		OwnerID:   listing.OwnerID,
		ListingID: listing.ID,
		Kind:      notifier.KindPromoted,
		Title:     "Promotion active",
		Body:      fmt.Sprintf("Your listing %q is now promoted as %s until %s.", listing.Title, listing.AdType, listing.PromotionEndDate.Format("2 Jan 2006")),
	})

	s.log.Infof("Listing %s promoted to %s for %d days, cost %.2f", listing.ID, cmd.AdType, cmd.DurationDays, cmd.Cost)
	return listing, nil
}

func (s *promotionService) applyAndSave(ctx context.Context, listing *entity.Listing, cmd PromoteCommand, now time.Time) error {
	if err := listing.ApplyPromotion(cmd.AdType, cmd.DurationDays, now); err != nil {
		return err
	}
	if err := s.listingRepo.Update(ctx, listing); err != nil {
		return fmt.Errorf("could not save promoted listing %s: %w", listing.ID, err)
	}
	return nil
}
