package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/velomarket/listing-engine/internal/domain/entity"
	"github.com/velomarket/listing-engine/internal/notifier"
	"github.com/velomarket/listing-engine/internal/platform/lock"
	"github.com/velomarket/listing-engine/internal/platform/logger"
	"github.com/velomarket/listing-engine/internal/platform/metrics"
	"github.com/velomarket/listing-engine/internal/repository"
)

const (
	minViewPackageSize = 10
	maxViewPackageSize = 100_000

	// DefaultPricePerView applies when the command leaves the price unset.
	DefaultPricePerView = 0.01
)

type PurchaseViewsCommand struct {
	ListingID    string
	UserID       string
	ViewCount    int64
	PricePerView float64
}

// ViewPackageService sells view packages. A purchased package marks the
// listing featured until organic views reach the recorded target; the flag
// clears on the view increment that meets the target, not on the sweep.
type ViewPackageService interface {
	PurchaseViews(ctx context.Context, cmd PurchaseViewsCommand) (*entity.Listing, error)
	IncrementView(ctx context.Context, listingID string) (*entity.Listing, error)
}

type viewPackageService struct {
	listingRepo  repository.ListingRepository
	ledger       LedgerService
	listingLocks *lock.KeyedMutex
	notify       notifier.Notifier
	log          logger.Logger
	metrics      *metrics.Manager
}

func NewViewPackageService(
	listingRepo repository.ListingRepository,
	ledger LedgerService,
	listingLocks *lock.KeyedMutex,
	notify notifier.Notifier,
	log logger.Logger,
	m *metrics.Manager,
) ViewPackageService {
	return &viewPackageService{
		listingRepo:  listingRepo,
		ledger:       ledger,
		listingLocks: listingLocks,
		notify:       notify,
		log:          log,
		metrics:      m,
	}
}

func (s *viewPackageService) PurchaseViews(ctx context.Context, cmd PurchaseViewsCommand) (*entity.Listing, error) {
	if cmd.ListingID == "" || cmd.UserID == "" {
		return nil, fmt.Errorf("%w: listing id and user id are required", entity.ErrInvalidInput)
	}
	if cmd.ViewCount < minViewPackageSize || cmd.ViewCount > maxViewPackageSize {
		return nil, fmt.Errorf("%w: view count must be between %d and %d", entity.ErrInvalidInput, minViewPackageSize, maxViewPackageSize)
	}

	pricePerView := cmd.PricePerView
	if pricePerView == 0 {
		pricePerView = DefaultPricePerView
	}
	unitPrice, err := toAmount(pricePerView)
	if err != nil {
		return nil, err
	}
	cost := unitPrice.Mul(decimal.NewFromInt(cmd.ViewCount))
	if !cost.IsPositive() {
		return nil, fmt.Errorf("%w: view package cost must be positive", entity.ErrInvalidAmount)
	}

	unlock := s.listingLocks.Lock(cmd.ListingID)
	defer unlock()

	listing, err := s.listingRepo.GetByID(ctx, cmd.ListingID)
	if err != nil {
		return nil, fmt.Errorf("could not load listing %s: %w", cmd.ListingID, err)
	}
	if listing.IsDeleted() {
		return nil, fmt.Errorf("cannot sell views for listing %s: %w", cmd.ListingID, entity.ErrListingDeleted)
	}
	if listing.IsArchived {
		return nil, fmt.Errorf("cannot sell views for listing %s: %w", cmd.ListingID, entity.ErrListingArchived)
	}
	if listing.OwnerID != cmd.UserID {
		return nil, fmt.Errorf("user %s does not own listing %s: %w", cmd.UserID, cmd.ListingID, entity.ErrForbidden)
	}

	breakdown, err := s.ledger.Charge(ctx, cmd.UserID, cost)
	if err != nil {
		return nil, fmt.Errorf("could not charge view package cost: %w", err)
	}

	listing.SetViewTarget(cmd.ViewCount)
	if err := s.listingRepo.Update(ctx, listing); err != nil {
		if refundErr := s.ledger.Refund(ctx, cmd.UserID, breakdown); refundErr != nil {
			s.log.Errorf("Refund of %s for user %s failed after view package rollback, manual reconciliation needed: %v",
				breakdown.Total(), cmd.UserID, refundErr)
		}
		if s.metrics != nil {
			s.metrics.RollbacksTotal.WithLabelValues("purchase_views").Inc()
		}
		return nil, fmt.Errorf("could not save listing %s after view purchase: %w", listing.ID, err)
	}

	if s.metrics != nil {
		s.metrics.ViewPackagesTotal.Inc()
	}

	s.log.Infof("Listing %s got a %d-view package, target now %d, cost %s",
		listing.ID, cmd.ViewCount, *listing.TargetViewsForFeatured, cost)
	return listing, nil
}

// IncrementView records one organic view. Deleted and archived listings
// are skipped silently: view traffic on a dead listing is noise, not an
// error the caller can act on.
func (s *viewPackageService) IncrementView(ctx context.Context, listingID string) (*entity.Listing, error) {
	if listingID == "" {
		return nil, fmt.Errorf("%w: listing id cannot be empty", entity.ErrInvalidInput)
	}

	unlock := s.listingLocks.Lock(listingID)
	defer unlock()

	listing, err := s.listingRepo.GetByID(ctx, listingID)
	if err != nil {
		return nil, fmt.Errorf("could not load listing %s: %w", listingID, err)
	}
	if listing.IsDeleted() || listing.IsArchived {
		return listing, nil
	}

	targetReached := listing.RegisterView()
	if err := s.listingRepo.Update(ctx, listing); err != nil {
		return nil, fmt.Errorf("could not save listing %s after view increment: %w", listingID, err)
	}

	if targetReached {
		s.notify.Notify(ctx, notifier.Notification{
			OwnerID:   listing.OwnerID,
			ListingID: listing.ID,
			Kind:      notifier.KindViewTargetReached,
			Title:     "View package delivered",
			Body:      fmt.Sprintf("Your listing %q reached its purchased view target of %d views.", listing.Title, listing.Views),
		})
	}

	return listing, nil
}
