package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	natsadapter "github.com/velomarket/listing-engine/internal/adapter/nats"
	"github.com/velomarket/listing-engine/internal/domain/entity"
	"github.com/velomarket/listing-engine/internal/platform/lock"
	"github.com/velomarket/listing-engine/internal/platform/logger"
	"github.com/velomarket/listing-engine/internal/repository"
)

const natsSubjectListingCreated = "listing.created"

type CreateListingCommand struct {
	OwnerID    string
	Title      string
	Price      float64
	StoreOwned bool
}

// ListingService owns listing creation and soft deletion. Creation is the
// point where an owner's accumulated unused views are transferred onto the
// new listing and zeroed.
type ListingService interface {
	CreateListing(ctx context.Context, cmd CreateListingCommand) (*entity.Listing, error)
	DeleteListing(ctx context.Context, listingID, userID string) error
}

type listingService struct {
	listingRepo     repository.ListingRepository
	unusedViewsRepo repository.UnusedViewsRepository
	listingLocks    *lock.KeyedMutex
	msgPublisher    natsadapter.MessagePublisher
	log             logger.Logger
	listingLifetime time.Duration
}

func NewListingService(
	listingRepo repository.ListingRepository,
	unusedViewsRepo repository.UnusedViewsRepository,
	listingLocks *lock.KeyedMutex,
	msgPublisher natsadapter.MessagePublisher,
	log logger.Logger,
	listingLifetime time.Duration,
) ListingService {
	return &listingService{
		listingRepo:     listingRepo,
		unusedViewsRepo: unusedViewsRepo,
		listingLocks:    listingLocks,
		msgPublisher:    msgPublisher,
		log:             log,
		listingLifetime: listingLifetime,
	}
}

func (s *listingService) CreateListing(ctx context.Context, cmd CreateListingCommand) (*entity.Listing, error) {
	listing, err := entity.NewListing(uuid.NewString(), cmd.OwnerID, cmd.Title, cmd.Price, cmd.StoreOwned, s.listingLifetime)
	if err != nil {
		return nil, err
	}

	carryOver, err := s.unusedViewsRepo.Get(ctx, cmd.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("could not read unused views for owner %s: %w", cmd.OwnerID, err)
	}
	if carryOver > 0 {
		listing.SetViewTarget(carryOver)
		s.log.Infof("Transferring %d unused views from owner %s onto new listing %s", carryOver, cmd.OwnerID, listing.ID)
	}

	if err := s.listingRepo.Create(ctx, listing); err != nil {
		return nil, fmt.Errorf("could not create listing: %w", err)
	}

	if carryOver > 0 {
		if err := s.unusedViewsRepo.Reset(ctx, cmd.OwnerID); err != nil {
			// The listing already carries the views; a failed reset only
			// risks a double transfer, which the next reset attempt fixes.
			s.log.Errorf("Failed to reset unused views for owner %s after transfer: %v", cmd.OwnerID, err)
		}
	}

	if err := s.msgPublisher.Publish(ctx, natsSubjectListingCreated, listing); err != nil {
		s.log.Warnf("Failed to publish %s event for listing %s: %v", natsSubjectListingCreated, listing.ID, err)
	}

	s.log.Infof("Listing %s created for owner %s, expires %s", listing.ID, listing.OwnerID, listing.ExpiresAt.Format(time.RFC3339))
	return listing, nil
}

func (s *listingService) DeleteListing(ctx context.Context, listingID, userID string) error {
	if listingID == "" || userID == "" {
		return fmt.Errorf("%w: listing id and user id are required", entity.ErrInvalidInput)
	}

	unlock := s.listingLocks.Lock(listingID)
	defer unlock()

	listing, err := s.listingRepo.GetByID(ctx, listingID)
	if err != nil {
		return fmt.Errorf("could not load listing %s: %w", listingID, err)
	}
	if listing.OwnerID != userID {
		return fmt.Errorf("user %s does not own listing %s: %w", userID, listingID, entity.ErrForbidden)
	}
	if listing.IsDeleted() {
		return nil
	}

	listing.SoftDelete(time.Now().UTC())
	if err := s.listingRepo.Update(ctx, listing); err != nil {
		return fmt.Errorf("could not soft-delete listing %s: %w", listingID, err)
	}

	s.log.Infof("Listing %s soft-deleted by owner %s", listingID, userID)
	return nil
}
