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
	natsSubjectListingArchived       = "listing.archived"
	natsSubjectListingPromotionEnded = "listing.promotion_ended"

	// One-shot notices stay claimed for a day: a threshold can only fire
	// once per listing per calendar day no matter how often the sweep runs.
	dedupTTL = 24 * time.Hour
)

// expiryTiers maps days-remaining thresholds to the renewal discount
// offered in the notice.
var expiryTiers = map[int]int{7: 15, 3: 10, 1: 5}

// SweepService drives the time-based listing transitions: tiered expiry
// notices, terminal auto-archive with unused-view carry-over, and
// promotion demotion once the window (plus grace, for personal listings)
// has elapsed.
type SweepService struct {
	listingRepo     repository.ListingRepository
	unusedViewsRepo repository.UnusedViewsRepository
	dedup           repository.NotificationDedup
	listingLocks    *lock.KeyedMutex
	msgPublisher    natsadapter.MessagePublisher
	notify          notifier.Notifier
	log             logger.Logger
	metrics         *metrics.Manager
	interval        time.Duration
}

func NewSweepService(
	listingRepo repository.ListingRepository,
	unusedViewsRepo repository.UnusedViewsRepository,
	dedup repository.NotificationDedup,
	listingLocks *lock.KeyedMutex,
	msgPublisher natsadapter.MessagePublisher,
	notify notifier.Notifier,
	log logger.Logger,
	m *metrics.Manager,
	interval time.Duration,
) *SweepService {
	return &SweepService{
		listingRepo:     listingRepo,
		unusedViewsRepo: unusedViewsRepo,
		dedup:           dedup,
		listingLocks:    listingLocks,
		msgPublisher:    msgPublisher,
		notify:          notify,
		log:             log,
		metrics:         m,
		interval:        interval,
	}
}

// Run executes the sweep on a fixed interval until the context is
// cancelled. The app starts this in its own goroutine.
func (s *SweepService) Run(ctx context.Context) {
	s.log.Infof("Expiration sweep started, interval %s", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("Expiration sweep stopped")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx, time.Now().UTC()); err != nil {
				s.log.Errorf("Sweep run failed: %v", err)
			}
		}
	}
}

// RunOnce processes every live listing exactly once. A failure on one
// listing is logged and counted but never aborts the rest of the run.
func (s *SweepService) RunOnce(ctx context.Context, now time.Time) error {
	started := time.Now()

	listings, err := s.listingRepo.ListForSweep(ctx)
	if err != nil {
		return fmt.Errorf("could not list listings for sweep: %w", err)
	}

	for _, listing := range listings {
		if err := s.processListing(ctx, listing.ID, now); err != nil {
			s.log.Errorf("Sweep failed for listing %s: %v", listing.ID, err)
			if s.metrics != nil {
				s.metrics.SweepListingErrors.Inc()
			}
		}
	}

	if s.metrics != nil {
		s.metrics.SweepRunsTotal.Inc()
		s.metrics.SweepDurationSeconds.Observe(time.Since(started).Seconds())
	}
	s.log.Infof("Sweep run finished: %d listings in %s", len(listings), time.Since(started))
	return nil
}

func (s *SweepService) processListing(ctx context.Context, listingID string, now time.Time) error {
	unlock := s.listingLocks.Lock(listingID)
	defer unlock()

	// Reload under the lock: the listing may have changed since the scan.
	listing, err := s.listingRepo.GetByID(ctx, listingID)
	if err != nil {
		return fmt.Errorf("could not reload listing: %w", err)
	}
	if listing.IsDeleted() || listing.IsArchived {
		return nil
	}

	if listing.DaysRemaining(now) <= 0 {
		return s.archiveExpired(ctx, listing, now)
	}
	return s.processLive(ctx, listing, now)
}

// archiveExpired is the terminal transition: carry over any undelivered
// purchased views, drop promotion and view-target state, and archive.
func (s *SweepService) archiveExpired(ctx context.Context, listing *entity.Listing, now time.Time) error {
	shortfall := listing.ViewTargetShortfall()
	if shortfall > 0 {
		if err := s.unusedViewsRepo.Add(ctx, listing.OwnerID, shortfall); err != nil {
			return fmt.Errorf("could not carry over %d unused views: %w", shortfall, err)
		}
	}

	if listing.TargetViewsForFeatured != nil {
		listing.ClearViewTarget()
	}
	if listing.PromotionEndDate != nil || listing.AdType != entity.AdTypeFree {
		listing.ClearPromotion()
	}
	listing.Archive(now)

	if err := s.listingRepo.Update(ctx, listing); err != nil {
		return fmt.Errorf("could not archive listing: %w", err)
	}

	if s.metrics != nil {
		s.metrics.ListingsArchivedTotal.Inc()
	}
	if err := s.msgPublisher.Publish(ctx, natsSubjectListingArchived, listing); err != nil {
		s.log.Warnf("Failed to publish %s event for listing %s: %v", natsSubjectListingArchived, listing.ID, err)
	}

	if shortfall > 0 {
		s.notify.Notify(ctx, notifier.Notification{
			OwnerID:   listing.OwnerID,
			ListingID: listing.ID,
			Kind:      notifier.KindUnusedViews,
			Title:     "Unused views saved",
			Body:      fmt.Sprintf("%d purchased views from %q were not used. They will be applied to your next listing.", shortfall, listing.Title),
		})
	}
	s.notify.Notify(ctx, notifier.Notification{
		OwnerID:   listing.OwnerID,
		ListingID: listing.ID,
		Kind:      notifier.KindArchived,
		Title:     "Listing expired",
		Body:      fmt.Sprintf("Your listing %q has expired and was moved to the archive.", listing.Title),
	})

	s.log.Infof("Listing %s archived by sweep (unused views carried over: %d)", listing.ID, shortfall)
	return nil
}

// processLive handles listings that are still inside their lifetime:
// tiered expiry notices plus the orthogonal promotion state machine.
func (s *SweepService) processLive(ctx context.Context, listing *entity.Listing, now time.Time) error {
	promotionEnded := false
	graceEnding := false

	if listing.PromotionExpired(now) {
		switch {
		case listing.StoreOwned || listing.GracePeriodEndDate == nil:
			// No grace window: demote on the first sweep past the end.
			listing.ClearPromotion()
			promotionEnded = true
		case listing.InGracePeriod(now):
			if listing.GracePeriodEndDate.Sub(now) <= 24*time.Hour {
				graceEnding = true
			}
		default:
			listing.ClearPromotion()
			promotionEnded = true
		}
	}

	if promotionEnded {
		if err := s.listingRepo.Update(ctx, listing); err != nil {
			return fmt.Errorf("could not demote listing: %w", err)
		}
		if err := s.msgPublisher.Publish(ctx, natsSubjectListingPromotionEnded, listing); err != nil {
			s.log.Warnf("Failed to publish %s event for listing %s: %v", natsSubjectListingPromotionEnded, listing.ID, err)
		}
		s.notify.Notify(ctx, notifier.Notification{
			OwnerID:   listing.OwnerID,
			ListingID: listing.ID,
			Kind:      notifier.KindPromotionEnded,
			Title:     "Promotion ended",
			Body:      fmt.Sprintf("The promotion of your listing %q has ended.", listing.Title),
		})
		s.log.Infof("Listing %s demoted to free tier by sweep", listing.ID)
	}

	if graceEnding {
		s.sendOnce(ctx,
			fmt.Sprintf("grace:%s:%s", listing.ID, now.Format("2006-01-02")),
			notifier.Notification{
				OwnerID:   listing.OwnerID,
				ListingID: listing.ID,
				Kind:      notifier.KindGraceEnding,
				Title:     "Promotion grace period ending",
				Body:      fmt.Sprintf("The grace period of your listing %q ends within a day. Renew the promotion to keep its visibility.", listing.Title),
			})
	}

	days := listing.DaysRemaining(now)
	if discount, ok := expiryTiers[days]; ok {
		body := fmt.Sprintf("Your listing %q expires in %d days. Renew now with a %d%% discount.", listing.Title, days, discount)
		if days == 1 {
			body = fmt.Sprintf("Last day! Your listing %q expires today. Renew now with a %d%% discount.", listing.Title, discount)
		}
		s.sendOnce(ctx,
			fmt.Sprintf("expiry:%s:%d:%s", listing.ID, days, now.Format("2006-01-02")),
			notifier.Notification{
				OwnerID:   listing.OwnerID,
				ListingID: listing.ID,
				Kind:      notifier.KindExpiringSoon,
				Title:     fmt.Sprintf("Listing expires in %d day(s)", days),
				Body:      body,
			})
	}

	return nil
}

// sendOnce delivers the notification only if the dedup key has not been
// claimed yet. A dedup store failure suppresses the notice: a missed
// reminder beats a duplicate one.
func (s *SweepService) sendOnce(ctx context.Context, key string, n notifier.Notification) {
	ok, err := s.dedup.MarkOnce(ctx, key, dedupTTL)
	if err != nil {
		s.log.Errorf("Notification dedup check failed for key %s: %v", key, err)
		return
	}
	if !ok {
		return
	}
	s.notify.Notify(ctx, n)
}
