package entity

import (
	"fmt"
	"time"
)

type AdType string

const (
	AdTypeFree     AdType = "free"
	AdTypePremium  AdType = "premium"
	AdTypeFeatured AdType = "featured"
	AdTypeVip      AdType = "vip"
)

const (
	// GracePeriod keeps promotion flags alive after the promotion window
	// ends for personal (non store-owned) listings.
	GracePeriod = 48 * time.Hour

	// Organic view counting stops here to guard against abuse.
	maxOrganicViews = 10_000_000
)

func (t AdType) IsPaid() bool {
	switch t {
	case AdTypePremium, AdTypeFeatured, AdTypeVip:
		return true
	default:
		return false
	}
}

type CreativeEffect struct {
	ID           string    `bson:"id"`
	Price        float64   `bson:"price"`
	DurationDays int       `bson:"duration_days"`
	EndDate      time.Time `bson:"end_date"`
	IsActive     bool      `bson:"is_active"`
}

type Listing struct {
	ID          string  `bson:"_id,omitempty"`
	OwnerID     string  `bson:"owner_id"`
	Title       string  `bson:"title"`
	Price       float64 `bson:"price"`
	StoreOwned  bool    `bson:"store_owned"`

	AdType     AdType `bson:"ad_type"`
	IsPremium  bool   `bson:"is_premium"`
	IsFeatured bool   `bson:"is_featured"`
	IsVip      bool   `bson:"is_vip"`

	PromotionEndDate   *time.Time `bson:"promotion_end_date,omitempty"`
	GracePeriodEndDate *time.Time `bson:"grace_period_end_date,omitempty"`

	Views                  int64  `bson:"views"`
	PurchasedViews         int64  `bson:"purchased_views"`
	TargetViewsForFeatured *int64 `bson:"target_views_for_featured,omitempty"`
	FeaturedByViews        bool   `bson:"featured_by_views"`

	CreativeEffects []CreativeEffect `bson:"creative_effects,omitempty"`

	CreatedAt  time.Time  `bson:"created_at"`
	ExpiresAt  time.Time  `bson:"expires_at"`
	DeletedAt  *time.Time `bson:"deleted_at,omitempty"`
	ArchivedAt *time.Time `bson:"archived_at,omitempty"`
	IsArchived bool       `bson:"is_archived"`

	UpdatedAt time.Time `bson:"updated_at"`
	Version   int       `bson:"version"`
}

func NewListing(id, ownerID, title string, price float64, storeOwned bool, lifetime time.Duration) (*Listing, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: listing id cannot be empty", ErrInvalidInput)
	}
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner id cannot be empty", ErrInvalidInput)
	}
	if lifetime <= 0 {
		return nil, fmt.Errorf("%w: listing lifetime must be positive", ErrInvalidInput)
	}

	now := time.Now().UTC()
	return &Listing{
		ID:         id,
		OwnerID:    ownerID,
		Title:      title,
		Price:      price,
		StoreOwned: storeOwned,
		AdType:     AdTypeFree,
		CreatedAt:  now,
		ExpiresAt:  now.Add(lifetime),
		UpdatedAt:  now,
		Version:    1,
	}, nil
}

func (l *Listing) IsDeleted() bool {
	return l.DeletedAt != nil
}

func (l *Listing) IsExpired(now time.Time) bool {
	return now.After(l.ExpiresAt)
}

// DaysRemaining returns the number of whole-or-partial days until the
// listing expires, rounded up. Zero or negative means expired.
func (l *Listing) DaysRemaining(now time.Time) int {
	remaining := l.ExpiresAt.Sub(now)
	days := int(remaining / (24 * time.Hour))
	if remaining%(24*time.Hour) > 0 {
		days++
	}
	return days
}

func (l *Listing) HasActivePromotion(now time.Time) bool {
	return l.PromotionEndDate != nil && now.Before(*l.PromotionEndDate)
}

func (l *Listing) PromotionExpired(now time.Time) bool {
	return l.PromotionEndDate != nil && now.After(*l.PromotionEndDate)
}

func (l *Listing) InGracePeriod(now time.Time) bool {
	return l.GracePeriodEndDate != nil && !now.After(*l.GracePeriodEndDate)
}

// ApplyPromotion sets the paid ad type and derives the boolean flags from
// it (vip implies premium and featured). The promotion end is the later of
// the listing's own expiry and now+duration, so a promotion bought near the
// end of a listing's life still covers its renewal. Store-owned listings
// get no grace window.
func (l *Listing) ApplyPromotion(adType AdType, durationDays int, now time.Time) error {
	if !adType.IsPaid() {
		return fmt.Errorf("%w: %q is not a purchasable ad type", ErrInvalidInput, adType)
	}

	promotionEnd := now.Add(time.Duration(durationDays) * 24 * time.Hour)
	if l.ExpiresAt.After(promotionEnd) {
		promotionEnd = l.ExpiresAt
	}

	l.AdType = adType
	l.IsPremium = adType == AdTypePremium || adType == AdTypeVip
	l.IsFeatured = adType == AdTypeFeatured || adType == AdTypeVip
	l.IsVip = adType == AdTypeVip
	l.PromotionEndDate = &promotionEnd

	if l.StoreOwned {
		l.GracePeriodEndDate = nil
	} else {
		graceEnd := promotionEnd.Add(GracePeriod)
		l.GracePeriodEndDate = &graceEnd
	}

	l.touch()
	return nil
}

// ClearPromotion drops the listing back to the free tier.
func (l *Listing) ClearPromotion() {
	l.AdType = AdTypeFree
	l.IsPremium = false
	l.IsFeatured = false
	l.IsVip = false
	l.PromotionEndDate = nil
	l.GracePeriodEndDate = nil
	l.touch()
}

// SetViewTarget records a purchased view package: the listing is treated
// as featured until organic views reach the target.
func (l *Listing) SetViewTarget(viewCount int64) {
	target := l.Views + viewCount
	l.PurchasedViews += viewCount
	l.TargetViewsForFeatured = &target
	l.FeaturedByViews = true
	l.touch()
}

// ViewTargetShortfall is how many purchased views were not yet delivered.
func (l *Listing) ViewTargetShortfall() int64 {
	if l.TargetViewsForFeatured == nil {
		return 0
	}
	shortfall := *l.TargetViewsForFeatured - l.Views
	if shortfall < 0 {
		return 0
	}
	return shortfall
}

func (l *Listing) ClearViewTarget() {
	l.TargetViewsForFeatured = nil
	l.FeaturedByViews = false
	l.touch()
}

// RegisterView bumps the organic view counter and reports whether an
// active view target was reached by this view. Counting is capped.
func (l *Listing) RegisterView() (targetReached bool) {
	if l.Views >= maxOrganicViews {
		return false
	}
	l.Views++
	l.touch()

	if l.FeaturedByViews && l.TargetViewsForFeatured != nil && l.Views >= *l.TargetViewsForFeatured {
		l.FeaturedByViews = false
		return true
	}
	return false
}

// ReplaceEffects stores the batch as the listing's active effect set.
// Last write wins: any previously active effects are discarded.
func (l *Listing) ReplaceEffects(effects []CreativeEffect) {
	l.CreativeEffects = effects
	l.touch()
}

// Archive is the terminal auto-archive performed by the expiration sweep.
// The record is kept, never physically removed.
func (l *Listing) Archive(now time.Time) {
	l.IsArchived = true
	archivedAt := now
	l.ArchivedAt = &archivedAt
	l.touch()
}

// SoftDelete marks the listing deleted without removing the record.
func (l *Listing) SoftDelete(now time.Time) {
	deletedAt := now
	l.DeletedAt = &deletedAt
	l.touch()
}

// touch only refreshes UpdatedAt; Version is advanced by the repository
// on a successful optimistic-locked write.
func (l *Listing) touch() {
	l.UpdatedAt = time.Now().UTC()
}
