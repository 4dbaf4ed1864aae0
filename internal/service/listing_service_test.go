package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/velomarket/listing-engine/internal/domain/entity"
	"github.com/velomarket/listing-engine/internal/platform/lock"
)

type listingFixture struct {
	listingRepo *MockListingRepository
	unusedRepo  *MockUnusedViewsRepository
	publisher   *MockMessagePublisher
	svc         ListingService
}

func newListingFixture() *listingFixture {
	f := &listingFixture{
		listingRepo: new(MockListingRepository),
		unusedRepo:  new(MockUnusedViewsRepository),
		publisher:   new(MockMessagePublisher),
	}
	f.svc = NewListingService(f.listingRepo, f.unusedRepo, lock.NewKeyedMutex(), f.publisher, noopLogger{}, 30*24*time.Hour)
	return f
}

func TestListingService_CreateListing_TransfersUnusedViews(t *testing.T) {
	f := newListingFixture()

	f.unusedRepo.On("Get", mock.Anything, "user-1").Return(int64(80), nil)
	f.unusedRepo.On("Reset", mock.Anything, "user-1").Return(nil)
	f.listingRepo.On("Create", mock.Anything, mock.AnythingOfType("*entity.Listing")).Return(nil)
	f.publisher.On("Publish", mock.Anything, "listing.created", mock.Anything).Return(nil)

	listing, err := f.svc.CreateListing(context.Background(), CreateListingCommand{
		OwnerID: "user-1",
		Title:   "Gravel bike",
		Price:   900,
	})
	require.NoError(t, err)

	// Carried-over views behave like a fresh view package on the new
	// listing: target = views (0) + 80.
	require.NotNil(t, listing.TargetViewsForFeatured)
	assert.Equal(t, int64(80), *listing.TargetViewsForFeatured)
	assert.Equal(t, int64(80), listing.PurchasedViews)
	assert.True(t, listing.FeaturedByViews)

	f.unusedRepo.AssertCalled(t, "Reset", mock.Anything, "user-1")
}

func TestListingService_CreateListing_NoCarryOver(t *testing.T) {
	f := newListingFixture()

	f.unusedRepo.On("Get", mock.Anything, "user-1").Return(int64(0), nil)
	f.listingRepo.On("Create", mock.Anything, mock.AnythingOfType("*entity.Listing")).Return(nil)
	f.publisher.On("Publish", mock.Anything, "listing.created", mock.Anything).Return(nil)

	listing, err := f.svc.CreateListing(context.Background(), CreateListingCommand{
		OwnerID: "user-1",
		Title:   "Road bike",
		Price:   1200,
	})
	require.NoError(t, err)

	assert.Nil(t, listing.TargetViewsForFeatured)
	assert.Equal(t, entity.AdTypeFree, listing.AdType)
	assert.NotEmpty(t, listing.ID)
	f.unusedRepo.AssertNotCalled(t, "Reset", mock.Anything, mock.Anything)
}

func TestListingService_DeleteListing_SoftDeletesForOwner(t *testing.T) {
	f := newListingFixture()
	listing := activeListing(t)

	f.listingRepo.On("GetByID", mock.Anything, "listing-1").Return(listing, nil)
	f.listingRepo.On("Update", mock.Anything, listing).Return(nil)

	err := f.svc.DeleteListing(context.Background(), "listing-1", "user-1")
	require.NoError(t, err)
	assert.True(t, listing.IsDeleted())
}

func TestListingService_DeleteListing_Forbidden(t *testing.T) {
	f := newListingFixture()
	listing := activeListing(t)

	f.listingRepo.On("GetByID", mock.Anything, "listing-1").Return(listing, nil)

	err := f.svc.DeleteListing(context.Background(), "listing-1", "intruder")
	assert.ErrorIs(t, err, entity.ErrForbidden)
	assert.False(t, listing.IsDeleted())
}

func TestListingService_DeleteListing_IdempotentOnDeleted(t *testing.T) {
	f := newListingFixture()
	listing := activeListing(t)
	listing.SoftDelete(time.Now().UTC())

	f.listingRepo.On("GetByID", mock.Anything, "listing-1").Return(listing, nil)

	err := f.svc.DeleteListing(context.Background(), "listing-1", "user-1")
	require.NoError(t, err)
	f.listingRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}
