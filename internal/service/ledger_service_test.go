package service

import (
	"context"
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/velomarket/listing-engine/internal/domain/entity"
	"github.com/velomarket/listing-engine/internal/repository"
)

func TestLedgerService_TopUp_NewUserStartsFromZero(t *testing.T) {
	balanceRepo := new(MockBalanceRepository)
	balanceRepo.On("GetByUserID", mock.Anything, "user-1").Return(nil, repository.ErrNotFound)
	balanceRepo.On("Save", mock.Anything, mock.AnythingOfType("*entity.Balance")).Return(nil)

	svc := NewLedgerService(balanceRepo, noopLogger{})

	balance, err := svc.TopUp(context.Background(), TopUpCommand{
		UserID: "user-1",
		Pool:   entity.PoolWallet,
		Amount: 50,
	})
	require.NoError(t, err)

	assert.True(t, balance.Wallet.Equal(decimal.NewFromInt(50)))
	assert.True(t, balance.Bonus.IsZero())
	balanceRepo.AssertExpectations(t)
}

func TestLedgerService_TopUp_RejectsNonFiniteAmounts(t *testing.T) {
	svc := NewLedgerService(new(MockBalanceRepository), noopLogger{})

	for _, amount := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := svc.TopUp(context.Background(), TopUpCommand{
			UserID: "user-1",
			Pool:   entity.PoolWallet,
			Amount: amount,
		})
		assert.ErrorIs(t, err, entity.ErrInvalidAmount)
	}
}

func TestLedgerService_TopUp_RequiresUserID(t *testing.T) {
	svc := NewLedgerService(new(MockBalanceRepository), noopLogger{})

	_, err := svc.TopUp(context.Background(), TopUpCommand{Pool: entity.PoolWallet, Amount: 10})
	assert.ErrorIs(t, err, entity.ErrInvalidInput)
}

func TestLedgerService_Charge_BonusFirstAndPersisted(t *testing.T) {
	stored := entity.NewBalance("user-1")
	require.NoError(t, stored.Credit(entity.PoolWallet, decimal.NewFromInt(3)))
	require.NoError(t, stored.Credit(entity.PoolBonus, decimal.NewFromInt(2)))

	balanceRepo := new(MockBalanceRepository)
	balanceRepo.On("GetByUserID", mock.Anything, "user-1").Return(stored, nil)

	var saved *entity.Balance
	balanceRepo.On("Save", mock.Anything, mock.AnythingOfType("*entity.Balance")).
		Run(func(args mock.Arguments) { saved = args.Get(1).(*entity.Balance) }).
		Return(nil)

	svc := NewLedgerService(balanceRepo, noopLogger{})

	breakdown, err := svc.Charge(context.Background(), "user-1", decimal.NewFromInt(4))
	require.NoError(t, err)

	assert.True(t, breakdown.FromBonus.Equal(decimal.NewFromInt(2)))
	assert.True(t, breakdown.FromWallet.Equal(decimal.NewFromInt(2)))

	require.NotNil(t, saved)
	assert.True(t, saved.Bonus.IsZero())
	assert.True(t, saved.Wallet.Equal(decimal.NewFromInt(1)))
}

func TestLedgerService_Charge_InsufficientDoesNotSave(t *testing.T) {
	stored := entity.NewBalance("user-1")
	require.NoError(t, stored.Credit(entity.PoolBonus, decimal.NewFromInt(2)))

	balanceRepo := new(MockBalanceRepository)
	balanceRepo.On("GetByUserID", mock.Anything, "user-1").Return(stored, nil)

	svc := NewLedgerService(balanceRepo, noopLogger{})

	_, err := svc.Charge(context.Background(), "user-1", decimal.NewFromInt(5))
	assert.ErrorIs(t, err, entity.ErrInsufficientBalance)

	balanceRepo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	assert.True(t, stored.Bonus.Equal(decimal.NewFromInt(2)))
}

func TestLedgerService_Refund_RestoresPoolSplit(t *testing.T) {
	stored := entity.NewBalance("user-1")

	balanceRepo := new(MockBalanceRepository)
	balanceRepo.On("GetByUserID", mock.Anything, "user-1").Return(stored, nil)
	balanceRepo.On("Save", mock.Anything, mock.AnythingOfType("*entity.Balance")).Return(nil)

	svc := NewLedgerService(balanceRepo, noopLogger{})

	err := svc.Refund(context.Background(), "user-1", entity.DebitBreakdown{
		FromBonus:  decimal.NewFromInt(2),
		FromWallet: decimal.NewFromInt(2),
	})
	require.NoError(t, err)

	assert.True(t, stored.Bonus.Equal(decimal.NewFromInt(2)))
	assert.True(t, stored.Wallet.Equal(decimal.NewFromInt(2)))
}
