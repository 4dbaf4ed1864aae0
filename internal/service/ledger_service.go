package service

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
	"github.com/velomarket/listing-engine/internal/domain/entity"
	"github.com/velomarket/listing-engine/internal/platform/lock"
	"github.com/velomarket/listing-engine/internal/platform/logger"
	"github.com/velomarket/listing-engine/internal/repository"
)

type TopUpCommand struct {
	UserID string
	Pool   entity.BalancePool
	Amount float64
}

// LedgerService is the single owner of the bonus-first debit policy. The
// purchase services never touch pool arithmetic directly; they Charge and,
// on a failed downstream mutation, Refund the exact breakdown.
type LedgerService interface {
	TopUp(ctx context.Context, cmd TopUpCommand) (*entity.Balance, error)
	GetBalance(ctx context.Context, userID string) (*entity.Balance, error)
	Charge(ctx context.Context, userID string, amount decimal.Decimal) (entity.DebitBreakdown, error)
	Refund(ctx context.Context, userID string, breakdown entity.DebitBreakdown) error
}

type ledgerService struct {
	balanceRepo repository.BalanceRepository
	locks       *lock.KeyedMutex
	log         logger.Logger
}

func NewLedgerService(balanceRepo repository.BalanceRepository, log logger.Logger) LedgerService {
	return &ledgerService{
		balanceRepo: balanceRepo,
		locks:       lock.NewKeyedMutex(),
		log:         log,
	}
}

// toAmount converts a boundary float into a decimal, rejecting NaN and
// infinities before they can poison the ledger.
func toAmount(v float64) (decimal.Decimal, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.Decimal{}, fmt.Errorf("%w: amount must be finite", entity.ErrInvalidAmount)
	}
	return decimal.NewFromFloat(v), nil
}

// loadOrNew returns the stored balance or a fresh zero-value ledger for
// users that have never been credited.
func (s *ledgerService) loadOrNew(ctx context.Context, userID string) (*entity.Balance, error) {
	balance, err := s.balanceRepo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return entity.NewBalance(userID), nil
		}
		return nil, err
	}
	return balance, nil
}

func (s *ledgerService) TopUp(ctx context.Context, cmd TopUpCommand) (*entity.Balance, error) {
	if cmd.UserID == "" {
		return nil, fmt.Errorf("%w: user id cannot be empty", entity.ErrInvalidInput)
	}
	amount, err := toAmount(cmd.Amount)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(cmd.UserID)
	defer unlock()

	balance, err := s.loadOrNew(ctx, cmd.UserID)
	if err != nil {
		return nil, fmt.Errorf("could not load balance: %w", err)
	}

	if err := balance.Credit(cmd.Pool, amount); err != nil {
		return nil, err
	}
	if err := s.balanceRepo.Save(ctx, balance); err != nil {
		return nil, fmt.Errorf("could not save balance: %w", err)
	}

	s.log.Infof("Credited %s to %s pool of user %s, total now %s", amount, cmd.Pool, cmd.UserID, balance.Total())
	return balance, nil
}

func (s *ledgerService) GetBalance(ctx context.Context, userID string) (*entity.Balance, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id cannot be empty", entity.ErrInvalidInput)
	}
	return s.loadOrNew(ctx, userID)
}

func (s *ledgerService) Charge(ctx context.Context, userID string, amount decimal.Decimal) (entity.DebitBreakdown, error) {
	unlock := s.locks.Lock(userID)
	defer unlock()

	balance, err := s.loadOrNew(ctx, userID)
	if err != nil {
		return entity.DebitBreakdown{}, fmt.Errorf("could not load balance: %w", err)
	}

	breakdown, err := balance.Debit(amount)
	if err != nil {
		return entity.DebitBreakdown{}, err
	}
	if err := s.balanceRepo.Save(ctx, balance); err != nil {
		return entity.DebitBreakdown{}, fmt.Errorf("could not save balance: %w", err)
	}

	s.log.Infof("Charged user %s: %s from bonus, %s from wallet", userID, breakdown.FromBonus, breakdown.FromWallet)
	return breakdown, nil
}

// Refund is the compensation half of the charge/mutate saga. It restores
// the exact per-pool amounts of a prior Charge.
func (s *ledgerService) Refund(ctx context.Context, userID string, breakdown entity.DebitBreakdown) error {
	unlock := s.locks.Lock(userID)
	defer unlock()

	balance, err := s.loadOrNew(ctx, userID)
	if err != nil {
		return fmt.Errorf("could not load balance: %w", err)
	}

	balance.Refund(breakdown)
	if err := s.balanceRepo.Save(ctx, balance); err != nil {
		return fmt.Errorf("could not save balance: %w", err)
	}

	s.log.Infof("Refunded user %s: %s to bonus, %s to wallet", userID, breakdown.FromBonus, breakdown.FromWallet)
	return nil
}
