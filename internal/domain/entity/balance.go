package entity

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type BalancePool string

const (
	PoolWallet BalancePool = "wallet"
	PoolBonus  BalancePool = "bonus"
)

var (
	maxWalletBalance = decimal.NewFromInt(1_000_000)
	maxBonusBalance  = decimal.NewFromInt(100_000)
	maxWalletTopUp   = decimal.NewFromInt(100_000)
	maxBonusTopUp    = decimal.NewFromInt(10_000)
)

// Balance holds a user's two spendable pools. The bonus pool is always
// consumed before the wallet pool (see Debit).
type Balance struct {
	UserID    string
	Wallet    decimal.Decimal
	Bonus     decimal.Decimal
	UpdatedAt time.Time
	Version   int
}

func NewBalance(userID string) *Balance {
	return &Balance{
		UserID:    userID,
		Wallet:    decimal.Zero,
		Bonus:     decimal.Zero,
		UpdatedAt: time.Now().UTC(),
		Version:   1,
	}
}

// DebitBreakdown records how a debit was split across the pools. The
// purchase services keep it around so a failed downstream mutation can be
// compensated with exact per-pool refunds.
type DebitBreakdown struct {
	FromBonus  decimal.Decimal
	FromWallet decimal.Decimal
}

func (d DebitBreakdown) Total() decimal.Decimal {
	return d.FromBonus.Add(d.FromWallet)
}

func (b *Balance) Total() decimal.Decimal {
	return b.Wallet.Add(b.Bonus)
}

func (b *Balance) CanAfford(amount decimal.Decimal) bool {
	return amount.IsPositive() && b.Total().GreaterThanOrEqual(amount)
}

// Credit adds amount to the named pool. Both the resulting pool value and
// the single-transaction top-up are capped; a violating credit leaves the
// balance untouched.
func (b *Balance) Credit(pool BalancePool, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: credit amount must be positive, got %s", ErrInvalidAmount, amount)
	}

	switch pool {
	case PoolWallet:
		if amount.GreaterThan(maxWalletTopUp) {
			return fmt.Errorf("%w: wallet credit %s exceeds per-transaction cap %s", ErrInvalidAmount, amount, maxWalletTopUp)
		}
		if b.Wallet.Add(amount).GreaterThan(maxWalletBalance) {
			return fmt.Errorf("%w: wallet balance would exceed ceiling %s", ErrInvalidAmount, maxWalletBalance)
		}
		b.Wallet = b.Wallet.Add(amount)
	case PoolBonus:
		if amount.GreaterThan(maxBonusTopUp) {
			return fmt.Errorf("%w: bonus credit %s exceeds per-transaction cap %s", ErrInvalidAmount, amount, maxBonusTopUp)
		}
		if b.Bonus.Add(amount).GreaterThan(maxBonusBalance) {
			return fmt.Errorf("%w: bonus balance would exceed ceiling %s", ErrInvalidAmount, maxBonusBalance)
		}
		b.Bonus = b.Bonus.Add(amount)
	default:
		return fmt.Errorf("%w: unknown balance pool %q", ErrInvalidAmount, pool)
	}

	b.UpdatedAt = time.Now().UTC()
	return nil
}

// Debit takes amount out of the balance, bonus pool first, wallet for the
// remainder. The update is all-or-nothing: on insufficient funds neither
// pool is touched. Returns how much was taken from each pool.
func (b *Balance) Debit(amount decimal.Decimal) (DebitBreakdown, error) {
	if !amount.IsPositive() {
		return DebitBreakdown{}, fmt.Errorf("%w: debit amount must be positive, got %s", ErrInvalidAmount, amount)
	}
	if b.Total().LessThan(amount) {
		return DebitBreakdown{}, fmt.Errorf("%w: need %s, have %s", ErrInsufficientBalance, amount, b.Total())
	}

	fromBonus := decimal.Min(b.Bonus, amount)
	fromWallet := amount.Sub(fromBonus)

	b.Bonus = b.Bonus.Sub(fromBonus)
	b.Wallet = b.Wallet.Sub(fromWallet)
	b.UpdatedAt = time.Now().UTC()

	return DebitBreakdown{FromBonus: fromBonus, FromWallet: fromWallet}, nil
}

// Refund reverses a previous debit pool-for-pool. Ceilings do not apply
// here: the money came out of those pools moments ago.
func (b *Balance) Refund(breakdown DebitBreakdown) {
	b.Bonus = b.Bonus.Add(breakdown.FromBonus)
	b.Wallet = b.Wallet.Add(breakdown.FromWallet)
	b.UpdatedAt = time.Now().UTC()
}
