package services

import (
	"context"
	"errors"
	"math/big"

	"lvlup-backend/apperr"
	"lvlup-backend/models"
	"lvlup-backend/storage"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
)

// Completion at or above successNumerator/successDenominator returns the full
// deposit. Anything lower returns penaltyKeep tenths of it.
const (
	successNumerator   = 8
	successDenominator = 10
	penaltyKeep        = 9
)

// PayoutBreakdown explains how a settlement amount was reached.
type PayoutBreakdown struct {
	WalletAddress  string                `json:"wallet_address"`
	Period         Period                `json:"period"`
	Mode           models.CommitmentMode `json:"mode"`
	CategoryIDs    []string              `json:"category_ids,omitempty"`
	TotalRelevant  int64                 `json:"total_relevant"`
	Completed      int64                 `json:"completed"`
	CompletionRate decimal.Decimal       `json:"completion_rate"`
	Deposit        *big.Int              `json:"deposit"`
	Amount         *big.Int              `json:"amount"`
	Penalized      bool                  `json:"penalized"`
}

// PayoutCalculator turns ledger state and commitment configuration into a
// settlement amount. It never writes.
type PayoutCalculator struct {
	ledger      storage.ActivityLedger
	commitments storage.CommitmentStore
	clock       clockwork.Clock
}

func NewPayoutCalculator(ledger storage.ActivityLedger, commitments storage.CommitmentStore, clock clockwork.Clock) *PayoutCalculator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &PayoutCalculator{ledger: ledger, commitments: commitments, clock: clock}
}

// ComputePayout returns the amount, in atomic units, the wallet gets back for
// periodID.
func (c *PayoutCalculator) ComputePayout(ctx context.Context, wallet string, periodID int, deposit *big.Int) (*big.Int, error) {
	b, err := c.Breakdown(ctx, wallet, periodID, deposit)
	if err != nil {
		return nil, err
	}
	return b.Amount, nil
}

// Breakdown is ComputePayout with the counts that produced the amount.
func (c *PayoutCalculator) Breakdown(ctx context.Context, wallet string, periodID int, deposit *big.Int) (*PayoutBreakdown, error) {
	if deposit == nil || deposit.Sign() < 0 {
		return nil, apperr.Newf(apperr.ErrInvalidAmountFormat, "deposit must be a non-negative integer")
	}
	period, err := ResolvePeriod(periodID, c.clock.Now())
	if err != nil {
		return nil, err
	}

	out := &PayoutBreakdown{
		WalletAddress:  wallet,
		Period:         period,
		Mode:           models.CommitmentModeHard,
		CompletionRate: decimal.Zero,
		Deposit:        new(big.Int).Set(deposit),
		Amount:         new(big.Int),
	}
	if deposit.Sign() == 0 {
		return out, nil
	}

	cfg, err := c.commitment(ctx, wallet, periodID)
	if err != nil {
		return nil, err
	}
	out.Mode = cfg.Mode
	out.CategoryIDs = cfg.CategoryFilter()

	q := storage.LedgerQuery{Dates: period.Dates, CategoryIDs: out.CategoryIDs, OwnerWallet: wallet}
	if out.TotalRelevant, err = c.ledger.CountByDateRangeAndCategory(ctx, q); err != nil {
		return nil, err
	}
	if out.Completed, err = c.ledger.CountCompletedByDateRangeAndCategory(ctx, q); err != nil {
		return nil, err
	}

	out.Amount, out.Penalized = ApplyPayoutRule(deposit, out.TotalRelevant, out.Completed)
	if out.TotalRelevant > 0 {
		out.CompletionRate = decimal.NewFromInt(out.Completed).
			Mul(decimal.NewFromInt(100)).
			DivRound(decimal.NewFromInt(out.TotalRelevant), 2)
	}
	return out, nil
}

func (c *PayoutCalculator) commitment(ctx context.Context, wallet string, periodID int) (*models.CommitmentConfig, error) {
	cfg, err := c.commitments.GetCommitment(ctx, wallet, periodID)
	if errors.Is(err, apperr.ErrNotFound) {
		def := models.DefaultCommitment(wallet, periodID)
		return &def, nil
	}
	return cfg, err
}

// ApplyPayoutRule is the settlement rule on raw counts. With nothing
// scheduled the deposit is returned whole.
func ApplyPayoutRule(deposit *big.Int, totalRelevant, completed int64) (*big.Int, bool) {
	if totalRelevant <= 0 || completed*successDenominator >= totalRelevant*successNumerator {
		return new(big.Int).Set(deposit), false
	}
	kept := new(big.Int).Mul(deposit, big.NewInt(penaltyKeep))
	return kept.Quo(kept, big.NewInt(10)), true
}
