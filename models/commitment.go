package models

import "time"

// CommitmentMode selects which activity counts toward settlement.
type CommitmentMode string

const (
	// CommitmentModeHard counts every activity item in the period.
	CommitmentModeHard CommitmentMode = "HARD"
	// CommitmentModeCustom counts only the selected categories.
	CommitmentModeCustom CommitmentMode = "CUSTOM"
)

func (m CommitmentMode) Valid() bool {
	return m == CommitmentModeHard || m == CommitmentModeCustom
}

type CommitmentStatus string

const (
	CommitmentStatusActive  CommitmentStatus = "ACTIVE"
	CommitmentStatusSettled CommitmentStatus = "SETTLED"
)

// CommitmentConfig is the per-wallet, per-period settlement configuration.
// Amounts are kept as decimal strings so no precision is lost in storage.
type CommitmentConfig struct {
	ID                  string           `gorm:"primaryKey;type:varchar(36)" json:"id"`
	WalletAddress       string           `gorm:"size:42;not null;uniqueIndex:idx_commitment_wallet_period" json:"wallet_address"`
	PeriodID            int              `gorm:"not null;uniqueIndex:idx_commitment_wallet_period" json:"period_id"`
	Mode                CommitmentMode   `gorm:"size:16;not null;default:'HARD'" json:"mode"`
	CategoryIDs         []string         `gorm:"serializer:json;type:text" json:"category_ids"`
	DepositRef          string           `gorm:"size:128" json:"deposit_ref,omitempty"`
	Status              CommitmentStatus `gorm:"size:16;not null;default:'ACTIVE'" json:"status"`
	SettlementTxHash    *string          `gorm:"size:80" json:"settlement_tx_hash,omitempty"`
	AmountReturned      *string          `gorm:"type:varchar(78)" json:"amount_returned,omitempty"`
	SettlementSignature *string          `gorm:"type:text" json:"settlement_signature,omitempty"`
	SignedAmount        *string          `gorm:"type:varchar(78)" json:"signed_amount,omitempty"`
	SignatureDeadline   *int64           `json:"signature_deadline,omitempty"`
	SettledAt           *time.Time       `json:"settled_at,omitempty"`
	Timestamps
}

// DefaultCommitment is the implicit configuration when none is stored.
func DefaultCommitment(wallet string, periodID int) CommitmentConfig {
	return CommitmentConfig{
		WalletAddress: wallet,
		PeriodID:      periodID,
		Mode:          CommitmentModeHard,
		Status:        CommitmentStatusActive,
	}
}

// CategoryFilter returns the categories to filter the ledger by, or nil when
// every item counts.
func (c CommitmentConfig) CategoryFilter() []string {
	if c.Mode != CommitmentModeCustom || len(c.CategoryIDs) == 0 {
		return nil
	}
	return c.CategoryIDs
}
