package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// StakeStatus is the lifecycle state of a stake session. Every state other
// than active is terminal.
type StakeStatus string

const (
	StakeStatusActive    StakeStatus = "active"
	StakeStatusCompleted StakeStatus = "completed"
	StakeStatusExpired   StakeStatus = "expired"
	StakeStatusCancelled StakeStatus = "cancelled"
)

func (s StakeStatus) Terminal() bool { return s != StakeStatusActive }

// StakeCycle is the fixed length of a stake session.
const StakeCycle = 7 * 24 * time.Hour

// StakeSession is one commitment cycle. The partial unique index keeps at most
// one active session per user.
type StakeSession struct {
	ID              string              `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID          string              `gorm:"not null;index;uniqueIndex:idx_stake_sessions_one_active,where:status = 'active'" json:"user_id"`
	WalletAddress   string              `gorm:"size:42;not null" json:"wallet_address"`
	Amount          decimal.Decimal     `gorm:"type:varchar(78);not null" json:"amount"`
	HabitsRequired  int                 `gorm:"not null" json:"habits_required"`
	HabitsCompleted int                 `gorm:"not null;default:0" json:"habits_completed"`
	Status          StakeStatus         `gorm:"size:16;not null;index" json:"status"`
	StartedAt       time.Time           `gorm:"not null" json:"started_at"`
	EndsAt          time.Time           `gorm:"not null;index" json:"ends_at"`
	ClaimedAt       *time.Time          `json:"claimed_at,omitempty"`
	StakeTxHash     string              `gorm:"size:80;not null" json:"stake_tx_hash"`
	ClaimTxHash     *string             `gorm:"size:80" json:"claim_tx_hash,omitempty"`
	BaseReward      decimal.NullDecimal `gorm:"type:varchar(78)" json:"base_reward"`
	Bonus           decimal.NullDecimal `gorm:"type:varchar(78)" json:"bonus"`
	Penalty         decimal.NullDecimal `gorm:"type:varchar(78)" json:"penalty"`
	Timestamps
}
