package models

import "time"

// RewardStatus tracks a per-task reward claim from signing to on-chain confirmation.
type RewardStatus string

const (
	RewardStatusSigned    RewardStatus = "signed"
	RewardStatusConfirmed RewardStatus = "confirmed"
)

// RewardClaim is the signed reward for a completed task. A user may claim a
// task once.
type RewardClaim struct {
	ID              string       `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID          string       `gorm:"not null;uniqueIndex:idx_reward_claims_user_task" json:"user_id"`
	TaskID          string       `gorm:"not null;uniqueIndex:idx_reward_claims_user_task" json:"task_id"`
	UserAddress     string       `gorm:"size:42;not null" json:"user_address"`
	RewardAmount    string       `gorm:"type:varchar(78);not null" json:"reward_amount"`
	Signature       string       `gorm:"type:text;not null" json:"signature"`
	SignedTimestamp int64        `gorm:"not null" json:"timestamp"`
	Status          RewardStatus `gorm:"size:16;not null;default:'signed'" json:"status"`
	TransactionHash *string      `gorm:"size:80" json:"transaction_hash,omitempty"`
	ClaimedAt       time.Time    `gorm:"not null;index" json:"claimed_at"`
	ConfirmedAt     *time.Time   `json:"confirmed_at,omitempty"`
	Timestamps
}
