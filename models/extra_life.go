package models

import "time"

type ExtraLifeResult string

const (
	ExtraLifeSaved     ExtraLifeResult = "saved"
	ExtraLifePenalized ExtraLifeResult = "penalized"
)

// ExtraLifeRecord is an append-only entry. CoinFlip is nil only for the first
// attempt, which is always saved.
type ExtraLifeRecord struct {
	ID            string          `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID        string          `gorm:"not null;uniqueIndex:idx_extra_life_user_attempt" json:"user_id"`
	AttemptNumber int             `gorm:"not null;uniqueIndex:idx_extra_life_user_attempt" json:"attempt_number"`
	Result        ExtraLifeResult `gorm:"size:16;not null" json:"result"`
	CoinFlip      *bool           `json:"coin_flip"`
	UsedAt        time.Time       `gorm:"not null;index" json:"used_at"`
}
