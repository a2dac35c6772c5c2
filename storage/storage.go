// Package storage defines the persistence contracts of the settlement engine
// and their gorm implementation.
package storage

import (
	"context"
	"time"

	"lvlup-backend/models"

	"github.com/shopspring/decimal"
)

// LedgerQuery selects activity items by calendar date. A nil CategoryIDs
// counts every category and an empty OwnerWallet counts every owner.
type LedgerQuery struct {
	Dates       []string
	CategoryIDs []string
	OwnerWallet string
}

// ActivityLedger is the read-only view over recorded activity.
type ActivityLedger interface {
	CountByDateRangeAndCategory(ctx context.Context, q LedgerQuery) (int64, error)
	CountCompletedByDateRangeAndCategory(ctx context.Context, q LedgerQuery) (int64, error)
	// GetActivityByID returns apperr.ErrTaskNotFound when the item does not exist.
	GetActivityByID(ctx context.Context, id string) (*models.ActivityItem, error)
}

// ActivityStore adds the write side used by the planner endpoints and the sync worker.
type ActivityStore interface {
	ActivityLedger
	CreateActivity(ctx context.Context, item *models.ActivityItem) error
	SetActivityCompleted(ctx context.Context, id string, completed bool) (*models.ActivityItem, error)
	ListActivitiesByDate(ctx context.Context, userID, date string) ([]models.ActivityItem, error)
	ListCompletedActivities(ctx context.Context, userID string) ([]models.ActivityItem, error)
	DeleteActivity(ctx context.Context, id string) error
	UpsertActivities(ctx context.Context, items []models.ActivityItem) error
}

// CommitmentStore persists per-period commitment configuration.
type CommitmentStore interface {
	// GetCommitment returns apperr.ErrNotFound when nothing is stored.
	GetCommitment(ctx context.Context, wallet string, periodID int) (*models.CommitmentConfig, error)
	// UpsertCommitment writes mode, categories and deposit reference. A settled
	// record is never changed and yields apperr.ErrAlreadySettled.
	UpsertCommitment(ctx context.Context, cfg *models.CommitmentConfig) (*models.CommitmentConfig, error)
	// RecordSettlementSignature stores a signed settlement on the record,
	// creating the default record when absent.
	RecordSettlementSignature(ctx context.Context, wallet string, periodID int, sig SettlementSignature) (*models.CommitmentConfig, error)
	// SettleCommitment moves a signed, active record to settled. It reports
	// false when no record matched the guard.
	SettleCommitment(ctx context.Context, wallet string, periodID int, txHash string, at time.Time) (bool, error)
}

type SettlementSignature struct {
	Signature string
	Amount    string
	Deadline  int64
}

// StakeStore persists stake sessions.
type StakeStore interface {
	// CreateStake returns apperr.ErrDuplicateActiveStake when the user already
	// has an active session.
	CreateStake(ctx context.Context, session *models.StakeSession) error
	GetStake(ctx context.Context, id string) (*models.StakeSession, error)
	// GetActiveStake returns apperr.ErrNoActiveStake when none exists.
	GetActiveStake(ctx context.Context, userID string) (*models.StakeSession, error)
	FindStakeByClaimTx(ctx context.Context, userID, claimTxHash string) (*models.StakeSession, error)
	ListStakes(ctx context.Context, userID string) ([]models.StakeSession, error)
	// IncrementHabitsCompleted adds one to an active, unsaturated session in a
	// single guarded update and reports whether a row changed.
	IncrementHabitsCompleted(ctx context.Context, id string) (bool, error)
	// CompleteStake finalizes an active session whose progress still equals
	// expectedCompleted and reports whether a row changed.
	CompleteStake(ctx context.Context, id string, expectedCompleted int, c StakeCompletion) (bool, error)
	// ExpireStakes moves active sessions that ended before cutoff to expired.
	ExpireStakes(ctx context.Context, cutoff time.Time) (int64, error)
}

type StakeCompletion struct {
	ClaimedAt   time.Time
	ClaimTxHash string
	BaseReward  decimal.Decimal
	Bonus       decimal.Decimal
	Penalty     decimal.Decimal
}

// ExtraLifeStore is an append-only log of extra life invocations.
type ExtraLifeStore interface {
	CountExtraLives(ctx context.Context, userID string) (int64, error)
	// AppendExtraLife returns apperr.ErrDuplicate when the attempt number is taken.
	AppendExtraLife(ctx context.Context, record *models.ExtraLifeRecord) error
	ListExtraLives(ctx context.Context, userID string) ([]models.ExtraLifeRecord, error)
}

// RewardStore persists per-task reward claims.
type RewardStore interface {
	// CreateRewardClaim returns apperr.ErrDuplicateTaskClaim for a second claim of a task.
	CreateRewardClaim(ctx context.Context, claim *models.RewardClaim) error
	// GetRewardClaim returns apperr.ErrClaimNotFound when absent.
	GetRewardClaim(ctx context.Context, userID, taskID string) (*models.RewardClaim, error)
	ConfirmRewardClaim(ctx context.Context, userID, taskID, txHash string, at time.Time) (bool, error)
	ListRewardClaims(ctx context.Context, userID string) ([]models.RewardClaim, error)
}

type PlannerStore interface {
	// GetPlannerConfig returns apperr.ErrNotFound when the user never saved one.
	GetPlannerConfig(ctx context.Context, userID string) (*models.PlannerConfig, error)
	SavePlannerConfig(ctx context.Context, cfg *models.PlannerConfig) error
}

// Storage is everything the service persists.
type Storage interface {
	ActivityStore
	CommitmentStore
	StakeStore
	ExtraLifeStore
	RewardStore
	PlannerStore
	Ping(ctx context.Context) error
}
