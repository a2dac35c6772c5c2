// services/reward_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"lvlup-backend/apperr"
	"lvlup-backend/blockchain"
	"lvlup-backend/logger"
	"lvlup-backend/metrics"
	"lvlup-backend/models"
	"lvlup-backend/storage"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// EligibilityStatus is the claimability of one task.
type EligibilityStatus string

const (
	EligibilityNotFound       EligibilityStatus = "not_found"
	EligibilityIncomplete     EligibilityStatus = "incomplete"
	EligibilityAlreadyClaimed EligibilityStatus = "already_claimed"
	EligibilityReady          EligibilityStatus = "ready_to_claim"
)

type Eligibility struct {
	TaskID    string            `json:"task_id"`
	CanClaim  bool              `json:"can_claim"`
	Status    EligibilityStatus `json:"status"`
	Reason    string            `json:"reason,omitempty"`
	ClaimedAt *time.Time        `json:"claimed_at,omitempty"`
}

type RewardConfirmation struct {
	Claim            *models.RewardClaim `json:"claim"`
	AlreadyConfirmed bool                `json:"already_confirmed"`
}

type RewardStats struct {
	UserID         string          `json:"user_id"`
	TotalClaimed   decimal.Decimal `json:"total_claimed"`
	ClaimsCount    int             `json:"claims_count"`
	TasksCompleted int             `json:"tasks_completed"`
	PendingTasks   int             `json:"pending_tasks"`
	PendingRewards decimal.Decimal `json:"pending_rewards"`
	LastClaimAt    *time.Time      `json:"last_claim_at,omitempty"`
}

// RewardService signs a fixed per-task reward for completed activity items.
type RewardService struct {
	claims        storage.RewardStore
	activities    storage.ActivityStore
	signer        ClaimSigner
	archive       ReceiptArchive
	rewardPerTask *big.Int
	clock         clockwork.Clock
	log           *zap.Logger
}

func NewRewardService(claims storage.RewardStore, activities storage.ActivityStore, signer ClaimSigner, archive ReceiptArchive, rewardPerTask *big.Int, clock clockwork.Clock, log *zap.Logger) *RewardService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if rewardPerTask == nil {
		rewardPerTask = new(big.Int)
	}
	return &RewardService{
		claims:        claims,
		activities:    activities,
		signer:        signer,
		archive:       archive,
		rewardPerTask: new(big.Int).Set(rewardPerTask),
		clock:         clock,
		log:           logger.OrNop(log).Named("rewards"),
	}
}

// ClaimTaskReward signs the reward for a completed task and records the claim.
// A task can be claimed once per user.
func (s *RewardService) ClaimTaskReward(ctx context.Context, userID, walletAddress, taskID string) (*models.RewardClaim, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, apperr.Newf(apperr.ErrInvalidInput, "user_id is required")
	}
	wallet, err := blockchain.ParseWallet(walletAddress)
	if err != nil {
		return nil, err
	}

	item, err := s.ownedTask(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}
	if !item.IsComplete() {
		return nil, apperr.ErrTaskIncomplete
	}
	if _, err := s.claims.GetRewardClaim(ctx, userID, item.ID); err == nil {
		return nil, apperr.ErrDuplicateTaskClaim
	} else if !errors.Is(err, apperr.ErrClaimNotFound) {
		return nil, err
	}

	sig, err := s.signer.SignClaim(wallet.Hex(), s.rewardPerTask, item.ID)
	if err != nil {
		s.log.Error("failed to sign task reward", zap.String("user_id", userID), zap.String("task_id", item.ID), zap.Error(err))
		return nil, err
	}

	claim := &models.RewardClaim{
		UserID:          userID,
		TaskID:          item.ID,
		UserAddress:     wallet.Hex(),
		RewardAmount:    sig.RewardAmount.String(),
		Signature:       sig.Signature,
		SignedTimestamp: sig.Timestamp,
		Status:          models.RewardStatusSigned,
		ClaimedAt:       s.clock.Now().UTC(),
	}
	if err := s.claims.CreateRewardClaim(ctx, claim); err != nil {
		if apperr.IsExpected(err) {
			s.log.Info("task reward rejected", zap.String("user_id", userID), zap.String("task_id", item.ID), zap.Error(err))
		}
		return nil, err
	}

	metrics.RecordSignature("task_reward")
	s.log.Info("task reward signed",
		zap.String("user_id", userID),
		zap.String("task_id", item.ID),
		zap.String("amount", claim.RewardAmount),
	)
	return claim, nil
}

// ConfirmRewardTx records the transaction that redeemed a claim. A claim that
// is already confirmed is returned unchanged.
func (s *RewardService) ConfirmRewardTx(ctx context.Context, userID, taskID, txHash string) (*RewardConfirmation, error) {
	txHash = strings.TrimSpace(txHash)
	if txHash == "" {
		return nil, apperr.Newf(apperr.ErrInvalidInput, "transaction_hash is required")
	}

	confirmed, err := s.claims.ConfirmRewardClaim(ctx, userID, taskID, txHash, s.clock.Now().UTC())
	if err != nil {
		return nil, err
	}
	claim, err := s.claims.GetRewardClaim(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}
	if !confirmed {
		return &RewardConfirmation{Claim: claim, AlreadyConfirmed: true}, nil
	}

	s.log.Info("task reward confirmed", zap.String("user_id", userID), zap.String("task_id", taskID), zap.String("tx_hash", txHash))
	if s.archive != nil {
		key := fmt.Sprintf("rewards/%s/%s.json", userID, taskID)
		if err := s.archive.PutJSON(ctx, key, claim); err != nil {
			s.log.Warn("failed to archive reward receipt", zap.String("key", key), zap.Error(err))
		}
	}
	return &RewardConfirmation{Claim: claim}, nil
}

func (s *RewardService) ValidateEligibility(ctx context.Context, userID, taskID string) (*Eligibility, error) {
	out := &Eligibility{TaskID: taskID}

	item, err := s.ownedTask(ctx, userID, taskID)
	if errors.Is(err, apperr.ErrTaskNotFound) {
		out.Status, out.Reason = EligibilityNotFound, "task does not exist"
		return out, nil
	}
	if err != nil {
		return nil, err
	}
	if !item.IsComplete() {
		out.Status, out.Reason = EligibilityIncomplete, "task is not completed yet"
		return out, nil
	}

	claim, err := s.claims.GetRewardClaim(ctx, userID, taskID)
	switch {
	case err == nil:
		out.Status, out.Reason = EligibilityAlreadyClaimed, "reward already claimed"
		claimedAt := claim.ClaimedAt
		out.ClaimedAt = &claimedAt
	case errors.Is(err, apperr.ErrClaimNotFound):
		out.Status, out.CanClaim = EligibilityReady, true
	default:
		return nil, err
	}
	return out, nil
}

// History lists the user's claims, newest first.
func (s *RewardService) History(ctx context.Context, userID string) ([]models.RewardClaim, error) {
	return s.claims.ListRewardClaims(ctx, userID)
}

func (s *RewardService) Stats(ctx context.Context, userID string) (*RewardStats, error) {
	claims, err := s.claims.ListRewardClaims(ctx, userID)
	if err != nil {
		return nil, err
	}
	completed, err := s.activities.ListCompletedActivities(ctx, userID)
	if err != nil {
		return nil, err
	}

	stats := &RewardStats{UserID: userID, TotalClaimed: decimal.Zero, ClaimsCount: len(claims)}
	claimed := make(map[string]struct{}, len(claims))
	for i := range claims {
		c := &claims[i]
		claimed[c.TaskID] = struct{}{}
		if amount, err := decimal.NewFromString(c.RewardAmount); err == nil {
			stats.TotalClaimed = stats.TotalClaimed.Add(amount)
		}
		if stats.LastClaimAt == nil || c.ClaimedAt.After(*stats.LastClaimAt) {
			at := c.ClaimedAt
			stats.LastClaimAt = &at
		}
	}
	for _, item := range completed {
		if _, ok := claimed[item.ID]; !ok {
			stats.PendingTasks++
		}
	}
	stats.TasksCompleted = len(claims) + stats.PendingTasks
	stats.PendingRewards = decimal.NewFromBigInt(s.rewardPerTask, 0).Mul(decimal.NewFromInt(int64(stats.PendingTasks)))
	return stats, nil
}

func (s *RewardService) ownedTask(ctx context.Context, userID, taskID string) (*models.ActivityItem, error) {
	item, err := s.activities.GetActivityByID(ctx, strings.TrimSpace(taskID))
	if err != nil {
		return nil, err
	}
	if item.UserID != "" && item.UserID != userID {
		return nil, apperr.ErrTaskNotFound
	}
	return item, nil
}
