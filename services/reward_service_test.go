package services

import (
	"context"
	"math/big"
	"testing"
	"time"

	"lvlup-backend/apperr"
	"lvlup-backend/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func (e *testEnv) rewards(archive ReceiptArchive) *RewardService {
	return NewRewardService(e.store, e.store, e.signer, archive, big.NewInt(100), e.clock, zap.NewNop())
}

func TestClaimTaskReward(t *testing.T) {
	env := newTestEnv(t)
	svc := env.rewards(nil)
	ctx := context.Background()

	done := env.addActivity(t, "2026-03-11", "health", true)
	pending := env.addActivity(t, "2026-03-11", "health", false)

	_, err := svc.ClaimTaskReward(ctx, "u1", testWallet, "missing")
	assert.ErrorIs(t, err, apperr.ErrTaskNotFound)

	_, err = svc.ClaimTaskReward(ctx, "u1", testWallet, pending.ID)
	assert.ErrorIs(t, err, apperr.ErrTaskIncomplete)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = svc.ClaimTaskReward(ctx, "u2", testWallet, done.ID)
	assert.ErrorIs(t, err, apperr.ErrTaskNotFound, "tasks of other users are invisible")

	claim, err := svc.ClaimTaskReward(ctx, "u1", testWallet, done.ID)
	require.NoError(t, err)
	assert.Equal(t, "100", claim.RewardAmount)
	assert.Equal(t, testNow.Unix(), claim.SignedTimestamp)
	assert.Equal(t, models.RewardStatusSigned, claim.Status)
	assert.True(t, env.signer.VerifySignature(claim.Signature, testWallet, big.NewInt(100), done.ID, claim.SignedTimestamp))

	_, err = svc.ClaimTaskReward(ctx, "u1", testWallet, done.ID)
	assert.ErrorIs(t, err, apperr.ErrDuplicateTaskClaim)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestConfirmRewardTx(t *testing.T) {
	env := newTestEnv(t)
	archive := &fakeArchive{}
	svc := env.rewards(archive)
	ctx := context.Background()

	item := env.addActivity(t, "2026-03-11", "health", true)

	_, err := svc.ConfirmRewardTx(ctx, "u1", item.ID, "0xreward")
	assert.ErrorIs(t, err, apperr.ErrClaimNotFound)

	_, err = svc.ClaimTaskReward(ctx, "u1", testWallet, item.ID)
	require.NoError(t, err)

	res, err := svc.ConfirmRewardTx(ctx, "u1", item.ID, "0xreward")
	require.NoError(t, err)
	assert.False(t, res.AlreadyConfirmed)
	assert.Equal(t, models.RewardStatusConfirmed, res.Claim.Status)
	require.NotNil(t, res.Claim.TransactionHash)
	assert.Equal(t, "0xreward", *res.Claim.TransactionHash)
	assert.Contains(t, archive.objects, "rewards/u1/"+item.ID+".json")

	again, err := svc.ConfirmRewardTx(ctx, "u1", item.ID, "0xanother")
	require.NoError(t, err)
	assert.True(t, again.AlreadyConfirmed)
	assert.Equal(t, "0xreward", *again.Claim.TransactionHash, "a confirmed claim is not rewritten")
}

func TestValidateEligibility(t *testing.T) {
	env := newTestEnv(t)
	svc := env.rewards(nil)
	ctx := context.Background()

	done := env.addActivity(t, "2026-03-11", "health", true)
	pending := env.addActivity(t, "2026-03-11", "health", false)

	tests := []struct {
		taskID   string
		status   EligibilityStatus
		canClaim bool
	}{
		{"missing", EligibilityNotFound, false},
		{pending.ID, EligibilityIncomplete, false},
		{done.ID, EligibilityReady, true},
	}
	for _, tt := range tests {
		got, err := svc.ValidateEligibility(ctx, "u1", tt.taskID)
		require.NoError(t, err)
		assert.Equal(t, tt.status, got.Status, tt.taskID)
		assert.Equal(t, tt.canClaim, got.CanClaim, tt.taskID)
	}

	_, err := svc.ClaimTaskReward(ctx, "u1", testWallet, done.ID)
	require.NoError(t, err)

	got, err := svc.ValidateEligibility(ctx, "u1", done.ID)
	require.NoError(t, err)
	assert.Equal(t, EligibilityAlreadyClaimed, got.Status)
	assert.False(t, got.CanClaim)
	require.NotNil(t, got.ClaimedAt)
}

func TestRewardStats(t *testing.T) {
	env := newTestEnv(t)
	svc := env.rewards(nil)
	ctx := context.Background()

	first := env.addActivity(t, "2026-03-09", "health", true)
	second := env.addActivity(t, "2026-03-10", "health", true)
	env.addActivity(t, "2026-03-11", "health", true)
	env.addActivity(t, "2026-03-11", "health", false)

	_, err := svc.ClaimTaskReward(ctx, "u1", testWallet, first.ID)
	require.NoError(t, err)
	env.clock.Advance(time.Hour)
	_, err = svc.ClaimTaskReward(ctx, "u1", testWallet, second.ID)
	require.NoError(t, err)

	stats, err := svc.Stats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.ClaimsCount)
	assert.Equal(t, "200", stats.TotalClaimed.String())
	assert.Equal(t, 1, stats.PendingTasks)
	assert.Equal(t, "100", stats.PendingRewards.String())
	assert.Equal(t, 3, stats.TasksCompleted)
	require.NotNil(t, stats.LastClaimAt)
	assert.True(t, stats.LastClaimAt.Equal(testNow.Add(time.Hour)))

	history, err := svc.History(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, second.ID, history[0].TaskID)
}
