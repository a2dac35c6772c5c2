package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"lvlup-backend/apperr"
	"lvlup-backend/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stakeRequest(userID string, habits int) CreateStakeRequest {
	return CreateStakeRequest{
		UserID:         userID,
		WalletAddress:  testWallet,
		Amount:         "1000000000000000000",
		HabitsRequired: habits,
		StakeTxHash:    "0xstake",
	}
}

func TestCreateStake(t *testing.T) {
	env := newTestEnv(t)
	svc := env.stakes()
	ctx := context.Background()

	session, err := svc.CreateStake(ctx, stakeRequest("u1", 3))
	require.NoError(t, err)
	assert.Equal(t, models.StakeStatusActive, session.Status)
	assert.Equal(t, 0, session.HabitsCompleted)
	assert.Equal(t, testNow.Add(7*24*time.Hour), session.EndsAt)

	_, err = svc.CreateStake(ctx, stakeRequest("u1", 3))
	assert.ErrorIs(t, err, apperr.ErrDuplicateActiveStake)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestCreateStakeValidation(t *testing.T) {
	env := newTestEnv(t)
	svc := env.stakes()
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*CreateStakeRequest)
		want   error
	}{
		{"zero habits", func(r *CreateStakeRequest) { r.HabitsRequired = 0 }, apperr.ErrInvalidHabitsRequire},
		{"too many habits", func(r *CreateStakeRequest) { r.HabitsRequired = 51 }, apperr.ErrInvalidHabitsRequire},
		{"decimal amount", func(r *CreateStakeRequest) { r.Amount = "1.5" }, apperr.ErrInvalidAmountFormat},
		{"zero amount", func(r *CreateStakeRequest) { r.Amount = "0" }, apperr.ErrInvalidInput},
		{"bad wallet", func(r *CreateStakeRequest) { r.WalletAddress = "0x12" }, apperr.ErrInvalidWallet},
		{"missing tx hash", func(r *CreateStakeRequest) { r.StakeTxHash = " " }, apperr.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := stakeRequest("u1", 3)
			tt.mutate(&req)
			_, err := svc.CreateStake(ctx, req)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := svc.CreateStake(ctx, stakeRequest("u1", 50))
	assert.NoError(t, err)
}

func TestReportHabitOutcomes(t *testing.T) {
	env := newTestEnv(t)
	svc := env.stakes()
	ctx := context.Background()

	done := env.addActivity(t, "2026-03-11", "health", true)
	pending := env.addActivity(t, "2026-03-11", "health", false)

	outcome, err := svc.ReportHabit(ctx, "u1", done.ID)
	require.NoError(t, err)
	assert.False(t, outcome.Reported)
	assert.Equal(t, ReasonNoActiveStake, outcome.Reason)

	_, err = svc.CreateStake(ctx, stakeRequest("u1", 2))
	require.NoError(t, err)

	outcome, err = svc.ReportHabit(ctx, "u1", "missing")
	require.NoError(t, err)
	assert.Equal(t, ReasonTaskNotFound, outcome.Reason)

	outcome, err = svc.ReportHabit(ctx, "u1", pending.ID)
	require.NoError(t, err)
	assert.Equal(t, ReasonTaskIncomplete, outcome.Reason)

	outcome, err = svc.ReportHabit(ctx, "u1", done.ID)
	require.NoError(t, err)
	assert.True(t, outcome.Reported)
	assert.Equal(t, 1, outcome.HabitsCompleted)
	assert.Empty(t, outcome.Reason)

	outcome, err = svc.ReportHabit(ctx, "u1", done.ID)
	require.NoError(t, err)
	assert.True(t, outcome.Reported)
	assert.Equal(t, 2, outcome.HabitsCompleted)

	for i := 0; i < 3; i++ {
		outcome, err = svc.ReportHabit(ctx, "u1", done.ID)
		require.NoError(t, err)
		assert.False(t, outcome.Reported)
		assert.Equal(t, ReasonSaturated, outcome.Reason)
		assert.Equal(t, 2, outcome.HabitsCompleted)
	}
}

func TestReportHabitIgnoresOtherUsersTasks(t *testing.T) {
	env := newTestEnv(t)
	svc := env.stakes()
	ctx := context.Background()

	item := env.addActivity(t, "2026-03-11", "health", true)
	_, err := svc.CreateStake(ctx, stakeRequest("u2", 2))
	require.NoError(t, err)

	outcome, err := svc.ReportHabit(ctx, "u2", item.ID)
	require.NoError(t, err)
	assert.Equal(t, ReasonTaskNotFound, outcome.Reason)
}

func TestReportHabitConcurrentNeverExceedsRequired(t *testing.T) {
	env := newTestEnv(t)
	svc := env.stakes()
	ctx := context.Background()

	item := env.addActivity(t, "2026-03-11", "health", true)
	session, err := svc.CreateStake(ctx, stakeRequest("u1", 3))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.ReportHabit(ctx, "u1", item.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := env.store.GetStake(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.HabitsCompleted)
}

func TestGenerateClaimBeforePeriodEnd(t *testing.T) {
	env := newTestEnv(t)
	svc := env.stakes()
	ctx := context.Background()

	_, err := svc.GenerateClaim(ctx, "u1")
	assert.ErrorIs(t, err, apperr.ErrNoActiveStake)

	_, err = svc.CreateStake(ctx, stakeRequest("u1", 3))
	require.NoError(t, err)
	env.clock.Advance(2 * 24 * time.Hour)

	_, err = svc.GenerateClaim(ctx, "u1")
	require.ErrorIs(t, err, apperr.ErrPeriodNotEnded)
	var pne *apperr.PeriodNotEndedError
	require.ErrorAs(t, err, &pne)
	assert.Equal(t, 5*24*time.Hour, pne.Remaining)
	assert.Equal(t, apperr.KindPrecondition, apperr.KindOf(err))
}

func TestGenerateThenConfirmClaimAgree(t *testing.T) {
	env := newTestEnv(t)
	svc := env.stakes()
	ctx := context.Background()

	item := env.addActivity(t, "2026-03-11", "health", true)
	session, err := svc.CreateStake(ctx, stakeRequest("u1", 3))
	require.NoError(t, err)
	_, err = svc.ReportHabit(ctx, "u1", item.ID)
	require.NoError(t, err)

	env.clock.Advance(7*24*time.Hour + time.Minute)

	claim, err := svc.GenerateClaim(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, session.ID, claim.SessionID)
	assert.Equal(t, "333333333333333333", claim.BaseReward.String())
	assert.Equal(t, "666666666666666667", claim.Penalty.String())
	assert.Equal(t, "33.3", claim.CompletionRate.String())
	assert.True(t, env.signer.VerifySignature(claim.Signature, testWallet, claim.BaseReward.BigInt(), session.ID, claim.Timestamp))

	active, err := svc.GetActive(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, active, "generating a claim does not change the session")

	confirmed, err := svc.ConfirmClaim(ctx, "u1", "0xclaim")
	require.NoError(t, err)
	assert.False(t, confirmed.AlreadyConfirmed)
	assert.True(t, claim.BaseReward.Equal(confirmed.BaseReward))
	assert.True(t, claim.Penalty.Equal(confirmed.Penalty))
	assert.Equal(t, models.StakeStatusCompleted, confirmed.Session.Status)
	require.NotNil(t, confirmed.Session.ClaimedAt)

	again, err := svc.ConfirmClaim(ctx, "u1", "0xclaim")
	require.NoError(t, err)
	assert.True(t, again.AlreadyConfirmed)
	assert.True(t, claim.BaseReward.Equal(again.BaseReward))

	_, err = svc.ConfirmClaim(ctx, "u1", "0xdifferent")
	assert.ErrorIs(t, err, apperr.ErrNoActiveStake)

	active, err = svc.GetActive(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestConfirmClaimWithoutStake(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.stakes().ConfirmClaim(context.Background(), "u1", "0xclaim")
	assert.ErrorIs(t, err, apperr.ErrNoActiveStake)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestGetStatsAggregatesCompletedOnly(t *testing.T) {
	env := newTestEnv(t)
	svc := env.stakes()
	ctx := context.Background()

	item := env.addActivity(t, "2026-03-11", "health", true)

	_, err := svc.CreateStake(ctx, stakeRequest("u1", 2))
	require.NoError(t, err)
	_, err = svc.ReportHabit(ctx, "u1", item.ID)
	require.NoError(t, err)
	_, err = svc.ConfirmClaim(ctx, "u1", "0xfirst")
	require.NoError(t, err)

	_, err = svc.CreateStake(ctx, stakeRequest("u1", 4))
	require.NoError(t, err)

	stats, err := svc.GetStats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.SessionsCount)
	assert.Equal(t, "1000000000000000000", stats.TotalStaked.String())
	assert.Equal(t, "500000000000000000", stats.TotalEarned.String())
	assert.Equal(t, "500000000000000000", stats.TotalPenalized.String())
	assert.Equal(t, "50", stats.AverageCompletionRate.String())
	require.NotNil(t, stats.ActiveStake)
	assert.Equal(t, 4, stats.ActiveStake.HabitsRequired)

	history, err := svc.GetHistory(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestComputeClaimUsesIntegerMath(t *testing.T) {
	session := &models.StakeSession{Amount: decimal.NewFromInt(10), HabitsCompleted: 2, HabitsRequired: 3}

	b := computeClaim(session)
	assert.Equal(t, "6", b.BaseReward.String())
	assert.Equal(t, "4", b.Penalty.String())
}
