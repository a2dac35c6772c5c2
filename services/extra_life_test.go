package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"lvlup-backend/apperr"
	"lvlup-backend/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// scriptedCoin returns the given flips in order and fails once exhausted.
func scriptedCoin(flips ...bool) CoinFlipper {
	var mu sync.Mutex
	return CoinFlipperFunc(func() (bool, error) {
		mu.Lock()
		defer mu.Unlock()
		if len(flips) == 0 {
			return false, errors.New("coin exhausted")
		}
		f := flips[0]
		flips = flips[1:]
		return f, nil
	})
}

func TestExtraLifeFirstUseIsGuaranteed(t *testing.T) {
	env := newTestEnv(t)
	arbiter := NewExtraLifeArbiter(env.store, scriptedCoin(), env.clock, zap.NewNop())

	status, err := arbiter.Status(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, status.NextIsGuaranteed)

	record, err := arbiter.Invoke(context.Background(), "u1")
	require.NoError(t, err, "the first attempt never draws")
	assert.Equal(t, 1, record.AttemptNumber)
	assert.Equal(t, models.ExtraLifeSaved, record.Result)
	assert.Nil(t, record.CoinFlip)
}

func TestExtraLifeLaterUsesFollowTheCoin(t *testing.T) {
	env := newTestEnv(t)
	arbiter := NewExtraLifeArbiter(env.store, scriptedCoin(false, true, false), env.clock, zap.NewNop())
	ctx := context.Background()

	_, err := arbiter.Invoke(ctx, "u1")
	require.NoError(t, err)

	want := []models.ExtraLifeResult{models.ExtraLifePenalized, models.ExtraLifeSaved, models.ExtraLifePenalized}
	for i, result := range want {
		env.clock.Advance(time.Minute)
		record, err := arbiter.Invoke(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, i+2, record.AttemptNumber)
		require.NotNil(t, record.CoinFlip)
		assert.Equal(t, result, record.Result)
		assert.Equal(t, *record.CoinFlip, record.Result == models.ExtraLifeSaved)
	}

	history, err := arbiter.History(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, history, 4)
	for i, r := range history {
		assert.Equal(t, i+1, r.AttemptNumber)
	}

	status, err := arbiter.Status(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), status.UsesCount)
	assert.False(t, status.NextIsGuaranteed)

	other, err := arbiter.Invoke(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, 1, other.AttemptNumber)
}

func TestExtraLifeCoinFailureIsNotRecorded(t *testing.T) {
	env := newTestEnv(t)
	arbiter := NewExtraLifeArbiter(env.store, scriptedCoin(), env.clock, zap.NewNop())
	ctx := context.Background()

	_, err := arbiter.Invoke(ctx, "u1")
	require.NoError(t, err)

	_, err = arbiter.Invoke(ctx, "u1")
	assert.ErrorIs(t, err, apperr.ErrStoreUnavailable)

	history, err := arbiter.History(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestCryptoCoinFlips(t *testing.T) {
	seen := map[bool]bool{}
	for i := 0; i < 64 && len(seen) < 2; i++ {
		v, err := CryptoCoin{}.Flip()
		require.NoError(t, err)
		seen[v] = true
	}
	assert.Len(t, seen, 2)
}
