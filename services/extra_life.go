package services

import (
	"context"
	"crypto/rand"
	"errors"
	"strings"

	"lvlup-backend/apperr"
	"lvlup-backend/logger"
	"lvlup-backend/metrics"
	"lvlup-backend/models"
	"lvlup-backend/storage"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// appendAttempts bounds retries when a concurrent invocation takes the same
// attempt number.
const appendAttempts = 3

// CoinFlipper draws one fair boolean.
type CoinFlipper interface {
	Flip() (bool, error)
}

type CoinFlipperFunc func() (bool, error)

func (f CoinFlipperFunc) Flip() (bool, error) { return f() }

// CryptoCoin flips using the operating system's random source.
type CryptoCoin struct{}

func (CryptoCoin) Flip() (bool, error) {
	var b [1]byte
	if _, err := rand.Read(b[:]); err != nil {
		return false, err
	}
	return b[0]&1 == 1, nil
}

type ExtraLifeStatus struct {
	UserID           string `json:"user_id"`
	UsesCount        int64  `json:"uses_count"`
	NextIsGuaranteed bool   `json:"next_is_guaranteed"`
}

// ExtraLifeArbiter decides second chances. The first invocation per user is
// always saved; every later one is a coin flip.
type ExtraLifeArbiter struct {
	store storage.ExtraLifeStore
	coin  CoinFlipper
	clock clockwork.Clock
	log   *zap.Logger
}

func NewExtraLifeArbiter(store storage.ExtraLifeStore, coin CoinFlipper, clock clockwork.Clock, log *zap.Logger) *ExtraLifeArbiter {
	if coin == nil {
		coin = CryptoCoin{}
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ExtraLifeArbiter{store: store, coin: coin, clock: clock, log: logger.OrNop(log).Named("extra_life")}
}

func (a *ExtraLifeArbiter) Invoke(ctx context.Context, userID string) (*models.ExtraLifeRecord, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, apperr.Newf(apperr.ErrInvalidInput, "user_id is required")
	}

	var err error
	for attempt := 0; attempt < appendAttempts; attempt++ {
		var record *models.ExtraLifeRecord
		record, err = a.invoke(ctx, userID)
		if err == nil {
			metrics.RecordExtraLife(string(record.Result))
			a.log.Info("extra life used",
				zap.String("user_id", userID),
				zap.Int("attempt_number", record.AttemptNumber),
				zap.String("result", string(record.Result)),
			)
			return record, nil
		}
		if !errors.Is(err, apperr.ErrDuplicate) {
			break
		}
	}
	a.log.Error("failed to record extra life", zap.String("user_id", userID), zap.Error(err))
	return nil, err
}

func (a *ExtraLifeArbiter) invoke(ctx context.Context, userID string) (*models.ExtraLifeRecord, error) {
	prior, err := a.store.CountExtraLives(ctx, userID)
	if err != nil {
		return nil, err
	}

	record := &models.ExtraLifeRecord{
		UserID:        userID,
		AttemptNumber: int(prior) + 1,
		Result:        models.ExtraLifeSaved,
		UsedAt:        a.clock.Now().UTC(),
	}
	if record.AttemptNumber > 1 {
		heads, err := a.coin.Flip()
		if err != nil {
			return nil, apperr.Unavailable(err)
		}
		record.CoinFlip = &heads
		if !heads {
			record.Result = models.ExtraLifePenalized
		}
	}

	if err := a.store.AppendExtraLife(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// History lists the user's invocations oldest first.
func (a *ExtraLifeArbiter) History(ctx context.Context, userID string) ([]models.ExtraLifeRecord, error) {
	return a.store.ListExtraLives(ctx, userID)
}

func (a *ExtraLifeArbiter) Status(ctx context.Context, userID string) (*ExtraLifeStatus, error) {
	n, err := a.store.CountExtraLives(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &ExtraLifeStatus{UserID: userID, UsesCount: n, NextIsGuaranteed: n == 0}, nil
}
