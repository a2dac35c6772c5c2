package services

import (
	"context"
	"errors"
	"math/big"
	"strings"

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

const (
	MinHabitsRequired = 1
	MaxHabitsRequired = 50

	// confirmAttempts bounds how often ConfirmClaim re-reads a session whose
	// progress moved between its read and its guarded update.
	confirmAttempts = 3
)

// ClaimSigner signs per-subject reward authorizations.
type ClaimSigner interface {
	SignClaim(wallet string, amount *big.Int, subjectID string) (*blockchain.ClaimSignature, error)
}

// NotReportedReason says why a habit report did not move a stake forward.
type NotReportedReason string

const (
	ReasonNoActiveStake  NotReportedReason = "no_active_stake"
	ReasonTaskNotFound   NotReportedReason = "task_not_found"
	ReasonTaskIncomplete NotReportedReason = "task_incomplete"
	ReasonSaturated      NotReportedReason = "saturated"
)

// HabitReportOutcome is the result of ReportHabit. Reason is set only when
// Reported is false.
type HabitReportOutcome struct {
	Reported        bool              `json:"reported"`
	HabitsCompleted int               `json:"habits_completed"`
	HabitsRequired  int               `json:"habits_required"`
	Reason          NotReportedReason `json:"reason,omitempty"`
}

type CreateStakeRequest struct {
	UserID         string `json:"user_id"`
	WalletAddress  string `json:"user_address"`
	Amount         string `json:"amount"`
	HabitsRequired int    `json:"habits_required"`
	StakeTxHash    string `json:"stake_tx_hash"`
}

// ClaimBreakdown is the reward split for a session at its current progress.
type ClaimBreakdown struct {
	SessionID       string          `json:"session_id"`
	WalletAddress   string          `json:"user_address"`
	AmountStaked    decimal.Decimal `json:"amount_staked"`
	HabitsCompleted int             `json:"habits_completed"`
	HabitsRequired  int             `json:"habits_required"`
	CompletionRate  decimal.Decimal `json:"completion_rate"`
	BaseReward      decimal.Decimal `json:"base_reward"`
	Penalty         decimal.Decimal `json:"penalty"`
	EstimatedBonus  decimal.Decimal `json:"estimated_bonus"`
}

type ClaimData struct {
	ClaimBreakdown
	Signature     string `json:"signature"`
	Timestamp     int64  `json:"timestamp"`
	SignerAddress string `json:"signer_address"`
}

type ConfirmClaimResult struct {
	Session          *models.StakeSession `json:"session"`
	BaseReward       decimal.Decimal      `json:"base_reward"`
	Penalty          decimal.Decimal      `json:"penalty"`
	AlreadyConfirmed bool                 `json:"already_confirmed"`
}

type StakeStats struct {
	UserID                string               `json:"user_id"`
	ActiveStake           *models.StakeSession `json:"active_stake"`
	TotalStaked           decimal.Decimal      `json:"total_staked"`
	TotalEarned           decimal.Decimal      `json:"total_earned"`
	TotalPenalized        decimal.Decimal      `json:"total_penalized"`
	SessionsCount         int                  `json:"sessions_count"`
	AverageCompletionRate decimal.Decimal      `json:"average_completion_rate"`
}

// StakeService runs the stake session state machine:
// none -> active -> completed | expired | cancelled.
type StakeService struct {
	stakes storage.StakeStore
	ledger storage.ActivityLedger
	signer ClaimSigner
	clock  clockwork.Clock
	log    *zap.Logger
}

func NewStakeService(stakes storage.StakeStore, ledger storage.ActivityLedger, signer ClaimSigner, clock clockwork.Clock, log *zap.Logger) *StakeService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &StakeService{
		stakes: stakes,
		ledger: ledger,
		signer: signer,
		clock:  clock,
		log:    logger.OrNop(log).Named("staking"),
	}
}

func (s *StakeService) CreateStake(ctx context.Context, req CreateStakeRequest) (*models.StakeSession, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return nil, apperr.Newf(apperr.ErrInvalidInput, "user_id is required")
	}
	wallet, err := blockchain.ParseWallet(req.WalletAddress)
	if err != nil {
		return nil, err
	}
	amount, err := blockchain.ParseAtomicAmount(req.Amount)
	if err != nil {
		return nil, err
	}
	if amount.Sign() == 0 {
		return nil, apperr.Newf(apperr.ErrInvalidInput, "stake amount must be greater than zero")
	}
	if req.HabitsRequired < MinHabitsRequired || req.HabitsRequired > MaxHabitsRequired {
		return nil, apperr.ErrInvalidHabitsRequire
	}
	txHash := strings.TrimSpace(req.StakeTxHash)
	if txHash == "" {
		return nil, apperr.Newf(apperr.ErrInvalidInput, "stake_tx_hash is required")
	}

	now := s.clock.Now().UTC()
	session := &models.StakeSession{
		UserID:         userID,
		WalletAddress:  wallet.Hex(),
		Amount:         decimal.NewFromBigInt(amount, 0),
		HabitsRequired: req.HabitsRequired,
		Status:         models.StakeStatusActive,
		StartedAt:      now,
		EndsAt:         now.Add(models.StakeCycle),
		StakeTxHash:    txHash,
	}
	if err := s.stakes.CreateStake(ctx, session); err != nil {
		if apperr.IsExpected(err) {
			s.log.Info("stake rejected", zap.String("user_id", userID), zap.Error(err))
		} else {
			s.log.Error("failed to create stake", zap.String("user_id", userID), zap.Error(err))
		}
		return nil, err
	}

	metrics.RecordStakeCreated()
	s.log.Info("stake created",
		zap.String("user_id", userID),
		zap.String("session_id", session.ID),
		zap.String("amount", session.Amount.String()),
		zap.Int("habits_required", session.HabitsRequired),
		zap.Time("ends_at", session.EndsAt),
	)
	return session, nil
}

// ReportHabit counts a completed activity toward the user's active stake.
// Ordinary cases where nothing moves are returned as outcomes, not errors.
func (s *StakeService) ReportHabit(ctx context.Context, userID, taskID string) (*HabitReportOutcome, error) {
	outcome, err := s.reportHabit(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}
	if outcome.Reported {
		metrics.RecordHabitReport("reported")
	} else {
		metrics.RecordHabitReport(string(outcome.Reason))
	}
	return outcome, nil
}

func (s *StakeService) reportHabit(ctx context.Context, userID, taskID string) (*HabitReportOutcome, error) {
	session, err := s.stakes.GetActiveStake(ctx, userID)
	if errors.Is(err, apperr.ErrNoActiveStake) {
		return &HabitReportOutcome{Reason: ReasonNoActiveStake}, nil
	}
	if err != nil {
		return nil, err
	}

	notReported := func(reason NotReportedReason, current *models.StakeSession) *HabitReportOutcome {
		return &HabitReportOutcome{
			HabitsCompleted: current.HabitsCompleted,
			HabitsRequired:  current.HabitsRequired,
			Reason:          reason,
		}
	}

	item, err := s.ledger.GetActivityByID(ctx, taskID)
	if errors.Is(err, apperr.ErrTaskNotFound) {
		return notReported(ReasonTaskNotFound, session), nil
	}
	if err != nil {
		return nil, err
	}
	if item.UserID != "" && item.UserID != userID {
		return notReported(ReasonTaskNotFound, session), nil
	}
	if !item.IsComplete() {
		return notReported(ReasonTaskIncomplete, session), nil
	}

	incremented, err := s.stakes.IncrementHabitsCompleted(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	current, err := s.stakes.GetStake(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	if !incremented {
		if current.Status != models.StakeStatusActive {
			return &HabitReportOutcome{Reason: ReasonNoActiveStake}, nil
		}
		s.log.Debug("habit report saturated",
			zap.String("user_id", userID),
			zap.String("session_id", session.ID),
			zap.Int("habits_required", current.HabitsRequired),
		)
		return notReported(ReasonSaturated, current), nil
	}

	s.log.Debug("habit reported",
		zap.String("user_id", userID),
		zap.String("session_id", session.ID),
		zap.String("task_id", taskID),
		zap.Int("habits_completed", current.HabitsCompleted),
	)
	return &HabitReportOutcome{
		Reported:        true,
		HabitsCompleted: current.HabitsCompleted,
		HabitsRequired:  current.HabitsRequired,
	}, nil
}

// GenerateClaim signs the reward for an ended session without changing it.
func (s *StakeService) GenerateClaim(ctx context.Context, userID string) (*ClaimData, error) {
	session, err := s.stakes.GetActiveStake(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if now.Before(session.EndsAt) {
		remaining := session.EndsAt.Sub(now)
		s.log.Info("claim requested before period end",
			zap.String("user_id", userID),
			zap.Duration("remaining", remaining),
		)
		return nil, &apperr.PeriodNotEndedError{Remaining: remaining}
	}

	breakdown := computeClaim(session)
	sig, err := s.signer.SignClaim(session.WalletAddress, breakdown.BaseReward.BigInt(), session.ID)
	if err != nil {
		s.log.Error("failed to sign stake claim", zap.String("session_id", session.ID), zap.Error(err))
		return nil, err
	}
	metrics.RecordSignature("stake_claim")

	return &ClaimData{
		ClaimBreakdown: breakdown,
		Signature:      sig.Signature,
		Timestamp:      sig.Timestamp,
		SignerAddress:  sig.SignerAddress,
	}, nil
}

// ConfirmClaim finalizes the active session after the on-chain claim. The
// split is recomputed from the session as it is at confirmation time.
// Repeating a confirmation with the same transaction hash is reported, not reapplied.
func (s *StakeService) ConfirmClaim(ctx context.Context, userID, claimTxHash string) (*ConfirmClaimResult, error) {
	claimTxHash = strings.TrimSpace(claimTxHash)
	if claimTxHash == "" {
		return nil, apperr.Newf(apperr.ErrInvalidInput, "claim_tx_hash is required")
	}

	for attempt := 0; attempt < confirmAttempts; attempt++ {
		session, err := s.stakes.GetActiveStake(ctx, userID)
		if errors.Is(err, apperr.ErrNoActiveStake) {
			return s.alreadyConfirmed(ctx, userID, claimTxHash)
		}
		if err != nil {
			return nil, err
		}

		breakdown := computeClaim(session)
		done, err := s.stakes.CompleteStake(ctx, session.ID, session.HabitsCompleted, storage.StakeCompletion{
			ClaimedAt:   s.clock.Now().UTC(),
			ClaimTxHash: claimTxHash,
			BaseReward:  breakdown.BaseReward,
			Bonus:       breakdown.EstimatedBonus,
			Penalty:     breakdown.Penalty,
		})
		if err != nil {
			return nil, err
		}
		if !done {
			continue
		}

		completed, err := s.stakes.GetStake(ctx, session.ID)
		if err != nil {
			return nil, err
		}
		s.log.Info("stake claim confirmed",
			zap.String("user_id", userID),
			zap.String("session_id", session.ID),
			zap.String("claim_tx_hash", claimTxHash),
			zap.String("base_reward", breakdown.BaseReward.String()),
			zap.String("penalty", breakdown.Penalty.String()),
		)
		return &ConfirmClaimResult{
			Session:    completed,
			BaseReward: breakdown.BaseReward,
			Penalty:    breakdown.Penalty,
		}, nil
	}

	s.log.Warn("stake kept changing during confirmation", zap.String("user_id", userID))
	return nil, apperr.Unavailable(errors.New("stake session changed during confirmation"))
}

func (s *StakeService) alreadyConfirmed(ctx context.Context, userID, claimTxHash string) (*ConfirmClaimResult, error) {
	session, err := s.stakes.FindStakeByClaimTx(ctx, userID, claimTxHash)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.ErrNoActiveStake
	}
	if err != nil {
		return nil, err
	}
	s.log.Info("stake claim already confirmed", zap.String("user_id", userID), zap.String("claim_tx_hash", claimTxHash))
	return &ConfirmClaimResult{
		Session:          session,
		BaseReward:       session.BaseReward.Decimal,
		Penalty:          session.Penalty.Decimal,
		AlreadyConfirmed: true,
	}, nil
}

// GetActive returns the active session, or nil when the user has none.
func (s *StakeService) GetActive(ctx context.Context, userID string) (*models.StakeSession, error) {
	session, err := s.stakes.GetActiveStake(ctx, userID)
	if errors.Is(err, apperr.ErrNoActiveStake) {
		return nil, nil
	}
	return session, err
}

func (s *StakeService) GetHistory(ctx context.Context, userID string) ([]models.StakeSession, error) {
	return s.stakes.ListStakes(ctx, userID)
}

// GetStats aggregates completed sessions only.
func (s *StakeService) GetStats(ctx context.Context, userID string) (*StakeStats, error) {
	sessions, err := s.stakes.ListStakes(ctx, userID)
	if err != nil {
		return nil, err
	}

	stats := &StakeStats{
		UserID:                userID,
		TotalStaked:           decimal.Zero,
		TotalEarned:           decimal.Zero,
		TotalPenalized:        decimal.Zero,
		AverageCompletionRate: decimal.Zero,
	}
	rateSum := decimal.Zero
	for i := range sessions {
		session := &sessions[i]
		switch session.Status {
		case models.StakeStatusActive:
			stats.ActiveStake = session
		case models.StakeStatusCompleted:
			stats.SessionsCount++
			stats.TotalStaked = stats.TotalStaked.Add(session.Amount)
			stats.TotalEarned = stats.TotalEarned.Add(session.BaseReward.Decimal).Add(session.Bonus.Decimal)
			stats.TotalPenalized = stats.TotalPenalized.Add(session.Penalty.Decimal)
			rateSum = rateSum.Add(completionRate(session.HabitsCompleted, session.HabitsRequired))
		}
	}
	if stats.SessionsCount > 0 {
		stats.AverageCompletionRate = rateSum.DivRound(decimal.NewFromInt(int64(stats.SessionsCount)), 2)
	}
	return stats, nil
}

// computeClaim splits the stake in integer atomic units:
// base = floor(amount * completed / required), penalty = amount - base.
func computeClaim(session *models.StakeSession) ClaimBreakdown {
	required := session.HabitsRequired
	if required < 1 {
		required = 1
	}
	amount := session.Amount.BigInt()
	base := new(big.Int).Mul(amount, big.NewInt(int64(session.HabitsCompleted)))
	base.Quo(base, big.NewInt(int64(required)))
	penalty := new(big.Int).Sub(amount, base)

	return ClaimBreakdown{
		SessionID:       session.ID,
		WalletAddress:   session.WalletAddress,
		AmountStaked:    session.Amount,
		HabitsCompleted: session.HabitsCompleted,
		HabitsRequired:  session.HabitsRequired,
		CompletionRate:  completionRate(session.HabitsCompleted, required),
		BaseReward:      decimal.NewFromBigInt(base, 0),
		Penalty:         decimal.NewFromBigInt(penalty, 0),
		EstimatedBonus:  decimal.Zero,
	}
}

// completionRate is completed/required as a percentage with one decimal.
func completionRate(completed, required int) decimal.Decimal {
	if required < 1 {
		required = 1
	}
	return decimal.NewFromInt(int64(completed)).
		Mul(decimal.NewFromInt(100)).
		DivRound(decimal.NewFromInt(int64(required)), 1)
}
