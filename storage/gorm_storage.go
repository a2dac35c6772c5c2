package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lvlup-backend/apperr"
	"lvlup-backend/logger"
	"lvlup-backend/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

type GormStorage struct {
	db  *gorm.DB
	log *zap.Logger
}

var _ Storage = (*GormStorage)(nil)

// Models lists every table the service owns, in migration order.
func Models() []any {
	return []any{
		&models.ActivityItem{},
		&models.CommitmentConfig{},
		&models.StakeSession{},
		&models.ExtraLifeRecord{},
		&models.RewardClaim{},
		&models.PlannerConfig{},
	}
}

// Open connects through dialector and migrates the schema.
func Open(dialector gorm.Dialector, log *zap.Logger) (*GormStorage, error) {
	log = logger.OrNop(log)

	log.Debug("initializing database...")
	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := db.AutoMigrate(Models()...); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return &GormStorage{db: db, log: log}, nil
}

// OpenPostgres opens the production database.
func OpenPostgres(dsn string, log *zap.Logger) (*GormStorage, error) {
	return Open(postgres.Open(dsn), log)
}

// DB exposes the underlying handle for connection tuning.
func (s *GormStorage) DB() *gorm.DB { return s.db }

func (s *GormStorage) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return apperr.Unavailable(err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return apperr.Unavailable(err)
	}
	return nil
}

func (s *GormStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// translate maps driver errors onto the apperr taxonomy. notFound replaces
// gorm.ErrRecordNotFound and conflict replaces unique violations.
func translate(err error, notFound, conflict *apperr.Error) error {
	if err == nil {
		return nil
	}
	var classified *apperr.Error
	if errors.As(err, &classified) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if notFound == nil {
			notFound = apperr.ErrNotFound
		}
		return notFound
	}
	if isUniqueViolation(err) {
		if conflict == nil {
			conflict = apperr.ErrDuplicate
		}
		return apperr.Wrap(conflict, err)
	}
	return apperr.Unavailable(err)
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// --- Activity ledger ---

func (s *GormStorage) ledgerScope(ctx context.Context, q LedgerQuery) *gorm.DB {
	query := s.db.WithContext(ctx).Model(&models.ActivityItem{}).Where("date IN ?", q.Dates)
	if q.CategoryIDs != nil {
		query = query.Where("category_id IN ?", q.CategoryIDs)
	}
	if q.OwnerWallet != "" {
		query = query.Where("wallet_address = ?", q.OwnerWallet)
	}
	return query
}

func (s *GormStorage) CountByDateRangeAndCategory(ctx context.Context, q LedgerQuery) (int64, error) {
	if len(q.Dates) == 0 {
		return 0, nil
	}
	var n int64
	if err := s.ledgerScope(ctx, q).Count(&n).Error; err != nil {
		return 0, translate(err, nil, nil)
	}
	return n, nil
}

func (s *GormStorage) CountCompletedByDateRangeAndCategory(ctx context.Context, q LedgerQuery) (int64, error) {
	if len(q.Dates) == 0 {
		return 0, nil
	}
	var n int64
	if err := s.ledgerScope(ctx, q).Where("completed = ?", true).Count(&n).Error; err != nil {
		return 0, translate(err, nil, nil)
	}
	return n, nil
}

func (s *GormStorage) GetActivityByID(ctx context.Context, id string) (*models.ActivityItem, error) {
	var item models.ActivityItem
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&item).Error; err != nil {
		return nil, translate(err, apperr.ErrTaskNotFound, nil)
	}
	return &item, nil
}

func (s *GormStorage) CreateActivity(ctx context.Context, item *models.ActivityItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	return translate(s.db.WithContext(ctx).Create(item).Error, nil, nil)
}

func (s *GormStorage) SetActivityCompleted(ctx context.Context, id string, completed bool) (*models.ActivityItem, error) {
	res := s.db.WithContext(ctx).Model(&models.ActivityItem{}).Where("id = ?", id).Update("completed", completed)
	if res.Error != nil {
		return nil, translate(res.Error, nil, nil)
	}
	if res.RowsAffected == 0 {
		return nil, apperr.ErrTaskNotFound
	}
	return s.GetActivityByID(ctx, id)
}

func (s *GormStorage) ListActivitiesByDate(ctx context.Context, userID, date string) ([]models.ActivityItem, error) {
	var items []models.ActivityItem
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND date = ?", userID, date).
		Order("start_time ASC").
		Find(&items).Error
	if err != nil {
		return nil, translate(err, nil, nil)
	}
	return items, nil
}

func (s *GormStorage) ListCompletedActivities(ctx context.Context, userID string) ([]models.ActivityItem, error) {
	var items []models.ActivityItem
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND completed = ?", userID, true).
		Order("date ASC").
		Find(&items).Error
	if err != nil {
		return nil, translate(err, nil, nil)
	}
	return items, nil
}

func (s *GormStorage) DeleteActivity(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.ActivityItem{})
	if res.Error != nil {
		return translate(res.Error, nil, nil)
	}
	if res.RowsAffected == 0 {
		return apperr.ErrTaskNotFound
	}
	return nil
}

// UpsertActivities writes a batch keyed by id in one statement.
func (s *GormStorage) UpsertActivities(ctx context.Context, items []models.ActivityItem) error {
	if len(items) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Clauses(
		clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"user_id",
				"wallet_address",
				"title",
				"date",
				"start_time",
				"end_time",
				"category_id",
				"completed",
				"updated_at",
			}),
		},
	).Create(&items).Error
	return translate(err, nil, nil)
}

// --- Commitment store ---

func (s *GormStorage) GetCommitment(ctx context.Context, wallet string, periodID int) (*models.CommitmentConfig, error) {
	var cfg models.CommitmentConfig
	err := s.db.WithContext(ctx).
		Where("wallet_address = ? AND period_id = ?", wallet, periodID).
		First(&cfg).Error
	if err != nil {
		return nil, translate(err, nil, nil)
	}
	return &cfg, nil
}

func (s *GormStorage) UpsertCommitment(ctx context.Context, cfg *models.CommitmentConfig) (*models.CommitmentConfig, error) {
	return s.withCommitment(ctx, cfg.WalletAddress, cfg.PeriodID, func(tx *gorm.DB, existing *models.CommitmentConfig) error {
		if existing == nil {
			created := *cfg
			created.ID = uuid.NewString()
			created.Status = models.CommitmentStatusActive
			return tx.Create(&created).Error
		}
		return updateActiveCommitment(tx, existing.ID, []string{"mode", "category_ids", "deposit_ref"}, &models.CommitmentConfig{
			Mode:        cfg.Mode,
			CategoryIDs: cfg.CategoryIDs,
			DepositRef:  cfg.DepositRef,
		})
	})
}

func (s *GormStorage) RecordSettlementSignature(ctx context.Context, wallet string, periodID int, sig SettlementSignature) (*models.CommitmentConfig, error) {
	return s.withCommitment(ctx, wallet, periodID, func(tx *gorm.DB, existing *models.CommitmentConfig) error {
		if existing == nil {
			created := models.DefaultCommitment(wallet, periodID)
			created.ID = uuid.NewString()
			created.SettlementSignature = &sig.Signature
			created.SignedAmount = &sig.Amount
			created.SignatureDeadline = &sig.Deadline
			return tx.Create(&created).Error
		}
		return updateActiveCommitment(tx, existing.ID, []string{"settlement_signature", "signed_amount", "signature_deadline"}, &models.CommitmentConfig{
			SettlementSignature: &sig.Signature,
			SignedAmount:        &sig.Amount,
			SignatureDeadline:   &sig.Deadline,
		})
	})
}

// withCommitment runs write against the current record inside a transaction
// and returns the record as stored afterwards. A concurrent insert of the
// same key is retried once.
func (s *GormStorage) withCommitment(ctx context.Context, wallet string, periodID int, write func(tx *gorm.DB, existing *models.CommitmentConfig) error) (*models.CommitmentConfig, error) {
	var out models.CommitmentConfig
	run := func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var existing models.CommitmentConfig
			err := tx.Where("wallet_address = ? AND period_id = ?", wallet, periodID).First(&existing).Error
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
				if err := write(tx, nil); err != nil {
					return err
				}
			case err != nil:
				return err
			case existing.Status == models.CommitmentStatusSettled:
				return apperr.ErrAlreadySettled
			default:
				if err := write(tx, &existing); err != nil {
					return err
				}
			}
			return tx.Where("wallet_address = ? AND period_id = ?", wallet, periodID).First(&out).Error
		})
	}

	err := run()
	if isUniqueViolation(err) {
		err = run()
	}
	if err != nil {
		return nil, translate(err, nil, nil)
	}
	return &out, nil
}

func updateActiveCommitment(tx *gorm.DB, id string, columns []string, values *models.CommitmentConfig) error {
	res := tx.Model(&models.CommitmentConfig{}).
		Where("id = ? AND status = ?", id, models.CommitmentStatusActive).
		Select(columns).
		Updates(values)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.ErrAlreadySettled
	}
	return nil
}

func (s *GormStorage) SettleCommitment(ctx context.Context, wallet string, periodID int, txHash string, at time.Time) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.CommitmentConfig{}).
		Where("wallet_address = ? AND period_id = ? AND status = ? AND settlement_signature IS NOT NULL",
			wallet, periodID, models.CommitmentStatusActive).
		Updates(map[string]any{
			"status":             models.CommitmentStatusSettled,
			"settlement_tx_hash": txHash,
			"amount_returned":    gorm.Expr("signed_amount"),
			"settled_at":         at,
		})
	if res.Error != nil {
		return false, translate(res.Error, nil, nil)
	}
	return res.RowsAffected == 1, nil
}

// --- Stake store ---

func (s *GormStorage) CreateStake(ctx context.Context, session *models.StakeSession) error {
	var active int64
	err := s.db.WithContext(ctx).Model(&models.StakeSession{}).
		Where("user_id = ? AND status = ?", session.UserID, models.StakeStatusActive).
		Count(&active).Error
	if err != nil {
		return translate(err, nil, nil)
	}
	if active > 0 {
		return apperr.ErrDuplicateActiveStake
	}
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	return translate(s.db.WithContext(ctx).Create(session).Error, nil, apperr.ErrDuplicateActiveStake)
}

func (s *GormStorage) GetStake(ctx context.Context, id string) (*models.StakeSession, error) {
	var session models.StakeSession
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&session).Error; err != nil {
		return nil, translate(err, nil, nil)
	}
	return &session, nil
}

func (s *GormStorage) GetActiveStake(ctx context.Context, userID string) (*models.StakeSession, error) {
	var session models.StakeSession
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, models.StakeStatusActive).
		First(&session).Error
	if err != nil {
		return nil, translate(err, apperr.ErrNoActiveStake, nil)
	}
	return &session, nil
}

func (s *GormStorage) FindStakeByClaimTx(ctx context.Context, userID, claimTxHash string) (*models.StakeSession, error) {
	var session models.StakeSession
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND claim_tx_hash = ?", userID, claimTxHash).
		First(&session).Error
	if err != nil {
		return nil, translate(err, nil, nil)
	}
	return &session, nil
}

func (s *GormStorage) ListStakes(ctx context.Context, userID string) ([]models.StakeSession, error) {
	var sessions []models.StakeSession
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("started_at DESC").
		Find(&sessions).Error
	if err != nil {
		return nil, translate(err, nil, nil)
	}
	return sessions, nil
}

func (s *GormStorage) IncrementHabitsCompleted(ctx context.Context, id string) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.StakeSession{}).
		Where("id = ? AND status = ? AND habits_completed < habits_required", id, models.StakeStatusActive).
		Update("habits_completed", gorm.Expr("habits_completed + 1"))
	if res.Error != nil {
		return false, translate(res.Error, nil, nil)
	}
	return res.RowsAffected == 1, nil
}

func (s *GormStorage) CompleteStake(ctx context.Context, id string, expectedCompleted int, c StakeCompletion) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.StakeSession{}).
		Where("id = ? AND status = ? AND habits_completed = ?", id, models.StakeStatusActive, expectedCompleted).
		Updates(map[string]any{
			"status":        models.StakeStatusCompleted,
			"claimed_at":    c.ClaimedAt,
			"claim_tx_hash": c.ClaimTxHash,
			"base_reward":   c.BaseReward,
			"bonus":         c.Bonus,
			"penalty":       c.Penalty,
		})
	if res.Error != nil {
		return false, translate(res.Error, nil, nil)
	}
	return res.RowsAffected == 1, nil
}

func (s *GormStorage) ExpireStakes(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.StakeSession{}).
		Where("status = ? AND ends_at < ?", models.StakeStatusActive, cutoff).
		Update("status", models.StakeStatusExpired)
	if res.Error != nil {
		return 0, translate(res.Error, nil, nil)
	}
	return res.RowsAffected, nil
}

// --- Extra life ledger ---

func (s *GormStorage) CountExtraLives(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.ExtraLifeRecord{}).Where("user_id = ?", userID).Count(&n).Error
	if err != nil {
		return 0, translate(err, nil, nil)
	}
	return n, nil
}

func (s *GormStorage) AppendExtraLife(ctx context.Context, record *models.ExtraLifeRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	return translate(s.db.WithContext(ctx).Create(record).Error, nil, nil)
}

func (s *GormStorage) ListExtraLives(ctx context.Context, userID string) ([]models.ExtraLifeRecord, error) {
	var records []models.ExtraLifeRecord
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("used_at ASC, attempt_number ASC").
		Find(&records).Error
	if err != nil {
		return nil, translate(err, nil, nil)
	}
	return records, nil
}

// --- Reward claims ---

func (s *GormStorage) CreateRewardClaim(ctx context.Context, claim *models.RewardClaim) error {
	if claim.ID == "" {
		claim.ID = uuid.NewString()
	}
	return translate(s.db.WithContext(ctx).Create(claim).Error, nil, apperr.ErrDuplicateTaskClaim)
}

func (s *GormStorage) GetRewardClaim(ctx context.Context, userID, taskID string) (*models.RewardClaim, error) {
	var claim models.RewardClaim
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND task_id = ?", userID, taskID).
		First(&claim).Error
	if err != nil {
		return nil, translate(err, apperr.ErrClaimNotFound, nil)
	}
	return &claim, nil
}

func (s *GormStorage) ConfirmRewardClaim(ctx context.Context, userID, taskID, txHash string, at time.Time) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.RewardClaim{}).
		Where("user_id = ? AND task_id = ? AND status = ?", userID, taskID, models.RewardStatusSigned).
		Updates(map[string]any{
			"status":           models.RewardStatusConfirmed,
			"transaction_hash": txHash,
			"confirmed_at":     at,
		})
	if res.Error != nil {
		return false, translate(res.Error, nil, nil)
	}
	return res.RowsAffected == 1, nil
}

func (s *GormStorage) ListRewardClaims(ctx context.Context, userID string) ([]models.RewardClaim, error) {
	var claims []models.RewardClaim
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("claimed_at DESC").
		Find(&claims).Error
	if err != nil {
		return nil, translate(err, nil, nil)
	}
	return claims, nil
}

// --- Planner config ---

func (s *GormStorage) GetPlannerConfig(ctx context.Context, userID string) (*models.PlannerConfig, error) {
	var cfg models.PlannerConfig
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&cfg).Error; err != nil {
		return nil, translate(err, nil, nil)
	}
	return &cfg, nil
}

func (s *GormStorage) SavePlannerConfig(ctx context.Context, cfg *models.PlannerConfig) error {
	err := s.db.WithContext(ctx).Clauses(
		clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"start_hour", "end_hour", "updated_at"}),
		},
	).Create(cfg).Error
	return translate(err, nil, nil)
}
