package services

import (
	"context"
	"strings"
	"time"

	"lvlup-backend/apperr"
	"lvlup-backend/blockchain"
	"lvlup-backend/logger"
	"lvlup-backend/models"
	"lvlup-backend/storage"
	"lvlup-backend/utils"

	"go.uber.org/zap"
)

const clockLayout = "15:04"

type RecordActivityRequest struct {
	UserID        string `json:"user_id"`
	WalletAddress string `json:"wallet_address"`
	Title         string `json:"title"`
	Date          string `json:"date"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	CategoryID    string `json:"category_id"`
	Completed     bool   `json:"completed"`
}

// ActivityService is the write side of the activity ledger.
type ActivityService struct {
	store storage.ActivityStore
	log   *zap.Logger
}

func NewActivityService(store storage.ActivityStore, log *zap.Logger) *ActivityService {
	return &ActivityService{store: store, log: logger.OrNop(log).Named("activity")}
}

func (s *ActivityService) Record(ctx context.Context, req RecordActivityRequest) (*models.ActivityItem, error) {
	item, err := newActivityItem(req)
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateActivity(ctx, item); err != nil {
		s.log.Error("failed to record activity", zap.String("user_id", item.UserID), zap.Error(err))
		return nil, err
	}
	s.log.Debug("activity recorded", zap.String("id", item.ID), zap.String("date", item.Date), zap.String("category_id", item.CategoryID))
	return item, nil
}

func newActivityItem(req RecordActivityRequest) (*models.ActivityItem, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return nil, apperr.Newf(apperr.ErrInvalidInput, "user_id is required")
	}
	title := utils.NormalizeTitle(req.Title)
	if title == "" {
		return nil, apperr.Newf(apperr.ErrInvalidInput, "title is required")
	}
	date := strings.TrimSpace(req.Date)
	if _, err := time.Parse(models.ActivityDateLayout, date); err != nil {
		return nil, apperr.Newf(apperr.ErrInvalidInput, "date %q must be YYYY-MM-DD", req.Date)
	}
	start, end := strings.TrimSpace(req.StartTime), strings.TrimSpace(req.EndTime)
	for _, v := range []string{start, end} {
		if v == "" {
			continue
		}
		if _, err := time.Parse(clockLayout, v); err != nil {
			return nil, apperr.Newf(apperr.ErrInvalidInput, "time %q must be HH:MM", v)
		}
	}
	if start != "" && end != "" && end <= start {
		return nil, apperr.Newf(apperr.ErrInvalidInput, "end_time must be after start_time")
	}

	item := &models.ActivityItem{
		UserID:     userID,
		Title:      title,
		Date:       date,
		StartTime:  start,
		EndTime:    end,
		CategoryID: utils.NormalizeCategoryID(req.CategoryID),
		Completed:  req.Completed,
	}
	if strings.TrimSpace(req.WalletAddress) != "" {
		wallet, err := blockchain.ParseWallet(req.WalletAddress)
		if err != nil {
			return nil, err
		}
		item.WalletAddress = wallet.Hex()
	}
	return item, nil
}

// SetCompleted marks one of the user's items as done or not done.
func (s *ActivityService) SetCompleted(ctx context.Context, userID, id string, completed bool) (*models.ActivityItem, error) {
	if _, err := s.owned(ctx, userID, id); err != nil {
		return nil, err
	}
	return s.store.SetActivityCompleted(ctx, id, completed)
}

func (s *ActivityService) ListByDate(ctx context.Context, userID, date string) ([]models.ActivityItem, error) {
	if _, err := time.Parse(models.ActivityDateLayout, date); err != nil {
		return nil, apperr.Newf(apperr.ErrInvalidInput, "date %q must be YYYY-MM-DD", date)
	}
	return s.store.ListActivitiesByDate(ctx, userID, date)
}

func (s *ActivityService) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.owned(ctx, userID, id); err != nil {
		return err
	}
	return s.store.DeleteActivity(ctx, id)
}

func (s *ActivityService) owned(ctx context.Context, userID, id string) (*models.ActivityItem, error) {
	item, err := s.store.GetActivityByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.UserID != "" && item.UserID != userID {
		return nil, apperr.ErrTaskNotFound
	}
	return item, nil
}
