package services

import (
	"context"
	"errors"
	"strings"

	"lvlup-backend/apperr"
	"lvlup-backend/models"
	"lvlup-backend/storage"
)

// PlannerService stores the visible hour range of each user's day planner.
type PlannerService struct {
	store storage.PlannerStore
}

func NewPlannerService(store storage.PlannerStore) *PlannerService {
	return &PlannerService{store: store}
}

// Get returns the saved range or the defaults.
func (s *PlannerService) Get(ctx context.Context, userID string) (*models.PlannerConfig, error) {
	cfg, err := s.store.GetPlannerConfig(ctx, userID)
	if errors.Is(err, apperr.ErrNotFound) {
		return &models.PlannerConfig{
			UserID:    userID,
			StartHour: models.DefaultPlannerStartHour,
			EndHour:   models.DefaultPlannerEndHour,
		}, nil
	}
	return cfg, err
}

func (s *PlannerService) Save(ctx context.Context, userID string, startHour, endHour int) (*models.PlannerConfig, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, apperr.Newf(apperr.ErrInvalidInput, "user_id is required")
	}
	if startHour < 0 || startHour > 23 || endHour < 0 || endHour > 23 || startHour >= endHour {
		return nil, apperr.Newf(apperr.ErrInvalidHourRange, "hour ranges invalid: start %d, end %d", startHour, endHour)
	}
	cfg := &models.PlannerConfig{UserID: userID, StartHour: startHour, EndHour: endHour}
	if err := s.store.SavePlannerConfig(ctx, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
