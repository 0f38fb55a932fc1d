package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lgdx/activity-service/internal/domain"
	"github.com/lgdx/activity-service/internal/repository"
	"github.com/lgdx/activity-service/internal/stats"
)

// DefaultPeriodDays is the window served when the caller does not ask for a
// specific period. Twelve weeks keeps the heatmap aligned to whole weeks.
const DefaultPeriodDays = 84

type ActivityService interface {
	Heatmap(ctx context.Context, userID string, periodDays int) ([]stats.HeatmapDay, error)
	Chart(ctx context.Context, userID string, periodDays int) ([]stats.ChartPoint, error)
	Stats(ctx context.Context, userID string, periodDays int) (*stats.Detailed, error)
}

type ActivityServiceImpl struct {
	log        *slog.Logger
	activities repository.ActivityRepository
}

func NewActivityService(log *slog.Logger, activities repository.ActivityRepository) *ActivityServiceImpl {
	return &ActivityServiceImpl{
		log:        log,
		activities: activities,
	}
}

func (s *ActivityServiceImpl) Heatmap(ctx context.Context, userID string, periodDays int) ([]stats.HeatmapDay, error) {
	const op = "internal.service.activity.Heatmap"

	activities, from, _, err := s.load(ctx, op, userID, periodDays)
	if err != nil {
		return nil, err
	}

	return stats.Heatmap(activities, normalizePeriod(periodDays), from), nil
}

func (s *ActivityServiceImpl) Chart(ctx context.Context, userID string, periodDays int) ([]stats.ChartPoint, error) {
	const op = "internal.service.activity.Chart"

	activities, _, _, err := s.load(ctx, op, userID, periodDays)
	if err != nil {
		return nil, err
	}

	return stats.Chart(activities), nil
}

func (s *ActivityServiceImpl) Stats(ctx context.Context, userID string, periodDays int) (*stats.Detailed, error) {
	const op = "internal.service.activity.Stats"

	activities, _, today, err := s.load(ctx, op, userID, periodDays)
	if err != nil {
		return nil, err
	}

	detailed := stats.DetailedStats(activities, normalizePeriod(periodDays), today)

	return &detailed, nil
}

func (s *ActivityServiceImpl) load(ctx context.Context, op, userID string, periodDays int) ([]domain.DailyActivity, time.Time, time.Time, error) {
	period := normalizePeriod(periodDays)

	today := dateOnly(time.Now().UTC())
	from := today.AddDate(0, 0, -(period - 1))

	activities, err := s.activities.ListRange(ctx, userID, from, today)
	if err != nil {
		return nil, time.Time{}, time.Time{}, fmt.Errorf("%s: failed to list activities: %w", op, err)
	}

	return activities, from, today, nil
}

func normalizePeriod(periodDays int) int {
	if periodDays <= 0 {
		return DefaultPeriodDays
	}

	return periodDays
}
