package http

import (
	"context"

	"github.com/lgdx/activity-service/internal/domain"
	"github.com/lgdx/activity-service/internal/service"
	"github.com/lgdx/activity-service/internal/stats"
	"github.com/stretchr/testify/mock"
)

type IngestServiceMock struct {
	mock.Mock
}

var _ service.IngestService = (*IngestServiceMock)(nil)

func (m *IngestServiceMock) ProcessDelivery(ctx context.Context, deliveryID, eventType string, body []byte) error {
	args := m.Called(ctx, deliveryID, eventType, body)
	return args.Error(0)
}

type SyncServiceMock struct {
	mock.Mock
}

var _ service.SyncService = (*SyncServiceMock)(nil)

func (m *SyncServiceMock) Trigger(ctx context.Context, userID string, force bool) (*domain.SyncState, error) {
	args := m.Called(ctx, userID, force)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*domain.SyncState), args.Error(1)
}

func (m *SyncServiceMock) Status(ctx context.Context, userID string) (*domain.SyncState, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*domain.SyncState), args.Error(1)
}

type ActivityServiceMock struct {
	mock.Mock
}

var _ service.ActivityService = (*ActivityServiceMock)(nil)

func (m *ActivityServiceMock) Heatmap(ctx context.Context, userID string, periodDays int) ([]stats.HeatmapDay, error) {
	args := m.Called(ctx, userID, periodDays)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]stats.HeatmapDay), args.Error(1)
}

func (m *ActivityServiceMock) Chart(ctx context.Context, userID string, periodDays int) ([]stats.ChartPoint, error) {
	args := m.Called(ctx, userID, periodDays)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]stats.ChartPoint), args.Error(1)
}

func (m *ActivityServiceMock) Stats(ctx context.Context, userID string, periodDays int) (*stats.Detailed, error) {
	args := m.Called(ctx, userID, periodDays)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*stats.Detailed), args.Error(1)
}

type IntegrationServiceMock struct {
	mock.Mock
}

var _ service.IntegrationService = (*IntegrationServiceMock)(nil)

func (m *IntegrationServiceMock) Connect(ctx context.Context, userID, code string) (*domain.Integration, error) {
	args := m.Called(ctx, userID, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*domain.Integration), args.Error(1)
}

func (m *IntegrationServiceMock) Status(ctx context.Context, userID string) (*domain.Integration, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*domain.Integration), args.Error(1)
}

func (m *IntegrationServiceMock) Disconnect(ctx context.Context, userID string) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}
