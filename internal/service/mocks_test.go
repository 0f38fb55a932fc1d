package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lgdx/activity-service/internal/domain"
	"github.com/lgdx/activity-service/internal/github"
	"github.com/lgdx/activity-service/internal/repository"
	"github.com/stretchr/testify/mock"
)

type TransactorMock struct {
	mock.Mock
}

func (m *TransactorMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	var tx *sqlx.Tx

	args := m.Called(ctx, opts)
	if args.Get(0) != nil {
		tx = args.Get(0).(*sqlx.Tx)
	}

	return tx, args.Error(1)
}

type ActivityRepositoryMock struct {
	mock.Mock
}

var _ repository.ActivityRepository = (*ActivityRepositoryMock)(nil)

func (m *ActivityRepositoryMock) ApplyEvent(ctx context.Context, tx *sqlx.Tx, event *domain.ActivityEvent) (bool, error) {
	args := m.Called(ctx, tx, event)
	return args.Bool(0), args.Error(1)
}

func (m *ActivityRepositoryMock) ListRange(ctx context.Context, userID string, from, to time.Time) ([]domain.DailyActivity, error) {
	args := m.Called(ctx, userID, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]domain.DailyActivity), args.Error(1)
}

func (m *ActivityRepositoryMock) DeleteByUser(ctx context.Context, tx *sqlx.Tx, userID string) error {
	args := m.Called(ctx, tx, userID)
	return args.Error(0)
}

type SyncStateRepositoryMock struct {
	mock.Mock
}

var _ repository.SyncStateRepository = (*SyncStateRepositoryMock)(nil)

func (m *SyncStateRepositoryMock) Claim(ctx context.Context, userID string, force bool, startedAt time.Time) (*domain.SyncState, error) {
	args := m.Called(ctx, userID, force, startedAt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*domain.SyncState), args.Error(1)
}

func (m *SyncStateRepositoryMock) UpdateProgress(ctx context.Context, userID string, progress int, step int, message string, syncedRepos, totalRepos int) error {
	args := m.Called(ctx, userID, progress, step, message, syncedRepos, totalRepos)
	return args.Error(0)
}

func (m *SyncStateRepositoryMock) Complete(ctx context.Context, userID string, repos, commits int, completedAt time.Time) error {
	args := m.Called(ctx, userID, repos, commits, completedAt)
	return args.Error(0)
}

func (m *SyncStateRepositoryMock) Fail(ctx context.Context, userID string, message string) error {
	args := m.Called(ctx, userID, message)
	return args.Error(0)
}

func (m *SyncStateRepositoryMock) Get(ctx context.Context, userID string) (*domain.SyncState, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*domain.SyncState), args.Error(1)
}

func (m *SyncStateRepositoryMock) DeleteByUser(ctx context.Context, tx *sqlx.Tx, userID string) error {
	args := m.Called(ctx, tx, userID)
	return args.Error(0)
}

type IntegrationRepositoryMock struct {
	mock.Mock
}

var _ repository.IntegrationRepository = (*IntegrationRepositoryMock)(nil)

func (m *IntegrationRepositoryMock) Upsert(ctx context.Context, integration *domain.Integration) error {
	args := m.Called(ctx, integration)
	return args.Error(0)
}

func (m *IntegrationRepositoryMock) GetActive(ctx context.Context, userID string) (*domain.Integration, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*domain.Integration), args.Error(1)
}

func (m *IntegrationRepositoryMock) GetActiveByUsername(ctx context.Context, login string) (*domain.Integration, error) {
	args := m.Called(ctx, login)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*domain.Integration), args.Error(1)
}

func (m *IntegrationRepositoryMock) Disconnect(ctx context.Context, tx *sqlx.Tx, userID string) error {
	args := m.Called(ctx, tx, userID)
	return args.Error(0)
}

func (m *IntegrationRepositoryMock) RecordSyncRun(ctx context.Context, userID string, repos, commits int, at time.Time) error {
	args := m.Called(ctx, userID, repos, commits, at)
	return args.Error(0)
}

type WebhookLogRepositoryMock struct {
	mock.Mock
}

var _ repository.WebhookLogRepository = (*WebhookLogRepositoryMock)(nil)

func (m *WebhookLogRepositoryMock) Insert(ctx context.Context, entry *domain.WebhookLog) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

type GitHubClientMock struct {
	mock.Mock
}

var _ GitHubClient = (*GitHubClientMock)(nil)

func (m *GitHubClientMock) CurrentUser(ctx context.Context) (*github.Account, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*github.Account), args.Error(1)
}

func (m *GitHubClientMock) ListOwnedRepositories(ctx context.Context) ([]github.Repository, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]github.Repository), args.Error(1)
}

func (m *GitHubClientMock) ListCommits(ctx context.Context, owner, repo, author string, since time.Time) ([]github.Commit, error) {
	args := m.Called(ctx, owner, repo, author, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]github.Commit), args.Error(1)
}

func (m *GitHubClientMock) ListLanguages(ctx context.Context, owner, repo string) ([]string, error) {
	args := m.Called(ctx, owner, repo)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]string), args.Error(1)
}
