package service

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/lgdx/activity-service/internal/apperrors"
	"github.com/lgdx/activity-service/internal/config"
	"github.com/lgdx/activity-service/internal/domain"
	"github.com/lgdx/activity-service/internal/github"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testGitHubCfg = config.GitHub{
	ServiceToken:   "gho_service",
	SyncWindow:     90 * 24 * time.Hour,
	PageSize:       100,
	RequestsPerSec: 10,
}

func newSyncService(
	transactor *TransactorMock,
	activities *ActivityRepositoryMock,
	syncStates *SyncStateRepositoryMock,
	integrations *IntegrationRepositoryMock,
	client GitHubClient,
	tokens *[]string,
) *SyncServiceImpl {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	factory := func(token string) GitHubClient {
		if tokens != nil {
			*tokens = append(*tokens, token)
		}

		return client
	}

	return NewSyncService(transactor, logger, activities, syncStates, integrations, testGitHubCfg, factory)
}

func syncingState(userID string) *domain.SyncState {
	started := time.Now().UTC()

	return &domain.SyncState{
		UserID:    userID,
		Status:    domain.SyncStatusSyncing,
		StartedAt: &started,
	}
}

func TestSyncService_Trigger_Success(t *testing.T) {
	ctx := context.Background()

	transactor := new(TransactorMock)
	activities := new(ActivityRepositoryMock)
	syncStates := new(SyncStateRepositoryMock)
	integrations := new(IntegrationRepositoryMock)
	client := new(GitHubClientMock)

	integration := testIntegrationRow()
	integration.ExcludeRepositories = pq.StringArray{"vendor-mirror"}
	integrations.On("GetActive", ctx, "user-1").Return(integration, nil).Once()

	syncStates.On("Claim", ctx, "user-1", false, mock.Anything).Return(syncingState("user-1"), nil).Once()

	client.On("CurrentUser", ctx).Return(&github.Account{Login: "octocat", ID: 1}, nil).Once()
	client.On("ListOwnedRepositories", mock.Anything).Return([]github.Repository{
		{Name: "hello", Owner: "octocat"},
		{Name: "secret", Owner: "octocat", Private: true},
		{Name: "vendor-mirror", Owner: "octocat"},
	}, nil).Once()
	client.On("ListCommits", mock.Anything, "octocat", "hello", "octocat", mock.Anything).Return([]github.Commit{
		{SHA: "sha1", Message: "feat: one", Date: time.Now().UTC().AddDate(0, 0, -1)},
		{SHA: "sha2", Message: "feat: two", Date: time.Now().UTC()},
	}, nil).Once()
	client.On("ListLanguages", mock.Anything, "octocat", "hello").Return([]string{"Go"}, nil).Once()

	_, tx, smock := newMockDBAndTx(t)
	smock.ExpectCommit()
	transactor.On("BeginTxx", mock.Anything, (*sql.TxOptions)(nil)).Return(tx, nil).Once()

	activities.On("ApplyEvent", mock.Anything, tx, mock.MatchedBy(func(ev *domain.ActivityEvent) bool {
		return ev.UserID == "user-1" && ev.Repository == "hello" && ev.CommitsCount == 1
	})).Return(true, nil).Twice()

	syncStates.On("UpdateProgress", mock.Anything, "user-1", 25, 1, "Fetching repositories", 0, 0).Return(nil).Once()
	syncStates.On("UpdateProgress", mock.Anything, "user-1", 75, 2, "Synced hello", 1, 1).Return(nil).Once()
	syncStates.On("Complete", mock.Anything, "user-1", 1, 2, mock.Anything).Return(nil).Once()
	integrations.On("RecordSyncRun", mock.Anything, "user-1", 1, 2, mock.Anything).Return(nil).Once()

	final := &domain.SyncState{UserID: "user-1", Status: domain.SyncStatusCompleted, Progress: 100, SyncedRepos: 1, SyncedCommits: 2}
	syncStates.On("Get", ctx, "user-1").Return(final, nil).Once()

	var tokens []string
	svc := newSyncService(transactor, activities, syncStates, integrations, client, &tokens)

	state, err := svc.Trigger(ctx, "user-1", false)
	require.NoError(t, err)
	assert.Equal(t, domain.SyncStatusCompleted, state.Status)
	assert.Equal(t, 2, state.SyncedCommits)
	assert.Equal(t, []string{"gho_token"}, tokens, "the per-user token must win over the service token")

	transactor.AssertExpectations(t)
	activities.AssertExpectations(t)
	syncStates.AssertExpectations(t)
	integrations.AssertExpectations(t)
	client.AssertExpectations(t)
}

func TestSyncService_Trigger_AlreadyRunning(t *testing.T) {
	ctx := context.Background()

	transactor := new(TransactorMock)
	activities := new(ActivityRepositoryMock)
	syncStates := new(SyncStateRepositoryMock)
	integrations := new(IntegrationRepositoryMock)
	client := new(GitHubClientMock)

	integrations.On("GetActive", ctx, "user-1").Return(testIntegrationRow(), nil).Once()

	running := syncingState("user-1")
	running.Progress = 42
	syncStates.On("Claim", ctx, "user-1", false, mock.Anything).
		Return(running, &apperrors.SyncInProgressError{UserID: "user-1"}).Once()

	svc := newSyncService(transactor, activities, syncStates, integrations, client, nil)

	state, err := svc.Trigger(ctx, "user-1", false)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrSyncInProgress)
	require.NotNil(t, state, "the running state must be returned with the conflict")
	assert.Equal(t, 42, state.Progress)

	client.AssertNotCalled(t, "CurrentUser", mock.Anything)
	syncStates.AssertExpectations(t)
}

func TestSyncService_Trigger_NoIntegration(t *testing.T) {
	ctx := context.Background()

	transactor := new(TransactorMock)
	activities := new(ActivityRepositoryMock)
	syncStates := new(SyncStateRepositoryMock)
	integrations := new(IntegrationRepositoryMock)

	integrations.On("GetActive", ctx, "user-1").Return(nil, apperrors.ErrNotFound).Once()

	svc := newSyncService(transactor, activities, syncStates, integrations, new(GitHubClientMock), nil)

	_, err := svc.Trigger(ctx, "user-1", false)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestSyncService_Trigger_ServiceTokenFallback(t *testing.T) {
	ctx := context.Background()

	transactor := new(TransactorMock)
	activities := new(ActivityRepositoryMock)
	syncStates := new(SyncStateRepositoryMock)
	integrations := new(IntegrationRepositoryMock)
	client := new(GitHubClientMock)

	integration := testIntegrationRow()
	integration.AccessToken = nil
	integrations.On("GetActive", ctx, "user-1").Return(integration, nil).Once()

	syncStates.On("Claim", ctx, "user-1", false, mock.Anything).Return(syncingState("user-1"), nil).Once()

	client.On("CurrentUser", ctx).Return(&github.Account{Login: "octocat", ID: 1}, nil).Once()
	client.On("ListOwnedRepositories", mock.Anything).Return([]github.Repository{}, nil).Once()

	syncStates.On("UpdateProgress", mock.Anything, "user-1", 25, 1, "Fetching repositories", 0, 0).Return(nil).Once()
	syncStates.On("Complete", mock.Anything, "user-1", 0, 0, mock.Anything).Return(nil).Once()
	integrations.On("RecordSyncRun", mock.Anything, "user-1", 0, 0, mock.Anything).Return(nil).Once()
	syncStates.On("Get", ctx, "user-1").
		Return(&domain.SyncState{UserID: "user-1", Status: domain.SyncStatusCompleted, Progress: 100}, nil).Once()

	var tokens []string
	svc := newSyncService(transactor, activities, syncStates, integrations, client, &tokens)

	state, err := svc.Trigger(ctx, "user-1", false)
	require.NoError(t, err)
	assert.Equal(t, domain.SyncStatusCompleted, state.Status)
	assert.Equal(t, []string{"gho_service"}, tokens)
}

func TestSyncService_Trigger_NoCredential(t *testing.T) {
	ctx := context.Background()

	transactor := new(TransactorMock)
	activities := new(ActivityRepositoryMock)
	syncStates := new(SyncStateRepositoryMock)
	integrations := new(IntegrationRepositoryMock)

	integration := testIntegrationRow()
	integration.AccessToken = nil
	integrations.On("GetActive", ctx, "user-1").Return(integration, nil).Once()
	syncStates.On("Claim", ctx, "user-1", false, mock.Anything).Return(syncingState("user-1"), nil).Once()
	syncStates.On("Fail", ctx, "user-1", "no github credential available").Return(nil).Once()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	cfg := testGitHubCfg
	cfg.ServiceToken = ""
	svc := NewSyncService(transactor, logger, activities, syncStates, integrations, cfg, func(string) GitHubClient {
		t.Fatal("no client must be built without a credential")
		return nil
	})

	_, err := svc.Trigger(ctx, "user-1", false)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNoCredential)

	syncStates.AssertExpectations(t)
}

func TestSyncService_Trigger_SkipsFailingRepository(t *testing.T) {
	ctx := context.Background()

	transactor := new(TransactorMock)
	activities := new(ActivityRepositoryMock)
	syncStates := new(SyncStateRepositoryMock)
	integrations := new(IntegrationRepositoryMock)
	client := new(GitHubClientMock)

	integrations.On("GetActive", ctx, "user-1").Return(testIntegrationRow(), nil).Once()
	syncStates.On("Claim", ctx, "user-1", false, mock.Anything).Return(syncingState("user-1"), nil).Once()

	client.On("CurrentUser", ctx).Return(&github.Account{Login: "octocat", ID: 1}, nil).Once()
	client.On("ListOwnedRepositories", mock.Anything).Return([]github.Repository{
		{Name: "hello", Owner: "octocat"},
		{Name: "flaky", Owner: "octocat"},
	}, nil).Once()
	client.On("ListCommits", mock.Anything, "octocat", "hello", "octocat", mock.Anything).Return([]github.Commit{
		{SHA: "sha1", Message: "feat: one", Date: time.Now().UTC()},
	}, nil).Once()
	client.On("ListCommits", mock.Anything, "octocat", "flaky", "octocat", mock.Anything).
		Return(nil, fmt.Errorf("server error: %w", apperrors.ErrUpstream)).Once()
	client.On("ListLanguages", mock.Anything, "octocat", "hello").Return([]string{"Go"}, nil).Once()

	_, tx, smock := newMockDBAndTx(t)
	smock.ExpectCommit()
	transactor.On("BeginTxx", mock.Anything, (*sql.TxOptions)(nil)).Return(tx, nil).Once()
	activities.On("ApplyEvent", mock.Anything, tx, mock.Anything).Return(true, nil).Once()

	syncStates.On("UpdateProgress", mock.Anything, "user-1", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	// only the committed repository counts toward the totals
	syncStates.On("Complete", mock.Anything, "user-1", 1, 1, mock.Anything).Return(nil).Once()
	integrations.On("RecordSyncRun", mock.Anything, "user-1", 1, 1, mock.Anything).Return(nil).Once()
	syncStates.On("Get", ctx, "user-1").
		Return(&domain.SyncState{UserID: "user-1", Status: domain.SyncStatusCompleted, Progress: 100, SyncedCommits: 1}, nil).Once()

	svc := newSyncService(transactor, activities, syncStates, integrations, client, nil)

	state, err := svc.Trigger(ctx, "user-1", false)
	require.NoError(t, err, "a single bad repository must not fail the run")
	assert.Equal(t, domain.SyncStatusCompleted, state.Status)
	assert.Equal(t, 1, state.SyncedCommits)

	syncStates.AssertExpectations(t)
	client.AssertExpectations(t)
	syncStates.AssertNotCalled(t, "Fail", mock.Anything, mock.Anything, mock.Anything)
}

func TestSyncService_Trigger_UpstreamFailure(t *testing.T) {
	ctx := context.Background()

	transactor := new(TransactorMock)
	activities := new(ActivityRepositoryMock)
	syncStates := new(SyncStateRepositoryMock)
	integrations := new(IntegrationRepositoryMock)
	client := new(GitHubClientMock)

	integrations.On("GetActive", ctx, "user-1").Return(testIntegrationRow(), nil).Once()
	syncStates.On("Claim", ctx, "user-1", false, mock.Anything).Return(syncingState("user-1"), nil).Once()

	client.On("CurrentUser", ctx).Return(&github.Account{Login: "octocat", ID: 1}, nil).Once()
	syncStates.On("UpdateProgress", mock.Anything, "user-1", 25, 1, "Fetching repositories", 0, 0).Return(nil).Once()
	client.On("ListOwnedRepositories", mock.Anything).
		Return(nil, fmt.Errorf("server error: %w", apperrors.ErrUpstream)).Once()

	syncStates.On("Fail", ctx, "user-1", mock.MatchedBy(func(msg string) bool {
		return msg != ""
	})).Return(nil).Once()

	svc := newSyncService(transactor, activities, syncStates, integrations, client, nil)

	_, err := svc.Trigger(ctx, "user-1", false)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUpstream)

	syncStates.AssertExpectations(t)
	syncStates.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSyncService_Status(t *testing.T) {
	ctx := context.Background()

	syncStates := new(SyncStateRepositoryMock)
	syncStates.On("Get", ctx, "user-1").
		Return(&domain.SyncState{UserID: "user-1", Status: domain.SyncStatusIdle}, nil).Once()
	syncStates.On("Get", ctx, "unknown").Return(nil, apperrors.ErrNotFound).Once()

	svc := newSyncService(new(TransactorMock), new(ActivityRepositoryMock), syncStates, new(IntegrationRepositoryMock), new(GitHubClientMock), nil)

	state, err := svc.Status(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, domain.SyncStatusIdle, state.Status)

	_, err = svc.Status(ctx, "unknown")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
