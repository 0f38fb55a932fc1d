package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lgdx/activity-service/internal/apperrors"
	"github.com/lgdx/activity-service/internal/config"
	"github.com/lgdx/activity-service/internal/domain"
	"github.com/lgdx/activity-service/internal/github"
	"github.com/lgdx/activity-service/internal/repository"
	"github.com/lgdx/activity-service/pkg/logger/sl"
	"golang.org/x/sync/errgroup"
)

// syncConcurrency bounds how many repositories are fetched at once. The
// client-side rate limiter still caps the aggregate request rate.
const syncConcurrency = 4

type SyncService interface {
	// Trigger runs a full historical sync for the user and returns the final
	// state. When a sync is already running and force is false, the running
	// state is returned together with apperrors.ErrSyncInProgress.
	Trigger(ctx context.Context, userID string, force bool) (*domain.SyncState, error)

	Status(ctx context.Context, userID string) (*domain.SyncState, error)
}

type SyncServiceImpl struct {
	BaseService
	activities   repository.ActivityRepository
	syncStates   repository.SyncStateRepository
	integrations repository.IntegrationRepository
	cfg          config.GitHub
	newClient    GitHubClientFactory
}

func NewSyncService(
	db Transactor,
	log *slog.Logger,
	activities repository.ActivityRepository,
	syncStates repository.SyncStateRepository,
	integrations repository.IntegrationRepository,
	cfg config.GitHub,
	newClient GitHubClientFactory,
) *SyncServiceImpl {
	return &SyncServiceImpl{
		BaseService:  NewBaseService(db, log),
		activities:   activities,
		syncStates:   syncStates,
		integrations: integrations,
		cfg:          cfg,
		newClient:    newClient,
	}
}

func (s *SyncServiceImpl) Trigger(ctx context.Context, userID string, force bool) (*domain.SyncState, error) {
	const op = "internal.service.sync.Trigger"
	log := s.log.With(slog.String("op", op), slog.String("user_id", userID))

	integration, err := s.integrations.GetActive(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, &apperrors.IntegrationNotFoundError{UserID: userID}
		}

		return nil, fmt.Errorf("%s: failed to get integration: %w", op, err)
	}

	startedAt := time.Now().UTC()

	state, err := s.syncStates.Claim(ctx, userID, force, startedAt)
	if err != nil {
		if errors.Is(err, apperrors.ErrSyncInProgress) {
			log.Info("sync already running")

			return state, err
		}

		return nil, fmt.Errorf("%s: failed to claim sync: %w", op, err)
	}

	token := s.cfg.ServiceToken
	if integration.AccessToken != nil && *integration.AccessToken != "" {
		token = *integration.AccessToken
	}

	if token == "" {
		s.fail(ctx, userID, "no github credential available")

		return nil, fmt.Errorf("%s: %w", op, apperrors.ErrNoCredential)
	}

	log.Info("sync started", slog.Bool("force", force))

	if err := s.run(ctx, s.newClient(token), integration, startedAt); err != nil {
		s.fail(ctx, userID, err.Error())

		return nil, fmt.Errorf("%s: sync failed: %w", op, err)
	}

	final, err := s.syncStates.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read final state: %w", op, err)
	}

	log.Info("sync completed",
		slog.Int("repositories", final.SyncedRepos),
		slog.Int("commits", final.SyncedCommits),
	)

	return final, nil
}

func (s *SyncServiceImpl) Status(ctx context.Context, userID string) (*domain.SyncState, error) {
	const op = "internal.service.sync.Status"

	state, err := s.syncStates.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return state, nil
}

func (s *SyncServiceImpl) run(ctx context.Context, client GitHubClient, integration *domain.Integration, startedAt time.Time) error {
	userID := integration.UserID

	account, err := client.CurrentUser(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve account: %w", err)
	}

	s.progress(ctx, userID, 25, 1, "Fetching repositories", 0, 0)

	repos, err := client.ListOwnedRepositories(ctx)
	if err != nil {
		return fmt.Errorf("failed to list repositories: %w", err)
	}

	filtered := filterRepositories(repos, integration)
	total := len(filtered)
	since := startedAt.Add(-s.cfg.SyncWindow)

	if total == 0 {
		return s.finish(ctx, userID, 0, 0)
	}

	var (
		done         atomic.Int64
		syncedRepos  atomic.Int64
		totalCommits atomic.Int64
	)

	var g errgroup.Group
	g.SetLimit(syncConcurrency)

	for _, repo := range filtered {
		g.Go(func() error {
			commits, err := s.syncRepository(ctx, client, userID, account.Login, repo, since)
			if err != nil {
				// A single bad repository does not abort the batch.
				s.log.Warn("skipping repository",
					sl.Err(err),
					slog.String("user_id", userID),
					slog.String("repository", repo.Name),
				)
			} else {
				syncedRepos.Add(1)
				totalCommits.Add(int64(commits))
			}

			d := int(done.Add(1))

			s.progress(ctx, userID, 25+d*50/total, 2, fmt.Sprintf("Synced %s", repo.Name), d, total)

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	return s.finish(ctx, userID, int(syncedRepos.Load()), int(totalCommits.Load()))
}

func (s *SyncServiceImpl) syncRepository(ctx context.Context, client GitHubClient, userID, author string, repo github.Repository, since time.Time) (int, error) {
	const op = "internal.service.sync.syncRepository"

	commits, err := client.ListCommits(ctx, repo.Owner, repo.Name, author, since)
	if err != nil {
		return 0, err
	}

	if len(commits) == 0 {
		return 0, nil
	}

	languages, err := client.ListLanguages(ctx, repo.Owner, repo.Name)
	if err != nil {
		// language detection is cosmetic, the commits still count
		s.log.Warn("failed to list repository languages", sl.Err(err), slog.String("repository", repo.Name))
		languages = nil
	}

	now := time.Now().UTC()

	err = s.transaction(ctx, op, func(tx *sqlx.Tx) error {
		for _, c := range commits {
			event := &domain.ActivityEvent{
				ID:           fmt.Sprintf("%s_%s_%s", userID, repo.Name, c.SHA),
				UserID:       userID,
				Date:         dateOnly(c.Date),
				Repository:   repo.Name,
				CommitSHA:    c.SHA,
				Summary:      c.Message,
				CommitsCount: 1,
				Additions:    c.Additions,
				Deletions:    c.Deletions,
				Languages:    languages,
				EventType:    domain.EventTypePush,
				CreatedAt:    now,
			}

			if _, err := s.activities.ApplyEvent(ctx, tx, event); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	return len(commits), nil
}

func (s *SyncServiceImpl) finish(ctx context.Context, userID string, repos, commits int) error {
	completedAt := time.Now().UTC()

	if err := s.syncStates.Complete(ctx, userID, repos, commits, completedAt); err != nil {
		return fmt.Errorf("failed to complete sync: %w", err)
	}

	if err := s.integrations.RecordSyncRun(ctx, userID, repos, commits, completedAt); err != nil {
		return fmt.Errorf("failed to record sync run: %w", err)
	}

	return nil
}

func (s *SyncServiceImpl) progress(ctx context.Context, userID string, progress, step int, message string, syncedRepos, totalRepos int) {
	if err := s.syncStates.UpdateProgress(ctx, userID, progress, step, message, syncedRepos, totalRepos); err != nil {
		s.log.Error("failed to update sync progress", sl.Err(err), slog.String("user_id", userID))
	}
}

func (s *SyncServiceImpl) fail(ctx context.Context, userID, message string) {
	if err := s.syncStates.Fail(ctx, userID, message); err != nil {
		s.log.Error("failed to mark sync as failed", sl.Err(err), slog.String("user_id", userID))
	}
}

func filterRepositories(repos []github.Repository, integration *domain.Integration) []github.Repository {
	filtered := make([]github.Repository, 0, len(repos))

	for _, repo := range repos {
		if repo.Private && !integration.IncludePrivateRepos {
			continue
		}

		if slices.Contains(integration.ExcludeRepositories, repo.Name) {
			continue
		}

		filtered = append(filtered, repo)
	}

	return filtered
}
