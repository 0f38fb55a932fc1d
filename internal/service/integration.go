package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lgdx/activity-service/internal/apperrors"
	"github.com/lgdx/activity-service/internal/config"
	"github.com/lgdx/activity-service/internal/domain"
	"github.com/lgdx/activity-service/internal/repository"
)

type IntegrationService interface {
	// Connect exchanges the OAuth code, resolves the GitHub account and
	// stores the integration. Reconnecting replaces the stored credential.
	Connect(ctx context.Context, userID, code string) (*domain.Integration, error)

	Status(ctx context.Context, userID string) (*domain.Integration, error)

	// Disconnect deactivates the integration and purges the user's synced
	// activity so a later reconnect starts clean.
	Disconnect(ctx context.Context, userID string) error
}

type IntegrationServiceImpl struct {
	BaseService
	integrations repository.IntegrationRepository
	activities   repository.ActivityRepository
	syncStates   repository.SyncStateRepository
	cfg          config.GitHub
	exchange     CodeExchangeFunc
	newClient    GitHubClientFactory
}

func NewIntegrationService(
	db Transactor,
	log *slog.Logger,
	integrations repository.IntegrationRepository,
	activities repository.ActivityRepository,
	syncStates repository.SyncStateRepository,
	cfg config.GitHub,
	exchange CodeExchangeFunc,
	newClient GitHubClientFactory,
) *IntegrationServiceImpl {
	return &IntegrationServiceImpl{
		BaseService:  NewBaseService(db, log),
		integrations: integrations,
		activities:   activities,
		syncStates:   syncStates,
		cfg:          cfg,
		exchange:     exchange,
		newClient:    newClient,
	}
}

func (s *IntegrationServiceImpl) Connect(ctx context.Context, userID, code string) (*domain.Integration, error) {
	const op = "internal.service.integration.Connect"
	log := s.log.With(slog.String("op", op), slog.String("user_id", userID))

	token, scope, err := s.exchange(ctx, s.cfg.ClientID, s.cfg.ClientSecret, code)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to exchange code: %w", op, err)
	}

	account, err := s.newClient(token).CurrentUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to resolve account: %w", op, err)
	}

	integration := &domain.Integration{
		UserID:         userID,
		GithubUsername: account.Login,
		GithubUserID:   account.ID,
		AccessToken:    &token,
		Scope:          scope,
		IsActive:       true,
		SyncEnabled:    true,
		ConnectedAt:    time.Now().UTC(),
	}

	if err := s.integrations.Upsert(ctx, integration); err != nil {
		return nil, fmt.Errorf("%s: failed to store integration: %w", op, err)
	}

	log.Info("github integration connected", slog.String("github_username", account.Login))

	return integration, nil
}

func (s *IntegrationServiceImpl) Status(ctx context.Context, userID string) (*domain.Integration, error) {
	const op = "internal.service.integration.Status"

	integration, err := s.integrations.GetActive(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, &apperrors.IntegrationNotFoundError{UserID: userID}
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return integration, nil
}

func (s *IntegrationServiceImpl) Disconnect(ctx context.Context, userID string) error {
	const op = "internal.service.integration.Disconnect"
	log := s.log.With(slog.String("op", op), slog.String("user_id", userID))

	err := s.transaction(ctx, op, func(tx *sqlx.Tx) error {
		if err := s.integrations.Disconnect(ctx, tx, userID); err != nil {
			return err
		}

		if err := s.activities.DeleteByUser(ctx, tx, userID); err != nil {
			return fmt.Errorf("%s: failed to purge activities: %w", op, err)
		}

		if err := s.syncStates.DeleteByUser(ctx, tx, userID); err != nil {
			return fmt.Errorf("%s: failed to purge sync state: %w", op, err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	log.Info("github integration disconnected")

	return nil
}
