package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lgdx/activity-service/internal/apperrors"
	"github.com/lgdx/activity-service/internal/domain"
)

type IntegrationRepository struct {
	db  *sqlx.DB
	log *slog.Logger
	sq  sq.StatementBuilderType
}

func NewIntegrationRepository(db *sqlx.DB, log *slog.Logger) *IntegrationRepository {
	return &IntegrationRepository{
		db:  db,
		log: log,
		sq:  sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (r *IntegrationRepository) Upsert(ctx context.Context, integration *domain.Integration) error {
	const op = "internal.repository.postgres.UpsertIntegration"

	query, args, err := r.sq.Insert("integrations").
		Columns(
			"user_id", "github_username", "github_user_id", "access_token", "scope",
			"is_active", "sync_enabled", "include_private_repos", "exclude_repositories",
			"total_repositories", "total_commits", "connected_at", "last_sync_at",
		).
		Values(
			integration.UserID, integration.GithubUsername, integration.GithubUserID,
			integration.AccessToken, integration.Scope,
			integration.IsActive, integration.SyncEnabled, integration.IncludePrivateRepos,
			integration.ExcludeRepositories,
			integration.TotalRepositories, integration.TotalCommits,
			integration.ConnectedAt, integration.LastSyncAt,
		).
		Suffix(`ON CONFLICT (user_id) DO UPDATE SET
			github_username = EXCLUDED.github_username,
			github_user_id = EXCLUDED.github_user_id,
			access_token = EXCLUDED.access_token,
			scope = EXCLUDED.scope,
			is_active = EXCLUDED.is_active,
			sync_enabled = EXCLUDED.sync_enabled,
			include_private_repos = EXCLUDED.include_private_repos,
			exclude_repositories = EXCLUDED.exclude_repositories,
			connected_at = EXCLUDED.connected_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("%s: failed to build upsert query: %w", op, err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%s: failed to execute upsert: %w", op, err)
	}

	return nil
}

func (r *IntegrationRepository) GetActive(ctx context.Context, userID string) (*domain.Integration, error) {
	const op = "internal.repository.postgres.GetActiveIntegration"

	return r.getActiveBy(ctx, op, sq.Eq{"user_id": userID}, userID)
}

func (r *IntegrationRepository) GetActiveByUsername(ctx context.Context, login string) (*domain.Integration, error) {
	const op = "internal.repository.postgres.GetActiveIntegrationByUsername"

	return r.getActiveBy(ctx, op, sq.Eq{"github_username": login}, login)
}

func (r *IntegrationRepository) getActiveBy(ctx context.Context, op string, cond sq.Eq, key string) (*domain.Integration, error) {
	cond["is_active"] = true

	query, args, err := r.sq.Select(
		"user_id", "github_username", "github_user_id", "access_token", "scope",
		"is_active", "sync_enabled", "include_private_repos", "exclude_repositories",
		"total_repositories", "total_commits", "connected_at", "last_sync_at",
	).
		From("integrations").
		Where(cond).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: failed to build query: %w", op, err)
	}

	var integration domain.Integration
	if err := r.db.GetContext(ctx, &integration, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w: active integration for '%s'", op, apperrors.ErrNotFound, key)
		}

		return nil, fmt.Errorf("%s: failed to execute query: %w", op, err)
	}

	return &integration, nil
}

// Disconnect soft-deletes the integration: the row stays for audit but the
// credential is dropped and the active flag cleared.
func (r *IntegrationRepository) Disconnect(ctx context.Context, tx *sqlx.Tx, userID string) error {
	const op = "internal.repository.postgres.DisconnectIntegration"

	query, args, err := r.sq.Update("integrations").
		Set("is_active", false).
		Set("sync_enabled", false).
		Set("access_token", nil).
		Where(sq.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("%s: failed to build update query: %w", op, err)
	}

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: failed to execute update: %w", op, err)
	}

	if rowsAffected, err := res.RowsAffected(); err == nil && rowsAffected == 0 {
		return &apperrors.IntegrationNotFoundError{UserID: userID}
	}

	return nil
}

func (r *IntegrationRepository) RecordSyncRun(ctx context.Context, userID string, repos, commits int, at time.Time) error {
	const op = "internal.repository.postgres.RecordSyncRun"

	query, args, err := r.sq.Update("integrations").
		Set("total_repositories", repos).
		Set("total_commits", commits).
		Set("last_sync_at", at).
		Where(sq.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("%s: failed to build update query: %w", op, err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%s: failed to execute update: %w", op, err)
	}

	return nil
}
