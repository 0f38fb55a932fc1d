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

const syncStateColumns = "user_id, status, progress, step, step_message, " +
	"total_repositories, synced_repositories, total_commits, synced_commits, " +
	"started_at, completed_at, error_message"

type SyncStateRepository struct {
	db  *sqlx.DB
	log *slog.Logger
	sq  sq.StatementBuilderType
}

func NewSyncStateRepository(db *sqlx.DB, log *slog.Logger) *SyncStateRepository {
	return &SyncStateRepository{
		db:  db,
		log: log,
		sq:  sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// Claim takes ownership of the user's sync slot in a single conditional
// upsert. The ON CONFLICT update is guarded so a row already in "syncing"
// is only overwritten when force is set. When the guard rejects the write
// the query returns no rows and the caller gets the current snapshot plus
// apperrors.ErrSyncInProgress.
func (r *SyncStateRepository) Claim(ctx context.Context, userID string, force bool, startedAt time.Time) (*domain.SyncState, error) {
	const op = "internal.repository.postgres.ClaimSync"

	query := `
		INSERT INTO sync_state (` + syncStateColumns + `)
		VALUES ($1, $2, 0, 0, 'Starting synchronization', 0, 0, 0, 0, $3, NULL, NULL)
		ON CONFLICT (user_id) DO UPDATE SET
			status = EXCLUDED.status,
			progress = 0,
			step = 0,
			step_message = EXCLUDED.step_message,
			total_repositories = 0,
			synced_repositories = 0,
			total_commits = 0,
			synced_commits = 0,
			started_at = EXCLUDED.started_at,
			completed_at = NULL,
			error_message = NULL
		WHERE sync_state.status <> $2 OR $4
		RETURNING ` + syncStateColumns

	var state domain.SyncState
	err := r.db.GetContext(ctx, &state, query, userID, domain.SyncStatusSyncing, startedAt, force)
	if err == nil {
		return &state, nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: failed to claim sync: %w", op, err)
	}

	snapshot, getErr := r.Get(ctx, userID)
	if getErr != nil {
		return nil, fmt.Errorf("%s: failed to read running sync: %w", op, getErr)
	}

	return snapshot, &apperrors.SyncInProgressError{UserID: userID}
}

func (r *SyncStateRepository) UpdateProgress(ctx context.Context, userID string, progress int, step int, message string, syncedRepos, totalRepos int) error {
	const op = "internal.repository.postgres.UpdateSyncProgress"

	query, args, err := r.sq.Update("sync_state").
		Set("progress", progress).
		Set("step", step).
		Set("step_message", message).
		Set("synced_repositories", syncedRepos).
		Set("total_repositories", totalRepos).
		Where(sq.Eq{"user_id": userID, "status": domain.SyncStatusSyncing}).
		ToSql()
	if err != nil {
		return fmt.Errorf("%s: failed to build update query: %w", op, err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%s: failed to execute update: %w", op, err)
	}

	return nil
}

func (r *SyncStateRepository) Complete(ctx context.Context, userID string, repos, commits int, completedAt time.Time) error {
	const op = "internal.repository.postgres.CompleteSync"

	query, args, err := r.sq.Update("sync_state").
		Set("status", domain.SyncStatusCompleted).
		Set("progress", 100).
		Set("step_message", "Synchronization completed").
		Set("synced_repositories", repos).
		Set("synced_commits", commits).
		Set("total_commits", commits).
		Set("completed_at", completedAt).
		Where(sq.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("%s: failed to build update query: %w", op, err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: failed to execute update: %w", op, err)
	}

	if rowsAffected, err := res.RowsAffected(); err == nil && rowsAffected == 0 {
		return fmt.Errorf("%s: %w: sync state for user '%s'", op, apperrors.ErrNotFound, userID)
	}

	return nil
}

func (r *SyncStateRepository) Fail(ctx context.Context, userID string, message string) error {
	const op = "internal.repository.postgres.FailSync"

	query, args, err := r.sq.Update("sync_state").
		Set("status", domain.SyncStatusError).
		Set("step_message", "Synchronization failed").
		Set("error_message", message).
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

func (r *SyncStateRepository) Get(ctx context.Context, userID string) (*domain.SyncState, error) {
	const op = "internal.repository.postgres.GetSyncState"

	query, args, err := r.sq.Select(
		"user_id", "status", "progress", "step", "step_message",
		"total_repositories", "synced_repositories", "total_commits", "synced_commits",
		"started_at", "completed_at", "error_message",
	).
		From("sync_state").
		Where(sq.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: failed to build query: %w", op, err)
	}

	var state domain.SyncState
	if err := r.db.GetContext(ctx, &state, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w: sync state for user '%s'", op, apperrors.ErrNotFound, userID)
		}

		return nil, fmt.Errorf("%s: failed to execute query: %w", op, err)
	}

	return &state, nil
}

func (r *SyncStateRepository) DeleteByUser(ctx context.Context, tx *sqlx.Tx, userID string) error {
	const op = "internal.repository.postgres.DeleteSyncState"

	query, args, err := r.sq.Delete("sync_state").
		Where(sq.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("%s: failed to build delete query: %w", op, err)
	}

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%s: failed to execute delete: %w", op, err)
	}

	return nil
}
