// package repository defines the interfaces for the data persistence layer.
// These interfaces abstract the underlying database implementation from the service layer.
package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lgdx/activity-service/internal/domain"
)

// ActivityRepository is the contract for the event log and the per-day rollups.
type ActivityRepository interface {
	// ApplyEvent records the event and merges its contributions into the
	// DailyActivity row for (event.UserID, event.Date). The event-log insert
	// is keyed by the event identity; when the identity was already applied
	// the merge is skipped and applied is false. The merge locks the daily
	// row so concurrent deliveries for the same day serialize. Intended to
	// run within a transaction.
	ApplyEvent(ctx context.Context, tx *sqlx.Tx, event *domain.ActivityEvent) (applied bool, err error)

	// ListRange returns the daily rows for a user in [from, to], ordered by
	// date ascending. An empty range yields an empty slice, not an error.
	ListRange(ctx context.Context, userID string, from, to time.Time) ([]domain.DailyActivity, error)

	// DeleteByUser removes the user's daily rows and event log. Used on
	// integration disconnect; intended to run within a transaction.
	DeleteByUser(ctx context.Context, tx *sqlx.Tx, userID string) error
}

// SyncStateRepository manages the one-per-user sync lifecycle row.
type SyncStateRepository interface {
	// Claim atomically moves the user's sync state to "syncing" and resets
	// its counters. The write is conditional at the database level: when a
	// sync is already running and force is false, nothing is written and
	// apperrors.ErrSyncInProgress is returned together with the current
	// state snapshot.
	Claim(ctx context.Context, userID string, force bool, startedAt time.Time) (*domain.SyncState, error)

	// UpdateProgress records a coarse checkpoint of the running sync.
	UpdateProgress(ctx context.Context, userID string, progress int, step int, message string, syncedRepos, totalRepos int) error

	// Complete transitions the running sync to "completed" with final counts.
	Complete(ctx context.Context, userID string, repos, commits int, completedAt time.Time) error

	// Fail transitions the running sync to "error", keeping whatever
	// partial data the aggregator already merged.
	Fail(ctx context.Context, userID string, message string) error

	// Get returns the user's sync state, or apperrors.ErrNotFound when the
	// user has never synced.
	Get(ctx context.Context, userID string) (*domain.SyncState, error)

	// DeleteByUser removes the sync state row. Intended to run within a
	// transaction on disconnect.
	DeleteByUser(ctx context.Context, tx *sqlx.Tx, userID string) error
}

// IntegrationRepository manages the per-user GitHub connection rows.
type IntegrationRepository interface {
	// Upsert creates or replaces the integration for integration.UserID.
	Upsert(ctx context.Context, integration *domain.Integration) error

	// GetActive returns the active integration for a user, or
	// apperrors.ErrNotFound.
	GetActive(ctx context.Context, userID string) (*domain.Integration, error)

	// GetActiveByUsername resolves an active integration by its GitHub
	// login. Used by the webhook receiver to attribute deliveries.
	GetActiveByUsername(ctx context.Context, login string) (*domain.Integration, error)

	// Disconnect flips the active flag and clears the stored credential.
	// Intended to run within a transaction.
	Disconnect(ctx context.Context, tx *sqlx.Tx, userID string) error

	// RecordSyncRun updates the integration's cumulative counters and last
	// sync timestamp after a completed sync.
	RecordSyncRun(ctx context.Context, userID string, repos, commits int, at time.Time) error
}

// WebhookLogRepository is the append-only audit log of processed deliveries.
type WebhookLogRepository interface {
	Insert(ctx context.Context, entry *domain.WebhookLog) error
}
