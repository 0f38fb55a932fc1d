package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lgdx/activity-service/internal/domain"
	"github.com/lib/pq"
)

type ActivityRepository struct {
	db  *sqlx.DB
	log *slog.Logger
	sq  sq.StatementBuilderType
}

func NewActivityRepository(db *sqlx.DB, log *slog.Logger) *ActivityRepository {
	return &ActivityRepository{
		db:  db,
		log: log,
		sq:  sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// ApplyEvent inserts the event into the event log and merges its deltas into
// the daily row. The insert carries ON CONFLICT DO NOTHING on the event
// identity, and the merge only runs when the insert landed, so replaying the
// same delivery or commit never double-counts. A zero-valued daily row is
// created first when none exists; the merge then always runs against a row
// locked FOR UPDATE, so concurrent merges for the same (user, date) are
// serialized even when both transactions see the date for the first time.
func (r *ActivityRepository) ApplyEvent(ctx context.Context, tx *sqlx.Tx, event *domain.ActivityEvent) (bool, error) {
	const op = "internal.repository.postgres.ApplyEvent"

	insertQuery, insertArgs, err := r.sq.Insert("activity_events").
		Columns(
			"id", "user_id", "date", "repository_name", "commit_sha", "summary",
			"commits_count", "pull_requests", "issues",
			"additions", "deletions", "files_changed",
			"languages", "event_type", "created_at",
		).
		Values(
			event.ID, event.UserID, event.Date, event.Repository, event.CommitSHA, event.Summary,
			event.CommitsCount, event.PullRequests, event.Issues,
			event.Additions, event.Deletions, event.FilesChanged,
			event.Languages, event.EventType, event.CreatedAt,
		).
		Suffix("ON CONFLICT (id) DO NOTHING").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("%s: failed to build insert query: %w", op, err)
	}

	res, err := tx.ExecContext(ctx, insertQuery, insertArgs...)
	if err != nil {
		return false, fmt.Errorf("%s: failed to insert event: %w", op, err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: failed to read rows affected: %w", op, err)
	}
	if rowsAffected == 0 {
		return false, nil
	}

	if err := r.ensureDay(ctx, tx, event); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	day, err := r.getDayWithLock(ctx, tx, event.UserID, event.Date)
	if err != nil {
		return false, fmt.Errorf("%s: failed to lock daily row: %w", op, err)
	}

	mergeEventIntoDay(day, event)

	if err := r.updateDay(ctx, tx, day); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return true, nil
}

func (r *ActivityRepository) ListRange(ctx context.Context, userID string, from, to time.Time) ([]domain.DailyActivity, error) {
	const op = "internal.repository.postgres.ListRange"

	query, args, err := r.sq.Select(
		"user_id", "date", "commits_count", "repositories_count",
		"repositories", "languages", "pull_requests", "issues", "reviews",
		"additions", "deletions", "files_changed", "activity_level", "created_at",
	).
		From("daily_activity").
		Where(sq.Eq{"user_id": userID}).
		Where(sq.GtOrEq{"date": from}).
		Where(sq.LtOrEq{"date": to}).
		OrderBy("date ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: failed to build query: %w", op, err)
	}

	activities := []domain.DailyActivity{}
	if err := r.db.SelectContext(ctx, &activities, query, args...); err != nil {
		return nil, fmt.Errorf("%s: failed to execute query: %w", op, err)
	}

	return activities, nil
}

func (r *ActivityRepository) DeleteByUser(ctx context.Context, tx *sqlx.Tx, userID string) error {
	const op = "internal.repository.postgres.DeleteActivitiesByUser"

	for _, table := range []string{"activity_events", "daily_activity"} {
		query, args, err := r.sq.Delete(table).
			Where(sq.Eq{"user_id": userID}).
			ToSql()
		if err != nil {
			return fmt.Errorf("%s: failed to build delete query: %w", op, err)
		}

		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("%s: failed to delete from %s: %w", op, table, err)
		}
	}

	return nil
}

func (r *ActivityRepository) getDayWithLock(ctx context.Context, tx *sqlx.Tx, userID string, date time.Time) (*domain.DailyActivity, error) {
	query, args, err := r.sq.Select(
		"user_id", "date", "commits_count", "repositories_count",
		"repositories", "languages", "pull_requests", "issues", "reviews",
		"additions", "deletions", "files_changed", "activity_level", "created_at",
	).
		From("daily_activity").
		Where(sq.Eq{"user_id": userID, "date": date}).
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build lock query: %w", err)
	}

	var day domain.DailyActivity
	if err := tx.GetContext(ctx, &day, query, args...); err != nil {
		return nil, err
	}

	return &day, nil
}

// ensureDay creates the zero-valued daily row when none exists yet. On a
// concurrent first event for the same (user, date) the losing insert waits
// for the winner's transaction to finish, so the FOR UPDATE that follows
// always has a committed row to lock.
func (r *ActivityRepository) ensureDay(ctx context.Context, tx *sqlx.Tx, event *domain.ActivityEvent) error {
	query, args, err := r.sq.Insert("daily_activity").
		Columns("user_id", "date", "created_at").
		Values(event.UserID, event.Date, event.CreatedAt).
		Suffix("ON CONFLICT (user_id, date) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert query: %w", err)
	}

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert daily row: %w", err)
	}

	return nil
}

func (r *ActivityRepository) updateDay(ctx context.Context, tx *sqlx.Tx, day *domain.DailyActivity) error {
	query, args, err := r.sq.Update("daily_activity").
		Set("commits_count", day.CommitsCount).
		Set("repositories_count", day.RepositoriesCount).
		Set("repositories", day.Repositories).
		Set("languages", day.Languages).
		Set("pull_requests", day.PullRequests).
		Set("issues", day.Issues).
		Set("additions", day.Additions).
		Set("deletions", day.Deletions).
		Set("files_changed", day.FilesChanged).
		Set("activity_level", day.ActivityLevel).
		Where(sq.Eq{"user_id": day.UserID, "date": day.Date}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build update query: %w", err)
	}

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update daily row: %w", err)
	}

	return nil
}

func mergeEventIntoDay(day *domain.DailyActivity, event *domain.ActivityEvent) {
	day.CommitsCount += event.CommitsCount
	day.PullRequests += event.PullRequests
	day.Issues += event.Issues
	day.Additions += event.Additions
	day.Deletions += event.Deletions
	day.FilesChanged += event.FilesChanged

	if event.Repository != "" {
		day.Repositories = appendMissing(day.Repositories, event.Repository)
	}
	day.Languages = appendMissing(day.Languages, event.Languages...)

	day.RepositoriesCount = len(day.Repositories)
	day.ActivityLevel = domain.ActivityLevel(day.CommitsCount)
}

func appendMissing(set pq.StringArray, values ...string) pq.StringArray {
	for _, v := range values {
		if v == "" {
			continue
		}

		seen := false
		for _, existing := range set {
			if existing == v {
				seen = true
				break
			}
		}

		if !seen {
			set = append(set, v)
		}
	}

	return set
}
