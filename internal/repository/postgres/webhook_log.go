package postgres

import (
	"context"
	"fmt"
	"log/slog"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lgdx/activity-service/internal/domain"
)

type WebhookLogRepository struct {
	db  *sqlx.DB
	log *slog.Logger
	sq  sq.StatementBuilderType
}

func NewWebhookLogRepository(db *sqlx.DB, log *slog.Logger) *WebhookLogRepository {
	return &WebhookLogRepository{
		db:  db,
		log: log,
		sq:  sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (r *WebhookLogRepository) Insert(ctx context.Context, entry *domain.WebhookLog) error {
	const op = "internal.repository.postgres.InsertWebhookLog"

	query, args, err := r.sq.Insert("webhook_logs").
		Columns("delivery_id", "event_type", "repository_name", "sender", "success", "error_message", "processed_at").
		Values(entry.DeliveryID, entry.EventType, entry.Repository, entry.Sender, entry.Success, entry.ErrorMessage, entry.ProcessedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("%s: failed to build insert query: %w", op, err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%s: failed to execute insert: %w", op, err)
	}

	return nil
}
