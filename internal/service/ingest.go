package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lgdx/activity-service/internal/apperrors"
	"github.com/lgdx/activity-service/internal/domain"
	"github.com/lgdx/activity-service/internal/repository"
	"github.com/lgdx/activity-service/internal/webhook"
	"github.com/lgdx/activity-service/pkg/logger/sl"
)

type IngestService interface {
	// ProcessDelivery handles one verified webhook delivery. Deliveries that
	// carry no activity (no matching integration, ignored action, replayed
	// identity) are acknowledged without error so the sender does not retry.
	ProcessDelivery(ctx context.Context, deliveryID, eventType string, body []byte) error
}

type IngestServiceImpl struct {
	BaseService
	activities   repository.ActivityRepository
	integrations repository.IntegrationRepository
	webhookLogs  repository.WebhookLogRepository
}

func NewIngestService(
	db Transactor,
	log *slog.Logger,
	activities repository.ActivityRepository,
	integrations repository.IntegrationRepository,
	webhookLogs repository.WebhookLogRepository,
) *IngestServiceImpl {
	return &IngestServiceImpl{
		BaseService:  NewBaseService(db, log),
		activities:   activities,
		integrations: integrations,
		webhookLogs:  webhookLogs,
	}
}

func (s *IngestServiceImpl) ProcessDelivery(ctx context.Context, deliveryID, eventType string, body []byte) error {
	const op = "internal.service.ingest.ProcessDelivery"
	log := s.log.With(slog.String("op", op), slog.String("delivery_id", deliveryID), slog.String("event_type", eventType))

	env, err := webhook.ParseEnvelope(body)
	if err != nil {
		return fmt.Errorf("%s: failed to parse envelope: %w", op, err)
	}

	now := time.Now().UTC()

	integration, err := s.integrations.GetActiveByUsername(ctx, env.OwnerLogin())
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			log.Info("no active integration for delivery", slog.String("owner", env.OwnerLogin()))
			s.logDelivery(ctx, deliveryID, eventType, env, true, nil, now)

			return nil
		}

		return fmt.Errorf("%s: failed to resolve integration: %w", op, err)
	}

	event, err := webhook.ParseEvent(eventType, body, integration.UserID, dateOnly(now))
	if err != nil {
		s.logDelivery(ctx, deliveryID, eventType, env, false, err, now)

		return fmt.Errorf("%s: failed to parse event: %w", op, err)
	}

	if event == nil {
		log.Info("delivery carries no activity")
		s.logDelivery(ctx, deliveryID, eventType, env, true, nil, now)

		return nil
	}

	event.CreatedAt = now

	var applied bool
	err = s.transaction(ctx, op, func(tx *sqlx.Tx) error {
		var txErr error
		applied, txErr = s.activities.ApplyEvent(ctx, tx, event)

		return txErr
	})
	if err != nil {
		s.logDelivery(ctx, deliveryID, eventType, env, false, err, now)

		return fmt.Errorf("%s: failed to apply event: %w", op, err)
	}

	if !applied {
		log.Info("duplicate delivery ignored", slog.String("event_id", event.ID))
	} else {
		log.Info("delivery applied", slog.String("event_id", event.ID), slog.String("user_id", integration.UserID))
	}

	s.logDelivery(ctx, deliveryID, eventType, env, true, nil, now)

	return nil
}

// logDelivery is best-effort: a failed audit write must not fail the delivery.
func (s *IngestServiceImpl) logDelivery(ctx context.Context, deliveryID, eventType string, env *webhook.Envelope, success bool, cause error, at time.Time) {
	entry := &domain.WebhookLog{
		DeliveryID:  deliveryID,
		EventType:   eventType,
		Repository:  env.Repository.FullName,
		Sender:      env.Sender.Login,
		Success:     success,
		ProcessedAt: at,
	}

	if cause != nil {
		msg := cause.Error()
		entry.ErrorMessage = &msg
	}

	if err := s.webhookLogs.Insert(ctx, entry); err != nil {
		s.log.Error("failed to write webhook log", sl.Err(err), slog.String("delivery_id", deliveryID))
	}
}
