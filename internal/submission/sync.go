package submission

import (
	"context"
	"fmt"
	"log/slog"

	"captionminer/internal/cards"
	"captionminer/internal/logging"
	"captionminer/internal/notifications"
	"captionminer/internal/queue"
	"captionminer/internal/services"
)

// Creator creates cards remotely.
type Creator interface {
	Create(ctx context.Context, draft cards.DraftCard) (cards.Card, error)
}

// ReplayQueue is the offline queue as seen by the syncer.
type ReplayQueue interface {
	List(ctx context.Context) ([]*queue.Entry, error)
	Remove(ctx context.Context, cardID string) error
	RecordFailure(ctx context.Context, cardID string, cause error) error
}

// SyncResult summarizes a flush.
type SyncResult struct {
	Synced    int
	Remaining int
	// Created holds the remote ids of replayed cards in replay order.
	Created []string
}

// Syncer replays queued cards against the card service.
type Syncer struct {
	cards    Creator
	queue    ReplayQueue
	notifier notifications.Service
	logger   *slog.Logger
}

// NewSyncer builds a syncer. A nil notifier drops notifications.
func NewSyncer(creator Creator, q ReplayQueue, notifier notifications.Service, logger *slog.Logger) *Syncer {
	if notifier == nil {
		notifier = notifications.Noop()
	}
	return &Syncer{
		cards:    creator,
		queue:    q,
		notifier: notifier,
		logger:   logging.NewComponentLogger(logger, "queue_sync"),
	}
}

// Flush creates queued cards oldest-first, removing each once the backend
// accepts it. It stops at the first failure so ordering is preserved; the
// failing entry keeps its place and records the attempt.
func (s *Syncer) Flush(ctx context.Context) (SyncResult, error) {
	var result SyncResult
	if s == nil || s.cards == nil || s.queue == nil {
		return result, services.Wrap(services.ErrConfiguration, "queue_sync", "flush", "syncer not configured", nil)
	}
	entries, err := s.queue.List(ctx)
	if err != nil {
		return result, err
	}
	result.Remaining = len(entries)
	if len(entries) == 0 {
		return result, nil
	}

	var flushErr error
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			flushErr = err
			break
		}
		draft := entry.Card.DraftCard
		if draft.Tags == nil {
			draft.Tags = []string{}
		}
		created, err := s.cards.Create(ctx, draft)
		if err != nil {
			if recordErr := s.queue.RecordFailure(ctx, entry.Card.ID, err); recordErr != nil {
				s.logger.Debug("record replay failure",
					logging.String(logging.FieldEventType, "queue_record_failure_failed"),
					logging.Error(recordErr),
				)
			}
			logging.WarnWithContext(s.logger, "offline card replay failed", "queue_replay_failed",
				logging.String("card_id", entry.Card.ID),
				logging.Int("attempts", entry.Attempts+1),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, services.ErrorHint(err)),
				logging.String(logging.FieldImpact, "remaining cards stay queued"),
			)
			flushErr = fmt.Errorf("replay %s: %w", entry.Card.ID, err)
			break
		}
		if err := s.queue.Remove(ctx, entry.Card.ID); err != nil {
			flushErr = fmt.Errorf("remove replayed %s: %w", entry.Card.ID, err)
			break
		}
		result.Synced++
		result.Remaining--
		result.Created = append(result.Created, created.ID)
		s.logger.Info("offline card replayed",
			logging.String(logging.FieldEventType, "queue_replayed"),
			logging.String("local_id", entry.Card.ID),
			logging.String("card_id", created.ID),
		)
	}

	if result.Synced > 0 {
		if err := s.notifier.Publish(ctx, notifications.EventQueueSynced, notifications.Payload{
			"synced":    result.Synced,
			"remaining": result.Remaining,
		}); err != nil {
			s.logger.Debug("notification failed",
				logging.String(logging.FieldEventType, "notification_failed"),
				logging.Error(err),
			)
		}
	}
	return result, flushErr
}
