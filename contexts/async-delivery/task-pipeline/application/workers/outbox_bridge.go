package workers

import (
	"context"
	"log/slog"
	"time"

	application "taskpipe/contexts/async-delivery/task-pipeline/application"
	"taskpipe/contexts/async-delivery/task-pipeline/domain/entities"
	"taskpipe/contexts/async-delivery/task-pipeline/ports"
)

const defaultBridgeBatchSize = 50

type BridgeResult struct {
	Selected   int
	Created    int
	Duplicates int
	Unrouted   int
	Rejected   int
}

// OutboxBridge translates pending outbox events into jobs. Each RunOnce is a
// single transaction: events are marked queued before translation, so a
// failure anywhere leaves the whole batch pending for the next pass.
type OutboxBridge struct {
	Outbox     ports.OutboxStore
	Translator ports.EventTranslator
	Clock      ports.Clock
	BatchSize  int
	Logger     *slog.Logger
}

func (b OutboxBridge) RunOnce(ctx context.Context) (BridgeResult, error) {
	logger := application.ResolveLogger(b.Logger)
	limit := b.BatchSize
	if limit <= 0 {
		limit = defaultBridgeBatchSize
	}
	now := time.Now().UTC()
	if b.Clock != nil {
		now = b.Clock.Now().UTC()
	}

	var result BridgeResult
	err := b.Outbox.WithinBridgeTx(ctx, func(tx ports.BridgeTx) error {
		result = BridgeResult{}

		pending, err := tx.LockPendingEvents(ctx, limit)
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			return nil
		}
		result.Selected = len(pending)

		ids := make([]int64, 0, len(pending))
		for _, event := range pending {
			ids = append(ids, event.ID)
		}
		if err := tx.MarkEventsQueued(ctx, ids, now); err != nil {
			return err
		}

		for _, event := range pending {
			spec, routed, err := b.Translator.Translate(event)
			if err != nil {
				logger.Error("outbox event translation failed",
					"event", "outbox_bridge_translate_failed",
					"module", application.ModuleName,
					"layer", "worker",
					"outbox_event_id", event.ID,
					"event_name", event.EventName,
					"error", err.Error(),
				)
				result.Rejected++
				continue
			}
			if !routed {
				result.Unrouted++
				continue
			}

			job, err := entities.NewJob(spec, now)
			if err != nil {
				logger.Error("outbox event produced invalid job",
					"event", "outbox_bridge_invalid_job",
					"module", application.ModuleName,
					"layer", "worker",
					"outbox_event_id", event.ID,
					"event_name", event.EventName,
					"job_type", spec.JobType,
					"error", err.Error(),
				)
				result.Rejected++
				continue
			}

			created, err := tx.InsertJob(ctx, job)
			if err != nil {
				return err
			}
			if created {
				result.Created++
			} else {
				result.Duplicates++
			}
		}
		return nil
	})
	if err != nil {
		logger.Error("outbox bridge transaction failed",
			"event", "outbox_bridge_failed",
			"module", application.ModuleName,
			"layer", "worker",
			"error", err.Error(),
		)
		return BridgeResult{}, err
	}

	if result.Selected > 0 {
		logger.Info("outbox bridge cycle completed",
			"event", "outbox_bridge_completed",
			"module", application.ModuleName,
			"layer", "worker",
			"selected_count", result.Selected,
			"created_count", result.Created,
			"duplicate_count", result.Duplicates,
			"unrouted_count", result.Unrouted,
			"rejected_count", result.Rejected,
		)
	}
	return result, nil
}
