package stats

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/acme/popup-campaign-engine/internal/app"
	"github.com/acme/popup-campaign-engine/internal/queue"
	"github.com/acme/popup-campaign-engine/internal/repository"
)

// Worker folds engagement events into per-campaign counters.
type Worker struct {
	container *app.Container
}

// New creates a new stats worker.
func New(container *app.Container) *Worker {
	return &Worker{container: container}
}

// Run processes engagement events until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	cfg := w.container.Config
	groupID := cfg.Kafka.ConsumerGroupID + "-stats"
	reader := w.container.Kafka.NewReader(cfg.Kafka.EngagementTopic, groupID)
	defer reader.Close()

	statsRepo := w.container.Repositories().Stats
	logger := w.container.Logger
	tracer := otel.Tracer("popup.statsworker")

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Error("stats worker: fetch", zap.Error(err))
			continue
		}

		var event queue.EngagementMessage
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			logger.Error("stats worker: unmarshal", zap.Error(err))
			_ = reader.CommitMessages(ctx, msg)
			continue
		}

		sctx, span := tracer.Start(ctx, "engagement.fold", trace.WithAttributes(
			attribute.String("campaign.id", event.CampaignID.String()),
			attribute.String("engagement.kind", event.Kind),
		))

		delta, ok := DeltaFor(repository.EngagementKind(event.Kind))
		if !ok {
			logger.Warn("stats worker: unknown engagement kind",
				zap.String("kind", event.Kind),
				zap.String("campaign_id", event.CampaignID.String()))
		} else if err := statsRepo.ApplyDelta(sctx, event.CampaignID, delta); err != nil {
			span.RecordError(err)
			span.End()
			logger.Error("stats worker: apply delta", zap.Error(err))
			// Leave the message uncommitted so the counter is retried.
			continue
		}
		span.End()

		if err := reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Error("stats worker: commit", zap.Error(err))
		}
	}
}

// DeltaFor maps an engagement kind to its counter increment. Unknown
// kinds report ok=false and must not touch the counters.
func DeltaFor(kind repository.EngagementKind) (repository.StatsDelta, bool) {
	switch kind {
	case repository.EngagementDisplay:
		return repository.StatsDelta{ImpressionsDelta: 1}, true
	case repository.EngagementPlay:
		return repository.StatsDelta{PlaysDelta: 1}, true
	case repository.EngagementLead:
		return repository.StatsDelta{LeadsDelta: 1}, true
	case repository.EngagementCodeIssued:
		return repository.StatsDelta{CodesIssuedDelta: 1}, true
	case repository.EngagementDeclined:
		return repository.StatsDelta{DeclinesDelta: 1}, true
	default:
		return repository.StatsDelta{}, false
	}
}
