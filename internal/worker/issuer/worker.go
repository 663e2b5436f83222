package issuer

import (
	"context"
	"math/rand"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/acme/popup-campaign-engine/internal/app"
)

// Worker periodically retries discount issuance for leads whose code
// attempt failed at capture time.
type Worker struct {
	container *app.Container
}

// New constructs an issuer worker.
func New(container *app.Container) *Worker {
	return &Worker{container: container}
}

// Run executes the retry loop until cancelled. Passes are jittered so
// several replicas do not scan in lockstep.
func (w *Worker) Run(ctx context.Context) error {
	cfg := w.container.Config.Issuer
	interval := cfg.ScanInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	for {
		if err := w.pass(ctx); err != nil && ctx.Err() == nil {
			w.container.Logger.Error("issuer pass failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(jittered(interval)):
		}
	}
}

func (w *Worker) pass(ctx context.Context) error {
	cfg := w.container.Config.Issuer
	logger := w.container.Logger

	tracer := otel.Tracer("popup.issuerworker")
	sctx, span := tracer.Start(ctx, "issuer.pass")
	defer span.End()

	// Leads younger than MinLeadAge may still have an in-flight request.
	olderThan := time.Now().UTC().Add(-cfg.MinLeadAge)
	issued, err := w.container.Services().Reissuer.RetryPending(sctx, olderThan, cfg.BatchSize)
	if err != nil {
		span.RecordError(err)
		return err
	}

	span.SetAttributes(attribute.Int("codes.issued", issued))
	if issued > 0 {
		logger.Info("issuer: retroactively issued codes", zap.Int("count", issued))
	}
	return nil
}

// jittered spreads the interval over [interval, 1.25*interval).
func jittered(interval time.Duration) time.Duration {
	return interval + time.Duration(rand.Int63n(int64(interval)/4+1))
}
