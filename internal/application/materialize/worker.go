package materialize

import (
	"context"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/gameshop/internal/application"
	domoutbox "github.com/Zhima-Mochi/gameshop/internal/domain/outbox"
	"github.com/Zhima-Mochi/gameshop/internal/domain/purchase"
	"github.com/Zhima-Mochi/gameshop/internal/observability"
	"github.com/Zhima-Mochi/gameshop/internal/observability/logctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const workerService = "materialize_worker"

// Worker listens for finished purchases and hands committed ones to the materialize
// use case.
type Worker struct {
	subscriber domoutbox.Subscriber
	useCase    application.UseCase[purchase.Outcome, *MaterializeResult]
	tel        observability.Observability

	log          observability.Logger
	reqCounter   observability.Counter   // usecase_requests_total{use_case,outcome}
	durHistogram observability.Histogram // usecase_duration_seconds{use_case}
}

func NewWorker(
	subscriber domoutbox.Subscriber,
	useCase application.UseCase[purchase.Outcome, *MaterializeResult],
	tel observability.Observability,
) *Worker {
	if tel == nil {
		tel = observability.Nop()
	}
	m := tel.Metrics()
	return &Worker{
		subscriber:   subscriber,
		useCase:      useCase,
		tel:          tel,
		log:          tel.Logger().With(observability.F("service", workerService)),
		reqCounter:   m.Counter(observability.MUsecaseRequests),
		durHistogram: m.Histogram(observability.MUsecaseDuration),
	}
}

func (w *Worker) Start() {
	if w.subscriber == nil || w.useCase == nil {
		return
	}
	w.subscriber.Subscribe(purchase.FinishedEvent{}.EventName(), w.handlePurchaseFinished)
}

func (w *Worker) handlePurchaseFinished(ctx context.Context, e domoutbox.Event) error {
	const useCase = "materialize.worker.purchase_finished"
	evt, ok := e.(purchase.FinishedEvent)
	if !ok {
		w.count(useCase, "ignored")
		return nil
	}

	ctx, span := w.tel.Tracer().Start(ctx, spanPrefix+"PurchaseFinished",
		attribute.String("use_case", useCase),
		attribute.String("event", e.EventName()),
	)
	start := time.Now()
	outcome, status := "success", "OK"

	logger := logctx.FromOr(ctx, w.log).With(
		observability.F("use_case", useCase),
		observability.F("transaction_id", evt.Outcome.TransactionID),
		observability.F("result", string(evt.Outcome.Result)),
	)
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		logger = logger.With(
			observability.F("trace_id", sc.TraceID().String()),
			observability.F("span_id", sc.SpanID().String()),
		)
	}
	ctx = logctx.With(ctx, logger)

	defer func() {
		lat := time.Since(start).Seconds()
		w.observe(useCase, outcome, lat)
		logger.Info("use_case_done",
			observability.F("outcome", outcome),
			observability.F("status", status),
			observability.F("latency_seconds", lat),
		)
		if outcome == "error" {
			span.SetStatus(codes.Error, status)
		} else {
			span.SetStatus(codes.Ok, status)
		}
		span.End()
	}()

	res, err := w.useCase.Execute(ctx, evt.Outcome)
	if err != nil {
		outcome, status = "error", "MATERIALIZE_FAILED"
		return fmt.Errorf("worker: materialize: %w", err)
	}
	if res == nil || !res.Placed {
		status = "SKIPPED"
	}
	return nil
}

func (w *Worker) count(useCase, outcome string) {
	w.reqCounter.Add(1,
		observability.L("use_case", useCase),
		observability.L("outcome", outcome),
	)
}

func (w *Worker) observe(useCase string, outcome string, latencySeconds float64) {
	w.count(useCase, outcome)
	w.durHistogram.Observe(latencySeconds, observability.L("use_case", useCase))
}
