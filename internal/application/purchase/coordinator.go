package purchase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	domoutbox "github.com/Zhima-Mochi/gameshop/internal/domain/outbox"
	"github.com/Zhima-Mochi/gameshop/internal/domain/payment"
	"github.com/Zhima-Mochi/gameshop/internal/domain/player"
	dompurchase "github.com/Zhima-Mochi/gameshop/internal/domain/purchase"
	"github.com/Zhima-Mochi/gameshop/internal/observability"
	"github.com/Zhima-Mochi/gameshop/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	purchaseService = "purchase-service"
	useCaseRequest  = "purchase.request"
	useCaseCancel   = "purchase.cancel"
	useCaseFlow     = "purchase.flow"
	spanPrefix      = "UC."

	gatewayPeer      = "payment_gateway"
	gatewayEndpoint  = "authorize"
	publishPeer      = "outbox"
	publishEndpoint  = "purchase.finished"
	publishTimeout   = 300 * time.Millisecond
	DefaultAuthorize = 5 * time.Second
)

var ErrShuttingDown = errors.New("purchase: coordinator is shutting down")

// Coordinator runs purchase transactions: validation, payment authorization and the
// commit of gold and inventory. At most one transaction per player is in flight.
type Coordinator struct {
	catalog   Catalog
	sessions  player.Repository
	repo      dompurchase.Repository
	gateway   payment.Gateway
	publisher domoutbox.Publisher
	ids       IDGenerator

	authorizeTimeout time.Duration
	publishTimeout   time.Duration

	log          observability.Logger
	tracer       observability.Tracer
	reqCounter   observability.Counter   // usecase_requests_total{use_case,outcome}
	durHistogram observability.Histogram // usecase_duration_seconds{use_case}
	extCounter   observability.Counter   // external_requests_total{peer,endpoint,outcome}
	extHistogram observability.Histogram // external_request_duration_seconds{peer,endpoint}
	outcomes     observability.Counter   // purchase_outcomes_total{result,reason}
	refunds      observability.Counter   // ledger_refunds_total{reason}

	mu       sync.Mutex
	byPlayer map[string]*flight
	byTx     map[string]*flight
	closed   bool
	wg       sync.WaitGroup
}

type Option func(*Coordinator)

// WithAuthorizeTimeout bounds a single gateway call. Expiry declines the payment.
func WithAuthorizeTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.authorizeTimeout = d
		}
	}
}

func WithPublishTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.publishTimeout = d
		}
	}
}

func NewCoordinator(
	cat Catalog,
	sessions player.Repository,
	repo dompurchase.Repository,
	gateway payment.Gateway,
	publisher domoutbox.Publisher,
	ids IDGenerator,
	tel observability.Observability,
	opts ...Option,
) *Coordinator {
	if tel == nil {
		tel = observability.Nop()
	}
	if publisher == nil {
		publisher = domoutbox.PublisherFunc(func(context.Context, domoutbox.Event) error { return nil })
	}
	m := tel.Metrics()
	c := &Coordinator{
		catalog:          cat,
		sessions:         sessions,
		repo:             repo,
		gateway:          gateway,
		publisher:        publisher,
		ids:              ids,
		authorizeTimeout: DefaultAuthorize,
		publishTimeout:   publishTimeout,
		log:              tel.Logger().With(observability.F("service", purchaseService)),
		tracer:           tel.Tracer(),
		reqCounter:       m.Counter(observability.MUsecaseRequests),
		durHistogram:     m.Histogram(observability.MUsecaseDuration),
		extCounter:       m.Counter(observability.MExternalRequests),
		extHistogram:     m.Histogram(observability.MExternalRequestDuration),
		outcomes:         m.Counter(observability.MPurchaseOutcomes),
		refunds:          m.Counter(observability.MLedgerRefunds),
		byPlayer:         make(map[string]*flight),
		byTx:             make(map[string]*flight),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type RequestInput struct {
	PlayerID string
	ItemKey  string
	// Card is optional; the zero value charges the player's stored method.
	Card payment.Card
}

// RequestPurchase validates the request against the player's gold and bag right away.
// A request that passes goes on to payment in the background; follow it through the
// returned Handle. ErrTransactionInProgress is returned, and nothing is recorded, while
// another purchase of the same player is still running.
func (c *Coordinator) RequestPurchase(ctx context.Context, in RequestInput) (_ *Handle, err error) {
	ctx, logger := logctx.Enrich(ctx, c.log,
		observability.F("use_case", useCaseRequest),
		observability.F("player_id", in.PlayerID),
		observability.F("item_key", in.ItemKey),
	)
	ctx, span := c.tracer.Start(ctx, spanPrefix+"RequestPurchase",
		attribute.String("use_case", useCaseRequest),
		attribute.String("player.id", in.PlayerID),
		attribute.String("item.key", in.ItemKey),
	)
	start := time.Now()
	outcome, statusText := "success", "OK"
	var txID string

	defer func() {
		lat := c.observe(useCaseRequest, outcome, start)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, statusText)
		} else {
			span.SetStatus(codes.Ok, statusText)
		}
		span.End()

		fields := []observability.Field{
			observability.F("outcome", outcome),
			observability.F("status", statusText),
			observability.F("latency_seconds", lat),
		}
		if txID != "" {
			fields = append(fields, observability.F("transaction_id", txID))
		}
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			fields = append(fields,
				observability.F("trace_id", sc.TraceID().String()),
				observability.F("span_id", sc.SpanID().String()),
			)
		}
		if err != nil {
			fields = append(fields, observability.F("error", err.Error()))
		}
		logger.Info("use_case_done", fields...)
	}()

	if in.PlayerID == "" || in.ItemKey == "" {
		outcome, statusText = "error", "INVALID_REQUEST"
		return nil, fmt.Errorf("%w: player id and item key are required", dompurchase.ErrInvalidTransactionInput)
	}
	item, err := c.catalog.Lookup(in.ItemKey)
	if err != nil {
		outcome, statusText = "error", "ITEM_NOT_FOUND"
		return nil, err
	}
	session, err := c.sessions.Load(ctx, in.PlayerID)
	if err != nil {
		outcome, statusText = "error", "SESSION_LOAD_FAILED"
		return nil, fmt.Errorf("purchase: load session: %w", err)
	}

	tx, err := dompurchase.New(c.ids.NewID(), in.PlayerID, item)
	if err != nil {
		outcome, statusText = "error", "DOMAIN_CONSTRUCTION_FAILED"
		return nil, fmt.Errorf("purchase: construct: %w", err)
	}

	f, err := c.begin(ctx, tx, session, in.Card)
	if err != nil {
		outcome, statusText = "error", "NOT_ACCEPTED"
		if errors.Is(err, dompurchase.ErrTransactionInProgress) {
			statusText = "TRANSACTION_IN_PROGRESS"
		}
		return nil, err
	}
	txID = f.txID
	span.SetAttributes(attribute.String("transaction.id", txID))

	if err := c.repo.Insert(ctx, tx.Clone()); err != nil {
		outcome, statusText = "error", "REPO_INSERT_FAILED"
		c.abandon(f)
		return nil, fmt.Errorf("purchase: insert: %w", err)
	}

	snapshot := c.validate(ctx, f)
	span.SetAttributes(attribute.String("purchase.phase", string(snapshot.Phase())))
	if snapshot.Terminal() {
		statusText = "REJECTED_" + string(snapshot.Reason)
		c.finish(ctx, f)
		return &Handle{TransactionID: f.txID, Snapshot: snapshot, f: f}, nil
	}

	go c.run(f)
	return &Handle{TransactionID: f.txID, Snapshot: snapshot, f: f}, nil
}

// CancelPurchase stops a transaction that is waiting for payment. The gateway's answer,
// whenever it arrives, is then ignored. Once committing has begun the transaction can no
// longer be cancelled.
func (c *Coordinator) CancelPurchase(ctx context.Context, transactionID string) (_ *dompurchase.Transaction, err error) {
	ctx, logger := logctx.Enrich(ctx, c.log,
		observability.F("use_case", useCaseCancel),
		observability.F("transaction_id", transactionID),
	)
	ctx, span := c.tracer.Start(ctx, spanPrefix+"CancelPurchase",
		attribute.String("use_case", useCaseCancel),
		attribute.String("transaction.id", transactionID),
	)
	start := time.Now()
	outcome, statusText := "success", "OK"

	defer func() {
		lat := c.observe(useCaseCancel, outcome, start)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, statusText)
		} else {
			span.SetStatus(codes.Ok, statusText)
		}
		span.End()
		fields := []observability.Field{
			observability.F("outcome", outcome),
			observability.F("status", statusText),
			observability.F("latency_seconds", lat),
		}
		if err != nil {
			fields = append(fields, observability.F("error", err.Error()))
		}
		logger.Info("use_case_done", fields...)
	}()

	c.mu.Lock()
	f, ok := c.byTx[transactionID]
	c.mu.Unlock()
	if !ok {
		stored, getErr := c.repo.Get(ctx, transactionID)
		if getErr != nil {
			outcome, statusText = "error", "NOT_FOUND"
			return nil, getErr
		}
		outcome, statusText = "error", "NOT_CANCELLABLE"
		return nil, fmt.Errorf("%w: transaction is %s", dompurchase.ErrNotCancellable, stored.Phase())
	}

	f.mu.Lock()
	if cerr := f.tx.Cancel(); cerr != nil {
		phase := f.tx.Phase()
		f.mu.Unlock()
		outcome, statusText = "error", "NOT_CANCELLABLE"
		return nil, fmt.Errorf("%w: transaction is %s", dompurchase.ErrNotCancellable, phase)
	}
	snapshot := c.save(ctx, f)
	f.mu.Unlock()

	f.cancel()
	logger.Info("purchase_cancelled", observability.F("player_id", snapshot.PlayerID))
	return snapshot, nil
}

// Transaction returns the latest recorded state of a transaction.
func (c *Coordinator) Transaction(ctx context.Context, transactionID string) (*dompurchase.Transaction, error) {
	return c.repo.Get(ctx, transactionID)
}

// InFlight reports the id of the player's running transaction, if any.
func (c *Coordinator) InFlight(playerID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.byPlayer[playerID]
	if !ok {
		return "", false
	}
	return f.txID, true
}

// Shutdown refuses new purchases and waits for running ones to reach a terminal phase.
// Nothing in flight is cancelled.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	logger := logctx.FromOr(ctx, c.log)
	select {
	case <-done:
		logger.Info("purchase_coordinator_stopped")
		return nil
	case <-ctx.Done():
		logger.Warn("purchase_coordinator_stop_timeout", observability.F("error", ctx.Err()))
		return ctx.Err()
	}
}

func (c *Coordinator) observe(useCase, outcome string, start time.Time) float64 {
	lat := time.Since(start).Seconds()
	c.reqCounter.Add(1,
		observability.L("use_case", useCase),
		observability.L("outcome", outcome),
	)
	c.durHistogram.Observe(lat, observability.L("use_case", useCase))
	return lat
}

func (c *Coordinator) external(peer, endpoint, outcome string, start time.Time) {
	c.extCounter.Add(1,
		observability.L("peer", peer),
		observability.L("endpoint", endpoint),
		observability.L("outcome", outcome),
	)
	c.extHistogram.Observe(time.Since(start).Seconds(),
		observability.L("peer", peer),
		observability.L("endpoint", endpoint),
	)
}
