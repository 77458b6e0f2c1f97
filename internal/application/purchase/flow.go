package purchase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Zhima-Mochi/gameshop/internal/domain/catalog"
	"github.com/Zhima-Mochi/gameshop/internal/domain/inventory"
	"github.com/Zhima-Mochi/gameshop/internal/domain/ledger"
	"github.com/Zhima-Mochi/gameshop/internal/domain/payment"
	"github.com/Zhima-Mochi/gameshop/internal/domain/player"
	dompurchase "github.com/Zhima-Mochi/gameshop/internal/domain/purchase"
	"github.com/Zhima-Mochi/gameshop/internal/observability"
	"github.com/Zhima-Mochi/gameshop/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// flight is one running transaction. mu guards tx: every phase change and the
// repository write that records it happen under mu.
type flight struct {
	txID     string
	playerID string
	item     catalog.Item
	amount   int64
	card     payment.Card
	session  *player.Session

	mu sync.Mutex
	tx *dompurchase.Transaction

	// ctx outlives the request that started the flight; cancel is the cancel signal.
	ctx    context.Context
	cancel context.CancelFunc

	done    chan struct{}
	outcome dompurchase.Outcome // written before done is closed
}

var errRefundFailed = errors.New("purchase: refund failed")

type authResult struct {
	decision payment.Decision
	err      error
}

// begin claims the player's single-flight slot.
func (c *Coordinator) begin(ctx context.Context, tx *dompurchase.Transaction, session *player.Session, card payment.Card) (*flight, error) {
	fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	f := &flight{
		txID:     tx.ID,
		playerID: tx.PlayerID,
		item:     tx.Item,
		amount:   tx.Amount,
		card:     card,
		session:  session,
		tx:       tx,
		ctx:      fctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		cancel()
		return nil, ErrShuttingDown
	}
	if running, busy := c.byPlayer[tx.PlayerID]; busy {
		cancel()
		return nil, fmt.Errorf("%w: transaction %s", dompurchase.ErrTransactionInProgress, running.txID)
	}
	c.byPlayer[tx.PlayerID] = f
	c.byTx[tx.ID] = f
	c.wg.Add(1)
	return f, nil
}

// abandon releases a flight that never got recorded. No notification is sent.
func (c *Coordinator) abandon(f *flight) {
	c.release(f)
	close(f.done)
	c.wg.Done()
}

func (c *Coordinator) release(f *flight) {
	c.mu.Lock()
	delete(c.byPlayer, f.playerID)
	delete(c.byTx, f.txID)
	c.mu.Unlock()
	f.cancel()
}

// validate runs the optimistic pre-checks. They are point-in-time reads; the commit
// re-checks both.
func (c *Coordinator) validate(ctx context.Context, f *flight) *dompurchase.Transaction {
	logger := logctx.FromOr(ctx, c.log)

	f.mu.Lock()
	defer f.mu.Unlock()

	var reason dompurchase.Reason
	affordable, err := f.session.Ledger.CanAfford(f.amount)
	switch {
	case err != nil:
		reason = dompurchase.ReasonInvalidArgument
	case !affordable:
		reason = dompurchase.ReasonInsufficientFunds
	case f.session.Inventory.IsFull():
		reason = dompurchase.ReasonInventoryFull
	}

	if reason != dompurchase.ReasonNone {
		_ = f.tx.Reject(reason)
		logger.Info("purchase_rejected",
			observability.F("transaction_id", f.txID),
			observability.F("reason", string(reason)),
			observability.F("balance", f.session.Ledger.Balance()),
			observability.F("price", f.amount),
		)
	} else {
		_ = f.tx.Validated()
	}
	return c.save(ctx, f)
}

// run drives a validated transaction through payment and commit. It always ends with
// exactly one finish.
func (c *Coordinator) run(f *flight) {
	ctx, logger := logctx.Enrich(f.ctx, c.log,
		observability.F("use_case", useCaseFlow),
		observability.F("transaction_id", f.txID),
		observability.F("player_id", f.playerID),
	)
	ctx, span := c.tracer.Start(ctx, spanPrefix+"PurchaseFlow",
		attribute.String("use_case", useCaseFlow),
		attribute.String("transaction.id", f.txID),
		attribute.String("item.key", f.item.Key),
	)
	start := time.Now()
	outcome, statusText := "success", "OK"

	defer func() {
		c.finish(ctx, f)

		lat := c.observe(useCaseFlow, outcome, start)
		span.SetAttributes(
			attribute.String("purchase.result", string(f.outcome.Result)),
			attribute.String("purchase.reason", string(f.outcome.Reason)),
		)
		if outcome == "error" {
			span.SetStatus(codes.Error, statusText)
		} else {
			span.SetStatus(codes.Ok, statusText)
		}
		span.End()

		fields := []observability.Field{
			observability.F("outcome", outcome),
			observability.F("status", statusText),
			observability.F("latency_seconds", lat),
			observability.F("result", string(f.outcome.Result)),
		}
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			fields = append(fields,
				observability.F("trace_id", sc.TraceID().String()),
				observability.F("span_id", sc.SpanID().String()),
			)
		}
		logger.Info("use_case_done", fields...)
	}()

	res := c.authorize(ctx, f)

	f.mu.Lock()
	if phase := f.tx.Phase(); phase != dompurchase.PhaseAwaitingPayment {
		f.mu.Unlock()
		statusText = "PAYMENT_RESULT_DISCARDED"
		logger.Info("payment_result_discarded", observability.F("phase", string(phase)))
		return
	}
	switch {
	case res.err == nil && res.decision.Approved():
		_ = f.tx.Approve()
	case res.err == nil:
		_ = f.tx.Decline(res.decision.Reason, res.decision.Message)
	case errors.Is(res.err, context.DeadlineExceeded):
		_ = f.tx.Decline(payment.DeclineTimeout, "")
	default:
		_ = f.tx.Decline(payment.DeclineGatewayError, "")
	}
	snapshot := c.save(ctx, f)
	f.mu.Unlock()

	if snapshot.Phase() != dompurchase.PhaseCommitting {
		statusText = "PAYMENT_DECLINED"
		logger.Info("payment_declined",
			observability.F("decline_reason", snapshot.DeclineReason),
		)
		if res.err != nil {
			outcome = "error"
			span.RecordError(res.err)
		}
		return
	}

	if err := c.commit(ctx, f); err != nil {
		outcome, statusText = "error", "COMMIT_FAILED"
		span.RecordError(err)
	}
}

// authorize calls the gateway and waits for its answer, the cancel signal or the
// authorization timeout, whichever comes first. A gateway that ignores ctx cannot hold
// the flow past that point; its late answer is dropped.
func (c *Coordinator) authorize(ctx context.Context, f *flight) authResult {
	authCtx, cancel := context.WithTimeout(ctx, c.authorizeTimeout)
	defer cancel()

	results := make(chan authResult, 1)
	start := time.Now()
	go func() {
		d, err := c.gateway.Authorize(authCtx, payment.Charge{
			Reference: f.txID,
			Amount:    f.amount,
			Card:      f.card,
		})
		results <- authResult{decision: d, err: err}
	}()

	var res authResult
	select {
	case res = <-results:
	case <-authCtx.Done():
		res = authResult{err: authCtx.Err()}
	}

	extOutcome := "success"
	switch {
	case errors.Is(res.err, context.DeadlineExceeded):
		extOutcome = "timeout"
	case errors.Is(res.err, context.Canceled):
		extOutcome = "canceled"
	case res.err != nil:
		extOutcome = "error"
	case !res.decision.Approved():
		extOutcome = "declined"
	}
	c.external(gatewayPeer, gatewayEndpoint, extOutcome, start)
	return res
}

// commit debits then allocates under the session's commit lock. A failed allocation is
// refunded before the transaction is marked failed.
func (c *Coordinator) commit(ctx context.Context, f *flight) error {
	logger := logctx.FromOr(ctx, c.log)

	var (
		slot       inventory.SlotRef
		failReason dompurchase.Reason
	)
	err := f.session.Commit(func(l *ledger.Ledger, inv *inventory.Store) error {
		var err error
		slot, failReason, err = c.settle(logger, l, inv, f.item, f.amount)
		return err
	})

	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil {
		_ = f.tx.FailCommit(failReason)
		c.save(ctx, f)
		// both mean the ledger or the bag disagreed with itself
		serious := failReason == dompurchase.ReasonSlotOccupied || errors.Is(err, errRefundFailed)
		level := logger.Info
		if serious {
			level = logger.Error
		}
		level("purchase_commit_failed",
			observability.F("reason", string(failReason)),
			observability.F("error", err.Error()),
		)
		if serious {
			return err
		}
		return nil
	}

	_ = f.tx.Commit(slot.Index())
	c.save(ctx, f)
	logger.Info("purchase_committed",
		observability.F("slot", slot.Index()),
		observability.F("amount", f.amount),
	)
	return nil
}

type wallet interface {
	Debit(amount int64) error
	Credit(amount int64) error
	Balance() int64
}

type bag interface {
	Allocate(item *catalog.Item) (inventory.SlotRef, error)
}

// settle is the body of the commit: debit, allocate, refund on allocation failure.
// Callers hold the session's commit lock.
func (c *Coordinator) settle(logger observability.Logger, w wallet, b bag, item catalog.Item, amount int64) (inventory.SlotRef, dompurchase.Reason, error) {
	if err := w.Debit(amount); err != nil {
		reason := dompurchase.ReasonInsufficientFunds
		if errors.Is(err, ledger.ErrInvalidArgument) {
			reason = dompurchase.ReasonInvalidArgument
		}
		return 0, reason, fmt.Errorf("debit: %w", err)
	}
	ref, err := b.Allocate(&item)
	if err == nil {
		return ref, dompurchase.ReasonNone, nil
	}

	reason := dompurchase.ReasonInventoryFull
	if errors.Is(err, inventory.ErrSlotOccupied) {
		reason = dompurchase.ReasonSlotOccupied
	}
	if cerr := w.Credit(amount); cerr != nil {
		logger.Error("ledger_refund_failed",
			observability.F("amount", amount),
			observability.F("error", cerr.Error()),
		)
		return 0, reason, errors.Join(fmt.Errorf("allocate: %w", err), fmt.Errorf("%w: %w", errRefundFailed, cerr))
	}
	c.refunds.Add(1, observability.L("reason", string(reason)))
	logger.Warn("ledger_refunded",
		observability.F("amount", amount),
		observability.F("reason", string(reason)),
		observability.F("balance", w.Balance()),
	)
	return 0, reason, fmt.Errorf("allocate: %w", err)
}

// finish sends the single terminal notification and frees the player's slot.
func (c *Coordinator) finish(ctx context.Context, f *flight) {
	logger := logctx.FromOr(ctx, c.log)

	f.mu.Lock()
	o := f.tx.Outcome()
	f.mu.Unlock()

	c.outcomes.Add(1,
		observability.L("result", string(o.Result)),
		observability.L("reason", string(o.Reason)),
	)

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.publishTimeout)
	pubStart := time.Now()
	pubOutcome := "success"
	if err := c.publisher.Publish(pubCtx, dompurchase.NewFinishedEvent(o)); err != nil {
		pubOutcome = "error"
		logger.Warn("event_publish_failed",
			observability.F("event", publishEndpoint),
			observability.F("transaction_id", o.TransactionID),
			observability.F("error", err.Error()),
		)
	}
	cancel()
	c.external(publishPeer, publishEndpoint, pubOutcome, pubStart)

	logger.Info("purchase_finished",
		observability.F("transaction_id", o.TransactionID),
		observability.F("result", string(o.Result)),
		observability.F("reason", string(o.Reason)),
	)

	f.outcome = o
	c.release(f)
	close(f.done)
	c.wg.Done()
}

// save records the current phase. Callers hold f.mu.
func (c *Coordinator) save(ctx context.Context, f *flight) *dompurchase.Transaction {
	snapshot := f.tx.Clone()
	if err := c.repo.Update(ctx, snapshot.Clone()); err != nil {
		logctx.FromOr(ctx, c.log).Warn("transaction_update_failed",
			observability.F("transaction_id", f.txID),
			observability.F("error", err.Error()),
		)
	}
	return snapshot
}
