package materialize

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/gameshop/internal/domain/player"
	"github.com/Zhima-Mochi/gameshop/internal/domain/purchase"
	"github.com/Zhima-Mochi/gameshop/internal/observability"
	"github.com/Zhima-Mochi/gameshop/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	materializeService = "materialize-service"
	useCaseMaterialize = "asset.materialize"
	useCaseRefresh     = "inventory.refresh"
	spanPrefix         = "UC."

	kindMaterialize = "materialize"
	kindRefresh     = "refresh"
)

var ErrPlayerRequired = errors.New("materialize: player id is required")

type base struct {
	log          observability.Logger
	tracer       observability.Tracer
	reqCounter   observability.Counter   // usecase_requests_total{use_case,outcome}
	durHistogram observability.Histogram // usecase_duration_seconds{use_case}
	assetCounter observability.Counter   // asset_materializations_total{kind,outcome}
}

func newBase(tel observability.Observability) base {
	if tel == nil {
		tel = observability.Nop()
	}
	m := tel.Metrics()
	return base{
		log:          tel.Logger().With(observability.F("service", materializeService)),
		tracer:       tel.Tracer(),
		reqCounter:   m.Counter(observability.MUsecaseRequests),
		durHistogram: m.Histogram(observability.MUsecaseDuration),
		assetCounter: m.Counter(observability.MAssetMaterializations),
	}
}

func (b base) observe(useCase, outcome string, start time.Time) float64 {
	lat := time.Since(start).Seconds()
	b.reqCounter.Add(1,
		observability.L("use_case", useCase),
		observability.L("outcome", outcome),
	)
	b.durHistogram.Observe(lat, observability.L("use_case", useCase))
	return lat
}

func (b base) countAsset(kind string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	b.assetCounter.Add(1,
		observability.L("kind", kind),
		observability.L("outcome", outcome),
	)
}

// MaterializeResult reports whether a visual was requested for the outcome.
type MaterializeResult struct {
	Placed    bool
	Placement Placement
}

// MaterializeUseCase turns a committed purchase into a placement request. Outcomes that
// did not commit have nothing to show and are skipped.
type MaterializeUseCase struct {
	base
	materializer AssetMaterializer
}

func NewMaterializeUseCase(m AssetMaterializer, tel observability.Observability) *MaterializeUseCase {
	return &MaterializeUseCase{base: newBase(tel), materializer: m}
}

func (uc *MaterializeUseCase) Execute(ctx context.Context, o purchase.Outcome) (_ *MaterializeResult, err error) {
	ctx, logger := logctx.Enrich(ctx, uc.log,
		observability.F("use_case", useCaseMaterialize),
		observability.F("transaction_id", o.TransactionID),
		observability.F("player_id", o.PlayerID),
	)
	ctx, span := uc.tracer.Start(ctx, spanPrefix+"Materialize",
		attribute.String("use_case", useCaseMaterialize),
		attribute.String("transaction.id", o.TransactionID),
	)
	start := time.Now()
	outcome, status := "success", "OK"

	defer func() {
		lat := uc.observe(useCaseMaterialize, outcome, start)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, status)
		} else {
			span.SetStatus(codes.Ok, status)
		}
		span.End()
		logger.Info("use_case_done",
			observability.F("outcome", outcome),
			observability.F("status", status),
			observability.F("latency_seconds", lat),
		)
	}()

	if o.Result != purchase.ResultCommitted || o.SlotIndex == nil {
		status = "NOT_COMMITTED"
		return &MaterializeResult{}, nil
	}

	p := Placement{
		PlayerID:  o.PlayerID,
		SlotIndex: *o.SlotIndex,
		ItemKey:   o.ItemKey,
		AssetRef:  o.AssetRef,
	}
	err = uc.materializer.Materialize(ctx, p)
	uc.countAsset(kindMaterialize, err)
	if err != nil {
		outcome, status = "error", "MATERIALIZE_FAILED"
		return nil, fmt.Errorf("materialize: slot %d: %w", p.SlotIndex, err)
	}
	span.SetAttributes(attribute.Int("inventory.slot", p.SlotIndex))
	return &MaterializeResult{Placed: true, Placement: p}, nil
}

type RefreshInventoryInput struct {
	PlayerID string
}

type RefreshInventoryResult struct {
	Refreshed int
	Failed    int
}

// RefreshInventoryUseCase re-issues the visual of every occupied slot, for when the
// presentation side has lost or misplaced item visuals.
type RefreshInventoryUseCase struct {
	base
	sessions     player.Repository
	materializer AssetMaterializer
}

func NewRefreshInventoryUseCase(sessions player.Repository, m AssetMaterializer, tel observability.Observability) *RefreshInventoryUseCase {
	return &RefreshInventoryUseCase{base: newBase(tel), sessions: sessions, materializer: m}
}

// Execute keeps going after a failed slot; the joined error lists every failure.
func (uc *RefreshInventoryUseCase) Execute(ctx context.Context, in RefreshInventoryInput) (_ *RefreshInventoryResult, err error) {
	ctx, logger := logctx.Enrich(ctx, uc.log,
		observability.F("use_case", useCaseRefresh),
		observability.F("player_id", in.PlayerID),
	)
	ctx, span := uc.tracer.Start(ctx, spanPrefix+"RefreshInventory",
		attribute.String("use_case", useCaseRefresh),
		attribute.String("player.id", in.PlayerID),
	)
	start := time.Now()
	outcome, status := "success", "OK"
	res := &RefreshInventoryResult{}

	defer func() {
		lat := uc.observe(useCaseRefresh, outcome, start)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, status)
		} else {
			span.SetStatus(codes.Ok, status)
		}
		span.End()
		logger.Info("use_case_done",
			observability.F("outcome", outcome),
			observability.F("status", status),
			observability.F("latency_seconds", lat),
			observability.F("refreshed", res.Refreshed),
			observability.F("failed", res.Failed),
		)
	}()

	if in.PlayerID == "" {
		outcome, status = "error", "PLAYER_ID_REQUIRED"
		return nil, ErrPlayerRequired
	}
	session, err := uc.sessions.Load(ctx, in.PlayerID)
	if err != nil {
		outcome, status = "error", "SESSION_LOAD_FAILED"
		return nil, fmt.Errorf("materialize: load session: %w", err)
	}

	var errs []error
	for _, slot := range session.Inventory.Occupied() {
		p := Placement{
			PlayerID:  in.PlayerID,
			SlotIndex: slot.Index,
			ItemKey:   slot.Occupant.Key,
			AssetRef:  slot.Occupant.AssetRef,
		}
		rerr := uc.materializer.Refresh(ctx, p)
		uc.countAsset(kindRefresh, rerr)
		if rerr != nil {
			res.Failed++
			errs = append(errs, fmt.Errorf("slot %d: %w", slot.Index, rerr))
			continue
		}
		res.Refreshed++
	}
	if len(errs) > 0 {
		outcome, status = "error", "REFRESH_PARTIAL"
		return res, fmt.Errorf("materialize: refresh: %w", errors.Join(errs...))
	}
	return res, nil
}
