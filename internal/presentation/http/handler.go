package httppresentation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Zhima-Mochi/gameshop/internal/application"
	"github.com/Zhima-Mochi/gameshop/internal/application/materialize"
	apppurchase "github.com/Zhima-Mochi/gameshop/internal/application/purchase"
	"github.com/Zhima-Mochi/gameshop/internal/application/storefront"
	"github.com/Zhima-Mochi/gameshop/internal/domain/catalog"
	"github.com/Zhima-Mochi/gameshop/internal/domain/ledger"
	"github.com/Zhima-Mochi/gameshop/internal/domain/payment"
	"github.com/Zhima-Mochi/gameshop/internal/domain/player"
	dompurchase "github.com/Zhima-Mochi/gameshop/internal/domain/purchase"
	"github.com/Zhima-Mochi/gameshop/internal/observability"
	"github.com/Zhima-Mochi/gameshop/internal/observability/logctx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

type PurchaseService interface {
	RequestPurchase(ctx context.Context, in apppurchase.RequestInput) (*apppurchase.Handle, error)
	CancelPurchase(ctx context.Context, transactionID string) (*dompurchase.Transaction, error)
	Transaction(ctx context.Context, transactionID string) (*dompurchase.Transaction, error)
}

type StorefrontService interface {
	Catalog() []storefront.CatalogEntry
	Balance(ctx context.Context, playerID string) (storefront.Wallet, error)
	CanAfford(ctx context.Context, playerID string, price int64) (bool, error)
	Inventory(ctx context.Context, playerID string) (storefront.InventoryView, error)
}

type RefreshInventory = application.UseCase[materialize.RefreshInventoryInput, *materialize.RefreshInventoryResult]

type Handler struct {
	purchases PurchaseService
	store     StorefrontService
	refresh   RefreshInventory
	limiter   *IPRateLimiter
	log       observability.Logger

	reqCounter   observability.Counter   // http_requests_total{method,route,status}
	durHistogram observability.Histogram // http_request_duration_seconds{method,route,status}
}

const (
	componentHTTPHandler = "http_server"
	headerRequestID      = "X-Request-ID"
	headerTenantID       = "X-Tenant-ID"
	maxBodyBytes         = 1 << 16
)

// NewHandler wires the HTTP surface. A nil limiter disables rate limiting.
func NewHandler(
	purchases PurchaseService,
	store StorefrontService,
	refresh RefreshInventory,
	limiter *IPRateLimiter,
	tel observability.Observability,
) *Handler {
	if tel == nil {
		tel = observability.Nop()
	}
	m := tel.Metrics()
	return &Handler{
		purchases:    purchases,
		store:        store,
		refresh:      refresh,
		limiter:      limiter,
		log:          tel.Logger().With(observability.F("component", componentHTTPHandler)),
		reqCounter:   m.Counter(observability.MHTTPRequests),
		durHistogram: m.Histogram(observability.MHTTPRequestDuration),
	}
}

func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()

	// Trace → Request Logger → Access Log → Metrics → Handler
	h.muxHandle(mux, http.MethodGet, "/catalog", h.handleCatalog)
	h.muxHandle(mux, http.MethodPost, "/purchases", h.rateLimited(h.handleRequestPurchase))
	h.muxHandle(mux, http.MethodGet, "/purchases/{id}", h.handleGetPurchase)
	h.muxHandle(mux, http.MethodPost, "/purchases/{id}/cancel", h.handleCancelPurchase)
	h.muxHandle(mux, http.MethodGet, "/players/{id}/wallet", h.handleWallet)
	h.muxHandle(mux, http.MethodGet, "/players/{id}/wallet/can-afford", h.handleCanAfford)
	h.muxHandle(mux, http.MethodGet, "/players/{id}/inventory", h.handleInventory)
	h.muxHandle(mux, http.MethodPost, "/players/{id}/inventory/refresh", h.handleRefreshInventory)
	h.muxHandle(mux, http.MethodGet, "/health", h.handleHealth)

	return mux
}

func (h *Handler) muxHandle(mux *http.ServeMux, method, route string, handler http.HandlerFunc) {
	wrapped := h.withTrace(
		ObservabilityMiddleware(
			h.log,
			func(r *http.Request) string { return r.Header.Get(headerRequestID) },
			func(r *http.Request) string { return r.Header.Get(headerTenantID) },
		)(
			h.withAccessLog(
				h.withHTTPMetrics(handler),
			),
		),
	)
	mux.HandleFunc(method+" "+route, func(w http.ResponseWriter, r *http.Request) {
		// stable route template for low-cardinality labels
		ctx := contextWithRoute(r.Context(), method+" "+route)
		wrapped.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) rateLimited(next http.HandlerFunc) http.HandlerFunc {
	if h.limiter == nil {
		return next
	}
	return h.limiter.Middleware(next).ServeHTTP
}

type catalogItemResponse struct {
	Key         string           `json:"key"`
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Price       int64            `json:"price"`
	Category    catalog.Category `json:"category"`
	AssetRef    string           `json:"asset_ref"`
	Tooltip     string           `json:"tooltip"`
}

func (h *Handler) handleCatalog(w http.ResponseWriter, _ *http.Request) {
	entries := h.store.Catalog()
	out := make([]catalogItemResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, catalogItemResponse{
			Key:         e.Key,
			Name:        e.Name,
			Description: e.Description,
			Price:       e.Price,
			Category:    e.Category,
			AssetRef:    e.AssetRef,
			Tooltip:     e.Tooltip,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out})
}

type cardRequest struct {
	Number string `json:"number"`
	Holder string `json:"holder"`
	Expiry string `json:"expiry"`
	CVV    string `json:"cvv"`
}

type requestPurchaseRequest struct {
	PlayerID string       `json:"player_id"`
	ItemKey  string       `json:"item_key"`
	Card     *cardRequest `json:"card,omitempty"`
}

type transactionResponse struct {
	TransactionID string             `json:"transaction_id"`
	PlayerID      string             `json:"player_id"`
	ItemKey       string             `json:"item_key"`
	Amount        int64              `json:"amount"`
	Phase         dompurchase.Phase  `json:"phase"`
	Result        dompurchase.Result `json:"result"`
	Reason        dompurchase.Reason `json:"reason,omitempty"`
	DeclineReason string             `json:"decline_reason,omitempty"`
	Message       string             `json:"message,omitempty"`
	SlotIndex     *int               `json:"slot_index,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

func toTransactionResponse(tx *dompurchase.Transaction) transactionResponse {
	resp := transactionResponse{
		TransactionID: tx.ID,
		PlayerID:      tx.PlayerID,
		ItemKey:       tx.Item.Key,
		Amount:        tx.Amount,
		Phase:         tx.Phase(),
		Result:        tx.Result(),
		Reason:        tx.Reason,
		DeclineReason: tx.DeclineReason,
		CreatedAt:     tx.CreatedAt,
		UpdatedAt:     tx.UpdatedAt,
	}
	if tx.Terminal() {
		o := tx.Outcome()
		resp.Message = o.Message
		resp.SlotIndex = o.SlotIndex
	}
	return resp
}

func (h *Handler) handleRequestPurchase(w http.ResponseWriter, r *http.Request) {
	var req requestPurchaseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	in := apppurchase.RequestInput{PlayerID: req.PlayerID, ItemKey: req.ItemKey}
	if req.Card != nil {
		in.Card = payment.Card{
			Number: req.Card.Number,
			Holder: req.Card.Holder,
			Expiry: req.Card.Expiry,
			CVV:    req.Card.CVV,
		}
	}

	handle, err := h.purchases.RequestPurchase(r.Context(), in)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.Header().Set("Location", "/purchases/"+handle.TransactionID)
	writeJSON(w, http.StatusAccepted, toTransactionResponse(handle.Snapshot))
}

func (h *Handler) handleGetPurchase(w http.ResponseWriter, r *http.Request) {
	tx, err := h.purchases.Transaction(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionResponse(tx))
}

func (h *Handler) handleCancelPurchase(w http.ResponseWriter, r *http.Request) {
	tx, err := h.purchases.CancelPurchase(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionResponse(tx))
}

type walletResponse struct {
	PlayerID string `json:"player_id"`
	Balance  int64  `json:"balance"`
}

func (h *Handler) handleWallet(w http.ResponseWriter, r *http.Request) {
	wallet, err := h.store.Balance(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, walletResponse{PlayerID: wallet.PlayerID, Balance: wallet.Balance})
}

type canAffordResponse struct {
	PlayerID  string `json:"player_id"`
	Amount    int64  `json:"amount"`
	CanAfford bool   `json:"can_afford"`
}

func (h *Handler) handleCanAfford(w http.ResponseWriter, r *http.Request) {
	amount, err := strconv.ParseInt(r.URL.Query().Get("amount"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("amount must be an integer"))
		return
	}
	playerID := r.PathValue("id")
	ok, err := h.store.CanAfford(r.Context(), playerID, amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, canAffordResponse{PlayerID: playerID, Amount: amount, CanAfford: ok})
}

type slotResponse struct {
	Index    int    `json:"index"`
	ItemKey  string `json:"item_key"`
	ItemName string `json:"item_name"`
	AssetRef string `json:"asset_ref"`
}

type inventoryResponse struct {
	PlayerID string         `json:"player_id"`
	Capacity int            `json:"capacity"`
	Occupied int            `json:"occupied"`
	Full     bool           `json:"full"`
	Slots    []slotResponse `json:"slots"`
}

func (h *Handler) handleInventory(w http.ResponseWriter, r *http.Request) {
	view, err := h.store.Inventory(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	resp := inventoryResponse{
		PlayerID: view.PlayerID,
		Capacity: view.Capacity,
		Occupied: view.Occupied,
		Full:     view.Full,
		Slots:    make([]slotResponse, 0, len(view.Slots)),
	}
	for _, s := range view.Slots {
		resp.Slots = append(resp.Slots, slotResponse(s))
	}
	writeJSON(w, http.StatusOK, resp)
}

type refreshResponse struct {
	PlayerID  string `json:"player_id"`
	Refreshed int    `json:"refreshed"`
	Failed    int    `json:"failed"`
}

func (h *Handler) handleRefreshInventory(w http.ResponseWriter, r *http.Request) {
	playerID := r.PathValue("id")
	res, err := h.refresh.Execute(r.Context(), materialize.RefreshInventoryInput{PlayerID: playerID})
	if err != nil && res == nil {
		writeDomainError(w, err)
		return
	}
	status := http.StatusOK
	if err != nil {
		// some slots were refreshed, some were not
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, refreshResponse{PlayerID: playerID, Refreshed: res.Refreshed, Failed: res.Failed})
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// withAccessLog writes a single access log after the handler completes.
// It relies on the request-scoped logger already injected by ObservabilityMiddleware.
func (h *Handler) withAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(lrw, r)

		logctx.FromOr(r.Context(), h.log).Info("http_access",
			observability.F("method", r.Method),
			observability.F("route", routeFromContext(r.Context())),
			observability.F("path", r.URL.Path),
			observability.F("status", lrw.status),
			observability.F("latency_ms", time.Since(start).Milliseconds()),
		)
	})
}

// withTrace creates a server span for the request using OTel and W3C propagation.
func (h *Handler) withTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tracer := otel.Tracer("gameshop.http")
		parentCtx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

		route := routeFromContext(parentCtx)
		spanName := route
		if spanName == "unknown" {
			spanName = r.Method + " " + r.URL.Path
		}

		ctxWithSpan, span := tracer.Start(parentCtx,
			spanName,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.route", route),
				attribute.String("http.target", r.URL.Path),
				attribute.String("http.user_agent", r.UserAgent()),
			),
		)
		defer span.End()

		next.ServeHTTP(w, r.WithContext(ctxWithSpan))
	})
}

// withHTTPMetrics records RED-ish HTTP metrics using injected vectors.
func (h *Handler) withHTTPMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(lrw, r)

		labels := []observability.Label{
			observability.L("method", r.Method),
			observability.L("route", routeFromContext(r.Context())),
			observability.L("status", strconv.Itoa(lrw.status)),
		}
		h.reqCounter.Add(1, labels...)
		h.durHistogram.Observe(time.Since(start).Seconds(), labels...)
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, dompurchase.ErrNotFound),
		errors.Is(err, catalog.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, dompurchase.ErrTransactionInProgress):
		reason := dompurchase.ReasonTransactionInProgress
		writeJSON(w, http.StatusConflict, map[string]string{
			"error":   err.Error(),
			"reason":  string(reason),
			"message": reason.Message(),
		})
	case errors.Is(err, dompurchase.ErrNotCancellable):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, dompurchase.ErrInvalidTransactionInput),
		errors.Is(err, ledger.ErrInvalidArgument),
		errors.Is(err, player.ErrPlayerIDRequired),
		errors.Is(err, materialize.ErrPlayerRequired):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, apppurchase.ErrShuttingDown):
		writeError(w, http.StatusServiceUnavailable, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

type routeKey struct{}

// contextWithRoute stores the stable route template in the context so downstream
// metrics/logging can rely on low-cardinality values.
func contextWithRoute(ctx context.Context, route string) context.Context {
	if route == "" {
		return ctx
	}
	return context.WithValue(ctx, routeKey{}, route)
}

func routeFromContext(ctx context.Context) string {
	if ctx == nil {
		return "unknown"
	}
	if route, ok := ctx.Value(routeKey{}).(string); ok && route != "" {
		return route
	}
	return "unknown"
}
