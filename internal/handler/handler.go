// Package handler exposes the commit, segmentation, and rollup operations
// over HTTP. Responses are encoded with jx; money fields are JSON strings so
// decimal values survive the wire unchanged.
package handler

import (
	"net/http"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/sales-ledger/internal/domain/analytics"
	"github.com/xenking/sales-ledger/internal/domain/catalog"
	"github.com/xenking/sales-ledger/internal/domain/order"
	"github.com/xenking/sales-ledger/internal/domain/segment"
)

// Handler routes API requests to the domain services.
type Handler struct {
	orders   *order.Service
	products catalog.Repository
	segments *segment.Service
	rollup   *analytics.Service
}

// New constructs a Handler with the required domain dependencies.
func New(
	orders *order.Service,
	products catalog.Repository,
	segments *segment.Service,
	rollup *analytics.Service,
) *Handler {
	return &Handler{
		orders:   orders,
		products: products,
		segments: segments,
		rollup:   rollup,
	}
}

// Register attaches all API routes to the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/orders", h.openOrder)
	mux.HandleFunc("GET /api/orders/{id}", h.getOrder)
	mux.HandleFunc("POST /api/orders/{id}/lines", h.commitLine)
	mux.HandleFunc("POST /api/orders/{id}/pay", h.payOrder)
	mux.HandleFunc("POST /api/orders/{id}/cancel", h.cancelOrder)
	mux.HandleFunc("GET /api/products", h.listProducts)
	mux.HandleFunc("GET /api/products/{id}", h.getProduct)
	mux.HandleFunc("POST /api/segments/recompute", h.recomputeSegments)
	mux.HandleFunc("GET /api/rollup", h.profitabilityRollup)
}

// writeJSON encodes one JSON value built by fill and writes it with status.
func writeJSON(w http.ResponseWriter, status int, fill func(e *jx.Encoder)) {
	var e jx.Encoder
	fill(&e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// writeError writes the standard {code, message} error body.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("code", func(e *jx.Encoder) { e.Int(status) })
			e.Field("message", func(e *jx.Encoder) { e.Str(message) })
		})
	})
}

// serverError logs err and answers with an opaque 500.
func serverError(w http.ResponseWriter, r *http.Request, err error) {
	zctx.From(r.Context()).Error("request failed",
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, "internal server error")
}
