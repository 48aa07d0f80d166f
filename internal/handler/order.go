package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/sales-ledger/internal/domain/catalog"
	"github.com/xenking/sales-ledger/internal/domain/customer"
	"github.com/xenking/sales-ledger/internal/domain/order"
)

type openOrderRequest struct {
	CustomerID string `json:"customerId"`
}

type commitLineRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// openOrder creates a new pending order for a customer.
func (h *Handler) openOrder(w http.ResponseWriter, r *http.Request) {
	var req openOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.CustomerID == "" {
		writeError(w, http.StatusBadRequest, "customerId required")
		return
	}

	o, err := h.orders.Open(r.Context(), req.CustomerID)
	if err != nil {
		if errors.Is(err, customer.ErrNotFound) {
			writeError(w, http.StatusNotFound, "customer not found")
			return
		}
		serverError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// getOrder returns one order by ID.
func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// commitLine applies one order line: stock check, price/cost freeze, stock
// decrement, and total increment, atomically.
func (h *Handler) commitLine(w http.ResponseWriter, r *http.Request) {
	var req commitLineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	line, err := h.orders.CommitLine(r.Context(), order.CommitParams{
		OrderID:   r.PathValue("id"),
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
	})
	if err != nil {
		h.mapCommitError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeLine(e, line) })
}

// mapCommitError translates commit protocol errors to HTTP responses.
// Contention gets 409 with Retry-After because a retry with the same
// arguments is safe; business-rule rejections are 422 and must not be
// retried without caller correction.
func (h *Handler) mapCommitError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		iqErr *order.InvalidQuantityError
		isErr *order.InsufficientStockError
	)

	switch {
	case errors.As(err, &iqErr):
		writeError(w, http.StatusUnprocessableEntity, iqErr.Error())
	case errors.As(err, &isErr):
		writeJSON(w, http.StatusUnprocessableEntity, func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				e.Field("code", func(e *jx.Encoder) { e.Int(http.StatusUnprocessableEntity) })
				e.Field("message", func(e *jx.Encoder) { e.Str(isErr.Error()) })
				e.Field("productId", func(e *jx.Encoder) { e.Str(isErr.ProductID) })
				e.Field("available", func(e *jx.Encoder) { e.Int(isErr.Available) })
				e.Field("requested", func(e *jx.Encoder) { e.Int(isErr.Requested) })
			})
		})
	case errors.Is(err, catalog.ErrNotFound):
		writeError(w, http.StatusNotFound, "product not found")
	case errors.Is(err, order.ErrNotFound):
		writeError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, catalog.ErrInactive):
		writeError(w, http.StatusUnprocessableEntity, "product is inactive")
	case errors.Is(err, order.ErrNotPending):
		writeError(w, http.StatusConflict, "order is not pending")
	case errors.Is(err, order.ErrContention):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusConflict, "commit contention, retry")
	default:
		serverError(w, r, err)
	}
}

// payOrder marks a pending order paid.
func (h *Handler) payOrder(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.orders.MarkPaid)
}

// cancelOrder marks a pending order cancelled.
func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.orders.Cancel)
}

// transition runs one pending-state transition and maps its errors.
func (h *Handler) transition(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, id string) error) {
	err := apply(r.Context(), r.PathValue("id"))
	switch {
	case err == nil:
		o, err := h.orders.Get(r.Context(), r.PathValue("id"))
		if err != nil {
			serverError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
	case errors.Is(err, order.ErrNotFound):
		writeError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, order.ErrNotPending):
		writeError(w, http.StatusConflict, "order is not pending")
	default:
		serverError(w, r, err)
	}
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(o.ID) })
		e.Field("customerId", func(e *jx.Encoder) { e.Str(o.CustomerID) })
		e.Field("status", func(e *jx.Encoder) { e.Str(string(o.Status)) })
		e.Field("total", func(e *jx.Encoder) { e.Str(o.Total.StringFixed(2)) })
		e.Field("createdAt", func(e *jx.Encoder) { e.Str(o.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00")) })
	})
}

func encodeLine(e *jx.Encoder, l *order.Line) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(l.ID) })
		e.Field("orderId", func(e *jx.Encoder) { e.Str(l.OrderID) })
		e.Field("productId", func(e *jx.Encoder) { e.Str(l.ProductID) })
		e.Field("quantity", func(e *jx.Encoder) { e.Int(l.Quantity) })
		e.Field("unitPrice", func(e *jx.Encoder) { e.Str(l.UnitPrice.StringFixed(2)) })
		e.Field("unitCost", func(e *jx.Encoder) { e.Str(l.UnitCost.StringFixed(2)) })
		e.Field("subtotal", func(e *jx.Encoder) { e.Str(l.Subtotal.StringFixed(2)) })
		e.Field("margin", func(e *jx.Encoder) { e.Str(l.Margin.StringFixed(2)) })
	})
}
