package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/sales-ledger/internal/domain/segment"
)

// recomputeSegments triggers a segmentation pass out of schedule. The pass is
// single-flight: a request arriving while one is active gets 409.
func (h *Handler) recomputeSegments(w http.ResponseWriter, r *http.Request) {
	summary, err := h.segments.Recompute(r.Context())
	if err != nil {
		if errors.Is(err, segment.ErrRecomputeActive) {
			writeError(w, http.StatusConflict, "recompute already running")
			return
		}
		serverError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeSummary(e, summary) })
}

func encodeSummary(e *jx.Encoder, s *segment.Summary) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("visited", func(e *jx.Encoder) { e.Int(s.Visited) })
		e.Field("updated", func(e *jx.Encoder) { e.Int(s.Updated) })
		e.Field("skipped", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, sk := range s.Skipped {
					e.Obj(func(e *jx.Encoder) {
						e.Field("customerId", func(e *jx.Encoder) { e.Str(sk.CustomerID) })
						e.Field("reason", func(e *jx.Encoder) { e.Str(sk.Reason) })
					})
				}
			})
		})
		e.Field("durationMs", func(e *jx.Encoder) { e.Int64(s.Duration.Milliseconds()) })
	})
}
