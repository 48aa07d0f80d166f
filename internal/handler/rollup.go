package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/sales-ledger/internal/domain/analytics"
)

// profitabilityRollup streams the profitability rollup for the requested
// granularity. Groups with zero gross revenue never appear; a period with no
// paid orders yields an empty array.
func (h *Handler) profitabilityRollup(w http.ResponseWriter, r *http.Request) {
	g, err := analytics.ParseGranularity(r.URL.Query().Get("granularity"))
	if err != nil {
		if errors.Is(err, analytics.ErrBadGranularity) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		serverError(w, r, err)
		return
	}

	// Collect before writing headers so a mid-sequence failure can still
	// produce a proper error status.
	var rows []analytics.Row
	for row, err := range h.rollup.Rollup(r.Context(), g) {
		if err != nil {
			serverError(w, r, err)
			return
		}
		rows = append(rows, row)
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for i := range rows {
				encodeRollupRow(e, &rows[i])
			}
		})
	})
}

func encodeRollupRow(e *jx.Encoder, row *analytics.Row) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("year", func(e *jx.Encoder) { e.Int(row.Year) })
		if row.Month > 0 {
			e.Field("month", func(e *jx.Encoder) { e.Int(row.Month) })
		}
		e.Field("category", func(e *jx.Encoder) { e.Str(row.Category) })
		e.Field("grossRevenue", func(e *jx.Encoder) { e.Str(row.GrossRevenue.StringFixed(2)) })
		e.Field("netMargin", func(e *jx.Encoder) { e.Str(row.NetMargin.StringFixed(2)) })
		e.Field("marginPercent", func(e *jx.Encoder) { e.Str(row.MarginPercentString()) })
	})
}
