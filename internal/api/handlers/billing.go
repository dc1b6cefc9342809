package handlers

import (
	"net/http"
	"strconv"

	"github.com/kiffhq/kiff/internal/billing"
	"github.com/kiffhq/kiff/internal/tenant"
)

// BillingHandler serves the tenant-facing billing reads.
type BillingHandler struct {
	ledger *billing.Ledger
}

func NewBillingHandler(ledger *billing.Ledger) *BillingHandler {
	return &BillingHandler{ledger: ledger}
}

// Summary reports the calling user's rollup for the month in
// progress.
func (h *BillingHandler) Summary(w http.ResponseWriter, r *http.Request) {
	tenantID := tenant.IDFromContext(r.Context())
	userID := tenant.UserIDFromContext(r.Context())

	summary, err := h.ledger.GetCurrentCycleSummary(r.Context(), tenantID, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"summary":          summary,
		"total_cost":       billing.FormatUSD(summary.TotalCostUSD),
		"total_tokens":     billing.FormatTokens(summary.TotalTokens),
		"operations_count": summary.Operations,
	})
}

// History lists the tenant's consumption rows, most recent first.
func (h *BillingHandler) History(w http.ResponseWriter, r *http.Request) {
	tenantID := tenant.IDFromContext(r.Context())

	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	rows, err := h.ledger.GetConsumptionHistory(r.Context(), tenantID, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"consumption": rows,
		"count":       len(rows),
	})
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
