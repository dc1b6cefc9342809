package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kiffhq/kiff/internal/billing"
	"github.com/kiffhq/kiff/internal/indexcache"
	"github.com/kiffhq/kiff/internal/queue"
)

// AdminHandler serves the operator endpoints: pre-indexing, cache
// inspection and per-tenant billing overviews.
type AdminHandler struct {
	cache   *indexcache.Service
	catalog indexcache.Catalog
	ledger  *billing.Ledger
	queue   *queue.Client
}

func NewAdminHandler(cache *indexcache.Service, catalog indexcache.Catalog, ledger *billing.Ledger, qc *queue.Client) *AdminHandler {
	return &AdminHandler{cache: cache, catalog: catalog, ledger: ledger, queue: qc}
}

type preIndexRequest struct {
	Force bool `json:"force"`
	// Async hands the run to a background worker instead of blocking
	// the request.
	Async bool `json:"async"`
}

func (h *AdminHandler) PreIndex(w http.ResponseWriter, r *http.Request) {
	apiName := chi.URLParam(r, "api")

	var req preIndexRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	if _, err := h.catalog.Lookup(r.Context(), apiName); err != nil {
		writeError(w, http.StatusNotFound, "api not in catalog")
		return
	}

	if req.Async && h.queue != nil {
		if err := h.queue.EnqueueIndexAPI(queue.IndexAPIPayload{APIName: apiName, Force: req.Force}); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"api":    apiName,
			"queued": true,
		})
		return
	}

	ok, entry, err := h.cache.AdminPreIndexAPI(r.Context(), apiName, req.Force)
	if err != nil && entry == nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	status := http.StatusOK
	if !ok && entry != nil && entry.Status == indexcache.StatusIndexing {
		status = http.StatusAccepted
	}
	if !ok && entry != nil && entry.Status == indexcache.StatusFailed {
		status = http.StatusBadGateway
	}

	writeJSON(w, status, map[string]interface{}{
		"cached": ok,
		"entry":  entry,
	})
}

func (h *AdminHandler) ListCacheEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := h.cache.ListEntries(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}

func (h *AdminHandler) CacheStatus(w http.ResponseWriter, r *http.Request) {
	apiName := chi.URLParam(r, "api")

	status, err := h.cache.GetCacheStatus(r.Context(), apiName)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"api": apiName, "status": status})
}

func (h *AdminHandler) Catalog(w http.ResponseWriter, r *http.Request) {
	names, err := h.catalog.Names(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"apis": names, "count": len(names)})
}

func (h *AdminHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	n, err := h.cache.ExpireStale(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"expired": n})
}

// BillingOverview reports one tenant's per-user consumption this
// month, biggest consumer first.
func (h *AdminHandler) BillingOverview(w http.ResponseWriter, r *http.Request) {
	tenantID, err := uuid.Parse(r.URL.Query().Get("tenant_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "tenant_id query parameter required")
		return
	}

	overview, err := h.ledger.GetTenantConsumptionOverview(r.Context(), tenantID)
	if err != nil {
		if errors.Is(err, billing.ErrNotFound) {
			writeJSON(w, http.StatusOK, map[string]interface{}{"users": []struct{}{}})
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tenant_id": tenantID,
		"users":     overview,
		"count":     len(overview),
	})
}
