package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kiffhq/kiff/internal/indexcache"
	"github.com/kiffhq/kiff/internal/tenant"
)

// APIHandler serves the tenant-facing side of the knowledge cache:
// requesting access, checking status, and searching.
type APIHandler struct {
	cache *indexcache.Service
}

func NewAPIHandler(cache *indexcache.Service) *APIHandler {
	return &APIHandler{cache: cache}
}

// RequestAccess grants the calling user fractional-cost access to a
// cached API. A refusal (not indexed, in progress, expired) is a 409
// with an explanation, not a server error.
func (h *APIHandler) RequestAccess(w http.ResponseWriter, r *http.Request) {
	apiName := chi.URLParam(r, "api")
	tenantID := tenant.IDFromContext(r.Context())
	userID := tenant.UserIDFromContext(r.Context())

	granted, grant, msg, err := h.cache.UserRequestAPIAccess(r.Context(), tenantID, userID, apiName)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !granted {
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"granted": false,
			"message": msg,
		})
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"granted": true,
		"message": msg,
		"access":  grant,
	})
}

func (h *APIHandler) Status(w http.ResponseWriter, r *http.Request) {
	apiName := chi.URLParam(r, "api")

	status, err := h.cache.GetCacheStatus(r.Context(), apiName)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"api":    apiName,
		"status": status,
	})
}

type searchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

// Search runs a similarity query over one API's cached knowledge. The
// caller must present the access token from a prior grant.
func (h *APIHandler) Search(w http.ResponseWriter, r *http.Request) {
	apiName := chi.URLParam(r, "api")
	tenantID := tenant.IDFromContext(r.Context())
	userID := tenant.UserIDFromContext(r.Context())

	accessToken := r.Header.Get("X-Access-Token")
	if accessToken == "" {
		writeError(w, http.StatusUnauthorized, "X-Access-Token header required")
		return
	}

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query required")
		return
	}
	if req.Limit <= 0 {
		req.Limit = 10
	}

	kb, err := h.cache.GetUserAPIKnowledgeBase(r.Context(), tenantID, userID, apiName, accessToken)
	if err != nil {
		switch {
		case errors.Is(err, indexcache.ErrAccessDenied):
			writeError(w, http.StatusForbidden, "access denied")
		case errors.Is(err, indexcache.ErrNotIndexed):
			writeError(w, http.StatusNotFound, "api knowledge not available")
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	results, err := kb.Search(r.Context(), req.Query, req.Limit)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"results": results,
		"count":   len(results),
	})
}
