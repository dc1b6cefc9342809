package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kiffhq/kiff/internal/pipeline"
)

// PipelineHandler exposes raw ingestion runs for operators, streaming
// stage-by-stage progress as NDJSON.
type PipelineHandler struct {
	engine pipeline.Engine
}

func NewPipelineHandler(engine pipeline.Engine) *PipelineHandler {
	return &PipelineHandler{engine: engine}
}

// ProcessDomain starts an ingestion run and streams one RAGMetrics
// snapshot per line until the run reaches a terminal status.
func (h *PipelineHandler) ProcessDomain(w http.ResponseWriter, r *http.Request) {
	var cfg pipeline.DomainConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if cfg.Name == "" {
		writeError(w, http.StatusBadRequest, "name required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	progress, err := h.engine.ProcessDomain(r.Context(), cfg)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(w)
	for snapshot := range progress {
		if err := enc.Encode(snapshot); err != nil {
			return
		}
		flusher.Flush()
	}
}

// RunMetrics returns the latest snapshot of one run.
func (h *PipelineHandler) RunMetrics(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid run id")
		return
	}

	metrics, ok := h.engine.Metrics(id)
	if !ok {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}

	writeJSON(w, http.StatusOK, metrics)
}
