package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-health/harrier/internal/domain"
	"github.com/opensource-health/harrier/internal/investigation"
	"github.com/opensource-health/harrier/internal/repository"
	"github.com/opensource-health/harrier/internal/rules"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo    domain.Repository
	cache   domain.Cache
	bus     domain.EventBus
	engine  *investigation.Engine
	rules   *rules.Engine
	version string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *investigation.Engine, ruleEngine *rules.Engine, version string) *Handler {
	return &Handler{
		repo:    repo,
		cache:   cache,
		bus:     bus,
		engine:  engine,
		rules:   ruleEngine,
		version: version,
	}
}

// InvestigationRequest is the request body for POST /investigations.
type InvestigationRequest struct {
	NPI string `json:"npi"`
}

// Investigate handles POST /investigations: runs the full pipeline
// synchronously and returns the analysis with its report.
func (h *Handler) Investigate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	traceID := GetTraceID(ctx)

	var req InvestigationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.NPI == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "npi is required",
		})
		return
	}

	out, err := h.engine.Run(ctx, req.NPI)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidNPI):
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": err.Error(),
			})
		case errors.Is(err, investigation.ErrNoSubjectData):
			writeJSON(w, http.StatusBadGateway, map[string]string{
				"error": "all upstream sources failed for subject",
			})
		default:
			slog.Error("investigation failed",
				"npi", req.NPI,
				"trace_id", traceID,
				"error", err,
			)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "investigation failed",
			})
		}
		return
	}

	slog.Debug("synchronous investigation served",
		"npi", req.NPI,
		"analysis_id", out.Analysis.ID,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	writeJSON(w, http.StatusOK, out)
}

// asyncRequest is the payload published for async investigations. It
// mirrors the worker's request message shape.
type asyncRequest struct {
	NPI     string `json:"npi"`
	TraceID string `json:"traceId,omitempty"`
}

// InvestigateAsync handles POST /investigations/async: validates the NPI
// and queues the investigation on the event bus.
func (h *Handler) InvestigateAsync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	traceID := GetTraceID(ctx)

	var req InvestigationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if err := domain.ValidateNPI(req.NPI); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	if h.bus == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "event bus not available",
		})
		return
	}

	payload, _ := json.Marshal(asyncRequest{NPI: req.NPI, TraceID: traceID})
	if err := h.bus.Publish(ctx, domain.TopicInvestigationRequested, payload); err != nil {
		slog.Error("failed to queue investigation",
			"npi", req.NPI,
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to queue investigation",
		})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"npi":     req.NPI,
		"status":  "queued",
		"traceId": traceID,
	})
}

// GetInvestigation retrieves a stored analysis by ID.
func (h *Handler) GetInvestigation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "investigation id is required",
		})
		return
	}
	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	analysis, err := h.repo.GetAnalysis(ctx, id)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			slog.Error("failed to get analysis", "id", id, "error", err)
		}
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "investigation not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, analysis)
}

// ListSubjectInvestigations returns all stored analyses for one subject,
// newest first.
func (h *Handler) ListSubjectInvestigations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	npi := chi.URLParam(r, "npi")

	if err := domain.ValidateNPI(npi); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}
	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	analyses, err := h.repo.ListAnalysesBySubject(ctx, npi)
	if err != nil {
		slog.Error("failed to list analyses", "npi", npi, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list investigations",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"npi":            npi,
		"investigations": analyses,
		"count":          len(analyses),
	})
}

// FinancialRequest is the request body for PUT /subjects/{npi}/financial.
type FinancialRequest struct {
	EstimatedFraud    float64 `json:"estimatedFraud,omitempty"`
	Settlement        float64 `json:"settlement,omitempty"`
	Restitution       float64 `json:"restitution,omitempty"`
	Notes             string  `json:"notes,omitempty"`
	InvestigationYear int     `json:"investigationYear"`
}

// PutFinancial records manually entered financial figures for a subject.
func (h *Handler) PutFinancial(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	npi := chi.URLParam(r, "npi")

	if err := domain.ValidateNPI(npi); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	var req FinancialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.InvestigationYear == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "investigationYear is required",
		})
		return
	}
	if req.EstimatedFraud < 0 || req.Settlement < 0 || req.Restitution < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "amounts must not be negative",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	entry := &domain.FinancialEntry{
		NPI:               npi,
		EstimatedFraud:    req.EstimatedFraud,
		Settlement:        req.Settlement,
		Restitution:       req.Restitution,
		Notes:             req.Notes,
		InvestigationYear: req.InvestigationYear,
		CreatedAt:         time.Now().UTC(),
	}
	if err := h.repo.SaveFinancialEntry(ctx, entry); err != nil {
		slog.Error("failed to save financial entry", "npi", npi, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save financial entry",
		})
		return
	}

	slog.Info("financial entry recorded",
		"npi", npi,
		"year", entry.InvestigationYear,
		"total_impact", entry.TotalImpact(),
	)
	writeJSON(w, http.StatusOK, entry)
}

// GetFinancial returns the financial entries recorded for a subject.
func (h *Handler) GetFinancial(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	npi := chi.URLParam(r, "npi")

	if err := domain.ValidateNPI(npi); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}
	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	entries, err := h.repo.ListFinancialEntries(ctx, npi)
	if err != nil {
		slog.Error("failed to list financial entries", "npi", npi, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list financial entries",
		})
		return
	}

	var total float64
	for _, e := range entries {
		total = total + e.TotalImpact()
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"npi":         npi,
		"entries":     entries,
		"count":       len(entries),
		"totalImpact": total,
	})
}

// AnnualFinancial handles GET /financial/annual?year=YYYY.
func (h *Handler) AnnualFinancial(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	yearParam := r.URL.Query().Get("year")
	year, err := strconv.Atoi(yearParam)
	if err != nil || year < 1900 || year > 2200 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "year query parameter is required (YYYY)",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	total, err := h.repo.AnnualFinancialTotal(ctx, year)
	if err != nil {
		slog.Error("failed to compute annual total", "year", year, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to compute annual total",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"year":  year,
		"total": total,
	})
}

// ListRules returns all risk-factor rules loaded in the engine.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	if h.rules == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "rule engine not available",
		})
		return
	}

	loaded := h.rules.GetLoadedRules()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules": loaded,
		"count": len(loaded),
	})
}

// GetRule retrieves a risk-factor rule by ID.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")
	if ruleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "rule id is required",
		})
		return
	}
	if h.rules == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "rule engine not available",
		})
		return
	}

	for _, rule := range h.rules.GetLoadedRules() {
		if rule.ID == ruleID {
			writeJSON(w, http.StatusOK, rule)
			return
		}
	}

	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "rule not found",
	})
}

// CreateRule validates and loads a risk-factor rule into the engine.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	if h.rules == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "rule engine not available",
		})
		return
	}

	var cfg domain.RiskFactorRule
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if cfg.ID == "" || cfg.Name == "" || cfg.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression are required",
		})
		return
	}

	if err := h.rules.LoadRule(&cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid CEL expression: " + err.Error(),
		})
		return
	}

	slog.Info("rule loaded", "id", cfg.ID, "name", cfg.Name)
	writeJSON(w, http.StatusCreated, &cfg)
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.bus != nil {
		if err := h.bus.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
