package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/DecentralizedGeo/geobeat-sub000/internal/cache"
	"github.com/DecentralizedGeo/geobeat-sub000/internal/domain"
	"github.com/DecentralizedGeo/geobeat-sub000/internal/pipeline"
	"github.com/DecentralizedGeo/geobeat-sub000/internal/repository"
	"github.com/DecentralizedGeo/geobeat-sub000/internal/scoring"
	"github.com/DecentralizedGeo/geobeat-sub000/internal/trend"
)

// CacheHeader reports whether POST /scores was served from a stored result.
const CacheHeader = "X-Cache"

// Deps are the collaborators of the API. Repo, Cache and Bus may be nil.
type Deps struct {
	Engine   *pipeline.Engine
	Registry *scoring.Registry
	Repo     domain.Repository
	Cache    domain.Cache
	Bus      domain.EventBus
	Metrics  MetricsSource

	// MetricsPath is where Metrics is served; empty means /metrics.
	MetricsPath string

	Version       string
	Mode          domain.ScoringMode
	DefaultPolicy string
	CacheTTL      time.Duration
}

// MetricsSource serves the Prometheus exposition endpoint.
type MetricsSource interface {
	Handler() http.Handler
}

// Handler holds dependencies for API handlers.
type Handler struct {
	deps   Deps
	trends *trend.Service
}

// NewHandler creates a new API handler.
func NewHandler(deps Deps) *Handler {
	h := &Handler{deps: deps}
	if deps.Repo != nil {
		h.trends = trend.NewService(deps.Repo)
	}
	return h
}

// ScoreRequest is the request body for POST /scores and POST /snapshots.
type ScoreRequest struct {
	Network       string               `json:"network" validate:"required,max=128"`
	CapturedAt    *time.Time           `json:"capturedAt,omitempty"`
	Policy        string               `json:"policy,omitempty" validate:"max=128"`
	PolicyVersion string               `json:"policyVersion,omitempty" validate:"max=64"`
	Filter        string               `json:"filter,omitempty" validate:"max=4096"`
	Engine        *domain.EngineConfig `json:"engine,omitempty"`
	Nodes         []domain.NodeRecord  `json:"nodes" validate:"required"`
}

// SnapshotAccepted is the response for POST /snapshots.
type SnapshotAccepted struct {
	Network     string `json:"network"`
	Fingerprint string `json:"fingerprint"`
	ScoreID     string `json:"scoreId"`
	PolicyID    string `json:"policyId"`
}

func (h *Handler) pipelineRequest(req *ScoreRequest) *pipeline.Request {
	capturedAt := time.Now().UTC()
	if req.CapturedAt != nil {
		capturedAt = req.CapturedAt.UTC()
	}
	policyID := req.Policy
	if policyID == "" {
		policyID = h.deps.DefaultPolicy
	}
	return &pipeline.Request{
		Snapshot: &domain.NetworkSnapshot{
			Network:    req.Network,
			CapturedAt: capturedAt,
			Nodes:      req.Nodes,
		},
		PolicyID:      policyID,
		PolicyVersion: req.PolicyVersion,
		Filter:        req.Filter,
		Engine:        req.Engine,
	}
}

func decodeScoreRequest(w http.ResponseWriter, r *http.Request) (*ScoreRequest, bool) {
	var req ScoreRequest
	if !decodeJSON(w, r, &req) {
		return nil, false
	}
	if err := domain.Validator().Struct(&req); err != nil {
		writeError(w, domain.FormatValidationError(err))
		return nil, false
	}
	return &req, true
}

// Score handles POST /scores: runs the pipeline synchronously, or returns the
// stored result when the same snapshot was already scored under the same
// policy, engine parameters and filter.
func (h *Handler) Score(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, ok := decodeScoreRequest(w, r)
	if !ok {
		return
	}
	req := h.pipelineRequest(body)

	id, err := h.deps.Engine.ScoreID(req)
	if err != nil {
		writeError(w, err)
		return
	}
	if score := h.lookup(ctx, req.Snapshot.Network, id); score != nil {
		w.Header().Set(CacheHeader, "HIT")
		writeJSON(w, http.StatusOK, score)
		return
	}

	score, err := h.deps.Engine.Score(ctx, req)
	if err != nil {
		writeError(w, err)
		return
	}
	h.store(ctx, req.Snapshot, score)

	w.Header().Set(CacheHeader, "MISS")
	writeJSON(w, http.StatusOK, score)
}

// lookup returns a previously computed score from the cache or the repository.
func (h *Handler) lookup(ctx context.Context, network, id string) *domain.CompositeScore {
	if h.deps.Cache != nil {
		score, err := h.deps.Cache.GetScore(ctx, network, cache.ScoreKey(id))
		if err != nil {
			slog.Warn("cache read failed", "score_id", id, "error", err)
		} else if score != nil {
			return score
		}
	}
	if h.deps.Repo != nil {
		score, err := h.deps.Repo.GetScore(ctx, id)
		if err == nil {
			h.cacheScore(ctx, score)
			return score
		}
		if !errors.Is(err, repository.ErrNotFound) {
			slog.Warn("repository read failed", "score_id", id, "error", err)
		}
	}
	return nil
}

func (h *Handler) store(ctx context.Context, snapshot *domain.NetworkSnapshot, score *domain.CompositeScore) {
	if h.deps.Repo != nil {
		if _, err := h.deps.Repo.SaveSnapshot(ctx, snapshot); err != nil {
			slog.Error("failed to save snapshot", "network", snapshot.Network, "error", err)
		}
		if err := h.deps.Repo.SaveScore(ctx, score); err != nil {
			slog.Error("failed to save score", "score_id", score.ID, "error", err)
		}
	}
	h.cacheScore(ctx, score)
}

func (h *Handler) cacheScore(ctx context.Context, score *domain.CompositeScore) {
	if h.deps.Cache == nil {
		return
	}
	if err := h.deps.Cache.SetScore(ctx, score.Network, cache.ScoreKey(score.ID), score, h.deps.CacheTTL); err != nil {
		slog.Warn("failed to cache score", "score_id", score.ID, "error", err)
	}
}

// SubmitSnapshot handles POST /snapshots: the snapshot is validated and
// published for the worker. The response carries the ID the score will have.
func (h *Handler) SubmitSnapshot(w http.ResponseWriter, r *http.Request) {
	if h.deps.Bus == nil || h.deps.Mode != domain.ModeAsync {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{
			Error: "asynchronous scoring is not enabled", Kind: "unavailable",
		})
		return
	}
	body, ok := decodeScoreRequest(w, r)
	if !ok {
		return
	}
	req := h.pipelineRequest(body)

	if err := req.Snapshot.Validate(); err != nil {
		writeError(w, err)
		return
	}
	id, err := h.deps.Engine.ScoreID(req)
	if err != nil {
		writeError(w, err)
		return
	}

	payload, err := json.Marshal(domain.ScoreRequest{
		Snapshot:      *req.Snapshot,
		PolicyID:      req.PolicyID,
		PolicyVersion: req.PolicyVersion,
		Filter:        req.Filter,
		Engine:        req.Engine,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.deps.Bus.Publish(r.Context(), req.Snapshot.Network, domain.TopicSnapshotIngested, payload); err != nil {
		slog.Error("failed to publish snapshot", "network", req.Snapshot.Network, "error", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, SnapshotAccepted{
		Network:     req.Snapshot.Network,
		Fingerprint: req.Snapshot.Fingerprint(),
		ScoreID:     id,
		PolicyID:    req.PolicyID,
	})
}

// GetScore handles GET /scores/{id}.
func (h *Handler) GetScore(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w) {
		return
	}
	score, err := h.deps.Repo.GetScore(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, score)
}

// ListNetworkScores handles GET /networks/{network}/scores.
func (h *Handler) ListNetworkScores(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w) {
		return
	}
	q, ok := parseHistoryQuery(w, r)
	if !ok {
		return
	}
	network := chi.URLParam(r, "network")
	history, err := h.trends.History(r.Context(), network, q.policy, q.since, q.limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if history == nil {
		history = []*domain.ScoreSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"network": network,
		"scores":  history,
		"count":   len(history),
	})
}

// NetworkTrend handles GET /networks/{network}/trend.
func (h *Handler) NetworkTrend(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w) {
		return
	}
	q, ok := parseHistoryQuery(w, r)
	if !ok {
		return
	}
	t, err := h.trends.Trend(r.Context(), chi.URLParam(r, "network"), q.policy, q.since)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

type historyQuery struct {
	policy string
	since  time.Time
	limit  int
}

func parseHistoryQuery(w http.ResponseWriter, r *http.Request) (historyQuery, bool) {
	q := historyQuery{policy: r.URL.Query().Get("policy")}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, &domain.ValidationError{Field: "limit", Reason: "must be a positive integer"})
			return q, false
		}
		q.limit = n
	}
	if v := r.URL.Query().Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, &domain.ValidationError{Field: "since", Reason: "must be an RFC 3339 timestamp"})
			return q, false
		}
		q.since = t
	}
	return q, true
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := "healthy"
	checks := map[string]string{}

	check := func(name string, ping func(context.Context) error) {
		if err := ping(ctx); err != nil {
			status = "degraded"
			checks[name] = err.Error()
			return
		}
		checks[name] = "ok"
	}
	if h.deps.Repo != nil {
		check("repository", h.deps.Repo.Ping)
	}
	if h.deps.Cache != nil {
		check("cache", h.deps.Cache.Ping)
	}
	if h.deps.Bus != nil {
		check("bus", h.deps.Bus.Ping)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  status,
		"version": h.deps.Version,
		"checks":  checks,
	})
}

// Ready returns whether the server is ready to accept traffic: at least one
// scoring policy must be registered.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	count := h.deps.Registry.Count()
	if count == 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ready": false, "policies": 0})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ready": true, "policies": count})
}

// ListPolicies returns every registered scoring policy.
func (h *Handler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	policies := h.deps.Registry.List()
	writeJSON(w, http.StatusOK, map[string]any{
		"policies":      policies,
		"count":         len(policies),
		"defaultPolicy": h.deps.DefaultPolicy,
	})
}

// GetPolicy returns one policy; ?version= selects a version, else the latest.
func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	policy, err := h.deps.Registry.Get(chi.URLParam(r, "id"), r.URL.Query().Get("version"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error(), Kind: "not_found"})
		return
	}
	writeJSON(w, http.StatusOK, policy)
}

// CreatePolicy validates, persists and registers a new policy version.
// Stored versions are immutable; posting different content under an
// existing (id, version) is a conflict.
func (h *Handler) CreatePolicy(w http.ResponseWriter, r *http.Request) {
	var policy domain.ScoringPolicy
	if !decodeJSON(w, r, &policy) {
		return
	}
	if err := policy.Validate(); err != nil {
		writeError(w, err)
		return
	}

	added, err := h.deps.Registry.Add(&policy)
	if err != nil {
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error(), Kind: "conflict"})
		return
	}
	if h.deps.Repo != nil {
		if err := h.deps.Repo.SavePolicy(r.Context(), &policy); err != nil {
			if added {
				h.deps.Registry.Unregister(policy.ID, policy.Version)
			}
			slog.Warn("policy not persisted, registration rolled back",
				"id", policy.ID, "version", policy.Version, "error", err)
			writeError(w, err)
			return
		}
	}

	slog.Info("policy created", "id", policy.ID, "version", policy.Version)
	writeJSON(w, http.StatusCreated, map[string]any{
		"policy":  &policy,
		"message": "Policy registered. Other replicas pick it up on POST /policies/reload.",
	})
}

// ReloadPolicies registers every enabled policy stored in the repository.
func (h *Handler) ReloadPolicies(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w) {
		return
	}
	stored, err := h.deps.Repo.ListPolicies(r.Context())
	if err != nil {
		slog.Error("failed to list policies from database", "error", err)
		writeError(w, err)
		return
	}
	if err := h.deps.Registry.Load(stored); err != nil {
		slog.Error("failed to reload policies", "error", err)
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error(), Kind: "conflict"})
		return
	}

	slog.Info("policies reloaded from database", "count", len(stored))
	writeJSON(w, http.StatusOK, map[string]any{
		"message":    "policies reloaded successfully",
		"count":      len(stored),
		"registered": h.deps.Registry.Count(),
	})
}

func (h *Handler) requireRepo(w http.ResponseWriter) bool {
	if h.deps.Repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{
			Error: "repository not available", Kind: "unavailable",
		})
		return false
	}
	return true
}

type errorBody struct {
	Error         string   `json:"error"`
	Kind          string   `json:"kind"`
	FailedModules []string `json:"failedModules,omitempty"`
}

// writeError maps the error taxonomy to an HTTP status.
func writeError(w http.ResponseWriter, err error) {
	report := pipeline.Explain(err)
	body := errorBody{Error: report.Error, Kind: report.Kind, FailedModules: report.FailedModules}

	var maxBytes *http.MaxBytesError
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, repository.ErrNotFound):
		status, body.Kind = http.StatusNotFound, "not_found"
	case errors.Is(err, repository.ErrConflict):
		status, body.Kind = http.StatusConflict, "conflict"
	case errors.Is(err, repository.ErrInvalidInput):
		status, body.Kind = http.StatusBadRequest, "invalid_input"
	case errors.As(err, &maxBytes):
		status, body.Kind = http.StatusRequestEntityTooLarge, "too_large"
	case errors.Is(err, context.DeadlineExceeded):
		status, body.Kind = http.StatusGatewayTimeout, "timeout"
	default:
		switch report.Kind {
		case "validation", "insufficient_data", "degenerate_input", "upstream":
			status = http.StatusUnprocessableEntity
		case "configuration":
			status = http.StatusBadRequest
		}
	}
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
	}
	writeJSON(w, status, body)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			writeError(w, err)
			return false
		}
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON request body", Kind: "invalid_input"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
