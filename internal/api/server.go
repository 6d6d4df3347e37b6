// Package api provides the anchor engine's HTTP surface: a chi router
// wired with the standard middleware stack, exposing POST endpoints that
// call straight into the same constructors a Go caller would use. It adds
// no algorithmic behavior, only request/response plumbing.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/anchorlab/anchorengine/internal/config"
	"github.com/anchorlab/anchorengine/internal/demo"
	"github.com/anchorlab/anchorengine/internal/domain"
	"github.com/anchorlab/anchorengine/internal/infra/aggregator"
	"github.com/anchorlab/anchorengine/internal/infra/anchor"
	"github.com/anchorlab/anchorengine/internal/infra/coverage"
	"github.com/anchorlab/anchorengine/internal/store"
)

// Server is the anchor engine HTTP API.
type Server struct {
	cfg            config.Config
	store          *store.Store // nil disables persistence
	metricsEnabled bool
}

// NewServer builds a Server. store may be nil; callers that want
// construction runs recorded pass one built from internal/store.
func NewServer(cfg config.Config, st *store.Store) *Server {
	return &Server{cfg: cfg, store: st}
}

// EnableMetrics turns on the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/explain", s.handleExplain)
		r.Post("/globalpick", s.handleGlobalPick)
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// ─── Request/response shapes ────────────────────────────────────────────────

// ExplainRequest describes one instance to explain. Values are integers so
// the demo quadrant classifier/perturbation can run directly; a deployment
// wiring in real classifier/perturbation implementations would extend this
// with its own encoding.
type ExplainRequest struct {
	Features []int `json:"features"`
	Label    int   `json:"label"`
	Span     int   `json:"span,omitempty"`
}

// ExplainResponse is one construction run's outcome.
type ExplainResponse struct {
	RunID            string   `json:"run_id"`
	Features         []int    `json:"features"`
	Precision        float64  `json:"precision"`
	Coverage         *float64 `json:"coverage,omitempty"`
	IsAnchor         bool     `json:"is_anchor"`
	RoundsSearched   int      `json:"rounds_searched"`
	SearchDurationMS int64    `json:"search_duration_ms"`
}

// GlobalPickRequest describes a batch of instances for the aggregator pass.
type GlobalPickRequest struct {
	Instances [][]int `json:"instances"`
	Labels    []int   `json:"labels"`
	D         int     `json:"d,omitempty"`
	Span      int     `json:"span,omitempty"`
}

// GlobalPickResponse is one aggregator pass's selected subset.
type GlobalPickResponse struct {
	PassID string            `json:"pass_id"`
	Picks  []ExplainResponse `json:"picks"`
}

func (s *Server) handleExplain(w http.ResponseWriter, r *http.Request) {
	var req ExplainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(req.Features) == 0 {
		writeError(w, http.StatusBadRequest, domain.ErrInvalidArgument)
		return
	}

	ctx := r.Context()
	instance := demo.Instance(req.Features)
	perturb := demo.NewUniformOffsetPerturbation(instance, req.Span, time.Now().UnixNano())
	cov, err := coverage.New(ctx, perturb, s.cfg.Sampling.CoverageSamples)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	c := anchor.New(s.cfg.AnchorConfig(), demo.QuadrantClassifier{}, s.cfg.BanditIdentifier())
	result, err := c.Construct(ctx, instance, req.Label, perturb, cov)
	if err != nil && !errors.Is(err, domain.ErrNoAnchorFound) {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}

	resp := toExplainResponse(uuid.NewString(), *result)
	if s.store != nil {
		if err := s.store.RecordResult(ctx, resp.RunID, *result); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGlobalPick(w http.ResponseWriter, r *http.Request) {
	var req GlobalPickRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(req.Instances) != len(req.Labels) || len(req.Instances) == 0 {
		writeError(w, http.StatusBadRequest, domain.ErrInvalidArgument)
		return
	}

	ctx := r.Context()
	instances := make([]domain.DataInstance, len(req.Instances))
	for i, f := range req.Instances {
		instances[i] = demo.Instance(f)
	}
	basePerturb := demo.NewUniformOffsetPerturbation(instances[0], req.Span, 1)

	acfg := s.cfg.AggregatorConfig()
	agg := aggregator.New(acfg, demo.QuadrantClassifier{}, s.cfg.BanditIdentifier(), basePerturb)

	results, matrix, err := agg.Explain(ctx, instances, req.Labels)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}

	d := req.D
	if d <= 0 {
		d = s.cfg.Aggregator.D
	}
	picked := aggregator.SubmodularPick(matrix, d)

	passID := uuid.NewString()
	resp := GlobalPickResponse{PassID: passID}
	runIDs := make([]string, 0, len(picked))
	for _, idx := range picked {
		runID := uuid.NewString()
		runIDs = append(runIDs, runID)
		resp.Picks = append(resp.Picks, toExplainResponse(runID, results[idx]))
	}

	if s.store != nil {
		for i, idx := range picked {
			if err := s.store.RecordResult(ctx, runIDs[i], results[idx]); err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
		}
		if err := s.store.RecordPick(ctx, passID, "submodular", d, acfg.Mode.String(), atomIdentityName(acfg.Identity), runIDs); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func toExplainResponse(runID string, result domain.AnchorResult) ExplainResponse {
	return ExplainResponse{
		RunID:            runID,
		Features:         append([]int(nil), result.Candidate.Features...),
		Precision:        result.Candidate.Precision(),
		Coverage:         result.Candidate.Coverage,
		IsAnchor:         result.IsAnchor,
		RoundsSearched:   result.RoundsSearched,
		SearchDurationMS: result.SearchDuration.Milliseconds(),
	}
}

func atomIdentityName(id domain.AtomIdentity) string {
	if id == domain.AtomByFeatureValue {
		return "feature_value"
	}
	return "feature"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
