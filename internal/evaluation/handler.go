package evaluation

import (
	"encoding/json"
	"net/http"

	"github.com/ricesearch/rice-eval/internal/corpus"
	"github.com/ricesearch/rice-eval/internal/pkg/errors"
	"github.com/ricesearch/rice-eval/internal/pkg/logger"
	"github.com/ricesearch/rice-eval/internal/pkg/security"
)

// Handler provides HTTP handlers for evaluation against an indexed backend.
type Handler struct {
	harness *Harness
	cutoffs []int
	log     *logger.Logger
}

// NewHandler creates a new evaluation handler. cutoffs are used when a
// request does not specify its own.
func NewHandler(h *Harness, cutoffs []int, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Discard()
	}
	return &Handler{harness: h, cutoffs: cutoffs, log: log}
}

// RegisterRoutes registers evaluation routes.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/evaluation/evaluate", h.handleEvaluate)
	mux.HandleFunc("GET /healthz", h.handleHealth)
}

// EvaluateRequest is the body of POST /v1/evaluation/evaluate.
type EvaluateRequest struct {
	Scenarios []corpus.Scenario `json:"scenarios"`
	Cutoffs   []int             `json:"cutoffs,omitempty"`
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status    string `json:"status"`
	Backend   string `json:"backend"`
	Documents int    `json:"documents"`
}

func (h *Handler) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, security.MaxRequestSize)

	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, errors.ValidationError("invalid request body: "+err.Error()))
		return
	}

	if err := validateRequest(req); err != nil {
		errors.WriteError(w, err)
		return
	}

	cutoffs := req.Cutoffs
	if len(cutoffs) == 0 {
		cutoffs = h.cutoffs
	}

	report, err := h.harness.Evaluate(r.Context(), req.Scenarios, cutoffs)
	if err != nil {
		h.log.WithError(err).Warn("Evaluation request failed", "scenarios", len(req.Scenarios))
		errors.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(report)
}

func validateRequest(req EvaluateRequest) error {
	if err := security.ValidateScenarioCount(len(req.Scenarios)); err != nil {
		return err
	}
	for i, sc := range req.Scenarios {
		err := security.ValidateQuery(sc.Query)
		if err == nil {
			err = security.ValidateDocumentID(sc.ExpectedID)
		}
		if err != nil {
			if appErr, ok := errors.As(err); ok {
				appErr.WithScenario(i)
			}
			return err
		}
	}
	return security.ValidateCutoffs(req.Cutoffs)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	n, err := h.harness.Backend().Count(r.Context())
	if err != nil {
		errors.WriteError(w, err)
		return
	}

	status := "ok"
	code := http.StatusOK
	if n == 0 {
		status = "empty"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(HealthResponse{
		Status:    status,
		Backend:   h.harness.Name(),
		Documents: n,
	})
}
