package httpadapter

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/docflowlabs/docqc/internal/core/domain"
	"github.com/docflowlabs/docqc/internal/core/ports"
	"github.com/docflowlabs/docqc/internal/core/usecase"
	"github.com/docflowlabs/docqc/internal/observability/metrics"
)

const actorHeader = "X-Actor-Id"

// TrafficConfig tunes the rate-limit and backpressure gates in front of the
// API.
type TrafficConfig struct {
	RateLimitRPS     float64
	RateLimitBurst   int
	MaxConcurrent    int
	BackpressureWait time.Duration
}

type Router struct {
	service string
	review  ports.ReviewService
	docs    ports.DocumentReader
	queue   ports.QueueReader
	monitor ports.AccuracyMonitor
	calc    *usecase.ConfidenceCalculator
	route   *usecase.ProcessingRouter
	metrics *metrics.HTTPServerMetrics
	traffic TrafficConfig
}

func NewRouter(
	service string,
	review ports.ReviewService,
	docs ports.DocumentReader,
	queue ports.QueueReader,
	monitor ports.AccuracyMonitor,
	calc *usecase.ConfidenceCalculator,
	route *usecase.ProcessingRouter,
	m *metrics.HTTPServerMetrics,
	traffic TrafficConfig,
) *Router {
	return &Router{
		service: service,
		review:  review,
		docs:    docs,
		queue:   queue,
		monitor: monitor,
		calc:    calc,
		route:   route,
		metrics: m,
		traffic: traffic,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/confidence/score", rt.scoreConfidence)
	mux.HandleFunc("/v1/documents/", rt.documentRoutes)
	mux.HandleFunc("/v1/queue", rt.listQueue)
	mux.HandleFunc("/v1/escalations/", rt.escalationRoutes)
	mux.HandleFunc("/v1/monitoring/pass", rt.runMonitoringPass)
	mux.HandleFunc("/v1/monitoring/rules/", rt.ruleDropRoutes)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.traffic.MaxConcurrent, rt.traffic.BackpressureWait)
	handler = rateLimitMiddleware(handler, rt.traffic.RateLimitRPS, rt.traffic.RateLimitBurst)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(rt.service, handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// scoreConfidence computes a confidence preview for an extraction snapshot
// without persisting anything.
func (rt *Router) scoreConfidence(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		Fields         map[string]domain.FieldExtraction `json:"fields"`
		CriticalFields []string                          `json:"criticalFields"`
		Histories      map[string]domain.FieldHistory    `json:"histories"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if len(req.Fields) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "fields are required"})
		return
	}

	confidence := rt.calc.CalculateWeightedDocumentConfidence(req.Fields, req.CriticalFields, req.Histories)
	decision := rt.route.Route(confidence)

	if rt.metrics != nil {
		rt.metrics.RecordDocumentScored(rt.service, string(confidence.Level))
		rt.metrics.RecordDocumentRouted(rt.service, string(decision.Path))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"confidence":     confidence,
		"processingPath": decision.Path,
		"priority":       decision.Priority,
	})
}

// listQueue returns pending review work, most uncertain documents first.
func (rt *Router) listQueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	entries, err := rt.queue.NextPending(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// documentRoutes dispatches /v1/documents/{id} and its review
// sub-resources.
func (rt *Router) documentRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/documents/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "document id is required"})
		return
	}

	switch sub {
	case "":
		rt.getDocument(w, r, id)
	case "corrections":
		rt.correctDocument(w, r, id)
	case "escalate":
		rt.escalateDocument(w, r, id)
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	}
}

func (rt *Router) getDocument(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	doc, err := rt.docs.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	fields, err := rt.docs.GetExtraction(r.Context(), id)
	if err != nil && !domain.IsKind(err, domain.ErrNotFound) {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"document": doc,
		"fields":   fields,
	})
}

func (rt *Router) correctDocument(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		Corrections []ports.FieldCorrection `json:"corrections"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	result, err := rt.review.Correct(r.Context(), ports.CorrectRequest{
		DocumentID:  id,
		Corrections: req.Corrections,
		ActorID:     actorID(r),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	if rt.metrics != nil {
		for _, c := range req.Corrections {
			correctionType := c.Type
			if correctionType == "" {
				correctionType = domain.CorrectionNormal
			}
			rt.metrics.RecordCorrections(rt.service, string(correctionType), 1)
		}
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) escalateDocument(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		Reason       domain.EscalationReason `json:"reason"`
		ReasonDetail string                  `json:"reasonDetail"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	result, err := rt.review.Escalate(r.Context(), ports.EscalateRequest{
		DocumentID:   id,
		Reason:       req.Reason,
		ReasonDetail: req.ReasonDetail,
		ActorID:      actorID(r),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	if rt.metrics != nil {
		rt.metrics.RecordEscalation(rt.service, string(req.Reason))
	}
	writeJSON(w, http.StatusCreated, result)
}

func (rt *Router) escalationRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/escalations/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" || sub != "resolve" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		Decision    domain.ResolutionDecision `json:"decision"`
		Corrections []ports.FieldCorrection   `json:"corrections"`
		Notes       string                    `json:"notes"`
		Suggestion  *domain.RuleSuggestion    `json:"suggestion"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	result, err := rt.review.Resolve(r.Context(), ports.ResolveRequest{
		EscalationID: id,
		Decision:     req.Decision,
		Corrections:  req.Corrections,
		Notes:        req.Notes,
		Suggestion:   req.Suggestion,
		ActorID:      actorID(r),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	if rt.metrics != nil {
		rt.metrics.RecordResolution(rt.service, string(req.Decision))
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) runMonitoringPass(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	result, err := rt.monitor.RunMonitoringPass(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ruleDropRoutes serves GET /v1/monitoring/rules/{rule_id}/drop.
func (rt *Router) ruleDropRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/monitoring/rules/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" || sub != "drop" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	result, err := rt.monitor.DetectAccuracyDrop(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func actorID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(actorHeader))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}
