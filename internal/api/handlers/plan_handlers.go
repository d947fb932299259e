package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gorax/flowengine/internal/analytics"
	"github.com/gorax/flowengine/internal/api/response"
	"github.com/gorax/flowengine/internal/workflow"
)

// PlanService defines the subset of workflow.PlanService's methods the
// execution endpoints need, as a seam for testing (matches the teacher's
// ExecutionService/interface-per-handler convention above).
type PlanService interface {
	Submit(ctx context.Context, workflowID, workflowName string, def *workflow.WorkflowDefinition, executionMode string, payload json.RawMessage) (*workflow.SubmitResult, error)
	Cancel(ctx context.Context, executionID string) (*workflow.CancelResult, error)
	RerunFull(ctx context.Context, originalExecutionID string, def *workflow.WorkflowDefinition) (*workflow.RerunResult, error)
	RerunFromNode(ctx context.Context, originalExecutionID string, def *workflow.WorkflowDefinition, fromNodeID string) (*workflow.RerunResult, error)
	RerunFromFailed(ctx context.Context, originalExecutionID string, def *workflow.WorkflowDefinition) (*workflow.RerunResult, error)
}

// PlanRepository is the read-side seam backing list/get/nodes/timeline/
// metrics/bottlenecks, matching workflow.PlanRepository's method set.
type PlanRepository interface {
	GetExecution(ctx context.Context, executionID string) (*workflow.ExecutionRecord, error)
	ListExecutions(ctx context.Context, workflowID string) ([]*workflow.ExecutionRecord, error)
	ListNodeExecutions(ctx context.Context, executionID string) ([]*workflow.NodeExecutionRecord, error)
}

// AnalyticsTrendsProvider backs GET /api/analytics/trends, matching
// analytics.Service.GetExecutionTrends's signature directly so cmd/api can
// wire the real service with no adapter.
type AnalyticsTrendsProvider interface {
	GetExecutionTrends(ctx context.Context, tenantID string, timeRange analytics.TimeRange, granularity analytics.Granularity) (*analytics.ExecutionTrends, error)
}

// TrendPoint is one daily bucket of the spec §6 trends response, decimal
// success_rate in [0,1] and an ISO-8601 start-of-day date.
type TrendPoint struct {
	Date        string  `json:"date"`
	Total       int     `json:"total"`
	Successful  int     `json:"successful"`
	Failed      int     `json:"failed"`
	SuccessRate float64 `json:"success_rate"`
}

// executeRequestBody is the POST /api/execute body.
type executeRequestBody struct {
	Workflow *workflow.WorkflowDefinition `json:"workflow"`
	ID       string                       `json:"id"`
	Name     string                       `json:"name"`
}

// PlanHandler serves the execution surface of spec §6, returning snake_case
// JSON and `{"detail": "..."}` errors — a deliberate divergence from the
// rest of this package's {error,code,details} APIError envelope, confined
// to these routes per the external contract.
type PlanHandler struct {
	plans     PlanService
	repo      PlanRepository
	analytics AnalyticsTrendsProvider
	logger    *slog.Logger
}

func NewPlanHandler(plans PlanService, repo PlanRepository, analytics AnalyticsTrendsProvider, logger *slog.Logger) *PlanHandler {
	return &PlanHandler{plans: plans, repo: repo, analytics: analytics, logger: logger}
}

// Execute handles POST /api/execute?execution_mode=<mode>.
func (h *PlanHandler) Execute(w http.ResponseWriter, r *http.Request) {
	var body executeRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		response.DetailError(w, h.logger, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if body.Workflow == nil {
		response.DetailError(w, h.logger, http.StatusBadRequest, "workflow is required")
		return
	}

	mode := r.URL.Query().Get("execution_mode")
	result, err := h.plans.Submit(r.Context(), body.ID, body.Name, body.Workflow, mode, mustMarshal(body.Workflow))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	response.Raw(w, h.logger, http.StatusAccepted, map[string]any{
		"execution_id": result.ExecutionID,
		"status":       result.Status,
		"total_nodes":  result.TotalNodes,
		"message":      "execution started",
	})
}

// ListExecutions handles GET /api/executions?workflow_id=<id>.
func (h *PlanHandler) ListExecutions(w http.ResponseWriter, r *http.Request) {
	workflowID := r.URL.Query().Get("workflow_id")
	recs, err := h.repo.ListExecutions(r.Context(), workflowID)
	if err != nil {
		response.DetailError(w, h.logger, http.StatusInternalServerError, err.Error())
		return
	}

	summaries := make([]workflow.ExecutionSummary, 0, len(recs))
	for _, rec := range recs {
		summaries = append(summaries, rec.ToSummary())
	}
	response.Raw(w, h.logger, http.StatusOK, summaries)
}

// GetExecution handles GET /api/execution/{id}.
func (h *PlanHandler) GetExecution(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := h.repo.GetExecution(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	response.Raw(w, h.logger, http.StatusOK, rec.ToSummary())
}

// ListNodes handles GET /api/executions/{id}/nodes.
func (h *PlanHandler) ListNodes(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	nodes, err := h.repo.ListNodeExecutions(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	summaries := make([]workflow.NodeExecutionSummary, 0, len(nodes))
	for _, n := range nodes {
		summaries = append(summaries, n.ToSummary())
	}
	response.Raw(w, h.logger, http.StatusOK, summaries)
}

// Timeline handles GET /api/executions/{id}/timeline.
func (h *PlanHandler) Timeline(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	exec, err := h.repo.GetExecution(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	nodes, err := h.repo.ListNodeExecutions(r.Context(), id)
	if err != nil {
		response.DetailError(w, h.logger, http.StatusInternalServerError, err.Error())
		return
	}

	summary := exec.ToSummary()
	nodeSummaries := make([]workflow.NodeExecutionSummary, 0, len(nodes))
	for _, n := range nodes {
		nodeSummaries = append(nodeSummaries, n.ToSummary())
	}

	response.Raw(w, h.logger, http.StatusOK, map[string]any{
		"execution_id":        summary.ExecutionID,
		"workflow_status":     summary.Status,
		"workflow_start_time": summary.StartTime,
		"workflow_end_time":   summary.EndTime,
		"nodes":               nodeSummaries,
	})
}

// Metrics handles GET /api/executions/{id}/metrics.
func (h *PlanHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	exec, err := h.repo.GetExecution(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	nodes, err := h.repo.ListNodeExecutions(r.Context(), id)
	if err != nil {
		response.DetailError(w, h.logger, http.StatusInternalServerError, err.Error())
		return
	}

	nodeSummaries := make([]workflow.NodeExecutionSummary, 0, len(nodes))
	for _, n := range nodes {
		nodeSummaries = append(nodeSummaries, n.ToSummary())
	}

	response.Raw(w, h.logger, http.StatusOK, map[string]any{
		"workflow_metrics": exec.ToSummary(),
		"node_metrics":     nodeSummaries,
	})
}

// Bottlenecks handles GET /api/executions/{id}/bottlenecks?top_n=<n>.
func (h *PlanHandler) Bottlenecks(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	topN := 5
	if raw := r.URL.Query().Get("top_n"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			topN = n
		}
	}

	nodes, err := h.repo.ListNodeExecutions(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i].ExecutionTimeMs.Int64 > nodes[j].ExecutionTimeMs.Int64
	})
	if topN > len(nodes) {
		topN = len(nodes)
	}

	out := make([]map[string]any, 0, topN)
	for _, n := range nodes[:topN] {
		s := n.ToSummary()
		out = append(out, map[string]any{
			"node_id":           s.NodeID,
			"node_label":        s.NodeLabel,
			"execution_time_ms": s.ExecutionTimeMs,
			"status":            s.Status,
		})
	}
	response.Raw(w, h.logger, http.StatusOK, out)
}

// Cancel handles POST /api/executions/{id}/cancel.
func (h *PlanHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	result, err := h.plans.Cancel(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	response.Raw(w, h.logger, http.StatusOK, result)
}

// Rerun handles POST /api/executions/{id}/rerun?from_node_id=<id>.
func (h *PlanHandler) Rerun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	fromNodeID := r.URL.Query().Get("from_node_id")
	fromFailed := r.URL.Query().Get("from_failed") == "true"

	var body struct {
		Workflow *workflow.WorkflowDefinition `json:"workflow"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	if body.Workflow == nil {
		response.DetailError(w, h.logger, http.StatusBadRequest, "workflow is required to rebuild the rerun plan")
		return
	}

	var (
		result *workflow.RerunResult
		err    error
	)
	switch {
	case fromFailed:
		result, err = h.plans.RerunFromFailed(r.Context(), id, body.Workflow)
	case fromNodeID != "":
		result, err = h.plans.RerunFromNode(r.Context(), id, body.Workflow, fromNodeID)
	default:
		result, err = h.plans.RerunFull(r.Context(), id, body.Workflow)
	}
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	response.Raw(w, h.logger, http.StatusAccepted, result)
}

// AnalyticsTrends handles GET /api/analytics/trends?days=<n>.
func (h *PlanHandler) AnalyticsTrends(w http.ResponseWriter, r *http.Request) {
	days := 7
	if raw := r.URL.Query().Get("days"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			days = n
		}
	}
	tenantID := r.URL.Query().Get("tenant_id")

	now := time.Now().UTC()
	timeRange := analytics.TimeRange{StartDate: now.AddDate(0, 0, -days), EndDate: now}
	trends, err := h.analytics.GetExecutionTrends(r.Context(), tenantID, timeRange, analytics.GranularityDay)
	if err != nil {
		response.DetailError(w, h.logger, http.StatusInternalServerError, err.Error())
		return
	}

	points := make([]TrendPoint, 0, len(trends.DataPoints))
	for _, p := range trends.DataPoints {
		points = append(points, TrendPoint{
			Date:        p.Timestamp.UTC().Format("2006-01-02T00:00:00.000+00:00"),
			Total:       p.ExecutionCount,
			Successful:  p.SuccessCount,
			Failed:      p.FailureCount,
			SuccessRate: p.SuccessRate,
		})
	}
	response.Raw(w, h.logger, http.StatusOK, map[string]any{"trends": points})
}

// writeDomainError maps the core's typed errors onto the spec's three
// status codes (§7): 400 for input/validation, 404 for missing, 500
// otherwise.
func (h *PlanHandler) writeDomainError(w http.ResponseWriter, err error) {
	switch err.(type) {
	case *workflow.GraphValidationError:
		response.DetailError(w, h.logger, http.StatusBadRequest, err.Error())
		return
	}
	if err == workflow.ErrNotFound {
		response.DetailError(w, h.logger, http.StatusNotFound, err.Error())
		return
	}
	h.logger.Error("plan handler error", "error", err)
	response.DetailError(w, h.logger, http.StatusInternalServerError, err.Error())
}

func mustMarshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("{}")
	}
	return b
}
