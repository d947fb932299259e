package handlers

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/gorax/flowengine/internal/workflow"
)

type MockPlanService struct{ mock.Mock }

func (m *MockPlanService) Submit(ctx context.Context, workflowID, workflowName string, def *workflow.WorkflowDefinition, executionMode string, payload json.RawMessage) (*workflow.SubmitResult, error) {
	args := m.Called(ctx, workflowID, workflowName, def, executionMode, payload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*workflow.SubmitResult), args.Error(1)
}

func (m *MockPlanService) Cancel(ctx context.Context, executionID string) (*workflow.CancelResult, error) {
	args := m.Called(ctx, executionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*workflow.CancelResult), args.Error(1)
}

func (m *MockPlanService) RerunFull(ctx context.Context, originalExecutionID string, def *workflow.WorkflowDefinition) (*workflow.RerunResult, error) {
	args := m.Called(ctx, originalExecutionID, def)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*workflow.RerunResult), args.Error(1)
}

func (m *MockPlanService) RerunFromNode(ctx context.Context, originalExecutionID string, def *workflow.WorkflowDefinition, fromNodeID string) (*workflow.RerunResult, error) {
	args := m.Called(ctx, originalExecutionID, def, fromNodeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*workflow.RerunResult), args.Error(1)
}

func (m *MockPlanService) RerunFromFailed(ctx context.Context, originalExecutionID string, def *workflow.WorkflowDefinition) (*workflow.RerunResult, error) {
	args := m.Called(ctx, originalExecutionID, def)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*workflow.RerunResult), args.Error(1)
}

type MockPlanRepository struct{ mock.Mock }

func (m *MockPlanRepository) GetExecution(ctx context.Context, executionID string) (*workflow.ExecutionRecord, error) {
	args := m.Called(ctx, executionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*workflow.ExecutionRecord), args.Error(1)
}

func (m *MockPlanRepository) ListExecutions(ctx context.Context, workflowID string) ([]*workflow.ExecutionRecord, error) {
	args := m.Called(ctx, workflowID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*workflow.ExecutionRecord), args.Error(1)
}

func (m *MockPlanRepository) ListNodeExecutions(ctx context.Context, executionID string) ([]*workflow.NodeExecutionRecord, error) {
	args := m.Called(ctx, executionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*workflow.NodeExecutionRecord), args.Error(1)
}

func newTestPlanHandler() (*PlanHandler, *MockPlanService, *MockPlanRepository) {
	mockService := new(MockPlanService)
	mockRepo := new(MockPlanRepository)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	handler := NewPlanHandler(mockService, mockRepo, nil, logger)
	return handler, mockService, mockRepo
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
}

func TestPlanHandlerExecuteSuccess(t *testing.T) {
	handler, svc, _ := newTestPlanHandler()
	def := &workflow.WorkflowDefinition{Nodes: []workflow.Node{{ID: "a", Type: "t"}}}

	svc.On("Submit", mock.Anything, "wf1", "my workflow", mock.AnythingOfType("*workflow.WorkflowDefinition"), "async", mock.Anything).
		Return(&workflow.SubmitResult{ExecutionID: "exec1", Status: "running", TotalNodes: 1}, nil)

	body, _ := json.Marshal(map[string]any{"id": "wf1", "name": "my workflow", "workflow": def})
	req := httptest.NewRequest(http.MethodPost, "/api/execute?execution_mode=async", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	handler.Execute(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	var out map[string]any
	decodeBody(t, rec, &out)
	assert.Equal(t, "exec1", out["execution_id"])
	assert.Equal(t, "running", out["status"])
}

func TestPlanHandlerExecuteMissingWorkflowIsBadRequest(t *testing.T) {
	handler, svc, _ := newTestPlanHandler()

	req := httptest.NewRequest(http.MethodPost, "/api/execute", bytes.NewReader([]byte(`{"id":"wf1"}`)))
	rec := httptest.NewRecorder()

	handler.Execute(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var out map[string]any
	decodeBody(t, rec, &out)
	assert.Contains(t, out["detail"], "workflow is required")
	svc.AssertNotCalled(t, "Submit")
}

func TestPlanHandlerExecutePropagatesValidationErrorAsBadRequest(t *testing.T) {
	handler, svc, _ := newTestPlanHandler()
	def := &workflow.WorkflowDefinition{Nodes: []workflow.Node{{ID: "a", Type: "t"}}}

	svc.On("Submit", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, &workflow.GraphValidationError{Message: "duplicate node id"})

	body, _ := json.Marshal(map[string]any{"id": "wf1", "workflow": def})
	req := httptest.NewRequest(http.MethodPost, "/api/execute", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	handler.Execute(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPlanHandlerGetExecutionNotFoundReturns404(t *testing.T) {
	handler, _, repo := newTestPlanHandler()
	repo.On("GetExecution", mock.Anything, "ghost").Return(nil, workflow.ErrNotFound)

	req := httptest.NewRequest(http.MethodGet, "/api/execution/ghost", nil)
	req = withURLParam(req, "id", "ghost")
	rec := httptest.NewRecorder()

	handler.GetExecution(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPlanHandlerGetExecutionSuccess(t *testing.T) {
	handler, _, repo := newTestPlanHandler()
	repo.On("GetExecution", mock.Anything, "exec1").Return(&workflow.ExecutionRecord{
		ExecutionID: "exec1", WorkflowID: "wf1", Status: "success", StartTime: 1000,
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/execution/exec1", nil)
	req = withURLParam(req, "id", "exec1")
	rec := httptest.NewRecorder()

	handler.GetExecution(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var out map[string]any
	decodeBody(t, rec, &out)
	assert.Equal(t, "exec1", out["execution_id"])
	assert.Equal(t, "success", out["status"])
}

func TestPlanHandlerCancelSuccess(t *testing.T) {
	handler, svc, _ := newTestPlanHandler()
	svc.On("Cancel", mock.Anything, "exec1").Return(&workflow.CancelResult{Status: "cancel_requested", ExecutionID: "exec1"}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/executions/exec1/cancel", nil)
	req = withURLParam(req, "id", "exec1")
	rec := httptest.NewRecorder()

	handler.Cancel(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var out workflow.CancelResult
	decodeBody(t, rec, &out)
	assert.Equal(t, "cancel_requested", out.Status)
}

func TestPlanHandlerRerunDefaultsToFull(t *testing.T) {
	handler, svc, _ := newTestPlanHandler()
	def := &workflow.WorkflowDefinition{Nodes: []workflow.Node{{ID: "a", Type: "t"}}}
	svc.On("RerunFull", mock.Anything, "exec1", mock.AnythingOfType("*workflow.WorkflowDefinition")).
		Return(&workflow.RerunResult{Status: "queued", OriginalExecutionID: "exec1", NewExecutionID: "exec2"}, nil)

	body, _ := json.Marshal(map[string]any{"workflow": def})
	req := httptest.NewRequest(http.MethodPost, "/api/executions/exec1/rerun", bytes.NewReader(body))
	req = withURLParam(req, "id", "exec1")
	rec := httptest.NewRecorder()

	handler.Rerun(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	svc.AssertCalled(t, "RerunFull", mock.Anything, "exec1", mock.Anything)
}

func TestPlanHandlerRerunFromNodeUsesQueryParam(t *testing.T) {
	handler, svc, _ := newTestPlanHandler()
	def := &workflow.WorkflowDefinition{Nodes: []workflow.Node{{ID: "a", Type: "t"}}}
	svc.On("RerunFromNode", mock.Anything, "exec1", mock.AnythingOfType("*workflow.WorkflowDefinition"), "b").
		Return(&workflow.RerunResult{Status: "queued", OriginalExecutionID: "exec1", NewExecutionID: "exec2", FromNodeID: "b"}, nil)

	body, _ := json.Marshal(map[string]any{"workflow": def})
	req := httptest.NewRequest(http.MethodPost, "/api/executions/exec1/rerun?from_node_id=b", bytes.NewReader(body))
	req = withURLParam(req, "id", "exec1")
	rec := httptest.NewRecorder()

	handler.Rerun(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	svc.AssertCalled(t, "RerunFromNode", mock.Anything, "exec1", mock.Anything, "b")
}

func TestPlanHandlerRerunFromFailedUsesQueryFlag(t *testing.T) {
	handler, svc, _ := newTestPlanHandler()
	def := &workflow.WorkflowDefinition{Nodes: []workflow.Node{{ID: "a", Type: "t"}}}
	svc.On("RerunFromFailed", mock.Anything, "exec1", mock.AnythingOfType("*workflow.WorkflowDefinition")).
		Return(&workflow.RerunResult{Status: "queued", OriginalExecutionID: "exec1", NewExecutionID: "exec2"}, nil)

	body, _ := json.Marshal(map[string]any{"workflow": def})
	req := httptest.NewRequest(http.MethodPost, "/api/executions/exec1/rerun?from_failed=true", bytes.NewReader(body))
	req = withURLParam(req, "id", "exec1")
	rec := httptest.NewRecorder()

	handler.Rerun(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	svc.AssertCalled(t, "RerunFromFailed", mock.Anything, "exec1", mock.Anything)
}

func TestPlanHandlerRerunMissingWorkflowIsBadRequest(t *testing.T) {
	handler, svc, _ := newTestPlanHandler()

	req := httptest.NewRequest(http.MethodPost, "/api/executions/exec1/rerun", bytes.NewReader([]byte(`{}`)))
	req = withURLParam(req, "id", "exec1")
	rec := httptest.NewRecorder()

	handler.Rerun(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	svc.AssertNotCalled(t, "RerunFull")
}

func TestPlanHandlerListNodesSuccess(t *testing.T) {
	handler, _, repo := newTestPlanHandler()
	repo.On("ListNodeExecutions", mock.Anything, "exec1").Return([]*workflow.NodeExecutionRecord{
		{ID: "r1", ExecutionID: "exec1", NodeID: "a", Status: "success", StartTime: 1000},
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/executions/exec1/nodes", nil)
	req = withURLParam(req, "id", "exec1")
	rec := httptest.NewRecorder()

	handler.ListNodes(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var out []map[string]any
	decodeBody(t, rec, &out)
	require.Len(t, out, 1)
	assert.Equal(t, "a", out[0]["node_id"])
}

func TestPlanHandlerBottlenecksRespectsTopN(t *testing.T) {
	handler, _, repo := newTestPlanHandler()
	repo.On("ListNodeExecutions", mock.Anything, "exec1").Return([]*workflow.NodeExecutionRecord{
		{ID: "r1", NodeID: "slow", Status: "success", StartTime: 1000, ExecutionTimeMs: sql.NullInt64{Int64: 500, Valid: true}},
		{ID: "r2", NodeID: "fast", Status: "success", StartTime: 1000, ExecutionTimeMs: sql.NullInt64{Int64: 10, Valid: true}},
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/executions/exec1/bottlenecks?top_n=1", nil)
	req = withURLParam(req, "id", "exec1")
	rec := httptest.NewRecorder()

	handler.Bottlenecks(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var out []map[string]any
	decodeBody(t, rec, &out)
	require.Len(t, out, 1)
	assert.Equal(t, "slow", out[0]["node_id"])
}
