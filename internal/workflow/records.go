package workflow

import (
	"database/sql"
	"encoding/json"
	"time"
)

// ExecutionRecord is the persisted workflow_executions row (spec §3). It is
// additive to the teacher's existing Execution row: Execution continues to
// back the CRUD-oriented workflow editor paths, while ExecutionRecord is the
// shape the core planner/job-builder/listener pipeline reads and writes.
type ExecutionRecord struct {
	ExecutionID      string          `db:"execution_id" json:"execution_id"`
	WorkflowID       string          `db:"workflow_id" json:"workflow_id"`
	WorkflowName     string          `db:"workflow_name" json:"workflow_name"`
	Status           string          `db:"status" json:"status"`
	StartTime        int64           `db:"start_time" json:"start_time"`
	EndTime          sql.NullInt64   `db:"end_time" json:"-"`
	TotalNodes       int             `db:"total_nodes" json:"total_nodes"`
	CompletedNodes   int             `db:"completed_nodes" json:"completed_nodes"`
	SuccessfulNodes  int             `db:"successful_nodes" json:"successful_nodes"`
	FailedNodes      int             `db:"failed_nodes" json:"failed_nodes"`
	TotalRecords     int64           `db:"total_records_processed" json:"total_records_processed"`
	TotalExecMs      int64           `db:"total_execution_time_ms" json:"total_execution_time_ms"`
	ExecutionMode    string          `db:"execution_mode" json:"execution_mode"`
	PlanningStart    sql.NullInt64   `db:"planning_start_time" json:"-"`
	MaxParallelNodes sql.NullInt64   `db:"max_parallel_nodes" json:"-"`
	PeakWorkers      sql.NullInt64   `db:"peak_workers" json:"-"`
	InputRecords     sql.NullInt64   `db:"input_records" json:"-"`
	OutputRecords    sql.NullInt64   `db:"output_records" json:"-"`
	InputBytes       sql.NullInt64   `db:"input_bytes" json:"-"`
	OutputBytes      sql.NullInt64   `db:"output_bytes" json:"-"`
	Error            sql.NullString  `db:"error" json:"-"`
	WorkflowPayload  json.RawMessage `db:"workflow_payload" json:"-"`
}

// ExecutionSummary is the JSON shape ExecutionRecord renders to over the
// HTTP API: ISO-8601 timestamps, optional performance fields omitted (not
// null) when absent, per spec §6.
type ExecutionSummary struct {
	ExecutionID     string  `json:"execution_id"`
	WorkflowID      string  `json:"workflow_id"`
	WorkflowName    string  `json:"workflow_name"`
	Status          string  `json:"status"`
	StartTime       string  `json:"start_time"`
	EndTime         *string `json:"end_time,omitempty"`
	TotalNodes      int     `json:"total_nodes"`
	CompletedNodes  int     `json:"completed_nodes"`
	SuccessfulNodes int     `json:"successful_nodes"`
	FailedNodes     int     `json:"failed_nodes"`
	TotalRecords    int64   `json:"total_records_processed"`
	TotalExecMs     int64   `json:"total_execution_time_ms"`
	ExecutionMode   string  `json:"execution_mode"`
	Error           *string `json:"error,omitempty"`

	PlanningStartTime *string `json:"planning_start_time,omitempty"`
	MaxParallelNodes  *int64  `json:"max_parallel_nodes,omitempty"`
	PeakWorkers       *int64  `json:"peak_workers,omitempty"`
	InputRecords      *int64  `json:"input_records,omitempty"`
	OutputRecords     *int64  `json:"output_records,omitempty"`
	InputBytes        *int64  `json:"input_bytes,omitempty"`
	OutputBytes       *int64  `json:"output_bytes,omitempty"`
}

// ToSummary renders r as the API-facing ExecutionSummary, formatting
// millisecond epoch timestamps as ISO-8601 with a +00:00 offset and
// omitting absent optional fields rather than emitting null.
func (r *ExecutionRecord) ToSummary() ExecutionSummary {
	s := ExecutionSummary{
		ExecutionID:     r.ExecutionID,
		WorkflowID:      r.WorkflowID,
		WorkflowName:    r.WorkflowName,
		Status:          r.Status,
		StartTime:       formatEpochMs(r.StartTime),
		TotalNodes:      r.TotalNodes,
		CompletedNodes:  r.CompletedNodes,
		SuccessfulNodes: r.SuccessfulNodes,
		FailedNodes:     r.FailedNodes,
		TotalRecords:    r.TotalRecords,
		TotalExecMs:     r.TotalExecMs,
		ExecutionMode:   r.ExecutionMode,
	}
	if r.EndTime.Valid {
		formatted := formatEpochMs(r.EndTime.Int64)
		s.EndTime = &formatted
	}
	if r.Error.Valid {
		s.Error = &r.Error.String
	}
	if r.PlanningStart.Valid {
		formatted := formatEpochMs(r.PlanningStart.Int64)
		s.PlanningStartTime = &formatted
	}
	if r.MaxParallelNodes.Valid {
		s.MaxParallelNodes = &r.MaxParallelNodes.Int64
	}
	if r.PeakWorkers.Valid {
		s.PeakWorkers = &r.PeakWorkers.Int64
	}
	if r.InputRecords.Valid {
		s.InputRecords = &r.InputRecords.Int64
	}
	if r.OutputRecords.Valid {
		s.OutputRecords = &r.OutputRecords.Int64
	}
	if r.InputBytes.Valid {
		s.InputBytes = &r.InputBytes.Int64
	}
	if r.OutputBytes.Valid {
		s.OutputBytes = &r.OutputBytes.Int64
	}
	return s
}

func formatEpochMs(ms int64) string {
	return time.UnixMilli(ms).UTC().Format("2006-01-02T15:04:05.000+00:00")
}

// NodeExecutionRecord is the persisted node_executions row (spec §3).
type NodeExecutionRecord struct {
	ID               string         `db:"id" json:"id"`
	ExecutionID      string         `db:"execution_id" json:"execution_id"`
	NodeID           string         `db:"node_id" json:"node_id"`
	NodeLabel        string         `db:"node_label" json:"node_label"`
	NodeType         string         `db:"node_type" json:"node_type"`
	Status           string         `db:"status" json:"status"`
	StartTime        int64          `db:"start_time" json:"start_time"`
	EndTime          sql.NullInt64  `db:"end_time" json:"-"`
	ExecutionTimeMs  sql.NullInt64  `db:"execution_time_ms" json:"-"`
	RecordsProcessed int            `db:"records_processed" json:"records_processed"`
	RetryCount       int            `db:"retry_count" json:"retry_count"`
	ErrorMessage     sql.NullString `db:"error_message" json:"-"`
}

// NodeExecutionSummary is the JSON shape for GET .../nodes and .../timeline,
// including the derived records_per_second field spec §6 requires.
type NodeExecutionSummary struct {
	ID               string  `json:"id"`
	ExecutionID      string  `json:"execution_id"`
	NodeID           string  `json:"node_id"`
	NodeLabel        string  `json:"node_label"`
	NodeType         string  `json:"node_type"`
	Status           string  `json:"status"`
	StartTime        string  `json:"start_time"`
	EndTime          *string `json:"end_time,omitempty"`
	ExecutionTimeMs  *int64  `json:"execution_time_ms,omitempty"`
	RecordsProcessed int     `json:"records_processed"`
	RecordsPerSecond *int64  `json:"records_per_second,omitempty"`
	RetryCount       int     `json:"retry_count"`
	ErrorMessage     *string `json:"error_message,omitempty"`
}

func (n *NodeExecutionRecord) ToSummary() NodeExecutionSummary {
	s := NodeExecutionSummary{
		ID:               n.ID,
		ExecutionID:      n.ExecutionID,
		NodeID:           n.NodeID,
		NodeLabel:        n.NodeLabel,
		NodeType:         n.NodeType,
		Status:           n.Status,
		StartTime:        formatEpochMs(n.StartTime),
		RecordsProcessed: n.RecordsProcessed,
		RetryCount:       n.RetryCount,
	}
	if n.EndTime.Valid {
		formatted := formatEpochMs(n.EndTime.Int64)
		s.EndTime = &formatted
	}
	if n.ExecutionTimeMs.Valid {
		s.ExecutionTimeMs = &n.ExecutionTimeMs.Int64
		if n.ExecutionTimeMs.Int64 > 0 {
			rps := int64(n.RecordsProcessed) * 1000 / n.ExecutionTimeMs.Int64
			s.RecordsPerSecond = &rps
		}
	}
	if n.ErrorMessage.Valid {
		s.ErrorMessage = &n.ErrorMessage.String
	}
	return s
}
