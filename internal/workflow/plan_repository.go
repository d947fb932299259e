package workflow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// PlanRepository persists ExecutionRecord/NodeExecutionRecord rows — the
// workflow_executions/node_executions tables of spec §3/§6 — alongside the
// teacher's existing Repository (which continues to own the workflows/
// executions CRUD tables). Grounded on Repository's sqlx query idiom
// ($N placeholders, QueryRowxContext+StructScan, RowsAffected checks).
type PlanRepository struct {
	db *sqlx.DB
}

func NewPlanRepository(db *sqlx.DB) *PlanRepository {
	return &PlanRepository{db: db}
}

// ErrPersistence wraps any row insert/update failure the core treats as a
// PersistenceError (spec §7): submit aborts with no partial row.
type ErrPersistence struct {
	Op  string
	Err error
}

func (e *ErrPersistence) Error() string { return fmt.Sprintf("persistence error during %s: %v", e.Op, e.Err) }
func (e *ErrPersistence) Unwrap() error { return e.Err }

// InsertExecution creates the workflow_executions row for a submitted plan.
// Fails with ErrPersistence (and returns it, never a partial row) if the
// insert affects zero rows.
func (r *PlanRepository) InsertExecution(ctx context.Context, rec *ExecutionRecord) error {
	query := `
		INSERT INTO workflow_executions
			(execution_id, workflow_id, workflow_name, status, start_time, total_nodes,
			 completed_nodes, successful_nodes, failed_nodes, total_records_processed,
			 total_execution_time_ms, execution_mode, workflow_payload)
		VALUES ($1, $2, $3, $4, $5, $6, 0, 0, 0, 0, 0, $7, $8)
	`
	res, err := r.db.ExecContext(ctx, query,
		rec.ExecutionID, rec.WorkflowID, rec.WorkflowName, rec.Status, rec.StartTime,
		rec.TotalNodes, rec.ExecutionMode, rec.WorkflowPayload,
	)
	if err != nil {
		return &ErrPersistence{Op: "insert execution", Err: err}
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return &ErrPersistence{Op: "insert execution", Err: err}
	}
	if affected == 0 {
		return &ErrPersistence{Op: "insert execution", Err: errors.New("no rows affected")}
	}
	return nil
}

// GetExecution loads one workflow_executions row.
func (r *PlanRepository) GetExecution(ctx context.Context, executionID string) (*ExecutionRecord, error) {
	var rec ExecutionRecord
	query := `SELECT * FROM workflow_executions WHERE execution_id = $1`
	if err := r.db.GetContext(ctx, &rec, query, executionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// ListExecutions returns every execution row for a workflow, newest first.
func (r *PlanRepository) ListExecutions(ctx context.Context, workflowID string) ([]*ExecutionRecord, error) {
	var recs []*ExecutionRecord
	query := `SELECT * FROM workflow_executions WHERE workflow_id = $1 ORDER BY start_time DESC`
	if err := r.db.SelectContext(ctx, &recs, query, workflowID); err != nil {
		return nil, err
	}
	return recs, nil
}

// UpdateStatus sets status (and, for terminal transitions, end_time). Used
// both by the cancel path (-> cancel_requested) and by AfterJob (-> final
// terminal state).
func (r *PlanRepository) UpdateStatus(ctx context.Context, executionID, status string) error {
	query := `UPDATE workflow_executions SET status = $2 WHERE execution_id = $1`
	_, err := r.db.ExecContext(ctx, query, executionID, status)
	return err
}

// FinalizeJob applies the AfterJob aggregation of spec §4.9: computed node
// counts/throughput plus the final terminal status and end_time.
// total_nodes is never touched here — it is fixed at submission.
func (r *PlanRepository) FinalizeJob(ctx context.Context, executionID, finalStatus string) error {
	query := `
		UPDATE workflow_executions we
		SET status = $2,
		    end_time = $3,
		    successful_nodes = agg.successful,
		    failed_nodes = agg.failed,
		    completed_nodes = agg.successful + agg.failed,
		    total_records_processed = agg.records,
		    total_execution_time_ms = agg.exec_ms
		FROM (
			SELECT
				COUNT(*) FILTER (WHERE status = 'success') AS successful,
				COUNT(*) FILTER (WHERE status = 'failed') AS failed,
				COALESCE(SUM(records_processed), 0) AS records,
				COALESCE(SUM(execution_time_ms), 0) AS exec_ms
			FROM node_executions
			WHERE execution_id = $1
		) agg
		WHERE we.execution_id = $1
	`
	_, err := r.db.ExecContext(ctx, query, executionID, finalStatus, time.Now().UnixMilli())
	return err
}

// InsertNodeExecution is the BeforeStep hook: a running row whose FK
// references an already-existing workflow_executions row.
func (r *PlanRepository) InsertNodeExecution(ctx context.Context, rec *NodeExecutionRecord) error {
	query := `
		INSERT INTO node_executions
			(id, execution_id, node_id, node_label, node_type, status, start_time, retry_count, records_processed)
		VALUES ($1, $2, $3, $4, $5, 'running', $6, 0, 0)
	`
	_, err := r.db.ExecContext(ctx, query, rec.ID, rec.ExecutionID, rec.NodeID, rec.NodeLabel, rec.NodeType, rec.StartTime)
	if err != nil {
		return &ErrPersistence{Op: "insert node execution", Err: err}
	}
	return nil
}

// UpdateNodeExecution is the AfterStep hook.
func (r *PlanRepository) UpdateNodeExecution(ctx context.Context, id string, status string, endTime, execMs int64, recordsProcessed, retryCount int, errMsg *string) error {
	query := `
		UPDATE node_executions
		SET status = $2, end_time = $3, execution_time_ms = $4,
		    records_processed = $5, retry_count = $6, error_message = $7
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, id, status, endTime, execMs, recordsProcessed, retryCount, errMsg)
	if err != nil {
		return &ErrPersistence{Op: "update node execution", Err: err}
	}
	return nil
}

// ListNodeExecutions returns every node_executions row for an execution,
// ordered by start_time ascending as spec's GET .../nodes requires.
func (r *PlanRepository) ListNodeExecutions(ctx context.Context, executionID string) ([]*NodeExecutionRecord, error) {
	var recs []*NodeExecutionRecord
	query := `SELECT * FROM node_executions WHERE execution_id = $1 ORDER BY start_time ASC`
	if err := r.db.SelectContext(ctx, &recs, query, executionID); err != nil {
		return nil, err
	}
	return recs, nil
}
