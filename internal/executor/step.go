package executor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gorax/flowengine/internal/workflow"
)

// StepOutcome is the exit status the job builder's transition graph
// dispatches on.
type StepOutcome string

const (
	OutcomeSuccess StepOutcome = "SUCCESS"
	OutcomeFailed  StepOutcome = "FAILED"
	OutcomeSkipped StepOutcome = "SKIPPED"
)

// StepResult summarizes one step's completed run for persistence (C10) and
// transition dispatch (C8). HadWriter tells the job runner whether the
// executor's own writer already routed this step's output records, so the
// runner only falls back to routing the raw input itself for writerless
// (control-kind) steps instead of routing both (spec §3/§8 ordering).
type StepResult struct {
	Outcome          StepOutcome
	RecordsProcessed int
	RetryCount       int
	HadWriter        bool
	Output           []Record
	Err              error
}

// CancelledError marks cooperative termination of a step or job; it never
// surfaces as a 5xx response.
var ErrCancelled = errors.New("execution cancelled")

// CancelSignal is polled between chunks and between retries so long-running
// step loops terminate promptly once a cancel is requested.
type CancelSignal func() bool

// StepRuntime executes one step's reader -> processor -> writer loop in
// fixed-size chunks, with per-chunk transaction boundaries and the
// failurePolicy-driven retry/skip/route behavior of spec §4.8. Grounded on
// the teacher's RetryStrategy (internal/executor/retry.go) for backoff and
// on executeNodeWithTracking's before/after shape for listener hookup.
// Breakers, when set, guards each step's chunk processing with a per-node-type
// circuit breaker (internal/executor/circuit_breaker.go, adapted from the
// teacher's error_handling.go circuit-breaker node into an always-on runtime
// guard instead of an opt-in node type), so a node type that is failing
// consistently (e.g. a flaky downstream HTTP action) stops being retried
// chunk after chunk and fails fast until its cooldown elapses.
type StepRuntime struct {
	Registry *Registry
	Logger   *slog.Logger
	Breakers *CircuitBreakerRegistry
}

func NewStepRuntime(registry *Registry, logger *slog.Logger) *StepRuntime {
	return &StepRuntime{Registry: registry, Logger: logger}
}

// WithCircuitBreakers attaches a CircuitBreakerRegistry, breaking per
// step.NodeType across all steps and executions of that type.
func (rt *StepRuntime) WithCircuitBreakers(breakers *CircuitBreakerRegistry) *StepRuntime {
	rt.Breakers = breakers
	return rt
}

// Run executes step against sc, honoring step.FailurePolicy. cancel is
// polled between chunks and between retries.
func (rt *StepRuntime) Run(ctx context.Context, step *workflow.StepNode, sc *StepContext, cancel CancelSignal) StepResult {
	logger := LoggerFromContext(ctx, rt.Logger).With("node_id", step.NodeID, "node_type", step.NodeType)

	exec, err := rt.Registry.Get(step.NodeType)
	if err != nil {
		return StepResult{Outcome: OutcomeFailed, Err: err}
	}
	if err := exec.Validate(sc); err != nil {
		return StepResult{Outcome: OutcomeFailed, Err: err}
	}

	policy := step.FailurePolicy
	if policy == nil {
		policy = &workflow.FailurePolicy{Action: "STOP"}
	}

	reader, err := exec.CreateReader(sc)
	if err != nil {
		return StepResult{Outcome: OutcomeFailed, Err: err}
	}
	if reader != nil {
		records, err := reader.Read(ctx)
		if err != nil {
			return StepResult{Outcome: OutcomeFailed, Err: err}
		}
		sc.Input = append(sc.Input, records...)
	}

	processor, err := exec.CreateProcessor(sc)
	if err != nil {
		return StepResult{Outcome: OutcomeFailed, Err: err}
	}
	writer, err := exec.CreateWriter(sc)
	if err != nil {
		return StepResult{Outcome: OutcomeFailed, Err: err}
	}

	processed := 0
	skipped := 0
	totalRetries := 0
	var output []Record

	hadWriter := writer != nil

	for _, chunk := range sc.Chunks() {
		if cancel != nil && cancel() {
			return StepResult{Outcome: OutcomeFailed, RecordsProcessed: processed, RetryCount: totalRetries, HadWriter: hadWriter, Output: output, Err: ErrCancelled}
		}

		out, retries, err := rt.runChunk(ctx, step.NodeType, processor, writer, chunk, policy, cancel, logger)
		totalRetries += retries
		if err != nil {
			switch policy.Action {
			case "SKIP":
				skipped += len(chunk)
				if policy.SkipLimit > 0 && skipped > policy.SkipLimit {
					return StepResult{Outcome: OutcomeFailed, RecordsProcessed: processed, RetryCount: totalRetries, HadWriter: hadWriter, Output: output, Err: err}
				}
				continue
			case "ROUTE":
				return StepResult{Outcome: OutcomeFailed, RecordsProcessed: processed, RetryCount: totalRetries, HadWriter: hadWriter, Output: output, Err: err}
			default: // STOP, and RETRY-exhausted falls back to STOP
				return StepResult{Outcome: OutcomeFailed, RecordsProcessed: processed, RetryCount: totalRetries, HadWriter: hadWriter, Output: output, Err: err}
			}
		}
		processed += len(out)
		output = append(output, out...)
	}

	return StepResult{Outcome: OutcomeSuccess, RecordsProcessed: processed, RetryCount: totalRetries, HadWriter: hadWriter, Output: output}
}

// runChunk commits a single chunk atomically: every record in the chunk is
// processed and written together, or the chunk is retried/failed as a unit.
// nodeType names the circuit breaker guarding this chunk when rt.Breakers is
// set; an open breaker fails the chunk immediately without touching
// processor/writer, same as any other chunk error for policy purposes.
func (rt *StepRuntime) runChunk(ctx context.Context, nodeType string, processor Processor, writer Writer, chunk []Record, policy *workflow.FailurePolicy, cancel CancelSignal, logger *slog.Logger) ([]Record, int, error) {
	retryConfig := DefaultRetryConfig()
	if policy.RetryLimit > 0 {
		retryConfig.MaxRetries = policy.RetryLimit
	} else {
		retryConfig.MaxRetries = 0
	}

	var breaker *CircuitBreaker
	if rt.Breakers != nil {
		breaker = rt.Breakers.GetOrCreate(nodeType)
	}

	retries := 0
	var lastErr error
	for attempt := 0; attempt <= retryConfig.MaxRetries; attempt++ {
		if cancel != nil && cancel() {
			return nil, retries, ErrCancelled
		}
		if attempt > 0 {
			retries++
			logger.Info("retrying chunk", "attempt", attempt)
		}

		var out []Record
		var err error
		if breaker != nil {
			var res interface{}
			res, err = breaker.ExecuteWithResult(ctx, func(ctx context.Context) (interface{}, error) {
				return processAndWrite(ctx, processor, writer, chunk)
			})
			if res != nil {
				out = res.([]Record)
			}
		} else {
			out, err = processAndWrite(ctx, processor, writer, chunk)
		}
		if err == nil {
			return out, retries, nil
		}
		lastErr = err

		if policy.Action != "RETRY" && policy.Action != "ROUTE" {
			break
		}
		if !ShouldRetry(err, attempt, retryConfig.MaxRetries) {
			break
		}

		backoff := time.Duration(float64(retryConfig.InitialBackoff) * pow(retryConfig.BackoffMultiplier, float64(attempt)))
		if backoff > retryConfig.MaxBackoff {
			backoff = retryConfig.MaxBackoff
		}
		select {
		case <-ctx.Done():
			return nil, retries, ctx.Err()
		case <-time.After(backoff):
		}
	}
	return nil, retries, lastErr
}

func processAndWrite(ctx context.Context, processor Processor, writer Writer, chunk []Record) ([]Record, error) {
	out := make([]Record, 0, len(chunk))
	for _, rec := range chunk {
		if processor == nil {
			out = append(out, rec)
			continue
		}
		result, err := processor.Process(ctx, rec)
		if err != nil {
			return nil, err
		}
		if result == nil {
			continue
		}
		out = append(out, result)
	}
	if writer != nil {
		if err := writer.Write(ctx, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func pow(base, exp float64) float64 {
	result := 1.0
	for i := 0; i < int(exp); i++ {
		result *= base
	}
	return result
}
