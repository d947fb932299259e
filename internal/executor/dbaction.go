package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/gorax/flowengine/internal/database/connectors"
)

// dbQueryConfig/dbExecuteConfig name a cached connection instead of a raw
// connection_string, so repeated invocations of the same node (across
// chunks, across runs) reuse the pooled handle DatasourceCache holds open
// rather than dialing fresh per record.
type dbActionConfig struct {
	ConnectionID string        `json:"connection_id"`
	Query        string        `json:"query"`
	Parameters   []interface{} `json:"parameters"`
	Timeout      int           `json:"timeout"`
	MaxRows      int           `json:"max_rows"`
}

// dbActionExecutor adapts a pooled connectors.Connector, resolved through a
// DatasourceCache, into the reader/processor/writer Executor contract — the
// pooled counterpart to actions.SQLQueryAction/SQLExecuteAction (database
// package under executor/actions), which dial a fresh connection per call
// from a literal connection_string. query selects Connector.Query vs
// Connector.Execute.
type dbActionExecutor struct {
	cache *DatasourceCache
	query bool
}

func newDBQueryExecutor(cache *DatasourceCache) *dbActionExecutor {
	return &dbActionExecutor{cache: cache, query: true}
}

func newDBExecuteExecutor(cache *DatasourceCache) *dbActionExecutor {
	return &dbActionExecutor{cache: cache, query: false}
}

func (e *dbActionExecutor) CreateReader(sc *StepContext) (Reader, error) {
	return ReaderFunc(func(ctx context.Context) ([]Record, error) {
		if len(sc.Input) > 0 {
			return nil, nil
		}
		return []Record{{}}, nil
	}), nil
}

func (e *dbActionExecutor) CreateProcessor(sc *StepContext) (Processor, error) {
	var cfg dbActionConfig
	if len(sc.Config) > 0 {
		if err := json.Unmarshal(sc.Config, &cfg); err != nil {
			return nil, fmt.Errorf("invalid db action config: %w", err)
		}
	}
	return ProcessorFunc(func(ctx context.Context, in Record) (Record, error) {
		conn, err := e.cache.Get(ctx, cfg.ConnectionID)
		if err != nil {
			return nil, fmt.Errorf("resolve connection %q: %w", cfg.ConnectionID, err)
		}

		input := &connectors.QueryInput{
			Query:      cfg.Query,
			Parameters: cfg.Parameters,
			Timeout:    cfg.Timeout,
			MaxRows:    cfg.MaxRows,
			Metadata:   map[string]interface{}{"execution_id": sc.ExecutionID, "node_id": sc.NodeID},
		}
		if err := input.Validate(); err != nil {
			return nil, err
		}

		var result *connectors.QueryResult
		if e.query {
			result, err = conn.Query(ctx, input)
		} else {
			result, err = conn.Execute(ctx, input)
		}
		if err != nil {
			return nil, err
		}

		return Record{
			"rows":          result.Rows,
			"rows_affected": result.RowsAffected,
			"execution_ms":  result.ExecutionMS,
		}, nil
	}), nil
}

func (e *dbActionExecutor) CreateWriter(sc *StepContext) (Writer, error) {
	return WriterFunc(func(ctx context.Context, batch []Record) error {
		for _, rec := range batch {
			if warning, err := sc.Routing.RouteRecord(rec, ""); err != nil {
				return err
			} else if warning != "" {
				LoggerFromContext(ctx, slog.Default()).Warn(warning)
			}
		}
		return nil
	}), nil
}

func (e *dbActionExecutor) Validate(sc *StepContext) error {
	if len(sc.Config) == 0 {
		return fmt.Errorf("db action requires config")
	}
	var cfg dbActionConfig
	if err := json.Unmarshal(sc.Config, &cfg); err != nil {
		return err
	}
	if cfg.ConnectionID == "" || cfg.Query == "" {
		return fmt.Errorf("db action config requires connection_id and query")
	}
	return nil
}

func (e *dbActionExecutor) SupportsMetrics() bool         { return true }
func (e *dbActionExecutor) SupportsFailureHandling() bool { return true }

// RegisterDatabaseActions wires the pooled SQL node types onto reg, backed
// by cache. Split from RegisterBuiltins since the cache is constructed from
// the (out-of-core) connectors CRUD wiring in cmd/api, unlike the
// dependency-free actions RegisterBuiltins registers.
func RegisterDatabaseActions(reg *Registry, cache *DatasourceCache) {
	reg.Register("action:sql_query", newDBQueryExecutor(cache))
	reg.Register("action:sql_execute", newDBExecuteExecutor(cache))
}
