package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DatabaseConfig is the rendered routing config for the database kind.
type DatabaseConfig struct {
	Driver string // "postgres" or "sqlite"
	DSN    string
	Query  string
	Args   []any
}

func databaseFromPlan(config map[string]any) (DatabaseConfig, error) {
	cfg := DatabaseConfig{Driver: "postgres"}

	if d, ok := config["driver"].(string); ok && d != "" {
		cfg.Driver = d
	}
	dsn, _ := config["dsn"].(string)
	if dsn == "" {
		return cfg, fmt.Errorf("database routing config missing %q", "dsn")
	}
	cfg.DSN = dsn

	query, _ := config["query"].(string)
	if query == "" {
		return cfg, fmt.Errorf("database routing config missing %q", "query")
	}
	cfg.Query = query

	if args, ok := config["args"].([]any); ok {
		cfg.Args = args
	}
	return cfg, nil
}

// DatabaseExecutor runs a parameterized query against a pooled PostgreSQL
// or SQLite connection. User-supplied arguments are always passed as
// driver parameters, never interpolated into the query text.
type DatabaseExecutor struct {
	mu        sync.Mutex
	pgPools   map[string]*pgxpool.Pool
	sqlitePool map[string]*sqliteDB
}

// NewDatabaseExecutor creates a database executor with per-DSN pooling.
func NewDatabaseExecutor() *DatabaseExecutor {
	return &DatabaseExecutor{
		pgPools:    make(map[string]*pgxpool.Pool),
		sqlitePool: make(map[string]*sqliteDB),
	}
}

func (e *DatabaseExecutor) Execute(ctx context.Context, inv Invocation) (Result, error) {
	cfg, err := databaseFromPlan(inv.Plan.Config)
	if err != nil {
		return TransportErrorResult(TransportConfig, err.Error()), nil
	}

	switch cfg.Driver {
	case "postgres":
		return e.executePostgres(ctx, cfg)
	case "sqlite":
		return e.executeSQLite(ctx, cfg)
	default:
		return TransportErrorResult(TransportConfig, fmt.Sprintf("unsupported database driver %q", cfg.Driver)), nil
	}
}

func (e *DatabaseExecutor) pgPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	e.mu.Lock()
	pool, ok := e.pgPools[dsn]
	e.mu.Unlock()
	if ok {
		return pool, nil
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.pgPools[dsn] = pool
	e.mu.Unlock()
	return pool, nil
}

func (e *DatabaseExecutor) executePostgres(ctx context.Context, cfg DatabaseConfig) (Result, error) {
	pool, err := e.pgPool(ctx, cfg.DSN)
	if err != nil {
		return TransportErrorResult(TransportUnavailable, err.Error()), nil
	}

	rows, err := pool.Query(ctx, cfg.Query, cfg.Args...)
	if err != nil {
		if ctx.Err() != nil {
			return transportResultFromContext(ctx), nil
		}
		return ToolErrorResult(err.Error()), nil
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = f.Name
	}

	var table []any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return ToolErrorResult(err.Error()), nil
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			if i < len(values) {
				row[col] = values[i]
			}
		}
		table = append(table, row)
	}
	if err := rows.Err(); err != nil {
		return ToolErrorResult(err.Error()), nil
	}

	return SuccessResult(map[string]any{"columns": columns, "rows": table}), nil
}

// Close closes every pooled connection.
func (e *DatabaseExecutor) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for dsn, pool := range e.pgPools {
		pool.Close()
		delete(e.pgPools, dsn)
	}
	for dsn, db := range e.sqlitePool {
		db.Close()
		delete(e.sqlitePool, dsn)
	}
}
