package agent

import (
	"context"
	"database/sql"

	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver
)

// sqliteDB wraps a database/sql handle for a single SQLite DSN. Kept as a
// thin wrapper rather than aliasing *sql.DB directly so the executor's
// pool map has a named type to extend later (e.g. per-DB busy_timeout).
type sqliteDB struct {
	handle *sql.DB
}

func openSQLite(dsn string) (*sqliteDB, error) {
	handle, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return &sqliteDB{handle: handle}, nil
}

func (db *sqliteDB) Close() error {
	return db.handle.Close()
}

func (e *DatabaseExecutor) sqlitePoolFor(dsn string) (*sqliteDB, error) {
	e.mu.Lock()
	db, ok := e.sqlitePool[dsn]
	e.mu.Unlock()
	if ok {
		return db, nil
	}

	db, err := openSQLite(dsn)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.sqlitePool[dsn] = db
	e.mu.Unlock()
	return db, nil
}

func (e *DatabaseExecutor) executeSQLite(ctx context.Context, cfg DatabaseConfig) (Result, error) {
	db, err := e.sqlitePoolFor(cfg.DSN)
	if err != nil {
		return TransportErrorResult(TransportUnavailable, err.Error()), nil
	}

	rows, err := db.handle.QueryContext(ctx, cfg.Query, cfg.Args...)
	if err != nil {
		if ctx.Err() != nil {
			return transportResultFromContext(ctx), nil
		}
		return ToolErrorResult(err.Error()), nil
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return ToolErrorResult(err.Error()), nil
	}

	var table []any
	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return ToolErrorResult(err.Error()), nil
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		table = append(table, row)
	}
	if err := rows.Err(); err != nil {
		return ToolErrorResult(err.Error()), nil
	}

	return SuccessResult(map[string]any{"columns": columns, "rows": table}), nil
}
