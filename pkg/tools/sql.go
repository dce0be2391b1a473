// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tools

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	// Database drivers registered for the sql_query tool.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// SQLSettings configures a sql_query tool instance.
type SQLSettings struct {
	// Driver is postgres, mysql or sqlite3.
	Driver string `yaml:"driver"`

	// DSN is the driver-specific connection string.
	DSN string `yaml:"dsn"`

	// MaxRows caps the result set. Defaults to 500.
	MaxRows int `yaml:"max_rows"`

	// QueryTimeout bounds a single query. Defaults to 15s.
	QueryTimeout time.Duration `yaml:"query_timeout"`

	// ReadOnly restricts the tool to SELECT statements. Defaults to true;
	// set explicitly to false to allow writes.
	ReadOnly *bool `yaml:"read_only"`

	// FailOnEmpty treats an empty result set as a failure, which lets the
	// step's retry policy re-run queries against eventually-consistent
	// sources.
	FailOnEmpty bool `yaml:"fail_on_empty"`
}

// SQL executes SQL queries against a configured database.
type SQL struct {
	name     string
	db       *sql.DB
	settings SQLSettings
}

// NewSQL opens the database pool and returns the tool. The pool is shared by
// every invocation of this tool instance.
func NewSQL(name string, settings SQLSettings) (*SQL, error) {
	if settings.Driver == "" {
		return nil, fmt.Errorf("driver is required")
	}
	if settings.DSN == "" {
		return nil, fmt.Errorf("dsn is required")
	}
	if settings.MaxRows <= 0 {
		settings.MaxRows = 500
	}
	if settings.QueryTimeout <= 0 {
		settings.QueryTimeout = 15 * time.Second
	}

	db, err := sql.Open(settings.Driver, settings.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return &SQL{name: name, db: db, settings: settings}, nil
}

func (t *SQL) Name() string { return t.name }

func (t *SQL) Description() string {
	return fmt.Sprintf("Execute SQL queries against a %s database and return rows as structured data", t.settings.Driver)
}

// Call runs args["query"] and returns columns, rows and a truncation flag.
func (t *SQL) Call(ctx context.Context, args map[string]any) (map[string]any, error) {
	query, ok := args["query"].(string)
	if !ok || strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query parameter is required")
	}

	if t.readOnly() && !isReadQuery(query) {
		return nil, fmt.Errorf("only read queries are allowed")
	}

	queryCtx, cancel := context.WithTimeout(ctx, t.settings.QueryTimeout)
	defer cancel()

	rows, err := t.db.QueryContext(queryCtx, query)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	var result []map[string]any
	truncated := false
	for rows.Next() {
		if len(result) >= t.settings.MaxRows {
			truncated = true
			break
		}

		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = normalizeSQLValue(values[i])
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration failed: %w", err)
	}

	if len(result) == 0 && t.settings.FailOnEmpty {
		return nil, fmt.Errorf("query returned no rows")
	}

	return map[string]any{
		"columns":   columns,
		"rows":      result,
		"row_count": len(result),
		"truncated": truncated,
	}, nil
}

// Close releases the database pool.
func (t *SQL) Close() error {
	return t.db.Close()
}

func (t *SQL) readOnly() bool {
	if t.settings.ReadOnly == nil {
		return true
	}
	return *t.settings.ReadOnly
}

func isReadQuery(query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	return strings.HasPrefix(q, "select") || strings.HasPrefix(q, "with") ||
		strings.HasPrefix(q, "show") || strings.HasPrefix(q, "explain")
}

// normalizeSQLValue converts driver-specific values into JSON-friendly ones.
func normalizeSQLValue(v any) any {
	switch val := v.(type) {
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return v
	}
}
