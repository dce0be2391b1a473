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
	"strings"
	"testing"
)

func newTestSQL(t *testing.T, settings SQLSettings) *SQL {
	t.Helper()
	settings.Driver = "sqlite3"
	settings.DSN = ":memory:"

	tl, err := NewSQL("db", settings)
	if err != nil {
		t.Fatalf("NewSQL() error: %v", err)
	}
	t.Cleanup(func() { _ = tl.Close() })

	seed := []string{
		`CREATE TABLE orders (id INTEGER PRIMARY KEY, region TEXT, total REAL)`,
		`INSERT INTO orders (region, total) VALUES ('eu', 10.5), ('us', 20.0), ('eu', 3.25)`,
	}
	for _, stmt := range seed {
		if _, err := tl.db.Exec(stmt); err != nil {
			t.Fatalf("seed failed: %v", err)
		}
	}
	return tl
}

func TestSQLCall(t *testing.T) {
	tl := newTestSQL(t, SQLSettings{})

	payload, err := tl.Call(context.Background(), map[string]any{
		"query": "SELECT region, total FROM orders ORDER BY id",
	})
	if err != nil {
		t.Fatalf("Call() unexpected error: %v", err)
	}

	if payload["row_count"] != 3 {
		t.Errorf("row_count = %v, want 3", payload["row_count"])
	}
	columns, _ := payload["columns"].([]string)
	if len(columns) != 2 || columns[0] != "region" {
		t.Errorf("columns = %v", columns)
	}
	rows, _ := payload["rows"].([]map[string]any)
	if len(rows) != 3 || rows[0]["region"] != "eu" {
		t.Errorf("rows = %v", rows)
	}
	if payload["truncated"] != false {
		t.Errorf("truncated = %v, want false", payload["truncated"])
	}
}

func TestSQLCallMaxRowsTruncates(t *testing.T) {
	tl := newTestSQL(t, SQLSettings{MaxRows: 2})

	payload, err := tl.Call(context.Background(), map[string]any{
		"query": "SELECT * FROM orders",
	})
	if err != nil {
		t.Fatalf("Call() unexpected error: %v", err)
	}
	if payload["row_count"] != 2 {
		t.Errorf("row_count = %v, want 2", payload["row_count"])
	}
	if payload["truncated"] != true {
		t.Errorf("truncated = %v, want true", payload["truncated"])
	}
}

func TestSQLCallReadOnlyGuard(t *testing.T) {
	tl := newTestSQL(t, SQLSettings{})

	_, err := tl.Call(context.Background(), map[string]any{
		"query": "DELETE FROM orders",
	})
	if err == nil || !strings.Contains(err.Error(), "read queries") {
		t.Fatalf("Call() error = %v, want read-only error", err)
	}

	// Reads stay allowed.
	if _, err := tl.Call(context.Background(), map[string]any{
		"query": "  select count(*) from orders",
	}); err != nil {
		t.Errorf("Call() read query rejected: %v", err)
	}
}

func TestSQLCallWritableWhenConfigured(t *testing.T) {
	writable := false
	tl := newTestSQL(t, SQLSettings{ReadOnly: &writable})

	if _, err := tl.Call(context.Background(), map[string]any{
		"query": "DELETE FROM orders WHERE region = 'us'",
	}); err != nil {
		t.Fatalf("Call() write rejected with read_only=false: %v", err)
	}
}

func TestSQLCallFailOnEmpty(t *testing.T) {
	tl := newTestSQL(t, SQLSettings{FailOnEmpty: true})

	_, err := tl.Call(context.Background(), map[string]any{
		"query": "SELECT * FROM orders WHERE region = 'mars'",
	})
	if err == nil || !strings.Contains(err.Error(), "no rows") {
		t.Fatalf("Call() error = %v, want no-rows error", err)
	}
}

func TestSQLCallRequiresQuery(t *testing.T) {
	tl := newTestSQL(t, SQLSettings{})

	if _, err := tl.Call(context.Background(), map[string]any{}); err == nil {
		t.Fatal("Call() expected error for missing query")
	}
}

func TestNewSQLValidation(t *testing.T) {
	if _, err := NewSQL("db", SQLSettings{DSN: ":memory:"}); err == nil {
		t.Error("NewSQL() expected error for missing driver")
	}
	if _, err := NewSQL("db", SQLSettings{Driver: "sqlite3"}); err == nil {
		t.Error("NewSQL() expected error for missing dsn")
	}
}
