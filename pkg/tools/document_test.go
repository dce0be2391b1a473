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
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/kadirpekel/switchboard/pkg/tool"
)

func writeXLSX(t *testing.T, dir string) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	_ = f.SetCellValue("Sheet1", "A1", "region")
	_ = f.SetCellValue("Sheet1", "B1", "total")
	_ = f.SetCellValue("Sheet1", "A2", "eu")
	_ = f.SetCellValue("Sheet1", "B2", 10.5)

	path := filepath.Join(dir, "orders.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("SaveAs() error: %v", err)
	}
	return path
}

func TestDocumentExtractXLSX(t *testing.T) {
	dir := t.TempDir()
	path := writeXLSX(t, dir)

	doc := NewDocument("docs", DocumentSettings{BaseDir: dir})

	var progress []map[string]any
	var final map[string]any
	for res, err := range doc.CallStreaming(context.Background(), map[string]any{"path": path}) {
		if err != nil {
			t.Fatalf("CallStreaming() error: %v", err)
		}
		if res.Streaming {
			progress = append(progress, res.Payload)
		} else {
			final = res.Payload
		}
	}

	if len(progress) != 1 {
		t.Fatalf("progress count = %d, want 1 sheet", len(progress))
	}
	if progress[0]["unit"] != "sheet" || progress[0]["sheet"] != "Sheet1" {
		t.Errorf("progress = %v", progress[0])
	}
	if final["format"] != "xlsx" {
		t.Errorf("format = %v, want xlsx", final["format"])
	}
	sheets, ok := final["sheets"].(map[string]any)
	if !ok {
		t.Fatalf("sheets = %T, want map", final["sheets"])
	}
	rows, ok := sheets["Sheet1"].([][]string)
	if !ok || len(rows) != 2 || rows[1][0] != "eu" {
		t.Errorf("sheet rows = %v", sheets["Sheet1"])
	}
}

func TestDocumentCallReturnsFinalPayload(t *testing.T) {
	dir := t.TempDir()
	path := writeXLSX(t, dir)

	doc := NewDocument("docs", DocumentSettings{})

	payload, err := doc.Call(context.Background(), map[string]any{"path": path})
	if err != nil {
		t.Fatalf("Call() error: %v", err)
	}
	if payload["format"] != "xlsx" {
		t.Errorf("format = %v, want xlsx", payload["format"])
	}
}

func TestDocumentPathOutsideBaseDir(t *testing.T) {
	doc := NewDocument("docs", DocumentSettings{BaseDir: t.TempDir()})

	_, err := doc.Call(context.Background(), map[string]any{"path": "/etc/passwd.pdf"})
	if err == nil || !strings.Contains(err.Error(), "outside the allowed directory") {
		t.Fatalf("Call() error = %v, want path guard error", err)
	}
}

func TestDocumentUnsupportedType(t *testing.T) {
	doc := NewDocument("docs", DocumentSettings{})

	_, err := doc.Call(context.Background(), map[string]any{"path": "notes.txt"})
	if err == nil || !strings.Contains(err.Error(), "unsupported document type") {
		t.Fatalf("Call() error = %v, want unsupported type error", err)
	}
}

func TestDocumentRequiresPath(t *testing.T) {
	doc := NewDocument("docs", DocumentSettings{})

	if _, err := doc.Call(context.Background(), map[string]any{}); err == nil {
		t.Fatal("Call() expected error for missing path")
	}
}

func TestStripDocxTags(t *testing.T) {
	got := stripDocxTags("<w:p><w:t>Hello</w:t></w:p> <w:t>world</w:t>")
	if got != "Hello world" {
		t.Errorf("stripDocxTags() = %q, want %q", got, "Hello world")
	}
}

var _ tool.StreamingTool = (*Document)(nil)
