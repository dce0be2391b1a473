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
	"fmt"
	"iter"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/xuri/excelize/v2"

	"github.com/kadirpekel/switchboard/pkg/tool"
)

// DocumentSettings configures a document_extract tool instance.
type DocumentSettings struct {
	// BaseDir restricts extraction to files under this directory. Empty
	// allows any path.
	BaseDir string `yaml:"base_dir"`

	// MaxUnits caps the number of pages or sheets read. Defaults to 200.
	MaxUnits int `yaml:"max_units"`
}

// Document extracts text from PDF, DOCX and XLSX files. Extraction streams:
// each page or sheet is emitted as a progress result before the final
// combined payload.
type Document struct {
	name     string
	settings DocumentSettings
}

// NewDocument creates a document extraction tool.
func NewDocument(name string, settings DocumentSettings) *Document {
	if settings.MaxUnits <= 0 {
		settings.MaxUnits = 200
	}
	return &Document{name: name, settings: settings}
}

func (t *Document) Name() string { return t.name }

func (t *Document) Description() string {
	return "Extract text from PDF, DOCX and XLSX documents, streaming per-page progress"
}

// Call drains the streaming variant and returns only the final payload.
func (t *Document) Call(ctx context.Context, args map[string]any) (map[string]any, error) {
	var final map[string]any
	for res, err := range t.CallStreaming(ctx, args) {
		if err != nil {
			return nil, err
		}
		if res != nil && !res.Streaming {
			final = res.Payload
		}
	}
	return final, nil
}

// CallStreaming extracts args["path"], yielding one progress result per page
// or sheet and a final result with the combined text.
func (t *Document) CallStreaming(ctx context.Context, args map[string]any) iter.Seq2[*tool.Result, error] {
	return func(yield func(*tool.Result, error) bool) {
		path, ok := args["path"].(string)
		if !ok || path == "" {
			yield(nil, fmt.Errorf("path parameter is required"))
			return
		}
		if err := t.checkPath(path); err != nil {
			yield(nil, err)
			return
		}

		switch strings.ToLower(filepath.Ext(path)) {
		case ".pdf":
			t.extractPDF(ctx, path, yield)
		case ".docx":
			t.extractDOCX(path, yield)
		case ".xlsx":
			t.extractXLSX(ctx, path, yield)
		default:
			yield(nil, fmt.Errorf("unsupported document type %q", filepath.Ext(path)))
		}
	}
}

func (t *Document) checkPath(path string) error {
	if t.settings.BaseDir == "" {
		return nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	base, err := filepath.Abs(t.settings.BaseDir)
	if err != nil {
		return err
	}
	if !strings.HasPrefix(abs, base+string(filepath.Separator)) {
		return fmt.Errorf("path %q is outside the allowed directory", path)
	}
	return nil
}

func (t *Document) extractPDF(ctx context.Context, path string, yield func(*tool.Result, error) bool) {
	f, r, err := pdf.Open(path)
	if err != nil {
		yield(nil, fmt.Errorf("failed to open PDF: %w", err))
		return
	}
	defer f.Close()

	total := r.NumPage()
	pages := total
	if pages > t.settings.MaxUnits {
		pages = t.settings.MaxUnits
	}

	var sb strings.Builder
	for i := 1; i <= pages; i++ {
		if ctx.Err() != nil {
			yield(nil, ctx.Err())
			return
		}

		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			yield(nil, fmt.Errorf("failed to extract page %d: %w", i, err))
			return
		}
		sb.WriteString(text)
		sb.WriteString("\n")

		res := &tool.Result{
			Streaming: true,
			Payload: map[string]any{
				"unit":  "page",
				"index": i,
				"total": total,
				"text":  text,
			},
		}
		if !yield(res, nil) {
			return
		}
	}

	yield(&tool.Result{Payload: map[string]any{
		"format":    "pdf",
		"path":      path,
		"pages":     pages,
		"truncated": total > pages,
		"text":      sb.String(),
	}}, nil)
}

func (t *Document) extractDOCX(path string, yield func(*tool.Result, error) bool) {
	r, err := docx.ReadDocxFile(path)
	if err != nil {
		yield(nil, fmt.Errorf("failed to open DOCX: %w", err))
		return
	}
	defer r.Close()

	text := stripDocxTags(r.Editable().GetContent())

	yield(&tool.Result{Payload: map[string]any{
		"format": "docx",
		"path":   path,
		"text":   text,
	}}, nil)
}

func (t *Document) extractXLSX(ctx context.Context, path string, yield func(*tool.Result, error) bool) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		yield(nil, fmt.Errorf("failed to open XLSX: %w", err))
		return
	}
	defer f.Close()

	sheetNames := f.GetSheetList()
	total := len(sheetNames)
	if total > t.settings.MaxUnits {
		sheetNames = sheetNames[:t.settings.MaxUnits]
	}

	sheets := make(map[string]any, len(sheetNames))
	for i, sheet := range sheetNames {
		if ctx.Err() != nil {
			yield(nil, ctx.Err())
			return
		}

		rows, err := f.GetRows(sheet)
		if err != nil {
			yield(nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err))
			return
		}
		sheets[sheet] = rows

		res := &tool.Result{
			Streaming: true,
			Payload: map[string]any{
				"unit":  "sheet",
				"index": i + 1,
				"total": total,
				"sheet": sheet,
				"rows":  len(rows),
			},
		}
		if !yield(res, nil) {
			return
		}
	}

	yield(&tool.Result{Payload: map[string]any{
		"format":    "xlsx",
		"path":      path,
		"sheets":    sheets,
		"truncated": total > len(sheetNames),
	}}, nil)
}

// stripDocxTags removes XML markup from docx document content, keeping plain
// text with paragraph breaks.
func stripDocxTags(content string) string {
	var sb strings.Builder
	inTag := false
	for _, r := range content {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			sb.WriteRune(r)
		}
	}
	return strings.TrimSpace(sb.String())
}
