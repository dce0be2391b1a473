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

// Package tool defines the capability interface the step executor dispatches
// to. A tool is a named unit of work taking a structured input and producing
// a structured payload or a failure; streaming tools additionally emit
// incremental progress results before the final payload.
//
// The router never contains tool domain logic. Tools are resolved by name
// from the registry at run start and invoked through these interfaces only.
package tool

import (
	"context"
	"iter"
)

// Tool is the base capability interface.
type Tool interface {
	// Name returns the unique tool name used for registry lookup.
	Name() string

	// Description returns a human-readable description of what the tool
	// does. Shown to operators and to plan selectors.
	Description() string

	// Call executes the tool with the given arguments and blocks until a
	// final payload or an error is produced. Implementations must honor
	// context cancellation and deadlines.
	Call(ctx context.Context, args map[string]any) (map[string]any, error)
}

// StreamingTool extends Tool with incremental output.
//
// CallStreaming yields zero or more streaming results followed by exactly one
// final result (Streaming == false) carrying the payload. Yielding an error
// terminates the sequence. The executor buffers streaming results so that
// output ordering across parallel siblings stays deterministic.
type StreamingTool interface {
	Tool

	CallStreaming(ctx context.Context, args map[string]any) iter.Seq2[*Result, error]
}

// Result is one output unit of a streaming tool execution.
type Result struct {
	// Payload is the output content: a progress fragment while Streaming
	// is true, the complete final payload otherwise.
	Payload map[string]any

	// Streaming marks intermediate progress results.
	Streaming bool
}

// Func adapts a plain function into a Tool. Useful for tests and for small
// tools that need no configuration.
type Func struct {
	ToolName        string
	ToolDescription string
	Fn              func(ctx context.Context, args map[string]any) (map[string]any, error)
}

func (f *Func) Name() string        { return f.ToolName }
func (f *Func) Description() string { return f.ToolDescription }

func (f *Func) Call(ctx context.Context, args map[string]any) (map[string]any, error) {
	return f.Fn(ctx, args)
}
