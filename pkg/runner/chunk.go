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

package runner

// ChunkType classifies stream chunks.
type ChunkType string

const (
	// ChunkProgress carries an intermediate result: a buffered streaming
	// fragment or a settled non-terminal invocation payload.
	ChunkProgress ChunkType = "progress"

	// ChunkFinal carries the terminal step's aggregated payload. Exactly one
	// terminal chunk closes every stream.
	ChunkFinal ChunkType = "final"

	// ChunkError terminates a run that could not produce a final payload.
	ChunkError ChunkType = "error"

	// ChunkCancelled terminates a run abandoned by caller cancellation.
	ChunkCancelled ChunkType = "cancelled"
)

// StreamChunk is one unit of run output. Chunks for a given plan and outcome
// set arrive in the same order on every run: progress is buffered per
// invocation and emitted in declaration order after each step settles.
type StreamChunk struct {
	Type ChunkType `json:"type"`

	// StepID and InvocationID locate the producing invocation. Empty on
	// run-level terminal chunks.
	StepID       string `json:"step_id,omitempty"`
	InvocationID string `json:"invocation_id,omitempty"`
	Tool         string `json:"tool,omitempty"`

	// Payload is the chunk content: a progress fragment, an intermediate
	// invocation payload, or the final aggregated payload.
	Payload map[string]any `json:"payload,omitempty"`

	// Error describes the failure on error chunks.
	Error string `json:"error,omitempty"`

	// Degraded lists tools whose outputs were dropped by partial failures
	// along the way. Set only on the final chunk.
	Degraded []string `json:"degraded,omitempty"`
}

// Terminal reports whether the chunk closes the stream.
func (c *StreamChunk) Terminal() bool {
	switch c.Type {
	case ChunkFinal, ChunkError, ChunkCancelled:
		return true
	}
	return false
}
