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

import (
	"context"
	"log/slog"

	"github.com/kadirpekel/switchboard/pkg/plan"
)

const defaultStreamBuffer = 64

// Stream is a running plan execution exposed as a bounded chunk channel.
// The channel closes after the terminal chunk. Exactly one terminal chunk is
// delivered even if the producing run misbehaves: extras are dropped and a
// missing one is synthesized.
type Stream struct {
	runID  string
	chunks chan *StreamChunk
	cancel context.CancelFunc
}

// NewStream launches the run in a background goroutine and returns its
// stream. Backpressure from a slow consumer propagates into the run through
// the bounded channel. onDone fires exactly once, after the channel closes;
// callers use it to release run bookkeeping.
func NewStream(ctx context.Context, r *Runner, runID string, def *plan.Definition, params map[string]any, onDone func()) *Stream {
	runCtx, cancel := context.WithCancel(ctx)
	s := &Stream{
		runID:  runID,
		chunks: make(chan *StreamChunk, defaultStreamBuffer),
		cancel: cancel,
	}

	go s.pump(runCtx, r, def, params, onDone)
	return s
}

// RunID returns the run identifier.
func (s *Stream) RunID() string { return s.runID }

// Chunks returns the receive side of the stream. It closes after the
// terminal chunk.
func (s *Stream) Chunks() <-chan *StreamChunk { return s.chunks }

// Cancel requests cooperative cancellation of the run. The stream still
// terminates normally, with a cancelled chunk.
func (s *Stream) Cancel() { s.cancel() }

func (s *Stream) pump(ctx context.Context, r *Runner, def *plan.Definition, params map[string]any, onDone func()) {
	defer func() {
		close(s.chunks)
		if onDone != nil {
			onDone()
		}
	}()
	defer s.cancel()

	terminalSent := false
	for chunk, err := range r.ExecuteRun(ctx, s.runID, def, params) {
		if err != nil {
			s.send(ctx, &StreamChunk{Type: ChunkError, Error: err.Error()})
			terminalSent = true
			break
		}
		if chunk.Terminal() {
			if terminalSent {
				slog.Warn("Dropping extra terminal chunk", "run", s.runID, "type", chunk.Type)
				continue
			}
			terminalSent = true
			s.send(ctx, chunk)
			break
		}
		if !s.send(ctx, chunk) {
			return
		}
	}

	if !terminalSent {
		chunk := &StreamChunk{Type: ChunkError, Error: "run ended without a terminal chunk"}
		if ctx.Err() != nil {
			chunk = &StreamChunk{Type: ChunkCancelled, Error: ctx.Err().Error()}
		}
		s.send(ctx, chunk)
	}
}

// send delivers a chunk, giving up when the run context ends so an abandoned
// consumer cannot wedge the pump.
func (s *Stream) send(ctx context.Context, chunk *StreamChunk) bool {
	select {
	case s.chunks <- chunk:
		return true
	case <-ctx.Done():
		if chunk.Terminal() {
			// Last-gasp delivery: the buffer usually has room.
			select {
			case s.chunks <- chunk:
			default:
			}
		}
		return false
	}
}
