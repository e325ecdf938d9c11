// Package engine glues a packet source, the pipeline and a forwarder into
// a run loop.
package engine

import (
	"context"
	"errors"
	"io"

	"firestige.xyz/spindle/internal/core"
	"firestige.xyz/spindle/internal/log"
	"firestige.xyz/spindle/internal/pipeline"
	"firestige.xyz/spindle/internal/source"
)

const defaultBatch = 64

// Engine runs one pipeline shard to completion over frames read from its
// source. One engine per core; the source fanout is responsible for
// steering both directions of a flow to the same engine.
type Engine struct {
	src   source.Source
	pipe  *pipeline.Pipeline
	fwd   core.Forwarder
	batch int
}

// New creates an engine. batch bounds the frame size; zero picks a default.
func New(src source.Source, pipe *pipeline.Pipeline, fwd core.Forwarder, batch int) *Engine {
	if batch <= 0 {
		batch = defaultBatch
	}
	return &Engine{src: src, pipe: pipe, fwd: fwd, batch: batch}
}

// Run reads, processes and forwards frames until the context is cancelled
// or a finite source drains. Packet processing is run-to-completion on this
// goroutine; nothing here is shared.
func (e *Engine) Run(ctx context.Context) error {
	frame := make(core.Frame, 0, e.batch)

	flush := func() {
		if len(frame) == 0 {
			return
		}
		e.pipe.Process(frame)
		e.fwd.Forward(frame)
		frame = frame[:0]
	}

	for {
		if ctx.Err() != nil {
			flush()
			return nil
		}

		data, err := e.src.ReadPacket()
		if errors.Is(err, io.EOF) {
			flush()
			log.GetLogger().Info("source drained")
			return nil
		}
		if err != nil {
			flush()
			return err
		}
		if data == nil {
			// Poll timeout or non-IPv4 frame.
			flush()
			continue
		}

		frame = append(frame, core.NewBuffer(data))
		if len(frame) == e.batch {
			flush()
		}
	}
}
