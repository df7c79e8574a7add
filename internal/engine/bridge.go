package engine

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/svenviktorjonsson/tesseracs-chat-sub000/internal/runtime"
)

// bridge is the per-job duplex loop between the attached container socket
// and the consumer. One direction demultiplexes engine output into ordered
// Output events; the other forwards consumer input into the container's
// stdin. Every blocking wait is bounded: the loop selects over socket
// chunks, the input channel and a tick, so a stuck container can never
// stall it.
type bridge struct {
	jobID       string
	containerID string
	stream      runtime.AttachStream
	rt          Runtime
	sink        EventSink
	input       <-chan string
	tick        time.Duration
	log         *zap.Logger
}

// run streams until the container stops, the socket drops, or ctx is
// cancelled. It returns the job's exit code, recovered best-effort from the
// container state on the way out.
func (b *bridge) run(ctx context.Context) int {
	chunks := make(chan []byte, 8)
	go b.readLoop(ctx, chunks)

	var demux runtime.Demux
	ticker := time.NewTicker(b.tick)
	defer ticker.Stop()

	waiting := false
	lastData := time.Now()

loop:
	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				break loop // socket EOF
			}
			demux.Write(chunk)
			for _, f := range demux.Drain() {
				b.sink.Output(f.Stream, f.Text())
			}
			waiting = false
			lastData = time.Now()

		case line := <-b.input:
			if !strings.HasSuffix(line, "\n") {
				line += "\n"
			}
			if _, err := b.stream.Write([]byte(line)); err != nil {
				// Broken pipe: the program is gone. Not an error for the
				// caller; the job just finished.
				b.log.Debug("stdin write failed",
					zap.String("job_id", b.jobID), zap.Error(err))
				break loop
			}
			waiting = false

		case <-ticker.C:
			if waiting || time.Since(lastData) < b.tick {
				continue
			}
			status, err := b.rt.Reload(ctx, b.containerID)
			if err != nil || !status.Running {
				break loop
			}
			// Idle socket while the program still runs: assume it is
			// blocked on stdin. Heuristic, emitted once per quiet period.
			b.sink.AwaitingInput()
			waiting = true

		case <-ctx.Done():
			return ExitFailure
		}
	}

	// Drain whatever the reader already queued, then flush complete frames.
drain:
	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				break drain
			}
			demux.Write(chunk)
		default:
			break drain
		}
	}
	for _, f := range demux.Drain() {
		b.sink.Output(f.Stream, f.Text())
	}

	return b.finalExitCode()
}

// readLoop copies the attach socket into the chunk channel until EOF or
// cancellation. Closing the socket from teardown unblocks the Read.
func (b *bridge) readLoop(ctx context.Context, chunks chan<- []byte) {
	defer close(chunks)
	buf := make([]byte, 32*1024)
	for {
		n, err := b.stream.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case chunks <- chunk:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// finalExitCode queries the container state after the stream ended. When
// the daemon or container is already gone this degrades to ExitFailure.
func (b *bridge) finalExitCode() int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	status, err := b.rt.Reload(ctx, b.containerID)
	if err != nil {
		b.log.Debug("exit code recovery failed",
			zap.String("job_id", b.jobID), zap.Error(err))
		return ExitFailure
	}
	return status.ExitCode
}
