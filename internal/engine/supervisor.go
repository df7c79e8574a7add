package engine

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/svenviktorjonsson/tesseracs-chat-sub000/internal/config"
	"github.com/svenviktorjonsson/tesseracs-chat-sub000/internal/runtime"
)

// supervisor owns one job end-to-end: workspace, container, bridge,
// timeout, teardown. It is the sole writer of the job's terminal event;
// every path out of run emits Finished exactly once.
type supervisor struct {
	job  Job
	lang config.LanguageConfig
	cfg  config.EngineConfig
	rt   Runtime
	reg  *Registry
	sink EventSink
	log  *zap.Logger

	finished bool
}

func (s *supervisor) run(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("job supervisor panic",
				zap.String("job_id", s.job.ID), zap.Any("panic", r))
			s.teardown()
			s.finish(ExitFailure, fmt.Sprintf("internal error: %v", r), nil)
		}
	}()

	ws, err := materializeWorkspace(s.cfg.WorkspaceRoot, s.job.Files)
	if err != nil {
		s.finish(ExitFailure, err.Error(), nil)
		return
	}

	entry := s.job.EntryCommand
	network := false
	if s.lang.PipInstall {
		if pkgs := detectPythonPackages(s.job.Files); len(pkgs) > 0 {
			entry = wrapPipInstall(entry, pkgs)
			network = true
		}
	}

	containerID, err := s.rt.Create(ctx, runtime.CreateSpec{
		Image:        s.lang.Image,
		Command:      []string{"sh", "-c", entry},
		WorkspaceDir: ws,
		MemoryMB:     s.cfg.MemoryMB,
		Network:      network,
		Labels: map[string]string{
			"tesseracs.job-id":    s.job.ID,
			"tesseracs.client-id": s.job.ClientID,
		},
	})
	if err != nil {
		os.RemoveAll(ws)
		s.finish(ExitFailure, err.Error(), nil)
		return
	}

	stream, err := s.rt.Attach(ctx, containerID)
	if err != nil {
		s.removeContainer(containerID)
		os.RemoveAll(ws)
		s.finish(ExitFailure, err.Error(), nil)
		return
	}

	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	handle := &Handle{
		ContainerID:  containerID,
		Stream:       stream,
		WorkspaceDir: ws,
		ClientID:     s.job.ClientID,
		Input:        make(chan string, 16),
		cancel:       cancel,
	}

	// Register after attach but before start: the moment the container can
	// produce output it is already stoppable and removable.
	if !s.reg.Register(s.job.ID, handle) {
		stream.Close()
		s.removeContainer(containerID)
		os.RemoveAll(ws)
		s.finish(ExitFailure, ErrJobActive.Error(), nil)
		return
	}

	if err := s.rt.Start(jobCtx, containerID); err != nil {
		s.teardown()
		s.finish(ExitFailure, err.Error(), nil)
		return
	}

	runCtx, cancelRun := context.WithTimeout(jobCtx, s.cfg.Timeout())
	defer cancelRun()

	br := &bridge{
		jobID:       s.job.ID,
		containerID: containerID,
		stream:      stream,
		rt:          s.rt,
		sink:        s.sink,
		input:       handle.Input,
		tick:        s.cfg.InputTick(),
		log:         s.log,
	}
	done := make(chan int, 1)
	go func() { done <- br.run(runCtx) }()

	select {
	case code := <-done:
		switch {
		case runCtx.Err() == context.DeadlineExceeded:
			s.finish(ExitTimeout, timeoutMessage, nil)
		case jobCtx.Err() != nil:
			s.finish(ExitFailure, stoppedMessage, nil)
		default:
			s.finish(code, "", readArtifact(ws, s.cfg.ArtifactFile))
		}
	case <-runCtx.Done():
		if runCtx.Err() == context.DeadlineExceeded {
			s.finish(ExitTimeout, timeoutMessage, nil)
		} else {
			s.finish(ExitFailure, stoppedMessage, nil)
		}
	}

	s.teardown()
}

// finish emits the terminal event once.
func (s *supervisor) finish(exitCode int, errMessage string, artifact []byte) {
	if s.finished {
		return
	}
	s.finished = true
	s.sink.Finished(exitCode, errMessage, artifact)
	s.log.Info("job finished",
		zap.String("job_id", s.job.ID),
		zap.Int("exit_code", exitCode),
		zap.String("error", errMessage))
}

// teardown releases the job's resources if this supervisor wins the
// registry pop; the stop path may have already claimed them, in which case
// this is a no-op.
func (s *supervisor) teardown() {
	handle, ok := s.reg.Pop(s.job.ID)
	if !ok {
		return
	}
	cleanupHandle(s.rt, handle, s.log)
}

func (s *supervisor) removeContainer(containerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.rt.Remove(ctx, containerID); err != nil {
		s.log.Warn("container remove failed",
			zap.String("job_id", s.job.ID), zap.Error(err))
	}
}

// cleanupHandle closes the socket, kills and removes the container and
// deletes the workspace. All failures are logged and swallowed; nothing
// here may prevent registry cleanup or a terminal event.
func cleanupHandle(rt Runtime, h *Handle, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if h.Stream != nil {
		h.Stream.Close()
	}
	if err := rt.Kill(ctx, h.ContainerID); err != nil {
		log.Warn("container kill failed",
			zap.String("container_id", h.ContainerID), zap.Error(err))
	}
	if err := rt.Remove(ctx, h.ContainerID); err != nil {
		log.Warn("container remove failed",
			zap.String("container_id", h.ContainerID), zap.Error(err))
	}
	if h.WorkspaceDir != "" {
		if err := os.RemoveAll(h.WorkspaceDir); err != nil {
			log.Warn("workspace cleanup failed",
				zap.String("path", h.WorkspaceDir), zap.Error(err))
		}
	}
}
