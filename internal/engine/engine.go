package engine

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/svenviktorjonsson/tesseracs-chat-sub000/internal/config"
	"github.com/svenviktorjonsson/tesseracs-chat-sub000/internal/runtime"
)

// Engine is the public face of the execution core: submit a job, feed it
// input, stop it, and clean up after a client. Each submitted job runs on
// its own supervisor goroutine; the only state shared between jobs is the
// registry.
type Engine struct {
	rt  Runtime
	reg *Registry
	cfg *config.Config
	log *zap.Logger
}

// New builds an engine on top of a connected container runtime.
func New(rt Runtime, cfg *config.Config, log *zap.Logger) *Engine {
	return &Engine{rt: rt, reg: NewRegistry(), cfg: cfg, log: log}
}

// NewDisabled builds an engine that rejects every submission. Used when the
// container daemon was unreachable at startup so the rest of the service
// can still run.
func NewDisabled(cfg *config.Config, log *zap.Logger) *Engine {
	return &Engine{reg: NewRegistry(), cfg: cfg, log: log}
}

// Available reports whether the engine can run jobs at all.
func (e *Engine) Available() bool {
	return e.rt != nil
}

// Submit begins asynchronous execution of a job. Validation failures that
// precede any provisioning are returned directly; everything after that is
// reported through the sink, ending in exactly one Finished event.
func (e *Engine) Submit(ctx context.Context, job Job, sink EventSink) error {
	if e.rt == nil {
		return runtime.ErrEngineUnavailable
	}
	if job.ID == "" {
		return errors.New("job id required")
	}
	if _, active := e.reg.Get(job.ID); active {
		return ErrJobActive
	}

	lang, err := e.cfg.Language(job.Language)
	if err != nil {
		// Configuration error: rejected before any container exists, but
		// still delivered as the job's terminal event so the consumer
		// never waits on a job that will not run.
		sink.Finished(ExitFailure, err.Error(), nil)
		return nil
	}

	sup := &supervisor{
		job:  job,
		lang: lang,
		cfg:  e.cfg.Engine,
		rt:   e.rt,
		reg:  e.reg,
		sink: sink,
		log:  e.log,
	}
	go sup.run(context.WithoutCancel(ctx))

	e.log.Info("job submitted",
		zap.String("job_id", job.ID),
		zap.String("client_id", job.ClientID),
		zap.String("language", job.Language))
	return nil
}

// SendInput forwards a line of text to a running job's stdin. Unknown or
// finished job ids are a logged no-op.
func (e *Engine) SendInput(jobID, text string) {
	handle, ok := e.reg.Get(jobID)
	if !ok {
		e.log.Info("input for inactive job ignored", zap.String("job_id", jobID))
		return
	}
	select {
	case handle.Input <- text:
	default:
		e.log.Warn("input dropped, bridge not consuming", zap.String("job_id", jobID))
	}
}

// Stop terminates a job. Idempotent: whichever of stop, timeout or natural
// completion pops the registry entry first performs teardown; later calls
// are no-ops.
func (e *Engine) Stop(jobID string) {
	handle, ok := e.reg.Pop(jobID)
	if !ok {
		return
	}
	e.log.Info("stopping job", zap.String("job_id", jobID))
	handle.Cancel()
	cleanupHandle(e.rt, handle, e.log)
}

// CleanupClient stops every job owned by a client. Used when the client
// disconnects.
func (e *Engine) CleanupClient(clientID string) {
	for _, jobID := range e.reg.FindByClient(clientID) {
		e.Stop(jobID)
	}
}

// ActiveJobs reports how many jobs are currently registered.
func (e *Engine) ActiveJobs() int {
	return e.reg.Len()
}

// Shutdown stops every active job.
func (e *Engine) Shutdown() {
	for _, jobID := range e.reg.AllIDs() {
		e.Stop(jobID)
	}
}
