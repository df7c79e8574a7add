package engine

import (
	"context"
	"sync"

	"github.com/svenviktorjonsson/tesseracs-chat-sub000/internal/runtime"
)

// Handle is the live resource bundle for one job. The supervisor that
// created it owns the container and workspace; the bridge reads and writes
// the stream.
type Handle struct {
	ContainerID  string
	Stream       runtime.AttachStream
	WorkspaceDir string
	ClientID     string

	// Input carries consumer-submitted stdin lines to the bridge.
	Input chan string

	cancel context.CancelFunc
}

// Cancel aborts the supervisor driving this job. Safe to call repeatedly.
func (h *Handle) Cancel() {
	if h.cancel != nil {
		h.cancel()
	}
}

// Registry maps active job ids to their sandbox handles. An entry exists
// exactly while the job's container is created/running or teardown is in
// progress; it is the single source of truth for "is this job stoppable".
//
// The mutex guards map mutations only. Teardown I/O always happens after
// the lock is released, using the popped handle.
type Registry struct {
	mu   sync.Mutex
	jobs map[string]*Handle
}

func NewRegistry() *Registry {
	return &Registry{jobs: make(map[string]*Handle)}
}

// Register inserts a handle. Returns false if the job id is already taken.
func (r *Registry) Register(jobID string, h *Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.jobs[jobID]; exists {
		return false
	}
	r.jobs[jobID] = h
	return true
}

// Get returns the handle for an active job without removing it.
func (r *Registry) Get(jobID string) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.jobs[jobID]
	return h, ok
}

// Pop atomically removes and returns the handle. It is the only deletion
// path; when teardown races (timeout vs explicit stop), at most one caller
// observes a present handle and the loser's call is a no-op.
func (r *Registry) Pop(jobID string) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.jobs[jobID]
	if ok {
		delete(r.jobs, jobID)
	}
	return h, ok
}

// FindByClient returns the ids of every active job owned by a client.
func (r *Registry) FindByClient(clientID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for id, h := range r.jobs {
		if h.ClientID == clientID {
			ids = append(ids, id)
		}
	}
	return ids
}

// AllIDs returns the ids of every active job.
func (r *Registry) AllIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.jobs))
	for id := range r.jobs {
		ids = append(ids, id)
	}
	return ids
}

// Len reports the number of active jobs.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}
