package scheduler

import "sync"

// Registry maps schedule identity to its live job and enforces "at most one
// live job per identity". It holds no business state, only cancellable handles.
type Registry struct {
	mu   sync.Mutex
	jobs map[string]*Job
}

func NewRegistry() *Registry {
	return &Registry{jobs: map[string]*Job{}}
}

// Start installs the job built by build for id, cancelling any previous job
// for the same id first. The swap happens under one lock, so the old and new
// job are never both live. Calling Start twice for the same id is safe and
// leaves exactly one live job.
func (r *Registry) Start(id string, build func() *Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.jobs[id]; ok {
		old.Cancel()
	}
	r.jobs[id] = build()
}

// Stop cancels and removes the job for id; no-op when absent.
func (r *Registry) Stop(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if j, ok := r.jobs[id]; ok {
		j.Cancel()
		delete(r.jobs, id)
	}
}

// StopAll cancels every live job.
func (r *Registry) StopAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, j := range r.jobs {
		j.Cancel()
		delete(r.jobs, id)
	}
}

// Contains reports whether a live job exists for id.
func (r *Registry) Contains(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.jobs[id]
	return ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}
