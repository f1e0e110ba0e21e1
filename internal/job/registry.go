package job

import (
	"sort"
	"sync"

	"github.com/jonboulle/clockwork"
)

// Default bounds for registry bookkeeping.
const (
	DefaultHistoryCap     = 50
	DefaultProgressBuffer = 1000
)

// RegistryConfig bounds the registry's in-memory retention.
type RegistryConfig struct {
	HistoryCap     int // terminal jobs kept, oldest evicted (default 50)
	ProgressBuffer int // progress lines retained per job (default 1000)
}

type caseKind struct {
	caseID string
	kind   Kind
}

// Registry owns all jobs: the active set while they run, then a bounded
// terminal history. TryReserve is the single enforcement point for the
// one-active-job-per-case-and-kind rule.
type Registry struct {
	mu          sync.Mutex
	clock       clockwork.Clock
	historyCap  int
	progressCap int
	active      map[string]*Job
	reserved    map[caseKind]*Job
	history     []*Job // oldest first
}

// NewRegistry creates a job registry. Zero config fields fall back to
// the defaults.
func NewRegistry(clock clockwork.Clock, config RegistryConfig) *Registry {
	if config.HistoryCap <= 0 {
		config.HistoryCap = DefaultHistoryCap
	}
	if config.ProgressBuffer <= 0 {
		config.ProgressBuffer = DefaultProgressBuffer
	}
	return &Registry{
		clock:       clock,
		historyCap:  config.HistoryCap,
		progressCap: config.ProgressBuffer,
		active:      make(map[string]*Job),
		reserved:    make(map[caseKind]*Job),
	}
}

// TryReserve atomically checks that no job of this kind is active for
// the case and registers a fresh Pending job. Returns DuplicateJobError
// when one already is.
func (r *Registry) TryReserve(caseID string, kind Kind) (*Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := caseKind{caseID: caseID, kind: kind}
	if _, exists := r.reserved[key]; exists {
		return nil, &DuplicateJobError{CaseID: caseID, Kind: kind}
	}

	j := newJob(r.clock, caseID, kind, r.progressCap)
	r.reserved[key] = j
	r.active[j.ID()] = j
	return j, nil
}

// Release moves a terminal job from the active set to the history,
// evicting the oldest entry past the cap. Releasing a job that is not
// terminal, or was already released, is a no-op.
func (r *Registry) Release(j *Job) {
	if j == nil || !j.State().Terminal() {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.active[j.ID()]; !ok {
		return
	}
	delete(r.active, j.ID())

	key := caseKind{caseID: j.CaseID(), kind: j.Kind()}
	if r.reserved[key] == j {
		delete(r.reserved, key)
	}

	r.history = append(r.history, j)
	if len(r.history) > r.historyCap {
		r.history = append([]*Job(nil), r.history[len(r.history)-r.historyCap:]...)
	}
}

// Get returns a job by id, searching the active set first and then the
// history.
func (r *Registry) Get(jobID string) (*Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if j, ok := r.active[jobID]; ok {
		return j, true
	}
	for i := len(r.history) - 1; i >= 0; i-- {
		if r.history[i].ID() == jobID {
			return r.history[i], true
		}
	}
	return nil, false
}

// Active returns the non-terminal jobs, oldest reservation first.
func (r *Registry) Active() []*Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return sortByCreation(r.active)
}

// ActiveForCase returns the non-terminal jobs of one case, oldest
// reservation first.
func (r *Registry) ActiveForCase(caseID string) []*Job {
	r.mu.Lock()
	defer r.mu.Unlock()

	matching := make(map[string]*Job)
	for id, j := range r.active {
		if j.CaseID() == caseID {
			matching[id] = j
		}
	}
	return sortByCreation(matching)
}

// History returns the terminal jobs, most recent first.
func (r *Registry) History() []*Job {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Job, len(r.history))
	for i, j := range r.history {
		out[len(r.history)-1-i] = j
	}
	return out
}

func sortByCreation(jobs map[string]*Job) []*Job {
	out := make([]*Job, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j)
	}
	sort.Slice(out, func(i, k int) bool {
		if out[i].CreatedAt().Equal(out[k].CreatedAt()) {
			return out[i].ID() < out[k].ID()
		}
		return out[i].CreatedAt().Before(out[k].CreatedAt())
	})
	return out
}
