package monitoring

import (
	"sort"
	"sync"
	"time"
)

// JobSummary describes the recorded history of one background job.
type JobSummary struct {
	Job                 string        `json:"job"`
	TotalRuns           uint64        `json:"total_runs"`
	Failures            uint64        `json:"failures"`
	ConsecutiveFailures uint64        `json:"consecutive_failures"`
	LastRunAt           time.Time     `json:"last_run_at"`
	LastSuccessAt       time.Time     `json:"last_success_at"`
	LastDuration        time.Duration `json:"last_duration"`
	LastError           string        `json:"last_error,omitempty"`
}

// JobTracker records maintenance job outcomes. The zero value is not usable;
// call NewJobTracker.
type JobTracker struct {
	mu   sync.RWMutex
	jobs map[string]*JobSummary
	now  func() time.Time
}

// NewJobTracker constructs an empty tracker.
func NewJobTracker() *JobTracker {
	return &JobTracker{jobs: make(map[string]*JobSummary), now: time.Now}
}

// Register makes a job visible before its first run.
func (t *JobTracker) Register(job string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entry(job)
}

// Record stores the outcome of one run.
func (t *JobTracker) Record(job string, err error, duration time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry := t.entry(job)
	now := t.now()
	entry.TotalRuns++
	entry.LastRunAt = now
	entry.LastDuration = duration
	if err != nil {
		entry.Failures++
		entry.ConsecutiveFailures++
		entry.LastError = err.Error()
		return
	}
	entry.ConsecutiveFailures = 0
	entry.LastSuccessAt = now
	entry.LastError = ""
}

// Snapshot returns copies of all job summaries sorted by name.
func (t *JobTracker) Snapshot() []JobSummary {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]JobSummary, 0, len(t.jobs))
	for _, entry := range t.jobs {
		out = append(out, *entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Job < out[j].Job })
	return out
}

func (t *JobTracker) entry(job string) *JobSummary {
	entry, ok := t.jobs[job]
	if !ok {
		entry = &JobSummary{Job: job}
		t.jobs[job] = entry
	}
	return entry
}
