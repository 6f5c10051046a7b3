package service

import (
	"slices"
	"sync"
)

// BuildQueue holds branches requested while a build was running. A branch
// appears at most once.
type BuildQueue struct {
	mu       sync.Mutex
	enabled  bool
	branches []string
}

func NewBuildQueue(enabled bool) *BuildQueue {
	return &BuildQueue{enabled: enabled}
}

func (q *BuildQueue) Enabled() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.enabled
}

// AppendUnlessExists is a no-op when queueing is disabled or the branch is
// already waiting.
func (q *BuildQueue) AppendUnlessExists(branch string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.enabled || slices.Contains(q.branches, branch) {
		return
	}
	q.branches = append(q.branches, branch)
}

// NextToBuild pops the head of the queue. The boolean is false when the
// queue was empty.
func (q *BuildQueue) NextToBuild() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.branches) == 0 {
		return "", false
	}
	branch := q.branches[0]
	q.branches = slices.Delete(q.branches, 0, 1)
	return branch, true
}

func (q *BuildQueue) Waiting() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.branches) > 0
}

func (q *BuildQueue) Branches() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Clone(q.branches)
}
