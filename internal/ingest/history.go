package ingest

import (
	"sync"
	"time"
)

const defaultHistorySize = 16

// RunResult is the outcome of one Job.Run.
type RunResult struct {
	Started  time.Time
	Finished time.Time
	Elapsed  time.Duration
	Report   Report
	Err      error
}

// History keeps the most recent runs in memory, oldest first.
type History struct {
	mu   sync.Mutex
	size int
	runs []RunResult
}

func NewHistory(size int) *History {
	if size <= 0 {
		size = defaultHistorySize
	}
	return &History{size: size}
}

func (h *History) Add(r RunResult) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.runs = append(h.runs, r)
	if len(h.runs) > h.size {
		h.runs = h.runs[len(h.runs)-h.size:]
	}
}

// Last returns the most recent run, if any.
func (h *History) Last() (RunResult, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.runs) == 0 {
		return RunResult{}, false
	}
	return h.runs[len(h.runs)-1], true
}

func (h *History) All() []RunResult {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]RunResult(nil), h.runs...)
}
