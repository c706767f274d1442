package api

import (
	"sync"
	"time"
)

// State is the shared crawl progress snapshot, updated by the worker
// goroutine and read by status polls. It doubles as the crawl engine's
// progress sink.
type State struct {
	mu        sync.Mutex
	running   bool
	status    string
	message   string
	count     int
	errors    []string
	startTime time.Time
	elapsed   int
	csvPath   string
}

// StatusSnapshot is the JSON shape returned by the status endpoint.
type StatusSnapshot struct {
	Running bool     `json:"running"`
	Status  string   `json:"status"`
	Message string   `json:"message"`
	Count   int      `json:"count"`
	Errors  []string `json:"errors"`
	Elapsed int      `json:"elapsed"`
	CSVPath string   `json:"csv_path,omitempty"`
}

// TryStart flips the running flag. Returns false when a crawl is already in
// progress; only one crawl runs at a time.
func (s *State) TryStart() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	s.startTime = time.Now()
	s.status = "Starting..."
	s.message = ""
	s.count = 0
	s.errors = nil
	s.elapsed = 0
	s.csvPath = ""
	return true
}

// Finish clears the running flag and records the final outcome.
func (s *State) Finish(status, message, csvPath string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.status = status
	s.message = message
	s.csvPath = csvPath
	if !s.startTime.IsZero() {
		s.elapsed = int(time.Since(s.startTime).Seconds())
	}
}

// Status implements the progress sink: engine status updates land here.
func (s *State) Status(status, message string, count int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
	s.message = message
	s.count = count
}

// Log implements the progress sink: error lines accumulate for the UI.
func (s *State) Log(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, line)
}

// Snapshot returns a copy safe to serialize.
func (s *State) Snapshot() StatusSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	elapsed := s.elapsed
	if s.running && !s.startTime.IsZero() {
		elapsed = int(time.Since(s.startTime).Seconds())
	}
	errs := make([]string, len(s.errors))
	copy(errs, s.errors)
	return StatusSnapshot{
		Running: s.running,
		Status:  s.status,
		Message: s.message,
		Count:   s.count,
		Errors:  errs,
		Elapsed: elapsed,
		CSVPath: s.csvPath,
	}
}
