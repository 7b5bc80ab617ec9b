// Package progress tracks how far an analysis run has come. Counters are
// written by the analysis worker and read by pollers without locking.
package progress

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// Status is the phase of an analysis run.
type Status int32

// Run phases, in the only order they may be entered. Done and Failed are terminal.
const (
	StatusStarting Status = iota
	StatusReadingCommits
	StatusGeneratingTree
	StatusDone
	StatusFailed
)

var statusNames = [...]string{"Starting", "ReadingCommits", "GeneratingTree", "Done", "Failed"}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("Status(%d)", int32(s))
	}

	return statusNames[s]
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	for i, name := range statusNames {
		if strings.EqualFold(name, string(text)) {
			*s = Status(i)

			return nil
		}
	}

	return fmt.Errorf("unknown status %q", text)
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

// Snapshot is a point-in-time read of a Reporter.
type Snapshot struct {
	ProcessedCommits int64  `json:"processedCommits"`
	TotalCommits     int64  `json:"totalCommits"`
	Status           Status `json:"status"`
}

// Percent returns the processed share in [0, 100].
func (s Snapshot) Percent() float64 {
	if s.TotalCommits <= 0 {
		if s.Status == StatusDone {
			return 100
		}

		return 0
	}

	return 100 * float64(s.ProcessedCommits) / float64(s.TotalCommits)
}

// Reporter holds the progress of one run. The zero value is ready to use.
type Reporter struct {
	processed atomic.Int64
	total     atomic.Int64
	status    atomic.Int32
}

// New returns a reporter in the Starting state.
func New() *Reporter {
	return &Reporter{}
}

// Reset puts the reporter back to Starting with zero counters.
func (r *Reporter) Reset() {
	r.processed.Store(0)
	r.total.Store(0)
	r.status.Store(int32(StatusStarting))
}

// SetTotal records the number of commits the run will process.
func (r *Reporter) SetTotal(total int64) {
	r.total.Store(total)
}

// Increment marks one more commit as processed.
func (r *Reporter) Increment() {
	r.processed.Add(1)
}

// Add marks n more commits as processed.
func (r *Reporter) Add(n int64) {
	r.processed.Add(n)
}

// Advance moves to next if it lies after the current status and the current
// status is not terminal. It reports whether the transition happened.
func (r *Reporter) Advance(next Status) bool {
	for {
		current := Status(r.status.Load())
		if current.Terminal() || next <= current || next > StatusDone {
			return false
		}

		if r.status.CompareAndSwap(int32(current), int32(next)) {
			return true
		}
	}
}

// Fail moves to Failed unless the run already finished.
func (r *Reporter) Fail() bool {
	for {
		current := Status(r.status.Load())
		if current.Terminal() {
			return false
		}

		if r.status.CompareAndSwap(int32(current), int32(StatusFailed)) {
			return true
		}
	}
}

// Snapshot reads the counters and status.
func (r *Reporter) Snapshot() Snapshot {
	return Snapshot{
		ProcessedCommits: r.processed.Load(),
		TotalCommits:     r.total.Load(),
		Status:           Status(r.status.Load()),
	}
}
