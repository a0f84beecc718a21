// Package progress models a user-visible operation as a fixed, ordered
// sequence of phases that only move forward.
package progress

import (
	"math"
	"sync"
	"time"
)

type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepActive    StepStatus = "active"
	StepCompleted StepStatus = "completed"
	StepError     StepStatus = "error"
)

// Phase is the caller-supplied definition of one step.
type Phase struct {
	Title   string `json:"title"`
	Message string `json:"message,omitempty"`
}

// Step is the runtime state of one phase.
type Step struct {
	Title     string     `json:"title"`
	Message   string     `json:"message,omitempty"`
	Status    StepStatus `json:"status"`
	StartedAt time.Time  `json:"startedAt,omitempty"`
	EndedAt   time.Time  `json:"endedAt,omitempty"`
}

// Elapsed returns the time spent in the step so far, or zero if it never started.
func (s Step) Elapsed(now time.Time) time.Duration {
	if s.StartedAt.IsZero() {
		return 0
	}
	if !s.EndedAt.IsZero() {
		return s.EndedAt.Sub(s.StartedAt)
	}
	return now.Sub(s.StartedAt)
}

// Summary is a point-in-time copy of a tracker.
type Summary struct {
	Percent int    `json:"percent"`
	Failed  bool   `json:"failed"`
	Steps   []Step `json:"steps"`
}

// Tracker never polls; it only reacts to calls.
type Tracker struct {
	mu      sync.Mutex
	steps   []Step
	current int
	failed  bool
	now     func() time.Time
}

func NewTracker() *Tracker {
	return &Tracker{current: -1, now: time.Now}
}

// Start resets the tracker to the given phases, all pending.
func (t *Tracker) Start(phases []Phase) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.steps = make([]Step, len(phases))
	for i, p := range phases {
		t.steps[i] = Step{Title: p.Title, Message: p.Message, Status: StepPending}
	}
	t.current = -1
	t.failed = false
}

// Advance completes the active phase and activates the next one. Past the
// last phase only the completion happens. A failed tracker ignores it.
func (t *Tracker) Advance(message string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.failed {
		return
	}
	now := t.now()
	if t.active() {
		t.steps[t.current].Status = StepCompleted
		t.steps[t.current].EndedAt = now
	}
	if t.current >= len(t.steps) {
		return
	}
	t.current++
	if t.current < len(t.steps) {
		t.steps[t.current].Status = StepActive
		t.steps[t.current].StartedAt = now
		if message != "" {
			t.steps[t.current].Message = message
		}
	}
}

// UpdateMessage replaces the message of the active phase only.
func (t *Tracker) UpdateMessage(message string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.active() && t.steps[t.current].Status == StepActive {
		t.steps[t.current].Message = message
	}
}

// Fail marks the active phase as errored and freezes the tracker.
func (t *Tracker) Fail(message string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.failed {
		return
	}
	t.failed = true
	if t.active() {
		t.steps[t.current].Status = StepError
		t.steps[t.current].Message = message
		t.steps[t.current].EndedAt = t.now()
	}
}

// Finish completes every phase from the current one onward. Errored phases stay errored.
func (t *Tracker) Finish() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.failed {
		return
	}
	now := t.now()
	from := t.current
	if from < 0 {
		from = 0
	}
	for i := from; i < len(t.steps); i++ {
		if t.steps[i].Status == StepCompleted {
			continue
		}
		if t.steps[i].StartedAt.IsZero() {
			t.steps[i].StartedAt = now
		}
		t.steps[i].Status = StepCompleted
		t.steps[i].EndedAt = now
	}
	t.current = len(t.steps)
}

// Percent is completed/total*100 rounded to the nearest integer.
func (t *Tracker) Percent() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.percent()
}

func (t *Tracker) percent() int {
	if len(t.steps) == 0 {
		return 0
	}
	done := 0
	for _, s := range t.steps {
		if s.Status == StepCompleted {
			done++
		}
	}
	return int(math.Round(float64(done) / float64(len(t.steps)) * 100))
}

// Failed reports whether Fail was called since the last Start.
func (t *Tracker) Failed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failed
}

// Summary returns a copy of the current state.
func (t *Tracker) Summary() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	steps := make([]Step, len(t.steps))
	copy(steps, t.steps)
	return Summary{Percent: t.percent(), Failed: t.failed, Steps: steps}
}

func (t *Tracker) active() bool {
	return t.current >= 0 && t.current < len(t.steps)
}

// DefaultPhases is the phase list used for a submitted job.
func DefaultPhases() []Phase {
	return []Phase{
		{Title: "Prepare request", Message: "Uploading files..."},
		{Title: "Submit", Message: "Sending request to the job service..."},
		{Title: "Processing", Message: "Running the job..."},
		{Title: "Done", Message: "Preparing the result..."},
	}
}
