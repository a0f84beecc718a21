package job

import "mediaflow/progress"

// advanceAt is the server progress at which the tracker moves to its next step.
const advanceAt = 75

// tracker maps job snapshots onto a progress.Tracker.
type tracker struct {
	t        *progress.Tracker
	advanced bool
}

func (w *tracker) observe(j Job) {
	switch j.Status {
	case StatusCompleted:
		w.t.Finish()
	case StatusFailed:
		w.t.Fail(j.FailureMessage())
	default:
		if j.Progress >= advanceAt && !w.advanced {
			w.advanced = true
			w.t.Advance(j.Message)
			return
		}
		if j.Message != "" {
			w.t.UpdateMessage(j.Message)
		}
	}
}
