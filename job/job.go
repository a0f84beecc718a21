package job

import (
	"encoding/json"
	"math"
	"strconv"
	"time"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// rank orders statuses by how far a job has advanced. Unknown values count as pending.
func (s Status) rank() int {
	switch s {
	case StatusProcessing:
		return 1
	case StatusCompleted, StatusFailed:
		return 2
	}
	return 0
}

// Terminal reports whether no further transitions are expected.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Active reports whether the job still needs polling.
func (s Status) Active() bool {
	return !s.Terminal()
}

// Percent is a progress value clamped to 0..100. Fractional server values are rounded.
type Percent int

func (p *Percent) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*p = 0
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		// Some backends send the number as a string.
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if f, err = strconv.ParseFloat(s, 64); err != nil {
			return err
		}
	}
	*p = Percent(math.Max(0, math.Min(100, math.Round(f))))
	return nil
}

// Job is the server-side snapshot of one asynchronous unit of work.
type Job struct {
	ID             string          `json:"id"`
	Status         Status          `json:"status"`
	Progress       Percent         `json:"progress"`
	Message        string          `json:"message,omitempty"`
	Error          string          `json:"error,omitempty"`
	Result         json.RawMessage `json:"result,omitempty"`
	CreatedAt      float64         `json:"created_at"`
	Title          string          `json:"title,omitempty"`
	RequestSummary string          `json:"request_summary,omitempty"`
	URL            string          `json:"url,omitempty"`
	ImageURL       string          `json:"image_url,omitempty"`
	VideoURL       string          `json:"video_url,omitempty"`
	AudioURL       string          `json:"audio_url,omitempty"`
	OutputURL      string          `json:"output_url,omitempty"`
}

// Created converts the unix-seconds timestamp.
func (j Job) Created() time.Time {
	sec, frac := math.Modf(j.CreatedAt)
	return time.Unix(int64(sec), int64(frac*1e9))
}

// FailureMessage is the text shown to the user for a failed job.
func (j Job) FailureMessage() string {
	switch {
	case j.Error != "":
		return j.Error
	case j.Message != "":
		return j.Message
	}
	return "job failed"
}

// topLevelURLs returns the URL fields some backends put next to the result.
func (j Job) topLevelURLs() [][2]string {
	var out [][2]string
	for _, f := range [][2]string{
		{"url", j.URL},
		{"image_url", j.ImageURL},
		{"video_url", j.VideoURL},
		{"audio_url", j.AudioURL},
		{"output_url", j.OutputURL},
	} {
		if f[1] != "" {
			out = append(out, f)
		}
	}
	return out
}
