// Package suggest inspects freshly attached files and proposes, ranks and
// parameterizes candidate operations without a server round-trip.
package suggest

import (
	"context"
	"fmt"
	"log"
	"sort"

	"mediaflow/config"

	"github.com/c2h5oh/datasize"
	"github.com/shirou/gopsutil/v3/disk"
)

type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

const (
	WarningLargeFile          = "large_file"
	WarningUnsupportedFormat  = "unsupported_format"
	WarningResolutionMismatch = "resolution_mismatch"
	WarningLowDiskSpace       = "low_disk_space"
)

const defaultLanguage = "en"

// Warning is a non-fatal issue with the attached files.
type Warning struct {
	Type      string     `json:"type"`
	Severity  Severity   `json:"severity"`
	Message   string     `json:"message"`
	Artifacts []Artifact `json:"artifacts"`
}

// Analysis is the full engine output for one set of artifacts.
type Analysis struct {
	Artifacts    []Artifact    `json:"artifacts"`
	Combinations []Combination `json:"combinations"`
	Suggestions  []Suggestion  `json:"suggestions"`
	Warnings     []Warning     `json:"warnings"`
}

// Primary is the top-ranked suggestion, the one a UI runs with a single action.
func (a *Analysis) Primary() (Suggestion, bool) {
	if len(a.Suggestions) == 0 {
		return Suggestion{}, false
	}
	return a.Suggestions[0], true
}

// Secondary returns every suggestion after the primary one, in rank order.
func (a *Analysis) Secondary() []Suggestion {
	if len(a.Suggestions) < 2 {
		return nil
	}
	return a.Suggestions[1:]
}

type Engine struct {
	cfg       *config.Config
	inspector Inspector
	language  string
	diskFree  func(path string) (uint64, error)
}

func NewEngine(cfg *config.Config, inspector Inspector) *Engine {
	return &Engine{
		cfg:       cfg,
		inspector: inspector,
		language:  defaultLanguage,
		diskFree:  freeDiskSpace,
	}
}

func freeDiskSpace(path string) (uint64, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return 0, err
	}
	return usage.Free, nil
}

// Analyze describes each input and evaluates the resulting artifacts.
func (e *Engine) Analyze(ctx context.Context, inputs []Input) *Analysis {
	log.Printf("Analyzing %d file(s)", len(inputs))

	artifacts := make([]Artifact, 0, len(inputs))
	for _, in := range inputs {
		artifacts = append(artifacts, Describe(ctx, in, e.inspector))
	}
	return e.Evaluate(artifacts)
}

// Evaluate runs combination detection, suggestion generation, ranking and
// warning checks over already described artifacts.
func (e *Engine) Evaluate(artifacts []Artifact) *Analysis {
	a := &Analysis{
		Artifacts:    artifacts,
		Combinations: DetectCombinations(artifacts),
	}
	a.Suggestions = e.suggestions(a.Artifacts, a.Combinations)
	a.Warnings = e.warnings(a.Artifacts)

	log.Printf("Analysis complete: %d combination(s), %d suggestion(s), %d warning(s)",
		len(a.Combinations), len(a.Suggestions), len(a.Warnings))
	return a
}

func (e *Engine) suggestions(artifacts []Artifact, combos []Combination) []Suggestion {
	var out []Suggestion
	for _, c := range combos {
		if s, ok := fromCombination(c); ok {
			out = append(out, s)
		}
	}
	for _, a := range artifacts {
		out = append(out, forArtifact(a, e.language)...)
	}
	Rank(out)
	return out
}

// Rank orders suggestions by priority tier, then confidence, both descending.
// Ties keep their input order.
func Rank(suggestions []Suggestion) {
	sort.SliceStable(suggestions, func(i, j int) bool {
		pi, pj := suggestions[i].Priority.weight(), suggestions[j].Priority.weight()
		if pi != pj {
			return pi > pj
		}
		return suggestions[i].Confidence > suggestions[j].Confidence
	})
}

func (e *Engine) warnings(artifacts []Artifact) []Warning {
	var out []Warning

	var large, unsupported, videos []Artifact
	var total int64
	for _, a := range artifacts {
		total += a.Size
		if e.cfg.LargeFileThreshold > 0 && a.Size > e.cfg.LargeFileThreshold {
			large = append(large, a)
		}
		switch a.Category {
		case CategoryOther:
			unsupported = append(unsupported, a)
		case CategoryVideo:
			videos = append(videos, a)
		}
	}

	if len(large) > 0 {
		out = append(out, Warning{
			Type:     WarningLargeFile,
			Severity: SeverityWarning,
			Message: fmt.Sprintf("%d file(s) larger than %s. Upload may take longer.",
				len(large), datasize.ByteSize(e.cfg.LargeFileThreshold).HR()),
			Artifacts: large,
		})
	}

	if len(unsupported) > 0 {
		out = append(out, Warning{
			Type:      WarningUnsupportedFormat,
			Severity:  SeverityError,
			Message:   fmt.Sprintf("%d file(s) with an unsupported format", len(unsupported)),
			Artifacts: unsupported,
		})
	}

	if len(videos) > 1 && resolutionMatch(videos) == Incompatible {
		out = append(out, Warning{
			Type:      WarningResolutionMismatch,
			Severity:  SeverityWarning,
			Message:   "Videos have different resolutions. They will be scaled to match.",
			Artifacts: videos,
		})
	}

	if w, ok := e.diskWarning(artifacts, total); ok {
		out = append(out, w)
	}

	return out
}

func (e *Engine) diskWarning(artifacts []Artifact, total int64) (Warning, bool) {
	if e.cfg.MinFreeDisk <= 0 || e.cfg.StagingDir == "" || len(artifacts) == 0 {
		return Warning{}, false
	}
	free, err := e.diskFree(e.cfg.StagingDir)
	if err != nil {
		log.Printf("Warning: could not get disk usage for %s: %v", e.cfg.StagingDir, err)
		return Warning{}, false
	}
	if int64(free)-total >= e.cfg.MinFreeDisk {
		return Warning{}, false
	}
	return Warning{
		Type:     WarningLowDiskSpace,
		Severity: SeverityWarning,
		Message: fmt.Sprintf("Only %s free in %s for %s of files",
			datasize.ByteSize(free).HR(), e.cfg.StagingDir, datasize.ByteSize(total).HR()),
		Artifacts: artifacts,
	}, true
}
