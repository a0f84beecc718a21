package suggest

import (
	"encoding/json"
	"fmt"
)

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

func (p Priority) weight() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	}
	return 0
}

// Param is one value of a parameter template: a Literal, an ArtifactRef or ArtifactRefs.
// The set is closed; references are resolved by the caller once uploads exist.
type Param interface {
	resolve(refs []string) (any, error)
}

// Literal is a fixed parameter value.
type Literal struct {
	Value any
}

func (l Literal) resolve([]string) (any, error) { return l.Value, nil }

func (l Literal) MarshalJSON() ([]byte, error) { return json.Marshal(l.Value) }

// ArtifactRef points at one of the suggestion's artifacts by position.
type ArtifactRef int

func (r ArtifactRef) resolve(refs []string) (any, error) {
	if int(r) < 0 || int(r) >= len(refs) {
		return nil, fmt.Errorf("artifact reference %d out of range (have %d uploads)", int(r), len(refs))
	}
	return refs[r], nil
}

func (r ArtifactRef) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]int{"artifact": int(r)})
}

// ArtifactRefs is an ordered list of artifact positions.
type ArtifactRefs []ArtifactRef

// refsUpTo references artifacts 0..n-1.
func refsUpTo(n int) ArtifactRefs {
	out := make(ArtifactRefs, n)
	for i := range out {
		out[i] = ArtifactRef(i)
	}
	return out
}

func (rs ArtifactRefs) resolve(refs []string) (any, error) {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		v, err := r.resolve(refs)
		if err != nil {
			return nil, err
		}
		out = append(out, v.(string))
	}
	return out, nil
}

// Suggestion is a candidate operation.
type Suggestion struct {
	Title       string           `json:"title"`
	Icon        string           `json:"icon"`
	Description string           `json:"description"`
	Endpoint    string           `json:"endpoint"`
	Params      map[string]Param `json:"params"`
	Confidence  float64          `json:"confidence"`
	Priority    Priority         `json:"priority"`
	Compatible  Compatibility    `json:"compatible"`
	Reason      string           `json:"reason,omitempty"`
	Warning     string           `json:"warning,omitempty"`
	Combination string           `json:"combination,omitempty"`
	Artifacts   []Artifact       `json:"artifacts"`
}

// ResolveParams substitutes upload references for artifact positions. refs[i]
// is the upload reference of Artifacts[i].
func (s Suggestion) ResolveParams(refs []string) (map[string]any, error) {
	out := make(map[string]any, len(s.Params))
	for k, p := range s.Params {
		v, err := p.resolve(refs)
		if err != nil {
			return nil, fmt.Errorf("param %q: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}

type comboTemplate struct {
	title       string
	icon        string
	description func(n int) string
	endpoint    string
	params      func(n int) map[string]Param
	priority    Priority
}

var comboTemplates = map[string]comboTemplate{
	ComboVideoAudioMerge: {
		title:       "Merge video with audio",
		icon:        "🎵",
		description: func(int) string { return "Adds the audio track to the video" },
		endpoint:    "/v1/video/add/audio",
		params: func(int) map[string]Param {
			return map[string]Param{"video_url": ArtifactRef(0), "audio_url": ArtifactRef(1)}
		},
		priority: PriorityHigh,
	},
	ComboVideoConcatenate: {
		title:       "Concatenate videos",
		icon:        "🎬",
		description: func(n int) string { return fmt.Sprintf("Join %d videos into one", n) },
		endpoint:    "/v1/video/concatenate",
		params: func(n int) map[string]Param {
			return map[string]Param{"video_urls": refsUpTo(n)}
		},
		priority: PriorityHigh,
	},
	ComboVideoCaption: {
		title:       "Add subtitles",
		icon:        "📝",
		description: func(int) string { return "Burn the subtitles into the video" },
		endpoint:    "/v1/video/caption",
		params: func(int) map[string]Param {
			return map[string]Param{"video_url": ArtifactRef(0), "subtitle_url": ArtifactRef(1)}
		},
		priority: PriorityHigh,
	},
	ComboImagesToVideo: {
		title:       "Create video from images",
		icon:        "🖼️",
		description: func(n int) string { return fmt.Sprintf("Turn %d images into a slideshow video", n) },
		endpoint:    "/v1/image/convert/image_to_video",
		params: func(n int) map[string]Param {
			return map[string]Param{"image_urls": refsUpTo(n), "duration_per_image": Literal{Value: 3}}
		},
		priority: PriorityMedium,
	},
	ComboAudioConcatenate: {
		title:       "Concatenate audio files",
		icon:        "🎵",
		description: func(n int) string { return fmt.Sprintf("Join %d audio files", n) },
		endpoint:    "/v1/audio/concatenate",
		params: func(n int) map[string]Param {
			return map[string]Param{"audio_urls": refsUpTo(n)}
		},
		priority: PriorityMedium,
	},
}

func fromCombination(c Combination) (Suggestion, bool) {
	tpl, ok := comboTemplates[c.Type]
	if !ok {
		return Suggestion{}, false
	}
	n := len(c.Artifacts)
	s := Suggestion{
		Title:       tpl.title,
		Icon:        tpl.icon,
		Description: tpl.description(n),
		Endpoint:    tpl.endpoint,
		Params:      tpl.params(n),
		Confidence:  c.Confidence,
		Priority:    tpl.priority,
		Compatible:  c.Compatible,
		Reason:      c.Reason,
		Combination: c.Type,
		Artifacts:   c.Artifacts,
	}
	if c.Compatible != Compatible {
		s.Warning = "⚠️ " + c.Reason
	}
	return s, true
}

type singleTemplate struct {
	title       string
	icon        string
	description string
	endpoint    string
	params      func(language string) map[string]Param
	confidence  float64
	priority    Priority
}

var (
	thumbnailTemplate = singleTemplate{
		title:       "Create thumbnail",
		icon:        "🖼️",
		description: "Generate a preview image from the video",
		endpoint:    "/v1/video/thumbnail",
		params: func(string) map[string]Param {
			return map[string]Param{"video_url": ArtifactRef(0), "timestamp": Literal{Value: "00:00:05"}}
		},
	}
	convertMP3Template = singleTemplate{
		title:    "Convert to MP3",
		icon:     "🎧",
		endpoint: "/v1/media/convert/mp3",
		params: func(string) map[string]Param {
			return map[string]Param{"media_url": ArtifactRef(0)}
		},
	}
	transcribeTemplate = singleTemplate{
		icon:        "📝",
		description: "Turn speech into text",
		endpoint:    "/v1/media/transcribe",
		params: func(language string) map[string]Param {
			return map[string]Param{"media_url": ArtifactRef(0), "language": Literal{Value: language}}
		},
	}
	imageToVideoTemplate = singleTemplate{
		title:       "Convert image to video",
		icon:        "🎬",
		description: "Show the still image as a video",
		endpoint:    "/v1/image/convert/image_to_video",
		params: func(string) map[string]Param {
			return map[string]Param{"image_url": ArtifactRef(0), "duration": Literal{Value: 5}}
		},
		confidence: 0.55,
		priority:   PriorityLow,
	}
)

// singleTemplates lists, per category, at most three single-artifact operations.
var singleTemplates = map[Category][]singleTemplate{
	CategoryVideo: {
		with(thumbnailTemplate, "", "", 0.70, PriorityMedium),
		with(convertMP3Template, "", "Extract the audio track from the video", 0.65, PriorityMedium),
		with(transcribeTemplate, "Transcribe video", "", 0.65, PriorityMedium),
	},
	CategoryAudio: {
		with(transcribeTemplate, "Transcribe audio", "", 0.75, PriorityMedium),
		with(convertMP3Template, "", "Change the audio format", 0.60, PriorityLow),
	},
	CategoryImage: {
		imageToVideoTemplate,
	},
}

func with(t singleTemplate, title, description string, confidence float64, priority Priority) singleTemplate {
	if title != "" {
		t.title = title
	}
	if description != "" {
		t.description = description
	}
	t.confidence = confidence
	t.priority = priority
	return t
}

func forArtifact(a Artifact, language string) []Suggestion {
	templates := singleTemplates[a.Category]
	out := make([]Suggestion, 0, len(templates))
	for _, t := range templates {
		out = append(out, Suggestion{
			Title:       t.title,
			Icon:        t.icon,
			Description: t.description,
			Endpoint:    t.endpoint,
			Params:      t.params(language),
			Confidence:  t.confidence,
			Priority:    t.priority,
			Compatible:  Compatible,
			Artifacts:   []Artifact{a},
		})
	}
	return out
}
