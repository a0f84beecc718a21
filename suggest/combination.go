package suggest

import "math"

// Compatibility is a tri-state: unknown when metadata is missing on either side.
type Compatibility int8

const (
	CompatUnknown Compatibility = iota
	Compatible
	Incompatible
)

// Known converts a definite answer into a Compatibility.
func Known(ok bool) Compatibility {
	if ok {
		return Compatible
	}
	return Incompatible
}

func (c Compatibility) MarshalJSON() ([]byte, error) {
	switch c {
	case Compatible:
		return []byte("true"), nil
	case Incompatible:
		return []byte("false"), nil
	}
	return []byte("null"), nil
}

func (c *Compatibility) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case "true":
		*c = Compatible
	case "false":
		*c = Incompatible
	default:
		*c = CompatUnknown
	}
	return nil
}

const (
	ComboVideoAudioMerge  = "video_audio_merge"
	ComboVideoConcatenate = "video_concatenate"
	ComboVideoCaption     = "video_caption"
	ComboImagesToVideo    = "images_to_video"
	ComboAudioConcatenate = "audio_concatenate"
)

// durationTolerance is the largest duration gap, in seconds, still treated as a match.
const durationTolerance = 1.0

// Combination is a detected multi-artifact pattern.
type Combination struct {
	Type       string        `json:"type"`
	Artifacts  []Artifact    `json:"artifacts"`
	Confidence float64       `json:"confidence"`
	Compatible Compatibility `json:"compatible"`
	Reason     string        `json:"reason"`
}

type byCategory map[Category][]Artifact

func group(artifacts []Artifact) byCategory {
	g := make(byCategory)
	for _, a := range artifacts {
		g[a.Category] = append(g[a.Category], a)
	}
	return g
}

// DetectCombinations evaluates every pattern independently; one set of
// artifacts may match several.
func DetectCombinations(artifacts []Artifact) []Combination {
	g := group(artifacts)
	videos, audios := g[CategoryVideo], g[CategoryAudio]
	images, subtitles := g[CategoryImage], g[CategorySubtitle]

	var combos []Combination

	if len(videos) == 1 && len(audios) == 1 {
		match := durationMatch(videos[0], audios[0])
		c := Combination{
			Type:       ComboVideoAudioMerge,
			Artifacts:  []Artifact{videos[0], audios[0]},
			Confidence: 0.80,
			Compatible: match,
		}
		switch match {
		case Compatible:
			c.Confidence = 0.95
			c.Reason = "Video and audio have the same length"
		case Incompatible:
			c.Reason = "Video and audio have different lengths"
		default:
			c.Reason = "Video and audio length could not be compared"
		}
		combos = append(combos, c)
	}

	if len(videos) > 1 {
		match := resolutionMatch(videos)
		c := Combination{
			Type:       ComboVideoConcatenate,
			Artifacts:  videos,
			Confidence: 0.75,
			Compatible: match,
		}
		switch match {
		case Compatible:
			c.Confidence = 0.90
			c.Reason = "All videos have the same resolution"
		case Incompatible:
			c.Reason = "Videos have different resolutions"
		default:
			c.Reason = "Video resolutions could not be compared"
		}
		combos = append(combos, c)
	}

	if len(videos) == 1 && len(subtitles) == 1 {
		combos = append(combos, Combination{
			Type:       ComboVideoCaption,
			Artifacts:  []Artifact{videos[0], subtitles[0]},
			Confidence: 0.90,
			Compatible: Compatible,
			Reason:     "Subtitles can be burned into the video",
		})
	}

	if len(images) > 1 {
		combos = append(combos, Combination{
			Type:       ComboImagesToVideo,
			Artifacts:  images,
			Confidence: 0.75,
			Compatible: Compatible,
			Reason:     "Images can be joined into a video",
		})
	}

	if len(audios) > 1 {
		combos = append(combos, Combination{
			Type:       ComboAudioConcatenate,
			Artifacts:  audios,
			Confidence: 0.85,
			Compatible: Compatible,
			Reason:     "Audio files can be concatenated",
		})
	}

	return combos
}

func durationMatch(a, b Artifact) Compatibility {
	if a.Metadata == nil || b.Metadata == nil {
		return CompatUnknown
	}
	if a.Metadata.Duration <= 0 || b.Metadata.Duration <= 0 {
		return CompatUnknown
	}
	return Known(math.Abs(a.Metadata.Duration-b.Metadata.Duration) < durationTolerance)
}

func resolutionMatch(videos []Artifact) Compatibility {
	if len(videos) == 0 {
		return CompatUnknown
	}
	first := videos[0].Metadata.Resolution()
	if first == "" {
		return CompatUnknown
	}
	same := true
	for _, v := range videos[1:] {
		r := v.Metadata.Resolution()
		if r == "" {
			return CompatUnknown
		}
		if r != first {
			same = false
		}
	}
	return Known(same)
}
