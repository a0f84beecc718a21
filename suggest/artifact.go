package suggest

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

type Category string

const (
	CategoryVideo    Category = "video"
	CategoryAudio    Category = "audio"
	CategoryImage    Category = "image"
	CategorySubtitle Category = "subtitle"
	CategoryOther    Category = "other"
)

// MediaMetadata holds what local inspection could learn about a media file.
// Zero fields mean unknown.
type MediaMetadata struct {
	Duration float64 `json:"duration,omitempty"`
	Width    int     `json:"width,omitempty"`
	Height   int     `json:"height,omitempty"`
}

// Resolution formats the frame size as WxH, or "" when unknown.
func (m *MediaMetadata) Resolution() string {
	if m == nil || m.Width <= 0 || m.Height <= 0 {
		return ""
	}
	return fmt.Sprintf("%dx%d", m.Width, m.Height)
}

// Inspector extracts media metadata from a local file.
type Inspector interface {
	Inspect(ctx context.Context, path string) (*MediaMetadata, error)
}

// Input is one attached file as reported by the caller.
type Input struct {
	Name      string `json:"name" binding:"required"`
	Path      string `json:"path,omitempty"`
	Size      int64  `json:"size"`
	MediaType string `json:"type,omitempty"`
}

// Artifact is the immutable descriptor of one attached file.
type Artifact struct {
	Name      string         `json:"name"`
	Path      string         `json:"path,omitempty"`
	Size      int64          `json:"size"`
	MediaType string         `json:"type"`
	Extension string         `json:"extension"`
	Category  Category       `json:"category"`
	Metadata  *MediaMetadata `json:"metadata"`
}

// Categorize maps a declared media type onto a Category.
func Categorize(mediaType string) Category {
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))
	switch {
	case strings.HasPrefix(mediaType, "video/"):
		return CategoryVideo
	case strings.HasPrefix(mediaType, "audio/"):
		return CategoryAudio
	case strings.HasPrefix(mediaType, "image/"):
		return CategoryImage
	case strings.Contains(mediaType, "subtitle"),
		strings.Contains(mediaType, "srt"),
		strings.Contains(mediaType, "subrip"),
		strings.Contains(mediaType, "vtt"):
		return CategorySubtitle
	}
	return CategoryOther
}

// Describe builds the descriptor for in. A missing media type is sniffed from
// the file contents; metadata for video and audio is read through inspector.
// Every lookup is best-effort: failures leave the field unknown.
func Describe(ctx context.Context, in Input, inspector Inspector) Artifact {
	a := Artifact{
		Name:      in.Name,
		Path:      in.Path,
		Size:      in.Size,
		MediaType: in.MediaType,
		Extension: extension(in.Name),
	}

	if a.Path != "" {
		if a.Size <= 0 {
			if info, err := os.Stat(a.Path); err == nil {
				a.Size = info.Size()
			}
		}
		if a.MediaType == "" {
			if mt, err := mimetype.DetectFile(a.Path); err == nil {
				a.MediaType = mt.String()
			} else {
				log.Printf("Could not sniff media type of %s: %v", a.Name, err)
			}
		}
	}

	a.Category = Categorize(a.MediaType)

	if (a.Category == CategoryVideo || a.Category == CategoryAudio) && a.Path != "" && inspector != nil {
		md, err := inspector.Inspect(ctx, a.Path)
		if err != nil {
			log.Printf("Could not extract metadata from %s: %v", a.Name, err)
		} else {
			a.Metadata = md
		}
	}

	return a
}

func extension(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}
