// Package normalize turns arbitrarily shaped job result payloads into an
// ordered, de-duplicated list of display blocks.
package normalize

import (
	"fmt"
	"path"
	"strings"
	"unicode/utf8"
)

type BlockType string

const (
	BlockVideo BlockType = "video"
	BlockAudio BlockType = "audio"
	BlockImage BlockType = "image"
	BlockText  BlockType = "text"
)

// Block is one renderable unit of a job result.
type Block struct {
	Type    BlockType `json:"type"`
	URL     string    `json:"url,omitempty"`
	Content string    `json:"content,omitempty"`
	Label   string    `json:"label"`
}

// textKeys are the field names whose string values carry displayable text, in lookup order.
var textKeys = []string{
	"text", "transcript", "summary", "content", "message",
	"response", "result", "output", "analysis", "reasoning",
}

var mediaExtensions = map[string]BlockType{
	"mp4":  BlockVideo,
	"webm": BlockVideo,
	"ogg":  BlockVideo,
	"mov":  BlockVideo,
	"mp3":  BlockAudio,
	"wav":  BlockAudio,
	"aac":  BlockAudio,
	"m4a":  BlockAudio,
	"png":  BlockImage,
	"jpg":  BlockImage,
	"jpeg": BlockImage,
	"gif":  BlockImage,
	"webp": BlockImage,
}

const (
	minTextLength = 21
	rootLabel     = "Media"
)

// Normalizer resolves bare filenames through uploadURL.
type Normalizer struct {
	uploadURL func(filename string) string
}

func New(uploadURL func(filename string) string) *Normalizer {
	if uploadURL == nil {
		uploadURL = func(filename string) string { return "/uploads/" + filename }
	}
	return &Normalizer{uploadURL: uploadURL}
}

// Normalize parses raw and extracts its blocks. Only a payload that is not
// valid JSON yields an error; an empty payload yields no blocks.
func (n *Normalizer) Normalize(raw []byte) ([]Block, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil, nil
	}
	v, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	return n.NormalizeValue(v), nil
}

// NormalizeValue extracts blocks from v. Media blocks come first, text blocks
// after, each group in traversal order.
func (n *Normalizer) NormalizeValue(v Value) []Block {
	c := &collector{seen: make(map[string]struct{})}

	Walk(v, func(context string, node Value) {
		label := context
		if label == "" {
			label = rootLabel
		}

		if urlField, ok := node.Field("url"); ok && urlField.Truthy() {
			if urlField.Kind == KindString {
				if typ, ok := DetectType(urlField.Str); ok {
					c.add(Block{Type: typ, URL: urlField.Str, Label: label})
				}
			}
		} else if filename, ok := node.StringField("filename"); ok && filename != "" {
			if typ, ok := DetectType(filename); ok {
				c.add(Block{Type: typ, URL: n.uploadURL(filename), Label: label})
			}
		}

		for _, key := range textKeys {
			text, ok := node.StringField(key)
			if !ok || !isDisplayText(text) {
				continue
			}
			textLabel := key
			if context != "" {
				textLabel = fmt.Sprintf("%s (%s)", context, key)
			}
			c.add(Block{Type: BlockText, Content: text, Label: textLabel})
		}
	})

	return c.ordered()
}

// DetectType classifies a URL or filename by its extension, ignoring query and fragment.
func DetectType(ref string) (BlockType, bool) {
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		ref = ref[:i]
	}
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(ref), "."))
	typ, ok := mediaExtensions[ext]
	return typ, ok
}

func isDisplayText(s string) bool {
	if utf8.RuneCountInString(s) < minTextLength {
		return false
	}
	return !looksLikeURL(s)
}

func looksLikeURL(s string) bool {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
		return false
	}
	return !strings.ContainsAny(s, " \t\n")
}

type collector struct {
	seen   map[string]struct{}
	blocks []Block
}

// add keeps the first block for a given URL or text body.
func (c *collector) add(b Block) {
	key := b.URL
	if b.Type == BlockText {
		key = b.Content
	}
	if key == "" {
		return
	}
	if _, dup := c.seen[key]; dup {
		return
	}
	c.seen[key] = struct{}{}
	c.blocks = append(c.blocks, b)
}

func (c *collector) ordered() []Block {
	out := make([]Block, 0, len(c.blocks))
	for _, b := range c.blocks {
		if b.Type != BlockText {
			out = append(out, b)
		}
	}
	for _, b := range c.blocks {
		if b.Type == BlockText {
			out = append(out, b)
		}
	}
	return out
}
