package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"mediaflow/config"
	"mediaflow/suggest"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Prober reads duration and frame size of local media files with ffprobe.
// Results are cached per path, size and modification time.
type Prober struct {
	bin     string
	args    []string
	timeout time.Duration
	cache   *lru.Cache[string, suggest.MediaMetadata]
	run     func(ctx context.Context, name string, args ...string) ([]byte, error)
}

func NewProber(cfg *config.Config) (*Prober, error) {
	if _, err := exec.LookPath(cfg.FFProbeBin); err != nil {
		return nil, fmt.Errorf("ffprobe binary not found or not in PATH: %s", cfg.FFProbeBin)
	}
	return newProber(cfg.FFProbeBin, cfg.FFProbeArgs, cfg.ProbeTimeout, cfg.ProbeCacheSize)
}

func newProber(bin, argTemplate string, timeout time.Duration, cacheSize int) (*Prober, error) {
	args, err := SplitCommand(argTemplate)
	if err != nil {
		return nil, err
	}
	if err := ValidateArgs(args); err != nil {
		return nil, fmt.Errorf("invalid probe arguments: %w", err)
	}
	if cacheSize <= 0 {
		cacheSize = 256
	}
	cache, err := lru.New[string, suggest.MediaMetadata](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Prober{
		bin:     bin,
		args:    args,
		timeout: timeout,
		cache:   cache,
		run:     runCommand,
	}, nil
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffprobe execution failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// Inspect implements suggest.Inspector.
func (p *Prober) Inspect(ctx context.Context, path string) (*suggest.MediaMetadata, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("could not stat input file: %w", err)
	}
	key := fmt.Sprintf("%s|%d|%d", path, info.Size(), info.ModTime().UnixNano())
	if md, ok := p.cache.Get(key); ok {
		return &md, nil
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	log.Printf("Probing %s", path)
	out, err := p.run(ctx, p.bin, BindInput(p.args, path)...)
	if err != nil {
		return nil, err
	}

	md, err := parseProbeOutput(out)
	if err != nil {
		return nil, err
	}
	p.cache.Add(key, *md)
	return md, nil
}

type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
		Duration  string `json:"duration"`
	} `json:"streams"`
}

func parseProbeOutput(out []byte) (*suggest.MediaMetadata, error) {
	var po probeOutput
	if err := json.Unmarshal(out, &po); err != nil {
		return nil, fmt.Errorf("could not parse ffprobe output: %w", err)
	}

	md := &suggest.MediaMetadata{Duration: parseSeconds(po.Format.Duration)}
	for _, s := range po.Streams {
		if md.Duration == 0 {
			if d := parseSeconds(s.Duration); d > md.Duration {
				md.Duration = d
			}
		}
		if s.CodecType == "video" && md.Width == 0 && s.Width > 0 && s.Height > 0 {
			md.Width, md.Height = s.Width, s.Height
		}
	}

	if md.Duration == 0 && md.Width == 0 {
		return nil, fmt.Errorf("no duration or video stream found")
	}
	return md, nil
}

func parseSeconds(s string) float64 {
	if s == "" || s == "N/A" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}
