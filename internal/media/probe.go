package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/smartvideo/smartvideo/internal/bintool"
	"github.com/smartvideo/smartvideo/internal/log"
)

// Prober inspects video files with ffprobe.
type Prober struct {
	tools Resolver
	log   log.Logger
	run   runnerFunc
}

// NewProber builds a Prober that resolves ffprobe through tools.
func NewProber(tools Resolver, opts ...Option) *Prober {
	o := applyOptions(opts)
	return &Prober{tools: tools, log: o.log, run: o.run}
}

// Info is the parsed ffprobe inspection of one file.
type Info struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// Stream describes a single stream in the container.
type Stream struct {
	Index      int    `json:"index"`
	CodecName  string `json:"codec_name"`
	CodecType  string `json:"codec_type"`
	Duration   string `json:"duration"`
	BitRate    string `json:"bit_rate"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	SampleRate string `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

// Format captures container-level metadata.
type Format struct {
	Filename   string `json:"filename"`
	NBStreams  int    `json:"nb_streams"`
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
}

// VideoStreamCount returns the number of video streams discovered.
func (i *Info) VideoStreamCount() int {
	count := 0
	for _, s := range i.Streams {
		if strings.EqualFold(s.CodecType, "video") {
			count++
		}
	}
	return count
}

// AudioStreamCount returns the number of audio streams discovered.
func (i *Info) AudioStreamCount() int {
	count := 0
	for _, s := range i.Streams {
		if strings.EqualFold(s.CodecType, "audio") {
			count++
		}
	}
	return count
}

// DurationSeconds returns the container duration, or 0 when the format
// block does not report one.
func (i *Info) DurationSeconds() float64 {
	secs, err := strconv.ParseFloat(strings.TrimSpace(i.Format.Duration), 64)
	if err != nil || secs < 0 {
		return 0
	}
	return secs
}

// Duration reports the container duration of path in seconds.
func (p *Prober) Duration(ctx context.Context, path string) (float64, error) {
	info, err := p.probe(ctx, path, "-show_entries", "format=duration")
	if err != nil {
		return 0, err
	}
	raw := strings.TrimSpace(info.Format.Duration)
	if raw == "" {
		return 0, fmt.Errorf("no duration reported for %s", path)
	}
	secs, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("unparsable duration %q for %s", raw, path)
	}
	return secs, nil
}

// Inspect returns the full stream and container metadata for path.
func (p *Prober) Inspect(ctx context.Context, path string) (*Info, error) {
	return p.probe(ctx, path, "-show_format", "-show_streams")
}

func (p *Prober) probe(ctx context.Context, path string, selectors ...string) (*Info, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("probe: empty path")
	}
	bin, err := p.tools.Path(ctx, bintool.ToolFFprobe)
	if err != nil {
		return nil, err
	}

	args := append([]string{"-v", "error", "-hide_banner"}, selectors...)
	args = append(args, "-of", "json", "--", path)
	out, err := p.run(ctx, bin, args...)
	if err != nil {
		if msg := strings.TrimSpace(string(out)); msg != "" {
			return nil, fmt.Errorf("ffprobe %s: %w: %s", path, err, msg)
		}
		return nil, fmt.Errorf("ffprobe %s: %w", path, err)
	}

	var info Info
	if err := json.Unmarshal(out, &info); err != nil {
		return nil, fmt.Errorf("parsing ffprobe output: %w", err)
	}
	return &info, nil
}
