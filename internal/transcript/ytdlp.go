package transcript

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// DefaultYtdlpPath is the yt-dlp executable looked up on PATH.
const DefaultYtdlpPath = "yt-dlp"

// ytdlpUserAgent mirrors a desktop browser; yt-dlp's default is more often blocked.
const ytdlpUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

// CommandRunner executes an external command and returns its stdout.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// YtdlpSource reads caption metadata from `yt-dlp --dump-single-json`.
type YtdlpSource struct {
	Path string
	run  CommandRunner
}

// Compile-time check that YtdlpSource implements CaptionSource.
var _ CaptionSource = (*YtdlpSource)(nil)

// NewYtdlpSource creates a yt-dlp backed source. An empty path uses DefaultYtdlpPath.
func NewYtdlpSource(path string) *YtdlpSource {
	if path == "" {
		path = DefaultYtdlpPath
	}
	return &YtdlpSource{Path: path, run: execRunner}
}

// NewYtdlpSourceWithRunner creates a source that runs commands through run (for testing).
func NewYtdlpSourceWithRunner(path string, run CommandRunner) *YtdlpSource {
	s := NewYtdlpSource(path)
	s.run = run
	return s
}

// Tracks runs yt-dlp for videoID without downloading media.
func (s *YtdlpSource) Tracks(ctx context.Context, videoID string) (*Tracks, error) {
	out, err := s.run(ctx, s.Path,
		"--dump-single-json",
		"--skip-download",
		"--no-playlist",
		"--no-warnings",
		"--user-agent", ytdlpUserAgent,
		WatchURL(videoID),
	)
	if err != nil {
		return nil, fmt.Errorf("yt-dlp: %w", err)
	}
	return ParseYtdlpInfo(out)
}

// ytdlpInfo is the subset of yt-dlp's info JSON we read.
type ytdlpInfo struct {
	Subtitles         map[string][]ytdlpSub `json:"subtitles"`
	AutomaticCaptions map[string][]ytdlpSub `json:"automatic_captions"`
}

type ytdlpSub struct {
	Ext  string `json:"ext"`
	URL  string `json:"url"`
	Name string `json:"name"`
}

// ParseYtdlpInfo decodes caption tracks from yt-dlp info JSON.
func ParseYtdlpInfo(data []byte) (*Tracks, error) {
	var info ytdlpInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("decode yt-dlp output: %w", err)
	}

	return &Tracks{
		Manual:    convertSubs(info.Subtitles, false),
		Automatic: convertSubs(info.AutomaticCaptions, true),
	}, nil
}

func convertSubs(in map[string][]ytdlpSub, automatic bool) map[string][]Track {
	out := make(map[string][]Track, len(in))
	for lang, subs := range in {
		tracks := make([]Track, 0, len(subs))
		for _, s := range subs {
			if s.URL == "" {
				continue
			}
			tracks = append(tracks, Track{
				Language:  lang,
				URL:       s.URL,
				Ext:       s.Ext,
				Automatic: automatic,
			})
		}
		if len(tracks) > 0 {
			out[lang] = tracks
		}
	}
	return out
}

// execRunner runs the command and folds stderr into the error message.
func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			if msg := strings.TrimSpace(stderr.String()); msg != "" {
				return nil, fmt.Errorf("%w: %s", err, msg)
			}
		}
		return nil, err
	}
	return out, nil
}
