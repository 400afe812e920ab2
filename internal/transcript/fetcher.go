package transcript

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/raphaelgruber/ytrag/internal/models"
)

const (
	// Language is the only caption language consumed.
	Language = "en"

	// DefaultDownloadTimeout bounds each subtitle download.
	DefaultDownloadTimeout = 10 * time.Second

	// DefaultFormat is the preferred caption encoding.
	DefaultFormat = "vtt"

	// maxSubtitleBytes caps a single subtitle download.
	maxSubtitleBytes = 32 << 20
)

// Track is one downloadable encoding of a caption track.
type Track struct {
	Language  string
	URL       string
	Ext       string // vtt, json3, srv1, srv3, ttml, ...
	Automatic bool
}

// Tracks holds caption tracks for a video keyed by language code.
type Tracks struct {
	Manual    map[string][]Track
	Automatic map[string][]Track
}

// CaptionSource resolves caption metadata for a video without downloading media.
type CaptionSource interface {
	Tracks(ctx context.Context, videoID string) (*Tracks, error)
}

// Fetcher retrieves raw English caption text for a video.
// It is stateless apart from its source and HTTP client.
type Fetcher struct {
	source CaptionSource
	client *http.Client
	format string
	logger *slog.Logger

	maxBytes int64
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient sets the client used for subtitle downloads.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		f.client = c
	}
}

// WithFormat sets the preferred caption encoding (e.g. "vtt", "json3").
func WithFormat(format string) Option {
	return func(f *Fetcher) {
		if format != "" {
			f.format = format
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Fetcher) {
		if l != nil {
			f.logger = l
		}
	}
}

// NewFetcher creates a fetcher over the given caption source.
func NewFetcher(source CaptionSource, opts ...Option) *Fetcher {
	f := &Fetcher{
		source: source,
		client: &http.Client{Timeout: DefaultDownloadTimeout},
		format: DefaultFormat,
		logger: slog.Default(),

		maxBytes: maxSubtitleBytes,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FetchURL extracts the video ID from rawURL and fetches its transcript.
// Malformed URLs fail with models.ErrInvalidInput before any network access.
func (f *Fetcher) FetchURL(ctx context.Context, rawURL string) (string, error) {
	id, err := ExtractVideoID(rawURL)
	if err != nil {
		return "", err
	}
	return f.Fetch(ctx, id)
}

// Fetch returns the raw caption text for videoID. Manually authored English
// captions are preferred over automatic ones.
//
// Errors: models.ErrTranscriptUnavailable when no English track exists,
// models.ErrFetch for metadata or download failures.
func (f *Fetcher) Fetch(ctx context.Context, videoID string) (string, error) {
	start := time.Now()

	tracks, err := f.source.Tracks(ctx, videoID)
	if err != nil {
		if errors.Is(err, models.ErrTranscriptUnavailable) {
			return "", err
		}
		f.logger.Warn("caption metadata failed", "video_id", videoID, "error", err)
		return "", models.Wrap(models.ErrFetch, fmt.Errorf("caption metadata for %s: %w", videoID, err))
	}

	track, ok := f.selectTrack(tracks)
	if !ok {
		return "", fmt.Errorf("%w: no English captions available for %s", models.ErrTranscriptUnavailable, videoID)
	}

	f.logger.Debug("caption track selected",
		"video_id", videoID,
		"language", track.Language,
		"ext", track.Ext,
		"automatic", track.Automatic,
	)

	text, err := f.download(ctx, track.URL)
	if err != nil {
		f.logger.Warn("subtitle download failed", "video_id", videoID, "error", err)
		return "", models.Wrap(models.ErrFetch, err)
	}

	f.logger.Info("transcript fetched",
		"video_id", videoID,
		"bytes", len(text),
		"automatic", track.Automatic,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return text, nil
}

// selectTrack picks the manual English track, else the automatic one.
func (f *Fetcher) selectTrack(tracks *Tracks) (Track, bool) {
	if tracks == nil {
		return Track{}, false
	}
	if t, ok := f.pick(tracks.Manual); ok {
		return t, true
	}
	return f.pick(tracks.Automatic)
}

// pick chooses an English entry ("en", then regional "en-*" variants in
// sorted order) and the preferred format within it.
func (f *Fetcher) pick(byLang map[string][]Track) (Track, bool) {
	if list := byLang[Language]; len(list) > 0 {
		return f.preferFormat(list), true
	}

	var variants []string
	for lang, list := range byLang {
		if strings.HasPrefix(lang, Language+"-") && len(list) > 0 {
			variants = append(variants, lang)
		}
	}
	if len(variants) == 0 {
		return Track{}, false
	}
	sort.Strings(variants)
	return f.preferFormat(byLang[variants[0]]), true
}

func (f *Fetcher) preferFormat(list []Track) Track {
	for _, t := range list {
		if strings.EqualFold(t.Ext, f.format) {
			return t
		}
	}
	return list[0]
}

// download GETs a subtitle URL and returns its body.
func (f *Fetcher) download(ctx context.Context, url string) (string, error) {
	if url == "" {
		return "", fmt.Errorf("caption track has no URL")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download subtitles: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return "", fmt.Errorf("download subtitles: %s - %s", resp.Status, strings.TrimSpace(string(snippet)))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("read subtitles: %w", err)
	}
	if int64(len(body)) > f.maxBytes {
		return "", fmt.Errorf("subtitle file exceeds %d bytes", f.maxBytes)
	}
	return string(body), nil
}
