// Package transcript resolves YouTube caption tracks and downloads their raw text.
package transcript

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/raphaelgruber/ytrag/internal/models"
)

// videoIDPattern restricts identifiers to the characters YouTube uses.
var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// pathPrefixes are youtube.com paths that carry the ID as a path segment.
var pathPrefixes = []string{"/shorts/", "/embed/", "/live/", "/v/"}

// ExtractVideoID returns the video identifier named by a YouTube URL.
//
// Hosts containing youtube.com use the v query parameter (or a /shorts/,
// /embed/, /live/ path when v is absent); youtu.be short links use the first
// path segment. Anything else fails with models.ErrInvalidInput.
func ExtractVideoID(rawURL string) (string, error) {
	raw := strings.TrimSpace(rawURL)
	if raw == "" {
		return "", fmt.Errorf("%w: empty URL", models.ErrInvalidInput)
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %q is not a URL: %v", models.ErrInvalidInput, rawURL, err)
	}

	host := strings.ToLower(u.Hostname())
	var id string
	switch {
	case strings.Contains(host, "youtube.com"):
		id = u.Query().Get("v")
		if id == "" {
			for _, prefix := range pathPrefixes {
				if rest, ok := strings.CutPrefix(u.Path, prefix); ok {
					id, _, _ = strings.Cut(rest, "/")
					break
				}
			}
		}
	case strings.Contains(host, "youtu.be"):
		id, _, _ = strings.Cut(strings.TrimPrefix(u.Path, "/"), "/")
	default:
		return "", fmt.Errorf("%w: %q is not a YouTube URL", models.ErrInvalidInput, rawURL)
	}

	if id == "" {
		return "", fmt.Errorf("%w: no video ID in %q", models.ErrInvalidInput, rawURL)
	}
	if !videoIDPattern.MatchString(id) {
		return "", fmt.Errorf("%w: malformed video ID %q", models.ErrInvalidInput, id)
	}
	return id, nil
}

// WatchURL returns the canonical watch URL for a video ID.
func WatchURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}
