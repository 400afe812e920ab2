package transcript

import (
	"context"
	"fmt"
	"net/http"

	"github.com/kkdai/youtube/v2"
)

// innertubeFormats are the encodings requested for each caption track via &fmt=.
var innertubeFormats = []string{"vtt", "json3", "srv3"}

// InnertubeSource reads caption tracks from YouTube's player response.
// It needs no external binary, unlike YtdlpSource.
type InnertubeSource struct {
	client *youtube.Client
}

// Compile-time check that InnertubeSource implements CaptionSource.
var _ CaptionSource = (*InnertubeSource)(nil)

// NewInnertubeSource creates a source using httpClient for metadata requests.
func NewInnertubeSource(httpClient *http.Client) *InnertubeSource {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &InnertubeSource{
		client: &youtube.Client{HTTPClient: httpClient},
	}
}

// Tracks fetches video metadata and converts its caption tracks.
// Tracks with kind "asr" are automatic captions.
func (s *InnertubeSource) Tracks(ctx context.Context, videoID string) (*Tracks, error) {
	video, err := s.client.GetVideoContext(ctx, videoID)
	if err != nil {
		return nil, fmt.Errorf("get video: %w", err)
	}

	tracks := &Tracks{
		Manual:    make(map[string][]Track),
		Automatic: make(map[string][]Track),
	}
	for _, ct := range video.CaptionTracks {
		if ct.BaseURL == "" {
			continue
		}
		automatic := ct.Kind == "asr"
		target := tracks.Manual
		if automatic {
			target = tracks.Automatic
		}

		for _, format := range innertubeFormats {
			target[ct.LanguageCode] = append(target[ct.LanguageCode], Track{
				Language:  ct.LanguageCode,
				URL:       ct.BaseURL + "&fmt=" + format,
				Ext:       format,
				Automatic: automatic,
			})
		}
		// The bare base URL serves srv1 XML.
		target[ct.LanguageCode] = append(target[ct.LanguageCode], Track{
			Language:  ct.LanguageCode,
			URL:       ct.BaseURL,
			Ext:       "srv1",
			Automatic: automatic,
		})
	}

	return tracks, nil
}
