package parser

import (
	"encoding/json"
	"encoding/xml"
	"html"
	"io"
	"regexp"
	"strings"
)

// CaptionFormat identifies a timed-text encoding.
type CaptionFormat string

const (
	FormatVTT   CaptionFormat = "vtt"
	FormatSRT   CaptionFormat = "srt"
	FormatJSON3 CaptionFormat = "json3"
	FormatXML   CaptionFormat = "xml" // srv1/srv3/ttml
	FormatPlain CaptionFormat = "plain"
)

// inlineTag matches cue markup like <c>, </c>, <i> and <00:00:01.500>.
var inlineTag = regexp.MustCompile(`<[^>]*>`)

// DetectCaptionFormat guesses the encoding of raw caption data.
func DetectCaptionFormat(raw string) CaptionFormat {
	s := strings.TrimSpace(strings.TrimPrefix(raw, "\ufeff"))
	switch {
	case strings.HasPrefix(s, "WEBVTT"):
		return FormatVTT
	case strings.HasPrefix(s, "{") && strings.Contains(s, `"events"`):
		return FormatJSON3
	case strings.HasPrefix(s, "<"):
		return FormatXML
	case strings.Contains(s, "-->"):
		return FormatSRT
	default:
		return FormatPlain
	}
}

// CleanCaptions converts raw caption data into plain transcript text.
// Cue numbers, timings, markup and consecutive duplicate lines (rolling
// auto-captions) are dropped; the remaining lines are joined with spaces.
// Input that cannot be decoded in its detected format is returned trimmed.
func CleanCaptions(raw string) string {
	var lines []string
	var err error

	switch DetectCaptionFormat(raw) {
	case FormatVTT, FormatSRT:
		lines = cueLines(raw)
	case FormatJSON3:
		lines, err = json3Lines(raw)
	case FormatXML:
		lines, err = xmlLines(raw)
	default:
		return strings.TrimSpace(raw)
	}
	if err != nil {
		return strings.TrimSpace(raw)
	}

	return strings.Join(dedupe(lines), " ")
}

// cueLines extracts text lines from WebVTT or SRT.
func cueLines(raw string) []string {
	//	WEBVTT
	//	Kind: captions
	//	Language: en
	//
	//	1
	//	00:00:00.000 --> 00:00:01.830 align:start position:0%
	//	I'm happy to<00:00:00.500><c> have</c>
	var lines []string
	inHeader := strings.HasPrefix(strings.TrimSpace(strings.TrimPrefix(raw, "\ufeff")), "WEBVTT")
	skipBlock := false

	rawLines := strings.Split(raw, "\n")
	for i, line := range rawLines {
		line = strings.TrimSpace(strings.TrimPrefix(line, "\ufeff"))

		if line == "" {
			inHeader = false
			skipBlock = false
			continue
		}
		if inHeader || skipBlock {
			continue
		}

		if strings.HasPrefix(line, "NOTE") || line == "STYLE" || line == "REGION" {
			skipBlock = true
			continue
		}

		// Sequence numbers precede a timing line; digits anywhere else are cue text.
		if isDigitOnly(line) && nextIsTiming(rawLines[i+1:]) {
			continue
		}

		// Timing line (start --> end)
		if strings.Contains(line, "-->") {
			continue
		}

		if text := cleanLine(line); text != "" {
			lines = append(lines, text)
		}
	}

	return lines
}

// nextIsTiming reports whether the first non-empty line in rest is a cue timing line.
func nextIsTiming(rest []string) bool {
	for _, l := range rest {
		if l = strings.TrimSpace(l); l != "" {
			return strings.Contains(l, "-->")
		}
	}
	return false
}

// json3Doc is the subset of YouTube's json3 caption format we read.
type json3Doc struct {
	Events []struct {
		Segs []struct {
			UTF8 string `json:"utf8"`
		} `json:"segs"`
	} `json:"events"`
}

func json3Lines(raw string) ([]string, error) {
	var doc json3Doc
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, err
	}

	var lines []string
	for _, ev := range doc.Events {
		var sb strings.Builder
		for _, seg := range ev.Segs {
			sb.WriteString(seg.UTF8)
		}
		for _, l := range strings.Split(sb.String(), "\n") {
			if text := cleanLine(l); text != "" {
				lines = append(lines, text)
			}
		}
	}
	return lines, nil
}

// xmlLines reads timed-text XML: srv1 <text>, srv3 <p>/<s> and TTML <p>/<span>.
func xmlLines(raw string) ([]string, error) {
	dec := xml.NewDecoder(strings.NewReader(raw))
	dec.Strict = false
	dec.Entity = xml.HTMLEntity

	var lines []string
	var sb strings.Builder
	depth := 0

	flush := func() {
		if text := cleanLine(sb.String()); text != "" {
			lines = append(lines, text)
		}
		sb.Reset()
	}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p", "text":
				depth++
			case "br":
				if depth > 0 {
					sb.WriteString(" ")
				}
			}
		case xml.EndElement:
			if (t.Name.Local == "p" || t.Name.Local == "text") && depth > 0 {
				depth--
				if depth == 0 {
					flush()
				}
			}
		case xml.CharData:
			if depth > 0 {
				sb.Write(t)
			}
		}
	}

	return lines, nil
}

// cleanLine strips markup and entities and collapses whitespace.
func cleanLine(s string) string {
	s = inlineTag.ReplaceAllString(s, "")
	// srv1 double-escapes entities (&amp;#39;)
	s = html.UnescapeString(html.UnescapeString(s))
	return strings.Join(strings.Fields(s), " ")
}

// dedupe drops lines identical to their predecessor.
func dedupe(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if len(out) > 0 && out[len(out)-1] == l {
			continue
		}
		out = append(out, l)
	}
	return out
}

// isDigitOnly checks if a string contains only digits.
func isDigitOnly(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
