// Package markup splits generated response text into renderable segments.
package markup

import "strings"

const (
	KindText = "text"
	KindCode = "code"

	fence           = "```"
	defaultLanguage = "plaintext"
)

// Segment is a contiguous run of response text that renders either as prose
// or as a fenced code block.
type Segment struct {
	Kind     string `json:"kind"` // "text" or "code"
	Content  string `json:"content"`
	Language string `json:"language,omitempty"` // set for code segments only
}

// Split scans text for triple-backtick fenced regions. Everything outside a
// fence becomes a text segment, every fenced region becomes a code segment
// tagged with its language ("plaintext" when the tag is missing). Blank text
// segments are dropped; ordering is preserved. An unterminated fence is kept
// as literal text.
func Split(text string) []Segment {
	var segments []Segment
	rest := text

	for {
		open := strings.Index(rest, fence)
		if open < 0 {
			break
		}

		// The language tag runs from the opening fence to end of line.
		afterOpen := rest[open+len(fence):]
		nl := strings.Index(afterOpen, "\n")
		if nl < 0 {
			break // fence opened on the last line, treat as literal
		}
		lang := strings.TrimSpace(afterOpen[:nl])
		body := afterOpen[nl+1:]

		end := strings.Index(body, fence)
		if end < 0 {
			break // unterminated fence
		}

		segments = appendText(segments, rest[:open])
		if lang == "" {
			lang = defaultLanguage
		}
		segments = append(segments, Segment{Kind: KindCode, Content: body[:end], Language: lang})

		rest = body[end+len(fence):]
	}

	segments = appendText(segments, rest)
	return segments
}

// Join renders segments back into fenced text. Join is the inverse of Split
// up to blank-segment dropping: Split(Join(Split(s))) == Split(s).
func Join(segments []Segment) string {
	var b strings.Builder
	for _, seg := range segments {
		if seg.Kind == KindCode {
			lang := seg.Language
			if lang == "" {
				lang = defaultLanguage
			}
			b.WriteString(fence)
			b.WriteString(lang)
			b.WriteString("\n")
			b.WriteString(seg.Content)
			b.WriteString(fence)
			continue
		}
		b.WriteString(seg.Content)
	}
	return b.String()
}

func appendText(segments []Segment, content string) []Segment {
	if strings.TrimSpace(content) == "" {
		return segments
	}
	return append(segments, Segment{Kind: KindText, Content: content})
}
