// Package segmenter implements the Text Segmenter (spec §4.F): a
// left-to-right, Unicode-code-point rule set that splits input text into
// sentence-sized segments, grounded on the teacher's splitSentences
// (internal/speech/mouth.go) and generalized to the spec's boundary set,
// forced max-length splitting, and cumulative position tracking.
package segmenter

import (
	"strings"
	"unicode"
)

// DefaultMaxSegmentLength is the default max_segment_length in code
// points (spec §4.F).
const DefaultMaxSegmentLength = 100

// terminators is the set of sentence boundary characters that end a
// segment, inclusive of the character itself (spec §4.F).
var terminators = map[rune]bool{
	'。': true, '！': true, '？': true,
	'.': true, '!': true, '?': true,
}

// Segment is one sentence-level chunk of input text, with its position
// recorded as the cumulative length of previously emitted segment texts
// (spec §4.F, §9 Open Question — not the original input offset).
type Segment struct {
	Text     string
	Position int
	Length   int
}

// Split applies the spec §4.F rule set to text, forcing a split at
// maxLen code points if no boundary is found first. maxLen <= 0 uses
// DefaultMaxSegmentLength.
func Split(text string, maxLen int) []Segment {
	if maxLen <= 0 {
		maxLen = DefaultMaxSegmentLength
	}

	runes := []rune(text)
	var raw []string
	var current []rune

	flush := func() {
		if len(current) > 0 {
			raw = append(raw, string(current))
			current = nil
		}
	}

	for i := 0; i < len(runes); i++ {
		r := runes[i]

		if r == '\n' || r == '\r' {
			flush()
			continue
		}

		current = append(current, r)

		if terminators[r] {
			flush()
			continue
		}

		if len(current) >= maxLen {
			flush()
		}
	}
	flush()

	return normalize(raw)
}

// normalize trims leading/trailing whitespace, collapses interior
// whitespace runs to a single space, drops segments that become empty,
// and falls back to a single minimal-utterance segment if everything
// collapsed away (spec §4.F). Positions are cumulative over emitted text.
func normalize(raw []string) []Segment {
	var out []Segment
	pos := 0

	for _, s := range raw {
		norm := collapseWhitespace(s)
		if norm == "" {
			continue
		}
		length := len([]rune(norm))
		out = append(out, Segment{Text: norm, Position: pos, Length: length})
		pos += length
	}

	if len(out) == 0 {
		return []Segment{{Text: "。", Position: 0, Length: 1}}
	}
	return out
}

func collapseWhitespace(s string) string {
	fields := strings.FieldsFunc(s, unicode.IsSpace)
	return strings.Join(fields, " ")
}

// TotalLength returns the sum of segment lengths, for statistics (spec
// §4.F).
func TotalLength(segments []Segment) int {
	total := 0
	for _, s := range segments {
		total += s.Length
	}
	return total
}
