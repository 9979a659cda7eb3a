package segmenter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitBasicSentences(t *testing.T) {
	segs := Split("Hello world. How are you? Fine!", 0)
	wantTexts := []string{"Hello world.", "How are you?", "Fine!"}
	assert.Len(t, segs, len(wantTexts))
	for i, want := range wantTexts {
		assert.Equal(t, want, segs[i].Text)
	}
}

func TestSplitJapanesePunctuation(t *testing.T) {
	segs := Split("こんにちは。元気ですか？", 0)
	assert.Equal(t, []string{"こんにちは。", "元気ですか？"}, textsOf(segs))
}

func TestSplitNewlineTerminatesWithoutPunctuation(t *testing.T) {
	segs := Split("first line\nsecond line", 0)
	assert.Equal(t, []string{"first line", "second line"}, textsOf(segs))
}

func TestSplitForcedAtMaxLength(t *testing.T) {
	text := strings.Repeat("a", 250) // no boundary punctuation at all
	segs := Split(text, 100)
	assert.Len(t, segs, 3)
	assert.Equal(t, 100, segs[0].Length)
	assert.Equal(t, 100, segs[1].Length)
	assert.Equal(t, 50, segs[2].Length)
}

func TestSplitWhitespaceNormalization(t *testing.T) {
	segs := Split("  hello    world  .  next sentence  ", 0)
	assert.Equal(t, "hello world .", segs[0].Text)
}

func TestSplitEmptyInputProducesMinimalUtterance(t *testing.T) {
	segs := Split("", 0)
	assert.Equal(t, []Segment{{Text: "。", Position: 0, Length: 1}}, segs)
}

func TestSplitAllWhitespaceProducesMinimalUtterance(t *testing.T) {
	segs := Split("   \n\n   ", 0)
	assert.Equal(t, []Segment{{Text: "。", Position: 0, Length: 1}}, segs)
}

func TestSplitPositionsAreCumulative(t *testing.T) {
	segs := Split("ab. cd. ef.", 0)
	assert.Equal(t, 0, segs[0].Position)
	assert.Equal(t, segs[0].Length, segs[1].Position)
	assert.Equal(t, segs[0].Length+segs[1].Length, segs[2].Position)
}

func TestSplitIsDeterministic(t *testing.T) {
	text := "First. Second! Third?"
	a := Split(text, 0)
	b := Split(text, 0)
	assert.Equal(t, a, b)
}

func textsOf(segs []Segment) []string {
	out := make([]string, len(segs))
	for i, s := range segs {
		out[i] = s.Text
	}
	return out
}
