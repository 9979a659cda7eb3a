package audiocodec

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hammamikhairi/vvcache/internal/logger"
)

func testLog() *logger.Logger {
	return logger.New(logger.LevelOff, io.Discard)
}

func TestIsValidMP3FrameSync(t *testing.T) {
	c := &Codec{log: testLog()}
	assert.True(t, c.IsValidMP3([]byte{0xFF, 0xFB, 0x90, 0x00}))
}

func TestIsValidMP3ID3Tag(t *testing.T) {
	c := &Codec{log: testLog()}
	assert.True(t, c.IsValidMP3([]byte("ID3\x03\x00\x00\x00")))
}

func TestIsValidMP3RejectsWAV(t *testing.T) {
	c := &Codec{log: testLog()}
	wav := append([]byte("RIFF"), append(make([]byte, 4), []byte("WAVE")...)...)
	assert.False(t, c.IsValidMP3(wav))
}

func TestIsValidWAVAcceptsRIFFWAVE(t *testing.T) {
	c := &Codec{log: testLog()}
	wav := append([]byte("RIFF"), append(make([]byte, 4), []byte("WAVE")...)...)
	assert.True(t, c.IsValidWAV(wav))
}

func TestIsValidWAVRejectsOther(t *testing.T) {
	c := &Codec{log: testLog()}
	assert.False(t, c.IsValidWAV([]byte{0xFF, 0xFB, 0x90, 0x00}))
}

func TestEncodeToMP3FallsBackWithoutEncoder(t *testing.T) {
	c := &Codec{log: testLog()} // no ffmpegPath/lamePath set: simulates a host with neither installed
	data, ok, err := c.EncodeToMP3([]byte("fake-wav-bytes"))
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, data)
}

func TestResolveMissingBinaryReturnsEmpty(t *testing.T) {
	// A binary that is virtually guaranteed not to exist anywhere on the
	// test host or in the candidate list resolves to empty, not a panic.
	assert.Equal(t, "", resolve("vvcache-nonexistent-encoder-binary", nil))
}
