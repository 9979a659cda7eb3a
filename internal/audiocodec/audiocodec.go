// Package audiocodec implements the Audio Codec boundary (spec §1, §9):
// a pure byte-level WAV<->MP3 transcoding collaborator. No MP3 encoder
// exists in Go without cgo, so this shells out to an external ffmpeg (or
// lame) binary, grounded on the pack's external-binary-provider
// pattern (RedClaus-cortex's PiperProvider: configurable binary path,
// candidate-path search, exec.CommandContext). When no encoder binary is
// found, EncodeToMP3 reports ok=false and callers fall back to storing
// the original WAV bytes (spec §6).
package audiocodec

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"time"

	"github.com/hammamikhairi/vvcache/internal/logger"
)

// encodeTimeout bounds a single ffmpeg/lame invocation.
const encodeTimeout = 15 * time.Second

var ffmpegCandidates = []string{
	"/usr/bin/ffmpeg",
	"/usr/local/bin/ffmpeg",
	"/opt/homebrew/bin/ffmpeg",
}

var lameCandidates = []string{
	"/usr/bin/lame",
	"/usr/local/bin/lame",
	"/opt/homebrew/bin/lame",
}

// Codec encodes WAV to MP3 via an external encoder binary, resolved once
// at construction time.
type Codec struct {
	log        *logger.Logger
	ffmpegPath string
	lamePath   string
}

// New resolves an encoder binary from PATH or the common install
// locations checked by that provider search, and returns a
// Codec ready to use. The search happens once; a missing encoder is not
// an error, it just makes EncodeToMP3 report ok=false.
func New(log *logger.Logger) *Codec {
	c := &Codec{log: log}
	c.ffmpegPath = resolve("ffmpeg", ffmpegCandidates)
	c.lamePath = resolve("lame", lameCandidates)

	if c.ffmpegPath == "" && c.lamePath == "" {
		log.Debug("no MP3 encoder binary found (ffmpeg/lame); cache will store WAV")
	}
	return c
}

func resolve(name string, candidates []string) string {
	if p, err := exec.LookPath(name); err == nil {
		return p
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// EncodeToMP3 transcodes wav to MP3 using ffmpeg if available, falling
// back to lame. ok is false (with a nil error) when no encoder is
// installed; callers treat that as "keep the WAV" rather than a failure.
func (c *Codec) EncodeToMP3(wav []byte) ([]byte, bool, error) {
	switch {
	case c.ffmpegPath != "":
		data, err := c.runFFmpeg(wav)
		if err != nil {
			c.log.Debug("ffmpeg encode failed, falling back to WAV: %v", err)
			return nil, false, nil
		}
		return data, true, nil
	case c.lamePath != "":
		data, err := c.runLame(wav)
		if err != nil {
			c.log.Debug("lame encode failed, falling back to WAV: %v", err)
			return nil, false, nil
		}
		return data, true, nil
	default:
		return nil, false, nil
	}
}

func (c *Codec) runFFmpeg(wav []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), encodeTimeout)
	defer cancel()

	// ffmpeg -i pipe:0 -f mp3 -codec:a libmp3lame -qscale:a 2 pipe:1
	cmd := exec.CommandContext(ctx, c.ffmpegPath,
		"-hide_banner", "-loglevel", "error",
		"-i", "pipe:0",
		"-f", "mp3", "-codec:a", "libmp3lame", "-qscale:a", "2",
		"pipe:1",
	)
	cmd.Stdin = bytes.NewReader(wav)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, wrapExecErr(err, stderr.String())
	}
	return stdout.Bytes(), nil
}

func (c *Codec) runLame(wav []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), encodeTimeout)
	defer cancel()

	// lame --silent - - reads WAV on stdin, writes MP3 on stdout.
	cmd := exec.CommandContext(ctx, c.lamePath, "--silent", "-", "-")
	cmd.Stdin = bytes.NewReader(wav)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, wrapExecErr(err, stderr.String())
	}
	return stdout.Bytes(), nil
}

func wrapExecErr(err error, stderr string) error {
	if stderr == "" {
		return err
	}
	return &execError{underlying: err, stderr: stderr}
}

type execError struct {
	underlying error
	stderr     string
}

func (e *execError) Error() string {
	return e.underlying.Error() + ": " + e.stderr
}

func (e *execError) Unwrap() error { return e.underlying }

// IsValidMP3 reports whether data begins with an MP3 frame sync (0xFF
// followed by a byte with its top three bits set) or an ID3 tag. The
// frame-sync test is the one the Segment Player's DetectFormat uses; the
// ID3 check is not part of the player's sniff.
func (c *Codec) IsValidMP3(data []byte) bool {
	if len(data) >= 3 && string(data[0:3]) == "ID3" {
		return true
	}
	return len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0
}

// IsValidWAV reports whether data is a RIFF/WAVE container.
func (c *Codec) IsValidWAV(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}
