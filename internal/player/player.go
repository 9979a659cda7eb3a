// Package player implements the Segment Player (spec §4.I): sequential
// playback of synthesized segments on a shared oto output device, with
// filler-clip interleave while later segments are still synthesizing.
// Grounded on the teacher's Player (internal/speech/player.go): the same
// oto.Context/oto.Player pairing and WAV chunk-walk extraction, extended
// with MP3 decoding via hajimehoshi/go-mp3, format sniffing, per-segment
// deadlines, and filler interleave per spec §4.I.
package player

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/hajimehoshi/go-mp3"

	"github.com/hammamikhairi/vvcache/internal/domain"
	"github.com/hammamikhairi/vvcache/internal/logger"
)

// Audio device defaults, matching VOICEVOX-style engine output (spec
// §4.A): 24kHz mono signed 16-bit PCM.
const (
	SampleRate   = 24000
	ChannelCount = 1
)

// Timing constants (spec §4.I).
const (
	firstSegmentWarmup  = 200 * time.Millisecond
	laterSegmentWarmup  = 20 * time.Millisecond
	firstSegmentFlush   = 150 * time.Millisecond
	laterSegmentFlush   = 100 * time.Millisecond
	interSegmentPause   = 50 * time.Millisecond
	segmentPollInterval = 100 * time.Millisecond
	segmentDeadline     = 30 * time.Second
)

// Channel is the subset of the Synthesis Channel the player depends on,
// kept narrow so tests can substitute a fake.
type Channel interface {
	Process(ctx context.Context, req domain.VoiceRequest) (domain.SynthesisResult, error)
}

// Filler is the subset of the Filler Store the player depends on.
type Filler interface {
	Random() ([]byte, bool)
}

// Player sequences segment playback on a lazily-created shared oto
// device (spec §4.I).
type Player struct {
	log *logger.Logger

	mu     sync.Mutex
	ctx    *oto.Context
	active *oto.Player
}

// New constructs a Segment Player. The audio device is created lazily on
// first Play call.
func New(log *logger.Logger) *Player {
	return &Player{log: log}
}

func (p *Player) ensureContext() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctx != nil {
		return nil
	}

	op := &oto.NewContextOptions{
		SampleRate:   SampleRate,
		ChannelCount: ChannelCount,
		Format:       oto.FormatSignedInt16LE,
	}
	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return domain.Wrap(domain.KindMediaFoundationInitFailed, "initialize audio device", err)
	}
	<-readyChan
	p.ctx = ctx
	return nil
}

// PlayWithGeneration plays segments in order, obtaining missing audio via
// channel (or by polling is_cached if channel is nil) and filling gaps
// between segments with filler clips (spec §4.I).
func (p *Player) PlayWithGeneration(ctx context.Context, segments []domain.TextSegment, ch Channel, fill Filler, prosody domain.VoiceRequest) error {
	if err := p.ensureContext(); err != nil {
		return err
	}

	for i := range segments {
		seg := &segments[i]

		if !seg.IsCached {
			audio, err := p.obtain(ctx, seg, ch, prosody)
			if err != nil {
				return err
			}
			seg.AudioData = audio
			seg.IsCached = true
		}

		warmup, flush := laterSegmentWarmup, laterSegmentFlush
		if i == 0 {
			warmup, flush = firstSegmentWarmup, firstSegmentFlush
		}

		if err := sleepCtx(ctx, warmup); err != nil {
			return err
		}
		if err := p.play(ctx, seg.AudioData); err != nil {
			return err
		}
		if err := sleepCtx(ctx, flush); err != nil {
			return err
		}

		if i+1 < len(segments) {
			next := &segments[i+1]
			if !next.IsCached && fill != nil {
				if clip, ok := fill.Random(); ok {
					if err := p.play(ctx, clip); err != nil {
						return err
					}
				}
			}
			if err := sleepCtx(ctx, interSegmentPause); err != nil {
				return err
			}
		}
	}
	return nil
}

// obtain fetches a missing segment's audio either via the Synthesis
// Channel or by polling is_cached up to a 30s deadline (spec §4.I step 1).
func (p *Player) obtain(ctx context.Context, seg *domain.TextSegment, ch Channel, prosody domain.VoiceRequest) ([]byte, error) {
	if ch != nil {
		req := seg.AsRequest(prosody.Speed, prosody.Pitch, prosody.Volume)
		res, err := ch.Process(ctx, req)
		if err != nil {
			return nil, domain.Wrap(domain.KindOperationCancelled, "segment synthesis cancelled", err)
		}
		if !res.Success {
			return nil, domain.New(domain.KindAudioGenerationFailed, res.ErrorMessage)
		}
		return res.AudioData, nil
	}

	deadline := time.Now().Add(segmentDeadline)
	for {
		if seg.IsCached {
			return seg.AudioData, nil
		}
		if time.Now().After(deadline) {
			return nil, domain.New(domain.KindAudioPlaybackTimeout, "timed out waiting for segment to become cached")
		}
		if err := sleepCtx(ctx, segmentPollInterval); err != nil {
			return nil, err
		}
	}
}

// play decodes data (WAV or MP3, format-sniffed) to PCM and plays it on
// the shared device, enforcing a 30s wall-clock playback timeout (spec
// §4.I).
func (p *Player) play(ctx context.Context, data []byte) error {
	pcm, err := decode(data)
	if err != nil {
		return domain.Wrap(domain.KindAudioGenerationFailed, "decode segment audio", err)
	}

	p.mu.Lock()
	otoPlayer := p.ctx.NewPlayer(bytes.NewReader(pcm))
	p.active = otoPlayer
	p.mu.Unlock()

	otoPlayer.Play()

	done := make(chan struct{})
	go func() {
		for otoPlayer.IsPlaying() {
			time.Sleep(10 * time.Millisecond)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(segmentDeadline):
		otoPlayer.Pause()
		p.mu.Lock()
		p.active = nil
		p.mu.Unlock()
		return domain.New(domain.KindAudioPlaybackTimeout, "segment playback exceeded 30s")
	case <-ctx.Done():
		otoPlayer.Pause()
		p.mu.Lock()
		p.active = nil
		p.mu.Unlock()
		return ctx.Err()
	}

	p.mu.Lock()
	p.active = nil
	p.mu.Unlock()
	return otoPlayer.Close()
}

// Stop interrupts the currently playing segment, if any (spec §4.I
// cancellation).
func (p *Player) Stop() {
	p.mu.Lock()
	active := p.active
	p.mu.Unlock()
	if active != nil {
		active.Pause()
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Format identifies the decoded container of an audio buffer.
type Format int

const (
	FormatUnknown Format = iota
	FormatWAV
	FormatMP3
)

// DetectFormat inspects the first 12 bytes of data per spec §4.I:
// "RIFF"..."WAVE" is WAV; a byte 0xFF followed by a byte with its top 3
// bits set is an MP3 frame sync; otherwise MP3 is tried first, falling
// back to WAV.
func DetectFormat(data []byte) Format {
	if len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE" {
		return FormatWAV
	}
	if len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0 {
		return FormatMP3
	}
	return FormatUnknown
}

func decode(data []byte) ([]byte, error) {
	switch DetectFormat(data) {
	case FormatWAV:
		return extractPCM(data)
	case FormatMP3:
		if pcm, err := decodeMP3(data); err == nil {
			return pcm, nil
		}
		return extractPCM(data)
	default:
		if pcm, err := decodeMP3(data); err == nil {
			return pcm, nil
		}
		return extractPCM(data)
	}
}

func decodeMP3(data []byte) ([]byte, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, len(data)*4)
	chunk := make([]byte, 4096)
	for {
		n, err := dec.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if err != nil {
			break
		}
	}
	if len(buf) == 0 {
		return nil, errors.New("mp3 decode produced no samples")
	}
	return buf, nil
}

// extractPCM strips the WAV/RIFF header and returns raw PCM data,
// grounded verbatim on the teacher's chunk-walk (internal/speech/player.go).
func extractPCM(wav []byte) ([]byte, error) {
	if len(wav) < 44 {
		return nil, errors.New("wav data too short")
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return nil, errors.New("not a valid WAV file")
	}

	pos := 12
	for pos < len(wav)-8 {
		chunkID := string(wav[pos : pos+4])
		chunkSize := int(binary.LittleEndian.Uint32(wav[pos+4 : pos+8]))

		if chunkID == "data" {
			start := pos + 8
			end := start + chunkSize
			if end > len(wav) {
				end = len(wav)
			}
			return wav[start:end], nil
		}

		pos += 8 + chunkSize
		if chunkSize%2 != 0 {
			pos++
		}
	}
	return nil, errors.New("data chunk not found in WAV")
}
