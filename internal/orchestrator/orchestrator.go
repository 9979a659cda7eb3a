// Package orchestrator implements the Orchestrator (spec §4.J): the
// end-to-end flow for a single `tts` invocation, wiring the Engine
// Client, Cache Manager, Text Segmenter, Synthesis Channel, Segment
// Player, and Filler Store together. Concurrent playback/export fan-out
// is grounded on MrWong99-glyphoxa's errgroup.WithContext usage
// (internal/hotctx/assembler.go).
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/hammamikhairi/vvcache/internal/cachemanager"
	"github.com/hammamikhairi/vvcache/internal/domain"
	"github.com/hammamikhairi/vvcache/internal/logger"
	"github.com/hammamikhairi/vvcache/internal/player"
	"github.com/hammamikhairi/vvcache/internal/retrypolicy"
	"github.com/hammamikhairi/vvcache/internal/segmenter"
	"github.com/hammamikhairi/vvcache/internal/synth"
)

// SynthesisWorkers is the number of background workers draining the
// Synthesis Channel's work queue (spec §4.G names the queue's shape, not
// a worker count; two keeps one segment synthesizing ahead of playback
// without over-parallelizing against a single local engine process).
const SynthesisWorkers = 2

// Filler is the subset of the Filler Store the orchestrator depends on.
type Filler interface {
	Random() ([]byte, bool)
}

// Options carries one `tts` invocation's resolved CLI/config inputs
// (spec §4.J, §6).
type Options struct {
	Text      string
	SpeakerID int
	Speed     float64
	Pitch     float64
	Volume    float64

	NoCache   bool
	CacheOnly bool
	NoPlay    bool
	OutPath   string

	MaxSegmentLength int
}

// Orchestrator wires the core components together for a single request.
type Orchestrator struct {
	Engine domain.EngineClient
	Retry  *retrypolicy.Policy
	Cache  *cachemanager.Manager
	Codec  domain.AudioCodec
	Player *player.Player
	Filler Filler
	Log    *logger.Logger
}

// Run executes the flow described in spec §4.J and returns an error whose
// Kind (via domain.AsError) determines the process exit code.
func (o *Orchestrator) Run(ctx context.Context, opts Options) error {
	if !o.Engine.IsReachable(ctx) {
		return domain.New(domain.KindEngineNotAvailable, "synthesis engine is not reachable")
	}

	prosody := domain.NewVoiceRequest(opts.Text, opts.SpeakerID, opts.Speed, opts.Pitch, opts.Volume)

	if opts.NoCache {
		return o.runNoCache(ctx, opts, prosody)
	}
	return o.runCached(ctx, opts, prosody)
}

// runNoCache bypasses segmentation and cache entirely (spec §4.J step 2):
// a single audio_query + synthesize call on the whole text, then play
// and/or export per flags.
func (o *Orchestrator) runNoCache(ctx context.Context, opts Options, prosody domain.VoiceRequest) error {
	audio, err := o.synthesizeOnce(ctx, prosody)
	if err != nil {
		return err
	}

	eg, egCtx := errgroup.WithContext(ctx)

	if !opts.NoPlay {
		eg.Go(func() error {
			seg := []domain.TextSegment{{Text: prosody.Text, SpeakerID: prosody.SpeakerID, AudioData: audio, IsCached: true}}
			return o.Player.PlayWithGeneration(egCtx, seg, nil, o.Filler, prosody)
		})
	}
	if opts.OutPath != "" {
		eg.Go(func() error { return o.export(opts.OutPath, audio) })
	}

	return eg.Wait()
}

// runCached is the segmented, cache-aware path (spec §4.J steps 3-6).
func (o *Orchestrator) runCached(ctx context.Context, opts Options, prosody domain.VoiceRequest) error {
	maxLen := opts.MaxSegmentLength
	if maxLen <= 0 {
		maxLen = segmenter.DefaultMaxSegmentLength
	}
	split := segmenter.Split(opts.Text, maxLen)

	segments := make([]domain.TextSegment, len(split))
	anyMissing := false
	for i, s := range split {
		req := domain.VoiceRequest{Text: s.Text, SpeakerID: opts.SpeakerID, Speed: prosody.Speed, Pitch: prosody.Pitch, Volume: prosody.Volume}
		key := cachemanager.Key(req)

		seg := domain.TextSegment{Text: s.Text, Position: s.Position, Length: s.Length, SpeakerID: opts.SpeakerID}
		if audio, ok := o.Cache.Get(key); ok {
			seg.AudioData = audio
			seg.IsCached = true
		} else {
			anyMissing = true
		}
		segments[i] = seg
	}

	if opts.CacheOnly && anyMissing {
		return domain.New(domain.KindCacheReadError, "cache-only requested but one or more segments are not cached")
	}

	channel := synth.New(ctx, o.Engine, o.Retry, o.Cache, o.Log, SynthesisWorkers)
	defer channel.Close()

	eg, egCtx := errgroup.WithContext(ctx)

	if !opts.NoPlay {
		eg.Go(func() error {
			return o.Player.PlayWithGeneration(egCtx, segments, channel, o.Filler, prosody)
		})
	}

	if opts.OutPath != "" {
		eg.Go(func() error {
			audio, err := o.synthesizeOnce(egCtx, prosody)
			if err != nil {
				return err
			}
			return o.export(opts.OutPath, audio)
		})
	}

	return eg.Wait()
}

// synthesizeOnce performs a single-shot audio_query + synthesize call
// under the Retry Policy, used by the no-cache path and by --out's
// full-text export (spec §4.J steps 2 and 5).
func (o *Orchestrator) synthesizeOnce(ctx context.Context, req domain.VoiceRequest) ([]byte, error) {
	queryJSON, err := o.Retry.Do(ctx, func(callCtx context.Context) ([]byte, error) {
		body, err := o.Engine.AudioQuery(callCtx, req)
		return []byte(body), err
	})
	if err != nil {
		return nil, err
	}

	return o.Retry.Do(ctx, func(callCtx context.Context) ([]byte, error) {
		return o.Engine.Synthesize(callCtx, string(queryJSON), req.SpeakerID)
	})
}

// export writes wav to path following the extension-driven rules in spec
// §6: a .mp3 target is transcoded (falling back to .wav on a bad
// encode); a .wav or other target is written as-is, with the extension
// corrected to .wav (and a warning) if it mismatches valid WAV bytes.
func (o *Orchestrator) export(path string, wav []byte) error {
	ext := strings.ToLower(filepath.Ext(path))

	if ext == ".mp3" {
		data, ok, err := o.Codec.EncodeToMP3(wav)
		if err != nil {
			return domain.Wrap(domain.KindAudioGenerationFailed, "encode export audio to mp3", err)
		}
		if ok && o.Codec.IsValidMP3(data) {
			return writeFile(path, data)
		}
		fallback := strings.TrimSuffix(path, filepath.Ext(path)) + ".wav"
		o.Log.Warn("export: mp3 encoder unavailable or produced invalid output, writing WAV to %s instead", fallback)
		return writeFile(fallback, wav)
	}

	if ext != ".wav" && o.Codec.IsValidWAV(wav) {
		corrected := strings.TrimSuffix(path, filepath.Ext(path)) + ".wav"
		o.Log.Warn("export: %s has a non-.wav extension but the audio is WAV, writing %s instead", path, corrected)
		return writeFile(corrected, wav)
	}

	return writeFile(path, wav)
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return domain.Wrap(domain.KindUnknown, fmt.Sprintf("create export directory %s", dir), err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return domain.Wrap(domain.KindUnknown, fmt.Sprintf("write export file %s", path), err)
	}
	return nil
}
