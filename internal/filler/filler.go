// Package filler implements the Filler Store (spec §4.H): a small library
// of pre-synthesized interjection clips, played by the Segment Player
// while later segments are still synthesizing. Grounded on the teacher's
// listening-filler line list (internal/speech/lines.go) and its
// synthesize-if-missing prefetch pattern (Mouth.Prefetch).
package filler

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"sync"

	"github.com/hammamikhairi/vvcache/internal/domain"
	"github.com/hammamikhairi/vvcache/internal/logger"
)

// Store holds a configurable set of filler texts, lazily synthesizing and
// caching one clip per text under a dedicated filler directory (spec
// §4.H). A nil or disabled Store always returns a miss from Random.
type Store struct {
	dir      string
	texts    []string
	speaker  int
	engine   domain.EngineClient
	codec    domain.AudioCodec
	log      *logger.Logger
	disabled bool

	mu       sync.Mutex
	lastUsed string
	rng      *rand.Rand
}

// New constructs a Filler Store. If texts is empty or disabled is true,
// Random always misses (spec §4.H: "Disabled mode: always returns None").
func New(dir string, texts []string, speaker int, engine domain.EngineClient, codec domain.AudioCodec, log *logger.Logger, disabled bool) *Store {
	return &Store{
		dir:      dir,
		texts:    texts,
		speaker:  speaker,
		engine:   engine,
		codec:    codec,
		log:      log,
		disabled: disabled || len(texts) == 0,
		rng:      rand.New(rand.NewSource(1)),
	}
}

// keyFor computes a filler text's cache key using the Cache Manager's key
// function with the default speaker and default prosody (spec §4.H).
func keyFor(text string, speaker int) string {
	req := domain.NewVoiceRequest(text, speaker, domain.DefaultSpeed, domain.DefaultPitch, domain.DefaultVolume)
	return domain.CacheKey(req)
}

func (s *Store) mp3Path(key string) string { return filepath.Join(s.dir, key+".mp3") }
func (s *Store) wavPath(key string) string { return filepath.Join(s.dir, key+".wav") }

// Initialize ensures every filler text has a backing clip on disk,
// synthesizing any that are missing (spec §4.H).
func (s *Store) Initialize(ctx context.Context) error {
	if s.disabled {
		return nil
	}
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return domain.Wrap(domain.KindCacheWriteError, "create filler directory", err)
	}

	for _, text := range s.texts {
		key := keyFor(text, s.speaker)
		if fileExists(s.mp3Path(key)) || fileExists(s.wavPath(key)) {
			continue
		}

		req := domain.NewVoiceRequest(text, s.speaker, domain.DefaultSpeed, domain.DefaultPitch, domain.DefaultVolume)
		queryJSON, err := s.engine.AudioQuery(ctx, req)
		if err != nil {
			s.log.Warn("filler: audio_query failed for %q: %v", text, err)
			continue
		}
		audio, err := s.engine.Synthesize(ctx, queryJSON, s.speaker)
		if err != nil {
			s.log.Warn("filler: synthesize failed for %q: %v", text, err)
			continue
		}

		path := s.wavPath(key)
		if s.codec.IsValidMP3(audio) {
			path = s.mp3Path(key)
		}
		if err := os.WriteFile(path, audio, 0o600); err != nil {
			s.log.Warn("filler: write failed for %q: %v", text, err)
		}
	}
	return nil
}

// Random selects uniformly at random among the filler texts, excluding
// the last one returned unless only one exists, and returns its backing
// clip bytes (spec §4.H). Returns ok=false in disabled mode, when no
// texts are configured, or on a read error (which is logged).
func (s *Store) Random() ([]byte, bool) {
	if s == nil || s.disabled {
		return nil, false
	}

	s.mu.Lock()
	text := s.pickLocked()
	s.mu.Unlock()

	key := keyFor(text, s.speaker)
	if data, err := os.ReadFile(s.mp3Path(key)); err == nil {
		return data, true
	}
	if data, err := os.ReadFile(s.wavPath(key)); err == nil {
		return data, true
	}
	s.log.Warn("filler: no backing clip found for %q", text)
	return nil, false
}

// pickLocked must be called with s.mu held.
func (s *Store) pickLocked() string {
	if len(s.texts) == 1 {
		s.lastUsed = s.texts[0]
		return s.texts[0]
	}

	for {
		candidate := s.texts[s.rng.Intn(len(s.texts))]
		if candidate != s.lastUsed {
			s.lastUsed = candidate
			return candidate
		}
	}
}

// Clear deletes every `*.mp3` and `*.wav` file under the filler
// directory; errors on individual files are tolerated (spec §4.H).
func (s *Store) Clear() {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".mp3", ".wav":
			_ = os.Remove(filepath.Join(s.dir, e.Name()))
		}
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
