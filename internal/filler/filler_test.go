package filler

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hammamikhairi/vvcache/internal/domain"
	"github.com/hammamikhairi/vvcache/internal/logger"
)

type fakeEngine struct {
	audio []byte
}

func (f *fakeEngine) ListSpeakers(ctx context.Context) ([]domain.Speaker, error) { return nil, nil }
func (f *fakeEngine) InitializeSpeaker(ctx context.Context, speakerID int) error { return nil }
func (f *fakeEngine) IsReachable(ctx context.Context) bool                      { return true }
func (f *fakeEngine) AudioQuery(ctx context.Context, req domain.VoiceRequest) (string, error) {
	return `{}`, nil
}
func (f *fakeEngine) Synthesize(ctx context.Context, queryJSON string, speakerID int) ([]byte, error) {
	return f.audio, nil
}

type fakeCodec struct{ validMP3 bool }

func (c fakeCodec) EncodeToMP3(wav []byte) ([]byte, bool, error) { return wav, true, nil }
func (c fakeCodec) IsValidMP3(data []byte) bool                  { return c.validMP3 }
func (c fakeCodec) IsValidWAV(data []byte) bool                  { return !c.validMP3 }

func TestInitializeWritesMP3WhenValid(t *testing.T) {
	dir := t.TempDir()
	engine := &fakeEngine{audio: []byte("mp3-bytes")}
	log := logger.New(logger.LevelOff, io.Discard)
	s := New(dir, []string{"um", "let me think"}, 1, engine, fakeCodec{validMP3: true}, log, false)

	require.NoError(t, s.Initialize(context.Background()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, ".mp3", filepath.Ext(e.Name()))
	}
}

func TestInitializeWritesWAVWhenNotMP3(t *testing.T) {
	dir := t.TempDir()
	engine := &fakeEngine{audio: []byte("wav-bytes")}
	log := logger.New(logger.LevelOff, io.Discard)
	s := New(dir, []string{"hmm"}, 1, engine, fakeCodec{validMP3: false}, log, false)

	require.NoError(t, s.Initialize(context.Background()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ".wav", filepath.Ext(entries[0].Name()))
}

func TestInitializeSkipsExistingClip(t *testing.T) {
	dir := t.TempDir()
	engine := &fakeEngine{audio: []byte("new-bytes")}
	log := logger.New(logger.LevelOff, io.Discard)
	s := New(dir, []string{"um"}, 1, engine, fakeCodec{validMP3: true}, log, false)

	key := keyFor("um", 1)
	require.NoError(t, os.MkdirAll(dir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, key+".mp3"), []byte("preexisting"), 0o600))

	require.NoError(t, s.Initialize(context.Background()))

	data, err := os.ReadFile(filepath.Join(dir, key+".mp3"))
	require.NoError(t, err)
	assert.Equal(t, "preexisting", string(data))
}

func TestRandomExcludesLastUsedWithMultipleTexts(t *testing.T) {
	dir := t.TempDir()
	engine := &fakeEngine{audio: []byte("mp3-bytes")}
	log := logger.New(logger.LevelOff, io.Discard)
	s := New(dir, []string{"a", "b"}, 1, engine, fakeCodec{validMP3: true}, log, false)
	require.NoError(t, s.Initialize(context.Background()))

	first, ok := s.Random()
	require.True(t, ok)
	_ = first

	for i := 0; i < 10; i++ {
		s.mu.Lock()
		lastBefore := s.lastUsed
		s.mu.Unlock()

		_, ok := s.Random()
		require.True(t, ok)

		s.mu.Lock()
		assert.NotEqual(t, lastBefore, s.lastUsed)
		s.mu.Unlock()
	}
}

func TestRandomDisabledAlwaysMisses(t *testing.T) {
	dir := t.TempDir()
	log := logger.New(logger.LevelOff, io.Discard)
	s := New(dir, []string{"a"}, 1, nil, nil, log, true)

	_, ok := s.Random()
	assert.False(t, ok)
}

func TestRandomNoTextsAlwaysMisses(t *testing.T) {
	dir := t.TempDir()
	log := logger.New(logger.LevelOff, io.Discard)
	s := New(dir, nil, 1, nil, nil, log, false)

	_, ok := s.Random()
	assert.False(t, ok)
}

func TestClearRemovesClips(t *testing.T) {
	dir := t.TempDir()
	engine := &fakeEngine{audio: []byte("mp3-bytes")}
	log := logger.New(logger.LevelOff, io.Discard)
	s := New(dir, []string{"um"}, 1, engine, fakeCodec{validMP3: true}, log, false)
	require.NoError(t, s.Initialize(context.Background()))

	s.Clear()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
