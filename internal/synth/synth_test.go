package synth

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hammamikhairi/vvcache/internal/cachemanager"
	"github.com/hammamikhairi/vvcache/internal/diskcache"
	"github.com/hammamikhairi/vvcache/internal/domain"
	"github.com/hammamikhairi/vvcache/internal/logger"
	"github.com/hammamikhairi/vvcache/internal/memcache"
	"github.com/hammamikhairi/vvcache/internal/retrypolicy"
)

type passthroughCodec struct{}

func (passthroughCodec) EncodeToMP3(wav []byte) ([]byte, bool, error) { return wav, true, nil }
func (passthroughCodec) IsValidMP3(data []byte) bool                 { return true }
func (passthroughCodec) IsValidWAV(data []byte) bool                 { return true }

type fakeEngine struct {
	mu        sync.Mutex
	queryErr  error
	synthErr  error
	synthData []byte
	calls     int
}

func (f *fakeEngine) ListSpeakers(ctx context.Context) ([]domain.Speaker, error) { return nil, nil }
func (f *fakeEngine) InitializeSpeaker(ctx context.Context, speakerID int) error { return nil }
func (f *fakeEngine) IsReachable(ctx context.Context) bool                      { return true }

func (f *fakeEngine) AudioQuery(ctx context.Context, req domain.VoiceRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.queryErr != nil {
		return "", f.queryErr
	}
	return `{"query":true}`, nil
}

func (f *fakeEngine) Synthesize(ctx context.Context, queryJSON string, speakerID int) ([]byte, error) {
	if f.synthErr != nil {
		return nil, f.synthErr
	}
	return f.synthData, nil
}

func newTestChannel(t *testing.T, engine domain.EngineClient) (*Channel, func()) {
	t.Helper()
	log := logger.New(logger.LevelOff, io.Discard)
	disk, err := diskcache.New(t.TempDir(), 24*time.Hour, passthroughCodec{}, log)
	require.NoError(t, err)
	mem := memcache.New(1<<20, time.Hour)
	cache := cachemanager.New(mem, disk, 1<<30, log)
	retry := retrypolicy.New(log)

	ctx, cancel := context.WithCancel(context.Background())
	ch := New(ctx, engine, retry, cache, log, 2)
	return ch, func() { cancel(); ch.Close() }
}

func TestProcessCacheMiss(t *testing.T) {
	engine := &fakeEngine{synthData: []byte("audio-bytes")}
	ch, stop := newTestChannel(t, engine)
	defer stop()

	req := domain.NewVoiceRequest("hello", 1, 1.0, 0.0, 1.0)
	res, err := ch.Process(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.False(t, res.FromCache)
	assert.Equal(t, []byte("audio-bytes"), res.AudioData)
}

func TestProcessCacheHitSkipsEngine(t *testing.T) {
	engine := &fakeEngine{synthData: []byte("audio-bytes")}
	ch, stop := newTestChannel(t, engine)
	defer stop()

	req := domain.NewVoiceRequest("hello", 1, 1.0, 0.0, 1.0)
	_, err := ch.Process(context.Background(), req)
	require.NoError(t, err)

	callsBefore := engine.calls
	res, err := ch.Process(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.Equal(t, callsBefore, engine.calls, "cache hit must not call the engine again")
}

func TestProcessEngineFailureReturnsUnsuccessfulResult(t *testing.T) {
	engine := &fakeEngine{queryErr: errors.New("engine down")}
	ch, stop := newTestChannel(t, engine)
	defer stop()

	req := domain.NewVoiceRequest("hello", 1, 1.0, 0.0, 1.0)
	res, err := ch.Process(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.ErrorMessage)
}

func TestProcessConcurrentCallersGetOwnResults(t *testing.T) {
	engine := &fakeEngine{synthData: []byte("audio-bytes")}
	ch, stop := newTestChannel(t, engine)
	defer stop()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := domain.NewVoiceRequest("distinct text", 1+i%3, 1.0, 0.0, 1.0)
			res, err := ch.Process(context.Background(), req)
			assert.NoError(t, err)
			assert.True(t, res.Success)
		}(i)
	}
	wg.Wait()
}

func TestProcessCancelledCallerDoesNotBlockForever(t *testing.T) {
	engine := &fakeEngine{synthData: []byte("audio-bytes")}
	ch, stop := newTestChannel(t, engine)
	defer stop()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := domain.NewVoiceRequest("hello", 1, 1.0, 0.0, 1.0)
	_, err := ch.Process(ctx, req)
	assert.Error(t, err)
}
