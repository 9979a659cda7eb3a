package ttsengine

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hammamikhairi/vvcache/internal/domain"
	"github.com/hammamikhairi/vvcache/internal/logger"
	"github.com/hammamikhairi/vvcache/internal/retrypolicy"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL, logger.New(logger.LevelOff, io.Discard))
}

func TestListSpeakers(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/speakers", r.URL.Path)
		w.Write([]byte(`[{"name":"Test","version":"1","styles":[{"id":1,"name":"normal"}]}]`))
	})

	speakers, err := c.ListSpeakers(context.Background())
	require.NoError(t, err)
	require.Len(t, speakers, 1)
	assert.Equal(t, "Test", speakers[0].Name)
	assert.Equal(t, 1, speakers[0].Styles[0].ID)
}

func TestIsReachableTrueOn200(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	assert.True(t, c.IsReachable(context.Background()))
}

func TestIsReachableFalseOnError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	assert.False(t, c.IsReachable(context.Background()))
}

func TestAudioQueryOmitsDefaultProsody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "hello", r.URL.Query().Get("text"))
		assert.Equal(t, "1", r.URL.Query().Get("speaker"))
		assert.Empty(t, r.URL.Query().Get("speed_scale"))
		assert.Empty(t, r.URL.Query().Get("pitch_scale"))
		assert.Empty(t, r.URL.Query().Get("volume_scale"))
		w.Write([]byte(`{"q":true}`))
	})

	req := domain.NewVoiceRequest("hello", 1, 1.0, 0.0, 1.0)
	body, err := c.AudioQuery(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, `{"q":true}`, body)
}

func TestAudioQueryIncludesDeviatingProsody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1.5", r.URL.Query().Get("speed_scale"))
		w.Write([]byte(`{}`))
	})

	req := domain.NewVoiceRequest("hello", 1, 1.5, 0.0, 1.0)
	_, err := c.AudioQuery(context.Background(), req)
	require.NoError(t, err)
}

func TestSynthesizeReturnsRawBytes(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Write([]byte("wav-bytes"))
	})

	audio, err := c.Synthesize(context.Background(), `{"q":true}`, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte("wav-bytes"), audio)
}

func TestStatusErrorMapping(t *testing.T) {
	cases := []struct {
		status int
		kind   domain.Kind
	}{
		{http.StatusUnauthorized, domain.KindAPIAuthenticationErr},
		{http.StatusForbidden, domain.KindPermissionDenied},
		{http.StatusNotFound, domain.KindResourceNotFound},
		{http.StatusRequestTimeout, domain.KindAPITimeout},
		{http.StatusTooManyRequests, domain.KindAPIRateLimitExceeded},
		{http.StatusInternalServerError, domain.KindEngineProcessError},
		{http.StatusServiceUnavailable, domain.KindEngineNotAvailable},
		{http.StatusBadRequest, domain.KindAPIRequestFailed},
	}

	for _, tc := range cases {
		err := statusError(tc.status, nil)
		var se *retrypolicy.StatusError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, tc.status, se.Status)

		de, ok := domain.AsError(err)
		require.True(t, ok)
		assert.Equal(t, tc.kind, de.Kind)
	}
}
