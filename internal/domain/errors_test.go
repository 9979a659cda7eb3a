package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExitCodeTable(t *testing.T) {
	cases := []struct {
		kind Kind
		code int
	}{
		{KindInvalidSettings, 2},
		{KindEngineNotAvailable, 3},
		{KindEngineProcessError, 3},
		{KindCachePermissionDenied, 4},
		{KindCacheReadError, 4},
		{KindCacheWriteError, 4},
		{KindCacheFull, 4},
		{KindAudioGenerationFailed, 5},
		{KindMediaFoundationInitFailed, 5},
		{KindAudioPlaybackTimeout, 5},
		{KindAPIRequestFailed, 6},
		{KindAPIAuthenticationErr, 6},
		{KindAPIRateLimitExceeded, 6},
		{KindAPITimeout, 6},
		{KindAPIResponseInvalid, 6},
		{KindPermissionDenied, 1},
		{KindResourceNotFound, 1},
		{KindOperationCancelled, 1},
		{KindInvalidArguments, 1},
		{KindTimeoutError, 1},
		{KindUnknown, 1},
		{KindCircuitOpen, 1},
	}
	for _, c := range cases {
		t.Run(string(c.kind), func(t *testing.T) {
			assert.Equal(t, c.code, c.kind.ExitCode())
		})
	}
}

func TestPermissionDeniedAndResourceNotFoundAreGeneralNotAPI(t *testing.T) {
	// A 403/404 from the engine must exit general (1), not API (6).
	assert.Equal(t, 1, KindPermissionDenied.ExitCode())
	assert.Equal(t, 1, KindResourceNotFound.ExitCode())
}

func TestNewHasNoCause(t *testing.T) {
	err := New(KindUnknown, "boom")
	assert.Equal(t, KindUnknown, err.Kind)
	assert.Nil(t, err.Unwrap())
	assert.Contains(t, err.Error(), "boom")
}

func TestWrapPreservesCauseAndUnwraps(t *testing.T) {
	cause := errors.New("underlying")
	err := Wrap(KindCacheReadError, "read failed", cause)

	assert.Equal(t, cause, err.Unwrap())
	assert.Contains(t, err.Error(), "underlying")
	assert.True(t, errors.Is(err, cause))
}

// wrappedError is a minimal Unwrap-only wrapper, exercising AsError's
// recursive unwrap walk without pulling in fmt.Errorf's %w formatting.
type wrappedError struct{ err error }

func (w wrappedError) Error() string { return w.err.Error() }
func (w wrappedError) Unwrap() error { return w.err }

func TestAsErrorFindsWrappedDomainError(t *testing.T) {
	inner := New(KindCacheFull, "full")

	got, ok := AsError(wrappedError{err: inner})
	require.True(t, ok)
	assert.Same(t, inner, got)
}

func TestAsErrorFalseForPlainError(t *testing.T) {
	_, ok := AsError(errors.New("plain"))
	assert.False(t, ok)
}

func TestAsErrorFalseForNil(t *testing.T) {
	_, ok := AsError(nil)
	assert.False(t, ok)
}
