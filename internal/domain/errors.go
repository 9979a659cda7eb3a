// Package domain holds the types and sentinel values shared across every
// cache/engine/player component: the request/segment/task data model (spec
// §3) and the single error sum-type (spec §7, §9 — "prefer a single sum
// type for error kinds with a category discriminant rather than class
// hierarchies").
package domain

import "fmt"

// Kind is the machine-readable error category. Its Category determines the
// process exit code (spec §6/§7).
type Kind string

const (
	// Configuration
	KindInvalidSettings Kind = "InvalidSettings"

	// Engine
	KindEngineNotAvailable Kind = "EngineNotAvailable"
	KindEngineProcessError Kind = "EngineProcessError"

	// Cache
	KindCachePermissionDenied Kind = "CachePermissionDenied"
	KindCacheReadError        Kind = "CacheReadError"
	KindCacheWriteError       Kind = "CacheWriteError"
	KindCacheFull             Kind = "CacheFull"

	// Audio
	KindAudioGenerationFailed     Kind = "AudioGenerationFailed"
	KindMediaFoundationInitFailed Kind = "MediaFoundationInitFailed"
	KindAudioPlaybackTimeout      Kind = "AudioPlaybackTimeout"

	// API
	KindAPIRequestFailed     Kind = "ApiRequestFailed"
	KindAPIAuthenticationErr Kind = "ApiAuthenticationError"
	KindAPIRateLimitExceeded Kind = "ApiRateLimitExceeded"
	KindAPITimeout           Kind = "ApiTimeout"
	KindAPIResponseInvalid   Kind = "ApiResponseInvalid"

	// General
	KindPermissionDenied   Kind = "PermissionDenied"
	KindResourceNotFound   Kind = "ResourceNotFound"
	KindOperationCancelled Kind = "OperationCancelled"
	KindInvalidArguments   Kind = "InvalidArguments"
	KindTimeoutError       Kind = "TimeoutError"
	KindUnknown            Kind = "UnknownError"

	// CircuitOpen is raised by the retry policy when the breaker is open;
	// it is not retryable and carries its own suggested fix.
	KindCircuitOpen Kind = "CircuitOpen"
)

// Category groups kinds for exit-code purposes (spec §6).
type Category int

const (
	CategoryGeneral Category = iota
	CategoryConfiguration
	CategoryEngine
	CategoryCache
	CategoryAudio
	CategoryAPI
)

// category returns which bucket a Kind falls into.
func (k Kind) category() Category {
	switch k {
	case KindInvalidSettings:
		return CategoryConfiguration
	case KindEngineNotAvailable, KindEngineProcessError:
		return CategoryEngine
	case KindCachePermissionDenied, KindCacheReadError, KindCacheWriteError, KindCacheFull:
		return CategoryCache
	case KindAudioGenerationFailed, KindMediaFoundationInitFailed, KindAudioPlaybackTimeout:
		return CategoryAudio
	case KindAPIRequestFailed, KindAPIAuthenticationErr, KindAPIRateLimitExceeded,
		KindAPITimeout, KindAPIResponseInvalid:
		return CategoryAPI
	default:
		return CategoryGeneral
	}
}

// ExitCode maps a Kind to the exit code table in spec §6: 0 success; 1
// general; 2 configuration; 3 engine unavailable; 4 cache error; 5 audio
// error; 6 API error.
func (k Kind) ExitCode() int {
	switch k.category() {
	case CategoryConfiguration:
		return 2
	case CategoryEngine:
		return 3
	case CategoryCache:
		return 4
	case CategoryAudio:
		return 5
	case CategoryAPI:
		return 6
	default:
		return 1
	}
}

// SuggestedFix returns a one-line operator-facing suggestion, per spec §7
// ("every surfaced error produces a localized message plus a one-line
// suggested fix").
func (k Kind) SuggestedFix() string {
	switch k {
	case KindEngineNotAvailable:
		return "check that the synthesis engine process is running and reachable"
	case KindEngineProcessError:
		return "restart the engine"
	case KindCachePermissionDenied:
		return "check cache directory permissions"
	case KindCacheReadError, KindCacheWriteError:
		return "check cache directory for corruption or disk errors"
	case KindCacheFull:
		return "free disk space or lower max_size_gb"
	case KindAudioGenerationFailed, KindMediaFoundationInitFailed:
		return "check audio device configuration"
	case KindAudioPlaybackTimeout:
		return "check the audio output device isn't hung"
	case KindAPIAuthenticationErr:
		return "check engine credentials"
	case KindAPIRateLimitExceeded:
		return "retry after a short delay"
	case KindAPITimeout:
		return "check engine connectivity and retry"
	case KindCircuitOpen:
		return "engine is failing repeatedly; wait for the circuit breaker to reset"
	case KindInvalidSettings, KindInvalidArguments:
		return "check the supplied configuration or arguments"
	case KindOperationCancelled:
		return "no action needed; operation was cancelled by the caller"
	default:
		return "check the logs for more detail"
	}
}

// Error is the single error sum-type used across every component. It
// always carries a Kind and may wrap an underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an *Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an *Error wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// AsError reports whether err is (or wraps) a *domain.Error and returns it.
func AsError(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	if e, ok := err.(*Error); ok {
		return e, true
	}
	if wrapper, ok := err.(interface{ Unwrap() error }); ok {
		return AsError(wrapper.Unwrap())
	}
	return nil, false
}
