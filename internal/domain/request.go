package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Prosody defaults (spec §3).
const (
	DefaultSpeed  = 1.0
	DefaultPitch  = 0.0
	DefaultVolume = 1.0
)

// prosodyEpsilon is the threshold below which a prosody parameter is
// considered "at its default" for query-string assembly purposes (spec
// §4.A: "only when the parameter deviates from its default by > 1e-4").
const prosodyEpsilon = 1e-4

// VoiceRequest is the immutable input to a synthesis/cache-lookup
// operation (spec §3).
type VoiceRequest struct {
	Text      string
	SpeakerID int
	Speed     float64
	Pitch     float64
	Volume    float64
}

// NewVoiceRequest fills in the prosody defaults for a zero Speed or a zero
// Volume; a zero Pitch is kept, since 0.0 is itself a valid Pitch but
// never a valid Speed/Volume.
func NewVoiceRequest(text string, speakerID int, speed, pitch, volume float64) VoiceRequest {
	if speed == 0 {
		speed = DefaultSpeed
	}
	if volume == 0 {
		volume = DefaultVolume
	}
	return VoiceRequest{Text: text, SpeakerID: speakerID, Speed: speed, Pitch: pitch, Volume: volume}
}

// DeviatesFromDefault reports whether a prosody value differs from def by
// more than the engine query-string assembly epsilon.
func DeviatesFromDefault(value, def float64) bool {
	d := value - def
	if d < 0 {
		d = -d
	}
	return d > prosodyEpsilon
}

// CacheKey computes the deterministic 256-bit hex-lowercased SHA-256 digest
// of the canonical request string (spec §3):
//
//	"{text}|{speaker_id}|{speed:%.2f}|{pitch:%.2f}|{volume:%.2f}"
//
// formatted with a locale-independent decimal point (Go's fmt always
// formats floats with '.' regardless of OS locale, satisfying this).
func CacheKey(req VoiceRequest) string {
	canonical := fmt.Sprintf("%s|%d|%.2f|%.2f|%.2f", req.Text, req.SpeakerID, req.Speed, req.Pitch, req.Volume)
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

// Metadata is the persisted per-entry sidecar (spec §3, §6). Field names
// are tagged PascalCase per spec §6; see DESIGN.md for the Open Question
// decision on reader compatibility.
type Metadata struct {
	CreatedAt time.Time `json:"CreatedAt"`
	Text      string    `json:"Text"`
	SpeakerID int       `json:"SpeakerId"`
	Speed     float64   `json:"Speed"`
	Pitch     float64   `json:"Pitch"`
	Volume    float64   `json:"Volume"`
}

// Valid implements the metadata validity predicate from spec §3: text
// non-empty AND speaker_id > 0 AND created_at not the zero instant.
func (m Metadata) Valid() bool {
	return m.Text != "" && m.SpeakerID > 0 && !m.CreatedAt.IsZero()
}

// MetadataFor builds the Metadata persisted alongside a cache entry at
// write time (spec §4.C: "created_at = now_utc, text, speaker_id, speed,
// pitch, volume").
func MetadataFor(req VoiceRequest, now time.Time) Metadata {
	return Metadata{
		CreatedAt: now.UTC(),
		Text:      req.Text,
		SpeakerID: req.SpeakerID,
		Speed:     req.Speed,
		Pitch:     req.Pitch,
		Volume:    req.Volume,
	}
}

// TextSegment is a sentence-level chunk of input text produced by the Text
// Segmenter (spec §3, §4.F). Mutable during pipeline processing.
type TextSegment struct {
	Text      string
	Position  int // cumulative length of previously emitted segment text (spec §9 Open Question)
	Length    int
	SpeakerID int
	AudioData []byte
	IsCached  bool
}

// AsRequest converts a segment back into a VoiceRequest for cache lookup or
// dispatch, inheriting prosody from the parent request.
func (s TextSegment) AsRequest(speed, pitch, volume float64) VoiceRequest {
	return VoiceRequest{Text: s.Text, SpeakerID: s.SpeakerID, Speed: speed, Pitch: pitch, Volume: volume}
}

// SynthesisTask is placed on the Synthesis Channel's work queue (spec §3,
// §4.G).
type SynthesisTask struct {
	ID         string
	Request    VoiceRequest
	EnqueuedAt time.Time
}

// SynthesisResult is returned from the Synthesis Channel for exactly one
// matching task (spec §3, §4.G).
type SynthesisResult struct {
	TaskID       string
	AudioData    []byte
	FromCache    bool
	Elapsed      time.Duration
	Success      bool
	ErrorMessage string
}
