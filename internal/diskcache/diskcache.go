// Package diskcache implements the Disk Cache Store (spec §4.C): a
// content-addressed flat-file store of `<key>.mp3` / `<key>.meta.json`
// pairs with atomic write-then-rename, grounded on the on-disk half of the
// teacher's speech.AudioCache and glow-tts's DiskCache.
package diskcache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/hammamikhairi/vvcache/internal/domain"
	"github.com/hammamikhairi/vvcache/internal/logger"
)

// Store is the content-addressed on-disk cache half (spec §4.C).
type Store struct {
	dir        string
	expiration time.Duration
	codec      domain.AudioCodec
	log        *logger.Logger
}

// Resolve applies spec §4.C's directory resolution rule: if dir is
// relative and useExecutableBase is true, resolve against the running
// executable's directory; otherwise against the process working
// directory.
func Resolve(dir string, useExecutableBase bool) (string, error) {
	if filepath.IsAbs(dir) {
		return dir, nil
	}
	if useExecutableBase {
		exe, err := os.Executable()
		if err != nil {
			return "", domain.Wrap(domain.KindInvalidSettings, "resolve executable directory", err)
		}
		return filepath.Join(filepath.Dir(exe), dir), nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", domain.Wrap(domain.KindInvalidSettings, "resolve working directory", err)
	}
	return filepath.Join(wd, dir), nil
}

// New constructs a disk cache rooted at dir, creating it on first use.
func New(dir string, expiration time.Duration, codec domain.AudioCodec, log *logger.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, wrapFileErr(err, "create cache directory")
	}
	return &Store{dir: dir, expiration: expiration, codec: codec, log: log}, nil
}

func (s *Store) audioPath(key string) string { return filepath.Join(s.dir, key+".mp3") }
func (s *Store) metaPath(key string) string  { return filepath.Join(s.dir, key+".meta.json") }

// Load returns the audio bytes and metadata for key, or ok=false if either
// file is missing, the metadata is invalid, or the entry has expired — in
// which case both files are synchronously removed (spec §4.C).
func (s *Store) Load(key string) (audio []byte, meta domain.Metadata, ok bool, err error) {
	metaBytes, mErr := os.ReadFile(s.metaPath(key))
	if mErr != nil {
		if os.IsNotExist(mErr) {
			s.deleteQuiet(key)
			return nil, domain.Metadata{}, false, nil
		}
		return nil, domain.Metadata{}, false, wrapFileErr(mErr, "read cache metadata")
	}

	audioBytes, aErr := os.ReadFile(s.audioPath(key))
	if aErr != nil {
		if os.IsNotExist(aErr) {
			s.deleteQuiet(key)
			return nil, domain.Metadata{}, false, nil
		}
		return nil, domain.Metadata{}, false, wrapFileErr(aErr, "read cache audio")
	}

	var m domain.Metadata
	if jErr := json.Unmarshal(metaBytes, &m); jErr != nil {
		s.log.Warn("diskcache: corrupt metadata for %s: %v", key, jErr)
		s.deleteQuiet(key)
		return nil, domain.Metadata{}, false, nil
	}

	if !m.Valid() || time.Since(m.CreatedAt) > s.expiration {
		s.deleteQuiet(key)
		return nil, domain.Metadata{}, false, nil
	}

	return audioBytes, m, true, nil
}

// Store encodes wavBytes to MP3 via the Audio Codec collaborator and
// atomically persists the audio/metadata pair (spec §4.C).
func (s *Store) Store(key string, wavBytes []byte, req domain.VoiceRequest) error {
	mp3Bytes, ok, err := s.codec.EncodeToMP3(wavBytes)
	if err != nil {
		return domain.Wrap(domain.KindAudioGenerationFailed, "encode to mp3", err)
	}
	if !ok {
		mp3Bytes = wavBytes
	}

	meta := domain.MetadataFor(req, time.Now())
	metaBytes, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return domain.Wrap(domain.KindCacheWriteError, "marshal cache metadata", err)
	}

	if err := atomicWrite(s.audioPath(key), mp3Bytes); err != nil {
		return err
	}
	return atomicWrite(s.metaPath(key), metaBytes)
}

// Delete best-effort removes both files of the pair; missing files are
// not errors (spec §4.C).
func (s *Store) Delete(key string) {
	s.deleteQuiet(key)
}

func (s *Store) deleteQuiet(key string) {
	_ = os.Remove(s.audioPath(key))
	_ = os.Remove(s.metaPath(key))
}

// ListKeys enumerates `*.mp3` stems present in the cache directory.
func (s *Store) ListKeys() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, wrapFileErr(err, "list cache directory")
	}
	var keys []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ext := filepath.Ext(e.Name()); ext == ".mp3" {
			keys = append(keys, e.Name()[:len(e.Name())-len(ext)])
		}
	}
	return keys, nil
}

// Entry describes one on-disk entry for size-enforcement purposes.
type Entry struct {
	Key       string
	Size      int64
	CreatedAt time.Time
}

// Entries lists every present cache entry with its audio file size and
// creation time (metadata CreatedAt, falling back to the audio file's
// mtime if metadata is unreadable), for the Cache Manager's size sweep.
func (s *Store) Entries() ([]Entry, error) {
	keys, err := s.ListKeys()
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(keys))
	for _, key := range keys {
		info, err := os.Stat(s.audioPath(key))
		if err != nil {
			continue
		}

		createdAt := info.ModTime()
		if metaBytes, err := os.ReadFile(s.metaPath(key)); err == nil {
			var m domain.Metadata
			if json.Unmarshal(metaBytes, &m) == nil && !m.CreatedAt.IsZero() {
				createdAt = m.CreatedAt
			}
		}

		entries = append(entries, Entry{Key: key, Size: info.Size(), CreatedAt: createdAt})
	}
	return entries, nil
}

// TotalBytes sums the audio file sizes of every present entry.
func (s *Store) TotalBytes() (int64, error) {
	entries, err := s.Entries()
	if err != nil {
		return 0, err
	}
	var total int64
	for _, e := range entries {
		total += e.Size
	}
	return total, nil
}

// atomicWrite writes data to a temp file in the same directory as path
// then renames it into place, so concurrent readers see either the
// complete old file, the complete new file, or no file (spec §4.C).
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return wrapFileErr(err, "create temp cache file")
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return wrapFileErr(err, "write temp cache file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return wrapFileErr(err, "close temp cache file")
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return wrapFileErr(err, "rename cache file into place")
	}
	return nil
}

// wrapFileErr classifies a filesystem error into the spec §4.C error
// kinds: permission, disk-full, or a generic read/write failure.
func wrapFileErr(err error, action string) error {
	if errors.Is(err, os.ErrPermission) {
		return domain.Wrap(domain.KindCachePermissionDenied, action, err)
	}
	if errors.Is(err, syscall.ENOSPC) {
		return domain.Wrap(domain.KindCacheFull, action, err)
	}
	if errors.Is(err, os.ErrNotExist) {
		return domain.Wrap(domain.KindCacheReadError, action, err)
	}
	return domain.Wrap(domain.KindCacheWriteError, action, fmt.Errorf("%s: %w", action, err))
}
