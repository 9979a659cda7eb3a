// Package cachemanager composes the Memory LRU Cache over the Disk Cache
// Store (spec §4.E), write-through on Put and hydrate-on-disk-hit on Get,
// with a background size-cap sweep after every write and single-writer
// in-flight de-duplication per cache key. De-dup is grounded on
// biesnecker-tts-daemon's inFlightFetch map (other_examples).
package cachemanager

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hammamikhairi/vvcache/internal/diskcache"
	"github.com/hammamikhairi/vvcache/internal/domain"
	"github.com/hammamikhairi/vvcache/internal/logger"
	"github.com/hammamikhairi/vvcache/internal/memcache"
)

// sweepBudget bounds the background size-enforcement task (spec §4.E:
// "budgeted to 5 minutes, cancellable").
const sweepBudget = 5 * time.Minute

// inFlight tracks a single in-progress Put for a cache key, so concurrent
// writers for the same key wait on one write instead of racing.
type inFlight struct {
	done chan struct{}
	err  error
}

// Manager composes the in-memory and on-disk cache tiers (spec §4.E).
type Manager struct {
	mem  *memcache.Cache
	disk *diskcache.Store
	log  *logger.Logger

	maxDiskBytes int64

	mu       sync.Mutex
	inFlight map[string]*inFlight
}

// New constructs a Cache Manager over an existing memory/disk pair.
func New(mem *memcache.Cache, disk *diskcache.Store, maxDiskBytes int64, log *logger.Logger) *Manager {
	return &Manager{
		mem:          mem,
		disk:         disk,
		log:          log,
		maxDiskBytes: maxDiskBytes,
		inFlight:     make(map[string]*inFlight),
	}
}

// Key computes the deterministic cache key for req (spec §4.E: "exposed
// publicly for use by the Filler subsystem").
func Key(req domain.VoiceRequest) string {
	return domain.CacheKey(req)
}

// Get tries memory first, then disk; a disk hit hydrates memory (spec
// §4.E).
func (m *Manager) Get(key string) ([]byte, bool) {
	if data, ok := m.mem.Get(key); ok {
		return data, true
	}

	audio, _, ok, err := m.disk.Load(key)
	if err != nil {
		m.log.Warn("cachemanager: disk load error for %s: %v", key, err)
		return nil, false
	}
	if !ok {
		return nil, false
	}

	m.mem.Set(key, audio)
	return audio, true
}

// Put writes through to disk first (authoritative), then populates
// memory with the same MP3-encoded bytes, then schedules an asynchronous
// size-cap sweep (spec §4.E). Concurrent Puts for the same key
// deduplicate onto a single writer.
func (m *Manager) Put(ctx context.Context, key string, wavBytes []byte, req domain.VoiceRequest) error {
	m.mu.Lock()
	if flight, ok := m.inFlight[key]; ok {
		m.mu.Unlock()
		<-flight.done
		return flight.err
	}
	flight := &inFlight{done: make(chan struct{})}
	m.inFlight[key] = flight
	m.mu.Unlock()

	err := m.doPut(key, wavBytes, req)

	m.mu.Lock()
	delete(m.inFlight, key)
	m.mu.Unlock()
	flight.err = err
	close(flight.done)

	if err == nil {
		go m.sweep()
	}
	return err
}

func (m *Manager) doPut(key string, wavBytes []byte, req domain.VoiceRequest) error {
	if err := m.disk.Store(key, wavBytes, req); err != nil {
		return err
	}

	audio, _, ok, err := m.disk.Load(key)
	if err != nil || !ok {
		// Disk write succeeded but the immediate re-read failed; fall back to
		// caching the pre-encode bytes so memory isn't left stale.
		m.mem.Set(key, wavBytes)
		return nil
	}
	m.mem.Set(key, audio)
	return nil
}

// sweep re-computes total disk bytes and evicts entries in ascending
// created_at order until within maxDiskBytes (spec §4.E).
func (m *Manager) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepBudget)
	defer cancel()

	entries, err := m.disk.Entries()
	if err != nil {
		m.log.Warn("cachemanager: sweep failed to list entries: %v", err)
		return
	}

	var total int64
	for _, e := range entries {
		total += e.Size
	}
	if total <= m.maxDiskBytes {
		return
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].CreatedAt.Before(entries[j].CreatedAt) })

	for _, e := range entries {
		if total <= m.maxDiskBytes {
			break
		}
		select {
		case <-ctx.Done():
			m.log.Warn("cachemanager: sweep cancelled before reaching size cap")
			return
		default:
		}
		m.disk.Delete(e.Key)
		m.mem.Remove(e.Key)
		total -= e.Size
	}
}

// MemStats exposes the memory tier's stats for administrative reporting.
func (m *Manager) MemStats() memcache.Stats { return m.mem.Stats() }

// Clear empties both tiers.
func (m *Manager) Clear() {
	m.mem.Clear()
	keys, err := m.disk.ListKeys()
	if err != nil {
		return
	}
	for _, k := range keys {
		m.disk.Delete(k)
	}
}
