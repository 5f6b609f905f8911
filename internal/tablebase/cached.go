package tablebase

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/rs/zerolog/log"
)

// Persister stores probe results across runs. storage.Store implements it.
type Persister interface {
	GetProbe(key uint64) ([]byte, error)
	PutProbe(key uint64, value []byte) error
}

// CachedProber wraps another prober with an in-memory cache and an optional
// persistent store. This reduces API calls for repeated positions.
type CachedProber struct {
	inner  Prober
	cache  *ristretto.Cache[uint64, RootResult]
	store  Persister
	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewCachedProber creates a cached prober wrapping inner and holding up to
// maxEntries results in memory. store may be nil.
func NewCachedProber(inner Prober, maxEntries int64, store Persister) (*CachedProber, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[uint64, RootResult]{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("tablebase cache: %w", err)
	}
	return &CachedProber{inner: inner, cache: cache, store: store}, nil
}

func (cp *CachedProber) ProbeRoot(ctx context.Context, q Query) (RootResult, error) {
	if !q.Probeable(cp.inner.MaxPieces()) {
		return RootResult{}, ErrNoResult
	}
	key := q.Key()
	if r, ok := cp.cache.Get(key); ok {
		cp.hits.Add(1)
		return r, nil
	}
	if r, ok := cp.load(key); ok {
		cp.hits.Add(1)
		cp.cache.Set(key, r, 1)
		return r, nil
	}

	cp.misses.Add(1)
	r, err := cp.inner.ProbeRoot(ctx, q)
	if err != nil {
		return RootResult{}, err
	}
	cp.cache.Set(key, r, 1)
	cp.save(key, r)
	return r, nil
}

func (cp *CachedProber) load(key uint64) (RootResult, bool) {
	if cp.store == nil {
		return RootResult{}, false
	}
	data, err := cp.store.GetProbe(key)
	if err != nil {
		return RootResult{}, false
	}
	var r RootResult
	if err := json.Unmarshal(data, &r); err != nil {
		log.Warn().Str("component", "tablebase").Err(err).Msg("discarding stored probe")
		return RootResult{}, false
	}
	return r, true
}

func (cp *CachedProber) save(key uint64, r RootResult) {
	if cp.store == nil {
		return
	}
	data, err := json.Marshal(r)
	if err == nil {
		err = cp.store.PutProbe(key, data)
	}
	if err != nil {
		log.Warn().Str("component", "tablebase").Err(err).Msg("persisting probe")
	}
}

func (cp *CachedProber) MaxPieces() int {
	return cp.inner.MaxPieces()
}

// Wait blocks until pending cache writes are visible.
func (cp *CachedProber) Wait() {
	cp.cache.Wait()
}

// HitRate returns the cache hit rate as a percentage.
func (cp *CachedProber) HitRate() float64 {
	hits, misses := cp.hits.Load(), cp.misses.Load()
	if hits+misses == 0 {
		return 0
	}
	return float64(hits) / float64(hits+misses) * 100
}

// Clear empties the in-memory cache.
func (cp *CachedProber) Clear() {
	cp.cache.Clear()
	cp.hits.Store(0)
	cp.misses.Store(0)
}

// Close releases the cache.
func (cp *CachedProber) Close() {
	cp.cache.Close()
}
