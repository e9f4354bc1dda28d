package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	ds "github.com/ipfs/go-datastore"
	dsq "github.com/ipfs/go-datastore/query"
	dslvl "github.com/ipfs/go-ds-leveldb"
	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"

	"github.com/pyropy/rnfs/core/model"
)

var (
	ErrNotFound = errors.New("chunk not found")
	ErrCapacity = errors.New("store capacity exceeded")
)

const defaultCacheSize = 256

// chunkMeta is the per-chunk bookkeeping persisted next to the payload.
type chunkMeta struct {
	Size        uint64    `json:"size"`
	CreatedAt   time.Time `json:"createdAt"`
	LastAccess  int64     `json:"lastAccess"` // unix nanos, monotonic enough for LRU ordering
	HopDistance int       `json:"hopDistance"`
}

// AccessEntry is one row of an eviction scan, least recently used first.
type AccessEntry struct {
	Identity    model.ChunkIdentity
	LastAccess  time.Time
	Size        uint64
	HopDistance int
}

// Store is the content-addressed chunk store. Payloads and metadata live in
// a leveldb datastore keyed by identity, with a small LRU payload cache in
// front of it. Every read re-verifies the payload digest, corrupt entries
// are purged and reported as absent.
type Store struct {
	mu sync.Mutex

	ds       *dslvl.Datastore
	cache    *lru.Cache
	capacity uint64
	used     uint64

	subs    []chan Event
	log     *zap.SugaredLogger
	metrics metrics
}

func New(path string, capacity uint64, log *zap.SugaredLogger) (*Store, error) {
	d, err := dslvl.NewDatastore(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open datastore: %w", err)
	}

	c, err := lru.New(defaultCacheSize)
	if err != nil {
		return nil, err
	}

	s := &Store{
		ds:       d,
		cache:    c,
		capacity: capacity,
		log:      log,
		metrics:  newMetrics(),
	}

	if err := s.loadUsage(context.Background()); err != nil {
		return nil, fmt.Errorf("scan store usage: %w", err)
	}

	return s, nil
}

func (s *Store) Close() error {
	return s.ds.Close()
}

func chunkKey(id model.ChunkIdentity) ds.Key {
	return ds.NewKey("/chunks/" + id.String())
}

func metaKey(id model.ChunkIdentity) ds.Key {
	return ds.NewKey("/meta/" + id.String())
}

// loadUsage rebuilds the used-bytes counter from persisted metadata on open.
func (s *Store) loadUsage(ctx context.Context) error {
	res, err := s.ds.Query(ctx, dsq.Query{Prefix: "/meta"})
	if err != nil {
		return err
	}

	var used uint64
	for {
		r, hasNext := res.NextSync()
		if !hasNext {
			break
		}
		if r.Error != nil {
			return r.Error
		}

		var m chunkMeta
		if err := json.Unmarshal(r.Value, &m); err != nil {
			continue
		}
		used += m.Size
	}

	s.used = used
	s.metrics.UsedBytes.Set(float64(used))
	return nil
}

// Put persists a payload under its computed identity. Re-putting identical
// bytes is a no-op beyond the identity computation. Returns ErrCapacity when
// the chunk does not fit, nothing is written in that case.
func (s *Store) Put(ctx context.Context, payload []byte, hopDistance int) (model.ChunkIdentity, error) {
	id := model.NewChunkIdentity(payload)
	size := uint64(len(payload))

	s.mu.Lock()

	exists, err := s.ds.Has(ctx, chunkKey(id))
	if err != nil {
		s.mu.Unlock()
		return id, err
	}
	if exists {
		s.mu.Unlock()
		return id, nil
	}

	if s.capacity > 0 && s.used+size > s.capacity {
		s.mu.Unlock()
		return id, ErrCapacity
	}

	if err := s.ds.Put(ctx, chunkKey(id), payload); err != nil {
		s.mu.Unlock()
		return id, err
	}

	meta := chunkMeta{
		Size:        size,
		CreatedAt:   time.Now().UTC(),
		LastAccess:  time.Now().UnixNano(),
		HopDistance: hopDistance,
	}

	b, err := json.Marshal(meta)
	if err == nil {
		err = s.ds.Put(ctx, metaKey(id), b)
	}
	if err != nil {
		// roll back to absent, a chunk without metadata is invisible
		// to eviction scans and usage accounting
		_ = s.ds.Delete(ctx, chunkKey(id))
		s.mu.Unlock()
		return id, err
	}

	s.used += size
	s.cache.Add(id, payload)
	s.metrics.PutTotal.Inc()
	s.metrics.UsedBytes.Set(float64(s.used))
	s.mu.Unlock()

	s.emit(Event{Type: EventPut, Identity: id, Size: size, HopDistance: hopDistance})
	return id, nil
}

// Get retrieves a chunk and re-verifies its integrity. A corrupt entry is
// deleted and reported as ErrNotFound, corrupt bytes are never returned.
func (s *Store) Get(ctx context.Context, id model.ChunkIdentity) (*model.Chunk, error) {
	s.mu.Lock()

	var payload []byte
	if v, ok := s.cache.Get(id); ok {
		payload = v.([]byte)
	} else {
		b, err := s.ds.Get(ctx, chunkKey(id))
		if err != nil {
			s.mu.Unlock()
			if errors.Is(err, ds.ErrNotFound) {
				return nil, ErrNotFound
			}
			return nil, err
		}
		payload = b
	}

	if model.NewChunkIdentity(payload) != id {
		size := s.purgeLocked(ctx, id)
		s.metrics.IntegrityPurges.Inc()
		s.mu.Unlock()

		s.log.Warnw("store", "status", "purged corrupt chunk", "chunk", id)
		s.emit(Event{Type: EventDelete, Identity: id, Size: size})
		return nil, ErrNotFound
	}

	meta, err := s.getMetaLocked(ctx, id)
	if err == nil {
		meta.LastAccess = time.Now().UnixNano()
		s.putMetaLocked(ctx, id, meta)
	}

	s.metrics.GetTotal.Inc()
	s.mu.Unlock()

	chunk := &model.Chunk{
		Identity: id,
		Payload:  payload,
		Size:     uint64(len(payload)),
	}
	if meta != nil {
		chunk.CreatedAt = meta.CreatedAt
		chunk.HopDistance = meta.HopDistance
	}

	return chunk, nil
}

// Has reports chunk presence without reading the payload.
func (s *Store) Has(ctx context.Context, id model.ChunkIdentity) (bool, error) {
	return s.ds.Has(ctx, chunkKey(id))
}

// Delete removes a chunk. Deleting an absent chunk is a no-op.
func (s *Store) Delete(ctx context.Context, id model.ChunkIdentity) error {
	s.mu.Lock()

	exists, err := s.ds.Has(ctx, chunkKey(id))
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if !exists {
		s.mu.Unlock()
		return nil
	}

	size := s.purgeLocked(ctx, id)
	s.metrics.DeleteTotal.Inc()
	s.mu.Unlock()

	s.emit(Event{Type: EventDelete, Identity: id, Size: size})
	return nil
}

// purgeLocked removes payload and metadata and fixes usage accounting.
// Returns the size of the removed chunk.
func (s *Store) purgeLocked(ctx context.Context, id model.ChunkIdentity) uint64 {
	var size uint64
	if meta, err := s.getMetaLocked(ctx, id); err == nil {
		size = meta.Size
	}

	_ = s.ds.Delete(ctx, chunkKey(id))
	_ = s.ds.Delete(ctx, metaKey(id))
	s.cache.Remove(id)

	if size <= s.used {
		s.used -= size
	} else {
		s.used = 0
	}
	s.metrics.UsedBytes.Set(float64(s.used))

	return size
}

func (s *Store) getMetaLocked(ctx context.Context, id model.ChunkIdentity) (*chunkMeta, error) {
	b, err := s.ds.Get(ctx, metaKey(id))
	if err != nil {
		return nil, err
	}

	var m chunkMeta
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}

	return &m, nil
}

func (s *Store) putMetaLocked(ctx context.Context, id model.ChunkIdentity, m *chunkMeta) {
	b, err := json.Marshal(m)
	if err != nil {
		return
	}

	if err := s.ds.Put(ctx, metaKey(id), b); err != nil {
		s.log.Errorw("store", "error", "failed to update chunk metadata", "chunk", id)
	}
}

// ListByAccessOrder returns a consistent snapshot of all chunks ordered
// least recently used first. Used by eviction scans.
func (s *Store) ListByAccessOrder(ctx context.Context) ([]AccessEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.ds.Query(ctx, dsq.Query{Prefix: "/meta"})
	if err != nil {
		return nil, err
	}

	entries := make([]AccessEntry, 0)
	access := make(map[model.ChunkIdentity]int64)

	for {
		r, hasNext := res.NextSync()
		if !hasNext {
			break
		}
		if r.Error != nil {
			return nil, r.Error
		}

		id, err := model.ParseChunkIdentity(ds.RawKey(r.Key).BaseNamespace())
		if err != nil {
			continue
		}

		var m chunkMeta
		if err := json.Unmarshal(r.Value, &m); err != nil {
			continue
		}

		access[id] = m.LastAccess
		entries = append(entries, AccessEntry{
			Identity:    id,
			LastAccess:  time.Unix(0, m.LastAccess),
			Size:        m.Size,
			HopDistance: m.HopDistance,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		return access[entries[i].Identity] < access[entries[j].Identity]
	})

	return entries, nil
}

// UsedBytes returns the total payload bytes currently stored.
func (s *Store) UsedBytes() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.used
}

// Capacity returns the configured capacity in bytes, zero means unbounded.
func (s *Store) Capacity() uint64 {
	return s.capacity
}

// Utilization returns used capacity as a fraction, zero for unbounded stores.
func (s *Store) Utilization() float64 {
	if s.capacity == 0 {
		return 0
	}
	return float64(s.UsedBytes()) / float64(s.capacity)
}
