package admission

import (
	"context"
	"time"

	"github.com/pyropy/rnfs/core/model"
	"github.com/pyropy/rnfs/core/store"
)

// StoreReader is the slice of the chunk store the policy reads. It never
// mutates the store, eviction decisions are carried out by the caller.
type StoreReader interface {
	UsedBytes() uint64
	Capacity() uint64
	ListByAccessOrder(ctx context.Context) ([]store.AccessEntry, error)
}

// PendingChecker guards in-flight chunks against eviction.
type PendingChecker interface {
	IsPending(id model.ChunkIdentity) bool
}

type Config struct {
	// HighWaterMark is the utilization fraction above which admission
	// becomes competitive instead of unconditional.
	HighWaterMark float64
	// DemandWeight scales the demand signal of a candidate.
	DemandWeight float64
	// LocalityWeight discounts candidates whose publisher is far away.
	LocalityWeight float64
}

func DefaultConfig() Config {
	return Config{
		HighWaterMark:  0.9,
		DemandWeight:   1.0,
		LocalityWeight: 0.25,
	}
}

// Candidate describes a chunk observed in transit that may be worth keeping.
type Candidate struct {
	Identity    model.ChunkIdentity
	Size        uint64
	HopDistance int
	Demand      int
	LastDemand  time.Time
}

// Policy decides what a node retains after seeing chunks in transit. It is
// advisory: a wrong decision only affects hit rate, never integrity.
type Policy struct {
	cfg     Config
	reader  StoreReader
	pending PendingChecker
}

func New(cfg Config, reader StoreReader, pending PendingChecker) *Policy {
	return &Policy{
		cfg:     cfg,
		reader:  reader,
		pending: pending,
	}
}

// ShouldAdmit reports whether an opportunistically observed chunk should be
// retained. Below the high-water mark everything is admitted, above it the
// candidate must out-score the least valuable resident chunk.
func (p *Policy) ShouldAdmit(ctx context.Context, cand Candidate) (bool, error) {
	capacity := p.reader.Capacity()
	if capacity == 0 {
		return true, nil
	}

	if cand.Size > capacity {
		return false, nil
	}

	utilization := float64(p.reader.UsedBytes()) / float64(capacity)
	if utilization < p.cfg.HighWaterMark {
		return true, nil
	}

	entries, err := p.reader.ListByAccessOrder(ctx)
	if err != nil {
		return false, err
	}

	for _, e := range entries {
		if p.pending.IsPending(e.Identity) {
			continue
		}
		return p.candidateScore(cand) > residentScore(e), nil
	}

	// every resident is mid-transfer, nothing could make room anyway
	return false, nil
}

// SelectEvictions walks the access-order listing LRU-first and accumulates
// identities until targetFreeBytes is reclaimable. Chunks referenced by a
// pending ledger entry are never selected.
func (p *Policy) SelectEvictions(ctx context.Context, targetFreeBytes uint64) ([]model.ChunkIdentity, error) {
	entries, err := p.reader.ListByAccessOrder(ctx)
	if err != nil {
		return nil, err
	}

	var (
		victims   []model.ChunkIdentity
		reclaimed uint64
	)

	for _, e := range entries {
		if reclaimed >= targetFreeBytes {
			break
		}
		if p.pending.IsPending(e.Identity) {
			continue
		}

		victims = append(victims, e.Identity)
		reclaimed += e.Size
	}

	return victims, nil
}

// candidateScore is a recency-weighted demand signal discounted by hop
// distance, closer publishers are slightly preferred. Shares the
// 1-plus-recency baseline with residentScore so a candidate without any
// demand signal cannot outrank a recently used resident.
func (p *Policy) candidateScore(cand Candidate) float64 {
	recency := 1.0
	if !cand.LastDemand.IsZero() {
		recency = 1.0 / (1.0 + time.Since(cand.LastDemand).Minutes())
	}

	demand := 1.0 + p.cfg.DemandWeight*float64(cand.Demand)*recency
	locality := 1.0 + p.cfg.LocalityWeight*float64(cand.HopDistance)

	return demand / locality
}

func residentScore(e store.AccessEntry) float64 {
	idle := time.Since(e.LastAccess).Minutes()
	if idle < 0 {
		idle = 0
	}

	return 1.0 + 1.0/(1.0+idle)
}
