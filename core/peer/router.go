package peer

import (
	"sort"
	"sync"

	"github.com/pyropy/rnfs/core/coordinator"
	"github.com/pyropy/rnfs/core/model"
)

// StaticRouter routes by a configured peer table with hop-distance hints.
// Real route discovery belongs to the mesh substrate, the core only needs
// a best-known-peer suggestion per identity.
type StaticRouter struct {
	mu    sync.RWMutex
	peers []model.Peer
}

func NewStaticRouter(peers []model.Peer) *StaticRouter {
	sorted := make([]model.Peer, len(peers))
	copy(sorted, peers)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].HopDistance < sorted[j].HopDistance
	})

	return &StaticRouter{peers: sorted}
}

// SuggestPeer picks a peer for an identity. The closest peer is tried
// first, retries rotate through the rest of the table so a dead peer does
// not absorb every attempt.
func (r *StaticRouter) SuggestPeer(id model.ChunkIdentity, attempt int) (model.Peer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.peers) == 0 {
		return model.Peer{}, coordinator.ErrNoPeers
	}

	return r.peers[attempt%len(r.peers)], nil
}

func (r *StaticRouter) Peers() []model.Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	peers := make([]model.Peer, len(r.peers))
	copy(peers, r.peers)
	return peers
}

// HopTo returns the configured hop distance to an address, zero when the
// address is unknown.
func (r *StaticRouter) HopTo(addr string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.peers {
		if p.Address == addr {
			return p.HopDistance
		}
	}

	return 0
}
