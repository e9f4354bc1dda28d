package coordinator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"resenje.org/singleflight"

	"github.com/pyropy/rnfs/core/admission"
	"github.com/pyropy/rnfs/core/ledger"
	"github.com/pyropy/rnfs/core/model"
	"github.com/pyropy/rnfs/core/store"
	"github.com/pyropy/rnfs/lib/cmap"
)

var (
	ErrIntegrity     = errors.New("payload does not match requested identity")
	ErrCanceled      = errors.New("request canceled")
	ErrUnknownHandle = errors.New("unknown request handle")
	ErrNoPeers       = errors.New("no peers available")
)

// localAddrPrefix marks this node's own interest inside a ledger peer set.
// API handles register as "local/<handle>" so cancelling one handle never
// withdraws another handle's interest in the same identity.
const localAddrPrefix = "local"

var localPeer = model.Peer{Address: localAddrPrefix}

func localHandleAddr(id uuid.UUID) string {
	return localAddrPrefix + "/" + id.String()
}

func isLocalAddr(addr string) bool {
	return addr == localAddrPrefix || strings.HasPrefix(addr, localAddrPrefix+"/")
}

// Transport is the outbound half of the mesh substrate. Delivery is
// best-effort and unordered, the ledger's retry logic is the only
// acknowledgment the core relies on.
type Transport interface {
	SendRequest(ctx context.Context, id model.ChunkIdentity, to model.Peer) error
	SendChunk(ctx context.Context, id model.ChunkIdentity, payload []byte, hopDistance int, to model.Peer) error
	SendOffer(ctx context.Context, id model.ChunkIdentity, hopDistance int, to model.Peer) error
}

// PeerRouter supplies peer-routing hints, routing itself is outside the
// core. Attempt counts let the router rotate away from unresponsive peers.
type PeerRouter interface {
	SuggestPeer(id model.ChunkIdentity, attempt int) (model.Peer, error)
	Peers() []model.Peer
}

// ManifestResolver turns a manifest identity into the ordered chunk list.
type ManifestResolver interface {
	Resolve(ctx context.Context, id model.ChunkIdentity) (*model.FileManifest, error)
}

// Notifier receives outbound notifications for the API layer.
type Notifier interface {
	ChunkResolved(id model.ChunkIdentity)
	RequestFailed(id model.ChunkIdentity, reason error)
	StoreChanged()
}

type Config struct {
	// ChunkSize is the fixed chunking size for published payloads.
	ChunkSize int
	// Publisher names this node in manifests it publishes.
	Publisher string
	// AutoFetch requests every offered chunk that is locally absent, not
	// just chunks belonging to subscribed manifests.
	AutoFetch bool
	// Relay lets this node fetch chunks on behalf of requesting peers
	// instead of answering with a miss.
	Relay bool
	// StandbyLimit bounds the queue of chunks awaiting admission.
	StandbyLimit int
	// StandbyTTL drops standby chunks nobody made room for.
	StandbyTTL time.Duration
	// HandleTTL removes settled fetch handles after this period.
	HandleTTL time.Duration
}

func DefaultConfig() Config {
	return Config{
		ChunkSize:    64 * 1024,
		AutoFetch:    false,
		Relay:        true,
		StandbyLimit: 32,
		StandbyTTL:   5 * time.Minute,
		HandleTTL:    10 * time.Minute,
	}
}

// Coordinator binds the chunk store, the request ledger and the admission
// policy to transport and API events. One instance per process, handed by
// reference to the API and transport adapters.
type Coordinator struct {
	store     *store.Store
	ledger    *ledger.Ledger
	policy    *admission.Policy
	transport Transport
	router    PeerRouter
	resolver  ManifestResolver
	notifier  Notifier
	cfg       Config
	log       *zap.SugaredLogger

	manifestFlight singleflight.Group[string, *model.FileManifest]

	handleMu sync.Mutex
	handles  map[uuid.UUID]*handleState

	interests cmap.Map[model.ChunkIdentity, struct{}]

	standbyMu sync.Mutex
	standby   []standbyEntry
}

func New(
	cfg Config,
	st *store.Store,
	lg *ledger.Ledger,
	policy *admission.Policy,
	transport Transport,
	router PeerRouter,
	resolver ManifestResolver,
	notifier Notifier,
	log *zap.SugaredLogger,
) *Coordinator {
	return &Coordinator{
		store:     st,
		ledger:    lg,
		policy:    policy,
		transport: transport,
		router:    router,
		resolver:  resolver,
		notifier:  notifier,
		cfg:       cfg,
		log:       log,
		handles:   make(map[uuid.UUID]*handleState),
		interests: cmap.NewMap[model.ChunkIdentity, struct{}](),
	}
}

const handleSweepInterval = time.Minute

// Run consumes ledger and store events until the context is canceled. The
// ledger expiry monitor runs alongside it.
func (c *Coordinator) Run(ctx context.Context) {
	go c.ledger.Run(ctx)

	ledgerEvents := c.ledger.Events()
	storeEvents := c.store.Subscribe()

	sweep := time.NewTicker(handleSweepInterval)
	defer sweep.Stop()

	for {
		select {
		case e := <-ledgerEvents:
			c.onLedgerEvent(ctx, e)
		case e := <-storeEvents:
			c.onStoreEvent(ctx, e)
		case <-sweep.C:
			c.sweepHandles(time.Now())
		case <-ctx.Done():
			return
		}
	}
}

func (c *Coordinator) onLedgerEvent(ctx context.Context, e ledger.Event) {
	switch e.Type {
	case ledger.EventResolved:
		c.fanOutResolved(ctx, e)
	case ledger.EventFailed:
		c.log.Warnw("coordinator", "status", "request failed", "chunk", e.Identity, "kind", e.Kind, "attempts", e.Attempt, "reason", e.Reason)
		c.failHandles(e.Identity, e.Reason)
		c.notifier.RequestFailed(e.Identity, e.Reason)
	case ledger.EventRetry:
		c.sendFetch(ctx, e.Identity, e.Attempt)
	}
}

func (c *Coordinator) onStoreEvent(ctx context.Context, e store.Event) {
	c.notifier.StoreChanged()

	if e.Type == store.EventDelete {
		// freed space may let a standby chunk in
		c.tryAdmitStandby(ctx)
	}
}

// fanOutResolved delivers a resolved chunk to every waiting peer and
// completes local handles.
func (c *Coordinator) fanOutResolved(ctx context.Context, e ledger.Event) {
	if e.Kind != model.KindFetch {
		return
	}

	var remote []model.Peer
	local := false
	for _, p := range e.Peers {
		if isLocalAddr(p.Address) {
			local = true
			continue
		}
		remote = append(remote, p)
	}

	if local {
		c.resolveHandles(e.Identity)
		c.notifier.ChunkResolved(e.Identity)
	}

	if len(remote) == 0 {
		return
	}

	payload, hop, ok := c.resolvedPayload(ctx, e.Identity)
	if !ok {
		c.log.Errorw("coordinator", "error", "resolved chunk has no payload", "chunk", e.Identity)
		return
	}

	for _, p := range remote {
		if err := c.transport.SendChunk(ctx, e.Identity, payload, hop, p); err != nil {
			c.log.Warnw("coordinator", "status", "chunk delivery failed", "chunk", e.Identity, "peer", p.Address, "error", err)
		}
	}
}

// resolvedPayload fetches the bytes and hop distance of a just-resolved
// chunk, falling back to the standby queue for chunks that could not be
// retained.
func (c *Coordinator) resolvedPayload(ctx context.Context, id model.ChunkIdentity) ([]byte, int, bool) {
	chunk, err := c.store.Get(ctx, id)
	if err == nil {
		return chunk.Payload, chunk.HopDistance, true
	}

	return c.standbyPayload(id)
}

// sendFetch issues one network request for an identity. Send failures feed
// the ledger's retry path.
func (c *Coordinator) sendFetch(ctx context.Context, id model.ChunkIdentity, attempt int) {
	peer, err := c.router.SuggestPeer(id, attempt)
	if err != nil {
		if ferr := c.ledger.Fail(id, model.KindFetch, err); ferr != nil && !errors.Is(ferr, ledger.ErrNotPending) {
			c.log.Errorw("coordinator", "error", "ledger fail", "chunk", id, "error", ferr)
		}
		return
	}

	if err := c.transport.SendRequest(ctx, id, peer); err != nil {
		c.log.Warnw("coordinator", "status", "request send failed", "chunk", id, "peer", peer.Address, "error", err)
		_ = c.ledger.Fail(id, model.KindFetch, err)
	}
}

// addInterest marks chunk identities as locally desired so matching offers
// trigger fetches.
func (c *Coordinator) addInterest(ids ...model.ChunkIdentity) {
	for _, id := range ids {
		c.interests.Set(id, struct{}{})
	}
}

func (c *Coordinator) interestedIn(id model.ChunkIdentity) bool {
	_, ok := c.interests.Get(id)
	return ok
}
