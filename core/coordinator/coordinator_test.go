package coordinator

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pyropy/rnfs/core/admission"
	"github.com/pyropy/rnfs/core/ledger"
	"github.com/pyropy/rnfs/core/model"
	"github.com/pyropy/rnfs/core/store"
)

type sentRequest struct {
	ID model.ChunkIdentity
	To string
}

type sentChunk struct {
	ID      model.ChunkIdentity
	Payload []byte
	Hop     int
	To      string
}

type sentOffer struct {
	ID  model.ChunkIdentity
	Hop int
	To  string
}

type recordTransport struct {
	mu       sync.Mutex
	requests []sentRequest
	chunks   []sentChunk
	offers   []sentOffer
	sendErr  error
	onChunk  func(model.ChunkIdentity)
}

func (t *recordTransport) SendRequest(ctx context.Context, id model.ChunkIdentity, to model.Peer) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.sendErr != nil {
		return t.sendErr
	}

	t.requests = append(t.requests, sentRequest{ID: id, To: to.Address})
	return nil
}

func (t *recordTransport) SendChunk(ctx context.Context, id model.ChunkIdentity, payload []byte, hopDistance int, to model.Peer) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.onChunk != nil {
		t.onChunk(id)
	}

	t.chunks = append(t.chunks, sentChunk{ID: id, Payload: payload, Hop: hopDistance, To: to.Address})
	return nil
}

func (t *recordTransport) SendOffer(ctx context.Context, id model.ChunkIdentity, hopDistance int, to model.Peer) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.offers = append(t.offers, sentOffer{ID: id, Hop: hopDistance, To: to.Address})
	return nil
}

func (t *recordTransport) requestCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.requests)
}

func (t *recordTransport) sentRequests() []sentRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]sentRequest(nil), t.requests...)
}

func (t *recordTransport) sentChunks() []sentChunk {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]sentChunk(nil), t.chunks...)
}

func (t *recordTransport) offerCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.offers)
}

func (t *recordTransport) sentOffers() []sentOffer {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]sentOffer(nil), t.offers...)
}

type stubRouter struct {
	peers []model.Peer
}

func (r stubRouter) SuggestPeer(id model.ChunkIdentity, attempt int) (model.Peer, error) {
	if len(r.peers) == 0 {
		return model.Peer{}, ErrNoPeers
	}
	return r.peers[attempt%len(r.peers)], nil
}

func (r stubRouter) Peers() []model.Peer { return r.peers }

type captureNotifier struct {
	mu       sync.Mutex
	resolved []model.ChunkIdentity
	failed   []model.ChunkIdentity
}

func (n *captureNotifier) ChunkResolved(id model.ChunkIdentity) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resolved = append(n.resolved, id)
}

func (n *captureNotifier) RequestFailed(id model.ChunkIdentity, reason error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed = append(n.failed, id)
}

func (n *captureNotifier) StoreChanged() {}

func (n *captureNotifier) resolvedCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.resolved)
}

func (n *captureNotifier) failedCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.failed)
}

type testHarness struct {
	c         *Coordinator
	store     *store.Store
	ledger    *ledger.Ledger
	transport *recordTransport
	notifier  *captureNotifier
}

func newHarness(t *testing.T, cfg Config, lcfg ledger.Config, capacity uint64, peers []model.Peer) *testHarness {
	t.Helper()

	log := zap.NewNop().Sugar()

	st, err := store.New(t.TempDir(), capacity, log)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})

	lg := ledger.New(lcfg, log)
	transport := &recordTransport{}
	notifier := &captureNotifier{}
	policy := admission.New(admission.DefaultConfig(), st, lg)

	c := New(cfg, st, lg, policy, transport, stubRouter{peers: peers}, StoreResolver{Store: st}, notifier, log)

	return &testHarness{
		c:         c,
		store:     st,
		ledger:    lg,
		transport: transport,
		notifier:  notifier,
	}
}

func fastLedgerConfig() ledger.Config {
	cfg := ledger.DefaultConfig()
	cfg.RetryCeiling = 1
	cfg.Timeout = time.Second
	cfg.BackoffBase = time.Millisecond
	cfg.BackoffMax = 2 * time.Millisecond
	cfg.TickInterval = 2 * time.Millisecond
	return cfg
}

// storeManifest persists a manifest for the given payloads without storing
// the payloads themselves.
func storeManifest(t *testing.T, s *store.Store, name string, payloads ...[]byte) model.FileManifest {
	t.Helper()

	var (
		ids   []model.ChunkIdentity
		total uint64
	)
	for _, p := range payloads {
		ids = append(ids, model.NewChunkIdentity(p))
		total += uint64(len(p))
	}

	m := model.NewFileManifest(name, "origin", total, ids)
	if err := s.PutManifest(context.Background(), m); err != nil {
		t.Fatalf("put manifest: %v", err)
	}

	return m
}

// drainLedgerEvent pumps one ledger event through the coordinator the way
// Run would, without the background goroutine.
func drainLedgerEvent(t *testing.T, h *testHarness) {
	t.Helper()

	select {
	case e := <-h.ledger.Events():
		h.c.onLedgerEvent(context.Background(), e)
	case <-time.After(time.Second):
		t.Fatal("no ledger event")
	}
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}

	t.Fatalf("timed out waiting for %s", what)
}

func TestFetchFileRequestsMissingChunks(t *testing.T) {
	ctx := context.Background()
	peerB := model.Peer{Address: "b", HopDistance: 1}
	h := newHarness(t, DefaultConfig(), ledger.DefaultConfig(), 0, []model.Peer{peerB})

	present := []byte("already here")
	absent := []byte("somewhere on the mesh")

	if _, err := h.store.Put(ctx, present, 0); err != nil {
		t.Fatalf("seed store: %v", err)
	}
	m := storeManifest(t, h.store, "file.bin", present, absent)

	handle, err := h.c.FetchFile(ctx, m.Identity)
	if err != nil {
		t.Fatalf("fetch file: %v", err)
	}

	reqs := h.transport.sentRequests()
	if len(reqs) != 1 {
		t.Fatalf("expected 1 outbound request, got %d", len(reqs))
	}
	if reqs[0].ID != model.NewChunkIdentity(absent) || reqs[0].To != "b" {
		t.Fatalf("unexpected request %+v", reqs[0])
	}

	s, err := h.c.Status(handle)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if s.State != model.StatePending || s.Missing != 1 || s.Total != 2 {
		t.Fatalf("unexpected handle status %+v", s)
	}
}

func TestFetchFileDedupAcrossHandles(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, DefaultConfig(), ledger.DefaultConfig(), 0, []model.Peer{{Address: "b"}})

	m := storeManifest(t, h.store, "file.bin", []byte("shared want"))

	if _, err := h.c.FetchFile(ctx, m.Identity); err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	if _, err := h.c.FetchFile(ctx, m.Identity); err != nil {
		t.Fatalf("second fetch: %v", err)
	}

	if n := h.transport.requestCount(); n != 1 {
		t.Fatalf("duplicate in-flight fetch went to the wire, %d requests", n)
	}
}

func TestFetchFileAlreadyComplete(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, DefaultConfig(), ledger.DefaultConfig(), 0, nil)

	payload := []byte("local hit")
	if _, err := h.store.Put(ctx, payload, 0); err != nil {
		t.Fatalf("seed store: %v", err)
	}
	m := storeManifest(t, h.store, "file.bin", payload)

	handle, err := h.c.FetchFile(ctx, m.Identity)
	if err != nil {
		t.Fatalf("fetch file: %v", err)
	}

	s, _ := h.c.Status(handle)
	if s.State != model.StateResolved {
		t.Fatalf("fully present file not resolved immediately, state %s", s.State)
	}
	if n := h.transport.requestCount(); n != 0 {
		t.Fatalf("complete fetch still sent %d requests", n)
	}
}

func TestFetchUnknownManifest(t *testing.T) {
	h := newHarness(t, DefaultConfig(), ledger.DefaultConfig(), 0, nil)

	_, err := h.c.FetchFile(context.Background(), model.NewChunkIdentity([]byte("no such manifest")))
	if err == nil {
		t.Fatal("expected error for unknown manifest")
	}
}

func TestHandleChunkIntegrity(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, DefaultConfig(), ledger.DefaultConfig(), 0, []model.Peer{{Address: "b"}})

	id := model.NewChunkIdentity([]byte("expected bytes"))

	err := h.c.HandleChunk(ctx, id, []byte("forged bytes"), model.Peer{Address: "b"}, 1)
	if !errors.Is(err, ErrIntegrity) {
		t.Fatalf("expected ErrIntegrity, got %v", err)
	}

	present, _ := h.store.Has(ctx, id)
	if present {
		t.Fatal("forged payload was stored")
	}
}

func TestHandleChunkResolvesFetch(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, DefaultConfig(), ledger.DefaultConfig(), 0, []model.Peer{{Address: "b"}})

	payload := []byte("the wanted bytes")
	id := model.NewChunkIdentity(payload)

	handle, err := h.c.FetchChunk(ctx, id)
	if err != nil {
		t.Fatalf("fetch chunk: %v", err)
	}

	if err := h.c.HandleChunk(ctx, id, payload, model.Peer{Address: "b"}, 1); err != nil {
		t.Fatalf("handle chunk: %v", err)
	}

	drainLedgerEvent(t, h)

	s, _ := h.c.Status(handle)
	if s.State != model.StateResolved {
		t.Fatalf("handle not resolved, state %s", s.State)
	}

	if h.notifier.resolvedCount() != 1 {
		t.Fatal("local waiter was not notified")
	}

	chunk, err := h.store.Get(ctx, id)
	if err != nil {
		t.Fatalf("fetched chunk not retained: %v", err)
	}
	if !bytes.Equal(chunk.Payload, payload) {
		t.Fatal("retained payload differs")
	}
}

func TestHandleChunkDuplicateDelivery(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, DefaultConfig(), ledger.DefaultConfig(), 0, []model.Peer{{Address: "b"}})

	payload := []byte("delivered twice")
	id := model.NewChunkIdentity(payload)

	if _, err := h.c.FetchChunk(ctx, id); err != nil {
		t.Fatalf("fetch chunk: %v", err)
	}

	if err := h.c.HandleChunk(ctx, id, payload, model.Peer{Address: "b"}, 1); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := h.c.HandleChunk(ctx, id, payload, model.Peer{Address: "c"}, 2); err != nil {
		t.Fatalf("second delivery: %v", err)
	}
}

func TestHandleChunkOpportunisticAdmitted(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, DefaultConfig(), ledger.DefaultConfig(), 0, nil)

	payload := []byte("seen in transit")
	id := model.NewChunkIdentity(payload)

	if err := h.c.HandleChunk(ctx, id, payload, model.Peer{Address: "b"}, 1); err != nil {
		t.Fatalf("handle chunk: %v", err)
	}

	present, _ := h.store.Has(ctx, id)
	if !present {
		t.Fatal("admissible chunk not cached")
	}
}

func TestHandleChunkOpportunisticStandby(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, DefaultConfig(), ledger.DefaultConfig(), 100, nil)

	resident := bytes.Repeat([]byte("r"), 95)
	if _, err := h.store.Put(ctx, resident, 0); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	payload := []byte("low value")
	id := model.NewChunkIdentity(payload)

	// undemanded and far away, the fresh resident wins
	if err := h.c.HandleChunk(ctx, id, payload, model.Peer{Address: "b"}, 5); err != nil {
		t.Fatalf("handle chunk: %v", err)
	}

	present, _ := h.store.Has(ctx, id)
	if present {
		t.Fatal("rejected chunk was retained anyway")
	}

	if _, _, ok := h.c.standbyPayload(id); !ok {
		t.Fatal("rejected chunk not parked on standby")
	}

	// once the resident goes, the standby chunk is reconsidered
	if err := h.store.Delete(ctx, model.NewChunkIdentity(resident)); err != nil {
		t.Fatalf("delete resident: %v", err)
	}
	h.c.tryAdmitStandby(ctx)

	present, _ = h.store.Has(ctx, id)
	if !present {
		t.Fatal("standby chunk not admitted after space freed")
	}
}

func TestHandleOfferFetchesDesiredChunk(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, DefaultConfig(), ledger.DefaultConfig(), 0, nil)

	payload := []byte("subscribed content")
	id := model.NewChunkIdentity(payload)
	m := storeManifest(t, h.store, "file.bin", payload)

	if err := h.c.Subscribe(ctx, m.Identity); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	offerer := model.Peer{Address: "b", HopDistance: 2}
	if err := h.c.HandleOffer(ctx, id, offerer); err != nil {
		t.Fatalf("handle offer: %v", err)
	}

	reqs := h.transport.sentRequests()
	if len(reqs) != 1 || reqs[0].To != "b" {
		t.Fatalf("expected one request to the offering peer, got %v", reqs)
	}

	// a second offer while the fetch is in flight changes nothing
	if err := h.c.HandleOffer(ctx, id, model.Peer{Address: "c"}); err != nil {
		t.Fatalf("second offer: %v", err)
	}
	if n := h.transport.requestCount(); n != 1 {
		t.Fatalf("duplicate offer triggered another fetch, %d requests", n)
	}
}

func TestHandleOfferIgnored(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, DefaultConfig(), ledger.DefaultConfig(), 0, nil)

	// present chunk
	payload := []byte("already cached")
	id, _ := h.store.Put(ctx, payload, 0)
	if err := h.c.HandleOffer(ctx, id, model.Peer{Address: "b"}); err != nil {
		t.Fatalf("offer for present chunk: %v", err)
	}

	// absent chunk nobody asked for
	stranger := model.NewChunkIdentity([]byte("unwanted"))
	if err := h.c.HandleOffer(ctx, stranger, model.Peer{Address: "b"}); err != nil {
		t.Fatalf("offer for unwanted chunk: %v", err)
	}

	if n := h.transport.requestCount(); n != 0 {
		t.Fatalf("ignorable offers triggered %d fetches", n)
	}
}

func TestHandleOfferAutoFetch(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.AutoFetch = true
	h := newHarness(t, cfg, ledger.DefaultConfig(), 0, nil)

	id := model.NewChunkIdentity([]byte("anything offered"))
	if err := h.c.HandleOffer(ctx, id, model.Peer{Address: "b"}); err != nil {
		t.Fatalf("handle offer: %v", err)
	}

	if n := h.transport.requestCount(); n != 1 {
		t.Fatalf("auto-fetch did not request offered chunk, %d requests", n)
	}
}

func TestHandleRequestServesLocalChunk(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, DefaultConfig(), ledger.DefaultConfig(), 0, nil)

	payload := []byte("serve me")
	id, _ := h.store.Put(ctx, payload, 0)

	if err := h.c.HandleRequest(ctx, id, model.Peer{Address: "asker"}); err != nil {
		t.Fatalf("handle request: %v", err)
	}

	chunks := h.transport.sentChunks()
	if len(chunks) != 1 || chunks[0].To != "asker" || !bytes.Equal(chunks[0].Payload, payload) {
		t.Fatalf("unexpected deliveries %v", chunks)
	}
}

func TestHandleRequestRelays(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, DefaultConfig(), ledger.DefaultConfig(), 0, []model.Peer{{Address: "upstream"}})

	payload := []byte("relayed bytes")
	id := model.NewChunkIdentity(payload)

	if err := h.c.HandleRequest(ctx, id, model.Peer{Address: "asker"}); err != nil {
		t.Fatalf("handle request: %v", err)
	}

	reqs := h.transport.sentRequests()
	if len(reqs) != 1 || reqs[0].To != "upstream" {
		t.Fatalf("relay did not fetch upstream, requests %v", reqs)
	}

	// the upstream answers, the waiting peer gets the chunk
	if err := h.c.HandleChunk(ctx, id, payload, model.Peer{Address: "upstream"}, 1); err != nil {
		t.Fatalf("handle chunk: %v", err)
	}
	drainLedgerEvent(t, h)

	chunks := h.transport.sentChunks()
	if len(chunks) != 1 || chunks[0].To != "asker" {
		t.Fatalf("relayed chunk not delivered, sends %v", chunks)
	}

	// with an unbounded store the admission policy keeps relayed chunks
	// for the next asker
	present, _ := h.store.Has(ctx, id)
	if !present {
		t.Fatal("relayed chunk not retained")
	}
}

func TestRelayedChunkAdmissionUnderPressure(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, DefaultConfig(), ledger.DefaultConfig(), 100, []model.Peer{{Address: "upstream"}})

	resident := bytes.Repeat([]byte("r"), 95)
	if _, err := h.store.Put(ctx, resident, 0); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	payload := []byte("pass through")
	id := model.NewChunkIdentity(payload)

	if err := h.c.HandleRequest(ctx, id, model.Peer{Address: "asker"}); err != nil {
		t.Fatalf("handle request: %v", err)
	}

	if err := h.c.HandleChunk(ctx, id, payload, model.Peer{Address: "upstream"}, 1); err != nil {
		t.Fatalf("handle chunk: %v", err)
	}
	drainLedgerEvent(t, h)

	// the asker is served from standby, the hot resident keeps its spot
	chunks := h.transport.sentChunks()
	if len(chunks) != 1 || chunks[0].To != "asker" {
		t.Fatalf("relayed chunk not delivered, sends %v", chunks)
	}

	present, _ := h.store.Has(ctx, id)
	if present {
		t.Fatal("relayed chunk displaced a recently used resident")
	}
	if _, _, ok := h.c.standbyPayload(id); !ok {
		t.Fatal("undelivered relay payload not parked on standby")
	}
}

func TestHandleRequestRelayDisabled(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.Relay = false
	h := newHarness(t, cfg, ledger.DefaultConfig(), 0, []model.Peer{{Address: "upstream"}})

	id := model.NewChunkIdentity([]byte("not here"))

	err := h.c.HandleRequest(ctx, id, model.Peer{Address: "asker"})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound with relaying off, got %v", err)
	}
	if n := h.transport.requestCount(); n != 0 {
		t.Fatalf("relay-disabled node fetched upstream, %d requests", n)
	}
}

func TestCancelReleasesPendingFetch(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, DefaultConfig(), ledger.DefaultConfig(), 0, []model.Peer{{Address: "b"}})

	id := model.NewChunkIdentity([]byte("abandoned fetch"))

	handle, err := h.c.FetchChunk(ctx, id)
	if err != nil {
		t.Fatalf("fetch chunk: %v", err)
	}

	if err := h.c.Cancel(handle); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	s, _ := h.c.Status(handle)
	if s.State != model.StateFailed || s.Reason != ErrCanceled.Error() {
		t.Fatalf("unexpected canceled status %+v", s)
	}

	if h.ledger.IsPending(id) {
		t.Fatal("ledger entry survived sole waiter's cancel")
	}

	if err := h.c.Cancel(handle); err != nil {
		t.Fatalf("repeated cancel: %v", err)
	}

	if err := h.c.Cancel(uuid.New()); !errors.Is(err, ErrUnknownHandle) {
		t.Fatalf("expected ErrUnknownHandle, got %v", err)
	}
}

func TestCancelKeepsOtherHandleWaiting(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, DefaultConfig(), ledger.DefaultConfig(), 0, []model.Peer{{Address: "b"}})

	payload := []byte("contended chunk")
	id := model.NewChunkIdentity(payload)

	first, err := h.c.FetchChunk(ctx, id)
	if err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	second, err := h.c.FetchChunk(ctx, id)
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}

	if err := h.c.Cancel(first); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	if !h.ledger.IsPending(id) {
		t.Fatal("entry torn down while another handle still waits")
	}

	if err := h.c.HandleChunk(ctx, id, payload, model.Peer{Address: "b"}, 1); err != nil {
		t.Fatalf("handle chunk: %v", err)
	}
	drainLedgerEvent(t, h)

	s, err := h.c.Status(second)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if s.State != model.StateResolved {
		t.Fatalf("surviving handle stuck, status %+v", s)
	}
}

func TestServeSendsStoredHopDistance(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, DefaultConfig(), ledger.DefaultConfig(), 0, nil)

	payload := []byte("three hops out")
	id, err := h.store.Put(ctx, payload, 3)
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	if err := h.c.HandleRequest(ctx, id, model.Peer{Address: "asker"}); err != nil {
		t.Fatalf("handle request: %v", err)
	}

	chunks := h.transport.sentChunks()
	if len(chunks) != 1 {
		t.Fatalf("expected one delivery, got %d", len(chunks))
	}
	if chunks[0].Hop != 3 {
		t.Fatalf("stored hop distance not propagated, got %d", chunks[0].Hop)
	}
}

func TestServePinsChunkDuringTransfer(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, DefaultConfig(), ledger.DefaultConfig(), 0, nil)

	payload := []byte("pin me")
	id, err := h.store.Put(ctx, payload, 0)
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	var pinned bool
	h.transport.onChunk = func(cid model.ChunkIdentity) {
		pinned = h.ledger.IsPending(cid)
	}

	if err := h.c.HandleRequest(ctx, id, model.Peer{Address: "asker"}); err != nil {
		t.Fatalf("handle request: %v", err)
	}

	if !pinned {
		t.Fatal("chunk not pinned while being served")
	}
	if h.ledger.IsPending(id) {
		t.Fatal("pin not released after the transfer")
	}
}

func TestSettledHandleSweep(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	h := newHarness(t, cfg, ledger.DefaultConfig(), 0, []model.Peer{{Address: "b"}})

	payload := []byte("short lived")
	if _, err := h.store.Put(ctx, payload, 0); err != nil {
		t.Fatalf("seed store: %v", err)
	}
	m := storeManifest(t, h.store, "file.bin", payload)

	settled, err := h.c.FetchFile(ctx, m.Identity)
	if err != nil {
		t.Fatalf("fetch file: %v", err)
	}
	pending, err := h.c.FetchChunk(ctx, model.NewChunkIdentity([]byte("still wanted")))
	if err != nil {
		t.Fatalf("fetch chunk: %v", err)
	}

	h.c.sweepHandles(time.Now().Add(cfg.HandleTTL + time.Minute))

	if _, err := h.c.Status(settled); !errors.Is(err, ErrUnknownHandle) {
		t.Fatalf("settled handle survived sweep: %v", err)
	}
	if _, err := h.c.Status(pending); err != nil {
		t.Fatalf("pending handle swept: %v", err)
	}
}

func TestPublishChunksAndAnnounces(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.ChunkSize = 4
	cfg.Publisher = "node-a"
	h := newHarness(t, cfg, ledger.DefaultConfig(), 0, []model.Peer{{Address: "b"}, {Address: "c"}})

	payload := []byte("0123456789") // 3 chunks of 4, 4, 2 bytes
	m, err := h.c.Publish(ctx, "digits.txt", payload)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	if len(m.Chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(m.Chunks))
	}
	if m.TotalSize != uint64(len(payload)) || m.Publisher != "node-a" {
		t.Fatalf("unexpected manifest %+v", m)
	}

	complete, err := h.c.Complete(ctx, m.Identity)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !complete {
		t.Fatal("freshly published file reported incomplete")
	}

	// 3 chunks offered to 2 peers, at publisher distance zero
	offers := h.transport.sentOffers()
	if len(offers) != 6 {
		t.Fatalf("expected 6 offers, got %d", len(offers))
	}
	for _, o := range offers {
		if o.Hop != 0 {
			t.Fatalf("published chunk offered at hop %d", o.Hop)
		}
	}

	if err := h.store.Delete(ctx, m.Chunks[1]); err != nil {
		t.Fatalf("delete chunk: %v", err)
	}
	complete, _ = h.c.Complete(ctx, m.Identity)
	if complete {
		t.Fatal("file with a deleted chunk reported complete")
	}
}

func TestPublishEmptyPayload(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, DefaultConfig(), ledger.DefaultConfig(), 0, nil)

	m, err := h.c.Publish(ctx, "empty.txt", nil)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(m.Chunks) != 1 {
		t.Fatalf("expected a single empty chunk, got %d", len(m.Chunks))
	}
}

func TestRetryCeilingFailsHandle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// no peers: every attempt fails at routing
	h := newHarness(t, DefaultConfig(), fastLedgerConfig(), 0, nil)

	go h.c.Run(ctx)

	id := model.NewChunkIdentity([]byte("unreachable"))
	handle, err := h.c.FetchChunk(ctx, id)
	if err != nil {
		t.Fatalf("fetch chunk: %v", err)
	}

	waitUntil(t, "terminal failure notification", func() bool {
		return h.notifier.failedCount() > 0
	})

	waitUntil(t, "handle failure", func() bool {
		s, err := h.c.Status(handle)
		return err == nil && s.State == model.StateFailed
	})
}

func TestStatusByIdentity(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, DefaultConfig(), ledger.DefaultConfig(), 0, []model.Peer{{Address: "b"}})

	payload := []byte("inspect me")
	id, _ := h.store.Put(ctx, payload, 0)

	s, err := h.c.StatusByIdentity(ctx, id)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !s.Present || s.Tracked {
		t.Fatalf("unexpected status for stored chunk %+v", s)
	}

	wanted := model.NewChunkIdentity([]byte("in flight"))
	if _, err := h.c.FetchChunk(ctx, wanted); err != nil {
		t.Fatalf("fetch chunk: %v", err)
	}

	s, err = h.c.StatusByIdentity(ctx, wanted)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if s.Present || !s.Tracked || s.State != model.StatePending || s.Waiters != 1 {
		t.Fatalf("unexpected status for pending chunk %+v", s)
	}
}
