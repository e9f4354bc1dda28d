package main

import (
	"context"

	"github.com/pyropy/rnfs/core/coordinator"
	"github.com/pyropy/rnfs/core/model"
	corePeer "github.com/pyropy/rnfs/core/peer"
	peerRPC "github.com/pyropy/rnfs/rpc/peer"
)

// PeerAPI is the inbound half of the mesh substrate, bridging peer
// messages into the coordinator's event handlers.
type PeerAPI struct {
	coordinator *coordinator.Coordinator
	router      *corePeer.StaticRouter
}

func NewPeerAPI(c *coordinator.Coordinator, r *corePeer.StaticRouter) *PeerAPI {
	return &PeerAPI{
		coordinator: c,
		router:      r,
	}
}

// RequestChunk ...
func (p *PeerAPI) RequestChunk(args *peerRPC.RequestChunkArgs, _ *peerRPC.RequestChunkReply) error {
	log.Infow("rpc", "event", "PeerAPI.RequestChunk", "chunk", args.Identity, "from", args.From)

	id, err := model.ParseChunkIdentity(args.Identity)
	if err != nil {
		return err
	}

	from := model.Peer{
		Address:     args.From,
		HopDistance: p.router.HopTo(args.From),
	}

	return p.coordinator.HandleRequest(context.Background(), id, from)
}

// OfferChunk ...
func (p *PeerAPI) OfferChunk(args *peerRPC.OfferChunkArgs, _ *peerRPC.OfferChunkReply) error {
	log.Infow("rpc", "event", "PeerAPI.OfferChunk", "chunk", args.Identity, "from", args.From)

	id, err := model.ParseChunkIdentity(args.Identity)
	if err != nil {
		return err
	}

	from := model.Peer{
		Address:     args.From,
		HopDistance: p.hopVia(args.From, args.HopDistance),
	}

	return p.coordinator.HandleOffer(context.Background(), id, from)
}

// DeliverChunk ...
func (p *PeerAPI) DeliverChunk(args *peerRPC.DeliverChunkArgs, _ *peerRPC.DeliverChunkReply) error {
	log.Infow("rpc", "event", "PeerAPI.DeliverChunk", "chunk", args.Identity, "from", args.From, "size", len(args.Data))

	id, err := model.ParseChunkIdentity(args.Identity)
	if err != nil {
		return err
	}

	from := model.Peer{
		Address:     args.From,
		HopDistance: p.router.HopTo(args.From),
	}

	return p.coordinator.HandleChunk(context.Background(), id, args.Data, from, p.hopVia(args.From, args.HopDistance))
}

// hopVia estimates the distance to a chunk's publisher through the sending
// peer: the sender's own estimate plus our distance to the sender.
func (p *PeerAPI) hopVia(from string, senderHop int) int {
	hop := p.router.HopTo(from)
	if hop == 0 {
		hop = 1
	}

	return senderHop + hop
}
