package peer

import (
	"context"
	"net/rpc"

	"go.uber.org/zap"

	"github.com/pyropy/rnfs/core/model"
	peerRPC "github.com/pyropy/rnfs/rpc/peer"
)

// Transport sends peer messages over net/rpc. It implements the
// coordinator's Transport interface. Every call dials fresh, mesh links
// are too unstable to keep connections around.
type Transport struct {
	selfAddr string
	log      *zap.SugaredLogger
}

func NewTransport(selfAddr string, log *zap.SugaredLogger) *Transport {
	return &Transport{
		selfAddr: selfAddr,
		log:      log,
	}
}

func (t *Transport) SendRequest(ctx context.Context, id model.ChunkIdentity, to model.Peer) error {
	args := &peerRPC.RequestChunkArgs{
		Identity: id.String(),
		From:     t.selfAddr,
	}

	var reply peerRPC.RequestChunkReply
	return t.call(to.Address, "PeerAPI.RequestChunk", args, &reply)
}

func (t *Transport) SendChunk(ctx context.Context, id model.ChunkIdentity, payload []byte, hopDistance int, to model.Peer) error {
	args := &peerRPC.DeliverChunkArgs{
		Identity:    id.String(),
		Data:        payload,
		From:        t.selfAddr,
		HopDistance: hopDistance,
	}

	var reply peerRPC.DeliverChunkReply
	return t.call(to.Address, "PeerAPI.DeliverChunk", args, &reply)
}

func (t *Transport) SendOffer(ctx context.Context, id model.ChunkIdentity, hopDistance int, to model.Peer) error {
	args := &peerRPC.OfferChunkArgs{
		Identity:    id.String(),
		From:        t.selfAddr,
		HopDistance: hopDistance,
	}

	var reply peerRPC.OfferChunkReply
	return t.call(to.Address, "PeerAPI.OfferChunk", args, &reply)
}

func (t *Transport) call(addr, method string, args, reply any) error {
	client, err := rpc.DialHTTP("tcp", addr)
	if err != nil {
		t.log.Debugw("transport", "status", "peer unreachable", "peer", addr)
		return err
	}

	defer client.Close()

	return client.Call(method, args, reply)
}
