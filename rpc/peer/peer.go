package peer

// Arg and reply types for node-to-node messaging. Delivery is best-effort,
// a peer may silently drop any of these.

type RequestChunkArgs struct {
	Identity string
	// From is the requester's advertised address, deliveries go back to it.
	From string
}

type RequestChunkReply struct {
}

type OfferChunkArgs struct {
	Identity string
	From     string
	// HopDistance is the offering node's estimated distance to the
	// chunk's original publisher.
	HopDistance int
}

type OfferChunkReply struct {
}

type DeliverChunkArgs struct {
	Identity string
	Data     []byte
	From     string
	// HopDistance is the serving node's estimated distance to the
	// original publisher, the receiver adds its own distance to the
	// sender on top.
	HopDistance int
}

type DeliverChunkReply struct {
}

type IPeer interface {
	RequestChunk(args *RequestChunkArgs, reply *RequestChunkReply) error
	OfferChunk(args *OfferChunkArgs, reply *OfferChunkReply) error
	DeliverChunk(args *DeliverChunkArgs, reply *DeliverChunkReply) error
}
