package model

import "time"

// Chunk is the atomic storage unit. Identity must always equal
// NewChunkIdentity(Payload) for every chunk ever persisted.
type Chunk struct {
	Identity  ChunkIdentity
	Payload   []byte
	Size      uint64
	CreatedAt time.Time
	// HopDistance is this node's estimated distance to the chunk's
	// original publisher, recorded when the chunk arrived.
	HopDistance int
}

// Peer identifies a remote node on the mesh together with the estimated
// hop distance to it. Address is opaque to the core, the transport owns
// its meaning.
type Peer struct {
	Address     string
	HopDistance int
}
