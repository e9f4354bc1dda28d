package model

import (
	"encoding/hex"
	"encoding/json"
	"errors"

	"github.com/zeebo/blake3"
)

// IdentitySize is the length in bytes of a chunk identity digest.
const IdentitySize = 32

var ErrInvalidIdentity = errors.New("invalid chunk identity")

// ChunkIdentity is a blake3-256 digest over a chunk payload. Two chunks with
// equal identities are treated as the same chunk everywhere in the system.
type ChunkIdentity [IdentitySize]byte

// NewChunkIdentity computes the identity of a payload.
func NewChunkIdentity(payload []byte) ChunkIdentity {
	return blake3.Sum256(payload)
}

func (id ChunkIdentity) String() string {
	return hex.EncodeToString(id[:])
}

func (id ChunkIdentity) IsZero() bool {
	return id == ChunkIdentity{}
}

// MarshalJSON encodes the identity as its hex form.
func (id ChunkIdentity) MarshalJSON() ([]byte, error) {
	return []byte(`"` + id.String() + `"`), nil
}

func (id *ChunkIdentity) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}

	parsed, err := ParseChunkIdentity(s)
	if err != nil {
		return err
	}

	*id = parsed
	return nil
}

// ParseChunkIdentity decodes the hex form produced by String.
func ParseChunkIdentity(s string) (ChunkIdentity, error) {
	var id ChunkIdentity

	b, err := hex.DecodeString(s)
	if err != nil {
		return id, ErrInvalidIdentity
	}

	if len(b) != IdentitySize {
		return id, ErrInvalidIdentity
	}

	copy(id[:], b)
	return id, nil
}
