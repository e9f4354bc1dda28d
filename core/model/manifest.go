package model

import (
	"time"

	"github.com/zeebo/blake3"
)

// FileManifest maps a logical file to the ordered chunk identities holding
// its content. The manifest is itself content-addressed: Identity is the
// digest of the ordered chunk list, so any tampering with the list is
// detectable.
type FileManifest struct {
	Identity  ChunkIdentity
	Name      string
	Publisher string
	TotalSize uint64
	CreatedAt time.Time
	Chunks    []ChunkIdentity
}

func NewFileManifest(name, publisher string, totalSize uint64, chunks []ChunkIdentity) FileManifest {
	return FileManifest{
		Identity:  ManifestIdentity(chunks),
		Name:      name,
		Publisher: publisher,
		TotalSize: totalSize,
		CreatedAt: time.Now().UTC(),
		Chunks:    chunks,
	}
}

// ManifestIdentity computes the identity of an ordered chunk list. Order is
// significant, reordering chunks yields a different manifest.
func ManifestIdentity(chunks []ChunkIdentity) ChunkIdentity {
	h := blake3.New()
	for _, c := range chunks {
		h.Write(c[:])
	}

	var id ChunkIdentity
	copy(id[:], h.Sum(nil))
	return id
}
