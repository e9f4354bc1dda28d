package coordinator

import (
	"context"

	"github.com/pyropy/rnfs/core/model"
	"github.com/pyropy/rnfs/core/store"
)

// StoreResolver resolves manifests from the local datastore. Remote
// manifest discovery belongs to the API layer that constructs manifests.
type StoreResolver struct {
	Store *store.Store
}

func (r StoreResolver) Resolve(ctx context.Context, id model.ChunkIdentity) (*model.FileManifest, error) {
	return r.Store.GetManifest(ctx, id)
}
