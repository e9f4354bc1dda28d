package store

import (
	"context"
	"encoding/json"
	"errors"

	ds "github.com/ipfs/go-datastore"
	dsq "github.com/ipfs/go-datastore/query"

	"github.com/pyropy/rnfs/core/model"
)

func manifestKey(id model.ChunkIdentity) ds.Key {
	return ds.NewKey("/manifests/" + id.String())
}

// PutManifest persists a file manifest under its own identity.
func (s *Store) PutManifest(ctx context.Context, m model.FileManifest) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}

	return s.ds.Put(ctx, manifestKey(m.Identity), b)
}

// GetManifest resolves a locally known manifest.
func (s *Store) GetManifest(ctx context.Context, id model.ChunkIdentity) (*model.FileManifest, error) {
	b, err := s.ds.Get(ctx, manifestKey(id))
	if err != nil {
		if errors.Is(err, ds.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var m model.FileManifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}

	return &m, nil
}

// ListManifests returns all locally known manifests.
func (s *Store) ListManifests(ctx context.Context) ([]model.FileManifest, error) {
	res, err := s.ds.Query(ctx, dsq.Query{Prefix: "/manifests"})
	if err != nil {
		return nil, err
	}

	manifests := make([]model.FileManifest, 0)
	for {
		r, hasNext := res.NextSync()
		if !hasNext {
			break
		}
		if r.Error != nil {
			return nil, r.Error
		}

		var m model.FileManifest
		if err := json.Unmarshal(r.Value, &m); err != nil {
			continue
		}
		manifests = append(manifests, m)
	}

	return manifests, nil
}
