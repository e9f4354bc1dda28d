package main

import (
	"context"

	"github.com/google/uuid"

	"github.com/pyropy/rnfs/core/coordinator"
	"github.com/pyropy/rnfs/core/model"
	"github.com/pyropy/rnfs/core/store"
	nodeRPC "github.com/pyropy/rnfs/rpc/node"
)

// NodeAPI is the client-facing RPC surface, thin glue over the coordinator.
type NodeAPI struct {
	coordinator *coordinator.Coordinator
	store       *store.Store
}

func NewNodeAPI(c *coordinator.Coordinator, s *store.Store) *NodeAPI {
	return &NodeAPI{
		coordinator: c,
		store:       s,
	}
}

// Publish ...
func (a *NodeAPI) Publish(args *nodeRPC.PublishArgs, reply *nodeRPC.PublishReply) error {
	log.Infow("rpc", "event", "NodeAPI.Publish", "name", args.Name, "size", len(args.Data))

	manifest, err := a.coordinator.Publish(context.Background(), args.Name, args.Data)
	if err != nil {
		return err
	}

	reply.ManifestID = manifest.Identity.String()
	reply.TotalSize = manifest.TotalSize
	for _, c := range manifest.Chunks {
		reply.Chunks = append(reply.Chunks, c.String())
	}

	return nil
}

// Fetch ...
func (a *NodeAPI) Fetch(args *nodeRPC.FetchArgs, reply *nodeRPC.FetchReply) error {
	log.Infow("rpc", "event", "NodeAPI.Fetch", "manifest", args.ManifestID)

	id, err := model.ParseChunkIdentity(args.ManifestID)
	if err != nil {
		return err
	}

	handle, err := a.coordinator.FetchFile(context.Background(), id)
	if err != nil {
		return err
	}

	reply.Handle = handle.String()
	return nil
}

// FetchChunk ...
func (a *NodeAPI) FetchChunk(args *nodeRPC.FetchChunkArgs, reply *nodeRPC.FetchChunkReply) error {
	log.Infow("rpc", "event", "NodeAPI.FetchChunk", "chunk", args.Identity)

	id, err := model.ParseChunkIdentity(args.Identity)
	if err != nil {
		return err
	}

	handle, err := a.coordinator.FetchChunk(context.Background(), id)
	if err != nil {
		return err
	}

	reply.Handle = handle.String()
	return nil
}

// Status ...
func (a *NodeAPI) Status(args *nodeRPC.StatusArgs, reply *nodeRPC.StatusReply) error {
	handle, err := uuid.Parse(args.Handle)
	if err != nil {
		return err
	}

	s, err := a.coordinator.Status(handle)
	if err != nil {
		return err
	}

	reply.State = s.State.String()
	reply.Reason = s.Reason
	reply.Total = s.Total
	reply.Missing = s.Missing
	return nil
}

// Cancel ...
func (a *NodeAPI) Cancel(args *nodeRPC.CancelArgs, _ *nodeRPC.CancelReply) error {
	log.Infow("rpc", "event", "NodeAPI.Cancel", "handle", args.Handle)

	handle, err := uuid.Parse(args.Handle)
	if err != nil {
		return err
	}

	return a.coordinator.Cancel(handle)
}

// Inspect ...
func (a *NodeAPI) Inspect(args *nodeRPC.InspectArgs, reply *nodeRPC.InspectReply) error {
	id, err := model.ParseChunkIdentity(args.Identity)
	if err != nil {
		return err
	}

	s, err := a.coordinator.StatusByIdentity(context.Background(), id)
	if err != nil {
		return err
	}

	reply.Present = s.Present
	reply.Tracked = s.Tracked
	reply.State = s.State.String()
	reply.Attempts = s.Attempts
	reply.Waiters = s.Waiters
	return nil
}

// Subscribe ...
func (a *NodeAPI) Subscribe(args *nodeRPC.SubscribeArgs, _ *nodeRPC.SubscribeReply) error {
	log.Infow("rpc", "event", "NodeAPI.Subscribe", "manifest", args.ManifestID)

	id, err := model.ParseChunkIdentity(args.ManifestID)
	if err != nil {
		return err
	}

	return a.coordinator.Subscribe(context.Background(), id)
}

// ListFiles ...
func (a *NodeAPI) ListFiles(_ *nodeRPC.ListFilesArgs, reply *nodeRPC.ListFilesReply) error {
	ctx := context.Background()

	manifests, err := a.store.ListManifests(ctx)
	if err != nil {
		return err
	}

	for _, m := range manifests {
		complete, err := a.coordinator.Complete(ctx, m.Identity)
		if err != nil {
			return err
		}

		reply.Files = append(reply.Files, nodeRPC.FileInfo{
			ManifestID: m.Identity.String(),
			Name:       m.Name,
			Publisher:  m.Publisher,
			TotalSize:  m.TotalSize,
			Chunks:     len(m.Chunks),
			Complete:   complete,
		})
	}

	return nil
}
