package node

// Arg and reply types for the client-facing daemon API.

type PublishArgs struct {
	Name string
	Data []byte
}

type PublishReply struct {
	ManifestID string
	Chunks     []string
	TotalSize  uint64
}

type FetchArgs struct {
	ManifestID string
}

type FetchReply struct {
	Handle string
}

type FetchChunkArgs struct {
	Identity string
}

type FetchChunkReply struct {
	Handle string
}

type StatusArgs struct {
	Handle string
}

type StatusReply struct {
	State   string
	Reason  string
	Total   int
	Missing int
}

type CancelArgs struct {
	Handle string
}

type CancelReply struct {
}

type InspectArgs struct {
	Identity string
}

type InspectReply struct {
	Present  bool
	Tracked  bool
	State    string
	Attempts int
	Waiters  int
}

type SubscribeArgs struct {
	ManifestID string
}

type SubscribeReply struct {
}

type ListFilesArgs struct {
}

type FileInfo struct {
	ManifestID string
	Name       string
	Publisher  string
	TotalSize  uint64
	Chunks     int
	Complete   bool
}

type ListFilesReply struct {
	Files []FileInfo
}

type INode interface {
	Publish(args *PublishArgs, reply *PublishReply) error
	Fetch(args *FetchArgs, reply *FetchReply) error
	FetchChunk(args *FetchChunkArgs, reply *FetchChunkReply) error
	Status(args *StatusArgs, reply *StatusReply) error
	Cancel(args *CancelArgs, reply *CancelReply) error
	Inspect(args *InspectArgs, reply *InspectReply) error
	Subscribe(args *SubscribeArgs, reply *SubscribeReply) error
	ListFiles(args *ListFilesArgs, reply *ListFilesReply) error
}
