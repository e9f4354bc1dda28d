package main

import (
	"github.com/pyropy/rnfs/core/model"
)

// logNotifier surfaces coordinator notifications in the daemon log. A UI
// or control-plane subscriber would hang off the same interface.
type logNotifier struct{}

func (logNotifier) ChunkResolved(id model.ChunkIdentity) {
	log.Infow("notify", "event", "chunk resolved", "chunk", id)
}

func (logNotifier) RequestFailed(id model.ChunkIdentity, reason error) {
	log.Warnw("notify", "event", "request failed", "chunk", id, "reason", reason)
}

func (logNotifier) StoreChanged() {
}
