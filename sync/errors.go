package sync

import "errors"

var (
	// ErrNoIndex means the root has never been fully synced.
	ErrNoIndex = errors.New("no index for root, run a full sync first")
	// ErrNoCursor means the stored index has no change cursor to resume from.
	ErrNoCursor = errors.New("index has no change cursor, run a full sync first")
	// ErrRootRemoval is recorded when the change feed removes or trashes the root.
	ErrRootRemoval = errors.New("root removal is not applied")
	// ErrCycle is recorded when a move would make a folder its own ancestor.
	ErrCycle = errors.New("move would create a cycle")
)
