package queueaccess

import (
	"context"
	"time"

	"captionminer/internal/ipc"
	"captionminer/internal/queue"
)

// Access provides offline queue operations regardless of IPC or direct store backing.
type Access interface {
	Stats(ctx context.Context) (queue.Stats, error)
	List(ctx context.Context) ([]ipc.QueueItem, error)
	Clear(ctx context.Context) (int64, error)
}

// NewIPCAccess returns an Access backed by daemon IPC.
func NewIPCAccess(client *ipc.Client) Access {
	return &ipcAccess{client: client}
}

// NewStoreAccess returns an Access backed by direct DB access.
func NewStoreAccess(store *queue.Store) Access {
	return &storeAccess{store: store}
}

type ipcAccess struct {
	client *ipc.Client
}

func (a *ipcAccess) Stats(_ context.Context) (queue.Stats, error) {
	resp, err := a.client.Status()
	if err != nil {
		return queue.Stats{}, err
	}
	stats := queue.Stats{Total: resp.QueueTotal, ByDeck: resp.QueueByDeck}
	if resp.QueueOldest != "" {
		if oldest, parseErr := time.Parse(time.RFC3339, resp.QueueOldest); parseErr == nil {
			stats.Oldest = oldest
		}
	}
	return stats, nil
}

func (a *ipcAccess) List(_ context.Context) ([]ipc.QueueItem, error) {
	resp, err := a.client.QueueList()
	if err != nil {
		return nil, err
	}
	return resp.Items, nil
}

func (a *ipcAccess) Clear(_ context.Context) (int64, error) {
	resp, err := a.client.QueueClear()
	if err != nil {
		return 0, err
	}
	return resp.Removed, nil
}

type storeAccess struct {
	store *queue.Store
}

func (a *storeAccess) Stats(ctx context.Context) (queue.Stats, error) {
	return a.store.Stats(ctx)
}

func (a *storeAccess) List(ctx context.Context) ([]ipc.QueueItem, error) {
	entries, err := a.store.List(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]ipc.QueueItem, 0, len(entries))
	for _, entry := range entries {
		if entry == nil {
			continue
		}
		items = append(items, ipc.QueueItemFromEntry(entry))
	}
	return items, nil
}

func (a *storeAccess) Clear(ctx context.Context) (int64, error) {
	return a.store.Clear(ctx)
}
