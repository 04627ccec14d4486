package ipc

import (
	"captionminer/internal/logging"
	"captionminer/internal/queue"
)

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// EngineStatus describes the running caption engine.
type EngineStatus struct {
	ID       string   `json:"id"`
	Caption  string   `json:"caption"`
	Tokens   []string `json:"tokens"`
	Selected []int    `json:"selected"`
	Target   string   `json:"target"`
}

// StatusResponse represents combined daemon, lifecycle, and queue status.
type StatusResponse struct {
	Running         bool           `json:"running"`
	PID             int            `json:"pid"`
	Lifecycle       string         `json:"lifecycle"`
	Location        string         `json:"location"`
	BridgeConnected bool           `json:"bridge_connected"`
	HasSession      bool           `json:"has_session"`
	DeckID          string         `json:"deck_id"`
	Mode            string         `json:"mode"`
	Engine          *EngineStatus  `json:"engine,omitempty"`
	QueueTotal      int            `json:"queue_total"`
	QueueByDeck     map[string]int `json:"queue_by_deck"`
	QueueOldest     string         `json:"queue_oldest,omitempty"`
	LastSyncAt      string         `json:"last_sync_at,omitempty"`
	LastSyncSynced  int            `json:"last_sync_synced"`
	LastSyncError   string         `json:"last_sync_error,omitempty"`
	Segmentation    bool           `json:"segmentation"`
	DictionaryError string         `json:"dictionary_error,omitempty"`
	QueueDBPath     string         `json:"queue_db_path"`
	StoragePath     string         `json:"storage_path"`
	LockPath        string         `json:"lock_path"`
}

// SubmitRequest submits the current selection. Mode overrides the session
// mode when set.
type SubmitRequest struct {
	Mode string `json:"mode"`
}

// SubmitResponse reports where the card went.
type SubmitResponse struct {
	Outcome string `json:"outcome"`
	CardID  string `json:"card_id"`
	Target  string `json:"target"`
	Mode    string `json:"mode"`
}

// QueueItem is one offline card.
type QueueItem struct {
	CardID    string `json:"card_id"`
	DeckID    string `json:"deck_id"`
	Mode      string `json:"mode"`
	Target    string `json:"target"`
	Sentence  string `json:"sentence"`
	Attempts  int    `json:"attempts"`
	LastError string `json:"last_error,omitempty"`
	QueuedAt  string `json:"queued_at"`
}

// QueueItemFromEntry converts a stored queue entry for transport.
func QueueItemFromEntry(entry *queue.Entry) QueueItem {
	return QueueItem{
		CardID:    entry.Card.ID,
		DeckID:    entry.Card.DeckID,
		Mode:      string(entry.Card.Mode),
		Target:    entry.Card.TargetWord,
		Sentence:  entry.Card.Sentence,
		Attempts:  entry.Attempts,
		LastError: entry.LastError,
		QueuedAt:  formatTime(entry.QueuedAt),
	}
}

// QueueListRequest lists offline cards.
type QueueListRequest struct{}

// QueueListResponse contains queue entries oldest first.
type QueueListResponse struct {
	Items []QueueItem `json:"items"`
}

// QueueSyncRequest replays offline cards now.
type QueueSyncRequest struct{}

// QueueSyncResponse reports replay progress.
type QueueSyncResponse struct {
	Synced    int      `json:"synced"`
	Remaining int      `json:"remaining"`
	Created   []string `json:"created"`
	Error     string   `json:"error,omitempty"`
}

// QueueClearRequest removes all items.
type QueueClearRequest struct{}

// QueueClearResponse reports number of removed entries.
type QueueClearResponse struct {
	Removed int64 `json:"removed"`
}

// LogTailRequest fetches buffered log events after a sequence number. A zero
// Since returns the most recent Limit events.
type LogTailRequest struct {
	Since uint64 `json:"since"`
	Limit int    `json:"limit"`
}

// LogTailResponse returns log events and the sequence to resume from.
type LogTailResponse struct {
	Events []logging.LogEvent `json:"events"`
	Next   uint64             `json:"next"`
}

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports notification test outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
