package queue

import (
	"time"

	"captionminer/internal/cards"
)

// Entry is one queued card plus its replay bookkeeping.
type Entry struct {
	Seq       int64
	Card      cards.Card
	Attempts  int
	LastError string
	QueuedAt  time.Time
	UpdatedAt time.Time
}

// Stats summarizes queue contents for status displays.
type Stats struct {
	Total  int
	ByDeck map[string]int
	Oldest time.Time
}
