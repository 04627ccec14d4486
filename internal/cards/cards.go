package cards

import (
	"fmt"
	"strings"
	"time"
)

// Mode selects how a card presents its target.
type Mode string

const (
	ModeWord     Mode = "word"
	ModeSentence Mode = "sentence"
	ModeCloze    Mode = "cloze"
)

// ParseMode normalizes a user-supplied mode string.
func ParseMode(value string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(value))) {
	case ModeWord:
		return ModeWord, nil
	case ModeSentence:
		return ModeSentence, nil
	case ModeCloze:
		return ModeCloze, nil
	default:
		return "", fmt.Errorf("unknown card mode %q (want word, sentence, or cloze)", value)
	}
}

// Label returns the upper-case mode name used in notifications.
func (m Mode) Label() string {
	return strings.ToUpper(string(m))
}

const (
	// OfflineUserID marks cards that were stored locally instead of created remotely.
	OfflineUserID = "offline"
	// DefaultAudioMime is the capture format recorded on local copies.
	DefaultAudioMime = "audio/webm"
	// LocalIDPrefix prefixes identifiers of locally queued cards.
	LocalIDPrefix = "local-"
)

// DraftCard is the payload submitted to the card backend.
type DraftCard struct {
	DeckID        string   `json:"deckId"`
	Mode          Mode     `json:"mode"`
	Provider      string   `json:"provider"`
	VideoID       string   `json:"videoId"`
	VideoURL      string   `json:"videoUrl"`
	VideoTitle    string   `json:"videoTitle"`
	Channel       string   `json:"channel"`
	CueStart      float64  `json:"cueStart"`
	CueEnd        float64  `json:"cueEnd"`
	TargetWord    string   `json:"targetWord"`
	Sentence      string   `json:"sentence"`
	SentenceCloze string   `json:"sentenceCloze"`
	Pinyin        string   `json:"pinyin"`
	Definition    string   `json:"definition"`
	Translation   string   `json:"translation,omitempty"`
	Tags          []string `json:"tags"`
}

// Card is a persisted card, remote or local.
type Card struct {
	DraftCard
	ID            string  `json:"id"`
	UserID        string  `json:"userId"`
	AudioURL      *string `json:"audioUrl"`
	AudioMime     string  `json:"audioMime"`
	AudioDuration float64 `json:"audioDuration"`
	CreatedAt     string  `json:"createdAt"`
	UpdatedAt     string  `json:"updatedAt"`
}

// IsLocal reports whether the card only exists in the offline queue.
func (c Card) IsLocal() bool {
	return c.UserID == OfflineUserID || strings.HasPrefix(c.ID, LocalIDPrefix)
}

// NewLocalCard builds the offline copy of a draft that could not be submitted.
func NewLocalCard(draft DraftCard, id string, now time.Time) Card {
	stamp := now.UTC().Format(time.RFC3339)
	if draft.Tags == nil {
		draft.Tags = []string{}
	}
	return Card{
		DraftCard: draft,
		ID:        id,
		UserID:    OfflineUserID,
		AudioMime: DefaultAudioMime,
		CreatedAt: stamp,
		UpdatedAt: stamp,
	}
}

// Update carries the mutable card fields accepted by the backend's PATCH endpoint.
type Update struct {
	TargetWord    *string  `json:"targetWord,omitempty"`
	Sentence      *string  `json:"sentence,omitempty"`
	SentenceCloze *string  `json:"sentenceCloze,omitempty"`
	Pinyin        *string  `json:"pinyin,omitempty"`
	Definition    *string  `json:"definition,omitempty"`
	Translation   *string  `json:"translation,omitempty"`
	Tags          []string `json:"tags,omitempty"`
}

// Deck is a study deck owned by the authenticated user.
type Deck struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	Name      string `json:"name"`
	Language  string `json:"language"`
	CreatedAt string `json:"createdAt"`
}
