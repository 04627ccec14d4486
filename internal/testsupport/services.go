package testsupport

import (
	"context"
	"fmt"
	"sync"

	"captionminer/internal/cards"
	"captionminer/internal/dictionary"
	"captionminer/internal/notifications"
)

// CardService is an in-memory card backend.
type CardService struct {
	mu        sync.Mutex
	err       error
	updateErr error
	created   []cards.DraftCard
	updates   map[string][]cards.Update
	decks     []cards.Deck
	next      int
}

// NewCardService returns a healthy backend with one deck.
func NewCardService() *CardService {
	return &CardService{
		updates: make(map[string][]cards.Update),
		decks:   []cards.Deck{{ID: "deck-1", Name: "Test Deck", Language: "zh"}},
	}
}

// Fail makes Create and Decks return err. Pass nil to recover.
func (s *CardService) Fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// FailUpdates makes Update return err.
func (s *CardService) FailUpdates(err error) {
	s.mu.Lock()
	s.updateErr = err
	s.mu.Unlock()
}

func (s *CardService) Create(_ context.Context, draft cards.DraftCard) (cards.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return cards.Card{}, s.err
	}
	s.next++
	s.created = append(s.created, draft)
	return cards.Card{DraftCard: draft, ID: fmt.Sprintf("card-%d", s.next), UserID: "user-1"}, nil
}

func (s *CardService) Update(_ context.Context, id string, update cards.Update) (cards.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return cards.Card{}, s.updateErr
	}
	s.updates[id] = append(s.updates[id], update)
	card := cards.Card{ID: id, UserID: "user-1"}
	if update.Translation != nil {
		card.Translation = *update.Translation
	}
	return card, nil
}

func (s *CardService) Decks(context.Context) ([]cards.Deck, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return append([]cards.Deck(nil), s.decks...), nil
}

// Created returns drafts accepted so far.
func (s *CardService) Created() []cards.DraftCard {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]cards.DraftCard(nil), s.created...)
}

// Updates returns patches recorded for id.
func (s *CardService) Updates(id string) []cards.Update {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]cards.Update(nil), s.updates[id]...)
}

// Translator is an in-memory translation provider.
type Translator struct {
	mu           sync.Mutex
	translations map[string]string
	err          error
	failLeft     int
	calls        []string
}

// NewTranslator returns a translator that knows the given pairs.
func NewTranslator(pairs map[string]string) *Translator {
	if pairs == nil {
		pairs = map[string]string{}
	}
	return &Translator{translations: pairs}
}

// Fail makes every call return err. Pass nil to recover.
func (t *Translator) Fail(err error) {
	t.mu.Lock()
	t.err = err
	t.mu.Unlock()
}

// FailNext makes the next n calls return err, then recovers.
func (t *Translator) FailNext(err error, n int) {
	t.mu.Lock()
	t.err = err
	t.failLeft = n
	t.mu.Unlock()
}

func (t *Translator) Translate(_ context.Context, text string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = append(t.calls, text)
	if t.err != nil {
		err := t.err
		if t.failLeft > 0 {
			t.failLeft--
			if t.failLeft == 0 {
				t.err = nil
			}
		}
		return "", err
	}
	if translation, ok := t.translations[text]; ok {
		return translation, nil
	}
	return "[" + text + "]", nil
}

// Calls returns the texts translated so far.
func (t *Translator) Calls() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.calls...)
}

// Dictionary is a map-backed dictionary provider that counts lookups.
type Dictionary struct {
	mu      sync.Mutex
	entries map[string]dictionary.Entry
	lookups []string
}

// NewDictionary returns a dictionary with the given entries.
func NewDictionary(entries map[string]dictionary.Entry) *Dictionary {
	return &Dictionary{entries: entries}
}

func (d *Dictionary) Lookup(word string) (dictionary.Entry, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lookups = append(d.lookups, word)
	entry, ok := d.entries[word]
	if !ok || len(entry.Definitions) == 0 {
		return dictionary.Entry{}, false
	}
	return entry, true
}

// Lookups returns the words looked up so far.
func (d *Dictionary) Lookups() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.lookups...)
}

// Notification is a recorded notification event.
type Notification struct {
	Event   notifications.Event
	Payload notifications.Payload
}

// Notifier records published notifications.
type Notifier struct {
	mu     sync.Mutex
	events []Notification
}

// NewNotifier returns an empty recorder.
func NewNotifier() *Notifier {
	return &Notifier{}
}

func (n *Notifier) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, Notification{Event: event, Payload: payload})
	return nil
}

// Events returns the notifications published so far.
func (n *Notifier) Events() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notification(nil), n.events...)
}

// Count returns how many notifications of kind event were published.
func (n *Notifier) Count(event notifications.Event) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, evt := range n.events {
		if evt.Event == event {
			count++
		}
	}
	return count
}
