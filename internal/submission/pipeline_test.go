package submission_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"captionminer/internal/cards"
	"captionminer/internal/dictionary"
	"captionminer/internal/host"
	"captionminer/internal/logging"
	"captionminer/internal/lookup"
	"captionminer/internal/notifications"
	"captionminer/internal/segment"
	"captionminer/internal/selection"
	"captionminer/internal/services"
	"captionminer/internal/session"
	"captionminer/internal/submission"
	"captionminer/internal/testsupport"
)

type harness struct {
	cards      *testsupport.CardService
	translator *testsupport.Translator
	notifier   *testsupport.Notifier
	queue      interface {
		submission.Queue
		submission.ReplayQueue
	}
	pipeline *submission.Pipeline
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	h := &harness{
		cards:      testsupport.NewCardService(),
		translator: testsupport.NewTranslator(map[string]string{"你好世界": "hello world"}),
		notifier:   testsupport.NewNotifier(),
		queue:      testsupport.MustOpenQueue(t, cfg),
	}
	dict := testsupport.NewDictionary(map[string]dictionary.Entry{
		"你好": {Pinyin: "nǐ hǎo", Definitions: []string{"hello"}},
	})
	resolver := lookup.NewResolver(dict, h.translator)
	h.pipeline = submission.NewPipeline(h.cards, h.queue, resolver, h.notifier,
		submission.WithLogger(logging.NewNop()),
		submission.WithClock(func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }),
		submission.WithIDGenerator(func() string { return "fixed" }),
	)
	return h
}

func studySession(mode cards.Mode) session.StudySession {
	return session.StudySession{DeckID: "deck-1", DeckName: "Test Deck", Mode: mode}
}

func selectedTarget(t *testing.T, caption string, indices ...int) string {
	t.Helper()
	adapter := segment.NewAdapter(nil, logging.NewNop())
	machine := selection.NewMachine()
	machine.Reset(selection.Tokens(adapter.Segment(caption)))
	for _, idx := range indices {
		if !machine.ToggleToken(idx) {
			t.Fatalf("ToggleToken(%d) rejected", idx)
		}
	}
	return machine.TargetText()
}

func request(mode cards.Mode, target, caption string) submission.Request {
	return submission.Request{
		Session:     studySession(mode),
		HasSession:  true,
		Target:      target,
		Caption:     caption,
		CurrentTime: 10,
		Video: host.Video{
			ID:      "test123",
			URL:     "https://www.youtube.com/watch?v=test123",
			Title:   "Test Video",
			Channel: "Test Channel",
		},
	}
}

func TestWordModeSubmission(t *testing.T) {
	h := newHarness(t)
	target := selectedTarget(t, "你好世界", 0, 1)
	if target != "你好" {
		t.Fatalf("target = %q, want 你好", target)
	}

	result, err := h.pipeline.Submit(context.Background(), request(cards.ModeWord, target, "你好世界"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result.Outcome != submission.OutcomeCreated {
		t.Fatalf("outcome = %s", result.Outcome)
	}
	created := h.cards.Created()
	if len(created) != 1 {
		t.Fatalf("created %d cards, want 1", len(created))
	}
	draft := created[0]
	if draft.TargetWord != "你好" || draft.Sentence != "你好世界" {
		t.Fatalf("unexpected draft target/sentence: %+v", draft)
	}
	if draft.SentenceCloze != "你好世界" {
		t.Fatalf("word mode must not cloze: %q", draft.SentenceCloze)
	}
	if draft.Pinyin != "nǐ hǎo" || draft.Definition != "hello" {
		t.Fatalf("unexpected enrichment: pinyin=%q definition=%q", draft.Pinyin, draft.Definition)
	}
	if draft.CueStart != 8 || draft.CueEnd != 12 {
		t.Fatalf("cue window = [%v, %v]", draft.CueStart, draft.CueEnd)
	}
	if draft.DeckID != "deck-1" || draft.Provider != "youtube" || draft.VideoID != "test123" {
		t.Fatalf("unexpected metadata: %+v", draft)
	}
	if strings.Join(draft.Tags, ",") != "youtube,test_channel,word" {
		t.Fatalf("tags = %v", draft.Tags)
	}
	if draft.Translation != "" {
		t.Fatalf("translation should be skipped when disabled, got %q", draft.Translation)
	}
	if h.notifier.Count(notifications.EventCardCreated) != 1 {
		t.Fatalf("expected one created notification, got %+v", h.notifier.Events())
	}
}

func TestClozeModeWrapsFirstOccurrence(t *testing.T) {
	h := newHarness(t)
	target := selectedTarget(t, "你好世界", 0, 1)

	if _, err := h.pipeline.Submit(context.Background(), request(cards.ModeCloze, target, "你好世界")); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	draft := h.cards.Created()[0]
	if draft.SentenceCloze != "{{c1::你好}}世界" {
		t.Fatalf("SentenceCloze = %q", draft.SentenceCloze)
	}
	if draft.Sentence != "你好世界" {
		t.Fatalf("Sentence modified: %q", draft.Sentence)
	}
}

func TestClozeHelper(t *testing.T) {
	cases := []struct {
		caption, target, want string
		ok                    bool
	}{
		{"你好你好", "你好", "{{c1::你好}}你好", true},
		{"你好世界", "再见", "你好世界", false},
		{"你好世界", "", "你好世界", false},
	}
	for _, tc := range cases {
		got, ok := submission.Cloze(tc.caption, tc.target)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("Cloze(%q, %q) = %q, %v; want %q, %v", tc.caption, tc.target, got, ok, tc.want, tc.ok)
		}
	}
}

func TestCueWindowClampsStart(t *testing.T) {
	start, end := submission.CueWindow(1.5)
	if start != 0 || end != 3.5 {
		t.Fatalf("CueWindow(1.5) = %v, %v", start, end)
	}
	start, end = submission.CueWindow(10)
	if start != 8 || end != 12 {
		t.Fatalf("CueWindow(10) = %v, %v", start, end)
	}
}

func TestCardServiceFailureQueuesLocalCopy(t *testing.T) {
	h := newHarness(t)
	h.cards.Fail(services.Wrap(services.ErrUnavailable, "cardsvc", "create", "connection refused", nil))

	result, err := h.pipeline.Submit(context.Background(), request(cards.ModeWord, "你好", "你好世界"))
	if err != nil {
		t.Fatalf("Submit should degrade, got %v", err)
	}
	if result.Outcome != submission.OutcomeQueued {
		t.Fatalf("outcome = %s", result.Outcome)
	}
	entries, err := h.queue.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("queued %d cards, want 1", len(entries))
	}
	card := entries[0].Card
	if card.ID != "local-fixed" || card.UserID != cards.OfflineUserID {
		t.Fatalf("unexpected local card identity: id=%q user=%q", card.ID, card.UserID)
	}
	if card.AudioMime != cards.DefaultAudioMime || card.CreatedAt != "2024-05-01T12:00:00Z" {
		t.Fatalf("unexpected local card fields: %+v", card)
	}
	if card.TargetWord != "你好" {
		t.Fatalf("TargetWord = %q", card.TargetWord)
	}
	if h.notifier.Count(notifications.EventCardQueued) != 1 || h.notifier.Count(notifications.EventSubmissionFailed) != 0 {
		t.Fatalf("unexpected notifications: %+v", h.notifier.Events())
	}
}

func TestBothPathsFailingOnClosedStorage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	q := testsupport.MustOpenQueue(t, cfg)
	if err := q.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	svc := testsupport.NewCardService()
	svc.Fail(errors.New("network down"))
	notifier := testsupport.NewNotifier()
	pipeline := submission.NewPipeline(svc, q, nil, notifier)

	_, err := pipeline.Submit(context.Background(), request(cards.ModeWord, "你好", "你好世界"))
	if !errors.Is(err, services.ErrInvalidated) {
		t.Fatalf("expected ErrInvalidated, got %v", err)
	}
	if notifier.Count(notifications.EventStorageInvalidated) != 1 {
		t.Fatalf("expected storage invalidated notification, got %+v", notifier.Events())
	}
}

func TestPreconditionsDoNotNotify(t *testing.T) {
	h := newHarness(t)

	req := request(cards.ModeWord, "你好", "你好世界")
	req.HasSession = false
	if _, err := h.pipeline.Submit(context.Background(), req); !errors.Is(err, submission.ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
	if _, err := h.pipeline.Submit(context.Background(), request(cards.ModeWord, "  ", "你好世界")); !errors.Is(err, submission.ErrNothingSelected) {
		t.Fatalf("expected ErrNothingSelected, got %v", err)
	}
	if len(h.notifier.Events()) != 0 || len(h.cards.Created()) != 0 {
		t.Fatal("preconditions must not notify or submit")
	}
}

func TestModeOverrideAndSentenceTranslation(t *testing.T) {
	h := newHarness(t)
	req := request(cards.ModeWord, "你好", "你好世界")
	req.Session.TranslationEnabled = true
	req.Mode = cards.ModeSentence

	if _, err := h.pipeline.Submit(context.Background(), req); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	draft := h.cards.Created()[0]
	if draft.Mode != cards.ModeSentence {
		t.Fatalf("Mode = %s", draft.Mode)
	}
	if draft.Translation != "hello world" {
		t.Fatalf("Translation = %q", draft.Translation)
	}
}

func TestTranslationBackfillAfterRemoteCreate(t *testing.T) {
	h := newHarness(t)
	h.translator.FailNext(errors.New("translator hiccup"), 1)
	req := request(cards.ModeWord, "你好", "你好世界")
	req.Session.TranslationEnabled = true

	result, err := h.pipeline.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if h.cards.Created()[0].Translation != "" {
		t.Fatal("draft should be created without the failed translation")
	}
	updates := h.cards.Updates(result.Card.ID)
	if len(updates) != 1 || updates[0].Translation == nil || *updates[0].Translation != "hello world" {
		t.Fatalf("expected one translation backfill, got %+v", updates)
	}
	if result.Card.Translation != "hello world" {
		t.Fatalf("result translation = %q", result.Card.Translation)
	}
}
