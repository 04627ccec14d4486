package submission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"captionminer/internal/cards"
	"captionminer/internal/host"
	"captionminer/internal/logging"
	"captionminer/internal/lookup"
	"captionminer/internal/notifications"
	"captionminer/internal/queue"
	"captionminer/internal/services"
	"captionminer/internal/session"
	"captionminer/internal/textutil"
)

// CueLead and CueTail bound the cue window around the playback position.
const (
	CueLead = 2.0
	CueTail = 2.0
)

var (
	// ErrNoSession is returned when no study session is active.
	ErrNoSession = errors.New("no active study session")
	// ErrNothingSelected is returned when the selection is empty.
	ErrNothingSelected = errors.New("nothing selected")
)

// CardService is the subset of the card backend the pipeline calls.
type CardService interface {
	Create(ctx context.Context, draft cards.DraftCard) (cards.Card, error)
	Update(ctx context.Context, id string, update cards.Update) (cards.Card, error)
}

// Queue stores cards that could not be created remotely.
type Queue interface {
	Append(ctx context.Context, card cards.Card) (*queue.Entry, error)
}

// Enricher supplies phonetic, definition, and sentence translation.
type Enricher interface {
	Enrich(ctx context.Context, text string) lookup.Result
	TranslateSentence(ctx context.Context, text string) (string, error)
}

// Request is a single card submission.
type Request struct {
	Session    session.StudySession
	HasSession bool
	// Mode overrides the session mode when set.
	Mode        cards.Mode
	Target      string
	Caption     string
	Video       host.Video
	CurrentTime float64
}

// Outcome reports which path stored the card.
type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeQueued  Outcome = "queued"
)

// Result is a completed submission.
type Result struct {
	Outcome Outcome
	Card    cards.Card
}

// Pipeline assembles and submits cards. It is safe for concurrent use;
// submissions are independent of each other.
type Pipeline struct {
	cards    CardService
	queue    Queue
	enricher Enricher
	notifier notifications.Service
	provider string
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the pipeline logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logging.NewComponentLogger(logger, "submission")
		}
	}
}

// WithProvider sets the video provider recorded on cards.
func WithProvider(provider string) Option {
	return func(p *Pipeline) {
		if provider = strings.TrimSpace(provider); provider != "" {
			p.provider = provider
		}
	}
}

// WithClock overrides the time source used for local copies.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// WithIDGenerator overrides the local card id suffix generator.
func WithIDGenerator(fn func() string) Option {
	return func(p *Pipeline) {
		if fn != nil {
			p.newID = fn
		}
	}
}

// NewPipeline builds a pipeline. A nil notifier drops notifications.
func NewPipeline(cardSvc CardService, q Queue, enricher Enricher, notifier notifications.Service, opts ...Option) *Pipeline {
	if notifier == nil {
		notifier = notifications.Noop()
	}
	p := &Pipeline{
		cards:    cardSvc,
		queue:    q,
		enricher: enricher,
		notifier: notifier,
		provider: "youtube",
		logger:   logging.NewNop(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Submit builds the card for req and stores it remotely or, failing that,
// in the offline queue. A returned error means the card was not stored.
func (p *Pipeline) Submit(ctx context.Context, req Request) (Result, error) {
	if !req.HasSession {
		p.logger.Debug("submission skipped", logging.String(logging.FieldEventType, "submit_no_session"))
		return Result{}, ErrNoSession
	}
	target := strings.TrimSpace(req.Target)
	if target == "" {
		p.logger.Debug("submission skipped", logging.String(logging.FieldEventType, "submit_nothing_selected"))
		return Result{}, ErrNothingSelected
	}
	mode := req.Mode
	if mode == "" {
		mode = req.Session.Mode
	}
	if mode == "" {
		mode = cards.ModeWord
	}
	ctx = services.WithDeckID(ctx, req.Session.DeckID)
	ctx = services.WithMode(ctx, string(mode))
	logger := logging.WithContext(ctx, p.logger)

	draft := p.assemble(ctx, logger, req, mode, target)
	translationWanted := req.Session.TranslationEnabled && req.Caption != ""

	card, err := p.create(ctx, draft)
	if err != nil {
		return p.storeOffline(ctx, logger, draft, err)
	}

	logger.Info("card created",
		logging.String(logging.FieldEventType, "card_created"),
		logging.String("card_id", card.ID),
		logging.Target(target),
	)
	p.publish(ctx, logger, notifications.EventCardCreated, notifications.Payload{
		"mode":   string(mode),
		"target": target,
	})
	if translationWanted && draft.Translation == "" {
		card = p.backfillTranslation(ctx, logger, card, req.Caption)
	}
	return Result{Outcome: OutcomeCreated, Card: card}, nil
}

func (p *Pipeline) assemble(ctx context.Context, logger *slog.Logger, req Request, mode cards.Mode, target string) cards.DraftCard {
	draft := cards.DraftCard{
		DeckID:     req.Session.DeckID,
		Mode:       mode,
		Provider:   p.provider,
		VideoID:    req.Video.ID,
		VideoURL:   req.Video.URL,
		VideoTitle: req.Video.Title,
		Channel:    req.Video.Channel,
		TargetWord: target,
		Sentence:   req.Caption,
	}
	draft.CueStart, draft.CueEnd = CueWindow(req.CurrentTime)
	draft.SentenceCloze = req.Caption
	if mode == cards.ModeCloze {
		cloze, ok := Cloze(req.Caption, target)
		if !ok {
			logger.Debug("cloze target not found in caption",
				logging.String(logging.FieldEventType, "cloze_miss"),
				logging.Target(target),
				logging.Caption(req.Caption),
			)
		}
		draft.SentenceCloze = cloze
	}
	draft.Tags = textutil.Tags(p.provider, req.Video.Channel, string(mode))

	var wg sync.WaitGroup
	var enriched lookup.Result
	if p.enricher != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer p.recoverPanic(logger, "enrich")
			enriched = p.enricher.Enrich(ctx, target)
		}()
		if req.Session.TranslationEnabled && req.Caption != "" {
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer p.recoverPanic(logger, "translate_sentence")
				translation, err := p.enricher.TranslateSentence(ctx, req.Caption)
				if err != nil {
					logger.Debug("sentence translation failed",
						logging.String(logging.FieldEventType, "sentence_translation_failed"),
						logging.Error(err),
					)
					return
				}
				draft.Translation = strings.TrimSpace(translation)
			}()
		}
	}
	wg.Wait()
	draft.Pinyin = enriched.Phonetic
	draft.Definition = enriched.Definition
	return draft
}

func (p *Pipeline) create(ctx context.Context, draft cards.DraftCard) (cards.Card, error) {
	if p.cards == nil {
		return cards.Card{}, services.Wrap(services.ErrConfiguration, "submission", "create", "no card service", nil)
	}
	return p.cards.Create(ctx, draft)
}

func (p *Pipeline) storeOffline(ctx context.Context, logger *slog.Logger, draft cards.DraftCard, cause error) (Result, error) {
	logging.WarnWithContext(logger, "card service failed; saving card offline", "card_create_failed",
		logging.Error(cause),
		logging.String(logging.FieldErrorHint, services.ErrorHint(cause)),
		logging.String(logging.FieldImpact, "card queued locally until the next sync"),
	)
	local := cards.NewLocalCard(draft, cards.LocalIDPrefix+p.newID(), p.now())
	if p.queue == nil {
		err := services.Wrap(services.ErrConfiguration, "submission", "queue", "no offline queue", cause)
		p.fail(ctx, logger, draft, err)
		return Result{}, err
	}
	if _, err := p.queue.Append(ctx, local); err != nil {
		err = fmt.Errorf("store offline copy: %w", errors.Join(err, cause))
		p.fail(ctx, logger, draft, err)
		return Result{}, err
	}
	logger.Info("card saved offline",
		logging.String(logging.FieldEventType, "card_queued"),
		logging.String("card_id", local.ID),
		logging.Target(draft.TargetWord),
	)
	p.publish(ctx, logger, notifications.EventCardQueued, notifications.Payload{
		"mode":   string(draft.Mode),
		"target": draft.TargetWord,
	})
	return Result{Outcome: OutcomeQueued, Card: local}, nil
}

func (p *Pipeline) fail(ctx context.Context, logger *slog.Logger, draft cards.DraftCard, err error) {
	logger.Error("card submission failed",
		logging.String(logging.FieldEventType, "submission_failed"),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, services.ErrorHint(err)),
		logging.Target(draft.TargetWord),
	)
	if errors.Is(err, services.ErrInvalidated) {
		p.publish(ctx, logger, notifications.EventStorageInvalidated, nil)
		return
	}
	p.publish(ctx, logger, notifications.EventSubmissionFailed, notifications.Payload{
		"mode":   string(draft.Mode),
		"target": draft.TargetWord,
		"error":  err,
	})
}

// backfillTranslation retries the sentence translation once and patches the
// created card. Failures are logged and leave the card untouched.
func (p *Pipeline) backfillTranslation(ctx context.Context, logger *slog.Logger, card cards.Card, caption string) cards.Card {
	if p.enricher == nil {
		return card
	}
	translation, err := p.enricher.TranslateSentence(ctx, caption)
	translation = strings.TrimSpace(translation)
	if err != nil || translation == "" {
		logger.Debug("translation backfill skipped",
			logging.String(logging.FieldEventType, "translation_backfill_failed"),
			logging.String("card_id", card.ID),
			logging.Error(err),
		)
		return card
	}
	if _, err := p.cards.Update(ctx, card.ID, cards.Update{Translation: &translation}); err != nil {
		logging.WarnWithContext(logger, "translation backfill update failed", "translation_backfill_failed",
			logging.String("card_id", card.ID),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, services.ErrorHint(err)),
			logging.String(logging.FieldImpact, "card created without a sentence translation"),
		)
		return card
	}
	card.Translation = translation
	return card
}

func (p *Pipeline) publish(ctx context.Context, logger *slog.Logger, event notifications.Event, payload notifications.Payload) {
	if err := p.notifier.Publish(ctx, event, payload); err != nil {
		logger.Debug("notification failed",
			logging.String(logging.FieldEventType, "notification_failed"),
			logging.String("notification", string(event)),
			logging.Error(err),
		)
	}
}

func (p *Pipeline) recoverPanic(logger *slog.Logger, stage string) {
	if rec := recover(); rec != nil {
		logger.Error("enrichment panic",
			logging.String(logging.FieldEventType, "enrichment_panic"),
			logging.String("stage", stage),
			logging.String("panic", fmt.Sprint(rec)),
		)
	}
}

// CueWindow returns the cue bounds around seconds, clamping the start at 0.
func CueWindow(seconds float64) (float64, float64) {
	if math.IsNaN(seconds) || seconds < 0 {
		seconds = 0
	}
	return math.Max(0, seconds-CueLead), seconds + CueTail
}

// Cloze replaces the first occurrence of target in caption with a c1 cloze
// deletion. When target does not occur the caption is returned unchanged and
// the boolean is false.
func Cloze(caption, target string) (string, bool) {
	if target == "" || !strings.Contains(caption, target) {
		return caption, false
	}
	return strings.Replace(caption, target, "{{c1::"+target+"}}", 1), true
}
