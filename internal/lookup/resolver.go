package lookup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"captionminer/internal/dictionary"
	"captionminer/internal/logging"
	"captionminer/internal/phonetic"
	"captionminer/internal/services"
	"captionminer/internal/textutil"
)

const (
	// ShortWordMax is the longest text, in characters, tried against the
	// dictionary first.
	ShortWordMax = 3

	// OfflineText replaces a translation when the provider is unreachable.
	OfflineText = "Translation unavailable (offline)"
	// UnavailableText replaces a translation when the provider errors.
	UnavailableText = "Translation unavailable"
)

// Result is a resolved lookup.
type Result struct {
	Phonetic   string
	Definition string
}

// Dictionary is the short-word lookup provider.
type Dictionary interface {
	Lookup(word string) (dictionary.Entry, bool)
}

// Translator is the translation provider.
type Translator interface {
	Translate(ctx context.Context, text string) (string, error)
}

// Resolver performs lookups. It is safe for concurrent use.
type Resolver struct {
	dict       Dictionary
	translator Translator
	phonetic   func(string) string
	logger     *slog.Logger
	cache      *expirable.LRU[string, Result]
}

// Option customizes a Resolver.
type Option func(*Resolver)

// WithCache enables an expirable LRU of successful results. A size of zero
// disables caching.
func WithCache(size int, ttl time.Duration) Option {
	return func(r *Resolver) {
		if size > 0 {
			r.cache = expirable.NewLRU[string, Result](size, nil, ttl)
		}
	}
}

// WithLogger sets the resolver logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logging.NewComponentLogger(logger, "lookup")
		}
	}
}

// WithPhonetic overrides the phonetic transcriber.
func WithPhonetic(fn func(string) string) Option {
	return func(r *Resolver) {
		if fn != nil {
			r.phonetic = fn
		}
	}
}

// NewResolver builds a resolver. Either provider may be nil.
func NewResolver(dict Dictionary, translator Translator, opts ...Option) *Resolver {
	r := &Resolver{
		dict:       dict,
		translator: translator,
		phonetic:   phonetic.Pinyin,
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the phonetic and definition lines for text.
func (r *Resolver) Resolve(ctx context.Context, text string) Result {
	result, _ := r.resolve(ctx, text)
	return result
}

// Enrich resolves text for a card. A degraded definition is left empty so
// placeholder text never lands on a card.
func (r *Resolver) Enrich(ctx context.Context, text string) Result {
	result, degraded := r.resolve(ctx, text)
	if degraded {
		result.Definition = ""
	}
	return result
}

func (r *Resolver) resolve(ctx context.Context, text string) (Result, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{}, false
	}
	if r.cache != nil {
		if cached, ok := r.cache.Get(text); ok {
			return cached, false
		}
	}
	result := Result{Phonetic: r.Phonetic(text)}
	definition, degraded := r.definition(ctx, text)
	result.Definition = definition
	if r.cache != nil && !degraded {
		r.cache.Add(text, result)
	}
	return result, degraded
}

// Phonetic returns the transcription for Han text, or "" when the text has
// none or the transcriber fails.
func (r *Resolver) Phonetic(text string) (out string) {
	if !textutil.ContainsHan(text) {
		return ""
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Debug("phonetic transcription failed",
				logging.String(logging.FieldEventType, "phonetic_failed"),
				logging.String("panic", fmt.Sprint(rec)),
			)
			out = ""
		}
	}()
	return r.phonetic(text)
}

// Definition returns the short-word-first definition line for text.
func (r *Resolver) Definition(ctx context.Context, text string) string {
	definition, _ := r.definition(ctx, strings.TrimSpace(text))
	return definition
}

func (r *Resolver) definition(ctx context.Context, text string) (string, bool) {
	if text == "" {
		return "", false
	}
	if textutil.RuneLen(text) <= ShortWordMax && r.dict != nil {
		if entry, ok := r.dict.Lookup(text); ok && len(entry.Definitions) > 0 {
			return strings.Join(entry.Definitions, "; "), false
		}
	}
	return r.translate(ctx, text)
}

// Translate calls the translation provider, returning the translation or a
// placeholder. The boolean reports whether the result is degraded.
func (r *Resolver) translate(ctx context.Context, text string) (string, bool) {
	if r.translator == nil {
		return UnavailableText, true
	}
	translation, err := r.translator.Translate(ctx, text)
	if err == nil && translation != "" {
		return translation, false
	}
	if err == nil {
		err = errors.New("empty translation")
	}
	placeholder := UnavailableText
	if offline(err) {
		placeholder = OfflineText
	}
	r.logger.Debug("translation degraded",
		logging.String(logging.FieldEventType, "translation_degraded"),
		logging.Error(err),
		logging.String("placeholder", placeholder),
	)
	return placeholder, true
}

// TranslateSentence translates text without placeholder substitution. It is
// used for card enrichment where a failure leaves the field empty.
func (r *Resolver) TranslateSentence(ctx context.Context, text string) (string, error) {
	if r.translator == nil {
		return "", services.Wrap(services.ErrConfiguration, "lookup", "translate sentence", "no translation provider", nil)
	}
	return r.translator.Translate(ctx, text)
}

func offline(err error) bool {
	return errors.Is(err, services.ErrUnavailable) || errors.Is(err, services.ErrTimeout) ||
		errors.Is(err, context.DeadlineExceeded)
}
