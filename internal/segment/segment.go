package segment

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"unicode"

	"captionminer/internal/config"
	"captionminer/internal/logging"
	"captionminer/internal/textutil"
)

// ErrEngineDisabled is returned by the loader when segmentation.engine is
// "none".
var ErrEngineDisabled = errors.New("segmentation engine disabled")

// Engine is a statistical segmenter.
type Engine interface {
	Cut(text string) ([]string, error)
}

// Loader constructs an Engine. It runs at most once per Adapter.
type Loader func() (Engine, error)

// Adapter turns caption text into tokens.
type Adapter struct {
	loader Loader
	logger *slog.Logger

	once    sync.Once
	engine  Engine
	loadErr error

	cutFailed sync.Once
}

// NewAdapter wraps loader. A nil loader means no engine.
func NewAdapter(loader Loader, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Adapter{loader: loader, logger: logging.NewComponentLogger(logger, "segment")}
}

// NewFromConfig builds an adapter for the configured engine.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) *Adapter {
	if cfg == nil || cfg.Segmentation.Engine == "none" {
		return NewAdapter(nil, logger)
	}
	return NewAdapter(GSELoader(cfg.Segmentation.DictionaryPath), logger)
}

// Available loads the engine if needed and reports whether it is usable.
func (a *Adapter) Available() bool {
	return a.load() != nil
}

// Segment returns the ordered tokens of text. Empty or whitespace-only text
// yields nil.
func (a *Adapter) Segment(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if !textutil.ContainsHan(text) {
		return strings.Fields(text)
	}
	if engine := a.load(); engine != nil {
		tokens, err := a.cut(engine, text)
		if err == nil && len(tokens) > 0 {
			return tokens
		}
		a.cutFailed.Do(func() {
			a.logger.Debug("segmentation engine failed; using per-character fallback",
				logging.String(logging.FieldEventType, "segment_fallback"),
				logging.Error(err),
			)
		})
	}
	return characters(text)
}

func (a *Adapter) load() Engine {
	a.once.Do(func() {
		if a.loader == nil {
			a.loadErr = ErrEngineDisabled
			return
		}
		engine, err := safeLoad(a.loader)
		if err != nil {
			a.loadErr = err
			a.logger.Debug("segmentation engine unavailable",
				logging.String(logging.FieldEventType, "segment_engine_unavailable"),
				logging.Error(err),
			)
			return
		}
		a.engine = engine
	})
	return a.engine
}

func safeLoad(loader Loader) (engine Engine, err error) {
	defer func() {
		if r := recover(); r != nil {
			engine, err = nil, fmt.Errorf("segmentation engine load panicked: %v", r)
		}
	}()
	engine, err = loader()
	if err == nil && engine == nil {
		err = ErrEngineDisabled
	}
	return engine, err
}

func (a *Adapter) cut(engine Engine, text string) (tokens []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			tokens, err = nil, fmt.Errorf("segmentation engine panicked: %v", r)
		}
	}()
	raw, err := engine.Cut(text)
	if err != nil {
		return nil, err
	}
	tokens = make([]string, 0, len(raw))
	for _, token := range raw {
		if strings.TrimSpace(token) == "" {
			continue
		}
		tokens = append(tokens, token)
	}
	return tokens, nil
}

// characters is the fallback: one token per rune, whitespace dropped.
func characters(text string) []string {
	out := make([]string, 0, len(text))
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		out = append(out, string(r))
	}
	return out
}
