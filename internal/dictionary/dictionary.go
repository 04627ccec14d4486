package dictionary

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"captionminer/internal/logging"
	"captionminer/internal/services"
	"captionminer/internal/textutil"
)

// Entry is a dictionary record.
type Entry struct {
	Pinyin      string   `json:"pinyin"`
	Definitions []string `json:"definitions"`
}

// Dictionary is an immutable in-memory headword index.
type Dictionary struct {
	entries map[string]Entry
}

// New builds a dictionary from prepared entries.
func New(entries map[string]Entry) *Dictionary {
	d := &Dictionary{entries: make(map[string]Entry, len(entries))}
	for word, entry := range entries {
		d.add(word, entry)
	}
	return d
}

// Load reads path, detecting the format from its first non-space byte.
func Load(path string) (*Dictionary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, services.Wrap(services.ErrNotFound, "dictionary", "load", "dictionary file missing", err)
		}
		return nil, fmt.Errorf("read dictionary: %w", err)
	}
	return Parse(bytes.NewReader(data))
}

// Parse decodes either supported format from r.
func Parse(r io.Reader) (*Dictionary, error) {
	br := bufio.NewReader(r)
	for {
		b, err := br.Peek(1)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return New(nil), nil
			}
			return nil, fmt.Errorf("read dictionary: %w", err)
		}
		switch b[0] {
		case ' ', '\t', '\r', '\n':
			_, _ = br.ReadByte()
			continue
		case '{':
			return ParseJSON(br)
		default:
			return ParseCEDICT(br)
		}
	}
}

// ParseJSON decodes the headword-keyed JSON format.
func ParseJSON(r io.Reader) (*Dictionary, error) {
	var raw map[string]Entry
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, services.Wrap(services.ErrValidation, "dictionary", "parse json", "invalid dictionary json", err)
	}
	return New(raw), nil
}

// ParseCEDICT decodes raw CC-CEDICT lines of the form
// "Traditional Simplified [pin1 yin1] /def one/def two/". Comment and
// malformed lines are skipped.
func ParseCEDICT(r io.Reader) (*Dictionary, error) {
	d := &Dictionary{entries: make(map[string]Entry)}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		traditional, simplified, entry, ok := parseCEDICTLine(line)
		if !ok {
			continue
		}
		d.add(simplified, entry)
		if traditional != simplified {
			d.add(traditional, entry)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan cedict: %w", err)
	}
	return d, nil
}

func parseCEDICTLine(line string) (string, string, Entry, bool) {
	open := strings.IndexByte(line, '[')
	closing := strings.IndexByte(line, ']')
	if open <= 0 || closing < open {
		return "", "", Entry{}, false
	}
	words := strings.Fields(line[:open])
	if len(words) < 2 {
		return "", "", Entry{}, false
	}
	defs := strings.Split(strings.Trim(strings.TrimSpace(line[closing+1:]), "/"), "/")
	entry := Entry{Pinyin: strings.TrimSpace(line[open+1 : closing])}
	for _, def := range defs {
		if def = strings.TrimSpace(def); def != "" {
			entry.Definitions = append(entry.Definitions, def)
		}
	}
	if len(entry.Definitions) == 0 {
		return "", "", Entry{}, false
	}
	return words[0], words[1], entry, true
}

func (d *Dictionary) add(word string, entry Entry) {
	word = textutil.FoldKey(word)
	if word == "" {
		return
	}
	existing, ok := d.entries[word]
	if !ok {
		d.entries[word] = Entry{Pinyin: entry.Pinyin, Definitions: append([]string(nil), entry.Definitions...)}
		return
	}
	if existing.Pinyin == "" {
		existing.Pinyin = entry.Pinyin
	}
	existing.Definitions = append(existing.Definitions, entry.Definitions...)
	d.entries[word] = existing
}

// Lookup returns the entry for word. Entries without definitions count as
// misses.
func (d *Dictionary) Lookup(word string) (Entry, bool) {
	if d == nil {
		return Entry{}, false
	}
	entry, ok := d.entries[textutil.FoldKey(word)]
	if !ok || len(entry.Definitions) == 0 {
		return Entry{}, false
	}
	return entry, true
}

// Len reports the number of indexed headwords.
func (d *Dictionary) Len() int {
	if d == nil {
		return 0
	}
	return len(d.entries)
}

// Lazy loads a dictionary file on first lookup. A missing or unreadable
// file leaves every lookup a miss; the failure is logged once.
type Lazy struct {
	path   string
	logger *slog.Logger

	once sync.Once
	dict *Dictionary
	err  error
}

// NewLazy returns a provider for path.
func NewLazy(path string, logger *slog.Logger) *Lazy {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Lazy{path: path, logger: logging.NewComponentLogger(logger, "dictionary")}
}

// Lookup implements the lookup provider contract.
func (l *Lazy) Lookup(word string) (Entry, bool) {
	return l.load().Lookup(word)
}

// Err reports the load failure, if any, forcing the load.
func (l *Lazy) Err() error {
	l.load()
	return l.err
}

func (l *Lazy) load() *Dictionary {
	l.once.Do(func() {
		if strings.TrimSpace(l.path) == "" {
			l.err = services.Wrap(services.ErrConfiguration, "dictionary", "load", "no dictionary path configured", nil)
			return
		}
		l.dict, l.err = Load(l.path)
		if l.err != nil {
			l.logger.Warn("dictionary unavailable; short-word lookups will use translation",
				logging.String(logging.FieldEventType, "dictionary_unavailable"),
				logging.String("path", l.path),
				logging.Error(l.err),
				logging.String(logging.FieldErrorHint, "set paths.dictionary_path to a CC-CEDICT export"),
				logging.String(logging.FieldImpact, "definitions come from the translation provider"),
			)
			return
		}
		l.logger.Info("dictionary loaded",
			logging.String(logging.FieldEventType, "dictionary_loaded"),
			logging.String("path", l.path),
			logging.Int("entries", l.dict.Len()),
		)
	})
	return l.dict
}
