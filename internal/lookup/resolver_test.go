package lookup

import (
	"context"
	"errors"
	"testing"
	"time"

	"captionminer/internal/dictionary"
	"captionminer/internal/services"
	"captionminer/internal/testsupport"
)

type orderedTranslator struct {
	dict  *testsupport.Dictionary
	calls int
	seen  int
}

func (o *orderedTranslator) Translate(_ context.Context, text string) (string, error) {
	o.calls++
	o.seen = len(o.dict.Lookups())
	return "hello", nil
}

func TestShortWordMissFallsBackToTranslatorOnce(t *testing.T) {
	dict := testsupport.NewDictionary(nil)
	translator := &orderedTranslator{dict: dict}
	resolver := NewResolver(dict, translator)

	result := resolver.Resolve(context.Background(), "你好")
	if result.Definition != "hello" {
		t.Fatalf("Definition = %q", result.Definition)
	}
	if result.Phonetic != "nǐ hǎo" {
		t.Fatalf("Phonetic = %q", result.Phonetic)
	}
	if translator.calls != 1 {
		t.Fatalf("translator called %d times, want 1", translator.calls)
	}
	if translator.seen != 1 {
		t.Fatal("dictionary must be consulted before the translator")
	}
}

func TestShortWordDictionaryHit(t *testing.T) {
	dict := testsupport.NewDictionary(map[string]dictionary.Entry{
		"学习": {Pinyin: "xué xí", Definitions: []string{"to learn", "to study"}},
	})
	translator := testsupport.NewTranslator(nil)
	resolver := NewResolver(dict, translator)

	result := resolver.Resolve(context.Background(), "学习")
	if result.Definition != "to learn; to study" {
		t.Fatalf("Definition = %q", result.Definition)
	}
	if len(translator.Calls()) != 0 {
		t.Fatal("translator should not be called on a dictionary hit")
	}
}

func TestLongTextSkipsDictionary(t *testing.T) {
	dict := testsupport.NewDictionary(nil)
	translator := testsupport.NewTranslator(map[string]string{"我们一起学习": "we study together"})
	resolver := NewResolver(dict, translator)

	result := resolver.Resolve(context.Background(), "我们一起学习")
	if result.Definition != "we study together" {
		t.Fatalf("Definition = %q", result.Definition)
	}
	if len(dict.Lookups()) != 0 {
		t.Fatal("dictionary should not be consulted for long text")
	}
}

func TestTranslationDegradation(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"offline", services.Wrap(services.ErrUnavailable, "translate", "post", "", errors.New("dial tcp")), OfflineText},
		{"timeout", services.Wrap(services.ErrTimeout, "translate", "post", "", nil), OfflineText},
		{"server", services.Wrap(services.ErrTransient, "translate", "post", "backend error", nil), UnavailableText},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			translator := testsupport.NewTranslator(nil)
			translator.Fail(tc.err)
			resolver := NewResolver(nil, translator)
			if got := resolver.Resolve(context.Background(), "一个很长的句子").Definition; got != tc.want {
				t.Fatalf("Definition = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestPhoneticPanicDegrades(t *testing.T) {
	resolver := NewResolver(nil, testsupport.NewTranslator(nil), WithPhonetic(func(string) string {
		panic("bad table")
	}))
	result := resolver.Resolve(context.Background(), "你好")
	if result.Phonetic != "" {
		t.Fatalf("expected empty phonetic, got %q", result.Phonetic)
	}
	if result.Definition == "" {
		t.Fatal("definition should still resolve")
	}
}

func TestNonHanHasNoPhonetic(t *testing.T) {
	resolver := NewResolver(nil, testsupport.NewTranslator(nil))
	if got := resolver.Resolve(context.Background(), "hello").Phonetic; got != "" {
		t.Fatalf("Phonetic = %q", got)
	}
}

func TestCacheStoresOnlyCleanResults(t *testing.T) {
	translator := testsupport.NewTranslator(nil)
	resolver := NewResolver(nil, translator, WithCache(8, time.Minute))

	resolver.Resolve(context.Background(), "一二三四")
	resolver.Resolve(context.Background(), "一二三四")
	if got := len(translator.Calls()); got != 1 {
		t.Fatalf("expected cached second lookup, translator calls = %d", got)
	}

	translator.Fail(services.ErrUnavailable)
	resolver.Resolve(context.Background(), "五六七八")
	translator.Fail(nil)
	result := resolver.Resolve(context.Background(), "五六七八")
	if result.Definition == OfflineText {
		t.Fatal("degraded result must not be cached")
	}
}

func TestCacheDisabledWithZeroSize(t *testing.T) {
	translator := testsupport.NewTranslator(nil)
	resolver := NewResolver(nil, translator, WithCache(0, time.Minute))
	resolver.Resolve(context.Background(), "一二三四")
	resolver.Resolve(context.Background(), "一二三四")
	if got := len(translator.Calls()); got != 2 {
		t.Fatalf("expected uncached lookups, translator calls = %d", got)
	}
}

func TestEnrichDropsPlaceholderDefinition(t *testing.T) {
	translator := testsupport.NewTranslator(nil)
	translator.Fail(services.Wrap(services.ErrUnavailable, "translate", "post", "", nil))
	resolver := NewResolver(nil, translator)

	result := resolver.Enrich(context.Background(), "学习")
	if result.Definition != "" {
		t.Fatalf("Definition = %q, want empty", result.Definition)
	}
	if result.Phonetic != "xué xí" {
		t.Fatalf("Phonetic = %q", result.Phonetic)
	}
	if got := resolver.Resolve(context.Background(), "学习").Definition; got != OfflineText {
		t.Fatalf("Resolve definition = %q, want %q", got, OfflineText)
	}
}
