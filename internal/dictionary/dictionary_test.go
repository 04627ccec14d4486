package dictionary

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"captionminer/internal/services"
)

const sampleCEDICT = `# CC-CEDICT
# comment line
你好 你好 [ni3 hao3] /hello/hi/
學習 学习 [xue2 xi2] /to learn/to study/
好 好 [hao3] /good/
好 好 [hao4] /to be fond of/
broken line without brackets
空 空 [kong1] //
`

func TestParseCEDICT(t *testing.T) {
	dict, err := Parse(strings.NewReader(sampleCEDICT))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	entry, ok := dict.Lookup("学习")
	if !ok {
		t.Fatal("expected simplified headword")
	}
	if entry.Pinyin != "xue2 xi2" || !reflect.DeepEqual(entry.Definitions, []string{"to learn", "to study"}) {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if _, ok := dict.Lookup("學習"); !ok {
		t.Fatal("expected traditional headword")
	}
	good, ok := dict.Lookup("好")
	if !ok || good.Pinyin != "hao3" || len(good.Definitions) != 2 {
		t.Fatalf("expected merged entry with first reading, got %+v", good)
	}
	if _, ok := dict.Lookup("空"); ok {
		t.Fatal("entry without definitions should be skipped")
	}
	if _, ok := dict.Lookup("世界"); ok {
		t.Fatal("unexpected hit")
	}
}

func TestParseJSON(t *testing.T) {
	payload := `
	{"你好": {"pinyin": "nǐ hǎo", "definitions": ["hello"]},
	 "空": {"pinyin": "kōng", "definitions": []}}`
	dict, err := Parse(strings.NewReader(payload))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if dict.Len() != 2 {
		t.Fatalf("Len = %d", dict.Len())
	}
	entry, ok := dict.Lookup(" 你好 ")
	if !ok || entry.Definitions[0] != "hello" {
		t.Fatalf("unexpected lookup %+v %v", entry, ok)
	}
	if _, ok := dict.Lookup("空"); ok {
		t.Fatal("empty definitions should miss")
	}
}

func TestParseJSONInvalid(t *testing.T) {
	_, err := Parse(strings.NewReader(`{"broken":`))
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestNilDictionaryMisses(t *testing.T) {
	var dict *Dictionary
	if _, ok := dict.Lookup("你"); ok {
		t.Fatal("nil dictionary should miss")
	}
}

func TestLazyLoadsOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cedict.u8")
	if err := os.WriteFile(path, []byte(sampleCEDICT), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	lazy := NewLazy(path, nil)
	if _, ok := lazy.Lookup("你好"); !ok {
		t.Fatal("expected hit")
	}
	if err := os.Remove(path); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok := lazy.Lookup("学习"); !ok {
		t.Fatal("expected cached dictionary after file removal")
	}
}

func TestLazyMissingFile(t *testing.T) {
	lazy := NewLazy(filepath.Join(t.TempDir(), "missing.json"), nil)
	if _, ok := lazy.Lookup("你好"); ok {
		t.Fatal("expected miss")
	}
	if !errors.Is(lazy.Err(), services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", lazy.Err())
	}
}
