// Package phonetic renders tone-marked pinyin for Han text.
package phonetic

import (
	"strings"

	"github.com/mozillazg/go-pinyin"

	"captionminer/internal/textutil"
)

// Pinyin returns space-separated tone-marked pinyin for the Han characters in
// text. Non-Han runes are skipped. The conversion is best-effort: text
// without Han characters, or a conversion failure, yields "".
func Pinyin(text string) (out string) {
	if !textutil.ContainsHan(text) {
		return ""
	}
	defer func() {
		if recover() != nil {
			out = ""
		}
	}()
	args := pinyin.NewArgs()
	args.Style = pinyin.Tone
	syllables := make([]string, 0, textutil.RuneLen(text))
	for _, readings := range pinyin.Pinyin(text, args) {
		if len(readings) == 0 || readings[0] == "" {
			continue
		}
		syllables = append(syllables, readings[0])
	}
	return strings.Join(syllables, " ")
}
