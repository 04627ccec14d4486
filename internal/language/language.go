package language

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// words maps English language names that BCP 47 parsing does not accept.
var words = map[string]string{
	"chinese":    "zh",
	"mandarin":   "zh",
	"cantonese":  "yue",
	"english":    "en",
	"japanese":   "ja",
	"korean":     "ko",
	"spanish":    "es",
	"french":     "fr",
	"german":     "de",
	"vietnamese": "vi",
}

func parse(code string) (language.Tag, bool) {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return language.Und, false
	}
	if mapped, ok := words[code]; ok {
		code = mapped
	}
	tag, err := language.Parse(code)
	if err != nil || tag == language.Und {
		return language.Und, false
	}
	return tag, true
}

// ToISO2 converts a language code, BCP 47 tag, or English name to its base
// language code: ISO 639-1 where one exists ("zho", "zh-Hans" and "chinese"
// all yield "zh"). Unrecognized input yields "".
func ToISO2(code string) string {
	tag, ok := parse(code)
	if !ok {
		return ""
	}
	base, _ := tag.Base()
	return base.String()
}

// ToISO3 converts a recognized code to ISO 639-2/T. Unrecognized input
// yields "und".
func ToISO3(code string) string {
	tag, ok := parse(code)
	if !ok {
		return "und"
	}
	base, _ := tag.Base()
	return base.ISO3()
}

// DisplayName returns the English name of a language code. It returns
// "Unknown" for empty input and the upper-cased input when unrecognized.
func DisplayName(code string) string {
	if strings.TrimSpace(code) == "" {
		return "Unknown"
	}
	tag, ok := parse(code)
	if !ok {
		return strings.ToUpper(strings.TrimSpace(code))
	}
	base, _ := tag.Base()
	if name := display.English.Languages().Name(base); name != "" {
		return name
	}
	return strings.ToUpper(strings.TrimSpace(code))
}
