// Package langdetect detects the language of a transcript so replies can
// be given in the same language.
package langdetect

import (
	"strings"
	"sync"

	"github.com/pemistahl/lingua-go"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Auto is returned when the language cannot be determined.
const Auto = "auto"

var (
	once     sync.Once
	detector lingua.LanguageDetector
)

func getDetector() lingua.LanguageDetector {
	once.Do(func() {
		detector = lingua.NewLanguageDetectorBuilder().
			FromAllLanguages().
			Build()
	})
	return detector
}

// Detect returns the ISO 639-1 code and English name of the language of
// text, or Auto and an empty name when unknown.
func Detect(text string) (code, name string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Auto, ""
	}

	lang, ok := getDetector().DetectLanguageOf(text)
	if !ok {
		return Auto, ""
	}
	code = strings.ToLower(lang.IsoCode639_1().String())
	if code == "" {
		return Auto, ""
	}
	return code, Name(code)
}

// Name returns the English display name for a language code, or the code
// itself when it is not recognised.
func Name(code string) string {
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	if n := display.English.Languages().Name(tag); n != "" {
		return n
	}
	return code
}

// ReplyHint returns a system prompt line asking for a reply in the
// language of text, or "" when it is unknown.
func ReplyHint(text string) string {
	code, name := Detect(text)
	if code == Auto {
		return ""
	}
	return "Reply in " + name + " unless the user asks otherwise."
}
