package stt

import (
	"strings"

	"golang.org/x/text/language"
)

// BaseLanguage reduces a locale such as "en-US" or "zh_Hant_TW" to its
// ISO 639-1 base ("en", "zh"). Empty and "auto" return "".
func BaseLanguage(locale string) string {
	if locale == "" || strings.EqualFold(locale, "auto") {
		return ""
	}
	tag, err := language.Parse(strings.ReplaceAll(locale, "_", "-"))
	if err != nil {
		return ""
	}
	base, _ := tag.Base()
	return base.String()
}

// Locale expands a language code to a full locale using the most likely
// region ("en" -> "en-US", "ja" -> "ja-JP"). Full locales are normalised.
func Locale(lang string) string {
	if lang == "" || strings.EqualFold(lang, "auto") {
		return "en-US"
	}
	tag, err := language.Parse(strings.ReplaceAll(lang, "_", "-"))
	if err != nil {
		return lang
	}
	base, _ := tag.Base()
	region, _ := tag.Region()
	return base.String() + "-" + region.String()
}
