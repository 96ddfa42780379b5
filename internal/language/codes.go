package language

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"healthbot/internal/domain"
)

// Normalize reduces a BCP 47 tag such as "hi-IN" or "zh-Hant" to its base
// language code. Unparseable input falls back to English.
func Normalize(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return domain.DefaultLanguage
	}
	tag, err := language.Parse(code)
	if err != nil {
		return domain.DefaultLanguage
	}
	base, _ := tag.Base()
	return base.String()
}

// Name returns the English name of a language code, e.g. "hi" -> "Hindi".
func Name(code string) string {
	tag, err := language.Parse(Normalize(code))
	if err != nil {
		return "English"
	}
	if name := display.English.Languages().Name(tag); name != "" {
		return name
	}
	return code
}

// FromName resolves a language given either as a code ("hi", "hi-IN") or an
// English name ("hindi", "Hindi") against candidates. The second result is
// false when nothing in candidates matches.
func FromName(value string, candidates []string) (string, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	parsed := ""
	if tag, err := language.Parse(value); err == nil {
		base, _ := tag.Base()
		parsed = base.String()
	}
	for _, c := range candidates {
		code := Normalize(c)
		if parsed == code || strings.EqualFold(value, Name(code)) {
			return code, true
		}
	}
	return "", false
}
