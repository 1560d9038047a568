package language

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	xlanguage "golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// ErrUnknownLanguage reports a hint that is neither a language tag nor a
// known English language name.
var ErrUnknownLanguage = errors.New("unknown language")

// named are the languages also accepted by English name ("french").
var named = []xlanguage.Base{
	xlanguage.MustParseBase("en"), xlanguage.MustParseBase("es"), xlanguage.MustParseBase("fr"),
	xlanguage.MustParseBase("de"), xlanguage.MustParseBase("it"), xlanguage.MustParseBase("pt"),
	xlanguage.MustParseBase("ja"), xlanguage.MustParseBase("ko"), xlanguage.MustParseBase("zh"),
	xlanguage.MustParseBase("ru"), xlanguage.MustParseBase("ar"), xlanguage.MustParseBase("hi"),
	xlanguage.MustParseBase("nl"), xlanguage.MustParseBase("pl"), xlanguage.MustParseBase("sv"),
	xlanguage.MustParseBase("da"), xlanguage.MustParseBase("no"), xlanguage.MustParseBase("fi"),
}

var (
	byNameOnce sync.Once
	byName     map[string]string
)

func nameIndex() map[string]string {
	byNameOnce.Do(func() {
		namer := display.English.Languages()
		byName = make(map[string]string, len(named))
		for _, base := range named {
			byName[strings.ToLower(namer.Name(base))] = base.String()
		}
	})
	return byName
}

// Hint normalizes a transcription language hint to the two-letter ISO 639-1
// code transcription endpoints expect, falling back to ISO 639-3 when a
// language has no two-letter code. It accepts ISO 639 codes, BCP 47 tags
// ("fr-CA") and English names. Empty input and "und" yield "".
func Hint(value string) (string, error) {
	trimmed := strings.ToLower(strings.TrimSpace(value))
	if trimmed == "" {
		return "", nil
	}
	if code, ok := nameIndex()[trimmed]; ok {
		return code, nil
	}
	tag, err := xlanguage.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrUnknownLanguage, value)
	}
	base, _ := tag.Base()
	if base.String() == "und" {
		return "", nil
	}
	return base.String(), nil
}

// DisplayName returns the English name for a language code. It returns
// "Unknown" for empty input and the uppercased code when it cannot be parsed.
func DisplayName(code string) string {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return "Unknown"
	}
	base, err := xlanguage.ParseBase(strings.ToLower(trimmed))
	if err != nil {
		return strings.ToUpper(trimmed)
	}
	if name := display.English.Languages().Name(base); name != "" {
		return name
	}
	return strings.ToUpper(trimmed)
}
