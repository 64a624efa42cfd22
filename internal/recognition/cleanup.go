package recognition

import (
	"regexp"
	"strings"
	"unicode"
)

// Vision models tend to wrap the answer in a sentence ("the text reads: ...").
// The separator after the colon is often U+3000 or U+00A0, which RE2's \s
// does not match.
var chattyPrefixes = []*regexp.Regexp{
	regexp.MustCompile(`^识别结果[：:]?[\s\p{Z}\x{FEFF}]*`),
	regexp.MustCompile(`^图片中的文字(是|为)?[：:]?[\s\p{Z}\x{FEFF}]*`),
	regexp.MustCompile(`^图中(的)?文字(是|为)?[：:]?[\s\p{Z}\x{FEFF}]*`),
	regexp.MustCompile(`^图中写着[：:]?[\s\p{Z}\x{FEFF}]*`),
	regexp.MustCompile(`^图里的字(是|为)?[：:]?[\s\p{Z}\x{FEFF}]*`),
	regexp.MustCompile(`^内容(是|为)?[：:]?[\s\p{Z}\x{FEFF}]*`),
	regexp.MustCompile(`^文字内容(是|为)?[：:]?[\s\p{Z}\x{FEFF}]*`),
	regexp.MustCompile(`^显示(了|着)?[：:]?[\s\p{Z}\x{FEFF}]*`),
}

var (
	wrappingQuotes  = regexp.MustCompile(`^["'“]+|["'”]+$`)
	dateTrailingDot = regexp.MustCompile(`\d+\.$`)
	digitsAndDots   = regexp.MustCompile(`^[\d\s\p{Z}\x{FEFF}.]+$`)
	whitespace      = regexp.MustCompile(`[\s\p{Z}\x{FEFF}]+`)
)

const dataURIPrefix = "base64,"

// CleanLabel normalises a model answer into a bare name or date: chatty
// prefixes and wrapping quotes go, a trailing full stop goes unless it ends a
// date such as "2022.5.19.", and spaces inside a digits-and-dots answer are
// collapsed ("2022 . 5 . 19" -> "2022.5.19").
func CleanLabel(text string) string {
	cleaned := strings.TrimFunc(text, isSpace)

	for _, prefix := range chattyPrefixes {
		cleaned = prefix.ReplaceAllString(cleaned, "")
	}

	cleaned = wrappingQuotes.ReplaceAllString(cleaned, "")

	cleaned = strings.TrimSuffix(cleaned, "。")
	if strings.HasSuffix(cleaned, ".") && !dateTrailingDot.MatchString(cleaned) {
		cleaned = strings.TrimSuffix(cleaned, ".")
	}

	if digitsAndDots.MatchString(cleaned) {
		cleaned = whitespace.ReplaceAllString(cleaned, "")
	}

	return cleaned
}

func isSpace(r rune) bool {
	return unicode.IsSpace(r) || unicode.Is(unicode.Zs, r) || r == '\uFEFF'
}

// StripDataURIPrefix drops a leading "data:<mime>;base64," if present
func StripDataURIPrefix(payload string) string {
	if !strings.HasPrefix(payload, "data:") {
		return payload
	}
	if i := strings.Index(payload, dataURIPrefix); i >= 0 {
		return payload[i+len(dataURIPrefix):]
	}
	return payload
}
