package buddy

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// normalizeText lowercases, folds typographic apostrophes and collapses whitespace.
func normalizeText(s string) string {
	s = strings.ToLower(s)
	s = strings.NewReplacer("’", "'", "‘", "'", "`", "'").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// matchPattern reports whether a normalized pattern occurs in normalized text.
//
// Patterns match on word boundaries, so "hi" does not fire on "this". A trailing '*' turns the
// pattern into a prefix match ("stress*" covers "stressed" and "stressful"). Boundaries are only
// enforced next to word characters of the pattern itself, so "can't go on" still matches inside
// "i can't go on anymore".
func matchPattern(text, pattern string) bool {
	prefix := strings.HasSuffix(pattern, "*")
	if prefix {
		pattern = strings.TrimSuffix(pattern, "*")
	}
	if pattern == "" {
		return false
	}
	first, _ := utf8.DecodeRuneInString(pattern)
	last, _ := utf8.DecodeLastRuneInString(pattern)

	from := 0
	for from <= len(text)-len(pattern) {
		i := strings.Index(text[from:], pattern)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(pattern)
		leftOK := !isWordRune(first) || start == 0 || !isWordRune(lastRuneBefore(text, start))
		rightOK := prefix || !isWordRune(last) || end == len(text) || !isWordRune(firstRuneAt(text, end))
		if leftOK && rightOK {
			return true
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		from = start + size
	}
	return false
}

// patternWeight is the number of words in a pattern; longer phrases are stronger evidence.
func patternWeight(pattern string) int {
	n := len(strings.Fields(strings.TrimSuffix(pattern, "*")))
	if n == 0 {
		return 1
	}
	return n
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

func lastRuneBefore(s string, i int) rune {
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return r
}

func firstRuneAt(s string, i int) rune {
	r, _ := utf8.DecodeRuneInString(s[i:])
	return r
}

// tokenize splits normalized text into lowercase word tokens; apostrophes stay inside words.
func tokenize(s string) []string {
	var out []string
	var b strings.Builder
	flush := func() {
		if b.Len() == 0 {
			return
		}
		if tok := strings.Trim(b.String(), "'"); tok != "" {
			out = append(out, tok)
		}
		b.Reset()
	}
	for _, r := range normalizeText(s) {
		if isWordRune(r) || r == '\'' {
			b.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return out
}

func hasSignal(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
