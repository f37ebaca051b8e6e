package buddy

import "strings"

// universalResource is the last-resort crisis resource when neither the locale nor the crisis
// template carries one.
const universalResource = "If you are in immediate danger, please contact your local emergency services now, or reach out to someone you trust."

// CrisisDetector is the highest-priority pass over user input. Patterns are checked in template
// order and the first match wins. It does not depend on the scorer.
type CrisisDetector struct {
	store    *TemplateStore
	patterns []string
}

func NewCrisisDetector(store *TemplateStore) *CrisisDetector {
	return &CrisisDetector{store: store, patterns: store.Crisis().Patterns}
}

// Match returns the first crisis pattern found in text. Unlike topic patterns, crisis patterns
// are plain substrings: "overdos*" fires on "overdosed" and "death" on "deaths". A trailing '*'
// is accepted and ignored.
func (d *CrisisDetector) Match(text string) (string, bool) {
	norm := normalizeText(text)
	if norm == "" {
		return "", false
	}
	for _, p := range d.patterns {
		if needle := strings.TrimSuffix(p, "*"); needle != "" && strings.Contains(norm, needle) {
			return p, true
		}
	}
	return "", false
}

// Resource returns the crisis resource text for locale, falling back to the default-language
// resource and then to the universal resource. It never returns an empty string.
func (d *CrisisDetector) Resource(locale string) string {
	t := d.store.Crisis()
	if locale != "" && locale != d.store.DefaultLocale() {
		if lt, ok := t.Localized[locale]; ok {
			if r := strings.TrimSpace(lt.Resource); r != "" {
				return r
			}
		}
	}
	if r := strings.TrimSpace(t.Resource); r != "" {
		return r
	}
	return d.store.UniversalResource()
}

// Inspect checks a recorded user turn and, on a match, appends a CrisisEvent to the session.
func (d *CrisisDetector) Inspect(s *Session, turn Turn) (CrisisEvent, bool) {
	p, ok := d.Match(turn.Text)
	if !ok {
		return CrisisEvent{}, false
	}
	return s.RecordCrisis(turn, p, d.Resource(s.Locale())), true
}
