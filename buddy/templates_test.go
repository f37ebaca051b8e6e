package buddy

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

func minimalPack() TemplatePack {
	return TemplatePack{
		Topics: []Template{
			{TopicID: "crisis", Patterns: []string{"kill myself"}, Responses: []string{"Please reach out."}, Resource: "Call 199."},
			{TopicID: "greetings", Patterns: []string{"hi"}, Responses: []string{"Hello!"}},
			{TopicID: "support", Responses: []string{"I'm here."}},
		},
	}
}

func TestDefaultTemplates_Loads(t *testing.T) {
	t.Parallel()

	s := DefaultTemplates()
	want := []string{"crisis", "greetings", "academic_stress", "anxiety", "loneliness", "spiritual", "time_management", "financial_stress", "support"}
	if got := s.Topics(); !slices.Equal(got, want) {
		t.Fatalf("Topics()=%v, want %v", got, want)
	}
	if s.DefaultTopic() != "support" || s.CrisisTopic() != "crisis" || s.DefaultLocale() != "en" {
		t.Fatalf("default=%q crisis=%q locale=%q", s.DefaultTopic(), s.CrisisTopic(), s.DefaultLocale())
	}
	if len(s.QuickPrompts()) != 6 {
		t.Fatalf("QuickPrompts()=%d, want 6", len(s.QuickPrompts()))
	}
	if s.Crisis().Resource == "" {
		t.Fatalf("crisis resource is empty")
	}
	for _, id := range s.Topics() {
		tpl, _ := s.Lookup(id)
		if len(tpl.Responses) == 0 {
			t.Fatalf("topic %q has no responses", id)
		}
	}
}

func TestNewTemplateStore_Defaults(t *testing.T) {
	t.Parallel()

	s, err := NewTemplateStore(minimalPack())
	if err != nil {
		t.Fatalf("NewTemplateStore: %v", err)
	}
	if s.DefaultTopic() != "support" || s.CrisisTopic() != "crisis" || s.DefaultLocale() != "en" {
		t.Fatalf("defaults not applied")
	}
	if s.UniversalResource() != universalResource {
		t.Fatalf("UniversalResource()=%q", s.UniversalResource())
	}
}

func TestNewTemplateStore_Validation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*TemplatePack)
		topic  string
	}{
		{"no topics", func(p *TemplatePack) { p.Topics = nil }, ""},
		{"empty id", func(p *TemplatePack) { p.Topics[1].TopicID = "  " }, ""},
		{"duplicate id", func(p *TemplatePack) { p.Topics[1].TopicID = "crisis" }, "crisis"},
		{"zero patterns", func(p *TemplatePack) { p.Topics[1].Patterns = nil }, "greetings"},
		{"blank pattern", func(p *TemplatePack) { p.Topics[1].Patterns = []string{"hi", " "} }, "greetings"},
		{"zero responses", func(p *TemplatePack) { p.Topics[1].Responses = []string{""} }, "greetings"},
		{"missing crisis", func(p *TemplatePack) { p.CrisisTopic = "emergency" }, "emergency"},
		{"missing default", func(p *TemplatePack) {
			p.DefaultTopic = "fallback"
			p.Topics[2].Patterns = []string{"help"}
		}, "fallback"},
		{"crisis is default", func(p *TemplatePack) { p.DefaultTopic = "crisis" }, ""},
		{"empty localized pool", func(p *TemplatePack) {
			p.Topics[1].Localized = map[string]LocalizedTemplate{"fr": {FollowUps: []string{"Et toi ?"}}}
		}, "greetings"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p := minimalPack()
			tc.mutate(&p)
			_, err := NewTemplateStore(p)
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("err=%v, want *ConfigError", err)
			}
			if tc.topic != "" && cfgErr.Topic != tc.topic {
				t.Fatalf("Topic=%q, want %q", cfgErr.Topic, tc.topic)
			}
		})
	}
}

func TestNewTemplateStore_DefaultTopicNeedsNoPatterns(t *testing.T) {
	t.Parallel()

	p := minimalPack()
	p.Topics[2].Patterns = nil
	s, err := NewTemplateStore(p)
	if err != nil {
		t.Fatalf("NewTemplateStore: %v", err)
	}
	if got, _ := s.Lookup(s.DefaultTopic()); len(got.Patterns) != 0 {
		t.Fatalf("Patterns=%q, want none", got.Patterns)
	}

	// The exemption follows the default topic, not the topic id.
	p = minimalPack()
	p.DefaultTopic = "greetings"
	p.Topics[2].Patterns = nil
	_, err = NewTemplateStore(p)
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Topic != "support" {
		t.Fatalf("err=%v, want *ConfigError for support", err)
	}
}

func TestNewTemplateStore_DoesNotAliasCaller(t *testing.T) {
	t.Parallel()

	p := minimalPack()
	p.Topics[1].Localized = map[string]LocalizedTemplate{"fr": {Responses: []string{"Salut !", " "}}}
	s, err := NewTemplateStore(p)
	if err != nil {
		t.Fatalf("NewTemplateStore: %v", err)
	}
	if got := p.Topics[1].Localized["fr"].Responses; len(got) != 2 {
		t.Fatalf("caller pack mutated: %q", got)
	}

	tpl, _ := s.Lookup("greetings")
	tpl.Responses[0] = "changed"
	tpl.Localized["fr"] = LocalizedTemplate{}
	again, _ := s.Lookup("greetings")
	if again.Responses[0] != "Hello!" || len(again.Localized["fr"].Responses) != 1 {
		t.Fatalf("store mutated through Lookup: %+v", again)
	}
}

func TestLoadTemplates_RejectsUnknownFields(t *testing.T) {
	t.Parallel()

	_, err := LoadTemplates(strings.NewReader("topics:\n  - id: crisis\n    pattern: [x]\n"))
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("err=%v, want *ConfigError", err)
	}
}

func TestLoadTemplatesFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "pack.yaml")
	yml := `default_topic: general
crisis_topic: urgent
topics:
  - id: urgent
    patterns: ["want to die"]
    responses: ["Please call someone now."]
  - id: general
    responses: ["Tell me more."]
`
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	s, err := LoadTemplatesFile(path)
	if err != nil {
		t.Fatalf("LoadTemplatesFile: %v", err)
	}
	if s.DefaultTopic() != "general" || s.CrisisTopic() != "urgent" {
		t.Fatalf("default=%q crisis=%q", s.DefaultTopic(), s.CrisisTopic())
	}

	if _, err := LoadTemplatesFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestPackStrings_LocaleFallback(t *testing.T) {
	t.Parallel()

	s := DefaultTemplates()
	en := s.Welcome("")
	if en == "" {
		t.Fatalf("empty welcome")
	}
	if fr := s.Welcome("fr"); fr == en || !strings.HasPrefix(fr, "Bonjour") {
		t.Fatalf("Welcome(fr)=%q", fr)
	}
	if de := s.Welcome("de"); de != en {
		t.Fatalf("Welcome(de)=%q, want default", de)
	}
	if s.HelpNow("de") != s.HelpNow("en") {
		t.Fatalf("HelpNow did not fall back")
	}
}
