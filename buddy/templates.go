package buddy

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed templates/default.yaml
var defaultPackYAML []byte

// Template is one support topic: what it matches and what it answers with.
type Template struct {
	TopicID   string   `yaml:"id" json:"topic_id"`
	Patterns  []string `yaml:"patterns" json:"patterns"`
	Responses []string `yaml:"responses" json:"responses"`
	FollowUps []string `yaml:"follow_ups,omitempty" json:"follow_ups,omitempty"`

	// Tip is a fixed line appended after the response (e.g. a breathing exercise).
	Tip string `yaml:"tip,omitempty" json:"tip,omitempty"`

	// Closing replaces the follow-up for topics that must not ask open questions (crisis).
	Closing string `yaml:"closing,omitempty" json:"closing,omitempty"`

	// Resource is support contact text surfaced alongside the response.
	Resource string `yaml:"resource,omitempty" json:"resource,omitempty"`

	// Intents are external intent labels that map onto this topic during log ingestion.
	Intents []string `yaml:"intents,omitempty" json:"intents,omitempty"`

	Localized map[string]LocalizedTemplate `yaml:"localized,omitempty" json:"localized,omitempty"`
}

// LocalizedTemplate is an alternate-language pool for the same topic id.
type LocalizedTemplate struct {
	Responses []string `yaml:"responses,omitempty" json:"responses,omitempty"`
	FollowUps []string `yaml:"follow_ups,omitempty" json:"follow_ups,omitempty"`
	Tip       string   `yaml:"tip,omitempty" json:"tip,omitempty"`
	Closing   string   `yaml:"closing,omitempty" json:"closing,omitempty"`
	Resource  string   `yaml:"resource,omitempty" json:"resource,omitempty"`
}

// PackStrings are session-level lines that are not tied to a topic.
type PackStrings struct {
	Welcome string `yaml:"welcome,omitempty" json:"welcome,omitempty"`
	CheckIn string `yaml:"check_in,omitempty" json:"check_in,omitempty"`
	HelpNow string `yaml:"help_now,omitempty" json:"help_now,omitempty"`
}

// QuickPrompt is a canned user message offered by the presentation layer as a shortcut.
type QuickPrompt struct {
	Label   string `yaml:"label" json:"label"`
	Message string `yaml:"message" json:"message"`
}

// TemplatePack is the on-disk (YAML) shape of a template store.
type TemplatePack struct {
	DefaultTopic  string `yaml:"default_topic"`
	CrisisTopic   string `yaml:"crisis_topic"`
	DefaultLocale string `yaml:"default_locale"`

	// UniversalResource is shown on the crisis path when no topic or locale resource exists.
	UniversalResource string `yaml:"universal_resource"`

	PackStrings  `yaml:",inline"`
	QuickPrompts []QuickPrompt         `yaml:"quick_prompts,omitempty"`
	Localized    map[string]PackStrings `yaml:"localized,omitempty"`
	Topics       []Template             `yaml:"topics"`
}

// TemplateStore is the validated, read-only view over a TemplatePack.
type TemplateStore struct {
	pack    TemplatePack
	order   []string
	topics  map[string]Template
	intents map[string]string
}

// NewTemplateStore validates the pack and builds a store. Any structural problem is a *ConfigError.
func NewTemplateStore(pack TemplatePack) (*TemplateStore, error) {
	if pack.DefaultTopic == "" {
		pack.DefaultTopic = "support"
	}
	if pack.CrisisTopic == "" {
		pack.CrisisTopic = "crisis"
	}
	if pack.DefaultLocale == "" {
		pack.DefaultLocale = "en"
	}
	if len(pack.Topics) == 0 {
		return nil, &ConfigError{Reason: "no topics"}
	}

	s := &TemplateStore{
		pack:    pack,
		order:   make([]string, 0, len(pack.Topics)),
		topics:  make(map[string]Template, len(pack.Topics)),
		intents: make(map[string]string),
	}
	for _, t := range pack.Topics {
		t.TopicID = strings.TrimSpace(t.TopicID)
		if t.TopicID == "" {
			return nil, &ConfigError{Reason: "topic with empty id"}
		}
		if _, dup := s.topics[t.TopicID]; dup {
			return nil, &ConfigError{Topic: t.TopicID, Reason: "duplicate topic id"}
		}
		patterns := make([]string, 0, len(t.Patterns))
		for _, p := range t.Patterns {
			p = normalizeText(p)
			if p == "" || p == "*" {
				return nil, &ConfigError{Topic: t.TopicID, Reason: "blank pattern"}
			}
			patterns = append(patterns, p)
		}
		t.Patterns = patterns
		// The default topic is only ever reached by a miss, so it may carry no patterns.
		if len(t.Patterns) == 0 && t.TopicID != pack.DefaultTopic {
			return nil, &ConfigError{Topic: t.TopicID, Reason: "zero patterns"}
		}
		if len(nonBlank(t.Responses)) == 0 {
			return nil, &ConfigError{Topic: t.TopicID, Reason: "zero responses"}
		}
		t.Responses = nonBlank(t.Responses)
		t.FollowUps = nonBlank(t.FollowUps)
		localized := make(map[string]LocalizedTemplate, len(t.Localized))
		for locale, lt := range t.Localized {
			if strings.TrimSpace(locale) == "" {
				return nil, &ConfigError{Topic: t.TopicID, Reason: "localized pool with empty locale"}
			}
			if len(nonBlank(lt.Responses)) == 0 {
				return nil, &ConfigError{Topic: t.TopicID, Reason: fmt.Sprintf("locale %q has zero responses", locale)}
			}
			lt.Responses = nonBlank(lt.Responses)
			lt.FollowUps = nonBlank(lt.FollowUps)
			localized[locale] = lt
		}
		t.Localized = localized
		for _, in := range t.Intents {
			if key := normalizeIntent(in); key != "" {
				s.intents[key] = t.TopicID
			}
		}
		s.order = append(s.order, t.TopicID)
		s.topics[t.TopicID] = t
	}

	if _, ok := s.topics[pack.DefaultTopic]; !ok {
		return nil, &ConfigError{Topic: pack.DefaultTopic, Reason: "default topic not defined"}
	}
	if _, ok := s.topics[pack.CrisisTopic]; !ok {
		return nil, &ConfigError{Topic: pack.CrisisTopic, Reason: "crisis topic not defined"}
	}
	if pack.DefaultTopic == pack.CrisisTopic {
		return nil, &ConfigError{Topic: pack.CrisisTopic, Reason: "crisis topic cannot be the default topic"}
	}
	return s, nil
}

// LoadTemplates decodes a YAML template pack and validates it.
func LoadTemplates(r io.Reader) (*TemplateStore, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var pack TemplatePack
	if err := dec.Decode(&pack); err != nil {
		return nil, &ConfigError{Reason: fmt.Sprintf("decode yaml: %v", err)}
	}
	return NewTemplateStore(pack)
}

// LoadTemplatesFile loads a template pack from a YAML file.
func LoadTemplatesFile(path string) (*TemplateStore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open templates: %w", err)
	}
	defer f.Close()
	return LoadTemplates(f)
}

// DefaultTemplates returns the embedded template pack.
func DefaultTemplates() *TemplateStore {
	s, err := LoadTemplates(bytes.NewReader(defaultPackYAML))
	if err != nil {
		panic(err)
	}
	return s
}

// Lookup returns a copy of the template for topicID.
func (s *TemplateStore) Lookup(topicID string) (Template, bool) {
	t, ok := s.topics[topicID]
	if !ok {
		return Template{}, false
	}
	return t.clone(), true
}

// Topics returns topic ids in load order. This order drives classifier tie-breaks.
func (s *TemplateStore) Topics() []string {
	return slices.Clone(s.order)
}

func (s *TemplateStore) DefaultTopic() string  { return s.pack.DefaultTopic }
func (s *TemplateStore) CrisisTopic() string   { return s.pack.CrisisTopic }
func (s *TemplateStore) DefaultLocale() string { return s.pack.DefaultLocale }

// Crisis returns the crisis template. It always exists in a validated store.
func (s *TemplateStore) Crisis() Template {
	return s.topics[s.pack.CrisisTopic].clone()
}

func (s *TemplateStore) QuickPrompts() []QuickPrompt {
	return slices.Clone(s.pack.QuickPrompts)
}

// UniversalResource is the non-localized crisis resource of last resort.
func (s *TemplateStore) UniversalResource() string {
	if r := strings.TrimSpace(s.pack.UniversalResource); r != "" {
		return r
	}
	return universalResource
}

func (s *TemplateStore) Welcome(locale string) string {
	return s.packString(locale, func(p PackStrings) string { return p.Welcome })
}

func (s *TemplateStore) CheckIn(locale string) string {
	return s.packString(locale, func(p PackStrings) string { return p.CheckIn })
}

func (s *TemplateStore) HelpNow(locale string) string {
	return s.packString(locale, func(p PackStrings) string { return p.HelpNow })
}

func (s *TemplateStore) packString(locale string, field func(PackStrings) string) string {
	if locale != "" && locale != s.pack.DefaultLocale {
		if p, ok := s.pack.Localized[locale]; ok {
			if v := strings.TrimSpace(field(p)); v != "" {
				return v
			}
		}
	}
	return strings.TrimSpace(field(s.pack.PackStrings))
}

func (t Template) clone() Template {
	out := t
	out.Patterns = slices.Clone(t.Patterns)
	out.Responses = slices.Clone(t.Responses)
	out.FollowUps = slices.Clone(t.FollowUps)
	out.Intents = slices.Clone(t.Intents)
	if t.Localized != nil {
		out.Localized = make(map[string]LocalizedTemplate, len(t.Localized))
		for k, v := range t.Localized {
			v.Responses = slices.Clone(v.Responses)
			v.FollowUps = slices.Clone(v.FollowUps)
			out.Localized[k] = v
		}
	}
	return out
}

func nonBlank(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
