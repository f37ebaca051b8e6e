package buddy

import (
	"strings"
	"testing"
	"time"
)

func TestCrisisDetector_Match(t *testing.T) {
	t.Parallel()

	d := NewCrisisDetector(DefaultTemplates())
	cases := []struct {
		in      string
		pattern string
		ok      bool
	}{
		{"I want to kill myself", "kill myself", true},
		{"I WANT TO DIE and kill myself", "kill myself", true},
		{"thinking about suicide", "suicid*", true},
		{"I just can’t go on", "can't go on", true},
		{"I overdosed on my pills last night", "overdos*", true},
		{"I've been thinking about overdosing", "overdos*", true},
		{"I keep self-harming when it gets bad", "self-harm", true},
		{"I think about deaths in my family", "death", true},
		{"these skills are hard", "kill*", true},
		{"hello", "", false},
	}
	for _, tc := range cases {
		p, ok := d.Match(tc.in)
		if ok != tc.ok || p != tc.pattern {
			t.Fatalf("Match(%q)=(%q,%v), want (%q,%v)", tc.in, p, ok, tc.pattern, tc.ok)
		}
	}
}

func TestCrisisDetector_ResourceFallback(t *testing.T) {
	t.Parallel()

	store := DefaultTemplates()
	d := NewCrisisDetector(store)
	en := d.Resource("")
	if en != store.Crisis().Resource {
		t.Fatalf("Resource(\"\")=%q", en)
	}
	if fr := d.Resource("fr"); fr == en || !strings.Contains(fr, "Ressources") {
		t.Fatalf("Resource(fr)=%q", fr)
	}
	if de := d.Resource("de"); de != en {
		t.Fatalf("Resource(de)=%q, want default", de)
	}

	bare, err := NewTemplateStore(TemplatePack{Topics: []Template{
		{TopicID: "crisis", Patterns: []string{"want to die"}, Responses: []string{"r"}},
		{TopicID: "support", Responses: []string{"r"}},
	}})
	if err != nil {
		t.Fatalf("NewTemplateStore: %v", err)
	}
	if got := NewCrisisDetector(bare).Resource("fr"); got != universalResource {
		t.Fatalf("Resource=%q, want universal", got)
	}
}

func TestCrisisDetector_InspectRecordsEvent(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewSession(SessionOptions{Now: func() time.Time { return now }})
	d := NewCrisisDetector(DefaultTemplates())

	if _, ok := d.Inspect(s, s.RecordUserTurn("hello")); ok {
		t.Fatalf("unexpected crisis")
	}
	turn := s.RecordUserTurn("I want to end my life")
	ev, ok := d.Inspect(s, turn)
	if !ok {
		t.Fatalf("expected crisis")
	}
	if ev.TurnSeq != turn.Seq || !ev.Timestamp.Equal(turn.Timestamp) || ev.MatchedPattern != "end my life" {
		t.Fatalf("event=%+v turn=%+v", ev, turn)
	}
	if ev.ResourceShown == "" {
		t.Fatalf("empty resource")
	}
	if got := s.CrisisEvents(); len(got) != 1 {
		t.Fatalf("events=%d, want 1", len(got))
	}
}
