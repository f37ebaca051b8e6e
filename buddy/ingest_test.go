package buddy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapEmotionToScore(t *testing.T) {
	t.Parallel()

	joy := MapEmotionToScore(" Joy ")
	assert.Equal(t, SourceManual, joy.Source)
	assert.Equal(t, MoodVeryPositive, joy.Label)
	assert.InDelta(t, 0.8, joy.Score, 1e-9)

	sad := MapEmotionToScore("sadness")
	assert.Equal(t, MoodVeryNegative, sad.Label)
	assert.Less(t, sad.Score, 0.0)

	unknown := MapEmotionToScore("ennui")
	assert.Equal(t, SourceFallback, unknown.Source)
	assert.Equal(t, MoodNeutral, unknown.Label)
	assert.Zero(t, unknown.Score)

	for emotion := range emotionTable {
		m := MapEmotionToScore(emotion)
		st := MapEmotionToStress(emotion)
		assert.GreaterOrEqual(t, m.Score, -1.0, emotion)
		assert.LessOrEqual(t, m.Score, 1.0, emotion)
		assert.GreaterOrEqual(t, st.Score, 0.0, emotion)
		assert.LessOrEqual(t, st.Score, 1.0, emotion)
	}
}

func TestMapEmotionToStress(t *testing.T) {
	t.Parallel()

	assert.Greater(t, MapEmotionToStress("anxiety").Score, MapEmotionToStress("calm").Score)
	assert.Equal(t, SourceFallback, MapEmotionToStress("").Source)
}

func TestMapIntentToTopic(t *testing.T) {
	t.Parallel()

	s := DefaultTemplates()
	cases := map[string]string{
		"greetings":         "greetings",
		"Greeting":          "greetings",
		"exam-stress":       "academic_stress",
		"Academic Stress":   "academic_stress",
		"money":             "financial_stress",
		"self harm":         "crisis",
		"procrastination":   "time_management",
		"":                  "support",
		"weather_smalltalk": "support",
	}
	for in, want := range cases {
		assert.Equal(t, want, s.MapIntentToTopic(in), "intent %q", in)
	}
}

func TestReplay(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, nil, EngineOptions{})
	s := NewSession(SessionOptions{})
	entries := []LogEntry{
		{UserMessage: "hello", Emotion: "joy", Intent: "greeting", ChatbotResponse: "Hi!"},
		{UserMessage: "I have so many fees", Emotion: "worry-ish", Intent: "financial", ChatbotResponse: "Let's look at aid."},
		{UserMessage: "I can't go on", Emotion: "despair", Intent: "unknown_label", ChatbotResponse: "Please call 199."},
		{UserMessage: "", Emotion: "", Intent: "support", ChatbotResponse: "I'm here."},
		{UserMessage: "ok", Emotion: "neutral", Intent: "support", ChatbotResponse: ""},
	}

	st := e.Replay(s, entries)
	assert.Equal(t, ReplayStats{
		Entries:          5,
		UserTurns:        4,
		AssistantTurns:   4,
		UnmappedEmotions: 1,
		UnmappedIntents:  1,
		CrisisEvents:     1,
	}, st)

	turns := s.Turns()
	require.Len(t, turns, 8)
	assert.Equal(t, "greetings", turns[1].TopicID)
	assert.Equal(t, "financial_stress", turns[3].TopicID)
	assert.Equal(t, "support", turns[5].TopicID)

	moods := s.Moods()
	require.Len(t, moods, 4)
	assert.Equal(t, SourceFallback, moods[1].Source)
	assert.Equal(t, turns[0].Timestamp, moods[0].Timestamp)
	assert.Len(t, s.Stresses(), 4)

	events := s.CrisisEvents()
	require.Len(t, events, 1)
	assert.Equal(t, turns[4].Seq, events[0].TurnSeq)
}
