package buddy

import (
	"strings"

	"go.uber.org/zap"
)

// LogEntry is one row of a historical chat log.
type LogEntry struct {
	UserMessage     string `json:"user_message"`
	Emotion         string `json:"emotion"`
	Intent          string `json:"intent"`
	ChatbotResponse string `json:"chatbot_response"`
}

type emotionWeights struct {
	mood   float64
	stress float64
}

// emotionTable maps annotated emotion labels onto the scorer's ranges.
var emotionTable = map[string]emotionWeights{
	"joy":            {0.8, 0.1},
	"happy":          {0.8, 0.1},
	"happiness":      {0.8, 0.1},
	"excitement":     {0.7, 0.2},
	"excited":        {0.7, 0.2},
	"love":           {0.7, 0.1},
	"gratitude":      {0.7, 0.1},
	"grateful":       {0.7, 0.1},
	"optimism":       {0.6, 0.15},
	"hopeful":        {0.5, 0.2},
	"relief":         {0.5, 0.2},
	"pride":          {0.6, 0.1},
	"calm":           {0.4, 0.05},
	"content":        {0.4, 0.1},
	"surprise":       {0.1, 0.3},
	"neutral":        {0, 0.2},
	"confusion":      {-0.2, 0.4},
	"curiosity":      {0.2, 0.15},
	"boredom":        {-0.2, 0.15},
	"disappointment": {-0.5, 0.4},
	"embarrassment":  {-0.4, 0.5},
	"shame":          {-0.6, 0.5},
	"guilt":          {-0.5, 0.5},
	"remorse":        {-0.5, 0.45},
	"sadness":        {-0.7, 0.4},
	"sad":            {-0.7, 0.4},
	"grief":          {-0.8, 0.5},
	"loneliness":     {-0.6, 0.4},
	"lonely":         {-0.6, 0.4},
	"annoyance":      {-0.3, 0.4},
	"frustration":    {-0.5, 0.6},
	"anger":          {-0.6, 0.6},
	"angry":          {-0.6, 0.6},
	"disgust":        {-0.5, 0.4},
	"nervousness":    {-0.4, 0.65},
	"nervous":        {-0.4, 0.65},
	"fear":           {-0.6, 0.75},
	"scared":         {-0.6, 0.75},
	"anxiety":        {-0.5, 0.8},
	"anxious":        {-0.5, 0.8},
	"stress":         {-0.4, 0.85},
	"stressed":       {-0.4, 0.85},
	"overwhelmed":    {-0.6, 0.9},
	"hopelessness":   {-0.9, 0.7},
	"despair":        {-0.9, 0.8},
}

// MapEmotionToScore converts an annotated emotion into a mood sample. Unknown emotions map to a
// neutral sample marked as fallback.
func MapEmotionToScore(emotion string) MoodSample {
	w, ok := emotionTable[normalizeIntent(emotion)]
	if !ok {
		return MoodSample{Label: MoodNeutral, Score: 0, Source: SourceFallback}
	}
	return MoodSample{Label: MoodLabelFor(w.mood), Score: w.mood, Source: SourceManual}
}

// MapEmotionToStress is the stress counterpart of MapEmotionToScore.
func MapEmotionToStress(emotion string) StressSample {
	w, ok := emotionTable[normalizeIntent(emotion)]
	if !ok {
		return StressSample{Score: 0, Source: SourceFallback}
	}
	return StressSample{Score: w.stress, Source: SourceManual}
}

// MapIntentToTopic resolves an external intent label to a topic id. Topic ids match directly;
// otherwise the template intent aliases are consulted. Unknown intents resolve to the default topic.
func (s *TemplateStore) MapIntentToTopic(intent string) string {
	id, _ := s.lookupIntent(intent)
	return id
}

func (s *TemplateStore) lookupIntent(intent string) (string, bool) {
	key := normalizeIntent(intent)
	if key == "" {
		return s.pack.DefaultTopic, false
	}
	if _, ok := s.topics[key]; ok {
		return key, true
	}
	if id, ok := s.intents[key]; ok {
		return id, true
	}
	return s.pack.DefaultTopic, false
}

func normalizeIntent(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer(" ", "_", "-", "_", "/", "_").Replace(s)
	return strings.Trim(s, "_")
}

// ReplayStats summarizes a log replay.
type ReplayStats struct {
	Entries          int `json:"entries"`
	UserTurns        int `json:"user_turns"`
	AssistantTurns   int `json:"assistant_turns"`
	UnmappedEmotions int `json:"unmapped_emotions"`
	UnmappedIntents  int `json:"unmapped_intents"`
	CrisisEvents     int `json:"crisis_events"`
}

// Replay seeds a session from historical log entries. Each entry contributes a user turn, a mood
// and stress sample from its emotion annotation, and an assistant turn tagged with the mapped
// topic. User messages still pass through the crisis detector so crisis analytics stay complete.
// Unmappable fields fall back to default categories; replay never fails.
func (e *Engine) Replay(s *Session, entries []LogEntry) ReplayStats {
	var st ReplayStats
	for _, ent := range entries {
		e.ReplayEntry(s, ent, &st)
	}
	e.log.Info("replay complete",
		zap.String("session", s.ID()),
		zap.Int("entries", st.Entries),
		zap.Int("unmapped_emotions", st.UnmappedEmotions),
		zap.Int("unmapped_intents", st.UnmappedIntents),
		zap.Int("crisis_events", st.CrisisEvents))
	return st
}

// ReplayEntry applies one log entry to s and adds its counts to st. It is the streaming form of Replay.
func (e *Engine) ReplayEntry(s *Session, ent LogEntry, st *ReplayStats) {
	st.Entries++

	if msg := strings.TrimSpace(ent.UserMessage); msg != "" {
		turn := s.RecordUserTurn(msg)
		st.UserTurns++
		if _, ok := e.detector.Inspect(s, turn); ok {
			st.CrisisEvents++
		}

		mood := MapEmotionToScore(ent.Emotion)
		stress := MapEmotionToStress(ent.Emotion)
		if mood.Source == SourceFallback {
			st.UnmappedEmotions++
		}
		mood.Timestamp = turn.Timestamp
		stress.Timestamp = turn.Timestamp
		s.RecordMood(mood)
		s.RecordStress(stress)
	}

	topic, ok := e.store.lookupIntent(ent.Intent)
	if !ok {
		st.UnmappedIntents++
	}
	if resp := strings.TrimSpace(ent.ChatbotResponse); resp != "" {
		s.RecordAssistantTurn(resp, topic)
		st.AssistantTurns++
	}
}
