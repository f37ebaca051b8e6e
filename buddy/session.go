package buddy

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// Role is the speaker of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Source records where a mood or stress value came from.
type Source string

const (
	SourceScorer   Source = "scorer"
	SourceFallback Source = "fallback"
	SourceManual   Source = "manual"
)

// Turn is one message in the session history. Turns are never mutated once recorded.
type Turn struct {
	Seq       uint64    `json:"seq"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	TopicID   string    `json:"topic_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// MoodSample is one mood reading. Score is in [-1, 1].
type MoodSample struct {
	Timestamp time.Time `json:"timestamp"`
	Label     string    `json:"label"`
	Score     float64   `json:"score"`
	Source    Source    `json:"source"`
}

// StressSample is one stress reading. Score is in [0, 1].
type StressSample struct {
	Timestamp time.Time `json:"timestamp"`
	Score     float64   `json:"score"`
	Source    Source    `json:"source"`
}

// CrisisEvent records one crisis detection. Its Timestamp and TurnSeq identify the user turn
// that triggered it; events outlive pruning of that turn.
type CrisisEvent struct {
	Timestamp      time.Time `json:"timestamp"`
	TurnSeq        uint64    `json:"turn_seq"`
	MatchedPattern string    `json:"matched_pattern"`
	ResourceShown  string    `json:"resource_shown"`
}

// SessionOptions controls a new Session.
type SessionOptions struct {
	// MaxTurns caps retained turn history (0 disables pruning).
	MaxTurns int

	// Locale selects the localized template pool. Empty means the store default.
	Locale string

	// Now overrides the clock (tests).
	Now func() time.Time
}

// Session holds the mutable state of one user's conversation. It assumes a single writer.
type Session struct {
	id       string
	locale   string
	maxTurns int
	now      func() time.Time
	started  time.Time

	nextSeq  uint64
	turns    []Turn
	moods    []MoodSample
	stresses []StressSample
	crises   []CrisisEvent

	// lastUsed maps a variant pool key to the index most recently served from it.
	lastUsed map[string]int
}

func NewSession(opts SessionOptions) *Session {
	s := &Session{
		locale:   opts.Locale,
		maxTurns: opts.MaxTurns,
		now:      opts.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.maxTurns < 0 {
		s.maxTurns = 0
	}
	s.Reset()
	return s
}

// Reset terminates the current session and starts a fresh one with a new id.
func (s *Session) Reset() {
	s.id = uuid.NewString()
	s.started = s.now().UTC()
	s.nextSeq = 1
	s.turns = nil
	s.moods = nil
	s.stresses = nil
	s.crises = nil
	s.lastUsed = make(map[string]int)
}

func (s *Session) ID() string           { return s.id }
func (s *Session) Locale() string       { return s.locale }
func (s *Session) SetLocale(l string)   { s.locale = l }
func (s *Session) MaxTurns() int        { return s.maxTurns }
func (s *Session) StartedAt() time.Time { return s.started }

func (s *Session) RecordUserTurn(text string) Turn {
	return s.appendTurn(RoleUser, text, "")
}

// RecordAssistantTurn appends an assistant turn. topicID is empty for turns not produced by
// classification (welcome, help-now).
func (s *Session) RecordAssistantTurn(text, topicID string) Turn {
	return s.appendTurn(RoleAssistant, text, topicID)
}

func (s *Session) appendTurn(role Role, text, topicID string) Turn {
	t := Turn{
		Seq:       s.nextSeq,
		Role:      role,
		Text:      text,
		TopicID:   topicID,
		Timestamp: s.now().UTC(),
	}
	s.nextSeq++
	s.turns = append(s.turns, t)
	if s.maxTurns > 0 {
		s.Prune(s.maxTurns)
	}
	return t
}

func (s *Session) RecordMood(m MoodSample) {
	if m.Timestamp.IsZero() {
		m.Timestamp = s.now().UTC()
	}
	m.Score = clamp(m.Score, -1, 1)
	s.moods = append(s.moods, m)
}

func (s *Session) RecordStress(st StressSample) {
	if st.Timestamp.IsZero() {
		st.Timestamp = s.now().UTC()
	}
	st.Score = clamp(st.Score, 0, 1)
	s.stresses = append(s.stresses, st)
}

// RecordCrisis appends a crisis event anchored to the user turn that triggered it.
func (s *Session) RecordCrisis(turn Turn, pattern, resource string) CrisisEvent {
	ev := CrisisEvent{
		Timestamp:      turn.Timestamp,
		TurnSeq:        turn.Seq,
		MatchedPattern: pattern,
		ResourceShown:  resource,
	}
	s.crises = append(s.crises, ev)
	return ev
}

// Prune drops the oldest turns until at most maxTurns remain. Samples and crisis events are kept.
func (s *Session) Prune(maxTurns int) int {
	if maxTurns < 0 {
		maxTurns = 0
	}
	drop := len(s.turns) - maxTurns
	if drop <= 0 {
		return 0
	}
	// Copy down so the dropped prefix can be collected.
	s.turns = append(s.turns[:0:0], s.turns[drop:]...)
	return drop
}

func (s *Session) Turns() []Turn               { return slices.Clone(s.turns) }
func (s *Session) Moods() []MoodSample         { return slices.Clone(s.moods) }
func (s *Session) Stresses() []StressSample    { return slices.Clone(s.stresses) }
func (s *Session) CrisisEvents() []CrisisEvent { return slices.Clone(s.crises) }

// RecentTurns returns up to n of the newest turns, oldest first.
func (s *Session) RecentTurns(n int) []Turn {
	if n <= 0 || len(s.turns) == 0 {
		return nil
	}
	if n > len(s.turns) {
		n = len(s.turns)
	}
	return slices.Clone(s.turns[len(s.turns)-n:])
}

func (s *Session) LastMood() (MoodSample, bool) {
	if len(s.moods) == 0 {
		return MoodSample{}, false
	}
	return s.moods[len(s.moods)-1], true
}

func (s *Session) LastStress() (StressSample, bool) {
	if len(s.stresses) == 0 {
		return StressSample{}, false
	}
	return s.stresses[len(s.stresses)-1], true
}

func (s *Session) lastIndex(key string) (int, bool) {
	i, ok := s.lastUsed[key]
	return i, ok
}

func (s *Session) setLastIndex(key string, i int) {
	s.lastUsed[key] = i
}

// SessionStats summarizes a session for analytics views.
type SessionStats struct {
	SessionID     string         `json:"session_id"`
	UserTurns     int            `json:"user_turns"`
	RetainedTurns int            `json:"retained_turns"`
	TotalTurns    uint64         `json:"total_turns"`
	CrisisEvents  int            `json:"crisis_events"`
	TopicCounts   map[string]int `json:"topic_counts"`
	MeanMood      float64        `json:"mean_mood"`
	MeanStress    float64        `json:"mean_stress"`
	MoodSamples   int            `json:"mood_samples"`
	StressSamples int            `json:"stress_samples"`
}

// Stats computes counts over retained turns and all samples.
func (s *Session) Stats() SessionStats {
	st := SessionStats{
		SessionID:     s.id,
		RetainedTurns: len(s.turns),
		TotalTurns:    s.nextSeq - 1,
		CrisisEvents:  len(s.crises),
		TopicCounts:   make(map[string]int),
		MoodSamples:   len(s.moods),
		StressSamples: len(s.stresses),
	}
	for _, t := range s.turns {
		switch t.Role {
		case RoleUser:
			st.UserTurns++
		case RoleAssistant:
			if t.TopicID != "" {
				st.TopicCounts[t.TopicID]++
			}
		}
	}
	if len(s.moods) > 0 {
		var sum float64
		for _, m := range s.moods {
			sum += m.Score
		}
		st.MeanMood = sum / float64(len(s.moods))
	}
	if len(s.stresses) > 0 {
		var sum float64
		for _, m := range s.stresses {
			sum += m.Score
		}
		st.MeanStress = sum / float64(len(s.stresses))
	}
	return st
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
