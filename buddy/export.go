package buddy

import (
	"sort"
	"strconv"
	"time"
)

// Snapshot is a read-only copy of a session suitable for JSON export.
type Snapshot struct {
	SessionID    string         `json:"session_id"`
	StartedAt    time.Time      `json:"started_at"`
	Locale       string         `json:"locale,omitempty"`
	Stats        SessionStats   `json:"stats"`
	Turns        []Turn         `json:"turns"`
	Moods        []MoodSample   `json:"moods"`
	Stresses     []StressSample `json:"stresses"`
	CrisisEvents []CrisisEvent  `json:"crisis_events"`
}

func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		SessionID:    s.id,
		StartedAt:    s.started,
		Locale:       s.locale,
		Stats:        s.Stats(),
		Turns:        s.Turns(),
		Moods:        s.Moods(),
		Stresses:     s.Stresses(),
		CrisisEvents: s.CrisisEvents(),
	}
}

// TurnRows renders turns as a header row plus one row per turn, ordered by sequence.
func TurnRows(turns []Turn) [][]string {
	rows := make([][]string, 0, len(turns)+1)
	rows = append(rows, []string{"seq", "timestamp", "role", "topic_id", "text"})
	for _, t := range turns {
		rows = append(rows, []string{
			strconv.FormatUint(t.Seq, 10),
			formatTime(t.Timestamp),
			string(t.Role),
			t.TopicID,
			t.Text,
		})
	}
	return rows
}

func MoodRows(moods []MoodSample) [][]string {
	rows := make([][]string, 0, len(moods)+1)
	rows = append(rows, []string{"timestamp", "label", "score", "source"})
	for _, m := range moods {
		rows = append(rows, []string{formatTime(m.Timestamp), m.Label, formatScore(m.Score), string(m.Source)})
	}
	return rows
}

func StressRows(stresses []StressSample) [][]string {
	rows := make([][]string, 0, len(stresses)+1)
	rows = append(rows, []string{"timestamp", "score", "source"})
	for _, st := range stresses {
		rows = append(rows, []string{formatTime(st.Timestamp), formatScore(st.Score), string(st.Source)})
	}
	return rows
}

func CrisisRows(events []CrisisEvent) [][]string {
	rows := make([][]string, 0, len(events)+1)
	rows = append(rows, []string{"timestamp", "turn_seq", "matched_pattern", "resource_shown"})
	for _, ev := range events {
		rows = append(rows, []string{
			formatTime(ev.Timestamp),
			strconv.FormatUint(ev.TurnSeq, 10),
			ev.MatchedPattern,
			ev.ResourceShown,
		})
	}
	return rows
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

// IndexRecord is one line of a session index: enough to find and triage a session without opening it.
type IndexRecord struct {
	SessionID    string    `json:"session_id"`
	StartedAt    time.Time `json:"started_at"`
	Path         string    `json:"path"`
	UserTurns    int       `json:"user_turns"`
	CrisisEvents int       `json:"crisis_events"`
	MeanMood     float64   `json:"mean_mood"`
	MeanStress   float64   `json:"mean_stress"`

	// Topics are ordered by assistant turn count, most frequent first.
	Topics []string `json:"topics,omitempty"`
}

func BuildIndexRecord(snap Snapshot, path string) IndexRecord {
	topics := make([]string, 0, len(snap.Stats.TopicCounts))
	for t := range snap.Stats.TopicCounts {
		topics = append(topics, t)
	}
	sort.Slice(topics, func(i, j int) bool {
		ci, cj := snap.Stats.TopicCounts[topics[i]], snap.Stats.TopicCounts[topics[j]]
		if ci != cj {
			return ci > cj
		}
		return topics[i] < topics[j]
	})
	return IndexRecord{
		SessionID:    snap.SessionID,
		StartedAt:    snap.StartedAt,
		Path:         path,
		UserTurns:    snap.Stats.UserTurns,
		CrisisEvents: snap.Stats.CrisisEvents,
		MeanMood:     round3(snap.Stats.MeanMood),
		MeanStress:   round3(snap.Stats.MeanStress),
		Topics:       topics,
	}
}
