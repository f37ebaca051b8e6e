package buddy

// Classification is the outcome of matching one input against the template store.
type Classification struct {
	TopicID string   `json:"topic_id"`
	Score   int      `json:"score"`
	Matched []string `json:"matched,omitempty"`

	// Miss is set when no topic reached the threshold and TopicID is the default topic.
	Miss bool `json:"miss"`
}

// Classifier scores topics by weighted pattern matches. It skips the crisis topic; crisis
// language is handled by CrisisDetector before classification runs.
type Classifier struct {
	store    *TemplateStore
	minScore int
}

// NewClassifier returns a classifier. minScore <= 0 means at least one matching pattern.
func NewClassifier(store *TemplateStore, minScore int) *Classifier {
	if minScore <= 0 {
		minScore = 1
	}
	return &Classifier{store: store, minScore: minScore}
}

// Classify picks the best topic for text. Equal scores resolve to the topic loaded first, so the
// same input against the same store always yields the same topic.
func (c *Classifier) Classify(text string) Classification {
	norm := normalizeText(text)
	best := Classification{TopicID: c.store.DefaultTopic(), Miss: true}
	if norm == "" {
		return best
	}

	for _, id := range c.store.order {
		if id == c.store.CrisisTopic() {
			continue
		}
		t := c.store.topics[id]
		score := 0
		var matched []string
		for _, p := range t.Patterns {
			if matchPattern(norm, p) {
				score += patternWeight(p)
				matched = append(matched, p)
			}
		}
		// Strictly greater keeps the earliest topic on ties.
		if score >= c.minScore && score > best.Score {
			best = Classification{TopicID: id, Score: score, Matched: matched}
		}
	}
	return best
}
