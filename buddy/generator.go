package buddy

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// supportiveLine is returned when nothing else can be produced.
const supportiveLine = "I'm here with you. Would you like to tell me more about how you're feeling?"

// Reply is one generated assistant message, split into its presentational parts.
type Reply struct {
	TopicID  string `json:"topic_id"`
	Response string `json:"response"`
	Tip      string `json:"tip,omitempty"`
	FollowUp string `json:"follow_up,omitempty"`
	Resource string `json:"resource,omitempty"`

	// Locale is the language pool the response was drawn from.
	Locale string `json:"locale"`
}

// Text joins the non-empty parts in display order.
func (r Reply) Text() string {
	parts := make([]string, 0, 4)
	for _, p := range []string{r.Response, r.Tip, r.FollowUp, r.Resource} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return supportiveLine
	}
	return strings.Join(parts, "\n\n")
}

// GeneratorOptions tunes response generation.
type GeneratorOptions struct {
	// Rand drives variant selection. Inject a seeded source for reproducible output.
	Rand *rand.Rand

	// FollowUpRate is the probability of appending a follow-up (0 means always).
	FollowUpRate float64
	NoFollowUps  bool

	// ContextTurns is how many recent turns are consulted for repeated-topic check-ins.
	ContextTurns int

	// HighStress is the stress level at which a repeated topic gets a check-in line.
	HighStress float64

	Logger *zap.Logger
}

// Generator turns a topic into a reply and records it as an assistant turn.
type Generator struct {
	store *TemplateStore
	opts  GeneratorOptions
	log   *zap.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

func NewGenerator(store *TemplateStore, opts GeneratorOptions) *Generator {
	if opts.Rand == nil {
		seed := uint64(time.Now().UnixNano())
		opts.Rand = rand.New(rand.NewPCG(seed, seed>>1))
	}
	if opts.FollowUpRate <= 0 || opts.FollowUpRate > 1 {
		opts.FollowUpRate = 1
	}
	if opts.ContextTurns <= 0 {
		opts.ContextTurns = 6
	}
	if opts.HighStress <= 0 {
		opts.HighStress = 0.7
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Generator{store: store, opts: opts, log: log, rng: opts.Rand}
}

// Generate produces a reply for a classified topic and appends it to the session.
func (g *Generator) Generate(s *Session, topicID string) Reply {
	return g.generate(s, topicID, "")
}

// GenerateCrisis produces the crisis bundle: acknowledgment, fixed closing, and the resource that
// was recorded with the event.
func (g *Generator) GenerateCrisis(s *Session, ev CrisisEvent) Reply {
	return g.generate(s, g.store.CrisisTopic(), ev.ResourceShown)
}

func (g *Generator) generate(s *Session, topicID, resource string) Reply {
	t, ok := g.store.Lookup(topicID)
	if !ok {
		g.log.Warn("unknown topic, using default", zap.String("topic", topicID))
		topicID = g.store.DefaultTopic()
		t, _ = g.store.Lookup(topicID)
	}
	crisis := topicID == g.store.CrisisTopic()
	locale := s.Locale()

	reply := Reply{TopicID: topicID, Locale: g.store.DefaultLocale(), Resource: resource}

	lt, localized := g.localized(t, locale)
	pool, key := t.Responses, topicID+"/responses"
	if localized && len(lt.Responses) > 0 {
		pool, key = lt.Responses, key+"@"+locale
		reply.Locale = locale
	}
	if len(pool) > 0 {
		reply.Response = pool[g.pick(s, key, len(pool))]
	}

	if !crisis && g.repeatedUnderStress(s, topicID) {
		if line := g.store.CheckIn(reply.Locale); line != "" {
			reply.Response = line + " " + reply.Response
		}
	}

	reply.Tip = t.Tip
	if localized && lt.Tip != "" {
		reply.Tip = lt.Tip
	}

	if crisis {
		reply.FollowUp = t.Closing
		if localized && lt.Closing != "" {
			reply.FollowUp = lt.Closing
		}
	} else if g.wantFollowUp() {
		fpool, fkey := t.FollowUps, topicID+"/follow_ups"
		if localized && len(lt.FollowUps) > 0 {
			fpool, fkey = lt.FollowUps, fkey+"@"+locale
		}
		if len(fpool) > 0 {
			reply.FollowUp = fpool[g.pick(s, fkey, len(fpool))]
		}
	}

	if strings.TrimSpace(reply.Response) == "" {
		reply.Response = supportiveLine
	}
	s.RecordAssistantTurn(reply.Text(), topicID)
	return reply
}

// localized returns the locale pool for t, if the session asks for a non-default locale and one exists.
func (g *Generator) localized(t Template, locale string) (LocalizedTemplate, bool) {
	if locale == "" || locale == g.store.DefaultLocale() {
		return LocalizedTemplate{}, false
	}
	lt, ok := t.Localized[locale]
	if !ok {
		g.log.Debug("localization fallback",
			zap.String("topic", t.TopicID),
			zap.Error(fmt.Errorf("%w: %s", ErrLocalizationMissing, locale)))
		return LocalizedTemplate{}, false
	}
	return lt, true
}

// pick selects a variant index, never repeating the last index served from the same pool.
func (g *Generator) pick(s *Session, key string, n int) int {
	if n <= 1 {
		s.setLastIndex(key, 0)
		return 0
	}
	last, ok := s.lastIndex(key)
	var i int
	if ok && last >= 0 && last < n {
		i = g.intN(n - 1)
		if i >= last {
			i++
		}
	} else {
		i = g.intN(n)
	}
	s.setLastIndex(key, i)
	return i
}

func (g *Generator) intN(n int) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rng.IntN(n)
}

func (g *Generator) wantFollowUp() bool {
	if g.opts.NoFollowUps {
		return false
	}
	if g.opts.FollowUpRate >= 1 {
		return true
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rng.Float64() < g.opts.FollowUpRate
}

// repeatedUnderStress reports whether the previous assistant reply in recent context was the same
// topic and the latest stress reading is high.
func (g *Generator) repeatedUnderStress(s *Session, topicID string) bool {
	st, ok := s.LastStress()
	if !ok || st.Score < g.opts.HighStress {
		return false
	}
	recent := s.RecentTurns(g.opts.ContextTurns)
	for i := len(recent) - 1; i >= 0; i-- {
		if recent[i].Role == RoleAssistant && recent[i].TopicID != "" {
			return recent[i].TopicID == topicID
		}
	}
	return false
}
