package buddy

import (
	"context"
	"math/rand/v2"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Result is everything the presentation layer needs for one turn.
type Result struct {
	Reply

	Mood            *MoodSample   `json:"mood,omitempty"`
	Stress          *StressSample `json:"stress,omitempty"`
	CrisisTriggered bool          `json:"crisis_triggered"`
}

// EngineOptions configures an Engine. Zero values select defaults.
type EngineOptions struct {
	Logger *zap.Logger
	Rand   *rand.Rand

	// MinScore is the classifier threshold (default 1 = at least one match).
	MinScore int

	// ScorerTimeout bounds the primary scorer (default DefaultScorerTimeout).
	ScorerTimeout time.Duration

	FollowUpRate float64
	NoFollowUps  bool
	ContextTurns int
	HighStress   float64
}

// Engine runs the per-turn pipeline: crisis check, scoring, classification, generation.
// An Engine holds no session state and can serve any number of sessions, one turn at a time each.
type Engine struct {
	store      *TemplateStore
	scorer     FallbackScorer
	detector   *CrisisDetector
	classifier *Classifier
	gen        *Generator
	log        *zap.Logger
}

// NewEngine builds an engine over store. A nil scorer selects the lexical heuristic.
func NewEngine(store *TemplateStore, scorer Scorer, opts EngineOptions) *Engine {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		store: store,
		scorer: FallbackScorer{
			Primary:  scorer,
			Fallback: LexicalScorer{},
			Timeout:  opts.ScorerTimeout,
			Logger:   log,
		},
		detector:   NewCrisisDetector(store),
		classifier: NewClassifier(store, opts.MinScore),
		gen: NewGenerator(store, GeneratorOptions{
			Rand:         opts.Rand,
			FollowUpRate: opts.FollowUpRate,
			NoFollowUps:  opts.NoFollowUps,
			ContextTurns: opts.ContextTurns,
			HighStress:   opts.HighStress,
			Logger:       log,
		}),
		log: log,
	}
}

func (e *Engine) Store() *TemplateStore           { return e.store }
func (e *Engine) Classifier() *Classifier         { return e.classifier }
func (e *Engine) CrisisDetector() *CrisisDetector { return e.detector }

// Start records the welcome message and returns it.
func (e *Engine) Start(s *Session) string {
	msg := e.store.Welcome(s.Locale())
	if msg == "" {
		msg = supportiveLine
	}
	s.RecordAssistantTurn(msg, "")
	return msg
}

// Respond processes one user message to completion. It never fails: the worst case is a generic
// supportive reply, plus the crisis resource when a crisis was already detected for the turn.
func (e *Engine) Respond(ctx context.Context, s *Session, text string) (res Result) {
	var (
		ev     CrisisEvent
		crisis bool
	)
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("respond failed",
				zap.String("session", s.ID()),
				zap.Bool("crisis", crisis),
				zap.Any("panic", r))
			res = e.recovered(ev, crisis)
		}
	}()

	text = strings.TrimSpace(text)
	if text == "" {
		return Result{Reply: Reply{
			TopicID:  e.store.DefaultTopic(),
			Response: supportiveLine,
			Locale:   e.store.DefaultLocale(),
		}}
	}

	turn := s.RecordUserTurn(text)
	ev, crisis = e.detector.Inspect(s, turn)
	mood, stress := e.score(ctx, s, turn)

	if crisis {
		e.log.Info("crisis detected",
			zap.String("session", s.ID()),
			zap.Uint64("turn", turn.Seq),
			zap.String("pattern", ev.MatchedPattern))
		return Result{
			Reply:           e.gen.GenerateCrisis(s, ev),
			Mood:            mood,
			Stress:          stress,
			CrisisTriggered: true,
		}
	}

	cls := e.classifier.Classify(text)
	e.log.Debug("classified",
		zap.String("session", s.ID()),
		zap.String("topic", cls.TopicID),
		zap.Int("score", cls.Score),
		zap.Bool("miss", cls.Miss))

	return Result{
		Reply:  e.gen.Generate(s, cls.TopicID),
		Mood:   mood,
		Stress: stress,
	}
}

// recovered is the reply served when the pipeline panics. A detected crisis keeps its resource.
func (e *Engine) recovered(ev CrisisEvent, crisis bool) Result {
	if !crisis {
		return Result{Reply: Reply{
			TopicID:  e.store.DefaultTopic(),
			Response: supportiveLine,
			Locale:   e.store.DefaultLocale(),
		}}
	}
	resource := strings.TrimSpace(ev.ResourceShown)
	if resource == "" {
		resource = e.store.UniversalResource()
	}
	return Result{
		Reply: Reply{
			TopicID:  e.store.CrisisTopic(),
			Response: supportiveLine,
			Resource: resource,
			Locale:   e.store.DefaultLocale(),
		},
		CrisisTriggered: true,
	}
}

// helpNowRequest is the user turn recorded when help-now is invoked.
const helpNowRequest = "I need help right now"

// HelpNow records the help request and the emergency contact bundle, bypassing classification.
func (e *Engine) HelpNow(s *Session) Result {
	s.RecordUserTurn(helpNowRequest)
	msg := e.store.HelpNow(s.Locale())
	if msg == "" {
		msg = e.detector.Resource(s.Locale())
	}
	s.RecordAssistantTurn(msg, "")
	locale := s.Locale()
	if locale == "" {
		locale = e.store.DefaultLocale()
	}
	return Result{Reply: Reply{Response: msg, Locale: locale}}
}

// QuickPrompts returns the canned user messages offered as shortcuts.
func (e *Engine) QuickPrompts() []QuickPrompt {
	return e.store.QuickPrompts()
}

func (e *Engine) score(ctx context.Context, s *Session, turn Turn) (*MoodSample, *StressSample) {
	if !hasSignal(turn.Text) {
		return nil, nil
	}
	sc, src, err := e.scorer.ScoreWithSource(ctx, turn.Text)
	if err != nil {
		e.log.Warn("scoring skipped", zap.String("session", s.ID()), zap.Error(err))
		return nil, nil
	}
	s.RecordMood(MoodSample{Timestamp: turn.Timestamp, Label: sc.MoodLabel, Score: sc.MoodScore, Source: src})
	s.RecordStress(StressSample{Timestamp: turn.Timestamp, Score: sc.StressScore, Source: src})
	m, _ := s.LastMood()
	st, _ := s.LastStress()
	return &m, &st
}
