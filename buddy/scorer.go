package buddy

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Score is the output of a Scorer. MoodScore is in [-1, 1]; StressScore is in [0, 1].
type Score struct {
	MoodLabel   string  `json:"mood_label"`
	MoodScore   float64 `json:"mood_score"`
	StressScore float64 `json:"stress_score"`
}

// Scorer maps raw user text to mood and stress signals. Implementations must return promptly once
// ctx is done; FallbackScorer stops waiting at its timeout but cannot stop a call that ignores ctx.
type Scorer interface {
	Score(ctx context.Context, text string) (Score, error)
}

// Mood labels, from most negative to most positive.
const (
	MoodVeryNegative = "very_negative"
	MoodNegative     = "negative"
	MoodNeutral      = "neutral"
	MoodPositive     = "positive"
	MoodVeryPositive = "very_positive"
)

// MoodLabels lists every label a Scorer may return.
var MoodLabels = []string{MoodVeryNegative, MoodNegative, MoodNeutral, MoodPositive, MoodVeryPositive}

// MoodLabelFor buckets a mood score into a label.
func MoodLabelFor(score float64) string {
	switch {
	case score <= -0.6:
		return MoodVeryNegative
	case score < -0.2:
		return MoodNegative
	case score <= 0.2:
		return MoodNeutral
	case score < 0.6:
		return MoodPositive
	default:
		return MoodVeryPositive
	}
}

// Validate checks that a score is inside the declared ranges.
func (s Score) Validate() error {
	if math.IsNaN(s.MoodScore) || s.MoodScore < -1 || s.MoodScore > 1 {
		return fmt.Errorf("mood_score %v outside [-1,1]", s.MoodScore)
	}
	if math.IsNaN(s.StressScore) || s.StressScore < 0 || s.StressScore > 1 {
		return fmt.Errorf("stress_score %v outside [0,1]", s.StressScore)
	}
	return nil
}

// LexicalScorer is a deterministic keyword-weighted heuristic. It never fails.
type LexicalScorer struct{}

var moodLexicon = map[string]float64{
	"happy": 1, "glad": 1, "good": 1, "great": 2, "amazing": 2, "awesome": 2, "better": 1,
	"calm": 1, "relaxed": 1, "grateful": 2, "thankful": 1, "thanks": 1, "excited": 2, "hopeful": 1,
	"proud": 1, "love": 1, "fine": 0.5, "okay": 0.5, "ok": 0.5, "peaceful": 1, "confident": 1,

	"sad": -1, "unhappy": -1, "bad": -1, "awful": -2, "terrible": -2, "horrible": -2, "worse": -1,
	"depressed": -2, "miserable": -2, "hopeless": -2, "worthless": -2, "lonely": -1, "alone": -1,
	"angry": -1, "upset": -1, "cry": -1, "crying": -1, "tired": -1, "exhausted": -1, "hate": -2,
	"scared": -1, "afraid": -1, "hurt": -1, "lost": -1, "empty": -1, "broken": -2, "failing": -1,
	"anxious": -1, "worried": -1, "overwhelmed": -1, "stressed": -1, "nervous": -1, "panic": -1,
}

var stressLexicon = map[string]float64{
	"stress": 0.3, "stressed": 0.35, "stressful": 0.3, "pressure": 0.25, "overwhelmed": 0.4,
	"anxious": 0.35, "anxiety": 0.35, "panic": 0.45, "worried": 0.25, "worry": 0.25, "nervous": 0.25,
	"deadline": 0.2, "deadlines": 0.2, "exam": 0.15, "exams": 0.15, "behind": 0.15, "busy": 0.15,
	"exhausted": 0.25, "tired": 0.15, "afford": 0.2, "broke": 0.2,
	"scared": 0.3, "afraid": 0.3, "hopeless": 0.35, "breakdown": 0.45, "insomnia": 0.3,
}

var negators = map[string]bool{
	"not": true, "no": true, "never": true, "don't": true, "dont": true, "isn't": true,
	"wasn't": true, "can't": true, "cannot": true, "won't": true, "nothing": true, "hardly": true,
}

var intensifiers = map[string]float64{
	"very": 1.5, "so": 1.4, "really": 1.4, "extremely": 1.8, "super": 1.5, "too": 1.3, "totally": 1.4,
}

// Score implements Scorer.
func (LexicalScorer) Score(_ context.Context, text string) (Score, error) {
	return lexicalScore(text), nil
}

func lexicalScore(text string) Score {
	toks := tokenize(text)
	var (
		sum       float64
		hits      int
		stress    float64
		intensity = 1.0
		negate    bool
	)
	for _, tok := range toks {
		if negators[tok] {
			negate = true
			continue
		}
		if f, ok := intensifiers[tok]; ok {
			intensity = f
			continue
		}
		if w, ok := moodLexicon[tok]; ok {
			if negate {
				w = -w * 0.5
			}
			sum += w * intensity
			hits++
		}
		if w, ok := stressLexicon[tok]; ok && !negate {
			stress += w * intensity
		}
		negate = false
		intensity = 1.0
	}

	mood := 0.0
	if hits > 0 {
		// Normalize by the strongest possible weight so scores stay in [-1, 1].
		mood = clamp(sum/(2*float64(hits)), -1, 1)
	}
	if n := strings.Count(text, "!"); n > 0 {
		stress += 0.05 * float64(min(n, 4))
	}
	if mood < 0 {
		stress += -mood * 0.3
	}
	stress = clamp(stress, 0, 1)
	return Score{
		MoodLabel:   MoodLabelFor(mood),
		MoodScore:   round3(mood),
		StressScore: round3(stress),
	}
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// FallbackScorer bounds a primary scorer with a timeout and recovers any failure with a fallback.
// A nil Primary always uses the fallback.
type FallbackScorer struct {
	Primary  Scorer
	Fallback Scorer
	Timeout  time.Duration
	Logger   *zap.Logger
}

// DefaultScorerTimeout bounds the primary scorer when FallbackScorer.Timeout is zero.
const DefaultScorerTimeout = 2 * time.Second

// Score implements Scorer. The error is always nil when the fallback is the lexical scorer.
func (f FallbackScorer) Score(ctx context.Context, text string) (Score, error) {
	s, _, err := f.ScoreWithSource(ctx, text)
	return s, err
}

// ScoreWithSource scores text and reports which scorer produced the values.
func (f FallbackScorer) ScoreWithSource(ctx context.Context, text string) (Score, Source, error) {
	if f.Primary != nil {
		s, err := f.primary(ctx, text)
		if err == nil {
			return s, SourceScorer, nil
		}
		f.logger().Warn("scorer fallback", zap.Error(err))
	}

	fb := f.Fallback
	if fb == nil {
		fb = LexicalScorer{}
	}
	s, err := fb.Score(ctx, text)
	if err != nil {
		return Score{}, SourceFallback, fmt.Errorf("fallback scorer: %w", err)
	}
	return normalizeScore(s), SourceFallback, nil
}

func (f FallbackScorer) primary(ctx context.Context, text string) (Score, error) {
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = DefaultScorerTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		s   Score
		err error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: fmt.Errorf("scorer panic: %v", r)}
			}
		}()
		s, err := f.Primary.Score(ctx, text)
		ch <- result{s, err}
	}()

	select {
	case <-ctx.Done():
		return Score{}, fmt.Errorf("%w: %w", ErrScorerUnavailable, ctx.Err())
	case r := <-ch:
		if r.err != nil {
			return Score{}, fmt.Errorf("%w: %w", ErrScorerUnavailable, r.err)
		}
		if err := r.s.Validate(); err != nil {
			return Score{}, fmt.Errorf("%w: %w", ErrScorerUnavailable, err)
		}
		return normalizeScore(r.s), nil
	}
}

func (f FallbackScorer) logger() *zap.Logger {
	if f.Logger == nil {
		return zap.NewNop()
	}
	return f.Logger
}

// normalizeScore fills a missing or unknown label from the score band.
func normalizeScore(s Score) Score {
	s.MoodScore = clamp(s.MoodScore, -1, 1)
	s.StressScore = clamp(s.StressScore, 0, 1)
	label := strings.ToLower(strings.TrimSpace(s.MoodLabel))
	if !slices.Contains(MoodLabels, label) {
		label = MoodLabelFor(s.MoodScore)
	}
	s.MoodLabel = label
	return s
}

// IsScorerUnavailable reports whether err came from a failed primary scorer.
func IsScorerUnavailable(err error) bool {
	return errors.Is(err, ErrScorerUnavailable)
}
