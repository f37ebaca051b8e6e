package main

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap/zapcore"
)

const (
	scorerLexical = "lexical"
	scorerOpenAI  = "openai"
)

type Config struct {
	TemplatesPath string
	Locale        string
	MaxTurns      int
	Seed          uint64

	Scorer           string
	Model            string
	ScorerTimeout    time.Duration
	ScorerPromptFile string
	APIKey           string

	FollowUpRate  float64
	MaxInputChars int

	ExportDir string
	Pretty    bool
	LogLevel  string
}

func (c Config) Validate() error {
	if c.MaxTurns < 0 {
		return errors.New("max-turns must be >= 0")
	}
	switch c.Scorer {
	case scorerLexical:
		if c.ScorerPromptFile != "" {
			return errors.New("-scorer-prompt-file requires -scorer openai")
		}
	case scorerOpenAI:
		if c.Model == "" {
			return errors.New("missing -model (required with -scorer openai)")
		}
	default:
		return fmt.Errorf("unknown -scorer %q (want lexical or openai)", c.Scorer)
	}
	if c.ScorerTimeout <= 0 {
		return errors.New("scorer-timeout must be > 0")
	}
	if c.FollowUpRate < 0 || c.FollowUpRate > 1 {
		return errors.New("follow-up-rate must be within [0,1]")
	}
	if c.MaxInputChars < 0 {
		return errors.New("max-input-chars must be >= 0")
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid -log-level: %w", err)
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		MaxTurns:      100,
		Scorer:        scorerLexical,
		Model:         "gpt-5-mini",
		ScorerTimeout: 2 * time.Second,
		FollowUpRate:  1,
		MaxInputChars: 2000,
		LogLevel:      "warn",
	}
}
