package main

import (
	"fmt"
	"path/filepath"

	"go.uber.org/zap/zapcore"
)

type Config struct {
	InputPath     string
	OutputDir     string
	ArrayField    string
	TemplatesPath string
	MaxTurns      int
	Pretty        bool
	Overwrite     bool
	LogLevel      string
}

func (c Config) Validate() error {
	if c.InputPath == "" {
		return fmt.Errorf("missing -in")
	}
	if c.OutputDir == "" {
		return fmt.Errorf("missing -out")
	}
	if c.MaxTurns < 0 {
		return fmt.Errorf("max-turns must be >= 0")
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid -log-level: %w", err)
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		InputPath: filepath.FromSlash("data/chat_logs.json"),
		OutputDir: filepath.FromSlash("data/replay"),
		LogLevel:  "info",
	}
}
