package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/theimaginaryfoundation/support-buddy/buddy"
	"github.com/theimaginaryfoundation/support-buddy/buddy/fileutils"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	cfg, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := run(ctx, cfg, logger)
	if err != nil {
		var cfgErr *buddy.ConfigError
		if errors.As(err, &cfgErr) {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	fmt.Fprintf(os.Stdout, "entries=%d user_turns=%d assistant_turns=%d unmapped_emotions=%d unmapped_intents=%d crisis_events=%d retained_turns=%d out_dir=%s\n",
		res.Stats.Entries, res.Stats.UserTurns, res.Stats.AssistantTurns, res.Stats.UnmappedEmotions,
		res.Stats.UnmappedIntents, res.Stats.CrisisEvents, res.RetainedTurns, cfg.OutputDir)
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()

	fs.SetOutput(os.Stderr)

	fs.StringVar(&cfg.InputPath, "in", cfg.InputPath, "Chat log: JSON array, object with an array field, or JSON Lines")
	fs.StringVar(&cfg.OutputDir, "out", cfg.OutputDir, "Directory to write the session snapshot into")
	fs.StringVar(&cfg.ArrayField, "array-field", "", "If top-level JSON is an object, name of the field holding the log entries (e.g. logs)")
	fs.StringVar(&cfg.TemplatesPath, "templates", "", "YAML template pack used for intent mapping and crisis patterns (default: embedded pack)")
	fs.IntVar(&cfg.MaxTurns, "max-turns", 0, "Turns kept in the replayed session (0 = keep all)")
	fs.BoolVar(&cfg.Pretty, "pretty", false, "Pretty-print session.json")
	fs.BoolVar(&cfg.Overwrite, "overwrite", false, "Overwrite existing output files")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error); logs go to stderr")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage:\n  %s [flags]\n\nFlags:\n", filepath.Base(os.Args[0]))
		fs.PrintDefaults()
		fmt.Fprintln(fs.Output(), "\nExamples:")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/log-replay -in data/chat_logs.json -out data/replay")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/log-replay -in export.json -array-field logs -overwrite")
	}

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	for _, p := range []*string{&cfg.InputPath, &cfg.OutputDir, &cfg.TemplatesPath} {
		if *p != "" {
			*p = filepath.Clean(*p)
		}
	}
	return cfg, nil
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(lvl)
	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

type result struct {
	Stats         buddy.ReplayStats
	RetainedTurns int
	SessionID     string
}

var outputFiles = []string{"session.json", "turns.csv", "moods.csv", "stress.csv", "crisis_events.csv"}

func run(ctx context.Context, cfg Config, logger *zap.Logger) (result, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if !cfg.Overwrite {
		for _, name := range outputFiles {
			p := filepath.Join(cfg.OutputDir, name)
			if _, err := os.Stat(p); err == nil {
				return result{}, fmt.Errorf("output file already exists: %s (pass -overwrite)", p)
			} else if !errors.Is(err, fs.ErrNotExist) {
				return result{}, fmt.Errorf("stat output file: %w", err)
			}
		}
	}

	store := buddy.DefaultTemplates()
	if cfg.TemplatesPath != "" {
		s, err := buddy.LoadTemplatesFile(cfg.TemplatesPath)
		if err != nil {
			return result{}, err
		}
		store = s
	}
	eng := buddy.NewEngine(store, nil, buddy.EngineOptions{Logger: logger})
	session := buddy.NewSession(buddy.SessionOptions{MaxTurns: cfg.MaxTurns})

	f, err := os.Open(cfg.InputPath)
	if err != nil {
		return result{}, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	var stats buddy.ReplayStats
	_, err = buddy.ReadLog(ctx, f, buddy.LogReadOptions{ArrayField: cfg.ArrayField}, func(ent buddy.LogEntry) error {
		eng.ReplayEntry(session, ent, &stats)
		return nil
	})
	if err != nil {
		return result{}, err
	}
	logger.Info("replay complete",
		zap.String("session", session.ID()),
		zap.String("in", cfg.InputPath),
		zap.Int("entries", stats.Entries),
		zap.Int("unmapped_emotions", stats.UnmappedEmotions),
		zap.Int("unmapped_intents", stats.UnmappedIntents),
		zap.Int("crisis_events", stats.CrisisEvents))

	if err := fileutils.WriteJSONFileAtomic(filepath.Join(cfg.OutputDir, "session.json"), session.Snapshot(), cfg.Pretty); err != nil {
		return result{}, err
	}
	tables := map[string][][]string{
		"turns.csv":         buddy.TurnRows(session.Turns()),
		"moods.csv":         buddy.MoodRows(session.Moods()),
		"stress.csv":        buddy.StressRows(session.Stresses()),
		"crisis_events.csv": buddy.CrisisRows(session.CrisisEvents()),
	}
	for name, rows := range tables {
		if err := fileutils.WriteCSVAtomic(filepath.Join(cfg.OutputDir, name), rows); err != nil {
			return result{}, err
		}
	}

	return result{
		Stats:         stats,
		RetainedTurns: len(session.Turns()),
		SessionID:     session.ID(),
	}, nil
}
