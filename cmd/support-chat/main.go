package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"math/rand/v2"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/theimaginaryfoundation/support-buddy/buddy"
	"github.com/theimaginaryfoundation/support-buddy/buddy/fileutils"
	"github.com/theimaginaryfoundation/support-buddy/buddy/provider"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := loadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}

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

	eng, err := buildEngine(cfg, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sum, err := run(ctx, cfg, eng, os.Stdin, os.Stdout)
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "sessions=%d user_turns=%d crisis_events=%d exported=%d\n", sum.Sessions, sum.UserTurns, sum.CrisisEvents, sum.Exported)
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()

	fs.SetOutput(os.Stderr)

	fs.StringVar(&cfg.TemplatesPath, "templates", "", "YAML template pack (default: embedded pack)")
	fs.StringVar(&cfg.Locale, "locale", "", "Response locale (e.g. fr); falls back to the pack default")
	fs.IntVar(&cfg.MaxTurns, "max-turns", cfg.MaxTurns, "Turns kept in session history (0 = unbounded)")
	fs.Uint64Var(&cfg.Seed, "seed", 0, "Seed for response variant selection (0 = time based)")
	fs.StringVar(&cfg.Scorer, "scorer", cfg.Scorer, "Mood/stress scorer: lexical or openai")
	fs.StringVar(&cfg.Model, "model", cfg.Model, "OpenAI model for -scorer openai")
	fs.DurationVar(&cfg.ScorerTimeout, "scorer-timeout", cfg.ScorerTimeout, "Per-turn bound on the primary scorer before falling back")
	fs.StringVar(&cfg.ScorerPromptFile, "scorer-prompt-file", "", "Replace the scorer prompt header with this file's contents (output contract is kept)")
	fs.StringVar(&cfg.APIKey, "api-key", "", "OpenAI API key (defaults to OPENAI_API_KEY)")
	fs.Float64Var(&cfg.FollowUpRate, "follow-up-rate", cfg.FollowUpRate, "Probability of appending a follow-up question (0..1)")
	fs.IntVar(&cfg.MaxInputChars, "max-input-chars", cfg.MaxInputChars, "Truncate user input to this many bytes (0 = no limit)")
	fs.StringVar(&cfg.ExportDir, "export-dir", "", "If set, write CSV/JSON session snapshots and index.jsonl here on reset and exit")
	fs.BoolVar(&cfg.Pretty, "pretty", false, "Pretty-print the JSON snapshot")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error); logs go to stderr")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage:\n  %s [flags]\n\nFlags:\n", filepath.Base(os.Args[0]))
		fs.PrintDefaults()
		fmt.Fprintln(fs.Output(), "\nExamples:")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/support-chat")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/support-chat -locale fr -export-dir out/sessions")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/support-chat -scorer openai -model gpt-5-mini -scorer-timeout 3s")
	}

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg.Scorer = strings.ToLower(strings.TrimSpace(cfg.Scorer))
	cfg.Locale = strings.TrimSpace(cfg.Locale)
	if cfg.TemplatesPath != "" {
		cfg.TemplatesPath = filepath.Clean(cfg.TemplatesPath)
	}
	if cfg.ExportDir != "" {
		cfg.ExportDir = filepath.Clean(cfg.ExportDir)
	}
	return cfg, nil
}

// loadDotEnv loads .env.local then .env from the working directory. Variables already set win.
func loadDotEnv() error {
	for _, p := range []string{".env.local", ".env"} {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
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

func buildEngine(cfg Config, logger *zap.Logger) (*buddy.Engine, error) {
	store := buddy.DefaultTemplates()
	if cfg.TemplatesPath != "" {
		s, err := buddy.LoadTemplatesFile(cfg.TemplatesPath)
		if err != nil {
			return nil, err
		}
		store = s
	}

	var scorer buddy.Scorer
	if cfg.Scorer == scorerOpenAI {
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		if apiKey == "" {
			return nil, errors.New("missing OPENAI_API_KEY (or pass -api-key)")
		}
		client := openai.NewClient(option.WithAPIKey(apiKey))
		s := provider.NewOpenAIScorer(&client, cfg.Model)
		if cfg.ScorerPromptFile != "" {
			header, err := provider.LoadPromptHeader(cfg.ScorerPromptFile)
			if err != nil {
				return nil, err
			}
			s = s.WithPromptHeader(header)
		}
		scorer = s
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	return buddy.NewEngine(store, scorer, buddy.EngineOptions{
		Logger:        logger,
		Rand:          rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		ScorerTimeout: cfg.ScorerTimeout,
		FollowUpRate:  cfg.FollowUpRate,
	}), nil
}

type summary struct {
	Sessions     int
	UserTurns    int
	CrisisEvents int
	Exported     int
}

const helpText = `Commands:
  /help        emergency contacts
  /prompts     list quick prompts
  /p N         send quick prompt N
  /locale XX   switch response language
  /stats       session statistics
  /reset       start a new session
  /quit        leave`

// run drives one chat loop over in/out until EOF, /quit, or ctx is done.
func run(ctx context.Context, cfg Config, eng *buddy.Engine, in io.Reader, out io.Writer) (summary, error) {
	var sum summary
	s := buddy.NewSession(buddy.SessionOptions{MaxTurns: cfg.MaxTurns, Locale: cfg.Locale})
	sum.Sessions = 1

	endSession := func() error {
		st := s.Stats()
		sum.UserTurns += st.UserTurns
		sum.CrisisEvents += st.CrisisEvents
		if cfg.ExportDir == "" {
			return nil
		}
		if err := exportSession(cfg, s); err != nil {
			return err
		}
		sum.Exported++
		if _, err := rebuildIndex(cfg.ExportDir); err != nil {
			return err
		}
		return nil
	}

	fmt.Fprintf(out, "%s\n\n%s\n\n", eng.Start(s), helpText)

	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for {
		if err := ctx.Err(); err != nil {
			_ = endSession()
			return sum, err
		}
		fmt.Fprint(out, "> ")
		if !sc.Scan() {
			break
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			cmd, arg, _ := strings.Cut(line, " ")
			arg = strings.TrimSpace(arg)
			switch strings.ToLower(cmd) {
			case "/quit", "/exit":
				return sum, endSession()
			case "/help":
				fmt.Fprintf(out, "\n%s\n\n", eng.HelpNow(s).Text())
			case "/prompts":
				for i, p := range eng.QuickPrompts() {
					fmt.Fprintf(out, "  %d. %s\n", i+1, p.Label)
				}
				fmt.Fprintln(out)
			case "/p":
				prompts := eng.QuickPrompts()
				n, err := strconv.Atoi(arg)
				if err != nil || n < 1 || n > len(prompts) {
					fmt.Fprintf(out, "pick a prompt between 1 and %d\n\n", len(prompts))
					continue
				}
				msg := prompts[n-1].Message
				fmt.Fprintf(out, "%s\n", msg)
				respond(ctx, eng, s, msg, out)
			case "/locale":
				s.SetLocale(arg)
				fmt.Fprintf(out, "locale=%q\n\n", arg)
			case "/stats":
				writeStats(out, s.Stats())
			case "/reset":
				if err := endSession(); err != nil {
					return sum, err
				}
				s.Reset()
				sum.Sessions++
				fmt.Fprintf(out, "%s\n\n", eng.Start(s))
			default:
				fmt.Fprintf(out, "%s\n\n", helpText)
			}
			continue
		}

		respond(ctx, eng, s, fileutils.Truncate(line, cfg.MaxInputChars), out)
	}
	if err := sc.Err(); err != nil {
		_ = endSession()
		return sum, fmt.Errorf("read input: %w", err)
	}
	return sum, endSession()
}

func respond(ctx context.Context, eng *buddy.Engine, s *buddy.Session, text string, out io.Writer) {
	res := eng.Respond(ctx, s, text)
	fmt.Fprintf(out, "\n%s\n\n", res.Text())
}

func writeStats(out io.Writer, st buddy.SessionStats) {
	fmt.Fprintf(out, "session=%s user_turns=%d retained_turns=%d total_turns=%d crisis_events=%d mean_mood=%.3f mean_stress=%.3f\n",
		st.SessionID, st.UserTurns, st.RetainedTurns, st.TotalTurns, st.CrisisEvents, st.MeanMood, st.MeanStress)
	topics := make([]string, 0, len(st.TopicCounts))
	for t := range st.TopicCounts {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	for _, t := range topics {
		fmt.Fprintf(out, "  %s=%d\n", t, st.TopicCounts[t])
	}
	fmt.Fprintln(out)
}

// exportSession writes the session snapshot under <export-dir>/<session-id>/.
func exportSession(cfg Config, s *buddy.Session) error {
	dir := filepath.Join(cfg.ExportDir, s.ID())
	if err := fileutils.WriteJSONFileAtomic(filepath.Join(dir, "session.json"), s.Snapshot(), cfg.Pretty); err != nil {
		return fmt.Errorf("export session: %w", err)
	}
	tables := []struct {
		name string
		rows [][]string
	}{
		{"turns.csv", buddy.TurnRows(s.Turns())},
		{"moods.csv", buddy.MoodRows(s.Moods())},
		{"stress.csv", buddy.StressRows(s.Stresses())},
		{"crisis_events.csv", buddy.CrisisRows(s.CrisisEvents())},
	}
	for _, tb := range tables {
		if err := fileutils.WriteCSVAtomic(filepath.Join(dir, tb.name), tb.rows); err != nil {
			return fmt.Errorf("export %s: %w", tb.name, err)
		}
	}
	if cfg.TemplatesPath != "" {
		if _, err := fileutils.CopyFileIfExists(cfg.TemplatesPath, filepath.Join(dir, "templates.yaml"), false); err != nil {
			return fmt.Errorf("export templates: %w", err)
		}
	}
	return nil
}
