// Command agentcore is an interactive chat client built on the agentcore
// orchestration engine.
//
// Usage:
//
//	agentcore [flags]
//
// Settings come from agentcore.yaml, .env and AGENTCORE_* variables; see
// package config. Flags override them.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/pflag"

	"github.com/youssefsiam38/agentcore"
	"github.com/youssefsiam38/agentcore/config"
	"github.com/youssefsiam38/agentcore/metrics"
	"github.com/youssefsiam38/agentcore/provider/anthropic"
	"github.com/youssefsiam38/agentcore/storage"
	"github.com/youssefsiam38/agentcore/tool"
	"github.com/youssefsiam38/agentcore/tool/builtin"
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type flags struct {
	configPath string
	envPath    string
	logLevel   string
	logFormat  string
	model      string
	system     string
	session    string
	noArchive  bool
	verbose    bool
}

func parseFlags(args []string) (*flags, bool, error) {
	var f flags
	flagSet := pflag.NewFlagSet("agentcore", pflag.ContinueOnError)
	flagSet.StringVarP(&f.configPath, "config", "c", "", "YAML config file (default: agentcore.yaml if present)")
	flagSet.StringVar(&f.envPath, "env-file", "", ".env file (default: .env if present)")
	flagSet.StringVar(&f.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flagSet.StringVar(&f.logFormat, "log-format", "", "log format: text or json")
	flagSet.StringVarP(&f.model, "model", "m", "", "Anthropic model id")
	flagSet.StringVarP(&f.system, "system", "s", "", "system prompt")
	flagSet.StringVar(&f.session, "session", "", "session id used for archiving")
	flagSet.BoolVar(&f.noArchive, "no-archive", false, "do not archive compressed history")
	flagSet.BoolVarP(&f.verbose, "verbose", "v", false, "log every message sent to the model")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(flagSet)
			return nil, true, nil
		}
		return nil, false, err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil, true, nil
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return nil, false, fmt.Errorf("unexpected argument: %s", rest[0])
	}
	return &f, false, nil
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `agentcore: chat with a model through a rate limited, compressing client.

Usage:
  agentcore [flags]

Type a message and press enter. Lines starting with / are commands;
/help lists them.

Flags:
`)
	flagSet.PrintDefaults()
}

func run(args []string, in io.Reader, out io.Writer) error {
	f, done, err := parseFlags(args)
	if err != nil || done {
		return err
	}

	file, err := config.Load(config.Options{ConfigPath: f.configPath, EnvPath: f.envPath})
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyFlags(file, f)
	if err := file.Validate(); err != nil {
		return err
	}

	logger := newLogger(file.Log, os.Stderr)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pc := file.ProviderConfig()
	pc.Logger = logger
	provider, err := anthropic.NewFromAPIKey(file.Anthropic.APIKey, pc)
	if err != nil {
		return err
	}

	cfg, err := file.ClientConfig()
	if err != nil {
		return err
	}
	reg := metrics.NewRegistry()
	cfg.Model = provider.Model()
	cfg.Stream = provider.Streamer()
	cfg.ModelName = provider.Name()
	cfg.Request.Retryable = anthropic.IsRetryable
	cfg.Logger = logger
	cfg.Metrics = reg

	opts := []agentcore.Option{
		agentcore.WithLoggingHooks(f.verbose),
		agentcore.WithMetricsHooks(),
	}
	if file.Archive.Enabled() {
		archive, closeArchive, err := openArchive(ctx, file.Archive)
		if err != nil {
			return err
		}
		defer closeArchive()
		opts = append(opts, agentcore.WithArchive(archive))
		logger.Info("history archive enabled", "driver", file.Archive.Driver, "table", file.Archive.Table)
	}

	client, err := agentcore.New(cfg, opts...)
	if err != nil {
		return err
	}
	if err := registerTools(client); err != nil {
		return err
	}
	if err := client.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := client.Stop(stopCtx); err != nil {
			logger.Warn("shutdown incomplete", "error", err)
		}
	}()

	fmt.Fprintf(out, "agentcore %s, model %s, session %s\n", agentcore.Version, provider.Name(), client.SessionID())
	return newREPL(client, reg, out).run(ctx, in)
}

// consultTool delegates a question to a fresh turn without the
// conversation history.
const consultTool = "consult"

func registerTools(client *agentcore.Client) error {
	consult, err := builtin.NewAgentTool(client, consultTool, "Ask a fresh assistant that has no conversation history")
	if err != nil {
		return err
	}
	for _, t := range []tool.Tool{builtin.NewHistorySearchTool(client.HistoryStore()), consult} {
		if err := client.RegisterTool(t); err != nil {
			return err
		}
	}
	return nil
}

func applyFlags(file *config.File, f *flags) {
	if f.logLevel != "" {
		file.Log.Level = f.logLevel
	}
	if f.logFormat != "" {
		file.Log.Format = f.logFormat
	}
	if f.model != "" {
		file.Anthropic.Model = f.model
	}
	if f.system != "" {
		file.Chat.SystemPrompt = f.system
	}
	if f.session != "" {
		file.Archive.SessionID = f.session
	}
	if f.noArchive {
		file.Archive.DatabaseURL = ""
	}
}

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// openArchive connects the configured driver and applies the schema.
func openArchive(ctx context.Context, cfg config.ArchiveConfig) (storage.Archiver, func(), error) {
	var (
		archive storage.Archiver
		closeFn func()
	)
	switch cfg.Driver {
	case config.DriverSQL:
		a, err := storage.OpenSQLArchive(cfg.DatabaseURL, cfg.Table)
		if err != nil {
			return nil, nil, err
		}
		archive, closeFn = a, func() { _ = a.DB().Close() }
	default:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		a, err := storage.NewPgxArchive(pool, cfg.Table)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		archive, closeFn = a, pool.Close
	}

	schemaCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := archive.EnsureSchema(schemaCtx); err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("failed to prepare archive: %w", err)
	}
	return archive, closeFn, nil
}
