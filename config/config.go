// Package config loads agentcore settings from layered sources.
//
// Values are resolved in this order, first match wins:
//   - AGENTCORE_* environment variables
//   - the same keys in a .env file (read, never exported to the process)
//   - a YAML file
//   - package defaults
//
// The YAML file and the .env file are both optional unless named
// explicitly in Options.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/youssefsiam38/agentcore"
	"github.com/youssefsiam38/agentcore/compaction"
	"github.com/youssefsiam38/agentcore/history"
	"github.com/youssefsiam38/agentcore/provider/anthropic"
	"github.com/youssefsiam38/agentcore/queue"
	"github.com/youssefsiam38/agentcore/request"
	"github.com/youssefsiam38/agentcore/storage"
	"github.com/youssefsiam38/agentcore/tool"
)

// EnvPrefix is prepended to every environment key.
const EnvPrefix = "AGENTCORE_"

// Default file locations used when Options leaves them empty.
const (
	DefaultConfigPath = "agentcore.yaml"
	DefaultEnvPath    = ".env"
)

// Archive drivers.
const (
	DriverPgx = "pgx"
	DriverSQL = "sql"
)

// ErrInvalidConfig is returned when loaded values are out of range.
var ErrInvalidConfig = errors.New("invalid configuration")

// Duration is a time.Duration written as "30s", "2m" and so on.
type Duration time.Duration

// D returns d as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML writes the duration string.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// File is the complete configuration document.
type File struct {
	Anthropic  AnthropicConfig  `yaml:"anthropic"`
	Request    RequestConfig    `yaml:"request"`
	History    HistoryConfig    `yaml:"history"`
	Compaction CompactionConfig `yaml:"compaction"`
	Tools      ToolsConfig      `yaml:"tools"`
	Chat       ChatConfig       `yaml:"chat"`
	Archive    ArchiveConfig    `yaml:"archive"`
	Log        LogConfig        `yaml:"log"`
}

// AnthropicConfig configures the model provider.
type AnthropicConfig struct {
	// APIKey falls back to ANTHROPIC_API_KEY when unset.
	APIKey      string   `yaml:"api_key"`
	Model       string   `yaml:"model"`
	MaxTokens   int64    `yaml:"max_tokens"`
	Temperature *float64 `yaml:"temperature,omitempty"`
}

// RequestConfig configures admission control.
type RequestConfig struct {
	MaxConcurrent        int      `yaml:"max_concurrent"`
	MaxQueueSize         int      `yaml:"max_queue_size"`
	MaxRequestsPerWindow int      `yaml:"max_requests_per_window"`
	RateWindow           Duration `yaml:"rate_window"`
	DisableRateLimit     bool     `yaml:"disable_rate_limit"`
	DefaultTimeout       Duration `yaml:"default_timeout"`
	MaxRetryAttempts     int      `yaml:"max_retry_attempts"`
	RetryDelay           Duration `yaml:"retry_delay"`
	DisableAutoRetry     bool     `yaml:"disable_auto_retry"`
	MonitorInterval      Duration `yaml:"monitor_interval"`
}

// HistoryConfig configures the history store.
type HistoryConfig struct {
	MaxEntries        int  `yaml:"max_entries"`
	DisableValidation bool `yaml:"disable_validation"`
}

// CompactionConfig configures the compressor.
type CompactionConfig struct {
	TokenLimit      int      `yaml:"token_limit"`
	ThresholdRatio  float64  `yaml:"threshold_ratio"`
	MinMessages     int      `yaml:"min_messages"`
	PreserveRatio   float64  `yaml:"preserve_ratio"`
	MinRatio        float64  `yaml:"min_ratio"`
	MaxRatio        float64  `yaml:"max_ratio"`
	SummaryTimeout  Duration `yaml:"summary_timeout"`
	SummaryMaxChars int      `yaml:"summary_max_chars"`
	SummarizeSystem bool     `yaml:"summarize_system"`
	DisableAuto     bool     `yaml:"disable_auto"`
}

// ToolsConfig configures the tool tracker.
type ToolsConfig struct {
	MaxConcurrent     int      `yaml:"max_concurrent"`
	CallTimeout       Duration `yaml:"call_timeout"`
	DisableValidation bool     `yaml:"disable_validation"`
}

// ChatConfig configures conversation turns.
type ChatConfig struct {
	SystemPrompt string   `yaml:"system_prompt"`
	RecentWindow int      `yaml:"recent_window"`
	Timeout      Duration `yaml:"timeout"`
	Priority     string   `yaml:"priority"`
}

// ArchiveConfig configures the optional PostgreSQL archive. It is
// disabled while DatabaseURL is empty.
type ArchiveConfig struct {
	DatabaseURL string `yaml:"database_url"`
	Driver      string `yaml:"driver"`
	Table       string `yaml:"table"`
	SessionID   string `yaml:"session_id"`
}

// Enabled reports whether an archive should be opened.
func (a ArchiveConfig) Enabled() bool { return a.DatabaseURL != "" }

// LogConfig configures the CLI logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used before any source is applied.
func Default() *File {
	rc := request.DefaultConfig()
	cc := compaction.DefaultConfig()
	tc := tool.DefaultTrackerConfig()
	return &File{
		Anthropic: AnthropicConfig{
			Model:     anthropic.DefaultModel,
			MaxTokens: anthropic.DefaultMaxTokens,
		},
		Request: RequestConfig{
			MaxConcurrent:        rc.MaxConcurrent,
			MaxQueueSize:         rc.MaxQueueSize,
			MaxRequestsPerWindow: rc.MaxRequestsPerWindow,
			RateWindow:           Duration(rc.RateWindow),
			DefaultTimeout:       Duration(rc.DefaultTimeout),
			MaxRetryAttempts:     rc.MaxRetryAttempts,
			RetryDelay:           Duration(rc.RetryDelay),
			MonitorInterval:      Duration(rc.MonitorInterval),
		},
		History: HistoryConfig{
			MaxEntries: history.DefaultMaxEntries,
		},
		Compaction: CompactionConfig{
			TokenLimit:     cc.TokenLimit,
			ThresholdRatio: cc.ThresholdRatio,
			MinMessages:    cc.MinMessages,
			PreserveRatio:  cc.PreserveRatio,
			MinRatio:       cc.MinRatio,
			MaxRatio:       cc.MaxRatio,
			SummaryTimeout: Duration(cc.SummaryTimeout),
		},
		Tools: ToolsConfig{
			MaxConcurrent: tc.MaxConcurrent,
			CallTimeout:   Duration(tc.CallTimeout),
		},
		Chat: ChatConfig{
			RecentWindow: agentcore.DefaultRecentWindow,
			Timeout:      Duration(agentcore.DefaultChatTimeout),
			Priority:     queue.PriorityNormal.String(),
		},
		Archive: ArchiveConfig{
			Driver: DriverPgx,
			Table:  storage.DefaultTable,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks the values the component configs do not validate
// themselves.
func (f *File) Validate() error {
	if _, err := queue.ParsePriority(f.Chat.Priority); err != nil {
		return fmt.Errorf("%w: chat.priority: %v", ErrInvalidConfig, err)
	}
	switch f.Archive.Driver {
	case DriverPgx, DriverSQL:
	default:
		return fmt.Errorf("%w: archive.driver must be %q or %q, got %q",
			ErrInvalidConfig, DriverPgx, DriverSQL, f.Archive.Driver)
	}
	switch strings.ToLower(f.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: log.level %q", ErrInvalidConfig, f.Log.Level)
	}
	switch strings.ToLower(f.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log.format must be text or json, got %q", ErrInvalidConfig, f.Log.Format)
	}
	return nil
}

// ClientConfig maps the file onto a client configuration. Model, Logger,
// Metrics and Archive are left for the caller to wire.
func (f *File) ClientConfig() (*agentcore.Config, error) {
	priority, err := queue.ParsePriority(f.Chat.Priority)
	if err != nil {
		return nil, fmt.Errorf("%w: chat.priority: %v", ErrInvalidConfig, err)
	}

	return &agentcore.Config{
		ModelName:    f.Anthropic.Model,
		SystemPrompt: f.Chat.SystemPrompt,
		SessionID:    f.Archive.SessionID,
		RecentWindow: f.Chat.RecentWindow,
		ChatTimeout:  f.Chat.Timeout.D(),
		ChatPriority: priority,
		Request: &request.Config{
			MaxConcurrent:        f.Request.MaxConcurrent,
			MaxQueueSize:         f.Request.MaxQueueSize,
			MaxRequestsPerWindow: f.Request.MaxRequestsPerWindow,
			RateWindow:           f.Request.RateWindow.D(),
			DisableRateLimit:     f.Request.DisableRateLimit,
			DefaultTimeout:       f.Request.DefaultTimeout.D(),
			MaxRetryAttempts:     f.Request.MaxRetryAttempts,
			RetryDelay:           f.Request.RetryDelay.D(),
			DisableAutoRetry:     f.Request.DisableAutoRetry,
			MonitorInterval:      f.Request.MonitorInterval.D(),
		},
		History: &history.Config{
			MaxEntries:        f.History.MaxEntries,
			DisableValidation: f.History.DisableValidation,
		},
		Compaction: &compaction.Config{
			TokenLimit:      f.Compaction.TokenLimit,
			ThresholdRatio:  f.Compaction.ThresholdRatio,
			MinMessages:     f.Compaction.MinMessages,
			PreserveRatio:   f.Compaction.PreserveRatio,
			MinRatio:        f.Compaction.MinRatio,
			MaxRatio:        f.Compaction.MaxRatio,
			SummaryTimeout:  f.Compaction.SummaryTimeout.D(),
			SummaryMaxChars: f.Compaction.SummaryMaxChars,
			SummarizeSystem: f.Compaction.SummarizeSystem,
			DisableAuto:     f.Compaction.DisableAuto,
		},
		Tools: &tool.TrackerConfig{
			MaxConcurrent:     f.Tools.MaxConcurrent,
			CallTimeout:       f.Tools.CallTimeout.D(),
			DisableValidation: f.Tools.DisableValidation,
		},
	}, nil
}

// ProviderConfig maps the anthropic section onto a provider configuration.
func (f *File) ProviderConfig() *anthropic.Config {
	return &anthropic.Config{
		Model:       f.Anthropic.Model,
		MaxTokens:   f.Anthropic.MaxTokens,
		Temperature: f.Anthropic.Temperature,
	}
}

func readYAML(path string, f *File) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(f); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}
