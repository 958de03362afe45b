package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Options selects the sources Load reads.
type Options struct {
	// ConfigPath is the YAML file. Empty means DefaultConfigPath, which may
	// be missing.
	ConfigPath string

	// EnvPath is the .env file. Empty means DefaultEnvPath, which may be
	// missing.
	EnvPath string

	// SkipEnvFile ignores the .env layer.
	SkipEnvFile bool

	// LookupEnv reads the process environment.
	// Default: os.LookupEnv
	LookupEnv func(key string) (string, bool)
}

// Load resolves the configuration from every layer and validates it.
func Load(opts Options) (*File, error) {
	f := Default()

	path, required := opts.ConfigPath, true
	if path == "" {
		path, required = DefaultConfigPath, false
	}
	if err := readYAML(path, f); err != nil {
		if required || !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	var dotenv map[string]string
	if !opts.SkipEnvFile {
		envPath, envRequired := opts.EnvPath, true
		if envPath == "" {
			envPath, envRequired = DefaultEnvPath, false
		}
		m, err := godotenv.Read(envPath)
		switch {
		case err == nil:
			dotenv = m
		case envRequired || !errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("read %s: %w", envPath, err)
		}
	}

	lookupEnv := opts.LookupEnv
	if lookupEnv == nil {
		lookupEnv = os.LookupEnv
	}
	lookup := func(key string) (string, bool) {
		if v, ok := lookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}

	if err := applyEnv(f, lookup); err != nil {
		return nil, err
	}
	if f.Anthropic.APIKey == "" {
		if v, ok := lookup("ANTHROPIC_API_KEY"); ok {
			f.Anthropic.APIKey = v
		}
	}

	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

type binding struct {
	key string
	set func(f *File, v string) error
}

// bindings maps AGENTCORE_<KEY> onto the file. Keys follow the YAML path
// with dots replaced by underscores.
var bindings = []binding{
	{"ANTHROPIC_API_KEY", str(func(f *File) *string { return &f.Anthropic.APIKey })},
	{"ANTHROPIC_MODEL", str(func(f *File) *string { return &f.Anthropic.Model })},
	{"ANTHROPIC_MAX_TOKENS", func(f *File, v string) error {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return err
		}
		f.Anthropic.MaxTokens = n
		return nil
	}},
	{"ANTHROPIC_TEMPERATURE", func(f *File, v string) error {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		f.Anthropic.Temperature = &t
		return nil
	}},

	{"REQUEST_MAX_CONCURRENT", integer(func(f *File) *int { return &f.Request.MaxConcurrent })},
	{"REQUEST_MAX_QUEUE_SIZE", integer(func(f *File) *int { return &f.Request.MaxQueueSize })},
	{"REQUEST_MAX_REQUESTS_PER_WINDOW", integer(func(f *File) *int { return &f.Request.MaxRequestsPerWindow })},
	{"REQUEST_RATE_WINDOW", duration(func(f *File) *Duration { return &f.Request.RateWindow })},
	{"REQUEST_DISABLE_RATE_LIMIT", boolean(func(f *File) *bool { return &f.Request.DisableRateLimit })},
	{"REQUEST_DEFAULT_TIMEOUT", duration(func(f *File) *Duration { return &f.Request.DefaultTimeout })},
	{"REQUEST_MAX_RETRY_ATTEMPTS", integer(func(f *File) *int { return &f.Request.MaxRetryAttempts })},
	{"REQUEST_RETRY_DELAY", duration(func(f *File) *Duration { return &f.Request.RetryDelay })},
	{"REQUEST_DISABLE_AUTO_RETRY", boolean(func(f *File) *bool { return &f.Request.DisableAutoRetry })},
	{"REQUEST_MONITOR_INTERVAL", duration(func(f *File) *Duration { return &f.Request.MonitorInterval })},

	{"HISTORY_MAX_ENTRIES", integer(func(f *File) *int { return &f.History.MaxEntries })},
	{"HISTORY_DISABLE_VALIDATION", boolean(func(f *File) *bool { return &f.History.DisableValidation })},

	{"COMPACTION_TOKEN_LIMIT", integer(func(f *File) *int { return &f.Compaction.TokenLimit })},
	{"COMPACTION_THRESHOLD_RATIO", float(func(f *File) *float64 { return &f.Compaction.ThresholdRatio })},
	{"COMPACTION_MIN_MESSAGES", integer(func(f *File) *int { return &f.Compaction.MinMessages })},
	{"COMPACTION_PRESERVE_RATIO", float(func(f *File) *float64 { return &f.Compaction.PreserveRatio })},
	{"COMPACTION_MIN_RATIO", float(func(f *File) *float64 { return &f.Compaction.MinRatio })},
	{"COMPACTION_MAX_RATIO", float(func(f *File) *float64 { return &f.Compaction.MaxRatio })},
	{"COMPACTION_SUMMARY_TIMEOUT", duration(func(f *File) *Duration { return &f.Compaction.SummaryTimeout })},
	{"COMPACTION_SUMMARY_MAX_CHARS", integer(func(f *File) *int { return &f.Compaction.SummaryMaxChars })},
	{"COMPACTION_SUMMARIZE_SYSTEM", boolean(func(f *File) *bool { return &f.Compaction.SummarizeSystem })},
	{"COMPACTION_DISABLE_AUTO", boolean(func(f *File) *bool { return &f.Compaction.DisableAuto })},

	{"TOOLS_MAX_CONCURRENT", integer(func(f *File) *int { return &f.Tools.MaxConcurrent })},
	{"TOOLS_CALL_TIMEOUT", duration(func(f *File) *Duration { return &f.Tools.CallTimeout })},
	{"TOOLS_DISABLE_VALIDATION", boolean(func(f *File) *bool { return &f.Tools.DisableValidation })},

	{"CHAT_SYSTEM_PROMPT", str(func(f *File) *string { return &f.Chat.SystemPrompt })},
	{"CHAT_RECENT_WINDOW", integer(func(f *File) *int { return &f.Chat.RecentWindow })},
	{"CHAT_TIMEOUT", duration(func(f *File) *Duration { return &f.Chat.Timeout })},
	{"CHAT_PRIORITY", str(func(f *File) *string { return &f.Chat.Priority })},

	{"ARCHIVE_DATABASE_URL", str(func(f *File) *string { return &f.Archive.DatabaseURL })},
	{"ARCHIVE_DRIVER", str(func(f *File) *string { return &f.Archive.Driver })},
	{"ARCHIVE_TABLE", str(func(f *File) *string { return &f.Archive.Table })},
	{"ARCHIVE_SESSION_ID", str(func(f *File) *string { return &f.Archive.SessionID })},

	{"LOG_LEVEL", str(func(f *File) *string { return &f.Log.Level })},
	{"LOG_FORMAT", str(func(f *File) *string { return &f.Log.Format })},
}

func applyEnv(f *File, lookup func(string) (string, bool)) error {
	for _, b := range bindings {
		key := EnvPrefix + b.key
		v, ok := lookup(key)
		if !ok {
			continue
		}
		if err := b.set(f, strings.TrimSpace(v)); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, key, err)
		}
	}
	return nil
}

func str(field func(*File) *string) func(*File, string) error {
	return func(f *File, v string) error {
		*field(f) = v
		return nil
	}
}

func integer(field func(*File) *int) func(*File, string) error {
	return func(f *File, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*field(f) = n
		return nil
	}
}

func float(field func(*File) *float64) func(*File, string) error {
	return func(f *File, v string) error {
		x, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		*field(f) = x
		return nil
	}
}

func boolean(field func(*File) *bool) func(*File, string) error {
	return func(f *File, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*field(f) = b
		return nil
	}
}

func duration(field func(*File) *Duration) func(*File, string) error {
	return func(f *File, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*field(f) = Duration(d)
		return nil
	}
}
