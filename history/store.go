// Package history records conversation messages and serves two read views.
//
// The comprehensive view is the full append log. The curated view is a
// cached projection that keeps every user message and drops any run of
// non-user messages containing a single entry that failed validation.
// Callers always receive copies; the Store never hands out its own entries.
package history

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/youssefsiam38/agentcore/internal/logging"
	"github.com/youssefsiam38/agentcore/metrics"
	"github.com/youssefsiam38/agentcore/types"
)

// Logger is the logging interface used by the store.
type Logger = logging.Logger

// DefaultMaxEntries caps the comprehensive log.
const DefaultMaxEntries = 1000

// ErrInvalidConfig is returned when the configuration is invalid.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds configuration for a Store.
type Config struct {
	// MaxEntries is the log size past which the oldest entries are evicted.
	// Default: 1000
	MaxEntries int

	// DisableValidation records every message as valid and makes the
	// curated view identical to the comprehensive one.
	DisableValidation bool

	// Logger for store events.
	// Default: no-op
	Logger Logger

	// Metrics receives history counters.
	// Default: no-op
	Metrics metrics.Sink
}

// DefaultConfig returns the default store configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxEntries: DefaultMaxEntries,
	}
}

// ApplyDefaults fills zero values with defaults.
func (c *Config) ApplyDefaults() {
	if c.MaxEntries == 0 {
		c.MaxEntries = DefaultMaxEntries
	}
	c.Logger = logging.OrNop(c.Logger)
	c.Metrics = metrics.OrNop(c.Metrics)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.MaxEntries < 1 {
		return fmt.Errorf("%w: MaxEntries must be at least 1, got %d", ErrInvalidConfig, c.MaxEntries)
	}
	return nil
}

// Store is a concurrency-safe conversation log.
type Store struct {
	config  *Config
	logger  Logger
	metrics metrics.Sink

	mu      sync.Mutex
	entries []*Entry

	// curated is rebuilt lazily; nil means stale.
	curated []*Entry
}

// New creates a store. A nil config uses DefaultConfig().
func New(config *Config) (*Store, error) {
	cfg := DefaultConfig()
	if config != nil {
		c := *config
		cfg = &c
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Store{
		config:  cfg,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}, nil
}

// Append records msg and returns its id. It never rejects a write; content
// that fails validation is tagged so the curated view can skip it. A
// caller-supplied empty or invalid status is kept as is.
func (s *Store) Append(msg types.Message, meta *Metadata, parentID string) string {
	e := s.newEntry(msg, meta, parentID)

	s.mu.Lock()
	s.entries = append(s.entries, e)
	evicted := s.evictLocked()
	s.curated = nil
	s.mu.Unlock()

	s.metrics.IncCounter("history.appended", 1)
	if e.Metadata.ValidationStatus != StatusValid {
		s.metrics.IncCounter("history.invalid", 1)
	}
	if evicted > 0 {
		s.metrics.IncCounter("history.evicted", int64(evicted))
		s.logger.Debug("history entries evicted", "count", evicted, "max_entries", s.config.MaxEntries)
	}
	return e.ID
}

func (s *Store) newEntry(msg types.Message, meta *Metadata, parentID string) *Entry {
	var md Metadata
	if meta != nil {
		md = meta.clone()
	}
	if md.Timestamp.IsZero() {
		md.Timestamp = time.Now()
	}

	if s.config.DisableValidation {
		if md.ValidationStatus == "" {
			md.ValidationStatus = StatusValid
		}
	} else {
		sh := inspect(msg)
		if md.ValidationStatus == "" || md.ValidationStatus == StatusValid {
			md.ValidationStatus = sh.status
		}
		if sh.toolCall {
			s.metrics.IncCounter("history.tool_calls", 1)
		}
		if sh.toolResponse {
			s.metrics.IncCounter("history.tool_responses", 1)
		}
	}

	return &Entry{
		ID:       uuid.New().String(),
		ParentID: parentID,
		Message:  msg.Clone(),
		Metadata: md,
	}
}

// evictLocked drops the oldest entries past MaxEntries. Caller holds mu.
func (s *Store) evictLocked() int {
	over := len(s.entries) - s.config.MaxEntries
	if over <= 0 {
		return 0
	}
	for i := 0; i < over; i++ {
		s.entries[i] = nil
	}
	s.entries = append(s.entries[:0:0], s.entries[over:]...)
	return over
}

func (s *Store) viewLocked(view View) []*Entry {
	if view != ViewCurated {
		return s.entries
	}
	if s.curated == nil {
		if s.config.DisableValidation {
			s.curated = s.entries
		} else {
			s.curated = curate(s.entries)
		}
	}
	return s.curated
}

// Read returns copies of the messages in view. A limit > 0 returns only
// the most recent limit messages.
func (s *Store) Read(view View, limit int) []types.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	src := tail(s.viewLocked(view), limit)
	out := make([]types.Message, len(src))
	for i, e := range src {
		out[i] = e.Message.Clone()
	}
	return out
}

// Entries returns copies of the entries in view, with metadata.
func (s *Store) Entries(view View, limit int) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	return cloneEntries(tail(s.viewLocked(view), limit))
}

// Get returns a copy of the entry with the given id.
func (s *Store) Get(id string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.entries {
		if e.ID == id {
			return e.Clone(), true
		}
	}
	return Entry{}, false
}

// Len returns the number of entries in view.
func (s *Store) Len(view View) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.viewLocked(view))
}

// Replace swaps the whole log for msgs, tagging each new entry as
// compression-derived. With keepSystem, the leading run of system entries
// survives in front of msgs. The removed entries are returned so callers
// can archive them.
func (s *Store) Replace(msgs []types.Message, keepSystem bool) []Entry {
	fresh := make([]*Entry, 0, len(msgs))
	for _, m := range msgs {
		fresh = append(fresh, s.newEntry(m, &Metadata{Compressed: true}, ""))
	}

	s.mu.Lock()
	keep := 0
	if keepSystem {
		for keep < len(s.entries) && s.entries[keep].Message.Role == types.RoleSystem {
			keep++
		}
	}
	removed := cloneEntries(s.entries[keep:])

	next := make([]*Entry, 0, keep+len(fresh))
	next = append(next, s.entries[:keep]...)
	next = append(next, fresh...)
	s.entries = next
	s.evictLocked()
	s.curated = nil
	s.mu.Unlock()

	s.metrics.IncCounter("history.replaced", 1)
	s.logger.Info("history replaced",
		"removed", len(removed),
		"kept_system", keep,
		"added", len(fresh),
	)
	return removed
}

// Clear empties the log. With keepSystem, system entries are retained.
// It returns the number of entries removed.
func (s *Store) Clear(keepSystem bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := len(s.entries)
	if !keepSystem {
		s.entries = nil
	} else {
		kept := s.entries[:0:0]
		for _, e := range s.entries {
			if e.Message.Role == types.RoleSystem {
				kept = append(kept, e)
			}
		}
		s.entries = kept
	}
	s.curated = nil

	removed := before - len(s.entries)
	s.metrics.IncCounter("history.cleared", 1)
	s.logger.Debug("history cleared", "removed", removed, "keep_system", keepSystem)
	return removed
}

// Search returns copies of the entries in view whose text, tool name or
// tool output contains query, case-insensitively.
func (s *Store) Search(query string, view View) []Entry {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Entry
	for _, e := range s.viewLocked(view) {
		if strings.Contains(strings.ToLower(searchText(e.Message)), q) {
			out = append(out, e.Clone())
		}
	}
	return out
}

func searchText(m types.Message) string {
	var b strings.Builder
	for _, blk := range m.Content {
		switch blk.Type {
		case types.ContentTypeText:
			b.WriteString(blk.Text)
		case types.ContentTypeToolUse:
			b.WriteString(blk.ToolName)
			b.WriteByte(' ')
			b.Write(blk.ToolInputRaw)
		case types.ContentTypeToolResult:
			b.WriteString(blk.ToolContent)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// Stats summarises the log.
type Stats struct {
	Total      int
	Curated    int
	Compressed int
	ByRole     map[types.Role]int
	ByStatus   map[ValidationStatus]int
}

// Stats returns counts by role and by validation status.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		Total:    len(s.entries),
		Curated:  len(s.viewLocked(ViewCurated)),
		ByRole:   make(map[types.Role]int),
		ByStatus: make(map[ValidationStatus]int),
	}
	for _, e := range s.entries {
		st.ByRole[e.Message.Role]++
		st.ByStatus[e.Metadata.ValidationStatus]++
		if e.Metadata.Compressed {
			st.Compressed++
		}
	}
	return st
}

func tail(entries []*Entry, limit int) []*Entry {
	if limit > 0 && limit < len(entries) {
		return entries[len(entries)-limit:]
	}
	return entries
}

func cloneEntries(src []*Entry) []Entry {
	out := make([]Entry, len(src))
	for i, e := range src {
		out[i] = e.Clone()
	}
	return out
}
