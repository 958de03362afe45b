package history

import (
	"fmt"
	"maps"
	"time"

	"github.com/youssefsiam38/agentcore/types"
)

// ValidationStatus tags an entry for the curated view.
type ValidationStatus string

const (
	// StatusValid marks content that can appear in the curated view.
	StatusValid ValidationStatus = "valid"

	// StatusEmpty marks a message with no content at all.
	StatusEmpty ValidationStatus = "empty"

	// StatusInvalid marks whitespace-only or otherwise unusable content.
	StatusInvalid ValidationStatus = "invalid"
)

// View selects one of the two projections of the log.
type View string

const (
	// ViewComprehensive is every recorded message, in order.
	ViewComprehensive View = "comprehensive"

	// ViewCurated keeps user messages and fully valid non-user runs.
	ViewCurated View = "curated"
)

// ParseView parses a view name.
func ParseView(s string) (View, error) {
	switch View(s) {
	case ViewComprehensive, "":
		return ViewComprehensive, nil
	case ViewCurated:
		return ViewCurated, nil
	default:
		return "", fmt.Errorf("history: unknown view %q", s)
	}
}

// Metadata describes how and when a message was produced.
type Metadata struct {
	Timestamp        time.Time        `json:"timestamp"`
	ModelName        string           `json:"model_name,omitempty"`
	ProcessingTime   time.Duration    `json:"processing_time,omitempty"`
	TokenCount       int              `json:"token_count,omitempty"`
	ValidationStatus ValidationStatus `json:"validation_status"`
	ErrorInfo        map[string]any   `json:"error_info,omitempty"`
	Extra            map[string]any   `json:"extra,omitempty"`

	// Compressed marks entries written by Replace.
	Compressed bool `json:"compressed,omitempty"`
}

func (m Metadata) clone() Metadata {
	m.ErrorInfo = maps.Clone(m.ErrorInfo)
	m.Extra = maps.Clone(m.Extra)
	return m
}

// Entry is one recorded message.
type Entry struct {
	ID       string        `json:"id"`
	ParentID string        `json:"parent_id,omitempty"`
	Message  types.Message `json:"message"`
	Metadata Metadata      `json:"metadata"`
}

// Clone returns a deep copy of the entry.
func (e Entry) Clone() Entry {
	return Entry{
		ID:       e.ID,
		ParentID: e.ParentID,
		Message:  e.Message.Clone(),
		Metadata: e.Metadata.clone(),
	}
}
