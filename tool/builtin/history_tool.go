package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/youssefsiam38/agentcore/history"
	"github.com/youssefsiam38/agentcore/tool"
)

// DefaultSearchLimit caps the matches returned by the history search tool.
const DefaultSearchLimit = 5

// Searcher is the part of *history.Store the search tool needs.
type Searcher interface {
	Search(query string, view history.View) []history.Entry
}

// HistorySearchTool lets the model look up earlier turns of the
// conversation, including ones compressed away from its context.
type HistorySearchTool struct {
	store Searcher
}

// NewHistorySearchTool creates the tool over store.
func NewHistorySearchTool(store Searcher) *HistorySearchTool {
	return &HistorySearchTool{store: store}
}

func (h *HistorySearchTool) Name() string { return "search_history" }

func (h *HistorySearchTool) Description() string {
	return "Search earlier messages of this conversation for a word or phrase."
}

func (h *HistorySearchTool) InputSchema() tool.ToolSchema {
	return tool.Object(map[string]tool.PropertyDef{
		"query": {
			Type:        "string",
			Description: "Case-insensitive text to look for",
			MinLength:   tool.Ptr(1),
			MaxLength:   tool.Ptr(200),
		},
		"limit": {
			Type:        "integer",
			Description: "Maximum number of matches, most recent first",
			Minimum:     tool.Ptr(1.0),
			Maximum:     tool.Ptr(50.0),
		},
	}, "query")
}

func (h *HistorySearchTool) Execute(ctx context.Context, input json.RawMessage) (string, error) {
	params, err := tool.Decode[struct {
		Query string `json:"query"`
		Limit int    `json:"limit"`
	}](input)
	if err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}
	if params.Limit <= 0 {
		params.Limit = DefaultSearchLimit
	}

	hits := h.store.Search(params.Query, history.ViewComprehensive)
	if len(hits) == 0 {
		return fmt.Sprintf("No earlier messages mention %q.", params.Query), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d earlier message(s) mention %q:\n", len(hits), params.Query)
	for i := len(hits) - 1; i >= 0 && len(hits)-i <= params.Limit; i-- {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		e := hits[i]
		fmt.Fprintf(&b, "- [%s] %s: %s\n",
			e.Metadata.Timestamp.Format("2006-01-02 15:04"),
			e.Message.Role.Label(),
			snippet(e.Message.Text(), 200),
		)
	}
	return b.String(), nil
}

func snippet(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > n {
		return string(r[:n]) + "..."
	}
	return s
}
