package history

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"strings"
	"sync"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/youssefsiam38/agentcore/types"
)

// Format names an export encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
	FormatHTML Format = "html"
)

// ErrUnknownFormat is returned by Export for an unsupported format.
var ErrUnknownFormat = errors.New("unknown export format")

// ParseFormat parses a format name, case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatText, FormatHTML:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

var (
	markdownOnce sync.Once
	markdown     goldmark.Markdown
	sanitizer    *bluemonday.Policy
)

func renderers() (goldmark.Markdown, *bluemonday.Policy) {
	markdownOnce.Do(func() {
		markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))
		sanitizer = bluemonday.UGCPolicy()
	})
	return markdown, sanitizer
}

// Export encodes the entries in view.
func (s *Store) Export(view View, format Format) ([]byte, error) {
	entries := s.Entries(view, 0)

	switch format {
	case FormatJSON:
		return json.MarshalIndent(struct {
			View       View      `json:"view"`
			ExportedAt time.Time `json:"exported_at"`
			Entries    []Entry   `json:"entries"`
		}{view, time.Now().UTC(), entries}, "", "  ")
	case FormatText:
		return exportText(entries), nil
	case FormatHTML:
		return exportHTML(view, entries)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

func exportText(entries []Entry) []byte {
	var b bytes.Buffer
	for i, e := range entries {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "[%s] %s:\n", e.Metadata.Timestamp.Format(time.RFC3339), e.Message.Role.Label())
		b.WriteString(entryBody(e.Message))
		b.WriteString("\n")
	}
	return b.Bytes()
}

// entryBody renders every block of a message as markdown-compatible text.
func entryBody(m types.Message) string {
	parts := make([]string, 0, len(m.Content))
	for _, blk := range m.Content {
		switch blk.Type {
		case types.ContentTypeText:
			parts = append(parts, blk.Text)
		case types.ContentTypeToolUse:
			parts = append(parts, fmt.Sprintf("tool call `%s`: `%s`", blk.ToolName, string(blk.ToolInputRaw)))
		case types.ContentTypeToolResult:
			label := "tool result"
			if blk.IsError {
				label = "tool error"
			}
			parts = append(parts, fmt.Sprintf("%s: %s", label, blk.ToolContent))
		}
	}
	return strings.Join(parts, "\n\n")
}

func exportHTML(view View, entries []Entry) ([]byte, error) {
	md, policy := renderers()

	var b bytes.Buffer
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&b, "<title>Conversation history (%s)</title>\n", html.EscapeString(string(view)))
	b.WriteString("</head>\n<body>\n")

	for _, e := range entries {
		var rendered bytes.Buffer
		if err := md.Convert([]byte(entryBody(e.Message)), &rendered); err != nil {
			return nil, fmt.Errorf("render entry %s: %w", e.ID, err)
		}
		fmt.Fprintf(&b, "<section class=\"message %s\" id=\"%s\">\n<h3>%s</h3>\n",
			html.EscapeString(string(e.Message.Role)),
			html.EscapeString(e.ID),
			html.EscapeString(e.Message.Role.Label()),
		)
		b.Write(policy.SanitizeBytes(rendered.Bytes()))
		b.WriteString("</section>\n")
	}

	b.WriteString("</body>\n</html>\n")
	return b.Bytes(), nil
}
