package history

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/youssefsiam38/agentcore/types"
)

func exportStore(t *testing.T) *Store {
	t.Helper()
	s := newTestStore(t, nil)
	s.Append(text(types.RoleUser, "Show me **bold** text"), nil, "")
	s.Append(text(types.RoleAssistant, "Sure <script>alert(1)</script> done"), nil, "")
	return s
}

func TestExport_JSON(t *testing.T) {
	s := exportStore(t)

	out, err := s.Export(ViewComprehensive, FormatJSON)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	var doc struct {
		View    View    `json:"view"`
		Entries []Entry `json:"entries"`
	}
	if err := json.Unmarshal(out, &doc); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if doc.View != ViewComprehensive || len(doc.Entries) != 2 {
		t.Errorf("exported view=%q entries=%d, want comprehensive/2", doc.View, len(doc.Entries))
	}
}

func TestExport_Text(t *testing.T) {
	s := exportStore(t)

	out, err := s.Export(ViewComprehensive, FormatText)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	got := string(out)
	if !strings.Contains(got, "User:\nShow me **bold** text") {
		t.Errorf("text export missing user entry:\n%s", got)
	}
	if !strings.Contains(got, "Assistant:\n") {
		t.Errorf("text export missing assistant label:\n%s", got)
	}
}

func TestExport_HTMLSanitized(t *testing.T) {
	s := exportStore(t)

	out, err := s.Export(ViewCurated, FormatHTML)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	got := string(out)
	if !strings.Contains(got, "<strong>bold</strong>") {
		t.Errorf("markdown not rendered:\n%s", got)
	}
	if strings.Contains(got, "<script>") {
		t.Errorf("script tag survived sanitizing:\n%s", got)
	}
	if !strings.HasPrefix(got, "<!DOCTYPE html>") {
		t.Errorf("missing document wrapper:\n%s", got)
	}
}

func TestExport_UnknownFormat(t *testing.T) {
	s := exportStore(t)
	if _, err := s.Export(ViewComprehensive, Format("pdf")); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("Export(pdf) error = %v, want ErrUnknownFormat", err)
	}
	if _, err := ParseFormat("XML"); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("ParseFormat(XML) error = %v, want ErrUnknownFormat", err)
	}
	if f, err := ParseFormat(" HTML "); err != nil || f != FormatHTML {
		t.Errorf("ParseFormat(HTML) = %q, %v", f, err)
	}
}
