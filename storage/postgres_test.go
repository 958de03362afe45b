package storage

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/youssefsiam38/agentcore/history"
	"github.com/youssefsiam38/agentcore/internal/testutil"
	"github.com/youssefsiam38/agentcore/types"
)

func sampleEntries() []history.Entry {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return []history.Entry{
		{
			ID:      "e1",
			Message: types.NewTextMessage(types.RoleUser, "hello"),
			Metadata: history.Metadata{
				Timestamp:        now,
				ValidationStatus: history.StatusValid,
			},
		},
		{
			ID:       "e2",
			ParentID: "e1",
			Message:  types.NewToolUseMessage("tu_1", "search", []byte(`{"q":"x"}`)),
			Metadata: history.Metadata{
				Timestamp:        now,
				ModelName:        "test-model",
				ValidationStatus: history.StatusValid,
				Extra:            map[string]any{"turn": float64(2)},
			},
		},
	}
}

func TestEncodeDecode(t *testing.T) {
	for _, e := range sampleEntries() {
		r, err := encode("s1", 7, e)
		if err != nil {
			t.Fatalf("encode(%s) error = %v", e.ID, err)
		}
		if r.id == "" || r.sessionID != "s1" || r.position != 7 || r.role != string(e.Message.Role) {
			t.Errorf("encode(%s) = %+v", e.ID, r)
		}
		if (e.ParentID == "") != (r.parentID == nil) {
			t.Errorf("encode(%s) parent = %v", e.ID, r.parentID)
		}

		at := time.Now()
		rec, err := decode(r, at)
		if err != nil {
			t.Fatalf("decode(%s) error = %v", e.ID, err)
		}
		got := rec.Entry
		if got.ID != e.ID || got.ParentID != e.ParentID || got.Message.Role != e.Message.Role {
			t.Errorf("decoded identity = %s/%s/%s", got.ID, got.ParentID, got.Message.Role)
		}
		if got.Message.Text() != e.Message.Text() || got.Message.HasToolUse() != e.Message.HasToolUse() {
			t.Errorf("decoded content differs for %s", e.ID)
		}
		if !got.Metadata.Timestamp.Equal(e.Metadata.Timestamp) || got.Metadata.ModelName != e.Metadata.ModelName {
			t.Errorf("decoded metadata = %+v", got.Metadata)
		}
		if rec.Position != 7 || !rec.ArchivedAt.Equal(at) {
			t.Errorf("record position/time = %d/%v", rec.Position, rec.ArchivedAt)
		}
	}
}

func TestDecode_BadJSON(t *testing.T) {
	if _, err := decode(row{content: []byte("{"), metadata: []byte("{}")}, time.Now()); err == nil {
		t.Error("decode(bad content) expected error")
	}
	if _, err := decode(row{content: []byte("{}"), metadata: []byte("[")}, time.Now()); err == nil {
		t.Error("decode(bad metadata) expected error")
	}
}

func TestLimitArg(t *testing.T) {
	if limitArg(0) != nil || limitArg(-1) != nil {
		t.Error("non-positive limit should be nil")
	}
	if p := limitArg(3); p == nil || *p != 3 {
		t.Errorf("limitArg(3) = %v", p)
	}
}

// exerciseArchive runs the shared archive contract against a live store.
func exerciseArchive(t *testing.T, a Archiver) {
	t.Helper()
	ctx := context.Background()

	if err := a.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	if err := a.EnsureSchema(ctx); err != nil {
		t.Fatalf("second EnsureSchema() error = %v", err)
	}

	if err := a.Archive(ctx, "", sampleEntries()); !errors.Is(err, ErrSessionRequired) {
		t.Errorf("Archive(no session) error = %v", err)
	}
	if err := a.Archive(ctx, "s1", sampleEntries()); err != nil {
		t.Fatalf("Archive() error = %v", err)
	}
	extra := history.Entry{ID: "e3", Message: types.NewTextMessage(types.RoleAssistant, "bye")}
	if err := a.Archive(ctx, "s1", []history.Entry{extra}); err != nil {
		t.Fatalf("Archive(extra) error = %v", err)
	}
	if err := a.Archive(ctx, "s2", sampleEntries()[:1]); err != nil {
		t.Fatalf("Archive(s2) error = %v", err)
	}

	all, err := a.Archived(ctx, "s1", 0)
	if err != nil {
		t.Fatalf("Archived() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("Archived() = %d records, want 3", len(all))
	}
	for i, want := range []string{"e1", "e2", "e3"} {
		if all[i].Entry.ID != want || all[i].Position != i {
			t.Errorf("record %d = %s@%d, want %s@%d", i, all[i].Entry.ID, all[i].Position, want, i)
		}
	}
	if all[1].Entry.ParentID != "e1" || !all[1].Entry.Message.HasToolUse() {
		t.Errorf("tool entry round trip = %+v", all[1].Entry)
	}

	newest, err := a.Archived(ctx, "s1", 2)
	if err != nil || len(newest) != 2 || newest[0].Entry.ID != "e2" {
		t.Errorf("Archived(limit 2) = %v, %v", newest, err)
	}

	found, err := a.Lookup(ctx, "s1", []string{"e3", "missing"})
	if err != nil || len(found) != 1 || found[0].Entry.Message.Text() != "bye" {
		t.Errorf("Lookup() = %v, %v", found, err)
	}

	n, err := a.Purge(ctx, "s1")
	if err != nil || n != 3 {
		t.Errorf("Purge() = %d, %v; want 3", n, err)
	}
	if rest, _ := a.Archived(ctx, "s2", 0); len(rest) != 1 {
		t.Errorf("other session affected by Purge: %d records", len(rest))
	}
}

func TestIntegration_PgxArchive(t *testing.T) {
	pool := testutil.NewPool(t)
	table := testutil.TableName(t, "archive")
	testutil.DropTable(t, pool, table)

	a, err := NewPgxArchive(pool, table)
	if err != nil {
		t.Fatalf("NewPgxArchive() error = %v", err)
	}
	exerciseArchive(t, a)
}

func TestIntegration_SQLArchive(t *testing.T) {
	dsn := testutil.DatabaseURL(t)
	pool := testutil.NewPool(t)
	table := testutil.TableName(t, "archive")
	testutil.DropTable(t, pool, table)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("sql.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	a, err := NewSQLArchive(db, table)
	if err != nil {
		t.Fatalf("NewSQLArchive() error = %v", err)
	}
	exerciseArchive(t, a)
}

func TestNewArchive_Validation(t *testing.T) {
	if _, err := NewPgxArchive(nil, ""); err == nil {
		t.Error("NewPgxArchive(nil) expected error")
	}
	if _, err := NewSQLArchive(nil, ""); err == nil {
		t.Error("NewSQLArchive(nil) expected error")
	}

	a, err := NewSQLArchive(&sql.DB{}, "")
	if err != nil {
		t.Fatalf("NewSQLArchive() error = %v", err)
	}
	if a.Table() != DefaultTable || a.ident != `"agentcore_history_archive"` {
		t.Errorf("table = %s ident = %s", a.Table(), a.ident)
	}
}
