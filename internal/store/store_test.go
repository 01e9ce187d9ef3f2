package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"sitebook/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(DriverSQLite, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func f64(v float64) *float64 { return &v }
func str(v string) *string   { return &v }

func draftImport(id string, lines ...model.LineItem) *model.Import {
	report := model.NewIngestionReport()
	report.TotalLines = len(lines)
	return &model.Import{
		ID:        id,
		ProjectID: "P-1",
		Filename:  "見積.xlsx",
		LineCount: len(lines),
		Report:    report,
		Lines:     lines,
		CreatedAt: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC),
	}
}

func sampleLine(name string) model.LineItem {
	return model.LineItem{
		SheetName: "内訳", SourceRow: 4, Section: 1, HeaderRow: 3,
		Name: name, Quantity: f64(10), Unit: str("m3"), UnitPrice: f64(3000), Amount: f64(30000),
		Category: model.CategoryMaterial, CategorySource: model.CategorySourceKeyword,
	}
}

func TestStore_DraftThenCommit(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	if err := s.CreateImport(ctx, draftImport("imp-1", sampleLine("生コン"), sampleLine("鉄筋"))); err != nil {
		t.Fatalf("create: %v", err)
	}

	imp, err := s.GetImport(ctx, "imp-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if imp.Status != model.ImportStatusDraft || imp.LineCount != 2 || imp.Report.TotalLines != 2 {
		t.Fatalf("import=%+v", imp)
	}
	draft, err := s.ListImportLines(ctx, "imp-1")
	if err != nil || len(draft) != 2 {
		t.Fatalf("draft lines=%d err=%v", len(draft), err)
	}

	committed, err := s.CommitImport(ctx, "imp-1")
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if committed.Status != model.ImportStatusCommitted || committed.CommittedAt == nil {
		t.Fatalf("committed=%+v", committed)
	}
	lines, err := s.ListImportLines(ctx, "imp-1")
	if err != nil {
		t.Fatalf("lines: %v", err)
	}
	if len(lines) != 2 || lines[1].Name != "鉄筋" || *lines[1].Amount != 30000 || *lines[1].Unit != "m3" || lines[1].Note != nil {
		t.Fatalf("lines=%+v", lines)
	}

	if _, err := s.CommitImport(ctx, "imp-1"); !errors.Is(err, ErrAlreadyCommitted) {
		t.Fatalf("second commit err=%v, want ErrAlreadyCommitted", err)
	}
}

func TestStore_CommitIsAtomic(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	if err := s.CreateImport(ctx, draftImport("imp-bad", sampleLine("型枠"), sampleLine(""))); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.CommitImport(ctx, "imp-bad"); err == nil {
		t.Fatalf("expected commit to fail on empty name")
	}

	imp, err := s.GetImport(ctx, "imp-bad")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if imp.Status != model.ImportStatusDraft {
		t.Fatalf("status=%s, want draft", imp.Status)
	}
	committed, err := s.committedLines(ctx, "imp-bad")
	if err != nil {
		t.Fatalf("committed lines: %v", err)
	}
	if len(committed) != 0 {
		t.Fatalf("committed lines=%d, want 0", len(committed))
	}
}

func TestStore_NotFound(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	if _, err := s.GetImport(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get err=%v", err)
	}
	if _, err := s.ListImportLines(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("lines err=%v", err)
	}
	if _, err := s.CommitImport(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("commit err=%v", err)
	}
}

func TestStore_ListImportsByProject(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	a := draftImport("a")
	b := draftImport("b")
	b.CreatedAt = a.CreatedAt.Add(time.Hour)
	c := draftImport("c")
	c.ProjectID = "P-2"
	for _, imp := range []*model.Import{a, b, c} {
		if err := s.CreateImport(ctx, imp); err != nil {
			t.Fatalf("create %s: %v", imp.ID, err)
		}
	}

	got, err := s.ListImports(ctx, "P-1", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].ID != "b" || got[1].ID != "a" {
		t.Fatalf("imports=%+v", got)
	}
	all, err := s.ListImports(ctx, "", 10)
	if err != nil || len(all) != 3 {
		t.Fatalf("all=%d err=%v", len(all), err)
	}
}

func TestRebind(t *testing.T) {
	t.Parallel()

	pg := &Store{driver: DriverPostgres}
	if got := pg.rebind("SELECT * FROM t WHERE a = ? AND b = ?"); got != "SELECT * FROM t WHERE a = $1 AND b = $2" {
		t.Fatalf("got %q", got)
	}
	lite := &Store{driver: DriverSQLite}
	if got := lite.rebind("a = ?"); got != "a = ?" {
		t.Fatalf("got %q", got)
	}
}

func TestNew_UnsupportedDriver(t *testing.T) {
	t.Parallel()

	if _, err := New("oracle", "x"); err == nil {
		t.Fatalf("expected error")
	}
}
