package parser

import "testing"

var estimateHeader = []any{"名称", "数量", "単位", "単価", "金額"}

func newTestLocator() *TableLocator {
	return NewTableLocator(NewFieldMapper(DefaultVocabulary()), DefaultOptions())
}

func TestLocate_TwoSections(t *testing.T) {
	t.Parallel()

	g := NewGrid("内訳")
	g.SetRow(1, "御見積書")
	g.SetRow(3, estimateHeader...)
	g.SetRow(4, "土工", 10, "m3", 3000, 30000)
	g.SetRow(5, "型枠工", 20, "m2", 4500, 90000)
	g.SetRow(10, estimateHeader...)
	g.SetRow(11, "足場", 100, "m2", 800, 80000)

	res := newTestLocator().Locate(g)
	if len(res.Sections) != 2 {
		t.Fatalf("sections=%d, want 2", len(res.Sections))
	}
	a, b := res.Sections[0], res.Sections[1]
	if a.Header.Row != 3 || a.DataStart != 4 || a.DataEnd != 9 || !a.HasNext {
		t.Fatalf("section A=%+v", a)
	}
	if b.Header.Row != 10 || b.DataStart != 11 || b.DataEnd != 11 || b.HasNext {
		t.Fatalf("section B=%+v", b)
	}
	if a.Header.KeyCount != 4 || a.Header.FieldCount != 5 {
		t.Fatalf("header A key=%d fields=%d, want 4/5", a.Header.KeyCount, a.Header.FieldCount)
	}
}

func TestLocate_TwoRowHeaderBeatsWeakerSingleRow(t *testing.T) {
	t.Parallel()

	g := NewGrid("split")
	g.SetRow(1, "名称", "仕様")
	g.SetRow(2, nil, nil, "数量", "単価", "金額")
	g.SetRow(3, "舗装工", "t=50", 10, 3000, 30000)

	res := newTestLocator().Locate(g)
	if len(res.Sections) != 1 {
		t.Fatalf("sections=%d, want 1", len(res.Sections))
	}
	h := res.Sections[0].Header
	if h.Row != 1 || h.Span != 2 {
		t.Fatalf("header row=%d span=%d, want 1/2", h.Row, h.Span)
	}
	if h.KeyCount != 4 || h.FieldCount != 5 {
		t.Fatalf("header key=%d fields=%d, want 4/5", h.KeyCount, h.FieldCount)
	}
	if res.Sections[0].DataStart != 3 {
		t.Fatalf("data start=%d, want 3", res.Sections[0].DataStart)
	}
}

func TestLocate_SingleRowPreferredOnTie(t *testing.T) {
	t.Parallel()

	g := NewGrid("tie")
	g.SetRow(1, "数量")
	g.SetRow(2, "名称", "単価")
	g.SetRow(3, "鉄筋工", 12000)

	res := newTestLocator().Locate(g)
	if len(res.Sections) != 1 {
		t.Fatalf("sections=%d, want 1", len(res.Sections))
	}
	h := res.Sections[0].Header
	if h.Row != 2 || h.Span != 1 {
		t.Fatalf("header row=%d span=%d, want 2/1", h.Row, h.Span)
	}
}

func TestLocate_AdjacentHeadersMerged(t *testing.T) {
	t.Parallel()

	g := NewGrid("restated")
	g.SetRow(1, "名称", "数量")
	g.SetRow(2, "名称", "数量", "単価", "金額")
	g.SetRow(3, "土工", 1, 1000, 1000)

	res := newTestLocator().Locate(g)
	if len(res.Sections) != 1 {
		t.Fatalf("sections=%d, want 1", len(res.Sections))
	}
	if res.Sections[0].Header.Row != 2 {
		t.Fatalf("header row=%d, want 2", res.Sections[0].Header.Row)
	}
}

func TestLocate_UnusableHeaderDiscarded(t *testing.T) {
	t.Parallel()

	g := NewGrid("qty-only")
	g.SetRow(1, "数量", "単位", "備考", "単価(参考)")
	g.SetRow(2, 10, "m", "", "")

	mapper := NewFieldMapper(DefaultVocabulary())
	opts := DefaultOptions()
	opts.MinKeyFields = 1
	res := NewTableLocator(mapper, opts).Locate(g)
	if len(res.Sections) != 1 {
		t.Fatalf("sections=%d, want 1 (quantity + unit price is usable)", len(res.Sections))
	}

	g2 := NewGrid("unit-only")
	g2.SetRow(1, "数量", "単位", "備考")
	res = NewTableLocator(mapper, opts).Locate(g2)
	if len(res.Sections) != 0 || len(res.Discarded) != 1 {
		t.Fatalf("sections=%d discarded=%d, want 0/1", len(res.Sections), len(res.Discarded))
	}
}

func TestLocate_NoHeader(t *testing.T) {
	t.Parallel()

	g := NewGrid("memo")
	g.SetRow(1, "本見積書の有効期限は30日です。")
	g.SetRow(2, "ご不明な点はお問い合わせください。")

	res := newTestLocator().Locate(g)
	if len(res.Sections) != 0 || len(res.Diagnostics) != 0 {
		t.Fatalf("sections=%d diagnostics=%d, want 0/0", len(res.Sections), len(res.Diagnostics))
	}
}

func TestGrid_MergedHeaderResolvesToAnchor(t *testing.T) {
	t.Parallel()

	g := NewGrid("merged")
	g.SetRow(5, "名称", nil, "数量", "単価", "金額")
	g.Merge(5, 1, 5, 2)

	for _, col := range []int{1, 2} {
		text := NormalizeText(g.Cell(5, col))
		if text != "名称" {
			t.Fatalf("cell(5,%d)=%q, want 名称", col, text)
		}
		if !MatchesField(text, FieldName) {
			t.Fatalf("cell(5,%d) should match name", col)
		}
	}
	if got := NormalizeText(g.Cell(5, 3)); got != "数量" {
		t.Fatalf("cell(5,3)=%q, want 数量", got)
	}
}
