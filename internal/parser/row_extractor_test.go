package parser

import (
	"fmt"
	"math"
	"testing"

	"sitebook/internal/model"
)

func f64(v float64) *float64 { return &v }

func extractAll(t *testing.T, g *Grid) []model.LineItem {
	t.Helper()
	opts := DefaultOptions()
	vocab := DefaultVocabulary()
	res := NewTableLocator(NewFieldMapper(vocab), opts).Locate(g)
	ex := NewRowExtractor(vocab, opts)
	var lines []model.LineItem
	for i, sec := range res.Sections {
		lines = append(lines, ex.Extract(g, sec, i+1)...)
	}
	return lines
}

func TestReconcile_Rules(t *testing.T) {
	t.Parallel()

	// a. 金额 = 数量 × 单价
	f := Figures{Quantity: f64(2.5), UnitPrice: f64(1201)}
	Reconcile(&f, "式")
	if f.Amount == nil || *f.Amount != 3003 {
		t.Fatalf("amount=%v, want 3003", f.Amount)
	}

	// b. 数量 = 金额 / 单价
	f = Figures{UnitPrice: f64(3000), Amount: f64(10000)}
	Reconcile(&f, "式")
	if f.Quantity == nil || *f.Quantity != 3.33 {
		t.Fatalf("quantity=%v, want 3.33", f.Quantity)
	}

	// c. 单价 = 金额 / 数量
	f = Figures{Quantity: f64(3), Amount: f64(10000)}
	Reconcile(&f, "式")
	if f.UnitPrice == nil || *f.UnitPrice != 3333 {
		t.Fatalf("unit price=%v, want 3333", f.UnitPrice)
	}

	// d. 仅有金额时视为一式
	f = Figures{Amount: f64(50000)}
	Reconcile(&f, "式")
	if f.Quantity == nil || *f.Quantity != 1 || f.UnitPrice == nil || *f.UnitPrice != 50000 || f.Unit != "式" {
		t.Fatalf("lump sum figures=%+v", f)
	}

	// 单价为 0 时不推导数量
	f = Figures{UnitPrice: f64(0), Amount: f64(100)}
	Reconcile(&f, "式")
	if f.Quantity != nil {
		t.Fatalf("quantity=%v, want nil", *f.Quantity)
	}

	// 三项齐全时不改动
	f = Figures{Quantity: f64(2), UnitPrice: f64(100), Amount: f64(999)}
	Reconcile(&f, "式")
	if *f.Amount != 999 {
		t.Fatalf("amount=%v, want 999 unchanged", *f.Amount)
	}
}

func TestReconcile_HalfAwayFromZero(t *testing.T) {
	t.Parallel()

	f := Figures{Quantity: f64(0.5), UnitPrice: f64(3333)}
	Reconcile(&f, "式")
	if *f.Amount != 1667 {
		t.Fatalf("amount=%v, want 1667", *f.Amount)
	}
	f = Figures{Quantity: f64(-0.5), UnitPrice: f64(3333)}
	Reconcile(&f, "式")
	if *f.Amount != -1667 {
		t.Fatalf("amount=%v, want -1667", *f.Amount)
	}
}

func TestReconcile_CrossDerivationConsistency(t *testing.T) {
	t.Parallel()

	quantities := []float64{0.5, 1, 2.75, 10, 123.45}
	prices := []float64{100, 2500, 3333, 12.5}
	for _, q := range quantities {
		for _, p := range prices {
			f := Figures{Quantity: f64(q), UnitPrice: f64(p)}
			Reconcile(&f, "式")
			want := math.Round(q * p)
			if f.Amount == nil || *f.Amount != want {
				t.Fatalf("q=%v p=%v amount=%v, want %v", q, p, f.Amount, want)
			}

			back := Figures{UnitPrice: f64(p), Amount: f64(want)}
			Reconcile(&back, "式")
			if back.Quantity == nil {
				t.Fatalf("q=%v p=%v: quantity not derived", q, p)
			}
			tolerance := 0.5/p + 0.005 + 1e-9
			if diff := math.Abs(*back.Quantity - q); diff > tolerance {
				t.Fatalf("q=%v p=%v derived=%v diff=%v > %v", q, p, *back.Quantity, diff, tolerance)
			}
		}
	}
}

func TestExtract_SkipRules(t *testing.T) {
	t.Parallel()

	g := NewGrid("skip")
	g.SetRow(1, estimateHeader...)
	g.SetRow(2, "舗装工", "10", "m2", "3000", "30000")
	g.SetRow(3, "合計", "", "", "", "30000")
	g.SetRow(4, "小計", "", "", "", "30000")

	lines := extractAll(t, g)
	if len(lines) != 1 {
		t.Fatalf("lines=%d, want 1", len(lines))
	}
	l := lines[0]
	if l.Name != "舗装工" || l.SourceRow != 2 {
		t.Fatalf("line=%+v", l)
	}
	if *l.Quantity != 10 || *l.UnitPrice != 3000 || *l.Amount != 30000 || *l.Unit != "m2" {
		t.Fatalf("figures q=%v p=%v a=%v u=%v", *l.Quantity, *l.UnitPrice, *l.Amount, *l.Unit)
	}
}

func TestExtract_MoreSkipRules(t *testing.T) {
	t.Parallel()

	g := NewGrid("skip2")
	g.SetRow(1, estimateHeader...)
	g.SetRow(2, "共通仮設工事")
	g.SetRow(3, "仮囲い", 50, "m", 2000, nil)
	g.SetRow(4, "直接工事費計", nil, nil, nil, 100000)
	g.SetRow(5, "消 費 税", nil, nil, nil, 10000)
	g.SetRow(6, "※ 別途工事は含みません", nil, nil, nil, 1)
	g.SetRow(7, "Grand Total", nil, nil, nil, 110000)
	g.SetRow(8, "税込合計額", nil, nil, nil, 110000)
	g.SetRow(9, "設計図書")
	g.SetRow(10, "養生", nil, nil, nil, 15000)
	g.SetRow(11, "小計工事", nil, nil, nil, 50000)

	lines := extractAll(t, g)
	if len(lines) != 2 {
		t.Fatalf("lines=%d, want 2: %+v", len(lines), lines)
	}
	if lines[0].Name != "仮囲い" || lines[0].Group != "共通仮設工事" || *lines[0].Amount != 100000 {
		t.Fatalf("line 0=%+v", lines[0])
	}
	if lines[1].Name != "養生" || lines[1].Group != "設計図書" || lines[1].SourceRow != 10 {
		t.Fatalf("line 1=%+v", lines[1])
	}
	if *lines[1].Quantity != 1 || *lines[1].UnitPrice != 15000 || *lines[1].Unit != "式" {
		t.Fatalf("line 1 lump-sum figures=%+v", lines[1])
	}
}

func TestExtract_LumpSumInference(t *testing.T) {
	t.Parallel()

	g := NewGrid("lump")
	g.SetRow(1, estimateHeader...)
	g.SetRow(2, "仮設工事一式", nil, nil, nil, 150000)
	g.SetRow(3, "交通誘導", nil, "式", 45000, nil)

	lines := extractAll(t, g)
	if len(lines) != 2 {
		t.Fatalf("lines=%d, want 2", len(lines))
	}
	if *lines[0].Quantity != 1 || *lines[0].Unit != "式" || *lines[0].UnitPrice != 150000 {
		t.Fatalf("line 0=%+v", lines[0])
	}
	if *lines[1].Quantity != 1 || *lines[1].Amount != 45000 {
		t.Fatalf("line 1=%+v", lines[1])
	}
}

func TestExtract_EmptyRowTermination(t *testing.T) {
	t.Parallel()

	build := func(gap int) *Grid {
		g := NewGrid("tail")
		g.SetRow(1, estimateHeader...)
		g.SetRow(2, "土工", 10, "m3", 3000, nil)
		g.SetRow(3+gap, "残土処分", nil, nil, nil, 5000)
		return g
	}

	if lines := extractAll(t, build(9)); len(lines) != 2 {
		t.Fatalf("gap 9: lines=%d, want 2", len(lines))
	}
	if lines := extractAll(t, build(10)); len(lines) != 1 {
		t.Fatalf("gap 10: lines=%d, want 1", len(lines))
	}
}

func TestExtract_EmptyRowLimitBeforeNextSection(t *testing.T) {
	t.Parallel()

	build := func(gap int) *Grid {
		g := NewGrid("gap")
		g.SetRow(1, estimateHeader...)
		g.SetRow(2, "土工", 10, "m3", 3000, nil)
		g.SetRow(3+gap, "残土処分", nil, nil, nil, 5000)
		g.SetRow(60, estimateHeader...)
		g.SetRow(61, "足場", 100, "m2", 800, nil)
		return g
	}

	lines := extractAll(t, build(15))
	if len(lines) != 3 {
		t.Fatalf("gap 15: lines=%d, want 3", len(lines))
	}
	if lines[1].SourceRow != 18 || lines[1].Section != 1 {
		t.Fatalf("gap 15: line 1 row=%d section=%d, want 18/1", lines[1].SourceRow, lines[1].Section)
	}

	lines = extractAll(t, build(20))
	if len(lines) != 2 {
		t.Fatalf("gap 20: lines=%d, want 2", len(lines))
	}
	if lines[1].Name != "足場" || lines[1].Section != 2 {
		t.Fatalf("gap 20: line 1=%+v", lines[1])
	}
}

func TestExtract_BilingualHeaderNotEmitted(t *testing.T) {
	t.Parallel()

	g := NewGrid("bilingual")
	g.SetRow(3, estimateHeader...)
	g.SetRow(4, "Name", "Qty", "Unit", "Unit Price", "Amount")
	g.SetRow(5, "土工", 10, "m3", 3000, nil)

	lines := extractAll(t, g)
	if len(lines) != 1 {
		t.Fatalf("lines=%d, want 1: %+v", len(lines), lines)
	}
	if lines[0].SourceRow != 5 || lines[0].HeaderRow != 3 {
		t.Fatalf("line row=%d header=%d, want 5/3", lines[0].SourceRow, lines[0].HeaderRow)
	}
}

func TestExtract_HeaderRestatedBeyondSearchWindow(t *testing.T) {
	t.Parallel()

	g := NewGrid("continued")
	g.SetRow(1, estimateHeader...)
	for r := 2; r <= 110; r++ {
		g.SetRow(r, fmt.Sprintf("土工%d", r), 1, "式", 1000, nil)
	}
	g.SetRow(111, estimateHeader...)
	g.SetRow(112, "残土処分", nil, nil, nil, 5000)

	lines := extractAll(t, g)
	if len(lines) != 110 {
		t.Fatalf("lines=%d, want 110", len(lines))
	}
	for _, l := range lines {
		if l.SourceRow == 111 {
			t.Fatalf("restated header emitted as line: %+v", l)
		}
	}
	if last := lines[len(lines)-1]; last.SourceRow != 112 || last.Name != "残土処分" {
		t.Fatalf("last line=%+v", last)
	}
}

func TestExtract_PlaceholderNameAndDropRules(t *testing.T) {
	t.Parallel()

	g := NewGrid("placeholder")
	g.SetRow(1, estimateHeader...)
	g.SetRow(2, nil, 2, "本", 500, nil)
	g.SetRow(3, nil, nil, nil, 0, 0)

	lines := extractAll(t, g)
	if len(lines) != 1 {
		t.Fatalf("lines=%d, want 1", len(lines))
	}
	if lines[0].Name != model.PlaceholderName || *lines[0].Amount != 1000 {
		t.Fatalf("line=%+v", lines[0])
	}
}

func TestKeywordClassifier_Priority(t *testing.T) {
	t.Parallel()

	k := NewKeywordClassifier(DefaultVocabulary())
	cases := map[string]model.CostCategory{
		"普通作業員":    model.CategoryLabor,
		"鉄筋工 労務費":  model.CategoryLabor,
		"外注 塗装工事":  model.CategorySubcontract,
		"生コンクリート":  model.CategoryMaterial,
		"ﾊﾞｯｸﾎｳ損料": model.CategoryMachinery,
		"諸経費":      model.CategoryExpense,
		"":         model.CategoryExpense,
	}
	for name, want := range cases {
		if got := k.Classify(name); got != want {
			t.Fatalf("Classify(%q)=%s, want %s", name, got, want)
		}
	}
}
