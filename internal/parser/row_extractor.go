package parser

import (
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"golang.org/x/text/width"

	"sitebook/internal/model"
)

// RowExtractor 从区段数据区提取明细行
type RowExtractor struct {
	vocab      *Vocabulary
	mapper     *FieldMapper
	classifier *KeywordClassifier
	opts       Options
	summary    map[string]bool
}

// NewRowExtractor 创建明细提取器
func NewRowExtractor(vocab *Vocabulary, opts Options) *RowExtractor {
	e := &RowExtractor{
		vocab:      vocab,
		mapper:     NewFieldMapper(vocab),
		classifier: NewKeywordClassifier(vocab),
		opts:       opts,
		summary:    make(map[string]bool, len(vocab.SummaryLabels)),
	}
	for _, s := range vocab.SummaryLabels {
		e.summary[strings.ToLower(compactText(width.Fold.String(s)))] = true
	}
	return e
}

// Figures 数量、单价、金额与单位
type Figures struct {
	Quantity  *float64
	UnitPrice *float64
	Amount    *float64
	Unit      string
}

// rawRow 一行的原始字段值
type rawRow struct {
	Figures
	name, breakdown, note string
}

// Extract 提取区段内的明细
func (e *RowExtractor) Extract(sheet Sheet, sec Section, sectionIndex int) []model.LineItem {
	limit := e.opts.EmptyRowLimit
	if sec.HasNext {
		limit = e.opts.EmptyRowLimitBeforeNext
	}

	var lines []model.LineItem
	emptyRun := 0
	group := ""
	for r := sec.DataStart; r <= sec.DataEnd; r++ {
		row := e.readRow(sheet, sec.Header, r)

		if row.name == "" && row.Amount == nil && row.UnitPrice == nil {
			emptyRun++
			if emptyRun >= limit {
				break
			}
			continue
		}
		emptyRun = 0

		if e.isRepeatedHeader(sheet, row, r) {
			continue
		}
		if skip, banner := e.skipRow(row); skip {
			if banner != "" {
				group = banner
			}
			continue
		}

		e.inferLumpSum(&row)
		Reconcile(&row.Figures, e.vocab.LumpSumUnit)

		if row.name == "" && (row.Amount == nil || *row.Amount == 0) {
			continue
		}

		line := model.LineItem{
			SheetName:      sheet.Name(),
			SourceRow:      r,
			Section:        sectionIndex,
			HeaderRow:      sec.Header.Row,
			Group:          group,
			Name:           row.name,
			Breakdown:      row.breakdown,
			Quantity:       row.Quantity,
			Unit:           optionalString(row.Unit),
			UnitPrice:      row.UnitPrice,
			Amount:         row.Amount,
			Note:           optionalString(row.note),
			CategorySource: model.CategorySourceKeyword,
		}
		if line.Name == "" {
			line.Name = model.PlaceholderName
		}
		line.Category = e.classifier.Classify(row.name)
		lines = append(lines, line)
	}
	return lines
}

func (e *RowExtractor) readRow(sheet Sheet, h HeaderCandidate, r int) rawRow {
	var row rawRow
	for col, f := range h.Columns {
		c := sheet.Cell(r, col)
		switch f {
		case FieldName:
			row.name = NormalizeText(c)
		case FieldBreakdown:
			row.breakdown = NormalizeText(c)
		case FieldUnit:
			row.Unit = NormalizeText(c)
		case FieldNote:
			row.note = NormalizeText(c)
		case FieldQuantity:
			row.Quantity = NormalizeNumber(c)
		case FieldUnitPrice:
			row.UnitPrice = NormalizeNumber(c)
		case FieldAmount:
			row.Amount = NormalizeNumber(c)
		}
	}
	return row
}

// isRepeatedHeader 数据区内重复出现的表头行（如日英双行表头、超出搜索窗口的续页表头）
func (e *RowExtractor) isRepeatedHeader(sheet Sheet, row rawRow, r int) bool {
	if row.Quantity != nil || row.UnitPrice != nil || row.Amount != nil {
		return false
	}
	lastCol := min(sheet.MaxCol(), e.opts.HeaderSearchCols)
	cells := make([]string, lastCol)
	for c := 1; c <= lastCol; c++ {
		cells[c-1] = NormalizeText(sheet.Cell(r, c))
	}
	return countKeys(e.mapper.MapRowToHeader(cells)) >= e.opts.MinKeyFields
}

// skipRow 小计 / 合计 / 税 / 注记 / 分类标题行，分类标题行同时返回标题文本
func (e *RowExtractor) skipRow(row rawRow) (skip bool, banner string) {
	label := row.name
	if label == "" {
		label = row.breakdown
	}
	if label == "" {
		return false, ""
	}

	compact := compactText(label)
	folded := strings.ToLower(width.Fold.String(compact))
	if e.summary[folded] {
		return true, ""
	}

	normalized := NormalizeHeaderText(label)
	if strings.HasSuffix(normalized, "計") && utf8.RuneCountInString(normalized) <= e.opts.SubtotalSuffixMaxLen {
		return true, ""
	}
	for _, w := range e.vocab.TotalWords {
		if strings.Contains(folded, strings.ToLower(compactText(w))) {
			return true, ""
		}
	}
	for _, mark := range e.vocab.FootnoteMarks {
		if strings.HasPrefix(compact, mark) || strings.HasPrefix(folded, mark) {
			return true, ""
		}
	}
	if row.Amount == nil && row.UnitPrice == nil {
		for _, suffix := range e.vocab.BannerSuffixes {
			if strings.HasSuffix(compact, suffix) {
				return true, strings.TrimSpace(label)
			}
		}
	}
	return false, ""
}

// inferLumpSum 数量缺失时识别「一式」
func (e *RowExtractor) inferLumpSum(row *rawRow) {
	if row.Quantity != nil {
		return
	}
	isMarker := func(s string) bool {
		s = compactText(s)
		if s == "" {
			return false
		}
		if s == e.vocab.LumpSumUnit {
			return true
		}
		for _, w := range e.vocab.LumpSumWords {
			if strings.Contains(s, w) {
				return true
			}
		}
		return false
	}
	unitMarker := isMarker(row.Unit)
	if !isMarker(row.name) && !isMarker(row.breakdown) && !unitMarker {
		return
	}
	q := 1.0
	row.Quantity = &q
	if row.Unit == "" || unitMarker {
		row.Unit = e.vocab.LumpSumUnit
	}
}

// Reconcile 数量 / 单价 / 金额互相推导，仅应用第一条适用规则
// 金额、单价取整到个位，数量保留两位小数（四舍五入，远离零）
func Reconcile(f *Figures, lumpSumUnit string) {
	q, p, a := f.Quantity, f.UnitPrice, f.Amount
	switch {
	case a == nil && q != nil && p != nil:
		v := roundTo(decimal.NewFromFloat(*q).Mul(decimal.NewFromFloat(*p)), 0)
		f.Amount = &v
	case q == nil && a != nil && p != nil && *p != 0:
		v := roundTo(decimal.NewFromFloat(*a).Div(decimal.NewFromFloat(*p)), 2)
		f.Quantity = &v
	case p == nil && a != nil && q != nil && *q != 0:
		v := roundTo(decimal.NewFromFloat(*a).Div(decimal.NewFromFloat(*q)), 0)
		f.UnitPrice = &v
	case q == nil && p == nil && a != nil && *a != 0:
		one, price := 1.0, *a
		f.Quantity = &one
		f.UnitPrice = &price
		if f.Unit == "" {
			f.Unit = lumpSumUnit
		}
	}
}

func roundTo(d decimal.Decimal, places int32) float64 {
	f, _ := d.Round(places).Float64()
	return f
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
