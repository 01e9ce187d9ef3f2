package parser

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/schollz/closestmatch"

	"sitebook/internal/model"
)

// 跳过原因
const (
	ReasonNoHeader        = "no header row found"
	ReasonEmptySheet      = "empty sheet"
	ReasonRequiredMissing = "required columns missing"
	ReasonNoDataRows      = "no data rows under detected headers"
	ReasonInternalError   = "internal error"
)

// 参与缺失统计的字段
var statFields = []HeaderField{FieldQuantity, FieldUnit, FieldUnitPrice, FieldAmount}

// 参与缺失列诊断的字段
var reportedFields = []HeaderField{FieldName, FieldQuantity, FieldUnit, FieldUnitPrice, FieldAmount}

const (
	maxSuggestionsPerRow = 5
	maxSuggestionRunes   = 20
)

// sheetOutcome 单个 sheet 的处理结果
type sheetOutcome struct {
	processed *model.ProcessedSheet
	skipped   *model.SkippedSheet
	lines     []model.LineItem
	empty     bool
	headers   []HeaderCandidate // 去重后的全部表头（含被丢弃的）
	diagCount int
	meta      model.DocumentMetadata
}

// reportBuilder 汇总各 sheet 结果
type reportBuilder struct {
	report      model.IngestionReport
	lines       []model.LineItem
	seenFields  map[HeaderField]bool
	anyHeader   bool
	anyContent  bool
	anyDiagnose bool
}

func newReportBuilder() *reportBuilder {
	return &reportBuilder{
		report:     model.NewIngestionReport(),
		lines:      []model.LineItem{},
		seenFields: make(map[HeaderField]bool),
	}
}

func (b *reportBuilder) add(o sheetOutcome) {
	if !o.empty {
		b.anyContent = true
	}
	if o.diagCount > 0 {
		b.anyDiagnose = true
	}
	mergeMetadata(&b.report.Metadata, o.meta)
	for _, h := range o.headers {
		b.anyHeader = true
		for _, f := range h.Columns {
			b.seenFields[f] = true
		}
	}
	if o.processed != nil {
		b.report.SheetsProcessed = append(b.report.SheetsProcessed, *o.processed)
		b.lines = append(b.lines, o.lines...)
	}
	if o.skipped != nil {
		b.report.SheetsSkipped = append(b.report.SheetsSkipped, *o.skipped)
	}
}

func (b *reportBuilder) addError(msg string) {
	b.report.Errors = append(b.report.Errors, msg)
}

func (b *reportBuilder) build() *model.IngestionResult {
	r := b.report
	r.TotalLines = len(b.lines)

	if b.anyHeader {
		for _, f := range reportedFields {
			if !b.seenFields[f] {
				r.MissingColumns = append(r.MissingColumns, f.String())
			}
		}
	}

	for _, f := range statFields {
		missing := 0
		for _, l := range b.lines {
			if lineFieldMissing(l, f) {
				missing++
			}
		}
		r.ValueStats[f.String()] = model.FieldStat{
			Missing:     missing,
			Total:       len(b.lines),
			MissingRate: formatRate(missing, len(b.lines)),
		}
	}

	r.TotalCheck = checkTotals(r.Metadata, b.lines)
	if r.TotalLines == 0 {
		r.ReasonCode = b.reasonCode()
	}
	return &model.IngestionResult{Lines: b.lines, Report: r}
}

// reasonCode 零明细时的原因：empty_workbook > header_not_found > required_columns_missing > no_data_rows
func (b *reportBuilder) reasonCode() model.ReasonCode {
	if !b.anyContent && !b.anyDiagnose {
		return model.ReasonEmptyWorkbook
	}
	noHeader, other := 0, 0
	requiredMissing := false
	for _, s := range b.report.SheetsSkipped {
		switch {
		case s.Reason == ReasonEmptySheet:
		case s.Reason == ReasonNoHeader:
			noHeader++
		default:
			other++
			if strings.HasPrefix(s.Reason, ReasonRequiredMissing) {
				requiredMissing = true
			}
		}
	}
	switch {
	case noHeader > 0 && other == 0:
		return model.ReasonHeaderNotFound
	case requiredMissing:
		return model.ReasonRequiredColumnsMissing
	default:
		return model.ReasonNoDataRows
	}
}

func lineFieldMissing(l model.LineItem, f HeaderField) bool {
	switch f {
	case FieldQuantity:
		return l.Quantity == nil
	case FieldUnit:
		return l.Unit == nil
	case FieldUnitPrice:
		return l.UnitPrice == nil
	case FieldAmount:
		return l.Amount == nil
	default:
		return false
	}
}

func formatRate(missing, total int) string {
	if total == 0 {
		return "0.0%"
	}
	return fmt.Sprintf("%.1f%%", float64(missing)*100/float64(total))
}

// DecodeFailure 工作簿无法打开时的结果（不会 panic）
func DecodeFailure(err error) *model.IngestionResult {
	r := model.NewIngestionReport()
	r.ReasonCode = model.ReasonParseError
	for _, f := range statFields {
		r.ValueStats[f.String()] = model.FieldStat{MissingRate: formatRate(0, 0)}
	}
	if err != nil {
		r.Errors = append(r.Errors, err.Error())
	} else {
		r.Errors = append(r.Errors, "workbook could not be decoded")
	}
	return &model.IngestionResult{Lines: []model.LineItem{}, Report: r}
}

// headerHints 未识别表头的近似同义词提示
type headerHints struct {
	cm      *closestmatch.ClosestMatch
	fieldOf map[string]HeaderField
}

func newHeaderHints(vocab *Vocabulary) *headerHints {
	h := &headerHints{fieldOf: make(map[string]HeaderField)}
	var words []string
	for _, f := range AllFields {
		for _, syn := range vocab.Fields[f] {
			if _, dup := h.fieldOf[syn]; dup {
				continue
			}
			h.fieldOf[syn] = f
			words = append(words, syn)
		}
	}
	h.cm = closestmatch.New(words, []int{2, 3})
	return h
}

func (h *headerHints) suggest(text string) (string, HeaderField, bool) {
	if h == nil || h.cm == nil {
		return "", 0, false
	}
	closest := h.cm.Closest(text)
	if closest == "" {
		return "", 0, false
	}
	f, ok := h.fieldOf[closest]
	return closest, f, ok
}

// summarizeCandidate 诊断用候选摘要，附带未识别单元格的近似提示
func (h *headerHints) summarizeCandidate(sheet Sheet, c HeaderCandidate, maxCol int) model.CandidateSummary {
	s := model.CandidateSummary{
		Row:         c.Row,
		RowSpan:     c.Span,
		KeyFields:   c.KeyCount,
		TotalFields: c.FieldCount,
		Fields:      columnFields(c),
		Suggestions: []model.HeaderSuggestion{},
	}
	for col := 1; col <= maxCol && len(s.Suggestions) < maxSuggestionsPerRow; col++ {
		if _, mapped := c.Columns[col]; mapped {
			continue
		}
		cell := sheet.Cell(c.Row, col)
		if cell.Kind != CellText {
			continue
		}
		text := NormalizeText(cell)
		if text == "" || utf8.RuneCountInString(text) > maxSuggestionRunes || ParseNumberText(text) != nil {
			continue
		}
		closest, f, ok := h.suggest(text)
		if !ok {
			continue
		}
		s.Suggestions = append(s.Suggestions, model.HeaderSuggestion{
			Column:  col,
			Text:    text,
			Closest: closest,
			Field:   f.String(),
		})
	}
	return s
}

// topCandidates 诊断候选排序：关键字段多 > 字段多 > 行号小
func topCandidates(cands []HeaderCandidate, n int) []HeaderCandidate {
	sorted := append([]HeaderCandidate(nil), cands...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.KeyCount != b.KeyCount {
			return a.KeyCount > b.KeyCount
		}
		if a.FieldCount != b.FieldCount {
			return a.FieldCount > b.FieldCount
		}
		return a.Row < b.Row
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

func columnFields(c HeaderCandidate) []model.ColumnField {
	out := make([]model.ColumnField, 0, len(c.Columns))
	for _, col := range sortedColumns(c.Columns) {
		out = append(out, model.ColumnField{
			Column: col,
			Field:  c.Columns[col].String(),
			Header: c.Texts[col],
		})
	}
	return out
}

// requiredMissingReason 说明缺少的必需字段
func requiredMissingReason(headers []HeaderCandidate) string {
	found := make(map[HeaderField]bool)
	for _, h := range headers {
		for _, f := range h.Columns {
			found[f] = true
		}
	}
	var have []string
	for _, f := range AllFields {
		if found[f] {
			have = append(have, f.String())
		}
	}
	return fmt.Sprintf("%s: need name, amount, or quantity with unit_price (found: %s)",
		ReasonRequiredMissing, strings.Join(have, ", "))
}
