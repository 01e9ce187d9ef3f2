package parser

import (
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"sitebook/internal/model"
)

type metaField int

const (
	metaProject metaField = iota + 1
	metaClient
	metaSite
	metaPeriod
	metaSubtotal
	metaTax
	metaTotal
)

// 完全一致的标签
var metaExactLabels = map[metaField][]string{
	metaProject:  {"工事名", "工事名称", "工事件名", "件名", "現場名", "物件名"},
	metaClient:   {"発注者", "注文者", "施主", "顧客名", "お客様名"},
	metaSite:     {"工事場所", "施工場所", "現場住所", "所在地", "場所"},
	metaPeriod:   {"工期", "工事期間", "契約工期"},
	metaSubtotal: {"小計", "税抜合計", "税抜金額", "合計税抜", "工事価格", "subtotal"},
	metaTax:      {"消費税", "消費税等", "消費税額"},
	metaTotal:    {"合計", "総合計", "総計", "税込合計", "税込金額", "合計税込", "合計金額", "見積金額", "御見積金額", "請負金額", "工事金額", "総額", "total", "grandtotal"},
}

// 金额标签允许前后缀变化（如「直接工事費小計」「消費税10%」），按顺序判断
var metaAmountAffixes = []struct {
	field metaField
	words []string
}{
	{metaSubtotal, []string{"小計", "税抜", "subtotal"}},
	{metaTax, []string{"消費税"}},
	{metaTotal, []string{"合計", "総計", "総額", "total"}},
}

// 宛名后缀（〇〇建設株式会社 御中）
var clientSuffixes = []string{"御中", "殿"}

const (
	maxMetaLabelRunes  = 12
	maxMetaValueOffset = 9
	maxMetaCellRunes   = 40
	totalTolerance     = 1.0
)

// MetadataExtractor 按关键词邻接查找工事名、発注者、場所、工期与申报金额
type MetadataExtractor struct {
	mapper *FieldMapper
	opts   Options
	exact  map[string]metaField
}

// NewMetadataExtractor 创建文书信息提取器
func NewMetadataExtractor(mapper *FieldMapper, opts Options) *MetadataExtractor {
	m := &MetadataExtractor{mapper: mapper, opts: opts, exact: make(map[string]metaField)}
	for f, labels := range metaExactLabels {
		for _, l := range labels {
			m.exact[NormalizeHeaderText(l)] = f
		}
	}
	return m
}

func (m *MetadataExtractor) classify(text string) (metaField, bool) {
	n := NormalizeHeaderText(text)
	if n == "" {
		return 0, false
	}
	if f, ok := m.exact[n]; ok {
		return f, true
	}
	if utf8.RuneCountInString(n) > maxMetaLabelRunes {
		return 0, false
	}
	for _, a := range metaAmountAffixes {
		for _, w := range a.words {
			if strings.HasPrefix(n, w) || strings.HasSuffix(n, w) {
				return a.field, true
			}
		}
	}
	return 0, false
}

// Extract 扫描单个 sheet
// 文字项取首次出现（表头搜索窗口内），金额取最下方一次出现（总计通常位于各区段小计之下）
func (m *MetadataExtractor) Extract(sheet Sheet) model.DocumentMetadata {
	var meta model.DocumentMetadata
	lastCol := min(sheet.MaxCol(), m.opts.HeaderSearchCols)
	headerRows := make(map[int]bool)

	for r := 1; r <= sheet.MaxRow(); r++ {
		inTextWindow := r <= m.opts.HeaderSearchRows
		for c := 1; c <= lastCol; c++ {
			cell := sheet.Cell(r, c)
			if cell.Kind != CellText || utf8.RuneCountInString(cell.Text) > maxMetaCellRunes {
				continue
			}
			raw := strings.TrimSpace(cell.Text)

			label, inline := splitInlineValue(raw)
			f, ok := m.classify(label)
			if !ok {
				if inTextWindow && meta.Client == "" {
					meta.Client = addresseeName(raw)
				}
				continue
			}
			if !inTextWindow && f < metaSubtotal {
				continue
			}
			if m.isHeaderRow(sheet, r, lastCol, headerRows) {
				break
			}

			switch f {
			case metaSubtotal, metaTax, metaTotal:
				if v := m.amountNear(sheet, r, c, inline); v != nil {
					setAmount(&meta, f, v)
				}
			case metaClient:
				v, _ := trimHonorific(m.textNear(sheet, r, c, inline))
				if v != "" {
					setText(&meta, f, v)
				}
			default:
				if v := m.textNear(sheet, r, c, inline); v != "" {
					setText(&meta, f, v)
				}
			}
		}
	}
	return meta
}

// isHeaderRow 明细表头行上的「件名」「金額」等不是文书信息
func (m *MetadataExtractor) isHeaderRow(sheet Sheet, r, lastCol int, cache map[int]bool) bool {
	if v, ok := cache[r]; ok {
		return v
	}
	cells := make([]string, lastCol)
	for c := 1; c <= lastCol; c++ {
		cells[c-1] = NormalizeText(sheet.Cell(r, c))
	}
	v := len(m.mapper.MapRowToHeader(cells)) >= 2
	cache[r] = v
	return v
}

// textNear 同一单元格冒号后的值，其次右侧第一个非标签单元格，最后是正下方单元格
func (m *MetadataExtractor) textNear(sheet Sheet, r, c int, inline string) string {
	if inline != "" {
		return inline
	}
	for col := c + 1; col <= min(c+maxMetaValueOffset, sheet.MaxCol()); col++ {
		v := NormalizeText(sheet.Cell(r, col))
		if v == "" {
			continue
		}
		if _, isLabel := m.classify(v); isLabel {
			return ""
		}
		return v
	}
	v := NormalizeText(sheet.Cell(r+1, c))
	if _, isLabel := m.classify(v); isLabel {
		return ""
	}
	return v
}

// amountNear 右侧第一个数值单元格，其次正下方单元格
func (m *MetadataExtractor) amountNear(sheet Sheet, r, c int, inline string) *float64 {
	if inline != "" {
		return ParseNumberText(inline)
	}
	for col := c + 1; col <= min(c+maxMetaValueOffset, sheet.MaxCol()); col++ {
		if v := NormalizeNumber(sheet.Cell(r, col)); v != nil {
			return v
		}
	}
	return NormalizeNumber(sheet.Cell(r+1, c))
}

// splitInlineValue 拆分「工事名：〇〇改修工事」
func splitInlineValue(raw string) (label, value string) {
	i := strings.IndexAny(raw, ":：")
	if i < 0 {
		return raw, ""
	}
	_, size := utf8.DecodeRuneInString(raw[i:])
	return strings.TrimSpace(raw[:i]), strings.TrimSpace(raw[i+size:])
}

// addresseeName 「〇〇建設株式会社 御中」「山田太郎 様」形式的宛名
func addresseeName(raw string) string {
	name, ok := trimHonorific(raw)
	if !ok || utf8.RuneCountInString(name) < 2 {
		return ""
	}
	return name
}

// trimHonorific 去除宛名敬称；「様」须与名字间有空格，避免误截「仕様」
func trimHonorific(s string) (string, bool) {
	for _, suffix := range clientSuffixes {
		if strings.HasSuffix(s, suffix) {
			return strings.TrimSpace(strings.TrimSuffix(s, suffix)), true
		}
	}
	if strings.HasSuffix(s, " 様") || strings.HasSuffix(s, "　様") {
		return strings.TrimSpace(strings.TrimSuffix(s, "様")), true
	}
	return s, false
}

func setText(meta *model.DocumentMetadata, f metaField, v string) {
	var dst *string
	switch f {
	case metaProject:
		dst = &meta.ProjectName
	case metaClient:
		dst = &meta.Client
	case metaSite:
		dst = &meta.Site
	case metaPeriod:
		dst = &meta.Period
	default:
		return
	}
	if *dst == "" {
		*dst = v
	}
}

func setAmount(meta *model.DocumentMetadata, f metaField, v *float64) {
	switch f {
	case metaSubtotal:
		meta.Subtotal = v
	case metaTax:
		meta.Tax = v
	case metaTotal:
		meta.Total = v
	}
}

// mergeMetadata 多个 sheet 时，各项以先出现的 sheet 为准
func mergeMetadata(dst *model.DocumentMetadata, src model.DocumentMetadata) {
	if dst.ProjectName == "" {
		dst.ProjectName = src.ProjectName
	}
	if dst.Client == "" {
		dst.Client = src.Client
	}
	if dst.Site == "" {
		dst.Site = src.Site
	}
	if dst.Period == "" {
		dst.Period = src.Period
	}
	if dst.Subtotal == nil {
		dst.Subtotal = src.Subtotal
	}
	if dst.Tax == nil {
		dst.Tax = src.Tax
	}
	if dst.Total == nil {
		dst.Total = src.Total
	}
}

// checkTotals 核对申报金额与明细金额合计：优先小计，其次合计减税，最后合计
func checkTotals(meta model.DocumentMetadata, lines []model.LineItem) *model.TotalCheck {
	if len(lines) == 0 {
		return nil
	}
	var basis string
	var declared decimal.Decimal
	switch {
	case meta.Subtotal != nil:
		basis, declared = model.TotalBasisSubtotal, decimal.NewFromFloat(*meta.Subtotal)
	case meta.Total != nil && meta.Tax != nil:
		basis = model.TotalBasisTotalLessTax
		declared = decimal.NewFromFloat(*meta.Total).Sub(decimal.NewFromFloat(*meta.Tax))
	case meta.Total != nil:
		basis, declared = model.TotalBasisTotal, decimal.NewFromFloat(*meta.Total)
	default:
		return nil
	}

	sum := decimal.Zero
	for _, l := range lines {
		if l.Amount != nil {
			sum = sum.Add(decimal.NewFromFloat(*l.Amount))
		}
	}
	diff := declared.Sub(sum)
	return &model.TotalCheck{
		Basis:      basis,
		Declared:   roundTo(declared, 2),
		LineSum:    roundTo(sum, 2),
		Difference: roundTo(diff, 2),
		Matched:    diff.Abs().LessThan(decimal.NewFromFloat(totalTolerance)),
	}
}
