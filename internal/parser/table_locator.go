package parser

import "sort"

// HeaderCandidate 表头候选（单行或两行）
type HeaderCandidate struct {
	Row        int                 // 起始行号
	Span       int                 // 1 或 2
	Columns    map[int]HeaderField // 列号（1 起）-> 字段
	Texts      map[int]string      // 列号 -> 表头原文
	KeyCount   int
	FieldCount int
}

// EndRow 表头最后一行
func (c HeaderCandidate) EndRow() int {
	return c.Row + c.Span - 1
}

// Usable 能否支撑业务字段：名称、金额、或数量 + 单价
func (c HeaderCandidate) Usable() bool {
	return hasField(c.Columns, FieldName) ||
		hasField(c.Columns, FieldAmount) ||
		(hasField(c.Columns, FieldQuantity) && hasField(c.Columns, FieldUnitPrice))
}

// betterThan 冲突时的优先级：关键字段多 > 字段总数多 > 单行优先
func (c HeaderCandidate) betterThan(o HeaderCandidate) bool {
	if c.KeyCount != o.KeyCount {
		return c.KeyCount > o.KeyCount
	}
	if c.FieldCount != o.FieldCount {
		return c.FieldCount > o.FieldCount
	}
	return c.Span < o.Span
}

// Section 一个表头及其数据区
type Section struct {
	Header    HeaderCandidate
	DataStart int
	DataEnd   int
	HasNext   bool // 下方还有其他表头
}

// LocateResult 表格定位结果
type LocateResult struct {
	Sections    []Section         // 可用区段（按行升序）
	Discarded   []HeaderCandidate // 去重后因缺少必需字段被丢弃的表头
	Diagnostics []HeaderCandidate // 诊断用：所有至少识别出一个字段的行
}

// TableLocator 在工作表中查找表头与数据区
type TableLocator struct {
	mapper *FieldMapper
	opts   Options
}

// NewTableLocator 创建定位器
func NewTableLocator(mapper *FieldMapper, opts Options) *TableLocator {
	return &TableLocator{mapper: mapper, opts: opts}
}

// Locate 扫描表头窗口，返回区段列表
func (l *TableLocator) Locate(sheet Sheet) LocateResult {
	var result LocateResult

	lastRow := min(sheet.MaxRow(), l.opts.HeaderSearchRows)
	lastCol := min(sheet.MaxCol(), l.opts.HeaderSearchCols)
	if lastRow < 1 || lastCol < 1 {
		return result
	}

	// 缓存表头窗口的合并解析文本
	texts := make([][]string, lastRow+1)
	mappings := make([]map[int]HeaderField, lastRow+1)
	for r := 1; r <= lastRow; r++ {
		row := make([]string, lastCol)
		for c := 1; c <= lastCol; c++ {
			row[c-1] = NormalizeText(sheet.Cell(r, c))
		}
		texts[r] = row
		mapping := make(map[int]HeaderField)
		for idx, f := range l.mapper.MapRowToHeader(row) {
			mapping[idx+1] = f
		}
		mappings[r] = mapping
	}

	var candidates []HeaderCandidate
	for r := 1; r <= lastRow; r++ {
		mapping := mappings[r]
		if len(mapping) == 0 {
			continue
		}
		single := newCandidate(r, 1, mapping, texts)
		result.Diagnostics = append(result.Diagnostics, single)

		switch {
		case single.KeyCount >= l.opts.MinKeyFields:
			candidates = append(candidates, single)
		case single.KeyCount == 1 && r < lastRow:
			merged := mergeHeaderRows(mapping, mappings[r+1])
			two := newCandidate(r, 2, merged, texts)
			if two.KeyCount >= l.opts.MinKeyFields {
				candidates = append(candidates, two)
			}
		}
	}

	resolved := l.resolveConflicts(candidates)

	for i, h := range resolved {
		sec := Section{Header: h, DataStart: h.EndRow() + 1}
		if i+1 < len(resolved) {
			sec.DataEnd = resolved[i+1].Row - 1
			sec.HasNext = true
		} else {
			sec.DataEnd = sheet.MaxRow()
			if l.opts.MaxDataRows > 0 {
				sec.DataEnd = min(sec.DataEnd, h.EndRow()+l.opts.MaxDataRows)
			}
		}
		if !h.Usable() {
			result.Discarded = append(result.Discarded, h)
			continue
		}
		result.Sections = append(result.Sections, sec)
	}
	return result
}

// resolveConflicts 合并重叠或相邻的候选，保留优先级更高者
func (l *TableLocator) resolveConflicts(candidates []HeaderCandidate) []HeaderCandidate {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Row < candidates[j].Row
	})
	var kept []HeaderCandidate
	for _, c := range candidates {
		if len(kept) == 0 {
			kept = append(kept, c)
			continue
		}
		last := kept[len(kept)-1]
		if !l.conflicts(last, c) {
			kept = append(kept, c)
			continue
		}
		if c.betterThan(last) {
			kept[len(kept)-1] = c
		}
	}
	return kept
}

// conflicts 行区间相交或间隔小于最小间距
func (l *TableLocator) conflicts(a, b HeaderCandidate) bool {
	if b.Row <= a.EndRow() && a.Row <= b.EndRow() {
		return true
	}
	gap := b.Row - a.EndRow() - 1
	return gap < l.opts.MinHeaderGap
}

// mergeHeaderRows 合并两行表头，较强的一行优先，强度相同时保留第一行
func mergeHeaderRows(first, second map[int]HeaderField) map[int]HeaderField {
	strong, weak := first, second
	if countKeys(second) > countKeys(first) ||
		(countKeys(second) == countKeys(first) && len(second) > len(first)) {
		strong, weak = second, first
	}
	merged := make(map[int]HeaderField, len(strong)+len(weak))
	present := make(map[HeaderField]bool)
	for col, f := range strong {
		merged[col] = f
		present[f] = true
	}
	for _, col := range sortedColumns(weak) {
		f := weak[col]
		if _, taken := merged[col]; taken || present[f] {
			continue
		}
		merged[col] = f
		present[f] = true
	}
	return merged
}

func newCandidate(row, span int, mapping map[int]HeaderField, texts [][]string) HeaderCandidate {
	c := HeaderCandidate{
		Row:        row,
		Span:       span,
		Columns:    mapping,
		Texts:      make(map[int]string, len(mapping)),
		KeyCount:   countKeys(mapping),
		FieldCount: len(mapping),
	}
	for col := range mapping {
		for r := row; r < row+span && r < len(texts); r++ {
			if t := texts[r][col-1]; t != "" {
				c.Texts[col] = t
				break
			}
		}
	}
	return c
}
