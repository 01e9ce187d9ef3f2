package parser

import (
	"sort"
	"strings"
	"unicode/utf8"
)

// minHeaderRunes 规范化后短于该长度的表头不参与比对
const minHeaderRunes = 2

// FieldMapper 表头同义词匹配器
type FieldMapper struct {
	synonyms map[HeaderField][]string // 已规范化
}

// NewFieldMapper 根据词表创建匹配器
func NewFieldMapper(vocab *Vocabulary) *FieldMapper {
	m := &FieldMapper{synonyms: make(map[HeaderField][]string, len(AllFields))}
	for _, f := range AllFields {
		for _, s := range vocab.Fields[f] {
			n := NormalizeHeaderText(s)
			if utf8.RuneCountInString(n) < minHeaderRunes {
				continue
			}
			m.synonyms[f] = append(m.synonyms[f], n)
		}
	}
	return m
}

var defaultMapper = NewFieldMapper(DefaultVocabulary())

// MatchesField 使用内置词表判断表头是否对应字段
func MatchesField(header string, field HeaderField) bool {
	return defaultMapper.MatchesField(header, field)
}

// MapRowToHeader 使用内置词表映射一行表头
func MapRowToHeader(cells []string) map[int]HeaderField {
	return defaultMapper.MapRowToHeader(cells)
}

// MatchesField 规范化后双向包含即视为匹配
func (m *FieldMapper) MatchesField(header string, field HeaderField) bool {
	return m.matchNormalized(NormalizeHeaderText(header), field)
}

func (m *FieldMapper) matchNormalized(h string, field HeaderField) bool {
	if utf8.RuneCountInString(h) < minHeaderRunes {
		return false
	}
	for _, syn := range m.synonyms[field] {
		if strings.Contains(h, syn) || strings.Contains(syn, h) {
			return true
		}
	}
	return false
}

// MapRowToHeader 映射一行表头：列索引 -> 字段
// 每列取枚举顺序中第一个匹配且尚未被同行前列占用的字段
func (m *FieldMapper) MapRowToHeader(cells []string) map[int]HeaderField {
	result := make(map[int]HeaderField)
	assigned := make(map[HeaderField]bool)
	for idx, cell := range cells {
		h := NormalizeHeaderText(cell)
		if h == "" {
			continue
		}
		for _, f := range AllFields {
			if assigned[f] {
				continue
			}
			if m.matchNormalized(h, f) {
				result[idx] = f
				assigned[f] = true
				break
			}
		}
	}
	return result
}

// countKeys 统计映射中的关键字段数
func countKeys(mapping map[int]HeaderField) int {
	n := 0
	for _, f := range mapping {
		if f.IsKey() {
			n++
		}
	}
	return n
}

// hasField 映射中是否包含字段
func hasField(mapping map[int]HeaderField, field HeaderField) bool {
	_, ok := columnOf(mapping, field)
	return ok
}

// columnOf 字段所在列
func columnOf(mapping map[int]HeaderField, field HeaderField) (int, bool) {
	for col, f := range mapping {
		if f == field {
			return col, true
		}
	}
	return 0, false
}

// sortedColumns 按列号升序
func sortedColumns(mapping map[int]HeaderField) []int {
	cols := make([]int, 0, len(mapping))
	for c := range mapping {
		cols = append(cols, c)
	}
	sort.Ints(cols)
	return cols
}
