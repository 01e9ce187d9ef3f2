package parser

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	hjson "github.com/hjson/hjson-go/v4"

	"sitebook/internal/model"
)

// HeaderField 表头语义字段
type HeaderField int

const (
	FieldName HeaderField = iota
	FieldBreakdown
	FieldQuantity
	FieldUnit
	FieldUnitPrice
	FieldAmount
	FieldNote
)

// AllFields 字段枚举顺序（表头比对顺序）
var AllFields = []HeaderField{
	FieldName,
	FieldBreakdown,
	FieldQuantity,
	FieldUnit,
	FieldUnitPrice,
	FieldAmount,
	FieldNote,
}

var fieldKeys = map[HeaderField]string{
	FieldName:      "name",
	FieldBreakdown: "breakdown",
	FieldQuantity:  "quantity",
	FieldUnit:      "unit",
	FieldUnitPrice: "unit_price",
	FieldAmount:    "amount",
	FieldNote:      "note",
}

// String 字段键名（用于报告与配置文件）
func (f HeaderField) String() string {
	if k, ok := fieldKeys[f]; ok {
		return k
	}
	return fmt.Sprintf("field(%d)", int(f))
}

// IsKey 是否为关键字段（名称 / 数量 / 单价 / 金额）
func (f HeaderField) IsKey() bool {
	switch f {
	case FieldName, FieldQuantity, FieldUnitPrice, FieldAmount:
		return true
	default:
		return false
	}
}

// ParseHeaderField 由键名解析字段
func ParseHeaderField(key string) (HeaderField, bool) {
	for f, k := range fieldKeys {
		if k == key {
			return f, true
		}
	}
	return 0, false
}

// CategoryKeywords 成本分类关键词族
type CategoryKeywords struct {
	Category model.CostCategory
	Keywords []string
}

// Vocabulary 表头同义词、分类关键词与跳过规则词表
type Vocabulary struct {
	Fields         map[HeaderField][]string
	Categories     []CategoryKeywords
	SummaryLabels  []string // 完全一致时跳过（小计 / 合计 / 税）
	TotalWords     []string // 包含即跳过
	FootnoteMarks  []string // 行首注记符号
	BannerSuffixes []string // 分类标题行后缀
	LumpSumWords   []string // 一式
	LumpSumUnit    string
}

// DefaultVocabulary 内置词表
func DefaultVocabulary() *Vocabulary {
	return &Vocabulary{
		Fields: map[HeaderField][]string{
			FieldName:      {"名称", "品名", "工種", "項目", "品目", "工事項目", "件名", "name", "item", "description"},
			FieldBreakdown: {"内訳", "仕様", "規格", "形状寸法", "摘要", "spec", "breakdown"},
			FieldQuantity:  {"数量", "員数", "qty", "quantity"},
			FieldUnit:      {"単位", "units", "uom"},
			FieldUnitPrice: {"単価", "unitprice", "unit price"},
			FieldAmount:    {"金額", "価格", "見積額", "amount"},
			FieldNote:      {"備考", "注記", "remarks", "memo", "comment"},
		},
		Categories: []CategoryKeywords{
			{Category: model.CategoryLabor, Keywords: []string{"労務", "人工", "作業員", "職人", "手間", "人件費", "世話役"}},
			{Category: model.CategorySubcontract, Keywords: []string{"外注", "下請", "委託", "協力会社"}},
			{Category: model.CategoryMaterial, Keywords: []string{"材料", "資材", "生コン", "コンクリート", "鉄筋", "鋼材", "木材", "合板", "セメント", "砂利", "アスファルト", "塗料"}},
			{Category: model.CategoryMachinery, Keywords: []string{"機械", "重機", "リース", "レンタル", "損料", "ユンボ", "バックホウ", "クレーン", "ダンプ"}},
		},
		SummaryLabels: []string{
			"小計", "合計", "総合計", "総計", "計", "中計", "累計",
			"消費税", "消費税等", "消費税額", "税込合計", "税抜合計", "税込金額",
			"total", "subtotal",
		},
		TotalWords:     []string{"総合計", "合計", "総計", "小計", "grandtotal", "subtotal"},
		FootnoteMarks:  []string{"※", "*", "＊", "注)", "注）", "(注", "（注"},
		BannerSuffixes: []string{"書", "工事"},
		LumpSumWords:   []string{"一式", "1式", "１式"},
		LumpSumUnit:    "式",
	}
}

// Validate 校验词表，单字符同义词误判过多，不允许出现
func (v *Vocabulary) Validate() error {
	for _, f := range AllFields {
		syns := v.Fields[f]
		if len(syns) == 0 {
			return fmt.Errorf("vocabulary: field %s has no synonyms", f)
		}
		for _, s := range syns {
			if utf8.RuneCountInString(NormalizeHeaderText(s)) < 2 {
				return fmt.Errorf("vocabulary: synonym %q for %s is shorter than two characters", s, f)
			}
		}
	}
	for _, c := range v.Categories {
		if !c.Category.Valid() {
			return fmt.Errorf("vocabulary: unknown cost category %q", c.Category)
		}
	}
	if v.LumpSumUnit == "" {
		return fmt.Errorf("vocabulary: lump-sum unit is empty")
	}
	return nil
}

// VocabularyOverride 词表追加配置（hjson 文件）
type VocabularyOverride struct {
	Fields        map[string][]string `json:"fields"`
	Categories    map[string][]string `json:"categories"`
	SummaryLabels []string            `json:"summaryLabels"`
}

// ParseVocabularyHJSON 解析 hjson 格式的词表追加配置
func ParseVocabularyHJSON(data []byte) (*VocabularyOverride, error) {
	var raw map[string]any
	if err := hjson.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse vocabulary file: %w", err)
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to convert vocabulary file: %w", err)
	}
	var ov VocabularyOverride
	if err := json.Unmarshal(b, &ov); err != nil {
		return nil, fmt.Errorf("failed to decode vocabulary file: %w", err)
	}
	return &ov, nil
}

// Apply 将追加配置合并进词表（追加在内置词之后）
func (v *Vocabulary) Apply(ov *VocabularyOverride) error {
	if ov == nil {
		return nil
	}
	for key, syns := range ov.Fields {
		f, ok := ParseHeaderField(key)
		if !ok {
			return fmt.Errorf("vocabulary: unknown field %q", key)
		}
		v.Fields[f] = appendUnique(v.Fields[f], syns)
	}
	for key, words := range ov.Categories {
		cat := model.CostCategory(key)
		if !cat.Valid() || cat == model.CategoryExpense {
			return fmt.Errorf("vocabulary: unknown cost category %q", key)
		}
		found := false
		for i := range v.Categories {
			if v.Categories[i].Category == cat {
				v.Categories[i].Keywords = appendUnique(v.Categories[i].Keywords, words)
				found = true
			}
		}
		if !found {
			v.Categories = append(v.Categories, CategoryKeywords{Category: cat, Keywords: words})
		}
	}
	v.SummaryLabels = appendUnique(v.SummaryLabels, ov.SummaryLabels)
	return v.Validate()
}

// LoadVocabulary 读取内置词表，path 非空时合并 hjson 追加配置
func LoadVocabulary(path string) (*Vocabulary, error) {
	v := DefaultVocabulary()
	if path == "" {
		return v, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read vocabulary file: %w", err)
	}
	ov, err := ParseVocabularyHJSON(data)
	if err != nil {
		return nil, err
	}
	if err := v.Apply(ov); err != nil {
		return nil, err
	}
	return v, nil
}

func appendUnique(base, extra []string) []string {
	seen := make(map[string]bool, len(base))
	for _, s := range base {
		seen[s] = true
	}
	for _, s := range extra {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		base = append(base, s)
	}
	return base
}
