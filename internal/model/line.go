package model

// CostCategory 成本分类
type CostCategory string

const (
	CategoryLabor       CostCategory = "labor"       // 労務費
	CategorySubcontract CostCategory = "subcontract" // 外注費
	CategoryMaterial    CostCategory = "material"    // 材料費
	CategoryMachinery   CostCategory = "machinery"   // 機械経費
	CategoryExpense     CostCategory = "expense"     // 一般経費（默认）
)

// CostCategories 全部成本分类（按关键词匹配优先级排列）
var CostCategories = []CostCategory{
	CategoryLabor,
	CategorySubcontract,
	CategoryMaterial,
	CategoryMachinery,
	CategoryExpense,
}

// Valid 是否为已知分类
func (c CostCategory) Valid() bool {
	for _, v := range CostCategories {
		if c == v {
			return true
		}
	}
	return false
}

// 分类来源
const (
	CategorySourceKeyword = "keyword"
	CategorySourceAI      = "ai"
)

// PlaceholderName 名称缺失时的占位名称
const PlaceholderName = "(名称なし)"

// LineItem 从表格中重建的一行明细
type LineItem struct {
	SheetName      string       `json:"sheetName"`
	SourceRow      int          `json:"sourceRow"` // 表格中的原始行号（1 起）
	Section        int          `json:"section"`   // 同一 sheet 内的表格序号（1 起）
	HeaderRow      int          `json:"headerRow"` // 所属表头行号
	Group          string       `json:"group"`     // 最近的分类标题行（…工事 / …書）
	Name           string       `json:"name"`
	Breakdown      string       `json:"breakdown"`
	Quantity       *float64     `json:"quantity"`
	Unit           *string      `json:"unit"`
	UnitPrice      *float64     `json:"unitPrice"`
	Amount         *float64     `json:"amount"`
	Note           *string      `json:"note"`
	Category       CostCategory `json:"category"`
	CategorySource string       `json:"categorySource"`
}
