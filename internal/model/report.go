package model

// ReasonCode 零明细时的原因代码
type ReasonCode string

const (
	ReasonParseError             ReasonCode = "parse_error"
	ReasonEmptyWorkbook          ReasonCode = "empty_workbook"
	ReasonHeaderNotFound         ReasonCode = "header_not_found"
	ReasonRequiredColumnsMissing ReasonCode = "required_columns_missing"
	ReasonNoDataRows             ReasonCode = "no_data_rows"
)

// ColumnField 列号与识别出的语义字段
type ColumnField struct {
	Column int    `json:"column"`
	Field  string `json:"field"`
	Header string `json:"header"`
}

// SectionSummary 已处理表格区段
type SectionSummary struct {
	HeaderRow    int           `json:"headerRow"`
	HeaderSpan   int           `json:"headerSpan"`
	DataStartRow int           `json:"dataStartRow"`
	DataEndRow   int           `json:"dataEndRow"`
	Fields       []ColumnField `json:"fields"`
	LineCount    int           `json:"lineCount"`
}

// ProcessedSheet 已处理的 sheet
type ProcessedSheet struct {
	Sheet     string           `json:"sheet"`
	Sections  []SectionSummary `json:"sections"`
	LineCount int              `json:"lineCount"`
}

// HeaderSuggestion 未识别表头单元格的近似词提示
type HeaderSuggestion struct {
	Column  int    `json:"column"`
	Text    string `json:"text"`
	Closest string `json:"closest"`
	Field   string `json:"field"`
}

// CandidateSummary 诊断用表头候选
type CandidateSummary struct {
	Row         int                `json:"row"`
	RowSpan     int                `json:"rowSpan"`
	KeyFields   int                `json:"keyFields"`
	TotalFields int                `json:"totalFields"`
	Fields      []ColumnField      `json:"fields"`
	Suggestions []HeaderSuggestion `json:"suggestions"`
}

// SkippedSheet 被跳过的 sheet
type SkippedSheet struct {
	Sheet      string             `json:"sheet"`
	Reason     string             `json:"reason"`
	Candidates []CandidateSummary `json:"candidates"`
}

// FieldStat 字段缺失统计
type FieldStat struct {
	Missing     int    `json:"missing"`
	Total       int    `json:"total"`
	MissingRate string `json:"missingRate"`
}

// DocumentMetadata 表紙・鑑上按关键词读取的文书信息
type DocumentMetadata struct {
	ProjectName string   `json:"projectName,omitempty"`
	Client      string   `json:"client,omitempty"`
	Site        string   `json:"site,omitempty"`
	Period      string   `json:"period,omitempty"`
	Subtotal    *float64 `json:"subtotal,omitempty"`
	Tax         *float64 `json:"tax,omitempty"`
	Total       *float64 `json:"total,omitempty"`
}

// 申报金额的核对基准
const (
	TotalBasisSubtotal     = "subtotal"
	TotalBasisTotalLessTax = "total_less_tax"
	TotalBasisTotal        = "total"
)

// TotalCheck 申报金额与明细金额合计的核对结果，Difference = Declared - LineSum
type TotalCheck struct {
	Basis      string  `json:"basis"`
	Declared   float64 `json:"declared"`
	LineSum    float64 `json:"lineSum"`
	Difference float64 `json:"difference"`
	Matched    bool    `json:"matched"`
}

// IngestionReport 一次导入的诊断报告
type IngestionReport struct {
	SheetsProcessed []ProcessedSheet     `json:"sheetsProcessed"`
	SheetsSkipped   []SkippedSheet       `json:"sheetsSkipped"`
	MissingColumns  []string             `json:"missingColumns"`
	ValueStats      map[string]FieldStat `json:"valueStats"`
	TotalLines      int                  `json:"totalLines"`
	ReasonCode      ReasonCode           `json:"reasonCode,omitempty"`
	Metadata        DocumentMetadata     `json:"metadata"`
	TotalCheck      *TotalCheck          `json:"totalCheck,omitempty"`
	Errors          []string             `json:"errors"`
}

// NewIngestionReport 创建字段均已初始化的空报告
func NewIngestionReport() IngestionReport {
	return IngestionReport{
		SheetsProcessed: []ProcessedSheet{},
		SheetsSkipped:   []SkippedSheet{},
		MissingColumns:  []string{},
		ValueStats:      map[string]FieldStat{},
		Errors:          []string{},
	}
}

// IngestionResult 明细 + 诊断
type IngestionResult struct {
	Lines  []LineItem      `json:"lines"`
	Report IngestionReport `json:"report"`
}
