package parser

// Options 启发式阈值。默认值来自实际报价单的调校结果，调整会改变识别结果
type Options struct {
	HeaderSearchRows        int `json:"headerSearchRows" validate:"min=1,max=1000"`
	HeaderSearchCols        int `json:"headerSearchCols" validate:"min=1,max=200"`
	MinKeyFields            int `json:"minKeyFields" validate:"min=1,max=4"`
	MinHeaderGap            int `json:"minHeaderGap" validate:"min=0"`
	EmptyRowLimit           int `json:"emptyRowLimit" validate:"min=1"`
	EmptyRowLimitBeforeNext int `json:"emptyRowLimitBeforeNext" validate:"min=1"`
	SubtotalSuffixMaxLen    int `json:"subtotalSuffixMaxLen" validate:"min=1"`
	MaxDataRows             int `json:"maxDataRows" validate:"min=0"` // 0 表示不限
	MaxDiagnostics          int `json:"maxDiagnostics" validate:"min=0"`
}

// DefaultOptions 默认阈值
func DefaultOptions() Options {
	return Options{
		HeaderSearchRows:        100,
		HeaderSearchCols:        30,
		MinKeyFields:            2,
		MinHeaderGap:            1,
		EmptyRowLimit:           10,
		EmptyRowLimitBeforeNext: 20,
		SubtotalSuffixMaxLen:    7,
		MaxDataRows:             50000,
		MaxDiagnostics:          3,
	}
}
