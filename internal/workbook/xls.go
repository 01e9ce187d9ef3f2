package workbook

import (
	"bytes"
	"fmt"

	"github.com/shakinm/xlsReader/xls"

	"sitebook/internal/parser"
)

// decodeXLS 读取旧版 .xls（BIFF8）。该格式的合并区域信息不可用，按普通单元格处理
func decodeXLS(data []byte) (parser.Workbook, error) {
	wb, err := xls.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open xls: %w", err)
	}

	var sheets []parser.Sheet
	for i := 0; i < wb.GetNumberSheets(); i++ {
		sheet, err := wb.GetSheet(i)
		if err != nil || sheet == nil {
			continue
		}
		g := parser.NewGrid(sheet.GetName())
		for r := 0; r <= sheet.GetNumberRows(); r++ {
			row, err := sheet.GetRow(r)
			if err != nil || row == nil {
				continue
			}
			for c, col := range row.GetCols() {
				if col == nil {
					continue
				}
				g.SetCell(r+1, c+1, plainCell(col.GetString()))
			}
		}
		sheets = append(sheets, g)
	}
	return parser.NewWorkbook(sheets...), nil
}
