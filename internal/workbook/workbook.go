package workbook

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"sitebook/internal/parser"
)

// ErrUnsupportedFormat 无法识别的文件格式
var ErrUnsupportedFormat = errors.New("unsupported workbook format")

var (
	zipMagic = []byte("PK\x03\x04")
	oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
)

// Format 文件格式
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatXLS  Format = "xls"
	FormatCSV  Format = "csv"
)

// DetectFormat 先看扩展名，再看文件头
func DetectFormat(filename string, data []byte) (Format, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm", ".xltx", ".xltm":
		return FormatXLSX, nil
	case ".xls":
		return FormatXLS, nil
	case ".csv", ".txt":
		return FormatCSV, nil
	}
	switch {
	case bytes.HasPrefix(data, zipMagic):
		return FormatXLSX, nil
	case bytes.HasPrefix(data, oleMagic):
		return FormatXLS, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Base(filename))
}

// Decode 解码上传的工作簿
func Decode(filename string, data []byte) (parser.Workbook, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("failed to decode %s: file is empty", filepath.Base(filename))
	}
	format, err := DetectFormat(filename, data)
	if err != nil {
		return nil, err
	}
	switch format {
	case FormatXLSX:
		f, err := excelize.OpenReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to open xlsx: %w", err)
		}
		defer f.Close()
		return FromExcelize(f)
	case FormatXLS:
		return decodeXLS(data)
	default:
		return decodeCSV(filename, data)
	}
}

// FromExcelize 将 excelize 工作簿转换为内存表格（含合并单元格）
func FromExcelize(f *excelize.File) (parser.Workbook, error) {
	var sheets []parser.Sheet
	for _, name := range f.GetSheetList() {
		g, err := excelizeSheet(f, name)
		if err != nil {
			return nil, err
		}
		sheets = append(sheets, g)
	}
	return parser.NewWorkbook(sheets...), nil
}

func excelizeSheet(f *excelize.File, name string) (*parser.Grid, error) {
	rows, err := f.GetRows(name, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", name, err)
	}
	g := parser.NewGrid(name)
	for r, row := range rows {
		for c, v := range row {
			if strings.TrimSpace(v) == "" {
				continue
			}
			g.SetCell(r+1, c+1, excelizeCell(f, name, r+1, c+1, v))
		}
	}

	merges, err := f.GetMergeCells(name)
	if err != nil {
		return nil, fmt.Errorf("failed to read merged cells of %s: %w", name, err)
	}
	for _, mc := range merges {
		c1, r1, err := excelize.CellNameToCoordinates(mc.GetStartAxis())
		if err != nil {
			continue
		}
		c2, r2, err := excelize.CellNameToCoordinates(mc.GetEndAxis())
		if err != nil {
			continue
		}
		g.Merge(r1, c1, r2, c2)
	}
	return g, nil
}

// excelizeCell 数值型单元格保留为数值，文本型（含 "001" 之类）保留为文本
func excelizeCell(f *excelize.File, sheet string, row, col int, raw string) parser.Cell {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return parser.TextCell(raw)
	}
	axis, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return parser.TextCell(raw)
	}
	typ, err := f.GetCellType(sheet, axis)
	if err != nil {
		return parser.TextCell(raw)
	}
	switch typ {
	case excelize.CellTypeUnset, excelize.CellTypeNumber, excelize.CellTypeDate:
		return parser.NumberCell(v)
	default:
		return parser.TextCell(raw)
	}
}

// plainCell 无类型信息的来源（xls / csv）：能完整解析为数值的视为数值
// 带前导零的编号（如 001）保持文本
func plainCell(raw string) parser.Cell {
	s := strings.TrimSpace(raw)
	if s == "" {
		return parser.Cell{}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return parser.TextCell(raw)
	}
	if len(s) > 1 && s[0] == '0' && s[1] != '.' {
		return parser.TextCell(raw)
	}
	return parser.NumberCell(v)
}
