package parser

import (
	"strconv"
	"strings"
)

// CellKind 单元格值类型
type CellKind int

const (
	CellEmpty CellKind = iota
	CellText
	CellNumber
)

// Cell 单元格值（文本 / 数值 / 空）
type Cell struct {
	Kind   CellKind
	Text   string
	Number float64
}

// TextCell 文本单元格，空白文本视为空
func TextCell(s string) Cell {
	if strings.TrimSpace(s) == "" {
		return Cell{}
	}
	return Cell{Kind: CellText, Text: s}
}

// NumberCell 数值单元格
func NumberCell(v float64) Cell {
	return Cell{Kind: CellNumber, Number: v}
}

// IsEmpty 是否为空
func (c Cell) IsEmpty() bool {
	switch c.Kind {
	case CellText:
		return strings.TrimSpace(c.Text) == ""
	case CellNumber:
		return false
	default:
		return true
	}
}

// String 原始文本表示
func (c Cell) String() string {
	switch c.Kind {
	case CellText:
		return c.Text
	case CellNumber:
		return strconv.FormatFloat(c.Number, 'f', -1, 64)
	default:
		return ""
	}
}

// Sheet 只读工作表，行列号均从 1 开始，合并单元格已解析为左上角的值
type Sheet interface {
	Name() string
	MaxRow() int
	MaxCol() int
	Cell(row, col int) Cell
}

// Workbook 已解码的工作簿
type Workbook interface {
	Sheets() []Sheet
}

type sheetList []Sheet

func (l sheetList) Sheets() []Sheet { return l }

// NewWorkbook 由若干 Sheet 组成工作簿
func NewWorkbook(sheets ...Sheet) Workbook {
	return sheetList(sheets)
}

type cellPos struct {
	row, col int
}

// Grid 内存中的工作表实现
type Grid struct {
	name    string
	cells   map[cellPos]Cell
	anchors map[cellPos]cellPos
	maxRow  int
	maxCol  int
}

// NewGrid 创建空表
func NewGrid(name string) *Grid {
	return &Grid{
		name:    name,
		cells:   make(map[cellPos]Cell),
		anchors: make(map[cellPos]cellPos),
	}
}

// Name 表名
func (g *Grid) Name() string { return g.name }

// MaxRow 最大非空行号
func (g *Grid) MaxRow() int { return g.maxRow }

// MaxCol 最大非空列号
func (g *Grid) MaxCol() int { return g.maxCol }

// SetCell 写入单元格，空值不计入表格尺寸
func (g *Grid) SetCell(row, col int, c Cell) {
	if row < 1 || col < 1 {
		return
	}
	if c.IsEmpty() {
		delete(g.cells, cellPos{row, col})
		return
	}
	g.cells[cellPos{row, col}] = c
	if row > g.maxRow {
		g.maxRow = row
	}
	if col > g.maxCol {
		g.maxCol = col
	}
}

// SetRow 按列顺序写入一行，支持 string / 数值 / nil
func (g *Grid) SetRow(row int, values ...any) {
	for i, v := range values {
		g.SetCell(row, i+1, cellOf(v))
	}
}

func cellOf(v any) Cell {
	switch x := v.(type) {
	case nil:
		return Cell{}
	case Cell:
		return x
	case string:
		return TextCell(x)
	case float64:
		return NumberCell(x)
	case float32:
		return NumberCell(float64(x))
	case int:
		return NumberCell(float64(x))
	case int64:
		return NumberCell(float64(x))
	default:
		return Cell{}
	}
}

// Merge 登记合并区域，区域内每个位置都解析为左上角的值
// 区域按当前表格尺寸裁剪，需在写入单元格之后调用
func (g *Grid) Merge(row1, col1, row2, col2 int) {
	if row2 < row1 {
		row1, row2 = row2, row1
	}
	if col2 < col1 {
		col1, col2 = col2, col1
	}
	if row1 < 1 || col1 < 1 {
		return
	}
	anchor := cellPos{row1, col1}
	lastRow := min(row2, max(g.maxRow, row1))
	lastCol := min(col2, max(g.maxCol, col1))
	for r := row1; r <= lastRow; r++ {
		for c := col1; c <= lastCol; c++ {
			pos := cellPos{r, c}
			if pos == anchor {
				continue
			}
			g.anchors[pos] = anchor
		}
	}
}

// Cell 读取单元格（合并区域返回左上角的值）
func (g *Grid) Cell(row, col int) Cell {
	pos := cellPos{row, col}
	if a, ok := g.anchors[pos]; ok {
		pos = a
	}
	return g.cells[pos]
}
