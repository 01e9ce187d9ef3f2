package workbook

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"

	"sitebook/internal/parser"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// decodeCSV 读取 CSV。UTF-8（可带 BOM）直接读取，否则按 Shift_JIS 解码
func decodeCSV(filename string, data []byte) (parser.Workbook, error) {
	var r io.Reader
	switch {
	case bytes.HasPrefix(data, utf8BOM):
		r = bytes.NewReader(data[len(utf8BOM):])
	case utf8.Valid(data):
		r = bytes.NewReader(data)
	default:
		r = transform.NewReader(bytes.NewReader(data), japanese.ShiftJIS.NewDecoder())
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	if sep := sniffSeparator(data); sep != ',' {
		cr.Comma = sep
	}

	name := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	if name == "" || name == "." {
		name = "csv"
	}
	g := parser.NewGrid(name)
	for row := 1; ; row++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv line %d: %w", row, err)
		}
		for c, v := range record {
			g.SetCell(row, c+1, plainCell(v))
		}
	}
	return parser.NewWorkbook(g), nil
}

// sniffSeparator 首行中制表符多于逗号时按 TSV 处理
func sniffSeparator(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	if bytes.Count(line, []byte{'\t'}) > bytes.Count(line, []byte{','}) {
		return '\t'
	}
	return ','
}
