package parser

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/width"
)

// 表头比对时去除的括号、标点
const headerStripChars = "()[]{}<>（）「」『』【】〔〕［］｛｝〈〉《》・･,，、。.．:：;；/／\\-－‐―_＿'\"“”‘’!！?？#＃*＊~〜|｜"

// 表头比对时去除的单位、货币记号
var headerUnitTokens = sortedByLength([]string{
	"㎡", "㎥", "㎏", "m2", "m3", "m²", "m³", "kg",
	"円", "¥", "$", "個", "枚", "台", "箇所", "ヶ所", "か所", "人工",
})

// 数值解析时去除的单位词
var numberUnitTokens = sortedByLength([]string{
	"人工", "箇所", "ヶ所", "か所", "ケ所", "セット", "set",
	"m2", "m3", "m²", "m³", "㎡", "㎥", "㎏", "kg", "km", "cm", "mm", "m", "t", "l",
	"本", "個", "枚", "台", "人", "日", "組", "袋", "缶", "回", "箱", "基", "坪",
})

var currencySymbols = []string{"¥", "￥", "$", "円", "jpy"}

// 一式（lump sum）
const lumpSumMarker = "式"

func sortedByLength(tokens []string) []string {
	out := append([]string(nil), tokens...)
	sort.SliceStable(out, func(i, j int) bool {
		return utf8.RuneCountInString(out[i]) > utf8.RuneCountInString(out[j])
	})
	return out
}

// NormalizeHeaderText 规范化表头文本，仅用于比对，不用于展示
func NormalizeHeaderText(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	s = strings.ToLower(width.Fold.String(s))
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || strings.ContainsRune(headerStripChars, r) {
			return -1
		}
		return r
	}, s)
	for _, tok := range headerUnitTokens {
		s = strings.ReplaceAll(s, tok, "")
	}
	return s
}

// NormalizeNumber 将单元格转换为数值，无法解析时返回 nil
func NormalizeNumber(c Cell) *float64 {
	switch c.Kind {
	case CellNumber:
		if math.IsNaN(c.Number) || math.IsInf(c.Number, 0) {
			return nil
		}
		v := c.Number
		return &v
	case CellText:
		return ParseNumberText(c.Text)
	default:
		return nil
	}
}

// ParseNumberText 解析人工录入的数值文本
// 支持全角数字、货币符号、千分位、括号负数、△ 负数、一式、单位后缀
func ParseNumberText(raw string) *float64 {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	s = strings.ToLower(width.Fold.String(s))
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	for _, sym := range currencySymbols {
		s = strings.ReplaceAll(s, sym, "")
	}
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, "\u2212", "-")

	negative := false
	if len(s) > 2 && strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	for _, mark := range []string{"△", "▲"} {
		if strings.HasPrefix(s, mark) {
			negative = !negative
			s = strings.TrimPrefix(s, mark)
			break
		}
	}

	if strings.Contains(s, lumpSumMarker) {
		s = strings.ReplaceAll(s, lumpSumMarker, "")
		if !strings.ContainsAny(s, "0123456789") {
			v := 1.0
			return &v
		}
	}
	s = strings.ReplaceAll(s, "一", "1")
	for _, tok := range numberUnitTokens {
		s = strings.ReplaceAll(s, tok, "")
	}
	if s == "" || !isDecimalLiteral(s) {
		return nil
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	if negative {
		v = -v
	}
	return &v
}

// isDecimalLiteral 仅允许十进制记法（拒绝 0x1p3、1_000、inf 等 Go 语法）
func isDecimalLiteral(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r == '.', r == '-', r == '+', r == 'e':
		default:
			return false
		}
	}
	return true
}

// NormalizeText 单元格的展示文本（去除首尾空白）
func NormalizeText(c Cell) string {
	switch c.Kind {
	case CellText:
		return strings.TrimSpace(c.Text)
	case CellNumber:
		return strconv.FormatFloat(c.Number, 'f', -1, 64)
	default:
		return ""
	}
}

// compactText 去除全部空白（含全角空格）
func compactText(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
