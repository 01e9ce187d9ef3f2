package classifier

import (
	"context"
	"errors"

	"sitebook/internal/model"
)

// ErrDisabled 未启用或缺少 API Key
var ErrDisabled = errors.New("classifier disabled")

// Refiner 对关键词归类为 expense 的明细做二次归类，原地修改 lines
type Refiner interface {
	Refine(ctx context.Context, lines []model.LineItem) (int, error)
	Enabled() bool
}

// Noop 不做任何处理
type Noop struct{}

func (Noop) Refine(context.Context, []model.LineItem) (int, error) { return 0, nil }
func (Noop) Enabled() bool                                         { return false }

// pending 返回需要二次归类的明细下标
func pending(lines []model.LineItem) []int {
	var idx []int
	for i, l := range lines {
		if l.Category == model.CategoryExpense && l.CategorySource == model.CategorySourceKeyword {
			idx = append(idx, i)
		}
	}
	return idx
}
