package parser

import (
	"strings"

	"golang.org/x/text/width"

	"sitebook/internal/model"
)

// KeywordClassifier 按关键词族推断成本分类
type KeywordClassifier struct {
	families []CategoryKeywords
}

// NewKeywordClassifier 按词表顺序建立分类器，关键词预先做全角折叠
func NewKeywordClassifier(vocab *Vocabulary) *KeywordClassifier {
	k := &KeywordClassifier{}
	for _, fam := range vocab.Categories {
		words := make([]string, 0, len(fam.Keywords))
		for _, w := range fam.Keywords {
			if w = foldKeyword(w); w != "" {
				words = append(words, w)
			}
		}
		k.families = append(k.families, CategoryKeywords{Category: fam.Category, Keywords: words})
	}
	return k
}

// Classify 第一个命中的关键词族胜出，未命中为一般经费
func (k *KeywordClassifier) Classify(name string) model.CostCategory {
	text := foldKeyword(name)
	if text == "" {
		return model.CategoryExpense
	}
	for _, fam := range k.families {
		for _, w := range fam.Keywords {
			if strings.Contains(text, w) {
				return fam.Category
			}
		}
	}
	return model.CategoryExpense
}

func foldKeyword(s string) string {
	return strings.ToLower(compactText(width.Fold.String(s)))
}
