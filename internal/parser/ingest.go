package parser

import (
	"fmt"

	"sitebook/internal/model"
)

// SheetProgress 单个 sheet 处理完成时的进度信息
type SheetProgress struct {
	Sheet     string `json:"sheet"`
	Index     int    `json:"index"`
	Total     int    `json:"total"`
	Processed bool   `json:"processed"`
	Lines     int    `json:"lines"`
	Reason    string `json:"reason,omitempty"`
}

// Ingestor 启发式表格导入引擎
type Ingestor struct {
	opts      Options
	vocab     *Vocabulary
	mapper    *FieldMapper
	locator   *TableLocator
	extractor *RowExtractor
	meta      *MetadataExtractor
	hints     *headerHints
}

// NewIngestor 创建导入引擎，vocab 为 nil 时使用内置词表
func NewIngestor(vocab *Vocabulary, opts Options) (*Ingestor, error) {
	if vocab == nil {
		vocab = DefaultVocabulary()
	}
	if err := vocab.Validate(); err != nil {
		return nil, err
	}
	mapper := NewFieldMapper(vocab)
	return &Ingestor{
		opts:      opts,
		vocab:     vocab,
		mapper:    mapper,
		locator:   NewTableLocator(mapper, opts),
		extractor: NewRowExtractor(vocab, opts),
		meta:      NewMetadataExtractor(mapper, opts),
		hints:     newHeaderHints(vocab),
	}, nil
}

// Options 当前阈值
func (in *Ingestor) Options() Options {
	return in.opts
}

// Ingest 处理整个工作簿
func (in *Ingestor) Ingest(wb Workbook) *model.IngestionResult {
	return in.IngestWithProgress(wb, nil)
}

// IngestWithProgress 逐 sheet 顺序处理，每个 sheet 完成后回调 onSheet
func (in *Ingestor) IngestWithProgress(wb Workbook, onSheet func(SheetProgress)) *model.IngestionResult {
	if wb == nil {
		return DecodeFailure(fmt.Errorf("workbook is nil"))
	}
	b := newReportBuilder()
	sheets := wb.Sheets()
	for i, sheet := range sheets {
		o := in.safeProcessSheet(sheet, b)
		b.add(o)
		if onSheet != nil {
			p := SheetProgress{Sheet: sheet.Name(), Index: i + 1, Total: len(sheets)}
			if o.processed != nil {
				p.Processed = true
				p.Lines = len(o.lines)
			} else if o.skipped != nil {
				p.Reason = o.skipped.Reason
			}
			onSheet(p)
		}
	}
	return b.build()
}

// safeProcessSheet 单个 sheet 内的异常只影响该 sheet
func (in *Ingestor) safeProcessSheet(sheet Sheet, b *reportBuilder) (o sheetOutcome) {
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("%s: %v", ReasonInternalError, r)
			b.addError(fmt.Sprintf("sheet %s: %s", sheet.Name(), msg))
			o = sheetOutcome{skipped: &model.SkippedSheet{
				Sheet:      sheet.Name(),
				Reason:     msg,
				Candidates: []model.CandidateSummary{},
			}}
		}
	}()
	return in.processSheet(sheet)
}

func (in *Ingestor) processSheet(sheet Sheet) sheetOutcome {
	name := sheet.Name()
	if sheet.MaxRow() == 0 || sheet.MaxCol() == 0 {
		return sheetOutcome{
			empty:   true,
			skipped: &model.SkippedSheet{Sheet: name, Reason: ReasonEmptySheet, Candidates: []model.CandidateSummary{}},
		}
	}

	loc := in.locator.Locate(sheet)
	o := sheetOutcome{diagCount: len(loc.Diagnostics), meta: in.meta.Extract(sheet)}
	for _, s := range loc.Sections {
		o.headers = append(o.headers, s.Header)
	}
	o.headers = append(o.headers, loc.Discarded...)

	skip := func(reason string) sheetOutcome {
		o.skipped = &model.SkippedSheet{Sheet: name, Reason: reason, Candidates: in.diagnose(sheet, loc.Diagnostics)}
		return o
	}

	if len(loc.Sections) == 0 {
		if len(loc.Discarded) > 0 {
			return skip(requiredMissingReason(loc.Discarded))
		}
		return skip(ReasonNoHeader)
	}

	processed := model.ProcessedSheet{Sheet: name, Sections: []model.SectionSummary{}}
	for i, sec := range loc.Sections {
		lines := in.extractor.Extract(sheet, sec, i+1)
		processed.Sections = append(processed.Sections, model.SectionSummary{
			HeaderRow:    sec.Header.Row,
			HeaderSpan:   sec.Header.Span,
			DataStartRow: sec.DataStart,
			DataEndRow:   sec.DataEnd,
			Fields:       columnFields(sec.Header),
			LineCount:    len(lines),
		})
		o.lines = append(o.lines, lines...)
	}
	if len(o.lines) == 0 {
		return skip(ReasonNoDataRows)
	}
	processed.LineCount = len(o.lines)
	o.processed = &processed
	return o
}

// diagnose 取前 N 个诊断候选
func (in *Ingestor) diagnose(sheet Sheet, cands []HeaderCandidate) []model.CandidateSummary {
	out := []model.CandidateSummary{}
	maxCol := min(sheet.MaxCol(), in.opts.HeaderSearchCols)
	for _, c := range topCandidates(cands, in.opts.MaxDiagnostics) {
		out = append(out, in.hints.summarizeCandidate(sheet, c, maxCol))
	}
	return out
}
