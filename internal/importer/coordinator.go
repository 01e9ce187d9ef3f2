package importer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"sitebook/internal/classifier"
	"sitebook/internal/config"
	"sitebook/internal/model"
	"sitebook/internal/parser"
	"sitebook/internal/store"
	"sitebook/internal/validation"
	"sitebook/internal/workbook"
)

// 进度事件类型
const (
	EventStart     = "start"
	EventInfo      = "info"
	EventSheetDone = "sheet_done"
	EventDone      = "done"
	EventError     = "error"
)

// ErrNoArchive 未保存原始文件，无法重新识别
var ErrNoArchive = errors.New("upload not archived")

// Coordinator 导入协调器：解码 -> 识别 -> 分类 -> 草稿；提交
type Coordinator struct {
	store    *store.Store
	ingestor *parser.Ingestor
	refiner  classifier.Refiner
	archive  *Archive
	log      *zap.Logger
	now      func() time.Time
}

// ImportOptions 导入选项
type ImportOptions struct {
	Filename  string
	Data      []byte
	ProjectID string
}

// ProgressEvent 进度事件
type ProgressEvent struct {
	Type      string    `json:"type"`    // start/info/sheet_done/done/error
	Message   string    `json:"message"` // 事件消息
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewCoordinator 创建导入协调器，refiner 为 nil 时不做 AI 分类
func NewCoordinator(st *store.Store, ingestor *parser.Ingestor, refiner classifier.Refiner, log *zap.Logger) *Coordinator {
	if refiner == nil {
		refiner = classifier.Noop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{
		store:    st,
		ingestor: ingestor,
		refiner:  refiner,
		log:      log,
		now:      time.Now,
	}
}

// NewIngestor 按配置构建识别引擎，配置了词表文件时合并其中的同义词
func NewIngestor(cfg config.IngestConfig) (*parser.Ingestor, error) {
	var vocab *parser.Vocabulary
	if cfg.VocabularyPath != "" {
		v, err := parser.LoadVocabulary(cfg.VocabularyPath)
		if err != nil {
			return nil, err
		}
		vocab = v
	}
	return parser.NewIngestor(vocab, cfg.Options())
}

// WithArchive 启用原始文件归档
func (c *Coordinator) WithArchive(a *Archive) *Coordinator {
	c.archive = a
	return c
}

// ClassifierEnabled AI 分类是否可用
func (c *Coordinator) ClassifierEnabled() bool {
	return c.refiner.Enabled()
}

// Thresholds 识别引擎当前使用的阈值
func (c *Coordinator) Thresholds() parser.Options {
	return c.ingestor.Options()
}

// Preview 同步执行导入并保存草稿
func (c *Coordinator) Preview(ctx context.Context, opts ImportOptions) (*model.Import, error) {
	return c.run(ctx, opts, func(ProgressEvent) {})
}

// Import 异步执行导入，返回进度通道；最后一个事件为 done 或 error
func (c *Coordinator) Import(ctx context.Context, opts ImportOptions) <-chan ProgressEvent {
	progressChan := make(chan ProgressEvent, 100)

	go func() {
		defer close(progressChan)
		imp, err := c.run(ctx, opts, func(e ProgressEvent) { c.sendProgress(progressChan, e) })
		final := ProgressEvent{Type: EventDone, Message: "导入完成", Data: imp, Timestamp: c.now()}
		if err != nil {
			final = ProgressEvent{Type: EventError, Message: err.Error(), Timestamp: c.now()}
		}
		select {
		case progressChan <- final:
		case <-ctx.Done():
		}
	}()

	return progressChan
}

func (c *Coordinator) run(ctx context.Context, opts ImportOptions, emit func(ProgressEvent)) (*model.Import, error) {
	filename := validation.SanitizeText(filepath.Base(opts.Filename))
	emit(ProgressEvent{
		Type:      EventStart,
		Message:   "开始解析表格",
		Data:      map[string]any{"filename": filename, "size": len(opts.Data)},
		Timestamp: c.now(),
	})

	var result *model.IngestionResult
	wb, err := workbook.Decode(filename, opts.Data)
	if err != nil {
		c.log.Warn("importer.decode_failed", zap.String("filename", filename), zap.Error(err))
		result = parser.DecodeFailure(err)
		emit(ProgressEvent{Type: EventInfo, Message: fmt.Sprintf("文件解析失败: %v", err), Timestamp: c.now()})
	} else {
		result = c.ingestor.IngestWithProgress(wb, func(p parser.SheetProgress) {
			emit(ProgressEvent{
				Type:      EventSheetDone,
				Message:   fmt.Sprintf("Sheet %s 处理完成 (%d/%d)", p.Sheet, p.Index, p.Total),
				Data:      p,
				Timestamp: c.now(),
			})
		})
	}

	if len(result.Lines) > 0 && c.refiner.Enabled() {
		n, err := c.refiner.Refine(ctx, result.Lines)
		if err != nil {
			c.log.Warn("importer.classify_failed", zap.Int("refined", n), zap.Error(err))
		}
		emit(ProgressEvent{
			Type:      EventInfo,
			Message:   fmt.Sprintf("AI 分类更新 %d 条明细", n),
			Data:      map[string]int{"refined": n},
			Timestamp: c.now(),
		})
	}

	imp := &model.Import{
		ID:         uuid.NewString(),
		ProjectID:  opts.ProjectID,
		Filename:   filename,
		Status:     model.ImportStatusDraft,
		ReasonCode: result.Report.ReasonCode,
		LineCount:  len(result.Lines),
		Report:     result.Report,
		Lines:      result.Lines,
		CreatedAt:  c.now().UTC(),
	}
	if err := c.store.CreateImport(ctx, imp); err != nil {
		c.log.Error("importer.save_failed", zap.String("filename", filename), zap.Error(err))
		return nil, err
	}
	if c.archive != nil {
		if _, err := c.archive.Save(imp.ID, filename, opts.Data, imp.CreatedAt); err != nil {
			c.log.Warn("importer.archive_failed", zap.String("import_id", imp.ID), zap.Error(err))
		}
	}

	c.log.Info("importer.draft_created",
		zap.String("import_id", imp.ID),
		zap.String("filename", filename),
		zap.Int("lines", imp.LineCount),
		zap.Int("sheets_processed", len(imp.Report.SheetsProcessed)),
		zap.Int("sheets_skipped", len(imp.Report.SheetsSkipped)),
		zap.String("reason_code", string(imp.ReasonCode)))
	return imp, nil
}

// Get 获取导入记录
func (c *Coordinator) Get(ctx context.Context, id string) (*model.Import, error) {
	return c.store.GetImport(ctx, id)
}

// Lines 获取导入明细
func (c *Coordinator) Lines(ctx context.Context, id string) ([]model.LineItem, error) {
	return c.store.ListImportLines(ctx, id)
}

// List 列出导入记录
func (c *Coordinator) List(ctx context.Context, projectID string, limit int) ([]model.Import, error) {
	return c.store.ListImports(ctx, projectID, limit)
}

// Reingest 用当前词表与阈值重新识别归档的原始文件，生成新的草稿
func (c *Coordinator) Reingest(ctx context.Context, id string) (*model.Import, error) {
	if c.archive == nil {
		return nil, ErrNoArchive
	}
	prev, err := c.store.GetImport(ctx, id)
	if err != nil {
		return nil, err
	}
	meta, data, err := c.archive.Load(id)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoArchive
		}
		return nil, fmt.Errorf("failed to load archived upload: %w", err)
	}
	return c.Preview(ctx, ImportOptions{Filename: meta.Filename, Data: data, ProjectID: prev.ProjectID})
}

// Commit 提交草稿
func (c *Coordinator) Commit(ctx context.Context, id string) (*model.Import, error) {
	imp, err := c.store.CommitImport(ctx, id)
	if err != nil {
		c.log.Warn("importer.commit_failed", zap.String("import_id", id), zap.Error(err))
		return nil, err
	}
	c.log.Info("importer.committed", zap.String("import_id", id), zap.Int("lines", imp.LineCount))
	return imp, nil
}

// sendProgress 发送进度事件
func (c *Coordinator) sendProgress(ch chan ProgressEvent, event ProgressEvent) {
	select {
	case ch <- event:
	default:
		// 通道已满，丢弃事件
	}
}
