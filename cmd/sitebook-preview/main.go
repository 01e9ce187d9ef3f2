// sitebook-preview 离线解析一个表格文件并输出 JSON 识别结果，用于排查表头识别问题
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"sitebook/internal/config"
	"sitebook/internal/importer"
	"sitebook/internal/model"
	"sitebook/internal/parser"
	"sitebook/internal/util"
	"sitebook/internal/workbook"
)

var (
	vocabPath  = flag.String("vocab", "", "附加词表文件 (hjson)")
	minKeys    = flag.Int("min-keys", 0, "表头最少关键字段数 (0 表示使用默认值)")
	reportOnly = flag.Bool("report", false, "只输出识别报告")
	writeCfg   = flag.String("write-config", "", "将本次使用的阈值写入该目录下的 config.toml")
	verbose    = flag.Bool("v", false, "输出调试日志")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "用法: %s [选项] <file.xlsx|file.xls|file.csv>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	if err := run(flag.Arg(0)); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(path string) error {
	_ = godotenv.Load()

	level := "warn"
	if *verbose {
		level = "debug"
	}
	logger, err := util.NewLogger(level, true)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ingestCfg := config.DefaultConfig().Ingest
	if v := os.Getenv("SITEBOOK_VOCABULARY_PATH"); v != "" {
		ingestCfg.VocabularyPath = v
	}
	if *vocabPath != "" {
		ingestCfg.VocabularyPath = *vocabPath
	}
	if *minKeys > 0 {
		ingestCfg.MinKeyFields = *minKeys
	}
	ingestor, err := importer.NewIngestor(ingestCfg)
	if err != nil {
		return err
	}
	if *writeCfg != "" {
		cfg := config.DefaultConfig()
		cfg.Ingest = ingestCfg
		saved, err := config.SaveToDir(cfg, *writeCfg)
		if err != nil {
			return err
		}
		logger.Info("config written", zap.String("path", saved), zap.Any("thresholds", ingestor.Options()))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var result *model.IngestionResult
	wb, err := workbook.Decode(path, data)
	if err != nil {
		logger.Warn("decode failed", zap.String("file", path), zap.Error(err))
		result = parser.DecodeFailure(err)
	} else {
		result = ingestor.IngestWithProgress(wb, func(p parser.SheetProgress) {
			logger.Debug("sheet done",
				zap.String("sheet", p.Sheet),
				zap.Bool("processed", p.Processed),
				zap.Int("lines", p.Lines),
				zap.String("reason", p.Reason))
		})
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if *reportOnly {
		return enc.Encode(result.Report)
	}
	return enc.Encode(result)
}
