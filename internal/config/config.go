package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"sitebook/internal/parser"
	"sitebook/internal/validation"
)

// AppConfig 应用配置
type AppConfig struct {
	Server     ServerConfig     `toml:"server"`
	Data       DataConfig       `toml:"data"`
	Database   DatabaseConfig   `toml:"database"`
	Ingest     IngestConfig     `toml:"ingest"`
	Classifier ClassifierConfig `toml:"classifier"`
	Log        LogConfig        `toml:"log"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port        int  `toml:"port" validate:"min=1,max=65535"`
	DevMode     bool `toml:"dev_mode"`
	OpenBrowser bool `toml:"open_browser"`
}

// DataConfig 数据配置
type DataConfig struct {
	DataDir string `toml:"data_dir" validate:"required"`
}

// DatabaseConfig 数据库配置，dsn 为空时使用数据目录下的 sitebook.db
type DatabaseConfig struct {
	Driver string `toml:"driver" validate:"oneof=sqlite3 pgx"`
	DSN    string `toml:"dsn"`
}

// IngestConfig 表格识别阈值
type IngestConfig struct {
	HeaderSearchRows        int    `toml:"header_search_rows"`
	HeaderSearchCols        int    `toml:"header_search_cols"`
	MinKeyFields            int    `toml:"min_key_fields"`
	MinHeaderGap            int    `toml:"min_header_gap"`
	EmptyRowLimit           int    `toml:"empty_row_limit"`
	EmptyRowLimitBeforeNext int    `toml:"empty_row_limit_before_next"`
	SubtotalSuffixMaxLen    int    `toml:"subtotal_suffix_max_len"`
	MaxDataRows             int    `toml:"max_data_rows"`
	VocabularyPath          string `toml:"vocabulary_path"`
}

// ClassifierConfig AI 费用分类配置
type ClassifierConfig struct {
	Enabled        bool   `toml:"enabled"`
	BaseURL        string `toml:"base_url" validate:"omitempty,url"`
	Model          string `toml:"model" validate:"required_if=Enabled true"`
	TimeoutSeconds int    `toml:"timeout_seconds" validate:"min=1,max=600"`
	APIKey         string `toml:"-"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level string `toml:"level" validate:"oneof=debug info warn error"`
}

// LoadConfigInfo 配置加载元信息
type LoadConfigInfo struct {
	PortSpecified bool
	Path          string
}

// DefaultConfig 默认配置
func DefaultConfig() *AppConfig {
	opts := parser.DefaultOptions()
	return &AppConfig{
		Server: ServerConfig{
			Port:        20262,
			OpenBrowser: true,
		},
		Data: DataConfig{
			DataDir: "data",
		},
		Database: DatabaseConfig{
			Driver: "sqlite3",
		},
		Ingest: IngestConfig{
			HeaderSearchRows:        opts.HeaderSearchRows,
			HeaderSearchCols:        opts.HeaderSearchCols,
			MinKeyFields:            opts.MinKeyFields,
			MinHeaderGap:            opts.MinHeaderGap,
			EmptyRowLimit:           opts.EmptyRowLimit,
			EmptyRowLimitBeforeNext: opts.EmptyRowLimitBeforeNext,
			SubtotalSuffixMaxLen:    opts.SubtotalSuffixMaxLen,
			MaxDataRows:             opts.MaxDataRows,
		},
		Classifier: ClassifierConfig{
			Model:          "gpt-4o-mini",
			TimeoutSeconds: 30,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Options 转换为识别引擎的阈值
func (c IngestConfig) Options() parser.Options {
	opts := parser.DefaultOptions()
	opts.HeaderSearchRows = c.HeaderSearchRows
	opts.HeaderSearchCols = c.HeaderSearchCols
	opts.MinKeyFields = c.MinKeyFields
	opts.MinHeaderGap = c.MinHeaderGap
	opts.EmptyRowLimit = c.EmptyRowLimit
	opts.EmptyRowLimitBeforeNext = c.EmptyRowLimitBeforeNext
	opts.SubtotalSuffixMaxLen = c.SubtotalSuffixMaxLen
	opts.MaxDataRows = c.MaxDataRows
	return opts
}

// Validate 校验配置取值范围
func (c *AppConfig) Validate() error {
	if err := validation.Validate(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := validation.Validate(c.Ingest.Options()); err != nil {
		return fmt.Errorf("invalid [ingest] thresholds: %w", err)
	}
	return nil
}

func isPortSpecifiedInToml(data []byte) bool {
	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return false
	}

	serverAny, ok := raw["server"]
	if !ok {
		return false
	}

	serverMap, ok := serverAny.(map[string]any)
	if !ok {
		return false
	}

	_, ok = serverMap["port"]
	return ok
}

// GetExeDir 获取可执行文件所在目录
func GetExeDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.Dir(exe), nil
}

func exeDirOrCwd() string {
	dir, err := GetExeDir()
	if err != nil {
		return "."
	}
	return dir
}

// LoadConfigWithInfo 从可执行文件同目录的 config.toml 加载配置
func LoadConfigWithInfo() (*AppConfig, LoadConfigInfo, error) {
	return LoadFromDir(exeDirOrCwd())
}

// LoadFromDir 读取 dir 下的 .env 与 config.toml，并应用环境变量覆盖
func LoadFromDir(dir string) (*AppConfig, LoadConfigInfo, error) {
	configPath := filepath.Join(dir, "config.toml")
	info := LoadConfigInfo{Path: configPath}
	cfg := DefaultConfig()

	// .env 不存在时忽略
	_ = godotenv.Load(filepath.Join(dir, ".env"))

	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		info.PortSpecified = isPortSpecifiedInToml(data)
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, info, fmt.Errorf("failed to parse %s: %w", configPath, err)
		}
	case !os.IsNotExist(err):
		return nil, info, err
	}

	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, info, err
	}
	return cfg, info, nil
}

func applyEnv(cfg *AppConfig) {
	if v := os.Getenv("SITEBOOK_DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("SITEBOOK_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("SITEBOOK_VOCABULARY_PATH"); v != "" {
		cfg.Ingest.VocabularyPath = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Classifier.APIKey = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" && cfg.Classifier.BaseURL == "" {
		cfg.Classifier.BaseURL = v
	}
}

// SaveConfig 保存配置到可执行文件同目录的 config.toml
func SaveConfig(cfg *AppConfig) (string, error) {
	return SaveToDir(cfg, exeDirOrCwd())
}

// SaveToDir 将配置写入 dir/config.toml（API Key 不落盘）
func SaveToDir(cfg *AppConfig, dir string) (string, error) {
	if err := cfg.Validate(); err != nil {
		return "", err
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", err
	}
	return path, nil
}

// EnsureDataDir 确保数据目录存在，相对路径以可执行文件目录为基准
func EnsureDataDir(cfg *AppConfig) (string, error) {
	dataDir := cfg.Data.DataDir
	if !filepath.IsAbs(dataDir) {
		dataDir = filepath.Join(exeDirOrCwd(), dataDir)
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Join(dataDir, "uploads"), 0755); err != nil {
		return "", err
	}
	return dataDir, nil
}

// DatabaseDSN 返回连接串，sqlite 未配置时落在数据目录
func DatabaseDSN(cfg *AppConfig, dataDir string) string {
	if cfg.Database.DSN != "" {
		return cfg.Database.DSN
	}
	return filepath.Join(dataDir, "sitebook.db")
}
