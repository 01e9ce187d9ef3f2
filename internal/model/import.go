package model

import "time"

// ImportStatus 导入记录状态
type ImportStatus string

const (
	ImportStatusDraft     ImportStatus = "draft"
	ImportStatusCommitted ImportStatus = "committed"
)

// Import 一次上传的导入记录
// 草稿阶段明细仅保存在 Lines 中，提交后写入明细表
type Import struct {
	ID          string          `json:"id"`
	ProjectID   string          `json:"projectId"`
	Filename    string          `json:"filename"`
	Status      ImportStatus    `json:"status"`
	ReasonCode  ReasonCode      `json:"reasonCode,omitempty"`
	LineCount   int             `json:"lineCount"`
	Report      IngestionReport `json:"report"`
	Lines       []LineItem      `json:"lines,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	CommittedAt *time.Time      `json:"committedAt,omitempty"`
}
