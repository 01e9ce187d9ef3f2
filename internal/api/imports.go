package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"sitebook/internal/importer"
	"sitebook/internal/validation"
)

type uploadForm struct {
	ProjectID string `validate:"project_id"`
}

// readUpload 读取 multipart 中的 file 字段与 project_id
func readUpload(c *gin.Context) (importer.ImportOptions, error) {
	var opts importer.ImportOptions

	fh, err := c.FormFile("file")
	if err != nil {
		return opts, errors.New("未找到上传文件")
	}
	if fh.Size > maxUploadBytes {
		return opts, fmt.Errorf("文件过大（上限 %d MB）", maxUploadBytes>>20)
	}

	form := uploadForm{ProjectID: c.PostForm("project_id")}
	if err := validation.Validate(form); err != nil {
		return opts, errors.New("无效的 project_id")
	}

	f, err := fh.Open()
	if err != nil {
		return opts, errors.New("读取上传文件失败")
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxUploadBytes+1))
	if err != nil {
		return opts, errors.New("读取上传文件失败")
	}
	if len(data) > maxUploadBytes {
		return opts, fmt.Errorf("文件过大（上限 %d MB）", maxUploadBytes>>20)
	}

	opts.Filename = fh.Filename
	opts.Data = data
	opts.ProjectID = form.ProjectID
	return opts, nil
}

// CreateImport 上传表格并生成草稿
// POST /api/imports
func (h *Handler) CreateImport(c *gin.Context) {
	opts, err := readUpload(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	imp, err := h.coordinator.Preview(c.Request.Context(), opts)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, imp)
}

// StreamImport 上传表格并以 SSE 推送进度
// POST /api/imports/stream
func (h *Handler) StreamImport(c *gin.Context) {
	opts, err := readUpload(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "不支持流式响应"})
		return
	}

	// 设置 SSE 响应头
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	for event := range h.coordinator.Import(c.Request.Context(), opts) {
		eventData, err := json.Marshal(event)
		if err != nil {
			continue
		}

		// SSE 格式: data: {json}\n\n
		fmt.Fprintf(c.Writer, "data: %s\n\n", eventData)
		flusher.Flush()
	}
}

// ListImports 列出导入记录
// GET /api/imports?project_id=&limit=
func (h *Handler) ListImports(c *gin.Context) {
	projectID := c.Query("project_id")
	if projectID != "" && !validation.ValidProjectID(projectID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的 project_id"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	imports, err := h.coordinator.List(c.Request.Context(), projectID, limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"imports": imports})
}

// GetImport 获取导入记录（含识别报告）
// GET /api/imports/:id
func (h *Handler) GetImport(c *gin.Context) {
	imp, err := h.coordinator.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, imp)
}

// ListImportLines 获取明细：已提交返回正式明细，草稿返回预览明细
// GET /api/imports/:id/lines
func (h *Handler) ListImportLines(c *gin.Context) {
	lines, err := h.coordinator.Lines(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"lines": lines})
}

// CommitImport 提交草稿
// POST /api/imports/:id/commit
func (h *Handler) CommitImport(c *gin.Context) {
	imp, err := h.coordinator.Commit(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"importId":  imp.ID,
		"lineCount": imp.LineCount,
		"status":    imp.Status,
	})
}

// ReingestImport 用当前词表重新识别归档的原始文件
// POST /api/imports/:id/reingest
func (h *Handler) ReingestImport(c *gin.Context) {
	imp, err := h.coordinator.Reingest(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, imp)
}
