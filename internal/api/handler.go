package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sitebook/internal/importer"
	"sitebook/internal/store"
)

// maxUploadBytes 单个上传文件大小上限
const maxUploadBytes = 32 << 20

// Handler API 处理器
type Handler struct {
	store       *store.Store
	coordinator *importer.Coordinator
	log         *zap.Logger
}

// NewHandler 创建 API 处理器
func NewHandler(st *store.Store, coordinator *importer.Coordinator, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		store:       st,
		coordinator: coordinator,
		log:         log,
	}
}

// RegisterRoutes 注册 API 路由
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	// 系统状态
	router.GET("/status", h.GetStatus)

	// 导入
	router.POST("/imports", h.CreateImport)
	router.POST("/imports/stream", h.StreamImport)
	router.GET("/imports", h.ListImports)
	router.GET("/imports/:id", h.GetImport)
	router.GET("/imports/:id/lines", h.ListImportLines)
	router.POST("/imports/:id/commit", h.CommitImport)
	router.POST("/imports/:id/reingest", h.ReingestImport)
}

// respondError 将存储层错误映射为 HTTP 状态码
func (h *Handler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, importer.ErrNoArchive):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrAlreadyCommitted):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		h.log.Error("api.internal_error", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
