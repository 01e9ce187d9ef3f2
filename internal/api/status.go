package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"sitebook/internal/parser"
)

// StatusResponse 系统状态响应
type StatusResponse struct {
	OK         bool           `json:"ok"`
	Database   string         `json:"database"`   // 驱动名，连接异常时为 unavailable
	Classifier string         `json:"classifier"` // enabled / disabled
	Thresholds parser.Options `json:"thresholds"`
}

// GetStatus 获取系统状态
// GET /api/status
func (h *Handler) GetStatus(c *gin.Context) {
	resp := StatusResponse{
		OK:         true,
		Database:   h.store.Driver(),
		Classifier: "disabled",
		Thresholds: h.coordinator.Thresholds(),
	}
	if h.coordinator.ClassifierEnabled() {
		resp.Classifier = "enabled"
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		resp.OK = false
		resp.Database = "unavailable"
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}
