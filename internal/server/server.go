package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sitebook/internal/api"
	"sitebook/internal/classifier"
	"sitebook/internal/config"
	"sitebook/internal/importer"
	"sitebook/internal/store"
)

// Server HTTP服务器
type Server struct {
	router *gin.Engine
	store  *store.Store
	api    *api.Handler
	log    *zap.Logger
	http   *http.Server
}

// NewServer 创建服务器并初始化存储、识别引擎与分类器
func NewServer(cfg *config.AppConfig, dataDir string, log *zap.Logger) (*Server, error) {
	if !cfg.Server.DevMode {
		gin.SetMode(gin.ReleaseMode)
	}

	st, err := store.New(cfg.Database.Driver, config.DatabaseDSN(cfg, dataDir))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	ingestor, err := importer.NewIngestor(cfg.Ingest)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to initialize ingestor: %w", err)
	}

	archive, err := importer.NewArchive(filepath.Join(dataDir, "uploads"))
	if err != nil {
		st.Close()
		return nil, err
	}
	coordinator := importer.NewCoordinator(st, ingestor, newRefiner(cfg.Classifier, log), log).WithArchive(archive)

	s := &Server{
		router: gin.New(),
		store:  st,
		api:    api.NewHandler(st, coordinator, log),
		log:    log,
	}
	s.setupRoutes(cfg.Server.DevMode)
	return s, nil
}

// newRefiner 未启用或缺少 API Key 时退回关键词分类
func newRefiner(cfg config.ClassifierConfig, log *zap.Logger) classifier.Refiner {
	if !cfg.Enabled {
		return classifier.Noop{}
	}
	c, err := classifier.NewLLMClassifier(classifier.Config{
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		APIKey:  cfg.APIKey,
		Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
	}, log)
	if err != nil {
		log.Warn("classifier unavailable, keyword categories only", zap.Error(err))
		return classifier.Noop{}
	}
	return c
}

// setupRoutes 设置路由
func (s *Server) setupRoutes(devMode bool) {
	s.router.Use(gin.Recovery())
	s.router.Use(s.requestLogger())

	// CORS
	s.router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	apiGroup := s.router.Group("/api")
	{
		s.api.RegisterRoutes(apiGroup)
	}

	s.router.NoRoute(func(c *gin.Context) {
		if devMode {
			// 开发模式：代理到前端开发服务器
			c.Redirect(http.StatusTemporaryRedirect, "http://localhost:5173"+c.Request.URL.Path)
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Info("http.request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)))
	}
}

// Handler 返回 HTTP 处理器（用于测试）
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run 启动服务器，Shutdown 后返回 nil
func (s *Server) Run(addr string) error {
	s.http = &http.Server{Addr: addr, Handler: s.router}
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown 停止接收请求并关闭数据库
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.http != nil {
		err = s.http.Shutdown(ctx)
	}
	if cerr := s.store.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
