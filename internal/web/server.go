package web

import (
	"context"
	"embed"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/wisarmy/pump-kmonitor/internal/storage"
	"github.com/wisarmy/pump-kmonitor/pkg/types"
)

//go:embed static/index.html
var staticFiles embed.FS

// ApiResponse 统一API响应结构
type ApiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

// MintInfo 活跃mint概览
type MintInfo struct {
	Mint         string `json:"mint"`
	LastActivity int64  `json:"last_activity"`
	KlineCount   int    `json:"kline_count"`
}

// Server K线查看Web服务
type Server struct {
	store  storage.SeriesStore
	router *gin.Engine
}

// NewServer 创建Web服务
func NewServer(store storage.SeriesStore) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		store:  store,
		router: gin.New(),
	}
	s.router.Use(gin.Recovery(), corsMiddleware())

	s.router.GET("/", s.serveIndex)
	api := s.router.Group("/api")
	{
		api.GET("/mints", s.getMints)
		api.GET("/mint/:mint/klines", s.getKlines)
		api.GET("/stats", s.getStats)
	}
	return s
}

// Run 启动HTTP服务，ctx取消时优雅关闭
func (s *Server) Run(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.router,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("🌐 Web服务已启动", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (s *Server) serveIndex(c *gin.Context) {
	page, err := staticFiles.ReadFile("static/index.html")
	if err != nil {
		c.String(http.StatusInternalServerError, "页面加载失败")
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", page)
}

func (s *Server) getMints(c *gin.Context) {
	mints, err := s.store.ListActiveMints(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusOK, ApiResponse{Success: false, Message: "获取mint列表失败: " + err.Error()})
		return
	}

	infos := make([]MintInfo, 0, len(mints))
	for _, m := range mints {
		klines, err := s.store.GetSeries(c.Request.Context(), m.Mint, 0)
		count := 0
		if err == nil {
			count = len(klines)
		}
		infos = append(infos, MintInfo{
			Mint:         m.Mint,
			LastActivity: m.LastActivity,
			KlineCount:   count,
		})
	}
	c.JSON(http.StatusOK, ApiResponse{Success: true, Data: infos})
}

func (s *Server) getKlines(c *gin.Context) {
	mint := c.Param("mint")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	klines, err := s.store.GetSeries(c.Request.Context(), mint, limit)
	if err != nil {
		c.JSON(http.StatusOK, ApiResponse{Success: false, Message: "获取K线失败: " + err.Error()})
		return
	}
	if klines == nil {
		klines = []types.KLineData{}
	}

	// 附上当前未收盘K线，页面能看到实时走势
	if open, err := s.store.GetOpenCandle(c.Request.Context(), mint); err == nil && open != nil {
		klines = append(klines, *open)
	}

	c.JSON(http.StatusOK, ApiResponse{Success: true, Data: klines})
}

func (s *Server) getStats(c *gin.Context) {
	mints, klines, err := s.store.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusOK, ApiResponse{Success: false, Message: "获取统计失败: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, ApiResponse{Success: true, Data: gin.H{
		"total_mints":  mints,
		"total_klines": klines,
	}})
}
