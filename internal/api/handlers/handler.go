package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/langchou/tripscore/internal/service"
	"github.com/langchou/tripscore/internal/state"
	"github.com/langchou/tripscore/pkg/ws"
)

// Handler HTTP 处理器
type Handler struct {
	logger          *zap.Logger
	ingestService   *service.IngestService
	analysisService *service.AnalysisService
	stateManager    *state.Manager
	wsHub           *ws.Hub
	upgrader        websocket.Upgrader
}

// NewHandler 创建处理器
func NewHandler(
	logger *zap.Logger,
	ingestService *service.IngestService,
	analysisService *service.AnalysisService,
	stateManager *state.Manager,
	wsHub *ws.Hub,
) *Handler {
	return &Handler{
		logger:          logger,
		ingestService:   ingestService,
		analysisService: analysisService,
		stateManager:    stateManager,
		wsHub:           wsHub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 开发环境允许所有来源
			},
		},
	}
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	// API 路由
	api := r.Group("/api")
	{
		// 轨迹入库
		api.POST("/trips/:id/batches", h.StoreBatch)
		api.POST("/trips/:id/finalize", h.FinalizeTrip)

		// 分析
		api.GET("/trips/:id/analysis", h.GetTripAnalysis)
		api.GET("/trips/:id/state", h.GetTripState)
		api.GET("/drivers/:id/analysis", h.GetDriverAnalysis)
	}

	// WebSocket
	r.GET("/ws", h.HandleWebSocket)

	// 健康检查
	r.GET("/health", h.HealthCheck)
}

// HandleWebSocket WebSocket 处理
// 连接按 user_id 归属，该用户的行程状态和分析结果会推到这条连接
func (h *Handler) HandleWebSocket(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade websocket", zap.Error(err))
		return
	}

	client := ws.NewClient(h.wsHub, conn, userID)
	client.Register()

	// 启动读写协程
	go client.ReadPump()
	go client.WritePump()
}

// HealthCheck 健康检查
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"ws_clients": h.wsHub.ClientCount(),
	})
}
