package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"live-session/internal/domain"
	"live-session/internal/gateway"
	"live-session/internal/hub"
	"live-session/internal/service"
)

// WebSocketHandler 负责处理 WebSocket 升级请求和客户端注册
type WebSocketHandler struct {
	upgrader   websocket.Upgrader // WebSocket 升级器
	hub        *hub.Hub
	handshaker *gateway.Handshaker
}

// NewWebSocketHandler 创建 WebSocketHandler 实例。allowedOrigin 为空或 "*" 时允许所有来源。
func NewWebSocketHandler(h *hub.Hub, handshaker *gateway.Handshaker, allowedOrigin string) *WebSocketHandler {
	if h == nil {
		panic("Hub cannot be nil for WebSocketHandler")
	}
	if handshaker == nil {
		panic("Handshaker cannot be nil for WebSocketHandler")
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if allowedOrigin == "" || allowedOrigin == "*" {
				return true
			}
			origin := r.Header.Get("Origin")
			return origin == "" || origin == allowedOrigin
		},
	}

	return &WebSocketHandler{
		upgrader:   upgrader,
		hub:        h,
		handshaker: handshaker,
	}
}

// Presenter 处理 /ws/presenter 的连接
func (h *WebSocketHandler) Presenter(c *gin.Context) {
	h.handleConnection(c, domain.RolePresenter)
}

// Audience 处理 /ws/audience 的连接
func (h *WebSocketHandler) Audience(c *gin.Context) {
	h.handleConnection(c, domain.RoleAudience)
}

// handleConnection 握手校验 → 升级 → 注册到 Hub → 启动读写 goroutine。
func (h *WebSocketHandler) handleConnection(c *gin.Context, role domain.Role) {
	path := c.Request.URL.Path
	logCtx := logrus.WithFields(logrus.Fields{"path": path, "endpoint_role": role.String()})

	// 传输协商的辅助请求直接放行，不做升级
	if gateway.IsAuxiliaryPath(path) {
		c.Status(http.StatusOK)
		return
	}

	principal, err := h.handshaker.Handshake(c.Request, role)
	if err != nil {
		e := service.AsError(err)
		status := http.StatusUnauthorized
		if e.Kind == service.KindInvalid {
			status = http.StatusBadRequest
		} else if e.Code == service.ErrForbidden.Code {
			status = http.StatusForbidden
		}
		c.JSON(status, gin.H{"code": e.Code, "error": e.Message})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 方法会自动发送 HTTP 错误响应，所以这里只需要记录日志
		logCtx.WithError(err).Error("WS Handler: Failed to upgrade connection")
		return
	}

	client := hub.NewClient(h.hub, conn, gateway.NewSession(principal), path)
	if !h.hub.QueueMessage(hub.HubMessage{Type: "register", Client: client}) {
		logCtx.Error("WS Handler: Hub message channel full, failed to register client")
		client.CloseConn()
		return
	}
	client.Run()
	logCtx.Info("WS Handler: Client registered and pumps started")
}
