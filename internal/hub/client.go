package hub

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"live-session/internal/gateway"
	"live-session/internal/service"
)

// Client 代表一个连接到 Hub 的 WebSocket 客户端。
type Client struct {
	hub     *Hub             // 指向其所属的 Hub
	conn    *websocket.Conn  // WebSocket 连接
	session *gateway.Session // 连接上缓存的身份
	send    chan []byte      // 用于向此客户端发送消息的缓冲通道
	path    string           // 握手路径，仅用于日志

	mu     sync.Mutex // 保护 send 的关闭
	closed bool
	online int32 // 是否已计入在线集合
}

// NewClient 创建一个新的 Client 实例
func NewClient(hub *Hub, conn *websocket.Conn, session *gateway.Session, path string) *Client {
	return &Client{
		hub:     hub,
		conn:    conn,
		session: session,
		path:    path,
		send:    make(chan []byte, 256),
	}
}

// Run 启动客户端的读写 goroutine
func (c *Client) Run() {
	go c.WritePump()
	go c.ReadPump()
}

func (c *Client) logCtx() *logrus.Entry {
	fields := logrus.Fields{"path": c.path}
	if p, ok := c.session.Principal(); ok {
		fields["room_id"] = p.RoomID
		fields["role"] = p.Role.String()
		if p.IsAudience() {
			fields["audience_id"] = p.SubjectID
		}
	}
	return logrus.WithFields(fields)
}

func (c *Client) markOnline() bool {
	return atomic.CompareAndSwapInt32(&c.online, 0, 1)
}

func (c *Client) isOnline() bool {
	return atomic.LoadInt32(&c.online) == 1
}

// close 关闭发送通道，WritePump 随之退出。可重复调用。
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// sendFrame 非阻塞地把一帧放入发送队列，队列满或已关闭时丢弃。
func (c *Client) sendFrame(frame gateway.Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		c.logCtx().WithError(err).Error("Failed to marshal frame")
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		c.logCtx().WithField("command", frame.Command).Warn("Client send channel full, frame dropped")
	}
}

func (c *Client) sendError(id string, err error) {
	e := service.AsError(err)
	c.sendFrame(gateway.NewErrorFrame(id, e.Code, e.Message))
}

func (c *Client) sendReceipt(id string) {
	if id == "" {
		return
	}
	c.sendFrame(gateway.Frame{Command: gateway.CommandReceipt, ID: id})
}

// ReadPump 将帧从 WebSocket 连接泵送到 Hub 的 messageChan。
// 它在自己的 goroutine 中运行。
func (c *Client) ReadPump() {
	defer func() {
		// 请求 Hub 注销此客户端，Hub 阻塞时不无限等待
		select {
		case c.hub.messageChan <- HubMessage{Type: "unregister", Client: c}:
		case <-time.After(1 * time.Second):
			c.logCtx().Warn("Timeout sending unregister message to Hub channel")
		}
		c.conn.Close()
		c.logCtx().Info("readPump exited, unregistered client")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logCtx().WithError(err).Warn("WebSocket read error (unexpected close)")
			} else {
				c.logCtx().Debug("WebSocket connection closed normally or read error")
			}
			break
		}
		if messageType != websocket.TextMessage {
			c.logCtx().Debugf("Received non-text message type: %d", messageType)
			continue
		}

		var frame gateway.Frame
		if err := json.Unmarshal(message, &frame); err != nil {
			c.sendError("", service.ErrInvalidInput.WithMessage("malformed frame"))
			continue
		}
		if !c.hub.QueueMessage(HubMessage{Type: "frame", Client: c, Frame: frame}) {
			c.sendError(frame.ID, service.ErrRateLimited.WithMessage("server is busy"))
		}
	}
}

// WritePump 将消息从 Client 的 send 通道泵送到 WebSocket 连接。
// 它在自己的 goroutine 中运行。
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.logCtx().Debug("writePump exited")
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// send 通道被 Hub 关闭了（通常在注销时）
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logCtx().WithError(err).Warn("Failed to write message to websocket")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logCtx().WithError(err).Warn("Failed to send ping message")
				return
			}
		}
	}
}

// CloseConn 直接关闭底层连接
func (c *Client) CloseConn() {
	if c.conn != nil {
		c.conn.Close()
	}
}
