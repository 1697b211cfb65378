package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"live-session/internal/domain"
	"live-session/internal/gateway"
	"live-session/internal/repository"
	"live-session/internal/service"
)

// 包级别的 WebSocket 常量，供 hub 和 client 使用
const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 8 * 1024

	// 单条 SEND 的处理超时
	dispatchTimeout = 5 * time.Second

	// 待写入的在线状态变更上限
	presenceQueueSize = 1024
)

// HubMessage 定义了在 Hub 内部通道传递的消息类型
type HubMessage struct {
	Type   string        // "register", "unregister", "frame"
	Client *Client       // 来源客户端
	Frame  gateway.Frame // 仅用于 frame
}

// Relay 在多个实例之间转发广播。
type Relay interface {
	Publish(ctx context.Context, msg domain.Broadcast) error
	Listen(ctx context.Context, handle func(domain.Broadcast)) error
}

// Dispatcher 处理发往 /app 目的地的 SEND 帧。
type Dispatcher interface {
	Dispatch(ctx context.Context, principal domain.Principal, frame gateway.Frame) error
}

// Hub 维护活跃客户端与目的地订阅，并把本实例收到的广播分发给订阅者。
type Hub struct {
	// 内部通道，处理所有来自 Client 的事件
	messageChan chan HubMessage

	// map[destination]map[*Client]subscriptionID
	subscriptions map[string]map[*Client]string
	clients       map[*Client]bool
	// 同一观众在本实例上的连接数，最后一条连接断开时才移出在线集合
	online map[onlineKey]int
	mu     sync.RWMutex

	// 在线集合的 Redis 写入由单独的 worker 按序执行，主循环只做计数
	presenceQueue chan presenceOp

	authorizer *gateway.Authorizer
	dispatcher Dispatcher
	relay      Relay
	presence   repository.PresenceStore
}

type onlineKey struct {
	roomID     string
	audienceID string
}

type presenceOp struct {
	key    onlineKey
	online bool
}

var _ service.Broadcaster = (*Hub)(nil)

// NewHub 创建并返回一个新的 Hub 实例
func NewHub(authorizer *gateway.Authorizer, dispatcher Dispatcher, relay Relay, presence repository.PresenceStore) *Hub {
	if authorizer == nil {
		panic("Authorizer cannot be nil for Hub")
	}
	if relay == nil {
		panic("Relay cannot be nil for Hub")
	}
	if presence == nil {
		panic("PresenceStore cannot be nil for Hub")
	}
	return &Hub{
		messageChan:   make(chan HubMessage, 512),
		subscriptions: make(map[string]map[*Client]string),
		clients:       make(map[*Client]bool),
		online:        make(map[onlineKey]int),
		presenceQueue: make(chan presenceOp, presenceQueueSize),
		authorizer:    authorizer,
		dispatcher:    dispatcher,
		relay:         relay,
		presence:      presence,
	}
}

// SetDispatcher 注入 SEND 帧的处理器。Dispatcher 依赖的服务又依赖 Hub 广播，只能在构造后注入。
func (h *Hub) SetDispatcher(d Dispatcher) {
	h.dispatcher = d
}

// Run 启动广播监听与 Hub 的主事件循环，直到 ctx 结束。
func (h *Hub) Run(ctx context.Context) {
	log := logrus.WithField("component", "hub")
	log.Info("Hub is running...")

	go func() {
		if err := h.relay.Listen(ctx, h.deliver); err != nil {
			log.WithError(err).Error("Broadcast relay stopped")
		}
	}()
	go h.runPresence(ctx)

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			log.Info("Hub is shutting down...")
			return
		case msg := <-h.messageChan:
			switch msg.Type {
			case "register":
				h.registerClient(msg.Client)
			case "unregister":
				h.unregisterClient(msg.Client)
			case "frame":
				h.handleFrame(msg.Client, msg.Frame)
			default:
				log.Warnf("Hub: Received unknown message type: %s", msg.Type)
			}
		}
	}
}

// Broadcast 序列化 payload 并通过 Relay 发布到所有实例。
func (h *Hub) Broadcast(ctx context.Context, destination string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("hub: failed to marshal payload for %s: %w", destination, err)
	}
	return h.relay.Publish(ctx, domain.Broadcast{Destination: destination, Payload: data})
}

// QueueMessage 将消息放入 Hub 的处理队列 (非阻塞)。
// 返回 false 表示队列已满。
func (h *Hub) QueueMessage(msg HubMessage) bool {
	select {
	case h.messageChan <- msg:
		return true
	default:
		logrus.WithField("message_type", msg.Type).Warn("Hub message channel full, dropping message")
		return false
	}
}

// registerClient 处理客户端注册逻辑
func (h *Hub) registerClient(client *Client) {
	if client == nil {
		logrus.Error("Hub: Attempted to register a nil client")
		return
	}
	h.mu.Lock()
	h.clients[client] = true
	h.mu.Unlock()

	client.logCtx().Info("Client registered to Hub")
	if p, ok := client.session.Principal(); ok {
		h.markOnline(client, p)
	}
}

// unregisterClient 移除客户端的全部订阅并关闭其发送通道
func (h *Hub) unregisterClient(client *Client) {
	if client == nil {
		logrus.Error("Hub: Attempted to unregister a nil client")
		return
	}
	logCtx := client.logCtx()

	h.mu.Lock()
	if !h.clients[client] {
		h.mu.Unlock()
		logCtx.Debug("Client already unregistered")
		return
	}
	delete(h.clients, client)
	for dest, subs := range h.subscriptions {
		delete(subs, client)
		if len(subs) == 0 {
			delete(h.subscriptions, dest)
		}
	}
	h.mu.Unlock()
	client.close()

	h.markOffline(client)
	logCtx.Info("Client unregistered from Hub")
}

func (h *Hub) closeAll() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		h.unregisterClient(c)
	}
}

// markOnline 观众首次确定身份时加入在线集合
func (h *Hub) markOnline(client *Client, p domain.Principal) {
	if !p.IsAudience() || !client.markOnline() {
		return
	}
	key := onlineKey{roomID: p.RoomID, audienceID: p.SubjectID}
	h.mu.Lock()
	h.online[key]++
	first := h.online[key] == 1
	h.mu.Unlock()
	if first {
		h.enqueuePresence(presenceOp{key: key, online: true})
	}
}

func (h *Hub) markOffline(client *Client) {
	if !client.isOnline() {
		return
	}
	p, _ := client.session.Principal()
	key := onlineKey{roomID: p.RoomID, audienceID: p.SubjectID}

	h.mu.Lock()
	h.online[key]--
	remaining := h.online[key]
	if remaining <= 0 {
		delete(h.online, key)
	}
	h.mu.Unlock()
	if remaining > 0 {
		return
	}
	h.enqueuePresence(presenceOp{key: key, online: false})
}

// enqueuePresence 不阻塞主循环；队列满时退化为单独的 goroutine 写入。
func (h *Hub) enqueuePresence(op presenceOp) {
	select {
	case h.presenceQueue <- op:
	default:
		logrus.WithField("room_id", op.key.roomID).Warn("Presence queue full, writing out of order")
		go h.applyPresence(op)
	}
}

// runPresence 按入队顺序把在线状态写入存储，同一观众的上线与下线不会乱序。
func (h *Hub) runPresence(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case op := <-h.presenceQueue:
			h.applyPresence(op)
		}
	}
}

func (h *Hub) applyPresence(op presenceOp) {
	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()
	logCtx := logrus.WithFields(logrus.Fields{
		"room_id":     op.key.roomID,
		"audience_id": op.key.audienceID,
	})
	if op.online {
		if err := h.presence.AddOnline(ctx, op.key.roomID, op.key.audienceID); err != nil {
			logCtx.WithError(err).Warn("Failed to mark audience online")
		}
		return
	}
	if err := h.presence.RemoveOnline(ctx, op.key.roomID, op.key.audienceID); err != nil {
		logCtx.WithError(err).Warn("Failed to mark audience offline")
	}
}

// handleFrame 校验并处理客户端发来的一帧。
func (h *Hub) handleFrame(client *Client, frame gateway.Frame) {
	principal, err := h.authorizer.Authorize(client.session, frame)
	if err != nil {
		client.sendError(frame.ID, err)
		return
	}

	switch frame.Command {
	case gateway.CommandConnect:
		h.markOnline(client, principal)
		client.sendFrame(gateway.Frame{
			Command: gateway.CommandConnected,
			ID:      frame.ID,
			Headers: map[string]string{"room": principal.RoomID, "role": principal.Role.String()},
		})
	case gateway.CommandSubscribe:
		if frame.Destination == "" {
			client.sendError(frame.ID, service.ErrInvalidInput.WithMessage("destination is required"))
			return
		}
		h.markOnline(client, principal)
		h.subscribe(client, frame.Destination, frame.ID)
		client.sendReceipt(frame.ID)
	case gateway.CommandUnsubscribe:
		h.unsubscribe(client, frame.Destination, frame.ID)
		client.sendReceipt(frame.ID)
	case gateway.CommandSend:
		h.markOnline(client, principal)
		// 业务处理涉及存储 IO，不阻塞主循环
		go h.dispatch(client, principal, frame)
	case gateway.CommandDisconnect:
		client.sendReceipt(frame.ID)
		h.unregisterClient(client)
	}
}

func (h *Hub) dispatch(client *Client, principal domain.Principal, frame gateway.Frame) {
	logCtx := client.logCtx().WithField("destination", frame.Destination)
	if h.dispatcher == nil {
		logCtx.Error("No dispatcher configured, dropping SEND frame")
		client.sendError(frame.ID, service.ErrInternal)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	if err := h.dispatcher.Dispatch(ctx, principal, frame); err != nil {
		logCtx.WithError(err).Warn("Failed to handle SEND frame")
		client.sendError(frame.ID, err)
		return
	}
	client.sendReceipt(frame.ID)
}

func (h *Hub) subscribe(client *Client, destination, id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subscriptions[destination]; !ok {
		h.subscriptions[destination] = make(map[*Client]string)
	}
	h.subscriptions[destination][client] = id
	client.logCtx().WithField("destination", destination).Debug("Client subscribed")
}

// unsubscribe 按订阅 id 或目的地取消订阅
func (h *Hub) unsubscribe(client *Client, destination, id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for dest, subs := range h.subscriptions {
		subID, ok := subs[client]
		if !ok {
			continue
		}
		if dest == destination || (id != "" && subID == id) {
			delete(subs, client)
			if len(subs) == 0 {
				delete(h.subscriptions, dest)
			}
		}
	}
}

// deliver 把一条广播发给本实例上订阅了该目的地的客户端。
func (h *Hub) deliver(msg domain.Broadcast) {
	h.mu.RLock()
	subs := h.subscriptions[msg.Destination]
	type target struct {
		client *Client
		subID  string
	}
	targets := make([]target, 0, len(subs))
	for c, id := range subs {
		targets = append(targets, target{client: c, subID: id})
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		return
	}
	logrus.WithFields(logrus.Fields{
		"destination":     msg.Destination,
		"recipient_count": len(targets),
	}).Debug("Broadcasting message to clients")

	for _, t := range targets {
		frame := gateway.NewMessageFrame(msg.Destination, msg.Payload)
		if t.subID != "" {
			frame.Headers = map[string]string{"subscription": t.subID}
		}
		t.client.sendFrame(frame)
	}
}

// SubscriberCount 返回本实例上订阅了 destination 的客户端数。
func (h *Hub) SubscriberCount(destination string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscriptions[destination])
}

// ActiveRoomIDs 返回本实例上有已识别连接的房间 id。
func (h *Hub) ActiveRoomIDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	seen := make(map[string]struct{})
	ids := make([]string, 0)
	for c := range h.clients {
		p, ok := c.session.Principal()
		if !ok {
			continue
		}
		if _, dup := seen[p.RoomID]; dup {
			continue
		}
		seen[p.RoomID] = struct{}{}
		ids = append(ids, p.RoomID)
	}
	return ids
}
