package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"live-session/internal/service"
)

// RoomHandler 封装了与房间管理相关的 HTTP 处理逻辑
type RoomHandler struct {
	roomService *service.RoomService // 依赖 RoomService
}

// NewRoomHandler 创建 RoomHandler 实例
func NewRoomHandler(roomService *service.RoomService) *RoomHandler {
	if roomService == nil {
		panic("RoomService cannot be nil for RoomHandler")
	}
	return &RoomHandler{roomService: roomService}
}

// CreateRoomRequest 定义创建房间请求的结构体
type CreateRoomRequest struct {
	DeckID     string `json:"deckId" binding:"max=128"`
	TotalPages int    `json:"totalPages" binding:"required,gt=0,lte=1000"`
}

// CreateRoom 处理创建新房间的请求
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).Warn("Handler.CreateRoom: Invalid input format")
		bindError(c, err)
		return
	}

	created, err := h.roomService.CreateRoom(c.Request.Context(), service.CreateRoomInput{
		DeckID:     req.DeckID,
		TotalPages: req.TotalPages,
	})
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusCreated, created)
}

// JoinRoomRequest 定义加入房间请求的结构体
type JoinRoomRequest struct {
	Code string `json:"code" binding:"required,len=6,numeric"`
}

// JoinRoom 处理观众通过邀请码加入房间的请求
func (h *RoomHandler) JoinRoom(c *gin.Context) {
	var req JoinRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).Warn("Handler.JoinRoom: Invalid input format")
		bindError(c, err)
		return
	}

	joined, err := h.roomService.JoinRoom(c.Request.Context(), req.Code)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, joined)
}

// GetRoom 返回房间信息
func (h *RoomHandler) GetRoom(c *gin.Context) {
	room, err := h.roomService.GetRoom(c.Request.Context(), c.Param("roomId"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, room)
}

// StartSession 讲者开始演示
func (h *RoomHandler) StartSession(c *gin.Context) {
	if err := h.roomService.StartSession(c.Request.Context(), c.Param("roomId")); err != nil {
		HandleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// EndSession 讲者结束演示
func (h *RoomHandler) EndSession(c *gin.Context) {
	if err := h.roomService.EndSession(c.Request.Context(), c.Param("roomId")); err != nil {
		HandleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Teardown 讲者删除房间及其全部数据
func (h *RoomHandler) Teardown(c *gin.Context) {
	if err := h.roomService.Teardown(c.Request.Context(), c.Param("roomId")); err != nil {
		HandleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RefreshTokenRequest 定义刷新讲者凭证请求的结构体
type RefreshTokenRequest struct {
	PresenterKey string `json:"presenterKey" binding:"required"`
	Rotate       bool   `json:"rotate"`
}

// RefreshPresenterToken 用讲者密钥换取新的讲者凭证，不需要 bearer 凭证
func (h *RoomHandler) RefreshPresenterToken(c *gin.Context) {
	var req RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	creds, err := h.roomService.RefreshPresenterToken(c.Request.Context(), c.Param("roomId"), req.PresenterKey, req.Rotate)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, creds)
}
