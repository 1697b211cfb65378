package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"live-session/internal/domain"
	"live-session/internal/service"
)

// ReportHandler 提供实时反馈、观众分布与报告相关的查询
type ReportHandler struct {
	aggregator *service.LiveAggregator
	reports    *service.ReportService
}

func NewReportHandler(aggregator *service.LiveAggregator, reports *service.ReportService) *ReportHandler {
	if aggregator == nil || reports == nil {
		panic("LiveAggregator and ReportService are required for ReportHandler")
	}
	return &ReportHandler{aggregator: aggregator, reports: reports}
}

// FeedbackState 返回某页的多数反应检测状态
func (h *ReportHandler) FeedbackState(c *gin.Context) {
	slide, err := strconv.Atoi(c.Param("slide"))
	if err != nil || slide <= 0 {
		HandleServiceError(c, service.ErrInvalidInput.WithMessage("slide must be a positive integer"))
		return
	}
	state, err := h.aggregator.FeedbackState(c.Request.Context(), c.Param("roomId"), slide)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, state)
}

// AudienceDistribution 返回观众相对讲者页的分布百分比
func (h *ReportHandler) AudienceDistribution(c *gin.Context) {
	dist, err := h.aggregator.AudienceDistribution(c.Request.Context(), c.Param("roomId"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, dist)
}

func (h *ReportHandler) Top(c *gin.Context) {
	top, err := h.reports.Top(c.Request.Context(), c.Param("roomId"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, top)
}

func (h *ReportHandler) Revisits(c *gin.Context) {
	revisits, err := h.reports.Revisits(c.Request.Context(), c.Param("roomId"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"revisits": revisits})
}

func (h *ReportHandler) MostRevisit(c *gin.Context) {
	most, err := h.reports.MostRevisit(c.Request.Context(), c.Param("roomId"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, most)
}

func (h *ReportHandler) ReactionHotspots(c *gin.Context) {
	hotspots, err := h.reports.ReactionHotspots(c.Request.Context(), c.Param("roomId"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"reactions": hotspots})
}

// ReportResponse 是持久化报告快照的响应结构体
type ReportResponse struct {
	RoomID         string          `json:"roomId"`
	EmojiCount     int64           `json:"emojiCount"`
	QuestionCount  int64           `json:"questionCount"`
	AttentionSlide int             `json:"attentionSlide"`
	PopularEmoji   json.RawMessage `json:"popularEmoji,omitempty"`
	Revisit        json.RawMessage `json:"revisit,omitempty"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

func newReportResponse(r *domain.Report) ReportResponse {
	resp := ReportResponse{
		RoomID:         r.RoomID,
		EmojiCount:     r.EmojiCount,
		QuestionCount:  r.QuestionCount,
		AttentionSlide: r.AttentionSlide,
		UpdatedAt:      r.UpdatedAt,
	}
	if r.PopularEmoji != nil {
		resp.PopularEmoji = json.RawMessage(*r.PopularEmoji)
	}
	if r.Revisit != nil {
		resp.Revisit = json.RawMessage(*r.Revisit)
	}
	return resp
}

// Report 返回已持久化的报告快照
func (h *ReportHandler) Report(c *gin.Context) {
	report, err := h.reports.Get(c.Request.Context(), c.Param("roomId"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, newReportResponse(report))
}
