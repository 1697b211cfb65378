package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"live-session/internal/middleware"
	"live-session/internal/service"
)

// QuestionHandler 处理问题的提交与查询
type QuestionHandler struct {
	questions *service.QuestionService
}

func NewQuestionHandler(questions *service.QuestionService) *QuestionHandler {
	if questions == nil {
		panic("QuestionService cannot be nil for QuestionHandler")
	}
	return &QuestionHandler{questions: questions}
}

// SubmitQuestionRequest 定义提交问题请求的结构体
type SubmitQuestionRequest struct {
	Slide   int    `json:"slide" binding:"required,gt=0"`
	Content string `json:"content" binding:"required,max=500"`
}

// Submit 观众提交问题，观众 id 取自凭证
func (h *QuestionHandler) Submit(c *gin.Context) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		HandleServiceError(c, service.ErrTokenMissing)
		return
	}
	var req SubmitQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	q, err := h.questions.Submit(c.Request.Context(), service.SubmitQuestionInput{
		RoomID:     c.Param("roomId"),
		Slide:      req.Slide,
		AudienceID: principal.SubjectID,
		Content:    req.Content,
	})
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusCreated, q)
}

// ListQuestionsQuery 是问题列表的查询参数
type ListQuestionsQuery struct {
	FromTs *int64 `form:"fromTs" binding:"omitempty,gte=0"`
	Slide  *int   `form:"slide" binding:"omitempty,gt=0"`
}

// List 返回 ts 大于 fromTs 的问题，可按页过滤
func (h *QuestionHandler) List(c *gin.Context) {
	var query ListQuestionsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		bindError(c, err)
		return
	}

	questions, err := h.questions.List(c.Request.Context(), c.Param("roomId"), query.FromTs, query.Slide)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"questions": questions})
}
