package http

import (
	"github.com/gin-gonic/gin"

	"live-session/internal/domain"
	"live-session/internal/middleware"
)

// Handlers 汇总 /api 下的全部处理器
type Handlers struct {
	Rooms     *RoomHandler
	Questions *QuestionHandler
	Reports   *ReportHandler
}

// Register 在 api 分组下注册路由。auth 为凭证校验中间件。
func (h Handlers) Register(api *gin.RouterGroup, auth gin.HandlerFunc) {
	rooms := api.Group("/rooms")
	rooms.POST("", h.Rooms.CreateRoom)
	rooms.POST("/join", h.Rooms.JoinRoom)
	rooms.POST("/:roomId/presenter/token", h.Rooms.RefreshPresenterToken)

	member := rooms.Group("/:roomId", auth, middleware.RequireRoomRole(domain.RoleUnknown))
	member.GET("", h.Rooms.GetRoom)
	member.GET("/questions", h.Questions.List)
	member.GET("/feedback/:slide", h.Reports.FeedbackState)

	audience := rooms.Group("/:roomId", auth, middleware.RequireRoomRole(domain.RoleAudience))
	audience.POST("/questions", h.Questions.Submit)

	presenter := rooms.Group("/:roomId", auth, middleware.RequireRoomRole(domain.RolePresenter))
	presenter.POST("/start", h.Rooms.StartSession)
	presenter.POST("/end", h.Rooms.EndSession)
	presenter.DELETE("", h.Rooms.Teardown)
	presenter.GET("/audience/distribution", h.Reports.AudienceDistribution)
	presenter.GET("/report", h.Reports.Report)
	presenter.GET("/report/top", h.Reports.Top)
	presenter.GET("/report/revisits", h.Reports.Revisits)
	presenter.GET("/report/most-revisit", h.Reports.MostRevisit)
	presenter.GET("/report/reactions", h.Reports.ReactionHotspots)
}
