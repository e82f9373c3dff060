package approuters

import (
	"github.com/gin-gonic/gin"

	"parley/internal/configuration"
)

func HistoryRouters(router *gin.Engine, container *configuration.Container) {
	historyRoute := router.Group("/api")
	{
		historyRoute.GET("/messages/:userId/:peerId", container.HistoryHandler.GetDirectHistory)
		historyRoute.GET("/groups/:groupId/messages", container.HistoryHandler.GetGroupHistory)
		historyRoute.GET("/calls/:userId", container.HistoryHandler.GetCallHistory)
		historyRoute.GET("/online-status", container.HistoryHandler.GetOnlineStatus)
	}
}
