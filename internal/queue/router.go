package queue

import (
	"tixgate/internal/shared/middleware"

	"github.com/gin-gonic/gin"
)

// SetupQueueRoutes configures all waiting-room routes
func SetupQueueRoutes(rg *gin.RouterGroup, controller *Controller) {
	queues := rg.Group("/queues")
	{
		authenticated := queues.Group("")
		authenticated.Use(middleware.RequireUser())
		{
			authenticated.GET("/:event_id/enter", controller.EnterQueue)
			authenticated.GET("/:event_id/my-status", controller.GetMyStatus)
			authenticated.GET("/:event_id/heartbeat", controller.Heartbeat)
			authenticated.DELETE("/:event_id/leave", controller.LeaveQueue)
		}

		// Internal stats for dashboards, no end-user auth
		queues.GET("/:event_id/stats", controller.GetStats)
	}
}
