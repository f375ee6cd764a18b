package orders

import (
	"tixgate/internal/shared/middleware"

	"github.com/gin-gonic/gin"
)

// SetupOrderRoutes configures all order saga routes
func SetupOrderRoutes(rg *gin.RouterGroup, controller *Controller) {
	orders := rg.Group("/orders")
	{
		// Gateway webhook, authenticated by HMAC signature instead of a user
		orders.POST("/valid", controller.HandleWebhook)

		// Payment status stream, keyed by payment id known only to the buyer
		orders.GET("/subscribe/:payment_id", controller.SubscribeStatus)

		authenticated := orders.Group("")
		authenticated.Use(middleware.RequireUser())
		{
			authenticated.POST("", controller.CreateOrder)
			authenticated.GET("", controller.GetMyOrders)
			authenticated.GET("/:order_id", controller.GetOrder)
			authenticated.GET("/:order_id/refund-preview", controller.PreviewRefund)
			authenticated.DELETE("/:order_id", controller.RefundOrder)
		}
	}
}
