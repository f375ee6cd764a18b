package queue

import (
	"net/http"

	"tixgate/internal/shared/middleware"
	"tixgate/internal/shared/utils/response"

	"github.com/gin-gonic/gin"
)

type Controller struct {
	service Service
}

func NewController(service Service) *Controller {
	return &Controller{
		service: service,
	}
}

func (c *Controller) EnterQueue(ctx *gin.Context) {
	eventID := ctx.Param("event_id")
	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		response.RespondJSON(ctx, "error", http.StatusUnauthorized, "User not authenticated", nil, nil)
		return
	}

	status, err := c.service.EnterQueue(ctx.Request.Context(), eventID, userID)
	if err != nil {
		response.RespondError(ctx, err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Entered queue", status, nil)
}

func (c *Controller) GetMyStatus(ctx *gin.Context) {
	eventID := ctx.Param("event_id")
	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		response.RespondJSON(ctx, "error", http.StatusUnauthorized, "User not authenticated", nil, nil)
		return
	}

	status, err := c.service.GetStatus(ctx.Request.Context(), eventID, userID)
	if err != nil {
		response.RespondError(ctx, err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Queue status", status, nil)
}

func (c *Controller) Heartbeat(ctx *gin.Context) {
	eventID := ctx.Param("event_id")
	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		response.RespondJSON(ctx, "error", http.StatusUnauthorized, "User not authenticated", nil, nil)
		return
	}

	if err := c.service.Heartbeat(ctx.Request.Context(), eventID, userID); err != nil {
		response.RespondError(ctx, err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Slot renewed", nil, nil)
}

func (c *Controller) LeaveQueue(ctx *gin.Context) {
	eventID := ctx.Param("event_id")
	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		response.RespondJSON(ctx, "error", http.StatusUnauthorized, "User not authenticated", nil, nil)
		return
	}

	if err := c.service.LeaveQueue(ctx.Request.Context(), eventID, userID); err != nil {
		response.RespondError(ctx, err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Left queue", nil, nil)
}

func (c *Controller) GetStats(ctx *gin.Context) {
	eventID := ctx.Param("event_id")

	stats, err := c.service.GetStats(ctx.Request.Context(), eventID)
	if err != nil {
		response.RespondError(ctx, err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Queue stats", stats, nil)
}
