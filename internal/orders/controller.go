package orders

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"tixgate/internal/shared/middleware"
	"tixgate/internal/shared/utils/response"
	"tixgate/pkg/logger"
	"tixgate/pkg/metrics"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Controller struct {
	service  Service
	verifier *WebhookVerifier
	log      *logger.Logger
	mtx      *metrics.Metrics
}

func NewController(service Service, verifier *WebhookVerifier, log *logger.Logger, mtx *metrics.Metrics) *Controller {
	return &Controller{
		service:  service,
		verifier: verifier,
		log:      log,
		mtx:      mtx,
	}
}

func (c *Controller) CreateOrder(ctx *gin.Context) {
	userID, ok := middleware.GetUserIDUint(ctx)
	if !ok {
		response.RespondJSON(ctx, "error", http.StatusUnauthorized, "User not authenticated", nil, nil)
		return
	}

	var request CreateOrderRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}

	order, err := c.service.CreateOrder(ctx.Request.Context(), userID, &request)
	if err != nil {
		response.RespondError(ctx, err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusCreated, "Order created", order, nil)
}

func (c *Controller) GetOrder(ctx *gin.Context) {
	userID, ok := middleware.GetUserIDUint(ctx)
	if !ok {
		response.RespondJSON(ctx, "error", http.StatusUnauthorized, "User not authenticated", nil, nil)
		return
	}

	orderID, err := uuid.Parse(ctx.Param("order_id"))
	if err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid order ID", nil, nil)
		return
	}

	order, err := c.service.GetOrder(ctx.Request.Context(), userID, orderID)
	if err != nil {
		response.RespondError(ctx, err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Order", order, nil)
}

func (c *Controller) GetMyOrders(ctx *gin.Context) {
	userID, ok := middleware.GetUserIDUint(ctx)
	if !ok {
		response.RespondJSON(ctx, "error", http.StatusUnauthorized, "User not authenticated", nil, nil)
		return
	}

	list, err := c.service.GetUserOrders(ctx.Request.Context(), userID)
	if err != nil {
		response.RespondError(ctx, err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Orders", list, nil)
}

// HandleWebhook verifies the gateway signature over the raw body before any
// parsing, then feeds the event into the saga.
func (c *Controller) HandleWebhook(ctx *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(ctx.Request.Body, 1<<20))
	if err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Unreadable body", nil, nil)
		return
	}

	err = c.verifier.Verify(
		ctx.GetHeader(HeaderWebhookID),
		ctx.GetHeader(HeaderWebhookTimestamp),
		ctx.GetHeader(HeaderWebhookSignature),
		payload,
	)
	if err != nil {
		c.mtx.WebhookRejections.Inc()
		c.log.LogWebhookRejected(ctx.Request.Context(), err.Error(), ctx.ClientIP())
		response.RespondError(ctx, err)
		return
	}

	var request WebhookRequest
	if err := json.Unmarshal(payload, &request); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid webhook body", nil, nil)
		return
	}

	if err := c.service.ProcessWebhook(ctx.Request.Context(), &request); err != nil {
		response.RespondError(ctx, err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Webhook processed", nil, nil)
}

func (c *Controller) PreviewRefund(ctx *gin.Context) {
	userID, ok := middleware.GetUserIDUint(ctx)
	if !ok {
		response.RespondJSON(ctx, "error", http.StatusUnauthorized, "User not authenticated", nil, nil)
		return
	}

	orderID, err := uuid.Parse(ctx.Param("order_id"))
	if err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid order ID", nil, nil)
		return
	}

	preview, err := c.service.PreviewRefund(ctx.Request.Context(), userID, orderID)
	if err != nil {
		response.RespondError(ctx, err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Refund preview", preview, nil)
}

func (c *Controller) RefundOrder(ctx *gin.Context) {
	userID, ok := middleware.GetUserIDUint(ctx)
	if !ok {
		response.RespondJSON(ctx, "error", http.StatusUnauthorized, "User not authenticated", nil, nil)
		return
	}

	orderID, err := uuid.Parse(ctx.Param("order_id"))
	if err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid order ID", nil, nil)
		return
	}

	order, err := c.service.RefundOrder(ctx.Request.Context(), userID, orderID)
	if err != nil {
		response.RespondError(ctx, err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Order refunded", order, nil)
}

// SubscribeStatus streams saga transitions for one payment over SSE until the
// client disconnects or the order reaches a terminal state.
func (c *Controller) SubscribeStatus(ctx *gin.Context) {
	paymentID := ctx.Param("payment_id")
	if paymentID == "" {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Missing payment ID", nil, nil)
		return
	}

	events, cancel := c.service.Hub().Subscribe(paymentID)
	defer cancel()

	ctx.Writer.Header().Set("Content-Type", "text/event-stream")
	ctx.Writer.Header().Set("Cache-Control", "no-cache")
	ctx.Writer.Header().Set("Connection", "keep-alive")
	ctx.Writer.Flush()

	keepalive := time.NewTicker(15 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Request.Context().Done():
			return

		case <-keepalive.C:
			fmt.Fprint(ctx.Writer, ": keepalive\n\n")
			ctx.Writer.Flush()

		case event := <-events:
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			fmt.Fprintf(ctx.Writer, "event: order-status\ndata: %s\n\n", data)
			ctx.Writer.Flush()

			if event.Status.IsTerminal() {
				return
			}
		}
	}
}
