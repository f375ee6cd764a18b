package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// Logger wraps slog.Logger with additional functionality
type Logger struct {
	*slog.Logger
}

// New creates a new logger instance
func New() *Logger {
	// Get log level from environment
	level := getLogLevel(os.Getenv("LOG_LEVEL"))

	// Create handler options
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	// Create handler based on environment
	var handler slog.Handler
	if gin.Mode() == gin.DebugMode {
		// Use text handler for development (more readable)
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		// Use JSON handler for production (structured)
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// getLogLevel converts string to slog.Level
func getLogLevel(levelStr string) slog.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithRequestID adds request ID to logger context
func (l *Logger) WithRequestID(requestID string) *Logger {
	return &Logger{
		Logger: l.Logger.With(slog.String("request_id", requestID)),
	}
}

// WithUserID adds user ID to logger context
func (l *Logger) WithUserID(userID string) *Logger {
	return &Logger{
		Logger: l.Logger.With(slog.String("user_id", userID)),
	}
}

// WithError adds error to logger context
func (l *Logger) WithError(err error) *Logger {
	return &Logger{
		Logger: l.Logger.With(slog.String("error", err.Error())),
	}
}

// WithFields adds multiple fields to logger context
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, slog.Any(k, v))
	}
	return &Logger{
		Logger: l.Logger.With(args...),
	}
}

// HTTP logging methods

// LogHTTPRequest logs an HTTP request
func (l *Logger) LogHTTPRequest(c *gin.Context, duration time.Duration) {
	l.Logger.InfoContext(c.Request.Context(),
		"HTTP Request",
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.String("query", c.Request.URL.RawQuery),
		slog.Int("status", c.Writer.Status()),
		slog.Duration("duration", duration),
		slog.String("ip", c.ClientIP()),
		slog.String("user_agent", c.Request.UserAgent()),
		slog.Int("size", c.Writer.Size()),
	)
}

// LogHTTPError logs an HTTP error
func (l *Logger) LogHTTPError(c *gin.Context, err error, statusCode int) {
	l.Logger.ErrorContext(c.Request.Context(),
		"HTTP Error",
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.Int("status", statusCode),
		slog.String("error", err.Error()),
		slog.String("ip", c.ClientIP()),
	)
}

// Admission logging methods

// LogQueueEntered logs a new waiting-room entry
func (l *Logger) LogQueueEntered(ctx context.Context, eventID, userID string, sequence int64) {
	l.Logger.InfoContext(ctx,
		"Queue Entered",
		slog.String("event_id", eventID),
		slog.String("user_id", userID),
		slog.Int64("sequence", sequence),
	)
}

// LogUserPromoted logs a waiting user receiving a working slot
func (l *Logger) LogUserPromoted(ctx context.Context, eventID, userID string) {
	l.Logger.InfoContext(ctx,
		"User Promoted",
		slog.String("event_id", eventID),
		slog.String("user_id", userID),
	)
}

// LogSlotReleased logs a working slot being released
func (l *Logger) LogSlotReleased(ctx context.Context, eventID, userID, reason string) {
	l.Logger.InfoContext(ctx,
		"Working Slot Released",
		slog.String("event_id", eventID),
		slog.String("user_id", userID),
		slog.String("reason", reason),
	)
}

// Saga logging methods

// LogOrderCreated logs a new order entering the saga
func (l *Logger) LogOrderCreated(ctx context.Context, orderID, paymentID string, userID uint64) {
	l.Logger.InfoContext(ctx,
		"Order Created",
		slog.String("order_id", orderID),
		slog.String("payment_id", paymentID),
		slog.Uint64("user_id", userID),
	)
}

// LogOrderTransition logs an order status change
func (l *Logger) LogOrderTransition(ctx context.Context, orderID, from, to string) {
	l.Logger.InfoContext(ctx,
		"Order Transition",
		slog.String("order_id", orderID),
		slog.String("from", from),
		slog.String("to", to),
	)
}

// LogCompensation logs a payment compensation attempt
func (l *Logger) LogCompensation(ctx context.Context, orderID, paymentID string, attempt int, err error) {
	if err != nil {
		l.Logger.ErrorContext(ctx,
			"Payment Compensation Failed",
			slog.String("order_id", orderID),
			slog.String("payment_id", paymentID),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
		return
	}
	l.Logger.InfoContext(ctx,
		"Payment Compensated",
		slog.String("order_id", orderID),
		slog.String("payment_id", paymentID),
		slog.Int("attempt", attempt),
	)
}

// Security logging methods

// LogWebhookRejected logs a webhook that failed signature verification
func (l *Logger) LogWebhookRejected(ctx context.Context, reason, ip string) {
	l.Logger.WarnContext(ctx,
		"Webhook Rejected",
		slog.String("reason", reason),
		slog.String("ip", ip),
	)
}

// LogRateLimitExceeded logs rate limit exceeded
func (l *Logger) LogRateLimitExceeded(ctx context.Context, ip, endpoint string) {
	l.Logger.WarnContext(ctx,
		"Rate Limit Exceeded",
		slog.String("ip", ip),
		slog.String("endpoint", endpoint),
	)
}

// Helper methods for common patterns

// InfoWithContext logs an info message with context
func (l *Logger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, slog.Any(k, v))
	}
	l.Logger.InfoContext(ctx, msg, args...)
}

// ErrorWithContext logs an error message with context
func (l *Logger) ErrorWithContext(ctx context.Context, msg string, err error, fields map[string]interface{}) {
	args := make([]interface{}, 0, len(fields)*2+2)
	args = append(args, slog.String("error", err.Error()))
	for k, v := range fields {
		args = append(args, slog.Any(k, v))
	}
	l.Logger.ErrorContext(ctx, msg, args...)
}

// DebugWithContext logs a debug message with context
func (l *Logger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, slog.Any(k, v))
	}
	l.Logger.DebugContext(ctx, msg, args...)
}

// Global logger instance (can be replaced with dependency injection)
var defaultLogger = New()

// GetDefault returns the default logger instance
func GetDefault() *Logger {
	return defaultLogger
}

// SetDefault sets the default logger instance
func SetDefault(logger *Logger) {
	defaultLogger = logger
}
