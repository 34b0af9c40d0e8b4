package webhook

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	billingerrors "github.com/flaboy/aira-billing/pkg/errors"
	"github.com/gin-gonic/gin"
)

// Controller 网关Webhook的HTTP入口
type Controller struct {
	engine *Engine
	token  string
}

func NewController(engine *Engine, webhookToken string) *Controller {
	return &Controller{engine: engine, token: webhookToken}
}

// Handle POST /webhooks/gateway
// 鉴权失败 401，报文问题 400，可重试的业务失败 422，成功 200。
func (ctl *Controller) Handle(c *gin.Context) {
	if ctl.token != "" {
		if c.GetHeader("access-token") != ctl.token {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":     billingerrors.ErrInvalidWebhookToken.Error(),
				"retryable": false,
			})
			return
		}
	} else {
		slog.Warn("[WebhookController] Webhook token not configured, accepting unauthenticated request",
			"remote_addr", c.ClientIP())
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body", "retryable": false})
		return
	}

	start := time.Now()
	result := ctl.engine.Process(body)
	elapsed := time.Since(start)

	if result.Success {
		status := "processed"
		if result.Duplicate {
			status = "already_processed"
		}
		c.JSON(http.StatusOK, gin.H{
			"status":         status,
			"eventId":        result.EventID,
			"processingTime": elapsed.Milliseconds(),
		})
		return
	}

	httpStatus := http.StatusBadRequest
	if result.Retryable {
		httpStatus = http.StatusUnprocessableEntity
	}
	c.JSON(httpStatus, gin.H{
		"error":     result.Err.Error(),
		"eventId":   result.EventID,
		"retryable": result.Retryable,
	})
}

// RegisterRoutes 挂载Webhook路由
func (ctl *Controller) RegisterRoutes(router gin.IRouter) {
	router.POST("/webhooks/gateway", ctl.Handle)
}
