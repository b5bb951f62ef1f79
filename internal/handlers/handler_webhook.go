package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/moneywise/bank_sync/internal/apperrors"
	portssvc "github.com/moneywise/bank_sync/internal/core/ports/services"
	"github.com/moneywise/bank_sync/internal/middleware"
)

const (
	// Providers retry on slow acknowledgement; processing must finish well
	// inside their delivery timeout.
	webhookBudget  = 5 * time.Second
	maxWebhookBody = 1 << 20 // 1 MiB
)

// webhookHandler handles inbound provider webhook deliveries.
type webhookHandler struct {
	webhookService portssvc.WebhookProcessorSvc
}

// newWebhookHandler creates a new webhookHandler.
func newWebhookHandler(ws portssvc.WebhookProcessorSvc) *webhookHandler {
	return &webhookHandler{webhookService: ws}
}

// receiveWebhook godoc
// @Summary Receive a provider webhook
// @Description Verifies, dedups and routes one provider event delivery
// @Tags webhooks
// @Accept json
// @Produce json
// @Param provider path string true "Provider name"
// @Success 200 {object} map[string]string "Acknowledged"
// @Failure 401 {object} map[string]string "Signature verification failed"
// @Failure 404 {object} map[string]string "Unknown provider"
// @Router /webhooks/{provider} [post]
func (h *webhookHandler) receiveWebhook(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	provider := c.Param("provider")

	rawBody, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		logger.Warn("Failed to read webhook body", slog.String("provider", provider), slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unreadable request body"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), webhookBudget)
	defer cancel()

	err = h.webhookService.Process(ctx, provider, rawBody, c.Request.Header)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	case errors.Is(err, apperrors.ErrSignatureInvalid):
		// No detail: an attacker probing the endpoint learns nothing.
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
	case errors.Is(err, apperrors.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown provider"})
	default:
		// Routing failed after the event was recorded. Acknowledge anyway:
		// the dedup table makes the provider's redelivery a no-op, and the
		// daily schedule covers whatever the event would have triggered.
		logger.Error("Webhook processing failed after acknowledgement",
			slog.String("provider", provider),
			slog.String("error", err.Error()))
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
