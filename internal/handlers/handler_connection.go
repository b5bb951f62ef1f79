package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/moneywise/bank_sync/internal/apperrors"
	portssvc "github.com/moneywise/bank_sync/internal/core/ports/services"
	"github.com/moneywise/bank_sync/internal/dto"
	"github.com/moneywise/bank_sync/internal/middleware"
)

// connectionHandler handles HTTP requests for connection management.
type connectionHandler struct {
	linkService portssvc.LinkSvcFacade
	syncService portssvc.SyncOrchestratorSvc
}

// newConnectionHandler creates a new connectionHandler.
func newConnectionHandler(ls portssvc.LinkSvcFacade, ss portssvc.SyncOrchestratorSvc) *connectionHandler {
	return &connectionHandler{linkService: ls, syncService: ss}
}

// registerConnectionRoutes registers routes for connection management.
func registerConnectionRoutes(rg *gin.RouterGroup, linkService portssvc.LinkSvcFacade, syncService portssvc.SyncOrchestratorSvc) {
	h := newConnectionHandler(linkService, syncService)

	connections := rg.Group("/connections")
	{
		connections.GET("", h.listConnections)
		connections.POST("/:connectionID/refresh", h.refreshConnection)
		connections.DELETE("/:connectionID", h.disconnect)
	}
}

// listConnections godoc
// @Summary List connections
// @Description Returns the caller's non-revoked connections with sync status
// @Tags connections
// @Produce json
// @Success 200 {array} dto.ConnectionResponse
// @Failure 401 {object} map[string]string "Unauthorized"
// @Security BearerAuth
// @Router /connections [get]
func (h *connectionHandler) listConnections(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	connections, err := h.linkService.ListConnections(c.Request.Context(), userID)
	if err != nil {
		logger.Error("Failed to list connections", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list connections"})
		return
	}

	c.JSON(http.StatusOK, dto.ToConnectionResponses(connections))
}

// refreshConnection godoc
// @Summary Trigger a manual refresh
// @Description Runs an on-demand sync for the connection, counted against the caller's quota
// @Tags connections
// @Produce json
// @Param connectionID path string true "Connection ID"
// @Success 200 {object} map[string]string "Refresh completed"
// @Failure 400 {object} map[string]string "Connection not active"
// @Failure 404 {object} map[string]string "Connection not found"
// @Failure 409 {object} map[string]string "Sync already in progress or re-auth required"
// @Failure 429 {object} map[string]string "Quota exhausted"
// @Security BearerAuth
// @Router /connections/{connectionID}/refresh [post]
func (h *connectionHandler) refreshConnection(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	connectionID := c.Param("connectionID")

	err := h.syncService.RunManualRefresh(c.Request.Context(), connectionID, userID)
	if err == nil {
		c.JSON(http.StatusOK, gin.H{"status": "refreshed"})
		return
	}

	var quotaErr *apperrors.QuotaDeniedError
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Connection not found"})
	case errors.Is(err, apperrors.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, apperrors.ErrSyncAlreadyInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": "A sync is already in progress for this connection"})
	case errors.As(err, &quotaErr):
		c.Header("Retry-After", strconv.Itoa(int(quotaErr.RetryAfter.Seconds())))
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Sync quota exhausted"})
	case errors.Is(err, apperrors.ErrReauthRequired):
		c.JSON(http.StatusConflict, gin.H{"error": "Connection requires re-authentication"})
	default:
		logger.Error("Manual refresh failed", slog.String("connection_id", connectionID), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Refresh failed"})
	}
}

// disconnect godoc
// @Summary Disconnect a connection
// @Description Soft disconnect revokes the link and keeps data; hard disconnect deletes the connection and is refused while transactions still reference it
// @Tags connections
// @Produce json
// @Param connectionID path string true "Connection ID"
// @Param mode query string false "soft (default) or hard"
// @Success 204 "Disconnected"
// @Failure 400 {object} map[string]string "Invalid mode"
// @Failure 404 {object} map[string]string "Connection not found"
// @Failure 409 {object} map[string]string "Transactions still reference the connection"
// @Security BearerAuth
// @Router /connections/{connectionID} [delete]
func (h *connectionHandler) disconnect(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	connectionID := c.Param("connectionID")
	mode := dto.DisconnectMode(c.DefaultQuery("mode", string(dto.DisconnectSoft)))

	err := h.linkService.Disconnect(c.Request.Context(), connectionID, mode, userID)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Connection not found"})
		case errors.Is(err, apperrors.ErrValidation):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, apperrors.ErrHasDependentRecords):
			c.JSON(http.StatusConflict, gin.H{"error": "Transactions still reference this connection; use mode=soft"})
		default:
			logger.Error("Disconnect failed", slog.String("connection_id", connectionID), slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Disconnect failed"})
		}
		return
	}

	c.Status(http.StatusNoContent)
}
