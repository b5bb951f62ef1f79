package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	portssvc "github.com/moneywise/bank_sync/internal/core/ports/services"
	"github.com/moneywise/bank_sync/internal/dto"
	"github.com/moneywise/bank_sync/internal/middleware"
)

// accountHandler handles HTTP requests for synced accounts.
type accountHandler struct {
	linkService portssvc.LinkSvcFacade
}

// newAccountHandler creates a new accountHandler.
func newAccountHandler(ls portssvc.LinkSvcFacade) *accountHandler {
	return &accountHandler{linkService: ls}
}

// registerAccountRoutes registers routes for synced accounts.
func registerAccountRoutes(rg *gin.RouterGroup, linkService portssvc.LinkSvcFacade) {
	h := newAccountHandler(linkService)

	accounts := rg.Group("/accounts")
	{
		accounts.GET("", h.listAccounts)
	}
}

// listAccounts godoc
// @Summary List accounts
// @Description Returns the caller's active accounts across all connections
// @Tags accounts
// @Produce json
// @Success 200 {array} dto.AccountResponse
// @Failure 401 {object} map[string]string "Unauthorized"
// @Security BearerAuth
// @Router /accounts [get]
func (h *accountHandler) listAccounts(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	accounts, err := h.linkService.ListAccounts(c.Request.Context(), userID)
	if err != nil {
		logger.Error("Failed to list accounts", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list accounts"})
		return
	}

	c.JSON(http.StatusOK, dto.ToAccountResponses(accounts))
}
