package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/moneywise/bank_sync/internal/apperrors"
	portssvc "github.com/moneywise/bank_sync/internal/core/ports/services"
	"github.com/moneywise/bank_sync/internal/dto"
	"github.com/moneywise/bank_sync/internal/middleware"
)

// linkHandler handles HTTP requests for the institution link flow.
type linkHandler struct {
	linkService portssvc.LinkSvcFacade
}

// newLinkHandler creates a new linkHandler.
func newLinkHandler(ls portssvc.LinkSvcFacade) *linkHandler {
	return &linkHandler{linkService: ls}
}

// registerLinkRoutes registers routes for the link flow.
func registerLinkRoutes(rg *gin.RouterGroup, linkService portssvc.LinkSvcFacade) {
	h := newLinkHandler(linkService)

	link := rg.Group("/link")
	{
		link.POST("/sessions", h.createLinkSession)
		link.POST("/complete", h.completeLink)
	}
}

// createLinkSession godoc
// @Summary Create a link session
// @Description Requests a time-boxed session token the client uses to authenticate with an institution
// @Tags link
// @Accept json
// @Produce json
// @Param request body dto.CreateLinkSessionRequest true "Provider selection"
// @Success 201 {object} dto.LinkSessionResponse
// @Failure 400 {object} map[string]string "Invalid input"
// @Failure 404 {object} map[string]string "Unknown provider"
// @Failure 502 {object} map[string]string "Provider unavailable"
// @Security BearerAuth
// @Router /link/sessions [post]
func (h *linkHandler) createLinkSession(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	var req dto.CreateLinkSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Failed to bind JSON for CreateLinkSession", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}

	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	session, err := h.linkService.CreateLinkSession(c.Request.Context(), userID, req.Provider)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Unknown provider"})
			return
		}
		logger.Error("Failed to create link session", slog.String("error", err.Error()))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Provider unavailable"})
		return
	}

	c.JSON(http.StatusCreated, dto.ToLinkSessionResponse(session))
}

// completeLink godoc
// @Summary Complete an institution link
// @Description Exchanges the ephemeral client token for a long-lived connection and queues the initial import. Retrying with the same token returns the same connection.
// @Tags link
// @Accept json
// @Produce json
// @Param request body dto.CompleteLinkRequest true "Exchange details"
// @Success 201 {object} dto.ConnectionResponse
// @Failure 400 {object} map[string]string "Invalid input"
// @Failure 404 {object} map[string]string "Unknown provider"
// @Failure 502 {object} map[string]string "Provider unavailable"
// @Security BearerAuth
// @Router /link/complete [post]
func (h *linkHandler) completeLink(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	var req dto.CompleteLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Failed to bind JSON for CompleteLink", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}

	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	connection, err := h.linkService.CompleteLink(c.Request.Context(), userID, req)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Unknown provider"})
		case errors.Is(err, apperrors.ErrValidation):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			logger.Error("Failed to complete link", slog.String("error", err.Error()))
			c.JSON(http.StatusBadGateway, gin.H{"error": "Credential exchange failed"})
		}
		return
	}

	c.JSON(http.StatusCreated, dto.ToConnectionResponse(connection))
}
