package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/SscSPs/allowance_wallet/internal/core/domain"
	portssvc "github.com/SscSPs/allowance_wallet/internal/core/ports/services"
	"github.com/SscSPs/allowance_wallet/internal/dto"
	"github.com/SscSPs/allowance_wallet/internal/middleware"
	"github.com/SscSPs/allowance_wallet/internal/platform/clock"
	"github.com/gin-gonic/gin"
)

// limitWindowHandler handles HTTP requests for spending limits.
type limitWindowHandler struct {
	policyService portssvc.LimitPolicySvcFacade
	ledgerService portssvc.LedgerSvcFacade
	clock         clock.Clock
}

func newLimitWindowHandler(ps portssvc.LimitPolicySvcFacade, ls portssvc.LedgerSvcFacade, clk clock.Clock) *limitWindowHandler {
	return &limitWindowHandler{policyService: ps, ledgerService: ls, clock: clk}
}

// registerLimitWindowRoutes registers window routes under a child and by window id.
func registerLimitWindowRoutes(rg *gin.RouterGroup, ps portssvc.LimitPolicySvcFacade, ls portssvc.LedgerSvcFacade, clk clock.Clock) {
	h := newLimitWindowHandler(ps, ls, clk)

	childWindows := rg.Group("/children/:childID/windows")
	{
		childWindows.POST("", h.createWindow)
		childWindows.GET("", h.listWindows)
		childWindows.GET("/applicable", h.applicableWindows)
	}

	windows := rg.Group("/windows/:windowID")
	{
		windows.GET("", h.getWindow)
		windows.PATCH("", h.updateWindow)
		windows.DELETE("", h.deleteWindow)
		windows.POST("/deactivate", h.deactivateWindow)
		windows.POST("/reconcile", h.reconcileWindow)
	}
}

// createWindow godoc
// @Summary Create a spending limit
// @Description Adds a daily, weekly, monthly or discretionary window to one of the caller's children.
// @Tags limits
// @Accept  json
// @Produce  json
// @Param   childID path string true "Child account ID"
// @Param   window body dto.CreateWindowRequest true "Window definition"
// @Success 201 {object} dto.WindowResponse
// @Failure 400 {object} ErrorResponse "Validation error or start after end"
// @Failure 403 {object} ErrorResponse "Not the child's parent"
// @Failure 409 {object} ErrorResponse "Overlaps an active window of the same kind"
// @Security BearerAuth
// @Router /children/{childID}/windows [post]
func (h *limitWindowHandler) createWindow(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req dto.CreateWindowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "request format", err)
		return
	}
	childID := c.Param("childID")

	window, err := h.policyService.CreateWindow(c.Request.Context(), actor, childID, req)
	if err != nil {
		respondError(c, err, "Failed to create limit window")
		return
	}

	logger.Info("Limit window created", slog.String("window_id", window.WindowID), slog.String("child_id", childID))
	c.JSON(http.StatusCreated, dto.ToWindowResponse(window))
}

// listWindows godoc
// @Summary List a child's limits
// @Tags limits
// @Produce  json
// @Param   childID path string true "Child account ID"
// @Success 200 {array} dto.WindowResponse
// @Failure 403 {object} ErrorResponse "Forbidden"
// @Security BearerAuth
// @Router /children/{childID}/windows [get]
func (h *limitWindowHandler) listWindows(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	windows, err := h.policyService.ListWindows(c.Request.Context(), actor, c.Param("childID"))
	if err != nil {
		respondError(c, err, "Failed to list limit windows")
		return
	}
	c.JSON(http.StatusOK, dto.ToWindowResponses(windows))
}

// applicableWindows godoc
// @Summary Preview the limits a payment would hit
// @Description Resolves the windows covering an instant (default now) for a category, with their remaining capacity.
// @Tags limits
// @Produce  json
// @Param   childID path string true "Child account ID"
// @Param   at query string false "RFC 3339 instant"
// @Param   category query string false "Payment category"
// @Success 200 {array} dto.WindowUsageResponse
// @Failure 403 {object} ErrorResponse "Forbidden"
// @Failure 404 {object} ErrorResponse "No window applies"
// @Security BearerAuth
// @Router /children/{childID}/windows/applicable [get]
func (h *limitWindowHandler) applicableWindows(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var params dto.ResolveWindowsParams
	if err := c.ShouldBindQuery(&params); err != nil {
		badRequest(c, "query parameters", err)
		return
	}
	at := h.clock.Now()
	if params.At != nil {
		at = params.At.UTC().Truncate(time.Microsecond)
	}

	usages, err := h.policyService.ResolveWindows(c.Request.Context(), actor, c.Param("childID"), at, params.Category)
	if err != nil {
		respondError(c, err, "Failed to resolve limit windows")
		return
	}
	c.JSON(http.StatusOK, dto.ToWindowUsageResponses(usages))
}

// getWindow godoc
// @Summary Get a limit window
// @Tags limits
// @Produce  json
// @Param   windowID path string true "Window ID"
// @Success 200 {object} dto.WindowResponse
// @Failure 403 {object} ErrorResponse "Forbidden"
// @Failure 404 {object} ErrorResponse "Window not found"
// @Security BearerAuth
// @Router /windows/{windowID} [get]
func (h *limitWindowHandler) getWindow(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	window, err := h.policyService.GetWindow(c.Request.Context(), actor, c.Param("windowID"))
	if err != nil {
		respondError(c, err, "Failed to retrieve limit window")
		return
	}
	c.JSON(http.StatusOK, dto.ToWindowResponse(window))
}

// updateWindow godoc
// @Summary Update a limit window
// @Description Changes ceiling, category, active flag or range. Consumption is never rewritten.
// @Tags limits
// @Accept  json
// @Produce  json
// @Param   windowID path string true "Window ID"
// @Param   window body dto.UpdateWindowRequest true "Fields to change"
// @Success 200 {object} dto.WindowResponse
// @Failure 400 {object} ErrorResponse "Validation error"
// @Failure 403 {object} ErrorResponse "Forbidden"
// @Failure 409 {object} ErrorResponse "Overlap or concurrent update"
// @Security BearerAuth
// @Router /windows/{windowID} [patch]
func (h *limitWindowHandler) updateWindow(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req dto.UpdateWindowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "request format", err)
		return
	}

	window, err := h.policyService.UpdateWindow(c.Request.Context(), actor, c.Param("windowID"), req)
	if err != nil {
		respondError(c, err, "Failed to update limit window")
		return
	}

	logger.Info("Limit window updated", slog.String("window_id", window.WindowID), slog.Int64("version", window.Version))
	c.JSON(http.StatusOK, dto.ToWindowResponse(window))
}

// deactivateWindow godoc
// @Summary Deactivate a limit window
// @Tags limits
// @Produce  json
// @Param   windowID path string true "Window ID"
// @Success 200 {object} dto.WindowResponse
// @Failure 403 {object} ErrorResponse "Forbidden"
// @Failure 404 {object} ErrorResponse "Window not found"
// @Security BearerAuth
// @Router /windows/{windowID}/deactivate [post]
func (h *limitWindowHandler) deactivateWindow(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	window, err := h.policyService.DeactivateWindow(c.Request.Context(), actor, c.Param("windowID"))
	if err != nil {
		respondError(c, err, "Failed to deactivate limit window")
		return
	}
	c.JSON(http.StatusOK, dto.ToWindowResponse(window))
}

// deleteWindow godoc
// @Summary Delete a limit window
// @Description Removes a window nothing was spent against; otherwise it is only deactivated.
// @Tags limits
// @Produce  json
// @Param   windowID path string true "Window ID"
// @Success 200 {object} dto.DeleteWindowResponse
// @Failure 403 {object} ErrorResponse "Forbidden"
// @Failure 404 {object} ErrorResponse "Window not found"
// @Security BearerAuth
// @Router /windows/{windowID} [delete]
func (h *limitWindowHandler) deleteWindow(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	windowID := c.Param("windowID")

	deleted, err := h.policyService.DeleteWindow(c.Request.Context(), actor, windowID)
	if err != nil {
		respondError(c, err, "Failed to delete limit window")
		return
	}
	c.JSON(http.StatusOK, dto.DeleteWindowResponse{WindowID: windowID, Deleted: deleted})
}

// reconcileWindow godoc
// @Summary Recompute a window's consumption
// @Description Rebuilds the current period's consumed amount from the ledger.
// @Tags limits
// @Produce  json
// @Param   windowID path string true "Window ID"
// @Success 200 {object} dto.WindowUsageResponse
// @Failure 403 {object} ErrorResponse "Forbidden"
// @Failure 404 {object} ErrorResponse "Window not found"
// @Security BearerAuth
// @Router /windows/{windowID}/reconcile [post]
func (h *limitWindowHandler) reconcileWindow(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	usage, err := h.ledgerService.Reconcile(c.Request.Context(), &actor, c.Param("windowID"), h.clock.Now())
	if err != nil {
		respondError(c, err, "Failed to reconcile limit window")
		return
	}

	logger.Info("Limit window reconciled", slog.String("window_id", usage.Window.WindowID), slog.String("consumed", usage.Consumed.String()))
	c.JSON(http.StatusOK, dto.ToWindowUsageResponses([]domain.WindowUsage{*usage})[0])
}
