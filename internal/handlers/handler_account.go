package handlers

import (
	"log/slog"
	"net/http"

	"github.com/SscSPs/allowance_wallet/internal/apperrors"
	portssvc "github.com/SscSPs/allowance_wallet/internal/core/ports/services"
	"github.com/SscSPs/allowance_wallet/internal/dto"
	"github.com/SscSPs/allowance_wallet/internal/middleware"
	"github.com/gin-gonic/gin"
)

// accountHandler handles HTTP requests related to accounts.
type accountHandler struct {
	accountService portssvc.AccountSvcFacade
}

// newAccountHandler creates a new accountHandler.
func newAccountHandler(as portssvc.AccountSvcFacade) *accountHandler {
	return &accountHandler{
		accountService: as,
	}
}

// registerPublicAccountRoutes registers the routes that need no token.
func registerPublicAccountRoutes(rg gin.IRoutes, accountService portssvc.AccountSvcFacade, mw ...gin.HandlerFunc) {
	h := newAccountHandler(accountService)
	rg.POST("/register", append(mw, h.registerAccount)...)
}

// registerAccountRoutes registers routes related to accounts and children.
func registerAccountRoutes(rg *gin.RouterGroup, accountService portssvc.AccountSvcFacade) {
	h := newAccountHandler(accountService)

	accounts := rg.Group("/accounts")
	{
		accounts.GET("/me", h.getMe)
		accounts.GET("/:accountID", h.getAccount)
		accounts.DELETE("/:accountID", h.deactivateAccount)
	}

	children := rg.Group("/children")
	{
		children.POST("", h.createChild)
		children.GET("", h.listChildren)
	}
}

// registerAccount godoc
// @Summary Register a parent or merchant
// @Description Creates a parent or merchant account. Children are created by their parent.
// @Tags accounts
// @Accept  json
// @Produce  json
// @Param   account body dto.RegisterAccountRequest true "Account details"
// @Success 201 {object} dto.AccountResponse
// @Failure 400 {object} ErrorResponse "Invalid input format or validation error"
// @Failure 429 {object} ErrorResponse "Too many requests"
// @Failure 500 {object} ErrorResponse "Failed to register account"
// @Router /register [post]
func (h *accountHandler) registerAccount(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	var req dto.RegisterAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "request format", err)
		return
	}

	logger.Info("Received request to register account", slog.String("role", string(req.Role)))

	account, err := h.accountService.RegisterAccount(c.Request.Context(), req)
	if err != nil {
		respondError(c, err, "Failed to register account")
		return
	}

	logger.Info("Account registered successfully", slog.String("account_id", account.AccountID))
	c.JSON(http.StatusCreated, dto.ToAccountResponse(account))
}

// getMe godoc
// @Summary Get the calling account
// @Tags accounts
// @Produce  json
// @Success 200 {object} dto.AccountResponse
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Failure 404 {object} ErrorResponse "Account not found"
// @Security BearerAuth
// @Router /accounts/me [get]
func (h *accountHandler) getMe(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	account, err := h.accountService.GetAccount(c.Request.Context(), actor.AccountID)
	if err != nil {
		respondError(c, err, "Failed to retrieve account")
		return
	}
	c.JSON(http.StatusOK, dto.ToAccountResponse(account))
}

// getAccount godoc
// @Summary Get an account by ID
// @Description Retrieves an account. Callers may read themselves and parents may read their children.
// @Tags accounts
// @Produce  json
// @Param   accountID path string true "Account ID"
// @Success 200 {object} dto.AccountResponse
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Failure 403 {object} ErrorResponse "Forbidden"
// @Failure 404 {object} ErrorResponse "Account not found"
// @Security BearerAuth
// @Router /accounts/{accountID} [get]
func (h *accountHandler) getAccount(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	accountID := c.Param("accountID")

	account, err := h.accountService.GetAccount(c.Request.Context(), accountID)
	if err != nil {
		respondError(c, err, "Failed to retrieve account")
		return
	}

	if account.AccountID != actor.AccountID {
		caller, err := h.accountService.GetAccount(c.Request.Context(), actor.AccountID)
		if err != nil {
			respondError(c, err, "Failed to retrieve account")
			return
		}
		if !caller.IsParentOf(*account) {
			respondError(c, apperrors.Denied(apperrors.ReasonNotPermitted, "account %s is not visible to %s", accountID, actor.AccountID), "Failed to retrieve account")
			return
		}
	}

	c.JSON(http.StatusOK, dto.ToAccountResponse(account))
}

// deactivateAccount godoc
// @Summary Deactivate an account
// @Description Soft-deactivates an account. Deactivating a parent also deactivates its children.
// @Tags accounts
// @Param   accountID path string true "Account ID"
// @Success 204 "No Content"
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Failure 403 {object} ErrorResponse "Forbidden"
// @Failure 404 {object} ErrorResponse "Account not found"
// @Security BearerAuth
// @Router /accounts/{accountID} [delete]
func (h *accountHandler) deactivateAccount(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	accountID := c.Param("accountID")

	if err := h.accountService.DeactivateAccount(c.Request.Context(), actor, accountID); err != nil {
		respondError(c, err, "Failed to deactivate account")
		return
	}

	logger.Info("Account deactivated", slog.String("target_account_id", accountID))
	c.Status(http.StatusNoContent)
}

// createChild godoc
// @Summary Create a child account
// @Description Creates a child linked to the calling parent.
// @Tags accounts
// @Accept  json
// @Produce  json
// @Param   child body dto.CreateChildRequest true "Child details"
// @Success 201 {object} dto.AccountResponse
// @Failure 400 {object} ErrorResponse "Invalid input format or validation error"
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Failure 403 {object} ErrorResponse "Only active parents can create children"
// @Security BearerAuth
// @Router /children [post]
func (h *accountHandler) createChild(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req dto.CreateChildRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "request format", err)
		return
	}

	child, err := h.accountService.CreateChild(c.Request.Context(), actor, req)
	if err != nil {
		respondError(c, err, "Failed to create child")
		return
	}

	logger.Info("Child created successfully", slog.String("child_id", child.AccountID))
	c.JSON(http.StatusCreated, dto.ToAccountResponse(child))
}

// listChildren godoc
// @Summary List the caller's children
// @Tags accounts
// @Produce  json
// @Success 200 {array} dto.AccountResponse
// @Failure 400 {object} ErrorResponse "Caller is not a parent"
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Security BearerAuth
// @Router /children [get]
func (h *accountHandler) listChildren(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	children, err := h.accountService.ChildrenOf(c.Request.Context(), actor.AccountID)
	if err != nil {
		respondError(c, err, "Failed to list children")
		return
	}
	c.JSON(http.StatusOK, dto.ToListAccountResponse(children))
}
