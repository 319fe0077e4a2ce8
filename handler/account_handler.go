package handler

import (
	"github.com/adelegard/TouchrServer/service"
	"github.com/adelegard/TouchrServer/utils"

	"github.com/gin-gonic/gin"
)

type AccountHandler struct {
	accountSvc *service.AccountService
}

func NewAccountHandler(accountSvc *service.AccountService) *AccountHandler {
	return &AccountHandler{accountSvc: accountSvc}
}

// Signup
// POST /api/v1/auth/signup
func (h *AccountHandler) Signup(c *gin.Context) {
	var req service.Credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, "username and password are required")
		return
	}

	session, err := h.accountSvc.Signup(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, session)
}

// Login
// POST /api/v1/auth/login
func (h *AccountHandler) Login(c *gin.Context) {
	var req service.Credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, "username and password are required")
		return
	}

	session, err := h.accountSvc.Login(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, session)
}

// GiveRole grants a role to another user. Admin only.
// POST /api/admin/roles
func (h *AccountHandler) GiveRole(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Role     string `json:"role" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, "username and role are required")
		return
	}

	if err := h.accountSvc.GiveRole(c.Request.Context(), req.Username, req.Role); err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessWithMessage(c, "role granted", nil)
}

// HasRole
// GET /api/v1/me/roles/:role
func (h *AccountHandler) HasRole(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	has, err := h.accountSvc.HasRole(c.Request.Context(), userID, c.Param("role"))
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"role": c.Param("role"), "has_role": has})
}

// Me
// GET /api/v1/me
func (h *AccountHandler) Me(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	user, err := h.accountSvc.GetUser(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, user)
}

// DeleteAccount
// DELETE /api/v1/me
func (h *AccountHandler) DeleteAccount(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	if err := h.accountSvc.DeleteAccount(c.Request.Context(), userID); err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessWithMessage(c, "account deleted", nil)
}
