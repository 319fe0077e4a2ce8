package handler

import (
	"github.com/adelegard/TouchrServer/middleware"
	"github.com/adelegard/TouchrServer/service"
	"github.com/adelegard/TouchrServer/utils"

	"github.com/gin-gonic/gin"
)

type TouchTypeHandler struct {
	typeSvc    *service.TouchTypeService
	accountSvc *service.AccountService
}

func NewTouchTypeHandler(typeSvc *service.TouchTypeService, accountSvc *service.AccountService) *TouchTypeHandler {
	return &TouchTypeHandler{typeSvc: typeSvc, accountSvc: accountSvc}
}

// ListVisible
// GET /api/v1/touch-types
func (h *TouchTypeHandler) ListVisible(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	types, err := h.typeSvc.ListVisible(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"results": types})
}

// ListCreated
// GET /api/v1/touch-types/created
func (h *TouchTypeHandler) ListCreated(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	types, err := h.typeSvc.ListCreated(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"results": types})
}

// ListNewest
// GET /api/v1/touch-types/newest?page=N
func (h *TouchTypeHandler) ListNewest(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	types, err := h.typeSvc.ListNewest(c.Request.Context(), userID, page(c))
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"results": types})
}

// ListPopular
// GET /api/v1/touch-types/popular?page=N
func (h *TouchTypeHandler) ListPopular(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	types, err := h.typeSvc.ListPopular(c.Request.Context(), userID, page(c))
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"results": types})
}

// Create
// POST /api/v1/touch-types
func (h *TouchTypeHandler) Create(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req service.TouchTypeInput
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, "invalid request body")
		return
	}

	tt, err := h.typeSvc.Create(c.Request.Context(), userID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, tt)
}

// Update
// PUT /api/v1/touch-types/:id
func (h *TouchTypeHandler) Update(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req service.TouchTypeInput
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, "invalid request body")
		return
	}

	tt, err := h.typeSvc.Update(c.Request.Context(), userID, id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, tt)
}

// Delete removes a touch type the caller created. Admins may delete any.
// DELETE /api/v1/touch-types/:id
func (h *TouchTypeHandler) Delete(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	isAdmin := middleware.HasRole(c, service.RoleAdmin)
	if !isAdmin {
		var err error
		isAdmin, err = h.accountSvc.HasRole(c.Request.Context(), userID, service.RoleAdmin)
		if err != nil {
			respondError(c, err)
			return
		}
	}

	if err := h.typeSvc.Delete(c.Request.Context(), userID, id, isAdmin); err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessWithMessage(c, "touch type deleted", nil)
}
