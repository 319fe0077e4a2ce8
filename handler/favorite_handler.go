package handler

import (
	"github.com/adelegard/TouchrServer/service"
	"github.com/adelegard/TouchrServer/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type FavoriteHandler struct {
	favSvc *service.FavoriteService
}

func NewFavoriteHandler(favSvc *service.FavoriteService) *FavoriteHandler {
	return &FavoriteHandler{favSvc: favSvc}
}

// List
// GET /api/v1/favorites
func (h *FavoriteHandler) List(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	favorites, err := h.favSvc.List(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"results": favorites})
}

// Add appends a touch type to the caller's favorites.
// POST /api/v1/favorites/:id
func (h *FavoriteHandler) Add(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	touchTypeID, ok := pathID(c, "id")
	if !ok {
		return
	}

	fav, err := h.favSvc.Add(c.Request.Context(), userID, touchTypeID)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, fav)
}

// Remove
// DELETE /api/v1/favorites/:id
func (h *FavoriteHandler) Remove(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	touchTypeID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.favSvc.Remove(c.Request.Context(), userID, touchTypeID); err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessWithMessage(c, "favorite removed", nil)
}

// Set replaces the whole list in request order.
// PUT /api/v1/favorites
func (h *FavoriteHandler) Set(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req struct {
		TouchTypeIDs []string `json:"touchTypeIds" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, "touchTypeIds is required")
		return
	}

	ids := make([]uuid.UUID, 0, len(req.TouchTypeIDs))
	for _, raw := range req.TouchTypeIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			utils.BadRequest(c, "invalid touch type id: "+raw)
			return
		}
		ids = append(ids, id)
	}

	favorites, err := h.favSvc.Set(c.Request.Context(), userID, ids)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"results": favorites})
}

// RemoveAll
// DELETE /api/v1/favorites
func (h *FavoriteHandler) RemoveAll(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	if err := h.favSvc.RemoveAll(c.Request.Context(), userID); err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessWithMessage(c, "favorites cleared", nil)
}
