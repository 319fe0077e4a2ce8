package handler

import (
	"github.com/adelegard/TouchrServer/service"
	"github.com/adelegard/TouchrServer/utils"

	"github.com/gin-gonic/gin"
)

type TouchHandler struct {
	touchSvc *service.TouchService
	feedSvc  *service.FeedService
}

func NewTouchHandler(touchSvc *service.TouchService, feedSvc *service.FeedService) *TouchHandler {
	return &TouchHandler{touchSvc: touchSvc, feedSvc: feedSvc}
}

// Touch sends one touch to a friend.
// POST /api/v1/touches
func (h *TouchHandler) Touch(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req service.TouchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, "invalid request body")
		return
	}

	touch, err := h.touchSvc.Touch(c.Request.Context(), userID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, touch)
}

// TouchMany sends the same touch to several users.
// POST /api/v1/touches/batch
func (h *TouchHandler) TouchMany(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req service.BatchTouchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, "invalid request body")
		return
	}

	touches, err := h.touchSvc.TouchMany(c.Request.Context(), userID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"results": touches})
}

// HideTouch
// PUT /api/v1/touches/:id/hide
func (h *TouchHandler) HideTouch(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	touchID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req struct {
		HideForUserTo   *bool `json:"hideForUserTo"`
		HideForUserFrom *bool `json:"hideForUserFrom"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, "invalid request body")
		return
	}

	touch, err := h.touchSvc.HideTouch(c.Request.Context(), userID, touchID, req.HideForUserTo, req.HideForUserFrom)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, touch)
}

// RemoveTouchesWithPeer clears the touch history with one user.
// DELETE /api/v1/touches/peer/:id
func (h *TouchHandler) RemoveTouchesWithPeer(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	peerID, ok := pathID(c, "id")
	if !ok {
		return
	}

	removed, err := h.touchSvc.RemoveTouchesWithPeer(c.Request.Context(), userID, peerID)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"removed": removed})
}

// Inbox
// GET /api/v1/touches/inbox?page=N
func (h *TouchHandler) Inbox(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	feed, err := h.feedSvc.Inbox(c.Request.Context(), userID, page(c))
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, feed)
}

// Sent
// GET /api/v1/touches/sent?page=N
func (h *TouchHandler) Sent(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	feed, err := h.feedSvc.Sent(c.Request.Context(), userID, page(c))
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, feed)
}
