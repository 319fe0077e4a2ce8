package handler

import (
	"github.com/adelegard/TouchrServer/service"
	"github.com/adelegard/TouchrServer/utils"

	"github.com/gin-gonic/gin"
)

type FriendHandler struct {
	friendSvc *service.FriendshipService
	feedSvc   *service.FeedService
}

func NewFriendHandler(friendSvc *service.FriendshipService, feedSvc *service.FeedService) *FriendHandler {
	return &FriendHandler{friendSvc: friendSvc, feedSvc: feedSvc}
}

// GetFriends
// GET /api/v1/friends?page=N
func (h *FriendHandler) GetFriends(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	result, err := h.feedSvc.Friends(c.Request.Context(), userID, page(c))
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, result)
}

// GetFriendsWithTouches
// GET /api/v1/friends/with-touches
func (h *FriendHandler) GetFriendsWithTouches(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	friends, err := h.feedSvc.FriendsWithTouches(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"results": friends})
}

// GetFriendDetail
// GET /api/v1/friends/:id
func (h *FriendHandler) GetFriendDetail(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	friendID, ok := pathID(c, "id")
	if !ok {
		return
	}

	detail, err := h.feedSvc.FriendDetail(c.Request.Context(), userID, friendID)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, detail)
}

// SendRequest
// POST /api/v1/friends/:id/request
func (h *FriendHandler) SendRequest(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	targetID, ok := pathID(c, "id")
	if !ok {
		return
	}

	req, err := h.friendSvc.SendRequest(c.Request.Context(), userID, targetID)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, req)
}

// RemoveRequest withdraws a request the caller sent.
// DELETE /api/v1/friends/:id/request
func (h *FriendHandler) RemoveRequest(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	targetID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.friendSvc.RemoveRequest(c.Request.Context(), userID, targetID); err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessWithMessage(c, "friend request removed", nil)
}

// AcceptRequest
// POST /api/v1/friends/:id/accept
func (h *FriendHandler) AcceptRequest(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	otherID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.friendSvc.AcceptRequest(c.Request.Context(), userID, otherID); err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessWithMessage(c, "friend request accepted", nil)
}

// DenyRequest
// POST /api/v1/friends/:id/deny
func (h *FriendHandler) DenyRequest(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	otherID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.friendSvc.DenyRequest(c.Request.Context(), userID, otherID); err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessWithMessage(c, "friend request denied", nil)
}

// PendingRequests lists requests waiting on the caller.
// GET /api/v1/friends/requests
func (h *FriendHandler) PendingRequests(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	requests, err := h.friendSvc.PendingRequests(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"results": requests})
}
