package handler

import (
	"github.com/adelegard/TouchrServer/model"
	"github.com/adelegard/TouchrServer/service"
	"github.com/adelegard/TouchrServer/utils"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

type NotificationHandler struct {
	pushSvc *service.PushService
}

func NewNotificationHandler(pushSvc *service.PushService) *NotificationHandler {
	return &NotificationHandler{pushSvc: pushSvc}
}

// GetNotifications lists the push history of the caller.
// GET /api/v1/notifications?page=N&unread_only=true
func (h *NotificationHandler) GetNotifications(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	unreadOnly := c.DefaultQuery("unread_only", "false") == "true"
	pageNum := page(c)

	var (
		notifications []model.Notification
		unread        int64
	)
	g, ctx := errgroup.WithContext(c.Request.Context())
	g.Go(func() error {
		var err error
		notifications, err = h.pushSvc.GetNotifications(ctx, userID, pageNum, unreadOnly)
		return err
	})
	g.Go(func() error {
		var err error
		unread, err = h.pushSvc.UnreadCount(ctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		respondError(c, err)
		return
	}

	if notifications == nil {
		notifications = []model.Notification{}
	}
	utils.SuccessResponse(c, gin.H{
		"notifications": notifications,
		"unread_count":  unread,
	})
}

// MarkAllAsRead
// PUT /api/v1/notifications/read-all
func (h *NotificationHandler) MarkAllAsRead(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	if err := h.pushSvc.MarkAllAsRead(c.Request.Context(), userID); err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessWithMessage(c, "all notifications marked as read", nil)
}

// DeleteNotification
// DELETE /api/v1/notifications/:id
func (h *NotificationHandler) DeleteNotification(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	notificationID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.pushSvc.DeleteNotification(c.Request.Context(), userID, notificationID); err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessWithMessage(c, "notification deleted", nil)
}
