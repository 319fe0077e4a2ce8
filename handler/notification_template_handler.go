package handler

import (
	"github.com/adelegard/TouchrServer/service"
	"github.com/adelegard/TouchrServer/utils"

	"github.com/gin-gonic/gin"
)

type NotificationTemplateHandler struct {
	templateSvc *service.NotificationTemplateService
}

func NewNotificationTemplateHandler(templateSvc *service.NotificationTemplateService) *NotificationTemplateHandler {
	return &NotificationTemplateHandler{
		templateSvc: templateSvc,
	}
}

// ListTemplates
// GET /api/admin/templates
func (h *NotificationTemplateHandler) ListTemplates(c *gin.Context) {
	templates, err := h.templateSvc.ListTemplates(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"templates": templates})
}

// UpdateTemplate
// PUT /api/admin/templates/:id
func (h *NotificationTemplateHandler) UpdateTemplate(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req service.TemplateUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, "invalid request body")
		return
	}

	if err := h.templateSvc.UpdateTemplate(c.Request.Context(), id, req); err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessWithMessage(c, "template updated", nil)
}

// InitDefaultTemplates restores any missing default template.
// POST /api/admin/templates/init
func (h *NotificationTemplateHandler) InitDefaultTemplates(c *gin.Context) {
	if err := h.templateSvc.InitDefaultTemplates(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessWithMessage(c, "default templates initialized", nil)
}
