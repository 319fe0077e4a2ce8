package handler

import (
	"github.com/adelegard/TouchrServer/service"
	"github.com/adelegard/TouchrServer/utils"

	"github.com/gin-gonic/gin"
)

type SystemSettingsHandler struct {
	sysSvc *service.SystemSettingsService
}

func NewSystemSettingsHandler(sysSvc *service.SystemSettingsService) *SystemSettingsHandler {
	return &SystemSettingsHandler{
		sysSvc: sysSvc,
	}
}

// GetSystemSettings
// GET /api/admin/settings
func (h *SystemSettingsHandler) GetSystemSettings(c *gin.Context) {
	utils.SuccessResponse(c, gin.H{
		"settings": h.sysSvc.GetAllSettings(),
	})
}

// UpdateSystemSetting
// PUT /api/admin/settings/:key
func (h *SystemSettingsHandler) UpdateSystemSetting(c *gin.Context) {
	key := c.Param("key")

	var req struct {
		Value string `json:"value" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, "invalid request body")
		return
	}

	if err := h.sysSvc.UpdateSetting(c.Request.Context(), key, req.Value); err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": "setting updated successfully",
		"key":     key,
		"value":   req.Value,
	})
}

// ReloadSystemSettings rereads the cache from the database.
// POST /api/admin/settings/reload
func (h *SystemSettingsHandler) ReloadSystemSettings(c *gin.Context) {
	if err := h.sysSvc.LoadSettings(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": "settings reloaded successfully",
	})
}
