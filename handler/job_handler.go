package handler

import (
	"errors"

	"github.com/adelegard/TouchrServer/job"
	"github.com/adelegard/TouchrServer/utils"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type JobHandler struct {
	runner *job.Runner
}

func NewJobHandler(runner *job.Runner) *JobHandler {
	return &JobHandler{runner: runner}
}

// RunUnusedTouchTypes triggers the cleanup immediately, ignoring the schedule setting.
// POST /api/admin/jobs/unused-touch-types
func (h *JobHandler) RunUnusedTouchTypes(c *gin.Context) {
	run, err := h.runner.RemoveUnusedTouchTypes(c.Request.Context(), false)
	if err != nil && run == nil {
		utils.Log.WithError(err).Error("failed to start job")
		utils.InternalServerError(c, err.Error())
		return
	}
	utils.SuccessResponse(c, run)
}

// LatestUnusedTouchTypesRun
// GET /api/admin/jobs/unused-touch-types
func (h *JobHandler) LatestUnusedTouchTypesRun(c *gin.Context) {
	run, err := h.runner.LatestRun(c.Request.Context(), job.UnusedTouchTypesJob)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.NotFound(c, "job has never run")
			return
		}
		utils.InternalServerError(c, err.Error())
		return
	}
	utils.SuccessResponse(c, run)
}
