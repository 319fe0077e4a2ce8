package job

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/adelegard/TouchrServer/model"
	"github.com/adelegard/TouchrServer/service"
	"github.com/adelegard/TouchrServer/utils"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// UnusedTouchTypesJob is the name stored on JobRun rows of the GC job.
const UnusedTouchTypesJob = "remove_unused_touch_types"

// ErrJobDisabled is returned by scheduled runs while the GC setting is off.
var ErrJobDisabled = errors.New("job disabled by system setting")

// Runner executes background jobs and records each run.
type Runner struct {
	db       *gorm.DB
	types    *service.TouchTypeService
	settings *service.SystemSettingsService
}

func NewRunner(db *gorm.DB, types *service.TouchTypeService, settings *service.SystemSettingsService) *Runner {
	return &Runner{db: db, types: types, settings: settings}
}

// RemoveUnusedTouchTypes deletes every touch type no user has favorited,
// recording progress on a JobRun. Scheduled runs respect the
// enable_unused_touch_type_gc setting; manual runs always execute.
func (r *Runner) RemoveUnusedTouchTypes(ctx context.Context, scheduled bool) (*model.JobRun, error) {
	if scheduled && r.settings != nil && !r.settings.IsFeatureEnabled(service.SettingUnusedTouchTypeGC) {
		return nil, ErrJobDisabled
	}

	run := &model.JobRun{
		Name:      UnusedTouchTypesJob,
		Status:    model.JobRunning,
		StartedAt: time.Now(),
	}
	if err := r.db.WithContext(ctx).Create(run).Error; err != nil {
		return nil, fmt.Errorf("failed to record job run: %w", err)
	}

	log := utils.Log.WithFields(logrus.Fields{"job": UnusedTouchTypesJob, "run_id": run.ID})
	log.Info("job started")

	removed, err := r.types.RemoveUnused(ctx, func(done, total int) {
		progress := fmt.Sprintf("%d/%d", done, total)
		if err := r.db.WithContext(ctx).Model(run).Update("progress", progress).Error; err != nil {
			log.WithError(err).Warn("failed to record job progress")
		}
		run.Progress = progress
	})

	finished := time.Now()
	run.FinishedAt = &finished
	if err != nil {
		run.Status = model.JobFailed
		run.Message = fmt.Sprintf("removed %d touch types before failing: %v", removed, err)
		log.WithError(err).Error("job failed")
	} else {
		run.Status = model.JobSucceeded
		run.Message = fmt.Sprintf("removed %d touch types", removed)
		log.WithField("removed", removed).Info("job finished")
	}

	// ctx may be cancelled already; the final status must still land.
	if saveErr := r.db.WithContext(context.WithoutCancel(ctx)).Save(run).Error; saveErr != nil {
		log.WithError(saveErr).Error("failed to record job result")
	}
	jobRuns.WithLabelValues(UnusedTouchTypesJob, run.Status).Inc()

	return run, err
}

// LatestRun returns the most recent run of the named job.
func (r *Runner) LatestRun(ctx context.Context, name string) (*model.JobRun, error) {
	var run model.JobRun
	err := r.db.WithContext(ctx).Where("name = ?", name).Order("started_at DESC").First(&run).Error
	if err != nil {
		return nil, err
	}
	return &run, nil
}
