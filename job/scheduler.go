package job

import (
	"context"
	"errors"
	"time"

	"github.com/adelegard/TouchrServer/utils"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/robfig/cron/v3"
)

var jobRuns = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "touchr",
		Subsystem: "jobs",
		Name:      "runs_total",
		Help:      "Background job runs by outcome.",
	},
	[]string{"job", "status"},
)

// Scheduler runs registered jobs on cron schedules.
type Scheduler struct {
	cron    *cron.Cron
	timeout time.Duration
}

func NewScheduler(timeout time.Duration) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		timeout: timeout,
	}
}

// Schedule registers fn under spec, e.g. "@daily" or "0 3 * * *".
func (s *Scheduler) Schedule(spec, name string, fn func(ctx context.Context) error) error {
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			if errors.Is(err, ErrJobDisabled) {
				utils.Log.WithField("job", name).Debug("scheduled job skipped")
				return
			}
			utils.Log.WithField("job", name).WithError(err).Error("scheduled job failed")
		}
	})
	return err
}

// ScheduleUnusedTouchTypes wires the GC job into the scheduler.
func (s *Scheduler) ScheduleUnusedTouchTypes(spec string, runner *Runner) error {
	return s.Schedule(spec, UnusedTouchTypesJob, func(ctx context.Context) error {
		_, err := runner.RemoveUnusedTouchTypes(ctx, true)
		return err
	})
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop prevents new runs and waits for running ones.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
