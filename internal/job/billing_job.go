package job

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// BillingRunner is the part of the card service the billing job drives.
type BillingRunner interface {
	MarkOverdue(ctx context.Context, asOf time.Time) (int64, error)
	GenerateDueStatements(ctx context.Context, asOf time.Time) (int, error)
}

// BillingJob runs daily card housekeeping on a cron schedule: flag unpaid
// statements past their due date, then bill every cycle that closed today.
type BillingJob struct {
	runner   BillingRunner
	schedule string
	log      *logrus.Logger
	now      func() time.Time
	timeout  time.Duration
}

func NewBillingJob(runner BillingRunner, schedule string, log *logrus.Logger) *BillingJob {
	return &BillingJob{
		runner:   runner,
		schedule: schedule,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
		timeout:  5 * time.Minute,
	}
}

// Start blocks until ctx is cancelled, then waits for a running pass.
func (j *BillingJob) Start(ctx context.Context) error {
	c := cron.New(cron.WithLocation(time.UTC))
	if _, err := c.AddFunc(j.schedule, func() { j.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("billing schedule %q: %w", j.schedule, err)
	}

	j.log.WithField("schedule", j.schedule).Info("[BillingJob] started")
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	j.log.Info("[BillingJob] stopped")
	return nil
}

// RunOnce performs one pass for the current day.
func (j *BillingJob) RunOnce(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	asOf := j.now()
	log := j.log.WithField("as_of", asOf.Format("2006-01-02"))

	overdue, err := j.runner.MarkOverdue(ctx, asOf)
	if err != nil {
		log.WithError(err).Error("[BillingJob] mark overdue failed")
	}

	generated, err := j.runner.GenerateDueStatements(ctx, asOf)
	if err != nil {
		log.WithError(err).Error("[BillingJob] statement generation had failures")
	}

	log.WithFields(logrus.Fields{
		"overdue":   overdue,
		"generated": generated,
	}).Info("[BillingJob] pass complete")
}
