package system

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/coopenergy/platform/pkg/logger"
)

// Scheduler runs periodic housekeeping jobs on cron specs.
type Scheduler struct {
	cron *cron.Cron
	log  *logger.Logger
	jobs int
}

func NewScheduler(log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.NewDefault("scheduler")
	}
	return &Scheduler{
		cron: cron.New(cron.WithChain(cron.Recover(cronLogger{log}))),
		log:  log,
	}
}

// cronLogger routes cron's own messages, including recovered job panics,
// to the platform logger.
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.WithFields(cronFields(keysAndValues)).Debug("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.WithFields(cronFields(keysAndValues)).WithError(err).Error("cron: " + msg)
}

func cronFields(keysAndValues []interface{}) logrus.Fields {
	fields := make(logrus.Fields, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return fields
}

// Add registers fn under name. An empty spec skips the job.
func (s *Scheduler) Add(name, spec string, fn func()) error {
	if spec == "" {
		return nil
	}
	if _, err := s.cron.AddFunc(spec, func() {
		s.log.WithField("job", name).Debug("running scheduled job")
		fn()
	}); err != nil {
		return fmt.Errorf("schedule %s (%q): %w", name, spec, err)
	}
	s.jobs++
	return nil
}

// Jobs reports how many jobs are registered.
func (s *Scheduler) Jobs() int { return s.jobs }

func (s *Scheduler) Name() string { return "scheduler" }

func (s *Scheduler) Start(context.Context) error {
	s.cron.Start()
	s.log.WithField("jobs", s.jobs).Info("scheduler started")
	return nil
}

// Stop waits for running jobs or for ctx, whichever ends first.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
