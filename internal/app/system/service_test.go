package system

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coopenergy/platform/pkg/logger"
)

type fakeService struct {
	name     string
	startErr error
	log      *[]string
}

func (f fakeService) Name() string { return f.name }

func (f fakeService) Start(context.Context) error {
	*f.log = append(*f.log, "start "+f.name)
	return f.startErr
}

func (f fakeService) Stop(context.Context) error {
	*f.log = append(*f.log, "stop "+f.name)
	return nil
}

func TestManagerOrdering(t *testing.T) {
	var log []string
	m := NewManager()
	require.NoError(t, m.Register(fakeService{name: "a", log: &log}))
	require.NoError(t, m.Register(fakeService{name: "b", log: &log}))
	require.Error(t, m.Register(fakeService{name: "a", log: &log}))

	ctx := context.Background()
	require.NoError(t, m.Start(ctx))
	require.NoError(t, m.Stop(ctx))
	assert.Equal(t, []string{"start a", "start b", "stop b", "stop a"}, log)
}

func TestManagerUnwindsOnStartFailure(t *testing.T) {
	var log []string
	m := NewManager()
	require.NoError(t, m.Register(fakeService{name: "a", log: &log}))
	require.NoError(t, m.Register(fakeService{name: "b", log: &log, startErr: errors.New("boom")}))

	err := m.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start b")
	assert.Equal(t, []string{"start a", "start b", "stop a"}, log)
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	s := NewScheduler(nil)
	require.NoError(t, s.Add("noop", "", func() {}))
	require.NoError(t, s.Add("trim", "@every 1m", func() {}))
	err := s.Add("broken", "not a spec", func() {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
	assert.Equal(t, 1, s.Jobs())

	ctx := context.Background()
	require.NoError(t, s.Start(ctx))
	require.NoError(t, s.Stop(ctx))
}

func TestSchedulerLogsJobPanics(t *testing.T) {
	log := logger.NewDefault("scheduler")
	hook := test.NewLocal(log.Logger)

	job := cron.NewChain(cron.Recover(cronLogger{log})).Then(cron.FuncJob(func() {
		panic("trim exploded")
	}))
	require.NotPanics(t, job.Run)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Equal(t, "cron: panic", entry.Message)
	assert.Contains(t, fmt.Sprint(entry.Data[logrus.ErrorKey]), "trim exploded")
	assert.Contains(t, entry.Data, "stack")
}
