package reaper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/pushgate/config"
)

type stubLeases struct{}

func (stubLeases) RequeueExpired(context.Context) (int64, error) { return 0, nil }

type stubLogs struct{}

func (stubLogs) DeleteLogsOlderThan(context.Context, time.Time, int) (int64, error) { return 0, nil }

func testConfig() config.ReaperConfig {
	return config.ReaperConfig{Interval: time.Minute, RetentionSchedule: "@hourly", LogMaxAge: time.Hour, BatchSize: 10}
}

func TestNewRunner_RequiresDBWhenPortsMissing(t *testing.T) {
	t.Parallel()
	_, err := NewRunner(RunnerOptions{Config: testConfig()})
	require.Error(t, err)

	_, err = NewRunner(RunnerOptions{Config: testConfig(), Logs: stubLogs{}})
	require.Error(t, err, "postgres backend still needs a lease requeuer")
}

func TestNewRunner_RabbitMQSkipsLeases(t *testing.T) {
	t.Parallel()
	r, err := NewRunner(RunnerOptions{
		Config:       testConfig(),
		QueueBackend: config.QueueBackendRabbitMQ,
		Logs:         stubLogs{},
	})
	require.NoError(t, err)
	assert.NotNil(t, r)
}

func TestRunner_RunStopsOnCancel(t *testing.T) {
	t.Parallel()
	r, err := NewRunner(RunnerOptions{Config: testConfig(), Leases: stubLeases{}, Logs: stubLogs{}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, r.Run(ctx))
}
