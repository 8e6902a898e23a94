package jobs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewScheduler(t *testing.T) {
	runner := NewRunner(t.TempDir())
	factory := func(name string) (Job, error) { return New(name, DefaultConfig(), &fakeClient{hello: "x"}) }

	c, err := NewScheduler(context.Background(), runner, factory, DefaultSchedules(), nil)
	require.NoError(t, err)
	assert.Len(t, c.Entries(), 4)
}

func TestNewScheduler_SkipsDisabled(t *testing.T) {
	runner := NewRunner(t.TempDir())
	factory := func(name string) (Job, error) { return New(name, DefaultConfig(), &fakeClient{}) }

	schedules := DefaultSchedules()
	schedules[JobReport] = ""
	c, err := NewScheduler(context.Background(), runner, factory, schedules, nil)
	require.NoError(t, err)
	assert.Len(t, c.Entries(), 3)
}

func TestNewScheduler_Errors(t *testing.T) {
	runner := NewRunner(t.TempDir())
	factory := func(name string) (Job, error) { return New(name, DefaultConfig(), &fakeClient{}) }

	_, err := NewScheduler(context.Background(), runner, factory, map[string]string{JobHeartbeat: "every minute"}, nil)
	require.Error(t, err)

	_, err = NewScheduler(context.Background(), runner, factory, map[string]string{"vacuum": "* * * * *"}, nil)
	require.Error(t, err)
}
