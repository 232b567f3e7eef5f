package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/harvest/pkg/schema"
)

type fakeStarter struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeStarter) Start(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "run-1", nil
}

func (f *fakeStarter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestNewRejectsBadExpression(t *testing.T) {
	_, err := New("not a cron", &fakeStarter{}, nil)
	require.Error(t, err)
	var herr *schema.HarvestError
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, schema.ErrCodeValidation, herr.Code)
}

func TestNewRequiresStarter(t *testing.T) {
	_, err := New("* * * * *", nil, nil)
	assert.Error(t, err)
}

func TestTickTriggersWhenDue(t *testing.T) {
	starter := &fakeStarter{}
	s, err := New("* * * * *", starter, nil)
	require.NoError(t, err)

	s.nextRun = time.Now().UTC().Add(-time.Minute)
	s.tick(context.Background())

	assert.Equal(t, 1, starter.count())
	assert.True(t, s.NextRun().After(time.Now().UTC().Add(-time.Second)))
}

func TestTickSkipsWhenNotDue(t *testing.T) {
	starter := &fakeStarter{}
	s, err := New("* * * * *", starter, nil)
	require.NoError(t, err)

	s.nextRun = time.Now().UTC().Add(time.Hour)
	s.tick(context.Background())

	assert.Zero(t, starter.count())
}

func TestTickToleratesActiveRun(t *testing.T) {
	starter := &fakeStarter{err: schema.NewError(schema.ErrCodeConflict, "already running")}
	s, err := New("* * * * *", starter, nil)
	require.NoError(t, err)

	s.nextRun = time.Now().UTC().Add(-time.Minute)
	s.tick(context.Background())
	assert.Equal(t, 1, starter.count())

	// The schedule advances past the missed slot, so the same trigger is
	// not retried on the next tick.
	s.tick(context.Background())
	assert.Equal(t, 1, starter.count())
}

func TestStartStop(t *testing.T) {
	s, err := New("* * * * *", &fakeStarter{}, nil)
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	assert.Error(t, s.Start(context.Background()))
	assert.False(t, s.NextRun().IsZero())

	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())

	// Stopped schedulers can be started again.
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop())
}
