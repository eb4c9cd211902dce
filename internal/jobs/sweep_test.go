package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingSweeper struct {
	calls atomic.Int32
	err   error
}

func (s *countingSweeper) SweepExpiredSessions(ctx context.Context) (int64, error) {
	s.calls.Add(1)
	if s.err != nil {
		return 0, s.err
	}
	return 3, nil
}

func TestSweepJob_RunsImmediatelyAndOnTick(t *testing.T) {
	sweeper := &countingSweeper{}
	job := NewSweepJob(sweeper, 20*time.Millisecond)

	job.Start()
	time.Sleep(70 * time.Millisecond)
	job.Stop()

	// One immediate run plus at least two ticks.
	assert.GreaterOrEqual(t, sweeper.calls.Load(), int32(3))
}

func TestSweepJob_StopHaltsTicking(t *testing.T) {
	sweeper := &countingSweeper{}
	job := NewSweepJob(sweeper, 20*time.Millisecond)

	job.Start()
	time.Sleep(10 * time.Millisecond)
	job.Stop()

	before := sweeper.calls.Load()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, before, sweeper.calls.Load())
}

func TestSweepJob_SurvivesSweepErrors(t *testing.T) {
	sweeper := &countingSweeper{err: errors.New("db down")}
	job := NewSweepJob(sweeper, 20*time.Millisecond)

	job.Start()
	time.Sleep(50 * time.Millisecond)
	job.Stop()

	assert.GreaterOrEqual(t, sweeper.calls.Load(), int32(2))
}
