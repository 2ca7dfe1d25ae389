package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStart_RunsJobRepeatedly(t *testing.T) {
	var count atomic.Int32
	s := New(nil, nil)
	s.Register(Job{
		Name:   "tick",
		Period: 5 * time.Millisecond,
		Fn: func(ctx context.Context) error {
			count.Add(1)
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	time.Sleep(40 * time.Millisecond)
	cancel()
	s.Stop(context.Background())

	require.GreaterOrEqual(t, count.Load(), int32(2))
}

func TestRunNow_SkipsWhenAlreadyRunning(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	s := New(nil, nil)
	s.Register(Job{
		Name:   "slow",
		Period: time.Hour,
		Fn: func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		},
	})

	go s.RunNow(context.Background(), "slow")
	<-started

	ok := s.RunNow(context.Background(), "slow")
	require.False(t, ok)

	close(release)
}

func TestRunNow_ReturnsFalseForUnknownJob(t *testing.T) {
	s := New(nil, nil)
	require.False(t, s.RunNow(context.Background(), "nope"))
}

func TestRunNow_RunsJobThatReturnsError(t *testing.T) {
	s := New(nil, nil)
	var ranWithErr bool
	s.Register(Job{
		Name:   "failing",
		Period: time.Hour,
		Fn: func(ctx context.Context) error {
			ranWithErr = true
			return errors.New("boom")
		},
	})

	ok := s.RunNow(context.Background(), "failing")
	require.True(t, ok)
	require.True(t, ranWithErr)
}

func TestRegister_ClampsJitterToTenPercent(t *testing.T) {
	s := New(nil, nil)
	s.Register(Job{Name: "j", Period: time.Second, Jitter: 0.9})
	require.LessOrEqual(t, s.jobs["j"].job.Jitter, 0.1)
}
