package framework

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoopRunsLevelsInOrder(t *testing.T) {
	l := NewLoop(time.Hour)
	now := time.Unix(500, 0)
	l.Now = func() time.Time { return now }

	var calls []string
	record := func(name string, err error) Controller {
		return ControlFunc(func(ctx ControlContext) error {
			require.Equal(t, now, ctx.Time())
			calls = append(calls, name)
			return err
		})
	}
	l.AddController(PrLvActuate, record("actuate", nil))
	l.AddController(PrLvSense, record("sense-1", errors.New("sensor failed")), record("sense-2", nil))
	l.AddController(PrLvTop, record("top", nil))

	l.RunIteration(context.Background())
	require.Equal(t, []string{"top", "sense-1", "sense-2", "actuate"}, calls)
	require.Equal(t, uint64(1), l.Iterations())
}

type testAdder struct {
	levels []int
}

func (a *testAdder) AddToLoop(l *Loop) {
	l.AddController(PrLvControl, ControlFunc(func(ctx ControlContext) error {
		a.levels = append(a.levels, ctx.PriorityLevel())
		return nil
	}))
}

func TestLoopAdder(t *testing.T) {
	adder := &testAdder{}
	l := NewLoop(time.Hour).Add(adder)
	l.RunIteration(context.Background())
	require.Equal(t, []int{PrLvControl}, adder.levels)
}

func TestLoopRunAndTrigger(t *testing.T) {
	l := NewLoop(time.Hour)
	iterCh := make(chan uint64, 4)
	l.AddController(PrLvSense, ControlFunc(func(ctx ControlContext) error {
		iterCh <- ctx.Iteration()
		if ctx.Iteration() == 1 {
			ctx.TriggerNext()
		}
		return nil
	}))
	var started atomic.Bool
	l.AddRunnable(RunnableFunc(func(ctx context.Context) error {
		started.Store(true)
		<-ctx.Done()
		return ctx.Err()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- l.Run(ctx) }()
	require.Equal(t, uint64(1), <-iterCh, "first iteration is immediate")
	require.Equal(t, uint64(2), <-iterCh, "triggered")
	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)
	require.True(t, started.Load())
}

func TestRunnerAggregatesErrors(t *testing.T) {
	errFailed := errors.New("failed")
	r := NewRunner()
	r.Go(
		NamedRun("fails", RunnableFunc(func(context.Context) error { return errFailed })),
		NamedRun("waits", RunnableFunc(func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})),
	)
	err := r.Wait()
	require.ErrorIs(t, err, errFailed)
	var aggregated *AggregatedError
	require.ErrorAs(t, err, &aggregated)
	require.Len(t, aggregated.Errors, 1)
}

func TestRunnerStop(t *testing.T) {
	r := NewRunner()
	r.Go(RunnableFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))
	r.Stop()
	require.NoError(t, r.Wait())
}

type testCloser struct {
	closed int
	ch     chan struct{}
}

func (c *testCloser) Close() error {
	c.closed++
	close(c.ch)
	return nil
}

func TestRunWithContextCloser(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	closer := &testCloser{ch: make(chan struct{})}
	go cancel()
	err := RunWithContextCloser(ctx, closer, func() error {
		<-closer.ch
		return io.EOF
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, closer.closed)

	closer = &testCloser{ch: make(chan struct{})}
	err = RunWithContextCloser(context.Background(), closer, func() error { return io.EOF })
	require.ErrorIs(t, err, io.EOF)
	require.Equal(t, 1, closer.closed)
}
