package framework

import (
	"context"
	"time"

	"github.com/golang/glog"
)

// DefaultInterval is the Loop cadence when Interval isn't set.
const DefaultInterval = 100 * time.Millisecond

// Loop runs controllers at a fixed cadence, level by level. A failing
// controller is logged and never stops the loop or other controllers.
type Loop struct {
	Interval time.Duration
	Now      func() time.Time

	controllers [PriorityLevels][]Controller
	runners     []Runnable
	wakeUpCh    chan struct{}
	iterations  uint64
}

type loopIteration struct {
	loop          *Loop
	ctx           context.Context
	time          time.Time
	iteration     uint64
	priorityLevel int
}

// NewLoop creates a Loop.
func NewLoop(interval time.Duration) *Loop {
	return &Loop{Interval: interval, Now: time.Now, wakeUpCh: make(chan struct{}, 1)}
}

// Add adds LoopAdders.
func (l *Loop) Add(adders ...LoopAdder) *Loop {
	for _, adder := range adders {
		adder.AddToLoop(l)
	}
	return l
}

// AddController registers controllers at a priority level.
// Controllers also implementing Runnable run alongside the loop.
func (l *Loop) AddController(priorityLevel int, ctls ...Controller) *Loop {
	l.controllers[priorityLevel] = append(l.controllers[priorityLevel], ctls...)
	for _, ctl := range ctls {
		if runner, ok := ctl.(Runnable); ok {
			l.runners = append(l.runners, runner)
		}
	}
	return l
}

// AddRunnable adds Runnables started with the loop.
func (l *Loop) AddRunnable(runnables ...Runnable) *Loop {
	l.runners = append(l.runners, runnables...)
	return l
}

// Iterations returns the number of completed iterations.
func (l *Loop) Iterations() uint64 {
	return l.iterations
}

// Run implements Runnable. The first iteration runs immediately.
func (l *Loop) Run(ctx context.Context) error {
	if l.wakeUpCh == nil {
		l.wakeUpCh = make(chan struct{}, 1)
	}
	if l.Now == nil {
		l.Now = time.Now
	}

	runner := NewRunnerWith(ctx)
	runner.Go(l.runners...)
	defer runner.Wait()

	interval := l.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	l.RunIteration(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			l.RunIteration(ctx)
		case <-l.wakeUpCh:
			l.RunIteration(ctx)
		}
	}
}

// TriggerNext requests an immediate iteration.
func (l *Loop) TriggerNext() {
	select {
	case l.wakeUpCh <- struct{}{}:
	default:
	}
}

// RunIteration runs all controllers once.
func (l *Loop) RunIteration(ctx context.Context) {
	l.iterations++
	iter := &loopIteration{loop: l, ctx: ctx, time: l.Now(), iteration: l.iterations}
	for level := 0; level < PriorityLevels; level++ {
		iter.priorityLevel = level
		for _, ctl := range l.controllers[level] {
			if err := ctl.Control(iter); err != nil {
				glog.Errorf("controller error at level %d: %v", level, err)
			}
		}
	}
}

func (t *loopIteration) Context() context.Context { return t.ctx }
func (t *loopIteration) Time() time.Time          { return t.time }
func (t *loopIteration) Iteration() uint64        { return t.iteration }
func (t *loopIteration) PriorityLevel() int       { return t.priorityLevel }
func (t *loopIteration) TriggerNext()             { t.loop.TriggerNext() }
