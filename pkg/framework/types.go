// Package framework runs the execution contexts of the daemon: a
// fixed-cadence Loop of Controllers and Runnables supervised by a Runner.
package framework

import (
	"context"
	"time"
)

// Named is an abstraction for things with a name.
type Named interface {
	Name() string
}

// Runnable is a long running task stopped by canceling its context.
type Runnable interface {
	Run(context.Context) error
}

// RunnableFunc is the func form of Runnable.
type RunnableFunc func(context.Context) error

// Run implements Runnable.
func (f RunnableFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// Controller is invoked once per Loop iteration.
type Controller interface {
	Control(ControlContext) error
}

// ControlFunc is the func form of Controller.
type ControlFunc func(ControlContext) error

// Control implements Controller.
func (f ControlFunc) Control(ctx ControlContext) error {
	return f(ctx)
}

// ControlContext is the context of the current iteration.
type ControlContext interface {
	// Context is canceled when the Loop stops.
	Context() context.Context
	// Time is when the iteration started.
	Time() time.Time
	// Iteration counts iterations from 1.
	Iteration() uint64
	// PriorityLevel is the level of the running Controller.
	PriorityLevel() int
	// TriggerNext runs the next iteration without waiting for
	// the interval.
	TriggerNext()
}

// PriorityLevels is the number of priority levels.
const PriorityLevels int = 16

// Predefined priority levels. Lower levels run first.
const (
	PrLvTop    int = 0
	PrLvHigh   int = 4
	PrLvNormal int = 8
	PrLvLow    int = 12
	PrLvIdle   int = PriorityLevels - 1

	// PrLvSense is for reading sensors.
	PrLvSense = PrLvHigh
	// PrLvControl is for logic over fresh readings.
	PrLvControl = PrLvNormal
	// PrLvActuate is for driving outputs.
	PrLvActuate = PrLvLow
)

// LoopAdder adds its controllers to a Loop.
type LoopAdder interface {
	AddToLoop(*Loop)
}
