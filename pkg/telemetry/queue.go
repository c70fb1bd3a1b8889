// Package telemetry hands sensor snapshots from the acquisition
// context to consumers running in other contexts.
package telemetry

import (
	"sync"

	"github.com/golang/glog"

	"github.com/autobloomer/sensorcore/pkg/sensor"
)

// Sink accepts snapshots from the acquisition context.
type Sink interface {
	Push(sensor.Snapshot)
}

// Source provides the freshest snapshot to a consumer.
type Source interface {
	DrainToLatest() (sensor.Snapshot, bool)
}

// CapacityPerSensor is the default queue depth per sensor.
const CapacityPerSensor = 4

// Queue is a bounded single-producer/single-consumer ring of
// snapshots. When full, pushing drops the oldest entry.
type Queue struct {
	lock    sync.Mutex
	buf     []sensor.Snapshot
	head    int // oldest entry
	count   int
	dropped uint64
}

// NewQueue creates a Queue holding at most capacity snapshots.
func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{buf: make([]sensor.Snapshot, capacity)}
}

// Push implements Sink. It never blocks on the consumer.
func (q *Queue) Push(s sensor.Snapshot) {
	q.lock.Lock()
	defer q.lock.Unlock()
	capacity := len(q.buf)
	if q.count == capacity {
		if q.dropped == 0 {
			glog.V(1).Infof("telemetry queue full (%d), dropping oldest", capacity)
		}
		q.dropped++
		q.buf[q.head] = s
		q.head = (q.head + 1) % capacity
		return
	}
	q.buf[(q.head+q.count)%capacity] = s
	q.count++
}

// Pop removes the oldest snapshot.
func (q *Queue) Pop() (sensor.Snapshot, bool) {
	q.lock.Lock()
	defer q.lock.Unlock()
	return q.pop()
}

func (q *Queue) pop() (s sensor.Snapshot, ok bool) {
	if q.count == 0 {
		return
	}
	s, q.buf[q.head] = q.buf[q.head], sensor.Snapshot{}
	q.head = (q.head + 1) % len(q.buf)
	q.count--
	return s, true
}

// DrainToLatest implements Source. It empties the queue and returns
// the most recently pushed snapshot.
func (q *Queue) DrainToLatest() (latest sensor.Snapshot, ok bool) {
	q.lock.Lock()
	defer q.lock.Unlock()
	for {
		s, popped := q.pop()
		if !popped {
			return
		}
		latest, ok = s, true
	}
}

// Len returns the number of queued snapshots.
func (q *Queue) Len() int {
	q.lock.Lock()
	defer q.lock.Unlock()
	return q.count
}

// Dropped returns how many snapshots were overwritten.
func (q *Queue) Dropped() uint64 {
	q.lock.Lock()
	defer q.lock.Unlock()
	return q.dropped
}

// Fanout pushes every snapshot to each sink. Each consumer gets
// its own Queue so every queue keeps a single consumer.
type Fanout []Sink

// Push implements Sink.
func (f Fanout) Push(s sensor.Snapshot) {
	for _, sink := range f {
		sink.Push(s)
	}
}
