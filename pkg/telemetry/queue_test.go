package telemetry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/autobloomer/sensorcore/pkg/sensor"
)

func snapshotSeq(seq uint64) sensor.Snapshot {
	return sensor.Snapshot{Seq: seq}
}

func TestNewestWins(t *testing.T) {
	testCases := []struct {
		capacity int
		pushes   int
	}{
		{capacity: 1, pushes: 1},
		{capacity: 1, pushes: 7},
		{capacity: 4, pushes: 3},
		{capacity: 4, pushes: 4},
		{capacity: 4, pushes: 5},
		{capacity: 20, pushes: 101},
	}
	for _, tc := range testCases {
		q := NewQueue(tc.capacity)
		for i := 1; i <= tc.pushes; i++ {
			q.Push(snapshotSeq(uint64(i)))
		}
		latest, ok := q.DrainToLatest()
		require.True(t, ok)
		require.Equal(t, uint64(tc.pushes), latest.Seq)
		require.Zero(t, q.Len())
		if tc.pushes > tc.capacity {
			require.Equal(t, uint64(tc.pushes-tc.capacity), q.Dropped())
		}
	}
}

func TestDrainEmpty(t *testing.T) {
	q := NewQueue(4)
	_, ok := q.DrainToLatest()
	require.False(t, ok)
	q.Push(snapshotSeq(1))
	_, ok = q.DrainToLatest()
	require.True(t, ok)
	_, ok = q.DrainToLatest()
	require.False(t, ok)
}

func TestPopKeepsOrder(t *testing.T) {
	q := NewQueue(3)
	for i := 1; i <= 5; i++ {
		q.Push(snapshotSeq(uint64(i)))
	}
	for _, expected := range []uint64{3, 4, 5} {
		s, ok := q.Pop()
		require.True(t, ok)
		require.Equal(t, expected, s.Seq)
	}
	_, ok := q.Pop()
	require.False(t, ok)
}

func TestConcurrentProducerConsumer(t *testing.T) {
	q := NewQueue(8)
	const total = 10000
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= total; i++ {
			q.Push(snapshotSeq(uint64(i)))
		}
	}()
	var last uint64
	for last < total {
		if s, ok := q.DrainToLatest(); ok {
			require.Greater(t, s.Seq, last)
			last = s.Seq
		}
	}
	wg.Wait()
	require.Equal(t, uint64(total), last)
}

func TestFanout(t *testing.T) {
	a, b := NewQueue(2), NewQueue(2)
	Fanout{a, b}.Push(snapshotSeq(9))
	sa, _ := a.DrainToLatest()
	sb, _ := b.DrainToLatest()
	require.Equal(t, uint64(9), sa.Seq)
	require.Equal(t, uint64(9), sb.Seq)
}
