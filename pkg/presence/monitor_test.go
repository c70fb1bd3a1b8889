package presence

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMonitor(t *testing.T) {
	var bits uint32
	var scanErr error
	scans := 0
	m := NewMonitor(ScanFunc(func() (uint32, error) {
		scans++
		return bits, scanErr
	}))

	require.False(t, m.IsHardwareConnected(3))

	bits = 1<<3 | 1<<8
	require.NoError(t, m.Refresh())
	require.True(t, m.IsHardwareConnected(3))
	require.True(t, m.IsSet(8))
	require.False(t, m.IsSet(0))
	require.False(t, m.IsSet(-1))
	require.False(t, m.IsSet(MaxBits))

	bits = 0
	require.True(t, m.IsSet(3), "lookups use the cached scan")
	require.Equal(t, 1, scans)

	scanErr = errors.New("stuck")
	bits = 0xffff
	require.Error(t, m.Refresh())
	require.Zero(t, m.Bits())
}

func TestMonitorWithoutScanner(t *testing.T) {
	var m Monitor
	require.NoError(t, m.Refresh())
	require.False(t, m.IsSet(0))
}
