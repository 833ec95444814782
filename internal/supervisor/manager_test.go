package supervisor

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skipOnWindows(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses /bin/sh")
	}
}

func TestManagerStartAndStopSimpleService(t *testing.T) {
	skipOnWindows(t)

	def := &ServiceDefinition{
		Name:            "sleeper",
		Type:            TypeSimple,
		ExecStart:       "sleep 5",
		Enabled:         true,
		Restart:         RestartNo,
		TimeoutStopSec:  2 * time.Second,
	}
	m, err := NewManager([]*ServiceDefinition{def}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	time.Sleep(200 * time.Millisecond)
	require.NoError(t, m.StartService("sleeper"))
	time.Sleep(100 * time.Millisecond)

	snap, ok := m.Status("sleeper")
	require.True(t, ok)
	assert.Equal(t, Running, snap.State)
	assert.NotZero(t, snap.MainPID)

	require.NoError(t, m.StopService("sleeper"))
	snap, ok = m.Status("sleeper")
	require.True(t, ok)
	assert.Equal(t, Stopped, snap.State)
}

func TestManagerRestartRateLimitTransitionsToFailed(t *testing.T) {
	skipOnWindows(t)

	def := &ServiceDefinition{
		Name:       "crasher",
		Type:       TypeSimple,
		ExecStart:  "exit 1",
		Enabled:    true,
		Restart:    RestartAlways,
		RestartSec: 10 * time.Millisecond,
	}
	m, err := NewManager([]*ServiceDefinition{def}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	time.Sleep(200 * time.Millisecond)
	require.NoError(t, m.StartService("crasher"))

	require.Eventually(t, func() bool {
		snap, ok := m.Status("crasher")
		return ok && snap.State == Failed
	}, 3*time.Second, 20*time.Millisecond)
}

func TestManagerUnknownService(t *testing.T) {
	m, err := NewManager(nil, nil)
	require.NoError(t, err)
	err = m.StartService("ghost")
	var notFound *ServiceNotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestManagerRejectsCyclicDependencies(t *testing.T) {
	defs := []*ServiceDefinition{
		{Name: "a", ExecStart: "true", Requires: []string{"b"}},
		{Name: "b", ExecStart: "true", Requires: []string{"a"}},
	}
	_, err := NewManager(defs, nil)
	require.Error(t, err)
}
