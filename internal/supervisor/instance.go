package supervisor

import (
	"time"
)

// State is a service's position in its lifecycle state machine.
type State int

const (
	Inactive State = iota
	Starting
	Running
	Reloading
	Stopping
	Stopped
	Failed
)

func (s State) String() string {
	switch s {
	case Inactive:
		return "inactive"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Reloading:
		return "reloading"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// HealthStatus is the liveness classification reported by a running
// service's health check.
type HealthStatus int

const (
	HealthNone HealthStatus = iota
	HealthStarting
	HealthHealthy
	HealthUnhealthy
)

func (h HealthStatus) String() string {
	switch h {
	case HealthStarting:
		return "starting"
	case HealthHealthy:
		return "healthy"
	case HealthUnhealthy:
		return "unhealthy"
	default:
		return "none"
	}
}

const (
	restartWindow      = 10 * time.Second
	restartWindowLimit = 5
)

// Instance is the mutable runtime record for one running (or previously
// run) service. Fields are only ever mutated from the instance's own
// goroutine in Manager, except LastWatchdogAt, which Manager.Ping sets
// from the caller's goroutine.
type Instance struct {
	Name  string
	State State

	MainPID    int
	StartedAt  time.Time
	StoppedAt  time.Time
	ExitCode   int
	Abnormal   bool // killed by signal or timed out, rather than a clean exit
	RestartCnt int

	restartTimestamps []time.Time

	FailureReason string

	HealthStatus   HealthStatus
	HealthFailures int
	LastHealthAt   time.Time
	LastWatchdogAt time.Time

	Masked bool
}

func newInstance(name string) *Instance {
	return &Instance{Name: name, State: Inactive, HealthStatus: HealthNone}
}

// canRestart applies the sliding-window restart-rate limit (default: 5
// restarts / 10s): it prunes timestamps older than the window, then
// either records this attempt and allows it or rejects it when the
// window is already full.
func (inst *Instance) canRestart(now time.Time) bool {
	kept := inst.restartTimestamps[:0]
	for _, ts := range inst.restartTimestamps {
		if now.Sub(ts) < restartWindow {
			kept = append(kept, ts)
		}
	}
	inst.restartTimestamps = kept

	if len(inst.restartTimestamps) >= restartWindowLimit {
		return false
	}
	inst.restartTimestamps = append(inst.restartTimestamps, now)
	return true
}

// resetRestartRate clears the rate-limit window and the restart count.
// Nothing in this package calls it. canRestart already drops timestamps
// older than restartWindow, so a crash after a run longer than the
// window starts from an empty window; RestartCnt keeps counting.
func (inst *Instance) resetRestartRate() {
	inst.restartTimestamps = nil
	inst.RestartCnt = 0
}

func (inst *Instance) isActive() bool {
	return inst.State == Running || inst.State == Starting || inst.State == Reloading
}

func (inst *Instance) uptime(now time.Time) time.Duration {
	if inst.StartedAt.IsZero() || !inst.isActive() {
		return 0
	}
	return now.Sub(inst.StartedAt)
}

// Snapshot is a point-in-time, safe-to-share copy of an Instance for
// status reporting across goroutine boundaries.
type Snapshot struct {
	Name           string
	State          State
	MainPID        int
	RestartCount   int
	HealthStatus   HealthStatus
	Masked         bool
	FailureReason  string
	Uptime         time.Duration
}

func (inst *Instance) snapshot(now time.Time) Snapshot {
	return Snapshot{
		Name:          inst.Name,
		State:         inst.State,
		MainPID:       inst.MainPID,
		RestartCount:  inst.RestartCnt,
		HealthStatus:  inst.HealthStatus,
		Masked:        inst.Masked,
		FailureReason: inst.FailureReason,
		Uptime:        inst.uptime(now),
	}
}
