// Package supervisor implements a standalone service supervisor: a
// dependency-ordered start graph, a per-service restart/health state
// machine, and loaders for both a native TOML service dialect and
// legacy systemd unit files.
package supervisor

import (
	"strings"
	"time"
)

// ServiceType selects how the supervisor decides a service has finished
// starting.
type ServiceType int

const (
	TypeSimple ServiceType = iota
	TypeForking
	TypeOneshot
	TypeNotify
	TypeIdle
)

func (t ServiceType) String() string {
	switch t {
	case TypeSimple:
		return "simple"
	case TypeForking:
		return "forking"
	case TypeOneshot:
		return "oneshot"
	case TypeNotify:
		return "notify"
	case TypeIdle:
		return "idle"
	default:
		return "unknown"
	}
}

func parseServiceType(s string) ServiceType {
	switch strings.ToLower(s) {
	case "forking":
		return TypeForking
	case "oneshot":
		return TypeOneshot
	case "notify":
		return TypeNotify
	case "idle":
		return TypeIdle
	default:
		return TypeSimple
	}
}

// RestartPolicy controls whether a service's state machine re-enters
// Starting after its process exits.
type RestartPolicy int

const (
	RestartNo RestartPolicy = iota
	RestartOnSuccess
	RestartOnFailure
	RestartOnAbnormal
	RestartAlways
)

func (p RestartPolicy) String() string {
	switch p {
	case RestartNo:
		return "no"
	case RestartOnSuccess:
		return "on-success"
	case RestartOnFailure:
		return "on-failure"
	case RestartOnAbnormal:
		return "on-abnormal"
	case RestartAlways:
		return "always"
	default:
		return "unknown"
	}
}

func parseRestartPolicy(s string) RestartPolicy {
	switch strings.ToLower(s) {
	case "on-success":
		return RestartOnSuccess
	case "on-failure":
		return RestartOnFailure
	case "on-abnormal":
		return RestartOnAbnormal
	case "always":
		return RestartAlways
	default:
		return RestartNo
	}
}

// shouldRestart reports whether policy calls for a restart given the
// process's exit status.
func (p RestartPolicy) shouldRestart(exitCode int, abnormal bool) bool {
	switch p {
	case RestartAlways:
		return true
	case RestartOnSuccess:
		return exitCode == 0
	case RestartOnFailure:
		return exitCode != 0 || abnormal
	case RestartOnAbnormal:
		return abnormal
	default:
		return false
	}
}

// HealthCheck configures a periodic liveness probe.
type HealthCheck struct {
	Exec        string
	Interval    time.Duration
	Timeout     time.Duration
	Retries     int
	StartPeriod time.Duration
}

func defaultHealthCheck() HealthCheck {
	return HealthCheck{Interval: 30 * time.Second, Timeout: 10 * time.Second, Retries: 3}
}

// WatchdogConfig requires the service to ping within Timeout or the
// supervisor takes Action.
type WatchdogConfig struct {
	Timeout time.Duration
	Action  string // "restart" | "kill" | "none"
}

// ResourceLimits are rlimit-style knobs. Application of these to the
// spawned process (setrlimit, cgroup writes) is platform code outside
// this package's scope; the supervisor threads the values through so a
// platform-specific executor can apply them.
type ResourceLimits struct {
	MemorySoft *uint64
	MemoryHard *uint64
	CPUPercent *uint32
	NoFile     *uint64
	NProc      *uint64
	FSize      *uint64
	Core       *uint64
	Stack      *uint64
	Data       *uint64
	MemLock    *uint64
	CPUTime    *uint64
}

// ServiceDefinition is the declared, immutable shape of a service.
type ServiceDefinition struct {
	Name        string
	Description string
	Type        ServiceType

	ExecStart  string
	ExecStop   string
	ExecReload string

	WorkingDirectory string
	Environment      map[string]string
	User             string
	Group            string

	// Requires/Before are "must" edges: a failure propagates along them.
	// Wants/After are "want" edges that order but don't propagate failure.
	Requires []string
	Wants    []string
	Before   []string
	After    []string

	Restart         RestartPolicy
	RestartSec      time.Duration
	TimeoutStartSec time.Duration
	TimeoutStopSec  time.Duration

	Enabled bool

	HealthCheck *HealthCheck
	Limits      *ResourceLimits
	Watchdog    *WatchdogConfig

	Template bool

	StandardOutput string // inherit | null | journal | file:<path>
	StandardError  string
}

func defaultDefinition() ServiceDefinition {
	return ServiceDefinition{
		Type:            TypeSimple,
		Restart:         RestartOnFailure,
		RestartSec:      time.Second,
		TimeoutStartSec: 30 * time.Second,
		TimeoutStopSec:  30 * time.Second,
		StandardOutput:  "journal",
		StandardError:   "journal",
	}
}

// IsTemplate reports whether this definition is a template service: its
// Template flag is set or its name contains '@'.
func (d *ServiceDefinition) IsTemplate() bool {
	return d.Template || strings.Contains(d.Name, "@")
}

// Instantiate substitutes instance into every %i placeholder of a
// template definition's command lines, returning a concrete, non-template
// copy.
func (d *ServiceDefinition) Instantiate(instance string) *ServiceDefinition {
	c := *d
	c.Name = strings.Replace(d.Name, "@", "@"+instance, 1)
	c.Template = false
	c.ExecStart = strings.ReplaceAll(d.ExecStart, "%i", instance)
	c.ExecStop = strings.ReplaceAll(d.ExecStop, "%i", instance)
	c.ExecReload = strings.ReplaceAll(d.ExecReload, "%i", instance)
	if d.Environment != nil {
		c.Environment = make(map[string]string, len(d.Environment))
		for k, v := range d.Environment {
			c.Environment[k] = v
		}
	}
	return &c
}
