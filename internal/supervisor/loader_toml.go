package supervisor

import (
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
)

// tomlHealthCheck/tomlWatchdog/tomlLimits mirror ServiceDefinition's
// nested structs as TOML wire shapes. Durations are strings, so the file
// accepts the same "30s" syntax the legacy dialect does; resource limits
// are plain integers (memory in bytes), so size suffixes such as "512M"
// are not accepted there.
type tomlHealthCheck struct {
	Exec        string `toml:"exec"`
	Interval    string `toml:"interval"`
	Timeout     string `toml:"timeout"`
	Retries     int    `toml:"retries"`
	StartPeriod string `toml:"start_period"`
}

type tomlWatchdog struct {
	Timeout string `toml:"timeout"`
	Action  string `toml:"action"`
}

type tomlLimits struct {
	MemorySoft *uint64 `toml:"memory_soft"`
	MemoryHard *uint64 `toml:"memory_hard"`
	CPUPercent *uint32 `toml:"cpu_percent"`
	NoFile     *uint64 `toml:"nofile"`
	NProc      *uint64 `toml:"nproc"`
}

type tomlDefinition struct {
	Name        string            `toml:"name"`
	Description string            `toml:"description"`
	Type        string            `toml:"type"`
	ExecStart   string            `toml:"exec_start"`
	ExecStop    string            `toml:"exec_stop"`
	ExecReload  string            `toml:"exec_reload"`
	WorkingDir  string            `toml:"working_directory"`
	Environment map[string]string `toml:"environment"`
	User        string            `toml:"user"`
	Group       string            `toml:"group"`

	Requires []string `toml:"requires"`
	Wants    []string `toml:"wants"`
	Before   []string `toml:"before"`
	After    []string `toml:"after"`

	Restart         string `toml:"restart"`
	RestartSec      string `toml:"restart_sec"`
	TimeoutStartSec string `toml:"timeout_start_sec"`
	TimeoutStopSec  string `toml:"timeout_stop_sec"`

	Enabled bool `toml:"enabled"`

	HealthCheck *tomlHealthCheck `toml:"health_check"`
	Limits      *tomlLimits      `toml:"resource_limits"`
	Watchdog    *tomlWatchdog    `toml:"watchdog"`

	Template bool `toml:"template"`

	StandardOutput string `toml:"standard_output"`
	StandardError  string `toml:"standard_error"`
}

// LoadTOML parses the native TOML service-definition dialect.
func LoadTOML(data []byte) (*ServiceDefinition, error) {
	var raw tomlDefinition
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "supervisor: parsing service definition")
	}
	if raw.ExecStart == "" {
		return nil, errors.Errorf("supervisor: %s: missing exec_start", raw.Name)
	}

	d := defaultDefinition()
	d.Name = raw.Name
	d.Description = raw.Description
	if raw.Type != "" {
		d.Type = parseServiceType(raw.Type)
	}
	d.ExecStart = raw.ExecStart
	d.ExecStop = raw.ExecStop
	d.ExecReload = raw.ExecReload
	d.WorkingDirectory = raw.WorkingDir
	d.Environment = raw.Environment
	d.User = raw.User
	d.Group = raw.Group
	d.Requires = raw.Requires
	d.Wants = raw.Wants
	d.Before = raw.Before
	d.After = raw.After
	d.Enabled = raw.Enabled
	d.Template = raw.Template

	if raw.Restart != "" {
		d.Restart = parseRestartPolicy(raw.Restart)
	}
	if raw.RestartSec != "" {
		v, err := parseDuration(raw.RestartSec)
		if err != nil {
			return nil, err
		}
		d.RestartSec = v
	}
	if raw.TimeoutStartSec != "" {
		v, err := parseDuration(raw.TimeoutStartSec)
		if err != nil {
			return nil, err
		}
		d.TimeoutStartSec = v
	}
	if raw.TimeoutStopSec != "" {
		v, err := parseDuration(raw.TimeoutStopSec)
		if err != nil {
			return nil, err
		}
		d.TimeoutStopSec = v
	}
	if raw.StandardOutput != "" {
		d.StandardOutput = raw.StandardOutput
	}
	if raw.StandardError != "" {
		d.StandardError = raw.StandardError
	}

	if raw.HealthCheck != nil {
		hc := defaultHealthCheck()
		hc.Exec = raw.HealthCheck.Exec
		hc.Retries = raw.HealthCheck.Retries
		if raw.HealthCheck.Interval != "" {
			v, err := parseDuration(raw.HealthCheck.Interval)
			if err != nil {
				return nil, err
			}
			hc.Interval = v
		}
		if raw.HealthCheck.Timeout != "" {
			v, err := parseDuration(raw.HealthCheck.Timeout)
			if err != nil {
				return nil, err
			}
			hc.Timeout = v
		}
		if raw.HealthCheck.StartPeriod != "" {
			v, err := parseDuration(raw.HealthCheck.StartPeriod)
			if err != nil {
				return nil, err
			}
			hc.StartPeriod = v
		}
		d.HealthCheck = &hc
	}

	if raw.Watchdog != nil {
		v, err := parseDuration(raw.Watchdog.Timeout)
		if err != nil {
			return nil, err
		}
		action := raw.Watchdog.Action
		if action == "" {
			action = "restart"
		}
		d.Watchdog = &WatchdogConfig{Timeout: v, Action: action}
	}

	if raw.Limits != nil {
		d.Limits = &ResourceLimits{
			MemorySoft: raw.Limits.MemorySoft,
			MemoryHard: raw.Limits.MemoryHard,
			CPUPercent: raw.Limits.CPUPercent,
			NoFile:     raw.Limits.NoFile,
			NProc:      raw.Limits.NProc,
		}
	}

	return &d, nil
}
