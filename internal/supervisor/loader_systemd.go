package supervisor

import (
	"strings"
)

// unitSections holds the raw key/value pairs of a parsed systemd unit
// file, grounded on systemd.rs's UnitSections.
type unitSections struct {
	unit, service, install, timer, socket map[string]string
}

func parseUnitSections(content string) unitSections {
	sec := unitSections{
		unit:    map[string]string{},
		service: map[string]string{},
		install: map[string]string{},
		timer:   map[string]string{},
		socket:  map[string]string{},
	}
	current := ""
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			current = line[1 : len(line)-1]
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)

		var target map[string]string
		switch current {
		case "Unit":
			target = sec.unit
		case "Service":
			target = sec.service
		case "Install":
			target = sec.install
		case "Timer":
			target = sec.timer
		case "Socket":
			target = sec.socket
		default:
			continue
		}
		if existing, ok := target[key]; ok {
			target[key] = existing + " " + value
		} else {
			target[key] = value
		}
	}
	return sec
}

func parseUnitList(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == ',' || r == '\t'
	})
}

func normalizeStdio(s string) string {
	switch strings.ToLower(s) {
	case "inherit", "tty":
		return "inherit"
	case "null", "none":
		return "null"
	case "journal", "syslog", "kmsg", "journal+console":
		return "journal"
	default:
		if strings.HasPrefix(s, "file:") {
			return s
		}
		return "journal"
	}
}

// LoadSystemd converts a legacy systemd unit file into the native
// ServiceDefinition shape. name is the unit's file stem (systemd derives
// the service name from the filename, not from an in-file field).
func LoadSystemd(name string, content string) (*ServiceDefinition, error) {
	sec := parseUnitSections(content)
	d := defaultDefinition()
	d.Name = name
	d.Description = sec.unit["Description"]

	if t, ok := sec.service["Type"]; ok {
		d.Type = parseServiceType(t)
	}

	d.ExecStart = sec.service["ExecStart"]
	if d.ExecStart == "" {
		return nil, errMissingExecStart(name)
	}
	d.ExecStop = sec.service["ExecStop"]
	d.ExecReload = sec.service["ExecReload"]
	d.WorkingDirectory = sec.service["WorkingDirectory"]
	d.User = sec.service["User"]
	d.Group = sec.service["Group"]

	if envStr, ok := sec.service["Environment"]; ok {
		d.Environment = make(map[string]string)
		for _, tok := range strings.Fields(envStr) {
			tok = strings.Trim(tok, `"'`)
			if k, v, ok := strings.Cut(tok, "="); ok {
				d.Environment[k] = v
			}
		}
	}

	d.Requires = parseUnitList(sec.unit["Requires"])
	d.Wants = parseUnitList(sec.unit["Wants"])
	d.Before = parseUnitList(sec.unit["Before"])
	d.After = parseUnitList(sec.unit["After"])

	// Unlike the native dialect (default on-failure), an absent systemd
	// Restart= means "no", matching systemd.rs's own default.
	d.Restart = RestartNo
	if r, ok := sec.service["Restart"]; ok {
		d.Restart = parseRestartPolicy(r)
	}

	if v, ok := sec.service["RestartSec"]; ok {
		if dur, err := parseDuration(v); err == nil {
			d.RestartSec = dur
		}
	}
	if v, ok := sec.service["TimeoutStartSec"]; ok {
		if dur, err := parseDuration(v); err == nil {
			d.TimeoutStartSec = dur
		}
	}
	if v, ok := sec.service["TimeoutStopSec"]; ok {
		if dur, err := parseDuration(v); err == nil {
			d.TimeoutStopSec = dur
		}
	}

	_, wantedBy := sec.install["WantedBy"]
	_, requiredBy := sec.install["RequiredBy"]
	d.Enabled = wantedBy || requiredBy

	if v, ok := sec.service["StandardOutput"]; ok {
		d.StandardOutput = normalizeStdio(v)
	}
	if v, ok := sec.service["StandardError"]; ok {
		d.StandardError = normalizeStdio(v)
	}

	d.Limits = parseSystemdLimits(sec.service)

	if v, ok := sec.service["WatchdogSec"]; ok {
		if dur, err := parseDuration(v); err == nil {
			d.Watchdog = &WatchdogConfig{Timeout: dur, Action: "restart"}
		}
	}

	d.Template = strings.Contains(name, "@")

	return &d, nil
}

func parseSystemdLimits(service map[string]string) *ResourceLimits {
	var limits ResourceLimits
	has := false

	set := func(dst **uint64, key string) {
		v, ok := service[key]
		if !ok {
			return
		}
		if n, err := parseMemorySize(v); err == nil {
			*dst = &n
			has = true
		}
	}
	set(&limits.MemoryHard, "MemoryLimit")
	if limits.MemoryHard == nil {
		set(&limits.MemoryHard, "MemoryMax")
	}
	set(&limits.MemorySoft, "MemoryHigh")
	set(&limits.FSize, "LimitFSIZE")
	set(&limits.Core, "LimitCORE")
	set(&limits.Stack, "LimitSTACK")

	if v, ok := service["CPUQuota"]; ok {
		if pct, ok := strings.CutSuffix(v, "%"); ok {
			if n, err := parseUintTrim(pct); err == nil {
				n32 := uint32(n)
				limits.CPUPercent = &n32
				has = true
			}
		}
	}
	if v, ok := service["LimitNOFILE"]; ok {
		if n, err := parseUintTrim(v); err == nil {
			limits.NoFile = &n
			has = true
		}
	}
	if v, ok := service["LimitNPROC"]; ok {
		if n, err := parseUintTrim(v); err == nil {
			limits.NProc = &n
			has = true
		}
	}
	if v, ok := service["LimitCPU"]; ok {
		if dur, err := parseDuration(v); err == nil {
			secs := uint64(dur.Seconds())
			limits.CPUTime = &secs
			has = true
		}
	}

	if !has {
		return nil
	}
	return &limits
}
