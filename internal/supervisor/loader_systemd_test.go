package supervisor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSystemdSimpleUnit(t *testing.T) {
	content := `
[Unit]
Description=My Test Service
After=network.target

[Service]
Type=simple
ExecStart=/usr/bin/myservice
Restart=on-failure

[Install]
WantedBy=multi-user.target
`
	def, err := LoadSystemd("myservice", content)
	require.NoError(t, err)
	assert.Equal(t, "myservice", def.Name)
	assert.Equal(t, "My Test Service", def.Description)
	assert.Equal(t, TypeSimple, def.Type)
	assert.Equal(t, "/usr/bin/myservice", def.ExecStart)
	assert.Equal(t, RestartOnFailure, def.Restart)
	assert.Contains(t, def.After, "network.target")
	assert.True(t, def.Enabled)
}

func TestLoadSystemdComplexUnit(t *testing.T) {
	content := `
[Unit]
Description=Complex Service
Requires=database.service
After=database.service network.target

[Service]
Type=notify
ExecStart=/usr/bin/complex --config /etc/complex.conf
ExecStop=/usr/bin/complex --stop
WorkingDirectory=/var/lib/complex
User=complex
Group=complex
Environment="KEY1=value1" "KEY2=value2"
Restart=always
RestartSec=5
TimeoutStartSec=60
MemoryLimit=512M
CPUQuota=50%
LimitNOFILE=4096
WatchdogSec=30

[Install]
WantedBy=multi-user.target
`
	def, err := LoadSystemd("complex", content)
	require.NoError(t, err)
	assert.Equal(t, TypeNotify, def.Type)
	assert.Equal(t, "/var/lib/complex", def.WorkingDirectory)
	assert.Equal(t, "complex", def.User)
	assert.Equal(t, RestartAlways, def.Restart)
	assert.Equal(t, 5*time.Second, def.RestartSec)
	assert.Equal(t, 60*time.Second, def.TimeoutStartSec)
	assert.Equal(t, "value1", def.Environment["KEY1"])
	assert.Equal(t, "value2", def.Environment["KEY2"])

	require.NotNil(t, def.Limits)
	assert.Equal(t, uint64(512*1024*1024), *def.Limits.MemoryHard)
	assert.Equal(t, uint32(50), *def.Limits.CPUPercent)
	assert.Equal(t, uint64(4096), *def.Limits.NoFile)

	require.NotNil(t, def.Watchdog)
	assert.Equal(t, 30*time.Second, def.Watchdog.Timeout)
}

func TestLoadSystemdRejectsMissingExecStart(t *testing.T) {
	_, err := LoadSystemd("bad", "[Service]\nType=simple\n")
	assert.Error(t, err)
}

func TestParseDurationSuffixes(t *testing.T) {
	cases := map[string]time.Duration{
		"30":    30 * time.Second,
		"30s":   30 * time.Second,
		"5min":  5 * time.Minute,
		"1h":    time.Hour,
		"100ms": 100 * time.Millisecond,
	}
	for in, want := range cases {
		got, err := parseDuration(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestParseMemorySizeSuffixes(t *testing.T) {
	cases := map[string]uint64{
		"1024": 1024,
		"1K":   1024,
		"1M":   1024 * 1024,
		"1G":   1024 * 1024 * 1024,
	}
	for in, want := range cases {
		got, err := parseMemorySize(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}
