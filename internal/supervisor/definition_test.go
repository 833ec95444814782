package supervisor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInstantiateSubstitutesPlaceholder(t *testing.T) {
	def := &ServiceDefinition{
		Name:       "worker@",
		ExecStart:  "/usr/bin/worker --shard %i",
		ExecStop:   "/usr/bin/worker --stop %i",
		Template:   true,
		Environment: map[string]string{"SHARD": "%i"},
	}

	inst := def.Instantiate("3")
	assert.Equal(t, "worker@3", inst.Name)
	assert.False(t, inst.Template)
	assert.Equal(t, "/usr/bin/worker --shard 3", inst.ExecStart)
	assert.Equal(t, "/usr/bin/worker --stop 3", inst.ExecStop)
}

func TestIsTemplateDetectsAtSign(t *testing.T) {
	assert.True(t, (&ServiceDefinition{Name: "worker@"}).IsTemplate())
	assert.False(t, (&ServiceDefinition{Name: "worker"}).IsTemplate())
}

func TestRestartPolicyShouldRestart(t *testing.T) {
	cases := []struct {
		policy   RestartPolicy
		code     int
		abnormal bool
		want     bool
	}{
		{RestartNo, 1, false, false},
		{RestartAlways, 0, false, true},
		{RestartOnSuccess, 0, false, true},
		{RestartOnSuccess, 1, false, false},
		{RestartOnFailure, 1, false, true},
		{RestartOnFailure, 0, false, false},
		{RestartOnAbnormal, 0, true, true},
		{RestartOnAbnormal, 1, false, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, c.policy.shouldRestart(c.code, c.abnormal))
	}
}
