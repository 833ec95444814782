package supervisor

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// The supervisor's lifecycle error kinds, each a distinct type so callers
// can switch on them the way internal/gps's resolver errors do.

// StartTimeoutError reports a service that did not reach Running before
// its TimeoutStartSec elapsed.
type StartTimeoutError struct{ Name string }

func (e *StartTimeoutError) Error() string {
	return "supervisor: " + e.Name + ": start timeout"
}

// RestartRateExceededError reports a service that exceeded the sliding
// restart-rate window and was transitioned to Failed instead of
// Starting.
type RestartRateExceededError struct{ Name string }

func (e *RestartRateExceededError) Error() string {
	return "supervisor: " + e.Name + ": restart rate exceeded"
}

// HealthCheckFailedError reports a service whose health check failed
// Retries times in a row.
type HealthCheckFailedError struct {
	Name     string
	Failures int
}

func (e *HealthCheckFailedError) Error() string {
	return "supervisor: " + e.Name + ": health check failed"
}

// WatchdogExpiredError reports a service that missed its watchdog
// deadline.
type WatchdogExpiredError struct{ Name string }

func (e *WatchdogExpiredError) Error() string {
	return "supervisor: " + e.Name + ": watchdog expired"
}

func errMissingExecStart(name string) error {
	return errors.Errorf("supervisor: %s: missing ExecStart", name)
}

func parseUintTrim(s string) (uint64, error) {
	return strconv.ParseUint(strings.TrimSpace(s), 10, 64)
}
