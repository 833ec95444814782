// manager.go implements the supervisor's runtime: one goroutine per
// service instance communicating by channels, an event loop per service
// owning that service's exclusive state machine, and per-service process
// reaping (see serviceTask.handleExit).
package supervisor

import (
	"context"
	"os/exec"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type commandKind int

const (
	cmdStart commandKind = iota
	cmdStop
	cmdReload
)

type command struct {
	kind commandKind
	done chan error
}

// serviceTask is the private state of one service's goroutine. inst is
// mutated under mu by this task's own loop goroutine, and by
// Manager.Ping, which sets LastWatchdogAt from the caller's goroutine;
// other goroutines (Status, dependenciesReady) take a read lock to
// observe it.
type serviceTask struct {
	def    *ServiceDefinition
	mu     sync.RWMutex
	inst   *Instance
	log    *logrus.Entry
	cmds   chan command
	exited chan processExit
	mgr    *Manager
	proc   *exec.Cmd
}

func (t *serviceTask) readInstance(fn func(*Instance)) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	fn(t.inst)
}

func (t *serviceTask) mutateInstance(fn func(*Instance)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(t.inst)
}

type processExit struct {
	code     int
	abnormal bool
}

// Manager owns every service's definition and runtime task, and
// publishes their resolved start order.
type Manager struct {
	log *logrus.Logger

	mu    sync.RWMutex
	graph *graph
	tasks map[string]*serviceTask

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager builds a Manager from a set of service definitions,
// rejecting unresolvable dependency cycles up front.
func NewManager(defs []*ServiceDefinition, log *logrus.Logger) (*Manager, error) {
	if log == nil {
		log = logrus.New()
	}
	g := buildGraph(defs)
	if _, err := g.order(); err != nil {
		return nil, err
	}

	m := &Manager{log: log, graph: g, tasks: make(map[string]*serviceTask, len(defs))}
	m.ctx, m.cancel = context.WithCancel(context.Background())
	for _, d := range defs {
		m.tasks[d.Name] = &serviceTask{
			def:    d,
			inst:   newInstance(d.Name),
			log:    log.WithField("service", d.Name),
			cmds:   make(chan command, 4),
			exited: make(chan processExit, 1),
			mgr:    m,
		}
	}
	return m, nil
}

// Run starts the event loop for every service goroutine and brings up
// every enabled, non-template service in topological order. It blocks
// until ctx is cancelled, then stops every running service.
func (m *Manager) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		m.cancel()
	}()

	m.mu.RLock()
	for _, t := range m.tasks {
		t := t
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			t.loop(m.ctx)
		}()
	}
	m.mu.RUnlock()

	order, err := m.graph.order()
	if err != nil {
		return err
	}
	for _, name := range order {
		t := m.tasks[name]
		if t.def.IsTemplate() || !t.def.Enabled {
			continue
		}
		if !m.dependenciesReady(name) {
			t.log.Warn("required dependency failed to start, skipping")
			continue
		}
		if err := m.StartService(name); err != nil {
			t.log.WithError(err).Warn("service failed to start")
		}
	}

	<-m.ctx.Done()
	m.wg.Wait()
	return nil
}

// dependenciesReady reports whether every Requires-edge of name is
// currently Running. A start-time failure propagates to services that
// required the failed one: they are skipped rather than started.
func (m *Manager) dependenciesReady(name string) bool {
	for dep := range m.graph.must[name] {
		t, known := m.tasks[dep]
		if !known || !t.def.Enabled {
			continue
		}
		ready := true
		t.readInstance(func(inst *Instance) {
			if inst.State != Running {
				ready = false
			}
		})
		if !ready {
			return false
		}
	}
	return true
}

// StartService sends a start command to name's task and waits for the
// initial transition attempt to complete.
func (m *Manager) StartService(name string) error {
	return m.send(name, cmdStart)
}

// StopService sends a stop command to name's task.
func (m *Manager) StopService(name string) error {
	return m.send(name, cmdStop)
}

// ReloadService sends a reload command to name's task.
func (m *Manager) ReloadService(name string) error {
	return m.send(name, cmdReload)
}

func (m *Manager) send(name string, kind commandKind) error {
	m.mu.RLock()
	t, ok := m.tasks[name]
	m.mu.RUnlock()
	if !ok {
		return &ServiceNotFoundError{Name: name}
	}
	done := make(chan error, 1)
	select {
	case t.cmds <- command{kind: kind, done: done}:
	case <-m.ctx.Done():
		return m.ctx.Err()
	}
	select {
	case err := <-done:
		return err
	case <-m.ctx.Done():
		return m.ctx.Err()
	}
}

// Status returns a point-in-time snapshot of name's runtime state.
func (m *Manager) Status(name string) (Snapshot, bool) {
	m.mu.RLock()
	t, ok := m.tasks[name]
	m.mu.RUnlock()
	if !ok {
		return Snapshot{}, false
	}
	var snap Snapshot
	t.readInstance(func(inst *Instance) {
		snap = inst.snapshot(time.Now())
	})
	return snap, true
}

// List returns a snapshot of every known service, ordered by start
// order.
func (m *Manager) List() []Snapshot {
	order, err := m.graph.order()
	if err != nil {
		for n := range m.tasks {
			order = append(order, n)
		}
	}
	out := make([]Snapshot, 0, len(order))
	for _, name := range order {
		if snap, ok := m.Status(name); ok {
			out = append(out, snap)
		}
	}
	return out
}

// ServiceNotFoundError reports an operation against an undeclared
// service name.
type ServiceNotFoundError struct{ Name string }

func (e *ServiceNotFoundError) Error() string { return "supervisor: unknown service " + e.Name }
