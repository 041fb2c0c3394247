// Package manager runs strategy instances in isolation. Each instance owns
// a bounded event queue drained by its own goroutine, so a slow or broken
// strategy can never stall the bus or its peers.
package manager

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"tradecore/internal/obs"
	"tradecore/internal/schema"
	"tradecore/internal/strategy"
)

// Status is a strategy instance's lifecycle state.
type Status uint16

const (
	StatusInitializing Status = iota
	StatusRunning
	StatusPaused
	StatusStopped
	StatusError
	StatusCompleted
)

func (s Status) String() string {
	switch s {
	case StatusInitializing:
		return "INITIALIZING"
	case StatusRunning:
		return "RUNNING"
	case StatusPaused:
		return "PAUSED"
	case StatusStopped:
		return "STOPPED"
	case StatusError:
		return "ERROR"
	case StatusCompleted:
		return "COMPLETED"
	default:
		return "UNKNOWN"
	}
}

// terminal instances receive no further events.
func (s Status) terminal() bool {
	return s == StatusStopped || s == StatusError || s == StatusCompleted
}

var (
	ErrTooManyStrategies = errors.New("maximum concurrent strategies reached")
	ErrUnknownInstance   = errors.New("unknown strategy instance")
	ErrBadTransition     = errors.New("invalid status transition")
)

// Config bounds the manager. Zero values take defaults.
type Config struct {
	MaxConcurrent     int           // concurrently scheduled instances
	MaxErrors         int           // consecutive errors before quarantine
	QueueCapacity     int           // per-instance event queue
	HeartbeatInterval time.Duration // health monitor period
	StalenessTimeout  time.Duration // heartbeat age before ERROR
	MemoryLimitMB     uint64        // logged, not enforced
	GoroutineLimit    int           // logged, not enforced
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 10
	}
	if c.MaxErrors <= 0 {
		c.MaxErrors = 5
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = 1024
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.StalenessTimeout <= 0 {
		c.StalenessTimeout = 5 * time.Minute
	}
	if c.MemoryLimitMB == 0 {
		c.MemoryLimitMB = 512
	}
	if c.GoroutineLimit <= 0 {
		c.GoroutineLimit = 10000
	}
	return c
}

// Instance is one scheduled strategy and its bookkeeping.
type Instance struct {
	ID        string
	Name      string
	CreatedAt time.Time

	strat       strategy.Strategy
	queue       chan schema.Event
	queueClosed bool
	status      Status
	errors      int
	heartbeat   time.Time
}

// InstanceInfo is a point-in-time snapshot of an instance for callers.
type InstanceInfo struct {
	ID          string
	Name        string
	Description string
	Status      Status
	CreatedAt   time.Time
	Heartbeat   time.Time
	Errors      int
	QueueDepth  int
}

// Manager schedules strategy instances.
type Manager struct {
	cfg  Config
	emit strategy.SignalSink

	mu        sync.Mutex
	instances map[string]*Instance

	wg      sync.WaitGroup
	monStop chan struct{}
}

// New creates a manager. emit receives every signal the strategies produce.
func New(cfg Config, emit strategy.SignalSink) *Manager {
	return &Manager{
		cfg:       cfg.withDefaults(),
		emit:      emit,
		instances: make(map[string]*Instance),
		monStop:   make(chan struct{}),
	}
}

// AddStrategy instantiates a registered strategy and schedules it. The
// returned id tags the instance's signals and fills.
func (m *Manager) AddStrategy(ctx context.Context, name string, params strategy.Params) (string, error) {
	m.mu.Lock()
	active := 0
	for _, inst := range m.instances {
		if !inst.status.terminal() {
			active++
		}
	}
	if active >= m.cfg.MaxConcurrent {
		m.mu.Unlock()
		return "", ErrTooManyStrategies
	}

	id := name + "_" + uuid.NewString()[:8]
	inst := &Instance{
		ID:        id,
		Name:      name,
		CreatedAt: time.Now(),
		queue:     make(chan schema.Event, m.cfg.QueueCapacity),
		status:    StatusInitializing,
		heartbeat: time.Now(),
	}
	m.instances[id] = inst
	m.mu.Unlock()

	strat, err := strategy.New(name, id, params, m.emit)
	if err != nil {
		m.mu.Lock()
		inst.status = StatusError
		m.mu.Unlock()
		return "", errors.Wrap(err, "initialize strategy "+name)
	}

	m.mu.Lock()
	inst.strat = strat
	inst.status = StatusRunning
	m.mu.Unlock()

	m.wg.Add(1)
	go m.run(ctx, inst)

	logs.Infof("strategy %s started: %s", id, strat.Description())
	return id, nil
}

// RemoveStrategy stops an instance and releases its slot. Terminal
// instances keep their status; only the queue is released.
func (m *Manager) RemoveStrategy(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	inst, ok := m.instances[id]
	if !ok {
		return ErrUnknownInstance
	}
	if !inst.queueClosed {
		close(inst.queue)
		inst.queueClosed = true
	}
	if !inst.status.terminal() {
		inst.status = StatusStopped
	}
	return nil
}

// Pause excludes a running instance from routing without stopping it.
func (m *Manager) Pause(id string) error {
	return m.transition(id, StatusRunning, StatusPaused)
}

// Resume returns a paused instance to routing.
func (m *Manager) Resume(id string) error {
	return m.transition(id, StatusPaused, StatusRunning)
}

func (m *Manager) transition(id string, from, to Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	inst, ok := m.instances[id]
	if !ok {
		return ErrUnknownInstance
	}
	if inst.status != from {
		return errors.Wrap(ErrBadTransition, inst.status.String()+" to "+to.String())
	}
	inst.status = to
	return nil
}

// Status reports one instance.
func (m *Manager) Status(id string) (InstanceInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inst, ok := m.instances[id]
	if !ok {
		return InstanceInfo{}, ErrUnknownInstance
	}
	return m.infoLocked(inst), nil
}

// Statuses reports every instance, keyed by id.
func (m *Manager) Statuses() map[string]InstanceInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]InstanceInfo, len(m.instances))
	for id, inst := range m.instances {
		out[id] = m.infoLocked(inst)
	}
	return out
}

func (m *Manager) infoLocked(inst *Instance) InstanceInfo {
	info := InstanceInfo{
		ID:         inst.ID,
		Name:       inst.Name,
		Status:     inst.status,
		CreatedAt:  inst.CreatedAt,
		Heartbeat:  inst.heartbeat,
		Errors:     inst.errors,
		QueueDepth: len(inst.queue),
	}
	if inst.strat != nil {
		info.Description = inst.strat.Description()
	}
	return info
}

// StrategyState returns the extended state of the instance's strategy when
// it reports one. Satisfies the signal adapter's state lookup.
func (m *Manager) StrategyState(id string) (strategy.State, bool) {
	m.mu.Lock()
	var strat strategy.Strategy
	if inst, ok := m.instances[id]; ok {
		strat = inst.strat
	}
	m.mu.Unlock()

	if strat == nil {
		return strategy.State{}, false
	}
	reporter, ok := strat.(strategy.StateReporter)
	if !ok {
		return strategy.State{}, false
	}
	return reporter.StrategyState(), true
}

// RouteMarketEvent enqueues a tick to every RUNNING instance. Delivery is
// non-blocking: a full queue drops the tick for that instance only.
func (m *Manager) RouteMarketEvent(_ context.Context, event schema.Event) error {
	tick, ok := event.(schema.MarketTick)
	if !ok {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, inst := range m.instances {
		if inst.status != StatusRunning {
			continue
		}
		select {
		case inst.queue <- tick:
		default:
			obs.TicksDropped.WithLabelValues(inst.ID).Inc()
			logs.Warnf("strategy %s queue full, tick for %s dropped", inst.ID, tick.Instrument)
		}
		obs.QueueDepth.WithLabelValues(inst.ID).Set(float64(len(inst.queue)))
	}
	return nil
}

// RouteFillEvent enqueues a fill to the instance that owns the order.
func (m *Manager) RouteFillEvent(_ context.Context, event schema.Event) error {
	fill, ok := event.(schema.Fill)
	if !ok || fill.StrategyID == "" {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.instances[fill.StrategyID]
	if !ok || inst.status != StatusRunning {
		return nil
	}
	select {
	case inst.queue <- fill:
	default:
		logs.Warnf("strategy %s queue full, fill for order %s dropped", inst.ID, fill.OrderID)
	}
	return nil
}

// run is an instance's worker. It refreshes the heartbeat on every drained
// event and on an idle tick, so a strategy stuck inside a handler goes
// stale and the health monitor quarantines it.
func (m *Manager) run(ctx context.Context, inst *Instance) {
	defer m.wg.Done()

	idle := time.NewTicker(m.cfg.HeartbeatInterval)
	defer idle.Stop()

	for {
		select {
		case event, ok := <-inst.queue:
			if !ok {
				return
			}
			m.beat(inst)
			if err := m.deliver(ctx, inst, event); err != nil {
				if m.recordError(inst, err) {
					return
				}
			}
		case <-idle.C:
			m.beat(inst)
		case <-ctx.Done():
			return
		}
	}
}

// deliver invokes the strategy with panic recovery.
func (m *Manager) deliver(ctx context.Context, inst *Instance, event schema.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("strategy panic: %v", r)
		}
	}()

	switch e := event.(type) {
	case schema.MarketTick:
		return inst.strat.HandleMarketEvent(ctx, e)
	case schema.Fill:
		return inst.strat.HandleFillEvent(ctx, e)
	default:
		return nil
	}
}

func (m *Manager) beat(inst *Instance) {
	m.mu.Lock()
	inst.heartbeat = time.Now()
	m.mu.Unlock()
}

// recordError counts a delivery failure and reports whether the instance
// crossed the quarantine threshold.
func (m *Manager) recordError(inst *Instance, err error) bool {
	obs.StrategyErrors.WithLabelValues(inst.ID).Inc()
	logs.Errorf("strategy %s handler error (%d/%d): %+v", inst.ID, inst.errors+1, m.cfg.MaxErrors, err)

	m.mu.Lock()
	defer m.mu.Unlock()
	inst.errors++
	if inst.errors >= m.cfg.MaxErrors && inst.status != StatusError {
		inst.status = StatusError
		obs.QuarantinedStrategies.Inc()
		logs.Errorf("strategy %s quarantined after %d errors", inst.ID, inst.errors)
		return true
	}
	return false
}

// StartHealthMonitor launches the periodic staleness and resource check.
func (m *Manager) StartHealthMonitor(ctx context.Context) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.cfg.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.checkHealth()
			case <-m.monStop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (m *Manager) checkHealth() {
	now := time.Now()

	m.mu.Lock()
	for _, inst := range m.instances {
		if inst.status != StatusRunning {
			continue
		}
		if age := now.Sub(inst.heartbeat); age > m.cfg.StalenessTimeout {
			inst.status = StatusError
			obs.QuarantinedStrategies.Inc()
			logs.Errorf("strategy %s heartbeat stale for %s, marked ERROR", inst.ID, age)
		}
	}
	m.mu.Unlock()

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	heapMB := ms.HeapAlloc / 1024 / 1024
	goroutines := runtime.NumGoroutine()
	logs.Debugf("process health: heap %dMB, %d goroutines", heapMB, goroutines)
	if heapMB > m.cfg.MemoryLimitMB {
		logs.Warnf("heap %dMB exceeds limit %dMB", heapMB, m.cfg.MemoryLimitMB)
	}
	if goroutines > m.cfg.GoroutineLimit {
		logs.Warnf("%d goroutines exceeds limit %d", goroutines, m.cfg.GoroutineLimit)
	}
}

// Stop stops every instance and waits for the workers to drain.
func (m *Manager) Stop() {
	close(m.monStop)

	m.mu.Lock()
	for _, inst := range m.instances {
		if !inst.queueClosed {
			close(inst.queue)
			inst.queueClosed = true
		}
		if !inst.status.terminal() {
			inst.status = StatusStopped
		}
	}
	m.mu.Unlock()

	m.wg.Wait()
	logs.Info("strategy manager stopped")
}
