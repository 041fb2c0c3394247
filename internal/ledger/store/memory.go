package store

import (
	"context"
	"sync"

	"tradecore/internal/schema"
)

// Memory is an in-process Store for backtests and tests.
type Memory struct {
	mu     sync.RWMutex
	states map[string]State
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{states: make(map[string]State)}
}

func (m *Memory) Save(ctx context.Context, key string, state State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := state
	cp.Positions = append([]schema.Position(nil), state.Positions...)
	m.states[key] = cp
	return nil
}

func (m *Memory) Load(ctx context.Context, key string) (State, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.states[key]
	if !ok {
		return State{}, false, nil
	}
	cp := state
	cp.Positions = append([]schema.Position(nil), state.Positions...)
	return cp, true, nil
}

var _ Store = (*Memory)(nil)
