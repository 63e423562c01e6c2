// Package sensorstest provides an in-memory sensors.Reader for tests.
package sensorstest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/saaga0h/jeeves-climate/internal/sensors"
)

// Memory is a mutable map of entity states
type Memory struct {
	mu     sync.Mutex
	states map[string]*sensors.EntityState
}

// New creates an empty reader
func New() *Memory {
	return &Memory{states: make(map[string]*sensors.EntityState)}
}

// Set stores a state with no attributes
func (m *Memory) Set(entityID, state string) {
	m.SetWithAttributes(entityID, state, nil)
}

// SetWithAttributes stores a state and its attributes
func (m *Memory) SetWithAttributes(entityID, state string, attrs map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[entityID] = &sensors.EntityState{
		EntityID:   entityID,
		State:      state,
		Attributes: attrs,
		UpdatedAt:  time.Now(),
	}
}

// Delete forgets an entity
func (m *Memory) Delete(entityID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, entityID)
}

// State implements sensors.Reader
func (m *Memory) State(ctx context.Context, entityID string) (*sensors.EntityState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[entityID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", entityID, sensors.ErrNotFound)
	}
	cp := *st
	return &cp, nil
}
