package system

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Manager starts registered services in registration order and stops them in
// reverse order.
type Manager struct {
	mu       sync.Mutex
	services []Service
	names    map[string]bool
	started  []Service
}

// NewManager returns an empty manager.
func NewManager() *Manager {
	return &Manager{names: make(map[string]bool)}
}

// Register adds a service. Names must be unique and registration is only
// allowed before Start.
func (m *Manager) Register(svc Service) error {
	if svc == nil {
		return errors.New("service is nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.started) > 0 {
		return fmt.Errorf("cannot register %s: manager already started", svc.Name())
	}
	if m.names[svc.Name()] {
		return fmt.Errorf("service %s already registered", svc.Name())
	}
	m.names[svc.Name()] = true
	m.services = append(m.services, svc)
	return nil
}

// Start starts every service. If one fails, the ones already started are
// stopped and the error is returned.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, svc := range m.services {
		if err := svc.Start(ctx); err != nil {
			m.stopLocked(ctx)
			return fmt.Errorf("start %s: %w", svc.Name(), err)
		}
		m.started = append(m.started, svc)
	}
	return nil
}

// Stop stops started services in reverse order and joins their errors.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopLocked(ctx)
}

func (m *Manager) stopLocked(ctx context.Context) error {
	var errs []error
	for i := len(m.started) - 1; i >= 0; i-- {
		svc := m.started[i]
		if err := svc.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", svc.Name(), err))
		}
	}
	m.started = nil
	return errors.Join(errs...)
}

// Names lists registered services in start order.
func (m *Manager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.services))
	for _, svc := range m.services {
		names = append(names, svc.Name())
	}
	return names
}

// NoopService satisfies Service for components without a lifecycle.
type NoopService struct {
	ServiceName string
}

func (n NoopService) Name() string                { return n.ServiceName }
func (n NoopService) Start(context.Context) error { return nil }
func (n NoopService) Stop(context.Context) error  { return nil }
