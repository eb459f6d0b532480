package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/lumen-apothecary/storefront/internal/logging"
)

// Service represents a lifecycle-managed component. Services start in the
// order they were registered and stop in reverse.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type manager struct {
	mu       sync.Mutex
	services []Service
	started  []Service
	log      *logging.Logger
}

func (m *manager) register(svc Service) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.services {
		if existing.Name() == svc.Name() {
			return fmt.Errorf("service %q already registered", svc.Name())
		}
	}
	m.services = append(m.services, svc)
	return nil
}

// start brings services up in order. On failure the ones already running
// are stopped again.
func (m *manager) start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, svc := range m.services {
		if err := svc.Start(ctx); err != nil {
			m.stopLocked(ctx)
			return fmt.Errorf("start %s: %w", svc.Name(), err)
		}
		m.log.WithField("service", svc.Name()).Debug("service started")
		m.started = append(m.started, svc)
	}
	return nil
}

func (m *manager) stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopLocked(ctx)
}

func (m *manager) stopLocked(ctx context.Context) error {
	var firstErr error
	for i := len(m.started) - 1; i >= 0; i-- {
		svc := m.started[i]
		if err := svc.Stop(ctx); err != nil {
			m.log.WithError(err).WithField("service", svc.Name()).Warn("service stop failed")
			if firstErr == nil {
				firstErr = fmt.Errorf("stop %s: %w", svc.Name(), err)
			}
		}
	}
	m.started = nil
	return firstErr
}

// funcService adapts plain start/stop functions to Service.
type funcService struct {
	name  string
	start func(ctx context.Context) error
	stop  func(ctx context.Context) error
}

func (s funcService) Name() string { return s.name }

func (s funcService) Start(ctx context.Context) error {
	if s.start == nil {
		return nil
	}
	return s.start(ctx)
}

func (s funcService) Stop(ctx context.Context) error {
	if s.stop == nil {
		return nil
	}
	return s.stop(ctx)
}
