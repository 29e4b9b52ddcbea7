// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

package eventprocessor

import (
	"context"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
)

// HealthStatusType represents the overall health status.
type HealthStatusType string

const (
	HealthStatusHealthy   HealthStatusType = "healthy"
	HealthStatusDegraded  HealthStatusType = "degraded"
	HealthStatusUnhealthy HealthStatusType = "unhealthy"
)

// ComponentHealth represents the health status of a single component.
type ComponentHealth struct {
	Healthy   bool                   `json:"healthy"`
	Degraded  bool                   `json:"degraded,omitempty"`
	Name      string                 `json:"name"`
	Message   string                 `json:"message,omitempty"`
	Error     string                 `json:"error,omitempty"`
	LastCheck time.Time              `json:"last_check"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// HealthCheckable is implemented by components that support health checking.
type HealthCheckable interface {
	HealthCheck(ctx context.Context) ComponentHealth
}

// HealthCheckFunc adapts a function to HealthCheckable.
type HealthCheckFunc func(ctx context.Context) ComponentHealth

// HealthCheck implements HealthCheckable.
func (f HealthCheckFunc) HealthCheck(ctx context.Context) ComponentHealth { return f(ctx) }

// OverallHealth represents the aggregated health status of all components.
type OverallHealth struct {
	Healthy    bool                       `json:"healthy"`
	Status     HealthStatusType           `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Components map[string]ComponentHealth `json:"components"`
}

// HealthChecker runs the checks of registered components concurrently.
type HealthChecker struct {
	timeout    time.Duration
	mu         sync.RWMutex
	components map[string]HealthCheckable
}

// NewHealthChecker creates a health checker; each check is bounded by timeout.
func NewHealthChecker(timeout time.Duration) *HealthChecker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HealthChecker{
		timeout:    timeout,
		components: make(map[string]HealthCheckable),
	}
}

// RegisterComponent registers a component for health checking.
func (h *HealthChecker) RegisterComponent(name string, component HealthCheckable) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.components[name] = component
}

// CheckAll performs health checks on all registered components.
func (h *HealthChecker) CheckAll(ctx context.Context) OverallHealth {
	h.mu.RLock()
	components := make(map[string]HealthCheckable, len(h.components))
	for name, comp := range h.components {
		components[name] = comp
	}
	h.mu.RUnlock()

	overall := OverallHealth{
		Healthy:    true,
		Status:     HealthStatusHealthy,
		Timestamp:  time.Now(),
		Components: make(map[string]ComponentHealth, len(components)),
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	for name, component := range components {
		wg.Add(1)
		go func(name string, comp HealthCheckable) {
			defer wg.Done()
			result := h.check(ctx, name, comp)

			mu.Lock()
			defer mu.Unlock()
			overall.Components[name] = result
			if !result.Healthy {
				overall.Healthy = false
				overall.Status = HealthStatusUnhealthy
			} else if result.Degraded && overall.Status == HealthStatusHealthy {
				overall.Status = HealthStatusDegraded
			}
		}(name, component)
	}
	wg.Wait()
	return overall
}

func (h *HealthChecker) check(ctx context.Context, name string, comp HealthCheckable) ComponentHealth {
	checkCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	resultCh := make(chan ComponentHealth, 1)
	go func() {
		result := comp.HealthCheck(checkCtx)
		result.Name = name
		result.LastCheck = time.Now()
		resultCh <- result
	}()

	select {
	case result := <-resultCh:
		return result
	case <-checkCtx.Done():
		return ComponentHealth{
			Name:      name,
			Error:     "health check timeout",
			LastCheck: time.Now(),
		}
	}
}

// HealthCheck implements HealthCheckable. An open breaker marks the
// publisher degraded: completion events are being dropped.
func (p *Publisher) HealthCheck(ctx context.Context) ComponentHealth {
	health := ComponentHealth{Name: "publisher", LastCheck: time.Now()}

	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		health.Error = "publisher is closed"
		return health
	}

	health.Healthy = true
	if p.circuitBreaker != nil {
		state := p.circuitBreaker.State()
		health.Details = map[string]interface{}{"circuit_breaker": state.String()}
		if state != gobreaker.StateClosed {
			health.Degraded = true
			health.Message = "circuit breaker " + state.String()
		}
	}
	return health
}
