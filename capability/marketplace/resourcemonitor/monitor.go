// Package resourcemonitor implements the marketplace's pre/post-execution
// resource checks using token-bucket rate limiting per capability.
package resourcemonitor

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"goa.design/ccos/capability"
)

// Violation describes a resource-constraint breach.
type Violation struct {
	CapabilityID string
	Reason       string
	Hard         bool // hard violations fail the call; soft violations only warn
}

func (v Violation) Error() string {
	return fmt.Sprintf("resource violation for %q: %s", v.CapabilityID, v.Reason)
}

// Monitor enforces per-capability concurrency and rate ceilings derived from
// a capability.ResourceConstraints. A nil *Monitor is a valid no-op monitor.
type Monitor struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	inflight map[string]int
	defaults capability.ResourceConstraints
}

// New constructs a Monitor using defaults for any capability without an
// explicit ResourceConstraints override.
func New(defaults capability.ResourceConstraints) *Monitor {
	return &Monitor{
		limiters: make(map[string]*rate.Limiter),
		inflight: make(map[string]int),
		defaults: defaults,
	}
}

// PreExecCheck is called before dispatch. A hard violation (concurrency
// ceiling exceeded) fails the call before the provider is invoked; a soft
// violation (rate ceiling exceeded) is returned for the caller to log but
// does not block execution.
func (m *Monitor) PreExecCheck(_ context.Context, capabilityID string, constraints *capability.ResourceConstraints) (*Violation, error) {
	if m == nil {
		return nil, nil
	}
	cc := m.defaults
	if constraints != nil {
		cc = *constraints
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if cc.MaxConcurrentCalls > 0 && m.inflight[capabilityID] >= cc.MaxConcurrentCalls {
		return nil, &Violation{CapabilityID: capabilityID, Reason: "max concurrent calls exceeded", Hard: true}
	}
	m.inflight[capabilityID]++

	if cc.MaxCallsPerMinute > 0 {
		limiter, ok := m.limiters[capabilityID]
		if !ok {
			limiter = rate.NewLimiter(rate.Limit(float64(cc.MaxCallsPerMinute)/60.0), cc.MaxCallsPerMinute)
			m.limiters[capabilityID] = limiter
		}
		if !limiter.Allow() {
			return &Violation{CapabilityID: capabilityID, Reason: "calls-per-minute ceiling exceeded", Hard: false}, nil
		}
	}
	return nil, nil
}

// PostExecRelease decrements the in-flight counter after a call completes,
// whatever its outcome. It performs no post-exec check and logs nothing;
// resource ceilings are enforced only by PreExecCheck.
func (m *Monitor) PostExecRelease(capabilityID string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inflight[capabilityID] > 0 {
		m.inflight[capabilityID]--
	}
}
