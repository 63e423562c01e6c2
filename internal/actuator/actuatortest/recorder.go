// Package actuatortest provides a recording actuator.ServiceCaller for tests.
package actuatortest

import (
	"context"
	"sync"

	"github.com/saaga0h/jeeves-climate/internal/actuator"
)

// Recorder records every service call. OnCall, when set, runs after a call
// is recorded and can simulate the actuator reacting to it.
type Recorder struct {
	mu    sync.Mutex
	calls []actuator.ServiceCall

	OnCall func(call actuator.ServiceCall)

	// Err, when set, is returned by every call
	Err error
}

// Call implements actuator.ServiceCaller
func (r *Recorder) Call(ctx context.Context, call actuator.ServiceCall) error {
	r.mu.Lock()
	r.calls = append(r.calls, call)
	hook := r.OnCall
	err := r.Err
	r.mu.Unlock()

	if err != nil {
		return err
	}
	if hook != nil {
		hook(call)
	}
	return nil
}

// Calls returns a copy of the recorded calls
func (r *Recorder) Calls() []actuator.ServiceCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]actuator.ServiceCall, len(r.calls))
	copy(out, r.calls)
	return out
}

// Services returns the recorded calls as "domain.service" strings
func (r *Recorder) Services() []string {
	var out []string
	for _, c := range r.Calls() {
		out = append(out, c.String())
	}
	return out
}

// Reset forgets the recorded calls
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}
