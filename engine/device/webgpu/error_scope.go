package webgpu

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/Carmen-Shannon/oxy-geosphere/common"
	"github.com/cogentcore/webgpu/wgpu"
)

// ErrDeviceReported is wrapped by every error the device raises inside a submission's error scopes.
var ErrDeviceReported = errors.New("webgpu: device reported an error")

// scopeFilters are the error scopes pushed around every submission, outermost first.
var scopeFilters = []wgpu.ErrorFilter{wgpu.ErrorFilterOutOfMemory, wgpu.ErrorFilterValidation}

// scopeErrors collects the errors popped from the error scopes of one submission.
type scopeErrors struct {
	mu     sync.Mutex
	labels []string
	errs   []error
}

func newScopeErrors(labels []string) *scopeErrors {
	return &scopeErrors{labels: labels}
}

// record is the pop callback of every scope. ErrorTypeNoError is ignored.
func (s *scopeErrors) record(typ wgpu.ErrorType, message string) {
	if typ == wgpu.ErrorTypeNoError {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, fmt.Errorf("%w: %v: %s", ErrDeviceReported, typ, message))
}

// err returns the collected errors as a *common.DispatchError naming the submitted passes,
// or nil if the device reported nothing.
func (s *scopeErrors) err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.errs) == 0 {
		return nil
	}
	return common.NewDispatchError(strings.Join(s.labels, ", "), errors.Join(s.errs...))
}

// pushScopes opens the submission's error scopes. The caller holds mu.
func (d *gpuDevice) pushScopes() {
	for _, filter := range scopeFilters {
		d.device.PushErrorScope(filter)
	}
}

// popScopes closes the scopes opened by pushScopes, innermost first, into s. The caller holds mu.
func (d *gpuDevice) popScopes(s *scopeErrors) {
	for range scopeFilters {
		d.device.PopErrorScope(s.record)
	}
}
