package common

import (
	"errors"
	"fmt"
)

// Sentinel errors identifying each failure class. Typed errors below wrap one of these so
// callers can branch with errors.Is without caring about the concrete type.
var (
	// ErrConstruction marks invalid geometric parameters passed to a geometry builder.
	ErrConstruction = errors.New("invalid construction parameter")

	// ErrDeviceInit marks a fatal failure while acquiring a device or resolving its kernels.
	ErrDeviceInit = errors.New("device initialization failed")

	// ErrDispatch marks a failure while validating, encoding or executing a compute dispatch.
	ErrDispatch = errors.New("dispatch failed")

	// ErrMeshBusy is reported when a deform is requested on a mesh that already has one in flight.
	ErrMeshBusy = errors.New("mesh has a dispatch in flight")

	// ErrReleased is reported when a released device, buffer or dispatcher is used.
	ErrReleased = errors.New("resource already released")
)

// ConstructionError describes a rejected geometry parameter.
type ConstructionError struct {
	// Param is the name of the offending parameter (e.g. "radius").
	Param string
	// Value is the rejected value.
	Value any
	// Reason explains the constraint that was violated.
	Reason string
}

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("geometry: %s=%v: %s", e.Param, e.Value, e.Reason)
}

func (e *ConstructionError) Unwrap() error {
	return ErrConstruction
}

// NewConstructionError creates a ConstructionError for the given parameter.
//
// Parameters:
//   - param: the parameter name
//   - value: the rejected value
//   - reason: the violated constraint
//
// Returns:
//   - error: the constructed *ConstructionError
func NewConstructionError(param string, value any, reason string) error {
	return &ConstructionError{Param: param, Value: value, Reason: reason}
}

// DeviceInitError describes a fatal setup failure. A dispatcher that fails with this
// error is never returned to the caller.
type DeviceInitError struct {
	// Stage names the setup step that failed (e.g. "adapter", "kernel deformNormal").
	Stage string
	// Err is the underlying cause.
	Err error
}

func (e *DeviceInitError) Error() string {
	return fmt.Sprintf("device init (%s): %v", e.Stage, e.Err)
}

func (e *DeviceInitError) Unwrap() []error {
	return []error{ErrDeviceInit, e.Err}
}

// NewDeviceInitError wraps err as a DeviceInitError for the given setup stage.
//
// Parameters:
//   - stage: the setup step that failed
//   - err: the underlying cause
//
// Returns:
//   - error: the constructed *DeviceInitError
func NewDeviceInitError(stage string, err error) error {
	return &DeviceInitError{Stage: stage, Err: err}
}

// DispatchError describes a failed deform call. Pass names the compute pass that failed,
// or is empty when validation failed before anything was submitted.
type DispatchError struct {
	Pass string
	Err  error
}

func (e *DispatchError) Error() string {
	if e.Pass == "" {
		return fmt.Sprintf("dispatch: %v", e.Err)
	}
	return fmt.Sprintf("dispatch (%s): %v", e.Pass, e.Err)
}

func (e *DispatchError) Unwrap() []error {
	return []error{ErrDispatch, e.Err}
}

// NewDispatchError wraps err as a DispatchError for the given pass.
//
// Parameters:
//   - pass: the pass label, or "" for pre-submission validation failures
//   - err: the underlying cause
//
// Returns:
//   - error: the constructed *DispatchError
func NewDispatchError(pass string, err error) error {
	return &DispatchError{Pass: pass, Err: err}
}
