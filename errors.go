// errors.go

// Copyright (C) 2018  Steve Merrony

// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.

// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package autopilot

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"
)

var (
	// ErrInvalidState is wrapped by every StateError.
	ErrInvalidState = errors.New("Operation not allowed in the current state")
	// ErrNoMission is returned when an operation needs a loaded mission.
	ErrNoMission = errors.New("No mission loaded")
	// ErrNotAvailable is returned by Start when supervisory control is not enabled on the vehicle.
	ErrNotAvailable = errors.New("Virtual stick control is not available")
	// ErrNotRunning is returned when the autopilot loop has exited.
	ErrNotRunning = errors.New("Autopilot is not running")
	// ErrCancelled is returned to a caller whose request was overtaken by Stop.
	ErrCancelled = errors.New("Cancelled by mission stop")
)

// Precondition codes reported by Start.
const (
	GPSSignalWeak     = "GPSSignalWeak"
	AircraftLanding   = "AircraftLanding"
	AircraftGoingHome = "AircraftGoingHome"
)

// PreconditionError is returned by Start when the aircraft is not fit to begin a mission.
type PreconditionError struct {
	Code string
}

func (e *PreconditionError) Error() string { return e.Code }

// StateError reports an operation refused in the current execution state.
type StateError struct {
	Op    string
	State ExecutionState
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s: %v (state %s)", e.Op, ErrInvalidState, e.State)
}

func (e *StateError) Unwrap() error { return ErrInvalidState }

// DeviceCommandError wraps a failure reported by the vehicle or camera.
type DeviceCommandError struct {
	Op  string
	Err error
}

func (e *DeviceCommandError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *DeviceCommandError) Unwrap() error { return e.Err }

// ValidationError lists every problem found in a mission.
type ValidationError struct {
	Err error // multierr combination
}

func (e *ValidationError) Error() string {
	return "Invalid mission: " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Problems returns the individual validation failures.
func (e *ValidationError) Problems() []error {
	return multierr.Errors(e.Err)
}
