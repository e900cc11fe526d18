// state.go

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
	"fmt"

	"github.com/google/uuid"
)

// ExecutionState is the mission lifecycle state.
type ExecutionState int

// Execution states.
const (
	Unknown ExecutionState = iota
	Disconnected
	Recovering
	NotSupported
	ReadyToUpload
	Uploading
	ReadyToExecute
	Executing
	Paused
)

var executionStateNames = []string{
	"unknown", "disconnected", "recovering", "not_supported", "ready_to_upload",
	"uploading", "ready_to_execute", "executing", "paused",
}

func (s ExecutionState) String() string { return enumName(executionStateNames, int(s)) }

// MarshalText implements encoding.TextMarshaler.
func (s ExecutionState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *ExecutionState) UnmarshalText(b []byte) error {
	return parseEnum(executionStateNames, "execution state", b, s)
}

// ActionState is the per-waypoint action sub-machine state.
type ActionState int

// Action states.
const (
	ActionIdle ActionState = iota
	ActionReady
	ActionExecuting
	ActionFinished
	ActionRestoring
)

var actionStateNames = []string{"idle", "ready", "executing", "finished", "restoring"}

func (s ActionState) String() string { return enumName(actionStateNames, int(s)) }

// ExecutionProgress tells observers which waypoint is being flown to.
type ExecutionProgress struct {
	MissionID uuid.UUID `json:"mission_id"`
	Index     int       `json:"index"`
	Reached   bool      `json:"reached"`
	// Mute is set for orbit progress, which observers should not announce.
	Mute bool `json:"mute"`
}

func enumName(names []string, i int) string {
	if i < 0 || i >= len(names) {
		return fmt.Sprintf("unknown(%d)", i)
	}
	return names[i]
}

func parseEnum[T ~int](names []string, what string, b []byte, v *T) error {
	for i, n := range names {
		if n == string(b) {
			*v = T(i)
			return nil
		}
	}
	return fmt.Errorf("Unknown %s %q", what, string(b))
}
