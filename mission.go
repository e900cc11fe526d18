// mission.go

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
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"
	"go.uber.org/multierr"
)

// HeadingMode decides where the nose points between waypoints.
type HeadingMode int

// Heading modes.
const (
	HeadingAuto HeadingMode = iota // along the track
	HeadingUsingWaypointHeading
	HeadingTowardPointOfInterest
)

var headingModeNames = []string{"auto", "using_waypoint_heading", "toward_point_of_interest"}

func (h HeadingMode) String() string { return enumName(headingModeNames, int(h)) }

// MarshalText implements encoding.TextMarshaler.
func (h HeadingMode) MarshalText() ([]byte, error) { return []byte(h.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *HeadingMode) UnmarshalText(b []byte) error {
	return parseEnum(headingModeNames, "heading mode", b, h)
}

// FlightPathMode selects straight legs or rounded corners.
type FlightPathMode int

// Flight path modes.
const (
	PathNormal FlightPathMode = iota
	PathCurved
)

var flightPathModeNames = []string{"normal", "curved"}

func (f FlightPathMode) String() string { return enumName(flightPathModeNames, int(f)) }

// MarshalText implements encoding.TextMarshaler.
func (f FlightPathMode) MarshalText() ([]byte, error) { return []byte(f.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *FlightPathMode) UnmarshalText(b []byte) error {
	return parseEnum(flightPathModeNames, "flight path mode", b, f)
}

// FinishedAction is what the aircraft does after the last repeat.
type FinishedAction int

// Finished actions.
const (
	FinishNoAction FinishedAction = iota
	FinishGoHome
	FinishAutoLand
)

var finishedActionNames = []string{"no_action", "go_home", "auto_land"}

func (f FinishedAction) String() string { return enumName(finishedActionNames, int(f)) }

// MarshalText implements encoding.TextMarshaler.
func (f FinishedAction) MarshalText() ([]byte, error) { return []byte(f.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *FinishedAction) UnmarshalText(b []byte) error {
	return parseEnum(finishedActionNames, "finished action", b, f)
}

// TurnMode is the rotation direction used when the heading changes between waypoints.
type TurnMode int

// Turn modes.
const (
	TurnClockwise TurnMode = iota
	TurnCounterClockwise
)

var turnModeNames = []string{"clockwise", "counter_clockwise"}

func (t TurnMode) String() string { return enumName(turnModeNames, int(t)) }

// MarshalText implements encoding.TextMarshaler.
func (t TurnMode) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *TurnMode) UnmarshalText(b []byte) error {
	return parseEnum(turnModeNames, "turn mode", b, t)
}

// HotpointHeading is where the nose points while orbiting.
type HotpointHeading int

// Hotpoint headings.
const (
	TowardHotpoint HotpointHeading = iota
	AlongCircleLookingForward
	AlongCircleLookingBackward
	AwayFromHotpoint
)

var hotpointHeadingNames = []string{"toward", "forward", "backward", "away"}

func (h HotpointHeading) String() string { return enumName(hotpointHeadingNames, int(h)) }

// MarshalText implements encoding.TextMarshaler.
func (h HotpointHeading) MarshalText() ([]byte, error) { return []byte(h.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *HotpointHeading) UnmarshalText(b []byte) error {
	return parseEnum(hotpointHeadingNames, "hotpoint heading", b, h)
}

// ActionKind identifies a waypoint action.
type ActionKind int

// Action kinds.
const (
	ActionRotateAircraft ActionKind = iota
	ActionRotateGimbal
	ActionShootPhoto
	ActionStartRecord
	ActionStopRecord
	ActionWait
)

var actionKindNames = []string{
	"rotate_aircraft", "rotate_gimbal", "shoot_photo", "start_record", "stop_record", "wait",
}

func (k ActionKind) String() string { return enumName(actionKindNames, int(k)) }

// MarshalText implements encoding.TextMarshaler.
func (k ActionKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *ActionKind) UnmarshalText(b []byte) error {
	return parseEnum(actionKindNames, "action", b, k)
}

// Action is one device operation performed at a waypoint.
// Param is a heading or pitch in degrees, or a wait in milliseconds.
type Action struct {
	Kind  ActionKind `json:"kind"`
	Param float64    `json:"param,omitempty"`
}

func (a Action) String() string {
	switch a.Kind {
	case ActionRotateAircraft, ActionRotateGimbal:
		return fmt.Sprintf("%s(%.1f)", a.Kind, a.Param)
	case ActionWait:
		return fmt.Sprintf("%s(%.0fms)", a.Kind, a.Param)
	}
	return a.Kind.String()
}

// RotateAircraft turns the aircraft to an absolute heading in degrees.
func RotateAircraft(heading float64) Action { return Action{ActionRotateAircraft, heading} }

// RotateGimbal pitches the gimbal to the given angle in degrees.
func RotateGimbal(pitch float64) Action { return Action{ActionRotateGimbal, pitch} }

// ShootPhoto takes a single photo.
func ShootPhoto() Action { return Action{Kind: ActionShootPhoto} }

// StartRecord starts video recording.
func StartRecord() Action { return Action{Kind: ActionStartRecord} }

// StopRecord stops video recording.
func StopRecord() Action { return Action{Kind: ActionStopRecord} }

// Wait holds position for ms milliseconds.
func Wait(ms int) Action { return Action{ActionWait, float64(ms)} }

// Waypoint is one point of the mission.
type Waypoint struct {
	Coordinate                 Coordinate `json:"coordinate"`
	Altitude                   float64    `json:"altitude"`      // metres above take-off
	Heading                    float64    `json:"heading"`       // degrees, used with HeadingUsingWaypointHeading
	CornerRadius               float64    `json:"corner_radius"` // metres, used with PathCurved
	TurnMode                   TurnMode   `json:"turn_mode"`
	GimbalPitch                float64    `json:"gimbal_pitch"`
	Actions                    []Action   `json:"actions,omitempty"`
	ShootPhotoDistanceInterval float64    `json:"shoot_photo_distance_interval,omitempty"`
}

// Orbit turns a mission with a point of interest into a circle around it.
type Orbit struct {
	Heading               HotpointHeading `json:"heading"`
	Clockwise             bool            `json:"clockwise"`
	ShootPhotoAtWaypoints bool            `json:"shoot_photo_at_waypoints"`
}

// Mission is the declarative flight plan.
type Mission struct {
	ID                        uuid.UUID      `json:"id"`
	Waypoints                 []Waypoint     `json:"waypoints"`
	AutoFlightSpeed           float64        `json:"auto_flight_speed"`
	RepeatTimes               int            `json:"repeat_times"`
	HeadingMode               HeadingMode    `json:"heading_mode"`
	FlightPathMode            FlightPathMode `json:"flight_path_mode"`
	FinishedAction            FinishedAction `json:"finished_action"`
	PointOfInterest           *Coordinate    `json:"point_of_interest,omitempty"`
	Orbit                     *Orbit         `json:"orbit,omitempty"`
	ExitMissionOnRCSignalLost bool           `json:"exit_mission_on_rc_signal_lost"`
	RotateGimbalPitch         bool           `json:"rotate_gimbal_pitch"`
}

// ReadMission decodes a JSON mission.
func ReadMission(r io.Reader) (Mission, error) {
	var m Mission
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&m); err != nil {
		return Mission{}, fmt.Errorf("Cannot decode mission: %w", err)
	}
	return m, nil
}

// Orbiting reports whether the mission is flown as a circle around its point of interest.
func (m *Mission) Orbiting() bool {
	return m.PointOfInterest != nil && m.Orbit != nil
}

// Validate checks the mission against the default limits.
func (m *Mission) Validate() error {
	return m.validate(DefaultConfig())
}

func (m *Mission) validate(cfg Config) error {
	var errs error
	fail := func(format string, args ...interface{}) {
		errs = multierr.Append(errs, fmt.Errorf(format, args...))
	}
	n := len(m.Waypoints)
	if n < 2 || n > cfg.MaxWaypoints {
		fail("waypoint count %d outside [2, %d]", n, cfg.MaxWaypoints)
	}
	if m.AutoFlightSpeed <= 0 || m.AutoFlightSpeed > cfg.MaxFlightSpeed {
		fail("auto flight speed %.1f outside (0, %.1f]", m.AutoFlightSpeed, cfg.MaxFlightSpeed)
	}
	if m.RepeatTimes < 0 {
		fail("repeat times %d is negative", m.RepeatTimes)
	}
	if m.PointOfInterest != nil && !m.PointOfInterest.Valid() {
		fail("point of interest %+v is not a valid coordinate", *m.PointOfInterest)
	}
	if m.HeadingMode == HeadingTowardPointOfInterest && m.PointOfInterest == nil {
		fail("heading toward point of interest without a point of interest")
	}
	if m.Orbit != nil && m.PointOfInterest == nil {
		fail("orbit without a point of interest")
	}
	var plane Plane
	if n > 0 {
		plane = NewPlane(m.Waypoints[0].Coordinate)
	}
	for i, wp := range m.Waypoints {
		if !wp.Coordinate.Valid() {
			fail("waypoint %d: invalid coordinate %+v", i, wp.Coordinate)
		}
		if wp.Altitude < -200 || wp.Altitude > 500 {
			fail("waypoint %d: altitude %.1f outside [-200, 500]", i, wp.Altitude)
		}
		if wp.Heading < -180 || wp.Heading > 180 {
			fail("waypoint %d: heading %.1f outside [-180, 180]", i, wp.Heading)
		}
		if wp.CornerRadius < 0 || wp.CornerRadius > 1000 {
			fail("waypoint %d: corner radius %.1f outside [0, 1000]", i, wp.CornerRadius)
		}
		if wp.GimbalPitch < -90 || wp.GimbalPitch > 30 {
			fail("waypoint %d: gimbal pitch %.1f outside [-90, 30]", i, wp.GimbalPitch)
		}
		if wp.ShootPhotoDistanceInterval < 0 {
			fail("waypoint %d: photo interval %.1f is negative", i, wp.ShootPhotoDistanceInterval)
		}
		if len(wp.Actions) > cfg.MaxActions {
			fail("waypoint %d: %d actions, at most %d allowed", i, len(wp.Actions), cfg.MaxActions)
		}
		for j, act := range wp.Actions {
			if err := act.validate(); err != nil {
				fail("waypoint %d action %d: %v", i, j, err)
			}
		}
		if i > 0 && wp.Coordinate.Valid() && m.Waypoints[i-1].Coordinate.Valid() {
			if d := plane.Distance(m.Waypoints[i-1].Coordinate, wp.Coordinate); d < 0.5 {
				fail("waypoint %d: %.2fm from the previous waypoint, at least 0.5m needed", i, d)
			}
		}
	}
	if errs != nil {
		return &ValidationError{Err: errs}
	}
	return nil
}

func (a Action) validate() error {
	switch a.Kind {
	case ActionRotateAircraft:
		if a.Param < -180 || a.Param > 180 {
			return fmt.Errorf("heading %.1f outside [-180, 180]", a.Param)
		}
	case ActionRotateGimbal:
		if a.Param < -90 || a.Param > 30 {
			return fmt.Errorf("gimbal pitch %.1f outside [-90, 30]", a.Param)
		}
	case ActionWait:
		if a.Param < 0 || a.Param > 32767 {
			return fmt.Errorf("wait %.0fms outside [0, 32767]", a.Param)
		}
	case ActionShootPhoto, ActionStartRecord, ActionStopRecord:
	default:
		return fmt.Errorf("unknown action kind %d", a.Kind)
	}
	return nil
}

func (m Mission) clone() Mission {
	c := m
	c.Waypoints = make([]Waypoint, len(m.Waypoints))
	for i, wp := range m.Waypoints {
		c.Waypoints[i] = wp
		c.Waypoints[i].Actions = append([]Action(nil), wp.Actions...)
	}
	if m.PointOfInterest != nil {
		poi := *m.PointOfInterest
		c.PointOfInterest = &poi
	}
	if m.Orbit != nil {
		o := *m.Orbit
		c.Orbit = &o
	}
	return c
}
