// vehicle.go

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

package tello

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/golang/geo/r3"

	"github.com/SMerrony/autopilot"
)

// ErrUnsupported is wrapped by Vehicle operations the Tello cannot perform.
var ErrUnsupported = errors.New("not supported by the Tello")

const defaultMaxSpeed = 8.0 // m/s at full stick in sports mode

// VehicleConfig places the Tello's take-off point on the map.
type VehicleConfig struct {
	Origin        autopilot.Coordinate `json:"origin"`         // where the Tello took off
	OriginHeading float64              `json:"origin_heading"` // compass heading of its nose at take-off
	MaxSpeed      float64              `json:"max_speed"`      // m/s at full stick
}

// Vehicle flies a Tello as an autopilot.Vehicle and autopilot.Camera.
// The Tello has no GPS: positions come from its visual odometry relative to
// the take-off point and headings from its IMU relative to the take-off nose.
type Vehicle struct {
	drone *Tello
	plane autopilot.Plane
	cfg   VehicleConfig

	mu        sync.RWMutex
	supervise bool
	landing   bool
	mode      autopilot.CameraMode
}

var (
	_ autopilot.Vehicle = (*Vehicle)(nil)
	_ autopilot.Camera  = (*Vehicle)(nil)
)

// NewVehicle wraps a connected Tello.
func NewVehicle(drone *Tello, cfg VehicleConfig) *Vehicle {
	if cfg.MaxSpeed <= 0 {
		cfg.MaxSpeed = defaultMaxSpeed
	}
	return &Vehicle{drone: drone, plane: autopilot.NewPlane(cfg.Origin), cfg: cfg}
}

// SupportsSupervisoryControl is always true, sticks are the Tello's only control.
func (v *Vehicle) SupportsSupervisoryControl() bool { return true }

// Position converts the odometry offset into a coordinate.
func (v *Vehicle) Position() (autopilot.Coordinate, bool) {
	if !v.drone.PositionKnown() {
		return autopilot.Coordinate{}, false
	}
	mvo := v.drone.GetFlightData().MVO
	h := v.cfg.OriginHeading * math.Pi / 180
	fwd, right := float64(mvo.PositionX), float64(mvo.PositionY)
	north := fwd*math.Cos(h) - right*math.Sin(h)
	east := fwd*math.Sin(h) + right*math.Cos(h)
	return v.plane.Unproject(r3.Vector{X: east, Y: north}), true
}

// Altitude is the barometric height in metres.
func (v *Vehicle) Altitude() float64 {
	return float64(v.drone.GetFlightData().Height) / 10
}

// Heading is the compass heading, the IMU yaw offset by the take-off heading.
func (v *Vehicle) Heading() (float64, bool) {
	if !v.drone.ControlConnected() {
		return 0, false
	}
	return wrapDegrees(v.cfg.OriginHeading + float64(v.drone.GetFlightData().IMU.Yaw)), true
}

// GPSLevel reports a strong fix once odometry positions are flowing.
func (v *Vehicle) GPSLevel() autopilot.GPSLevel {
	if v.drone.PositionKnown() {
		return autopilot.GPSLevel5
	}
	return autopilot.GPSLevelNone
}

func (v *Vehicle) FlightState() autopilot.FlightState {
	fd := v.drone.GetFlightData()
	v.mu.Lock()
	defer v.mu.Unlock()
	if !fd.Flying {
		v.landing = false
	}
	return autopilot.FlightState{Flying: fd.Flying, Landing: v.landing}
}

func (v *Vehicle) SupervisoryControlEnabled() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.supervise
}

func (v *Vehicle) EnableSupervisoryControl(enable bool, done func(error)) {
	if !v.drone.ControlConnected() {
		done(ErrNotConnected)
		return
	}
	v.mu.Lock()
	v.supervise = enable
	v.mu.Unlock()
	v.drone.Hover()
	done(nil)
}

// SendControl turns a setpoint into stick positions.
// Velocities map linearly onto the right stick; heading and height use a
// stepped full/half stick law on the left stick.
func (v *Vehicle) SendControl(cmd autopilot.ControlCommand) {
	if !v.SupervisoryControlEnabled() {
		return
	}
	fd := v.drone.GetFlightData()
	heading, _ := v.Heading()
	v.drone.UpdateSticks(StickMessage{
		Ry: velocityStick(cmd.Roll, v.cfg.MaxSpeed),
		Rx: velocityStick(cmd.Pitch, v.cfg.MaxSpeed),
		Lx: yawStick(heading, cmd.Yaw),
		Ly: throttleStick(fd.Height, int16(math.Round(cmd.Vertical*10))),
	})
}

func (v *Vehicle) TakeOff(done func(error)) {
	done(v.drone.TakeOff())
}

// GoHome is unsupported, the Tello has no home point.
func (v *Vehicle) GoHome(done func(error)) {
	done(fmt.Errorf("go home: %w", ErrUnsupported))
}

func (v *Vehicle) Land(done func(error)) {
	err := v.drone.Land()
	if err == nil {
		v.mu.Lock()
		v.landing = true
		v.mu.Unlock()
	}
	done(err)
}

func (v *Vehicle) Mode() autopilot.CameraMode {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.mode
}

func (v *Vehicle) SetMode(mode autopilot.CameraMode, done func(error)) {
	err := v.drone.SetVideoMode(mode == autopilot.CameraVideo)
	if err == nil {
		v.mu.Lock()
		v.mode = mode
		v.mu.Unlock()
	}
	done(err)
}

func (v *Vehicle) StartShootPhoto(done func(error)) {
	done(v.drone.TakePicture())
}

// StartRecord is unsupported, video is recorded from the ground.
func (v *Vehicle) StartRecord(done func(error)) {
	done(fmt.Errorf("start record: %w", ErrUnsupported))
}

// StopRecord is unsupported, video is recorded from the ground.
func (v *Vehicle) StopRecord(done func(error)) {
	done(fmt.Errorf("stop record: %w", ErrUnsupported))
}

func (v *Vehicle) IsRecording() bool { return false }

// RotateGimbal accepts only the fixed level camera.
func (v *Vehicle) RotateGimbal(pitch float64, done func(error)) {
	if pitch != 0 {
		done(fmt.Errorf("rotate gimbal to %.1f: %w", pitch, ErrUnsupported))
		return
	}
	done(nil)
}

func (v *Vehicle) GimbalPitch() float64 { return 0 }

func velocityStick(mps, max float64) int16 {
	f := math.Max(-1, math.Min(1, mps/max))
	return int16(math.Round(f * 32767))
}

func yawStick(current, target float64) int16 {
	delta := int16(math.Round(wrapDegrees(target - current))) // shortest way round
	switch {
	case delta > 10:
		return 32500 // full throttle if >10deg off target
	case delta > 0:
		return 16250 // half throttle if <10deg off target
	case delta < -10:
		return -32500
	case delta < 0:
		return -16250
	}
	return 0
}

func throttleStick(currentDm, targetDm int16) int16 {
	delta := targetDm - currentDm // delta will be positive if we are too low
	switch {
	case delta > 4:
		return 32500 // full throttle if >40cm off target
	case delta > 0:
		return 16250 // half throttle if <40cm off target
	case delta < -4:
		return -32500
	case delta < 0:
		return -16250
	}
	return 0
}

// wrapDegrees maps any angle into (-180, 180].
func wrapDegrees(d float64) float64 {
	d = math.Mod(d, 360)
	switch {
	case d > 180:
		d -= 360
	case d <= -180:
		d += 360
	}
	return d
}
