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

package mavlink

import (
	"fmt"
	"math"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"

	"github.com/SMerrony/autopilot"
)

const climbGain = 1.0 // m/s of climb per metre of height error

// SupportsSupervisoryControl is true, guided mode takes velocity setpoints.
func (l *Link) SupportsSupervisoryControl() bool { return true }

func (l *Link) Position() (autopilot.Coordinate, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.position, l.havePosition
}

// Altitude is relative to the home point.
func (l *Link) Altitude() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.altitude
}

func (l *Link) Heading() (float64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.heading, l.haveHeading || l.havePosition
}

func (l *Link) GPSLevel() autopilot.GPSLevel {
	l.mu.Lock()
	defer l.mu.Unlock()
	return gpsLevel(l.fixType, l.satellites)
}

func (l *Link) FlightState() autopilot.FlightState {
	l.mu.Lock()
	defer l.mu.Unlock()
	var fs autopilot.FlightState
	switch l.landed {
	case common.MAV_LANDED_STATE_IN_AIR, common.MAV_LANDED_STATE_TAKEOFF, common.MAV_LANDED_STATE_LANDING:
		fs.Flying = true
	case common.MAV_LANDED_STATE_UNDEFINED:
		fs.Flying = l.armed
	}
	fs.Landing = l.landed == common.MAV_LANDED_STATE_LANDING || (fs.Flying && l.customMode == modeLand)
	fs.GoingHome = fs.Flying && l.customMode == modeRTL
	return fs
}

func (l *Link) SupervisoryControlEnabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.supervise
}

// EnableSupervisoryControl switches to GUIDED. Disabling switches back to
// LOITER only while the vehicle is still guided and not handed to land or RTL.
func (l *Link) EnableSupervisoryControl(enable bool, done func(error)) {
	if !enable {
		hold := l.holdsGuided()
		l.mu.Lock()
		l.supervise = false
		l.mu.Unlock()
		if !hold {
			l.log.Debug("Vehicle not in guided, releasing without a mode switch")
			done(nil)
			return
		}
		l.sendCommand(common.MAV_CMD_DO_SET_MODE,
			params(float32(common.MAV_MODE_FLAG_CUSTOM_MODE_ENABLED), modeLoiter), done)
		return
	}
	l.mu.Lock()
	l.handedOff = false
	l.mu.Unlock()
	l.sendCommand(common.MAV_CMD_DO_SET_MODE,
		params(float32(common.MAV_MODE_FLAG_CUSTOM_MODE_ENABLED), modeGuided),
		func(err error) {
			if err == nil {
				l.mu.Lock()
				l.supervise = true
				l.mu.Unlock()
			}
			done(err)
		})
}

// holdsGuided reports whether the vehicle is flying GUIDED on our behalf.
func (l *Link) holdsGuided() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return (l.customMode == modeGuided || l.supervise) && !l.handedOff
}

func (l *Link) handOff() {
	l.mu.Lock()
	l.handedOff = true
	l.mu.Unlock()
}

// SendControl converts body velocities to NED and holds the commanded height with a clamped climb rate.
func (l *Link) SendControl(cmd autopilot.ControlCommand) {
	l.mu.Lock()
	if !l.supervise {
		l.mu.Unlock()
		return
	}
	h := l.heading * math.Pi / 180
	alt := l.altitude
	l.mu.Unlock()

	north := cmd.Roll*math.Cos(h) - cmd.Pitch*math.Sin(h)
	east := cmd.Roll*math.Sin(h) + cmd.Pitch*math.Cos(h)
	climb := math.Max(-l.cfg.MaxClimbRate, math.Min(l.cfg.MaxClimbRate, climbGain*(cmd.Vertical-alt)))
	if err := l.sendVelocity(north, east, -climb, cmd.Yaw); err != nil {
		l.log.WithError(err).Debug("Velocity setpoint not sent")
	}
}

// sendVelocity sends a NED velocity and absolute yaw setpoint.
func (l *Link) sendVelocity(north, east, down, yawDeg float64) error {
	l.mu.Lock()
	msg := &common.MessageSetPositionTargetGlobalInt{
		TargetSystem:    l.targetSystem,
		TargetComponent: l.targetComp,
		CoordinateFrame: common.MAV_FRAME_GLOBAL_RELATIVE_ALT_INT,
		TypeMask: common.POSITION_TARGET_TYPEMASK_X_IGNORE |
			common.POSITION_TARGET_TYPEMASK_Y_IGNORE |
			common.POSITION_TARGET_TYPEMASK_Z_IGNORE |
			common.POSITION_TARGET_TYPEMASK_AX_IGNORE |
			common.POSITION_TARGET_TYPEMASK_AY_IGNORE |
			common.POSITION_TARGET_TYPEMASK_AZ_IGNORE |
			common.POSITION_TARGET_TYPEMASK_YAW_RATE_IGNORE,
		Vx:  float32(north),
		Vy:  float32(east),
		Vz:  float32(down),
		Yaw: float32(yawDeg * math.Pi / 180),
	}
	l.mu.Unlock()
	return l.write(msg)
}

// TakeOff selects GUIDED, arms and climbs to the configured take-off altitude.
func (l *Link) TakeOff(done func(error)) {
	l.mu.Lock()
	l.handedOff = false
	l.mu.Unlock()
	l.sendCommand(common.MAV_CMD_DO_SET_MODE,
		params(float32(common.MAV_MODE_FLAG_CUSTOM_MODE_ENABLED), modeGuided),
		func(err error) {
			if err != nil {
				done(err)
				return
			}
			l.sendCommand(common.MAV_CMD_COMPONENT_ARM_DISARM, params(1), func(err error) {
				if err != nil {
					done(err)
					return
				}
				l.sendCommand(common.MAV_CMD_NAV_TAKEOFF,
					params(0, 0, 0, float32(math.NaN()), 0, 0, float32(l.cfg.TakeOffAltitude)), done)
			})
		})
}

func (l *Link) GoHome(done func(error)) {
	l.handOff()
	l.sendCommand(common.MAV_CMD_NAV_RETURN_TO_LAUNCH, params(), done)
}

func (l *Link) Land(done func(error)) {
	l.handOff()
	l.sendCommand(common.MAV_CMD_NAV_LAND, params(0, 0, 0, float32(math.NaN())), done)
}

func (l *Link) Mode() autopilot.CameraMode {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cameraMode
}

func (l *Link) SetMode(mode autopilot.CameraMode, done func(error)) {
	m := common.CAMERA_MODE_IMAGE
	if mode == autopilot.CameraVideo {
		m = common.CAMERA_MODE_VIDEO
	}
	l.sendCommand(common.MAV_CMD_SET_CAMERA_MODE, params(0, float32(m)), func(err error) {
		if err == nil {
			l.mu.Lock()
			l.cameraMode = mode
			l.mu.Unlock()
		}
		done(err)
	})
}

func (l *Link) StartShootPhoto(done func(error)) {
	// all cameras, no interval, one image
	l.sendCommand(common.MAV_CMD_IMAGE_START_CAPTURE, params(0, 0, 1), done)
}

func (l *Link) StartRecord(done func(error)) {
	l.sendCommand(common.MAV_CMD_VIDEO_START_CAPTURE, params(), l.recordDone(true, done))
}

func (l *Link) StopRecord(done func(error)) {
	l.sendCommand(common.MAV_CMD_VIDEO_STOP_CAPTURE, params(), l.recordDone(false, done))
}

func (l *Link) recordDone(recording bool, done func(error)) func(error) {
	return func(err error) {
		if err == nil {
			l.mu.Lock()
			l.recording = recording
			l.mu.Unlock()
		}
		done(err)
	}
}

func (l *Link) IsRecording() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.recording
}

// RotateGimbal pitches the gimbal and leaves its yaw alone.
func (l *Link) RotateGimbal(pitch float64, done func(error)) {
	if pitch < -90 || pitch > 30 {
		done(fmt.Errorf("gimbal pitch %.1f out of range", pitch))
		return
	}
	l.sendCommand(common.MAV_CMD_DO_GIMBAL_MANAGER_PITCHYAW,
		params(float32(pitch), float32(math.NaN()), float32(math.NaN()), float32(math.NaN())), func(err error) {
			if err == nil {
				l.mu.Lock()
				l.gimbalPitch = pitch
				l.mu.Unlock()
			}
			done(err)
		})
}

func (l *Link) GimbalPitch() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.gimbalPitch
}
