// telemetry.go

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
	"time"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v3/pkg/message"
	"github.com/sirupsen/logrus"

	"github.com/SMerrony/autopilot"
)

func (l *Link) handleMessage(sysID, compID byte, msg message.Message) {
	switch m := msg.(type) {
	case *common.MessageHeartbeat:
		if m.Type == common.MAV_TYPE_GCS {
			return
		}
		l.mu.Lock()
		if !l.haveTarget {
			l.targetSystem, l.targetComp, l.haveTarget = sysID, compID, true
			l.log.WithFields(logrus.Fields{"system": sysID, "component": compID}).Info("Vehicle found")
		}
		if sysID != l.targetSystem || compID != l.targetComp {
			l.mu.Unlock()
			return
		}
		l.customMode = m.CustomMode
		l.armed = m.BaseMode&common.MAV_MODE_FLAG_SAFETY_ARMED != 0
		if l.supervise && m.CustomMode != modeGuided {
			l.log.WithField("mode", m.CustomMode).Info("Vehicle left guided mode")
			l.supervise = false
		}
		l.lastHeartbeat = time.Now()
		restored := !l.linkUp
		l.linkUp = true
		fn := l.onLink
		l.mu.Unlock()
		if restored && fn != nil {
			fn(true)
		}

	case *common.MessageGlobalPositionInt:
		l.mu.Lock()
		l.position = autopilot.Coordinate{
			Latitude:  float64(m.Lat) / 1e7,
			Longitude: float64(m.Lon) / 1e7,
		}
		l.havePosition = true
		l.altitude = float64(m.RelativeAlt) / 1000
		if m.Hdg != math.MaxUint16 && !l.haveHeading {
			l.heading = wrapDegrees(float64(m.Hdg) / 100)
		}
		l.mu.Unlock()

	case *common.MessageAttitude:
		l.mu.Lock()
		l.heading = wrapDegrees(float64(m.Yaw) * 180 / math.Pi)
		l.haveHeading = true
		l.mu.Unlock()

	case *common.MessageGpsRawInt:
		l.mu.Lock()
		l.fixType = m.FixType
		l.satellites = m.SatellitesVisible
		l.mu.Unlock()

	case *common.MessageExtendedSysState:
		l.mu.Lock()
		l.landed = m.LandedState
		l.mu.Unlock()

	case *common.MessageCommandAck:
		l.handleAck(m)

	case *common.MessageCameraSettings:
		l.mu.Lock()
		if m.ModeId == common.CAMERA_MODE_VIDEO {
			l.cameraMode = autopilot.CameraVideo
		} else {
			l.cameraMode = autopilot.CameraPhoto
		}
		l.mu.Unlock()

	case *common.MessageGimbalDeviceAttitudeStatus:
		l.mu.Lock()
		l.gimbalPitch = quatPitchDeg(m.Q)
		l.mu.Unlock()
	}
}

func (l *Link) handleAck(m *common.MessageCommandAck) {
	l.mu.Lock()
	pc := l.pending[m.Command]
	l.mu.Unlock()
	if pc == nil {
		return
	}
	switch m.Result {
	case common.MAV_RESULT_ACCEPTED:
		l.resolve(m.Command, pc, nil)
	case common.MAV_RESULT_IN_PROGRESS:
	default:
		l.resolve(m.Command, pc, fmt.Errorf("command %v rejected with result %v", m.Command, m.Result))
	}
}

// gpsLevel grades the fix by type and satellite count.
func gpsLevel(fix common.GPS_FIX_TYPE, sats uint8) autopilot.GPSLevel {
	switch {
	case fix < common.GPS_FIX_TYPE_2D_FIX:
		return autopilot.GPSLevelNone
	case fix == common.GPS_FIX_TYPE_2D_FIX:
		return autopilot.GPSLevel1
	case fix >= common.GPS_FIX_TYPE_RTK_FLOAT && fix <= common.GPS_FIX_TYPE_RTK_FIXED:
		return autopilot.GPSLevel5
	case sats < 6:
		return autopilot.GPSLevel2
	case sats < 8:
		return autopilot.GPSLevel3
	case sats < 10:
		return autopilot.GPSLevel4
	}
	return autopilot.GPSLevel5
}

// quatPitchDeg returns the pitch of a w, x, y, z quaternion.
func quatPitchDeg(q [4]float32) float64 {
	w, x, y, z := float64(q[0]), float64(q[1]), float64(q[2]), float64(q[3])
	s := math.Max(-1, math.Min(1, 2*(w*y-z*x)))
	return math.Asin(s) * 180 / math.Pi
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
