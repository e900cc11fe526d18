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

package autopilot

// GPSLevel is the satellite signal quality reported by the vehicle, 0 (none) to 5 (excellent).
type GPSLevel int

// GPS signal levels.
const (
	GPSLevelNone GPSLevel = iota
	GPSLevel1
	GPSLevel2
	GPSLevel3
	GPSLevel4
	GPSLevel5
)

// FlightState is the subset of aircraft status the autopilot watches.
type FlightState struct {
	Flying    bool
	Landing   bool
	GoingHome bool
}

// ControlCommand is one virtual-stick setpoint.
// Roll is body-forward velocity and Pitch body-right velocity, both in m/s;
// Yaw is an absolute heading in degrees (-180..180] and Vertical an absolute
// altitude above the take-off point in metres.
type ControlCommand struct {
	Roll     float64 `json:"roll"`
	Pitch    float64 `json:"pitch"`
	Yaw      float64 `json:"yaw"`
	Vertical float64 `json:"vertical"`
}

// CameraMode is the capture mode of the camera.
type CameraMode int

// Camera modes.
const (
	CameraPhoto CameraMode = iota
	CameraVideo
)

func (m CameraMode) String() string {
	if m == CameraVideo {
		return "video"
	}
	return "photo"
}

// Vehicle is the aircraft under control. Completion callbacks may be invoked
// on any goroutine, synchronously or later.
type Vehicle interface {
	// SupportsSupervisoryControl reports whether virtual-stick control is possible at all.
	SupportsSupervisoryControl() bool
	Position() (Coordinate, bool)
	Altitude() float64
	Heading() (float64, bool)
	GPSLevel() GPSLevel
	FlightState() FlightState
	SupervisoryControlEnabled() bool
	EnableSupervisoryControl(enable bool, done func(error))
	SendControl(cmd ControlCommand)
	TakeOff(done func(error))
	GoHome(done func(error))
	Land(done func(error))
}

// Camera is the payload camera and its gimbal.
type Camera interface {
	Mode() CameraMode
	SetMode(mode CameraMode, done func(error))
	StartShootPhoto(done func(error))
	StartRecord(done func(error))
	StopRecord(done func(error))
	IsRecording() bool
	RotateGimbal(pitch float64, done func(error))
	GimbalPitch() float64
}
