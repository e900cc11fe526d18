// fakes_test.go

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
	"math"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

var origin = Coordinate{Latitude: 47.3977, Longitude: 8.5456}

// at returns the coordinate east/north metres from origin.
func at(east, north float64) Coordinate {
	return NewPlane(origin).Unproject(r3.Vector{X: east, Y: north})
}

// fakeVehicle is a point-mass aircraft. With follow set it turns and climbs
// instantly to whatever is commanded.
type fakeVehicle struct {
	plane       Plane
	pos         r3.Vector
	hasPos      bool
	alt         float64
	heading     float64
	gps         GPSLevel
	flight      FlightState
	supported   bool
	supervisory bool
	follow      bool

	enableErr  error
	takeOffErr error
	holdEnable []func(error)
	hold       bool

	calls []string
	sends int
	last  ControlCommand
}

func newFakeVehicle() *fakeVehicle {
	return &fakeVehicle{
		plane:     NewPlane(origin),
		hasPos:    true,
		gps:       GPSLevel5,
		supported: true,
		follow:    true,
	}
}

func (v *fakeVehicle) SupportsSupervisoryControl() bool { return v.supported }
func (v *fakeVehicle) Position() (Coordinate, bool)     { return v.plane.Unproject(v.pos), v.hasPos }
func (v *fakeVehicle) Altitude() float64                { return v.alt }
func (v *fakeVehicle) Heading() (float64, bool)         { return v.heading, true }
func (v *fakeVehicle) GPSLevel() GPSLevel               { return v.gps }
func (v *fakeVehicle) FlightState() FlightState         { return v.flight }
func (v *fakeVehicle) SupervisoryControlEnabled() bool  { return v.supervisory }

func (v *fakeVehicle) EnableSupervisoryControl(enable bool, done func(error)) {
	v.calls = append(v.calls, fmt.Sprintf("enable:%v", enable))
	if enable && v.hold {
		v.holdEnable = append(v.holdEnable, done)
		return
	}
	if enable && v.enableErr != nil {
		done(v.enableErr)
		return
	}
	v.supervisory = enable
	done(nil)
}

func (v *fakeVehicle) SendControl(cmd ControlCommand) {
	v.sends++
	v.last = cmd
	if v.follow {
		v.heading = cmd.Yaw
		v.alt = cmd.Vertical
	}
}

func (v *fakeVehicle) TakeOff(done func(error)) {
	v.calls = append(v.calls, "takeoff")
	if v.takeOffErr == nil {
		v.flight.Flying = true
	}
	done(v.takeOffErr)
}

func (v *fakeVehicle) GoHome(done func(error)) {
	v.calls = append(v.calls, "go_home")
	done(nil)
}

func (v *fakeVehicle) Land(done func(error)) {
	v.calls = append(v.calls, "land")
	done(nil)
}

// step moves the aircraft dt seconds along its last commanded body velocity.
func (v *fakeVehicle) step(dt float64) {
	h := radians(v.heading)
	north := v.last.Roll*math.Cos(h) - v.last.Pitch*math.Sin(h)
	east := v.last.Roll*math.Sin(h) + v.last.Pitch*math.Cos(h)
	v.pos.X += east * dt
	v.pos.Y += north * dt
}

func (v *fakeVehicle) called(name string) int {
	n := 0
	for _, c := range v.calls {
		if c == name {
			n++
		}
	}
	return n
}

type fakeCamera struct {
	mode      CameraMode
	pitch     float64
	recording bool
	shootErrs []error
	recordErr error
	hold      bool
	held      []func(error)
	calls     []string
}

func (c *fakeCamera) finish(done func(error), err error) {
	if c.hold {
		c.held = append(c.held, done)
		return
	}
	done(err)
}

func (c *fakeCamera) Mode() CameraMode { return c.mode }

func (c *fakeCamera) SetMode(m CameraMode, done func(error)) {
	c.calls = append(c.calls, "mode:"+m.String())
	c.mode = m
	c.finish(done, nil)
}

func (c *fakeCamera) StartShootPhoto(done func(error)) {
	c.calls = append(c.calls, "photo")
	var err error
	if len(c.shootErrs) > 0 {
		err, c.shootErrs = c.shootErrs[0], c.shootErrs[1:]
	}
	c.finish(done, err)
}

func (c *fakeCamera) StartRecord(done func(error)) {
	c.calls = append(c.calls, "record")
	if c.recordErr == nil {
		c.recording = true
	}
	c.finish(done, c.recordErr)
}

func (c *fakeCamera) StopRecord(done func(error)) {
	c.calls = append(c.calls, "stop_record")
	c.recording = false
	c.finish(done, nil)
}

func (c *fakeCamera) IsRecording() bool { return c.recording }

func (c *fakeCamera) RotateGimbal(pitch float64, done func(error)) {
	c.calls = append(c.calls, fmt.Sprintf("gimbal:%.0f", pitch))
	c.pitch = pitch
	c.finish(done, nil)
}

func (c *fakeCamera) GimbalPitch() float64 { return c.pitch }

type fakeTimer struct {
	d time.Duration
	f func()
}

type fakeClock struct {
	pending []fakeTimer
}

func (c *fakeClock) afterFunc(d time.Duration, f func()) {
	c.pending = append(c.pending, fakeTimer{d, f})
}

// fire runs every pending timer and returns how many ran.
func (c *fakeClock) fire() int {
	ts := c.pending
	c.pending = nil
	for _, t := range ts {
		t.f()
	}
	return len(ts)
}

// harness drives an Autopilot by hand, without Run.
type harness struct {
	t        *testing.T
	a        *Autopilot
	v        *fakeVehicle
	cam      *fakeCamera
	clk      *fakeClock
	hook     *test.Hook
	progress []ExecutionProgress
	progCh   <-chan ExecutionProgress
}

func newHarness(t *testing.T, opts ...Option) *harness {
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	h := &harness{t: t, v: newFakeVehicle(), cam: &fakeCamera{}, clk: &fakeClock{}, hook: hook}
	opts = append([]Option{WithLogger(log), WithCamera(h.cam), withAfterFunc(h.clk.afterFunc)}, opts...)
	h.a = New(h.v, opts...)
	h.progCh = h.a.StreamProgress()
	h.a.attach()
	t.Cleanup(h.a.stopTicker)
	return h
}

// do runs a request on the autopilot and settles its completions.
func (h *harness) do(fn func(reply func(error))) error {
	h.t.Helper()
	var got error
	replied := false
	fn(func(err error) {
		got, replied = err, true
	})
	h.a.drain()
	if !replied {
		h.t.Fatal("Request was never answered")
	}
	return got
}

func (h *harness) load(m Mission) {
	h.t.Helper()
	if err := h.a.load(m); err != nil {
		h.t.Fatalf("Load failed: %v", err)
	}
}

// launch loads, uploads and starts m with the aircraft already airborne.
func (h *harness) launch(m Mission) {
	h.t.Helper()
	h.v.flight.Flying = true
	h.load(m)
	if err := h.do(h.a.upload); err != nil {
		h.t.Fatalf("Upload failed: %v", err)
	}
	if err := h.do(h.a.start); err != nil {
		h.t.Fatalf("Start failed: %v", err)
	}
}

func (h *harness) step() {
	h.a.drain()
	h.a.tick()
	h.a.drain()
	h.v.step(h.a.cfg.period().Seconds())
	for {
		select {
		case p := <-h.progCh:
			h.progress = append(h.progress, p)
		default:
			return
		}
	}
}

func (h *harness) runUntil(cond func() bool, maxTicks int) bool {
	for i := 0; i < maxTicks; i++ {
		if cond() {
			return true
		}
		h.step()
	}
	return cond()
}

// actionStates lists the action state transitions logged so far.
func (h *harness) actionStates() []ActionState {
	var states []ActionState
	for _, e := range h.hook.AllEntries() {
		if s, ok := e.Data["action_state"].(ActionState); ok {
			states = append(states, s)
		}
	}
	return states
}

// announcedIndices lists the waypoint indices announced, in order, skipping reached flags.
func (h *harness) announcedIndices() []int {
	var idx []int
	for _, p := range h.progress {
		if !p.Reached && p.MissionID != uuid.Nil {
			idx = append(idx, p.Index)
		}
	}
	return idx
}

func squareMission() Mission {
	return Mission{
		Waypoints: []Waypoint{
			{Coordinate: at(0, 0), Altitude: 10},
			{Coordinate: at(0, 30), Altitude: 10},
			{Coordinate: at(30, 30), Altitude: 10},
		},
		AutoFlightSpeed: 5,
		RepeatTimes:     1,
	}
}
