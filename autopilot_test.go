// autopilot_test.go

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
	"context"
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"github.com/google/uuid"
)

func TestLoadThenStop(t *testing.T) {
	h := newHarness(t)
	h.load(squareMission())
	if h.a.state != ReadyToUpload {
		t.Errorf("Expected %s got, %s", ReadyToUpload, h.a.state)
	}
	m, ok := h.a.LoadedMission()
	if !ok || m.ID == uuid.Nil || len(m.Waypoints) != 3 {
		t.Fatalf("Loaded mission not retained: %+v", m)
	}
	h.a.repeat = 5
	h.a.stop()
	h.a.drain()
	if _, ok := h.a.LoadedMission(); ok {
		t.Error("Mission still loaded after stop")
	}
	if h.a.state != ReadyToUpload || h.a.repeat != 1 || h.a.Progress() != (ExecutionProgress{}) {
		t.Errorf("Stop did not reset: state %s repeat %d progress %+v", h.a.state, h.a.repeat, h.a.Progress())
	}
	if h.v.called("enable:false") != 1 {
		t.Errorf("Expected supervisory control to be disabled once, calls %v", h.v.calls)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.a.stop()
	h.a.stop()
	h.a.drain()
	if h.a.state != ReadyToUpload {
		t.Errorf("Expected %s got, %s", ReadyToUpload, h.a.state)
	}
}

func TestLoadInvalidLeavesState(t *testing.T) {
	h := newHarness(t)
	h.load(squareMission())
	loaded, _ := h.a.LoadedMission()

	bad := squareMission()
	bad.AutoFlightSpeed = 0
	bad.Waypoints[1].Altitude = 900
	bad.Waypoints[2].Actions = []Action{Wait(-1)}
	err := h.a.load(bad)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Expected ValidationError got, %v", err)
	}
	if n := len(verr.Problems()); n != 3 {
		t.Errorf("Expected 3 problems got, %d: %v", n, err)
	}
	if m, _ := h.a.LoadedMission(); m.ID != loaded.ID {
		t.Error("Invalid mission replaced the loaded one")
	}
}

func TestLoadRejectedWhileExecuting(t *testing.T) {
	h := newHarness(t)
	h.launch(squareMission())
	err := h.a.load(squareMission())
	if !errors.Is(err, ErrInvalidState) {
		t.Errorf("Expected ErrInvalidState got, %v", err)
	}
}

func TestUpload(t *testing.T) {
	h := newHarness(t)
	if err := h.do(h.a.upload); !errors.Is(err, ErrInvalidState) && !errors.Is(err, ErrNoMission) {
		t.Errorf("Upload without mission: %v", err)
	}
	h.load(squareMission())
	h.v.enableErr = errors.New("rc mode not F")
	err := h.do(h.a.upload)
	var derr *DeviceCommandError
	if !errors.As(err, &derr) {
		t.Errorf("Expected DeviceCommandError got, %v", err)
	}
	if h.a.state != ReadyToUpload {
		t.Errorf("Expected %s got, %s", ReadyToUpload, h.a.state)
	}
	h.v.enableErr = nil
	if err := h.do(h.a.upload); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if h.a.state != ReadyToExecute {
		t.Errorf("Expected %s got, %s", ReadyToExecute, h.a.state)
	}
}

func TestUploadOvertakenByStop(t *testing.T) {
	h := newHarness(t)
	h.load(squareMission())
	h.v.hold = true
	var got error
	replied := false
	h.a.upload(func(err error) { got, replied = err, true })
	if h.a.state != Uploading {
		t.Fatalf("Expected %s got, %s", Uploading, h.a.state)
	}
	h.a.stop()
	h.v.holdEnable[0](nil)
	h.a.drain()
	if !replied || !errors.Is(got, ErrCancelled) {
		t.Errorf("Expected ErrCancelled got, %v", got)
	}
	if h.a.state != ReadyToUpload {
		t.Errorf("Stale enable completion moved state to %s", h.a.state)
	}
}

func TestStartPreconditions(t *testing.T) {
	tests := []struct {
		name   string
		gps    GPSLevel
		flight FlightState
		code   string
	}{
		{"weak gps", GPSLevel3, FlightState{Flying: true}, GPSSignalWeak},
		{"landing", GPSLevel5, FlightState{Flying: true, Landing: true}, AircraftLanding},
		{"going home", GPSLevel5, FlightState{Flying: true, GoingHome: true}, AircraftGoingHome},
		{"gps checked first", GPSLevel1, FlightState{Flying: true, Landing: true, GoingHome: true}, GPSSignalWeak},
		{"landing before going home", GPSLevel4, FlightState{Flying: true, Landing: true, GoingHome: true}, AircraftLanding},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.load(squareMission())
			if err := h.do(h.a.upload); err != nil {
				t.Fatal(err)
			}
			h.v.gps = tt.gps
			h.v.flight = tt.flight
			err := h.do(h.a.start)
			var perr *PreconditionError
			if !errors.As(err, &perr) || perr.Code != tt.code {
				t.Errorf("Expected %s got, %v", tt.code, err)
			}
			if h.a.state != ReadyToExecute {
				t.Errorf("Expected %s got, %s", ReadyToExecute, h.a.state)
			}
			if len(h.v.calls) != 1 {
				t.Errorf("Unexpected device calls %v", h.v.calls)
			}
		})
	}
}

func TestStartWithoutSupervisoryControl(t *testing.T) {
	h := newHarness(t)
	h.load(squareMission())
	if err := h.do(h.a.upload); err != nil {
		t.Fatal(err)
	}
	h.v.supervisory = false
	if err := h.do(h.a.start); !errors.Is(err, ErrNotAvailable) {
		t.Errorf("Expected ErrNotAvailable got, %v", err)
	}
	if h.a.state != ReadyToUpload {
		t.Errorf("Expected %s got, %s", ReadyToUpload, h.a.state)
	}
}

func TestStartTakesOff(t *testing.T) {
	h := newHarness(t)
	h.load(squareMission())
	if err := h.do(h.a.upload); err != nil {
		t.Fatal(err)
	}
	h.v.takeOffErr = errors.New("motors")
	var derr *DeviceCommandError
	if err := h.do(h.a.start); !errors.As(err, &derr) {
		t.Errorf("Expected DeviceCommandError got, %v", err)
	}
	if h.a.state != ReadyToExecute {
		t.Errorf("Expected %s got, %s", ReadyToExecute, h.a.state)
	}
	h.v.takeOffErr = nil
	if err := h.do(h.a.start); err != nil {
		t.Fatal(err)
	}
	if h.a.state != Executing || h.v.called("takeoff") != 2 {
		t.Errorf("Expected executing after take-off, state %s calls %v", h.a.state, h.v.calls)
	}
	if !h.a.motion.climbing || h.a.motion.cmd.Vertical != 10 {
		t.Errorf("Expected climb to 10m got, %+v", h.a.motion)
	}
}

func TestPauseResume(t *testing.T) {
	h := newHarness(t)
	if err := h.a.pause(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Expected ErrInvalidState got, %v", err)
	}
	h.v.pos.Y = -5
	h.launch(squareMission())
	h.runUntil(func() bool { return h.a.motion.speed() > 0 }, 400)
	if err := h.a.pause(); err != nil {
		t.Fatal(err)
	}
	if h.a.state != Paused || h.a.ticker != nil {
		t.Errorf("Pause left state %s ticker %v", h.a.state, h.a.ticker)
	}
	sends := h.v.sends
	h.step()
	if h.v.sends != sends {
		t.Error("Commands sent while paused")
	}
	idx := h.a.nav.index
	if err := h.a.resume(); err != nil {
		t.Fatal(err)
	}
	if h.a.state != Executing || h.a.nav.index != idx || h.a.mission == nil {
		t.Errorf("Resume lost progress: state %s index %d", h.a.state, h.a.nav.index)
	}
}

func TestLinkLossPausesAndResumes(t *testing.T) {
	h := newHarness(t)
	h.launch(squareMission())
	h.a.linkLost()
	if h.a.state != Paused || !h.a.resumePending {
		t.Fatalf("Expected paused with resume pending got, %s", h.a.state)
	}
	h.a.linkRestored()
	h.a.drain()
	if h.a.state != Executing {
		t.Errorf("Expected %s got, %s", Executing, h.a.state)
	}
}

func TestLinkLossReenablesControl(t *testing.T) {
	h := newHarness(t)
	h.launch(squareMission())
	h.a.linkLost()
	h.v.supervisory = false
	h.a.linkRestored()
	if h.a.state != Recovering {
		t.Errorf("Expected %s got, %s", Recovering, h.a.state)
	}
	h.a.drain()
	if h.a.state != Executing || !h.v.supervisory {
		t.Errorf("Expected executing with control re-enabled got, %s", h.a.state)
	}
}

func TestLinkLostAgainWhileRecovering(t *testing.T) {
	h := newHarness(t)
	h.launch(squareMission())
	h.a.linkLost()
	h.v.supervisory = false
	h.v.hold = true
	h.a.linkRestored()
	if h.a.state != Recovering {
		t.Fatalf("Expected %s got, %s", Recovering, h.a.state)
	}

	h.a.linkLost()
	if h.a.state != Paused || !h.a.resumePending {
		t.Fatalf("Expected paused with resume pending got, %s (pending %v)", h.a.state, h.a.resumePending)
	}
	h.a.linkRestored()
	if h.a.state != Recovering || len(h.v.holdEnable) != 2 {
		t.Fatalf("Expected a second re-enable got, %s %v", h.a.state, h.v.calls)
	}
	// the first attempt answers after the second began
	h.v.holdEnable[0](errors.New("timeout"))
	h.a.drain()
	if h.a.state != Recovering {
		t.Fatalf("Stale re-enable moved state to %s", h.a.state)
	}
	h.v.supervisory = true
	h.v.holdEnable[1](nil)
	h.a.drain()
	if _, ok := h.a.LoadedMission(); h.a.state != Executing || !ok {
		t.Errorf("Expected mission resumed got, %s (loaded %v)", h.a.state, ok)
	}
}

func TestLinkLossStops(t *testing.T) {
	t.Run("exit on signal lost", func(t *testing.T) {
		h := newHarness(t)
		m := squareMission()
		m.ExitMissionOnRCSignalLost = true
		h.launch(m)
		h.a.linkLost()
		h.a.drain()
		if h.a.state != ReadyToUpload || h.a.mission != nil {
			t.Errorf("Expected stopped mission got, %s", h.a.state)
		}
	})
	t.Run("landed meanwhile", func(t *testing.T) {
		h := newHarness(t)
		h.launch(squareMission())
		h.a.linkLost()
		h.v.flight.Flying = false
		h.a.linkRestored()
		h.a.drain()
		if h.a.state != ReadyToUpload || h.a.mission != nil {
			t.Errorf("Expected stopped mission got, %s", h.a.state)
		}
	})
	t.Run("control refused", func(t *testing.T) {
		h := newHarness(t)
		h.launch(squareMission())
		h.a.linkLost()
		h.v.supervisory = false
		h.v.enableErr = errors.New("refused")
		h.a.linkRestored()
		h.a.drain()
		if h.a.state != ReadyToUpload {
			t.Errorf("Expected %s got, %s", ReadyToUpload, h.a.state)
		}
	})
}

func TestLinkLossWhileIdle(t *testing.T) {
	h := newHarness(t)
	h.a.linkLost()
	if h.a.state != ReadyToUpload {
		t.Errorf("Link loss without mission changed state to %s", h.a.state)
	}
	h.load(squareMission())
	h.a.linkLost()
	if h.a.state != Disconnected {
		t.Errorf("Expected %s got, %s", Disconnected, h.a.state)
	}
	h.a.linkRestored()
	if _, ok := h.a.LoadedMission(); h.a.state != ReadyToUpload || !ok {
		t.Errorf("Expected mission kept and %s got, %s", ReadyToUpload, h.a.state)
	}
}

func TestAttachUnsupported(t *testing.T) {
	h := newHarness(t)
	h.v.supported = false
	h.a.attach()
	if h.a.state != NotSupported {
		t.Errorf("Expected %s got, %s", NotSupported, h.a.state)
	}
	if err := h.a.load(squareMission()); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Expected ErrInvalidState got, %v", err)
	}
}

func TestTelemetryEdgesStop(t *testing.T) {
	tests := []struct {
		name   string
		change func(*FlightState)
	}{
		{"going home", func(fs *FlightState) { fs.GoingHome = true }},
		{"landed", func(fs *FlightState) { fs.Flying = false }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.launch(squareMission())
			h.step()
			tt.change(&h.v.flight)
			h.step()
			if h.a.state != ReadyToUpload {
				t.Errorf("Expected %s got, %s", ReadyToUpload, h.a.state)
			}
		})
	}
}

func TestMissionRepeatsThenLands(t *testing.T) {
	h := newHarness(t)
	h.v.pos.Y = -5
	m := squareMission()
	m.RepeatTimes = 2
	m.FinishedAction = FinishAutoLand
	h.launch(m)

	if !h.runUntil(func() bool { return h.a.state != Executing }, 40000) {
		t.Fatalf("Mission did not finish, at waypoint %d action state %s", h.a.nav.index, h.a.seq.state)
	}
	if got, want := h.announcedIndices(), []int{0, 1, 2, 0, 1, 2}; !reflect.DeepEqual(got, want) {
		t.Errorf("Expected waypoints %v got, %v", want, got)
	}
	if h.v.called("land") != 1 {
		t.Errorf("Expected one land command, calls %v", h.v.calls)
	}
	if n := len(h.v.calls); n < 2 || h.v.calls[n-2] != "enable:false" || h.v.calls[n-1] != "land" {
		t.Errorf("Expected land after releasing control, calls %v", h.v.calls)
	}
	if h.a.state != ReadyToUpload || h.a.repeat != 1 {
		t.Errorf("Expected reset after completion, state %s repeat %d", h.a.state, h.a.repeat)
	}
	for _, p := range h.progress {
		if p.Mute {
			t.Errorf("Waypoint progress should not be muted: %+v", p)
		}
	}
}

func TestActionSequence(t *testing.T) {
	h := newHarness(t)
	h.v.pos.Y = -5
	h.cam.mode = CameraVideo
	m := squareMission()
	m.Waypoints[0].Actions = []Action{RotateAircraft(90), Wait(1000), ShootPhoto()}
	h.launch(m)

	if !h.runUntil(func() bool { return len(h.clk.pending) > 0 }, 4000) {
		t.Fatalf("Wait action never started, action state %s", h.a.seq.state)
	}
	if h.v.heading != 90 {
		t.Errorf("Expected heading 90 before the wait got, %f", h.v.heading)
	}
	if h.clk.pending[0].d != time.Second {
		t.Errorf("Expected 1s wait got, %v", h.clk.pending[0].d)
	}
	h.clk.fire()
	h.a.drain()
	if want := []string{"mode:photo", "photo"}; !reflect.DeepEqual(h.cam.calls, want) {
		t.Errorf("Expected camera calls %v got, %v", want, h.cam.calls)
	}
	if !h.runUntil(func() bool { return h.a.nav.index == 1 }, 400) {
		t.Fatal("Did not move on after actions")
	}
	want := []ActionState{ActionRestoring, ActionIdle, ActionReady, ActionExecuting, ActionFinished, ActionRestoring}
	if got := h.actionStates(); !reflect.DeepEqual(got[:len(want)], want) {
		t.Errorf("Expected action states %v got, %v", want, got)
	}
}

func TestActionsWaitForHeading(t *testing.T) {
	h := newHarness(t)
	h.v.pos.Y = -5
	m := squareMission()
	m.HeadingMode = HeadingUsingWaypointHeading
	m.Waypoints[1].Heading = 90
	m.Waypoints[1].Actions = []Action{Wait(1000)}
	h.launch(m)

	if !h.runUntil(func() bool { return h.a.nav.index == 1 && h.a.targetDistance() < 3 }, 8000) {
		t.Fatalf("Never approached waypoint 1, at waypoint %d", h.a.nav.index)
	}
	// the nose stops short of the waypoint heading
	h.v.follow = false
	h.v.heading = 80
	if h.runUntil(func() bool { return h.a.seq.state == ActionExecuting }, 400) {
		t.Fatalf("Actions started with heading %.1f", h.v.heading)
	}
	if d := h.a.targetDistance(); d >= h.a.cfg.ArrivalRadius {
		t.Fatalf("Expected to be holding at waypoint 1, %.2fm away", d)
	}
	if len(h.clk.pending) != 0 {
		t.Error("Wait started while turning")
	}

	h.v.follow = true
	if !h.runUntil(func() bool { return len(h.clk.pending) > 0 }, 400) {
		t.Fatalf("Wait never started, action state %s", h.a.seq.state)
	}
	if !headingReached(h.v.heading, 90, h.a.cfg.HeadingTolerance) {
		t.Errorf("Actions started at heading %.1f", h.v.heading)
	}
}

func TestPhotoRetriedOnce(t *testing.T) {
	h := newHarness(t)
	h.v.pos.Y = -5
	h.cam.shootErrs = []error{errors.New("busy")}
	m := squareMission()
	m.Waypoints[0].Actions = []Action{ShootPhoto()}
	h.launch(m)

	if !h.runUntil(func() bool { return len(h.clk.pending) > 0 }, 4000) {
		t.Fatal("Photo retry never scheduled")
	}
	if d := h.clk.pending[0].d; d != 200*time.Millisecond {
		t.Errorf("Expected 200ms retry got, %v", d)
	}
	h.clk.fire()
	h.a.drain()
	if len(h.cam.calls) != 2 || h.a.seq.state != ActionFinished {
		t.Errorf("Expected retried photo and finished actions, calls %v state %s", h.cam.calls, h.a.seq.state)
	}
}

func TestFailedActionSkipsRest(t *testing.T) {
	h := newHarness(t)
	h.v.pos.Y = -5
	h.cam.mode = CameraVideo
	h.cam.recordErr = errors.New("no sd card")
	m := squareMission()
	m.Waypoints[0].Actions = []Action{StartRecord(), RotateGimbal(-45)}
	h.launch(m)

	if !h.runUntil(func() bool { return h.a.nav.index == 1 }, 4000) {
		t.Fatal("Did not move on after failed action")
	}
	for _, c := range h.cam.calls {
		if c == "gimbal:-45" {
			t.Error("Action after the failure was run")
		}
	}
	warned := false
	for _, e := range h.hook.AllEntries() {
		if e.Message == "Action failed, skipping remaining actions" {
			warned = true
		}
	}
	if !warned {
		t.Error("Failure not logged")
	}
}

func TestStaleCompletionIgnored(t *testing.T) {
	h := newHarness(t)
	h.v.pos.Y = -5
	m := squareMission()
	m.Waypoints[0].Actions = []Action{ShootPhoto(), RotateGimbal(-30)}
	h.launch(m)
	h.cam.hold = true
	if !h.runUntil(func() bool { return len(h.cam.held) > 0 }, 4000) {
		t.Fatal("Photo never requested")
	}
	h.a.stop()
	h.a.drain()
	calls := len(h.cam.calls)
	h.cam.hold = false
	for _, done := range h.cam.held {
		done(nil)
	}
	h.a.drain()
	if len(h.cam.calls) != calls {
		t.Errorf("Completion after stop ran further actions: %v", h.cam.calls[calls:])
	}
	if h.a.state != ReadyToUpload {
		t.Errorf("Expected %s got, %s", ReadyToUpload, h.a.state)
	}
}

func TestCurvedCornerFlownWithoutStopping(t *testing.T) {
	h := newHarness(t)
	h.v.pos.Y = -5
	m := Mission{
		Waypoints: []Waypoint{
			{Coordinate: at(0, 0), Altitude: 10},
			{Coordinate: at(0, 40), Altitude: 10, CornerRadius: 10},
			{Coordinate: at(40, 40), Altitude: 10},
		},
		AutoFlightSpeed: 5,
		FlightPathMode:  PathCurved,
	}
	h.launch(m)
	corner := r3.Vector{X: 0, Y: 40}
	closest := 1e9
	stoppedAtCorner := false
	done := h.runUntil(func() bool {
		if h.a.nav.index == 1 {
			closest = math.Min(closest, h.v.pos.Sub(corner).Norm())
			if h.a.seq.state == ActionReady {
				stoppedAtCorner = true
			}
		}
		return h.a.state != Executing
	}, 20000)
	if !done {
		t.Fatalf("Mission did not finish, at waypoint %d", h.a.nav.index)
	}
	if stoppedAtCorner {
		t.Error("Aircraft stopped at the curved corner")
	}
	if closest < 3 {
		t.Errorf("Expected the corner to be cut by the arc, closest approach %.2fm", closest)
	}
	if got, want := h.announcedIndices(), []int{0, 1, 2}; !reflect.DeepEqual(got, want) {
		t.Errorf("Expected waypoints %v got, %v", want, got)
	}
}

func TestOrbitCompletesCircle(t *testing.T) {
	h := newHarness(t)
	h.v.pos.Y = 15
	poi := at(0, 0)
	m := Mission{
		Waypoints: []Waypoint{
			{Coordinate: at(0, 20), Altitude: 10},
			{Coordinate: at(20, 0), Altitude: 10},
			{Coordinate: at(0, -20), Altitude: 10},
		},
		AutoFlightSpeed: 5,
		PointOfInterest: &poi,
		Orbit:           &Orbit{Heading: TowardHotpoint, Clockwise: true, ShootPhotoAtWaypoints: true},
		FinishedAction:  FinishGoHome,
	}
	h.launch(m)
	maxRadiusError := 0.0
	done := h.runUntil(func() bool {
		if h.a.orbit != nil && h.a.orbit.captured {
			maxRadiusError = math.Max(maxRadiusError, math.Abs(h.v.pos.Norm()-20))
		}
		return h.a.state != Executing
	}, 20000)
	if !done {
		t.Fatalf("Orbit did not finish, at waypoint %d", h.a.nav.index)
	}
	if got, want := h.announcedIndices(), []int{0, 1, 2}; !reflect.DeepEqual(got, want) {
		t.Errorf("Expected waypoints %v got, %v", want, got)
	}
	for _, p := range h.progress {
		if p.MissionID != uuid.Nil && !p.Mute {
			t.Errorf("Orbit progress should be muted: %+v", p)
		}
	}
	if maxRadiusError > 1 {
		t.Errorf("Radius drifted by %.2fm", maxRadiusError)
	}
	if n := len(h.cam.calls); n < 3 {
		t.Errorf("Expected a photo per waypoint got, %v", h.cam.calls)
	}
	if n := len(h.v.calls); n < 2 || h.v.calls[n-2] != "enable:false" || h.v.calls[n-1] != "go_home" {
		t.Errorf("Expected go home after releasing control, calls %v", h.v.calls)
	}
}

func TestMissionChain(t *testing.T) {
	next := squareMission()
	next.ID = uuid.New()
	chained := false
	h := newHarness(t, WithMissionChain(func() (Mission, bool) {
		if chained {
			return Mission{}, false
		}
		chained = true
		return next, true
	}))
	h.v.pos.Y = -5
	m := squareMission()
	m.FinishedAction = FinishAutoLand
	h.launch(m)
	h.runUntil(func() bool { return h.a.state != Executing }, 40000)
	if h.v.called("land") != 0 {
		t.Error("Finished action run despite chained mission")
	}
	loaded, ok := h.a.LoadedMission()
	if !ok || loaded.ID != next.ID || h.a.state != ReadyToUpload {
		t.Errorf("Chained mission not loaded, state %s", h.a.state)
	}
}

func TestPublicAPI(t *testing.T) {
	v := newFakeVehicle()
	v.flight.Flying = true
	a := New(v, WithConfig(Config{TickRate: 200}))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	states := a.StreamStates()
	go a.Run(ctx)

	if err := a.Attach(); err != nil {
		t.Fatal(err)
	}
	if err := a.Load(squareMission()); err != nil {
		t.Fatal(err)
	}
	if err := a.Upload(ctx); err != nil {
		t.Fatal(err)
	}
	if err := a.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if a.State() != Executing {
		t.Errorf("Expected %s got, %s", Executing, a.State())
	}
	if err := a.Pause(); err != nil {
		t.Fatal(err)
	}
	if err := a.Resume(); err != nil {
		t.Fatal(err)
	}
	if err := a.Stop(); err != nil {
		t.Fatal(err)
	}
	want := []ExecutionState{ReadyToUpload, Uploading, ReadyToExecute, Executing, Paused, Executing, ReadyToUpload}
	for i, w := range want {
		select {
		case s := <-states:
			if s != w {
				t.Errorf("State %d: expected %s got, %s", i, w, s)
			}
		case <-time.After(time.Second):
			t.Fatalf("State %d (%s) never streamed", i, w)
		}
	}
	cancel()
	a.Stop() // must return once the loop has exited
}
