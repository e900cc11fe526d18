// autopilot.go

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
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

const streamBuffer = 16

// Autopilot flies a Mission on a Vehicle.
// Create one with New and keep Run going for its lifetime.
type Autopilot struct {
	vehicle   Vehicle
	camera    Camera
	cfg       Config
	log       logrus.FieldLogger
	chain     func() (Mission, bool)
	afterFunc func(time.Duration, func())

	queueMu sync.Mutex
	queue   []func()
	wake    chan struct{}
	done    chan struct{}

	ticker *time.Ticker
	tickC  <-chan time.Time

	snapMu      sync.RWMutex
	snapState   ExecutionState
	snapProg    ExecutionProgress
	snapMission *Mission

	streamMu    sync.Mutex
	stateSubs   []chan ExecutionState
	progSubs    []chan ExecutionProgress
	loopStarted bool

	// owned by the loop goroutine
	state         ExecutionState
	mission       *Mission
	plane         Plane
	repeat        int
	resumePending bool
	lastFlight    FlightState
	phase         phase
	nav           navContext
	motion        motion
	curve         *curveTurn
	orbit         *orbitState
	seq           sequencer
	progress      ExecutionProgress
	clockwise     bool      // heading interpolation direction, kept between legs
	session       uuid.UUID // changes on every reset
	legID         uuid.UUID // changes on every waypoint advance and reset
	recovery      uuid.UUID // changes on every link restore
}

// Option configures an Autopilot.
type Option func(*Autopilot)

// WithConfig overrides the default tunables.
func WithConfig(cfg Config) Option {
	return func(a *Autopilot) { a.cfg = cfg.withDefaults() }
}

// WithLogger sets the logger, logrus.StandardLogger() by default.
func WithLogger(log logrus.FieldLogger) Option {
	return func(a *Autopilot) { a.log = log }
}

// WithCamera attaches a camera; without one camera and gimbal actions complete at once.
func WithCamera(cam Camera) Option {
	return func(a *Autopilot) { a.camera = cam }
}

// WithMissionChain installs a hook asked for a follow-up mission when the
// last repeat completes. A returned mission replaces the finished action and
// is loaded ready for upload.
func WithMissionChain(next func() (Mission, bool)) Option {
	return func(a *Autopilot) { a.chain = next }
}

func withAfterFunc(f func(time.Duration, func())) Option {
	return func(a *Autopilot) { a.afterFunc = f }
}

// New creates an autopilot for v.
func New(v Vehicle, opts ...Option) *Autopilot {
	a := &Autopilot{
		vehicle: v,
		cfg:     DefaultConfig(),
		log:     logrus.StandardLogger(),
		afterFunc: func(d time.Duration, f func()) {
			time.AfterFunc(d, f)
		},
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
		clockwise: true,
		repeat:    1,
		nav:       navContext{index: -1},
		session:   uuid.New(),
		legID:     uuid.New(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run processes requests, device completions and control ticks until ctx is done.
// Any mission in progress is stopped on exit.
func (a *Autopilot) Run(ctx context.Context) error {
	a.streamMu.Lock()
	if a.loopStarted {
		a.streamMu.Unlock()
		return ErrInvalidState
	}
	a.loopStarted = true
	a.streamMu.Unlock()
	defer close(a.done)
	for {
		select {
		case <-ctx.Done():
			a.drain()
			if a.state == Executing || a.state == Paused {
				a.stop()
			}
			a.stopTicker()
			return ctx.Err()
		case <-a.wake:
			a.drain()
		case <-a.tickC:
			a.drain()
			a.tick()
		}
	}
}

// post queues fn to run on the loop goroutine; it never blocks.
func (a *Autopilot) post(fn func()) {
	a.queueMu.Lock()
	a.queue = append(a.queue, fn)
	a.queueMu.Unlock()
	select {
	case a.wake <- struct{}{}:
	default:
	}
}

func (a *Autopilot) drain() {
	for {
		a.queueMu.Lock()
		if len(a.queue) == 0 {
			a.queueMu.Unlock()
			return
		}
		fn := a.queue[0]
		a.queue = a.queue[1:]
		a.queueMu.Unlock()
		fn()
	}
}

// call runs fn on the loop and waits for it to reply.
func (a *Autopilot) call(ctx context.Context, fn func(reply func(error))) error {
	res := make(chan error, 1)
	a.post(func() {
		fn(func(err error) {
			select {
			case res <- err:
			default:
			}
		})
	})
	select {
	case err := <-res:
		return err
	case <-a.done:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

// completion wraps a device callback so that it runs on the loop.
func (a *Autopilot) completion(fn func(error)) func(error) {
	return func(err error) {
		a.post(func() { fn(err) })
	}
}

// after runs fn on the loop once d has elapsed.
func (a *Autopilot) after(d time.Duration, fn func()) {
	a.afterFunc(d, func() { a.post(fn) })
}

func (a *Autopilot) startTicker() {
	if a.ticker != nil {
		return
	}
	a.ticker = time.NewTicker(a.cfg.period())
	a.tickC = a.ticker.C
}

func (a *Autopilot) stopTicker() {
	if a.ticker == nil {
		return
	}
	a.ticker.Stop()
	a.ticker = nil
	a.tickC = nil
}

// Attach checks that the vehicle can be flown by virtual stick.
func (a *Autopilot) Attach() error {
	return a.call(context.Background(), func(reply func(error)) {
		a.attach()
		reply(nil)
	})
}

// Load validates m and makes it the current mission.
func (a *Autopilot) Load(m Mission) error {
	return a.call(context.Background(), func(reply func(error)) {
		reply(a.load(m))
	})
}

// Upload enables supervisory control, readying the loaded mission for Start.
func (a *Autopilot) Upload(ctx context.Context) error {
	return a.call(ctx, a.upload)
}

// Start begins flying the uploaded mission, taking off first when on the ground.
func (a *Autopilot) Start(ctx context.Context) error {
	return a.call(ctx, a.start)
}

// Pause suspends the control loop; the aircraft holds its last command.
func (a *Autopilot) Pause() error {
	return a.call(context.Background(), func(reply func(error)) {
		reply(a.pause())
	})
}

// Resume restarts the control loop after Pause.
func (a *Autopilot) Resume() error {
	return a.call(context.Background(), func(reply func(error)) {
		reply(a.resume())
	})
}

// Stop abandons the mission and returns to ReadyToUpload. It is safe in any state.
func (a *Autopilot) Stop() error {
	return a.call(context.Background(), func(reply func(error)) {
		a.stop()
		reply(nil)
	})
}

// LinkLost tells the autopilot that the remote-control link dropped.
func (a *Autopilot) LinkLost() {
	a.post(a.linkLost)
}

// LinkRestored tells the autopilot that the remote-control link is back.
func (a *Autopilot) LinkRestored() {
	a.post(a.linkRestored)
}

// State returns the current execution state.
func (a *Autopilot) State() ExecutionState {
	a.snapMu.RLock()
	defer a.snapMu.RUnlock()
	return a.snapState
}

// Progress returns the most recent progress snapshot.
func (a *Autopilot) Progress() ExecutionProgress {
	a.snapMu.RLock()
	defer a.snapMu.RUnlock()
	return a.snapProg
}

// LoadedMission returns a copy of the current mission, if any.
func (a *Autopilot) LoadedMission() (Mission, bool) {
	a.snapMu.RLock()
	defer a.snapMu.RUnlock()
	if a.snapMission == nil {
		return Mission{}, false
	}
	return a.snapMission.clone(), true
}

// StreamStates returns a channel receiving every state transition.
// Slow readers miss transitions rather than stall the autopilot.
func (a *Autopilot) StreamStates() <-chan ExecutionState {
	ch := make(chan ExecutionState, streamBuffer)
	a.streamMu.Lock()
	a.stateSubs = append(a.stateSubs, ch)
	a.streamMu.Unlock()
	return ch
}

// StreamProgress returns a channel receiving every progress snapshot.
func (a *Autopilot) StreamProgress() <-chan ExecutionProgress {
	ch := make(chan ExecutionProgress, streamBuffer)
	a.streamMu.Lock()
	a.progSubs = append(a.progSubs, ch)
	a.streamMu.Unlock()
	return ch
}

func (a *Autopilot) setState(s ExecutionState) {
	if a.state == s {
		return
	}
	a.log.WithFields(logrus.Fields{"from": a.state, "state": s}).Info("Mission state changed")
	a.state = s
	a.snapMu.Lock()
	a.snapState = s
	a.snapMu.Unlock()
	a.streamMu.Lock()
	for _, ch := range a.stateSubs {
		select {
		case ch <- s:
		default:
		}
	}
	a.streamMu.Unlock()
}

func (a *Autopilot) setProgress(p ExecutionProgress) {
	a.progress = p
	a.snapMu.Lock()
	a.snapProg = p
	a.snapMu.Unlock()
	a.streamMu.Lock()
	for _, ch := range a.progSubs {
		select {
		case ch <- p:
		default:
		}
	}
	a.streamMu.Unlock()
}

func (a *Autopilot) setMission(m *Mission) {
	a.mission = m
	a.snapMu.Lock()
	a.snapMission = m
	a.snapMu.Unlock()
}

func (a *Autopilot) attach() {
	if !a.vehicle.SupportsSupervisoryControl() {
		a.setState(NotSupported)
		return
	}
	a.setState(ReadyToUpload)
}

func (a *Autopilot) load(m Mission) error {
	switch a.state {
	case Uploading, Executing, Paused, Recovering, NotSupported:
		return &StateError{Op: "load", State: a.state}
	}
	if err := m.validate(a.cfg); err != nil {
		return err
	}
	mc := m.clone()
	if mc.ID == uuid.Nil {
		mc.ID = uuid.New()
	}
	a.reset()
	a.setMission(&mc)
	a.plane = NewPlane(mc.Waypoints[0].Coordinate)
	a.repeat = mc.RepeatTimes
	if a.repeat < 1 {
		a.repeat = 1
	}
	a.log.WithFields(logrus.Fields{"mission": mc.ID, "waypoints": len(mc.Waypoints)}).Info("Mission loaded")
	return nil
}

func (a *Autopilot) upload(reply func(error)) {
	if a.state != ReadyToUpload {
		reply(&StateError{Op: "upload", State: a.state})
		return
	}
	if a.mission == nil {
		reply(ErrNoMission)
		return
	}
	a.setState(Uploading)
	session := a.session
	a.vehicle.EnableSupervisoryControl(true, a.completion(func(err error) {
		if a.session != session || a.state != Uploading {
			reply(ErrCancelled)
			return
		}
		if err != nil {
			a.log.WithError(err).Warn("Cannot enable virtual stick")
			a.setState(ReadyToUpload)
			reply(&DeviceCommandError{Op: "enable supervisory control", Err: err})
			return
		}
		a.setState(ReadyToExecute)
		reply(nil)
	}))
}

func (a *Autopilot) start(reply func(error)) {
	if a.state != ReadyToExecute {
		reply(&StateError{Op: "start", State: a.state})
		return
	}
	if a.mission == nil {
		a.setState(ReadyToUpload)
		reply(ErrNoMission)
		return
	}
	if !a.vehicle.SupervisoryControlEnabled() {
		a.setState(ReadyToUpload)
		reply(ErrNotAvailable)
		return
	}
	if a.vehicle.GPSLevel() < a.cfg.HomePointGPSLevel {
		reply(&PreconditionError{Code: GPSSignalWeak})
		return
	}
	fs := a.vehicle.FlightState()
	if fs.Landing {
		reply(&PreconditionError{Code: AircraftLanding})
		return
	}
	if fs.GoingHome {
		reply(&PreconditionError{Code: AircraftGoingHome})
		return
	}
	if fs.Flying {
		a.begin()
		reply(nil)
		return
	}
	session := a.session
	a.log.WithField("mission", a.mission.ID).Info("Taking off")
	a.vehicle.TakeOff(a.completion(func(err error) {
		if a.session != session || a.state != ReadyToExecute {
			reply(ErrCancelled)
			return
		}
		if err != nil {
			a.log.WithError(err).Warn("Take-off failed")
			reply(&DeviceCommandError{Op: "take off", Err: err})
			return
		}
		a.begin()
		reply(nil)
	}))
}

// begin starts the climb to the first waypoint and the control ticker.
func (a *Autopilot) begin() {
	a.motion = motion{active: true, climbing: true}
	a.lastFlight = a.vehicle.FlightState()
	a.phase = phaseSend
	a.nav = navContext{index: -1}
	if a.mission.Orbiting() {
		a.orbit = newOrbit(a.plane, a.mission)
	}
	a.setState(Executing)
	a.startTicker()
	a.advance()
}

func (a *Autopilot) pause() error {
	if a.state != Executing {
		return &StateError{Op: "pause", State: a.state}
	}
	a.stopTicker()
	a.setState(Paused)
	return nil
}

func (a *Autopilot) resume() error {
	if a.state != Paused {
		return &StateError{Op: "resume", State: a.state}
	}
	a.resumePending = false
	a.setState(Executing)
	a.startTicker()
	return nil
}

// stop releases the vehicle and resets everything. Device failures are logged together.
func (a *Autopilot) stop() { a.release(nil) }

// release is stop with a follow-up: then runs on the loop once supervisory
// control is off, whether or not disabling it succeeded.
func (a *Autopilot) release(then func()) {
	var errs error
	pending := 0
	collect := func(op string, next func()) func(error) {
		pending++
		return a.completion(func(err error) {
			if err != nil {
				errs = multierr.Append(errs, &DeviceCommandError{Op: op, Err: err})
			}
			pending--
			if pending == 0 && errs != nil {
				a.log.WithError(errs).Warn("Mission teardown incomplete")
			}
			if next != nil {
				next()
			}
		})
	}
	if a.mission != nil {
		a.log.WithField("mission", a.mission.ID).Info("Stopping mission")
	}
	a.vehicle.EnableSupervisoryControl(false, collect("disable supervisory control", then))
	if a.camera != nil {
		a.camera.RotateGimbal(0, collect("level gimbal", nil))
		if a.camera.IsRecording() {
			a.camera.StopRecord(collect("stop record", nil))
		}
	}
	a.reset()
}

func (a *Autopilot) reset() {
	a.stopTicker()
	a.setMission(nil)
	a.repeat = 1
	a.resumePending = false
	a.phase = phaseSend
	a.nav = navContext{index: -1}
	a.motion = motion{}
	a.curve = nil
	a.orbit = nil
	a.seq = sequencer{}
	a.clockwise = true
	a.session = uuid.New()
	a.legID = uuid.New()
	a.setProgress(ExecutionProgress{})
	a.setState(ReadyToUpload)
}

func (a *Autopilot) linkLost() {
	if a.mission == nil {
		return
	}
	switch a.state {
	case Executing:
	case Paused:
		return
	case Recovering:
		// the next restore starts a fresh re-enable
		a.log.Warn("Remote control link lost again while recovering, pausing mission")
		a.resumePending = true
		a.setState(Paused)
		return
	default:
		a.setState(Disconnected)
		return
	}
	if a.mission.ExitMissionOnRCSignalLost {
		a.log.Warn("Remote control link lost, abandoning mission")
		a.stop()
		return
	}
	a.log.Warn("Remote control link lost, pausing mission")
	a.resumePending = true
	a.pause()
}

func (a *Autopilot) linkRestored() {
	if !a.resumePending {
		if a.state == Disconnected || a.state == Unknown {
			a.attach()
		}
		return
	}
	a.resumePending = false
	a.setState(Recovering)
	fs := a.vehicle.FlightState()
	if fs.GoingHome || fs.Landing || !fs.Flying {
		a.log.Info("Aircraft no longer flying the mission after link loss")
		a.stop()
		return
	}
	if a.vehicle.SupervisoryControlEnabled() {
		a.recover()
		return
	}
	a.recovery = uuid.New()
	session, attempt := a.session, a.recovery
	a.vehicle.EnableSupervisoryControl(true, a.completion(func(err error) {
		if a.session != session || a.recovery != attempt || a.state != Recovering {
			return
		}
		if err != nil {
			a.log.WithError(err).Warn("Cannot re-enable virtual stick after link loss")
			a.stop()
			return
		}
		a.recover()
	}))
}

func (a *Autopilot) recover() {
	a.log.Info("Resuming mission after link loss")
	a.setState(Executing)
	a.startTicker()
}
