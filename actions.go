// actions.go

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
	"math"
	"time"

	"github.com/sirupsen/logrus"
)

const photoTolerance = 0.5 // metres of slack before the interval distance

type stepKind int

const (
	stepRotateAircraft stepKind = iota
	stepRotateGimbal
	stepSetMode
	stepShootPhoto
	stepStartRecord
	stepStopRecord
	stepWait
)

// step is one device operation; an action expands into one or more.
type step struct {
	kind  stepKind
	param float64
	mode  CameraMode
}

// sequencer runs the actions of the waypoint just reached.
type sequencer struct {
	state   ActionState
	actions []Action
	index   int
	steps   []step
	step    int
	retried bool

	awaitHeading bool
	heading      float64
	awaitGimbal  bool
	gimbal       float64
}

func (a *Autopilot) setActionState(s ActionState) {
	if a.seq.state == s {
		return
	}
	a.log.WithFields(logrus.Fields{"waypoint": a.nav.index, "action_state": s}).Debug("Action state changed")
	a.seq.state = s
}

// updateActionState drives the sub-machine once the aircraft is stationary.
func (a *Autopilot) updateActionState() {
	switch a.seq.state {
	case ActionIdle:
		onHeading := a.headingOnTarget()
		if !a.motion.turning && a.heightReached() && onHeading {
			if a.motion.approaching {
				a.setActionState(ActionReady)
			} else {
				a.setActionState(ActionRestoring)
			}
		}
		if onHeading {
			a.motion.turning = false
		}
	case ActionReady:
		if a.startActions() {
			a.setActionState(ActionExecuting)
			a.runAction()
		} else {
			a.setActionState(ActionFinished)
		}
	case ActionExecuting:
		a.checkActionProgress()
	case ActionFinished:
		a.setActionState(ActionRestoring)
		a.advance()
	case ActionRestoring:
		if a.headingOnTarget() {
			a.holdSpeed(a.mission.AutoFlightSpeed)
			a.motion.turning = false
			a.motion.approaching = false
			a.setActionState(ActionIdle)
		}
	}
}

func (a *Autopilot) startActions() bool {
	acts := a.nav.target.Actions
	if len(acts) == 0 {
		return false
	}
	a.seq.actions = acts
	a.seq.index = 0
	return true
}

// expand turns an action into its steps, reading the camera state now.
func (a *Autopilot) expand(act Action) []step {
	switch act.Kind {
	case ActionRotateAircraft:
		return []step{{kind: stepRotateAircraft, param: act.Param}}
	case ActionRotateGimbal:
		return []step{{kind: stepRotateGimbal, param: act.Param}}
	case ActionShootPhoto:
		if a.camera != nil && a.camera.Mode() != CameraPhoto {
			return []step{{kind: stepSetMode, mode: CameraPhoto}, {kind: stepShootPhoto}}
		}
		return []step{{kind: stepShootPhoto}}
	case ActionStartRecord:
		if a.camera != nil && a.camera.Mode() != CameraVideo {
			return []step{{kind: stepSetMode, mode: CameraVideo}, {kind: stepStartRecord}}
		}
		return []step{{kind: stepStartRecord}}
	case ActionStopRecord:
		return []step{{kind: stepStopRecord}}
	case ActionWait:
		return []step{{kind: stepWait, param: act.Param}}
	}
	return nil
}

func (a *Autopilot) runAction() {
	act := a.seq.actions[a.seq.index]
	a.log.WithFields(logrus.Fields{"waypoint": a.nav.index, "action": act}).Info("Running action")
	a.seq.steps = a.expand(act)
	a.seq.step = 0
	a.seq.retried = false
	if len(a.seq.steps) == 0 {
		a.nextAction()
		return
	}
	a.runStep()
}

func (a *Autopilot) runStep() {
	st := a.seq.steps[a.seq.step]
	leg := a.legID
	stale := func() bool {
		return a.legID != leg || a.seq.state != ActionExecuting
	}
	// then completes the step, aborting the action list on failure.
	then := func(op string) func(error) {
		return a.completion(func(err error) {
			if stale() {
				return
			}
			if err != nil {
				a.abortActions(op, err)
				return
			}
			a.nextStep()
		})
	}
	cam := a.camera
	if cam == nil && st.kind != stepRotateAircraft && st.kind != stepWait {
		a.nextStep()
		return
	}
	switch st.kind {
	case stepRotateAircraft:
		a.seq.heading = st.param
		a.seq.awaitHeading = true
		a.motion.cmd.Yaw = headingDegree(st.param)
	case stepRotateGimbal:
		a.seq.gimbal = st.param
		a.seq.awaitGimbal = true
		cam.RotateGimbal(st.param, a.completion(func(err error) {
			if !stale() && err != nil {
				a.abortActions("rotate gimbal", err)
			}
		}))
	case stepSetMode:
		cam.SetMode(st.mode, then("set camera mode"))
	case stepShootPhoto:
		cam.StartShootPhoto(a.completion(func(err error) {
			if stale() {
				return
			}
			if err == nil {
				a.nextStep()
				return
			}
			if a.seq.retried {
				a.abortActions("shoot photo", err)
				return
			}
			a.seq.retried = true
			a.log.WithError(err).Warn("Photo failed, retrying")
			a.after(seconds(a.cfg.PhotoRetrySeconds), func() {
				if !stale() {
					a.runStep()
				}
			})
		}))
	case stepStartRecord:
		cam.StartRecord(then("start record"))
	case stepStopRecord:
		cam.StopRecord(then("stop record"))
	case stepWait:
		a.after(time.Duration(st.param)*time.Millisecond, func() {
			if !stale() {
				a.nextStep()
			}
		})
	}
}

func (a *Autopilot) nextStep() {
	a.seq.step++
	if a.seq.step < len(a.seq.steps) {
		a.runStep()
		return
	}
	a.nextAction()
}

func (a *Autopilot) nextAction() {
	a.seq.index++
	if a.seq.index < len(a.seq.actions) {
		a.runAction()
		return
	}
	a.setActionState(ActionFinished)
}

func (a *Autopilot) abortActions(op string, err error) {
	a.log.WithError(&DeviceCommandError{Op: op, Err: err}).WithField("waypoint", a.nav.index).Warn("Action failed, skipping remaining actions")
	a.seq.awaitHeading = false
	a.seq.awaitGimbal = false
	a.setActionState(ActionFinished)
}

// checkActionProgress completes rotation steps once the aircraft or gimbal gets there.
func (a *Autopilot) checkActionProgress() {
	switch {
	case a.seq.awaitHeading:
		h, ok := a.vehicle.Heading()
		if !ok || !headingReached(h, a.seq.heading, a.cfg.HeadingTolerance) {
			return
		}
		a.seq.awaitHeading = false
	case a.seq.awaitGimbal:
		if math.Abs(a.camera.GimbalPitch()-a.seq.gimbal) >= a.cfg.GimbalTolerance {
			return
		}
		a.seq.awaitGimbal = false
	default:
		return
	}
	if a.cfg.ActionSettleSeconds <= 0 {
		a.nextStep()
		return
	}
	leg := a.legID
	a.after(seconds(a.cfg.ActionSettleSeconds), func() {
		if a.legID == leg && a.seq.state == ActionExecuting {
			a.nextStep()
		}
	})
}

// checkPhotoDistance takes a photo every interval metres along the leg.
func (a *Autopilot) checkPhotoDistance() {
	if !a.nav.photoArmed {
		return
	}
	pos, ok := a.position()
	if !ok {
		return
	}
	if a.plane.Distance(a.nav.photoFrom, pos)+photoTolerance > a.nav.photoEvery {
		a.nav.photoFrom = pos
		a.capturePhoto(false)
	}
}

// capturePhoto shoots outside the action list, switching to photo mode if
// needed; a failure is retried once.
func (a *Autopilot) capturePhoto(retry bool) {
	cam := a.camera
	if cam == nil {
		return
	}
	session := a.session
	if cam.Mode() != CameraPhoto {
		cam.SetMode(CameraPhoto, a.completion(func(err error) {
			if a.session != session {
				return
			}
			if err != nil {
				a.log.WithError(err).Warn("Cannot switch camera to photo mode")
				return
			}
			if !retry {
				a.capturePhoto(true)
			}
		}))
		return
	}
	cam.StartShootPhoto(a.completion(func(err error) {
		if err == nil || a.session != session {
			return
		}
		if retry {
			a.log.WithError(err).Warn("Photo failed")
			return
		}
		a.log.WithError(err).Warn("Photo failed, retrying")
		a.after(seconds(a.cfg.PhotoRetrySeconds), func() {
			if a.session == session {
				a.capturePhoto(true)
			}
		})
	}))
}
