// loop.go

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

import "github.com/sirupsen/logrus"

// phase is the slot of the four-tick control cycle.
type phase int

const (
	phaseSend     phase = iota // transmit the current command
	phaseProgress              // publish progress, interval photos, orbit passes
	phaseHeading               // hold the target heading
	phaseMotion                // speed, climb and the action sub-machine
	numPhases
)

func (p phase) next() phase { return (p + 1) % numPhases }

func (a *Autopilot) tick() {
	if a.state != Executing || a.mission == nil {
		return
	}
	if a.watchFlightState() {
		return
	}
	p := a.phase
	a.phase = p.next()
	if a.orbit != nil {
		a.orbitPhase(p)
		return
	}
	a.waypointPhase(p)
}

// watchFlightState stops the mission when the aircraft starts going home or
// stops flying behind the autopilot's back.
func (a *Autopilot) watchFlightState() bool {
	fs := a.vehicle.FlightState()
	last := a.lastFlight
	a.lastFlight = fs
	if (fs.GoingHome && !last.GoingHome) || (!fs.Flying && last.Flying) {
		a.log.WithFields(logrus.Fields{"going_home": fs.GoingHome, "flying": fs.Flying}).Warn("Aircraft left mission control")
		a.stop()
		return true
	}
	return false
}

func (a *Autopilot) waypointPhase(p phase) {
	switch p {
	case phaseSend:
		a.sendCommand()
	case phaseProgress:
		a.checkPhotoDistance()
	case phaseHeading:
		if a.seq.state == ActionExecuting {
			return
		}
		a.controlHeading()
	case phaseMotion:
		if a.controlSpeed() {
			return
		}
		if a.controlClimb() {
			return
		}
		a.updateActionState()
	}
}

func (a *Autopilot) orbitPhase(p phase) {
	switch p {
	case phaseSend:
		a.sendCommand()
	case phaseProgress:
		a.checkOrbitPass()
	case phaseHeading:
		if h, ok := a.targetHeading(); ok {
			a.motion.cmd.Yaw = headingDegree(h)
			a.sendCommand()
		}
	case phaseMotion:
		a.orbitMotion()
	}
}

func (a *Autopilot) sendCommand() {
	if !a.motion.active {
		return
	}
	a.vehicle.SendControl(a.motion.cmd)
}
