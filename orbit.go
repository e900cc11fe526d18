// orbit.go

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

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	orbitCaptureDistance = 2.0 // first waypoint counts as passed inside this distance
	orbitCaptureAngle    = 4.0
	maxRadialSpeed       = 5.0
)

// orbitState tracks a circle flown around the point of interest.
type orbitState struct {
	center    Coordinate
	radius    float64
	heading   HotpointHeading
	clockwise bool
	shoot     bool
	angles    []float64 // bearing from the centre to each waypoint
	target    float64
	captured  bool
}

func newOrbit(plane Plane, m *Mission) *orbitState {
	o := &orbitState{
		center:    *m.PointOfInterest,
		radius:    plane.Distance(m.Waypoints[0].Coordinate, *m.PointOfInterest),
		heading:   m.Orbit.Heading,
		clockwise: m.Orbit.Clockwise,
		shoot:     m.Orbit.ShootPhotoAtWaypoints,
		angles:    make([]float64, len(m.Waypoints)),
	}
	for i, wp := range m.Waypoints {
		o.angles[i] = normalDegree(plane.Bearing(o.center, wp.Coordinate))
	}
	o.target = o.angles[0]
	return o
}

// axisMap maps the tangential speed and the radial correction (positive
// outwards) onto the body axes for one hotpoint heading.
type axisMap struct {
	rollRadial, rollTangential   float64
	pitchRadial, pitchTangential float64
}

func (m axisMap) apply(radial, tangential float64) (roll, pitch float64) {
	roll = m.rollRadial*radial + m.rollTangential*tangential
	pitch = m.pitchRadial*radial + m.pitchTangential*tangential
	return roll, pitch
}

// orbitAxes derives the body axis mapping from where the nose points relative
// to the centre and the direction of travel around it.
func orbitAxes(h HotpointHeading, clockwise bool) axisMap {
	s := 1.0
	if clockwise {
		s = -1
	}
	switch h {
	case AlongCircleLookingForward:
		return axisMap{rollTangential: 1, pitchRadial: s}
	case AlongCircleLookingBackward:
		return axisMap{rollTangential: -1, pitchRadial: -s}
	case AwayFromHotpoint:
		return axisMap{rollRadial: 1, pitchTangential: -s}
	}
	return axisMap{rollRadial: -1, pitchTangential: s}
}

// orbitPassed reports whether angle has gone past target in the direction of travel.
func orbitPassed(angle, target float64, clockwise bool) bool {
	angle, target = normalDegree(angle), normalDegree(target)
	if math.Abs(target-angle) > 180 {
		if angle < target {
			angle += 360
		} else {
			target += 360
		}
	}
	if clockwise {
		return angle >= target
	}
	return angle <= target
}

func (a *Autopilot) orbitHeading(pos Coordinate) float64 {
	o := a.orbit
	from := pos
	if a.plane.Distance(o.center, pos) < poiNearDistance {
		from = a.nav.targetPos
	}
	h := a.plane.Bearing(from, o.center)
	switch o.heading {
	case AlongCircleLookingForward:
		if o.clockwise {
			h -= 90
		} else {
			h += 90
		}
	case AlongCircleLookingBackward:
		if o.clockwise {
			h += 90
		} else {
			h -= 90
		}
	case AwayFromHotpoint:
		h += 180
	}
	return headingDegree(h)
}

func (a *Autopilot) orbitMotion() {
	v := a.mission.AutoFlightSpeed
	if a.motion.speed() == 0 {
		if a.motion.climbing {
			if !a.heightReached() {
				return
			}
			a.controlClimb()
		}
		if a.headingOnTarget() {
			a.holdSpeed(v)
		}
		return
	}
	o := a.orbit
	switch d := a.targetDistance(); {
	case o.captured:
		a.holdCircle()
	case d < a.cfg.ArrivalRadius:
		o.captured = true
		a.log.WithFields(logrus.Fields{"radius": o.radius, "clockwise": o.clockwise}).Info("Orbit captured")
		a.holdCircle()
	default:
		var s float64
		s, a.motion.approaching = approachSpeed(d, v, a.cfg.ArrivalRadius, a.cfg.MinApproachSpeed, a.motion.approaching)
		a.holdSpeed(s)
	}
}

// holdCircle flies the circle at cruise speed, correcting the radius.
func (a *Autopilot) holdCircle() {
	pos, ok := a.position()
	if !ok {
		return
	}
	o := a.orbit
	a.motion.cmd.Yaw = a.orbitHeading(pos)
	radial := clamp(o.radius-a.plane.Distance(pos, o.center), -maxRadialSpeed, maxRadialSpeed)
	a.motion.cmd.Roll, a.motion.cmd.Pitch = orbitAxes(o.heading, o.clockwise).apply(radial, a.mission.AutoFlightSpeed)
}

// checkOrbitPass advances the orbit target once the aircraft passes it.
func (a *Autopilot) checkOrbitPass() {
	o := a.orbit
	if !o.captured {
		return
	}
	pos, ok := a.position()
	if !ok {
		return
	}
	angle := a.plane.Bearing(o.center, pos)
	var passed bool
	if a.nav.index == 0 {
		passed = a.targetDistance() < orbitCaptureDistance || headingReached(angle, o.target, orbitCaptureAngle)
	} else {
		passed = orbitPassed(angle, o.target, o.clockwise)
	}
	if !passed {
		return
	}
	if o.shoot {
		a.capturePhoto(false)
	}
	a.markReached()
	idx := a.nav.index + 1
	if idx >= len(a.mission.Waypoints) {
		a.repeat--
		if a.repeat <= 0 {
			a.finish()
			return
		}
		idx = 0
	}
	a.orbitLeg(idx)
}

func (a *Autopilot) orbitLeg(idx int) {
	wp := a.mission.Waypoints[idx]
	a.nav.index = idx
	a.nav.target = wp
	a.nav.targetPos = wp.Coordinate
	a.orbit.target = a.orbit.angles[idx]
	a.motion.cmd.Vertical = wp.Altitude
	a.legID = uuid.New()
	a.log.WithField("waypoint", idx).Debug("Orbit target")
	a.setProgress(ExecutionProgress{MissionID: a.mission.ID, Index: idx, Mute: true})
}
