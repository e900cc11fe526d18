// navigation.go

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
	poiNearDistance     = 5.0 // inside this the POI bearing is taken from the target instead
	headingFreezeRadius = 1.0
	courseFreezeRadius  = 2.0
	farAway             = 1e6
)

// motion is the command being flown and the flags steering how it evolves.
type motion struct {
	cmd         ControlCommand
	active      bool // false until the mission starts; nothing is sent before
	approaching bool // sticky until the next waypoint
	turning     bool // rotating towards the next leg before accelerating
	climbing    bool // climbing to the first waypoint altitude

	lastHeading, lastCourse         float64
	haveLastHeading, haveLastCourse bool
}

func (m *motion) speed() float64 {
	return math.Hypot(m.cmd.Roll, m.cmd.Pitch)
}

// navMode is track (nose follows the course) or free (nose and course independent).
type navMode int

const (
	navTrack navMode = iota
	navFree
)

// navContext describes the leg being flown. It is rebuilt at every advance.
type navContext struct {
	index     int
	target    Waypoint
	targetPos Coordinate
	hasTarget bool
	prev      *Waypoint
	prevPos   Coordinate
	mode      navMode
	heading   headingPlan

	photoFrom  Coordinate
	photoEvery float64
	photoArmed bool
}

// headingPlan interpolates the heading between two waypoints by distance flown.
type headingPlan struct {
	start, end float64
	between    float64
	distance   float64
}

func (h headingPlan) at(remaining float64) float64 {
	if h.between == 0 || h.distance <= 0 {
		return headingDegree(h.end)
	}
	ratio := math.Max(0, 1-remaining/h.distance)
	return headingDegree(h.start + h.between*ratio)
}

func decelerationFactor(speed float64) float64 {
	if speed > 10 {
		return 2.5
	}
	return 2.0
}

// approachSpeed is the commanded speed at distance d from the target with
// cruise speed v. Once approaching, the ramp holds until the target changes;
// arriving counts as approaching.
func approachSpeed(d, v, arrival, minSpeed float64, approaching bool) (float64, bool) {
	decel := decelerationFactor(v)
	switch {
	case d < arrival:
		return 0, true
	case d < v*decel || approaching:
		return math.Min(v, math.Max(minSpeed, d/decel)), true
	}
	return v, approaching
}

// bodyVelocity mixes speed along the course and a track correction to its
// right into body forward (roll) and body right (pitch) velocities.
func bodyVelocity(speed, track, course, heading float64) (roll, pitch float64) {
	delta := radians(normalDegree(course) - normalDegree(heading))
	roll = speed*math.Cos(delta) + track*math.Sin(-delta)
	pitch = speed*math.Sin(delta) + track*math.Cos(-delta)
	return roll, pitch
}

func (a *Autopilot) position() (Coordinate, bool) {
	return a.vehicle.Position()
}

func (a *Autopilot) targetDistance() float64 {
	pos, ok := a.position()
	if !ok || !a.nav.hasTarget {
		return farAway
	}
	return a.plane.Distance(a.nav.targetPos, pos)
}

// holdSpeed sets the horizontal command to fly s m/s along the course.
func (a *Autopilot) holdSpeed(s float64) {
	course, ok := a.targetCourseHeading()
	if !ok {
		return
	}
	heading, ok := a.vehicle.Heading()
	if !ok {
		return
	}
	track := 0.0
	if s != 0 {
		track = clamp(a.trackError(), -a.cfg.MaxTrackSpeed, a.cfg.MaxTrackSpeed)
	}
	a.motion.cmd.Roll, a.motion.cmd.Pitch = bodyVelocity(s, track, course, heading)
}

// trackError is the rightward correction needed to regain the path.
func (a *Autopilot) trackError() float64 {
	if a.motion.speed() == 0 {
		return 0
	}
	pos, ok := a.position()
	if !ok {
		return 0
	}
	p := a.plane.Project(pos)
	if a.curve != nil && a.curve.turning {
		return a.curve.radiusError(p)
	}
	return crossTrack(p, a.plane.Project(a.nav.prevPos), a.plane.Project(a.nav.targetPos))
}

// targetHeading is where the nose should point now.
func (a *Autopilot) targetHeading() (float64, bool) {
	pos, ok := a.position()
	if !ok || !a.nav.hasTarget {
		return 0, false
	}
	m := a.mission
	switch {
	case a.orbit != nil:
		return a.orbitHeading(pos), true
	case m.PointOfInterest != nil:
		from := pos
		if a.plane.Distance(*m.PointOfInterest, pos) < poiNearDistance {
			from = a.nav.targetPos
		}
		return a.plane.Bearing(from, *m.PointOfInterest), true
	case m.HeadingMode == HeadingUsingWaypointHeading:
		return a.nav.heading.at(a.targetDistance()), true
	case a.curve != nil && a.curve.turning:
		return a.curve.turningHeading(a.plane.Project(pos)), true
	}
	if a.plane.Distance(a.nav.targetPos, pos) < headingFreezeRadius {
		if !a.motion.haveLastHeading {
			return a.vehicle.Heading()
		}
		return a.motion.lastHeading, true
	}
	h := a.plane.Bearing(pos, a.nav.targetPos)
	a.motion.lastHeading, a.motion.haveLastHeading = h, true
	return h, true
}

// targetCourseHeading is the direction of travel over the ground.
func (a *Autopilot) targetCourseHeading() (float64, bool) {
	pos, ok := a.position()
	if !ok || !a.nav.hasTarget {
		return 0, false
	}
	if a.curve != nil && a.curve.turning {
		return a.curve.turningHeading(a.plane.Project(pos)), true
	}
	if a.nav.mode == navTrack {
		return a.targetHeading()
	}
	if a.plane.Distance(a.nav.targetPos, pos) < courseFreezeRadius {
		if !a.motion.haveLastCourse {
			return a.vehicle.Heading()
		}
		return a.motion.lastCourse, true
	}
	h := a.plane.Bearing(pos, a.nav.targetPos)
	a.motion.lastCourse, a.motion.haveLastCourse = h, true
	return h, true
}

func (a *Autopilot) headingOnTarget() bool {
	target, ok := a.targetHeading()
	if !ok {
		return false
	}
	heading, ok := a.vehicle.Heading()
	return ok && headingReached(heading, target, a.cfg.HeadingTolerance)
}

func (a *Autopilot) heightReached() bool {
	return math.Abs(a.motion.cmd.Vertical-a.vehicle.Altitude()) < a.cfg.HeightTolerance
}

func (a *Autopilot) controlHeading() {
	h, ok := a.targetHeading()
	if !ok {
		return
	}
	a.motion.cmd.Yaw = headingDegree(h)
	a.controlSpeed()
	a.sendCommand()
}

// controlSpeed adjusts the speed of a moving aircraft; false when it is stationary.
func (a *Autopilot) controlSpeed() bool {
	if a.motion.speed() == 0 {
		return false
	}
	switch {
	case a.curve != nil && a.curve.turning:
		a.curveTurnSpeed()
	case a.curve != nil:
		a.curveApproachSpeed()
	default:
		var s float64
		s, a.motion.approaching = approachSpeed(a.targetDistance(), a.mission.AutoFlightSpeed,
			a.cfg.ArrivalRadius, a.cfg.MinApproachSpeed, a.motion.approaching)
		a.holdSpeed(s)
	}
	return true
}

// controlClimb holds the loop while climbing to the first waypoint altitude.
func (a *Autopilot) controlClimb() bool {
	if !a.motion.climbing {
		return false
	}
	if !a.heightReached() {
		return true
	}
	a.motion.climbing = false
	a.log.WithField("altitude", a.motion.cmd.Vertical).Debug("Climb complete")
	if a.mission.RotateGimbalPitch {
		a.setGimbalPitch(a.mission.Waypoints[0].GimbalPitch)
	}
	return false
}

func (a *Autopilot) setGimbalPitch(pitch float64) {
	if a.camera == nil {
		return
	}
	a.camera.RotateGimbal(pitch, a.completion(func(err error) {
		if err != nil {
			a.log.WithError(err).WithField("pitch", pitch).Warn("Gimbal rotation failed")
		}
	}))
}

// advance moves to the next waypoint, or completes a pass at the end of the list.
func (a *Autopilot) advance() {
	m := a.mission
	if m == nil {
		return
	}
	a.markReached()
	idx := a.nav.index + 1
	if idx >= len(m.Waypoints) {
		a.completePass()
		return
	}
	prevPos := a.nav.targetPos
	if !a.nav.hasTarget {
		if pos, ok := a.position(); ok {
			prevPos = pos
		} else {
			prevPos = m.Waypoints[idx].Coordinate
		}
	}
	a.planLeg(idx, prevPos)
	wp := a.nav.target

	a.legID = uuid.New()
	a.motion.cmd.Vertical = wp.Altitude
	if m.RotateGimbalPitch && idx > 0 {
		a.setGimbalPitch(wp.GimbalPitch)
	}
	a.curve = nil
	a.motion.turning = true
	if a.orbit == nil && m.FlightPathMode == PathCurved {
		if c, ok := a.planCurve(idx, prevPos); ok {
			a.curve = c
			a.motion.turning = false
		}
	}
	a.log.WithFields(logrus.Fields{"mission": m.ID, "waypoint": idx, "curve": a.curve != nil}).Info("Flying to waypoint")
	a.setProgress(ExecutionProgress{MissionID: m.ID, Index: idx, Mute: a.orbit != nil})
}

// planLeg builds the navigation context for the leg ending at waypoint idx.
func (a *Autopilot) planLeg(idx int, prevPos Coordinate) {
	m := a.mission
	wp := m.Waypoints[idx]
	nav := navContext{
		index:     idx,
		target:    wp,
		targetPos: wp.Coordinate,
		hasTarget: true,
		prevPos:   prevPos,
		mode:      navTrack,
	}
	if a.nav.hasTarget && a.nav.index >= 0 {
		last := a.nav.target
		nav.prev = &last
	}
	if m.PointOfInterest != nil || m.HeadingMode == HeadingUsingWaypointHeading {
		nav.mode = navFree
	}
	if m.HeadingMode == HeadingUsingWaypointHeading {
		nav.heading = a.planHeading(nav.prev, wp)
	}
	if nav.prev != nil && nav.prev.ShootPhotoDistanceInterval > 0 {
		nav.photoFrom = nav.prev.Coordinate
		nav.photoEvery = nav.prev.ShootPhotoDistanceInterval
		nav.photoArmed = true
	}
	a.nav = nav
}

func (a *Autopilot) planHeading(prev *Waypoint, wp Waypoint) headingPlan {
	start := 0.0
	if h, ok := a.vehicle.Heading(); ok {
		start = h
	} else if prev != nil {
		start = prev.Heading
	}
	start = normalDegree(start)
	end := normalDegree(wp.Heading)
	plan := headingPlan{start: start, end: end}
	if prev != nil && prev.Heading == wp.Heading {
		return plan
	}
	plan.between = end - start
	if prev != nil {
		plan.distance = a.plane.Distance(prev.Coordinate, wp.Coordinate)
		a.clockwise = prev.TurnMode == TurnClockwise
	}
	if a.clockwise {
		if plan.between < 0 {
			plan.between += 360
		}
	} else if plan.between > 0 {
		plan.between -= 360
	}
	return plan
}

func (a *Autopilot) markReached() {
	if a.mission == nil || a.nav.index < 0 || a.progress.Reached {
		return
	}
	p := a.progress
	p.Reached = true
	a.setProgress(p)
}

// completePass ends one traversal of the waypoint list.
func (a *Autopilot) completePass() {
	a.repeat--
	if a.repeat <= 0 {
		a.finish()
		return
	}
	a.log.WithFields(logrus.Fields{"mission": a.mission.ID, "remaining": a.repeat}).Info("Repeating mission")
	a.nav.index = -1
	a.advance()
}

// finish releases the vehicle and then runs the finished action, or chains the next mission.
func (a *Autopilot) finish() {
	m := a.mission
	if a.chain != nil {
		if next, ok := a.chain(); ok {
			a.log.WithField("mission", m.ID).Info("Mission complete, chaining next mission")
			a.reset()
			if err := a.load(next); err != nil {
				a.log.WithError(err).Warn("Chained mission rejected")
			}
			return
		}
	}
	a.log.WithFields(logrus.Fields{"mission": m.ID, "finished_action": m.FinishedAction}).Info("Mission complete")
	logFailure := func(op string) func(error) {
		return a.completion(func(err error) {
			if err != nil {
				a.log.WithError(&DeviceCommandError{Op: op, Err: err}).Warn("Finished action failed")
			}
		})
	}
	// the finished action must follow the release
	var then func()
	switch m.FinishedAction {
	case FinishGoHome:
		then = func() { a.vehicle.GoHome(logFailure("go home")) }
	case FinishAutoLand:
		then = func() { a.vehicle.Land(logFailure("land")) }
	}
	a.release(then)
}
