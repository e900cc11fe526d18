// curve.go

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

	"github.com/golang/geo/r3"
	"github.com/sirupsen/logrus"
)

const (
	minCornerRadius   = 0.2
	curveSpeedFactor  = 0.3
	sharpCornerDegree = 5.0
)

// curveTurn is an arc replacing the corner at a waypoint.
type curveTurn struct {
	center          r3.Vector
	radius          float64
	clockwise       bool
	turningDistance float64 // from the arc start to the corner
	decelDistance   float64 // slowdown zone before the arc
	speed           float64
	course          float64 // ratchet, never regresses against the turn direction
	exitCourse      float64
	exit            r3.Vector // the waypoint after the corner
	turning         bool
}

// planCurveTurn fits an arc of the given radius tangent to both legs of the
// corner prev->corner->next. It fails when the arc would not fit on either leg.
func planCurveTurn(prev, corner, next r3.Vector, radius, cruise float64) (*curveTurn, bool) {
	in := corner.Sub(prev)
	out := next.Sub(corner)
	legIn, legOut := in.Norm(), out.Norm()
	if legIn == 0 || legOut == 0 || radius <= 0 {
		return nil, false
	}
	ba := in.Mul(-1 / legIn)
	bc := out.Mul(1 / legOut)
	interior := math.Acos(clamp(ba.Dot(bc), -1, 1))
	half := interior / 2
	if half < 1e-6 {
		return nil, false // reversal
	}
	tangent := radius / math.Tan(half)
	if tangent > legIn || tangent > legOut {
		return nil, false
	}
	bisector := ba.Add(bc)
	if bisector.Norm() < 1e-9 {
		// straight through, any perpendicular works
		bisector = r3.Vector{X: -ba.Y, Y: ba.X}
	}
	bisector = bisector.Normalize()
	decel := cruise
	if degrees(math.Pi/2-half) >= sharpCornerDegree {
		decel = cruise + cruise*sharpCornerDegree/15
	}
	return &curveTurn{
		center:          corner.Add(bisector.Mul(radius / math.Sin(half))),
		radius:          radius,
		clockwise:       in.Cross(out).Z < 0,
		turningDistance: tangent,
		decelDistance:   decel,
		speed:           math.Max(1, math.Min(radius*curveSpeedFactor, cruise)),
		course:          bearingOf(in),
		exitCourse:      bearingOf(out),
		exit:            next,
	}, true
}

// turningHeading is the arc tangent at pos.
func (c *curveTurn) turningHeading(pos r3.Vector) float64 {
	h := bearingOf(c.center.Sub(pos))
	if c.clockwise {
		h = headingDegree(h - 90)
	} else {
		h = headingDegree(h + 90)
	}
	d := headingDelta(c.course, h)
	if (c.clockwise && d < 0) || (!c.clockwise && d > 0) {
		return c.course
	}
	c.course = h
	return h
}

// radiusError is the rightward correction keeping pos on the arc.
func (c *curveTurn) radiusError(pos r3.Vector) float64 {
	delta := c.radius - pos.Sub(c.center).Norm()
	if c.clockwise {
		return -delta
	}
	return delta
}

// exitReached is true once the exit waypoint lies dead ahead on the exit course.
func (c *curveTurn) exitReached(pos r3.Vector) bool {
	return headingReached(bearingOf(c.exit.Sub(pos)), c.exitCourse, 1)
}

// planCurve tries to round the corner at waypoint idx.
func (a *Autopilot) planCurve(idx int, prevPos Coordinate) (*curveTurn, bool) {
	m := a.mission
	if idx <= 0 || idx >= len(m.Waypoints)-1 {
		return nil, false
	}
	wp := m.Waypoints[idx]
	if wp.CornerRadius <= minCornerRadius {
		return nil, false
	}
	c, ok := planCurveTurn(a.plane.Project(prevPos), a.plane.Project(wp.Coordinate),
		a.plane.Project(m.Waypoints[idx+1].Coordinate), wp.CornerRadius, m.AutoFlightSpeed)
	if !ok {
		a.log.WithFields(logrus.Fields{"waypoint": idx, "radius": wp.CornerRadius}).Info("Corner radius does not fit, stopping at waypoint")
	}
	return c, ok
}

func (a *Autopilot) curveApproachSpeed() {
	c := a.curve
	d := a.targetDistance()
	switch {
	case d < c.turningDistance:
		c.turning = true
		a.log.WithField("waypoint", a.nav.index).Debug("Entering curve")
		a.holdSpeed(c.speed)
	case d < c.turningDistance+c.decelDistance:
		a.holdSpeed(c.speed)
	default:
		a.holdSpeed(a.mission.AutoFlightSpeed)
	}
}

func (a *Autopilot) curveTurnSpeed() {
	pos, ok := a.position()
	if !ok {
		return
	}
	if a.curve.exitReached(a.plane.Project(pos)) {
		a.curve.turning = false
		a.advance()
		return
	}
	a.holdSpeed(a.curve.speed)
}
