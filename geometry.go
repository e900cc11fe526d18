// geometry.go

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
	"golang.org/x/exp/constraints"
)

const earthRadius = 6378137.0 // metres, WGS84 equatorial

// Coordinate is a WGS84 position in decimal degrees.
type Coordinate struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}

// Valid reports whether c is inside the lat/lon ranges and is not the null island (0,0).
func (c Coordinate) Valid() bool {
	if c.Latitude == 0 && c.Longitude == 0 {
		return false
	}
	return c.Latitude >= -90 && c.Latitude <= 90 && c.Longitude >= -180 && c.Longitude <= 180
}

// Plane is a local east/north tangent plane, in metres, centred on an origin.
// It is an equirectangular approximation, fine over the few kilometres a mission spans.
type Plane struct {
	origin     Coordinate
	mPerDegLat float64
	mPerDegLon float64
}

// NewPlane returns the tangent plane centred on origin.
func NewPlane(origin Coordinate) Plane {
	mPerDeg := earthRadius * math.Pi / 180
	return Plane{
		origin:     origin,
		mPerDegLat: mPerDeg,
		mPerDegLon: mPerDeg * math.Cos(radians(origin.Latitude)),
	}
}

// Origin returns the coordinate at (0,0) of the plane.
func (p Plane) Origin() Coordinate { return p.origin }

// Project maps c onto the plane; X is east, Y is north, Z is always zero.
func (p Plane) Project(c Coordinate) r3.Vector {
	return r3.Vector{
		X: (c.Longitude - p.origin.Longitude) * p.mPerDegLon,
		Y: (c.Latitude - p.origin.Latitude) * p.mPerDegLat,
	}
}

// Unproject is the inverse of Project.
func (p Plane) Unproject(v r3.Vector) Coordinate {
	c := Coordinate{Latitude: p.origin.Latitude + v.Y/p.mPerDegLat}
	if p.mPerDegLon != 0 {
		c.Longitude = p.origin.Longitude + v.X/p.mPerDegLon
	}
	return c
}

// Distance in metres between a and b.
func (p Plane) Distance(a, b Coordinate) float64 {
	return p.Project(a).Sub(p.Project(b)).Norm()
}

// Bearing from one coordinate to another in degrees, (-180, 180], 0 is north, clockwise positive.
func (p Plane) Bearing(from, to Coordinate) float64 {
	return bearingOf(p.Project(to).Sub(p.Project(from)))
}

// bearingOf gives the compass bearing of a plane vector.
func bearingOf(v r3.Vector) float64 {
	return degrees(math.Atan2(v.X, v.Y))
}

// crossTrack is the signed distance of pos from the line from->to;
// positive when pos lies to the left of the direction of travel.
func crossTrack(pos, from, to r3.Vector) float64 {
	d := to.Sub(from)
	l := d.Norm()
	if l == 0 {
		return 0
	}
	return d.Cross(pos.Sub(from)).Z / l
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }
func degrees(rad float64) float64 { return rad * 180 / math.Pi }

// normalDegree maps any angle into [0, 360).
func normalDegree(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}

// headingDegree maps any angle into (-180, 180].
func headingDegree(deg float64) float64 {
	deg = normalDegree(deg)
	if deg > 180 {
		deg -= 360
	}
	return deg
}

// headingDelta is the signed shortest rotation from one heading to another.
func headingDelta(from, to float64) float64 {
	return headingDegree(to - from)
}

// headingReached is true when current is within tol degrees of target either side of north.
func headingReached(current, target, tol float64) bool {
	d := math.Abs(normalDegree(target) - normalDegree(current))
	return d < tol || d > 360-tol
}

func clamp[T constraints.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
