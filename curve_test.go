// curve_test.go

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
	"testing"

	"github.com/golang/geo/r3"
)

func TestPlanCurveTurn(t *testing.T) {
	c, ok := planCurveTurn(r3.Vector{}, r3.Vector{Y: 40}, r3.Vector{X: 40, Y: 40}, 10, 5)
	if !ok {
		t.Fatal("Right angle corner rejected")
	}
	if !c.clockwise {
		t.Error("Right turn should be clockwise")
	}
	if !near(c.turningDistance, 10, 1e-9) {
		t.Errorf("Expected turning distance 10 got, %f", c.turningDistance)
	}
	if !near(c.center.X, 10, 1e-9) || !near(c.center.Y, 30, 1e-9) {
		t.Errorf("Expected centre (10,30) got, %v", c.center)
	}
	if c.speed != 3 {
		t.Errorf("Expected turning speed 3 got, %f", c.speed)
	}
	if !near(c.decelDistance, 5+5.0/3, 1e-9) {
		t.Errorf("Expected deceleration distance %f got, %f", 5+5.0/3, c.decelDistance)
	}

	left, ok := planCurveTurn(r3.Vector{}, r3.Vector{Y: 40}, r3.Vector{X: -40, Y: 40}, 10, 5)
	if !ok || left.clockwise {
		t.Error("Left turn should be counter-clockwise")
	}
}

func TestPlanCurveTurnRejects(t *testing.T) {
	tests := []struct {
		name               string
		prev, corner, next r3.Vector
		radius             float64
	}{
		{"incoming leg too short", r3.Vector{Y: 35}, r3.Vector{Y: 40}, r3.Vector{X: 40, Y: 40}, 10},
		{"outgoing leg too short", r3.Vector{}, r3.Vector{Y: 40}, r3.Vector{X: 5, Y: 40}, 10},
		{"radius too large", r3.Vector{}, r3.Vector{Y: 40}, r3.Vector{X: 40, Y: 40}, 50},
		{"reversal", r3.Vector{}, r3.Vector{Y: 40}, r3.Vector{Y: 0}, 10},
	}
	for _, tt := range tests {
		if _, ok := planCurveTurn(tt.prev, tt.corner, tt.next, tt.radius, 5); ok {
			t.Errorf("%s: expected rejection", tt.name)
		}
	}
}

func TestShallowCornerDeceleration(t *testing.T) {
	c, ok := planCurveTurn(r3.Vector{}, r3.Vector{Y: 40}, r3.Vector{X: 2, Y: 80}, 10, 5)
	if !ok {
		t.Fatal("Shallow corner rejected")
	}
	if c.decelDistance != 5 {
		t.Errorf("Expected deceleration distance 5 got, %f", c.decelDistance)
	}
	if c.speed != 3 {
		t.Errorf("Expected turning speed 3 got, %f", c.speed)
	}
}

func TestTurningHeadingRatchet(t *testing.T) {
	c, _ := planCurveTurn(r3.Vector{}, r3.Vector{Y: 40}, r3.Vector{X: 40, Y: 40}, 10, 5)
	if h := c.turningHeading(r3.Vector{Y: 30}); !near(h, 0, 1e-9) {
		t.Errorf("Arc start: expected 0 got, %f", h)
	}
	mid := c.center.Add(r3.Vector{X: -10 * math.Cos(math.Pi/4), Y: 10 * math.Sin(math.Pi/4)})
	if h := c.turningHeading(mid); !near(h, 45, 1e-9) {
		t.Errorf("Arc middle: expected 45 got, %f", h)
	}
	if h := c.turningHeading(r3.Vector{Y: 29}); !near(h, 45, 1e-9) {
		t.Errorf("Ratchet: expected 45 got, %f", h)
	}
	if e := c.radiusError(r3.Vector{X: -2, Y: 30}); !near(e, 2, 1e-9) {
		t.Errorf("Outside the arc: expected correction 2 to the right got, %f", e)
	}
	if c.exitReached(mid) {
		t.Error("Exit reached mid-arc")
	}
	if !c.exitReached(r3.Vector{X: 10, Y: 40}) {
		t.Error("Exit not reached at arc end")
	}
}
