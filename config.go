// config.go

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

import "time"

// Config holds the tunables of the control loop. The zero value of any field
// is replaced by its DefaultConfig value, except ActionSettleSeconds.
type Config struct {
	TickRate            float64  `json:"tick_rate_hz"`          // control loop frequency
	ArrivalRadius       float64  `json:"arrival_radius_m"`      // distance at which a target is reached
	MinApproachSpeed    float64  `json:"min_approach_speed"`    // floor of the deceleration ramp, m/s
	MaxTrackSpeed       float64  `json:"max_track_speed"`       // cross-track correction clamp, m/s
	HeadingTolerance    float64  `json:"heading_tolerance_deg"` // heading reached
	HeightTolerance     float64  `json:"height_tolerance_m"`    // altitude reached
	GimbalTolerance     float64  `json:"gimbal_tolerance_deg"`  // gimbal pitch reached
	PhotoRetrySeconds   float64  `json:"photo_retry_s"`
	ActionSettleSeconds float64  `json:"action_settle_s"` // pause after a rotation action completes
	HomePointGPSLevel   GPSLevel `json:"home_point_gps_level"`
	MaxFlightSpeed      float64  `json:"max_flight_speed"`
	MaxWaypoints        int      `json:"max_waypoints"`
	MaxActions          int      `json:"max_actions"`
}

// DefaultConfig returns the settings used when none are supplied.
func DefaultConfig() Config {
	return Config{
		TickRate:          40,
		ArrivalRadius:     0.5,
		MinApproachSpeed:  1,
		MaxTrackSpeed:     5,
		HeadingTolerance:  1,
		HeightTolerance:   1,
		GimbalTolerance:   0.5,
		PhotoRetrySeconds: 0.2,
		HomePointGPSLevel: GPSLevel4,
		MaxFlightSpeed:    15,
		MaxWaypoints:      99,
		MaxActions:        15,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.TickRate <= 0 {
		c.TickRate = d.TickRate
	}
	if c.ArrivalRadius <= 0 {
		c.ArrivalRadius = d.ArrivalRadius
	}
	if c.MinApproachSpeed <= 0 {
		c.MinApproachSpeed = d.MinApproachSpeed
	}
	if c.MaxTrackSpeed <= 0 {
		c.MaxTrackSpeed = d.MaxTrackSpeed
	}
	if c.HeadingTolerance <= 0 {
		c.HeadingTolerance = d.HeadingTolerance
	}
	if c.HeightTolerance <= 0 {
		c.HeightTolerance = d.HeightTolerance
	}
	if c.GimbalTolerance <= 0 {
		c.GimbalTolerance = d.GimbalTolerance
	}
	if c.PhotoRetrySeconds <= 0 {
		c.PhotoRetrySeconds = d.PhotoRetrySeconds
	}
	if c.ActionSettleSeconds < 0 {
		c.ActionSettleSeconds = 0
	}
	if c.HomePointGPSLevel == GPSLevelNone {
		c.HomePointGPSLevel = d.HomePointGPSLevel
	}
	if c.MaxFlightSpeed <= 0 {
		c.MaxFlightSpeed = d.MaxFlightSpeed
	}
	if c.MaxWaypoints <= 0 {
		c.MaxWaypoints = d.MaxWaypoints
	}
	if c.MaxActions <= 0 {
		c.MaxActions = d.MaxActions
	}
	return c
}

func (c Config) period() time.Duration {
	return time.Duration(float64(time.Second) / c.TickRate)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
