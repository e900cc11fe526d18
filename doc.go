// doc.go

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

/*
Package autopilot flies a multirotor through a declarative waypoint mission by
issuing virtual-stick commands at a fixed rate.

A Mission is loaded, uploaded (supervisory control is enabled on the vehicle)
and started. While executing, a 40 Hz control loop cycles through four phases:
sending the current command, publishing progress, holding the target heading,
and adjusting speed, climb or the per-waypoint action sequence. Corners may be
flown as arcs (curved flight path) and a mission with a point of interest and
an Orbit flies a circle around that point.

The aircraft and its camera are reached through the Vehicle and Camera
interfaces; the tello and mavlink packages provide implementations.

	ap := autopilot.New(vehicle, autopilot.WithCamera(camera), autopilot.WithLogger(log))
	go ap.Run(ctx)
	ap.Attach()
	if err := ap.Load(mission); err != nil { ... }
	if err := ap.Upload(ctx); err != nil { ... }
	if err := ap.Start(ctx); err != nil { ... }

All state is owned by the goroutine running Run; the exported methods post
work onto it and wait for the result.
*/
package autopilot
