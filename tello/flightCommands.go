// flightCommands.go

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

package tello

// TakeOff sends a normal takeoff request to the Tello
func (tello *Tello) TakeOff() error {
	tello.ctrlMu.Lock()
	defer tello.ctrlMu.Unlock()
	return tello.send(newPacket(ptSet, msgDoTakeoff, 0, 0))
}

// Land sends a normal Land request to the Tello
func (tello *Tello) Land() error {
	tello.ctrlMu.Lock()
	defer tello.ctrlMu.Unlock()
	pkt := newPacket(ptSet, msgDoLand, 0, 1)
	pkt.payload[0] = 0
	return tello.send(pkt)
}

// Hover simply sets the sticks to zero - useful as a panic action!
func (tello *Tello) Hover() {
	tello.UpdateSticks(StickMessage{})
}

// TakePicture requests the Tello to take a JPEG snapshot.
// The picture is downloaded over the control channel and saved if SetPictureDir has been called.
func (tello *Tello) TakePicture() error {
	tello.ctrlMu.Lock()
	defer tello.ctrlMu.Unlock()
	return tello.send(newPacket(ptSet, msgDoTakePic, 0, 0))
}

// SetVideoMode switches the camera between picture (false) and video (true) framing.
func (tello *Tello) SetVideoMode(video bool) error {
	tello.ctrlMu.Lock()
	defer tello.ctrlMu.Unlock()
	pkt := newPacket(ptSet, msgSwitchPicVideo, 0, 1)
	if video {
		pkt.payload[0] = 1
	}
	return tello.send(pkt)
}
