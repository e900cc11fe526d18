// tello.go

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

import (
	"bytes"
	"errors"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	defaultTelloAddr        = "192.168.10.1"
	defaultTelloControlPort = 8889
	defaultLocalControlPort = 8800
	defaultTelloVideoPort   = 6038
)

const (
	keepAlivePeriodMs = 50
	linkCheckPeriodMs = 250
	linkTimeout       = 2 * time.Second
)

// ErrNotConnected is returned by commands issued before ControlConnect succeeds.
var ErrNotConnected = errors.New("Tello not connected")

// Tello holds the current state of a connection to a Tello drone
type Tello struct {
	// Logger receives the connection's diagnostics, logrus.StandardLogger() if nil.
	Logger logrus.FieldLogger

	ctrlMu                         sync.RWMutex // this mutex protects the control fields
	ctrlConn                       net.Conn
	ctrlStopChan                   chan struct{}
	ctrlConnecting, ctrlConnected  bool
	ctrlSeq                        uint16
	ctrlRx, ctrlRy, ctrlLx, ctrlLy int16 // we are using the SDL convention: vals range from -32768 to 32767
	ctrlSportsMode                 bool  // are we in 'sports' (a.k.a. 'Fast') mode?

	fdMu      sync.RWMutex // this mutex protects the flight data fields
	fd        FlightData   // our private amalgamated store of the latest data
	mvoSeen   bool         // has a position record arrived yet?
	lastRx    time.Time
	linkUp    bool
	onLink    func(up bool)
	picMu     sync.Mutex // protects the picture download
	pic       picture
	picDir    string
	picsSaved int
}

// ControlConnect attempts to connect to a Tello at the provided network addr.
// It then starts listening for responses on the control channel and waits for the Tello to respond
func (tello *Tello) ControlConnect(udpAddr string, droneUDPPort int, localUDPPort int) (err error) {
	// first check that we are not already connected or connecting
	tello.ctrlMu.RLock()
	if tello.ctrlConnected {
		tello.ctrlMu.RUnlock()
		return errors.New("Tello already connected")
	}
	if tello.ctrlConnecting {
		tello.ctrlMu.RUnlock()
		return errors.New("Tello connection attempt already in progress")
	}
	tello.ctrlMu.RUnlock()

	droneAddr, err := net.ResolveUDPAddr("udp", udpAddr+":"+strconv.Itoa(droneUDPPort))
	if err != nil {
		return err
	}
	localAddr, err := net.ResolveUDPAddr("udp", ":"+strconv.Itoa(localUDPPort))
	if err != nil {
		return err
	}
	conn, err := net.DialUDP("udp", localAddr, droneAddr)
	if err != nil {
		return err
	}
	return tello.connect(conn)
}

// ControlConnectDefault attempts to connect to a Tello on the default network addresses.
// It then starts listening for responses on the control channel and waits for the Tello to respond
func (tello *Tello) ControlConnectDefault() (err error) {
	return tello.ControlConnect(defaultTelloAddr, defaultTelloControlPort, defaultLocalControlPort)
}

func (tello *Tello) connect(conn net.Conn) error {
	tello.ctrlMu.Lock()
	tello.ctrlConn = conn
	tello.ctrlStopChan = make(chan struct{})
	tello.ctrlMu.Unlock()

	// start the control listener Goroutine
	go tello.controlResponseListener(conn, tello.ctrlStopChan)

	// say hello to the Tello
	tello.sendConnectRequest(defaultTelloVideoPort)

	// wait up to 3 seconds for the Tello to respond
	for t := 0; t < 10; t++ {
		if tello.ControlConnected() {
			break
		}
		time.Sleep(333 * time.Millisecond)
	}
	if !tello.ControlConnected() {
		tello.ctrlMu.Lock()
		tello.ctrlConnecting = false
		close(tello.ctrlStopChan)
		tello.ctrlMu.Unlock()
		conn.Close()
		return errors.New("Timeout waiting for response to connection request from Tello")
	}

	// start the keepalive transmitter and the link watchdog
	go tello.keepAlive(tello.ctrlStopChan)
	go tello.watchLink(tello.ctrlStopChan)

	return nil
}

// ControlDisconnect stops the control channel listener and closes the connection to a Tello
func (tello *Tello) ControlDisconnect() error {
	tello.ctrlMu.Lock()
	defer tello.ctrlMu.Unlock()
	if !tello.ctrlConnected {
		return ErrNotConnected
	}
	close(tello.ctrlStopChan)
	tello.ctrlConnected = false
	return tello.ctrlConn.Close()
}

// ControlConnected returns true if we are currently connected
func (tello *Tello) ControlConnected() (c bool) {
	tello.ctrlMu.RLock()
	c = tello.ctrlConnected
	tello.ctrlMu.RUnlock()
	return c
}

// NotifyLink registers fn to be called whenever the control link is lost or regained.
// fn is called from an internal Goroutine and must not block.
func (tello *Tello) NotifyLink(fn func(up bool)) {
	tello.fdMu.Lock()
	tello.onLink = fn
	tello.fdMu.Unlock()
}

// GetFlightData returns the current known state of the Tello
func (tello *Tello) GetFlightData() FlightData {
	tello.fdMu.RLock()
	rfd := tello.fd
	tello.fdMu.RUnlock()
	return rfd
}

// PositionKnown reports whether the visual odometry has delivered a position.
func (tello *Tello) PositionKnown() bool {
	tello.fdMu.RLock()
	defer tello.fdMu.RUnlock()
	return tello.mvoSeen
}

func (tello *Tello) log() logrus.FieldLogger {
	if tello.Logger == nil {
		return logrus.StandardLogger()
	}
	return tello.Logger
}

func (tello *Tello) controlResponseListener(conn net.Conn, stop <-chan struct{}) {
	buff := make([]byte, 4096)

	for {
		n, err := conn.Read(buff)

		select {
		case <-stop:
			tello.log().Debug("Control response listener stopped")
			return
		default:
		}
		if err != nil {
			tello.log().WithError(err).Warn("Network read error")
			if errors.Is(err, net.ErrClosed) {
				return
			}
			continue
		}

		// the initial connect response is different...
		tello.ctrlMu.RLock()
		connecting := tello.ctrlConnecting
		tello.ctrlMu.RUnlock()
		if connecting && n == 11 {
			if bytes.HasPrefix(buff[:n], []byte("conn_ack:")) {
				tello.log().WithField("len", n).Debug("conn_ack received")
				tello.ctrlMu.Lock()
				tello.ctrlConnecting = false
				tello.ctrlConnected = true
				tello.ctrlMu.Unlock()
				tello.received()
			} else {
				tello.log().WithField("response", string(buff[:n])).Warn("Unexpected response to connection request")
			}
			continue
		}

		if buff[0] != msgHdr {
			tello.log().WithField("header", buff[0]).Debug("Unexpected network message from Tello")
			continue
		}
		pkt, ok := bufferToPacket(buff[:n])
		if !ok || !validPacket(buff, int(pkt.size13)) {
			tello.log().WithField("len", n).Debug("Dropping malformed packet from Tello")
			continue
		}
		tello.received()
		tello.handlePacket(pkt)
	}
}

func (tello *Tello) handlePacket(pkt packet) {
	switch pkt.messageID {
	case msgDoLand, msgDoTakeoff, msgDoTakePic, msgSwitchPicVideo: // acks, nothing to do
	case msgFlightStatus:
		tmpFd, ok := payloadToFlightData(pkt.payload)
		if !ok {
			return
		}
		tello.fdMu.Lock()
		// not all fields are sent...
		tmpFd.IMU = tello.fd.IMU
		tmpFd.MVO = tello.fd.MVO
		tmpFd.LightStrength = tello.fd.LightStrength
		tmpFd.WifiStrength = tello.fd.WifiStrength
		tmpFd.WifiInterference = tello.fd.WifiInterference
		tello.fd = tmpFd
		tello.fdMu.Unlock()
	case msgLightStrength:
		if len(pkt.payload) < 1 {
			return
		}
		tello.fdMu.Lock()
		tello.fd.LightStrength = pkt.payload[0]
		tello.fdMu.Unlock()
	case msgLogHeader:
		if len(pkt.payload) < 2 {
			return
		}
		tello.ackLogHeader(pkt.payload[0:2])
	case msgLogData:
		tello.parseLogPacket(pkt.payload)
	case msgSetDateTime:
		tello.sendDateTime()
	case msgFileSize:
		tello.receiveFileSize(pkt.payload)
	case msgFileData:
		tello.receiveFileData(pkt.payload)
	case msgFileDone:
	case msgWifiStrength:
		if len(pkt.payload) < 2 {
			return
		}
		tello.fdMu.Lock()
		tello.fd.WifiStrength = pkt.payload[0]
		tello.fd.WifiInterference = pkt.payload[1]
		tello.fdMu.Unlock()
	default:
		tello.log().WithFields(logrus.Fields{
			"id":   pkt.messageID,
			"size": pkt.size13,
			"type": pkt.packetType,
		}).Trace("Unknown message from Tello")
	}
}

// received records traffic from the drone for the link watchdog.
func (tello *Tello) received() {
	tello.fdMu.Lock()
	tello.lastRx = time.Now()
	restored := !tello.linkUp
	tello.linkUp = true
	fn := tello.onLink
	tello.fdMu.Unlock()
	if restored && fn != nil {
		fn(true)
	}
}

func (tello *Tello) watchLink(stop <-chan struct{}) {
	ticker := time.NewTicker(linkCheckPeriodMs * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			tello.checkLink(now)
		}
	}
}

func (tello *Tello) checkLink(now time.Time) {
	tello.fdMu.Lock()
	lost := tello.linkUp && now.Sub(tello.lastRx) > linkTimeout
	if lost {
		tello.linkUp = false
	}
	fn := tello.onLink
	tello.fdMu.Unlock()
	if lost {
		tello.log().WithField("silence", now.Sub(tello.lastRx).String()).Warn("Tello link lost")
		if fn != nil {
			fn(false)
		}
	}
}

func (tello *Tello) sendConnectRequest(videoPort uint16) {
	// the initial connect request is different to the usual packets...
	msgBuff := []byte("conn_req:lh")
	msgBuff[9] = byte(videoPort & 0xff)
	msgBuff[10] = byte(videoPort >> 8)
	tello.ctrlMu.Lock()
	tello.ctrlConnecting = true
	if _, err := tello.ctrlConn.Write(msgBuff); err != nil {
		tello.log().WithError(err).Warn("Could not send connection request")
	}
	tello.ctrlMu.Unlock()
}

// send numbers and transmits a packet, ctrlMu must be held.
func (tello *Tello) send(pkt packet) error {
	if tello.ctrlConn == nil || !tello.ctrlConnected {
		return ErrNotConnected
	}
	tello.ctrlSeq++
	pkt.sequence = tello.ctrlSeq
	_, err := tello.ctrlConn.Write(packetToBuffer(pkt))
	return err
}

func (tello *Tello) sendDateTime() {
	tello.ctrlMu.Lock()
	defer tello.ctrlMu.Unlock()
	pkt := newPacket(ptData1, msgSetDateTime, 0, 15)

	now := time.Now()
	pkt.payload[1] = byte(now.Year())
	pkt.payload[2] = byte(now.Year() >> 8)
	pkt.payload[3] = byte(int(now.Month()))
	pkt.payload[5] = byte(now.Day())
	pkt.payload[7] = byte(now.Hour())
	pkt.payload[9] = byte(now.Minute())
	pkt.payload[11] = byte(now.Second())
	ms := now.UnixNano() / 1000000
	pkt.payload[13] = byte(ms)
	pkt.payload[14] = byte(ms >> 8)

	if err := tello.send(pkt); err != nil {
		tello.log().WithError(err).Debug("Could not send date/time")
	}
}

func (tello *Tello) keepAlive(stop <-chan struct{}) {
	ticker := time.NewTicker(keepAlivePeriodMs * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return // we've disconnected
		case <-ticker.C:
			tello.sendStickUpdate()
		}
	}
}

// UpdateSticks does a one-off update of the stick values which are then sent to the Tello
func (tello *Tello) UpdateSticks(sm StickMessage) {
	tello.ctrlMu.Lock()
	tello.ctrlLx = sm.Lx
	tello.ctrlLy = sm.Ly
	tello.ctrlRx = sm.Rx
	tello.ctrlRy = sm.Ry
	tello.ctrlMu.Unlock()
}

// SetSportsMode switches the Tello between normal and 'sports' (fast) flight.
func (tello *Tello) SetSportsMode(sports bool) {
	tello.ctrlMu.Lock()
	tello.ctrlSportsMode = sports
	tello.ctrlMu.Unlock()
}

func (tello *Tello) sendStickUpdate() {
	tello.ctrlMu.Lock()
	defer tello.ctrlMu.Unlock()
	pkt := newPacket(ptData2, msgSetStick, 0, 0)
	pkt.payload = stickPayload(StickMessage{Rx: tello.ctrlRx, Ry: tello.ctrlRy, Lx: tello.ctrlLx, Ly: tello.ctrlLy},
		tello.ctrlSportsMode, time.Now())
	// stick packets are not sequenced
	if tello.ctrlConn == nil || !tello.ctrlConnected {
		return
	}
	if _, err := tello.ctrlConn.Write(packetToBuffer(pkt)); err != nil {
		tello.log().WithError(err).Debug("Stick update failed")
	}
}
