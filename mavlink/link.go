// link.go

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

package mavlink

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bluenviron/gomavlib/v3"
	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v3/pkg/message"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/SMerrony/autopilot"
)

// ArduCopter custom flight modes
const (
	modeGuided = 4
	modeLoiter = 5
	modeRTL    = 6
	modeLand   = 9
)

const heartbeatTimeout = 3 * time.Second

var (
	// ErrNoVehicle is returned by commands issued before a heartbeat has been heard.
	ErrNoVehicle = errors.New("No MAVLink vehicle heard yet")
	// ErrCommandTimeout is returned when a command is not acknowledged in time.
	ErrCommandTimeout = errors.New("MAVLink command not acknowledged")
	// ErrSuperseded is returned when the same command is sent again before its ack.
	ErrSuperseded = errors.New("MAVLink command superseded")
	// ErrClosed is returned to commands still pending when the link closes.
	ErrClosed = errors.New("MAVLink link closed")
)

// Config holds the link settings.
type Config struct {
	Address         string  `json:"address"`          // UDP address to listen on
	SystemID        byte    `json:"system_id"`        // our own system ID
	CommandTimeout  float64 `json:"command_timeout"`  // seconds to wait for a COMMAND_ACK
	MaxClimbRate    float64 `json:"max_climb_rate"`   // m/s
	TakeOffAltitude float64 `json:"takeoff_altitude"` // metres
}

// DefaultConfig listens on the usual ground station port.
func DefaultConfig() Config {
	return Config{
		Address:         "0.0.0.0:14550",
		SystemID:        10,
		CommandTimeout:  3,
		MaxClimbRate:    1.5,
		TakeOffAltitude: 5,
	}
}

type pendingCommand struct {
	done  func(error)
	timer *time.Timer
}

// Link is a MAVLink vehicle, usually an ArduCopter, seen as an autopilot.Vehicle and autopilot.Camera.
type Link struct {
	log   logrus.FieldLogger
	cfg   Config
	node  *gomavlib.Node
	write func(message.Message) error
	stop  chan struct{}

	mu            sync.Mutex
	targetSystem  byte
	targetComp    byte
	haveTarget    bool
	position      autopilot.Coordinate
	havePosition  bool
	altitude      float64
	heading       float64
	haveHeading   bool
	fixType       common.GPS_FIX_TYPE
	satellites    uint8
	landed        common.MAV_LANDED_STATE
	customMode    uint32
	armed         bool
	supervise     bool
	handedOff     bool // land or RTL commanded, guided is being left
	cameraMode    autopilot.CameraMode
	recording     bool
	gimbalPitch   float64
	pending       map[common.MAV_CMD]*pendingCommand
	lastHeartbeat time.Time
	linkUp        bool
	onLink        func(up bool)
}

var (
	_ autopilot.Vehicle = (*Link)(nil)
	_ autopilot.Camera  = (*Link)(nil)
)

// Dial opens a gomavlib node on cfg.Address and starts decoding telemetry.
func Dial(cfg Config, log logrus.FieldLogger) (*Link, error) {
	node, err := gomavlib.NewNode(gomavlib.NodeConf{
		Endpoints: []gomavlib.EndpointConf{
			gomavlib.EndpointUDPServer{Address: cfg.Address},
		},
		Dialect:     common.Dialect,
		OutVersion:  gomavlib.V2,
		OutSystemID: cfg.SystemID,
	})
	if err != nil {
		return nil, fmt.Errorf("open MAVLink node: %w", err)
	}
	l := newLink(node.WriteMessageAll, cfg, log)
	l.node = node
	go l.run()
	go l.watchLink()
	return l, nil
}

func newLink(write func(message.Message) error, cfg Config, log logrus.FieldLogger) *Link {
	def := DefaultConfig()
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = def.CommandTimeout
	}
	if cfg.MaxClimbRate <= 0 {
		cfg.MaxClimbRate = def.MaxClimbRate
	}
	if cfg.TakeOffAltitude <= 0 {
		cfg.TakeOffAltitude = def.TakeOffAltitude
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Link{
		log:     log.WithField("link", "mavlink"),
		cfg:     cfg,
		write:   write,
		stop:    make(chan struct{}),
		pending: make(map[common.MAV_CMD]*pendingCommand),
	}
}

// Close releases guided control and shuts the node down.
// Commands still waiting for an ack fail with ErrClosed.
func (l *Link) Close() error {
	var err error
	if l.SupervisoryControlEnabled() && l.holdsGuided() {
		err = multierr.Append(err, l.sendVelocity(0, 0, 0, 0))
		err = multierr.Append(err, l.sendCommand(common.MAV_CMD_DO_SET_MODE,
			params(float32(common.MAV_MODE_FLAG_CUSTOM_MODE_ENABLED), modeLoiter), nil))
	}
	l.mu.Lock()
	pending := l.pending
	l.pending = make(map[common.MAV_CMD]*pendingCommand)
	l.supervise = false
	l.mu.Unlock()
	for _, p := range pending {
		p.timer.Stop()
		if p.done != nil {
			p.done(ErrClosed)
		}
	}
	close(l.stop)
	if l.node != nil {
		l.node.Close()
	}
	return err
}

// NotifyLink registers fn to be called when vehicle heartbeats stop or resume.
func (l *Link) NotifyLink(fn func(up bool)) {
	l.mu.Lock()
	l.onLink = fn
	l.mu.Unlock()
}

func (l *Link) run() {
	for evt := range l.node.Events() {
		switch e := evt.(type) {
		case *gomavlib.EventFrame:
			l.handleMessage(e.SystemID(), e.ComponentID(), e.Message())
		case *gomavlib.EventParseError:
			l.log.WithError(e.Error).Debug("Unparsable MAVLink frame")
		}
	}
}

func (l *Link) watchLink() {
	ticker := time.NewTicker(heartbeatTimeout / 4)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case now := <-ticker.C:
			l.checkLink(now)
		}
	}
}

func (l *Link) checkLink(now time.Time) {
	l.mu.Lock()
	lost := l.linkUp && now.Sub(l.lastHeartbeat) > heartbeatTimeout
	if lost {
		l.linkUp = false
	}
	fn := l.onLink
	l.mu.Unlock()
	if lost {
		l.log.Warn("Vehicle heartbeat lost")
		if fn != nil {
			fn(false)
		}
	}
}

// sendCommand sends a COMMAND_LONG; done, if not nil, is called once with the outcome.
func (l *Link) sendCommand(cmd common.MAV_CMD, p [7]float32, done func(error)) error {
	l.mu.Lock()
	if !l.haveTarget {
		l.mu.Unlock()
		if done != nil {
			done(ErrNoVehicle)
		}
		return ErrNoVehicle
	}
	prev := l.pending[cmd]
	pc := &pendingCommand{done: done}
	pc.timer = time.AfterFunc(seconds(l.cfg.CommandTimeout), func() { l.resolve(cmd, pc, ErrCommandTimeout) })
	l.pending[cmd] = pc
	msg := &common.MessageCommandLong{
		TargetSystem:    l.targetSystem,
		TargetComponent: l.targetComp,
		Command:         cmd,
		Param1:          p[0],
		Param2:          p[1],
		Param3:          p[2],
		Param4:          p[3],
		Param5:          p[4],
		Param6:          p[5],
		Param7:          p[6],
	}
	l.mu.Unlock()

	if prev != nil {
		prev.timer.Stop()
		if prev.done != nil {
			prev.done(ErrSuperseded)
		}
	}
	l.log.WithField("command", cmd).Debug("Sending command")
	if err := l.write(msg); err != nil {
		l.resolve(cmd, pc, err)
		return err
	}
	return nil
}

// resolve completes pc if it is still the pending instance of cmd.
func (l *Link) resolve(cmd common.MAV_CMD, pc *pendingCommand, err error) {
	l.mu.Lock()
	if l.pending[cmd] != pc {
		l.mu.Unlock()
		return
	}
	delete(l.pending, cmd)
	l.mu.Unlock()
	pc.timer.Stop()
	if err != nil {
		l.log.WithError(err).WithField("command", cmd).Warn("Command failed")
	}
	if pc.done != nil {
		pc.done(err)
	}
}

// params packs up to seven command parameters.
func params(p ...float32) (out [7]float32) {
	copy(out[:], p)
	return out
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
