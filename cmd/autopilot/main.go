// main.go

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

// Command autopilot flies JSON waypoint missions on a Tello or a MAVLink vehicle.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/SMerrony/autopilot"
	"github.com/SMerrony/autopilot/mavlink"
	"github.com/SMerrony/autopilot/observe"
	"github.com/SMerrony/autopilot/tello"
)

func main() {
	var configPath string
	var missionPaths string
	var linkKind string
	var observeAddr string
	var logLevel string
	flag.StringVar(&configPath, "config", "", "Path to JSON config.")
	flag.StringVar(&missionPaths, "mission", "", "Comma-separated JSON mission files, flown one after another.")
	flag.StringVar(&linkKind, "link", "", "Override the vehicle link (tello or mavlink).")
	flag.StringVar(&observeAddr, "observe-addr", "", "Override the websocket observer listen addr (host:port).")
	flag.StringVar(&logLevel, "log-level", "", "Override the log level.")
	flag.Parse()

	log := logrus.StandardLogger()

	cfg, err := LoadConfig(configPath)
	if err != nil {
		log.Fatalf("load config %q: %v", configPath, err)
	}
	if linkKind != "" {
		cfg.Link.Kind = linkKind
	}
	if observeAddr != "" {
		cfg.Observe.Addr = observeAddr
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.validate(); err != nil {
		log.Fatal(err)
	}
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.Fatalf("invalid log level %q: %v", cfg.Log.Level, err)
	}
	log.SetLevel(level)
	if cfg.Log.JSON {
		log.SetFormatter(&logrus.JSONFormatter{})
	}

	if missionPaths == "" {
		log.Fatal("no mission given, use -mission")
	}
	missions, err := readMissions(strings.Split(missionPaths, ","))
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, missions, log); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, cfg AppConfig, missions []autopilot.Mission, log *logrus.Logger) (err error) {
	lnk, err := openLink(cfg.Link, log)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, lnk.close()) }()

	chain := &missionQueue{missions: missions[1:]}
	opts := []autopilot.Option{
		autopilot.WithConfig(cfg.Autopilot),
		autopilot.WithLogger(log),
		autopilot.WithMissionChain(chain.next),
	}
	if lnk.camera != nil {
		opts = append(opts, autopilot.WithCamera(lnk.camera))
	}
	ap := autopilot.New(lnk.vehicle, opts...)
	lnk.notify(func(up bool) {
		if up {
			ap.LinkRestored()
		} else {
			ap.LinkLost()
		}
	})

	runCtx, stopRun := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		ap.Run(runCtx)
		close(runDone)
	}()
	defer func() {
		stopRun()
		<-runDone
	}()

	if cfg.Observe.Addr != "" {
		hub := observe.NewHub(log)
		mux := http.NewServeMux()
		mux.Handle(cfg.Observe.Path, hub)
		srv := &http.Server{Addr: cfg.Observe.Addr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.WithError(err).Error("Observer server failed")
			}
		}()
		pumpCtx, stopPump := context.WithCancel(context.Background())
		go hub.Pump(pumpCtx, ap.StreamStates(), ap.StreamProgress())
		log.WithField("addr", cfg.Observe.Addr).Info("Serving observers")
		defer func() {
			stopPump()
			shutCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			err = multierr.Combine(err, srv.Shutdown(shutCtx), hub.Close())
		}()
	}

	return fly(ctx, ap, missions[0], chain, log)
}

// fly uploads and starts m and any chained missions, returning when the last
// one is finished or ctx is cancelled.
func fly(ctx context.Context, ap *autopilot.Autopilot, m autopilot.Mission, chain *missionQueue, log logrus.FieldLogger) error {
	states := ap.StreamStates()
	if err := ap.Attach(); err != nil {
		return err
	}
	if err := ap.Load(m); err != nil {
		return err
	}
	for {
		if err := ap.Upload(ctx); err != nil {
			return err
		}
		if err := ap.Start(ctx); err != nil {
			return err
		}
		if err := awaitFinish(ctx, states); err != nil {
			log.Info("Interrupted, stopping mission")
			return multierr.Append(err, ap.Stop())
		}
		if !chain.take() {
			log.Info("All missions complete")
			return nil
		}
		log.Info("Flying chained mission")
	}
}

// awaitFinish waits for an executing mission to return to ReadyToUpload.
func awaitFinish(ctx context.Context, states <-chan autopilot.ExecutionState) error {
	flying := false
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s := <-states:
			switch s {
			case autopilot.Executing, autopilot.Paused, autopilot.Recovering:
				flying = true
			case autopilot.ReadyToUpload:
				if flying {
					return nil
				}
			}
		}
	}
}

// missionQueue hands chained missions to the autopilot.
type missionQueue struct {
	mu       sync.Mutex
	missions []autopilot.Mission
	loaded   bool // a chained mission was loaded by the last completion
}

func (q *missionQueue) next() (autopilot.Mission, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.missions) == 0 {
		return autopilot.Mission{}, false
	}
	m := q.missions[0]
	q.missions = q.missions[1:]
	q.loaded = true
	return m, true
}

// take reports and clears whether a chained mission is waiting to be flown.
func (q *missionQueue) take() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	loaded := q.loaded
	q.loaded = false
	return loaded
}

// link is an opened vehicle link.
type link struct {
	vehicle autopilot.Vehicle
	camera  autopilot.Camera
	notify  func(func(up bool))
	close   func() error
}

func openLink(cfg LinkConfig, log *logrus.Logger) (link, error) {
	switch cfg.Kind {
	case linkMAVLink:
		l, err := mavlink.Dial(cfg.MAVLink, log)
		if err != nil {
			return link{}, err
		}
		return link{vehicle: l, camera: l, notify: l.NotifyLink, close: l.Close}, nil
	default:
		drone := &tello.Tello{Logger: log.WithField("link", "tello")}
		if err := drone.ControlConnect(cfg.Tello.Address, cfg.Tello.ControlPort, cfg.Tello.LocalPort); err != nil {
			return link{}, err
		}
		drone.SetPictureDir(cfg.Tello.PictureDir)
		drone.SetSportsMode(cfg.Tello.SportsMode)
		v := tello.NewVehicle(drone, cfg.Tello.Vehicle)
		return link{vehicle: v, camera: v, notify: drone.NotifyLink, close: drone.ControlDisconnect}, nil
	}
}
