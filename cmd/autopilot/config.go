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

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/SMerrony/autopilot"
	"github.com/SMerrony/autopilot/mavlink"
	"github.com/SMerrony/autopilot/tello"
)

// Link kinds
const (
	linkTello   = "tello"
	linkMAVLink = "mavlink"
)

// TelloConfig controls the Tello UDP link.
type TelloConfig struct {
	Address     string              `json:"address"`
	ControlPort int                 `json:"control_port"`
	LocalPort   int                 `json:"local_port"`
	PictureDir  string              `json:"picture_dir"`
	SportsMode  bool                `json:"sports_mode"`
	Vehicle     tello.VehicleConfig `json:"vehicle"`
}

// LinkConfig selects and configures the vehicle link.
type LinkConfig struct {
	Kind    string         `json:"kind"`
	Tello   TelloConfig    `json:"tello"`
	MAVLink mavlink.Config `json:"mavlink"`
}

// ObserveConfig controls the websocket observer endpoint; empty Addr disables it.
type ObserveConfig struct {
	Addr string `json:"addr"`
	Path string `json:"path"`
}

// LogConfig controls console logging.
type LogConfig struct {
	Level string `json:"level"`
	JSON  bool   `json:"json"`
}

// AppConfig aggregates all configuration sections.
type AppConfig struct {
	Autopilot autopilot.Config `json:"autopilot"`
	Link      LinkConfig       `json:"link"`
	Observe   ObserveConfig    `json:"observe"`
	Log       LogConfig        `json:"log"`
}

func defaultAppConfig() AppConfig {
	return AppConfig{
		Autopilot: autopilot.DefaultConfig(),
		Link: LinkConfig{
			Kind: linkTello,
			Tello: TelloConfig{
				Address:     "192.168.10.1",
				ControlPort: 8889,
				LocalPort:   8800,
			},
			MAVLink: mavlink.DefaultConfig(),
		},
		Observe: ObserveConfig{Path: "/observe"},
		Log:     LogConfig{Level: "info"},
	}
}

// LoadConfig reads the JSON config from disk over the defaults.
// An empty path returns the defaults.
func LoadConfig(path string) (AppConfig, error) {
	cfg := defaultAppConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.validate()
}

func (c AppConfig) validate() error {
	switch c.Link.Kind {
	case linkTello, linkMAVLink:
		return nil
	}
	return fmt.Errorf("unknown link kind %q", c.Link.Kind)
}

// readMissions loads each mission file in order.
func readMissions(paths []string) ([]autopilot.Mission, error) {
	missions := make([]autopilot.Mission, 0, len(paths))
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return nil, err
		}
		m, err := autopilot.ReadMission(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("mission %q: %w", p, err)
		}
		missions = append(missions, m)
	}
	return missions, nil
}
