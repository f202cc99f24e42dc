package model

import (
	"time"

	"github.com/a-bouts/anchor-watch/anchor"
	"github.com/a-bouts/anchor-watch/latlon"
)

type State struct {
	anchor.State
	Band              anchor.Band `json:"band,omitempty"`
	DisplayPercentage *float64    `json:"displayPercentage"`
}

func NewState(s anchor.State) State {
	return State{State: s, Band: s.Band(), DisplayPercentage: s.DisplayPercentage()}
}

type Error struct {
	Error string `json:"error"`
	State *State `json:"state,omitempty"`
}

type Radius struct {
	Radius *float64 `json:"radius"`
}

type Rode struct {
	Length *float64 `json:"length"`
}

type Position struct {
	Position *latlon.LatLon `json:"position"`
	Heading  *float64       `json:"heading"`
}

// CheckIn durations use time.ParseDuration syntax, e.g. "30m".
type CheckIn struct {
	Enabled     bool   `json:"enabled"`
	Interval    string `json:"interval"`
	GracePeriod string `json:"gracePeriod"`
}

func (c CheckIn) Config() (anchor.CheckInConfig, error) {
	cfg := anchor.CheckInConfig{Enabled: c.Enabled}
	var err error
	if c.Interval != "" {
		if cfg.Interval, err = time.ParseDuration(c.Interval); err != nil {
			return cfg, err
		}
	}
	if c.GracePeriod != "" {
		if cfg.GracePeriod, err = time.ParseDuration(c.GracePeriod); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}
