package signalk

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/a-bouts/anchor-watch/anchor"
)

// Stream feeds the anchor engine from the SignalK delta stream.
type Stream struct {
	Config         Config
	ReconnectDelay time.Duration
	Dialer         *websocket.Dialer
}

type subscribeMessage struct {
	Context   string         `json:"context"`
	Subscribe []subscription `json:"subscribe"`
}

type subscription struct {
	Path   string `json:"path"`
	Period int    `json:"period,omitempty"`
}

type delta struct {
	Updates []struct {
		Values []struct {
			Path  string          `json:"path"`
			Value json.RawMessage `json:"value"`
		} `json:"values"`
	} `json:"updates"`
}

// merger keeps the last position and heading, since a delta usually carries only one of them.
type merger struct {
	vessel  *anchor.Position
	heading *float64
}

func (s Stream) Subscribe(ctx context.Context) (<-chan anchor.Update, error) {
	u, err := s.Config.streamURL()
	if err != nil {
		return nil, err
	}

	updates := make(chan anchor.Update)
	go func() {
		defer close(updates)
		m := &merger{}
		for {
			if err := s.stream(ctx, u, m, updates); err != nil && ctx.Err() == nil {
				log.WithError(err).WithField("url", u).Error("SignalK stream interrupted")
			}

			delay := s.ReconnectDelay
			if delay <= 0 {
				delay = 5 * time.Second
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
		}
	}()
	return updates, nil
}

func (s Stream) stream(ctx context.Context, u string, m *merger, updates chan<- anchor.Update) error {
	dialer := s.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	header := http.Header{}
	if s.Config.Token != "" {
		header.Set("Authorization", "Bearer "+s.Config.Token)
	}

	conn, _, err := dialer.DialContext(ctx, u, header)
	if err != nil {
		return err
	}
	defer conn.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	if err := conn.WriteJSON(subscribeMessage{
		Context: "vessels.self",
		Subscribe: []subscription{
			{Path: pathPosition, Period: 1000},
			{Path: pathHeadingTrue, Period: 1000},
			{Path: pathAnchorPosition},
			{Path: pathAnchorMaxRadius},
			{Path: pathAnchorRodeLength},
		},
	}); err != nil {
		return err
	}
	log.WithField("url", u).Info("SignalK stream connected")

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		ups, err := m.decode(data)
		if err != nil {
			log.WithError(err).Debug("Ignoring undecodable SignalK message")
			continue
		}
		for _, up := range ups {
			select {
			case updates <- up:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// decode turns a delta message into engine updates. Messages without updates,
// such as the hello message, yield nothing.
func (m *merger) decode(data []byte) ([]anchor.Update, error) {
	var d delta
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, err
	}

	var (
		moved    bool
		settings *anchor.AnchorSettings
	)
	anchorSettings := func() *anchor.AnchorSettings {
		if settings == nil {
			settings = &anchor.AnchorSettings{}
		}
		return settings
	}

	for _, u := range d.Updates {
		for _, v := range u.Values {
			switch v.Path {
			case pathPosition:
				m.vessel = decodePosition(v.Value)
				moved = true
			case pathHeadingTrue:
				m.heading = decodeRadians(v.Value)
				moved = true
			case pathAnchorPosition:
				p := decodePosition(v.Value)
				if p == nil && !isNull(v.Value) {
					continue
				}
				s := anchorSettings()
				s.HasPosition = true
				s.Position = p
			case pathAnchorMaxRadius:
				anchorSettings().MaxRadius = decodeNumber(v.Value)
			case pathAnchorRodeLength:
				anchorSettings().RodeLength = decodeNumber(v.Value)
			}
		}
	}

	var ups []anchor.Update
	if settings != nil {
		ups = append(ups, anchor.Update{Anchor: settings})
	}
	if moved {
		ups = append(ups, anchor.Update{Position: &anchor.PositionUpdate{
			Vessel:  m.vessel,
			Heading: m.heading,
		}})
	}
	return ups, nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func decodePosition(raw json.RawMessage) *anchor.Position {
	if isNull(raw) {
		return nil
	}
	var p struct {
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
	}
	if err := json.Unmarshal(raw, &p); err != nil || p.Latitude == nil || p.Longitude == nil {
		return nil
	}
	pos := anchor.Position{Lat: *p.Latitude, Lon: *p.Longitude}
	if !pos.Valid() {
		return nil
	}
	return &pos
}

func decodeNumber(raw json.RawMessage) *float64 {
	if isNull(raw) {
		return nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func decodeRadians(raw json.RawMessage) *float64 {
	r := decodeNumber(raw)
	if r == nil {
		return nil
	}
	d := *r * 180 / math.Pi
	return &d
}
