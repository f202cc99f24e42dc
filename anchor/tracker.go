package anchor

import (
	"math"

	log "github.com/sirupsen/logrus"

	"github.com/a-bouts/anchor-watch/latlon"
)

func validPosition(p *Position) *Position {
	if p == nil || !p.Valid() {
		return nil
	}
	v := *p
	return &v
}

func validHeading(h *float64) *float64 {
	if h == nil || math.IsNaN(*h) || math.IsInf(*h, 0) {
		return nil
	}
	v := latlon.Wrap360(*h)
	return &v
}

func validLength(f *float64) *float64 {
	if f == nil || math.IsNaN(*f) || math.IsInf(*f, 0) || *f < 0 {
		return nil
	}
	v := *f
	return &v
}

func (e *Engine) trackPosition(u PositionUpdate) {
	if u.Vessel != nil && !u.Vessel.Valid() {
		log.WithFields(log.Fields{"lat": u.Vessel.Lat, "lon": u.Vessel.Lon}).Debug("Ignoring malformed vessel position")
	}
	e.vessel = validPosition(u.Vessel)
	e.heading = validHeading(u.Heading)

	e.measure()
	e.evaluate()
}

// applySettings mirrors anchor values changed on the telemetry server, for
// instance by another display. Nothing is written back.
func (e *Engine) applySettings(s AnchorSettings) {
	if s.MaxRadius != nil {
		if r := validLength(s.MaxRadius); r != nil && *r > 0 {
			e.maxRadius = r
			e.touch("maxRadius")
		}
	}
	if s.RodeLength != nil {
		if r := validLength(s.RodeLength); r != nil {
			e.rodeLength = r
			e.touch("rodeLength")
		}
	}
	if s.HasPosition {
		p := validPosition(s.Position)
		switch {
		case p != nil && (!e.active || *p != *e.anchor):
			log.WithFields(log.Fields{"lat": p.Lat, "lon": p.Lon}).Info("Anchor dropped upstream")
			e.touch("anchor")
			e.activate(p)
		case p == nil && s.Position == nil && e.active:
			log.Info("Anchor raised upstream")
			e.touch("anchor")
			e.deactivate()
		}
	}

	e.measure()
	e.evaluate()
}

// measure derives distance, bearing and percentage from the stored positions.
func (e *Engine) measure() {
	e.currentRadius, e.bearing, e.percentage = nil, nil, nil
	if e.anchor == nil || e.vessel == nil {
		return
	}

	d, b := e.geo.DistanceAndBearingTo(*e.vessel, *e.anchor)
	e.currentRadius = &d
	e.bearing = &b

	if e.maxRadius != nil && *e.maxRadius > 0 {
		p := d / *e.maxRadius * 100
		e.percentage = &p
	}
}
