// Package metrics exposes anchor watch snapshots as prometheus gauges.
package metrics

import (
	"math"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/a-bouts/anchor-watch/anchor"
)

type Collector struct {
	active     prometheus.Gauge
	distance   prometheus.Gauge
	radius     prometheus.Gauge
	percentage prometheus.Gauge
	bearing    prometheus.Gauge
	rode       prometheus.Gauge
	level      *prometheus.GaugeVec
	awaiting   prometheus.Gauge
	pending    prometheus.Gauge
}

func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "anchor", Name: "watch_active",
			Help: "1 while an anchor watch is set.",
		}),
		distance: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "anchor", Name: "distance_meters",
			Help: "Distance from the anchor to the vessel, NaN when unknown.",
		}),
		radius: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "anchor", Name: "alarm_radius_meters",
			Help: "Configured alarm radius, NaN when unset.",
		}),
		percentage: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "anchor", Name: "radius_ratio_percent",
			Help: "Distance as a percentage of the alarm radius.",
		}),
		bearing: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "anchor", Name: "bearing_degrees",
			Help: "Bearing from the vessel to the anchor.",
		}),
		rode: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "anchor", Name: "rode_length_meters",
			Help: "Rode paid out.",
		}),
		level: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "anchor", Name: "alarm_state",
			Help: "1 for the current alarm state.",
		}, []string{"state"}),
		awaiting: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "anchor", Name: "checkin_awaiting",
			Help: "1 while a crew check-in is awaited.",
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "anchor", Name: "unconfirmed_settings",
			Help: "Settings written upstream and not yet confirmed.",
		}),
	}
	reg.MustRegister(c.active, c.distance, c.radius, c.percentage, c.bearing, c.rode, c.level, c.awaiting, c.pending)
	c.Observe(anchor.State{})
	return c
}

// Observe updates every gauge from a snapshot.
func (c *Collector) Observe(s anchor.State) {
	c.active.Set(boolean(s.IsActive))
	c.distance.Set(value(s.CurrentRadius))
	c.radius.Set(value(s.MaxRadius))
	c.percentage.Set(value(s.RadiusPercentage))
	c.bearing.Set(value(s.BearingDegrees))
	c.rode.Set(value(s.RodeLength))
	for _, l := range []anchor.Level{anchor.LevelNormal, anchor.LevelWarn, anchor.LevelAlarm, anchor.LevelEmergency} {
		c.level.WithLabelValues(l.String()).Set(boolean(s.AlarmState == l))
	}
	c.awaiting.Set(boolean(s.CheckIn.Awaiting))
	c.pending.Set(float64(len(s.Pending)))
}

// Watch observes snapshots until the channel is closed.
func (c *Collector) Watch(states <-chan anchor.State) {
	for s := range states {
		c.Observe(s)
	}
}

func boolean(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func value(f *float64) float64 {
	if f == nil {
		return math.NaN()
	}
	return *f
}
