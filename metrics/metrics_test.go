package metrics

import (
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/a-bouts/anchor-watch/anchor"
)

func TestObserve(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	assert.Equal(t, 0.0, testutil.ToFloat64(c.active))
	assert.True(t, math.IsNaN(testutil.ToFloat64(c.distance)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.level.WithLabelValues("normal")))

	d, r := 35.0, 30.0
	c.Observe(anchor.State{
		IsActive:      true,
		CurrentRadius: &d,
		MaxRadius:     &r,
		AlarmState:    anchor.LevelAlarm,
		Pending:       []string{"maxRadius"},
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(c.active))
	assert.Equal(t, 35.0, testutil.ToFloat64(c.distance))
	assert.Equal(t, 30.0, testutil.ToFloat64(c.radius))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.level.WithLabelValues("normal")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.level.WithLabelValues("alarm")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.pending))
}

func TestWatch(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())
	states := make(chan anchor.State, 2)
	states <- anchor.State{IsActive: true}
	states <- anchor.State{IsActive: false, AlarmState: anchor.LevelWarn}
	close(states)

	c.Watch(states)
	assert.Equal(t, 0.0, testutil.ToFloat64(c.active))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.level.WithLabelValues("warn")))
}
