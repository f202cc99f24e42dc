package anchor

import (
	"fmt"
	"math"
	"time"
)

// CheckInConfig controls the crew check-in watchdog.
type CheckInConfig struct {
	Enabled     bool          `json:"enabled"`
	Interval    time.Duration `json:"interval"`
	GracePeriod time.Duration `json:"gracePeriod"`
}

func (c CheckInConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Interval <= 0 {
		return fmt.Errorf("check-in interval %s: %w", c.Interval, ErrInvalidValue)
	}
	if c.GracePeriod <= 0 {
		return fmt.Errorf("check-in grace period %s: %w", c.GracePeriod, ErrInvalidValue)
	}
	return nil
}

// Thresholds are expressed as a percentage of the alarm radius. Hysteresis is
// only applied when the level goes down.
type Thresholds struct {
	WarnPercent  float64 `json:"warnPercent"`
	AlarmPercent float64 `json:"alarmPercent"`
	Hysteresis   float64 `json:"hysteresis"`
}

func (t Thresholds) Validate() error {
	for _, v := range []float64{t.WarnPercent, t.AlarmPercent, t.Hysteresis} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("threshold %f: %w", v, ErrInvalidValue)
		}
	}
	if t.WarnPercent <= 0 || t.AlarmPercent <= t.WarnPercent {
		return fmt.Errorf("thresholds warn %.1f%% alarm %.1f%%: %w", t.WarnPercent, t.AlarmPercent, ErrInvalidValue)
	}
	if t.Hysteresis < 0 || t.Hysteresis >= t.WarnPercent {
		return fmt.Errorf("hysteresis %.1f: %w", t.Hysteresis, ErrInvalidValue)
	}
	return nil
}

type Config struct {
	AlarmSound string
	CheckIn    CheckInConfig
	Thresholds Thresholds
	// EmergencyAfter is how long a distance alarm must last before it becomes
	// an emergency. Zero disables the escalation.
	EmergencyAfter time.Duration
	// WriteTimeout bounds each upstream write.
	WriteTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		AlarmSound: "alarm",
		CheckIn: CheckInConfig{
			Enabled:     false,
			Interval:    30 * time.Minute,
			GracePeriod: 60 * time.Second,
		},
		Thresholds: Thresholds{
			WarnPercent:  80,
			AlarmPercent: 100,
			Hysteresis:   5,
		},
		EmergencyAfter: 2 * time.Minute,
		WriteTimeout:   10 * time.Second,
	}
}

func (c Config) Validate() error {
	if err := c.CheckIn.Validate(); err != nil {
		return err
	}
	if err := c.Thresholds.Validate(); err != nil {
		return err
	}
	if c.EmergencyAfter < 0 {
		return fmt.Errorf("emergency after %s: %w", c.EmergencyAfter, ErrInvalidValue)
	}
	return nil
}
