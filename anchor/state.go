package anchor

import (
	"fmt"
	"time"

	"github.com/a-bouts/anchor-watch/latlon"
)

type Position = latlon.LatLon

// Level is the alarm severity, ordered normal < warn < alarm < emergency.
type Level int

const (
	LevelNormal Level = iota
	LevelWarn
	LevelAlarm
	LevelEmergency
)

var levelNames = [...]string{"normal", "warn", "alarm", "emergency"}

func (l Level) String() string {
	if l < LevelNormal || l > LevelEmergency {
		return fmt.Sprintf("level(%d)", int(l))
	}
	return levelNames[l]
}

func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *Level) UnmarshalText(b []byte) error {
	for i, n := range levelNames {
		if n == string(b) {
			*l = Level(i)
			return nil
		}
	}
	return fmt.Errorf("alarm level %q: %w", string(b), ErrInvalidValue)
}

type CheckInState struct {
	Enabled  bool       `json:"enabled"`
	Awaiting bool       `json:"awaiting"`
	Deadline *time.Time `json:"deadline,omitempty"`
	TimedOut bool       `json:"timedOut"`
}

// State is an immutable snapshot of the anchor watch. Nil pointers are unknown values.
type State struct {
	IsActive         bool         `json:"isActive"`
	AnchorPosition   *Position    `json:"anchorPosition"`
	VesselPosition   *Position    `json:"vesselPosition"`
	VesselHeading    *float64     `json:"vesselHeading"`
	MaxRadius        *float64     `json:"maxRadius"`
	CurrentRadius    *float64     `json:"currentRadius"`
	RadiusPercentage *float64     `json:"radiusPercentage"`
	BearingDegrees   *float64     `json:"bearingDegrees"`
	RodeLength       *float64     `json:"rodeLength"`
	AlarmState       Level        `json:"alarmState"`
	AlarmMessage     string       `json:"alarmMessage,omitempty"`
	Silenced         bool         `json:"silenced"`
	Episode          string       `json:"episode,omitempty"`
	CheckIn          CheckInState `json:"checkIn"`
	Pending          []string     `json:"pending,omitempty"`
	LastError        string       `json:"lastError,omitempty"`
	UpdatedAt        time.Time    `json:"updatedAt"`
}

// Band is the display colour of a radius percentage.
type Band string

const (
	BandUnknown Band = ""
	BandGreen   Band = "green"
	BandYellow  Band = "yellow"
	BandOrange  Band = "orange"
	BandRed     Band = "red"
)

func BandFor(percentage float64) Band {
	switch {
	case percentage >= 100:
		return BandRed
	case percentage >= 80:
		return BandOrange
	case percentage >= 60:
		return BandYellow
	}
	return BandGreen
}

func (s State) Band() Band {
	if s.RadiusPercentage == nil {
		return BandUnknown
	}
	return BandFor(*s.RadiusPercentage)
}

// DisplayPercentage is RadiusPercentage clamped to [0, 100].
func (s State) DisplayPercentage() *float64 {
	if s.RadiusPercentage == nil {
		return nil
	}
	p := *s.RadiusPercentage
	if p > 100 {
		p = 100
	} else if p < 0 {
		p = 0
	}
	return &p
}

// PositionUpdate replaces both the vessel position and heading. A nil or
// malformed value makes the field unknown.
type PositionUpdate struct {
	Vessel  *Position
	Heading *float64
}

// AnchorSettings are anchor values reported by the telemetry server.
// Nil fields are left unchanged; HasPosition with a nil Position means the
// anchor was raised.
type AnchorSettings struct {
	HasPosition bool
	Position    *Position
	MaxRadius   *float64
	RodeLength  *float64
}

type Update struct {
	Position *PositionUpdate
	Anchor   *AnchorSettings
}

type NotificationKind int

const (
	NotifyAlarm NotificationKind = iota
	NotifySilence
	NotifyClear
	NotifyCheckInDue
)

func (k NotificationKind) String() string {
	switch k {
	case NotifyAlarm:
		return "alarm"
	case NotifySilence:
		return "silence"
	case NotifyClear:
		return "clear"
	case NotifyCheckInDue:
		return "check-in due"
	}
	return fmt.Sprintf("notification(%d)", int(k))
}

type Notification struct {
	Kind     NotificationKind
	Episode  string
	Level    Level
	Message  string
	Sound    string
	Distance *float64
	Deadline *time.Time
	At       time.Time
}
