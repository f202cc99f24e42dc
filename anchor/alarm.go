package anchor

import (
	"fmt"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const (
	msgWarn           = "Vessel is approaching alarm radius"
	msgAlarm          = "Vessel has drifted beyond alarm radius"
	msgCheckInMissed  = "Anchor watch check-in missed"
	msgCheckInAndDrag = "Vessel beyond alarm radius and anchor watch check-in missed"
)

// Classify returns the distance level for a radius percentage. prev is the
// previous distance level; a level is only left once the percentage falls
// hysteresis points below its threshold. A nil percentage is normal.
func Classify(percentage *float64, prev Level, t Thresholds) Level {
	if percentage == nil {
		return LevelNormal
	}
	p := *percentage
	switch {
	case p >= t.AlarmPercent:
		return LevelAlarm
	case prev >= LevelAlarm && p >= t.AlarmPercent-t.Hysteresis:
		return LevelAlarm
	case p >= t.WarnPercent:
		return LevelWarn
	case prev >= LevelWarn && p >= t.WarnPercent-t.Hysteresis:
		return LevelWarn
	}
	return LevelNormal
}

// evaluate recomputes the alarm level from distance, sustained drift and the
// check-in watchdog.
func (e *Engine) evaluate() {
	if !e.active {
		e.distanceLevel = LevelNormal
		e.clearDrift()
		e.transition(LevelNormal, "")
		return
	}

	now := e.clock.Now()
	e.distanceLevel = Classify(e.percentage, e.distanceLevel, e.cfg.Thresholds)

	if e.distanceLevel >= LevelAlarm {
		if e.alarmSince == nil {
			since := now
			e.alarmSince = &since
			e.armEscalation()
		}
	} else {
		e.clearDrift()
	}

	level, message := e.distanceLevel, ""
	switch level {
	case LevelWarn:
		message = msgWarn
	case LevelAlarm:
		message = msgAlarm
	}

	if e.alarmSince != nil && e.cfg.EmergencyAfter > 0 && now.Sub(*e.alarmSince) >= e.cfg.EmergencyAfter {
		level = LevelEmergency
		message = fmt.Sprintf("Vessel has remained beyond alarm radius for %s", e.cfg.EmergencyAfter)
	}

	if e.watchdog.timedOut {
		if e.distanceLevel >= LevelAlarm {
			level, message = LevelEmergency, msgCheckInAndDrag
		} else if level < LevelAlarm {
			level, message = LevelAlarm, msgCheckInMissed
		}
	}

	e.transition(level, message)
	e.rearm()
}

func (e *Engine) armEscalation() {
	e.escalation.stop()
	if e.cfg.EmergencyAfter <= 0 {
		return
	}
	gen := e.escalation.gen
	e.escalation.timer = e.after(e.cfg.EmergencyAfter, func() {
		if gen != e.escalation.gen || !e.active {
			return
		}
		e.escalation.timer = nil
		e.evaluate()
		e.publish()
	})
}

func (e *Engine) clearDrift() {
	e.alarmSince = nil
	e.escalation.stop()
}

func (e *Engine) transition(level Level, message string) {
	prev := e.level
	if level == prev {
		e.message = message
		return
	}

	logger := log.WithFields(log.Fields{
		"from":     prev,
		"to":       level,
		"distance": fmtMeters(e.currentRadius),
		"radius":   fmtMeters(e.maxRadius),
	})

	e.level = level
	e.message = message

	if level == LevelNormal {
		logger.Info("Anchor alarm cleared")
		episode := e.episode
		e.episode = ""
		e.unsilence()
		e.notify(Notification{Kind: NotifyClear, Episode: episode, Level: level})
		return
	}

	if prev == LevelNormal {
		e.episode = newEpisode()
	}

	if level > prev {
		logger.Warn(message)
		e.unsilence()
		e.notify(Notification{
			Kind:     NotifyAlarm,
			Episode:  e.episode,
			Level:    level,
			Message:  message,
			Distance: copyFloat(e.currentRadius),
		})
		return
	}

	logger.Info("Anchor alarm decreased")
}

func (e *Engine) unsilence() {
	e.silenced = false
	e.ackDistance = nil
	e.ackClosest = nil
}

// rearm sounds a silenced alarm again once the vessel, after getting closer
// than at acknowledgement, drifts beyond the acknowledged distance.
func (e *Engine) rearm() {
	if !e.silenced || e.ackDistance == nil || e.currentRadius == nil {
		return
	}
	d := *e.currentRadius
	if d < *e.ackClosest {
		e.ackClosest = copyFloat(&d)
		return
	}
	if *e.ackClosest >= *e.ackDistance || d <= *e.ackDistance {
		return
	}

	log.WithFields(log.Fields{
		"episode":      e.episode,
		"alarm":        e.level,
		"distance":     fmtMeters(e.currentRadius),
		"acknowledged": fmtMeters(e.ackDistance),
	}).Warn("Acknowledged anchor alarm drifting again")
	e.unsilence()
	e.notify(Notification{
		Kind:     NotifyAlarm,
		Episode:  e.episode,
		Level:    e.level,
		Message:  e.message,
		Distance: copyFloat(e.currentRadius),
	})
}

// AcknowledgeAlarm silences the current episode. The alarm level is kept. A
// further escalation, or drifting past the acknowledged distance after getting
// closer, sounds again.
func (e *Engine) AcknowledgeAlarm() error {
	var err error
	if perr := e.do(func() {
		if e.level == LevelNormal {
			err = ErrNoActiveAlarm
			return
		}
		if e.silenced {
			return
		}
		e.silenced = true
		e.ackDistance = copyFloat(e.currentRadius)
		e.ackClosest = copyFloat(e.currentRadius)
		log.WithFields(log.Fields{"episode": e.episode, "alarm": e.level}).Info("Anchor alarm acknowledged")
		e.notify(Notification{Kind: NotifySilence, Episode: e.episode, Level: e.level, Message: e.message})
		e.publish()
	}); perr != nil {
		return perr
	}
	return err
}

func fmtMeters(m *float64) string {
	if m == nil {
		return "unknown"
	}
	return fmt.Sprintf("%.1fm", *m)
}

func newEpisode() string {
	return uuid.NewString()
}
