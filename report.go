package main

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/a-bouts/anchor-watch/anchor"
	"github.com/a-bouts/anchor-watch/xmpp"
)

// report logs the watch status and, while anchored, sends it to the crew.
func report(engine *anchor.Engine, x xmpp.Xmpp) {
	s := engine.State()
	if !s.IsActive {
		log.Debug("No anchor watch")
		return
	}

	status := statusLine(s)
	log.WithFields(log.Fields{
		"state":    s.AlarmState,
		"awaiting": s.CheckIn.Awaiting,
	}).Info(status)

	if x.Enabled() {
		if err := x.Send(status); err != nil {
			log.WithError(err).Error("Error sending status report")
		}
	}
}

func statusLine(s anchor.State) string {
	line := fmt.Sprintf("Anchor watch %s", s.AlarmState)
	if s.CurrentRadius != nil {
		line += fmt.Sprintf(", %.0fm from anchor", *s.CurrentRadius)
		if s.BearingDegrees != nil {
			line += fmt.Sprintf(" bearing %03.0f°", *s.BearingDegrees)
		}
	} else {
		line += ", position unknown"
	}
	if s.MaxRadius != nil {
		line += fmt.Sprintf(", radius %.0fm", *s.MaxRadius)
	}
	if s.RadiusPercentage != nil {
		line += fmt.Sprintf(" (%.0f%%)", *s.RadiusPercentage)
	}
	if s.RodeLength != nil {
		line += fmt.Sprintf(", rode %.0fm", *s.RodeLength)
	}
	if s.CheckIn.Awaiting {
		line += ", check-in awaited"
	}
	return line
}
