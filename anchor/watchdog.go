package anchor

import (
	"time"

	log "github.com/sirupsen/logrus"
)

// watchdog is the check-in state. It owns a single timer handle: the interval
// timer while idle, the deadline timer while a check-in is awaited.
type watchdog struct {
	handle
	cfg      CheckInConfig
	awaiting bool
	timedOut bool
	deadline *time.Time
}

func (w *watchdog) reset() {
	w.stop()
	w.awaiting = false
	w.timedOut = false
	w.deadline = nil
}

// startCheckIn clears any pending check-in and arms the interval timer from now.
func (e *Engine) startCheckIn() {
	e.watchdog.reset()
	if !e.active || !e.watchdog.cfg.Enabled {
		return
	}
	e.armInterval()
}

func (e *Engine) armInterval() {
	w := &e.watchdog
	w.stop()
	gen := w.gen
	w.timer = e.after(w.cfg.Interval, func() { e.checkInDue(gen) })
}

func (e *Engine) checkInDue(gen uint64) {
	w := &e.watchdog
	if gen != w.gen || !e.active {
		return
	}
	w.timer = nil
	w.stop()

	deadline := e.clock.Now().Add(w.cfg.GracePeriod)
	w.awaiting = true
	w.deadline = &deadline

	g := w.gen
	w.timer = e.after(w.cfg.GracePeriod, func() { e.checkInMissed(g) })

	log.WithField("deadline", deadline.Format(time.RFC3339)).Info("Anchor watch check-in due")
	e.notify(Notification{
		Kind:     NotifyCheckInDue,
		Episode:  e.episode,
		Level:    e.level,
		Message:  "Anchor watch check-in required",
		Deadline: copyTime(&deadline),
	})
	e.publish()
}

func (e *Engine) checkInMissed(gen uint64) {
	w := &e.watchdog
	if gen != w.gen || !e.active || !w.awaiting {
		return
	}
	w.timer = nil
	w.stop()
	w.timedOut = true

	log.Warn("Anchor watch check-in missed")
	e.evaluate()
	e.publish()
}

// AcknowledgeCheckIn confirms the crew is watching. It clears a pending or
// missed check-in and restarts the interval from now.
func (e *Engine) AcknowledgeCheckIn() error {
	var err error
	if perr := e.do(func() {
		if !e.watchdog.awaiting {
			err = ErrNoCheckInPending
			return
		}
		missed := e.watchdog.timedOut
		e.startCheckIn()
		log.WithField("missed", missed).Info("Anchor watch check-in acknowledged")
		e.evaluate()
		e.publish()
	}); perr != nil {
		return perr
	}
	return err
}

// ConfigureCheckIn replaces the check-in configuration. Disabling cancels any
// pending check-in; otherwise an awaited check-in keeps its deadline and the
// new interval applies from the next cycle.
func (e *Engine) ConfigureCheckIn(cfg CheckInConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	return e.do(func() {
		w := &e.watchdog
		w.cfg = cfg
		log.WithFields(log.Fields{
			"enabled":  cfg.Enabled,
			"interval": cfg.Interval,
			"grace":    cfg.GracePeriod,
		}).Info("Check-in configured")

		switch {
		case !cfg.Enabled:
			w.reset()
		case !e.active:
		case !w.awaiting:
			e.armInterval()
		}
		e.evaluate()
		e.publish()
	})
}
