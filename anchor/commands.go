package anchor

import (
	"context"
	"fmt"
	"math"

	log "github.com/sirupsen/logrus"
)

// write is an upstream change applied optimistically. rollback, when set, is
// run on the engine goroutine if the write fails and the field was not changed since.
type write struct {
	field    string
	revision int
	send     func(ctx context.Context, w Writer) error
	rollback func()
	result   chan error
}

func (e *Engine) touch(field string) int {
	e.revisions[field]++
	return e.revisions[field]
}

func (e *Engine) activate(p *Position) {
	if e.active {
		e.anchor = p
		return
	}
	e.active = true
	e.anchor = p
	e.distanceLevel = LevelNormal
	e.measure()
	e.startCheckIn()
}

func (e *Engine) deactivate() {
	e.active = false
	e.anchor = nil
	e.watchdog.reset()
	e.clearDrift()
	e.measure()
}

// submit records the local change as pending and sends it on its own goroutine.
func (e *Engine) submit(field string, send func(ctx context.Context, w Writer) error, rollback func()) *write {
	w := &write{
		field:    field,
		revision: e.touch(field),
		send:     send,
		rollback: rollback,
		result:   make(chan error, 1),
	}
	if e.writer == nil {
		w.result <- nil
		return w
	}

	e.pending[field] = w.revision
	ctx, cancel := context.WithTimeout(e.runCtx, e.cfg.WriteTimeout)
	go func() {
		defer cancel()
		err := w.send(ctx, e.writer)
		if perr := e.post(func() { e.complete(w, err) }); perr != nil {
			w.result <- err
		}
	}()
	return w
}

func (e *Engine) complete(w *write, err error) {
	current := e.revisions[w.field] == w.revision
	if e.pending[w.field] == w.revision {
		delete(e.pending, w.field)
	}

	logger := log.WithField("field", w.field)
	if err != nil {
		logger.WithError(err).Error("Error writing anchor setting upstream")
		e.lastError = fmt.Sprintf("%s: %s", w.field, err)
		if current && w.rollback != nil {
			logger.Warn("Rolling back anchor setting")
			w.rollback()
			e.touch(w.field)
			e.measure()
			e.evaluate()
		}
	} else {
		logger.Debug("Anchor setting confirmed")
		if current {
			e.lastError = ""
		}
	}
	e.publish()
	w.result <- err
}

// await waits for the upstream result. The local change stays applied when
// ctx ends first.
func (e *Engine) await(ctx context.Context, w *write) error {
	select {
	case err := <-w.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// command runs fn on the engine goroutine and waits for the write it submits.
func (e *Engine) command(ctx context.Context, fn func() (*write, error)) error {
	var (
		w   *write
		err error
	)
	if perr := e.do(func() {
		w, err = fn()
		if err == nil {
			e.publish()
		}
	}); perr != nil {
		return perr
	}
	if err != nil || w == nil {
		return err
	}
	return e.await(ctx, w)
}

// DropAnchor starts a watch with the anchor at the current vessel position.
func (e *Engine) DropAnchor(ctx context.Context) error {
	return e.command(ctx, func() (*write, error) {
		if e.active {
			return nil, ErrWatchActive
		}
		if e.vessel == nil {
			return nil, ErrPositionUnknown
		}

		p := *e.vessel
		log.WithFields(log.Fields{"lat": p.Lat, "lon": p.Lon}).Info("Anchor dropped")
		e.activate(&p)
		e.evaluate()

		return e.submit("anchor", func(ctx context.Context, w Writer) error {
			return w.SetAnchorPosition(ctx, &p)
		}, func() {
			e.deactivate()
		}), nil
	})
}

// RaiseAnchor ends the watch. Raising with no active watch is a no-op.
// A failed upstream write is reported but the watch stays raised.
func (e *Engine) RaiseAnchor(ctx context.Context) error {
	return e.command(ctx, func() (*write, error) {
		if !e.active {
			return nil, nil
		}

		log.Info("Anchor raised")
		e.deactivate()
		e.evaluate()

		return e.submit("anchor", func(ctx context.Context, w Writer) error {
			return w.SetAnchorPosition(ctx, nil)
		}, nil), nil
	})
}

// SetRadius uses the current distance to the anchor as the alarm radius.
func (e *Engine) SetRadius(ctx context.Context) error {
	return e.command(ctx, func() (*write, error) {
		if !e.active {
			return nil, ErrWatchInactive
		}
		if e.currentRadius == nil {
			return nil, ErrDistanceUnknown
		}
		if *e.currentRadius <= 0 {
			return nil, fmt.Errorf("radius %.1fm: %w", *e.currentRadius, ErrInvalidValue)
		}
		return e.setMaxRadius(*e.currentRadius), nil
	})
}

// SetRadiusTo sets an explicit alarm radius, with or without an active watch.
func (e *Engine) SetRadiusTo(ctx context.Context, meters float64) error {
	return e.command(ctx, func() (*write, error) {
		if math.IsNaN(meters) || math.IsInf(meters, 0) || meters <= 0 {
			return nil, fmt.Errorf("radius %f: %w", meters, ErrInvalidValue)
		}
		return e.setMaxRadius(meters), nil
	})
}

func (e *Engine) setMaxRadius(meters float64) *write {
	prev := copyFloat(e.maxRadius)
	r := meters
	e.maxRadius = &r

	log.WithField("radius", fmtMeters(e.maxRadius)).Info("Alarm radius set")
	e.measure()
	e.evaluate()

	return e.submit("maxRadius", func(ctx context.Context, w Writer) error {
		return w.SetMaxRadius(ctx, r)
	}, func() {
		e.maxRadius = prev
	})
}

// SetRodeLength records the rode paid out. It does not affect the alarm.
func (e *Engine) SetRodeLength(ctx context.Context, meters float64) error {
	return e.command(ctx, func() (*write, error) {
		if math.IsNaN(meters) || math.IsInf(meters, 0) || meters < 0 {
			return nil, fmt.Errorf("rode length %f: %w", meters, ErrInvalidValue)
		}
		prev := copyFloat(e.rodeLength)
		l := meters
		e.rodeLength = &l

		log.WithField("rode", fmtMeters(e.rodeLength)).Info("Rode length set")

		return e.submit("rodeLength", func(ctx context.Context, w Writer) error {
			return w.SetRodeLength(ctx, l)
		}, func() {
			e.rodeLength = prev
		}), nil
	})
}
