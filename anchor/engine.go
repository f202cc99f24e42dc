package anchor

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/a-bouts/anchor-watch/latlon"
)

// Feed delivers telemetry updates until ctx is done or the channel is closed.
type Feed interface {
	Subscribe(ctx context.Context) (<-chan Update, error)
}

// Writer pushes anchor settings to the telemetry server.
type Writer interface {
	// SetAnchorPosition drops the anchor at p, or raises it when p is nil.
	SetAnchorPosition(ctx context.Context, p *Position) error
	SetMaxRadius(ctx context.Context, meters float64) error
	SetRodeLength(ctx context.Context, meters float64) error
}

// Alerter plays or pushes alerts. Calls never run on the engine goroutine.
type Alerter interface {
	Notify(ctx context.Context, n Notification) error
}

type Option func(*Engine)

func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

func WithFeed(f Feed) Option {
	return func(e *Engine) { e.feed = f }
}

func WithWriter(w Writer) Option {
	return func(e *Engine) { e.writer = w }
}

func WithAlerter(a Alerter) Option {
	return func(e *Engine) { e.alerter = a }
}

// Engine owns one anchor watch. All state is mutated on the goroutine running
// Run; every other method posts an event to it.
type Engine struct {
	cfg     Config
	clock   Clock
	feed    Feed
	writer  Writer
	alerter Alerter
	geo     latlon.LatLonInterface

	events  chan func()
	alerts  chan Notification
	stopped chan struct{}
	started atomic.Bool
	runCtx  context.Context

	mu   sync.Mutex
	subs map[chan State]struct{}
	last State

	// owned by the Run goroutine
	active        bool
	anchor        *Position
	vessel        *Position
	heading       *float64
	maxRadius     *float64
	currentRadius *float64
	percentage    *float64
	bearing       *float64
	rodeLength    *float64

	level         Level
	distanceLevel Level
	message       string
	silenced      bool
	ackDistance   *float64
	ackClosest    *float64
	episode       string
	alarmSince    *time.Time
	escalation    handle

	watchdog watchdog

	revisions map[string]int
	pending   map[string]int
	lastError string
	updatedAt time.Time
}

// handle is a single replaceable timer. Bumping gen invalidates callbacks of
// the previous timer that already fired but were not yet processed.
type handle struct {
	timer Timer
	gen   uint64
}

func (h *handle) stop() {
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	h.gen++
}

func New(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultConfig().WriteTimeout
	}

	e := &Engine{
		cfg:       cfg,
		clock:     realClock{},
		geo:       latlon.Haversine{},
		events:    make(chan func()),
		alerts:    make(chan Notification, 32),
		stopped:   make(chan struct{}),
		runCtx:    context.Background(),
		subs:      make(map[chan State]struct{}),
		revisions: make(map[string]int),
		pending:   make(map[string]int),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.watchdog.cfg = cfg.CheckIn
	e.updatedAt = e.clock.Now()
	e.last = e.snapshot()

	return e, nil
}

// Run processes feed updates, commands and timers until ctx is done. An engine
// runs once: later calls return ErrAlreadyRunning. On return every timer is
// cancelled and subscriber channels are closed.
func (e *Engine) Run(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	e.runCtx = ctx

	var updates <-chan Update
	if e.feed != nil {
		u, err := e.feed.Subscribe(ctx)
		if err != nil {
			log.WithError(err).Error("Error subscribing to telemetry feed")
		} else {
			updates = u
		}
	}

	go e.alertLoop(ctx)

	defer e.teardown()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-e.events:
			fn()
		case u, ok := <-updates:
			if !ok {
				log.Warn("Telemetry feed closed")
				updates = nil
				continue
			}
			e.apply(u)
		}
	}
}

func (e *Engine) teardown() {
	e.watchdog.stop()
	e.escalation.stop()
	close(e.stopped)

	e.mu.Lock()
	defer e.mu.Unlock()
	for ch := range e.subs {
		close(ch)
		delete(e.subs, ch)
	}
}

// post queues fn on the engine goroutine without waiting for it to run.
func (e *Engine) post(fn func()) error {
	select {
	case e.events <- fn:
		return nil
	case <-e.stopped:
		return ErrEngineStopped
	}
}

// do runs fn on the engine goroutine and waits for it to complete.
func (e *Engine) do(fn func()) error {
	done := make(chan struct{})
	if err := e.post(func() {
		defer close(done)
		fn()
	}); err != nil {
		return err
	}
	<-done
	return nil
}

// after schedules fn on the engine goroutine. A fire after teardown is dropped.
func (e *Engine) after(d time.Duration, fn func()) Timer {
	return e.clock.AfterFunc(d, func() {
		_ = e.do(fn)
	})
}

// Ingest applies a telemetry update as if it came from the feed.
func (e *Engine) Ingest(u Update) error {
	return e.do(func() { e.apply(u) })
}

func (e *Engine) apply(u Update) {
	if u.Anchor != nil {
		e.applySettings(*u.Anchor)
	}
	if u.Position != nil {
		e.trackPosition(*u.Position)
	}
	e.publish()
}

// State returns the current snapshot, or the last published one once the
// engine has stopped.
func (e *Engine) State() State {
	var s State
	if err := e.do(func() { s = e.snapshot() }); err != nil {
		e.mu.Lock()
		s = e.last
		e.mu.Unlock()
	}
	return s
}

// Subscribe returns a channel receiving snapshots, latest wins: a slow reader
// only misses intermediate states. The current state is delivered first.
func (e *Engine) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)

	e.mu.Lock()
	select {
	case <-e.stopped:
		close(ch)
		e.mu.Unlock()
		return ch, func() {}
	default:
	}
	e.subs[ch] = struct{}{}
	ch <- e.last
	e.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			if _, ok := e.subs[ch]; ok {
				delete(e.subs, ch)
				close(ch)
			}
		})
	}
}

func (e *Engine) publish() {
	e.updatedAt = e.clock.Now()
	s := e.snapshot()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.last = s
	for ch := range e.subs {
		select {
		case <-ch:
		default:
		}
		ch <- s
	}
}

func (e *Engine) snapshot() State {
	s := State{
		IsActive:         e.active,
		AnchorPosition:   copyPosition(e.anchor),
		VesselPosition:   copyPosition(e.vessel),
		VesselHeading:    copyFloat(e.heading),
		MaxRadius:        copyFloat(e.maxRadius),
		CurrentRadius:    copyFloat(e.currentRadius),
		RadiusPercentage: copyFloat(e.percentage),
		BearingDegrees:   copyFloat(e.bearing),
		RodeLength:       copyFloat(e.rodeLength),
		AlarmState:       e.level,
		AlarmMessage:     e.message,
		Silenced:         e.silenced,
		Episode:          e.episode,
		CheckIn: CheckInState{
			Enabled:  e.watchdog.cfg.Enabled,
			Awaiting: e.watchdog.awaiting,
			Deadline: copyTime(e.watchdog.deadline),
			TimedOut: e.watchdog.timedOut,
		},
		LastError: e.lastError,
		UpdatedAt: e.updatedAt,
	}
	for field := range e.pending {
		s.Pending = append(s.Pending, field)
	}
	sort.Strings(s.Pending)
	return s
}

func (e *Engine) notify(n Notification) {
	if e.alerter == nil {
		return
	}
	n.At = e.clock.Now()
	n.Sound = e.cfg.AlarmSound
	select {
	case e.alerts <- n:
	default:
		log.WithField("kind", n.Kind).Warn("Alert queue full, dropping notification")
	}
}

func (e *Engine) alertLoop(ctx context.Context) {
	if e.alerter == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-e.alerts:
			if err := e.alerter.Notify(ctx, n); err != nil {
				log.WithError(err).WithFields(log.Fields{
					"kind":    n.Kind,
					"episode": n.Episode,
				}).Error("Error sending alert")
			}
		}
	}
}

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

func copyPosition(p *Position) *Position {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
