package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/jasonlvhit/gocron"
	"github.com/peterbourgon/ff"
	"github.com/pkg/profile"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/a-bouts/anchor-watch/anchor"
	"github.com/a-bouts/anchor-watch/api"
	"github.com/a-bouts/anchor-watch/metrics"
	"github.com/a-bouts/anchor-watch/signalk"
	"github.com/a-bouts/anchor-watch/xmpp"
)

func main() {

	defaults := anchor.DefaultConfig()

	fs := flag.NewFlagSet("anchor-watch", flag.ExitOnError)
	var (
		listen         = fs.String("listen", ":8888", "http listen address")
		logLevel       = fs.String("log-level", "info", "debug, info, warn or error")
		cpuprofile     = fs.Bool("cpuprofile", false, "write a cpu profile on exit")
		signalkURL     = fs.String("signalk-url", "", "SignalK server, e.g. http://localhost:3000")
		signalkToken   = fs.String("signalk-token", "", "SignalK access token")
		alarmSound     = fs.String("alarm-sound", defaults.AlarmSound, "sound played on alarm")
		checkinEnabled = fs.Bool("checkin-enabled", defaults.CheckIn.Enabled, "require periodic crew check-ins")
		checkinEvery   = fs.Duration("checkin-interval", defaults.CheckIn.Interval, "time between check-ins")
		checkinGrace   = fs.Duration("checkin-grace", defaults.CheckIn.GracePeriod, "time allowed to acknowledge a check-in")
		warnPercent    = fs.Float64("warn-percent", defaults.Thresholds.WarnPercent, "warn at this percentage of the alarm radius")
		alarmPercent   = fs.Float64("alarm-percent", defaults.Thresholds.AlarmPercent, "alarm at this percentage of the alarm radius")
		hysteresis     = fs.Float64("hysteresis", defaults.Thresholds.Hysteresis, "percentage points below a threshold before the level drops")
		emergencyAfter = fs.Duration("emergency-after", defaults.EmergencyAfter, "alarm duration before emergency, 0 to disable")
		reportEvery    = fs.Uint64("report-every", 15, "minutes between status reports, 0 to disable")
		xmppHost       = fs.String("xmpp-host", "", "")
		xmppJid        = fs.String("xmpp-jid", "", "")
		xmppPassword   = fs.String("xmpp-password", "", "")
		xmppTo         = fs.String("xmpp-to", "", "")
		xmppInsecure   = fs.Bool("xmpp-insecure", false, "skip xmpp certificate verification")
		_              = fs.String("config", "", "config file")
	)
	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarNoPrefix(),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
	); err != nil {
		log.WithError(err).Fatal("Error parsing configuration")
	}

	level, err := log.ParseLevel(*logLevel)
	if err != nil {
		log.WithError(err).Fatal("Error parsing log level")
	}
	log.SetLevel(level)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	if *cpuprofile {
		defer profile.Start(profile.ProfilePath(".")).Stop()
	}

	cfg := anchor.Config{
		AlarmSound: *alarmSound,
		CheckIn: anchor.CheckInConfig{
			Enabled:     *checkinEnabled,
			Interval:    *checkinEvery,
			GracePeriod: *checkinGrace,
		},
		Thresholds: anchor.Thresholds{
			WarnPercent:  *warnPercent,
			AlarmPercent: *alarmPercent,
			Hysteresis:   *hysteresis,
		},
		EmergencyAfter: *emergencyAfter,
		WriteTimeout:   defaults.WriteTimeout,
	}

	x := xmpp.Xmpp{Config: xmpp.Config{Host: *xmppHost, Jid: *xmppJid, Password: *xmppPassword, To: *xmppTo, Insecure: *xmppInsecure}}

	opts := []anchor.Option{}
	if x.Enabled() {
		opts = append(opts, anchor.WithAlerter(xmpp.Alerter{Xmpp: x}))
	}
	if *signalkURL != "" {
		sk := signalk.Config{URL: *signalkURL, Token: *signalkToken}
		opts = append(opts,
			anchor.WithFeed(signalk.Stream{Config: sk}),
			anchor.WithWriter(signalk.Writer{Config: sk, Client: &http.Client{Timeout: 10 * time.Second}}),
		)
	} else {
		log.Info("No SignalK server, positions must be pushed to /anchor/api/v1/position")
	}

	engine, err := anchor.New(cfg, opts...)
	if err != nil {
		log.WithError(err).Fatal("Error creating anchor watch")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		if err := engine.Run(ctx); err != nil && ctx.Err() == nil {
			log.WithError(err).Error("Anchor watch stopped")
		}
	}()

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)
	states, unsubscribe := engine.Subscribe()
	defer unsubscribe()
	go collector.Watch(states)

	if *reportEvery > 0 {
		s := gocron.NewScheduler()
		s.Every(*reportEvery).Minutes().Do(report, engine, x)
		stopScheduler := s.Start()
		defer close(stopScheduler)
	}

	router := api.InitServer(engine, reg)
	handler := handlers.CORS(
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)(handlers.LoggingHandler(log.StandardLogger().WriterLevel(log.DebugLevel), router))

	srv := &http.Server{Addr: *listen, Handler: handler}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdown)
	}()

	log.WithField("listen", *listen).Info("Start server")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Error("Server stopped")
		stop()
	}

	<-watchDone
}
