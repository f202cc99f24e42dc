package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/a-bouts/anchor-watch/anchor"
	"github.com/a-bouts/anchor-watch/api/model"
)

// Watch is the anchor engine as seen by the HTTP surface.
type Watch interface {
	State() anchor.State
	Subscribe() (<-chan anchor.State, func())
	Ingest(u anchor.Update) error
	DropAnchor(ctx context.Context) error
	RaiseAnchor(ctx context.Context) error
	SetRadius(ctx context.Context) error
	SetRadiusTo(ctx context.Context, meters float64) error
	SetRodeLength(ctx context.Context, meters float64) error
	AcknowledgeAlarm() error
	AcknowledgeCheckIn() error
	ConfigureCheckIn(cfg anchor.CheckInConfig) error
}

type server struct {
	w       Watch
	timeout time.Duration
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func InitServer(w Watch, gatherer prometheus.Gatherer) *mux.Router {

	router := mux.NewRouter().StrictSlash(true)

	s := server{
		w:       w,
		timeout: 15 * time.Second,
	}

	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	api := router.PathPrefix("/anchor").Subrouter()
	api.HandleFunc("/-/healthz", s.healthz).Methods(http.MethodGet)

	apiV1 := api.PathPrefix("/api/v1").Subrouter()
	apiV1.HandleFunc("/state", s.state).Methods(http.MethodGet)
	apiV1.HandleFunc("/stream", s.stream).Methods(http.MethodGet)
	apiV1.HandleFunc("/position", s.position).Methods(http.MethodPost)
	apiV1.HandleFunc("/drop", s.command("drop", s.w.DropAnchor)).Methods(http.MethodPost)
	apiV1.HandleFunc("/raise", s.command("raise", s.w.RaiseAnchor)).Methods(http.MethodPost)
	apiV1.HandleFunc("/radius", s.radius).Methods(http.MethodPost)
	apiV1.HandleFunc("/rode", s.rode).Methods(http.MethodPost)
	apiV1.HandleFunc("/alarm/ack", s.command("alarm-ack", func(context.Context) error {
		return s.w.AcknowledgeAlarm()
	})).Methods(http.MethodPost)
	apiV1.HandleFunc("/checkin/ack", s.command("checkin-ack", func(context.Context) error {
		return s.w.AcknowledgeCheckIn()
	})).Methods(http.MethodPost)
	apiV1.HandleFunc("/checkin", s.checkIn).Methods(http.MethodPut)

	return router
}

func (s *server) healthz(w http.ResponseWriter, r *http.Request) {
	type health struct {
		Status string `json:"status"`
	}

	json.NewEncoder(w).Encode(health{Status: "Ok"})
}

func (s *server) state(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.NewState(s.w.State()))
}

func (s *server) command(action string, fn func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.run(w, r, action, fn)
	}
}

// run executes a command, logs it with the client ip and answers with the resulting state.
func (s *server) run(w http.ResponseWriter, r *http.Request, action string, fn func(ctx context.Context) error) {
	fields := log.Fields{
		"action": action,
	}
	if ip, err := getIp(r); err == nil {
		fields["IP"] = ip
	}
	requestLogger := log.WithFields(fields)

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	state := model.NewState(s.w.State())

	if err != nil {
		status := statusFor(err)
		requestLogger.WithError(err).Warnf("Command failed with %d", status)
		writeJSON(w, status, model.Error{Error: err.Error(), State: &state})
		return
	}

	requestLogger.Infof("Command took %s", time.Since(start))
	writeJSON(w, http.StatusOK, state)
}

func (s *server) radius(w http.ResponseWriter, r *http.Request) {
	var body model.Radius
	if err := decode(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, model.Error{Error: err.Error()})
		return
	}

	if body.Radius == nil {
		s.run(w, r, "radius", s.w.SetRadius)
		return
	}
	s.run(w, r, "radius", func(ctx context.Context) error {
		return s.w.SetRadiusTo(ctx, *body.Radius)
	})
}

func (s *server) rode(w http.ResponseWriter, r *http.Request) {
	var body model.Rode
	if err := decode(r, &body); err != nil || body.Length == nil {
		writeJSON(w, http.StatusBadRequest, model.Error{Error: "rode length required"})
		return
	}
	s.run(w, r, "rode", func(ctx context.Context) error {
		return s.w.SetRodeLength(ctx, *body.Length)
	})
}

func (s *server) checkIn(w http.ResponseWriter, r *http.Request) {
	var body model.CheckIn
	if err := decode(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, model.Error{Error: err.Error()})
		return
	}
	cfg, err := body.Config()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, model.Error{Error: err.Error()})
		return
	}
	s.run(w, r, "checkin", func(context.Context) error {
		return s.w.ConfigureCheckIn(cfg)
	})
}

// position lets a local bridge (NMEA, GPS daemon) push fixes when no telemetry server is used.
func (s *server) position(w http.ResponseWriter, r *http.Request) {
	var body model.Position
	if err := decode(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, model.Error{Error: err.Error()})
		return
	}

	log.WithField("position", body.Position).Debug("Position pushed")

	err := s.w.Ingest(anchor.Update{Position: &anchor.PositionUpdate{
		Vessel:  body.Position,
		Heading: body.Heading,
	}})
	if err != nil {
		writeJSON(w, statusFor(err), model.Error{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, model.NewState(s.w.State()))
}

func (s *server) stream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Error("Error upgrading stream")
		return
	}

	id := uuid.New()
	clientLogger := log.WithField("client", id.String())
	if ip, err := getIp(r); err == nil {
		clientLogger = clientLogger.WithField("IP", ip)
	}
	clientLogger.Info("Stream client connected")

	states, unsubscribe := s.w.Subscribe()
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	defer func() {
		unsubscribe()
		conn.Close()
		clientLogger.Info("Stream client disconnected")
	}()

	for {
		select {
		case <-done:
			return
		case st, ok := <-states:
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "watch stopped"))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(model.NewState(st)); err != nil {
				clientLogger.WithError(err).Debug("Error writing stream")
				return
			}
		}
	}
}

func decode(r *http.Request, v interface{}) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, anchor.ErrWatchActive),
		errors.Is(err, anchor.ErrWatchInactive),
		errors.Is(err, anchor.ErrNoActiveAlarm),
		errors.Is(err, anchor.ErrNoCheckInPending):
		return http.StatusConflict
	case errors.Is(err, anchor.ErrPositionUnknown),
		errors.Is(err, anchor.ErrDistanceUnknown):
		return http.StatusUnprocessableEntity
	case errors.Is(err, anchor.ErrInvalidValue):
		return http.StatusBadRequest
	case errors.Is(err, anchor.ErrEngineStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

func getIp(r *http.Request) (string, error) {
	//Get IP from the X-REAL-IP header
	ip := r.Header.Get("X-REAL-IP")
	netIP := net.ParseIP(ip)
	if netIP != nil {
		return ip, nil
	}

	//Get IP from X-FORWARDED-FOR header
	ips := r.Header.Get("X-FORWARDED-FOR")
	splitIps := strings.Split(ips, ",")
	for _, ip := range splitIps {
		ip = strings.TrimSpace(ip)
		netIP := net.ParseIP(ip)
		if netIP != nil {
			return ip, nil
		}
	}

	//Get IP from RemoteAddr
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "", err
	}
	netIP = net.ParseIP(ip)
	if netIP != nil {
		return ip, nil
	}
	return "", fmt.Errorf("No valid ip found")
}
