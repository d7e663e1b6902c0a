package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/fisaks/smarthome/internal/home"
	"github.com/fisaks/smarthome/internal/logging"
	"github.com/fisaks/smarthome/internal/messaging"
	"github.com/fisaks/smarthome/internal/metrics"
	"github.com/fisaks/smarthome/internal/store"
)

// StateStore is what the API reads and optimistically writes.
type StateStore interface {
	PatchActuators(ctx context.Context, fields map[string]any) error
	Actuators(ctx context.Context) (store.Document, error)
	Readings(ctx context.Context, kind home.SensorKind) (home.ReadingHistory, error)
}

type Deps struct {
	Publisher messaging.Publisher
	State     StateStore
	Metrics   *metrics.Metrics
	// Connected reports bus health for /health. Optional.
	Connected func() bool
	// AccessLog receives one Apache combined log line per request.
	// Defaults to stdout.
	AccessLog io.Writer
}

type Server struct {
	deps Deps
}

func NewServer(deps Deps) *Server {
	if deps.AccessLog == nil {
		deps.AccessLog = os.Stdout
	}
	return &Server{deps: deps}
}

// Handler returns the routed API wrapped in recovery, CORS and access logging.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(requestIDMiddleware)

	for _, cmd := range controlCommands {
		r.Handle(cmd.path, s.instrument(cmd.path, s.controlHandler(cmd))).Methods(http.MethodPost)
	}
	r.Handle("/api/actuators", s.instrument("/api/actuators", http.HandlerFunc(s.getActuators))).Methods(http.MethodGet)
	r.Handle("/api/sensors/{kind}", s.instrument("/api/sensors/{kind}", http.HandlerFunc(s.getReadings))).Methods(http.MethodGet)
	r.HandleFunc("/health", s.health).Methods(http.MethodGet)
	r.Handle("/metrics", s.deps.Metrics.Handler()).Methods(http.MethodGet)

	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", requestIDHeader}),
	)
	return handlers.RecoveryHandler(handlers.RecoveryLogger(recoveryLogger{}))(
		cors(handlers.CombinedLoggingHandler(s.deps.AccessLog, r)),
	)
}

func (s *Server) instrument(route string, h http.Handler) http.Handler {
	return s.deps.Metrics.Instrument(route, h)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logging.Info("HTTP API listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// controlHandler validates the JSON body, publishes the command with
// exactly-once delivery and then records the expected device state.
func (s *Server) controlHandler(cmd controlCommand) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := logging.Logger.With("path", cmd.path, "requestId", requestIDFromContext(r.Context()))

		body, err := readJSONObject(r)
		if err != nil {
			log.Debug("rejected request", "error", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if key, missing := cmd.missing(body); missing {
			log.Debug("rejected request", "missingKey", key)
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		payload := cmd.payload(body)
		err = s.deps.Publisher.Publish(r.Context(), cmd.topic, messaging.ExactlyOnce, false, payload)
		s.deps.Metrics.Publish(cmd.topic, err)
		if err != nil {
			log.Error("publish command", "topic", cmd.topic, "error", err)
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		log.Info("command published", "topic", cmd.topic, "payload", string(payload))

		if err := s.deps.State.PatchActuators(r.Context(), cmd.fields(body)); err != nil {
			log.Error("store actuator state", "error", err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
}

func (s *Server) getActuators(w http.ResponseWriter, r *http.Request) {
	doc, err := s.deps.State.Actuators(r.Context())
	if errors.Is(err, store.ErrNotFound) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err != nil {
		logging.Error("read actuator state", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) getReadings(w http.ResponseWriter, r *http.Request) {
	kind, ok := home.ParseSensorKind(mux.Vars(r)["kind"])
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	history, err := s.deps.State.Readings(r.Context(), kind)
	if err != nil {
		logging.Error("read sensor history", "kind", kind, "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	connected := s.deps.Connected != nil && s.deps.Connected()
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "mqttConnected": connected})
}

/* ------------------------ helpers: json ------------------------ */

var errNotJSON = errors.New("content type is not JSON")

// readJSONObject accepts application/json (or a +json subtype) bodies
// holding a single JSON object. Numbers stay json.Number so they go on the
// bus as the client wrote them.
func readJSONObject(r *http.Request) (map[string]any, error) {
	defer r.Body.Close()
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return nil, errNotJSON
	}
	if mediaType != "application/json" && !(strings.HasPrefix(mediaType, "application/") && strings.HasSuffix(mediaType, "+json")) {
		return nil, errNotJSON
	}

	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.UseNumber()
	var body map[string]any
	if err := dec.Decode(&body); err != nil {
		return nil, err
	}
	if body == nil {
		return nil, errors.New("body is not a JSON object")
	}
	return body, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type recoveryLogger struct{}

func (recoveryLogger) Println(v ...interface{}) {
	logging.Error("http handler panic", "panic", v)
}
