// Package router turns inbound bus messages into state changes and alerts.
package router

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/fisaks/smarthome/internal/home"
	"github.com/fisaks/smarthome/internal/logging"
	"github.com/fisaks/smarthome/internal/metrics"
	"github.com/fisaks/smarthome/internal/notify"
)

var ErrNoHandler = errors.New("no handler for topic")

// Handler processes one message payload for the topic it is registered on.
type Handler func(ctx context.Context, payload []byte) error

// FailurePolicy decides what happens when a handler fails on a topic that
// does not always drop.
type FailurePolicy string

const (
	PolicyDrop FailurePolicy = "drop"
	PolicyExit FailurePolicy = "exit"
)

func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch FailurePolicy(s) {
	case PolicyDrop, "":
		return PolicyDrop, nil
	case PolicyExit:
		return PolicyExit, nil
	}
	return "", fmt.Errorf("unknown failure policy %q (want drop or exit)", s)
}

// DefaultGasThreshold is the gas reading above which an alert goes out.
const DefaultGasThreshold = 2000

// StateWriter is the part of the state store the router mutates.
type StateWriter interface {
	AppendReading(ctx context.Context, kind home.SensorKind, reading home.SensorReading) error
	PatchActuators(ctx context.Context, fields map[string]any) error
	ReplaceActuators(ctx context.Context, state home.ActuatorState) error
}

type Deps struct {
	State    StateWriter
	Notifier notify.Notifier
	Metrics  *metrics.Metrics
	// GasThreshold is used as given; zero alerts on any positive level.
	GasThreshold float64
	Now          func() time.Time
}

type route struct {
	handler Handler
	// alwaysDrop ignores the failure policy and drops failed messages.
	alwaysDrop bool
}

type Router struct {
	deps   Deps
	routes map[string]route
	policy FailurePolicy
	exit   func(code int)
}

type Option func(*Router)

func WithFailurePolicy(p FailurePolicy) Option {
	return func(r *Router) { r.policy = p }
}

// WithExit replaces os.Exit for PolicyExit.
func WithExit(exit func(code int)) Option {
	return func(r *Router) { r.exit = exit }
}

// New builds a router with the smart-home topic table registered.
func New(deps Deps, opts ...Option) *Router {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.LogNotifier{}
	}
	r := &Router{
		deps:   deps,
		routes: make(map[string]route),
		policy: PolicyDrop,
		exit:   os.Exit,
	}
	for _, opt := range opts {
		opt(r)
	}

	r.handle(home.TopicSensorData, r.onSensorData, true)
	r.handle(home.TopicGas, r.onGasLevel, false)
	r.handle(home.TopicFanState, r.onFanState, false)
	r.handle(home.TopicInit, r.onInit, false)
	return r
}

func (r *Router) handle(topic string, h Handler, alwaysDrop bool) {
	r.routes[topic] = route{handler: h, alwaysDrop: alwaysDrop}
}

// Handle registers or replaces the handler for topic.
func (r *Router) Handle(topic string, h Handler) {
	r.handle(topic, h, false)
}

// Topics lists the registered topics in a stable order.
func (r *Router) Topics() []string {
	topics := make([]string, 0, len(r.routes))
	for t := range r.routes {
		topics = append(topics, t)
	}
	slices.Sort(topics)
	return topics
}

// Dispatch runs the handler registered for topic.
func (r *Router) Dispatch(ctx context.Context, topic string, payload []byte) error {
	rt, ok := r.routes[topic]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoHandler, topic)
	}
	return rt.handler(ctx, payload)
}

// OnMessage is the bus entry point: it dispatches and applies the failure
// policy. Its signature matches messaging.MessageHandler.
func (r *Router) OnMessage(ctx context.Context, topic string, payload []byte) {
	logging.Debug("message received", "topic", topic, "payload", string(payload))
	r.deps.Metrics.BusMessage(topic)

	err := r.Dispatch(ctx, topic, payload)
	if err == nil {
		return
	}
	if errors.Is(err, ErrNoHandler) {
		logging.Debug("message ignored", "topic", topic)
		return
	}
	r.deps.Metrics.RouterError(topic)

	if r.routes[topic].alwaysDrop || r.policy == PolicyDrop {
		logging.Warn("message dropped", "topic", topic, "payload", string(payload), "error", err)
		return
	}
	logging.Error("message handler failed, exiting", "topic", topic, "payload", string(payload), "error", err)
	r.exit(1)
}

func (r *Router) onSensorData(ctx context.Context, payload []byte) error {
	humidity, temperature, err := home.ParseSensorData(payload)
	if err != nil {
		return err
	}
	at := r.deps.Now()
	if err := r.deps.State.AppendReading(ctx, home.Temperature, home.NewSensorReading(at, temperature)); err != nil {
		return fmt.Errorf("store temperature: %w", err)
	}
	if err := r.deps.State.AppendReading(ctx, home.Humidity, home.NewSensorReading(at, humidity)); err != nil {
		return fmt.Errorf("store humidity: %w", err)
	}
	return nil
}

// onGasLevel alerts on every reading above the threshold. Alert failures
// are logged, never returned.
func (r *Router) onGasLevel(ctx context.Context, payload []byte) error {
	level, err := home.ParseGasLevel(payload)
	if err != nil {
		return err
	}
	if level <= r.deps.GasThreshold {
		return nil
	}
	err = r.deps.Notifier.Notify(ctx, notify.GasAlert)
	r.deps.Metrics.Alert(err)
	if err != nil {
		logging.Error("gas alert not sent", "level", level, "error", err)
		return nil
	}
	logging.Info("gas alert sent", "level", level)
	return nil
}

func (r *Router) onFanState(ctx context.Context, payload []byte) error {
	return r.deps.State.PatchActuators(ctx, map[string]any{
		home.FieldFanIsOn: home.ParseFanState(payload),
	})
}

func (r *Router) onInit(ctx context.Context, payload []byte) error {
	st, err := home.ParseInit(payload)
	if err != nil {
		return err
	}
	return r.deps.State.ReplaceActuators(ctx, st)
}
