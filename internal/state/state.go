package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/fisaks/smarthome/internal/home"
	"github.com/fisaks/smarthome/internal/store"
)

var (
	ActuatorsRef = store.Ref{Collection: "rtstate", ID: "actuators"}
	sensorRefs   = map[home.SensorKind]store.Ref{
		home.Temperature: {Collection: "sensor", ID: string(home.Temperature)},
		home.Humidity:    {Collection: "sensor", ID: string(home.Humidity)},
	}
)

func SensorRef(kind home.SensorKind) (store.Ref, bool) {
	ref, ok := sensorRefs[kind]
	return ref, ok
}

// HomeStateStore is the typed view of the persisted smart-home documents.
type HomeStateStore interface {
	AppendReading(ctx context.Context, kind home.SensorKind, reading home.SensorReading) error
	Readings(ctx context.Context, kind home.SensorKind) (home.ReadingHistory, error)
	PatchActuators(ctx context.Context, fields map[string]any) error
	ReplaceActuators(ctx context.Context, state home.ActuatorState) error
	Actuators(ctx context.Context) (store.Document, error)
}

type homeStateStore struct {
	store store.Store
}

func NewHomeStateStore(s store.Store) HomeStateStore {
	return &homeStateStore{store: s}
}

// AppendReading adds reading to the history of kind and trims it to
// home.MaxReadings inside one atomic update.
func (s *homeStateStore) AppendReading(ctx context.Context, kind home.SensorKind, reading home.SensorReading) error {
	ref, ok := SensorRef(kind)
	if !ok {
		return fmt.Errorf("unknown sensor kind %q", kind)
	}
	return s.store.Update(ctx, ref, func(doc store.Document, exists bool) (store.Document, error) {
		var history home.ReadingHistory
		if exists {
			if err := store.Decode(doc, &history); err != nil {
				return nil, fmt.Errorf("decode %s: %w", ref, err)
			}
		}
		return store.Normalize(history.Append(reading))
	})
}

// Readings returns an empty history when nothing was recorded yet.
func (s *homeStateStore) Readings(ctx context.Context, kind home.SensorKind) (home.ReadingHistory, error) {
	var history home.ReadingHistory
	ref, ok := SensorRef(kind)
	if !ok {
		return history, fmt.Errorf("unknown sensor kind %q", kind)
	}
	doc, err := s.store.Get(ctx, ref)
	if errors.Is(err, store.ErrNotFound) {
		return home.ReadingHistory{Readings: []home.SensorReading{}}, nil
	}
	if err != nil {
		return history, err
	}
	if err := store.Decode(doc, &history); err != nil {
		return history, fmt.Errorf("decode %s: %w", ref, err)
	}
	return history, nil
}

// PatchActuators overwrites only the given fields, keeping the rest of the
// actuator document.
func (s *homeStateStore) PatchActuators(ctx context.Context, fields map[string]any) error {
	patch, err := store.Normalize(fields)
	if err != nil {
		return err
	}
	return s.store.Update(ctx, ActuatorsRef, func(doc store.Document, _ bool) (store.Document, error) {
		if doc == nil {
			doc = store.Document{}
		}
		for k, v := range patch {
			doc[k] = v
		}
		return doc, nil
	})
}

// ReplaceActuators drops every stored field and writes state as is.
func (s *homeStateStore) ReplaceActuators(ctx context.Context, state home.ActuatorState) error {
	doc, err := store.Normalize(state)
	if err != nil {
		return err
	}
	return s.store.Set(ctx, ActuatorsRef, doc)
}

// Actuators returns the stored document verbatim, or store.ErrNotFound.
func (s *homeStateStore) Actuators(ctx context.Context) (store.Document, error) {
	return s.store.Get(ctx, ActuatorsRef)
}
