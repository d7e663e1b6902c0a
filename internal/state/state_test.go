package state

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fisaks/smarthome/internal/home"
	"github.com/fisaks/smarthome/internal/store"
)

func newTestStore(t *testing.T) (HomeStateStore, store.Store) {
	t.Helper()
	mem := store.NewMemory()
	return NewHomeStateStore(mem), mem
}

func TestAppendReadingKeepsLastTen(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := range 12 {
		r := home.NewSensorReading(base.Add(time.Duration(i)*time.Second), float64(i))
		if err := s.AppendReading(ctx, home.Temperature, r); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	h, err := s.Readings(ctx, home.Temperature)
	if err != nil {
		t.Fatal(err)
	}
	if len(h.Readings) != home.MaxReadings {
		t.Fatalf("expected %d readings, got %d", home.MaxReadings, len(h.Readings))
	}
	if h.Readings[0].Value != 2 || h.Readings[9].Value != 11 {
		t.Fatalf("wrong window: first=%v last=%v", h.Readings[0].Value, h.Readings[9].Value)
	}
	if h.Readings[9].Timestamp != "2024-03-01T00:00:11Z" {
		t.Fatalf("timestamp %q", h.Readings[9].Timestamp)
	}

	other, _ := s.Readings(ctx, home.Humidity)
	if len(other.Readings) != 0 {
		t.Fatalf("humidity must be independent, got %d", len(other.Readings))
	}
}

func TestReadingsUnknownKind(t *testing.T) {
	s, _ := newTestStore(t)
	if _, err := s.Readings(context.Background(), "pressure"); err == nil {
		t.Fatal("expected error")
	}
	if err := s.AppendReading(context.Background(), "pressure", home.SensorReading{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestPatchActuatorsKeepsOtherFields(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if err := s.ReplaceActuators(ctx, home.ActuatorState{Red: "1", Green: "2", Blue: "3", FanIsOn: true, LedIsOn: true}); err != nil {
		t.Fatal(err)
	}
	if err := s.PatchActuators(ctx, map[string]any{home.FieldRed: 10, home.FieldGreen: 20, home.FieldBlue: 30}); err != nil {
		t.Fatal(err)
	}
	doc, err := s.Actuators(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if doc["red"] != float64(10) || doc["green"] != float64(20) || doc["blue"] != float64(30) {
		t.Fatalf("colors not patched: %v", doc)
	}
	if doc["fanIsOn"] != true || doc["ledIsOn"] != true || doc["fanMode"] != false {
		t.Fatalf("flags changed: %v", doc)
	}
}

func TestPatchActuatorsCreatesDocument(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	if err := s.PatchActuators(ctx, map[string]any{home.FieldFanIsOn: false}); err != nil {
		t.Fatal(err)
	}
	doc, err := s.Actuators(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(doc) != 1 || doc["fanIsOn"] != false {
		t.Fatalf("unexpected document %v", doc)
	}
}

func TestReplaceActuatorsDropsUnknownFields(t *testing.T) {
	s, mem := newTestStore(t)
	ctx := context.Background()
	if err := mem.Set(ctx, ActuatorsRef, store.Document{"legacy": "x", "red": "9"}); err != nil {
		t.Fatal(err)
	}
	st, _ := home.ParseInit([]byte("255 0 0 1 1 0"))
	if err := s.ReplaceActuators(ctx, st); err != nil {
		t.Fatal(err)
	}
	doc, _ := s.Actuators(ctx)
	want := store.Document{"red": "255", "green": "0", "blue": "0", "fanMode": true, "fanIsOn": true, "ledIsOn": false}
	if len(doc) != len(want) {
		t.Fatalf("got %v, want %v", doc, want)
	}
	for k, v := range want {
		if doc[k] != v {
			t.Fatalf("field %s: got %v, want %v", k, doc[k], v)
		}
	}
}

func TestActuatorsNotFound(t *testing.T) {
	s, _ := newTestStore(t)
	if _, err := s.Actuators(context.Background()); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
