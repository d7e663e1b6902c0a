package home

import "time"

// Bus topics shared by the server, the device firmware and the tools.
const (
	TopicLED          = "smart-home/led"
	TopicSensorData   = "smart-home/dht-data"
	TopicFanState     = "smart-home/fan/state"
	TopicFanMode      = "smart-home/fan/mode"
	TopicInit         = "smart-home/init"
	TopicGas          = "smart-home/gas"
	TopicServerStatus = "smart-home/server/status"
	TopicAll          = "smart-home/#"
)

type SensorKind string

const (
	Temperature SensorKind = "temperature"
	Humidity    SensorKind = "humidity"
)

func ParseSensorKind(s string) (SensorKind, bool) {
	switch SensorKind(s) {
	case Temperature, Humidity:
		return SensorKind(s), true
	}
	return "", false
}

// MaxReadings caps every reading history; older entries are evicted first.
const MaxReadings = 10

type SensorReading struct {
	Timestamp string  `json:"timestamp"`
	Value     float64 `json:"value"`
}

func NewSensorReading(at time.Time, value float64) SensorReading {
	return SensorReading{Timestamp: at.UTC().Format(time.RFC3339Nano), Value: value}
}

type ReadingHistory struct {
	Readings []SensorReading `json:"readings"`
}

// Append returns a history with r added last, trimmed to MaxReadings.
// The receiver is left untouched.
func (h ReadingHistory) Append(r SensorReading) ReadingHistory {
	readings := make([]SensorReading, 0, len(h.Readings)+1)
	readings = append(readings, h.Readings...)
	readings = append(readings, r)
	if len(readings) > MaxReadings {
		readings = readings[len(readings)-MaxReadings:]
	}
	return ReadingHistory{Readings: readings}
}

// Actuator document field names.
const (
	FieldRed     = "red"
	FieldGreen   = "green"
	FieldBlue    = "blue"
	FieldFanMode = "fanMode"
	FieldFanIsOn = "fanIsOn"
	FieldLedIsOn = "ledIsOn"
)

// ActuatorState mirrors the device. Color channels hold whatever the last
// writer sent: the device reports strings, the API forwards JSON values.
type ActuatorState struct {
	Red     any  `json:"red"`
	Green   any  `json:"green"`
	Blue    any  `json:"blue"`
	FanMode bool `json:"fanMode"` // true = manual
	FanIsOn bool `json:"fanIsOn"`
	LedIsOn bool `json:"ledIsOn"`
}
