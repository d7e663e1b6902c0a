package home

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	ErrShortPayload = errors.New("not enough fields")
	ErrNotFinite    = errors.New("value is not a finite number")
)

// PayloadError reports a bus payload that could not be decoded.
type PayloadError struct {
	Topic   string
	Payload string
	Err     error
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("decode %s payload %q: %v", e.Topic, e.Payload, e.Err)
}

func (e *PayloadError) Unwrap() error { return e.Err }

func payloadErr(topic string, payload []byte, err error) error {
	return &PayloadError{Topic: topic, Payload: string(payload), Err: err}
}

// parseFinite is strconv.ParseFloat without NaN and the infinities, which
// cannot be stored as JSON numbers.
func parseFinite(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, ErrNotFinite
	}
	return v, nil
}

// ParseSensorData decodes "<humidity> <temperature>". Extra fields are ignored.
func ParseSensorData(payload []byte) (humidity, temperature float64, err error) {
	fields := strings.Fields(string(payload))
	if len(fields) < 2 {
		return 0, 0, payloadErr(TopicSensorData, payload, ErrShortPayload)
	}
	if humidity, err = parseFinite(fields[0]); err != nil {
		return 0, 0, payloadErr(TopicSensorData, payload, err)
	}
	if temperature, err = parseFinite(fields[1]); err != nil {
		return 0, 0, payloadErr(TopicSensorData, payload, err)
	}
	return humidity, temperature, nil
}

func FormatSensorData(humidity, temperature float64) []byte {
	return fmt.Appendf(nil, "%s %s", formatFloat(humidity), formatFloat(temperature))
}

func ParseGasLevel(payload []byte) (float64, error) {
	v, err := parseFinite(strings.TrimSpace(string(payload)))
	if err != nil {
		return 0, payloadErr(TopicGas, payload, err)
	}
	return v, nil
}

// ParseFanState is true only for the literal "on".
func ParseFanState(payload []byte) bool {
	return string(payload) == "on"
}

// ParseInit decodes the device boot report
// "<red> <green> <blue> <fanMode> <fanIsOn> <ledIsOn>". Flags are "0" for
// false and anything else for true; colors are kept as sent.
func ParseInit(payload []byte) (ActuatorState, error) {
	fields := strings.Fields(string(payload))
	if len(fields) < 6 {
		return ActuatorState{}, payloadErr(TopicInit, payload, ErrShortPayload)
	}
	return ActuatorState{
		Red:     fields[0],
		Green:   fields[1],
		Blue:    fields[2],
		FanMode: fields[3] != "0",
		FanIsOn: fields[4] != "0",
		LedIsOn: fields[5] != "0",
	}, nil
}

func FormatInit(red, green, blue int, fanMode, fanIsOn, ledIsOn bool) []byte {
	return fmt.Appendf(nil, "%d %d %d %s %s %s", red, green, blue, flag(fanMode), flag(fanIsOn), flag(ledIsOn))
}

func LightSwitchCommand(state string) []byte {
	return []byte("switch " + state)
}

func LightColorCommand(red, green, blue string) []byte {
	return []byte("color " + red + " " + green + " " + blue)
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
