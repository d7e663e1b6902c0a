package api

import (
	"encoding/json"
	"strconv"

	"github.com/fisaks/smarthome/internal/home"
)

// controlCommand maps one control endpoint onto a bus publication and the
// actuator fields it is expected to change.
type controlCommand struct {
	path     string
	required []string
	topic    string
	payload  func(body map[string]any) []byte
	fields   func(body map[string]any) map[string]any
}

var controlCommands = []controlCommand{
	{
		path:     "/api/fan/state",
		required: []string{"state"},
		topic:    home.TopicFanState,
		payload:  func(b map[string]any) []byte { return []byte(rawValue(b["state"])) },
		fields: func(b map[string]any) map[string]any {
			return map[string]any{home.FieldFanIsOn: b["state"] != "off"}
		},
	},
	{
		path:     "/api/fan/mode",
		required: []string{"mode"},
		topic:    home.TopicFanMode,
		payload:  func(b map[string]any) []byte { return []byte(rawValue(b["mode"])) },
		fields: func(b map[string]any) map[string]any {
			return map[string]any{home.FieldFanMode: b["mode"] != "auto"}
		},
	},
	{
		path:     "/api/light/state",
		required: []string{"action", "state"},
		topic:    home.TopicLED,
		payload:  func(b map[string]any) []byte { return home.LightSwitchCommand(rawValue(b["state"])) },
		fields: func(b map[string]any) map[string]any {
			return map[string]any{home.FieldLedIsOn: b["state"] != "off"}
		},
	},
	{
		path:     "/api/light/color",
		required: []string{"action", "red", "green", "blue"},
		topic:    home.TopicLED,
		payload: func(b map[string]any) []byte {
			return home.LightColorCommand(rawValue(b["red"]), rawValue(b["green"]), rawValue(b["blue"]))
		},
		fields: func(b map[string]any) map[string]any {
			return map[string]any{
				home.FieldRed:   b["red"],
				home.FieldGreen: b["green"],
				home.FieldBlue:  b["blue"],
			}
		},
	},
}

func (c controlCommand) missing(body map[string]any) (string, bool) {
	for _, key := range c.required {
		if _, ok := body[key]; !ok {
			return key, true
		}
	}
	return "", false
}

// rawValue renders a decoded JSON value the way it goes on the bus:
// strings unquoted, numbers as written (or in shortest form once decoded
// to float64), anything else as JSON.
func rawValue(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(data)
	}
}
