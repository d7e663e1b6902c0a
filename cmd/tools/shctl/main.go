package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/fisaks/smarthome/internal/home"
	"github.com/fisaks/smarthome/internal/messaging"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage:
  shctl <command> [flags]

Device-side messages (what the ESP32 sends):
  dht    --humidity H --temperature T    publish to %[1]s
  gas    --value V                       publish to %[2]s
  fan    --state on|off                  publish to %[3]s
  init   --red R --green G --blue B --fan-mode 0|1 --fan-on 0|1 --led-on 0|1
                                         publish to %[4]s
Server-side commands (what the HTTP API sends):
  led    --switch on|off | --color "R G B"
                                         publish to %[5]s
  mode   --mode auto|manual              publish to %[6]s

Connection flags (all commands):
  --broker   (string)   MQTT broker URL (default: tcp://localhost:1883)
  --username (string)   MQTT username
  --password (string)   MQTT password
  --cacert   (string)   CA certificate for ssl:// brokers

`, home.TopicSensorData, home.TopicGas, home.TopicFanState, home.TopicInit, home.TopicLED, home.TopicFanMode)
}

type connFlags struct {
	broker, username, password, cacert *string
}

func addConnFlags(fs *flag.FlagSet) connFlags {
	return connFlags{
		broker:   fs.String("broker", "tcp://localhost:1883", "MQTT broker URL"),
		username: fs.String("username", "", "MQTT username"),
		password: fs.String("password", "", "MQTT password"),
		cacert:   fs.String("cacert", "", "CA certificate file"),
	}
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Missing command\n")
		usage()
		os.Exit(2)
	}

	cmd := os.Args[1]
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	fs.Usage = usage
	conn := addConnFlags(fs)

	var build func() (string, []byte, error)
	switch cmd {
	case "dht":
		humidity := fs.Float64("humidity", 50, "relative humidity")
		temperature := fs.Float64("temperature", 21, "temperature")
		build = func() (string, []byte, error) {
			return home.TopicSensorData, home.FormatSensorData(*humidity, *temperature), nil
		}
	case "gas":
		value := fs.Float64("value", -1, "gas sensor reading (required)")
		build = func() (string, []byte, error) {
			if *value < 0 {
				return "", nil, fmt.Errorf("--value is required and must be >= 0")
			}
			return home.TopicGas, fmt.Appendf(nil, "%g", *value), nil
		}
	case "fan":
		state := fs.String("state", "", "on or off (required)")
		build = func() (string, []byte, error) {
			if *state == "" {
				return "", nil, fmt.Errorf("--state is required")
			}
			return home.TopicFanState, []byte(*state), nil
		}
	case "init":
		red := fs.Int("red", 255, "red channel")
		green := fs.Int("green", 255, "green channel")
		blue := fs.Int("blue", 255, "blue channel")
		fanMode := fs.Bool("fan-mode", false, "fan in manual mode")
		fanOn := fs.Bool("fan-on", false, "fan running")
		ledOn := fs.Bool("led-on", false, "led lit")
		build = func() (string, []byte, error) {
			return home.TopicInit, home.FormatInit(*red, *green, *blue, *fanMode, *fanOn, *ledOn), nil
		}
	case "led":
		sw := fs.String("switch", "", "on or off")
		color := fs.String("color", "", `"R G B"`)
		build = func() (string, []byte, error) {
			switch {
			case *sw != "" && *color == "":
				return home.TopicLED, home.LightSwitchCommand(*sw), nil
			case *color != "" && *sw == "":
				var r, g, b int
				if _, err := fmt.Sscanf(*color, "%d %d %d", &r, &g, &b); err != nil {
					return "", nil, fmt.Errorf("--color must be three integers: %w", err)
				}
				return home.TopicLED, home.LightColorCommand(fmt.Sprint(r), fmt.Sprint(g), fmt.Sprint(b)), nil
			}
			return "", nil, fmt.Errorf("exactly one of --switch or --color is required")
		}
	case "mode":
		mode := fs.String("mode", "", "auto or manual (required)")
		build = func() (string, []byte, error) {
			if *mode == "" {
				return "", nil, fmt.Errorf("--mode is required")
			}
			return home.TopicFanMode, []byte(*mode), nil
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(2)
	}

	if err := fs.Parse(os.Args[2:]); err != nil {
		os.Exit(2)
	}
	topic, payload, err := build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		usage()
		os.Exit(2)
	}

	if err := publish(conn, topic, payload); err != nil {
		fmt.Fprintf(os.Stderr, "MQTT error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Published %q to %s\n", payload, topic)
}

func publish(conn connFlags, topic string, payload []byte) error {
	cfg := messaging.BrokerConfig{
		BrokerURL:      *conn.broker,
		ClientID:       fmt.Sprintf("shctl-%d", time.Now().UnixNano()),
		Username:       *conn.username,
		Password:       *conn.password,
		ConnectTimeout: 10 * time.Second,
		PublishTimeout: 5 * time.Second,
	}
	if *conn.cacert != "" {
		tlsCfg, err := messaging.LoadTLSConfig(*conn.cacert)
		if err != nil {
			return err
		}
		cfg.TLSConfig = tlsCfg
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	b := messaging.NewMsgBroker(cfg)
	if err := b.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer b.Close(ctx)
	return b.Publish(ctx, topic, messaging.ExactlyOnce, false, payload)
}
