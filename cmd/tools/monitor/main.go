package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/fisaks/smarthome/internal/home"
	"github.com/fisaks/smarthome/internal/messaging"
)

// describe renders a payload in decoded form when the topic is known.
func describe(topic string, payload []byte) string {
	switch topic {
	case home.TopicSensorData:
		h, t, err := home.ParseSensorData(payload)
		if err != nil {
			return fmt.Sprintf("%q (error: %v)", payload, err)
		}
		return fmt.Sprintf("humidity=%g temperature=%g", h, t)
	case home.TopicGas:
		v, err := home.ParseGasLevel(payload)
		if err != nil {
			return fmt.Sprintf("%q (error: %v)", payload, err)
		}
		return fmt.Sprintf("gas=%g", v)
	case home.TopicInit:
		st, err := home.ParseInit(payload)
		if err != nil {
			return fmt.Sprintf("%q (error: %v)", payload, err)
		}
		out, _ := json.Marshal(st)
		return string(out)
	case home.TopicFanState:
		return fmt.Sprintf("%q fanIsOn=%v", payload, home.ParseFanState(payload))
	}
	return string(payload)
}

func main() {
	var broker, topic, username, password, cacert string
	flag.StringVar(&broker, "broker", "tcp://localhost:1883", "MQTT broker address")
	flag.StringVar(&topic, "topic", home.TopicAll, "MQTT topic filter")
	flag.StringVar(&username, "username", "", "MQTT username")
	flag.StringVar(&password, "password", "", "MQTT password")
	flag.StringVar(&cacert, "cacert", "", "CA certificate for ssl:// brokers")
	flag.Parse()

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(fmt.Sprintf("smarthome-monitor-%d", time.Now().UnixNano()))
	if username != "" {
		opts.SetUsername(username)
		opts.SetPassword(password)
	}
	if cacert != "" {
		tlsCfg, err := messaging.LoadTLSConfig(cacert)
		if err != nil {
			log.Fatal(err)
		}
		opts.SetTLSConfig(tlsCfg)
	}
	opts.SetDefaultPublishHandler(func(client mqtt.Client, msg mqtt.Message) {
		fmt.Printf("%s %s %s\n", time.Now().Format(time.TimeOnly), msg.Topic(), describe(msg.Topic(), msg.Payload()))
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		log.Fatal(token.Error())
	}
	fmt.Printf("Connected to MQTT broker %s, subscribing to %s...\n", broker, topic)

	if token := client.Subscribe(topic, 0, nil); token.Wait() && token.Error() != nil {
		log.Fatal(token.Error())
	}

	// Wait for interrupt
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	fmt.Println("\nShutting down...")
	client.Disconnect(200)
}
