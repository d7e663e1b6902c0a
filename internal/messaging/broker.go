package messaging

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/fisaks/smarthome/internal/logging"
)

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

type BrokerConfig struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string
	// TLSConfig enables an encrypted session (ssl:// or tls:// URLs).
	TLSConfig *tls.Config
	// StatusTopic, when set, gets a retained "online" on every connect and
	// "offline" as last will and on Close.
	StatusTopic string
	// ConnectRetry keeps retrying the first connect in the background, also
	// after Connect has returned on context expiry.
	ConnectRetry         bool
	ConnectRetryInterval time.Duration
	ConnectTimeout       time.Duration
	PublishTimeout       time.Duration
	SubscribeTimeout     time.Duration
}

type MsgBroker struct {
	config         BrokerConfig
	client         mqtt.Client
	mu             sync.RWMutex
	subs           map[string]subscription
	onConnectFuncs map[string]OnConnectPublisher
}

type subscription struct {
	qos     QoS
	handler mqtt.MessageHandler
}

type PublishRequest struct {
	Topic        string
	Qos          QoS
	Retain       bool
	PayloadBytes []byte
}

type OnConnectPublisher func() (PublishRequest, error)

func NewMsgBroker(cfg BrokerConfig) *MsgBroker {
	b := &MsgBroker{
		config:         cfg,
		subs:           make(map[string]subscription),
		onConnectFuncs: make(map[string]OnConnectPublisher),
	}
	b.client = mqtt.NewClient(b.optionsFromConfig())
	if cfg.StatusTopic != "" {
		b.AddOnConnectPublisher("status", func() (PublishRequest, error) {
			return PublishRequest{
				Topic:        cfg.StatusTopic,
				Qos:          AtLeastOnce,
				Retain:       true,
				PayloadBytes: []byte(StatusOnline),
			}, nil
		})
	}
	return b
}

func (b *MsgBroker) Connect(ctx context.Context) error {
	if b.client.IsConnected() {
		return nil
	}

	t := b.client.Connect()
	done := make(chan struct{})
	go func() {
		t.Wait()
		close(done)
	}()

	select {
	case <-done:
		return t.Error()
	case <-ctx.Done():
		if b.config.ConnectRetry {
			// paho keeps retrying; OnConnect subscribes once it gets through
			return ctx.Err()
		}
		b.client.Disconnect(250)
		return ctx.Err()
	}
}

func (b *MsgBroker) optionsFromConfig() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions().AddBroker(b.config.BrokerURL)
	opts.SetClientID(b.config.ClientID)
	if b.config.Username != "" {
		opts.SetUsername(b.config.Username)
		opts.SetPassword(b.config.Password)
	}
	if b.config.TLSConfig != nil {
		opts.SetTLSConfig(b.config.TLSConfig)
	}
	if b.config.ConnectTimeout > 0 {
		opts.SetConnectTimeout(b.config.ConnectTimeout)
	}
	if b.config.StatusTopic != "" {
		opts.SetWill(b.config.StatusTopic, StatusOffline, byte(AtLeastOnce), true)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(b.config.ConnectRetry)
	if b.config.ConnectRetryInterval > 0 {
		opts.SetConnectRetryInterval(b.config.ConnectRetryInterval)
	}
	opts.SetOrderMatters(false)
	opts.OnConnect = func(c mqtt.Client) {
		logging.Info("mqtt connected", "broker", b.config.BrokerURL, "clientId", b.config.ClientID)
		b.resubscribe()
		b.onConnectPublisher()
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logging.Warn("mqtt connection lost", "clientId", b.config.ClientID, "error", err)
	}
	opts.OnReconnecting = func(_ mqtt.Client, _ *mqtt.ClientOptions) {
		logging.Info("mqtt reconnecting", "clientId", b.config.ClientID)
	}
	return opts
}

func (b *MsgBroker) AddOnConnectPublisher(id string, fn OnConnectPublisher) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onConnectFuncs[id] = fn
}

func (b *MsgBroker) onConnectPublisher() {
	b.mu.RLock()
	funcsCopy := make(map[string]OnConnectPublisher, len(b.onConnectFuncs))
	for k, v := range b.onConnectFuncs {
		funcsCopy[k] = v
	}
	b.mu.RUnlock()

	for id, fn := range funcsCopy {
		req, err := fn()
		if err != nil {
			logging.Error("onConnectPublisher failed", "clientId", b.config.ClientID, "id", id, "error", err)
			continue
		}
		if pubErr := b.Publish(context.Background(), req.Topic, req.Qos, req.Retain, req.PayloadBytes); pubErr != nil {
			logging.Error("onConnect publish failed", "clientId", b.config.ClientID, "id", id, "topic", req.Topic, "error", pubErr)
		}
	}
}

// resubscribe re-issues every registered subscription. The session is
// clean, so the broker forgets them on each reconnect.
func (b *MsgBroker) resubscribe() {
	b.mu.RLock()
	subsCopy := make(map[string]subscription, len(b.subs))
	for k, v := range b.subs {
		subsCopy[k] = v
	}
	b.mu.RUnlock()

	for topic, sub := range subsCopy {
		if err := b.subscribe(context.Background(), topic, sub); err != nil {
			logging.Error("mqtt subscribe failed", "clientId", b.config.ClientID, "topic", topic, "error", err)
			continue
		}
		logging.Info("mqtt subscribed", "topic", topic, "qos", sub.qos)
	}
}

func (b *MsgBroker) IsConnected() bool {
	return b.client.IsConnected()
}

func (b *MsgBroker) Close(ctx context.Context) error {
	if b.config.StatusTopic != "" && b.client.IsConnected() {
		if err := b.Publish(ctx, b.config.StatusTopic, AtLeastOnce, true, []byte(StatusOffline)); err != nil {
			logging.Warn("publish offline status", "error", err)
		}
	}
	// Graceful disconnect with short timeout
	done := make(chan struct{})
	go func() {
		// 250 ms quiesce period
		b.client.Disconnect(250)
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *MsgBroker) Publish(ctx context.Context, topic string, qos QoS, retain bool, payload []byte) error {
	qosByte, wait := qosToByte(qos)
	token := b.client.Publish(topic, qosByte, retain, payload)
	if !wait {
		return nil
	}
	timeout := b.config.PublishTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	select {
	case <-token.Done():
		return token.Error()
	case <-time.After(timeout):
		return fmt.Errorf("publish timeout after %v", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func qosToByte(qos QoS) (byte, bool) {
	if qos > 2 {
		return 0, false
	}
	return byte(qos), true
}

// Subscribe registers handler for topic. When connected it waits for the
// SUBACK; otherwise the subscription is issued on the next connect.
func (b *MsgBroker) Subscribe(ctx context.Context, topic string, qos QoS, handler MessageHandler) (Subscription, error) {
	// wrapper that converts paho message to our handler and logs panics without crashing
	onMessageHandler := func(_ mqtt.Client, msg mqtt.Message) {
		go func() {
			defer func() {
				if r := recover(); r != nil {
					logging.Error("mqtt handler panic", "clientId", b.config.ClientID, "topic", msg.Topic(), "err", r)
				}
			}()
			handler(ctx, msg.Topic(), msg.Payload())
		}()
	}
	sub := subscription{qos: qos, handler: onMessageHandler}

	b.mu.Lock()
	b.subs[topic] = sub
	b.mu.Unlock()

	if b.client.IsConnectionOpen() {
		if err := b.subscribe(ctx, topic, sub); err != nil {
			b.mu.Lock()
			delete(b.subs, topic)
			b.mu.Unlock()
			return nil, err
		}
	}
	return &msgSubscription{broker: b, topic: topic}, nil
}

func (b *MsgBroker) subscribe(ctx context.Context, topic string, sub subscription) error {
	token := b.client.Subscribe(topic, byte(sub.qos), sub.handler)

	timeout := b.config.SubscribeTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	select {
	case <-token.Done():
		return token.Error()
	case <-time.After(timeout):
		return fmt.Errorf("subscribe timeout for %s", topic)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// subscription wrapper
type msgSubscription struct {
	broker *MsgBroker
	topic  string
}

func (s *msgSubscription) Unsubscribe(ctx context.Context) error {
	b := s.broker
	b.mu.Lock()
	delete(b.subs, s.topic)
	b.mu.Unlock()

	if !b.client.IsConnectionOpen() {
		return nil
	}
	token := b.client.Unsubscribe(s.topic)
	timeout := 3 * time.Second
	select {
	case <-token.Done():
		return token.Error()
	case <-time.After(timeout):
		return fmt.Errorf("unsubscribe timeout for %s", s.topic)
	case <-ctx.Done():
		return ctx.Err()
	}
}
