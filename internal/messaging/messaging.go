package messaging

import "context"

type QoS byte

const (
	AtLeastOnce QoS = 1
	ExactlyOnce QoS = 2
	AsyncNoWait QoS = 3 // not a real QoS, will switch to 0 on publish but not wait on returned token
)

// MessageHandler is called once per inbound message, each call on its own
// goroutine.
type MessageHandler func(ctx context.Context, topic string, payload []byte)

// Subscription is returned when you Subscribe you can Unsubscribe later.
type Subscription interface {
	Unsubscribe(ctx context.Context) error
}

type Publisher interface {
	Publish(ctx context.Context, topic string, qos QoS, retain bool, payload []byte) error
}
