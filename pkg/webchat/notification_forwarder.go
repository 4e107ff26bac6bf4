package webchat

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/topicchat/pkg/protocol"
)

// NotificationForwarder delivers bus notification events to their websocket client.
type NotificationForwarder struct {
	subscriber message.Subscriber
	registry   *ConnectionRegistry
	topic      string
}

func NewNotificationForwarder(sub message.Subscriber, registry *ConnectionRegistry, topic string) *NotificationForwarder {
	if topic == "" {
		topic = NotificationsTopic
	}
	return &NotificationForwarder{subscriber: sub, registry: registry, topic: topic}
}

// Subscribe attaches to the bus and returns a function that forwards until ctx
// is done or the subscription closes. Subscribing before the run function starts
// ensures no event published after Subscribe returns is missed.
func (f *NotificationForwarder) Subscribe(ctx context.Context) (func() error, error) {
	if f.subscriber == nil || f.registry == nil {
		return nil, errors.New("notification forwarder is not initialized")
	}
	ch, err := f.subscriber.Subscribe(ctx, f.topic)
	if err != nil {
		return nil, errors.Wrapf(err, "subscribe %s", f.topic)
	}
	return func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case msg, ok := <-ch:
				if !ok {
					return nil
				}
				f.forward(msg)
			}
		}
	}, nil
}

func (f *NotificationForwarder) forward(msg *message.Message) {
	defer msg.Ack()
	var ev NotificationEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		log.Warn().Err(err).Str("component", "forwarder").Str("message_uuid", msg.UUID).Msg("dropping undecodable notification event")
		return
	}
	if ev.ClientID == "" {
		log.Warn().Str("component", "forwarder").Str("message_uuid", msg.UUID).Msg("dropping notification event without client id")
		return
	}
	if !f.registry.SendTo(ev.ClientID, protocol.Notification(ev.Notification)) {
		log.Debug().Str("component", "forwarder").Str("client_id", ev.ClientID).Msg("notification for departed client dropped")
	}
}
