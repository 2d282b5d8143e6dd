// Package mqtt connects the worker to the broker. The worker core only
// ever sees (topic, payload) callbacks; everything transport-specific
// stays here.
package mqtt

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// MessageHandler receives every message delivered on the subscription.
type MessageHandler func(ctx context.Context, topic string, payload []byte)

// Options configures the broker connection and subscription.
type Options struct {
	Broker   string
	Port     int
	ClientID string
	Username string
	Password string
	Topic    string
}

// Subscriber owns the paho client and forwards messages to the handler.
type Subscriber struct {
	opts    Options
	handler MessageHandler
	client  mqtt.Client
	log     zerolog.Logger
}

func NewSubscriber(opts Options, handler MessageHandler, logger zerolog.Logger) *Subscriber {
	return &Subscriber{
		opts:    opts,
		handler: handler,
		log:     logger.With().Str("component", "mqtt").Logger(),
	}
}

// Connect dials the broker and subscribes. Paho's auto-reconnect
// re-establishes the subscription through the OnConnect handler after
// a connection loss.
func (s *Subscriber) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", s.opts.Broker, s.opts.Port))
	opts.SetClientID(s.opts.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetKeepAlive(60 * time.Second)

	if s.opts.Username != "" {
		opts.SetUsername(s.opts.Username)
	}
	if s.opts.Password != "" {
		opts.SetPassword(s.opts.Password)
	}

	opts.SetConnectionLostHandler(func(c mqtt.Client, err error) {
		s.log.Error().Err(err).Msg("mqtt connection lost")
	})
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		token := c.Subscribe(s.opts.Topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
			s.handler(ctx, msg.Topic(), msg.Payload())
		})
		token.Wait()
		if token.Error() != nil {
			s.log.Error().Str("topic", s.opts.Topic).Err(token.Error()).Msg("mqtt subscribe failed")
			return
		}
		s.log.Info().Str("topic", s.opts.Topic).Msg("mqtt subscribed")
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("mqtt connect: %w", token.Error())
	}

	s.client = client
	s.log.Info().Str("broker", s.opts.Broker).Int("port", s.opts.Port).Msg("mqtt connected")
	return nil
}

// Close disconnects from the broker, allowing in-flight work to finish.
func (s *Subscriber) Close() {
	if s.client != nil && s.client.IsConnected() {
		s.client.Disconnect(250)
	}
}
