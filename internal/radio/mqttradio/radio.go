// Package mqttradio emulates the packet radio over MQTT. All nodes of a
// network publish to and subscribe on one topic, the air. Frames travel in a
// three byte envelope, sender, target and flags, followed by the payload.
package mqttradio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/eclipse/paho.golang/paho"
	"github.com/google/uuid"

	"github.com/roman-kulish/hiking-logger/internal/radio"
)

const (
	DefaultTopicPrefix = "hiking-logger"

	envelopeSize = 3
	rxBacklog    = 16

	flagAckRequested = 1 << 0
	flagAck          = 1 << 1
)

var ErrBadEnvelope = errors.New("malformed radio envelope")

// Config selects the broker and the node identity
type Config struct {
	Broker      string // host:port
	Network     string
	TopicPrefix string
	ClientID    string
	Address     uint8
	QoS         byte
}

// Topic returns the topic shared by every node of the network
func (c Config) Topic() string {
	prefix := c.TopicPrefix
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return fmt.Sprintf("%s/%s/air", prefix, c.Network)
}

// WithLogger sets the logger for the radio
func WithLogger(logger *slog.Logger) func(r *Radio) {
	return func(r *Radio) {
		r.logger = logger.With(slog.String("component", "mqttradio"))
	}
}

// Radio is a radio.Radio backed by an MQTT connection
type Radio struct {
	client *paho.Client
	topic  string
	addr   uint8
	qos    byte

	mu   sync.Mutex
	mode radio.Mode
	rx   chan radio.Frame

	logger *slog.Logger
}

var _ radio.Radio = (*Radio)(nil)

// Dial connects to the broker and subscribes to the air. The radio starts in
// standby.
func Dial(ctx context.Context, cfg Config, options ...func(r *Radio)) (*Radio, error) {
	if cfg.Network == "" {
		return nil, errors.New("mqttradio: network is required")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = fmt.Sprintf("hiking-logger-%d-%s", cfg.Address, uuid.NewString())
	}

	r := Radio{
		topic:  cfg.Topic(),
		addr:   cfg.Address,
		qos:    cfg.QoS,
		mode:   radio.ModeStandby,
		rx:     make(chan radio.Frame, rxBacklog),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&r)
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", cfg.Broker)
	if err != nil {
		return nil, fmt.Errorf("dialing broker %s: %w", cfg.Broker, err)
	}

	r.client = paho.NewClient(paho.ClientConfig{
		ClientID: cfg.ClientID,
		Conn:     conn,
		OnPublishReceived: []func(paho.PublishReceived) (bool, error){
			r.onPublish,
		},
		OnClientError: func(err error) {
			r.logger.Error("client error", slog.Any("error", err))
		},
	})

	if _, err = r.client.Connect(ctx, &paho.Connect{
		ClientID:   cfg.ClientID,
		KeepAlive:  30,
		CleanStart: true,
	}); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("connecting to broker: %w", err)
	}

	if _, err = r.client.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{
			Topic:   r.topic,
			QoS:     r.qos,
			NoLocal: true,
		}},
	}); err != nil {
		_ = r.client.Disconnect(&paho.Disconnect{})
		return nil, fmt.Errorf("subscribing to %s: %w", r.topic, err)
	}

	r.logger.Info("radio connected",
		slog.String("broker", cfg.Broker),
		slog.String("topic", r.topic),
		slog.Int("address", int(r.addr)))

	return &r, nil
}

func (r *Radio) onPublish(pub paho.PublishReceived) (bool, error) {
	f, err := decodeEnvelope(pub.Packet.Payload)
	if err != nil {
		r.logger.Warn("dropping frame", slog.Any("error", err))
		return true, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.mode != radio.ModeRX || !radio.Accepts(r.addr, f) {
		return true, nil
	}

	select {
	case r.rx <- f:
	default:
		r.logger.Warn("receive backlog full, dropping frame", slog.Int("from", int(f.From)))
	}
	return true, nil
}

func (r *Radio) Address() uint8 {
	return r.addr
}

func (r *Radio) Mode() radio.Mode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mode
}

func (r *Radio) Receive() (radio.Frame, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.mode != radio.ModeRX {
		r.mode = radio.ModeRX
		r.drain()
		return radio.Frame{}, false
	}

	select {
	case f := <-r.rx:
		r.mode = radio.ModeStandby
		return f, true
	default:
		return radio.Frame{}, false
	}
}

// drain discards frames heard during an earlier receive period
func (r *Radio) drain() {
	for {
		select {
		case <-r.rx:
		default:
			return
		}
	}
}

func (r *Radio) HasData() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mode == radio.ModeRX && len(r.rx) > 0
}

func (r *Radio) Send(ctx context.Context, to uint8, payload []byte, requestAck bool) error {
	return r.publish(ctx, radio.Frame{From: r.addr, To: to, Payload: payload, AckRequested: requestAck})
}

func (r *Radio) SendAck(ctx context.Context, f radio.Frame, payload []byte) error {
	return r.publish(ctx, radio.Frame{From: r.addr, To: f.From, Payload: payload, IsAck: true})
}

func (r *Radio) publish(ctx context.Context, f radio.Frame) error {
	if err := radio.CheckPayload(f.Payload); err != nil {
		return err
	}

	r.mu.Lock()
	r.mode = radio.ModeTX
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.mode = radio.ModeStandby
		r.mu.Unlock()
	}()

	if _, err := r.client.Publish(ctx, &paho.Publish{
		Topic:   r.topic,
		QoS:     r.qos,
		Payload: encodeEnvelope(f),
	}); err != nil {
		return fmt.Errorf("publishing frame: %w", err)
	}
	return nil
}

func (r *Radio) Sleep() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mode = radio.ModeSleep
}

// Close disconnects from the broker
func (r *Radio) Close() error {
	return r.client.Disconnect(&paho.Disconnect{ReasonCode: 0})
}

func encodeEnvelope(f radio.Frame) []byte {
	var flags byte
	if f.AckRequested {
		flags |= flagAckRequested
	}
	if f.IsAck {
		flags |= flagAck
	}

	b := make([]byte, 0, envelopeSize+len(f.Payload))
	b = append(b, f.From, f.To, flags)
	return append(b, f.Payload...)
}

func decodeEnvelope(b []byte) (radio.Frame, error) {
	if len(b) < envelopeSize {
		return radio.Frame{}, fmt.Errorf("%w: %d bytes", ErrBadEnvelope, len(b))
	}
	return radio.Frame{
		From:         b[0],
		To:           b[1],
		AckRequested: b[2]&flagAckRequested != 0,
		IsAck:        b[2]&flagAck != 0,
		Payload:      append([]byte(nil), b[envelopeSize:]...),
	}, nil
}
