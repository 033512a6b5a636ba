package pubsub

import (
	"context"
	"net"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"tickerplant/internal/bus"
	"tickerplant/internal/codec"
	"tickerplant/internal/schema"
)

// SubscriberConfig controls a subscriber connection.
type SubscriberConfig struct {
	SocketPath  string
	Topics      []string
	Control     bool
	DialTimeout time.Duration
	Backoff     Backoff
	// Reconnect keeps the subscriber dialing with backoff after a lost
	// connection. Records published while detached are missed.
	Reconnect bool
}

func (c SubscriberConfig) withDefaults() SubscriberConfig {
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.Backoff == (Backoff{}) {
		c.Backoff = DefaultBackoff()
	}
	return c
}

// Subscriber attaches to a publisher socket and delivers frames in
// publish order for each topic.
type Subscriber struct {
	cfg  SubscriberConfig
	addr net.UnixAddr
}

// NewSubscriber creates a subscriber for the provided socket path.
func NewSubscriber(cfg SubscriberConfig) (*Subscriber, error) {
	if cfg.SocketPath == "" {
		return nil, ErrEmptySocketPath
	}
	if len(cfg.Topics) == 0 && !cfg.Control {
		return nil, errors.New("pubsub: no topics to subscribe")
	}
	return &Subscriber{
		cfg:  cfg.withDefaults(),
		addr: net.UnixAddr{Name: cfg.SocketPath, Net: unixNetwork},
	}, nil
}

// Run attaches and delivers events to the handler until the context is
// done. With Reconnect enabled, connection loss triggers unbounded
// exponential-backoff redial; otherwise Run returns the error.
func (s *Subscriber) Run(ctx context.Context, handler func(bus.Event)) error {
	attempt := 0
	for {
		err := s.runOnce(ctx, handler)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !s.cfg.Reconnect {
			return err
		}
		attempt++
		wait := s.cfg.Backoff.Next(attempt)
		logs.Warnf("subscriber connection lost, redialing in %s, err: %+v", wait, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (s *Subscriber) runOnce(ctx context.Context, handler func(bus.Event)) error {
	conn, err := s.dial(ctx)
	if err != nil {
		return errors.Wrap(err, "dial publisher")
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	var buf []byte
	for {
		topic, header, payload, err := readFrame(conn, &buf)
		if err != nil {
			return errors.Wrap(err, "read frame")
		}
		handler(bus.Event{Topic: topic, Header: header, Payload: payload})
	}
}

func (s *Subscriber) dial(ctx context.Context) (*net.UnixConn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.DialTimeout)
	defer cancel()
	var d net.Dialer
	raw, err := d.DialContext(dialCtx, unixNetwork, s.addr.Name)
	if err != nil {
		return nil, err
	}
	conn, ok := raw.(*net.UnixConn)
	if !ok {
		_ = raw.Close()
		return nil, ErrInvalidHandshake
	}

	topics := s.cfg.Topics
	if s.cfg.Control {
		topics = append(append([]string{}, topics...), ControlTopic)
	}
	req, err := encodeSubscribeRequest(topics)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if _, err := conn.Write(req); err != nil {
		_ = conn.Close()
		return nil, err
	}
	var ack [1]byte
	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.DialTimeout))
	if _, err := conn.Read(ack[:]); err != nil {
		_ = conn.Close()
		return nil, err
	}
	_ = conn.SetReadDeadline(time.Time{})
	if ack[0] != ackOK {
		_ = conn.Close()
		return nil, ErrHandshakeDenied
	}
	return conn, nil
}

// SendControl dials the publisher as a producer and delivers one control
// command, used by operator tooling.
func SendControl(ctx context.Context, socketPath string, cmd schema.Control) error {
	if socketPath == "" {
		return ErrEmptySocketPath
	}
	var d net.Dialer
	raw, err := d.DialContext(ctx, unixNetwork, socketPath)
	if err != nil {
		return errors.Wrap(err, "dial publisher")
	}
	defer raw.Close()

	if _, err := raw.Write([]byte{modeProduce}); err != nil {
		return errors.Wrap(err, "write mode")
	}
	var ack [1]byte
	if _, err := raw.Read(ack[:]); err != nil {
		return errors.Wrap(err, "read ack")
	}
	if ack[0] != ackOK {
		return ErrHandshakeDenied
	}

	payload, ok := codec.EncodeControl(nil, cmd)
	if !ok {
		return errors.Errorf("control command too large: %s", cmd.Command)
	}
	now := time.Now().UTC().UnixNano()
	header := schema.NewHeader(schema.EventControl, 0, 0, now, now)
	frame, err := encodeFrame(nil, ControlTopic, header, payload)
	if err != nil {
		return err
	}
	if _, err := raw.Write(frame); err != nil {
		return errors.Wrap(err, "write control frame")
	}
	return nil
}
