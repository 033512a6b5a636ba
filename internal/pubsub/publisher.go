package pubsub

import (
	"context"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yanun0323/logs"

	"tickerplant/internal/bus"
	"tickerplant/internal/codec"
	"tickerplant/internal/obs"
	"tickerplant/internal/schema"
)

// PublisherConfig controls the fan-out server.
type PublisherConfig struct {
	SocketPath   string
	QueueSize    int
	WriteTimeout time.Duration
}

func (c PublisherConfig) withDefaults() PublisherConfig {
	if c.QueueSize <= 0 {
		c.QueueSize = 4096
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 2 * time.Second
	}
	return c
}

// Publisher fans records out to attached subscribers. Publishing is always
// non-blocking: each subscriber owns a bounded queue and overflowing
// records are dropped for that subscriber only.
type Publisher struct {
	cfg     PublisherConfig
	addr    net.UnixAddr
	ln      *net.UnixListener
	metrics *obs.Metrics

	mu        sync.Mutex
	subs      map[uint64]*subscriberConn
	producers map[uint64]*net.UnixConn
	nextID    uint64
	control   func(schema.Control)

	closed uint32
	wg     sync.WaitGroup
}

type subscriberConn struct {
	id     uint64
	conn   *net.UnixConn
	topics map[string]struct{}
	queue  *bus.Queue
}

// NewPublisher creates a publisher for the provided socket path.
func NewPublisher(cfg PublisherConfig, metrics *obs.Metrics) (*Publisher, error) {
	if cfg.SocketPath == "" {
		return nil, ErrEmptySocketPath
	}
	return &Publisher{
		cfg:       cfg.withDefaults(),
		addr:      net.UnixAddr{Name: cfg.SocketPath, Net: unixNetwork},
		metrics:   metrics,
		subs:      make(map[uint64]*subscriberConn),
		producers: make(map[uint64]*net.UnixConn),
	}, nil
}

// SetControlHandler registers a callback for control frames received from
// producer connections. The frame is fanned out to control subscribers
// regardless.
func (p *Publisher) SetControlHandler(handler func(schema.Control)) {
	p.mu.Lock()
	p.control = handler
	p.mu.Unlock()
}

// Listen binds the socket, removing a stale socket file when present.
func (p *Publisher) Listen() error {
	if err := removeIfExists(p.addr.Name); err != nil {
		return err
	}
	ln, err := net.ListenUnix(unixNetwork, &p.addr)
	if err != nil {
		return err
	}
	ln.SetUnlinkOnClose(true)
	p.ln = ln
	return nil
}

// Serve accepts subscriber and producer connections until the context is
// done. Attachment and detachment never block Publish.
func (p *Publisher) Serve(ctx context.Context) error {
	if p.ln == nil {
		return ErrNotListening
	}
	go func() {
		<-ctx.Done()
		_ = p.ln.Close()
	}()
	for {
		conn, err := p.ln.AcceptUnix()
		if err != nil {
			if ctx.Err() != nil || atomic.LoadUint32(&p.closed) != 0 {
				return nil
			}
			return err
		}
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.handleConn(ctx, conn)
		}()
	}
}

func (p *Publisher) handleConn(ctx context.Context, conn *net.UnixConn) {
	var modeBuf [1]byte
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, err := conn.Read(modeBuf[:]); err != nil {
		_ = conn.Close()
		return
	}
	switch modeBuf[0] {
	case modeSubscribe:
		p.handleSubscriber(ctx, conn)
	case modeProduce:
		p.handleProducer(ctx, conn)
	default:
		_, _ = conn.Write([]byte{ackErr})
		_ = conn.Close()
	}
}

func (p *Publisher) handleSubscriber(ctx context.Context, conn *net.UnixConn) {
	topics, err := readSubscribeTopics(conn)
	if err != nil {
		_, _ = conn.Write([]byte{ackErr})
		_ = conn.Close()
		return
	}
	_ = conn.SetReadDeadline(time.Time{})
	if _, err := conn.Write([]byte{ackOK}); err != nil {
		_ = conn.Close()
		return
	}

	sub := &subscriberConn{
		conn:   conn,
		topics: make(map[string]struct{}, len(topics)),
		queue:  bus.NewQueue(p.cfg.QueueSize),
	}
	for _, t := range topics {
		sub.topics[t] = struct{}{}
	}

	p.mu.Lock()
	p.nextID++
	sub.id = p.nextID
	p.subs[sub.id] = sub
	p.mu.Unlock()
	logs.Infof("subscriber %d attached, topics: %v", sub.id, topics)

	defer func() {
		p.detach(sub.id)
		logs.Infof("subscriber %d detached", sub.id)
	}()

	var frameBuf []byte
	sub.queue.Run(ctx, func(e bus.Event) {
		frame, err := encodeFrame(frameBuf, e.Topic, e.Header, e.Payload)
		if err != nil {
			return
		}
		frameBuf = frame
		_ = sub.conn.SetWriteDeadline(time.Now().Add(p.cfg.WriteTimeout))
		if _, err := sub.conn.Write(frame); err != nil {
			sub.queue.Close()
		}
	})
}

// handleProducer reads frames from one producer connection. The conn is
// tracked so Close and context cancellation can unblock the read.
func (p *Publisher) handleProducer(ctx context.Context, conn *net.UnixConn) {
	p.mu.Lock()
	p.nextID++
	id := p.nextID
	p.producers[id] = conn
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.producers, id)
		p.mu.Unlock()
		_ = conn.Close()
	}()
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	_ = conn.SetReadDeadline(time.Time{})
	if _, err := conn.Write([]byte{ackOK}); err != nil {
		return
	}
	var buf []byte
	for ctx.Err() == nil {
		_, header, payload, err := readFrame(conn, &buf)
		if err != nil {
			return
		}
		if header.Type != schema.EventControl {
			continue
		}
		cp := make([]byte, len(payload))
		copy(cp, payload)
		p.Publish(ControlTopic, header, cp)
		p.mu.Lock()
		handler := p.control
		p.mu.Unlock()
		if handler != nil {
			if cmd, ok := codec.DecodeControl(cp); ok {
				handler(cmd)
			}
		}
	}
}

// Publish fans one record out to every subscriber of the topic. The
// payload must not be mutated afterwards.
func (p *Publisher) Publish(topic string, header schema.EventHeader, payload []byte) {
	event := bus.Event{Topic: topic, Header: header, Payload: payload}
	p.mu.Lock()
	for _, sub := range p.subs {
		if _, ok := sub.topics[topic]; !ok {
			continue
		}
		if err := sub.queue.TryPublish(event); err != nil {
			if p.metrics != nil {
				p.metrics.IncQueueDrop()
			}
		}
	}
	p.mu.Unlock()
}

// SubscriberCount returns the number of attached subscribers.
func (p *Publisher) SubscriberCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}

func (p *Publisher) detach(id uint64) {
	p.mu.Lock()
	sub, ok := p.subs[id]
	if ok {
		delete(p.subs, id)
	}
	p.mu.Unlock()
	if ok {
		sub.queue.Close()
		_ = sub.conn.Close()
	}
}

// Close stops the listener and detaches every subscriber and producer.
func (p *Publisher) Close() error {
	atomic.StoreUint32(&p.closed, 1)
	var err error
	if p.ln != nil {
		err = p.ln.Close()
	}
	p.mu.Lock()
	subs := make([]*subscriberConn, 0, len(p.subs))
	for _, sub := range p.subs {
		subs = append(subs, sub)
	}
	p.subs = make(map[uint64]*subscriberConn)
	producers := make([]*net.UnixConn, 0, len(p.producers))
	for _, conn := range p.producers {
		producers = append(producers, conn)
	}
	p.producers = make(map[uint64]*net.UnixConn)
	p.mu.Unlock()
	for _, sub := range subs {
		sub.queue.Close()
		_ = sub.conn.Close()
	}
	for _, conn := range producers {
		_ = conn.Close()
	}
	p.wg.Wait()
	return err
}

func removeIfExists(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if info.Mode()&os.ModeSocket == 0 {
		return ErrPathNotSocket
	}
	return os.Remove(path)
}
