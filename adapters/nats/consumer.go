package nats

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	natsgo "github.com/nats-io/nats.go"

	"github.com/codewandler/ert-go/core/router"
)

// KeyHeader carries the routing key of a message.
const KeyHeader = "Ert-Key"

var ErrConsumerClosed = errors.New("consumer is closed")

type (
	// Handler processes one message. Handlers for messages sharing a key are
	// called one at a time, in the order the messages arrived.
	Handler func(ctx context.Context, msg *natsgo.Msg) error

	// KeyFunc extracts the routing key of a message.
	KeyFunc func(msg *natsgo.Msg) string
)

// KeyFromHeader routes by the KeyHeader header, falling back to the subject.
func KeyFromHeader(msg *natsgo.Msg) string {
	if k := msg.Header.Get(KeyHeader); k != "" {
		return k
	}
	return msg.Subject
}

// KeyFromSubject routes by the message subject.
func KeyFromSubject(msg *natsgo.Msg) string { return msg.Subject }

type ConsumerConfig struct {
	Connect Connector      // Connect is used to create the NATS connection. If nil, ConnectDefault() is used.
	Log     *slog.Logger   // Log for diagnostics (optional)
	Router  *router.Router // Router running the handlers. If nil, router.Global() is used.
	Subject string         // Subject to subscribe to, wildcards allowed
	Queue   string         // Queue group (optional)
	Key     KeyFunc        // Key extracts the routing key. If nil, KeyFromHeader is used.
	Handler Handler
}

// Consumer fans a NATS subscription out onto a router, so that messages are
// handled concurrently across keys and sequentially per key.
type Consumer struct {
	nc      *natsgo.Conn
	closeNc closeFunc
	log     *slog.Logger
	r       *router.Router
	cfg     ConsumerConfig

	mu     sync.Mutex
	sub    *natsgo.Subscription
	closed bool
}

func NewConsumer(cfg ConsumerConfig) (*Consumer, error) {
	if cfg.Subject == "" {
		return nil, errors.New("consumer subject is required")
	}
	if cfg.Handler == nil {
		return nil, errors.New("consumer handler is required")
	}
	if cfg.Key == nil {
		cfg.Key = KeyFromHeader
	}
	connFn := cfg.Connect
	if connFn == nil {
		connFn = ConnectDefault()
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	r := cfg.Router
	if r == nil {
		r = router.Global()
	}

	nc, closeNc, err := connFn()
	if err != nil {
		return nil, err
	}

	return &Consumer{
		nc:      nc,
		closeNc: closeNc,
		log:     log.With(slog.String("consumer", cfg.Subject), slog.String("router", r.ID())),
		r:       r,
		cfg:     cfg,
	}, nil
}

// Start subscribes. Messages are handed to the router as they arrive.
func (c *Consumer) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConsumerClosed
	}
	if c.sub != nil {
		return nil
	}

	var err error
	if c.cfg.Queue != "" {
		c.sub, err = c.nc.QueueSubscribe(c.cfg.Subject, c.cfg.Queue, c.dispatch)
	} else {
		c.sub, err = c.nc.Subscribe(c.cfg.Subject, c.dispatch)
	}
	if err != nil {
		return err
	}
	c.log.Debug("consumer started")
	return c.nc.Flush()
}

func (c *Consumer) dispatch(msg *natsgo.Msg) {
	key := c.cfg.Key(msg)
	router.Go(c.r, key, func(ctx context.Context) error {
		err := c.cfg.Handler(ctx, msg)
		if err != nil {
			c.log.Error("handler failed",
				slog.String("key", key),
				slog.String("subject", msg.Subject),
				slog.Any("err", err),
			)
		}
		return err
	})
}

// Close unsubscribes and releases the connection. Messages
// already handed to the router still run.
func (c *Consumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	var err error
	if c.sub != nil {
		err = c.sub.Unsubscribe()
	}
	c.closeNc()
	return err
}

// Publish sends data on subject with key set as its routing key.
func Publish(nc *natsgo.Conn, subject, key string, data []byte) error {
	msg := natsgo.NewMsg(subject)
	msg.Header.Set(KeyHeader, key)
	msg.Data = data
	return nc.PublishMsg(msg)
}
