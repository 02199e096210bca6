// Package bus ingests point batches published on a NATS subject.
package bus

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/nats-io/nats.go"

	"github.com/penwyp/podscope/internal/core/model"
	"github.com/penwyp/podscope/internal/util"
)

const handlerTimeout = 30 * time.Second

// Options configures a NATS connection.
type Options struct {
	URL           string
	Subject       string
	ClientName    string
	MaxReconnects int
	ReconnectWait time.Duration
}

// BlobParser converts a text payload into points.
type BlobParser func(blob string) []model.Point

// Sink receives every decoded batch.
type Sink func(points []model.Point)

type subscriber interface {
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
}

// Listener subscribes to one subject. Payloads are either a JSON point or
// array of points, or a text blob handed to the BlobParser.
type Listener struct {
	conn    subscriber
	closer  func()
	subject string
	parse   BlobParser
	sink    Sink
	handled func(err error)

	mu  sync.Mutex
	sub *nats.Subscription
}

// Connect dials NATS and returns a Listener for opts.Subject.
func Connect(opts Options, parse BlobParser, sink Sink) (*Listener, error) {
	if opts.URL == "" || opts.Subject == "" {
		return nil, fmt.Errorf("nats url and subject are required")
	}
	if opts.MaxReconnects == 0 {
		opts.MaxReconnects = -1
	}
	if opts.ReconnectWait <= 0 {
		opts.ReconnectWait = 2 * time.Second
	}

	natsOpts := []nats.Option{
		nats.MaxReconnects(opts.MaxReconnects),
		nats.ReconnectWait(opts.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				util.LogWarn("NATS disconnected", util.F("error", err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			util.LogInfo("NATS reconnected", util.F("url", c.ConnectedUrl()))
		}),
	}
	if opts.ClientName != "" {
		natsOpts = append(natsOpts, nats.Name(opts.ClientName))
	}

	conn, err := nats.Connect(opts.URL, natsOpts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats %s: %w", opts.URL, err)
	}
	l := newListener(conn, opts.Subject, parse, sink)
	l.closer = conn.Close
	return l, nil
}

func newListener(conn subscriber, subject string, parse BlobParser, sink Sink) *Listener {
	return &Listener{
		conn:    conn,
		closer:  func() {},
		subject: subject,
		parse:   parse,
		sink:    sink,
		handled: func(error) {},
	}
}

// OnHandled registers fn to be called after every message with the decode
// error, or nil. It must be set before Start.
func (l *Listener) OnHandled(fn func(err error)) {
	if fn != nil {
		l.handled = fn
	}
}

// Subject returns the subscribed subject.
func (l *Listener) Subject() string {
	return l.subject
}

// Start subscribes; ctx bounds the lifetime of per-message handling.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	sub, err := l.conn.Subscribe(l.subject, func(msg *nats.Msg) {
		msgCtx, cancel := context.WithTimeout(ctx, handlerTimeout)
		defer cancel()
		l.handle(msgCtx, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", l.subject, err)
	}
	l.sub = sub
	util.LogInfo("Listening on message bus", util.F("subject", l.subject))
	return nil
}

func (l *Listener) handle(ctx context.Context, payload []byte) {
	if ctx.Err() != nil {
		return
	}
	points, err := Decode(payload, l.parse)
	l.handled(err)
	if err != nil {
		util.LogWarn("Skip bus message", util.F("subject", l.subject), util.F("error", err))
		return
	}
	if len(points) == 0 {
		return
	}
	l.sink(points)
}

// Close unsubscribes and closes the connection.
func (l *Listener) Close() {
	l.mu.Lock()
	sub := l.sub
	l.sub = nil
	l.mu.Unlock()

	if sub != nil {
		if err := sub.Unsubscribe(); err != nil {
			util.LogDebug("NATS unsubscribe failed", util.F("error", err))
		}
	}
	l.closer()
}

// Decode turns one bus payload into points.
func Decode(payload []byte, parse BlobParser) ([]model.Point, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil, nil
	}

	switch {
	case trimmed[0] == '{':
		var p model.Point
		if err := sonic.Unmarshal(trimmed, &p); err != nil {
			return nil, fmt.Errorf("decode point: %w", err)
		}
		return []model.Point{p}, nil
	case bytes.HasPrefix(trimmed, []byte("[{")) || bytes.Equal(trimmed, []byte("[]")):
		var points []model.Point
		if err := sonic.Unmarshal(trimmed, &points); err != nil {
			return nil, fmt.Errorf("decode points: %w", err)
		}
		return points, nil
	default:
		if parse == nil {
			return nil, fmt.Errorf("text payload without a parser")
		}
		return parse(string(trimmed)), nil
	}
}
