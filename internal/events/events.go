// Package events publishes document lifecycle events.
//
// Events are advisory. A failed publish is logged by the caller and never
// fails the operation that produced it.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/coursectx/internal/config"
	"github.com/fyrsmithlabs/coursectx/internal/logging"
)

// DefaultSubject is used when the events config leaves Subject empty.
const DefaultSubject = "coursectx.document.indexed"

// flushTimeout bounds the server round trip when ctx has no deadline.
const flushTimeout = 2 * time.Second

// ErrClosed is returned when publishing after Close.
var ErrClosed = errors.New("publisher closed")

// IndexedEvent describes a completed upload.
type IndexedEvent struct {
	Document   string    `json:"document"`
	Pages      int       `json:"pages"`
	Chunks     int       `json:"chunks"`
	Dropped    int       `json:"dropped"`
	Batches    int       `json:"batches"`
	RAGIndexed bool      `json:"rag_indexed"`
	Provider   string    `json:"provider,omitempty"`
	Store      string    `json:"store,omitempty"`
	IndexedAt  time.Time `json:"indexed_at"`
}

// Publisher sends events to interested consumers.
type Publisher interface {
	PublishIndexed(ctx context.Context, event IndexedEvent) error
	Close()
}

// Noop discards every event.
type Noop struct{}

func (Noop) PublishIndexed(context.Context, IndexedEvent) error { return nil }
func (Noop) Close()                                             {}

// NATSPublisher publishes JSON events on a single NATS subject.
type NATSPublisher struct {
	nc      *nats.Conn
	subject string
	owned   bool
	logger  *logging.Logger
}

// New connects to cfg.NATSURL. An empty URL returns Noop.
func New(cfg config.EventsConfig, logger *logging.Logger) (Publisher, error) {
	if cfg.NATSURL == "" {
		return Noop{}, nil
	}
	if logger == nil {
		logger = logging.Nop()
	}

	nc, err := nats.Connect(cfg.NATSURL,
		nats.Name("coursectx"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", cfg.NATSURL, err)
	}

	logger.Info(context.Background(), "connected to NATS", zap.String("url", cfg.NATSURL))
	p := NewNATSPublisher(nc, cfg.Subject, logger)
	p.owned = true
	return p, nil
}

// NewNATSPublisher publishes on an existing connection. The caller keeps
// ownership of nc.
func NewNATSPublisher(nc *nats.Conn, subject string, logger *logging.Logger) *NATSPublisher {
	if subject == "" {
		subject = DefaultSubject
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &NATSPublisher{nc: nc, subject: subject, logger: logger}
}

// Subject returns the subject events are published on.
func (p *NATSPublisher) Subject() string { return p.subject }

// PublishIndexed marshals event and flushes it to the server.
func (p *NATSPublisher) PublishIndexed(ctx context.Context, event IndexedEvent) error {
	if p.nc == nil || p.nc.IsClosed() {
		return ErrClosed
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal indexed event: %w", err)
	}
	if err := p.nc.Publish(p.subject, data); err != nil {
		return fmt.Errorf("publish indexed event: %w", err)
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flushTimeout)
		defer cancel()
	}
	if err := p.nc.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush indexed event: %w", err)
	}

	p.logger.Debug(ctx, "published indexed event",
		zap.String("subject", p.subject),
		zap.String("document", event.Document),
	)
	return nil
}

// Close drains the connection if New opened it.
func (p *NATSPublisher) Close() {
	if p.owned && p.nc != nil && !p.nc.IsClosed() {
		if err := p.nc.Drain(); err != nil {
			p.nc.Close()
		}
	}
}
