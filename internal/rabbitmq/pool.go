// Package rabbitmq carries order events over AMQP: a pooled publisher for the
// API and a manual-ack consumer for the worker.
package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// ErrPoolClosed is returned by Get after Close.
var ErrPoolClosed = errors.New("rabbitmq: channel pool closed")

// Channel is the subset of *amqp.Channel used for publishing.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	IsClosed() bool
	Close() error
}

// ChannelPool hands out channels opened on one connection. Every channel
// declares the queue when created so publishing never races the consumer.
type ChannelPool struct {
	open      func() (Channel, error)
	closeConn func() error
	channels  chan Channel
	queueName string
	logger    *zap.Logger

	mu     sync.Mutex
	closed bool
}

// Dial connects to the broker and pre-creates size channels.
func Dial(url, queueName string, size int, logger *zap.Logger) (*ChannelPool, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	open := func() (Channel, error) {
		ch, err := conn.Channel()
		if err != nil {
			return nil, err
		}
		return ch, nil
	}
	pool, err := NewChannelPool(open, conn.Close, queueName, size, logger)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return pool, nil
}

// NewChannelPool builds a pool from a channel opener. closeConn may be nil.
func NewChannelPool(open func() (Channel, error), closeConn func() error, queueName string, size int, logger *zap.Logger) (*ChannelPool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("rabbitmq: pool size must be positive, got %d", size)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &ChannelPool{
		open:      open,
		closeConn: closeConn,
		channels:  make(chan Channel, size),
		queueName: queueName,
		logger:    logger,
	}
	for i := 0; i < size; i++ {
		ch, err := p.createChannel()
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("create channel %d: %w", i, err)
		}
		p.channels <- ch
	}
	logger.Info("rabbitmq channel pool ready", zap.Int("size", size), zap.String("queue", queueName))
	return p, nil
}

func (p *ChannelPool) createChannel() (Channel, error) {
	ch, err := p.open()
	if err != nil {
		return nil, err
	}
	if _, err := ch.QueueDeclare(p.queueName, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare queue %s: %w", p.queueName, err)
	}
	return ch, nil
}

// Get waits for a free channel. A channel the broker closed is replaced; if
// the reopen fails the slot stays in the pool so a later Get retries it.
func (p *ChannelPool) Get(ctx context.Context) (Channel, error) {
	select {
	case ch, ok := <-p.channels:
		if !ok {
			return nil, ErrPoolClosed
		}
		if ch != nil && !ch.IsClosed() {
			return ch, nil
		}
		p.logger.Warn("replacing closed rabbitmq channel")
		fresh, err := p.createChannel()
		if err != nil {
			p.release(nil)
			return nil, fmt.Errorf("reopen rabbitmq channel: %w", err)
		}
		return fresh, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Put returns a channel. Closed channels are replaced; when that fails an
// empty slot is kept for Get to reopen.
func (p *ChannelPool) Put(ch Channel) {
	if ch == nil || ch.IsClosed() {
		fresh, err := p.createChannel()
		if err != nil {
			p.logger.Warn("refill rabbitmq channel failed", zap.Error(err))
			fresh = nil
		}
		ch = fresh
	}
	p.release(ch)
}

// release puts ch, possibly nil for an empty slot, back into the pool.
func (p *ChannelPool) release(ch Channel) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		if ch != nil {
			_ = ch.Close()
		}
		return
	}
	select {
	case p.channels <- ch:
	default:
		if ch != nil {
			_ = ch.Close()
		}
	}
}

// Close closes every idle channel and the connection.
func (p *ChannelPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.channels)
	for ch := range p.channels {
		if ch != nil {
			_ = ch.Close()
		}
	}
	if p.closeConn != nil {
		_ = p.closeConn()
	}
}
