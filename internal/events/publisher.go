// Package events publishes settled trades to Kafka.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"powershare-ledger/internal/ledger"
	"powershare-ledger/internal/model"
)

const (
	EventTypeTradeSettled = "trade.settled"
	SchemaVersionV1       = "v1"

	queueSize = 256
)

// Config holds the Kafka options for trade events.
type Config struct {
	Enabled bool
	Brokers []string
	Topic   string
	Acks    int
}

// TradeSettled is the event body written for each committed trade.
type TradeSettled struct {
	Type          string          `json:"type"`
	SchemaVersion string          `json:"schemaVersion"`
	TransactionID string          `json:"transactionId"`
	BuyerID       string          `json:"buyerId"`
	BuyerGridID   string          `json:"buyerGridId"`
	SellerID      string          `json:"sellerId"`
	SellerGridID  string          `json:"sellerGridId"`
	Units         int64           `json:"units"`
	PricePerUnit  decimal.Decimal `json:"pricePerUnit"`
	Total         decimal.Decimal `json:"total"`
	SettledAt     time.Time       `json:"settledAt"`
}

func newTradeSettled(t model.Transaction) TradeSettled {
	return TradeSettled{
		Type:          EventTypeTradeSettled,
		SchemaVersion: SchemaVersionV1,
		TransactionID: t.ID,
		BuyerID:       t.BuyerID,
		BuyerGridID:   t.BuyerGridID,
		SellerID:      t.SellerID,
		SellerGridID:  t.SellerGridID,
		Units:         t.Units,
		PricePerUnit:  t.PricePerUnit,
		Total:         t.Total,
		SettledAt:     t.CreatedAt.UTC(),
	}
}

// Reporter receives delivery outcomes ("ok", "fail", "dropped").
type Reporter interface {
	EventPublished(outcome string)
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher queues settled trades and writes them to Kafka from a single
// background loop. It implements ledger.Observer; enqueueing never blocks
// the settlement path, so a full queue drops the event.
type Publisher struct {
	ledger.NopObserver

	cfg      Config
	log      *zap.Logger
	writer   messageWriter
	reporter Reporter
	enabled  bool

	queue     chan kafka.Message
	runCtx    context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
	started   atomic.Bool
}

var errNilWriter = errors.New("publisher requires a writer")

// NewPublisher builds a publisher backed by a kafka.Writer. A disabled
// config yields a publisher whose methods are no-ops.
func NewPublisher(cfg Config, log *zap.Logger, reporter Reporter) (*Publisher, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if !cfg.Enabled {
		log.Info("trade events disabled")
		return &Publisher{cfg: cfg, log: log}, nil
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, fmt.Errorf("events topic must not be empty")
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		RequiredAcks:           kafka.RequiredAcks(cfg.Acks),
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: false,
	}
	return newPublisherWithWriter(cfg, log, w, reporter)
}

func newPublisherWithWriter(cfg Config, log *zap.Logger, w messageWriter, reporter Reporter) (*Publisher, error) {
	if w == nil {
		return nil, errNilWriter
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{
		cfg:      cfg,
		log:      log.With(zap.String("component", "trade_publisher")),
		writer:   w,
		reporter: reporter,
		enabled:  cfg.Enabled,
		queue:    make(chan kafka.Message, queueSize),
	}, nil
}

// Start launches the delivery loop.
func (p *Publisher) Start(ctx context.Context) error {
	if !p.enabled {
		return nil
	}
	p.startOnce.Do(func() {
		p.runCtx, p.cancel = context.WithCancel(ctx)
		p.started.Store(true)
		p.wg.Add(1)
		go p.run()
		p.log.Info("trade publisher started", zap.String("topic", p.cfg.Topic))
	})
	return nil
}

// Stop ends the delivery loop after draining queued events, then closes
// the writer. ctx bounds the wait.
func (p *Publisher) Stop(ctx context.Context) error {
	if !p.enabled {
		return nil
	}
	var stopErr error
	p.stopOnce.Do(func() {
		p.started.Store(false)
		if p.cancel != nil {
			p.cancel()
		}
		done := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			stopErr = ctx.Err()
		}
		if err := p.writer.Close(); err != nil {
			p.log.Error("trade publisher close failed", zap.Error(err))
		}
		p.log.Info("trade publisher stopped")
	})
	return stopErr
}

// TradeSettled enqueues the trade for delivery.
func (p *Publisher) TradeSettled(t model.Transaction) {
	if !p.enabled || !p.started.Load() {
		return
	}
	value, err := json.Marshal(newTradeSettled(t))
	if err != nil {
		p.report("fail")
		p.log.Error("trade event encode failed", zap.String("tx", t.ID), zap.Error(err))
		return
	}
	msg := kafka.Message{Key: []byte(t.SellerGridID), Value: value}
	select {
	case p.queue <- msg:
	default:
		p.report("dropped")
		p.log.Warn("trade event queue full, dropping", zap.String("tx", t.ID))
	}
}

func (p *Publisher) run() {
	defer p.wg.Done()
	for {
		select {
		case <-p.runCtx.Done():
			p.drain()
			return
		case msg := <-p.queue:
			p.deliver(p.runCtx, msg)
		}
	}
}

// drain flushes what is left once the run context is cancelled. Each write
// gets its own short deadline since runCtx is already done.
func (p *Publisher) drain() {
	for {
		select {
		case msg := <-p.queue:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			p.deliver(ctx, msg)
			cancel()
		default:
			return
		}
	}
}

func (p *Publisher) deliver(ctx context.Context, msg kafka.Message) {
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.report("fail")
		p.log.Error("trade event publish failed", zap.ByteString("key", msg.Key), zap.Error(err))
		return
	}
	p.report("ok")
	p.log.Debug("trade event published", zap.ByteString("key", msg.Key))
}

func (p *Publisher) report(outcome string) {
	if p.reporter != nil {
		p.reporter.EventPublished(outcome)
	}
}
