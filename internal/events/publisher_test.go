package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"powershare-ledger/internal/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	fail   error
	closed bool
	got    chan struct{}
}

func newRecordingWriter() *recordingWriter {
	return &recordingWriter{got: make(chan struct{}, queueSize)}
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fail != nil {
		w.got <- struct{}{}
		return w.fail
	}
	w.msgs = append(w.msgs, msgs...)
	w.got <- struct{}{}
	return nil
}

func (w *recordingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *recordingWriter) await(t *testing.T) {
	t.Helper()
	select {
	case <-w.got:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for write")
	}
}

type countingReporter struct {
	mu  sync.Mutex
	out map[string]int
}

func (r *countingReporter) EventPublished(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.out == nil {
		r.out = map[string]int{}
	}
	r.out[outcome]++
}

func (r *countingReporter) count(outcome string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.out[outcome]
}

func sampleTrade() model.Transaction {
	return model.Transaction{
		ID:           "tx-1",
		BuyerID:      "bob",
		BuyerGridID:  "grid-b",
		SellerID:     "alice",
		SellerGridID: "grid-a",
		Units:        5,
		PricePerUnit: decimal.RequireFromString("0.25"),
		Total:        decimal.RequireFromString("1.25"),
		CreatedAt:    time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC),
		Status:       model.StatusCompleted,
	}
}

func enabledConfig() Config {
	return Config{Enabled: true, Brokers: []string{"kafka:9092"}, Topic: "energy.trades", Acks: -1}
}

func TestPublisherDeliversTradeSettled(t *testing.T) {
	w := newRecordingWriter()
	rep := &countingReporter{}
	p, err := newPublisherWithWriter(enabledConfig(), nil, w, rep)
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))

	p.TradeSettled(sampleTrade())
	w.await(t)
	require.NoError(t, p.Stop(context.Background()))

	w.mu.Lock()
	defer w.mu.Unlock()
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "grid-a", string(w.msgs[0].Key))
	assert.True(t, w.closed)

	var ev TradeSettled
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &ev))
	assert.Equal(t, EventTypeTradeSettled, ev.Type)
	assert.Equal(t, SchemaVersionV1, ev.SchemaVersion)
	assert.Equal(t, "tx-1", ev.TransactionID)
	assert.Equal(t, int64(5), ev.Units)
	assert.True(t, decimal.RequireFromString("1.25").Equal(ev.Total))
	assert.Equal(t, 1, rep.count("ok"))
}

func TestPublisherReportsWriteFailure(t *testing.T) {
	w := newRecordingWriter()
	w.fail = errors.New("broker down")
	rep := &countingReporter{}
	p, err := newPublisherWithWriter(enabledConfig(), nil, w, rep)
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))

	p.TradeSettled(sampleTrade())
	w.await(t)
	require.NoError(t, p.Stop(context.Background()))
	assert.Equal(t, 1, rep.count("fail"))
}

func TestPublisherIgnoresEventsBeforeStart(t *testing.T) {
	w := newRecordingWriter()
	p, err := newPublisherWithWriter(enabledConfig(), nil, w, nil)
	require.NoError(t, err)

	p.TradeSettled(sampleTrade())
	assert.Empty(t, p.queue)
}

func TestPublisherDisabledIsNoop(t *testing.T) {
	p, err := NewPublisher(Config{}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))
	p.TradeSettled(sampleTrade())
	require.NoError(t, p.Stop(context.Background()))
}

func TestNewPublisherValidatesConfig(t *testing.T) {
	_, err := NewPublisher(Config{Enabled: true, Brokers: []string{"k:9092"}}, nil, nil)
	assert.Error(t, err)
	_, err = NewPublisher(Config{Enabled: true, Topic: "energy.trades"}, nil, nil)
	assert.Error(t, err)
	_, err = newPublisherWithWriter(enabledConfig(), nil, nil, nil)
	assert.ErrorIs(t, err, errNilWriter)
}
