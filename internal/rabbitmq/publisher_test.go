package rabbitmq

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/auth-service/internal/metrics"
	"github.com/magabrotheeeer/auth-service/internal/models"
)

type published struct {
	exchange  string
	key       string
	mandatory bool
	msg       amqp.Publishing
}

type fakeChannel struct {
	mu   sync.Mutex
	sent []published
	err  error
}

func (f *fakeChannel) Publish(exchange, key string, mandatory, _ bool, msg amqp.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, published{exchange: exchange, key: key, mandatory: mandatory, msg: msg})
	return nil
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func TestPublishMessage(t *testing.T) {
	t.Run("encodes json", func(t *testing.T) {
		ch := &fakeChannel{}
		err := PublishMessage(ch, "ex", "key", true, map[string]int{"id": 1})
		require.NoError(t, err)

		require.Len(t, ch.sent, 1)
		assert.Equal(t, "ex", ch.sent[0].exchange)
		assert.Equal(t, "key", ch.sent[0].key)
		assert.True(t, ch.sent[0].mandatory)
		assert.Equal(t, "application/json", ch.sent[0].msg.ContentType)
		assert.Equal(t, amqp.Persistent, ch.sent[0].msg.DeliveryMode)
		assert.JSONEq(t, `{"id":1}`, string(ch.sent[0].msg.Body))
	})

	t.Run("marshal error", func(t *testing.T) {
		badMsg := struct {
			Ch chan int `json:"ch"`
		}{
			Ch: make(chan int),
		}

		err := PublishMessage(&fakeChannel{}, "", "q", false, badMsg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "rabbitmq.PublishMessage")
	})

	t.Run("channel error", func(t *testing.T) {
		err := PublishMessage(&fakeChannel{err: amqp.ErrClosed}, "", "q", false, "x")
		assert.ErrorIs(t, err, amqp.ErrClosed)
	})
}

func TestPublisher_PublishEvent(t *testing.T) {
	ch := &fakeChannel{}
	m := metrics.New(prometheus.NewRegistry())
	p := NewPublisher(ch, "dominio.events", "notifications", newNoopLogger(), m)

	ev := models.NewDomainEvent(models.ActionUserRegistered, map[string]any{"usuario": "alice"}, time.Now())
	require.NoError(t, p.PublishEvent(context.Background(), ev))

	require.Len(t, ch.sent, 1)
	assert.Equal(t, "dominio.events", ch.sent[0].exchange)
	assert.Equal(t, "auth.registered", ch.sent[0].key)
	assert.True(t, ch.sent[0].mandatory)

	var decoded models.DomainEvent
	require.NoError(t, json.Unmarshal(ch.sent[0].msg.Body, &decoded))
	assert.Equal(t, ev.ID, decoded.ID)
	assert.Equal(t, models.ActionUserRegistered, decoded.Action)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsPublished.WithLabelValues("auth.registered", "ok")))
}

func TestPublisher_PublishEventFailure(t *testing.T) {
	ch := &fakeChannel{err: errors.New("connection reset")}
	m := metrics.New(prometheus.NewRegistry())
	p := NewPublisher(ch, "dominio.events", "notifications", newNoopLogger(), m)

	ev := models.NewDomainEvent(models.ActionAuthenticated, nil, time.Now())
	err := p.PublishEvent(context.Background(), ev)
	require.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsPublished.WithLabelValues("auth.login", "error")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.PublishEvent(ctx, ev), context.Canceled)
}

func TestPublisher_SendRecoveryCode(t *testing.T) {
	ch := &fakeChannel{}
	p := NewPublisher(ch, "dominio.events", "notifications", newNoopLogger(), nil)

	msg := models.RecoveryCodeMessage{Username: "alice", Email: "a@b.com", Code: "AB12CD"}
	require.NoError(t, p.SendRecoveryCode(context.Background(), msg))

	require.Len(t, ch.sent, 1)
	assert.Equal(t, "notifications", ch.sent[0].exchange)
	assert.Equal(t, RecoveryCodeRoutingKey, ch.sent[0].key)
	assert.False(t, ch.sent[0].mandatory)
}

func TestWatchReturns(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{}))

	returns := make(chan amqp.Return, 1)
	returns <- amqp.Return{Exchange: "dominio.events", RoutingKey: "auth.login", ReplyCode: 312, ReplyText: "NO_ROUTE"}
	close(returns)

	done := make(chan struct{})
	go func() {
		WatchReturns(returns, log)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WatchReturns did not stop after channel close")
	}
	assert.Contains(t, buf.String(), "NO_ROUTE")
	assert.Contains(t, buf.String(), "auth.login")
}

func TestWatchReturns_DrainsUntilClose(t *testing.T) {
	returns := make(chan amqp.Return)
	done := make(chan struct{})
	go func() {
		WatchReturns(returns, newNoopLogger())
		close(done)
	}()

	for i := range 5 {
		select {
		case returns <- amqp.Return{RoutingKey: "auth.login", ReplyText: "NO_ROUTE"}:
		case <-time.After(time.Second):
			t.Fatalf("return %d was not consumed", i)
		}
	}

	select {
	case <-done:
		t.Fatal("WatchReturns stopped while channel is open")
	default:
	}

	close(returns)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WatchReturns did not stop after channel close")
	}
}
