package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestProducerPublish(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(w, "oil.signals", "snappy")

	require.NoError(t, p.Publish(context.Background(), []byte("rf"), map[string]string{"action": "BUY"}))
	require.NoError(t, p.Publish(context.Background(), nil, "raw"))

	require.Len(t, w.msgs, 2)
	assert.Equal(t, []byte("rf"), w.msgs[0].Key)
	assert.JSONEq(t, `{"action":"BUY"}`, string(w.msgs[0].Value))
	assert.Equal(t, "raw", string(w.msgs[1].Value))

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestProducerPublishError(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := NewProducerWithWriter(w, "oil.signals", "snappy")

	err := p.Publish(context.Background(), nil, []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oil.signals")
	assert.ErrorIs(t, err, w.err)
}

func TestNewProducerValidation(t *testing.T) {
	_, err := NewProducer(WithTopic("t"))
	assert.EqualError(t, err, "brokers are required")

	_, err = NewProducer(WithBrokers([]string{"localhost:9092"}))
	assert.EqualError(t, err, "topic is required")
}
