package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestKafkaPublish(t *testing.T) {
	w := &fakeWriter{}
	k := &Kafka{writer: w, topic: "campus.auth.events", logger: zap.NewNop()}

	at := time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, k.Publish(context.Background(), Event{Type: EmailVerified, UserID: "u1", Email: "a@yorku.ca", At: at}))

	require.Len(t, w.msgs, 1)
	m := w.msgs[0]
	assert.Equal(t, "campus.auth.events", m.Topic)
	assert.Equal(t, []byte("u1"), m.Key)
	assert.Equal(t, "type", m.Headers[0].Key)
	assert.Equal(t, []byte(EmailVerified), m.Headers[0].Value)

	var e Event
	require.NoError(t, json.Unmarshal(m.Value, &e))
	assert.Equal(t, "a@yorku.ca", e.Email)
	assert.True(t, at.Equal(e.At))
}

func TestKafkaPublishError(t *testing.T) {
	k := &Kafka{writer: &fakeWriter{err: errors.New("leader not available")}, topic: "t", logger: zap.NewNop()}
	err := k.Publish(context.Background(), Event{Type: NameVerified, UserID: "u1"})
	assert.ErrorContains(t, err, "leader not available")
}

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	assert.NoError(t, p.Publish(context.Background(), Event{}))
	assert.NoError(t, p.Close())
}
