package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	msg := Message{Type: "attendance", Body: []byte(`{"record":{"id":"r|1"}}`)}
	got := decode(encode(msg))
	assert.Equal(t, msg.Type, got.Type)
	assert.Equal(t, msg.Body, got.Body)

	// A frame without a separator keeps the whole string as body.
	got = decode("plain")
	assert.Empty(t, got.Type)
	assert.Equal(t, []byte("plain"), got.Body)
}

func TestInMemoryPublishConsume(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	q := NewInMemory(2)
	require.NoError(t, q.Publish(ctx, Message{Type: "attendance", Body: []byte("a")}))
	require.NoError(t, q.Publish(ctx, Message{Type: "attendance", Body: []byte("b")}))

	msgs, err := q.Consume(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), (<-msgs).Body)
	assert.Equal(t, []byte("b"), (<-msgs).Body)
}

func TestInMemoryPublishRespectsContext(t *testing.T) {
	q := NewInMemory(1)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, q.Publish(ctx, Message{Body: []byte("fill")}))

	cancel()
	err := q.Publish(ctx, Message{Body: []byte("blocked")})
	assert.ErrorIs(t, err, context.Canceled)
}
