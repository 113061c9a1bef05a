package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"walletlink/internal/wallet"
	"walletlink/internal/web3/simulated"
)

const alice = "0xAbC0000000000000000000000000000000000123"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func next(t *testing.T, pub *memoryPublisher) Message {
	t.Helper()
	select {
	case msg := <-pub.Messages():
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message published")
		return Message{}
	}
}

func TestForwardPublishesSnapshotThenUpdates(t *testing.T) {
	p := simulated.New(simulated.Config{Accounts: []string{alice}, ChainID: 56})
	m := wallet.New(context.Background(), p, wallet.WithLogger(discardLogger()))
	defer m.Close()
	<-m.Ready()

	pub := newMemoryPublisher(8)
	done := make(chan error, 1)
	go func() { done <- Forward(context.Background(), m, pub, discardLogger()) }()

	first := next(t, pub)
	require.Equal(t, wallet.Session{ChainID: 56}, first.Session)
	require.NotEmpty(t, first.ID)

	require.NoError(t, m.Connect(context.Background()))
	require.True(t, next(t, pub).Session.IsLoading)
	require.Equal(t, wallet.Session{Account: alice, ChainID: 56, IsConnected: true}, next(t, pub).Session)

	m.Close()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("forward did not stop after close")
	}
}

func TestForwardStopsOnContext(t *testing.T) {
	m := wallet.New(context.Background(), nil, wallet.WithLogger(discardLogger()))
	defer m.Close()

	ctx, cancel := context.WithCancel(context.Background())
	pub := newMemoryPublisher(1)
	done := make(chan error, 1)
	go func() { done <- Forward(ctx, m, pub, discardLogger()) }()

	next(t, pub)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestForwardRequiresPublisher(t *testing.T) {
	require.Error(t, Forward(context.Background(), nil, nil, discardLogger()))
}

type failingPublisher struct{ closed bool }

func (f *failingPublisher) Name() string { return "failing" }
func (f *failingPublisher) Publish(context.Context, Message) error {
	return errors.New("unreachable")
}
func (f *failingPublisher) Close() error {
	f.closed = true
	return nil
}

func TestFanoutDeliversToEveryPublisher(t *testing.T) {
	mem := newMemoryPublisher(2)
	failing := &failingPublisher{}
	fanout := NewFanout(mem, nil, failing, mem)
	require.Equal(t, 2, fanout.Len())

	msg := NewMessage(wallet.Session{ChainID: 1})
	err := fanout.Publish(context.Background(), msg)
	require.ErrorContains(t, err, "publisher failing")
	require.Equal(t, msg.ID, next(t, mem).ID)

	require.NoError(t, fanout.Close())
	require.True(t, failing.closed)
	require.Error(t, mem.Publish(context.Background(), msg))
}

func TestPublisherHonoursContext(t *testing.T) {
	pub := newMemoryPublisher(1)
	require.NoError(t, pub.Publish(context.Background(), NewMessage(wallet.Session{})))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, pub.Publish(ctx, NewMessage(wallet.Session{})), context.Canceled)
	require.NoError(t, pub.Close())
	require.NoError(t, pub.Close())
}

func TestMessageEncoding(t *testing.T) {
	msg := NewMessage(wallet.Session{Account: alice, ChainID: 137, IsConnected: true})
	payload, err := msg.Encode()
	require.NoError(t, err)

	var decoded Message
	require.NoError(t, json.Unmarshal(payload, &decoded))
	require.Equal(t, msg.Session, decoded.Session)
	require.Equal(t, msg.ID, decoded.ID)
}

func TestRabbitMQPublishingEnvelope(t *testing.T) {
	msg := NewMessage(wallet.Session{ChainID: 1})
	payload, err := msg.Encode()
	require.NoError(t, err)

	pub := publishing(msg, payload)
	require.Equal(t, "application/json", pub.ContentType)
	require.Equal(t, msg.ID, pub.MessageId)
	require.Equal(t, payload, pub.Body)
	require.Equal(t, uint8(2), pub.DeliveryMode)

	_, err = NewRabbitMQPublisher(RabbitMQConfig{})
	require.Error(t, err)
}
