package broker

import (
	"context"
	"errors"
	"testing"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/require"
)

func TestNewPublisherRequiresURL(t *testing.T) {
	_, err := NewPublisher(Config{})
	require.Error(t, err)
}

func TestPublishSurfacesDialFailures(t *testing.T) {
	p := &Publisher{
		url:      "amqp://example",
		exchange: DefaultExchange,
		dial: func(string) (*amqp.Connection, error) {
			return nil, errors.New("connection refused")
		},
	}

	err := p.Publish(context.Background(), RoutingNotificationCreated, map[string]string{"id": "n1"})
	require.ErrorContains(t, err, "connection refused")
	require.NoError(t, p.Close())
}

func TestPublishHonoursCancelledContext(t *testing.T) {
	p := &Publisher{url: "amqp://example", exchange: DefaultExchange}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, p.Publish(ctx, RoutingNotificationCreated, nil), context.Canceled)
}

func TestPublishRejectsUnencodablePayload(t *testing.T) {
	p := &Publisher{url: "amqp://example", exchange: DefaultExchange}
	err := p.Publish(context.Background(), RoutingNotificationCreated, make(chan int))
	require.ErrorContains(t, err, "encode")
}
