package events

import "context"

// NoopPublisher discards events. The server uses it when DOCQ_NATS_URL is unset.
type NoopPublisher struct{}

func (n *NoopPublisher) Publish(context.Context, string, any) error { return nil }

func (n *NoopPublisher) Close() error { return nil }
