package service

import "context"

// EventPublisher fans domain events out to other services. Publishing is best effort.
type EventPublisher interface {
	Publish(ctx context.Context, event string, payload interface{})
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, string, interface{}) {}

func publisherOrNoop(p EventPublisher) EventPublisher {
	if p == nil {
		return noopPublisher{}
	}
	return p
}
