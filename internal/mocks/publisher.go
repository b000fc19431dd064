package mocks

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"
)

type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) Publish(ctx context.Context, routingKey string, event any) error {
	args := m.Called(ctx, routingKey, event)
	return args.Error(0)
}

func (m *PublisherMock) Close() error {
	args := m.Called()
	return args.Error(0)
}

// BroadcastRecord is one captured channel publish.
type BroadcastRecord struct {
	Channel       string
	Event         string
	Payload       any
	ExcludeUserID int
}

// BroadcasterRecorder captures channel publishes for assertions.
type BroadcasterRecorder struct {
	mu      sync.Mutex
	Records []BroadcastRecord
}

func (r *BroadcasterRecorder) Publish(channel, event string, payload any, excludeUserID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Records = append(r.Records, BroadcastRecord{
		Channel:       channel,
		Event:         event,
		Payload:       payload,
		ExcludeUserID: excludeUserID,
	})
}

// ByEvent returns captured publishes with the given event name.
func (r *BroadcasterRecorder) ByEvent(event string) []BroadcastRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []BroadcastRecord
	for _, rec := range r.Records {
		if rec.Event == event {
			out = append(out, rec)
		}
	}
	return out
}
