package notifications

import (
	"context"

	"go.uber.org/multierr"

	"reforest-portal/portal-backend/internal/funding"
)

// FanoutPublisher delivers each event to every publisher and combines their errors.
type FanoutPublisher struct {
	publishers []funding.EventPublisher
}

func NewFanoutPublisher(publishers ...funding.EventPublisher) *FanoutPublisher {
	active := make([]funding.EventPublisher, 0, len(publishers))
	for _, p := range publishers {
		if p != nil {
			active = append(active, p)
		}
	}
	return &FanoutPublisher{publishers: active}
}

func (f *FanoutPublisher) Publish(ctx context.Context, event funding.Event) error {
	var err error
	for _, p := range f.publishers {
		err = multierr.Append(err, p.Publish(ctx, event))
	}
	return err
}

// Len reports how many publishers are attached.
func (f *FanoutPublisher) Len() int {
	return len(f.publishers)
}
