package lifecycle

import (
	"context"

	"github.com/aretw0/lifecycle"

	"github.com/aretw0/shelf/pkg/agent"
)

type agentSource struct {
	events <-chan agent.Event
	out    chan lifecycle.Event
}

// NewSource creates a lifecycle.Source that emits sync agent events.
// It bridges the typed agent event channel to the generic lifecycle Event interface.
func NewSource(events <-chan agent.Event) lifecycle.Source {
	return &agentSource{
		events: events,
		out:    make(chan lifecycle.Event),
	}
}

func (s *agentSource) Events() <-chan lifecycle.Event {
	return s.out
}

func (s *agentSource) Start(ctx context.Context) error {
	lifecycle.Go(ctx, func(ctx context.Context) error {
		defer close(s.out)
		for {
			select {
			case <-ctx.Done():
				return nil
			case e, ok := <-s.events:
				if !ok {
					return nil
				}
				// agent.Event implements lifecycle.Event (has String())
				select {
				case s.out <- e:
				case <-ctx.Done():
					return nil
				}
			}
		}
	})
	return nil
}
