package dispatch

import (
	"context"

	"github.com/chatwarden/warden/engine"
)

// Multi fans one event out to every dispatcher in order. Later dispatchers
// still receive the event when an earlier one fails; the first error is
// returned.
type Multi struct {
	dispatchers []engine.Dispatcher
}

func NewMulti(dispatchers ...engine.Dispatcher) *Multi {
	return &Multi{dispatchers: dispatchers}
}

var _ engine.Dispatcher = (*Multi)(nil)

func (m *Multi) Dispatch(ctx context.Context, evt *engine.DispatchEvent) error {
	var firstErr error
	for _, d := range m.dispatchers {
		if err := d.Dispatch(ctx, evt); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
