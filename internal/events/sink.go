package events

import "context"

// Sink consumes batches of events. Implementations must honor ctx deadlines
// and may be invoked concurrently.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}

// Emitter publishes individual events; Hub satisfies this interface so the
// scheduler, dispatcher and executor stay agnostic about how events are
// buffered or persisted.
type Emitter interface {
	Emit(evt Event)
}
