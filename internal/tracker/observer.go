package tracker

import "context"

// Observer watches the archive root and feeds raw file events into a
// sink. Start blocks until the context is canceled or the watch fails;
// Stop unblocks a running Start. Directory events are never emitted, and
// paths are filtered by the configured video extension set before they
// reach the sink.
type Observer interface {
	Start(ctx context.Context, root string, sink EventSink) error
	Stop()
}
