package connectors

import "context"

// Connector is a long-running message source. Start blocks until the
// context is cancelled; transient transport failures are handled
// inside (reconnects), not surfaced as errors.
type Connector interface {
	Name() string
	Start(ctx context.Context) error
}
