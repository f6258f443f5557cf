package lifecycle

import "context"

// NoopWatcher is the default PeerIdentityWatcher: it never observes a
// peer id, returning immediately so Start does not block. It exists so
// the CLI has something concrete to wire against when no real side
// channel to the node's announce mechanism is configured.
type NoopWatcher struct{}

// NewNoopWatcher returns a NoopWatcher.
func NewNoopWatcher() NoopWatcher { return NoopWatcher{} }

func (NoopWatcher) WaitForPeerID(ctx context.Context, serviceName string) (string, string, error) {
	return "", "", nil
}
