package natprobe

import (
	"context"

	"github.com/harismuzaffer/antfleet/internal/registry"
)

// NoopProber is the default Prober: it never determines reachability,
// always reporting Unknown. It exists so the CLI has something concrete
// to wire against when no real probe is configured; a real deployment
// would replace it with a collaborator that performs an actual
// reachability check against the network.
type NoopProber struct{}

// NewNoopProber returns a NoopProber.
func NewNoopProber() *NoopProber { return &NoopProber{} }

func (NoopProber) Detect(ctx context.Context) (registry.NatStatus, error) {
	return registry.NatUnknown, nil
}
