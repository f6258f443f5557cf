// Package natprobe declares the NAT-detection probe collaborator: an
// external concern, out of scope for this module, invoked opportunistically
// by the Maintenance Controller on first start to determine whether this
// host is publicly reachable.
package natprobe

import (
	"context"

	"github.com/harismuzaffer/antfleet/internal/registry"
)

// Prober reports the host's observed NAT reachability.
type Prober interface {
	Detect(ctx context.Context) (registry.NatStatus, error)
}
