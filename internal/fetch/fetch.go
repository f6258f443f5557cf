// Package fetch declares the binary fetcher collaborator: an external
// concern, out of scope for this module, that yields a local path to a
// node, faucet, or daemon executable given a version or URL. Only the
// interface lives here; callers (the Add/Provision Engine, the Upgrade
// Scheduler) depend on this contract, never on a concrete implementation.
package fetch

import "context"

// Kind identifies which executable a Fetcher is being asked for.
type Kind string

const (
	KindNode   Kind = "node"
	KindFaucet Kind = "faucet"
	KindDaemon Kind = "daemon"
)

// Request describes what to fetch: either a specific version or an
// explicit URL, never both.
type Request struct {
	Kind    Kind
	Version string
	URL     string
}

// Fetcher resolves a Request to a local filesystem path holding the
// downloaded (or already-cached) executable, staged for the caller to
// copy into a service directory and later remove.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (path string, err error)
}
