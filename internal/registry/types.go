// Package registry defines the authoritative, persisted record of every
// node, faucet, and daemon service known to the fleet manager, and the
// fleet-wide settings that apply to all of them.
package registry

import (
	"fmt"
	"time"
)

// ServiceStatus is the lifecycle state of a node, faucet, or daemon
// service, as last observed or as set by the manager itself.
type ServiceStatus string

const (
	StatusAdded   ServiceStatus = "Added"
	StatusRunning ServiceStatus = "Running"
	StatusStopped ServiceStatus = "Stopped"
	StatusRemoved ServiceStatus = "Removed"
)

// validTransitions encodes the status transition table from the system
// design: Added -> Running, Running <-> Stopped, Stopped/Added -> Removed.
// Removed is terminal.
var validTransitions = map[ServiceStatus]map[ServiceStatus]bool{
	StatusAdded:   {StatusRunning: true, StatusRemoved: true},
	StatusRunning: {StatusStopped: true},
	StatusStopped: {StatusRunning: true, StatusRemoved: true},
	StatusRemoved: {},
}

// ErrIllegalTransition is returned by Transition when the requested status
// change is not in the transition table.
type ErrIllegalTransition struct {
	From, To ServiceStatus
}

func (e *ErrIllegalTransition) Error() string {
	return fmt.Sprintf("illegal status transition: %s -> %s", e.From, e.To)
}

// CriticalFailure records the most recent fatal error observed for a
// service, with the time it was recorded.
type CriticalFailure struct {
	Timestamp time.Time `yaml:"timestamp" json:"timestamp"`
	Message   string    `yaml:"message" json:"message"`
}

// NodeService is the persisted record for a single antnode service.
type NodeService struct {
	ServiceName     string           `yaml:"service_name" json:"service_name"`
	Number          uint16           `yaml:"number" json:"number"`
	User            string           `yaml:"user" json:"user"`
	Version         string           `yaml:"version" json:"version"`
	Genesis         bool             `yaml:"genesis" json:"genesis"`
	Local           bool             `yaml:"local" json:"local"`
	RPCSocketAddr   string           `yaml:"rpc_socket_addr" json:"rpc_socket_addr"`
	NodePort        *uint16          `yaml:"node_port" json:"node_port,omitempty"`
	ListenAddr      *string          `yaml:"listen_addr" json:"listen_addr,omitempty"`
	PeerID          *string          `yaml:"peer_id" json:"peer_id,omitempty"`
	PID             *int             `yaml:"pid" json:"pid,omitempty"`
	Status          ServiceStatus    `yaml:"status" json:"status"`
	SafenodePath    string           `yaml:"safenode_path" json:"safenode_path"`
	DataDirPath     string           `yaml:"data_dir_path" json:"data_dir_path"`
	LogDirPath      string           `yaml:"log_dir_path" json:"log_dir_path"`
	ConnectedPeers  []string         `yaml:"connected_peers" json:"connected_peers,omitempty"`
	CriticalFailure *CriticalFailure `yaml:"critical_failure" json:"critical_failure,omitempty"`
}

// Transition moves the node to a new status, rejecting any change absent
// from the documented transition table. Removed is terminal: every
// transition out of it fails, including Removed -> Removed (callers that
// want idempotent removal must check the current status first).
func (n *NodeService) Transition(to ServiceStatus) error {
	allowed, ok := validTransitions[n.Status]
	if !ok || !allowed[to] {
		return &ErrIllegalTransition{From: n.Status, To: to}
	}
	n.Status = to
	return nil
}

// FaucetService is the persisted record for the singleton faucet service.
type FaucetService struct {
	ServiceName string        `yaml:"service_name" json:"service_name"`
	User        string        `yaml:"user" json:"user"`
	Version     string        `yaml:"version" json:"version"`
	Local       bool          `yaml:"local" json:"local"`
	PID         *int          `yaml:"pid,omitempty" json:"pid,omitempty"`
	Status      ServiceStatus `yaml:"status" json:"status"`
	FaucetPath  string        `yaml:"faucet_path" json:"faucet_path"`
	LogDirPath  string        `yaml:"log_dir_path" json:"log_dir_path"`
}

// DaemonService is the persisted record for the singleton daemon service.
type DaemonService struct {
	ServiceName string        `yaml:"service_name" json:"service_name"`
	Version     string        `yaml:"version" json:"version"`
	Endpoint    *string       `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	PID         *int          `yaml:"pid,omitempty" json:"pid,omitempty"`
	Status      ServiceStatus `yaml:"status" json:"status"`
	DaemonPath  string        `yaml:"daemon_path" json:"daemon_path"`
}

// NatStatus is the cached result of the NAT-reachability probe.
type NatStatus string

const (
	NatPublic  NatStatus = "Public"
	NatPrivate NatStatus = "Private"
	NatUnknown NatStatus = "Unknown"
)

// EnvVar is a single (name, value) environment variable pair. A slice,
// rather than a map, so that declaration order survives a save/load
// round-trip; the fleet manager applies these in order at install time.
type EnvVar struct {
	Name  string `yaml:"name" json:"name"`
	Value string `yaml:"value" json:"value"`
}

// Registry is the single authoritative, persisted record of every service
// and fleet-wide setting known to the manager. In-memory copies handed to
// callers are views; Save is the only durable write path.
type Registry struct {
	SavePath             string          `yaml:"save_path" json:"save_path"`
	Nodes                []*NodeService  `yaml:"nodes" json:"nodes"`
	Faucet               *FaucetService  `yaml:"faucet" json:"faucet,omitempty"`
	Daemon               *DaemonService  `yaml:"daemon" json:"daemon,omitempty"`
	BootstrapPeers       []string        `yaml:"bootstrap_peers" json:"bootstrap_peers"`
	EnvironmentVariables []EnvVar        `yaml:"environment_variables" json:"environment_variables,omitempty"`
	NatStatusValue       *NatStatus      `yaml:"nat_status" json:"nat_status,omitempty"`
}

// NewEmpty returns an empty registry whose Save will write to path.
func NewEmpty(path string) *Registry {
	return &Registry{SavePath: path, Nodes: []*NodeService{}, BootstrapPeers: []string{}}
}

// NextNumber returns the service number the next provisioned node would
// receive: one more than the highest number currently recorded, which may
// exceed len(Nodes) if earlier nodes were removed (numbers are
// stable-forever; see DESIGN.md's resolution of the spec's open question).
func (r *Registry) NextNumber() uint16 {
	var max uint16
	for _, n := range r.Nodes {
		if n.Number > max {
			max = n.Number
		}
	}
	return max + 1
}

// GenesisNode returns the node flagged genesis, if any.
func (r *Registry) GenesisNode() *NodeService {
	for _, n := range r.Nodes {
		if n.Genesis {
			return n
		}
	}
	return nil
}

// FindNode returns the node with the given service name.
func (r *Registry) FindNode(name string) *NodeService {
	for _, n := range r.Nodes {
		if n.ServiceName == name {
			return n
		}
	}
	return nil
}

// ActiveNodes returns every node whose status is not Removed, in
// registration order. Removed records are retained for audit but filtered
// out of active fleet views, per the spec.
func (r *Registry) ActiveNodes() []*NodeService {
	out := make([]*NodeService, 0, len(r.Nodes))
	for _, n := range r.Nodes {
		if n.Status != StatusRemoved {
			out = append(out, n)
		}
	}
	return out
}

// RunningNodes returns every node whose status is Running, in
// registration order.
func (r *Registry) RunningNodes() []*NodeService {
	var out []*NodeService
	for _, n := range r.Nodes {
		if n.Status == StatusRunning {
			out = append(out, n)
		}
	}
	return out
}

// DefinedNotRunning returns every node whose status is Added or Stopped,
// in registration order. It does not sort by Number; the Maintenance
// Controller sorts the result itself before recruiting.
func (r *Registry) DefinedNotRunning() []*NodeService {
	var out []*NodeService
	for _, n := range r.Nodes {
		if n.Status == StatusAdded || n.Status == StatusStopped {
			out = append(out, n)
		}
	}
	return out
}

// HasBootstrapPeer reports whether peer is already recorded.
func (r *Registry) HasBootstrapPeer(peer string) bool {
	for _, p := range r.BootstrapPeers {
		if p == peer {
			return true
		}
	}
	return false
}

// MergeBootstrapPeers appends any peers not already present, preserving
// insertion order, and reports whether the registry changed.
func (r *Registry) MergeBootstrapPeers(peers []string) bool {
	changed := false
	for _, p := range peers {
		if !r.HasBootstrapPeer(p) {
			r.BootstrapPeers = append(r.BootstrapPeers, p)
			changed = true
		}
	}
	return changed
}

// RPCSocketAddrInUse reports whether addr is already assigned to a node.
func (r *Registry) RPCSocketAddrInUse(addr string) bool {
	for _, n := range r.Nodes {
		if n.RPCSocketAddr == addr {
			return true
		}
	}
	return false
}

// NodePortInUse reports whether port is already assigned to a node.
func (r *Registry) NodePortInUse(port uint16) bool {
	for _, n := range r.Nodes {
		if n.NodePort != nil && *n.NodePort == port {
			return true
		}
	}
	return false
}

// NatStatus returns the cached NAT status, or NatUnknown if none is set.
func (r *Registry) NatStatus() NatStatus {
	if r.NatStatusValue == nil {
		return NatUnknown
	}
	return *r.NatStatusValue
}

// SetNatStatus records a newly detected NAT status.
func (r *Registry) SetNatStatus(s NatStatus) {
	r.NatStatusValue = &s
}
