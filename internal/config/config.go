// Package config loads the fleet manager's own operating settings — the
// port range and RPC bind address handed to the Service Descriptor
// Builder, the filesystem roots services are provisioned under, and the
// NAT-detection toggle — distinct from the node/faucet/daemon registry
// that internal/registry persists. Grounded on the teacher's
// internal/config package: a typed settings struct plus a
// GetDefaultConfig-style constructor, with values overridable from the
// environment the way a long-running fleet daemon expects.
package config

import (
	"os"
	"strconv"
)

// Settings holds the fleet manager's own configuration, as opposed to the
// per-node/faucet/daemon state tracked in the registry.
type Settings struct {
	// RPCBindAddress is the address new nodes bind their RPC listener to.
	RPCBindAddress string
	// PortRangeMin/PortRangeMax bound the ports handed out by the Service
	// Controller Adapter's GetAvailablePort.
	PortRangeMin uint16
	PortRangeMax uint16
	// DataRoot/LogRoot are the parent directories under which each
	// service gets its own subdirectory, named after its service_name.
	DataRoot string
	LogRoot string
	// RegistryPath is where the node registry document is loaded from
	// and saved to.
	RegistryPath string
	// RunNATDetection enables the Maintenance Controller's opportunistic
	// NAT probe on first start.
	RunNATDetection bool
	// MaxParallelStarts bounds the Maintenance Controller's concurrent
	// controller.Start calls during scale-up.
	MaxParallelStarts int
}

const (
	envRPCBindAddress    = "ANTFLEET_RPC_BIND_ADDRESS"
	envPortRangeMin      = "ANTFLEET_PORT_RANGE_MIN"
	envPortRangeMax      = "ANTFLEET_PORT_RANGE_MAX"
	envDataRoot          = "ANTFLEET_DATA_ROOT"
	envLogRoot           = "ANTFLEET_LOG_ROOT"
	envRegistryPath      = "ANTFLEET_REGISTRY_PATH"
	envRunNATDetection   = "ANTFLEET_RUN_NAT_DETECTION"
	envMaxParallelStarts = "ANTFLEET_MAX_PARALLEL_STARTS"
)

// Default returns the fleet manager's built-in settings: an RPC bind
// address of 127.0.0.1, the dynamic/private port range (49152-65535),
// filesystem roots under /var/antctl and /var/log/antctl, NAT detection
// on, and a parallel-start limit of 4.
func Default() Settings {
	return Settings{
		RPCBindAddress:    "127.0.0.1",
		PortRangeMin:      49152,
		PortRangeMax:      65535,
		DataRoot:          "/var/antctl/services",
		LogRoot:           "/var/log/antctl",
		RegistryPath:      "/var/antctl/node_registry.yaml",
		RunNATDetection:   true,
		MaxParallelStarts: 4,
	}
}

// FromEnvironment returns Default with any recognized ANTFLEET_* variable
// overriding its corresponding field. Malformed numeric/boolean values are
// ignored in favor of the default rather than failing the whole load,
// since a single bad override should not prevent the daemon from starting.
func FromEnvironment() Settings {
	s := Default()

	if v := os.Getenv(envRPCBindAddress); v != "" {
		s.RPCBindAddress = v
	}
	if v := os.Getenv(envPortRangeMin); v != "" {
		if n, err := strconv.ParseUint(v, 10, 16); err == nil {
			s.PortRangeMin = uint16(n)
		}
	}
	if v := os.Getenv(envPortRangeMax); v != "" {
		if n, err := strconv.ParseUint(v, 10, 16); err == nil {
			s.PortRangeMax = uint16(n)
		}
	}
	if v := os.Getenv(envDataRoot); v != "" {
		s.DataRoot = v
	}
	if v := os.Getenv(envLogRoot); v != "" {
		s.LogRoot = v
	}
	if v := os.Getenv(envRegistryPath); v != "" {
		s.RegistryPath = v
	}
	if v := os.Getenv(envRunNATDetection); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			s.RunNATDetection = b
		}
	}
	if v := os.Getenv(envMaxParallelStarts); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			s.MaxParallelStarts = n
		}
	}

	return s
}
