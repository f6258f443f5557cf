package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultSettings(t *testing.T) {
	s := Default()
	assert.Equal(t, "127.0.0.1", s.RPCBindAddress)
	assert.Equal(t, uint16(49152), s.PortRangeMin)
	assert.Equal(t, uint16(65535), s.PortRangeMax)
	assert.True(t, s.RunNATDetection)
	assert.Equal(t, 4, s.MaxParallelStarts)
}

func TestFromEnvironmentOverridesDefaults(t *testing.T) {
	t.Setenv(envRPCBindAddress, "0.0.0.0")
	t.Setenv(envPortRangeMin, "10000")
	t.Setenv(envRunNATDetection, "false")
	t.Setenv(envMaxParallelStarts, "not-a-number")

	s := FromEnvironment()

	assert.Equal(t, "0.0.0.0", s.RPCBindAddress)
	assert.Equal(t, uint16(10000), s.PortRangeMin)
	assert.False(t, s.RunNATDetection)
	assert.Equal(t, 4, s.MaxParallelStarts, "malformed override falls back to default")
}
