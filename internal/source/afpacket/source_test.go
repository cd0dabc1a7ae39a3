//go:build linux

package afpacket

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/pktstream/internal/config"
	"firestige.xyz/pktstream/internal/core"
	"firestige.xyz/pktstream/internal/source"
)

func TestNewSourceRequiresOneInterface(t *testing.T) {
	for _, ifaces := range [][]string{nil, {"eth0", "eth1"}} {
		_, err := NewSource(config.CaptureConfig{Interfaces: ifaces})
		assert.ErrorIs(t, err, core.ErrConfigInvalid)
	}
}

func TestNewSourceDefaults(t *testing.T) {
	s, err := NewSource(config.CaptureConfig{Interfaces: []string{"eth0"}})
	require.NoError(t, err)
	assert.Equal(t, "eth0", s.device)
	assert.Equal(t, 65535, s.snapLen)
	assert.Positive(t, s.numBlocks)
}

func TestRegistered(t *testing.T) {
	assert.Contains(t, source.Names(), Name)
}
