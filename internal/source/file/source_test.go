package file

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/pktstream/internal/config"
	"firestige.xyz/pktstream/internal/core"
	"firestige.xyz/pktstream/internal/source"
	"firestige.xyz/pktstream/internal/source/sourcetest"
)

func writePcap(t *testing.T, frames ...[]byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trace.pcap")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := pcapgo.NewWriter(f)
	require.NoError(t, w.WriteFileHeader(65535, layers.LinkTypeEthernet))
	for _, frame := range frames {
		ci := gopacket.CaptureInfo{Timestamp: time.Now(), CaptureLength: len(frame), Length: len(frame)}
		require.NoError(t, w.WritePacket(ci, frame))
	}
	return path
}

func TestNewSourceRequiresFile(t *testing.T) {
	_, err := NewSource(config.CaptureConfig{})
	assert.ErrorIs(t, err, core.ErrConfigInvalid)
}

func TestRegistered(t *testing.T) {
	src, err := source.New(config.CaptureConfig{Source: Name, File: "trace.pcap"})
	require.NoError(t, err)
	ifaces, err := src.Interfaces()
	require.NoError(t, err)
	assert.Equal(t, "trace.pcap", ifaces[0].Name)
}

func TestRunReplaysToEndOfFile(t *testing.T) {
	path := writePcap(t, sourcetest.Mixed()...)
	src, err := NewSource(config.CaptureConfig{File: path})
	require.NoError(t, err)

	n := 0
	require.NoError(t, src.Run(context.Background(), func(gopacket.Packet) { n++ }))
	assert.Equal(t, len(sourcetest.Mixed()), n)
}

func TestRunAppliesBPFFilter(t *testing.T) {
	path := writePcap(t, sourcetest.Mixed()...)
	src, err := NewSource(config.CaptureConfig{File: path, BPFFilter: "tcp"})
	require.NoError(t, err)

	n := 0
	require.NoError(t, src.Run(context.Background(), func(p gopacket.Packet) {
		assert.NotNil(t, p.Layer(layers.LayerTypeTCP))
		n++
	}))
	assert.Equal(t, 3, n)
}

func TestRunMissingFileIsStartupFailure(t *testing.T) {
	src, err := NewSource(config.CaptureConfig{File: filepath.Join(t.TempDir(), "missing.pcap")})
	require.NoError(t, err)

	err = src.Run(context.Background(), func(gopacket.Packet) {})
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrCaptureStart))
}

func TestRunInvalidFilterIsStartupFailure(t *testing.T) {
	path := writePcap(t, sourcetest.TCP())
	src, err := NewSource(config.CaptureConfig{File: path, BPFFilter: "not a filter ((("})
	require.NoError(t, err)

	err = src.Run(context.Background(), func(gopacket.Packet) {})
	assert.ErrorIs(t, err, core.ErrCaptureStart)
}
