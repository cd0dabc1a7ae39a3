package source_test

import (
	"context"
	"testing"

	"github.com/google/gopacket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/pktstream/internal/config"
	"firestige.xyz/pktstream/internal/core"
	"firestige.xyz/pktstream/internal/source"
	"firestige.xyz/pktstream/internal/source/sourcetest"
)

func init() {
	source.Register("registry-test", func(config.CaptureConfig) (source.Source, error) {
		return sourcetest.New(sourcetest.TCP()), nil
	})
}

func TestNewRegistered(t *testing.T) {
	src, err := source.New(config.CaptureConfig{Source: "registry-test"})
	require.NoError(t, err)

	n := 0
	require.NoError(t, src.Run(context.Background(), func(gopacket.Packet) { n++ }))
	assert.Equal(t, 1, n)
}

func TestNewUnknown(t *testing.T) {
	_, err := source.New(config.CaptureConfig{Source: "carrier-pigeon"})
	assert.ErrorIs(t, err, core.ErrUnknownSource)
}

func TestNamesSorted(t *testing.T) {
	names := source.Names()
	assert.Contains(t, names, "registry-test")
	assert.IsNonDecreasing(t, names)
}

func TestRegisterDuplicatePanics(t *testing.T) {
	assert.Panics(t, func() {
		source.Register("registry-test", func(config.CaptureConfig) (source.Source, error) {
			return nil, nil
		})
	})
}
