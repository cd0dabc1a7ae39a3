package cmd

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"firestige.xyz/pktstream/internal/core"
)

type MockLister struct {
	mock.Mock
}

func (m *MockLister) Interfaces() ([]core.Interface, error) {
	args := m.Called()
	ifaces, _ := args.Get(0).([]core.Interface)
	return ifaces, args.Error(1)
}

func TestRunInterfaces_Success(t *testing.T) {
	lister := new(MockLister)
	lister.On("Interfaces").Return([]core.Interface{
		{Name: "eth0", Description: "Ethernet", Addresses: []string{"10.0.0.2", "fe80::1"}},
		{Name: "lo"},
	}, nil)

	var buf bytes.Buffer
	err := runInterfaces(lister, &buf)

	assert.NoError(t, err)
	assert.Contains(t, buf.String(), "NAME")
	assert.Contains(t, buf.String(), "10.0.0.2,fe80::1")
	assert.Regexp(t, `lo\s+-`, buf.String())
	lister.AssertExpectations(t)
}

func TestRunInterfaces_NoDevices(t *testing.T) {
	lister := new(MockLister)
	lister.On("Interfaces").Return([]core.Interface{}, nil)

	err := runInterfaces(lister, &bytes.Buffer{})

	assert.ErrorIs(t, err, core.ErrNoInterfaces)
	lister.AssertExpectations(t)
}

func TestRunInterfaces_LibpcapMissing(t *testing.T) {
	lister := new(MockLister)
	lister.On("Interfaces").Return(nil, errors.New("libpcap.so: cannot open shared object file"))

	var buf bytes.Buffer
	err := runInterfaces(lister, &buf)

	assert.ErrorIs(t, err, core.ErrCaptureStart)
	assert.Contains(t, err.Error(), "libpcap")
	assert.Empty(t, buf.String())
	lister.AssertExpectations(t)
}
