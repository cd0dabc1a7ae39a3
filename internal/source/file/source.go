// Package file replays a pcap capture file as a capture source.
package file

import (
	"context"
	"fmt"

	gopcap "github.com/google/gopacket/pcap"

	"firestige.xyz/pktstream/internal/config"
	"firestige.xyz/pktstream/internal/core"
	"firestige.xyz/pktstream/internal/log"
	"firestige.xyz/pktstream/internal/source"
	"firestige.xyz/pktstream/internal/source/pcap"
)

const Name = "file"

func init() {
	source.Register(Name, func(cfg config.CaptureConfig) (source.Source, error) {
		return NewSource(cfg)
	})
}

// Source reads frames from a pcap file; the end of the file ends the stream.
type Source struct {
	path      string
	bpfFilter string
}

func NewSource(cfg config.CaptureConfig) (*Source, error) {
	if cfg.File == "" {
		return nil, fmt.Errorf("%w: capture.file is required", core.ErrConfigInvalid)
	}
	return &Source{
		path:      cfg.File,
		bpfFilter: cfg.BPFFilter,
	}, nil
}

func (s *Source) Interfaces() ([]core.Interface, error) {
	return []core.Interface{{Name: s.path, Description: "offline capture file"}}, nil
}

func (s *Source) Run(ctx context.Context, handle source.Handler) error {
	h, err := gopcap.OpenOffline(s.path)
	if err != nil {
		return fmt.Errorf("%w: open %s: %w", core.ErrCaptureStart, s.path, err)
	}
	defer h.Close()

	if s.bpfFilter != "" {
		if err := h.SetBPFFilter(s.bpfFilter); err != nil {
			return fmt.Errorf("%w: bpf filter %q: %w", core.ErrCaptureStart, s.bpfFilter, err)
		}
	}

	log.GetLogger().WithField("file", s.path).Info("replaying capture file")
	return pcap.Read(ctx, pcap.NewNamedHandle(s.path, h), handle)
}
