//go:build linux

package afpacket

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/gopacket/afpacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"golang.org/x/net/bpf"

	"firestige.xyz/pktstream/internal/classifier"
	"firestige.xyz/pktstream/internal/config"
	"firestige.xyz/pktstream/internal/core"
	"firestige.xyz/pktstream/internal/log"
	"firestige.xyz/pktstream/internal/source"
	pcapsource "firestige.xyz/pktstream/internal/source/pcap"
)

const Name = "afpacket"

func init() {
	source.Register(Name, func(cfg config.CaptureConfig) (source.Source, error) {
		return NewSource(cfg)
	})
}

type Source struct {
	device      string
	snapLen     int
	frameSize   int
	blockSize   int
	numBlocks   int
	pollTimeout time.Duration
	bpfFilter   string
}

// NewSource validates cfg and sizes the ring. Nothing is opened until Run.
func NewSource(cfg config.CaptureConfig) (*Source, error) {
	if len(cfg.Interfaces) != 1 {
		return nil, fmt.Errorf("%w: afpacket needs exactly one interface, got %d", core.ErrConfigInvalid, len(cfg.Interfaces))
	}
	snapLen := cfg.SnapLen
	if snapLen <= 0 {
		snapLen = 65535
	}
	bufferMB := cfg.BufferMB
	if bufferMB <= 0 {
		bufferMB = 8
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 100 * time.Millisecond
	}

	frameSize, blockSize, numBlocks, err := recomputeSize(bufferMB, snapLen, os.Getpagesize())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrConfigInvalid, err)
	}
	return &Source{
		device:      cfg.Interfaces[0],
		snapLen:     snapLen,
		frameSize:   frameSize,
		blockSize:   blockSize,
		numBlocks:   numBlocks,
		pollTimeout: timeout,
		bpfFilter:   cfg.BPFFilter,
	}, nil
}

func (s *Source) Interfaces() ([]core.Interface, error) {
	return pcapsource.ListInterfaces()
}

func (s *Source) Run(ctx context.Context, handle source.Handler) (err error) {
	tp, err := s.open()
	if err != nil {
		return fmt.Errorf("%w: %s: %w", core.ErrCaptureStart, s.device, err)
	}
	defer tp.Close()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("read %s: panic: %v", s.device, r)
		}
	}()

	log.GetLogger().
		WithField("interface", s.device).
		WithField("blocks", s.numBlocks).
		WithField("block_size", s.blockSize).
		Info("afpacket capture started")

	for {
		if ctx.Err() != nil {
			return nil
		}
		data, ci, err := tp.ReadPacketData()
		switch {
		case err == nil:
		case errors.Is(err, afpacket.ErrTimeout), errors.Is(err, afpacket.ErrPoll):
			continue
		default:
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read %s: %w", s.device, err)
		}

		handle(classifier.Decode(data, ci, layers.LinkTypeEthernet))
	}
}

func (s *Source) open() (*afpacket.TPacket, error) {
	tp, err := afpacket.NewTPacket(
		afpacket.OptInterface(s.device),
		afpacket.OptFrameSize(s.frameSize),
		afpacket.OptBlockSize(s.blockSize),
		afpacket.OptNumBlocks(s.numBlocks),
		afpacket.OptPollTimeout(s.pollTimeout),
		afpacket.SocketRaw,
		afpacket.TPacketVersion3,
	)
	if err != nil {
		return nil, err
	}

	if s.bpfFilter != "" {
		filter, err := compileBPF(s.bpfFilter, s.snapLen)
		if err != nil {
			tp.Close()
			return nil, err
		}
		if err := tp.SetBPF(filter); err != nil {
			tp.Close()
			return nil, fmt.Errorf("attach bpf filter: %w", err)
		}
	}
	return tp, nil
}

// compileBPF turns a tcpdump expression into raw instructions for SO_ATTACH_FILTER.
func compileBPF(expr string, snapLen int) ([]bpf.RawInstruction, error) {
	insns, err := pcap.CompileBPFFilter(layers.LinkTypeEthernet, snapLen, expr)
	if err != nil {
		return nil, fmt.Errorf("bpf filter %q: %w", expr, err)
	}
	raw := make([]bpf.RawInstruction, len(insns))
	for i, inst := range insns {
		raw[i] = bpf.RawInstruction{
			Op: inst.Code,
			Jt: inst.Jt,
			Jf: inst.Jf,
			K:  inst.K,
		}
	}
	return raw, nil
}
