// Package pcap implements live capture through libpcap on one or more interfaces.
package pcap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"

	"firestige.xyz/pktstream/internal/classifier"
	"firestige.xyz/pktstream/internal/config"
	"firestige.xyz/pktstream/internal/core"
	"firestige.xyz/pktstream/internal/log"
	"firestige.xyz/pktstream/internal/source"
)

const Name = "pcap"

// anyDevice is the Linux pseudo-device that aggregates every interface; it is
// skipped when interfaces are enumerated so frames are not seen twice.
const anyDevice = "any"

func init() {
	source.Register(Name, func(cfg config.CaptureConfig) (source.Source, error) {
		return New(cfg), nil
	})
}

// Source captures on the configured interfaces, or on every device when none
// are configured.
type Source struct {
	interfaces  []string
	snapLen     int32
	promiscuous bool
	pollTimeout time.Duration
	bpfFilter   string
}

func New(cfg config.CaptureConfig) *Source {
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 100 * time.Millisecond
	}
	snapLen := cfg.SnapLen
	if snapLen <= 0 {
		snapLen = 65535
	}
	return &Source{
		interfaces:  cfg.Interfaces,
		snapLen:     int32(snapLen),
		promiscuous: cfg.Promiscuous,
		pollTimeout: timeout,
		bpfFilter:   cfg.BPFFilter,
	}
}

func (s *Source) Interfaces() ([]core.Interface, error) {
	return ListInterfaces()
}

// Run opens every target interface and reads them concurrently, serialising
// calls to handle. It fails with core.ErrCaptureStart only when no interface
// could be opened; interfaces that fail individually are logged and skipped.
func (s *Source) Run(ctx context.Context, handle source.Handler) error {
	names, err := s.targets()
	if err != nil {
		return err
	}

	handles, err := s.open(names)
	if err != nil {
		return err
	}
	defer func() {
		for _, h := range handles {
			h.handle.Close()
		}
	}()

	return ReadAll(ctx, handles, handle)
}

func (s *Source) targets() ([]string, error) {
	if len(s.interfaces) > 0 {
		return s.interfaces, nil
	}
	ifaces, err := ListInterfaces()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrCaptureStart, err)
	}
	names := make([]string, 0, len(ifaces))
	for _, iface := range ifaces {
		if iface.Name == anyDevice {
			continue
		}
		names = append(names, iface.Name)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: %w", core.ErrCaptureStart, core.ErrNoInterfaces)
	}
	return names, nil
}

func (s *Source) open(names []string) ([]NamedHandle, error) {
	var (
		handles []NamedHandle
		errs    []error
	)
	for _, name := range names {
		h, err := pcap.OpenLive(name, s.snapLen, s.promiscuous, s.pollTimeout)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		if s.bpfFilter != "" {
			if err := h.SetBPFFilter(s.bpfFilter); err != nil {
				h.Close()
				errs = append(errs, fmt.Errorf("%s: bpf filter %q: %w", name, s.bpfFilter, err))
				continue
			}
		}
		handles = append(handles, NamedHandle{Name: name, handle: h})
	}

	if len(handles) == 0 {
		return nil, fmt.Errorf("%w: %w", core.ErrCaptureStart, errors.Join(errs...))
	}
	for _, err := range errs {
		log.GetLogger().WithError(err).Warn("skipping interface")
	}
	opened := make([]string, len(handles))
	for i, h := range handles {
		opened[i] = h.Name
	}
	log.GetLogger().WithField("interfaces", opened).Info("pcap capture started")
	return handles, nil
}

// NamedHandle pairs an open pcap handle with the name used in errors and logs.
type NamedHandle struct {
	Name   string
	handle *pcap.Handle
}

func NewNamedHandle(name string, h *pcap.Handle) NamedHandle {
	return NamedHandle{Name: name, handle: h}
}

// ReadAll reads every handle on its own goroutine until ctx is cancelled,
// every handle reaches end-of-stream, or one fails. Calls to emit are
// serialised. Handles are not closed.
func ReadAll(ctx context.Context, handles []NamedHandle, emit source.Handler) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		emitMu   sync.Mutex
		errOnce  sync.Once
		firstErr error
	)
	serialEmit := func(pkt gopacket.Packet) {
		emitMu.Lock()
		defer emitMu.Unlock()
		emit(pkt)
	}

	for _, nh := range handles {
		wg.Add(1)
		go func(nh NamedHandle) {
			defer wg.Done()
			if err := Read(runCtx, nh, serialEmit); err != nil {
				errOnce.Do(func() {
					firstErr = err
					cancel()
				})
			}
		}(nh)
	}
	wg.Wait()
	return firstErr
}

// Read delivers frames from one handle. Poll timeouts are retried so that
// cancellation is observed at least once per timeout; end of file returns nil.
func Read(ctx context.Context, nh NamedHandle, emit source.Handler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("read %s: panic: %v", nh.Name, r)
		}
	}()

	linkType := nh.handle.LinkType()
	for {
		if ctx.Err() != nil {
			return nil
		}
		data, ci, err := nh.handle.ReadPacketData()
		switch {
		case err == nil:
		case errors.Is(err, pcap.NextErrorTimeoutExpired):
			continue
		case errors.Is(err, io.EOF), errors.Is(err, pcap.NextErrorNoMorePackets):
			return nil
		default:
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read %s: %w", nh.Name, err)
		}

		// ReadPacketData copies, so the decoded packet may keep referencing data.
		emit(classifier.Decode(data, ci, linkType))
	}
}
