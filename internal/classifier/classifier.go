// Package classifier maps a captured frame to a protocol category and a one-line summary.
package classifier

import (
	"fmt"
	"net"
	"strings"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"firestige.xyz/pktstream/internal/core"
)

const summaryPrefix = "Packet: "

// Result is the classification of one frame.
type Result struct {
	Protocol core.Protocol
	Summary  string
}

// transportMatcher recognises one transport category. Matchers are tried in
// order and the first one that finds a fully decoded layer wins.
type transportMatcher struct {
	protocol core.Protocol
	types    []gopacket.LayerType
	describe func(l gopacket.Layer, src, dst net.IP) string
}

var matchers = []transportMatcher{
	{
		protocol: core.TCP,
		types:    []gopacket.LayerType{layers.LayerTypeTCP},
		describe: describeTCP,
	},
	{
		protocol: core.UDP,
		types:    []gopacket.LayerType{layers.LayerTypeUDP},
		describe: describeUDP,
	},
	{
		protocol: core.ICMP,
		types:    []gopacket.LayerType{layers.LayerTypeICMPv4, layers.LayerTypeICMPv6},
		describe: describeICMP,
	},
}

// Classify returns ok=false for frames without an IPv4/IPv6 layer; those frames
// are not counted and produce no event.
func Classify(pkt gopacket.Packet) (Result, bool) {
	if pkt == nil {
		return Result{}, false
	}
	ip := networkLayer(pkt)
	if ip == nil {
		return Result{}, false
	}
	src, dst, next := ipFields(ip)

	for _, m := range matchers {
		for _, t := range m.types {
			if l := pkt.Layer(t); l != nil && decoded(pkt, l) {
				return Result{
					Protocol: m.protocol,
					Summary:  summarize(pkt, m.describe(l, src, dst)),
				}, true
			}
		}
	}

	return Result{
		Protocol: core.Other,
		Summary:  summarize(pkt, fmt.Sprintf("%s > %s proto=%s", src, dst, next)),
	}, true
}

// Decode parses raw frame bytes captured on a link of the given type. The
// packet references data, so the caller must not reuse the buffer.
func Decode(data []byte, ci gopacket.CaptureInfo, linkType layers.LinkType) gopacket.Packet {
	pkt := gopacket.NewPacket(data, linkType, gopacket.DecodeOptions{Lazy: true, NoCopy: true})
	pkt.Metadata().CaptureInfo = ci
	return pkt
}

// decoded reports whether l was parsed without error. gopacket adds a
// transport layer to the packet before checking its length, so a truncated
// header still shows up, either empty or followed by a decode failure.
func decoded(pkt gopacket.Packet, l gopacket.Layer) bool {
	if len(l.LayerContents()) == 0 {
		return false
	}
	seen := false
	for _, other := range pkt.Layers() {
		if other == l {
			seen = true
			continue
		}
		if seen && other.LayerType() == gopacket.LayerTypeDecodeFailure {
			return false
		}
	}
	return true
}

func networkLayer(pkt gopacket.Packet) gopacket.Layer {
	for _, l := range pkt.Layers() {
		switch l.LayerType() {
		case layers.LayerTypeIPv4, layers.LayerTypeIPv6:
			return l
		}
	}
	return nil
}

func ipFields(l gopacket.Layer) (src, dst net.IP, next layers.IPProtocol) {
	switch ip := l.(type) {
	case *layers.IPv4:
		return ip.SrcIP, ip.DstIP, ip.Protocol
	case *layers.IPv6:
		return ip.SrcIP, ip.DstIP, ip.NextHeader
	}
	return nil, nil, 0
}

// summarize joins the decoded layer chain with the transport detail, e.g.
// "Packet: Ethernet / IPv4 / TCP 10.0.0.1:443 > 10.0.0.2:51000 [SYN,ACK]".
func summarize(pkt gopacket.Packet, detail string) string {
	var chain []string
	for _, l := range pkt.Layers() {
		switch l.LayerType() {
		case gopacket.LayerTypePayload, gopacket.LayerTypeDecodeFailure, gopacket.LayerTypeFragment:
			continue
		}
		if len(l.LayerContents()) == 0 {
			continue
		}
		chain = append(chain, l.LayerType().String())
	}
	return summaryPrefix + strings.Join(chain, " / ") + " " + detail
}

func describeTCP(l gopacket.Layer, src, dst net.IP) string {
	tcp := l.(*layers.TCP)
	return fmt.Sprintf("%s > %s [%s]",
		hostPort(src, uint16(tcp.SrcPort)), hostPort(dst, uint16(tcp.DstPort)), tcpFlags(tcp))
}

func describeUDP(l gopacket.Layer, src, dst net.IP) string {
	udp := l.(*layers.UDP)
	return fmt.Sprintf("%s > %s len=%d",
		hostPort(src, uint16(udp.SrcPort)), hostPort(dst, uint16(udp.DstPort)), len(udp.Payload))
}

func describeICMP(l gopacket.Layer, src, dst net.IP) string {
	switch icmp := l.(type) {
	case *layers.ICMPv4:
		return fmt.Sprintf("%s > %s %s", src, dst, icmp.TypeCode)
	case *layers.ICMPv6:
		return fmt.Sprintf("%s > %s %s", src, dst, icmp.TypeCode)
	}
	return fmt.Sprintf("%s > %s", src, dst)
}

func hostPort(ip net.IP, port uint16) string {
	return net.JoinHostPort(ip.String(), fmt.Sprint(port))
}

func tcpFlags(tcp *layers.TCP) string {
	var flags []string
	for _, f := range []struct {
		set  bool
		name string
	}{
		{tcp.SYN, "SYN"},
		{tcp.ACK, "ACK"},
		{tcp.FIN, "FIN"},
		{tcp.RST, "RST"},
		{tcp.PSH, "PSH"},
		{tcp.URG, "URG"},
		{tcp.ECE, "ECE"},
		{tcp.CWR, "CWR"},
		{tcp.NS, "NS"},
	} {
		if f.set {
			flags = append(flags, f.name)
		}
	}
	return strings.Join(flags, ",")
}
