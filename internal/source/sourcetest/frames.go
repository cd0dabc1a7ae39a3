// Package sourcetest provides synthetic frames and an in-memory capture source for tests.
package sourcetest

import (
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

var (
	srcMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	dstMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}
	srcIP  = net.IP{10, 0, 0, 1}
	dstIP  = net.IP{10, 0, 0, 2}
)

func serialize(ls ...gopacket.SerializableLayer) []byte {
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, ls...); err != nil {
		panic(err)
	}
	out := make([]byte, len(buf.Bytes()))
	copy(out, buf.Bytes())
	return out
}

func ethernet(t layers.EthernetType) *layers.Ethernet {
	return &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: t}
}

func ipv4(proto layers.IPProtocol) *layers.IPv4 {
	return &layers.IPv4{Version: 4, IHL: 5, TTL: 64, Protocol: proto, SrcIP: srcIP, DstIP: dstIP}
}

// TCP returns an Ethernet/IPv4/TCP SYN+ACK frame from 10.0.0.1:443 to 10.0.0.2:51000.
func TCP() []byte {
	ip := ipv4(layers.IPProtocolTCP)
	tcp := &layers.TCP{SrcPort: 443, DstPort: 51000, Seq: 1, SYN: true, ACK: true, Window: 1024}
	_ = tcp.SetNetworkLayerForChecksum(ip)
	return serialize(ethernet(layers.EthernetTypeIPv4), ip, tcp)
}

// UDP returns an Ethernet/IPv4/UDP frame to port 53 carrying 4 payload bytes.
func UDP() []byte {
	ip := ipv4(layers.IPProtocolUDP)
	udp := &layers.UDP{SrcPort: 40000, DstPort: 53}
	_ = udp.SetNetworkLayerForChecksum(ip)
	return serialize(ethernet(layers.EthernetTypeIPv4), ip, udp, gopacket.Payload([]byte{1, 2, 3, 4}))
}

// ICMP returns an Ethernet/IPv4/ICMPv4 echo request.
func ICMP() []byte {
	icmp := &layers.ICMPv4{
		TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0),
		Id:       1,
		Seq:      1,
	}
	return serialize(ethernet(layers.EthernetTypeIPv4), ipv4(layers.IPProtocolICMPv4), icmp)
}

// ICMPv6 returns an Ethernet/IPv6/ICMPv6 echo request.
func ICMPv6() []byte {
	ip := &layers.IPv6{
		Version:    6,
		NextHeader: layers.IPProtocolICMPv6,
		HopLimit:   64,
		SrcIP:      net.ParseIP("fe80::1"),
		DstIP:      net.ParseIP("fe80::2"),
	}
	icmp := &layers.ICMPv6{TypeCode: layers.CreateICMPv6TypeCode(layers.ICMPv6TypeEchoRequest, 0)}
	_ = icmp.SetNetworkLayerForChecksum(ip)
	return serialize(ethernet(layers.EthernetTypeIPv6), ip, icmp, gopacket.Payload([]byte{0, 1, 0, 1}))
}

// IPOnly returns an IPv4 frame whose transport (protocol 253, reserved for
// experimentation) is none of TCP, UDP or ICMP.
func IPOnly() []byte {
	return serialize(ethernet(layers.EthernetTypeIPv4), ipv4(layers.IPProtocol(253)), gopacket.Payload([]byte{0xde, 0xad}))
}

// ARP returns a frame with no IP layer.
func ARP() []byte {
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   srcMAC,
		SourceProtAddress: srcIP.To4(),
		DstHwAddress:      net.HardwareAddr{0, 0, 0, 0, 0, 0},
		DstProtAddress:    dstIP.To4(),
	}
	return serialize(ethernet(layers.EthernetTypeARP), arp)
}

// Packet decodes a frame built by this package.
func Packet(frame []byte) gopacket.Packet {
	return gopacket.NewPacket(frame, layers.LinkTypeEthernet, gopacket.Default)
}

// Mixed returns 3 TCP, 2 UDP, 1 ICMP, 1 IP-only and 1 non-IP frame, interleaved.
func Mixed() [][]byte {
	return [][]byte{TCP(), UDP(), ARP(), TCP(), ICMP(), IPOnly(), UDP(), TCP()}
}
