package pcap

import (
	"fmt"

	"github.com/google/gopacket/pcap"

	"firestige.xyz/pktstream/internal/core"
)

// ListInterfaces enumerates the devices libpcap can open. An error here usually
// means libpcap (or Npcap on Windows) is missing.
func ListInterfaces() ([]core.Interface, error) {
	devs, err := pcap.FindAllDevs()
	if err != nil {
		return nil, fmt.Errorf("list capture devices: %w", err)
	}

	ifaces := make([]core.Interface, 0, len(devs))
	for _, dev := range devs {
		iface := core.Interface{
			Name:        dev.Name,
			Description: dev.Description,
		}
		for _, addr := range dev.Addresses {
			if addr.IP != nil {
				iface.Addresses = append(iface.Addresses, addr.IP.String())
			}
		}
		ifaces = append(ifaces, iface)
	}
	return ifaces, nil
}
