// Package core defines the value types shared by the capture and delivery sides.
package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Protocol is the transport category a frame is counted under.
type Protocol uint8

const (
	TCP Protocol = iota
	UDP
	ICMP
	Other

	numProtocols = int(Other) + 1
)

var protocolNames = [numProtocols]string{"TCP", "UDP", "ICMP", "Other"}

// Protocols lists every category in wire order.
func Protocols() []Protocol {
	return []Protocol{TCP, UDP, ICMP, Other}
}

func (p Protocol) String() string {
	if int(p) < numProtocols {
		return protocolNames[p]
	}
	return "Protocol(" + strconv.Itoa(int(p)) + ")"
}

// Valid reports whether p is one of the four categories.
func (p Protocol) Valid() bool {
	return int(p) < numProtocols
}

// ParseProtocol maps a wire name back to its Protocol.
func ParseProtocol(name string) (Protocol, error) {
	for i, n := range protocolNames {
		if n == name {
			return Protocol(i), nil
		}
	}
	return Other, fmt.Errorf("unknown protocol %q", name)
}

// Counters holds one count per Protocol. It is a value type: assigning or
// returning it copies every count at once.
type Counters [numProtocols]uint64

func (c Counters) Get(p Protocol) uint64 {
	if !p.Valid() {
		return 0
	}
	return c[p]
}

func (c Counters) Total() uint64 {
	var total uint64
	for _, n := range c {
		total += n
	}
	return total
}

// Map returns the counts keyed by wire name.
func (c Counters) Map() map[string]uint64 {
	m := make(map[string]uint64, numProtocols)
	for i, n := range c {
		m[protocolNames[i]] = n
	}
	return m
}

// MarshalJSON writes {"TCP":n,"UDP":n,"ICMP":n,"Other":n} in that order.
func (c Counters) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, n := range c {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.Quote(protocolNames[i]))
		buf.WriteByte(':')
		buf.WriteString(strconv.FormatUint(n, 10))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (c *Counters) UnmarshalJSON(data []byte) error {
	var m map[string]uint64
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	var out Counters
	for name, n := range m {
		p, err := ParseProtocol(name)
		if err != nil {
			return err
		}
		out[p] = n
	}
	*c = out
	return nil
}

func (c Counters) String() string {
	return fmt.Sprintf("TCP:%d UDP:%d ICMP:%d Other:%d", c[TCP], c[UDP], c[ICMP], c[Other])
}
