// Package packet holds the bounded byte-buffer envelope that moves between
// the ISO-TP reassembly path and the TCP fan-out bridge. Nothing in this
// package interprets the bytes it carries.
package packet

import "fmt"

// MaxLen is the ISO-TP maximum payload length this bridge will construct or
// accept.
const MaxLen = 4095

// ErrTooLarge is returned when constructing a packet longer than MaxLen.
type ErrTooLarge struct {
	Len int
}

func (e *ErrTooLarge) Error() string {
	return fmt.Sprintf("packet: length %d exceeds maximum %d", e.Len, MaxLen)
}

func validate(data []byte) error {
	if len(data) > MaxLen {
		return &ErrTooLarge{Len: len(data)}
	}
	return nil
}

// Inbound is a reassembled packet received from a node, tagged with the
// node's logical source address.
type Inbound struct {
	SrcAddr byte
	Data    []byte
}

// NewInbound constructs an Inbound packet, failing if data exceeds MaxLen.
func NewInbound(srcAddr byte, data []byte) (Inbound, error) {
	if err := validate(data); err != nil {
		return Inbound{}, err
	}
	return Inbound{SrcAddr: srcAddr, Data: data}, nil
}

// Len returns the payload length.
func (p Inbound) Len() int { return len(p.Data) }

// Outbound is a packet destined for a node, tagged with its logical
// destination address.
type Outbound struct {
	DstAddr byte
	Data    []byte
}

// NewOutbound constructs an Outbound packet, failing if data exceeds MaxLen.
func NewOutbound(dstAddr byte, data []byte) (Outbound, error) {
	if err := validate(data); err != nil {
		return Outbound{}, err
	}
	return Outbound{DstAddr: dstAddr, Data: data}, nil
}

// Len returns the payload length.
func (p Outbound) Len() int { return len(p.Data) }
