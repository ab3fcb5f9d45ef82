// Package canid encodes and decodes the bridge's 29-bit extended CAN
// arbitration identifiers and builds the address-protocol control frames
// that ride on top of them.
package canid

import (
	"fmt"

	"canbridge/candrv"
	"canbridge/identity"
)

// MessageType is the 3-bit tag carried in bits 16-18 of the arbitration id.
type MessageType uint8

const (
	// ISOTP carries an ISO-TP payload-bearing frame.
	ISOTP MessageType = 0
	// AddressRequest is a hardware-identity announcement (node to master)
	// or an address-reacquire prompt (master to node).
	AddressRequest MessageType = 5
	// AddressResponse carries an address assignment (master to broadcast).
	AddressResponse MessageType = 6
	// Unknown is returned for any 3-bit value not named above.
	Unknown MessageType = 99
)

const (
	// AddressMaster is the bridge's own reserved logical address.
	AddressMaster byte = 0x00
	// AddressBroadcast is reserved for broadcast frames.
	AddressBroadcast byte = 0xFF

	// MinNodeAddr and MaxNodeAddr bound the assignable logical address space.
	MinNodeAddr = 1
	MaxNodeAddr = 254

	// SourceMask clears the source-address byte (bits 8-15) together with
	// bits 21-28 from an arbitration id, before the frame is handed to an
	// ISO-TP engine that matches purely on destination address. Bits
	// 16-20 and 29-31 pass through unmasked; their intent is undocumented
	// (see DESIGN.md).
	SourceMask uint32 = ^uint32(0x1FE0FF00)
)

func typeFromBits(v uint32) MessageType {
	switch MessageType(v) {
	case ISOTP, AddressRequest, AddressResponse:
		return MessageType(v)
	default:
		return Unknown
	}
}

// Encode builds the 29-bit id for (t, src, dst): type in bits 16-18, src in
// bits 8-15, dst in bits 0-7; all higher bits are zero.
func Encode(t MessageType, src, dst byte) uint32 {
	return uint32(t&0x07)<<16 | uint32(src)<<8 | uint32(dst)
}

// Decode extracts (type, src, dst) from a 29-bit extended arbitration id.
func Decode(id uint32) (t MessageType, src, dst byte) {
	t = typeFromBits((id >> 16) & 0x07)
	src = byte((id >> 8) & 0xFF)
	dst = byte(id & 0xFF)
	return
}

// MaskForTransport clears the source-address bits of an arbitration id so
// the masked id can be handed to an ISO-TP engine without exposing which
// node sent it; the engine matches purely on destination.
func MaskForTransport(id uint32) uint32 {
	return id & SourceMask
}

// Accept reports whether a raw CAN frame satisfies the bridge's frame
// acceptance preconditions: extended id, not remote, not error.
func Accept(f candrv.Frame) bool {
	return f.IsExtendedID && !f.IsRemoteFrame && !f.IsErrorFrame
}

// MakeAddressResponse builds the master's reply to an address request:
// id encode(AddressResponse, master, broadcast), DLC 8, payload
// identity(6) || status(1) || new_address(1).
func MakeAddressResponse(status byte, newAddress byte, id identity.NodeIdentity) candrv.Frame {
	data := append(id.Bytes(), status, newAddress)
	return candrv.Frame{
		ArbitrationID: Encode(AddressResponse, AddressMaster, AddressBroadcast),
		Data:          data,
		DLC:           8,
		IsExtendedID:  true,
	}
}

// MakeAddressRequestPrompt builds a frame instructing a node to reannounce
// itself: id encode(AddressRequest, master, targetAddress), DLC 0, no payload.
func MakeAddressRequestPrompt(targetAddress byte) candrv.Frame {
	return candrv.Frame{
		ArbitrationID: Encode(AddressRequest, AddressMaster, targetAddress),
		DLC:           0,
		IsExtendedID:  true,
	}
}

// ParseAddressRequest interprets a received frame's payload as a
// NodeIdentity announcement. It requires DLC 6 and type AddressRequest.
func ParseAddressRequest(f candrv.Frame) (identity.NodeIdentity, error) {
	t, _, _ := Decode(f.ArbitrationID)
	if t != AddressRequest {
		return identity.NodeIdentity{}, fmt.Errorf("canid: frame is not an address request")
	}
	if f.DLC != 6 {
		return identity.NodeIdentity{}, fmt.Errorf("canid: address request DLC %d, want 6", f.DLC)
	}
	return identity.FromBytes(f.Data[:6])
}
